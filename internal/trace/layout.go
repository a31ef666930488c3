package trace

import "fmt"

// Layout constants for the memory graph. They are cosmetic.
const (
	stackX  = 50
	heapX   = 400
	heapTop = 50
	rowGap  = 150
)

// Graph is a positioned node/edge view of one snapshot, ready for a
// client-side graph renderer.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

type Node struct {
	ID       string   `json:"id" yaml:"id"`
	Type     string   `json:"type" yaml:"type"` // "stackFrame" or "heapObject"
	Data     NodeData `json:"data" yaml:"data"`
	Position Position `json:"position" yaml:"position"`
}

// NodeData carries label and locals for frames, type and fields for heap objects.
type NodeData struct {
	Label  string   `json:"label,omitempty" yaml:"label,omitempty"`
	Locals Bindings `json:"locals,omitempty" yaml:"locals,omitempty"`
	Type   string   `json:"type,omitempty" yaml:"type,omitempty"`
	Fields Bindings `json:"fields,omitempty" yaml:"fields,omitempty"`
}

type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label" yaml:"label"`
}

// layout stacks frames down the left column, innermost first, and heap
// objects down the right. Every reference held by a local or a field
// becomes an edge.
func layout(stack []Frame, heap []Object) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(stack)+len(heap)),
		Edges: []Edge{},
	}
	for i, f := range stack {
		g.Nodes = append(g.Nodes, Node{
			ID:       f.ID,
			Type:     "stackFrame",
			Data:     NodeData{Label: f.Name, Locals: f.Locals},
			Position: Position{X: stackX, Y: i * rowGap},
		})
		g.Edges = appendEdges(g.Edges, f.ID, f.Locals)
	}
	for i, o := range heap {
		g.Nodes = append(g.Nodes, Node{
			ID:       o.ID,
			Type:     "heapObject",
			Data:     NodeData{Type: o.Type, Fields: o.Fields},
			Position: Position{X: heapX, Y: heapTop + i*rowGap},
		})
		g.Edges = appendEdges(g.Edges, o.ID, o.Fields)
	}
	return g
}

func appendEdges(edges []Edge, source string, b Bindings) []Edge {
	for _, kv := range b {
		if kv.Value.Kind != KindRef {
			continue
		}
		edges = append(edges, Edge{
			ID:     fmt.Sprintf("edge_%s_%s_%s", source, kv.Value.S, kv.Name),
			Source: source,
			Target: kv.Value.S,
			Label:  kv.Name,
		})
	}
	return edges
}
