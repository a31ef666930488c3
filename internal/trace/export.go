package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExportJSON writes the snapshots as an indented JSON array.
func ExportJSON(w io.Writer, steps []Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(steps)
}

// ExportYAML writes the snapshots as a YAML sequence.
func ExportYAML(w io.Writer, steps []Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(steps); err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	return enc.Close()
}

// RenderText writes a compact human-readable listing of the snapshots.
func RenderText(w io.Writer, steps []Snapshot) error {
	var b strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&b, "#%d", i+1)
		if s.Line != nil {
			fmt.Fprintf(&b, " line %d", *s.Line)
		}
		fmt.Fprintf(&b, ": %s\n", s.Description)
		for _, f := range s.Stack {
			fmt.Fprintf(&b, "  %s(): %s\n", f.Name, formatBindings(f.Locals))
		}
		for _, o := range s.Heap {
			fmt.Fprintf(&b, "  %s %s {%s}\n", o.ID, o.Type, formatBindings(o.Fields))
		}
	}
	if n := len(steps); n > 0 && steps[n-1].Console != "" {
		b.WriteString("console:\n")
		for _, line := range strings.Split(steps[n-1].Console, "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatBindings(b Bindings) string {
	parts := make([]string, len(b))
	for i, kv := range b {
		v := kv.Value.String()
		if kv.Value.Kind == KindString {
			v = fmt.Sprintf("%q", v)
		}
		parts[i] = kv.Name + " = " + v
	}
	return strings.Join(parts, ", ")
}
