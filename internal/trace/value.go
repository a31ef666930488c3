package trace

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind tags a simulated value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindChar
	KindBool
	KindRef    // heap object id
	KindOpaque // a construct the simulator does not evaluate
	KindError  // an evaluation that failed
)

// Value is an immutable simulated value.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    string // string, char, or heap id
	B    bool
}

var (
	Null       = Value{Kind: KindNull}
	Opaque     = Value{Kind: KindOpaque}
	ErrorValue = Value{Kind: KindError}
)

func Int(i int64) Value     { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }
func Str(s string) Value    { return Value{Kind: KindString, S: s} }
func Char(r rune) Value     { return Value{Kind: KindChar, S: string(r)} }
func Bool(b bool) Value     { return Value{Kind: KindBool, B: b} }
func Ref(id string) Value   { return Value{Kind: KindRef, S: id} }

func (v Value) numeric() bool {
	return v.Kind == KindInt || v.Kind == KindFloat || v.Kind == KindChar
}

func (v Value) asFloat() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I)
	case KindChar:
		return float64(v.asInt())
	}
	return v.F
}

func (v Value) asInt() int64 {
	switch v.Kind {
	case KindChar:
		r := []rune(v.S)
		if len(r) == 0 {
			return 0
		}
		return int64(r[0])
	case KindFloat:
		return int64(v.F)
	}
	return v.I
}

// String renders the value the way Java's string conversion would.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return formatFloat(v.F)
	case KindString, KindChar, KindRef:
		return v.S
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindOpaque:
		return "..."
	case KindError:
		return "Error"
	default:
		return "null"
	}
}

// formatFloat mimics Double.toString: at least one fractional digit and
// computerized scientific notation outside [1e-3, 1e7).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-3 && abs < 1e7) {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(f, 'E', -1, 64)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.I, 10)), nil
	case KindFloat:
		if math.IsNaN(v.F) || math.IsInf(v.F, 0) {
			return json.Marshal(v.String())
		}
		s := strconv.FormatFloat(v.F, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return []byte(s), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.B)), nil
	default:
		return json.Marshal(v.String())
	}
}

func (v Value) yamlNode() *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch v.Kind {
	case KindNull:
		n.Tag, n.Value = "!!null", "null"
	case KindInt:
		n.Tag, n.Value = "!!int", strconv.FormatInt(v.I, 10)
	case KindFloat:
		n.Tag, n.Value = "!!float", formatFloat(v.F)
		if math.IsNaN(v.F) || math.IsInf(v.F, 0) {
			n.Tag = "!!str"
		}
	case KindBool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(v.B)
	default:
		n.Tag, n.Value = "!!str", v.String()
	}
	return n
}

func (v Value) MarshalYAML() (any, error) { return v.yamlNode(), nil }

// Binding is one name bound to a value.
type Binding struct {
	Name  string
	Value Value
}

// Bindings is an insertion-ordered name to value mapping. It encodes as
// an object whose keys keep their order.
type Bindings []Binding

// Get returns the value bound to name.
func (b Bindings) Get(name string) (Value, bool) {
	for _, kv := range b {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return Value{}, false
}

// Set rebinds name in place, or appends it when new.
func (b Bindings) Set(name string, v Value) Bindings {
	for i := range b {
		if b[i].Name == name {
			b[i].Value = v
			return b
		}
	}
	return append(b, Binding{Name: name, Value: v})
}

func (b Bindings) clone() Bindings {
	if b == nil {
		return Bindings{}
	}
	return append(Bindings(nil), b...)
}

func (b Bindings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		val, err := kv.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b Bindings) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if len(b) == 0 {
		n.Style = yaml.FlowStyle
	}
	for _, kv := range b {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Name},
			kv.Value.yamlNode(),
		)
	}
	return n, nil
}
