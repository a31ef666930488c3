package trace

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxArraySlots bounds the slots materialized for one simulated array.
const maxArraySlots = 10000

type frameState struct {
	id     string
	name   string
	locals Bindings
}

// simulator walks the entry method's top-level statements. It holds the
// only mutable state of one Visualize call.
type simulator struct {
	stack   []*frameState
	heap    []*Object
	console strings.Builder
	steps   []Snapshot
	frames  int
}

func simulate(m *MethodDecl) []Snapshot {
	s := &simulator{}
	s.push(m.Name)
	s.record("Starting "+m.Name, 0)
	if m.Body != nil {
		for _, st := range m.Body.Stmts {
			s.exec(st)
		}
	}
	s.pop()
	s.record("Finished "+m.Name, 0)
	return s.steps
}

func (s *simulator) push(name string) {
	s.stack = append(s.stack, &frameState{id: fmt.Sprintf("frame_%d", s.frames), name: name})
	s.frames++
}

func (s *simulator) pop() {
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *simulator) frame() *frameState {
	return s.stack[len(s.stack)-1]
}

func (s *simulator) bind(name string, v Value) {
	f := s.frame()
	f.locals = f.locals.Set(name, v)
}

func (s *simulator) exec(st Stmt) {
	switch st := st.(type) {
	case *LocalVar:
		for _, d := range st.Vars {
			t := st.Type
			t.Dims += d.Dims
			v := s.initValue(t, d.Init)
			s.bind(d.Name, v)
			s.record(fmt.Sprintf("Declared %s = %s", d.Name, v), d.Line)
		}
	case *ExprStmt:
		s.execExpr(st)
	case *Block, *LocalType, *If, *While, *DoWhile, *For, *ForEach, *Switch, *Try,
		*Return, *Break, *Continue, *Throw, *Yield, *Assert, *Sync, *Labeled, *Empty:
		// Control flow and nested scopes are not simulated.
	}
}

func (s *simulator) initValue(t Type, init Expr) Value {
	if ai, ok := init.(*ArrayInit); ok {
		return s.allocInit(t, ai)
	}
	if init == nil {
		return Null
	}
	return s.eval(init)
}

func (s *simulator) execExpr(st *ExprStmt) {
	switch x := unparen(st.X).(type) {
	case *Assign:
		v := s.eval(x.Value)
		target := unparen(x.Target)
		if x.Op != "=" {
			cur := s.eval(target)
			v = narrow(cur, binary(strings.TrimSuffix(x.Op, "="), cur, v))
		}
		if label, ok := s.store(target, v); ok {
			s.record(fmt.Sprintf("Assigned %s = %s", label, v), st.Line)
		}
	case *Unary:
		if x.Op != "++" && x.Op != "--" {
			return
		}
		target := unparen(x.X)
		cur := s.eval(target)
		v := narrow(cur, binary(x.Op[:1], cur, Int(1)))
		if label, ok := s.store(target, v); ok {
			s.record(fmt.Sprintf("Assigned %s = %s", label, v), st.Line)
		}
	case *MethodCall:
		newline, ok := printCall(x)
		if !ok {
			return
		}
		parts := make([]string, len(x.Args))
		for i, a := range x.Args {
			parts[i] = s.eval(a).String()
		}
		out := strings.Join(parts, " ")
		s.console.WriteString(out)
		if newline {
			s.console.WriteByte('\n')
		}
		s.record("Printed: "+out, st.Line)
	}
}

// printCall recognizes System.out.println and System.out.print.
func printCall(c *MethodCall) (newline, ok bool) {
	if c.Name != "println" && c.Name != "print" {
		return false, false
	}
	recv, isField := c.Recv.(*FieldAccess)
	if !isField || recv.Sel != "out" {
		return false, false
	}
	if sys, isName := recv.X.(*Name); !isName || sys.Ident != "System" {
		return false, false
	}
	return c.Name == "println", true
}

// store writes v to a local, an array slot or an object field and returns
// the label used to describe the write.
func (s *simulator) store(target Expr, v Value) (string, bool) {
	switch t := target.(type) {
	case *Name:
		s.bind(t.Ident, v)
		return t.Ident, true
	case *Index:
		obj := s.object(s.eval(t.X))
		idx := s.eval(t.Index)
		if obj == nil || (idx.Kind != KindInt && idx.Kind != KindChar) {
			return "", false
		}
		key := slotName(idx.asInt())
		if _, ok := obj.Fields.Get(key); !ok {
			return "", false
		}
		obj.Fields = obj.Fields.Set(key, v)
		return exprName(t.X) + key, true
	case *FieldAccess:
		obj := s.object(s.eval(t.X))
		if obj == nil || strings.HasPrefix(obj.ID, "arr_") {
			return "", false
		}
		obj.Fields = obj.Fields.Set(t.Sel, v)
		return exprName(t), true
	}
	return "", false
}

func (s *simulator) object(v Value) *Object {
	if v.Kind != KindRef {
		return nil
	}
	for _, o := range s.heap {
		if o.ID == v.S {
			return o
		}
	}
	return nil
}

func (s *simulator) eval(x Expr) Value {
	switch x := x.(type) {
	case *Literal:
		return literal(x)
	case *Name:
		if v, ok := s.frame().locals.Get(x.Ident); ok {
			return v
		}
		return Null
	case *Paren:
		return s.eval(x.X)
	case *Binary:
		return binary(x.Op, s.eval(x.X), s.eval(x.Y))
	case *Unary:
		if x.Op == "++" || x.Op == "--" {
			return Opaque
		}
		return unary(x.Op, s.eval(x.X))
	case *Cast:
		return cast(x.Type, s.eval(x.X))
	case *Conditional:
		c := s.eval(x.Cond)
		if c.Kind != KindBool {
			return Opaque
		}
		if c.B {
			return s.eval(x.Then)
		}
		return s.eval(x.Else)
	case *New:
		return s.allocObject(x.Type.Name)
	case *NewArray:
		return s.allocArray(x)
	case *ArrayInit:
		return s.allocInit(Type{Name: "Object", Dims: 1}, x)
	case *FieldAccess:
		obj := s.object(s.eval(x.X))
		if obj == nil {
			return Opaque
		}
		if strings.HasPrefix(obj.ID, "arr_") && x.Sel == "length" {
			return Int(int64(len(obj.Fields)))
		}
		if v, ok := obj.Fields.Get(x.Sel); ok {
			return v
		}
		return Opaque
	case *Index:
		obj := s.object(s.eval(x.X))
		idx := s.eval(x.Index)
		if obj == nil || (idx.Kind != KindInt && idx.Kind != KindChar) {
			return Opaque
		}
		if v, ok := obj.Fields.Get(slotName(idx.asInt())); ok {
			return v
		}
		return ErrorValue
	case *MethodCall, *Assign, *InstanceOf, *Lambda, *MethodRef, *ClassLit, *SwitchExpr:
		return Opaque
	}
	return Opaque
}

func (s *simulator) allocObject(typeName string) Value {
	id := fmt.Sprintf("obj_%d", len(s.heap))
	s.heap = append(s.heap, &Object{
		ID:     id,
		Type:   typeName,
		Fields: Bindings{{Name: "hash", Value: Str(identityHash(id))}},
	})
	return Ref(id)
}

func (s *simulator) newArray(t Type) *Object {
	obj := &Object{ID: fmt.Sprintf("arr_%d", len(s.heap)), Type: t.String(), Fields: Bindings{}}
	s.heap = append(s.heap, obj)
	return obj
}

func (s *simulator) allocArray(na *NewArray) Value {
	t := Type{Name: na.Elem.Name, Dims: na.Rank}
	if na.Init != nil {
		return s.allocInit(t, na.Init)
	}
	size := int64(0)
	if len(na.Dims) > 0 {
		if v := s.eval(na.Dims[0]); v.numeric() {
			size = v.asInt()
		}
	}
	size = max(0, min(size, maxArraySlots))
	obj := s.newArray(t)
	for i := range size {
		obj.Fields = append(obj.Fields, Binding{Name: slotName(i), Value: Int(0)})
	}
	return Ref(obj.ID)
}

func (s *simulator) allocInit(t Type, ai *ArrayInit) Value {
	if t.Dims == 0 {
		t.Dims = 1
	}
	obj := s.newArray(t)
	elem := Type{Name: t.Name, Dims: t.Dims - 1}
	for i, e := range ai.Elems {
		if i >= maxArraySlots {
			break
		}
		obj.Fields = append(obj.Fields, Binding{Name: slotName(int64(i)), Value: s.initValue(elem, e)})
	}
	return Ref(obj.ID)
}

func slotName(i int64) string {
	return "[" + strconv.FormatInt(i, 10) + "]"
}

// identityHash stands in for Object.hashCode. It depends only on the id,
// so repeated runs agree.
func identityHash(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return fmt.Sprintf("0x%x", h.Sum32())
}

func (s *simulator) record(desc string, line int) {
	snap := Snapshot{
		Description: desc,
		Console:     strings.TrimSuffix(s.console.String(), "\n"),
		Stack:       make([]Frame, 0, len(s.stack)),
		Heap:        make([]Object, 0, len(s.heap)),
	}
	if line > 0 {
		snap.Line = &line
	}
	for i := len(s.stack) - 1; i >= 0; i-- {
		f := s.stack[i]
		snap.Stack = append(snap.Stack, Frame{ID: f.id, Name: f.name, Locals: f.locals.clone()})
	}
	for _, o := range s.heap {
		snap.Heap = append(snap.Heap, Object{ID: o.ID, Type: o.Type, Fields: o.Fields.clone()})
	}
	snap.Graph = layout(snap.Stack, snap.Heap)
	s.steps = append(s.steps, snap)
}

// Evaluation

func literal(l *Literal) Value {
	switch l.Kind {
	case LitString:
		return Str(l.Raw)
	case LitChar:
		r, _ := utf8.DecodeRuneInString(l.Raw)
		return Char(r)
	case LitBool:
		return Bool(l.Raw == "true")
	case LitNull:
		return Null
	}
	return number(l.Raw)
}

// number classifies a numeric literal: a decimal point, an exponent or a
// float suffix makes it floating point. Anything unparsable is kept as
// its source text.
func number(raw string) Value {
	clean := strings.ReplaceAll(raw, "_", "")
	lower := strings.ToLower(clean)
	hex := strings.HasPrefix(lower, "0x")
	isFloat := strings.Contains(clean, ".") || (!hex && strings.Contains(lower, "e"))
	switch last := lower[len(lower)-1]; {
	case last == 'l':
		clean = clean[:len(clean)-1]
	case !hex && (last == 'f' || last == 'd'):
		clean = clean[:len(clean)-1]
		isFloat = true
	}
	if isFloat {
		if f, err := strconv.ParseFloat(clean, 64); err == nil {
			return Float(f)
		}
		return Str(raw)
	}
	if i, err := strconv.ParseInt(clean, 0, 64); err == nil {
		return Int(i)
	}
	return Str(raw)
}

func binary(op string, l, r Value) Value {
	switch op {
	case "+":
		if l.Kind == KindString || r.Kind == KindString {
			return Str(l.String() + r.String())
		}
		return arith(op, l, r)
	case "-", "*", "/", "%":
		return arith(op, l, r)
	}

	if l.Kind == KindOpaque || r.Kind == KindOpaque {
		return Opaque
	}
	switch op {
	case "==", "!=":
		eq, ok := equal(l, r)
		if !ok {
			return Opaque
		}
		return Bool(eq == (op == "=="))
	case "<", ">", "<=", ">=":
		if !l.numeric() || !r.numeric() {
			return ErrorValue
		}
		a, b := l.asFloat(), r.asFloat()
		if l.Kind != KindFloat && r.Kind != KindFloat {
			ai, bi := l.asInt(), r.asInt()
			return Bool(compare(op, cmpInt(ai, bi)))
		}
		return Bool(compare(op, cmpFloat(a, b)))
	case "&&", "||":
		if l.Kind != KindBool || r.Kind != KindBool {
			return ErrorValue
		}
		if op == "&&" {
			return Bool(l.B && r.B)
		}
		return Bool(l.B || r.B)
	case "&", "|", "^":
		if l.Kind == KindBool && r.Kind == KindBool {
			switch op {
			case "&":
				return Bool(l.B && r.B)
			case "|":
				return Bool(l.B || r.B)
			}
			return Bool(l.B != r.B)
		}
		if !integral(l) || !integral(r) {
			return ErrorValue
		}
		a, b := l.asInt(), r.asInt()
		switch op {
		case "&":
			return Int(a & b)
		case "|":
			return Int(a | b)
		}
		return Int(a ^ b)
	case "<<", ">>", ">>>":
		if !integral(l) || !integral(r) {
			return ErrorValue
		}
		a, n := l.asInt(), uint(r.asInt()&63)
		switch op {
		case "<<":
			return Int(a << n)
		case ">>":
			return Int(a >> n)
		}
		return Int(int64(uint64(a) >> n))
	}
	return Opaque
}

func integral(v Value) bool { return v.Kind == KindInt || v.Kind == KindChar }

func arith(op string, l, r Value) Value {
	if !l.numeric() || !r.numeric() {
		return ErrorValue
	}
	if l.Kind == KindFloat || r.Kind == KindFloat {
		a, b := l.asFloat(), r.asFloat()
		switch op {
		case "+":
			return Float(a + b)
		case "-":
			return Float(a - b)
		case "*":
			return Float(a * b)
		case "/":
			if b == 0 {
				return ErrorValue
			}
			return Float(a / b)
		default:
			if b == 0 {
				return ErrorValue
			}
			return Float(math.Mod(a, b))
		}
	}
	a, b := l.asInt(), r.asInt()
	switch op {
	case "+":
		return Int(a + b)
	case "-":
		return Int(a - b)
	case "*":
		return Int(a * b)
	case "/":
		if b == 0 {
			return ErrorValue
		}
		return Int(a / b)
	default:
		if b == 0 {
			return ErrorValue
		}
		return Int(a % b)
	}
}

func equal(l, r Value) (bool, bool) {
	switch {
	case l.numeric() && r.numeric():
		if l.Kind == KindFloat || r.Kind == KindFloat {
			return l.asFloat() == r.asFloat(), true
		}
		return l.asInt() == r.asInt(), true
	case l.Kind == KindBool && r.Kind == KindBool:
		return l.B == r.B, true
	case (l.Kind == KindNull || l.Kind == KindRef) && (r.Kind == KindNull || r.Kind == KindRef):
		return l.Kind == r.Kind && l.S == r.S, true
	}
	return false, false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compare(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	}
	return c >= 0
}

func unary(op string, v Value) Value {
	if v.Kind == KindOpaque {
		return Opaque
	}
	switch op {
	case "-":
		switch v.Kind {
		case KindInt, KindChar:
			return Int(-v.asInt())
		case KindFloat:
			return Float(-v.F)
		}
	case "+":
		switch v.Kind {
		case KindInt, KindChar:
			return Int(v.asInt())
		case KindFloat:
			return v
		}
	case "!":
		if v.Kind == KindBool {
			return Bool(!v.B)
		}
	case "~":
		if integral(v) {
			return Int(^v.asInt())
		}
	}
	return ErrorValue
}

func cast(t Type, v Value) Value {
	if t.Dims > 0 || !v.numeric() {
		return v
	}
	switch t.Name {
	case "long":
		return Int(toInt(v, 64))
	case "int":
		return Int(toInt(v, 32))
	case "short":
		return Int(toInt(v, 16))
	case "byte":
		return Int(toInt(v, 8))
	case "char":
		return Char(rune(uint16(toInt(v, 32))))
	case "double", "float":
		return Float(v.asFloat())
	}
	return v
}

// toInt converts to a signed integer of the given width the way a Java
// cast does: floats saturate to int or long first, then integers wrap.
func toInt(v Value, bits uint) int64 {
	if v.Kind == KindFloat {
		wide := uint(32)
		if bits == 64 {
			wide = 64
		}
		v = Int(saturate(v.F, wide))
	}
	i := v.asInt()
	switch bits {
	case 32:
		return int64(int32(i))
	case 16:
		return int64(int16(i))
	case 8:
		return int64(int8(i))
	}
	return i
}

func saturate(f float64, bits uint) int64 {
	hi := int64(1)<<(bits-1) - 1
	lo := -hi - 1
	switch {
	case math.IsNaN(f):
		return 0
	case f >= float64(hi):
		return hi
	case f <= float64(lo):
		return lo
	}
	return int64(f)
}

// narrow applies the implicit cast of a compound assignment or an
// increment back to the variable's current kind.
func narrow(cur, v Value) Value {
	switch {
	case cur.Kind == KindInt && v.Kind == KindFloat:
		return Int(toInt(v, 64))
	case cur.Kind == KindChar && v.Kind == KindInt:
		return Char(rune(uint16(v.I)))
	}
	return v
}
