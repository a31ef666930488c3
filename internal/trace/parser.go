package trace

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

var keywords = mapset.NewSet(
	"abstract", "assert", "boolean", "break", "byte", "case", "catch", "char", "class", "const",
	"continue", "default", "do", "double", "else", "enum", "extends", "final", "finally", "float",
	"for", "goto", "if", "implements", "import", "instanceof", "int", "interface", "long", "native",
	"new", "package", "private", "protected", "public", "return", "short", "static", "strictfp",
	"super", "switch", "synchronized", "this", "throw", "throws", "transient", "try", "void",
	"volatile", "while", "true", "false", "null",
)

var primitives = mapset.NewSet("boolean", "byte", "char", "short", "int", "long", "float", "double")

var modifierWords = mapset.NewSet(
	"public", "protected", "private", "static", "abstract", "final", "native", "synchronized",
	"transient", "volatile", "strictfp", "default", "sealed",
)

var assignOps = mapset.NewSet("=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=")

var binaryPrec = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7, "instanceof": 7,
	"<<": 8, ">>": 8, ">>>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

// Parse parses a Java compilation unit.
func Parse(src string) (*CompilationUnit, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, closer: matchParens(toks)}
	return p.parse()
}

// maxNesting bounds how deep statements, expressions and types may nest.
const maxNesting = 1000

type parser struct {
	toks []token
	pos  int
	// closer[i] is the index of the ")" matching a "(" at i, or -1.
	closer []int
	nest   int
}

func matchParens(toks []token) []int {
	closer := make([]int, len(toks))
	var open []int
	for i, t := range toks {
		closer[i] = -1
		switch {
		case is(t, "("):
			open = append(open, i)
		case is(t, ")") && len(open) > 0:
			closer[open[len(open)-1]] = i
			open = open[:len(open)-1]
		}
	}
	return closer
}

func (p *parser) enter() {
	p.nest++
	if p.nest > maxNesting {
		p.errorf("code is nested too deeply")
	}
}

func (p *parser) leave() { p.nest-- }

// bailout unwinds the parser on the first error.
type bailout struct{ err *ParseError }

func (p *parser) parse() (cu *CompilationUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			cu, err = nil, b.err
		}
	}()
	return p.compilationUnit(), nil
}

func (p *parser) errorf(format string, args ...any) {
	t := p.tok()
	panic(bailout{&ParseError{Line: t.line, Column: t.col, Msg: fmt.Sprintf(format, args...)}})
}

func (p *parser) tok() token { return p.toks[p.pos] }

func (p *parser) tokAt(i int) token {
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) peek(n int) token { return p.tokAt(p.pos + n) }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func is(t token, text string) bool {
	return (t.kind == tokOp || t.kind == tokIdent) && t.text == text
}

func isIdent(t token) bool {
	return t.kind == tokIdent && !keywords.Contains(t.text)
}

func (p *parser) at(text string) bool         { return is(p.tok(), text) }
func (p *parser) atN(n int, text string) bool { return is(p.peek(n), text) }

func (p *parser) accept(text string) bool {
	if p.at(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) token {
	if !p.at(text) {
		p.errorf("expected '%s', found %s", text, p.tok())
	}
	return p.next()
}

func (p *parser) ident() string {
	t := p.tok()
	if !isIdent(t) {
		p.errorf("expected identifier, found %s", t)
	}
	p.next()
	return t.text
}

func (p *parser) eofCheck(want string) {
	if p.tok().kind == tokEOF {
		p.errorf("expected '%s', found end of input", want)
	}
}

// Declarations

func (p *parser) compilationUnit() *CompilationUnit {
	cu := &CompilationUnit{}
	p.annotations()
	if p.accept("package") {
		cu.Package = p.qualifiedName()
		p.expect(";")
	}
	for p.at("import") {
		p.next()
		prefix := ""
		if p.accept("static") {
			prefix = "static "
		}
		name := p.qualifiedName()
		if p.accept(".") {
			p.expect("*")
			name += ".*"
		}
		p.expect(";")
		cu.Imports = append(cu.Imports, prefix+name)
	}
	for p.tok().kind != tokEOF {
		if p.accept(";") {
			continue
		}
		mods := p.modifiers()
		cu.Types = append(cu.Types, p.typeDecl(mods))
	}
	return cu
}

func (p *parser) qualifiedName() string {
	name := p.ident()
	for p.at(".") && isIdent(p.peek(1)) {
		p.next()
		name += "." + p.ident()
	}
	return name
}

func (p *parser) annotations() {
	for p.at("@") && !p.atN(1, "interface") {
		p.next()
		p.qualifiedName()
		if p.at("(") {
			p.skipBalanced("(", ")")
		}
	}
}

func (p *parser) skipBalanced(open, close string) {
	p.expect(open)
	for depth := 1; depth > 0; {
		p.eofCheck(close)
		switch t := p.next(); {
		case is(t, open):
			depth++
		case is(t, close):
			depth--
		}
	}
}

func (p *parser) modifiers() mapset.Set[string] {
	mods := mapset.NewThreadUnsafeSet[string]()
	for {
		switch t := p.tok(); {
		case p.at("@") && !p.atN(1, "interface"):
			p.annotations()
		case t.kind == tokIdent && modifierWords.Contains(t.text):
			mods.Add(p.next().text)
		case p.at("non") && p.atN(1, "-") && p.atN(2, "sealed"):
			p.pos += 3
			mods.Add("non-sealed")
		default:
			return mods
		}
	}
}

func (p *parser) atTypeDecl() bool {
	switch {
	case p.at("class"), p.at("interface"), p.at("enum"):
		return true
	case p.at("@") && p.atN(1, "interface"):
		return true
	case p.at("record") && isIdent(p.peek(1)) && (p.atN(2, "(") || p.atN(2, "<")):
		return true
	}
	return false
}

func (p *parser) typeDecl(mods mapset.Set[string]) *TypeDecl {
	p.enter()
	defer p.leave()
	line := p.tok().line
	var kind string
	switch {
	case p.at("class"), p.at("interface"), p.at("enum"):
		kind = p.next().text
	case p.at("record") && isIdent(p.peek(1)):
		kind = p.next().text
	case p.at("@") && p.atN(1, "interface"):
		p.pos += 2
		kind = "@interface"
	default:
		p.errorf("expected class, interface, enum or record, found %s", p.tok())
	}
	td := &TypeDecl{Kind: kind, Name: p.ident(), Modifiers: mods, Line: line}
	if p.at("<") {
		p.skipBalanced("<", ">")
	}
	if kind == "record" {
		for _, c := range p.formalParams() {
			td.Members = append(td.Members, &FieldDecl{
				Modifiers: mapset.NewThreadUnsafeSet("private", "final"),
				Type:      c.Type,
				Vars:      []*Declarator{{Name: c.Name, Line: line}},
			})
		}
	}
	if p.accept("extends") {
		p.typeList()
	}
	if p.accept("implements") {
		p.typeList()
	}
	if p.accept("permits") {
		p.typeList()
	}
	if kind == "enum" {
		td.Members = append(td.Members, p.enumBody(td.Name)...)
	} else {
		td.Members = append(td.Members, p.classBody(td.Name)...)
	}
	return td
}

func (p *parser) typeList() {
	p.parseType()
	for p.accept(",") {
		p.parseType()
	}
}

func (p *parser) classBody(className string) []Member {
	p.expect("{")
	var members []Member
	for !p.accept("}") {
		p.eofCheck("}")
		if m := p.member(className); m != nil {
			members = append(members, m)
		}
	}
	return members
}

func (p *parser) enumBody(name string) []Member {
	p.expect("{")
	var members []Member
	for !p.at(";") && !p.at("}") {
		p.annotations()
		c := &EnumConstant{Name: p.ident()}
		if p.at("(") {
			c.Args = p.arguments()
		}
		if p.at("{") {
			c.Body = p.classBody("")
		}
		members = append(members, c)
		if !p.accept(",") {
			break
		}
	}
	if p.accept(";") {
		for !p.accept("}") {
			p.eofCheck("}")
			if m := p.member(name); m != nil {
				members = append(members, m)
			}
		}
		return members
	}
	p.expect("}")
	return members
}

func (p *parser) member(className string) Member {
	if p.accept(";") {
		return nil
	}
	if p.at("{") {
		return &Initializer{Body: p.block()}
	}
	if p.at("static") && p.atN(1, "{") {
		p.next()
		return &Initializer{Static: true, Body: p.block()}
	}

	mods := p.modifiers()
	if p.atTypeDecl() {
		return p.typeDecl(mods)
	}
	if p.at("<") {
		p.skipBalanced("<", ">")
	}

	if t := p.tok(); isIdent(t) && t.text == className && (p.atN(1, "(") || p.atN(1, "{")) {
		p.next()
		m := &MethodDecl{Name: className, Modifiers: mods, Constructor: true, Line: t.line}
		if p.at("(") {
			m.Params = p.formalParams()
		}
		p.throwsClause()
		m.Body = p.block()
		return m
	}

	var result Type
	if p.accept("void") {
		result = Type{Name: "void"}
	} else {
		result = p.parseType()
	}
	nameTok := p.tok()
	name := p.ident()

	if p.at("(") {
		m := &MethodDecl{Name: name, Modifiers: mods, Result: result, Line: nameTok.line}
		m.Params = p.formalParams()
		m.Result.Dims += p.dims()
		p.throwsClause()
		switch {
		case p.accept("default"):
			p.skipTo(";")
		case p.accept(";"):
		default:
			m.Body = p.block()
		}
		return m
	}

	f := &FieldDecl{Modifiers: mods, Type: result, Vars: p.declarators(name, nameTok.line)}
	p.expect(";")
	return f
}

// skipTo consumes tokens up to and including text at nesting depth zero.
func (p *parser) skipTo(text string) {
	depth := 0
	for {
		p.eofCheck(text)
		t := p.next()
		switch {
		case depth == 0 && is(t, text):
			return
		case is(t, "("), is(t, "{"), is(t, "["):
			depth++
		case is(t, ")"), is(t, "}"), is(t, "]"):
			depth--
		}
	}
}

func (p *parser) throwsClause() {
	if p.accept("throws") {
		p.typeList()
	}
}

func (p *parser) formalParams() []Param {
	p.expect("(")
	var params []Param
	if p.accept(")") {
		return nil
	}
	for {
		p.modifiers()
		prm := Param{Type: p.parseType()}
		prm.Variadic = p.accept("...")
		if p.accept("this") {
			prm.Name = "this"
		} else {
			prm.Name = p.ident()
		}
		prm.Type.Dims += p.dims()
		params = append(params, prm)
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return params
}

func (p *parser) declarators(first string, line int) []*Declarator {
	d := &Declarator{Name: first, Line: line}
	p.declaratorRest(d)
	vars := []*Declarator{d}
	for p.accept(",") {
		t := p.tok()
		d := &Declarator{Name: p.ident(), Line: t.line}
		p.declaratorRest(d)
		vars = append(vars, d)
	}
	return vars
}

func (p *parser) declaratorRest(d *Declarator) {
	d.Dims = p.dims()
	if p.accept("=") {
		d.Init = p.varInit()
	}
}

func (p *parser) varInit() Expr {
	if p.at("{") {
		return p.arrayInit()
	}
	return p.expression()
}

func (p *parser) arrayInit() *ArrayInit {
	p.enter()
	defer p.leave()
	t := p.expect("{")
	ai := &ArrayInit{exprBase: exprBase{t.line}}
	for !p.accept("}") {
		ai.Elems = append(ai.Elems, p.varInit())
		if !p.accept(",") {
			p.expect("}")
			break
		}
	}
	return ai
}

// Types

func (p *parser) parseType() Type {
	p.enter()
	defer p.leave()
	p.annotations()
	var t Type
	if tk := p.tok(); tk.kind == tokIdent && primitives.Contains(tk.text) {
		t.Name = p.next().text
	} else {
		t.Name = p.classType()
	}
	t.Dims = p.dims()
	return t
}

// classType parses a possibly qualified, possibly generic class name and
// returns it without type arguments.
func (p *parser) classType() string {
	name := p.ident()
	if p.at("<") {
		p.typeArgs()
	}
	for p.at(".") && isIdent(p.peek(1)) {
		p.next()
		name += "." + p.ident()
		if p.at("<") {
			p.typeArgs()
		}
	}
	return name
}

func (p *parser) typeArgs() {
	p.expect("<")
	if p.accept(">") {
		return
	}
	for {
		p.annotations()
		if p.accept("?") {
			if p.accept("extends") || p.accept("super") {
				p.parseType()
				for p.accept("&") {
					p.parseType()
				}
			}
		} else {
			p.parseType()
		}
		if !p.accept(",") {
			break
		}
	}
	p.expect(">")
}

func (p *parser) dims() int {
	n := 0
	for p.at("[") && p.atN(1, "]") {
		p.pos += 2
		n++
	}
	return n
}

// scanType checks, without consuming anything, whether a type starts at
// token i, and returns the index just past it.
func (p *parser) scanType(i int) (int, bool) {
	t := p.tokAt(i)
	if t.kind != tokIdent {
		return i, false
	}
	prim := primitives.Contains(t.text)
	if !prim && keywords.Contains(t.text) {
		return i, false
	}
	i++
	for !prim {
		if is(p.tokAt(i), "<") {
			var ok bool
			if i, ok = p.scanTypeArgs(i); !ok {
				return i, false
			}
		}
		if is(p.tokAt(i), ".") && isIdent(p.tokAt(i+1)) {
			i += 2
			continue
		}
		break
	}
	for is(p.tokAt(i), "[") && is(p.tokAt(i+1), "]") {
		i += 2
	}
	return i, true
}

func (p *parser) scanTypeArgs(i int) (int, bool) {
	depth := 0
	for ; i < len(p.toks); i++ {
		t := p.toks[i]
		switch {
		case is(t, "<"):
			depth++
		case is(t, ">"):
			depth--
			if depth == 0 {
				return i + 1, true
			}
		case t.kind == tokIdent && (isIdent(t) || primitives.Contains(t.text) || t.text == "extends" || t.text == "super"):
		case is(t, "?"), is(t, ","), is(t, "."), is(t, "["), is(t, "]"), is(t, "&"):
		default:
			return i, false
		}
	}
	return i, false
}

// isLocalVarDecl reports whether the statement at the cursor declares a
// local variable: a type, a name, then one of = ; , [ or :.
func (p *parser) isLocalVarDecl() bool {
	end, ok := p.scanType(p.pos)
	if !ok || !isIdent(p.tokAt(end)) {
		return false
	}
	next := p.tokAt(end + 1)
	return is(next, "=") || is(next, ";") || is(next, ",") || is(next, "[") || is(next, ":")
}

// Statements

func (p *parser) block() *Block {
	t := p.expect("{")
	b := &Block{stmtBase: stmtBase{t.line}}
	for !p.accept("}") {
		p.eofCheck("}")
		b.Stmts = append(b.Stmts, p.statement())
	}
	return b
}

func (p *parser) statement() Stmt {
	p.enter()
	defer p.leave()
	t := p.tok()
	base := stmtBase{t.line}

	if t.kind == tokIdent {
		switch t.text {
		case "if":
			p.next()
			s := &If{stmtBase: base, Cond: p.parExpr(), Then: p.statement()}
			if p.accept("else") {
				s.Else = p.statement()
			}
			return s
		case "while":
			p.next()
			return &While{stmtBase: base, Cond: p.parExpr(), Body: p.statement()}
		case "do":
			p.next()
			s := &DoWhile{stmtBase: base, Body: p.statement()}
			p.expect("while")
			s.Cond = p.parExpr()
			p.expect(";")
			return s
		case "for":
			return p.forStatement()
		case "switch":
			p.next()
			return &Switch{stmtBase: base, Tag: p.parExpr(), Cases: p.switchBody()}
		case "try":
			return p.tryStatement()
		case "return":
			p.next()
			s := &Return{stmtBase: base}
			if !p.at(";") {
				s.X = p.expression()
			}
			p.expect(";")
			return s
		case "break", "continue":
			p.next()
			label := ""
			if isIdent(p.tok()) {
				label = p.next().text
			}
			p.expect(";")
			if t.text == "break" {
				return &Break{stmtBase: base, Label: label}
			}
			return &Continue{stmtBase: base, Label: label}
		case "throw":
			p.next()
			s := &Throw{stmtBase: base, X: p.expression()}
			p.expect(";")
			return s
		case "assert":
			p.next()
			s := &Assert{stmtBase: base, Cond: p.expression()}
			if p.accept(":") {
				s.Msg = p.expression()
			}
			p.expect(";")
			return s
		case "synchronized":
			p.next()
			return &Sync{stmtBase: base, Lock: p.parExpr(), Body: p.block()}
		case "yield":
			if p.isYield() {
				p.next()
				s := &Yield{stmtBase: base, X: p.expression()}
				p.expect(";")
				return s
			}
		}
	}

	switch {
	case p.at("{"):
		return p.block()
	case p.accept(";"):
		return &Empty{base}
	case isIdent(t) && p.atN(1, ":"):
		p.next()
		p.next()
		return &Labeled{stmtBase: base, Label: t.text, Body: p.statement()}
	case p.at("@"), p.at("final"), p.at("abstract"), p.at("static"), p.atTypeDecl(), p.isLocalVarDecl():
		mods := p.modifiers()
		if p.atTypeDecl() {
			return &LocalType{stmtBase: base, Decl: p.typeDecl(mods)}
		}
		lv := p.localVar(mods, base)
		p.expect(";")
		return lv
	}

	x := p.expression()
	p.expect(";")
	return &ExprStmt{stmtBase: base, X: x}
}

// isYield tells a yield statement from an expression using yield as a name.
func (p *parser) isYield() bool {
	n := p.peek(1)
	switch n.kind {
	case tokIdent, tokInt, tokFloat, tokChar, tokString:
		return true
	case tokOp:
		return is(n, "(") || is(n, "-") || is(n, "+") || is(n, "!") || is(n, "~")
	}
	return false
}

func (p *parser) localVar(mods mapset.Set[string], base stmtBase) *LocalVar {
	typ := p.parseType()
	nameTok := p.tok()
	name := p.ident()
	return &LocalVar{stmtBase: base, Modifiers: mods, Type: typ, Vars: p.declarators(name, nameTok.line)}
}

func (p *parser) parExpr() Expr {
	p.expect("(")
	x := p.expression()
	p.expect(")")
	return x
}

func (p *parser) forStatement() Stmt {
	base := stmtBase{p.next().line}
	p.expect("(")
	s := &For{stmtBase: base}

	switch {
	case p.at("final"), p.at("@"), p.isLocalVarDecl():
		line := p.tok().line
		mods := p.modifiers()
		typ := p.parseType()
		nameTok := p.tok()
		name := p.ident()
		if p.accept(":") {
			iter := p.expression()
			p.expect(")")
			return &ForEach{stmtBase: base, Var: Param{Type: typ, Name: name}, Iter: iter, Body: p.statement()}
		}
		s.Init = []Stmt{&LocalVar{stmtBase: stmtBase{line}, Modifiers: mods, Type: typ, Vars: p.declarators(name, nameTok.line)}}
		p.expect(";")
	case p.accept(";"):
	default:
		for {
			line := p.tok().line
			s.Init = append(s.Init, &ExprStmt{stmtBase: stmtBase{line}, X: p.expression()})
			if !p.accept(",") {
				break
			}
		}
		p.expect(";")
	}

	if !p.at(";") {
		s.Cond = p.expression()
	}
	p.expect(";")
	if !p.at(")") {
		for {
			s.Update = append(s.Update, p.expression())
			if !p.accept(",") {
				break
			}
		}
	}
	p.expect(")")
	s.Body = p.statement()
	return s
}

func (p *parser) tryStatement() Stmt {
	base := stmtBase{p.next().line}
	s := &Try{stmtBase: base}
	if p.accept("(") {
		for !p.accept(")") {
			rbase := stmtBase{p.tok().line}
			if p.at("final") || p.at("@") || p.isLocalVarDecl() {
				s.Resources = append(s.Resources, p.localVar(p.modifiers(), rbase))
			} else {
				s.Resources = append(s.Resources, &ExprStmt{stmtBase: rbase, X: p.expression()})
			}
			if !p.accept(";") {
				p.expect(")")
				break
			}
		}
	}
	s.Body = p.block()
	for p.accept("catch") {
		p.expect("(")
		p.modifiers()
		c := &Catch{Types: []Type{p.parseType()}}
		for p.accept("|") {
			c.Types = append(c.Types, p.parseType())
		}
		c.Name = p.ident()
		p.expect(")")
		c.Body = p.block()
		s.Catches = append(s.Catches, c)
	}
	if p.accept("finally") {
		s.Finally = p.block()
	}
	if len(s.Catches) == 0 && s.Finally == nil && len(s.Resources) == 0 {
		p.errorf("'try' without 'catch', 'finally' or resource declarations")
	}
	return s
}

func (p *parser) switchBody() []*Case {
	p.expect("{")
	var cases []*Case
	for !p.accept("}") {
		p.eofCheck("}")
		c := &Case{}
		if p.accept("default") {
			c.Default = true
		} else {
			p.expect("case")
			for {
				if p.accept("default") {
					c.Default = true
				} else {
					c.Labels = append(c.Labels, p.caseLabel())
				}
				if !p.accept(",") {
					break
				}
			}
			if p.accept("when") {
				c.Guard = p.expression()
			}
		}

		if p.accept("->") {
			c.Arrow = true
			switch {
			case p.at("{"):
				c.Body = []Stmt{p.block()}
			case p.at("throw"):
				c.Body = []Stmt{p.statement()}
			default:
				base := stmtBase{p.tok().line}
				x := p.expression()
				p.expect(";")
				c.Body = []Stmt{&ExprStmt{stmtBase: base, X: x}}
			}
		} else {
			p.expect(":")
			for !p.at("case") && !p.at("default") && !p.at("}") {
				p.eofCheck("}")
				c.Body = append(c.Body, p.statement())
			}
		}
		cases = append(cases, c)
	}
	return cases
}

// caseLabel parses a constant or a type pattern such as "Integer i".
func (p *parser) caseLabel() Expr {
	if end, ok := p.scanType(p.pos); ok && isIdent(p.tokAt(end)) {
		line := p.tok().line
		typ := p.parseType()
		return &InstanceOf{exprBase: exprBase{line}, Type: typ, Binding: p.ident()}
	}
	return p.conditional()
}

// Expressions

func (p *parser) expression() Expr {
	p.enter()
	defer p.leave()
	if p.isLambda() {
		return p.lambda()
	}
	x := p.conditional()
	if op, n := p.assignOp(); n > 0 {
		switch unparen(x).(type) {
		case *Name, *FieldAccess, *Index:
		default:
			p.errorf("invalid assignment target")
		}
		p.pos += n
		return &Assign{exprBase: exprBase{x.Pos()}, Op: op, Target: x, Value: p.expression()}
	}
	return x
}

func unparen(x Expr) Expr {
	for {
		pe, ok := x.(*Paren)
		if !ok {
			return x
		}
		x = pe.X
	}
}

func (p *parser) assignOp() (string, int) {
	t := p.tok()
	if t.kind == tokOp && assignOps.Contains(t.text) {
		return t.text, 1
	}
	if op, n := p.gtOp(); op == ">>=" || op == ">>>=" {
		return op, n
	}
	return "", 0
}

// gtOp joins adjacent '>' tokens into shift and shift-assign operators.
func (p *parser) gtOp() (string, int) {
	t := p.tok()
	if t.kind != tokOp {
		return "", 0
	}
	if t.text == ">=" {
		return ">=", 1
	}
	if t.text != ">" {
		return "", 0
	}
	op, n, end := ">", 1, t.end
	for n < 3 {
		nt := p.peek(n)
		if nt.kind != tokOp || nt.off != end {
			break
		}
		if nt.text == ">=" {
			return op + ">=", n + 1
		}
		if nt.text != ">" {
			break
		}
		op += ">"
		end = nt.end
		n++
	}
	return op, n
}

func (p *parser) isLambda() bool {
	if isIdent(p.tok()) && p.atN(1, "->") {
		return true
	}
	if !p.at("(") {
		return false
	}
	end := p.closer[p.pos]
	return end >= 0 && is(p.tokAt(end+1), "->")
}

func (p *parser) lambda() Expr {
	l := &Lambda{exprBase: exprBase{p.tok().line}}
	if isIdent(p.tok()) {
		l.Params = []string{p.next().text}
	} else {
		p.expect("(")
		for !p.accept(")") {
			p.modifiers()
			if isIdent(p.tok()) && (p.atN(1, ",") || p.atN(1, ")")) {
				l.Params = append(l.Params, p.next().text)
			} else {
				p.parseType()
				p.accept("...")
				l.Params = append(l.Params, p.ident())
			}
			if !p.accept(",") {
				p.expect(")")
				break
			}
		}
	}
	p.expect("->")
	if p.at("{") {
		l.Body = p.block()
	} else {
		l.Body = p.expression()
	}
	return l
}

func (p *parser) conditional() Expr {
	x := p.binary(0)
	if !p.accept("?") {
		return x
	}
	c := &Conditional{exprBase: exprBase{x.Pos()}, Cond: x, Then: p.expression()}
	p.expect(":")
	if p.isLambda() {
		c.Else = p.lambda()
	} else {
		c.Else = p.conditional()
	}
	return c
}

func (p *parser) binaryOp() (string, int) {
	t := p.tok()
	switch {
	case t.kind == tokIdent && t.text == "instanceof":
		return t.text, 1
	case t.kind != tokOp:
		return "", 0
	case t.text == ">" || t.text == ">=":
		op, n := p.gtOp()
		if op == ">>=" || op == ">>>=" {
			return "", 0
		}
		return op, n
	}
	if _, ok := binaryPrec[t.text]; ok {
		return t.text, 1
	}
	return "", 0
}

// binary parses by precedence climbing; operators bind tighter than minPrec.
func (p *parser) binary(minPrec int) Expr {
	x := p.unary()
	for {
		op, n := p.binaryOp()
		if n == 0 || binaryPrec[op] <= minPrec {
			return x
		}
		p.pos += n
		if op == "instanceof" {
			p.accept("final")
			io := &InstanceOf{exprBase: exprBase{x.Pos()}, X: x, Type: p.parseType()}
			if isIdent(p.tok()) {
				io.Binding = p.next().text
			}
			x = io
			continue
		}
		x = &Binary{exprBase: exprBase{x.Pos()}, Op: op, X: x, Y: p.binary(binaryPrec[op])}
	}
}

func (p *parser) unary() Expr {
	p.enter()
	defer p.leave()
	t := p.tok()
	base := exprBase{t.line}
	if t.kind == tokOp {
		switch t.text {
		case "+", "-", "!", "~", "++", "--":
			p.next()
			return &Unary{exprBase: base, Op: t.text, X: p.unary()}
		case "(":
			if typ, ok := p.tryCast(); ok {
				if p.isLambda() {
					return &Cast{exprBase: base, Type: typ, X: p.lambda()}
				}
				return &Cast{exprBase: base, Type: typ, X: p.unary()}
			}
		}
	}
	return p.postfix(p.primary())
}

// tryCast consumes "(Type)" when the parenthesis starts a cast.
func (p *parser) tryCast() (Type, bool) {
	end, ok := p.scanType(p.pos + 1)
	for ok && is(p.tokAt(end), "&") {
		end, ok = p.scanType(end + 1)
	}
	if !ok || !is(p.tokAt(end), ")") {
		return Type{}, false
	}
	if !primitives.Contains(p.tokAt(p.pos+1).text) && !startsCastOperand(p.tokAt(end+1)) {
		return Type{}, false
	}
	p.next()
	typ := p.parseType()
	for p.accept("&") {
		p.parseType()
	}
	p.expect(")")
	return typ, true
}

// startsCastOperand reports whether t can follow a reference-type cast.
// A leading + or - means the parentheses were an operand, not a cast.
func startsCastOperand(t token) bool {
	switch t.kind {
	case tokInt, tokFloat, tokChar, tokString:
		return true
	case tokIdent:
		switch t.text {
		case "this", "super", "new", "true", "false", "null", "switch":
			return true
		}
		return isIdent(t)
	case tokOp:
		return t.text == "(" || t.text == "!" || t.text == "~"
	}
	return false
}

func (p *parser) primary() Expr {
	t := p.tok()
	base := exprBase{t.line}
	switch t.kind {
	case tokInt:
		p.next()
		return &Literal{exprBase: base, Kind: LitInt, Raw: t.text}
	case tokFloat:
		p.next()
		return &Literal{exprBase: base, Kind: LitFloat, Raw: t.text}
	case tokString:
		p.next()
		return &Literal{exprBase: base, Kind: LitString, Raw: t.text}
	case tokChar:
		p.next()
		return &Literal{exprBase: base, Kind: LitChar, Raw: t.text}
	case tokOp:
		if t.text == "(" {
			p.next()
			x := p.expression()
			p.expect(")")
			return &Paren{exprBase: base, X: x}
		}
	case tokIdent:
		switch t.text {
		case "true", "false":
			p.next()
			return &Literal{exprBase: base, Kind: LitBool, Raw: t.text}
		case "null":
			p.next()
			return &Literal{exprBase: base, Kind: LitNull, Raw: t.text}
		case "new":
			return p.creator()
		case "this", "super":
			p.next()
			if p.at("(") {
				return &MethodCall{exprBase: base, Name: t.text, Args: p.arguments()}
			}
			return &Name{exprBase: base, Ident: t.text}
		case "switch":
			p.next()
			return &SwitchExpr{exprBase: base, Tag: p.parExpr(), Cases: p.switchBody()}
		}
		if primitives.Contains(t.text) || t.text == "void" {
			p.next()
			typ := Type{Name: t.text, Dims: p.dims()}
			if p.accept("::") {
				p.expect("new")
				return &MethodRef{exprBase: base, Type: typ, Name: "new"}
			}
			p.expect(".")
			p.expect("class")
			return &ClassLit{exprBase: base, Type: typ}
		}
		if isIdent(t) {
			p.next()
			if p.at("(") {
				return &MethodCall{exprBase: base, Name: t.text, Args: p.arguments()}
			}
			return &Name{exprBase: base, Ident: t.text}
		}
	}
	p.errorf("unexpected %s", t)
	return nil
}

func (p *parser) postfix(x Expr) Expr {
	for {
		base := exprBase{x.Pos()}
		switch {
		case p.at("."):
			p.next()
			switch {
			case p.at("new"):
				x = p.creator()
			case p.at("<"):
				p.typeArgs()
				name := p.ident()
				x = &MethodCall{exprBase: base, Recv: x, Name: name, Args: p.arguments()}
			case p.accept("class"):
				x = &ClassLit{exprBase: base, Type: Type{Name: exprName(x)}}
			case p.at("this"), p.at("super"):
				x = &FieldAccess{exprBase: base, X: x, Sel: p.next().text}
			default:
				name := p.ident()
				if p.at("(") {
					x = &MethodCall{exprBase: base, Recv: x, Name: name, Args: p.arguments()}
				} else {
					x = &FieldAccess{exprBase: base, X: x, Sel: name}
				}
			}
		case p.at("[") && p.atN(1, "]"):
			typ := Type{Name: exprName(x), Dims: p.dims()}
			if p.accept("::") {
				p.expect("new")
				x = &MethodRef{exprBase: base, Type: typ, Name: "new"}
				continue
			}
			p.expect(".")
			p.expect("class")
			x = &ClassLit{exprBase: base, Type: typ}
		case p.at("["):
			p.next()
			idx := p.expression()
			p.expect("]")
			x = &Index{exprBase: base, X: x, Index: idx}
		case p.at("::"):
			p.next()
			name := "new"
			if !p.accept("new") {
				name = p.ident()
			}
			x = &MethodRef{exprBase: base, X: x, Name: name}
		case p.at("++"), p.at("--"):
			x = &Unary{exprBase: base, Op: p.next().text, X: x, Postfix: true}
		default:
			return x
		}
	}
}

func exprName(x Expr) string {
	switch x := x.(type) {
	case *Name:
		return x.Ident
	case *FieldAccess:
		return exprName(x.X) + "." + x.Sel
	}
	return "?"
}

func (p *parser) arguments() []Expr {
	p.expect("(")
	if p.accept(")") {
		return nil
	}
	var args []Expr
	for {
		args = append(args, p.expression())
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return args
}

func (p *parser) creator() Expr {
	base := exprBase{p.expect("new").line}
	if p.at("<") {
		p.typeArgs()
	}
	p.annotations()
	var typ Type
	if t := p.tok(); t.kind == tokIdent && primitives.Contains(t.text) {
		typ.Name = p.next().text
	} else {
		typ.Name = p.classType()
	}

	if p.at("[") {
		na := &NewArray{exprBase: base, Elem: typ}
		for p.accept("[") {
			if p.accept("]") {
				na.Rank++
				continue
			}
			if na.Rank > len(na.Dims) {
				p.errorf("']' expected")
			}
			na.Dims = append(na.Dims, p.expression())
			p.expect("]")
			na.Rank++
		}
		switch {
		case p.at("{") && len(na.Dims) == 0:
			na.Init = p.arrayInit()
		case p.at("{"):
			p.errorf("array creation with both dimension expression and initialization is illegal")
		case len(na.Dims) == 0:
			p.errorf("array dimension missing")
		}
		return na
	}

	n := &New{exprBase: base, Type: typ, Args: p.arguments()}
	if p.at("{") {
		n.Body = p.classBody("")
	}
	return n
}
