package trace

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// CompilationUnit is a parsed source file.
type CompilationUnit struct {
	Package string
	Imports []string
	Types   []*TypeDecl
}

// TypeDecl is a class, interface, enum, record or annotation type.
type TypeDecl struct {
	Kind      string // "class", "interface", "enum", "record", "@interface"
	Name      string
	Modifiers mapset.Set[string]
	Members   []Member
	Line      int
}

// Member is a declaration inside a type body.
type Member interface{ member() }

type FieldDecl struct {
	Modifiers mapset.Set[string]
	Type      Type
	Vars      []*Declarator
}

type MethodDecl struct {
	Name        string
	Modifiers   mapset.Set[string]
	Result      Type // zero for constructors
	Params      []Param
	Body        *Block // nil when abstract or native
	Constructor bool
	Line        int
}

// Initializer is an instance or static initializer block.
type Initializer struct {
	Static bool
	Body   *Block
}

// EnumConstant is one constant of an enum body.
type EnumConstant struct {
	Name string
	Args []Expr
	Body []Member
}

func (*FieldDecl) member()    {}
func (*MethodDecl) member()   {}
func (*Initializer) member()  {}
func (*EnumConstant) member() {}
func (*TypeDecl) member()     {}

type Param struct {
	Type     Type
	Name     string
	Variadic bool
}

// Type is a type reference with its type arguments dropped.
type Type struct {
	Name string // dotted, e.g. "java.util.List" or "int"
	Dims int
}

func (t Type) String() string {
	return t.Name + strings.Repeat("[]", t.Dims)
}

// Declarator is one variable in a declaration.
type Declarator struct {
	Name string
	Dims int
	Init Expr // nil when absent
	Line int
}

// Stmt is a statement. The set of implementations is closed.
type Stmt interface {
	Pos() int
	stmt()
}

type stmtBase struct{ Line int }

func (s stmtBase) Pos() int { return s.Line }
func (stmtBase) stmt()      {}

type (
	Block struct {
		stmtBase
		Stmts []Stmt
	}
	LocalVar struct {
		stmtBase
		Modifiers mapset.Set[string]
		Type      Type
		Vars      []*Declarator
	}
	LocalType struct {
		stmtBase
		Decl *TypeDecl
	}
	ExprStmt struct {
		stmtBase
		X Expr
	}
	If struct {
		stmtBase
		Cond Expr
		Then Stmt
		Else Stmt // nil when absent
	}
	While struct {
		stmtBase
		Cond Expr
		Body Stmt
	}
	DoWhile struct {
		stmtBase
		Body Stmt
		Cond Expr
	}
	For struct {
		stmtBase
		Init   []Stmt
		Cond   Expr // nil when absent
		Update []Expr
		Body   Stmt
	}
	ForEach struct {
		stmtBase
		Var  Param
		Iter Expr
		Body Stmt
	}
	Switch struct {
		stmtBase
		Tag   Expr
		Cases []*Case
	}
	Try struct {
		stmtBase
		Resources []Stmt
		Body      *Block
		Catches   []*Catch
		Finally   *Block
	}
	Return struct {
		stmtBase
		X Expr
	}
	Break struct {
		stmtBase
		Label string
	}
	Continue struct {
		stmtBase
		Label string
	}
	Throw struct {
		stmtBase
		X Expr
	}
	Yield struct {
		stmtBase
		X Expr
	}
	Assert struct {
		stmtBase
		Cond, Msg Expr
	}
	Sync struct {
		stmtBase
		Lock Expr
		Body *Block
	}
	Labeled struct {
		stmtBase
		Label string
		Body  Stmt
	}
	Empty struct{ stmtBase }
)

// Case is one arm of a switch. Default arms have no labels.
type Case struct {
	Labels  []Expr
	Default bool
	Guard   Expr
	Arrow   bool
	Body    []Stmt
}

type Catch struct {
	Types []Type
	Name  string
	Body  *Block
}

// Expr is an expression. The set of implementations is closed.
type Expr interface {
	Pos() int
	expr()
}

type exprBase struct{ Line int }

func (e exprBase) Pos() int { return e.Line }
func (exprBase) expr()      {}

// LitKind classifies a literal token.
type LitKind uint8

const (
	LitInt LitKind = iota
	LitFloat
	LitString
	LitChar
	LitBool
	LitNull
)

type (
	Literal struct {
		exprBase
		Kind LitKind
		Raw  string
	}
	Name struct {
		exprBase
		Ident string
	}
	Paren struct {
		exprBase
		X Expr
	}
	FieldAccess struct {
		exprBase
		X   Expr
		Sel string
	}
	MethodCall struct {
		exprBase
		Recv Expr // nil for an unqualified call
		Name string
		Args []Expr
	}
	Index struct {
		exprBase
		X, Index Expr
	}
	Unary struct {
		exprBase
		Op      string
		X       Expr
		Postfix bool
	}
	Binary struct {
		exprBase
		Op   string
		X, Y Expr
	}
	Assign struct {
		exprBase
		Op     string // "=" or a compound operator such as "+="
		Target Expr
		Value  Expr
	}
	Conditional struct {
		exprBase
		Cond, Then, Else Expr
	}
	Cast struct {
		exprBase
		Type Type
		X    Expr
	}
	InstanceOf struct {
		exprBase
		X       Expr
		Type    Type
		Binding string
	}
	New struct {
		exprBase
		Type Type
		Args []Expr
		Body []Member // anonymous class body
	}
	NewArray struct {
		exprBase
		Elem Type // element type without dimensions
		Dims []Expr
		Rank int // total dimensions, sized or not
		Init *ArrayInit
	}
	ArrayInit struct {
		exprBase
		Elems []Expr
	}
	Lambda struct {
		exprBase
		Params []string
		Body   any // Expr or *Block
	}
	MethodRef struct {
		exprBase
		X    Expr // nil when the target is a type
		Type Type
		Name string
	}
	ClassLit struct {
		exprBase
		Type Type
	}
	SwitchExpr struct {
		exprBase
		Tag   Expr
		Cases []*Case
	}
)
