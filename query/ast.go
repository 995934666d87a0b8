package query

// Node is any element of a parsed query. Evaluators implement Visitor and
// are dispatched through Accept, so node types never change for a new evaluator.
type Node interface {
	Accept(v Visitor) error
}

// Expr is a boolean predicate expression
type Expr interface {
	Node
	expr()
}

// Operand is the right-hand side of a comparison
type Operand interface {
	Node
	operand()
}

// Visitor receives one call per node kind
type Visitor interface {
	VisitQuery(*Query) error
	VisitLocationPath(*LocationPath) error
	VisitSubartifactSet(*SubartifactSet) error
	VisitOr(*OrExpr) error
	VisitAnd(*AndExpr) error
	VisitNot(*NotExpr) error
	VisitComparison(*Comparison) error
	VisitRelationshipExpr(*RelationshipExpr) error
	VisitFunctionCall(*FunctionCall) error
	VisitPropertyRef(*PropertyRef) error
	VisitLiteral(*Literal) error
	VisitParam(*Param) error
	VisitVariable(*Variable) error
	VisitContextItem(*ContextItem) error
}

// Query ::= LocationPath Predicate? ('/' SubartifactSet)?
type Query struct {
	Path      *LocationPath
	Predicate Expr
	Sub       *SubartifactSet
	// Params is the number of '?' placeholders
	Params int
}

// LocationPath names the artifact set. Empty Model matches every model; empty Type
// matches every type of the model. Extended is set when Type is an extended type name.
type LocationPath struct {
	Model    string
	Type     string
	Extended bool
	// AnyModel marks the "//Type" form
	AnyModel bool
}

// SubartifactSet re-scopes results across one relationship hop, or through an
// artifact-valued function.
type SubartifactSet struct {
	Relationship string
	Function     *FunctionCall
	Predicate    Expr
	Next         *SubartifactSet
}

// OrExpr is Left or Right
type OrExpr struct{ Left, Right Expr }

// AndExpr is Left and Right
type AndExpr struct{ Left, Right Expr }

// NotExpr is fn:not(Inner)
type NotExpr struct{ Inner Expr }

// Operator is a comparison operator
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "!="
	OpLt Operator = "<"
	OpGt Operator = ">"
	OpLe Operator = "<="
	OpGe Operator = ">="
)

// Ordered reports whether op needs an ordered operand type
func (op Operator) Ordered() bool {
	return op == OpLt || op == OpGt || op == OpLe || op == OpGe
}

// Comparison is "Left Op Right", or a bare existence test when Op is empty.
// Left is a *PropertyRef or a value-returning *FunctionCall.
type Comparison struct {
	Left  Node
	Op    Operator
	Right Operand
}

// RelationshipExpr tests for a relationship whose targets satisfy Predicate,
// optionally continuing through Next.
type RelationshipExpr struct {
	Set *SubartifactSet
}

// FunctionCall is prefix:name(args...)
type FunctionCall struct {
	Prefix string
	Name   string
	Args   []Node
}

// QName returns prefix:name
func (f *FunctionCall) QName() string {
	if f.Prefix == "" {
		return f.Name
	}
	return f.Prefix + ":" + f.Name
}

// PropertyRef is @name
type PropertyRef struct{ Name string }

// LiteralKind is the typed kind of a literal or bound parameter
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralString:
		return "string"
	case LiteralNumber:
		return "number"
	case LiteralBool:
		return "boolean"
	}
	return "unknown"
}

// Literal is a string, number or boolean value
type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
	// Int marks numbers written without a fraction
	Int  bool
	Bool bool
}

// Param is a positional '?' placeholder (0-based Index)
type Param struct{ Index int }

// Variable is a named $name placeholder
type Variable struct{ Name string }

// ContextItem is '.'
type ContextItem struct{}

func (*OrExpr) expr()           {}
func (*AndExpr) expr()          {}
func (*NotExpr) expr()          {}
func (*Comparison) expr()       {}
func (*RelationshipExpr) expr() {}

func (*Literal) operand()  {}
func (*Param) operand()    {}
func (*Variable) operand() {}

func (n *Query) Accept(v Visitor) error            { return v.VisitQuery(n) }
func (n *LocationPath) Accept(v Visitor) error     { return v.VisitLocationPath(n) }
func (n *SubartifactSet) Accept(v Visitor) error   { return v.VisitSubartifactSet(n) }
func (n *OrExpr) Accept(v Visitor) error           { return v.VisitOr(n) }
func (n *AndExpr) Accept(v Visitor) error          { return v.VisitAnd(n) }
func (n *NotExpr) Accept(v Visitor) error          { return v.VisitNot(n) }
func (n *Comparison) Accept(v Visitor) error       { return v.VisitComparison(n) }
func (n *RelationshipExpr) Accept(v Visitor) error { return v.VisitRelationshipExpr(n) }
func (n *FunctionCall) Accept(v Visitor) error     { return v.VisitFunctionCall(n) }
func (n *PropertyRef) Accept(v Visitor) error      { return v.VisitPropertyRef(n) }
func (n *Literal) Accept(v Visitor) error          { return v.VisitLiteral(n) }
func (n *Param) Accept(v Visitor) error            { return v.VisitParam(n) }
func (n *Variable) Accept(v Visitor) error         { return v.VisitVariable(n) }
func (n *ContextItem) Accept(v Visitor) error      { return v.VisitContextItem(n) }

// StringLiteral returns a string literal node
func StringLiteral(s string) *Literal { return &Literal{Kind: LiteralString, Str: s} }

// NumberLiteral returns a numeric literal node
func NumberLiteral(f float64, isInt bool) *Literal {
	return &Literal{Kind: LiteralNumber, Num: f, Int: isInt}
}

// BoolLiteral returns a boolean literal node
func BoolLiteral(b bool) *Literal { return &Literal{Kind: LiteralBool, Bool: b} }

// Inspect walks the tree rooted at n depth-first, calling f for each node.
// Children are skipped when f returns false.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Query:
		Inspect(n.Path, f)
		if n.Predicate != nil {
			Inspect(n.Predicate, f)
		}
		if n.Sub != nil {
			Inspect(n.Sub, f)
		}
	case *SubartifactSet:
		if n.Function != nil {
			Inspect(n.Function, f)
		}
		if n.Predicate != nil {
			Inspect(n.Predicate, f)
		}
		if n.Next != nil {
			Inspect(n.Next, f)
		}
	case *OrExpr:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *AndExpr:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *NotExpr:
		Inspect(n.Inner, f)
	case *Comparison:
		Inspect(n.Left, f)
		if n.Right != nil {
			Inspect(n.Right, f)
		}
	case *RelationshipExpr:
		Inspect(n.Set, f)
	case *FunctionCall:
		for _, a := range n.Args {
			Inspect(a, f)
		}
	}
}
