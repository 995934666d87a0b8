package query

import (
	"strconv"
	"strings"
)

// String renders the query in canonical form. Parsing the result yields an equal AST.
func (q *Query) String() string {
	return Print(q)
}

// Print renders any node in canonical form
func Print(n Node) string {
	pr := &printer{}
	_ = n.Accept(pr)
	return pr.b.String()
}

type printer struct {
	b strings.Builder
}

func (pr *printer) VisitQuery(q *Query) error {
	_ = q.Path.Accept(pr)
	if q.Predicate != nil {
		pr.b.WriteByte('[')
		_ = q.Predicate.Accept(pr)
		pr.b.WriteByte(']')
	}
	if q.Sub != nil {
		pr.b.WriteByte('/')
		_ = q.Sub.Accept(pr)
	}
	return nil
}

func (pr *printer) VisitLocationPath(lp *LocationPath) error {
	if lp.AnyModel {
		pr.b.WriteString("//" + lp.Type)
		return nil
	}
	pr.b.WriteString("/" + RootSegment)
	if lp.Model != "" {
		pr.b.WriteString("/" + lp.Model)
		if lp.Type != "" {
			pr.b.WriteString("/" + lp.Type)
		}
	}
	return nil
}

func (pr *printer) VisitSubartifactSet(s *SubartifactSet) error {
	if s.Function != nil {
		return s.Function.Accept(pr)
	}
	pr.b.WriteString(s.Relationship)
	if s.Predicate != nil {
		pr.b.WriteByte('[')
		_ = s.Predicate.Accept(pr)
		pr.b.WriteByte(']')
	}
	if s.Next != nil {
		pr.b.WriteByte('/')
		_ = s.Next.Accept(pr)
	}
	return nil
}

// group parenthesizes e when wrap holds
func (pr *printer) group(e Expr, wrap bool) {
	if wrap {
		pr.b.WriteByte('(')
	}
	_ = e.Accept(pr)
	if wrap {
		pr.b.WriteByte(')')
	}
}

func (pr *printer) VisitOr(e *OrExpr) error {
	pr.group(e.Left, false)
	pr.b.WriteString(" or ")
	_, nested := e.Right.(*OrExpr)
	pr.group(e.Right, nested)
	return nil
}

func (pr *printer) VisitAnd(e *AndExpr) error {
	_, leftOr := e.Left.(*OrExpr)
	pr.group(e.Left, leftOr)
	pr.b.WriteString(" and ")
	switch e.Right.(type) {
	case *OrExpr, *AndExpr:
		pr.group(e.Right, true)
	default:
		pr.group(e.Right, false)
	}
	return nil
}

func (pr *printer) VisitNot(e *NotExpr) error {
	pr.b.WriteString(FuncNot + "(")
	_ = e.Inner.Accept(pr)
	pr.b.WriteByte(')')
	return nil
}

func (pr *printer) VisitComparison(c *Comparison) error {
	_ = c.Left.Accept(pr)
	if c.Op != "" {
		pr.b.WriteString(" " + string(c.Op) + " ")
		_ = c.Right.Accept(pr)
	}
	return nil
}

func (pr *printer) VisitRelationshipExpr(r *RelationshipExpr) error {
	return r.Set.Accept(pr)
}

func (pr *printer) VisitFunctionCall(f *FunctionCall) error {
	pr.b.WriteString(f.QName() + "(")
	for i, a := range f.Args {
		if i > 0 {
			pr.b.WriteString(", ")
		}
		_ = a.Accept(pr)
	}
	pr.b.WriteByte(')')
	return nil
}

func (pr *printer) VisitPropertyRef(r *PropertyRef) error {
	pr.b.WriteString("@" + r.Name)
	return nil
}

func (pr *printer) VisitLiteral(l *Literal) error {
	pr.b.WriteString(l.Text())
	return nil
}

func (pr *printer) VisitParam(*Param) error {
	pr.b.WriteByte('?')
	return nil
}

func (pr *printer) VisitVariable(v *Variable) error {
	pr.b.WriteString("$" + v.Name)
	return nil
}

func (pr *printer) VisitContextItem(*ContextItem) error {
	pr.b.WriteByte('.')
	return nil
}

// Text renders the literal as query source
func (l *Literal) Text() string {
	switch l.Kind {
	case LiteralNumber:
		return FormatNumber(l.Num, l.Int)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	}
	return QuoteString(l.Str)
}

// FormatNumber renders f; non-integer literals always keep a fraction
func FormatNumber(f float64, isInt bool) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !isInt && !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
