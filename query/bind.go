package query

import (
	"fmt"

	"github.com/teranos/artificer/errors"
)

// Value is a typed parameter value. Values are never coerced between kinds.
type Value struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Int  bool
	Bool bool
}

// String returns a string parameter value
func String(s string) Value { return Value{Kind: LiteralString, Str: s} }

// Number returns a numeric parameter value
func Number(f float64) Value { return Value{Kind: LiteralNumber, Num: f} }

// Int returns an integral numeric parameter value
func Int(i int64) Value { return Value{Kind: LiteralNumber, Num: float64(i), Int: true} }

// Bool returns a boolean parameter value
func Bool(b bool) Value { return Value{Kind: LiteralBool, Bool: b} }

func (v Value) literal() *Literal {
	return &Literal{Kind: v.Kind, Str: v.Str, Num: v.Num, Int: v.Int, Bool: v.Bool}
}

// Params holds the values for '?' placeholders (in order) and $name variables.
type Params struct {
	Positional []Value
	Named      map[string]Value
}

// Bind returns a copy of q with every placeholder replaced by its value.
// q itself is left untouched so a compiled query can be bound repeatedly.
func Bind(q *Query, params Params) (*Query, error) {
	if len(params.Positional) != q.Params {
		return nil, NewParseError(ErrorKindBinding,
			fmt.Sprintf("query has %d positional parameters, %d supplied", q.Params, len(params.Positional))).
			WithContext("expected", q.Params).
			WithContext("supplied", len(params.Positional))
	}
	b := &binder{params: params}
	out := &Query{Path: cloneLocationPath(q.Path)}
	var err error
	if q.Predicate != nil {
		if out.Predicate, err = b.expr(q.Predicate); err != nil {
			return nil, err
		}
	}
	if q.Sub != nil {
		if out.Sub, err = b.set(q.Sub); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Unbound reports whether q still contains placeholders
func Unbound(q *Query) bool {
	if q.Params > 0 {
		return true
	}
	found := false
	Inspect(q, func(n Node) bool {
		if _, ok := n.(*Variable); ok {
			found = true
		}
		return !found
	})
	return found
}

type binder struct {
	params Params
}

func cloneLocationPath(lp *LocationPath) *LocationPath {
	c := *lp
	return &c
}

func (b *binder) set(s *SubartifactSet) (*SubartifactSet, error) {
	out := &SubartifactSet{Relationship: s.Relationship}
	var err error
	if s.Function != nil {
		if out.Function, err = b.call(s.Function); err != nil {
			return nil, err
		}
	}
	if s.Predicate != nil {
		if out.Predicate, err = b.expr(s.Predicate); err != nil {
			return nil, err
		}
	}
	if s.Next != nil {
		if out.Next, err = b.set(s.Next); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *binder) expr(e Expr) (Expr, error) {
	switch e := e.(type) {
	case *OrExpr:
		l, r, err := b.pair(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &OrExpr{Left: l, Right: r}, nil
	case *AndExpr:
		l, r, err := b.pair(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &AndExpr{Left: l, Right: r}, nil
	case *NotExpr:
		inner, err := b.expr(e.Inner)
		if err != nil {
			return nil, err
		}
		return &NotExpr{Inner: inner}, nil
	case *RelationshipExpr:
		set, err := b.set(e.Set)
		if err != nil {
			return nil, err
		}
		return &RelationshipExpr{Set: set}, nil
	case *Comparison:
		return b.comparison(e)
	}
	return nil, errors.AssertionFailedf("unexpected expression %T", e)
}

func (b *binder) pair(l, r Expr) (Expr, Expr, error) {
	left, err := b.expr(l)
	if err != nil {
		return nil, nil, err
	}
	right, err := b.expr(r)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (b *binder) comparison(c *Comparison) (Expr, error) {
	out := &Comparison{Op: c.Op}
	switch left := c.Left.(type) {
	case *FunctionCall:
		fc, err := b.call(left)
		if err != nil {
			return nil, err
		}
		out.Left = fc
	default:
		out.Left = c.Left
	}
	if c.Right == nil {
		return out, nil
	}
	lit, err := b.operand(c.Right)
	if err != nil {
		return nil, err
	}
	if lit.Kind == LiteralBool && c.Op.Ordered() {
		return nil, NewParseError(ErrorKindBinding,
			fmt.Sprintf("boolean parameter cannot be compared with %s", c.Op)).
			WithContext("operator", string(c.Op))
	}
	if ref, ok := c.Left.(*PropertyRef); ok {
		if msg := fieldMismatch(ref.Name, lit); msg != "" {
			return nil, NewParseError(ErrorKindBinding, msg).
				WithContext("property", ref.Name)
		}
	}
	out.Right = lit
	return out, nil
}

func (b *binder) call(f *FunctionCall) (*FunctionCall, error) {
	out := &FunctionCall{Prefix: f.Prefix, Name: f.Name, Args: make([]Node, len(f.Args))}
	for i, a := range f.Args {
		switch a := a.(type) {
		case *Param, *Variable:
			lit, err := b.operand(a.(Operand))
			if err != nil {
				return nil, err
			}
			if lit.Kind != LiteralString {
				return nil, NewParseError(ErrorKindBinding,
					fmt.Sprintf("%s expects a string argument, got %s", f.QName(), lit.Kind))
			}
			out.Args[i] = lit
		case *FunctionCall:
			nested, err := b.call(a)
			if err != nil {
				return nil, err
			}
			out.Args[i] = nested
		default:
			out.Args[i] = a
		}
	}
	return out, nil
}

// operand resolves a right-hand side to a literal
func (b *binder) operand(o Operand) (*Literal, error) {
	switch o := o.(type) {
	case *Literal:
		return o, nil
	case *Param:
		return b.params.Positional[o.Index].literal(), nil
	case *Variable:
		v, ok := b.params.Named[o.Name]
		if !ok {
			return nil, NewParseError(ErrorKindBinding, "no value supplied for $"+o.Name).
				WithContext("variable", o.Name)
		}
		return v.literal(), nil
	}
	return nil, errors.AssertionFailedf("unexpected operand %T", o)
}
