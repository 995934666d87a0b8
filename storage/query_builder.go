package storage

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/query"
)

// scope names the SQL aliases a predicate is evaluated against.
// rel and target are set inside relationship predicates.
type scope struct {
	artifact string
	rel      string
	target   string
}

// queryBuilder translates a bound query AST to SQL. It implements query.Visitor;
// every Visit call appends SQL text and its arguments in textual order.
type queryBuilder struct {
	sb      *strings.Builder
	args    []interface{}
	aliases int
	scopes  []scope
	classes Classifier
}

func newQueryBuilder(classes Classifier) *queryBuilder {
	return &queryBuilder{sb: &strings.Builder{}, classes: classes}
}

func (b *queryBuilder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *queryBuilder) arg(v interface{}) {
	b.sb.WriteString("?")
	b.args = append(b.args, v)
}

func (b *queryBuilder) alias(prefix string) string {
	b.aliases++
	return prefix + strconv.Itoa(b.aliases)
}

func (b *queryBuilder) push(s scope) { b.scopes = append(b.scopes, s) }
func (b *queryBuilder) pop()         { b.scopes = b.scopes[:len(b.scopes)-1] }

func (b *queryBuilder) current() scope {
	return b.scopes[len(b.scopes)-1]
}

// capture runs fn against a fresh buffer and returns what it wrote
func (b *queryBuilder) capture(fn func() error) (string, []interface{}, error) {
	savedSB, savedArgs := b.sb, b.args
	b.sb, b.args = &strings.Builder{}, nil
	err := fn()
	text, args := b.sb.String(), b.args
	b.sb, b.args = savedSB, savedArgs
	return text, args, err
}

// uuidSet returns SQL selecting the uuids q matches
func (b *queryBuilder) uuidSet(q *query.Query) (string, []interface{}, error) {
	if err := q.Accept(b); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func (b *queryBuilder) VisitQuery(q *query.Query) error {
	text, args, err := b.capture(func() error {
		a := b.alias("a")
		b.write("SELECT ", a, ".uuid FROM artifacts ", a, " WHERE ")
		b.push(scope{artifact: a})
		defer b.pop()
		if err := q.Path.Accept(b); err != nil {
			return err
		}
		if q.Predicate != nil {
			b.write(" AND (")
			if err := q.Predicate.Accept(b); err != nil {
				return err
			}
			b.write(")")
		}
		return nil
	})
	if err != nil {
		return err
	}

	for s := q.Sub; s != nil; s = s.Next {
		if text, args, err = b.hop(s, text, args); err != nil {
			return err
		}
	}
	b.write(text)
	b.args = append(b.args, args...)
	return nil
}

// hop re-scopes the uuid set prev to the targets of one relationship, or to the
// derived artifacts of its members.
func (b *queryBuilder) hop(s *query.SubartifactSet, prev string, prevArgs []interface{}) (string, []interface{}, error) {
	return b.capture(func() error {
		if s.Function != nil {
			if s.Function.QName() != query.FuncDerivedArtifacts {
				return errors.AssertionFailedf("unsupported artifact function %s", s.Function.QName())
			}
			a := b.alias("a")
			b.write("SELECT ", a, ".uuid FROM artifacts ", a, " WHERE ", a, ".related_document IN (", prev, ")")
			b.args = append(b.args, prevArgs...)
			return nil
		}

		r, t, a := b.alias("r"), b.alias("t"), b.alias("a")
		b.write("SELECT DISTINCT ", a, ".uuid FROM relationships ", r,
			" JOIN relationship_targets ", t, " ON ", t, ".relationship_id = ", r, ".id",
			" JOIN artifacts ", a, " ON ", a, ".uuid = ", t, ".target_uuid",
			" WHERE ", r, ".name = ")
		b.arg(s.Relationship)
		b.write(" AND ", r, ".source_uuid IN (", prev, ")")
		b.args = append(b.args, prevArgs...)
		if s.Predicate != nil {
			b.push(scope{artifact: a, rel: r, target: t})
			defer b.pop()
			b.write(" AND (")
			if err := s.Predicate.Accept(b); err != nil {
				return err
			}
			b.write(")")
		}
		return nil
	})
}

func (b *queryBuilder) VisitLocationPath(lp *query.LocationPath) error {
	a := b.current().artifact
	switch {
	case lp.Model == "":
		b.write("1 = 1")
	case lp.Type == "":
		b.write(a, ".model = ")
		b.arg(lp.Model)
	case lp.Extended:
		b.write(a, ".model = ")
		b.arg(lp.Model)
		b.write(" AND ", a, ".extended_type = ")
		b.arg(lp.Type)
	default:
		b.write(a, ".model = ")
		b.arg(lp.Model)
		b.write(" AND ", a, ".type = ")
		b.arg(lp.Type)
	}
	return nil
}

// VisitSubartifactSet emits an existence test for a relationship path inside a predicate
func (b *queryBuilder) VisitSubartifactSet(s *query.SubartifactSet) error {
	outer := b.current().artifact
	if s.Function != nil {
		a := b.alias("a")
		b.write("EXISTS (SELECT 1 FROM artifacts ", a, " WHERE ", a, ".related_document = ", outer, ".uuid)")
		return nil
	}

	r, t, a := b.alias("r"), b.alias("t"), b.alias("a")
	b.write("EXISTS (SELECT 1 FROM relationships ", r,
		" JOIN relationship_targets ", t, " ON ", t, ".relationship_id = ", r, ".id",
		" JOIN artifacts ", a, " ON ", a, ".uuid = ", t, ".target_uuid",
		" WHERE ", r, ".source_uuid = ", outer, ".uuid AND ", r, ".name = ")
	b.arg(s.Relationship)

	b.push(scope{artifact: a, rel: r, target: t})
	defer b.pop()
	if s.Predicate != nil {
		b.write(" AND (")
		if err := s.Predicate.Accept(b); err != nil {
			return err
		}
		b.write(")")
	}
	if s.Next != nil {
		b.write(" AND ")
		if err := s.Next.Accept(b); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}

func (b *queryBuilder) VisitOr(e *query.OrExpr) error {
	return b.binary(e.Left, " OR ", e.Right)
}

func (b *queryBuilder) VisitAnd(e *query.AndExpr) error {
	return b.binary(e.Left, " AND ", e.Right)
}

func (b *queryBuilder) binary(left query.Expr, op string, right query.Expr) error {
	b.write("(")
	if err := left.Accept(b); err != nil {
		return err
	}
	b.write(op)
	if err := right.Accept(b); err != nil {
		return err
	}
	b.write(")")
	return nil
}

func (b *queryBuilder) VisitNot(e *query.NotExpr) error {
	b.write("NOT (")
	if err := e.Inner.Accept(b); err != nil {
		return err
	}
	b.write(")")
	return nil
}

func (b *queryBuilder) VisitRelationshipExpr(r *query.RelationshipExpr) error {
	return r.Set.Accept(b)
}

func (b *queryBuilder) VisitComparison(c *query.Comparison) error {
	var lit *query.Literal
	if c.Right != nil {
		var err error
		if lit, err = literalOf(c.Right); err != nil {
			return err
		}
	}
	switch left := c.Left.(type) {
	case *query.PropertyRef:
		return b.property(left.Name, c.Op, lit)
	case *query.FunctionCall:
		switch left.QName() {
		case query.FuncGetRelationshipAttribute, query.FuncGetTargetAttribute:
			return b.attribute(left, c.Op, lit)
		}
		return left.Accept(b)
	}
	return errors.AssertionFailedf("comparison over %T", c.Left)
}

// VisitFunctionCall emits a boolean test for a predicate-position function
func (b *queryBuilder) VisitFunctionCall(f *query.FunctionCall) error {
	name := f.QName()
	switch {
	case query.IsClassificationFunction(name):
		return b.classifiedBy(f)
	case name == query.FuncMatches:
		return b.matches(f)
	}
	return errors.AssertionFailedf("function %s is not a predicate", name)
}

// property compares a core column or a custom property; a nil lit tests existence
func (b *queryBuilder) property(name string, op query.Operator, lit *query.Literal) error {
	a := b.current().artifact
	if f, ok := artifact.LookupField(name); ok {
		col := a + "." + f.Column
		if lit == nil {
			if f.Kind == artifact.ValueString {
				b.write(col, " <> ''")
			} else {
				b.write("1 = 1")
			}
			return nil
		}
		b.write(col, " ", string(op), " ")
		b.arg(columnValue(f.Kind, lit))
		return nil
	}

	p := b.alias("p")
	b.write("EXISTS (SELECT 1 FROM artifact_properties ", p, " WHERE ", p, ".artifact_uuid = ", a, ".uuid AND ", p, ".name = ")
	b.arg(name)
	if lit != nil {
		b.write(" AND ")
		if lit.Kind == query.LiteralNumber {
			b.write("CAST(", p, ".value AS REAL) ", string(op), " ")
			b.arg(lit.Num)
		} else {
			b.write(p, ".value ", string(op), " ")
			b.arg(textValue(lit))
		}
	}
	b.write(")")
	return nil
}

// attribute compares a key of the enclosing relationship's or target's attributes
func (b *queryBuilder) attribute(f *query.FunctionCall, op query.Operator, lit *query.Literal) error {
	s := b.current()
	column := s.rel + ".attributes"
	if f.QName() == query.FuncGetTargetAttribute {
		column = s.target + ".attributes"
	}
	if s.rel == "" {
		return errors.AssertionFailedf("%s outside a relationship predicate", f.QName())
	}
	key, err := stringArg(f.Args[1])
	if err != nil {
		return err
	}
	b.write("json_extract(", column, ", ")
	b.arg(`$."` + strings.ReplaceAll(key, `"`, ``) + `"`)
	b.write(")")
	if lit == nil {
		b.write(" IS NOT NULL")
		return nil
	}
	b.write(" ", string(op), " ")
	if lit.Kind == query.LiteralNumber {
		b.arg(strconv.FormatFloat(lit.Num, 'f', -1, 64))
	} else {
		b.arg(textValue(lit))
	}
	return nil
}

// classifiedBy tests classifications. The plain forms match the stored is-a closure;
// the exactly forms match only the URIs the client set.
func (b *queryBuilder) classifiedBy(f *query.FunctionCall) error {
	name := f.QName()
	uris := make([]string, 0, len(f.Args)-1)
	for _, a := range f.Args[1:] {
		ref, err := stringArg(a)
		if err != nil {
			return err
		}
		uri, err := b.resolveClass(ref)
		if err != nil {
			return err
		}
		uris = append(uris, uri)
	}
	exact := name == query.FuncExactlyClassifiedByAnyOf || name == query.FuncExactlyClassifiedByAllOf
	all := name == query.FuncClassifiedByAllOf || name == query.FuncExactlyClassifiedByAllOf

	a := b.current().artifact
	exists := func(set []string) {
		c := b.alias("c")
		b.write("EXISTS (SELECT 1 FROM artifact_classifications ", c, " WHERE ", c, ".artifact_uuid = ", a, ".uuid")
		if exact {
			b.write(" AND ", c, ".explicit = 1")
		}
		b.write(" AND ", c, ".uri IN (")
		for i, u := range set {
			if i > 0 {
				b.write(", ")
			}
			b.arg(u)
		}
		b.write("))")
	}
	if !all {
		exists(uris)
		return nil
	}
	b.write("(")
	for i, u := range uris {
		if i > 0 {
			b.write(" AND ")
		}
		exists([]string{u})
	}
	b.write(")")
	return nil
}

func (b *queryBuilder) resolveClass(ref string) (string, error) {
	if b.classes == nil {
		return ref, nil
	}
	if uri, ok := b.classes.Resolve(ref); ok {
		return uri, nil
	}
	return "", errors.NewQueryValidation("unknown_class", ref, "classification is not a class of any ontology")
}

// matches applies a regular expression to a property, or for '.' to the name,
// the description and every custom property value.
func (b *queryBuilder) matches(f *query.FunctionCall) error {
	pattern, err := stringArg(f.Args[1])
	if err != nil {
		return err
	}
	if _, err := compileQueryPattern(pattern); err != nil {
		return err
	}
	a := b.current().artifact
	p := b.alias("p")

	switch subject := f.Args[0].(type) {
	case *query.PropertyRef:
		if field, ok := artifact.LookupField(subject.Name); ok {
			b.write(a, ".", field.Column, " REGEXP ")
			b.arg(pattern)
			return nil
		}
		b.write("EXISTS (SELECT 1 FROM artifact_properties ", p, " WHERE ", p, ".artifact_uuid = ", a, ".uuid AND ", p, ".name = ")
		b.arg(subject.Name)
		b.write(" AND ", p, ".value REGEXP ")
		b.arg(pattern)
		b.write(")")
	case *query.ContextItem:
		b.write("(", a, ".name REGEXP ")
		b.arg(pattern)
		b.write(" OR ", a, ".description REGEXP ")
		b.arg(pattern)
		b.write(" OR EXISTS (SELECT 1 FROM artifact_properties ", p, " WHERE ", p, ".artifact_uuid = ", a, ".uuid AND ", p, ".value REGEXP ")
		b.arg(pattern)
		b.write("))")
	default:
		return errors.AssertionFailedf("matches over %T", f.Args[0])
	}
	return nil
}

func (b *queryBuilder) VisitPropertyRef(r *query.PropertyRef) error {
	return b.property(r.Name, "", nil)
}

func (b *queryBuilder) VisitLiteral(*query.Literal) error {
	return errors.AssertionFailedf("literal outside a comparison")
}

func (b *queryBuilder) VisitParam(p *query.Param) error {
	return errors.AssertionFailedf("parameter %d is unbound", p.Index+1)
}

func (b *queryBuilder) VisitVariable(v *query.Variable) error {
	return errors.AssertionFailedf("variable $%s is unbound", v.Name)
}

func (b *queryBuilder) VisitContextItem(*query.ContextItem) error {
	return errors.AssertionFailedf("'.' outside a function argument")
}

func literalOf(o query.Operand) (*query.Literal, error) {
	if lit, ok := o.(*query.Literal); ok {
		return lit, nil
	}
	return nil, errors.AssertionFailedf("operand %T is unbound", o)
}

func stringArg(n query.Node) (string, error) {
	lit, ok := n.(*query.Literal)
	if !ok || lit.Kind != query.LiteralString {
		return "", errors.AssertionFailedf("function argument %T is not a bound string", n)
	}
	return lit.Str, nil
}

func textValue(lit *query.Literal) string {
	switch lit.Kind {
	case query.LiteralNumber:
		return strconv.FormatFloat(lit.Num, 'f', -1, 64)
	case query.LiteralBool:
		return strconv.FormatBool(lit.Bool)
	}
	return lit.Str
}

// columnValue converts lit to the representation the column of kind stores.
// The compiler has already checked lit's kind against the field, so only time
// strings are normalized; nothing is parsed into another kind.
func columnValue(kind artifact.ValueKind, lit *query.Literal) interface{} {
	switch lit.Kind {
	case query.LiteralNumber:
		return lit.Num
	case query.LiteralBool:
		return lit.Bool
	}
	if kind == artifact.ValueTime {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, lit.Str); err == nil {
				return formatTime(t)
			}
		}
	}
	return lit.Str
}

// compileQueryPattern checks a matches() pattern before it reaches the store
func compileQueryPattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.NewQueryValidation("pattern", pattern, "invalid regular expression: %v", err)
	}
	return re, nil
}
