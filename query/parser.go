package query

import (
	"strconv"
	"strings"
)

// Query text starts with this path segment
const RootSegment = "s-ramp"

// Reserved words of the predicate grammar
const (
	keywordAnd   = "and"
	keywordOr    = "or"
	keywordTrue  = "true"
	keywordFalse = "false"
)

// Function names with parser-level meaning
const (
	FuncNot = "fn:not"
)

// Parse parses query text into an unvalidated AST.
// Errors are *ParseError values carrying the offending token and offset.
func Parse(src string) (*Query, error) {
	tokens, perr := tokenize(src)
	if perr != nil {
		return nil, perr.WithQuery(src)
	}
	p := &parser{tokens: tokens, src: src}
	q, perr := p.parseQuery()
	if perr != nil {
		return nil, perr.WithQuery(src)
	}
	return q, nil
}

// Compile parses and validates src
func Compile(src string) (*Query, error) {
	q, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if err := Validate(q); err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.WithQuery(src)
		}
		return nil, err
	}
	return q, nil
}

type parser struct {
	tokens []Token
	pos    int
	src    string
	params int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) isSymbol(sym string) bool {
	t := p.peek()
	return t.Kind == TokenSymbol && t.Value == sym
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.Kind == TokenName && t.Value == word
}

func (p *parser) accept(sym string) bool {
	if p.isSymbol(sym) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(sym, suggestion string) *ParseError {
	if p.accept(sym) {
		return nil
	}
	t := p.peek()
	err := NewParseError(ErrorKindSyntax, "expected '"+sym+"', found "+describe(t)).WithToken(t)
	if suggestion != "" {
		err.WithSuggestion(suggestion)
	}
	return err
}

func (p *parser) expectName(what string) (Token, *ParseError) {
	t := p.peek()
	if t.Kind != TokenName {
		return t, NewParseError(ErrorKindSyntax, "expected "+what+", found "+describe(t)).WithToken(t)
	}
	p.pos++
	return t, nil
}

func describe(t Token) string {
	if t.Kind == TokenEOF {
		return "end of query"
	}
	return t.Kind.String() + " '" + t.Raw + "'"
}

// isFunctionStart reports whether the current name opens a function call
func (p *parser) isFunctionStart() bool {
	t := p.peek()
	next := p.peekAt(1)
	return t.Kind == TokenName && next.Kind == TokenSymbol && next.Value == "("
}

func (p *parser) parseQuery() (*Query, *ParseError) {
	path, err := p.parseLocationPath()
	if err != nil {
		return nil, err
	}
	q := &Query{Path: path}

	if p.isSymbol("[") {
		if q.Predicate, err = p.parsePredicate(); err != nil {
			return nil, err
		}
	}
	if p.accept("/") {
		if q.Sub, err = p.parseSubartifactSet(); err != nil {
			return nil, err
		}
	}
	if t := p.peek(); t.Kind != TokenEOF {
		return nil, NewParseError(ErrorKindSyntax, "unexpected "+describe(t)).
			WithToken(t).
			WithSuggestion("predicates go in [...] and relationship hops follow '/'")
	}
	q.Params = p.params
	return q, nil
}

func (p *parser) parseLocationPath() (*LocationPath, *ParseError) {
	if p.accept("//") {
		t, err := p.expectName("artifact type after '//'")
		if err != nil {
			return nil, err
		}
		return &LocationPath{Type: t.Value, AnyModel: true}, nil
	}

	if err := p.expect("/", "queries start with /s-ramp or //Type"); err != nil {
		return nil, err
	}
	root := p.peek()
	if root.Kind != TokenName || root.Value != RootSegment {
		return nil, NewParseError(ErrorKindSyntax, "expected '"+RootSegment+"', found "+describe(root)).
			WithToken(root).
			WithSuggestion("queries start with /s-ramp")
	}
	p.pos++

	path := &LocationPath{}
	if !p.isSymbol("/") {
		return path, nil
	}
	p.pos++
	model, err := p.expectName("artifact model")
	if err != nil {
		return nil, err
	}
	path.Model = model.Value

	// a third segment is the type; anything after it is a relationship hop
	if p.isSymbol("/") && p.peekAt(1).Kind == TokenName {
		p.pos++
		path.Type = p.next().Value
	}
	return path, nil
}

func (p *parser) parsePredicate() (Expr, *ParseError) {
	open := p.peek()
	if err := p.expect("[", ""); err != nil {
		return nil, err
	}
	if p.isSymbol("]") {
		return nil, NewParseError(ErrorKindSyntax, "empty predicate").WithToken(open)
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expect("]", "close the predicate with ']'"); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) parseSubartifactSet() (*SubartifactSet, *ParseError) {
	if p.isFunctionStart() {
		fc, err := p.parseFunctionCall()
		if err != nil {
			return nil, err
		}
		return &SubartifactSet{Function: fc}, nil
	}

	rel, err := p.expectName("relationship name")
	if err != nil {
		err.WithSuggestion("a relationship hop is /relationshipName or /relationshipName[predicate]")
		return nil, err
	}
	set := &SubartifactSet{Relationship: rel.Value}
	if p.isSymbol("[") {
		if set.Predicate, err = p.parsePredicate(); err != nil {
			return nil, err
		}
	}
	if p.accept("/") {
		if set.Next, err = p.parseSubartifactSet(); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (p *parser) parseOr() (Expr, *ParseError) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(keywordOr) {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, *ParseError) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(keywordAnd) {
		p.pos++
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, *ParseError) {
	t := p.peek()

	switch {
	case t.Kind == TokenSymbol && t.Value == "(":
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")", "close the group with ')'"); err != nil {
			return nil, err
		}
		return e, nil

	case t.Kind == TokenSymbol && t.Value == "@":
		ref, err := p.parsePropertyRef()
		if err != nil {
			return nil, err
		}
		return p.parseComparisonTail(ref)

	case t.Kind == TokenName && p.isFunctionStart():
		if t.Value == FuncNot {
			return p.parseNot()
		}
		fc, err := p.parseFunctionCall()
		if err != nil {
			return nil, err
		}
		return p.parseComparisonTail(fc)

	case t.Kind == TokenName:
		if t.Value == keywordAnd || t.Value == keywordOr {
			return nil, NewParseError(ErrorKindSyntax, "missing operand before '"+t.Value+"'").WithToken(t)
		}
		set, err := p.parseSubartifactSet()
		if err != nil {
			return nil, err
		}
		return &RelationshipExpr{Set: set}, nil
	}

	return nil, NewParseError(ErrorKindSyntax, "expected a predicate, found "+describe(t)).
		WithToken(t).
		WithSuggestion("@property = value").
		WithSuggestion("relationshipName[predicate]").
		WithSuggestion("s-ramp:classifiedByAnyOf(., 'uri')")
}

func (p *parser) parseNot() (Expr, *ParseError) {
	p.pos++ // fn:not
	if err := p.expect("(", ""); err != nil {
		return nil, err
	}
	inner, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")", "close fn:not with ')'"); err != nil {
		return nil, err
	}
	return &NotExpr{Inner: inner}, nil
}

func (p *parser) parsePropertyRef() (*PropertyRef, *ParseError) {
	p.pos++ // @
	t, err := p.expectName("property name after '@'")
	if err != nil {
		return nil, err
	}
	return &PropertyRef{Name: t.Value}, nil
}

func (p *parser) parseComparisonTail(left Node) (Expr, *ParseError) {
	op, ok := p.parseOperator()
	if !ok {
		return &Comparison{Left: left}, nil
	}
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &Comparison{Left: left, Op: op, Right: right}, nil
}

func (p *parser) parseOperator() (Operator, bool) {
	t := p.peek()
	if t.Kind != TokenSymbol {
		return "", false
	}
	switch op := Operator(t.Value); op {
	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		p.pos++
		return op, true
	}
	return "", false
}

func (p *parser) parsePrimary() (Operand, *ParseError) {
	t := p.peek()
	switch {
	case t.Kind == TokenSymbol && t.Value == "?":
		p.pos++
		param := &Param{Index: p.params}
		p.params++
		return param, nil

	case t.Kind == TokenSymbol && t.Value == "$":
		p.pos++
		name, err := p.expectName("variable name after '$'")
		if err != nil {
			return nil, err
		}
		return &Variable{Name: name.Value}, nil

	case t.Kind == TokenString:
		p.pos++
		return StringLiteral(t.Value), nil

	case t.Kind == TokenNumber:
		p.pos++
		return numberLiteral(t, false)

	case t.Kind == TokenSymbol && t.Value == "-" && p.peekAt(1).Kind == TokenNumber:
		p.pos++
		return numberLiteral(p.next(), true)

	case t.Kind == TokenName && t.Value == keywordTrue:
		p.pos++
		return BoolLiteral(true), nil

	case t.Kind == TokenName && t.Value == keywordFalse:
		p.pos++
		return BoolLiteral(false), nil
	}

	return nil, NewParseError(ErrorKindSyntax, "expected a value, found "+describe(t)).
		WithToken(t).
		WithSuggestion("quote string values: 'text'").
		WithSuggestion("use ? or $name for parameters")
}

func numberLiteral(t Token, negative bool) (*Literal, *ParseError) {
	f, err := strconv.ParseFloat(t.Value, 64)
	if err != nil {
		return nil, NewParseError(ErrorKindSyntax, "invalid number").WithToken(t)
	}
	if negative {
		f = -f
	}
	return NumberLiteral(f, !strings.Contains(t.Value, ".")), nil
}

func (p *parser) parseFunctionCall() (*FunctionCall, *ParseError) {
	name := p.next()
	p.pos++ // (
	fc := &FunctionCall{}
	if i := strings.IndexByte(name.Value, ':'); i >= 0 {
		fc.Prefix, fc.Name = name.Value[:i], name.Value[i+1:]
	} else {
		fc.Name = name.Value
	}

	if p.accept(")") {
		return fc, nil
	}
	for {
		arg, err := p.parseArgument()
		if err != nil {
			return nil, err
		}
		fc.Args = append(fc.Args, arg)
		if p.accept(",") {
			continue
		}
		if err := p.expect(")", "separate arguments with ',' and close with ')'"); err != nil {
			return nil, err
		}
		return fc, nil
	}
}

func (p *parser) parseArgument() (Node, *ParseError) {
	t := p.peek()
	switch {
	case t.Kind == TokenSymbol && t.Value == ".":
		p.pos++
		return &ContextItem{}, nil
	case t.Kind == TokenSymbol && t.Value == "@":
		return p.parsePropertyRef()
	case t.Kind == TokenName && p.isFunctionStart():
		return p.parseFunctionCall()
	case t.Kind == TokenName && t.Value != keywordTrue && t.Value != keywordFalse:
		// bare class ids: classifiedByAnyOf(., Red)
		p.pos++
		return StringLiteral(t.Value), nil
	}
	return p.parsePrimary()
}
