package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/artificer/errors"
)

func TestTokenize(t *testing.T) {
	tokens, err := tokenize(`/s-ramp/xsd[@name = 'it''s' and @size >= 1.5 (: note :)]`)
	require.Nil(t, err)

	var values []string
	for _, tok := range tokens {
		values = append(values, tok.Value)
	}
	assert.Equal(t, []string{"/", "s-ramp", "/", "xsd", "[", "@", "name", "=", "it's", "and", "@", "size", ">=", "1.5", "]", ""}, values)
	assert.Equal(t, TokenString, tokens[8].Kind)
	assert.Equal(t, TokenNumber, tokens[13].Kind)
	assert.Equal(t, TokenEOF, tokens[len(tokens)-1].Kind)
}

func TestTokenizeQualifiedNames(t *testing.T) {
	tokens, err := tokenize(`s-ramp:classifiedByAnyOf(., "a""b")`)
	require.Nil(t, err)
	assert.Equal(t, "s-ramp:classifiedByAnyOf", tokens[0].Value)
	assert.Equal(t, ".", tokens[2].Value)
	assert.Equal(t, TokenSymbol, tokens[2].Kind)
	assert.Equal(t, `a"b`, tokens[4].Value)
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unterminated string", `/s-ramp[@name = 'abc`, "unterminated string"},
		{"unterminated comment", `/s-ramp (: trailing`, "unterminated comment"},
		{"bad character", `/s-ramp[@a = #]`, "unexpected character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokenize(tt.input)
			require.NotNil(t, err)
			assert.Contains(t, err.Message, tt.want)
			assert.True(t, errors.Is(err, errors.ErrQuerySyntax))
		})
	}
}

func TestParseLocationPaths(t *testing.T) {
	tests := []struct {
		input string
		want  LocationPath
	}{
		{"/s-ramp", LocationPath{}},
		{"/s-ramp/xsd", LocationPath{Model: "xsd"}},
		{"/s-ramp/xsd/XsdDocument", LocationPath{Model: "xsd", Type: "XsdDocument"}},
		{"//Message", LocationPath{Type: "Message", AnyModel: true}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *q.Path)
			assert.Nil(t, q.Predicate)
			assert.Nil(t, q.Sub)
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	q, err := Parse(`/s-ramp[@a = 1 or @b = 2 and @c = 3]`)
	require.NoError(t, err)

	or, ok := q.Predicate.(*OrExpr)
	require.True(t, ok, "or must be the root, got %T", q.Predicate)
	assert.IsType(t, &Comparison{}, or.Left)
	and, ok := or.Right.(*AndExpr)
	require.True(t, ok)
	assert.Equal(t, "b", and.Left.(*Comparison).Left.(*PropertyRef).Name)
	assert.Equal(t, "c", and.Right.(*Comparison).Left.(*PropertyRef).Name)
}

func TestParseGrouping(t *testing.T) {
	q, err := Parse(`/s-ramp[(@a or @b) and @c]`)
	require.NoError(t, err)

	and, ok := q.Predicate.(*AndExpr)
	require.True(t, ok)
	assert.IsType(t, &OrExpr{}, and.Left)

	exists := and.Right.(*Comparison)
	assert.Equal(t, Operator(""), exists.Op)
	assert.Nil(t, exists.Right)
}

func TestParseOperandsAndParams(t *testing.T) {
	q, err := Parse(`/s-ramp/xsd/XsdDocument[@prop1 = ? and @n < -2 and @f != 1.5 and @b = true and @v = $who and @w = ?]`)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Params)

	var operands []Node
	Inspect(q, func(n Node) bool {
		if c, ok := n.(*Comparison); ok {
			operands = append(operands, c.Right)
		}
		return true
	})
	require.Len(t, operands, 6)
	assert.Equal(t, &Param{Index: 0}, operands[0])
	assert.Equal(t, NumberLiteral(-2, true), operands[1])
	assert.Equal(t, NumberLiteral(1.5, false), operands[2])
	assert.Equal(t, BoolLiteral(true), operands[3])
	assert.Equal(t, &Variable{Name: "who"}, operands[4])
	assert.Equal(t, &Param{Index: 1}, operands[5])
}

func TestParseRelationships(t *testing.T) {
	q, err := Parse(`/s-ramp/wsdl/PortType[operation[@name = 'find']]/operation/input`)
	require.NoError(t, err)

	rel, ok := q.Predicate.(*RelationshipExpr)
	require.True(t, ok)
	assert.Equal(t, "operation", rel.Set.Relationship)
	require.NotNil(t, rel.Set.Predicate)

	require.NotNil(t, q.Sub)
	assert.Equal(t, "operation", q.Sub.Relationship)
	require.NotNil(t, q.Sub.Next)
	assert.Equal(t, "input", q.Sub.Next.Relationship)
}

func TestParseFunctions(t *testing.T) {
	q, err := Parse(`/s-ramp[s-ramp:classifiedByAnyOf(., 'http://ex.org/colors#Red', Blue) and fn:not(xp2:matches(@name, 'foo.*'))]`)
	require.NoError(t, err)

	and := q.Predicate.(*AndExpr)
	fc := and.Left.(*Comparison).Left.(*FunctionCall)
	assert.Equal(t, "s-ramp", fc.Prefix)
	assert.Equal(t, "classifiedByAnyOf", fc.Name)
	require.Len(t, fc.Args, 3)
	assert.IsType(t, &ContextItem{}, fc.Args[0])
	assert.Equal(t, StringLiteral("Blue"), fc.Args[2])

	not, ok := and.Right.(*NotExpr)
	require.True(t, ok)
	matches := not.Inner.(*Comparison).Left.(*FunctionCall)
	assert.Equal(t, FuncMatches, matches.QName())
	assert.Equal(t, &PropertyRef{Name: "name"}, matches.Args[0])
}

func TestParseSubartifactFunction(t *testing.T) {
	q, err := Parse(`/s-ramp/xsd/XsdDocument/s-ramp:derivedArtifacts()`)
	require.NoError(t, err)
	require.NotNil(t, q.Sub.Function)
	assert.Equal(t, FuncDerivedArtifacts, q.Sub.Function.QName())
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		offset int
	}{
		{"missing root", "s-ramp", 0},
		{"wrong root", "/x-ramp", 1},
		{"empty predicate", "/s-ramp[]", 7},
		{"unclosed predicate", "/s-ramp[@a = 1", 14},
		{"missing value", "/s-ramp[@a = ]", 13},
		{"dangling and", "/s-ramp[@a and]", 14},
		{"trailing garbage", "/s-ramp/xsd/XsdDocument]", 23},
		{"unquoted value", "/s-ramp[@a = foo]", 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, ErrorKindSyntax, perr.Kind)
			assert.Equal(t, tt.offset, perr.Offset)
			assert.Equal(t, tt.input, perr.Query)
			assert.True(t, errors.Is(err, errors.ErrQuerySyntax))
			assert.Equal(t, "query_syntax", string(errors.KindOf(err)))
		})
	}
}

func TestParseErrorFormatting(t *testing.T) {
	_, err := Parse("/s-ramp[@a = ]")
	require.Error(t, err)
	perr := err.(*ParseError)

	plain := perr.FormatError(ErrorContextPlain)
	assert.Contains(t, plain, "expected a value")
	assert.Contains(t, plain, "near ']'")
	assert.Contains(t, plain, "Suggestions:")

	terminal := perr.FormatError(ErrorContextTerminal)
	assert.Contains(t, terminal, "/s-ramp[@a = ]")
	assert.Contains(t, terminal, "^")
}
