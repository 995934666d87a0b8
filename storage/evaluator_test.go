package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/ontology"
	"github.com/teranos/artificer/query"
)

func run(t *testing.T, s *SQLStore, src string, params query.Params, page Page) *QueryResult {
	t.Helper()
	q, err := query.Compile(src)
	require.NoError(t, err, src)
	bound, err := query.Bind(q, params)
	require.NoError(t, err, src)
	res, err := s.Execute(context.Background(), bound, page)
	require.NoError(t, err, src)
	return res
}

func mustCompile(t *testing.T, src string) *query.Query {
	t.Helper()
	q, err := query.Compile(src)
	require.NoError(t, err, src)
	return q
}

func names(res *QueryResult) []string {
	out := make([]string, len(res.Artifacts))
	for i, a := range res.Artifacts {
		out[i] = a.Name
	}
	return out
}

func TestExecuteCustomPropertyParam(t *testing.T) {
	s := newTestStore(t)

	match := newDocument(artifact.TypeXsdDocument, "match.xsd", nil)
	match.Properties.Set("prop1", "value1")
	persist(t, s, match)
	other := newDocument(artifact.TypeXsdDocument, "other.xsd", nil)
	other.Properties.Set("prop1", "value2")
	persist(t, s, other)
	persist(t, s, newDocument(artifact.TypeXsdDocument, "bare.xsd", nil))

	res := run(t, s, "/s-ramp/xsd/XsdDocument[@prop1 = ?]",
		query.Params{Positional: []query.Value{query.String("value1")}}, Page{})
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, []string{"match.xsd"}, names(res))

	res = run(t, s, "/s-ramp/xsd/XsdDocument[@prop1]", query.Params{}, Page{})
	assert.Equal(t, []string{"match.xsd", "other.xsd"}, names(res))

	res = run(t, s, "/s-ramp/xsd/XsdDocument[fn:not(@prop1)]", query.Params{}, Page{})
	assert.Equal(t, []string{"bare.xsd"}, names(res))
}

func TestExecuteTypeFilters(t *testing.T) {
	s := newTestStore(t)

	xsd := newDocument(artifact.TypeXsdDocument, "a.xsd", nil)
	persist(t, s, xsd)
	persist(t, s, newDocument(artifact.TypeWsdlDocument, "b.wsdl", nil))
	persist(t, s, artifact.New("MavenPom", "pom"))
	require.NoError(t, s.InTx(context.Background(), func(tx *Tx) error {
		return tx.PersistDerived(context.Background(), xsd, []*artifact.Artifact{
			artifact.NewDerived(xsd, artifact.TypeElementDeclaration, "keyword", "urn:x"),
		})
	}))

	tests := []struct {
		query string
		want  []string
	}{
		{"/s-ramp", []string{"a.xsd", "b.wsdl", "keyword", "pom"}},
		{"/s-ramp/xsd", []string{"a.xsd", "keyword"}},
		{"/s-ramp/xsd/XsdDocument", []string{"a.xsd"}},
		{"//ElementDeclaration", []string{"keyword"}},
		{"//MavenPom", []string{"pom"}},
		{"/s-ramp/ext/MavenPom", []string{"pom"}},
		{"/s-ramp/ext/ExtendedArtifactType", []string{"pom"}},
		{"/s-ramp/xsd[@derived = true]", []string{"keyword"}},
		{"/s-ramp[@name = 'b.wsdl' or @name = 'pom']", []string{"b.wsdl", "pom"}},
		{"/s-ramp[xp2:matches(@name, '^[ab]\\.')]", []string{"a.xsd", "b.wsdl"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := run(t, s, tt.query, query.Params{}, Page{})
			assert.Equal(t, tt.want, names(res))
			assert.Equal(t, len(tt.want), res.Total)
		})
	}
}

func TestExecuteNumericComparisons(t *testing.T) {
	s := newTestStore(t)

	for name, size := range map[string]string{"small": "9", "large": "25"} {
		a := artifact.New("Service", name)
		a.Properties.Set("size", size)
		persist(t, s, a)
	}

	// compared as numbers, not text
	res := run(t, s, "/s-ramp/soa/Service[@size > 10]", query.Params{}, Page{})
	assert.Equal(t, []string{"large"}, names(res))

	res = run(t, s, "/s-ramp/soa/Service[@size <= ?]",
		query.Params{Positional: []query.Value{query.Int(9)}}, Page{})
	assert.Equal(t, []string{"small"}, names(res))
}

func TestExecuteClassifications(t *testing.T) {
	s := newTestStore(t)

	o := ontology.New("http://example.org/colors", "Colors", "Colors")
	o.UUID = "b8fe6b48-5c6b-4a4e-9c0c-6c5a1cb9f590"
	color := o.NewClass("Color", "Color")
	red := o.NewClass("Red", "Red")
	crimson := o.NewClass("Crimson", "Crimson")
	require.NoError(t, o.AddRoot(color))
	require.NoError(t, o.AddChild(color, red))
	require.NoError(t, o.AddChild(red, crimson))
	s.SetClassifier(ontology.NewSet(o))

	a := artifact.New("Service", "crimson")
	a.Classifications = []string{crimson.URI}
	persist(t, s, a)
	persist(t, s, artifact.New("Service", "plain"))

	tests := []struct {
		query string
		want  []string
	}{
		{"/s-ramp/soa/Service[s-ramp:classifiedByAnyOf(., Red)]", []string{"crimson"}},
		{"/s-ramp/soa/Service[s-ramp:classifiedByAnyOf(., 'http://example.org/colors#Color')]", []string{"crimson"}},
		{"/s-ramp/soa/Service[s-ramp:classifiedByAllOf(., Color, Crimson)]", []string{"crimson"}},
		{"/s-ramp/soa/Service[s-ramp:exactlyClassifiedByAnyOf(., Red)]", []string{}},
		{"/s-ramp/soa/Service[s-ramp:exactlyClassifiedByAnyOf(., Crimson)]", []string{"crimson"}},
		{"/s-ramp/soa/Service[s-ramp:exactlyClassifiedByAllOf(., Crimson, Red)]", []string{}},
		{"/s-ramp/soa/Service[fn:not(s-ramp:classifiedByAnyOf(., Color))]", []string{"plain"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, names(run(t, s, tt.query, query.Params{}, Page{})))
		})
	}

	got, err := s.GetArtifact(context.Background(), a.UUID)
	require.NoError(t, err)
	assert.Equal(t, []string{crimson.URI}, got.Classifications, "only explicit classifications are returned")

	q, err := query.Compile("/s-ramp/soa/Service[s-ramp:classifiedByAnyOf(., Blue)]")
	require.NoError(t, err)
	_, err = s.Execute(context.Background(), q, Page{})
	require.Error(t, err)
	assert.Equal(t, "query_validation.unknown_class", errors.Code(err))
}

func TestExecuteRelationships(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	xsd := newDocument(artifact.TypeXsdDocument, "types.xsd", nil)
	persist(t, s, xsd)
	typ := artifact.NewDerived(xsd, artifact.TypeComplexTypeDeclaration, "keywordType", "urn:x")
	elem := artifact.NewDerived(xsd, artifact.TypeElementDeclaration, "keyword", "urn:x")
	elem.AddRelationship("type", typ.UUID)
	lonely := artifact.NewDerived(xsd, artifact.TypeElementDeclaration, "lonely", "urn:x")
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.PersistDerived(ctx, xsd, []*artifact.Artifact{typ, elem, lonely})
	}))

	owner := artifact.New("Organization", "acme")
	persist(t, s, owner)
	svc := artifact.New("Service", "billing")
	rel := svc.EnsureRelationship("ownedBy", true)
	rel.Attributes = map[string]string{"since": "2020"}
	rel.Targets = []artifact.Target{{UUID: owner.UUID, Attributes: map[string]string{"role": "primary"}}}
	persist(t, s, svc)

	tests := []struct {
		query string
		want  []string
	}{
		{"/s-ramp/xsd/ElementDeclaration[type]", []string{"keyword"}},
		{"/s-ramp/xsd/ElementDeclaration[fn:not(type)]", []string{"lonely"}},
		{"/s-ramp/xsd/ElementDeclaration[type[@ncName = 'keywordType']]", []string{"keyword"}},
		{"/s-ramp/xsd/ElementDeclaration[type[@ncName = 'other']]", []string{}},
		{"/s-ramp/xsd/ElementDeclaration/type", []string{"keywordType"}},
		{"/s-ramp/xsd/ElementDeclaration[@ncName = 'keyword']/relatedDocument", []string{"types.xsd"}},
		{"/s-ramp/xsd/ElementDeclaration/type/relatedDocument", []string{"types.xsd"}},
		{"/s-ramp/xsd/XsdDocument/s-ramp:derivedArtifacts()", []string{"keyword", "keywordType", "lonely"}},
		{"/s-ramp/xsd/ComplexTypeDeclaration[relatedDocument[@name = 'types.xsd']]", []string{"keywordType"}},
		{"/s-ramp/soa/Service[ownedBy[s-ramp:getRelationshipAttribute(., 'since') = '2020']]", []string{"billing"}},
		{"/s-ramp/soa/Service[ownedBy[s-ramp:getTargetAttribute(., 'role') = 'primary']]", []string{"billing"}},
		{"/s-ramp/soa/Service[ownedBy[s-ramp:getTargetAttribute(., 'role') = 'backup']]", []string{}},
		{"/s-ramp/soa/Service/ownedBy[s-ramp:getTargetAttribute(., 'role')]", []string{"acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, names(run(t, s, tt.query, query.Params{}, Page{})))
		})
	}
}

func TestExecutePaging(t *testing.T) {
	s := newTestStore(t)
	for _, n := range []string{"c", "a", "e", "b", "d"} {
		a := artifact.New("Service", n)
		a.Properties.Set("rank", map[string]string{"a": "3", "b": "1", "c": "2", "d": "5", "e": "4"}[n])
		persist(t, s, a)
	}

	res := run(t, s, "/s-ramp/soa/Service", query.Params{}, Page{Count: 2})
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, []string{"a", "b"}, names(res))

	res = run(t, s, "/s-ramp/soa/Service", query.Params{}, Page{StartIndex: 3, Count: 10})
	assert.Equal(t, []string{"d", "e"}, names(res))

	res = run(t, s, "/s-ramp/soa/Service", query.Params{}, Page{Descending: true, Count: 2})
	assert.Equal(t, []string{"e", "d"}, names(res))

	res = run(t, s, "/s-ramp/soa/Service", query.Params{}, Page{OrderBy: "rank"})
	assert.Equal(t, []string{"b", "c", "a", "e", "d"}, names(res))

	res = run(t, s, "/s-ramp/soa/Service", query.Params{}, Page{StartIndex: 10})
	assert.Equal(t, 5, res.Total)
	assert.Empty(t, res.Artifacts)
}

func TestExecuteVersionOrdering(t *testing.T) {
	s := newTestStore(t)
	for _, v := range []string{"1.10.0", "1.9.0", "2.0.0-rc1", "snapshot"} {
		a := artifact.New("Service", "svc-"+v)
		a.Version = v
		persist(t, s, a)
	}

	res := run(t, s, "/s-ramp/soa/Service", query.Params{}, Page{OrderBy: "version"})
	assert.Equal(t, []string{"svc-1.9.0", "svc-1.10.0", "svc-2.0.0-rc1", "svc-snapshot"}, names(res))

	res = run(t, s, "/s-ramp/soa/Service", query.Params{}, Page{OrderBy: "version", Descending: true, Count: 1})
	assert.Equal(t, []string{"svc-snapshot"}, names(res))
	assert.Equal(t, 4, res.Total)
}

func TestExecuteRejectsUnbound(t *testing.T) {
	s := newTestStore(t)
	q, err := query.Compile("/s-ramp/xsd/XsdDocument[@prop1 = ?]")
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), q, Page{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQueryValidation))
	assert.Equal(t, "query_validation.binding", errors.Code(err))
}

func TestExecuteRejectsBadPattern(t *testing.T) {
	s := newTestStore(t)
	res, err := query.Compile("/s-ramp[xp2:matches(., '(')]")
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), res, Page{})
	require.Error(t, err)
	assert.Equal(t, "query_validation.pattern", errors.Code(err))
}
