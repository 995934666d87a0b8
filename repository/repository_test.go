package repository_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/config"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/derive/xsd"
	"github.com/teranos/artificer/errors"
	testdb "github.com/teranos/artificer/internal/testing"
	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/query"
	"github.com/teranos/artificer/repository"
	"github.com/teranos/artificer/storage"
)

const sampleSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:artificer:test">
  <xs:element name="order" type="xs:string"/>
  <xs:complexType name="orderType">
    <xs:sequence><xs:element ref="order"/></xs:sequence>
  </xs:complexType>
</xs:schema>`

const colorsRDF = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:rdfs="http://www.w3.org/2000/01/rdf-schema#"
         xmlns:owl="http://www.w3.org/2002/07/owl#"
         xml:base="http://example.org/colors">
  <owl:Ontology rdf:ID="Colors"><rdfs:label>Colors</rdfs:label></owl:Ontology>
  <owl:Class rdf:ID="Color"/>
  <owl:Class rdf:ID="Red"><rdfs:subClassOf rdf:resource="http://example.org/colors#Color"/></owl:Class>
  <owl:Class rdf:ID="Crimson"><rdfs:subClassOf rdf:resource="http://example.org/colors#Red"/></owl:Class>
</rdf:RDF>`

func newRepository(t *testing.T, workers int) *repository.Repository {
	t.Helper()
	cfg := config.Default()
	cfg.Derivation.Workers = workers
	cfg.Derivation.WorkDir = t.TempDir()
	cfg.Repository.DefaultUser = "tester"

	registry := derive.NewRegistry()
	registry.AddProvider(xsd.Provider())

	ctx, cancel := context.WithCancel(context.Background())
	repo, err := repository.New(ctx, testdb.CreateTestDB(t), registry, cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		cancel()
	})
	return repo
}

func uploadSchema(t *testing.T, repo *repository.Repository, name string, opts repository.UploadOptions) *artifact.Artifact {
	t.Helper()
	opts.Wait = true
	a, err := repo.Upload(context.Background(), "", name, []byte(sampleSchema), opts)
	require.NoError(t, err)
	return a
}

func derivedByName(t *testing.T, repo *repository.Repository, primary string) map[string]*artifact.Artifact {
	t.Helper()
	derived, err := repo.Store().DerivedOf(context.Background(), primary)
	require.NoError(t, err)
	out := make(map[string]*artifact.Artifact, len(derived))
	for _, d := range derived {
		out[d.Name] = d
	}
	return out
}

func TestCreateDerivedIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)

	primary := artifact.NewDocument(artifact.TypeXsdDocument, "a.xsd")
	_, err := repo.Create(ctx, artifact.NewDerived(primary, artifact.TypeElementDeclaration, "order", "urn:x"))
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
	assert.Equal(t, "conflict.derived_create", errors.Code(err))

	_, err = repo.Upload(ctx, artifact.TypeElementDeclaration, "e.xml", []byte("<e/>"), repository.UploadOptions{})
	assert.True(t, errors.IsConflictError(err))

	_, err = repo.Create(ctx, artifact.New(artifact.TypeXsdDocument, "no-content.xsd"))
	assert.True(t, errors.IsInvalidRequestError(err), "documents go through Upload")
}

func TestUploadDerives(t *testing.T) {
	for _, workers := range []int{0, 2} {
		name := "inline"
		if workers > 0 {
			name = "pool"
		}
		t.Run(name, func(t *testing.T) {
			repo := newRepository(t, workers)
			a := uploadSchema(t, repo, "orders.xsd", repository.UploadOptions{Version: "1.0.0"})

			assert.Equal(t, artifact.TypeXsdDocument, a.Type.Type)
			assert.Equal(t, "urn:artificer:test", a.TargetNamespace)
			assert.Equal(t, "tester", a.Audit.CreatedBy)
			require.NotNil(t, a.Content)
			assert.Equal(t, "UTF-8", a.Content.Encoding)

			derived := derivedByName(t, repo, a.UUID)
			require.Len(t, derived, 2)
			order := derived["order"]
			require.NotNil(t, order)
			assert.Equal(t, artifact.TypeElementDeclaration, order.Type.Type)
			assert.Equal(t, a.UUID, order.RelatedDocument)
			assert.Equal(t, "/xsd/ElementDeclaration/", storage.PathOf(order)[:len("/xsd/ElementDeclaration/")])

			content, desc, err := repo.GetContent(context.Background(), a.UUID)
			require.NoError(t, err)
			assert.Equal(t, sampleSchema, string(content))
			assert.Equal(t, int64(len(sampleSchema)), desc.Size)
		})
	}
}

func TestUploadRejectsOversizedContent(t *testing.T) {
	repo := newRepository(t, 0)
	cfg := config.Default()
	cfg.Derivation.MaxContentBytes = 8
	require.NoError(t, repo.ApplyConfig(cfg))

	_, err := repo.Upload(context.Background(), "", "big.xsd", []byte(sampleSchema), repository.UploadOptions{})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestExecuteBoundCustomProperty(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)

	for _, v := range []string{"value1", "value2"} {
		var props artifact.Properties
		props.Set("prop1", v)
		uploadSchema(t, repo, v+".xsd", repository.UploadOptions{Properties: props})
	}

	rs, err := repo.Execute(ctx, repository.QueryRequest{
		Query:  "/s-ramp/xsd/XsdDocument[@prop1 = ?]",
		Params: query.Params{Positional: []query.Value{query.String("value1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Total)
	require.Len(t, rs.Artifacts, 1)
	assert.Equal(t, "value1.xsd", rs.Artifacts[0].Name)
	assert.Equal(t, "name", rs.OrderBy)
	assert.True(t, rs.Ascending)

	_, err = repo.Execute(ctx, repository.QueryRequest{Query: "/s-ramp/xsd/XsdDocument[@prop1 = ?]"})
	require.Error(t, err)
	assert.Equal(t, errors.KindQueryValidation, errors.KindOf(err))

	_, err = repo.Execute(ctx, repository.QueryRequest{Query: "/s-ramp/xsd/XsdDocument[@prop1 = "})
	assert.Equal(t, errors.KindQuerySyntax, errors.KindOf(err))

	// core fields are never matched against a value of another kind
	for _, tc := range []struct {
		query string
		value query.Value
	}{
		{"/s-ramp/xsd/XsdDocument[@contentSize > ?]", query.String("big")},
		{"/s-ramp/xsd/XsdDocument[@derived = ?]", query.String("false")},
	} {
		_, err = repo.Execute(ctx, repository.QueryRequest{
			Query:  tc.query,
			Params: query.Params{Positional: []query.Value{tc.value}},
		})
		require.Error(t, err, tc.query)
		assert.Equal(t, "query_validation.binding", errors.Code(err), tc.query)
	}

	rs, err = repo.Execute(ctx, repository.QueryRequest{
		Query:  "/s-ramp/xsd/XsdDocument[@derived = ?]",
		Params: query.Params{Positional: []query.Value{query.Bool(false)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Total, "both primaries are non-derived")
}

func TestExecutePagingAndProjection(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)
	for _, n := range []string{"c", "a", "b"} {
		_, err := repo.Create(ctx, artifact.New("Service", n))
		require.NoError(t, err)
	}

	rs, err := repo.Execute(ctx, repository.QueryRequest{
		Query:         "/s-ramp/soa/Service",
		OrderBy:       "name",
		Ascending:     false,
		StartIndex:    1,
		Count:         1,
		PropertyNames: []string{"name"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Total)
	require.Len(t, rs.Artifacts, 1)
	assert.Equal(t, "b", rs.Artifacts[0].Name)
	assert.Equal(t, []map[string]string{{"name": "b"}}, rs.Rows)

	_, err = repo.Execute(ctx, repository.QueryRequest{Query: "/s-ramp/soa/Service", StartIndex: -1})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestExecuteStored(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)
	var props artifact.Properties
	props.Set("owner", "ops")
	svc := artifact.New("Service", "billing")
	svc.Properties = props
	_, err := repo.Create(ctx, svc)
	require.NoError(t, err)

	require.NoError(t, repo.CreateStoredQuery(ctx, &storage.StoredQuery{
		Name:          "byOwner",
		Query:         "/s-ramp/soa/Service[@owner = $owner]",
		PropertyNames: []string{"name", "owner"},
	}))
	err = repo.CreateStoredQuery(ctx, &storage.StoredQuery{Name: "broken", Query: "/s-ramp/soa/Service["})
	assert.Equal(t, errors.KindQuerySyntax, errors.KindOf(err))

	rs, err := repo.ExecuteStored(ctx, "byOwner",
		query.Params{Named: map[string]query.Value{"owner": query.String("ops")}}, repository.QueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Total)
	assert.Equal(t, []map[string]string{{"name": "billing", "owner": "ops"}}, rs.Rows)

	sq, err := repo.GetStoredQuery(ctx, "byOwner")
	require.NoError(t, err)
	assert.Equal(t, "tester", sq.CreatedBy)

	require.NoError(t, repo.DeleteStoredQuery(ctx, "byOwner"))
	_, err = repo.ExecuteStored(ctx, "byOwner", query.Params{}, repository.QueryRequest{})
	assert.True(t, errors.IsNotFoundError(err))
}

// A has a derived artifact D; B outside A's subtree points at D.
func TestDeleteBlockedByRelationshipIntoDerived(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)

	a := uploadSchema(t, repo, "a.xsd", repository.UploadOptions{})
	d := derivedByName(t, repo, a.UUID)["order"]
	require.NotNil(t, d)

	b := artifact.New("Service", "b")
	b.Relationships = []artifact.Relationship{{Name: "uses", Generic: true, Targets: []artifact.Target{{UUID: d.UUID}}}}
	b, err := repo.Create(ctx, b)
	require.NoError(t, err)

	err = repo.Delete(ctx, a.UUID)
	require.Error(t, err)
	assert.True(t, errors.IsConstraintError(err))
	assert.Equal(t, "constraint.relationship", errors.Code(err))
	for _, id := range []string{a.UUID, d.UUID, b.UUID} {
		_, err := repo.Get(ctx, id)
		assert.NoError(t, err, "nothing may change when delete is blocked")
	}

	reverse, err := repo.ReverseRelationships(ctx, d.UUID)
	require.NoError(t, err)
	var sources []string
	for _, rr := range reverse {
		if rr.Name == "uses" {
			sources = append(sources, rr.Source)
		}
	}
	assert.Equal(t, []string{b.UUID}, sources)

	err = repo.Delete(ctx, d.UUID)
	assert.Equal(t, "conflict.derived_delete", errors.Code(err))

	b.Relationships = nil
	_, err = repo.UpdateMeta(ctx, b)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, a.UUID))

	_, err = repo.Get(ctx, d.UUID)
	assert.True(t, errors.IsNotFoundError(err))

	trail, err := repo.AuditTrail(ctx, a.UUID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, storage.AuditAdd, trail[0].Type)
	assert.Equal(t, storage.AuditDelete, trail[1].Type)

	entry, err := repo.GetAuditEntry(ctx, a.UUID, trail[1].UUID)
	require.NoError(t, err)
	assert.Equal(t, "tester", entry.Who)
}

func TestUpdateMetaOnDerived(t *testing.T) {
	ctx := logger.WithUser(context.Background(), "alice")
	repo := newRepository(t, 0)

	a := uploadSchema(t, repo, "a.xsd", repository.UploadOptions{})
	d := derivedByName(t, repo, a.UUID)["order"]

	d.Properties.Set("reviewed", "yes")
	updated, err := repo.UpdateMeta(ctx, d)
	require.NoError(t, err)
	v, ok := updated.Properties.Get("reviewed")
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
	assert.Equal(t, "alice", updated.Audit.ModifiedBy)

	rel, ok := updated.Relationship(artifact.RelRelatedDocument)
	require.True(t, ok)
	rel.Targets = nil
	_, err = repo.UpdateMeta(ctx, updated)
	assert.Equal(t, "conflict.derived_relationship", errors.Code(err))

	fresh, err := repo.Get(ctx, d.UUID)
	require.NoError(t, err)
	fresh.Type.Type = artifact.TypeAttributeDeclaration
	_, err = repo.UpdateMeta(ctx, fresh)
	assert.Equal(t, "conflict.type_change", errors.Code(err))

	// client metadata on a derived artifact blocks the content replace
	_, err = repo.UpdateContent(ctx, a.UUID, []byte(sampleSchema), repository.UploadOptions{Wait: true})
	assert.Equal(t, "constraint.custom_property", errors.Code(err))

	trail, err := repo.AuditTrail(ctx, d.UUID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, []storage.AuditItem{{Name: "property:reviewed", Value: "yes"}}, trail[0].Items)
}

func TestUpdateMetaRevisionConflict(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)
	svc, err := repo.Create(ctx, artifact.New("Service", "svc"))
	require.NoError(t, err)

	stale := svc.Clone()
	svc.Description = "first"
	_, err = repo.UpdateMeta(ctx, svc)
	require.NoError(t, err)

	stale.Description = "second"
	_, err = repo.UpdateMeta(ctx, stale)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestUpdateContentRederives(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)
	a := uploadSchema(t, repo, "a.xsd", repository.UploadOptions{})
	before := derivedByName(t, repo, a.UUID)

	replacement := strings.Replace(sampleSchema, `name="order"`, `name="invoice"`, 1)
	updated, err := repo.UpdateContent(ctx, a.UUID, []byte(replacement), repository.UploadOptions{Wait: true})
	require.NoError(t, err)
	assert.Equal(t, int64(len(replacement)), updated.Content.Size)

	after := derivedByName(t, repo, a.UUID)
	assert.Contains(t, after, "invoice")
	assert.NotContains(t, after, "order")
	_, err = repo.Get(ctx, before["order"].UUID)
	assert.True(t, errors.IsNotFoundError(err), "the previous generation is replaced")

	require.NoError(t, repo.DeleteContent(ctx, a.UUID))
	assert.Empty(t, derivedByName(t, repo, a.UUID))
	_, _, err = repo.GetContent(ctx, a.UUID)
	assert.True(t, errors.IsNotFoundError(err))

	cleared, err := repo.Get(ctx, a.UUID)
	require.NoError(t, err)
	assert.Nil(t, cleared.Content)
	assert.Nil(t, artifact.ToRecord(cleared).Content)
	assert.True(t, errors.IsNotFoundError(repo.DeleteContent(ctx, a.UUID)), "nothing left to delete")
}

func TestRelinkAfterDependencyArrives(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)

	importing := `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:artificer:importer">
  <xs:import namespace="urn:artificer:test"/>
</xs:schema>`
	imp, err := repo.Upload(ctx, "", "importer.xsd", []byte(importing), repository.UploadOptions{Wait: true})
	require.NoError(t, err)
	rel, ok := imp.Relationship(xsd.RelImported)
	require.True(t, ok)
	assert.Empty(t, rel.Targets)

	target := uploadSchema(t, repo, "a.xsd", repository.UploadOptions{})
	n, err := repo.Relink(ctx, imp.UUID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	imp, err = repo.Get(ctx, imp.UUID)
	require.NoError(t, err)
	rel, _ = imp.Relationship(xsd.RelImported)
	assert.Equal(t, []string{target.UUID}, rel.TargetUUIDs())

	_, err = repo.Relink(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestOntologyImportClassifiesAndExports(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)

	o, err := repo.ImportOntology(ctx, strings.NewReader(colorsRDF))
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/colors", o.Base)

	svc := artifact.New("Service", "red-service")
	svc.Classifications = []string{"http://example.org/colors#Crimson"}
	_, err = repo.Create(ctx, svc)
	require.NoError(t, err)

	rs, err := repo.Execute(ctx, repository.QueryRequest{
		Query: "/s-ramp/soa/Service[s-ramp:classifiedByAnyOf(., Red)]",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Total)

	bad := artifact.New("Service", "unknown-class")
	bad.Classifications = []string{"http://example.org/colors#Green"}
	_, err = repo.Create(ctx, bad)
	assert.Error(t, err)

	var out bytes.Buffer
	require.NoError(t, repo.ExportOntology(ctx, o.UUID, &out))
	assert.Contains(t, out.String(), "Crimson")

	err = repo.DeleteOntology(ctx, o.UUID)
	assert.Equal(t, "constraint.classifier", errors.Code(err))

	list, err := repo.ListOntologies(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListByTypeName(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t, 0)
	uploadSchema(t, repo, "a.xsd", repository.UploadOptions{})
	_, err := repo.Create(ctx, artifact.New("MyThing", "custom"))
	require.NoError(t, err)

	docs, err := repo.List(ctx, artifact.TypeXsdDocument)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	all, err := repo.List(ctx, artifact.ModelXsd)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ext, err := repo.List(ctx, "MyThing")
	require.NoError(t, err)
	require.Len(t, ext, 1)
	assert.Equal(t, "custom", ext[0].Name)
}
