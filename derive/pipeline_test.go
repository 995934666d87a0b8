package derive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/derive/archive"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/graph"
	testdb "github.com/teranos/artificer/internal/testing"
	"github.com/teranos/artificer/storage"
)

type env struct {
	store    *storage.SQLStore
	engine   *graph.Engine
	registry *derive.Registry
	pipeline *derive.Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	store := storage.NewSQLStore(testdb.CreateTestDB(t), logger)
	engine := graph.NewEngine(logger)
	registry := derive.NewRegistry()
	return &env{
		store:    store,
		engine:   engine,
		registry: registry,
		pipeline: derive.NewPipeline(store, engine, registry, t.TempDir(), logger),
	}
}

func (e *env) upload(t *testing.T, name string, content []byte) *artifact.Artifact {
	t.Helper()
	det := e.registry.Detect(derive.Content{Name: name, Bytes: content}, nil)
	a := artifact.NewDocument(det.Type, name)
	a.Content = derive.Describe(name, content)
	require.NoError(t, e.store.PersistArtifact(context.Background(), a, content))
	return a
}

// elementBuilder derives one ElementDeclaration per line of content
func elementBuilder(fail error) derive.Builder {
	return derive.BuilderFunc(func(_ context.Context, primary *artifact.Artifact, content []byte) (*derive.BuildResult, error) {
		if fail != nil {
			return nil, fail
		}
		var out []*artifact.Artifact
		for _, line := range bytes.Split(bytes.TrimSpace(content), []byte("\n")) {
			out = append(out, artifact.NewDerived(primary, artifact.TypeElementDeclaration, string(line), "urn:lines"))
		}
		return &derive.BuildResult{Derived: out}, nil
	})
}

func TestRunPersistsGeneration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeDocument, func() derive.Builder { return elementBuilder(nil) }))

	doc := e.upload(t, "lines.txt", []byte("alpha\nbeta"))
	res, err := e.pipeline.Run(ctx, doc, []byte("alpha\nbeta"), derive.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Derived)

	derived, err := e.store.DerivedOf(ctx, doc.UUID)
	require.NoError(t, err)
	require.Len(t, derived, 2)
	for _, d := range derived {
		assert.True(t, d.IsDerived())
		assert.Equal(t, doc.UUID, d.RelatedDocument)
		rel, ok := d.Relationship(artifact.RelRelatedDocument)
		require.True(t, ok)
		assert.Equal(t, []string{doc.UUID}, rel.TargetUUIDs())
	}
}

func TestRunReplacesPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeDocument, func() derive.Builder { return elementBuilder(nil) }))

	doc := e.upload(t, "lines.txt", []byte("alpha\nbeta"))
	_, err := e.pipeline.Run(ctx, doc, []byte("alpha\nbeta"), derive.RunOptions{})
	require.NoError(t, err)
	_, err = e.pipeline.Run(ctx, doc, []byte("gamma"), derive.RunOptions{})
	require.NoError(t, err)

	derived, err := e.store.DerivedOf(ctx, doc.UUID)
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, "gamma", derived[0].Name)
}

func TestRunBuilderFailureIsAtomic(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	var fail error
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeDocument, func() derive.Builder { return elementBuilder(fail) }))

	doc := e.upload(t, "lines.txt", []byte("alpha"))
	_, err := e.pipeline.Run(ctx, doc, []byte("alpha"), derive.RunOptions{})
	require.NoError(t, err)

	fail = errors.New("unexpected token")
	_, err = e.pipeline.Run(ctx, doc, []byte("beta"), derive.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.KindDerivation, errors.KindOf(err))

	// previous generation and the primary are untouched
	derived, err := e.store.DerivedOf(ctx, doc.UUID)
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, "alpha", derived[0].Name)
	ok, err := e.store.Exists(ctx, doc.UUID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunRejectsNonDerivedOutput(t *testing.T) {
	e := newEnv(t)
	e.registry.AddProvider(derive.ProviderFunc(func(*artifact.Artifact, []byte) []derive.Builder {
		return []derive.Builder{derive.BuilderFunc(func(context.Context, *artifact.Artifact, []byte) (*derive.BuildResult, error) {
			return &derive.BuildResult{Derived: []*artifact.Artifact{artifact.New("Service", "svc")}}, nil
		})}
	}))

	doc := e.upload(t, "x.txt", []byte("x"))
	_, err := e.pipeline.Run(context.Background(), doc, []byte("x"), derive.RunOptions{})
	assert.Equal(t, errors.KindDerivation, errors.KindOf(err))
}

func TestRunBlockedByRelationshipIntoOldGeneration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeDocument, func() derive.Builder { return elementBuilder(nil) }))

	doc := e.upload(t, "lines.txt", []byte("alpha"))
	_, err := e.pipeline.Run(ctx, doc, []byte("alpha"), derive.RunOptions{})
	require.NoError(t, err)
	derived, err := e.store.DerivedOf(ctx, doc.UUID)
	require.NoError(t, err)

	svc := artifact.New("Service", "consumer")
	svc.Relationships = []artifact.Relationship{{Name: "uses", Generic: true, Targets: []artifact.Target{{UUID: derived[0].UUID}}}}
	require.NoError(t, e.store.PersistArtifact(ctx, svc, nil))

	_, err = e.pipeline.Run(ctx, doc, []byte("beta"), derive.RunOptions{})
	assert.Equal(t, "constraint.relationship", errors.Code(err))
}

func TestRunLinksWithinGenerationAndRecordsUnresolved(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.registry.AddProvider(derive.ProviderFunc(func(*artifact.Artifact, []byte) []derive.Builder {
		return []derive.Builder{derive.BuilderFunc(func(_ context.Context, primary *artifact.Artifact, _ []byte) (*derive.BuildResult, error) {
			el := artifact.NewDerived(primary, artifact.TypeElementDeclaration, "order", "urn:a")
			ct := artifact.NewDerived(primary, artifact.TypeComplexTypeDeclaration, "orderType", "urn:a")
			return &derive.BuildResult{
				Derived: []*artifact.Artifact{el, ct},
				Unresolved: []artifact.UnresolvedRef{
					{Source: el.UUID, Relationship: "type", Model: artifact.ModelXsd, Namespace: "urn:a", NCName: "orderType"},
					{Source: el.UUID, Relationship: "substitutes", Namespace: "urn:b", NCName: "missing"},
				},
			}, nil
		})}
	}))

	doc := e.upload(t, "a.txt", []byte("x"))
	res, err := e.pipeline.Run(ctx, doc, []byte("x"), derive.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unresolved)

	derived, err := e.store.DerivedOf(ctx, doc.UUID)
	require.NoError(t, err)
	var el, ct *artifact.Artifact
	for _, d := range derived {
		switch d.Name {
		case "order":
			el = d
		case "orderType":
			ct = d
		}
	}
	require.NotNil(t, el)
	require.NotNil(t, ct)

	typ, ok := el.Relationship("type")
	require.True(t, ok)
	assert.Equal(t, []string{ct.UUID}, typ.TargetUUIDs())

	missing, ok := el.Relationship("substitutes")
	require.True(t, ok, "unresolved reference leaves an empty relationship")
	assert.Empty(t, missing.Targets)

	pending, err := e.store.PendingRefs(ctx, doc.UUID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "missing", pending[0].NCName)
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRunExpandsArchive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.registry.SetUnpacker(archive.NewZip())
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeXmlDocument, func() derive.Builder {
		return derive.BuilderFunc(func(_ context.Context, primary *artifact.Artifact, _ []byte) (*derive.BuildResult, error) {
			return &derive.BuildResult{Derived: []*artifact.Artifact{
				artifact.NewDerived(primary, artifact.TypeElementDeclaration, "root", ""),
			}}, nil
		})
	}))

	content := buildZip(t, map[string]string{
		"META-INF/order.xml": "<order/>",
		"readme.txt":         "hello",
	})
	zipDoc := e.upload(t, "bundle.zip", content)
	assert.Equal(t, artifact.TypeExtendedDocument, zipDoc.Type.Type)
	assert.Equal(t, derive.TypeZipArchive, zipDoc.Type.ExtendedType)

	res, err := e.pipeline.Run(ctx, zipDoc, content, derive.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Derived)

	entries, err := e.store.DerivedOf(ctx, zipDoc.UUID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var xmlEntry *artifact.Artifact
	for _, entry := range entries {
		assert.True(t, entry.IsDerived())
		rel, ok := entry.Relationship(artifact.RelExpandedFrom)
		require.True(t, ok)
		assert.Equal(t, []string{zipDoc.UUID}, rel.TargetUUIDs())
		if entry.Type.Type == artifact.TypeXmlDocument {
			xmlEntry = entry
			assert.Equal(t, "META-INF/order.xml", rel.Attributes[derive.PathAttribute])
		}
	}
	require.NotNil(t, xmlEntry)

	b, err := e.store.GetContent(ctx, xmlEntry.UUID)
	require.NoError(t, err)
	assert.Equal(t, "<order/>", string(b))

	// the entry's own derivations hang below the entry
	nested, err := e.store.DerivedOf(ctx, xmlEntry.UUID)
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, "root", nested[0].Name)

	// re-deriving the archive replaces the whole subtree
	_, err = e.pipeline.Run(ctx, zipDoc, content, derive.RunOptions{})
	require.NoError(t, err)
	ok, err := e.store.Exists(ctx, xmlEntry.UUID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunWithoutUnpackerKeepsArchiveOpaque(t *testing.T) {
	e := newEnv(t)
	content := buildZip(t, map[string]string{"a.xml": "<a/>"})
	doc := e.upload(t, "bundle.zip", content)

	res, err := e.pipeline.Run(context.Background(), doc, content, derive.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Derived)
}
