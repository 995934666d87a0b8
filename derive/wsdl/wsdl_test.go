package wsdl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/derive/wsdl"
	"github.com/teranos/artificer/derive/xsd"
	"github.com/teranos/artificer/graph"
	testdb "github.com/teranos/artificer/internal/testing"
	"github.com/teranos/artificer/storage"
)

type env struct {
	store    *storage.SQLStore
	registry *derive.Registry
	pipeline *derive.Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	store := storage.NewSQLStore(testdb.CreateTestDB(t), logger)
	registry := derive.NewRegistry()
	registry.AddProvider(xsd.Provider())
	registry.AddProvider(wsdl.Provider())
	return &env{
		store:    store,
		registry: registry,
		pipeline: derive.NewPipeline(store, graph.NewEngine(logger), registry, t.TempDir(), logger),
	}
}

// upload persists a fixture as a primary and derives it
func (e *env) upload(t *testing.T, name string, opts derive.RunOptions) *artifact.Artifact {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)

	det := e.registry.Detect(derive.Content{Name: name, Bytes: content}, nil)
	a := artifact.NewDocument(det.Type, name)
	a.Content = derive.Describe(name, content)
	require.NoError(t, e.store.PersistArtifact(context.Background(), a, content))

	_, err = e.pipeline.Run(context.Background(), a, content, opts)
	require.NoError(t, err)
	return a
}

// index maps "Type/ncName" to the derived artifacts of primary
func (e *env) index(t *testing.T, primary *artifact.Artifact) map[string]*artifact.Artifact {
	t.Helper()
	derived, err := e.store.DerivedOf(context.Background(), primary.UUID)
	require.NoError(t, err)
	out := make(map[string]*artifact.Artifact, len(derived))
	for _, d := range derived {
		out[d.Type.Type+"/"+d.Identity.NCName] = d
	}
	return out
}

// counts tallies the derived artifacts of primary per "Type/ncName" so
// duplicates cannot hide behind index
func (e *env) counts(t *testing.T, primary *artifact.Artifact) map[string]int {
	t.Helper()
	derived, err := e.store.DerivedOf(context.Background(), primary.UUID)
	require.NoError(t, err)
	out := make(map[string]int, len(derived))
	for _, d := range derived {
		out[d.Type.Type+"/"+d.Identity.NCName]++
	}
	return out
}

func targets(t *testing.T, a *artifact.Artifact, rel string) []string {
	t.Helper()
	r, ok := a.Relationship(rel)
	require.True(t, ok, "%s has no %s relationship", a.Name, rel)
	return r.TargetUUIDs()
}

func TestSampleWsdl(t *testing.T) {
	e := newEnv(t)
	types := e.upload(t, "types.xsd", derive.RunOptions{})
	doc := e.upload(t, "sample.wsdl", derive.RunOptions{})
	assert.Equal(t, artifact.TypeWsdlDocument, doc.Type.Type)

	xsdIndex := e.index(t, types)
	idx := e.index(t, doc)

	counts := e.counts(t, doc)
	for _, key := range []string{
		"Message/findRequest", "Part/keyword", "PortType/SamplePortType",
		"Operation/find", "Binding/SampleBinding", "WsdlService/SampleService",
	} {
		assert.Equal(t, 1, counts[key], "exactly one %s", key)
	}
	assert.Equal(t, 1, e.counts(t, types)["SimpleTypeDeclaration/keywordType"])

	msg := idx["Message/findRequest"]
	require.NotNil(t, msg)
	parts := targets(t, msg, wsdl.RelPart)
	require.Len(t, parts, 1)

	part := idx["Part/keyword"]
	require.NotNil(t, part)
	assert.Equal(t, parts[0], part.UUID)
	keywordType := xsdIndex["SimpleTypeDeclaration/keywordType"]
	require.NotNil(t, keywordType)
	assert.Equal(t, []string{keywordType.UUID}, targets(t, part, wsdl.RelType))

	portType := idx["PortType/SamplePortType"]
	require.NotNil(t, portType)
	assert.Len(t, targets(t, portType, wsdl.RelOperation), 2)

	// in-document references
	result := idx["Part/result"]
	require.NotNil(t, result)
	assert.Equal(t, []string{idx["ElementDeclaration/findResponse"].UUID}, targets(t, result, wsdl.RelElement))

	find := idx["Operation/find"]
	require.NotNil(t, find)
	input := idx["OperationInput/findInput"]
	require.NotNil(t, input)
	assert.Equal(t, []string{input.UUID}, targets(t, find, wsdl.RelInput))
	assert.Equal(t, []string{msg.UUID}, targets(t, input, wsdl.RelMessage))
	assert.Len(t, targets(t, find, wsdl.RelFault), 1)

	binding := idx["Binding/SampleBinding"]
	require.NotNil(t, binding)
	assert.Equal(t, []string{portType.UUID}, targets(t, binding, wsdl.RelPortType))
	assert.Len(t, targets(t, binding, wsdl.RelBindingOperation), 2)
	soapBinding := idx["SoapBinding/"]
	require.NotNil(t, soapBinding)
	assert.Equal(t, "document", soapBinding.SOAP.Style)
	assert.Equal(t, "http://schemas.xmlsoap.org/soap/http", soapBinding.SOAP.Transport)
	assert.Equal(t, []string{soapBinding.UUID}, targets(t, binding, wsdl.RelExtension))

	bindingFind := idx["BindingOperation/find"]
	require.NotNil(t, bindingFind)
	assert.Equal(t, []string{find.UUID}, targets(t, bindingFind, wsdl.RelOperation))

	port := idx["Port/SamplePort"]
	require.NotNil(t, port)
	assert.Equal(t, []string{binding.UUID}, targets(t, port, wsdl.RelBinding))
	address := idx["SoapAddress/"]
	require.NotNil(t, address)
	assert.Equal(t, "http://localhost:8080/sample", address.SOAP.Location)
	assert.Equal(t, []string{port.UUID}, targets(t, idx["WsdlService/SampleService"], wsdl.RelPort))

	// built-in part types become XsdType artifacts
	limit := idx["Part/limit"]
	require.NotNil(t, limit)
	intType := idx["XsdType/int"]
	require.NotNil(t, intType)
	assert.Equal(t, []string{intType.UUID}, targets(t, limit, wsdl.RelType))

	// the embedded schema imports the types document
	stored, err := e.store.GetArtifact(context.Background(), doc.UUID)
	require.NoError(t, err)
	assert.Equal(t, "urn:artificer:sample", stored.TargetNamespace)
	assert.Equal(t, []string{types.UUID}, targets(t, stored, xsd.RelImported))

	pending, err := e.store.PendingRefs(context.Background(), doc.UUID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSampleWsdlBeforeSchemaRelinks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	doc := e.upload(t, "sample.wsdl", derive.RunOptions{})

	part := e.index(t, doc)["Part/keyword"]
	require.NotNil(t, part)
	assert.Empty(t, targets(t, part, wsdl.RelType), "type is unresolved until the schema arrives")

	pending, err := e.store.PendingRefs(ctx, doc.UUID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	types := e.upload(t, "types.xsd", derive.RunOptions{RelinkDependents: true})
	keywordType := e.index(t, types)["SimpleTypeDeclaration/keywordType"]
	require.NotNil(t, keywordType)

	part = e.index(t, doc)["Part/keyword"]
	assert.Equal(t, []string{keywordType.UUID}, targets(t, part, wsdl.RelType))

	pending, err = e.store.PendingRefs(ctx, doc.UUID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSchemaReplacementRelinksDependents(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	types := e.upload(t, "types.xsd", derive.RunOptions{})
	doc := e.upload(t, "sample.wsdl", derive.RunOptions{})

	// re-deriving the schema replaces keywordType; the part loses its target
	content, err := os.ReadFile(filepath.Join("testdata", "types.xsd"))
	require.NoError(t, err)
	_, err = e.pipeline.Run(ctx, types, content, derive.RunOptions{})
	require.NoError(t, err)

	part := e.index(t, doc)["Part/keyword"]
	_, ok := part.Relationship(wsdl.RelType)
	assert.False(t, ok, "emptied derived relationship is pruned")
	pending, err := e.store.PendingRefs(ctx, doc.UUID)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)

	// and picks up the new generation with relinking on
	_, err = e.pipeline.Run(ctx, types, content, derive.RunOptions{RelinkDependents: true})
	require.NoError(t, err)
	keywordType := e.index(t, types)["SimpleTypeDeclaration/keywordType"]
	part = e.index(t, doc)["Part/keyword"]
	assert.Equal(t, []string{keywordType.UUID}, targets(t, part, wsdl.RelType))
}

func TestBuildArtifactsRejectsNonWsdl(t *testing.T) {
	b := wsdl.NewBuilder()
	_, err := b.BuildArtifacts(context.Background(), artifact.New(artifact.TypeWsdlDocument, "x"), []byte("<definitions/>"))
	assert.Error(t, err)
}
