// Package xsd derives schema components from XML Schema documents.
package xsd

import (
	"bytes"
	"context"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/errors"
)

// Relationships from a schema document to the documents it references
const (
	RelImported  = "importedXsds"
	RelIncluded  = "includedXsds"
	RelRedefined = "redefinedXsds"
)

var namespaces = map[string]string{"xs": derive.NamespaceXsd}

func mustCompile(expr string) *xpath.Expr {
	e, err := xpath.CompileWithNS(expr, namespaces)
	if err != nil {
		panic(err)
	}
	return e
}

var (
	exprSchema = mustCompile("/xs:schema")

	components = []struct {
		expr     *xpath.Expr
		typeName string
	}{
		{mustCompile("xs:element[@name]"), artifact.TypeElementDeclaration},
		{mustCompile("xs:attribute[@name]"), artifact.TypeAttributeDeclaration},
		{mustCompile("xs:simpleType[@name]"), artifact.TypeSimpleTypeDeclaration},
		{mustCompile("xs:complexType[@name]"), artifact.TypeComplexTypeDeclaration},
	}

	exprImport   = mustCompile("xs:import[@namespace]")
	exprInclude  = mustCompile("xs:include")
	exprRedefine = mustCompile("xs:redefine")
)

// Components derives the global declarations of one xs:schema element.
// Declarations are qualified by the schema's target namespace.
func Components(primary *artifact.Artifact, schema *xmlquery.Node) []*artifact.Artifact {
	tns := schema.SelectAttr("targetNamespace")
	var out []*artifact.Artifact
	for _, c := range components {
		for _, n := range xmlquery.QuerySelectorAll(schema, c.expr) {
			out = append(out, artifact.NewDerived(primary, c.typeName, n.SelectAttr("name"), tns))
		}
	}
	return out
}

// References returns the document references of one xs:schema element, sourced at source
func References(source string, schema *xmlquery.Node) []artifact.UnresolvedRef {
	tns := schema.SelectAttr("targetNamespace")
	ref := func(rel, namespace string) artifact.UnresolvedRef {
		return artifact.UnresolvedRef{
			Source:       source,
			Relationship: rel,
			Model:        artifact.ModelXsd,
			Type:         artifact.TypeXsdDocument,
			Namespace:    namespace,
		}
	}

	var out []artifact.UnresolvedRef
	for _, n := range xmlquery.QuerySelectorAll(schema, exprImport) {
		out = append(out, ref(RelImported, n.SelectAttr("namespace")))
	}
	if tns == "" {
		return out
	}
	// include and redefine pull in documents of the including schema's namespace
	if len(xmlquery.QuerySelectorAll(schema, exprInclude)) > 0 {
		out = append(out, ref(RelIncluded, tns))
	}
	if len(xmlquery.QuerySelectorAll(schema, exprRedefine)) > 0 {
		out = append(out, ref(RelRedefined, tns))
	}
	return out
}

// Builder derives an XsdDocument
type Builder struct{}

// BuildArtifacts implements derive.Builder. It also sets the primary's target namespace.
func (Builder) BuildArtifacts(_ context.Context, primary *artifact.Artifact, content []byte) (*derive.BuildResult, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse schema")
	}
	schema := xmlquery.QuerySelector(doc, exprSchema)
	if schema == nil {
		return nil, errors.Newf("%s is not an XML schema", primary.Name)
	}
	primary.TargetNamespace = schema.SelectAttr("targetNamespace")

	return &derive.BuildResult{
		Derived:    Components(primary, schema),
		Unresolved: References(primary.UUID, schema),
	}, nil
}

// BuildRelationships implements derive.Builder
func (Builder) BuildRelationships(context.Context, *derive.LinkContext) error {
	return nil
}

// Provider offers the builder for XsdDocument primaries
func Provider() derive.BuilderProvider {
	return derive.TypeProvider(artifact.TypeXsdDocument, func() derive.Builder { return Builder{} })
}
