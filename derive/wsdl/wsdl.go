// Package wsdl derives the components of WSDL 1.1 documents: messages, port
// types, bindings, services and their SOAP extensions, plus the schema
// components of embedded schemas.
package wsdl

import (
	"bytes"
	"context"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/derive/xsd"
	"github.com/teranos/artificer/errors"
)

// SOAP binding extension namespaces
const (
	NamespaceSoap11 = "http://schemas.xmlsoap.org/wsdl/soap/"
	NamespaceSoap12 = "http://schemas.xmlsoap.org/wsdl/soap12/"
)

// Relationship names of derived WSDL artifacts
const (
	RelPart             = "part"
	RelElement          = "element"
	RelType             = "type"
	RelOperation        = "operation"
	RelInput            = "input"
	RelOutput           = "output"
	RelFault            = "fault"
	RelMessage          = "message"
	RelPortType         = "portType"
	RelBindingOperation = "bindingOperation"
	RelExtension        = "extension"
	RelBinding          = "binding"
	RelPort             = "port"
	RelImportedWsdls    = "importedWsdls"
)

var namespaces = map[string]string{
	"wsdl": derive.NamespaceWsdl,
	"xs":   derive.NamespaceXsd,
}

func mustCompile(expr string) *xpath.Expr {
	e, err := xpath.CompileWithNS(expr, namespaces)
	if err != nil {
		panic(err)
	}
	return e
}

var (
	exprDefinitions = mustCompile("/wsdl:definitions")
	exprImport      = mustCompile("wsdl:import[@namespace]")
	exprSchemas     = mustCompile("wsdl:types/xs:schema")
	exprMessages    = mustCompile("wsdl:message[@name]")
	exprParts       = mustCompile("wsdl:part")
	exprPortTypes   = mustCompile("wsdl:portType[@name]")
	exprOperations  = mustCompile("wsdl:operation")
	exprInput       = mustCompile("wsdl:input")
	exprOutput      = mustCompile("wsdl:output")
	exprFault       = mustCompile("wsdl:fault")
	exprBindings    = mustCompile("wsdl:binding[@name]")
	exprServices    = mustCompile("wsdl:service[@name]")
	exprPorts       = mustCompile("wsdl:port")
)

// Builder derives one WsdlDocument. It keeps per-document state between its two phases.
type Builder struct {
	primary *artifact.Artifact
	tns     string
	derived []*artifact.Artifact
	refs    []artifact.UnresolvedRef

	// built-in schema types referenced by parts, by local name
	xsdTypes map[string]*artifact.Artifact
	// binding operations to wire to their port type operation once port types are linked
	bindingOps []bindingOperation
}

type bindingOperation struct {
	op      *artifact.Artifact
	binding *artifact.Artifact
}

// NewBuilder returns a builder for one document
func NewBuilder() *Builder {
	return &Builder{xsdTypes: make(map[string]*artifact.Artifact)}
}

// Provider offers a builder for WsdlDocument primaries
func Provider() derive.BuilderProvider {
	return derive.TypeProvider(artifact.TypeWsdlDocument, func() derive.Builder { return NewBuilder() })
}

// BuildArtifacts implements derive.Builder
func (b *Builder) BuildArtifacts(_ context.Context, primary *artifact.Artifact, content []byte) (*derive.BuildResult, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse WSDL")
	}
	defs := xmlquery.QuerySelector(doc, exprDefinitions)
	if defs == nil {
		return nil, errors.Newf("%s is not a WSDL 1.1 document", primary.Name)
	}
	b.primary = primary
	b.tns = defs.SelectAttr("targetNamespace")
	primary.TargetNamespace = b.tns

	for _, n := range xmlquery.QuerySelectorAll(defs, exprImport) {
		b.refs = append(b.refs, artifact.UnresolvedRef{
			Source:       primary.UUID,
			Relationship: RelImportedWsdls,
			Model:        artifact.ModelWsdl,
			Type:         artifact.TypeWsdlDocument,
			Namespace:    n.SelectAttr("namespace"),
		})
	}
	schemas := xmlquery.QuerySelectorAll(defs, exprSchemas)
	embedded := make(map[string]bool, len(schemas))
	for _, schema := range schemas {
		embedded[schema.SelectAttr("targetNamespace")] = true
	}
	for _, schema := range schemas {
		b.derived = append(b.derived, xsd.Components(primary, schema)...)
		for _, ref := range xsd.References(primary.UUID, schema) {
			// references between embedded schemas are satisfied in place
			if embedded[ref.Namespace] {
				continue
			}
			b.refs = append(b.refs, ref)
		}
	}

	for _, n := range xmlquery.QuerySelectorAll(defs, exprMessages) {
		b.message(n)
	}
	for _, n := range xmlquery.QuerySelectorAll(defs, exprPortTypes) {
		b.portType(n)
	}
	for _, n := range xmlquery.QuerySelectorAll(defs, exprBindings) {
		b.binding(n)
	}
	for _, n := range xmlquery.QuerySelectorAll(defs, exprServices) {
		b.service(n)
	}

	return &derive.BuildResult{Derived: b.derived, Unresolved: b.refs}, nil
}

func (b *Builder) add(typeName string, n *xmlquery.Node) *artifact.Artifact {
	a := artifact.NewDerived(b.primary, typeName, n.SelectAttr("name"), b.tns)
	b.derived = append(b.derived, a)
	return a
}

// refer records a QName-valued attribute of n as a reference from source
func (b *Builder) refer(source *artifact.Artifact, rel string, n *xmlquery.Node, attr, model, typeName string) {
	value := n.SelectAttr(attr)
	if value == "" {
		return
	}
	ns, local := resolveQName(n, value)
	b.refs = append(b.refs, artifact.UnresolvedRef{
		Source:       source.UUID,
		Relationship: rel,
		Model:        model,
		Type:         typeName,
		Namespace:    ns,
		NCName:       local,
	})
}

func (b *Builder) message(n *xmlquery.Node) {
	msg := b.add(artifact.TypeMessage, n)
	msg.EnsureRelationship(RelPart, false)
	for _, pn := range xmlquery.QuerySelectorAll(n, exprParts) {
		part := b.add(artifact.TypePart, pn)
		msg.AddRelationship(RelPart, part.UUID)

		b.refer(part, RelElement, pn, "element", artifact.ModelXsd, artifact.TypeElementDeclaration)
		if value := pn.SelectAttr("type"); value != "" {
			ns, local := resolveQName(pn, value)
			if ns == derive.NamespaceXsd {
				part.AddRelationship(RelType, b.builtinType(local).UUID)
				continue
			}
			// simple and complex type declarations share the reference; any xsd model match serves
			b.refs = append(b.refs, artifact.UnresolvedRef{
				Source: part.UUID, Relationship: RelType, Model: artifact.ModelXsd, Namespace: ns, NCName: local,
			})
		}
	}
}

// builtinType returns the XsdType artifact standing for a built-in schema type
func (b *Builder) builtinType(local string) *artifact.Artifact {
	if t, ok := b.xsdTypes[local]; ok {
		return t
	}
	t := artifact.NewDerived(b.primary, artifact.TypeXsdType, local, derive.NamespaceXsd)
	b.xsdTypes[local] = t
	b.derived = append(b.derived, t)
	return t
}

func (b *Builder) portType(n *xmlquery.Node) {
	pt := b.add(artifact.TypePortType, n)
	pt.EnsureRelationship(RelOperation, false)
	for _, on := range xmlquery.QuerySelectorAll(n, exprOperations) {
		op := b.add(artifact.TypeOperation, on)
		pt.AddRelationship(RelOperation, op.UUID)

		if in := xmlquery.QuerySelector(on, exprInput); in != nil {
			input := b.add(artifact.TypeOperationInput, in)
			op.AddRelationship(RelInput, input.UUID)
			b.refer(input, RelMessage, in, "message", artifact.ModelWsdl, artifact.TypeMessage)
		}
		if out := xmlquery.QuerySelector(on, exprOutput); out != nil {
			output := b.add(artifact.TypeOperationOutput, out)
			op.AddRelationship(RelOutput, output.UUID)
			b.refer(output, RelMessage, out, "message", artifact.ModelWsdl, artifact.TypeMessage)
		}
		for _, fn := range xmlquery.QuerySelectorAll(on, exprFault) {
			fault := b.add(artifact.TypeFault, fn)
			op.AddRelationship(RelFault, fault.UUID)
			b.refer(fault, RelMessage, fn, "message", artifact.ModelWsdl, artifact.TypeMessage)
		}
	}
}

func (b *Builder) binding(n *xmlquery.Node) {
	binding := b.add(artifact.TypeBinding, n)
	b.refer(binding, RelPortType, n, "type", artifact.ModelWsdl, artifact.TypePortType)
	b.extensions(binding, n)

	binding.EnsureRelationship(RelBindingOperation, false)
	for _, on := range xmlquery.QuerySelectorAll(n, exprOperations) {
		op := b.add(artifact.TypeBindingOperation, on)
		binding.AddRelationship(RelBindingOperation, op.UUID)
		b.bindingOps = append(b.bindingOps, bindingOperation{op: op, binding: binding})

		if in := xmlquery.QuerySelector(on, exprInput); in != nil {
			op.AddRelationship(RelInput, b.add(artifact.TypeBindingOperationInput, in).UUID)
		}
		if out := xmlquery.QuerySelector(on, exprOutput); out != nil {
			op.AddRelationship(RelOutput, b.add(artifact.TypeBindingOperationOutput, out).UUID)
		}
		for _, fn := range xmlquery.QuerySelectorAll(on, exprFault) {
			op.AddRelationship(RelFault, b.add(artifact.TypeBindingOperationFault, fn).UUID)
		}
	}
}

func (b *Builder) service(n *xmlquery.Node) {
	svc := b.add(artifact.TypeWsdlService, n)
	svc.EnsureRelationship(RelPort, false)
	for _, pn := range xmlquery.QuerySelectorAll(n, exprPorts) {
		port := b.add(artifact.TypePort, pn)
		svc.AddRelationship(RelPort, port.UUID)
		b.refer(port, RelBinding, pn, "binding", artifact.ModelWsdl, artifact.TypeBinding)
		b.extensions(port, pn)
	}
}

// extensions derives the non-WSDL child elements of a binding or port
func (b *Builder) extensions(owner *artifact.Artifact, n *xmlquery.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || c.NamespaceURI == derive.NamespaceWsdl {
			continue
		}
		var ext *artifact.Artifact
		switch {
		case isSoap(c.NamespaceURI) && c.Data == "binding":
			ext = artifact.NewDerived(b.primary, artifact.TypeSoapBinding, "", b.tns)
			ext.SOAP.Style = c.SelectAttr("style")
			ext.SOAP.Transport = c.SelectAttr("transport")
		case isSoap(c.NamespaceURI) && c.Data == "address":
			ext = artifact.NewDerived(b.primary, artifact.TypeSoapAddress, "", b.tns)
			ext.SOAP.Location = c.SelectAttr("location")
		default:
			ext = artifact.NewDerived(b.primary, artifact.TypeWsdlExtension, c.Data, c.NamespaceURI)
		}
		ext.Name = c.Data
		b.derived = append(b.derived, ext)
		owner.AddRelationship(RelExtension, ext.UUID)
	}
}

func isSoap(ns string) bool {
	return ns == NamespaceSoap11 || ns == NamespaceSoap12
}

// BuildRelationships wires each binding operation to the same-named operation
// of its binding's port type
func (b *Builder) BuildRelationships(ctx context.Context, lc *derive.LinkContext) error {
	for _, bo := range b.bindingOps {
		name := bo.op.Identity.NCName
		if target, ok := b.portTypeOperation(lc, bo.binding, name); ok {
			bo.op.AddRelationship(RelOperation, target)
			continue
		}
		// port type lives in another document: fall back to a name lookup
		ref := artifact.UnresolvedRef{
			Source:       bo.op.UUID,
			Relationship: RelOperation,
			Model:        artifact.ModelWsdl,
			Type:         artifact.TypeOperation,
			Namespace:    b.portTypeNamespace(bo.binding),
			NCName:       name,
		}
		if err := lc.Link(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) portTypeOperation(lc *derive.LinkContext, binding *artifact.Artifact, name string) (string, bool) {
	rel, ok := binding.Relationship(RelPortType)
	if !ok {
		return "", false
	}
	for _, pt := range rel.TargetUUIDs() {
		portType, ok := lc.Artifact(pt)
		if !ok {
			continue
		}
		ops, ok := portType.Relationship(RelOperation)
		if !ok {
			continue
		}
		for _, id := range ops.TargetUUIDs() {
			if op, ok := lc.Artifact(id); ok && op.Identity.NCName == name {
				return op.UUID, true
			}
		}
	}
	return "", false
}

func (b *Builder) portTypeNamespace(binding *artifact.Artifact) string {
	for _, ref := range b.refs {
		if ref.Source == binding.UUID && ref.Relationship == RelPortType {
			return ref.Namespace
		}
	}
	return b.tns
}

// resolveQName splits a prefixed attribute value and resolves its prefix
// against the namespace declarations in scope at n
func resolveQName(n *xmlquery.Node, value string) (namespace, local string) {
	prefix, local := "", value
	if i := strings.IndexByte(value, ':'); i >= 0 {
		prefix, local = value[:i], value[i+1:]
	}
	for cur := n; cur != nil; cur = cur.Parent {
		for _, attr := range cur.Attr {
			if prefix == "" && attr.Name.Space == "" && attr.Name.Local == "xmlns" {
				return attr.Value, local
			}
			if prefix != "" && attr.Name.Space == "xmlns" && attr.Name.Local == prefix {
				return attr.Value, local
			}
		}
	}
	return "", local
}
