// Package xmlutil holds namespace-aware helpers over antchfx/xmlquery trees.
package xmlutil

import (
	"bytes"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/teranos/artificer/errors"
)

// Well-known namespaces
const (
	NSXsd    = "http://www.w3.org/2001/XMLSchema"
	NSWsdl   = "http://schemas.xmlsoap.org/wsdl/"
	NSSoap   = "http://schemas.xmlsoap.org/wsdl/soap/"
	NSSoap12 = "http://schemas.xmlsoap.org/wsdl/soap12/"
	NSPolicy = "http://schemas.xmlsoap.org/ws/2004/09/policy"
	NSWsp15  = "http://www.w3.org/ns/ws-policy"
	NSRdf    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRdfs   = "http://www.w3.org/2000/01/rdf-schema#"
	NSOwl    = "http://www.w3.org/2002/07/owl#"
	NSXml    = "http://www.w3.org/XML/1998/namespace"
)

// Prefixes bound while compiling expressions passed to Select
var Prefixes = map[string]string{
	"xsd":    NSXsd,
	"wsdl":   NSWsdl,
	"soap":   NSSoap,
	"soap12": NSSoap12,
	"wsp":    NSPolicy,
	"rdf":    NSRdf,
	"rdfs":   NSRdfs,
	"owl":    NSOwl,
}

var (
	exprCache = map[string]*xpath.Expr{}
	exprMu    sync.RWMutex
)

// Parse parses an XML document, namespace aware.
func Parse(content []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse xml")
	}
	return doc, nil
}

// Root returns the document element
func Root(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

func compile(expr string) (*xpath.Expr, error) {
	exprMu.RLock()
	e, ok := exprCache[expr]
	exprMu.RUnlock()
	if ok {
		return e, nil
	}
	e, err := xpath.CompileWithNS(expr, Prefixes)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid xpath %q", expr)
	}
	exprMu.Lock()
	exprCache[expr] = e
	exprMu.Unlock()
	return e, nil
}

// Select evaluates expr relative to n, with the prefixes in Prefixes bound.
// Prefixes in expr are matched by namespace URI, not by the document's own prefixes.
func Select(n *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	e, err := compile(expr)
	if err != nil {
		return nil, err
	}
	return xmlquery.QuerySelectorAll(n, e), nil
}

// MustSelect is Select for constant expressions
func MustSelect(n *xmlquery.Node, expr string) []*xmlquery.Node {
	nodes, err := Select(n, expr)
	if err != nil {
		panic(err)
	}
	return nodes
}

// Is reports whether n is the element {ns}local
func Is(n *xmlquery.Node, ns, local string) bool {
	return n != nil && n.Type == xmlquery.ElementNode && n.Data == local && n.NamespaceURI == ns
}

// Children returns the direct child elements {ns}local in document order
func Children(n *xmlquery.Node, ns, local string) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if Is(c, ns, local) {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the first direct child element {ns}local, or nil
func Child(n *xmlquery.Node, ns, local string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if Is(c, ns, local) {
			return c
		}
	}
	return nil
}

// Attr returns the value of an unqualified attribute
func Attr(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

// AttrNS returns the value of the attribute {ns}local
func AttrNS(n *xmlquery.Node, ns, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local && (a.NamespaceURI == ns || a.Name.Space == ns) {
			return a.Value
		}
	}
	return ""
}

// Text returns the trimmed text content of n
func Text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

// LookupNamespace resolves prefix against the xmlns declarations in scope at n.
// The empty prefix resolves the default namespace.
func LookupNamespace(n *xmlquery.Node, prefix string) (string, bool) {
	for cur := n; cur != nil; cur = cur.Parent {
		for _, a := range cur.Attr {
			if prefix == "" && a.Name.Space == "" && a.Name.Local == "xmlns" {
				return a.Value, true
			}
			if prefix != "" && a.Name.Space == "xmlns" && a.Name.Local == prefix {
				return a.Value, true
			}
		}
	}
	return "", false
}

// QName is a resolved qualified name
type QName struct {
	Namespace string
	Local     string
}

func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// ResolveQName resolves a "prefix:local" attribute value in the scope of n.
// Unprefixed values take the default namespace, if one is declared.
func ResolveQName(n *xmlquery.Node, value string) QName {
	value = strings.TrimSpace(value)
	prefix, local := "", value
	if i := strings.IndexByte(value, ':'); i >= 0 {
		prefix, local = value[:i], value[i+1:]
	}
	ns, _ := LookupNamespace(n, prefix)
	return QName{Namespace: ns, Local: local}
}
