// Package derive turns document content into a generation of derived artifacts.
//
// A Registry holds the pluggable parts: detectors that decide the artifact type
// of uploaded content, builder providers that parse a document into derived
// artifacts, and the unpacker that expands archives. The Pipeline runs one
// derivation and persists the result atomically; the Pool runs pipelines on a
// bounded set of workers.
package derive

import (
	"bytes"
	"path"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/teranos/artificer/artifact"
)

// XML namespaces the default detector recognises
const (
	NamespaceXsd      = "http://www.w3.org/2001/XMLSchema"
	NamespaceWsdl     = "http://schemas.xmlsoap.org/wsdl/"
	NamespacePolicy   = "http://www.w3.org/ns/ws-policy"
	NamespacePolicy04 = "http://schemas.xmlsoap.org/ws/2004/09/policy"
)

// Archive types produced by the default detector. They are extended document types.
const (
	TypeZipArchive         = "ZipArchive"
	TypeJavaArchive        = "JavaArchive"
	TypeJavaWebApplication = "JavaWebApplication"
	TypeJavaEnterpriseApp  = "JavaEnterpriseApplication"
)

var zipMagic = []byte("PK\x03\x04")

// Content is a named blob handed to detectors. Name is a file name or an archive entry path.
type Content struct {
	Name  string
	Bytes []byte
}

// Detection is a detector verdict
type Detection struct {
	// Type is a built-in type name or an extended type name
	Type string
	// Archive marks container formats the pipeline may expand
	Archive bool
}

// Detector decides the artifact type of content. It returns nil when it has no opinion.
// actx is non-nil when the content is an entry of an expanded archive.
type Detector interface {
	Priority() int
	Detect(content Content, actx *ArchiveContext) *Detection
}

// DefaultDetector recognises zip containers and the XML document formats with
// built-in types. File extensions are consulted only when the bytes do not decide.
type DefaultDetector struct{}

// Priority is the lowest so that registered detectors win
func (DefaultDetector) Priority() int { return 0 }

// Detect implements Detector
func (DefaultDetector) Detect(content Content, actx *ArchiveContext) *Detection {
	ext := strings.ToLower(path.Ext(content.Name))

	if bytes.HasPrefix(content.Bytes, zipMagic) {
		return &Detection{Type: archiveType(ext), Archive: true}
	}

	if root := xmlRoot(content.Bytes); root != nil {
		switch {
		case root.NamespaceURI == NamespaceXsd && root.Data == "schema":
			return &Detection{Type: artifact.TypeXsdDocument}
		case root.NamespaceURI == NamespaceWsdl && root.Data == "definitions":
			return &Detection{Type: artifact.TypeWsdlDocument}
		case (root.NamespaceURI == NamespacePolicy || root.NamespaceURI == NamespacePolicy04) && root.Data == "Policy":
			return &Detection{Type: artifact.TypePolicyDocument}
		}
		return &Detection{Type: artifact.TypeXmlDocument}
	}

	switch ext {
	case ".xsd":
		return &Detection{Type: artifact.TypeXsdDocument}
	case ".wsdl":
		return &Detection{Type: artifact.TypeWsdlDocument}
	case ".wspolicy":
		return &Detection{Type: artifact.TypePolicyDocument}
	case ".xml":
		return &Detection{Type: artifact.TypeXmlDocument}
	}
	return nil
}

func archiveType(ext string) string {
	switch ext {
	case ".jar":
		return TypeJavaArchive
	case ".war":
		return TypeJavaWebApplication
	case ".ear":
		return TypeJavaEnterpriseApp
	}
	return TypeZipArchive
}

// xmlRoot returns the document element, or nil when b is not well-formed XML
func xmlRoot(b []byte) *xmlquery.Node {
	trimmed := bytes.TrimLeft(b, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return nil
	}
	doc, err := xmlquery.Parse(bytes.NewReader(b))
	if err != nil {
		return nil
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// Unpacker expands archive bytes into dir
type Unpacker interface {
	Unpack(content []byte, dir string) error
}

// BuilderProvider returns the builders interested in primary. Providers that do
// not handle the primary's type return nil.
type BuilderProvider interface {
	CreateBuilders(primary *artifact.Artifact, content []byte) []Builder
}

// Registry is the explicit set of detectors, builder providers and the archive unpacker
type Registry struct {
	detectors []Detector
	providers []BuilderProvider
	unpacker  Unpacker
}

// NewRegistry returns a registry holding only the DefaultDetector
func NewRegistry() *Registry {
	return &Registry{detectors: []Detector{DefaultDetector{}}}
}

// AddDetector registers d. Detectors run by priority, highest first; equal
// priorities keep registration order.
func (r *Registry) AddDetector(d Detector) {
	r.detectors = append(r.detectors, d)
	sort.SliceStable(r.detectors, func(i, j int) bool {
		return r.detectors[i].Priority() > r.detectors[j].Priority()
	})
}

// AddProvider registers a builder provider
func (r *Registry) AddProvider(p BuilderProvider) {
	r.providers = append(r.providers, p)
}

// SetUnpacker sets the archive unpacker. Without one archives are stored but not expanded.
func (r *Registry) SetUnpacker(u Unpacker) {
	r.unpacker = u
}

// Detect returns the first non-nil verdict, falling back to core/Document
func (r *Registry) Detect(content Content, actx *ArchiveContext) Detection {
	for _, d := range r.detectors {
		if det := d.Detect(content, actx); det != nil && det.Type != "" {
			return *det
		}
	}
	return Detection{Type: artifact.TypeDocument}
}

// Builders collects the builders every provider offers for primary
func (r *Registry) Builders(primary *artifact.Artifact, content []byte) []Builder {
	var out []Builder
	for _, p := range r.providers {
		out = append(out, p.CreateBuilders(primary, content)...)
	}
	return out
}
