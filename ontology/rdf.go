package ontology

import (
	"io"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/internal/xmlutil"
)

// Decode reads an ontology from OWL RDF/XML:
//
//	<rdf:RDF xml:base="http://example.org/colors">
//	  <owl:Ontology rdf:ID="Colors"><rdfs:label>Colors</rdfs:label></owl:Ontology>
//	  <owl:Class rdf:ID="Red"/>
//	  <owl:Class rdf:ID="Crimson"><rdfs:subClassOf rdf:resource="http://example.org/colors#Red"/></owl:Class>
//	</rdf:RDF>
func Decode(r io.Reader) (*Ontology, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ontology")
	}
	doc, err := xmlutil.Parse(content)
	if err != nil {
		return nil, errors.NewInvalidRequestError("ontology is not well-formed xml: %v", err)
	}
	root := xmlutil.Root(doc)
	if !xmlutil.Is(root, xmlutil.NSRdf, "RDF") {
		return nil, errors.NewInvalidRequestError("ontology root must be rdf:RDF")
	}

	o := &Ontology{Base: xmlutil.AttrNS(root, xmlutil.NSXml, "base")}
	if od := xmlutil.Child(root, xmlutil.NSOwl, "Ontology"); od != nil {
		o.ID = xmlutil.AttrNS(od, xmlutil.NSRdf, "ID")
		o.Label = xmlutil.Text(xmlutil.Child(od, xmlutil.NSRdfs, "label"))
		o.Comment = xmlutil.Text(xmlutil.Child(od, xmlutil.NSRdfs, "comment"))
		if o.Base == "" {
			if about := xmlutil.AttrNS(od, xmlutil.NSRdf, "about"); about != "" {
				o.Base = strings.TrimSuffix(about, "#")
			}
		}
	}
	if o.Base == "" {
		return nil, errors.NewInvalidRequestError("ontology has no xml:base")
	}

	type pending struct {
		class  *Class
		parent string
	}
	var classes []pending
	byURI := map[string]*Class{}
	for _, n := range xmlutil.Children(root, xmlutil.NSOwl, "Class") {
		id := xmlutil.AttrNS(n, xmlutil.NSRdf, "ID")
		if id == "" {
			about := xmlutil.AttrNS(n, xmlutil.NSRdf, "about")
			if i := strings.LastIndexByte(about, '#'); i >= 0 {
				id = about[i+1:]
			}
		}
		c := o.NewClass(id, xmlutil.Text(xmlutil.Child(n, xmlutil.NSRdfs, "label")))
		c.Comment = xmlutil.Text(xmlutil.Child(n, xmlutil.NSRdfs, "comment"))
		parent := ""
		if sub := xmlutil.Child(n, xmlutil.NSRdfs, "subClassOf"); sub != nil {
			parent = xmlutil.AttrNS(sub, xmlutil.NSRdf, "resource")
		}
		classes = append(classes, pending{class: c, parent: parent})
		byURI[c.URI] = c
	}

	for _, p := range classes {
		if p.parent == "" {
			o.Classes = append(o.Classes, p.class)
			continue
		}
		parent, ok := byURI[p.parent]
		if !ok {
			return nil, errors.NewInvalidRequestError("class %q has unknown parent %q", p.class.ID, p.parent)
		}
		p.class.Parent = parent
		parent.Children = append(parent.Children, p.class)
	}

	// Every class must be reachable from a root; otherwise subClassOf forms a cycle
	reachable := 0
	o.Walk(func(*Class) bool { reachable++; return true })
	if reachable != len(classes) {
		return nil, errors.NewInvalidRequestError("ontology subClassOf hierarchy contains a cycle")
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func element(prefix, local string) *xmlquery.Node {
	return &xmlquery.Node{Type: xmlquery.ElementNode, Prefix: prefix, Data: local}
}

func textElement(prefix, local, text string) *xmlquery.Node {
	n := element(prefix, local)
	xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
	return n
}

// Encode writes o as OWL RDF/XML readable by Decode.
func Encode(w io.Writer, o *Ontology) error {
	root := element("rdf", "RDF")
	xmlquery.AddAttr(root, "xmlns:rdf", xmlutil.NSRdf)
	xmlquery.AddAttr(root, "xmlns:rdfs", xmlutil.NSRdfs)
	xmlquery.AddAttr(root, "xmlns:owl", xmlutil.NSOwl)
	xmlquery.AddAttr(root, "xml:base", o.Base)

	od := element("owl", "Ontology")
	if o.ID != "" {
		xmlquery.AddAttr(od, "rdf:ID", o.ID)
	}
	if o.Label != "" {
		xmlquery.AddChild(od, textElement("rdfs", "label", o.Label))
	}
	if o.Comment != "" {
		xmlquery.AddChild(od, textElement("rdfs", "comment", o.Comment))
	}
	xmlquery.AddChild(root, od)

	o.Walk(func(c *Class) bool {
		n := element("owl", "Class")
		xmlquery.AddAttr(n, "rdf:ID", c.ID)
		if c.Label != "" {
			xmlquery.AddChild(n, textElement("rdfs", "label", c.Label))
		}
		if c.Comment != "" {
			xmlquery.AddChild(n, textElement("rdfs", "comment", c.Comment))
		}
		if c.Parent != nil {
			sub := element("rdfs", "subClassOf")
			xmlquery.AddAttr(sub, "rdf:resource", c.Parent.URI)
			xmlquery.AddChild(n, sub)
		}
		xmlquery.AddChild(root, n)
		return true
	})

	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"); err != nil {
		return errors.Wrap(err, "failed to write ontology")
	}
	if _, err := io.WriteString(w, root.OutputXML(true)); err != nil {
		return errors.Wrap(err, "failed to write ontology")
	}
	return nil
}
