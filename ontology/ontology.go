// Package ontology implements hierarchical classification trees used to tag artifacts.
//
// An Ontology is built with AddRoot/AddChild and becomes read-only on the first
// lookup: lookups memoize into per-instance indexes, so edits after that point are
// rejected and the caller must load a fresh instance.
package ontology

import (
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
)

// ErrFrozen is returned when editing an ontology that has already served lookups
var ErrFrozen = errors.New("ontology is read-only after first lookup")

// Class is one node of the classification forest
type Class struct {
	ID       string
	Label    string
	Comment  string
	URI      string
	Parent   *Class
	Children []*Class
}

// Ontology is a classification forest rooted at Classes
type Ontology struct {
	UUID    string
	ID      string
	Label   string
	Comment string
	Base    string
	Audit   artifact.Audit
	Classes []*Class

	frozen atomic.Bool
	mu     sync.RWMutex
	byID   map[string]*Class
	byURI  map[string]*Class
}

// New returns an empty ontology rooted at base
func New(base, id, label string) *Ontology {
	return &Ontology{Base: base, ID: id, Label: label}
}

// ClassURI returns the URI a class with id gets in this ontology
func (o *Ontology) ClassURI(id string) string {
	return o.Base + "#" + id
}

// NewClass creates a detached class whose URI derives from the ontology base
func (o *Ontology) NewClass(id, label string) *Class {
	return &Class{ID: id, Label: label, URI: o.ClassURI(id)}
}

// AddRoot appends a top-level class
func (o *Ontology) AddRoot(c *Class) error {
	if o.frozen.Load() {
		return ErrFrozen
	}
	c.Parent = nil
	o.Classes = append(o.Classes, c)
	return nil
}

// AddChild appends child under parent
func (o *Ontology) AddChild(parent, child *Class) error {
	if o.frozen.Load() {
		return ErrFrozen
	}
	child.Parent = parent
	parent.Children = append(parent.Children, child)
	return nil
}

// Frozen reports whether the ontology has served a lookup
func (o *Ontology) Frozen() bool {
	return o.frozen.Load()
}

// Walk visits every class depth-first in document order.
// Returning false from fn stops the walk.
func (o *Ontology) Walk(fn func(*Class) bool) {
	var visit func([]*Class) bool
	visit = func(classes []*Class) bool {
		for _, c := range classes {
			if !fn(c) {
				return false
			}
			if !visit(c.Children) {
				return false
			}
		}
		return true
	}
	visit(o.Classes)
}

// FindClass returns the class with the given id, or nil.
func (o *Ontology) FindClass(id string) *Class {
	return o.find(id, func(c *Class) string { return c.ID }, &o.byID)
}

// FindClassByURI returns the class with the given URI, or nil.
func (o *Ontology) FindClassByURI(uri string) *Class {
	return o.find(uri, func(c *Class) string { return c.URI }, &o.byURI)
}

// find memoizes DFS results in index. Two goroutines may both miss and search;
// they store the same pointer, so the duplicate work is harmless.
func (o *Ontology) find(key string, keyOf func(*Class) string, index *map[string]*Class) *Class {
	o.frozen.Store(true)

	o.mu.RLock()
	if *index != nil {
		if c, ok := (*index)[key]; ok {
			o.mu.RUnlock()
			return c
		}
	}
	o.mu.RUnlock()

	var found *Class
	o.Walk(func(c *Class) bool {
		if keyOf(c) == key {
			found = c
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}

	o.mu.Lock()
	if *index == nil {
		*index = make(map[string]*Class)
	}
	(*index)[key] = found
	o.mu.Unlock()
	return found
}

// Normalize returns the URI of c followed by the URIs of all its ancestors.
func Normalize(c *Class) []string {
	var out []string
	for cur := c; cur != nil; cur = cur.Parent {
		out = append(out, cur.URI)
	}
	return out
}

// Validate checks that the base, the id and every class id are well-formed URIs and
// that class ids and URIs are unique.
func (o *Ontology) Validate() error {
	base, err := url.Parse(o.Base)
	if err != nil || !base.IsAbs() || base.Fragment != "" {
		return errors.NewInvalidRequestError("ontology base %q is not an absolute URI without fragment", o.Base)
	}
	if o.ID != "" && !isURIReference(o.ID) {
		return errors.NewInvalidRequestError("ontology id %q is not a valid URI", o.ID)
	}

	ids := map[string]bool{}
	uris := map[string]bool{}
	var verr error
	o.Walk(func(c *Class) bool {
		switch {
		case c.ID == "" || !isURIReference(c.ID):
			verr = errors.NewInvalidRequestError("class id %q is not a valid URI", c.ID)
		case ids[c.ID]:
			verr = errors.NewConflict("duplicate_class", c.ID, "class id is not unique in ontology")
		case c.URI == "":
			verr = errors.NewInvalidRequestError("class %q has no URI", c.ID)
		case uris[c.URI]:
			verr = errors.NewConflict("duplicate_class_uri", c.URI, "class URI is not unique in ontology")
		}
		if verr != nil {
			return false
		}
		if _, err := url.Parse(c.URI); err != nil {
			verr = errors.NewInvalidRequestError("class URI %q is not a valid URI", c.URI)
			return false
		}
		ids[c.ID] = true
		uris[c.URI] = true
		return true
	})
	return verr
}

func isURIReference(s string) bool {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 || strings.ContainsAny(s, "#<>\"{}|\\^`") {
		return false
	}
	_, err := url.Parse(s)
	return err == nil
}

// Copy returns an unfrozen deep copy suitable for editing
func (o *Ontology) Copy() *Ontology {
	c := &Ontology{
		UUID:    o.UUID,
		ID:      o.ID,
		Label:   o.Label,
		Comment: o.Comment,
		Base:    o.Base,
		Audit:   o.Audit,
	}
	var clone func(src *Class, parent *Class) *Class
	clone = func(src *Class, parent *Class) *Class {
		n := &Class{ID: src.ID, Label: src.Label, Comment: src.Comment, URI: src.URI, Parent: parent}
		for _, ch := range src.Children {
			n.Children = append(n.Children, clone(ch, n))
		}
		return n
	}
	for _, root := range o.Classes {
		c.Classes = append(c.Classes, clone(root, nil))
	}
	return c
}
