package ontology

import (
	"sync"

	"github.com/teranos/artificer/errors"
)

// Set resolves classification URIs across all loaded ontologies.
type Set struct {
	mu         sync.RWMutex
	ontologies map[string]*Ontology // by uuid
}

// NewSet returns a set over the given ontologies
func NewSet(onts ...*Ontology) *Set {
	s := &Set{ontologies: make(map[string]*Ontology, len(onts))}
	for _, o := range onts {
		s.ontologies[o.UUID] = o
	}
	return s
}

// Put adds or replaces an ontology. Replaced instances are dropped, never edited.
func (s *Set) Put(o *Ontology) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ontologies[o.UUID] = o
}

// Remove drops the ontology with uuid
func (s *Set) Remove(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ontologies, uuid)
}

// Find returns the class with the given URI and its ontology
func (s *Set) Find(uri string) (*Class, *Ontology) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.ontologies {
		if c := o.FindClassByURI(uri); c != nil {
			return c, o
		}
	}
	return nil, nil
}

// Normalize returns the is-a closure of uri: the class URI and all ancestors.
// Unknown URIs are rejected.
func (s *Set) Normalize(uri string) ([]string, error) {
	c, _ := s.Find(uri)
	if c == nil {
		return nil, errors.NewInvalidRequestError("classification %q is not a class of any ontology", uri)
	}
	return Normalize(c), nil
}

// NormalizeAll returns the union of the closures of uris, without duplicates,
// in first-seen order.
func (s *Set) NormalizeAll(uris []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, u := range uris {
		closure, err := s.Normalize(u)
		if err != nil {
			return nil, err
		}
		for _, c := range closure {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// Resolve maps a class reference, either a URI or a bare class id, to its URI.
func (s *Set) Resolve(ref string) (string, bool) {
	if c, _ := s.Find(ref); c != nil {
		return c.URI, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.ontologies {
		if c := o.FindClass(ref); c != nil {
			return c.URI, true
		}
	}
	return "", false
}

// Len returns the number of loaded ontologies
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ontologies)
}
