package artifact

import (
	"strings"

	"github.com/teranos/artificer/errors"
)

// Property is one custom property
type Property struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Properties is an ordered name to value map. Names are case-sensitive and unique.
type Properties []Property

// Get returns the value of name
func (p Properties) Get(name string) (string, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return "", false
}

// Set replaces the value of name in place, or appends it
func (p *Properties) Set(name, value string) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Property{Name: name, Value: value})
}

// Delete removes name, keeping the order of the rest
func (p *Properties) Delete(name string) {
	out := (*p)[:0]
	for _, prop := range *p {
		if prop.Name != name {
			out = append(out, prop)
		}
	}
	*p = out
}

// Names returns property names in order
func (p Properties) Names() []string {
	out := make([]string, len(p))
	for i, prop := range p {
		out[i] = prop.Name
	}
	return out
}

// Validate rejects empty, duplicate, and core-shadowing names
func (p Properties) Validate() error {
	seen := make(map[string]bool, len(p))
	for _, prop := range p {
		if strings.TrimSpace(prop.Name) == "" {
			return errors.NewInvalidRequestError("property name must not be empty")
		}
		if seen[prop.Name] {
			return errors.NewInvalidRequestError("duplicate property %q", prop.Name)
		}
		if IsCoreProperty(prop.Name) {
			return errors.NewInvalidRequestError("property %q shadows a core property", prop.Name)
		}
		seen[prop.Name] = true
	}
	return nil
}
