// Package artifact defines the artifact model shared by the store, the query
// compiler, the derivation pipeline and the graph engine.
package artifact

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/artificer/errors"
)

// Relationship names with fixed meaning
const (
	RelRelatedDocument = "relatedDocument"
	RelExpandedFrom    = "expandedFromDocument"
)

// Descriptor is the per-artifact type descriptor
type Descriptor struct {
	Model        string `json:"model" yaml:"model"`
	Type         string `json:"type" yaml:"type"`
	Derived      bool   `json:"derived" yaml:"derived"`
	ExtendedType string `json:"extendedType,omitempty" yaml:"extendedType,omitempty"`
}

// Info returns the static table entry for the descriptor.
func (d Descriptor) Info() TypeInfo {
	if t, ok := LookupTypeInModel(d.Model, d.Type); ok {
		return t
	}
	return TypeInfo{Model: d.Model, Type: d.Type, Derived: d.Derived}
}

// QueryName is the name a query location path uses for the type.
func (d Descriptor) QueryName() string {
	if d.ExtendedType != "" {
		return d.ExtendedType
	}
	return d.Type
}

// Audit holds creation and modification stamps
type Audit struct {
	CreatedBy  string    `json:"createdBy" yaml:"createdBy"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt"`
	ModifiedBy string    `json:"modifiedBy" yaml:"modifiedBy"`
	ModifiedAt time.Time `json:"modifiedAt" yaml:"modifiedAt"`
}

// Content describes stored document bytes
type Content struct {
	Type     string `json:"type" yaml:"type"`
	Size     int64  `json:"size" yaml:"size"`
	Encoding string `json:"encoding" yaml:"encoding"`
	Hash     string `json:"-" yaml:"-"`
}

// NamedIdentity is the qualified name of a derived schema component
type NamedIdentity struct {
	NCName    string
	Namespace string
}

// SOAP holds the SOAP extension attributes of derived WSDL artifacts
type SOAP struct {
	Style     string
	Transport string
	Location  string
}

// Target is one member of a relationship's ordered target set
type Target struct {
	UUID       string
	Attributes map[string]string
}

// Relationship is a named, directed edge to an ordered set of targets.
// Generic relationships are client-managed; the rest are owned by derivation.
type Relationship struct {
	Name       string
	Generic    bool
	Targets    []Target
	Attributes map[string]string
}

// TargetUUIDs returns the target uuids in order
func (r Relationship) TargetUUIDs() []string {
	out := make([]string, len(r.Targets))
	for i, t := range r.Targets {
		out[i] = t.UUID
	}
	return out
}

// AddTarget appends uuid unless it is already a target
func (r *Relationship) AddTarget(id string) {
	for _, t := range r.Targets {
		if t.UUID == id {
			return
		}
	}
	r.Targets = append(r.Targets, Target{UUID: id})
}

// Artifact is a stored unit of metadata.
// Which optional parts are meaningful depends on Kind; see Has.
type Artifact struct {
	UUID        string
	Name        string
	Description string
	Version     string
	Type        Descriptor
	Audit       Audit

	Content *Content

	Identity        NamedIdentity
	TargetNamespace string
	SOAP            SOAP

	Properties      Properties
	Classifications []string
	Relationships   []Relationship

	// RelatedDocument is the primary a derived artifact was produced from
	RelatedDocument string

	// Revision is bumped by the store on every write. A non-zero Revision on an
	// update must match the stored one.
	Revision int64
}

// UnresolvedRef is a name-based cross-reference a builder could not map to a uuid.
// Model and Type narrow the lookup when set.
type UnresolvedRef struct {
	Source       string
	Relationship string
	Model        string
	Type         string
	Namespace    string
	NCName       string
}

// New returns an artifact of the named type with a fresh uuid.
func New(typeName, name string) *Artifact {
	info, ext := ResolveType(typeName, false)
	return &Artifact{
		UUID: uuid.NewString(),
		Name: name,
		Type: Descriptor{Model: info.Model, Type: info.Type, Derived: info.Derived, ExtendedType: ext},
	}
}

// NewDocument is New for content-bearing artifacts: an unknown type name becomes
// an ExtendedDocument rather than an ExtendedArtifactType.
func NewDocument(typeName, name string) *Artifact {
	info, ext := ResolveType(typeName, true)
	return &Artifact{
		UUID: uuid.NewString(),
		Name: name,
		Type: Descriptor{Model: info.Model, Type: info.Type, Derived: info.Derived, ExtendedType: ext},
	}
}

// NewDerived returns a derived artifact of a built-in derived type tied to primary.
func NewDerived(primary *Artifact, typeName, ncName, namespace string) *Artifact {
	info, _ := LookupType(typeName)
	return &Artifact{
		UUID:            uuid.NewString(),
		Name:            ncName,
		Type:            Descriptor{Model: info.Model, Type: info.Type, Derived: true},
		Identity:        NamedIdentity{NCName: ncName, Namespace: namespace},
		RelatedDocument: primary.UUID,
	}
}

// Kind returns the artifact's category
func (a *Artifact) Kind() Kind {
	return a.Type.Info().Kind()
}

// Has reports whether the artifact's kind carries capability c
func (a *Artifact) Has(c Capability) bool {
	return a.Kind().Capabilities()&c == c
}

// IsDerived reports whether the artifact was produced by derivation
func (a *Artifact) IsDerived() bool {
	return a.Type.Derived
}

// Relationship returns the named relationship, if present
func (a *Artifact) Relationship(name string) (*Relationship, bool) {
	for i := range a.Relationships {
		if a.Relationships[i].Name == name {
			return &a.Relationships[i], true
		}
	}
	return nil, false
}

// EnsureRelationship returns the named relationship, creating an empty one if needed
func (a *Artifact) EnsureRelationship(name string, generic bool) *Relationship {
	if r, ok := a.Relationship(name); ok {
		return r
	}
	a.Relationships = append(a.Relationships, Relationship{Name: name, Generic: generic})
	return &a.Relationships[len(a.Relationships)-1]
}

// AddRelationship appends target to the named derived relationship
func (a *Artifact) AddRelationship(name, target string) {
	a.EnsureRelationship(name, false).AddTarget(target)
}

// GenericRelationships returns the client-managed relationships
func (a *Artifact) GenericRelationships() []Relationship {
	var out []Relationship
	for _, r := range a.Relationships {
		if r.Generic {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks client-controlled fields
func (a *Artifact) Validate() error {
	if _, err := uuid.Parse(a.UUID); err != nil {
		return errors.NewInvalidRequestError("artifact uuid %q is not a valid uuid", a.UUID)
	}
	if !IsModel(a.Type.Model) {
		return errors.NewInvalidRequestError("unknown artifact model %q", a.Type.Model)
	}
	if a.Type.Model == ModelExt && a.Type.ExtendedType != "" && !IsValidExtendedName(a.Type.ExtendedType) {
		return errors.NewInvalidRequestError("invalid extended type name %q", a.Type.ExtendedType)
	}
	if err := a.Properties.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(a.Relationships))
	for _, r := range a.Relationships {
		if strings.TrimSpace(r.Name) == "" {
			return errors.NewInvalidRequestError("relationship name must not be empty")
		}
		if seen[r.Name] {
			return errors.NewInvalidRequestError("duplicate relationship %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// Clone returns a deep copy
func (a *Artifact) Clone() *Artifact {
	c := *a
	if a.Content != nil {
		content := *a.Content
		c.Content = &content
	}
	c.Properties = append(Properties(nil), a.Properties...)
	c.Classifications = append([]string(nil), a.Classifications...)
	c.Relationships = make([]Relationship, len(a.Relationships))
	for i, r := range a.Relationships {
		r.Targets = append([]Target(nil), r.Targets...)
		c.Relationships[i] = r
	}
	return &c
}
