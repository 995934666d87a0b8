package artifact

import (
	"strconv"
	"time"
)

// ValueKind is how a core field compares in queries
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBool
	ValueTime
)

// Field maps a core property name to the artifact struct and the store column.
type Field struct {
	Name   string
	Column string
	Kind   ValueKind
	// Requires is the capability an artifact needs for the field to be meaningful
	Requires Capability
	// Settable fields may be changed by metadata updates
	Settable bool
	Get      func(*Artifact) string
	Set      func(*Artifact, string)
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func contentField(get func(*Content) string) func(*Artifact) string {
	return func(a *Artifact) string {
		if a.Content == nil {
			return ""
		}
		return get(a.Content)
	}
}

// FieldMap is the explicit mapping of every core property.
var FieldMap = []Field{
	{Name: "uuid", Column: "uuid", Get: func(a *Artifact) string { return a.UUID }},
	{Name: "name", Column: "name", Settable: true,
		Get: func(a *Artifact) string { return a.Name }, Set: func(a *Artifact, v string) { a.Name = v }},
	{Name: "description", Column: "description", Settable: true,
		Get: func(a *Artifact) string { return a.Description }, Set: func(a *Artifact, v string) { a.Description = v }},
	{Name: "version", Column: "version", Settable: true,
		Get: func(a *Artifact) string { return a.Version }, Set: func(a *Artifact, v string) { a.Version = v }},
	{Name: "artifactModel", Column: "model", Get: func(a *Artifact) string { return a.Type.Model }},
	{Name: "artifactType", Column: "type", Get: func(a *Artifact) string { return a.Type.Type }},
	{Name: "extendedType", Column: "extended_type", Get: func(a *Artifact) string { return a.Type.ExtendedType }},
	{Name: "derived", Column: "derived", Kind: ValueBool,
		Get: func(a *Artifact) string { return strconv.FormatBool(a.Type.Derived) }},
	{Name: "createdBy", Column: "created_by", Get: func(a *Artifact) string { return a.Audit.CreatedBy }},
	{Name: "createdTimestamp", Column: "created_at", Kind: ValueTime,
		Get: func(a *Artifact) string { return timeString(a.Audit.CreatedAt) }},
	{Name: "lastModifiedBy", Column: "modified_by", Get: func(a *Artifact) string { return a.Audit.ModifiedBy }},
	{Name: "lastModifiedTimestamp", Column: "modified_at", Kind: ValueTime,
		Get: func(a *Artifact) string { return timeString(a.Audit.ModifiedAt) }},
	{Name: "contentType", Column: "content_type", Requires: HasContent,
		Get: contentField(func(c *Content) string { return c.Type })},
	{Name: "contentSize", Column: "content_size", Kind: ValueNumber, Requires: HasContent,
		Get: contentField(func(c *Content) string { return strconv.FormatInt(c.Size, 10) })},
	{Name: "contentHash", Column: "content_hash", Requires: HasContent,
		Get: contentField(func(c *Content) string { return c.Hash })},
	{Name: "contentEncoding", Column: "content_encoding", Requires: HasContent,
		Get: contentField(func(c *Content) string { return c.Encoding })},
	{Name: "ncName", Column: "nc_name", Requires: HasNamedIdentity,
		Get: func(a *Artifact) string { return a.Identity.NCName }},
	{Name: "namespace", Column: "namespace", Requires: HasNamedIdentity,
		Get: func(a *Artifact) string { return a.Identity.Namespace }},
	{Name: "targetNamespace", Column: "target_namespace",
		Get: func(a *Artifact) string { return a.TargetNamespace }},
	{Name: "style", Column: "style", Get: func(a *Artifact) string { return a.SOAP.Style }},
	{Name: "transport", Column: "transport", Get: func(a *Artifact) string { return a.SOAP.Transport }},
	{Name: "soapLocation", Column: "soap_location", Get: func(a *Artifact) string { return a.SOAP.Location }},
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, len(FieldMap))
	for _, f := range FieldMap {
		m[f.Name] = f
	}
	return m
}()

// LookupField returns the core field named name
func LookupField(name string) (Field, bool) {
	f, ok := fieldsByName[name]
	return f, ok
}

// IsCoreProperty reports whether name is a core (non-custom) property
func IsCoreProperty(name string) bool {
	_, ok := fieldsByName[name]
	return ok
}

// Project returns a partial view of a: the named core fields plus any custom
// properties with those names. Names matching neither are omitted.
func Project(a *Artifact, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		if f, ok := fieldsByName[n]; ok {
			if f.Requires != 0 && !a.Has(f.Requires) {
				continue
			}
			out[n] = f.Get(a)
			continue
		}
		if v, ok := a.Properties.Get(n); ok {
			out[n] = v
		}
	}
	return out
}
