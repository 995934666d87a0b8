package artifact

// Record is the stable persisted shape of an artifact.
type Record struct {
	UUID            string               `json:"uuid" yaml:"uuid"`
	Name            string               `json:"name" yaml:"name"`
	Type            Descriptor           `json:"type" yaml:"type"`
	Version         string               `json:"version" yaml:"version"`
	Audit           Audit                `json:"audit" yaml:"audit"`
	Content         *Content             `json:"content,omitempty" yaml:"content,omitempty"`
	Properties      []Property           `json:"properties" yaml:"properties"`
	Classifications []string             `json:"classifications" yaml:"classifications"`
	Relationships   []RelationshipRecord `json:"relationships" yaml:"relationships"`
}

// RelationshipRecord is the persisted shape of a relationship
type RelationshipRecord struct {
	Name    string   `json:"name" yaml:"name"`
	Generic bool     `json:"generic" yaml:"generic"`
	Targets []string `json:"targets" yaml:"targets"`
}

// ToRecord converts a into its persisted shape. Empty collections encode as [] not null.
func ToRecord(a *Artifact) Record {
	rec := Record{
		UUID:            a.UUID,
		Name:            a.Name,
		Type:            a.Type,
		Version:         a.Version,
		Audit:           a.Audit,
		Properties:      append([]Property{}, a.Properties...),
		Classifications: append([]string{}, a.Classifications...),
		Relationships:   make([]RelationshipRecord, 0, len(a.Relationships)),
	}
	if a.Content != nil && a.Has(HasContent) {
		c := *a.Content
		rec.Content = &c
	}
	for _, r := range a.Relationships {
		rec.Relationships = append(rec.Relationships, RelationshipRecord{
			Name:    r.Name,
			Generic: r.Generic,
			Targets: r.TargetUUIDs(),
		})
	}
	return rec
}

// FromRecord rebuilds an artifact from its persisted shape.
// Fields outside the record (qualified names, SOAP attributes) are left zero.
func FromRecord(rec Record) *Artifact {
	a := &Artifact{
		UUID:            rec.UUID,
		Name:            rec.Name,
		Type:            rec.Type,
		Version:         rec.Version,
		Audit:           rec.Audit,
		Properties:      append(Properties(nil), rec.Properties...),
		Classifications: append([]string(nil), rec.Classifications...),
	}
	if rec.Content != nil {
		c := *rec.Content
		a.Content = &c
	}
	for _, r := range rec.Relationships {
		rel := Relationship{Name: r.Name, Generic: r.Generic}
		for _, t := range r.Targets {
			rel.Targets = append(rel.Targets, Target{UUID: t})
		}
		a.Relationships = append(a.Relationships, rel)
		if r.Name == RelRelatedDocument && len(r.Targets) == 1 {
			a.RelatedDocument = r.Targets[0]
		}
	}
	return a
}
