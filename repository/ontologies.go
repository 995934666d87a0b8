package repository

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/ontology"
	"github.com/teranos/artificer/storage"
)

// CreateOntology stores an ontology and makes its classes available to
// classification and queries
func (r *Repository) CreateOntology(ctx context.Context, o *ontology.Ontology) (*ontology.Ontology, error) {
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	o.Audit.CreatedBy = r.user(ctx)
	if err := r.store.SaveOntology(ctx, o); err != nil {
		return nil, err
	}
	r.ontologies.Put(o.Copy())
	r.log(ctx).Infow("Ontology created", logger.FieldOntology, o.Base, "uuid", o.UUID)
	return r.store.GetOntology(ctx, o.UUID)
}

// UpdateOntology replaces a stored ontology. The loaded instance is swapped,
// never edited, so in-flight classification sees either version whole.
func (r *Repository) UpdateOntology(ctx context.Context, o *ontology.Ontology) (*ontology.Ontology, error) {
	o.Audit.ModifiedBy = r.user(ctx)
	if err := r.store.UpdateOntology(ctx, o); err != nil {
		return nil, err
	}
	r.ontologies.Put(o.Copy())
	return r.store.GetOntology(ctx, o.UUID)
}

// DeleteOntology removes an ontology none of whose classes are in use
func (r *Repository) DeleteOntology(ctx context.Context, id string) error {
	if err := r.store.DeleteOntology(ctx, id); err != nil {
		return err
	}
	r.ontologies.Remove(id)
	return nil
}

// GetOntology loads one ontology
func (r *Repository) GetOntology(ctx context.Context, id string) (*ontology.Ontology, error) {
	return r.store.GetOntology(ctx, id)
}

// ListOntologies returns every stored ontology
func (r *Repository) ListOntologies(ctx context.Context) ([]*ontology.Ontology, error) {
	return r.store.ListOntologies(ctx)
}

// ImportOntology reads an RDF/XML ontology and creates it
func (r *Repository) ImportOntology(ctx context.Context, src io.Reader) (*ontology.Ontology, error) {
	o, err := ontology.Decode(src)
	if err != nil {
		return nil, err
	}
	return r.CreateOntology(ctx, o)
}

// ExportOntology writes a stored ontology as RDF/XML
func (r *Repository) ExportOntology(ctx context.Context, id string, w io.Writer) error {
	o, err := r.store.GetOntology(ctx, id)
	if err != nil {
		return err
	}
	return ontology.Encode(w, o)
}

// AuditTrail returns the audit entries of an artifact, oldest first. The trail
// outlives the artifact.
func (r *Repository) AuditTrail(ctx context.Context, id string) ([]*storage.AuditEntry, error) {
	return r.store.AuditTrail(ctx, id)
}

// GetAuditEntry returns one audit entry of an artifact
func (r *Repository) GetAuditEntry(ctx context.Context, artifactUUID, entryUUID string) (*storage.AuditEntry, error) {
	return r.store.GetAuditEntry(ctx, artifactUUID, entryUUID)
}
