package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/metrics"
	"github.com/teranos/artificer/sequencer"
	"github.com/teranos/artificer/storage"
)

// UploadOptions shapes a document upload or content replace
type UploadOptions struct {
	Description     string
	Version         string
	Properties      artifact.Properties
	Classifications []string
	// RelinkDependents re-runs linking for every pending reference once the new
	// generation is persisted. It is on when repository.relink_dependents is set.
	RelinkDependents bool
	// Wait blocks until derivation completes, fails or sequencing.timeout elapses
	Wait bool
}

// Create stores a metadata-only artifact. Derived artifacts are created by
// derivation only; document artifacts go through Upload.
func (r *Repository) Create(ctx context.Context, a *artifact.Artifact) (*artifact.Artifact, error) {
	if a.IsDerived() || a.Type.Info().Derived || a.RelatedDocument != "" {
		return nil, errors.NewConflict("derived_create", a.Type.Type,
			"derived artifacts can only be created by derivation")
	}
	if a.Has(artifact.HasContent) {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("%s artifacts carry content", a.Type.QueryName()),
			"upload the document instead")
	}
	for _, rel := range a.Relationships {
		if !rel.Generic {
			return nil, errors.NewConflict("derived_relationship", rel.Name,
				"derived relationships are owned by derivation")
		}
	}
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.Audit.CreatedBy = r.user(ctx)

	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		if err := tx.PersistArtifact(ctx, a, nil); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, addedEntry(a))
	})
	if err != nil {
		return nil, err
	}
	r.log(ctx).Infow("Artifact created", logger.FieldArtifactUUID, a.UUID, logger.FieldArtifactType, a.Type.QueryName())
	return r.store.GetArtifact(ctx, a.UUID)
}

// Upload stores a document and derives it. An empty typeName asks the
// registry's detectors. The primary is persisted before derivation starts and
// stays even when derivation fails.
func (r *Repository) Upload(ctx context.Context, typeName, name string, content []byte, opts UploadOptions) (*artifact.Artifact, error) {
	cfg := r.config()
	if limit := cfg.Derivation.MaxContentBytes; limit > 0 && int64(len(content)) > limit {
		return nil, errors.WithDetailf(
			errors.NewInvalidRequestError("content of %s exceeds %d bytes", name, limit),
			"size %d", len(content))
	}

	if typeName == "" {
		typeName = r.Registry().Detect(derive.Content{Name: name, Bytes: content}, nil).Type
	}
	if info, _ := artifact.ResolveType(typeName, true); info.Derived {
		return nil, errors.NewConflict("derived_create", typeName,
			"derived artifacts can only be created by derivation")
	}

	a := artifact.NewDocument(typeName, name)
	if !a.Has(artifact.HasContent) {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("%s artifacts carry no content", a.Type.QueryName()),
			"create the artifact instead")
	}
	a.Description = opts.Description
	a.Version = opts.Version
	a.Properties = opts.Properties
	a.Classifications = opts.Classifications
	a.Content = derive.Describe(name, content)
	a.Audit.CreatedBy = r.user(ctx)
	if err := a.Validate(); err != nil {
		return nil, err
	}

	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		if err := tx.PersistArtifact(ctx, a, content); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, addedEntry(a))
	})
	if err != nil {
		return nil, err
	}
	r.log(ctx).Infow("Document uploaded",
		logger.FieldArtifactUUID, a.UUID,
		logger.FieldArtifactType, a.Type.QueryName(),
		logger.FieldSize, len(content))

	if err := r.derive(ctx, a, content, opts); err != nil {
		return nil, errors.WithDetailf(err, "artifact %s was stored", a.UUID)
	}
	return r.store.GetArtifact(ctx, a.UUID)
}

// derive submits a derivation run for a and, when asked, waits for it.
// The wait is subscribed before the job is submitted so no completion is missed.
func (r *Repository) derive(ctx context.Context, a *artifact.Artifact, content []byte, opts UploadOptions) error {
	cfg := r.config()
	job := derive.Job{
		Primary: a,
		Content: content,
		Options: derive.RunOptions{RelinkDependents: opts.RelinkDependents || cfg.Repository.RelinkDependents},
	}

	path := storage.PathOf(a)
	var future *sequencer.Future
	if opts.Wait {
		future = r.seq.Subscribe(path)
	}

	if r.pool == nil {
		if _, err := r.pipeline.Run(ctx, a, content, job.Options); err != nil {
			r.seq.Fail(path, err)
		} else {
			r.seq.Complete(path)
		}
	} else if err := r.pool.Submit(job); err != nil {
		if future != nil {
			future.Cancel()
		}
		return err
	}

	if !opts.Wait {
		return nil
	}
	outcome, err := future.Wait(ctx, cfg.Sequencing.Timeout())
	metrics.RecordSequencing(outcome.String())
	return err
}

// UpdateMeta rewrites the client-settable metadata of an artifact. Derived
// artifacts accept properties and classifications; their derived relationships,
// type and identity are fixed. A non-zero Revision must match the stored one.
func (r *Repository) UpdateMeta(ctx context.Context, a *artifact.Artifact) (*artifact.Artifact, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		current, err := tx.GetArtifact(ctx, a.UUID)
		if err != nil {
			return err
		}
		if current.Type != a.Type {
			return errors.NewConflict("type_change", a.UUID,
				"artifact type %s cannot become %s", current.Type.QueryName(), a.Type.QueryName())
		}
		if err := checkDerivedRelationships(current, a); err != nil {
			return err
		}

		a.Audit.ModifiedBy = r.user(ctx)
		a.Audit.ModifiedAt = time.Now().UTC()
		entry := updatedEntry(current, a)
		if err := tx.UpdateMeta(ctx, a); err != nil {
			return err
		}
		if len(entry.Items) == 0 {
			return nil
		}
		entry.Who = a.Audit.ModifiedBy
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return r.store.GetArtifact(ctx, a.UUID)
}

// checkDerivedRelationships rejects any change to derivation-owned relationships
func checkDerivedRelationships(current, next *artifact.Artifact) error {
	for _, rel := range next.Relationships {
		stored, ok := current.Relationship(rel.Name)
		switch {
		case rel.Generic && ok && !stored.Generic:
			return errors.NewConflict("derived_relationship", rel.Name,
				"relationship name is owned by derivation")
		case rel.Generic:
			continue
		case !ok || stored.Generic || !sameTargets(stored.TargetUUIDs(), rel.TargetUUIDs()):
			return errors.NewConflict("derived_relationship", rel.Name,
				"derived relationships are owned by derivation")
		}
	}
	return nil
}

func sameTargets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UpdateContent replaces a document's bytes and re-derives it. The replace is
// refused while a generic relationship targets one of its derived artifacts or
// while a derived artifact carries client metadata.
func (r *Repository) UpdateContent(ctx context.Context, id string, content []byte, opts UploadOptions) (*artifact.Artifact, error) {
	cfg := r.config()
	if limit := cfg.Derivation.MaxContentBytes; limit > 0 && int64(len(content)) > limit {
		return nil, errors.NewInvalidRequestError("content exceeds %d bytes", limit)
	}

	var a *artifact.Artifact
	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		if a, err = r.documentForUpdate(ctx, tx, id); err != nil {
			return err
		}
		if err := r.engine.CheckReplaceable(ctx, tx.SQL(), id); err != nil {
			return err
		}
		if err := r.engine.CheckNoCustomMetadataOnDerived(ctx, tx.SQL(), id); err != nil {
			return err
		}

		prior := a.Content
		a.Content = derive.Describe(a.Name, content)
		a.Audit.ModifiedBy = r.user(ctx)
		a.Audit.ModifiedAt = time.Now().UTC()
		if err := tx.UpdateContent(ctx, a, content); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, contentEntry(a, prior))
	})
	if err != nil {
		r.recordConstraint(err)
		return nil, err
	}

	if err := r.derive(ctx, a, content, opts); err != nil {
		return nil, err
	}
	return r.store.GetArtifact(ctx, id)
}

// documentForUpdate loads a primary document for a content change
func (r *Repository) documentForUpdate(ctx context.Context, tx *storage.Tx, id string) (*artifact.Artifact, error) {
	a, err := tx.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsDerived() {
		return nil, errors.NewConflict("derived_content", id, "derived artifact content is owned by derivation")
	}
	if !a.Has(artifact.HasContent) {
		return nil, errors.NewInvalidRequestError("%s artifacts carry no content", a.Type.QueryName())
	}
	return a, nil
}

// Get returns one artifact with all its parts
func (r *Repository) Get(ctx context.Context, id string) (*artifact.Artifact, error) {
	return r.store.GetArtifact(ctx, id)
}

// GetByPath returns the artifact stored at a repository path
func (r *Repository) GetByPath(ctx context.Context, path string) (*artifact.Artifact, error) {
	return r.store.GetArtifactByPath(ctx, path)
}

// GetContent returns the stored bytes of a document and their descriptor
func (r *Repository) GetContent(ctx context.Context, id string) ([]byte, *artifact.Content, error) {
	a, err := r.store.GetArtifact(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.Content == nil {
		return nil, nil, errors.NewNotFound("content", id)
	}
	b, err := r.store.GetContent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return b, a.Content, nil
}

// List returns every artifact of a type. The name may be a built-in type, an
// extended type or a model.
func (r *Repository) List(ctx context.Context, typeName string) ([]*artifact.Artifact, error) {
	if artifact.IsModel(typeName) {
		return r.store.ListByType(ctx, typeName, "")
	}
	if info, ok := artifact.LookupType(typeName); ok {
		return r.store.ListByType(ctx, info.Model, info.Type)
	}
	if !artifact.IsValidExtendedName(typeName) {
		return nil, errors.NewInvalidRequestError("unknown artifact type %q", typeName)
	}
	return r.store.ListByType(ctx, artifact.ModelExt, typeName)
}

// Delete removes a primary artifact with its whole derived subtree. Derived
// artifacts go only with their primary.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		a, err := tx.GetArtifact(ctx, id)
		if err != nil {
			return err
		}
		if a.IsDerived() {
			return errors.WithHintf(
				errors.NewConflict("derived_delete", id, "derived artifacts are deleted with their primary"),
				"delete %s instead", a.RelatedDocument)
		}
		if err := r.engine.DeleteTree(ctx, tx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &storage.AuditEntry{
			ArtifactUUID: id,
			Type:         storage.AuditDelete,
			Who:          r.user(ctx),
			Items:        []storage.AuditItem{{Name: "name", Value: a.Name}},
		})
	})
	if err != nil {
		r.recordConstraint(err)
		return err
	}
	r.log(ctx).Infow("Artifact deleted", logger.FieldArtifactUUID, id)
	return nil
}

// DeleteContent drops a document's bytes and its derived generation. The
// artifact itself stays with its metadata and generic relationships.
func (r *Repository) DeleteContent(ctx context.Context, id string) error {
	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		a, err := r.documentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.Content == nil {
			return errors.NewNotFound("content", id)
		}
		if err := r.engine.CheckReplaceable(ctx, tx.SQL(), id); err != nil {
			return err
		}
		if err := r.engine.CheckNoCustomMetadataOnDerived(ctx, tx.SQL(), id); err != nil {
			return err
		}
		if err := tx.DeleteUnresolvedOf(ctx, id); err != nil {
			return err
		}
		if err := r.engine.CascadeDelete(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.DeleteRelationships(ctx, id, false); err != nil {
			return err
		}

		prior := a.Content
		a.Content = nil
		a.TargetNamespace = ""
		a.Audit.ModifiedBy = r.user(ctx)
		a.Audit.ModifiedAt = time.Now().UTC()
		if err := tx.UpdateDocumentAttributes(ctx, a); err != nil {
			return err
		}
		if err := tx.UpdateContent(ctx, a, nil); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, contentEntry(a, prior))
	})
	if err != nil {
		r.recordConstraint(err)
	}
	return err
}

// Relink resolves the pending references of id's derived subtree against the
// current store and returns how many were wired
func (r *Repository) Relink(ctx context.Context, id string) (int, error) {
	var n int
	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		members, err := r.engine.Subtree(ctx, tx.SQL(), id)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return errors.NewNotFound("artifact", id)
		}
		n, err = derive.Relink(ctx, tx, members)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.log(ctx).Infow("Relinked", logger.FieldArtifactUUID, id, logger.FieldCount, n)
	return n, nil
}

func (r *Repository) recordConstraint(err error) {
	var e *errors.Error
	if errors.As(err, &e) && e.Kind == errors.KindConstraint {
		metrics.RecordConstraintViolation(e.Code)
	}
}

func addedEntry(a *artifact.Artifact) *storage.AuditEntry {
	e := &storage.AuditEntry{
		ArtifactUUID: a.UUID,
		Type:         storage.AuditAdd,
		Who:          a.Audit.CreatedBy,
		At:           a.Audit.CreatedAt,
	}
	e.Items = append(e.Items, storage.AuditItem{Name: "name", Value: a.Name})
	for _, p := range a.Properties {
		e.Items = append(e.Items, storage.AuditItem{Name: "property:" + p.Name, Value: p.Value})
	}
	return e
}

// updatedEntry lists the changed core fields, properties and classifications
func updatedEntry(prev, next *artifact.Artifact) *storage.AuditEntry {
	e := &storage.AuditEntry{ArtifactUUID: next.UUID, Type: storage.AuditUpdate}
	core := []struct{ name, before, after string }{
		{"name", prev.Name, next.Name},
		{"description", prev.Description, next.Description},
		{"version", prev.Version, next.Version},
	}
	for _, c := range core {
		if c.before != c.after {
			e.Items = append(e.Items, storage.AuditItem{Name: c.name, Value: c.after})
		}
	}

	for _, p := range next.Properties {
		if old, ok := prev.Properties.Get(p.Name); !ok || old != p.Value {
			e.Items = append(e.Items, storage.AuditItem{Name: "property:" + p.Name, Value: p.Value})
		}
	}
	for _, name := range prev.Properties.Names() {
		if _, ok := next.Properties.Get(name); !ok {
			e.Items = append(e.Items, storage.AuditItem{Name: "property-removed:" + name})
		}
	}

	before := strings.Join(prev.Classifications, " ")
	after := strings.Join(next.Classifications, " ")
	if before != after {
		e.Items = append(e.Items, storage.AuditItem{Name: "classifications", Value: after})
	}
	return e
}

func contentEntry(a *artifact.Artifact, prior *artifact.Content) *storage.AuditEntry {
	e := &storage.AuditEntry{ArtifactUUID: a.UUID, Type: storage.AuditUpdate, Who: a.Audit.ModifiedBy}
	switch {
	case a.Content == nil:
		e.Items = []storage.AuditItem{{Name: "content", Value: ""}}
	case prior == nil || prior.Hash != a.Content.Hash:
		e.Items = []storage.AuditItem{{Name: "content", Value: fmt.Sprintf("%s %d", a.Content.Type, a.Content.Size)}}
	default:
		e.Items = []storage.AuditItem{{Name: "content", Value: "unchanged"}}
	}
	return e
}
