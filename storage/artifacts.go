package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
)

// Query constants
const (
	artifactColumns = `uuid, name, description, version, model, type, extended_type, derived,
		related_document, path, content_type, content_size, content_hash, content_encoding,
		nc_name, namespace, target_namespace, style, transport, soap_location,
		created_by, created_at, modified_by, modified_at, revision`

	ArtifactInsertQuery = `
		INSERT INTO artifacts (` + artifactColumns + `, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ArtifactSelectQuery = `SELECT ` + artifactColumns + ` FROM artifacts WHERE uuid = ?`

	ArtifactSelectByPathQuery = `SELECT ` + artifactColumns + ` FROM artifacts WHERE path = ?`

	ArtifactExistsQuery = `SELECT EXISTS(SELECT 1 FROM artifacts WHERE uuid = ?)`

	ArtifactUpdateMetaQuery = `
		UPDATE artifacts SET name = ?, description = ?, version = ?, modified_by = ?, modified_at = ?,
			revision = revision + 1
		WHERE uuid = ? AND (? = 0 OR revision = ?)`

	ArtifactUpdateContentQuery = `
		UPDATE artifacts SET content_type = ?, content_size = ?, content_hash = ?, content_encoding = ?,
			content = ?, modified_by = ?, modified_at = ?, revision = revision + 1
		WHERE uuid = ?`

	ArtifactContentQuery = `SELECT content FROM artifacts WHERE uuid = ?`

	ArtifactRevisionQuery = `SELECT revision FROM artifacts WHERE uuid = ?`

	ArtifactDeleteQuery = `DELETE FROM artifacts WHERE uuid = ?`

	ArtifactListByTypeQuery = `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE model = ? AND (? = '' OR type = ? OR extended_type = ?)
		ORDER BY name, uuid`

	ArtifactDerivedOfQuery = `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE related_document = ? ORDER BY created_at, rowid`

	ArtifactByQNameQuery = `SELECT uuid FROM artifacts
		WHERE nc_name = ? AND namespace = ? AND derived = 1
			AND (? = '' OR model = ?) AND (? = '' OR type = ?)
		ORDER BY created_at, rowid LIMIT 1`

	// ArtifactByNamespaceQuery finds a schema-bearing document by its target namespace
	ArtifactByNamespaceQuery = `SELECT uuid FROM artifacts
		WHERE target_namespace = ? AND nc_name = '' AND uuid != ?
			AND (? = '' OR model = ?) AND (? = '' OR type = ?)
		ORDER BY created_at, rowid LIMIT 1`

	ArtifactDocumentAttrsQuery = `UPDATE artifacts SET target_namespace = ?, content_encoding = ? WHERE uuid = ?`

	PropertiesDeleteQuery = `DELETE FROM artifact_properties WHERE artifact_uuid = ?`
	PropertyInsertQuery   = `INSERT INTO artifact_properties (artifact_uuid, position, name, value) VALUES (?, ?, ?, ?)`
	PropertiesSelectQuery = `SELECT name, value FROM artifact_properties WHERE artifact_uuid = ? ORDER BY position`

	ClassificationsDeleteQuery = `DELETE FROM artifact_classifications WHERE artifact_uuid = ?`
	ClassificationInsertQuery  = `INSERT OR IGNORE INTO artifact_classifications (artifact_uuid, uri, explicit) VALUES (?, ?, ?)`
	ClassificationsSelectQuery = `SELECT uri FROM artifact_classifications WHERE artifact_uuid = ? AND explicit = 1 ORDER BY rowid`

	RelationshipsDeleteQuery = `DELETE FROM relationships WHERE source_uuid = ? AND generic = ?`
	RelationshipInsertQuery  = `INSERT INTO relationships (source_uuid, name, generic, attributes) VALUES (?, ?, ?, ?)`
	TargetInsertQuery        = `INSERT INTO relationship_targets (relationship_id, position, target_uuid, attributes) VALUES (?, ?, ?, ?)`
	RelationshipsSelectQuery = `
		SELECT r.id, r.name, r.generic, r.attributes, t.target_uuid, t.attributes
		FROM relationships r
		LEFT JOIN relationship_targets t ON t.relationship_id = r.id
		WHERE r.source_uuid = ?
		ORDER BY r.id, t.position`
	RelationshipLookupQuery = `SELECT id FROM relationships WHERE source_uuid = ? AND name = ?`
	TargetNextPositionQuery = `SELECT COALESCE(MAX(position) + 1, 0) FROM relationship_targets WHERE relationship_id = ?`
	TargetExistsQuery       = `SELECT EXISTS(SELECT 1 FROM relationship_targets WHERE relationship_id = ? AND target_uuid = ?)`
)

// Classifier expands explicit classification URIs to their is-a closure and
// resolves the class references queries use. ontology.Set implements it.
type Classifier interface {
	NormalizeAll(uris []string) ([]string, error)
	Resolve(ref string) (string, bool)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(row rowScanner) (*artifact.Artifact, error) {
	var (
		a         artifact.Artifact
		related   sql.NullString
		path      string
		content   artifact.Content
		createdAt time.Time
		modAt     time.Time
	)
	err := row.Scan(
		&a.UUID, &a.Name, &a.Description, &a.Version,
		&a.Type.Model, &a.Type.Type, &a.Type.ExtendedType, &a.Type.Derived,
		&related, &path,
		&content.Type, &content.Size, &content.Hash, &content.Encoding,
		&a.Identity.NCName, &a.Identity.Namespace, &a.TargetNamespace,
		&a.SOAP.Style, &a.SOAP.Transport, &a.SOAP.Location,
		&a.Audit.CreatedBy, &createdAt, &a.Audit.ModifiedBy, &modAt, &a.Revision,
	)
	if err != nil {
		return nil, err
	}
	a.RelatedDocument = related.String
	a.Audit.CreatedAt = createdAt.UTC()
	a.Audit.ModifiedAt = modAt.UTC()
	// A document whose content was deleted keeps its kind but has no descriptor
	if a.Has(artifact.HasContent) && (content.Type != "" || content.Hash != "") {
		a.Content = &content
	}
	return &a, nil
}

// GetArtifact loads the artifact with uuid, including properties, classifications and relationships
func (r *reader) GetArtifact(ctx context.Context, uuid string) (*artifact.Artifact, error) {
	a, err := scanArtifact(r.q.QueryRowContext(ctx, ArtifactSelectQuery, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("artifact", uuid)
	}
	if err != nil {
		return nil, db.Classify(errors.Wrapf(err, "failed to load artifact %s", uuid))
	}
	if err := r.hydrate(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetArtifactByPath loads the artifact stored at path
func (r *reader) GetArtifactByPath(ctx context.Context, path string) (*artifact.Artifact, error) {
	a, err := scanArtifact(r.q.QueryRowContext(ctx, ArtifactSelectByPathQuery, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("artifact", path)
	}
	if err != nil {
		return nil, db.Classify(errors.Wrapf(err, "failed to load artifact at %s", path))
	}
	if err := r.hydrate(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Exists reports whether an artifact with uuid is stored
func (r *reader) Exists(ctx context.Context, uuid string) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, ArtifactExistsQuery, uuid).Scan(&exists); err != nil {
		return false, db.Classify(errors.Wrap(err, "failed to check artifact existence"))
	}
	return exists, nil
}

// GetContent returns the stored content bytes of a document artifact
func (r *reader) GetContent(ctx context.Context, uuid string) ([]byte, error) {
	var content []byte
	err := r.q.QueryRowContext(ctx, ArtifactContentQuery, uuid).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("artifact", uuid)
	}
	if err != nil {
		return nil, db.Classify(errors.Wrapf(err, "failed to load content of %s", uuid))
	}
	return content, nil
}

// ListByType returns the artifacts of model, optionally narrowed to one type or extended type
func (r *reader) ListByType(ctx context.Context, model, typeName string) ([]*artifact.Artifact, error) {
	return r.list(ctx, ArtifactListByTypeQuery, model, typeName, typeName, typeName)
}

// DerivedOf returns the derived artifacts whose relatedDocument is primary
func (r *reader) DerivedOf(ctx context.Context, primary string) ([]*artifact.Artifact, error) {
	return r.list(ctx, ArtifactDerivedOfQuery, primary)
}

// FindByQName returns the uuid of the oldest derived artifact with the reference's
// qualified name, restricted to its model and type when those are set. A reference
// without an NCName names a document other than its source by target namespace.
func (r *reader) FindByQName(ctx context.Context, ref artifact.UnresolvedRef) (string, bool, error) {
	var uuid string
	query, name := ArtifactByQNameQuery, []interface{}{ref.NCName, ref.Namespace}
	if ref.NCName == "" {
		query, name = ArtifactByNamespaceQuery, []interface{}{ref.Namespace, ref.Source}
	}
	args := append(name, ref.Model, ref.Model, ref.Type, ref.Type)
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&uuid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, db.Classify(errors.Wrap(err, "failed to look up qualified name"))
	}
	return uuid, true, nil
}

func (r *reader) list(ctx context.Context, query string, args ...interface{}) ([]*artifact.Artifact, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to list artifacts"))
	}
	var out []*artifact.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			rows.Close()
			return nil, db.Classify(errors.Wrap(err, "failed to scan artifact"))
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, db.Classify(errors.Wrap(err, "failed to iterate artifacts"))
	}
	rows.Close()

	// hydrate after closing the cursor: a Tx runs on one connection
	for _, a := range out {
		if err := r.hydrate(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// hydrate loads the child rows of a
func (r *reader) hydrate(ctx context.Context, a *artifact.Artifact) error {
	props, err := r.loadProperties(ctx, a.UUID)
	if err != nil {
		return err
	}
	a.Properties = props

	if a.Classifications, err = r.loadStrings(ctx, ClassificationsSelectQuery, a.UUID); err != nil {
		return err
	}
	if a.Relationships, err = r.loadRelationships(ctx, a.UUID); err != nil {
		return err
	}
	return nil
}

func (r *reader) loadProperties(ctx context.Context, uuid string) (artifact.Properties, error) {
	rows, err := r.q.QueryContext(ctx, PropertiesSelectQuery, uuid)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to load properties"))
	}
	defer rows.Close()

	var props artifact.Properties
	for rows.Next() {
		var p artifact.Property
		if err := rows.Scan(&p.Name, &p.Value); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan property"))
		}
		props = append(props, p)
	}
	return props, db.Classify(rows.Err())
}

func (r *reader) loadStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to query"))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan"))
		}
		out = append(out, s)
	}
	return out, db.Classify(rows.Err())
}

func (r *reader) loadRelationships(ctx context.Context, uuid string) ([]artifact.Relationship, error) {
	rows, err := r.q.QueryContext(ctx, RelationshipsSelectQuery, uuid)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to load relationships"))
	}
	defer rows.Close()

	var (
		out    []artifact.Relationship
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			id          int64
			rel         artifact.Relationship
			relAttrs    string
			target      sql.NullString
			targetAttrs sql.NullString
		)
		if err := rows.Scan(&id, &rel.Name, &rel.Generic, &relAttrs, &target, &targetAttrs); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan relationship"))
		}
		if id != lastID {
			rel.Attributes = decodeAttributes(relAttrs)
			out = append(out, rel)
			lastID = id
		}
		if target.Valid {
			cur := &out[len(out)-1]
			cur.Targets = append(cur.Targets, artifact.Target{
				UUID:       target.String,
				Attributes: decodeAttributes(targetAttrs.String),
			})
		}
	}
	return out, db.Classify(rows.Err())
}

func encodeAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeAttributes(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil
	}
	return attrs
}

// SetClassifier installs the closure used when writing classifications.
// Without one only the explicit URIs are stored.
func (s *SQLStore) SetClassifier(c Classifier) {
	s.classifier = c
}

// PersistArtifact stores a new primary artifact with its content in one transaction
func (s *SQLStore) PersistArtifact(ctx context.Context, a *artifact.Artifact, content []byte) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.PersistArtifact(ctx, a, content)
	})
}

// UpdateMeta rewrites the client-settable metadata of a in one transaction
func (s *SQLStore) UpdateMeta(ctx context.Context, a *artifact.Artifact) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.UpdateMeta(ctx, a)
	})
}

// DeleteArtifact removes one artifact row; child rows cascade
func (s *SQLStore) DeleteArtifact(ctx context.Context, uuid string) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.DeleteArtifact(ctx, uuid)
	})
}

// PersistArtifact inserts a and its child rows. Audit stamps default to now.
func (t *Tx) PersistArtifact(ctx context.Context, a *artifact.Artifact, content []byte) error {
	now := time.Now().UTC()
	if a.Audit.CreatedAt.IsZero() {
		a.Audit.CreatedAt = now
	}
	if a.Audit.ModifiedAt.IsZero() {
		a.Audit.ModifiedAt = a.Audit.CreatedAt
	}
	if a.Audit.ModifiedBy == "" {
		a.Audit.ModifiedBy = a.Audit.CreatedBy
	}
	a.Revision = 1

	var related interface{}
	if a.IsDerived() {
		related = a.RelatedDocument
	}
	var c artifact.Content
	if a.Content != nil {
		c = *a.Content
	}
	var blob interface{}
	if content != nil {
		blob = content
	}

	_, err := t.q.ExecContext(ctx, ArtifactInsertQuery,
		a.UUID, a.Name, a.Description, a.Version,
		a.Type.Model, a.Type.Type, a.Type.ExtendedType, a.Type.Derived,
		related, PathOf(a),
		c.Type, c.Size, c.Hash, c.Encoding,
		a.Identity.NCName, a.Identity.Namespace, a.TargetNamespace,
		a.SOAP.Style, a.SOAP.Transport, a.SOAP.Location,
		a.Audit.CreatedBy, formatTime(a.Audit.CreatedAt), a.Audit.ModifiedBy, formatTime(a.Audit.ModifiedAt),
		a.Revision, blob,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.NewConflict("duplicate_uuid", a.UUID, "artifact already exists")
		}
		return errors.Wrapf(err, "failed to insert artifact %s", a.UUID)
	}

	if err := t.writeProperties(ctx, a.UUID, a.Properties); err != nil {
		return err
	}
	if err := t.writeClassifications(ctx, a.UUID, a.Classifications); err != nil {
		return err
	}
	return t.insertRelationships(ctx, a.UUID, a.Relationships)
}

// UpdateMeta rewrites name, description, version, properties, classifications and
// generic relationships. A non-zero a.Revision must match the stored revision.
func (t *Tx) UpdateMeta(ctx context.Context, a *artifact.Artifact) error {
	if a.Audit.ModifiedAt.IsZero() {
		a.Audit.ModifiedAt = time.Now().UTC()
	}
	res, err := t.q.ExecContext(ctx, ArtifactUpdateMetaQuery,
		a.Name, a.Description, a.Version, a.Audit.ModifiedBy, formatTime(a.Audit.ModifiedAt),
		a.UUID, a.Revision, a.Revision)
	if err != nil {
		return errors.Wrapf(err, "failed to update artifact %s", a.UUID)
	}
	if err := t.checkUpdated(ctx, res, a.UUID); err != nil {
		return err
	}

	if err := t.writeProperties(ctx, a.UUID, a.Properties); err != nil {
		return err
	}
	if err := t.writeClassifications(ctx, a.UUID, a.Classifications); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, RelationshipsDeleteQuery, a.UUID, true); err != nil {
		return errors.Wrap(err, "failed to clear generic relationships")
	}
	if err := t.insertRelationships(ctx, a.UUID, a.GenericRelationships()); err != nil {
		return err
	}
	return t.refreshRevision(ctx, a)
}

// UpdateContent replaces the stored bytes and content descriptor of a document artifact.
// Passing nil content clears it.
func (t *Tx) UpdateContent(ctx context.Context, a *artifact.Artifact, content []byte) error {
	if a.Audit.ModifiedAt.IsZero() {
		a.Audit.ModifiedAt = time.Now().UTC()
	}
	var c artifact.Content
	if a.Content != nil {
		c = *a.Content
	}
	var blob interface{}
	if content != nil {
		blob = content
	}
	res, err := t.q.ExecContext(ctx, ArtifactUpdateContentQuery,
		c.Type, c.Size, c.Hash, c.Encoding, blob,
		a.Audit.ModifiedBy, formatTime(a.Audit.ModifiedAt), a.UUID)
	if err != nil {
		return errors.Wrapf(err, "failed to update content of %s", a.UUID)
	}
	if err := t.checkUpdated(ctx, res, a.UUID); err != nil {
		return err
	}
	return t.refreshRevision(ctx, a)
}

// checkUpdated turns a zero-row update into NotFound or a retryable revision conflict
func (t *Tx) checkUpdated(ctx context.Context, res sql.Result, uuid string) error {
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	exists, err := t.Exists(ctx, uuid)
	if err != nil {
		return err
	}
	if !exists {
		return errors.NewNotFound("artifact", uuid)
	}
	return errors.WithDetail(
		errors.NewRepository(errors.CodeRevisionConflict, true,
			errors.Newf("artifact %s was modified concurrently", uuid)),
		uuid)
}

func (t *Tx) refreshRevision(ctx context.Context, a *artifact.Artifact) error {
	if err := t.q.QueryRowContext(ctx, ArtifactRevisionQuery, a.UUID).Scan(&a.Revision); err != nil {
		return errors.Wrap(err, "failed to read revision")
	}
	return nil
}

// DeleteArtifact removes the artifact row. Callers run graph checks and cascades first;
// a remaining inbound edge surfaces as a relationship constraint error.
func (t *Tx) DeleteArtifact(ctx context.Context, uuid string) error {
	res, err := t.q.ExecContext(ctx, ArtifactDeleteQuery, uuid)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return errors.NewConstraint(errors.ConstraintRelationship, uuid, "artifact is still the target of a relationship")
		}
		return errors.Wrapf(err, "failed to delete artifact %s", uuid)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewNotFound("artifact", uuid)
	}
	return nil
}

// PersistDerived saves a derived generation of primary. Every artifact gets its
// relatedDocument column and relationship. Rows are inserted before relationships
// so targets inside the generation resolve.
func (t *Tx) PersistDerived(ctx context.Context, primary *artifact.Artifact, derived []*artifact.Artifact) error {
	return t.PersistGenerations(ctx, []Generation{{Primary: primary, Derived: derived}})
}

// Generation is the derived set of one primary. Content holds the bytes of
// derived documents, such as archive entries, keyed by uuid.
type Generation struct {
	Primary *artifact.Artifact
	Derived []*artifact.Artifact
	Content map[string][]byte
}

// PersistGenerations saves several generations whose relationships may cross
// between them, as an archive and the documents expanded from it do. All rows
// go in before any relationship.
func (t *Tx) PersistGenerations(ctx context.Context, gens []Generation) error {
	now := time.Now().UTC()
	for _, g := range gens {
		for _, d := range g.Derived {
			if !d.IsDerived() {
				return errors.AssertionFailedf("artifact %s of type %s is not a derived type", d.UUID, d.Type.Type)
			}
			d.RelatedDocument = g.Primary.UUID
			d.AddRelationship(artifact.RelRelatedDocument, g.Primary.UUID)
			if d.Audit.CreatedBy == "" {
				d.Audit.CreatedBy = g.Primary.Audit.ModifiedBy
			}
			d.Audit.CreatedAt = now
			d.Audit.ModifiedAt = now

			rels := d.Relationships
			d.Relationships = nil
			err := t.PersistArtifact(ctx, d, g.Content[d.UUID])
			d.Relationships = rels
			if err != nil {
				return err
			}
		}
	}
	for _, g := range gens {
		for _, d := range g.Derived {
			if err := t.insertRelationships(ctx, d.UUID, d.Relationships); err != nil {
				return err
			}
		}
	}
	return nil
}

// InsertRelationships adds relationships to an existing artifact. Names must not
// already be present on source.
func (t *Tx) InsertRelationships(ctx context.Context, source string, rels []artifact.Relationship) error {
	return t.insertRelationships(ctx, source, rels)
}

// DeleteRelationships drops the generic or the derived relationships sourced at uuid
func (t *Tx) DeleteRelationships(ctx context.Context, uuid string, generic bool) error {
	if _, err := t.q.ExecContext(ctx, RelationshipsDeleteQuery, uuid, generic); err != nil {
		return errors.Wrapf(err, "failed to clear relationships of %s", uuid)
	}
	return nil
}

// UpdateDocumentAttributes stores the attributes derivation reads out of a document
func (t *Tx) UpdateDocumentAttributes(ctx context.Context, a *artifact.Artifact) error {
	var encoding string
	if a.Content != nil {
		encoding = a.Content.Encoding
	}
	if _, err := t.q.ExecContext(ctx, ArtifactDocumentAttrsQuery, a.TargetNamespace, encoding, a.UUID); err != nil {
		return errors.Wrapf(err, "failed to update document attributes of %s", a.UUID)
	}
	return nil
}

func (t *Tx) writeProperties(ctx context.Context, uuid string, props artifact.Properties) error {
	if _, err := t.q.ExecContext(ctx, PropertiesDeleteQuery, uuid); err != nil {
		return errors.Wrap(err, "failed to clear properties")
	}
	for i, p := range props {
		if _, err := t.q.ExecContext(ctx, PropertyInsertQuery, uuid, i, p.Name, p.Value); err != nil {
			if db.IsUniqueViolation(err) {
				return errors.NewInvalidRequestError("duplicate property %q", p.Name)
			}
			return errors.Wrapf(err, "failed to insert property %s", p.Name)
		}
	}
	return nil
}

// writeClassifications stores the explicit URIs and, through the classifier, their ancestors
func (t *Tx) writeClassifications(ctx context.Context, uuid string, explicit []string) error {
	if _, err := t.q.ExecContext(ctx, ClassificationsDeleteQuery, uuid); err != nil {
		return errors.Wrap(err, "failed to clear classifications")
	}
	if len(explicit) == 0 {
		return nil
	}
	closure := explicit
	if t.classifier != nil {
		var err error
		if closure, err = t.classifier.NormalizeAll(explicit); err != nil {
			return err
		}
	}
	for _, uri := range explicit {
		if _, err := t.q.ExecContext(ctx, ClassificationInsertQuery, uuid, uri, true); err != nil {
			return errors.Wrap(err, "failed to insert classification")
		}
	}
	for _, uri := range closure {
		if _, err := t.q.ExecContext(ctx, ClassificationInsertQuery, uuid, uri, false); err != nil {
			return errors.Wrap(err, "failed to insert implied classification")
		}
	}
	return nil
}

func (t *Tx) insertRelationships(ctx context.Context, source string, rels []artifact.Relationship) error {
	for _, rel := range rels {
		res, err := t.q.ExecContext(ctx, RelationshipInsertQuery, source, rel.Name, rel.Generic, encodeAttributes(rel.Attributes))
		if err != nil {
			if db.IsUniqueViolation(err) {
				return errors.NewConflict("duplicate_relationship", rel.Name, "relationship already exists on %s", source)
			}
			return errors.Wrapf(err, "failed to insert relationship %s", rel.Name)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "failed to read relationship id")
		}
		for i, target := range rel.Targets {
			if err := t.insertTarget(ctx, id, i, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tx) insertTarget(ctx context.Context, relationshipID int64, position int, target artifact.Target) error {
	_, err := t.q.ExecContext(ctx, TargetInsertQuery, relationshipID, position, target.UUID, encodeAttributes(target.Attributes))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return errors.NewNotFound("relationship target", target.UUID)
		}
		return errors.Wrapf(err, "failed to insert relationship target %s", target.UUID)
	}
	return nil
}

// AddTarget appends target to the derived relationship name of source, creating the
// relationship when missing. Existing targets are left alone.
func (t *Tx) AddTarget(ctx context.Context, source, name, target string) error {
	var id int64
	err := t.q.QueryRowContext(ctx, RelationshipLookupQuery, source, name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := t.q.ExecContext(ctx, RelationshipInsertQuery, source, name, false, "{}")
		if err != nil {
			return errors.Wrapf(err, "failed to insert relationship %s", name)
		}
		if id, err = res.LastInsertId(); err != nil {
			return errors.Wrap(err, "failed to read relationship id")
		}
	case err != nil:
		return errors.Wrapf(err, "failed to look up relationship %s", name)
	}

	var exists bool
	if err := t.q.QueryRowContext(ctx, TargetExistsQuery, id, target).Scan(&exists); err != nil {
		return errors.Wrap(err, "failed to check relationship target")
	}
	if exists {
		return nil
	}
	var position int
	if err := t.q.QueryRowContext(ctx, TargetNextPositionQuery, id).Scan(&position); err != nil {
		return errors.Wrap(err, "failed to read target position")
	}
	return t.insertTarget(ctx, id, position, artifact.Target{UUID: target})
}
