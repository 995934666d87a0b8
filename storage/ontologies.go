package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/ontology"
)

const (
	OntologyInsertQuery = `
		INSERT INTO ontologies (uuid, id, label, comment, base, created_by, created_at, modified_by, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	OntologyUpdateQuery = `
		UPDATE ontologies SET id = ?, label = ?, comment = ?, base = ?, modified_by = ?, modified_at = ?
		WHERE uuid = ?`

	OntologySelectQuery = `
		SELECT uuid, id, label, comment, base, created_by, created_at, modified_by, modified_at
		FROM ontologies WHERE uuid = ?`

	OntologyListQuery = `
		SELECT uuid, id, label, comment, base, created_by, created_at, modified_by, modified_at
		FROM ontologies ORDER BY created_at, uuid`

	OntologyDeleteQuery = `DELETE FROM ontologies WHERE uuid = ?`

	ClassInsertQuery = `
		INSERT INTO ontology_classes (ontology_uuid, id, label, comment, uri, parent_id, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	ClassesDeleteQuery = `DELETE FROM ontology_classes WHERE ontology_uuid = ?`

	// parents sort before children: roots first, then by the order rows were written
	ClassesSelectQuery = `
		SELECT id, label, comment, uri, parent_id FROM ontology_classes
		WHERE ontology_uuid = ? ORDER BY rowid`

	ClassesInUseQuery = `SELECT uri FROM artifact_classifications WHERE uri IN (%s) LIMIT 1`
)

// SaveOntology persists a new ontology and its class forest.
// The base URI is unique across ontologies.
func (s *SQLStore) SaveOntology(ctx context.Context, o *ontology.Ontology) error {
	if err := o.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if o.Audit.CreatedAt.IsZero() {
		o.Audit.CreatedAt = now
	}
	o.Audit.ModifiedAt = o.Audit.CreatedAt
	if o.Audit.ModifiedBy == "" {
		o.Audit.ModifiedBy = o.Audit.CreatedBy
	}

	return s.InTx(ctx, func(tx *Tx) error {
		_, err := tx.q.ExecContext(ctx, OntologyInsertQuery,
			o.UUID, o.ID, o.Label, o.Comment, o.Base,
			o.Audit.CreatedBy, formatTime(o.Audit.CreatedAt), o.Audit.ModifiedBy, formatTime(o.Audit.ModifiedAt))
		if err != nil {
			if db.IsUniqueViolation(err) {
				return errors.NewConflict("duplicate_ontology", o.Base, "ontology already exists")
			}
			return errors.Wrapf(err, "failed to insert ontology %s", o.UUID)
		}
		return tx.writeClasses(ctx, o)
	})
}

// UpdateOntology replaces the metadata and class forest of a stored ontology.
// Removing a class that still classifies an artifact is a classifier constraint error.
func (s *SQLStore) UpdateOntology(ctx context.Context, o *ontology.Ontology) error {
	if err := o.Validate(); err != nil {
		return err
	}
	o.Audit.ModifiedAt = time.Now().UTC()

	return s.InTx(ctx, func(tx *Tx) error {
		prior, err := tx.GetOntology(ctx, o.UUID)
		if err != nil {
			return err
		}
		kept := map[string]bool{}
		o.Walk(func(c *ontology.Class) bool {
			kept[c.URI] = true
			return true
		})
		var removed []string
		prior.Walk(func(c *ontology.Class) bool {
			if !kept[c.URI] {
				removed = append(removed, c.URI)
			}
			return true
		})
		if err := tx.checkClassesUnused(ctx, o.UUID, removed); err != nil {
			return err
		}

		res, err := tx.q.ExecContext(ctx, OntologyUpdateQuery,
			o.ID, o.Label, o.Comment, o.Base, o.Audit.ModifiedBy, formatTime(o.Audit.ModifiedAt), o.UUID)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return errors.NewConflict("duplicate_ontology", o.Base, "ontology already exists")
			}
			return errors.Wrapf(err, "failed to update ontology %s", o.UUID)
		}
		if _, err := rowsAffected(res); err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, ClassesDeleteQuery, o.UUID); err != nil {
			return errors.Wrap(err, "failed to clear ontology classes")
		}
		return tx.writeClasses(ctx, o)
	})
}

// DeleteOntology removes an ontology whose classes classify no artifact
func (s *SQLStore) DeleteOntology(ctx context.Context, uuid string) error {
	return s.InTx(ctx, func(tx *Tx) error {
		o, err := tx.GetOntology(ctx, uuid)
		if err != nil {
			return err
		}
		var uris []string
		o.Walk(func(c *ontology.Class) bool {
			uris = append(uris, c.URI)
			return true
		})
		if err := tx.checkClassesUnused(ctx, uuid, uris); err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, OntologyDeleteQuery, uuid); err != nil {
			return errors.Wrapf(err, "failed to delete ontology %s", uuid)
		}
		return nil
	})
}

func (t *Tx) checkClassesUnused(ctx context.Context, ontologyUUID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	args := make([]interface{}, len(uris))
	for i, u := range uris {
		args[i] = u
	}
	query := strings.Replace(ClassesInUseQuery, "%s", placeholders(len(uris)), 1)

	var used string
	err := t.q.QueryRowContext(ctx, query, args...).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to check class usage")
	}
	return errors.WithDetail(
		errors.NewConstraint(errors.ConstraintClassifier, ontologyUUID, "class %s still classifies artifacts", used),
		used)
}

// writeClasses stores the forest depth-first so every parent row precedes its children
func (t *Tx) writeClasses(ctx context.Context, o *ontology.Ontology) error {
	positions := map[*ontology.Class]int{}
	var werr error
	o.Walk(func(c *ontology.Class) bool {
		var parent interface{}
		position := 0
		if c.Parent != nil {
			parent = c.Parent.ID
			position = positions[c.Parent]
			positions[c.Parent]++
		} else {
			position = positions[nil]
			positions[nil]++
		}
		_, err := t.q.ExecContext(ctx, ClassInsertQuery, o.UUID, c.ID, c.Label, c.Comment, c.URI, parent, position)
		if err != nil {
			werr = errors.Wrapf(err, "failed to insert class %s", c.ID)
			return false
		}
		return true
	})
	return werr
}

func scanOntology(row rowScanner) (*ontology.Ontology, error) {
	var (
		o          ontology.Ontology
		createdAt  time.Time
		modifiedAt time.Time
	)
	if err := row.Scan(&o.UUID, &o.ID, &o.Label, &o.Comment, &o.Base,
		&o.Audit.CreatedBy, &createdAt, &o.Audit.ModifiedBy, &modifiedAt); err != nil {
		return nil, err
	}
	o.Audit.CreatedAt = createdAt.UTC()
	o.Audit.ModifiedAt = modifiedAt.UTC()
	return &o, nil
}

// GetOntology loads an ontology with its class forest
func (r *reader) GetOntology(ctx context.Context, uuid string) (*ontology.Ontology, error) {
	o, err := scanOntology(r.q.QueryRowContext(ctx, OntologySelectQuery, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("ontology", uuid)
	}
	if err != nil {
		return nil, db.Classify(errors.Wrapf(err, "failed to load ontology %s", uuid))
	}
	if err := r.loadClasses(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOntologies loads every ontology in creation order
func (r *reader) ListOntologies(ctx context.Context) ([]*ontology.Ontology, error) {
	rows, err := r.q.QueryContext(ctx, OntologyListQuery)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to list ontologies"))
	}
	var out []*ontology.Ontology
	for rows.Next() {
		o, err := scanOntology(rows)
		if err != nil {
			rows.Close()
			return nil, db.Classify(errors.Wrap(err, "failed to scan ontology"))
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, db.Classify(err)
	}
	rows.Close()

	for _, o := range out {
		if err := r.loadClasses(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *reader) loadClasses(ctx context.Context, o *ontology.Ontology) error {
	rows, err := r.q.QueryContext(ctx, ClassesSelectQuery, o.UUID)
	if err != nil {
		return db.Classify(errors.Wrap(err, "failed to load ontology classes"))
	}
	defer rows.Close()

	byID := map[string]*ontology.Class{}
	for rows.Next() {
		var (
			c      ontology.Class
			parent sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Label, &c.Comment, &c.URI, &parent); err != nil {
			return db.Classify(errors.Wrap(err, "failed to scan class"))
		}
		cls := &c
		byID[c.ID] = cls
		if !parent.Valid {
			if err := o.AddRoot(cls); err != nil {
				return err
			}
			continue
		}
		p, ok := byID[parent.String]
		if !ok {
			return errors.AssertionFailedf("class %s of ontology %s precedes its parent %s", c.ID, o.UUID, parent.String)
		}
		if err := o.AddChild(p, cls); err != nil {
			return err
		}
	}
	return db.Classify(rows.Err())
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
