package storage

import (
	"context"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
)

const (
	UnresolvedInsertQuery = `
		INSERT INTO unresolved_references (primary_uuid, source_uuid, relationship, model, type, namespace, nc_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	UnresolvedSelectQuery = `
		SELECT id, primary_uuid, source_uuid, relationship, model, type, namespace, nc_name
		FROM unresolved_references
		WHERE (? = '' OR primary_uuid = ?)
		ORDER BY id`

	UnresolvedDeleteQuery = `DELETE FROM unresolved_references WHERE id = ?`

	UnresolvedDeleteOfQuery = `DELETE FROM unresolved_references WHERE primary_uuid = ?`
)

// PendingRef is a persisted unresolved reference
type PendingRef struct {
	ID      int64
	Primary string
	artifact.UnresolvedRef
}

// SaveUnresolved records references of primary's derived generation that linking could not resolve
func (t *Tx) SaveUnresolved(ctx context.Context, primary string, refs []artifact.UnresolvedRef) error {
	for _, ref := range refs {
		_, err := t.q.ExecContext(ctx, UnresolvedInsertQuery,
			primary, ref.Source, ref.Relationship, ref.Model, ref.Type, ref.Namespace, ref.NCName)
		if err != nil {
			return errors.Wrapf(err, "failed to record unresolved reference %s", ref.NCName)
		}
	}
	return nil
}

// DeleteUnresolved drops one pending reference once it is resolved
func (t *Tx) DeleteUnresolved(ctx context.Context, id int64) error {
	if _, err := t.q.ExecContext(ctx, UnresolvedDeleteQuery, id); err != nil {
		return errors.Wrap(err, "failed to delete unresolved reference")
	}
	return nil
}

// DeleteUnresolvedOf drops every pending reference of primary's generation
func (t *Tx) DeleteUnresolvedOf(ctx context.Context, primary string) error {
	if _, err := t.q.ExecContext(ctx, UnresolvedDeleteOfQuery, primary); err != nil {
		return errors.Wrap(err, "failed to clear unresolved references")
	}
	return nil
}

// PendingRefs returns the unresolved references of primary's generation, or all of them
// when primary is empty.
func (r *reader) PendingRefs(ctx context.Context, primary string) ([]PendingRef, error) {
	rows, err := r.q.QueryContext(ctx, UnresolvedSelectQuery, primary, primary)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to load unresolved references"))
	}
	defer rows.Close()

	var out []PendingRef
	for rows.Next() {
		var p PendingRef
		if err := rows.Scan(&p.ID, &p.Primary, &p.Source, &p.Relationship,
			&p.Model, &p.Type, &p.Namespace, &p.NCName); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan unresolved reference"))
		}
		out = append(out, p)
	}
	return out, db.Classify(rows.Err())
}
