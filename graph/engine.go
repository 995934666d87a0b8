// Package graph enforces the invariants of the artifact relationship graph and
// renders artifact neighborhoods for display.
//
// The engine holds no locks of its own. Every check and cascade runs inside the
// caller's store transaction and relies on SQLite's isolation; a conflicting
// concurrent mutation surfaces as a retryable repository error.
package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/storage"
)

// subtreeCTE binds the root uuid and yields it with every artifact derived from it,
// transitively, tagged with its distance from the root
const subtreeCTE = `
	WITH RECURSIVE subtree(uuid, depth) AS (
		SELECT uuid, 0 FROM artifacts WHERE uuid = ?
		UNION
		SELECT a.uuid, s.depth + 1 FROM artifacts a JOIN subtree s ON a.related_document = s.uuid
	)`

const (
	SubtreeQuery = subtreeCTE + `
		SELECT uuid FROM subtree WHERE depth >= ? ORDER BY depth DESC, uuid`

	// InboundGenericQuery finds client relationships from outside the subtree into it
	InboundGenericQuery = subtreeCTE + `
		SELECT r.source_uuid, r.name, t.target_uuid
		FROM relationship_targets t
		JOIN relationships r ON r.id = t.relationship_id
		WHERE t.target_uuid IN (SELECT uuid FROM subtree WHERE depth >= ?)
		  AND r.source_uuid NOT IN (SELECT uuid FROM subtree)
		  AND r.generic = 1
		ORDER BY r.source_uuid, r.name, t.position`

	DerivedMetadataQuery = subtreeCTE + `
		SELECT a.uuid,
			EXISTS (SELECT 1 FROM artifact_properties p WHERE p.artifact_uuid = a.uuid),
			EXISTS (SELECT 1 FROM artifact_classifications c WHERE c.artifact_uuid = a.uuid AND c.explicit = 1)
		FROM artifacts a
		WHERE a.uuid IN (SELECT uuid FROM subtree WHERE depth > 0)
		ORDER BY a.uuid`

	// InboundDerivedQuery finds derivation-owned edges from another generation into
	// the members being removed, with what is needed to re-resolve them by name
	InboundDerivedQuery = subtreeCTE + `
		SELECT r.source_uuid, COALESCE(src.related_document, src.uuid), r.name,
			a.model, a.type, CASE WHEN a.nc_name = '' THEN a.target_namespace ELSE a.namespace END, a.nc_name
		FROM relationship_targets t
		JOIN relationships r ON r.id = t.relationship_id
		JOIN artifacts src ON src.uuid = r.source_uuid
		JOIN artifacts a ON a.uuid = t.target_uuid
		WHERE t.target_uuid IN (SELECT uuid FROM subtree WHERE depth >= ?)
		  AND r.source_uuid NOT IN (SELECT uuid FROM subtree)
		  AND r.generic = 0
		ORDER BY r.source_uuid, r.name, t.position`

	DetachTargetsQuery = subtreeCTE + `
		DELETE FROM relationship_targets
		WHERE target_uuid IN (SELECT uuid FROM subtree WHERE depth >= ?)`

	// TouchedQuery lists derived relationships outside the subtree that a detach will thin out
	TouchedQuery = subtreeCTE + `
		SELECT DISTINCT r.id
		FROM relationship_targets t
		JOIN relationships r ON r.id = t.relationship_id
		WHERE t.target_uuid IN (SELECT uuid FROM subtree WHERE depth >= ?)
		  AND r.source_uuid NOT IN (SELECT uuid FROM subtree)
		  AND r.generic = 0`

	PruneEmptyQuery = `
		DELETE FROM relationships
		WHERE id = ?
		  AND NOT EXISTS (SELECT 1 FROM relationship_targets t WHERE t.relationship_id = relationships.id)`

	DeleteOneQuery = `DELETE FROM artifacts WHERE uuid = ? AND derived = 1`

	ReverseQuery = `
		SELECT DISTINCT r.source_uuid, r.name, r.generic
		FROM relationship_targets t
		JOIN relationships r ON r.id = t.relationship_id
		WHERE t.target_uuid = ?
		ORDER BY r.source_uuid, r.name`
)

// ReverseRelationship is one relationship whose target set includes an artifact
type ReverseRelationship struct {
	Source  string `json:"source"`
	Name    string `json:"name"`
	Generic bool   `json:"generic"`
}

// Engine checks and cascades the relationship graph
type Engine struct {
	logger *zap.SugaredLogger
}

// NewEngine creates a graph engine
func NewEngine(logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{logger: logger.Named("graph")}
}

// Subtree returns root and every artifact derived from it, deepest first
func (e *Engine) Subtree(ctx context.Context, q storage.Querier, root string) ([]string, error) {
	return e.members(ctx, q, root, 0)
}

func (e *Engine) members(ctx context.Context, q storage.Querier, root string, minDepth int) ([]string, error) {
	rows, err := q.QueryContext(ctx, SubtreeQuery, root, minDepth)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to walk derived subtree"))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan subtree member"))
		}
		out = append(out, id)
	}
	return out, db.Classify(rows.Err())
}

// CheckDeletable fails with a relationship constraint error when a generic
// relationship sourced outside root's derived subtree targets root or any member
// of that subtree. Derived relationships never block.
func (e *Engine) CheckDeletable(ctx context.Context, q storage.Querier, root string) error {
	if err := e.requireExists(ctx, q, root); err != nil {
		return err
	}
	return e.checkInbound(ctx, q, root, 0,
		"artifact or one of its derived artifacts is the target of a relationship")
}

// CheckReplaceable is CheckDeletable for a content replace: root survives, so
// only relationships into its derived artifacts block.
func (e *Engine) CheckReplaceable(ctx context.Context, q storage.Querier, root string) error {
	return e.checkInbound(ctx, q, root, 1,
		"a derived artifact is the target of a relationship")
}

func (e *Engine) checkInbound(ctx context.Context, q storage.Querier, root string, minDepth int, msg string) error {
	rows, err := q.QueryContext(ctx, InboundGenericQuery, root, minDepth)
	if err != nil {
		return db.Classify(errors.Wrap(err, "failed to find inbound relationships"))
	}
	defer rows.Close()

	var edges []string
	for rows.Next() {
		var source, name, target string
		if err := rows.Scan(&source, &name, &target); err != nil {
			return db.Classify(errors.Wrap(err, "failed to scan inbound relationship"))
		}
		edges = append(edges, fmt.Sprintf("%s -%s-> %s", source, name, target))
	}
	if err := rows.Err(); err != nil {
		return db.Classify(err)
	}
	if len(edges) == 0 {
		return nil
	}

	e.logger.Debugw("Blocked by inbound relationships", "uuid", root, "edges", len(edges))
	err = errors.NewConstraint(errors.ConstraintRelationship, root, "%s", msg)
	err = errors.WithDetail(err, strings.Join(edges, "\n"))
	return errors.WithHint(err, "remove the listed relationships first")
}

// CheckNoCustomMetadataOnDerived fails when any derived artifact under root
// carries client custom properties or classifications
func (e *Engine) CheckNoCustomMetadataOnDerived(ctx context.Context, q storage.Querier, root string) error {
	rows, err := q.QueryContext(ctx, DerivedMetadataQuery, root)
	if err != nil {
		return db.Classify(errors.Wrap(err, "failed to inspect derived metadata"))
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var hasProps, hasClasses bool
		if err := rows.Scan(&id, &hasProps, &hasClasses); err != nil {
			return db.Classify(errors.Wrap(err, "failed to scan derived metadata"))
		}
		switch {
		case hasProps:
			return errors.WithDetailf(
				errors.NewConstraint(errors.ConstraintCustomProperty, root, "a derived artifact carries custom properties"),
				"derived artifact %s", id)
		case hasClasses:
			return errors.WithDetailf(
				errors.NewConstraint(errors.ConstraintClassifier, root, "a derived artifact carries classifications"),
				"derived artifact %s", id)
		}
	}
	return db.Classify(rows.Err())
}

// CascadeDelete removes root's derived subtree, leaving root itself. It is two-phase:
// relationships targeting a member are broken first, then members go deepest first.
// Derived edges from other generations are recorded as unresolved references so a
// later generation can relink them by name.
func (e *Engine) CascadeDelete(ctx context.Context, tx *storage.Tx, root string) error {
	members, err := e.members(ctx, tx.SQL(), root, 1)
	if err != nil {
		return err
	}
	if err := e.detach(ctx, tx, root, 1); err != nil {
		return err
	}

	for _, id := range members {
		res, err := tx.SQL().ExecContext(ctx, DeleteOneQuery, id)
		if err != nil {
			return db.Classify(errors.Wrapf(err, "failed to delete derived artifact %s", id))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return db.Classify(errors.Wrap(err, "failed to read affected rows"))
		}
		if n != 1 {
			return errors.NewRepository(errors.CodeRevisionConflict, true,
				errors.Newf("derived artifact %s changed during cascade", id))
		}
	}
	if len(members) > 0 {
		e.logger.Debugw("Cascaded derived subtree", "uuid", root, "deleted", len(members))
	}
	return nil
}

// DeleteTree deletes root with its full derived subtree after both checks pass.
// Nothing changes when a check fails.
func (e *Engine) DeleteTree(ctx context.Context, tx *storage.Tx, root string) error {
	if err := e.CheckDeletable(ctx, tx.SQL(), root); err != nil {
		return err
	}
	if err := e.CheckNoCustomMetadataOnDerived(ctx, tx.SQL(), root); err != nil {
		return err
	}
	if err := e.CascadeDelete(ctx, tx, root); err != nil {
		return err
	}
	if err := e.detach(ctx, tx, root, 0); err != nil {
		return err
	}
	return tx.DeleteArtifact(ctx, root)
}

// detach breaks every edge into subtree members at depth >= minDepth
func (e *Engine) detach(ctx context.Context, tx *storage.Tx, root string, minDepth int) error {
	refs, err := e.inboundDerived(ctx, tx.SQL(), root, minDepth)
	if err != nil {
		return err
	}
	for primary, list := range refs {
		if err := tx.SaveUnresolved(ctx, primary, list); err != nil {
			return err
		}
	}
	touched, err := e.touched(ctx, tx.SQL(), root, minDepth)
	if err != nil {
		return err
	}
	if _, err := tx.SQL().ExecContext(ctx, DetachTargetsQuery, root, minDepth); err != nil {
		return db.Classify(errors.Wrap(err, "failed to detach inbound relationships"))
	}
	// a derived relationship emptied by the detach goes with its last target
	for _, id := range touched {
		if _, err := tx.SQL().ExecContext(ctx, PruneEmptyQuery, id); err != nil {
			return db.Classify(errors.Wrap(err, "failed to prune empty relationship"))
		}
	}
	return nil
}

func (e *Engine) touched(ctx context.Context, q storage.Querier, root string, minDepth int) ([]int64, error) {
	rows, err := q.QueryContext(ctx, TouchedQuery, root, minDepth)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to find affected relationships"))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan relationship id"))
		}
		ids = append(ids, id)
	}
	return ids, db.Classify(rows.Err())
}

// inboundDerived groups re-resolvable inbound derived edges by the primary owning their source
func (e *Engine) inboundDerived(ctx context.Context, q storage.Querier, root string, minDepth int) (map[string][]artifact.UnresolvedRef, error) {
	rows, err := q.QueryContext(ctx, InboundDerivedQuery, root, minDepth)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to find inbound derived relationships"))
	}
	defer rows.Close()

	out := make(map[string][]artifact.UnresolvedRef)
	for rows.Next() {
		var primary string
		var ref artifact.UnresolvedRef
		if err := rows.Scan(&ref.Source, &primary, &ref.Relationship,
			&ref.Model, &ref.Type, &ref.Namespace, &ref.NCName); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan inbound derived relationship"))
		}
		// only named components and namespaced documents can be found again
		if ref.NCName == "" && ref.Namespace == "" {
			continue
		}
		out[primary] = append(out[primary], ref)
	}
	return out, db.Classify(rows.Err())
}

// ReverseRelationships returns every relationship, generic or derived, whose
// target set includes id
func (e *Engine) ReverseRelationships(ctx context.Context, q storage.Querier, id string) ([]ReverseRelationship, error) {
	if err := e.requireExists(ctx, q, id); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, ReverseQuery, id)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to query reverse relationships"))
	}
	defer rows.Close()

	out := []ReverseRelationship{}
	for rows.Next() {
		var r ReverseRelationship
		if err := rows.Scan(&r.Source, &r.Name, &r.Generic); err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan reverse relationship"))
		}
		out = append(out, r)
	}
	return out, db.Classify(rows.Err())
}

func (e *Engine) requireExists(ctx context.Context, q storage.Querier, id string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, storage.ArtifactExistsQuery, id).Scan(&exists); err != nil {
		return db.Classify(errors.Wrap(err, "failed to look up artifact"))
	}
	if !exists {
		return errors.NewNotFound("artifact", id)
	}
	return nil
}
