package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
)

// Audit entry types
const (
	AuditAdd    = "artifact:add"
	AuditUpdate = "artifact:update"
	AuditDelete = "artifact:delete"
)

const (
	AuditInsertQuery = `
		INSERT INTO audit_entries (uuid, artifact_uuid, type, who, at, items)
		VALUES (?, ?, ?, ?, ?, ?)`

	AuditTrailQuery = `
		SELECT uuid, artifact_uuid, type, who, at, items FROM audit_entries
		WHERE artifact_uuid = ? ORDER BY at, rowid`

	AuditSelectQuery = `
		SELECT uuid, artifact_uuid, type, who, at, items FROM audit_entries
		WHERE artifact_uuid = ? AND uuid = ?`
)

// AuditItem is one recorded property change
type AuditItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AuditEntry records one mutation of an artifact. Entries outlive the artifact.
type AuditEntry struct {
	UUID         string      `json:"uuid"`
	ArtifactUUID string      `json:"artifactUuid"`
	Type         string      `json:"type"`
	Who          string      `json:"who"`
	At           time.Time   `json:"at"`
	Items        []AuditItem `json:"items"`
}

// AppendAudit records e inside the transaction. UUID and At default to fresh values.
func (t *Tx) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	items := e.Items
	if items == nil {
		items = []AuditItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit items")
	}
	if _, err := t.q.ExecContext(ctx, AuditInsertQuery,
		e.UUID, e.ArtifactUUID, e.Type, e.Who, formatTime(e.At), string(b)); err != nil {
		return errors.Wrapf(err, "failed to append audit entry for %s", e.ArtifactUUID)
	}
	return nil
}

func scanAudit(row rowScanner) (*AuditEntry, error) {
	var (
		e     AuditEntry
		items string
	)
	if err := row.Scan(&e.UUID, &e.ArtifactUUID, &e.Type, &e.Who, &e.At, &items); err != nil {
		return nil, err
	}
	e.At = e.At.UTC()
	if err := json.Unmarshal([]byte(items), &e.Items); err != nil {
		return nil, errors.Wrapf(err, "audit entry %s has malformed items", e.UUID)
	}
	return &e, nil
}

// AuditTrail returns the entries of artifactUUID, oldest first
func (r *reader) AuditTrail(ctx context.Context, artifactUUID string) ([]*AuditEntry, error) {
	rows, err := r.q.QueryContext(ctx, AuditTrailQuery, artifactUUID)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to load audit trail"))
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan audit entry"))
		}
		out = append(out, e)
	}
	return out, db.Classify(rows.Err())
}

// GetAuditEntry loads one entry of artifactUUID's trail
func (r *reader) GetAuditEntry(ctx context.Context, artifactUUID, entryUUID string) (*AuditEntry, error) {
	e, err := scanAudit(r.q.QueryRowContext(ctx, AuditSelectQuery, artifactUUID, entryUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("audit entry", entryUUID)
	}
	if err != nil {
		return nil, db.Classify(errors.Wrapf(err, "failed to load audit entry %s", entryUUID))
	}
	return e, nil
}
