package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
)

const (
	StoredQueryInsertQuery = `
		INSERT INTO stored_queries (name, query_expression, property_names, order_by, ascending, created_by, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	StoredQueryUpdateQuery = `
		UPDATE stored_queries SET query_expression = ?, property_names = ?, order_by = ?, ascending = ?, modified_at = ?
		WHERE name = ?`

	StoredQuerySelectQuery = `
		SELECT name, query_expression, property_names, order_by, ascending, created_by, created_at, modified_at
		FROM stored_queries WHERE name = ?`

	StoredQueryListQuery = `
		SELECT name, query_expression, property_names, order_by, ascending, created_by, created_at, modified_at
		FROM stored_queries ORDER BY name`

	StoredQueryDeleteQuery = `DELETE FROM stored_queries WHERE name = ?`
)

// StoredQuery is a named, reusable query template
type StoredQuery struct {
	Name  string `json:"name" yaml:"name"`
	Query string `json:"query" yaml:"query"`
	// PropertyNames lists the properties projected into results
	PropertyNames []string  `json:"propertyNames" yaml:"propertyNames"`
	OrderBy       string    `json:"orderBy,omitempty" yaml:"orderBy,omitempty"`
	Ascending     bool      `json:"ascending" yaml:"ascending"`
	CreatedBy     string    `json:"createdBy" yaml:"createdBy"`
	CreatedAt     time.Time `json:"createdAt" yaml:"createdAt"`
	ModifiedAt    time.Time `json:"modifiedAt" yaml:"modifiedAt"`
}

func scanStoredQuery(row rowScanner) (*StoredQuery, error) {
	var (
		sq    StoredQuery
		names string
	)
	if err := row.Scan(&sq.Name, &sq.Query, &names, &sq.OrderBy, &sq.Ascending,
		&sq.CreatedBy, &sq.CreatedAt, &sq.ModifiedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(names), &sq.PropertyNames); err != nil {
		return nil, errors.Wrapf(err, "stored query %s has malformed property names", sq.Name)
	}
	sq.CreatedAt = sq.CreatedAt.UTC()
	sq.ModifiedAt = sq.ModifiedAt.UTC()
	return &sq, nil
}

func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal property names")
	}
	return string(b), nil
}

// CreateStoredQuery inserts sq; a taken name is a conflict
func (s *SQLStore) CreateStoredQuery(ctx context.Context, sq *StoredQuery) error {
	names, err := marshalNames(sq.PropertyNames)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sq.CreatedAt, sq.ModifiedAt = now, now
	_, err = s.db.ExecContext(ctx, StoredQueryInsertQuery,
		sq.Name, sq.Query, names, sq.OrderBy, sq.Ascending, sq.CreatedBy, formatTime(now), formatTime(now))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.NewConflict("duplicate_stored_query", sq.Name, "stored query already exists")
		}
		return db.Classify(errors.Wrapf(err, "failed to insert stored query %s", sq.Name))
	}
	return nil
}

// UpdateStoredQuery replaces the template and metadata of an existing stored query
func (s *SQLStore) UpdateStoredQuery(ctx context.Context, sq *StoredQuery) error {
	names, err := marshalNames(sq.PropertyNames)
	if err != nil {
		return err
	}
	sq.ModifiedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, StoredQueryUpdateQuery,
		sq.Query, names, sq.OrderBy, sq.Ascending, formatTime(sq.ModifiedAt), sq.Name)
	if err != nil {
		return db.Classify(errors.Wrapf(err, "failed to update stored query %s", sq.Name))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return db.Classify(err)
	}
	if n == 0 {
		return errors.NewNotFound("stored query", sq.Name)
	}
	return nil
}

// GetStoredQuery loads a stored query by name
func (s *SQLStore) GetStoredQuery(ctx context.Context, name string) (*StoredQuery, error) {
	sq, err := scanStoredQuery(s.db.QueryRowContext(ctx, StoredQuerySelectQuery, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("stored query", name)
	}
	if err != nil {
		return nil, db.Classify(errors.Wrapf(err, "failed to load stored query %s", name))
	}
	return sq, nil
}

// ListStoredQueries returns all stored queries ordered by name
func (s *SQLStore) ListStoredQueries(ctx context.Context) ([]*StoredQuery, error) {
	rows, err := s.db.QueryContext(ctx, StoredQueryListQuery)
	if err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to list stored queries"))
	}
	defer rows.Close()

	var out []*StoredQuery
	for rows.Next() {
		sq, err := scanStoredQuery(rows)
		if err != nil {
			return nil, db.Classify(errors.Wrap(err, "failed to scan stored query"))
		}
		out = append(out, sq)
	}
	return out, db.Classify(rows.Err())
}

// DeleteStoredQuery removes a stored query by name
func (s *SQLStore) DeleteStoredQuery(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, StoredQueryDeleteQuery, name)
	if err != nil {
		return db.Classify(errors.Wrapf(err, "failed to delete stored query %s", name))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return db.Classify(err)
	}
	if n == 0 {
		return errors.NewNotFound("stored query", name)
	}
	return nil
}
