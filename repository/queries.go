package repository

import (
	"context"
	"strings"
	"time"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/graph"
	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/metrics"
	"github.com/teranos/artificer/query"
	"github.com/teranos/artificer/storage"
)

// QueryRequest is one query execution. An empty OrderBy sorts by name
// ascending whatever Ascending says; Count zero means query.default_count.
type QueryRequest struct {
	Query      string
	Params     query.Params
	OrderBy    string
	Ascending  bool
	StartIndex int
	Count      int
	// PropertyNames selects the fields projected into ResultSet.Rows
	PropertyNames []string
}

// ResultSet is one page of query results
type ResultSet struct {
	Artifacts  []*artifact.Artifact
	Total      int
	StartIndex int
	Count      int
	OrderBy    string
	Ascending  bool
	// Rows holds the projected fields of each artifact when PropertyNames was set
	Rows []map[string]string
}

// Execute compiles, binds and evaluates a query
func (r *Repository) Execute(ctx context.Context, req QueryRequest) (*ResultSet, error) {
	start := time.Now()
	rs, err := r.execute(ctx, req)
	took := time.Since(start)
	metrics.RecordQuery(err, took)

	log := r.log(ctx).With(logger.FieldQuery, req.Query, logger.FieldDurationMS, took.Milliseconds())
	if err != nil {
		log.Debugw("Query failed", logger.FieldError, err, logger.FieldErrorCode, errors.Code(err))
		return nil, err
	}
	log.Debugw("Query executed", logger.FieldTotalCount, rs.Total, logger.FieldCount, len(rs.Artifacts))
	return rs, nil
}

func (r *Repository) execute(ctx context.Context, req QueryRequest) (*ResultSet, error) {
	q, err := query.Compile(req.Query)
	if err != nil {
		return nil, err
	}
	if q, err = query.Bind(q, req.Params); err != nil {
		return nil, err
	}

	page, err := r.page(req)
	if err != nil {
		return nil, err
	}
	res, err := r.store.Execute(ctx, q, page)
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{
		Artifacts:  res.Artifacts,
		Total:      res.Total,
		StartIndex: page.StartIndex,
		Count:      page.Count,
		OrderBy:    page.OrderBy,
		Ascending:  !page.Descending,
	}
	if len(req.PropertyNames) > 0 {
		rs.Rows = make([]map[string]string, len(res.Artifacts))
		for i, a := range res.Artifacts {
			rs.Rows[i] = artifact.Project(a, req.PropertyNames)
		}
	}
	return rs, nil
}

func (r *Repository) page(req QueryRequest) (storage.Page, error) {
	cfg := r.config().Query
	if req.StartIndex < 0 {
		return storage.Page{}, errors.NewInvalidRequestError("startIndex must be >= 0, got %d", req.StartIndex)
	}
	count := req.Count
	switch {
	case count < 0:
		return storage.Page{}, errors.NewInvalidRequestError("count must be >= 0, got %d", count)
	case count == 0:
		count = cfg.DefaultCount
	case count > cfg.MaxCount:
		count = cfg.MaxCount
	}

	page := storage.Page{StartIndex: req.StartIndex, Count: count, OrderBy: req.OrderBy}
	if page.OrderBy == "" {
		page.OrderBy = "name"
	} else {
		page.Descending = !req.Ascending
	}
	return page, nil
}

// ExecuteStored runs a stored query by name. The stored ordering and projection
// apply unless the request overrides them.
func (r *Repository) ExecuteStored(ctx context.Context, name string, params query.Params, req QueryRequest) (*ResultSet, error) {
	sq, err := r.store.GetStoredQuery(ctx, name)
	if err != nil {
		return nil, err
	}
	req.Query = sq.Query
	req.Params = params
	if req.OrderBy == "" && sq.OrderBy != "" {
		req.OrderBy = sq.OrderBy
		req.Ascending = sq.Ascending
	}
	if req.PropertyNames == nil {
		req.PropertyNames = sq.PropertyNames
	}
	return r.Execute(ctx, req)
}

// CreateStoredQuery saves a query template. The template must parse; it may
// hold placeholders bound at execution.
func (r *Repository) CreateStoredQuery(ctx context.Context, sq *storage.StoredQuery) error {
	if err := checkStoredQuery(sq); err != nil {
		return err
	}
	sq.CreatedBy = r.user(ctx)
	return r.store.CreateStoredQuery(ctx, sq)
}

// UpdateStoredQuery replaces an existing template
func (r *Repository) UpdateStoredQuery(ctx context.Context, sq *storage.StoredQuery) error {
	if err := checkStoredQuery(sq); err != nil {
		return err
	}
	return r.store.UpdateStoredQuery(ctx, sq)
}

func checkStoredQuery(sq *storage.StoredQuery) error {
	if strings.TrimSpace(sq.Name) == "" {
		return errors.NewInvalidRequestError("stored query name must not be empty")
	}
	_, err := query.Compile(sq.Query)
	return err
}

// GetStoredQuery loads a stored query by name
func (r *Repository) GetStoredQuery(ctx context.Context, name string) (*storage.StoredQuery, error) {
	return r.store.GetStoredQuery(ctx, name)
}

// ListStoredQueries returns every stored query
func (r *Repository) ListStoredQueries(ctx context.Context) ([]*storage.StoredQuery, error) {
	return r.store.ListStoredQueries(ctx)
}

// DeleteStoredQuery removes a stored query
func (r *Repository) DeleteStoredQuery(ctx context.Context, name string) error {
	return r.store.DeleteStoredQuery(ctx, name)
}

// ReverseRelationships lists the relationships whose targets include id
func (r *Repository) ReverseRelationships(ctx context.Context, id string) ([]graph.ReverseRelationship, error) {
	return r.engine.ReverseRelationships(ctx, r.store.DB(), id)
}

// Neighborhood renders the relationship graph around id
func (r *Repository) Neighborhood(ctx context.Context, id string, opts graph.Options) (*graph.Graph, error) {
	return graph.NewBuilder(r.engine, r.store, r.store.DB(), r.logger).Neighborhood(ctx, id, opts)
}
