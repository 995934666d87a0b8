package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/query"
)

// DefaultPageSize is the result count when a page does not set one
const DefaultPageSize = 20

// Page orders and slices query results. The zero value is the first
// DefaultPageSize results by name ascending.
type Page struct {
	OrderBy    string
	Descending bool
	StartIndex int
	Count      int
}

// QueryResult is one page of matches and the total number of matches
type QueryResult struct {
	Artifacts []*artifact.Artifact
	Total     int
}

// Execute evaluates a validated, fully bound query against the store
func (r *reader) Execute(ctx context.Context, q *query.Query, page Page) (*QueryResult, error) {
	if query.Unbound(q) {
		return nil, query.NewParseError(query.ErrorKindBinding, "query has unbound parameters")
	}
	if page.Count <= 0 {
		page.Count = DefaultPageSize
	}
	if page.StartIndex < 0 {
		page.StartIndex = 0
	}

	b := newQueryBuilder(r.classifier)
	set, args, err := b.uuidSet(q)
	if err != nil {
		return nil, err
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM artifacts WHERE uuid IN (" + set + ")"
	if err := r.q.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, db.Classify(errors.Wrap(err, "failed to count query results"))
	}
	res := &QueryResult{Total: total}
	if total == 0 || page.StartIndex >= total {
		return res, nil
	}

	// version orders by semantic version, which SQL cannot express
	if page.OrderBy == "version" {
		all, err := r.list(ctx, "SELECT "+artifactColumns+" FROM artifacts WHERE uuid IN ("+set+")", args...)
		if err != nil {
			return nil, err
		}
		sortByVersion(all, page.Descending)
		end := page.StartIndex + page.Count
		if end > len(all) {
			end = len(all)
		}
		res.Artifacts = all[page.StartIndex:end]
		return res, nil
	}

	orderSQL, orderArgs := orderClause(page)
	selectSQL := "SELECT " + artifactColumns + " FROM artifacts a WHERE a.uuid IN (" + set + ")" +
		orderSQL + " LIMIT ? OFFSET ?"
	selectArgs := append(append(args, orderArgs...), page.Count, page.StartIndex)

	r.logger.Debugw("Executing query", "sql", selectSQL, "args", len(selectArgs))
	if res.Artifacts, err = r.list(ctx, selectSQL, selectArgs...); err != nil {
		return nil, err
	}
	return res, nil
}

// orderClause orders by a core column or a custom property, uuid breaking ties
func orderClause(page Page) (string, []interface{}) {
	dir := " ASC"
	if page.Descending {
		dir = " DESC"
	}
	name := page.OrderBy
	if name == "" {
		name = "name"
	}
	if f, ok := artifact.LookupField(name); ok {
		return " ORDER BY a." + f.Column + dir + ", a.uuid", nil
	}
	return " ORDER BY (SELECT p.value FROM artifact_properties p WHERE p.artifact_uuid = a.uuid AND p.name = ?)" +
		dir + ", a.uuid", []interface{}{name}
}

// sortByVersion orders semantic versions numerically; anything unparseable sorts
// after them, lexically.
func sortByVersion(arts []*artifact.Artifact, descending bool) {
	parsed := make(map[string]*semver.Version, len(arts))
	for _, a := range arts {
		if v, err := semver.NewVersion(a.Version); err == nil {
			parsed[a.UUID] = v
		}
	}
	less := func(x, y *artifact.Artifact) bool {
		vx, vy := parsed[x.UUID], parsed[y.UUID]
		switch {
		case vx != nil && vy != nil:
			if c := vx.Compare(vy); c != 0 {
				return c < 0
			}
		case vx != nil:
			return true
		case vy != nil:
			return false
		default:
			if c := strings.Compare(x.Version, y.Version); c != 0 {
				return c < 0
			}
		}
		return x.UUID < y.UUID
	}
	sort.SliceStable(arts, func(i, j int) bool {
		if descending {
			return less(arts[j], arts[i])
		}
		return less(arts[i], arts[j])
	})
}
