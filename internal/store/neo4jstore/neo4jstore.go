// Package neo4jstore implements store.Repository over Neo4j. Each entity type
// is a node label; columns are node properties.
package neo4jstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

// Runner executes a Cypher query and buffers the result.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Executor is a Runner backed by a driver. Queries are routed to readers.
type Executor struct {
	Driver   neo4j.DriverWithContext
	Database string
}

// NewExecutor creates a driver for uri with basic auth.
func NewExecutor(uri, username, password, database string) (*Executor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: create driver: %w", err)
	}
	return &Executor{Driver: driver, Database: database}, nil
}

func (e *Executor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if e.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(e.Database))
	}
	res, err := neo4j.ExecuteQuery(ctx, e.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: execute: %w", err)
	}
	return res, nil
}

// Verify checks connectivity.
func (e *Executor) Verify(ctx context.Context) error { return e.Driver.VerifyConnectivity(ctx) }

func (e *Executor) Close(ctx context.Context) error { return e.Driver.Close(ctx) }

// Store is a store.Repository backed by a Runner.
type Store struct {
	runner Runner
}

var _ store.Repository = (*Store)(nil)

func New(runner Runner) *Store { return &Store{runner: runner} }

func (s *Store) Fetch(ctx context.Context, t *relation.EntityType, q store.Query) ([]graph.Row, error) {
	query, params, err := buildMatch(t, q)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: %s: %w", t.Name, err)
	}
	res, err := s.runner.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: query %s: %w", t.Name, err)
	}
	out := make([]graph.Row, 0, len(res.Records))
	for _, rec := range res.Records {
		v, ok := rec.Get("n")
		if !ok {
			return nil, fmt.Errorf("neo4jstore: %s: record without n", t.Name)
		}
		node, ok := v.(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("neo4jstore: %s: n is %T, not a node", t.Name, v)
		}
		row, err := graph.NormalizeRow(t, node.Props)
		if err != nil {
			return nil, fmt.Errorf("neo4jstore: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) FetchByKeys(ctx context.Context, t *relation.EntityType, keys []graph.Key) (map[graph.Key]graph.Row, error) {
	out := make(map[graph.Key]graph.Row, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := s.Fetch(ctx, t, store.Query{Where: []store.Predicate{store.In{Column: t.PrimaryKey, Values: keys}}})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row[t.PrimaryKey]] = row
	}
	return out, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quote(ident string) (string, error) {
	if !identRe.MatchString(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return "`" + ident + "`", nil
}

func buildMatch(t *relation.EntityType, q store.Query) (string, map[string]any, error) {
	label, err := quote(t.Name)
	if err != nil {
		return "", nil, err
	}
	params := map[string]any{}
	param := func(v any) string {
		name := fmt.Sprintf("p%d", len(params))
		params[name] = v
		return "$" + name
	}
	prop := func(col string) (string, error) {
		if t.Column(col) == nil {
			return "", fmt.Errorf("no column %s", col)
		}
		qc, err := quote(col)
		if err != nil {
			return "", err
		}
		return "n." + qc, nil
	}

	var where, order []string
	for _, p := range q.Where {
		switch p := p.(type) {
		case store.In:
			c, err := prop(p.Column)
			if err != nil {
				return "", nil, err
			}
			where = append(where, c+" IN "+param(bindValues(p.Values)))
		case store.Eq:
			c, err := prop(p.Column)
			if err != nil {
				return "", nil, err
			}
			if p.Value == nil {
				where = append(where, c+" IS NULL")
				continue
			}
			where = append(where, c+" = "+param(bindValue(p.Value)))
		case store.Search:
			cols := make([]string, 0, len(p.Terms))
			for c := range p.Terms {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			var ors []string
			for _, name := range cols {
				c, err := prop(name)
				if err != nil {
					return "", nil, err
				}
				term := param(p.Terms[name])
				if p.Mode == store.Prefix {
					ors = append(ors, fmt.Sprintf("(toLower(%s) STARTS WITH toLower(%s) OR toLower(%s) CONTAINS (' ' + toLower(%s)))", c, term, c, term))
					order = append(order, fmt.Sprintf("CASE WHEN toLower(%s) STARTS WITH toLower(%s) THEN 0 ELSE 1 END", c, term))
					continue
				}
				ors = append(ors, fmt.Sprintf("toLower(%s) CONTAINS toLower(%s)", c, term))
			}
			if len(ors) > 0 {
				where = append(where, "("+strings.Join(ors, " OR ")+")")
			}
		default:
			return "", nil, fmt.Errorf("unsupported predicate %T", p)
		}
	}
	pk, err := prop(t.PrimaryKey)
	if err != nil {
		return "", nil, err
	}
	order = append(order, pk)

	var sb strings.Builder
	sb.WriteString("MATCH (n:" + label + ")")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" RETURN n ORDER BY " + strings.Join(order, ", "))
	if q.Offset > 0 {
		sb.WriteString(" SKIP " + param(int64(q.Offset)))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + param(int64(q.Limit)))
	}
	return sb.String(), params, nil
}

func bindValues(keys []graph.Key) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = bindValue(k)
	}
	return out
}

func bindValue(v any) any {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return v
}
