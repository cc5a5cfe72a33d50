// Package gormstore implements store.Repository on top of a jinzhu/gorm
// connection, for deployments that already share a *gorm.DB.
package gormstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/gorm"

	// Drivers for the gorm dialects this store is used with.
	_ "github.com/jinzhu/gorm/dialects/mysql"
	_ "github.com/jinzhu/gorm/dialects/postgres"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

// Store is a store.Repository backed by gorm.
//
// gorm v1 does not take a context, so cancellation is only checked before a
// query is issued.
type Store struct {
	db *gorm.DB
}

var _ store.Repository = (*Store)(nil)

// Open opens a gorm connection. dialect is a gorm dialect name such as "mysql"
// or "postgres"; source is a DSN or an existing *sql.DB.
func Open(dialect string, source any) (*Store, error) {
	db, err := gorm.Open(dialect, source)
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", dialect, err)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Fetch(ctx context.Context, t *relation.EntityType, q store.Query) ([]graph.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := s.selectQuery(t, q)
	if err != nil {
		return nil, fmt.Errorf("gormstore: %s: %w", t.Name, err)
	}
	rows, err := tx.Rows()
	if err != nil {
		return nil, fmt.Errorf("gormstore: query %s: %w", t.Name, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("gormstore: columns %s: %w", t.Name, err)
	}
	var out []graph.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("gormstore: scan %s: %w", t.Name, err)
		}
		raw := make(map[string]any, len(names))
		for i, n := range names {
			raw[n] = values[i]
		}
		row, err := graph.NormalizeRow(t, raw)
		if err != nil {
			return nil, fmt.Errorf("gormstore: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gormstore: rows %s: %w", t.Name, err)
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

func (s *Store) selectQuery(t *relation.EntityType, q store.Query) (*gorm.DB, error) {
	d := s.db.Dialect()
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = d.Quote(c.Name)
	}
	tx := s.db.Table(t.Table).Select(strings.Join(cols, ", "))

	var ranks []any
	for _, p := range q.Where {
		switch p := p.(type) {
		case store.In:
			if t.Column(p.Column) == nil {
				return nil, fmt.Errorf("no column %s", p.Column)
			}
			if len(p.Values) == 0 {
				tx = tx.Where("1 = 0")
				continue
			}
			tx = tx.Where(d.Quote(p.Column)+" IN (?)", bindValues(p.Values))
		case store.Eq:
			if t.Column(p.Column) == nil {
				return nil, fmt.Errorf("no column %s", p.Column)
			}
			if p.Value == nil {
				tx = tx.Where(d.Quote(p.Column) + " IS NULL")
				continue
			}
			tx = tx.Where(d.Quote(p.Column)+" = ?", bindValue(p.Value))
		case store.Search:
			cond, args, rank, err := s.search(t, p)
			if err != nil {
				return nil, err
			}
			if cond != "" {
				tx = tx.Where(cond, args...)
			}
			ranks = append(ranks, rank...)
		default:
			return nil, fmt.Errorf("unsupported predicate %T", p)
		}
	}
	for _, r := range ranks {
		tx = tx.Order(r)
	}
	tx = tx.Order(d.Quote(t.PrimaryKey) + " ASC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return tx, nil
}

func (s *Store) search(t *relation.EntityType, p store.Search) (string, []any, []any, error) {
	d := s.db.Dialect()
	like := "LIKE"
	if d.GetName() == "postgres" {
		like = "ILIKE"
	}
	names := make([]string, 0, len(p.Terms))
	for n := range p.Terms {
		names = append(names, n)
	}
	sort.Strings(names)

	var ors []string
	var args, ranks []any
	for _, n := range names {
		if t.Column(n) == nil {
			return "", nil, nil, fmt.Errorf("no column %s", n)
		}
		col, term := d.Quote(n), escapeLike(p.Terms[n])
		if p.Mode == store.Prefix {
			ors = append(ors, fmt.Sprintf("(%s %s ? OR %s %s ?)", col, like, col, like))
			args = append(args, term+"%", "% "+term+"%")
			ranks = append(ranks, gorm.Expr(fmt.Sprintf("CASE WHEN %s %s ? THEN 0 ELSE 1 END", col, like), term+"%"))
			continue
		}
		ors = append(ors, fmt.Sprintf("%s %s ?", col, like))
		args = append(args, "%"+term+"%")
	}
	return strings.Join(ors, " OR "), args, ranks, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
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
