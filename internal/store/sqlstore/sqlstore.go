// Package sqlstore implements store.Repository over database/sql for SQLite,
// MySQL and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	// Drivers for the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

// Querier is the read half of *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is a store.Repository backed by a SQL database.
type Store struct {
	q       Querier
	db      *sql.DB
	dialect Dialect
}

var _ store.Repository = (*Store)(nil)

// Open opens a database with the driver registered for the dialect.
func Open(dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}
	return &Store{q: db, db: db, dialect: dialect}, nil
}

// OpenDB wraps an existing database handle.
func OpenDB(dialect Dialect, db *sql.DB) *Store {
	return &Store{q: db, db: db, dialect: dialect}
}

// New wraps any Querier, such as a transaction.
func New(dialect Dialect, q Querier) *Store {
	return &Store{q: q, dialect: dialect}
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping verifies the connection when the store owns a *sql.DB.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close closes the database when the store owns it.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Fetch(ctx context.Context, t *relation.EntityType, q store.Query) ([]graph.Row, error) {
	query, args, err := buildSelect(s.dialect, t, q)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	return s.query(ctx, t, query, args)
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

func (s *Store) query(ctx context.Context, t *relation.EntityType, query string, args []any) ([]graph.Row, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query %s: %w", t.Name, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: columns %s: %w", t.Name, err)
	}
	var out []graph.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlstore: scan %s: %w", t.Name, err)
		}
		raw := make(map[string]any, len(names))
		for i, n := range names {
			raw[n] = values[i]
		}
		row, err := graph.NormalizeRow(t, raw)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: rows %s: %w", t.Name, err)
	}
	return out, nil
}

// bindValue converts key values to driver arguments.
func bindValue(v any) any {
	if u, ok := v.(uuid.UUID); ok {
		return u.String()
	}
	return v
}
