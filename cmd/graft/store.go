package main

import (
	"context"
	"fmt"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/resolve"
	"github.com/hanpama/graft/internal/server"
	"github.com/hanpama/graft/internal/store"
	"github.com/hanpama/graft/internal/store/gormstore"
	"github.com/hanpama/graft/internal/store/neo4jstore"
	"github.com/hanpama/graft/internal/store/sqlstore"
)

type storeConfig struct {
	driver   string
	dsn      string
	user     string
	password string
	database string
}

// openStore opens the configured repository and checks that it is reachable.
func openStore(ctx context.Context, c storeConfig) (store.Repository, func() error, error) {
	if c.dsn == "" {
		return nil, nil, fmt.Errorf("-store.dsn is required")
	}
	switch c.driver {
	case "gorm-mysql", "gorm-postgres":
		s, err := gormstore.Open(c.driver[len("gorm-"):], c.dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := s.DB().DB().PingContext(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("ping %s: %w", c.driver, err)
		}
		return s, s.Close, nil

	case "neo4j":
		ex, err := neo4jstore.NewExecutor(c.dsn, c.user, c.password, c.database)
		if err != nil {
			return nil, nil, err
		}
		if err := ex.Verify(ctx); err != nil {
			_ = ex.Close(context.Background())
			return nil, nil, fmt.Errorf("verify neo4j: %w", err)
		}
		return neo4jstore.New(ex), func() error { return ex.Close(context.Background()) }, nil

	default:
		d, err := sqlstore.ParseDialect(c.driver)
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlstore.Open(d, c.dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("ping %s: %w", d, err)
		}
		return s, s.Close, nil
	}
}

// headerScope restricts root fetches of entities that have column to the rows
// whose column equals the forwarded header. Entities without the column are
// not scoped. A request without the header fails.
func headerScope(header, column string) resolve.ScopeFunc {
	return func(ctx context.Context, t *relation.EntityType, q *store.Query) error {
		col := t.Column(column)
		if col == nil {
			return nil
		}
		raw := server.Forwarded(ctx, header)
		if raw == "" {
			return fmt.Errorf("missing %s header", header)
		}
		v, err := graph.Normalize(col.Type, raw)
		if err != nil {
			return fmt.Errorf("%s header: %w", header, err)
		}
		*q = q.And(store.Eq{Column: column, Value: v})
		return nil
	}
}
