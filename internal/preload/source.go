package preload

import (
	"context"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

// Source is the capability the preloader needs from storage, implemented once
// for all entity types.
type Source interface {
	// FetchByKeys returns rows of t keyed by primary key.
	FetchByKeys(ctx context.Context, t *relation.EntityType, keys []graph.Key) (map[graph.Key]graph.Row, error)
	// FetchByForeignKey returns rows of t whose column holds one of keys,
	// ordered by primary key, with page applied to the combined result.
	FetchByForeignKey(ctx context.Context, t *relation.EntityType, column string, keys []graph.Key, page Page) ([]graph.Row, error)
	// PrimaryKeyOf returns the primary key of a row of t.
	PrimaryKeyOf(t *relation.EntityType, row graph.Row) graph.Key
}

// TableSource adapts a store.Repository to Source.
type TableSource struct {
	Repo store.Repository
}

var _ Source = TableSource{}

func (s TableSource) FetchByKeys(ctx context.Context, t *relation.EntityType, keys []graph.Key) (map[graph.Key]graph.Row, error) {
	if len(keys) == 0 {
		return map[graph.Key]graph.Row{}, nil
	}
	return s.Repo.FetchByKeys(ctx, t, keys)
}

func (s TableSource) FetchByForeignKey(ctx context.Context, t *relation.EntityType, column string, keys []graph.Key, page Page) ([]graph.Row, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return s.Repo.Fetch(ctx, t, store.Query{
		Where:  []store.Predicate{store.In{Column: column, Values: keys}},
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (TableSource) PrimaryKeyOf(t *relation.EntityType, row graph.Row) graph.Key {
	return row[t.PrimaryKey]
}
