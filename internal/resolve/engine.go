// Package resolve answers root query fields and relationship edges.
//
// Root fields fetch their entities, then hand them to the preloader together
// with the requested shape so that every relationship below is batch-fetched
// once per level. Edge fields take the value the preloader left in their slot
// and fetch directly only when the slot has nothing for them.
package resolve

import (
	"context"
	"fmt"

	"github.com/hanpama/graft/internal/eventbus"
	"github.com/hanpama/graft/internal/events"
	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/preload"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/shape"
	"github.com/hanpama/graft/internal/store"
)

// ScopeFunc narrows the query of a root fetch, for example to the rows of one
// tenant. Returning an error fails the root field.
type ScopeFunc func(ctx context.Context, t *relation.EntityType, q *store.Query) error

type Engine struct {
	repo       store.Repository
	source     preload.Source
	preloader  *preload.Preloader
	scope      ScopeFunc
	searchMode store.SearchMode

	// concurrency also bounds the field groups a Runtime resolves at once.
	concurrency int
}

type Option func(*engineOptions)

type engineOptions struct {
	scope       ScopeFunc
	searchMode  store.SearchMode
	concurrency int
}

// WithScope installs a hook applied to every root fetch.
func WithScope(f ScopeFunc) Option { return func(o *engineOptions) { o.scope = f } }

// WithSearchMode sets how root list search terms match. Default is store.Contains.
func WithSearchMode(m store.SearchMode) Option { return func(o *engineOptions) { o.searchMode = m } }

// WithConcurrency bounds the sibling batch fetches of one preload level.
func WithConcurrency(n int) Option { return func(o *engineOptions) { o.concurrency = n } }

func NewEngine(repo store.Repository, opts ...Option) *Engine {
	o := engineOptions{searchMode: store.Contains, concurrency: preload.DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	src := preload.TableSource{Repo: repo}
	return &Engine{
		repo:        repo,
		source:      src,
		preloader:   preload.New(src, preload.WithConcurrency(o.concurrency)),
		scope:       o.scope,
		searchMode:  o.searchMode,
		concurrency: max(o.concurrency, 1),
	}
}

// MultipleArgs are the arguments of a root list field.
type MultipleArgs struct {
	// IDs restricts the result to these primary keys. A nil slice means every
	// row, which the entity must allow; an empty slice matches nothing.
	IDs    []any
	Limit  int
	Offset int
	// Search maps searchable columns to terms. Rows matching any term are kept.
	Search map[string]string
}

// EdgeValue is the resolved value of an edge: One for ToOne edges, Many for
// ToMany edges.
type EdgeValue struct {
	One  *preload.Node
	Many []*preload.Node
}

// ResolveSingle fetches one entity by primary key and preloads the
// relationships requested in sel below it. A missing row yields (nil, nil).
func (e *Engine) ResolveSingle(ctx context.Context, t *relation.EntityType, id any, sel shape.Selection) (*preload.Node, error) {
	key, err := graph.Normalize(t.PrimaryColumn().Type, id)
	if err != nil {
		return nil, &InvalidArgumentError{Arg: "id", Err: err}
	}
	q := store.Query{Where: []store.Predicate{store.Eq{Column: t.PrimaryKey, Value: key}}, Limit: 1}
	nodes, err := e.root(ctx, t, q, 1, sel)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// ResolveMultiple fetches a page of entities and preloads the relationships
// requested in sel below them.
func (e *Engine) ResolveMultiple(ctx context.Context, t *relation.EntityType, args MultipleArgs, sel shape.Selection) ([]*preload.Node, error) {
	q := store.Query{Limit: args.Limit, Offset: args.Offset}
	if q.Limit < 1 {
		q.Limit = relation.DefaultLimit
	}
	if q.Offset < 0 {
		q.Offset = relation.DefaultOffset
	}

	keys := 0
	switch {
	case args.IDs != nil:
		if len(args.IDs) == 0 {
			return []*preload.Node{}, nil
		}
		ids, err := graph.NormalizeKeys(t.PrimaryColumn(), args.IDs)
		if err != nil {
			return nil, &InvalidArgumentError{Arg: "ids", Err: err}
		}
		ids = graph.SortedUniqueKeys(ids)
		keys = len(ids)
		q.Where = append(q.Where, store.In{Column: t.PrimaryKey, Values: ids})
	case !t.AllowAll:
		return nil, &InvalidArgumentError{Arg: "ids", Err: fmt.Errorf("%s cannot be listed without ids", t.Name)}
	}

	if terms, err := searchTerms(t, args.Search); err != nil {
		return nil, err
	} else if len(terms) > 0 {
		q.Where = append(q.Where, store.Search{Terms: terms, Mode: e.searchMode})
	}
	return e.root(ctx, t, q, keys, sel)
}

func searchTerms(t *relation.EntityType, search map[string]string) (map[string]string, error) {
	terms := make(map[string]string, len(search))
	for col, term := range search {
		c := t.Column(col)
		if c == nil || !c.Searchable {
			return nil, &InvalidArgumentError{Arg: "query", Err: fmt.Errorf("%s.%s is not searchable", t.Name, col)}
		}
		if term != "" {
			terms[col] = term
		}
	}
	return terms, nil
}

// root runs a root fetch in a fresh arena and preloads below the result.
func (e *Engine) root(ctx context.Context, t *relation.EntityType, q store.Query, keys int, sel shape.Selection) ([]*preload.Node, error) {
	if e.scope != nil {
		if err := e.scope(ctx, t, &q); err != nil {
			return nil, err
		}
	}
	var rows []graph.Row
	err := preload.Observe(ctx, preload.Fetch{Kind: events.FetchRoot, Type: t.Name, Keys: keys}, func(ctx context.Context) (int, error) {
		var err error
		rows, err = e.repo.Fetch(ctx, t, q)
		return len(rows), err
	})
	if err != nil {
		return nil, &preload.FetchError{Type: t.Name, Err: err}
	}
	arena := preload.NewArena()
	nodes := arena.NewNodes(t, rows)
	if err := e.preloader.Preload(ctx, arena, t, nodes, sel); err != nil {
		return nil, err
	}
	return nodes, nil
}

// ResolveEdge returns the value of edge for n. A preloaded value is taken from
// n's slot; a recorded batch failure is returned as the error. When the slot
// holds nothing usable the edge is fetched directly for n alone, and the
// children fetched that way get their own requested shape preloaded.
func (e *Engine) ResolveEdge(ctx context.Context, n *preload.Node, edge *relation.Edge, page preload.Page, sel shape.Selection) (EdgeValue, error) {
	slot := n.Arena().Slot(n, edge.Name)
	v, ok := slot.Take()
	switch {
	case ok && v.Err != nil:
		return EdgeValue{}, v.Err
	case ok && edge.Kind == relation.ToOne:
		return EdgeValue{One: v.One}, nil
	case ok && v.Page == page:
		return EdgeValue{Many: v.Many}, nil
	}

	reason := slot.State().String()
	if ok {
		reason = "page mismatch"
	}
	eventbus.Publish(ctx, events.SlotMiss{Type: n.Type.Name, Edge: edge.String(), Reason: reason})
	return e.fallback(ctx, n, edge, page, sel)
}

func (e *Engine) fallback(ctx context.Context, n *preload.Node, edge *relation.Edge, page preload.Page, sel shape.Selection) (EdgeValue, error) {
	target := edge.TargetType()
	arena := n.Arena()
	fetch := preload.Fetch{Kind: events.FetchFallback, Type: target.Name, Edges: []string{edge.String()}, Keys: 1}

	switch edge.Kind {
	case relation.ToOne:
		key := n.Get(edge.Column)
		if graph.IsNull(key) {
			return EdgeValue{}, nil
		}
		var byKey map[graph.Key]graph.Row
		err := preload.Observe(ctx, fetch, func(ctx context.Context) (int, error) {
			var err error
			byKey, err = e.source.FetchByKeys(ctx, target, []graph.Key{key})
			return len(byKey), err
		})
		if err != nil {
			return EdgeValue{}, &preload.FetchError{Type: target.Name, Edge: edge.String(), Err: err}
		}
		row, found := byKey[key]
		if !found {
			return EdgeValue{}, store.NewNotFoundError(target.Name, key)
		}
		child := arena.NewNode(target, row)
		if err := e.preloader.Preload(ctx, arena, target, []*preload.Node{child}, sel); err != nil {
			return EdgeValue{}, err
		}
		return EdgeValue{One: child}, nil

	default:
		var rows []graph.Row
		err := preload.Observe(ctx, fetch, func(ctx context.Context) (int, error) {
			var err error
			rows, err = e.source.FetchByForeignKey(ctx, target, edge.Column, []graph.Key{n.Key()}, page)
			return len(rows), err
		})
		if err != nil {
			return EdgeValue{}, &preload.FetchError{Type: target.Name, Edge: edge.String(), Err: err}
		}
		children := arena.NewNodes(target, rows)
		if err := e.preloader.Preload(ctx, arena, target, children, sel); err != nil {
			return EdgeValue{}, err
		}
		return EdgeValue{Many: children}, nil
	}
}
