// Package preload implements the relationship preloading engine.
//
// Given the root nodes of a query field and the shape requested below them,
// the Preloader walks the shape top-down. At every level it aggregates the
// keys each requested edge needs across all parents, issues one fetch per
// edge (ToOne edges to the same type share one), fans the results back into
// per-(node, edge) slots held by the request's Arena, and continues with the
// fetched children and their own sub-shape. Field resolvers later take their
// slot exactly once, or fetch directly when it is empty.
package preload

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/shape"
)

// DefaultConcurrency bounds the sibling batch fetches of one level.
const DefaultConcurrency = 4

type Preloader struct {
	source      Source
	concurrency int
}

type Option func(*Preloader)

// WithConcurrency sets how many sibling batches of one level may be fetched
// at the same time. Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(p *Preloader) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

func New(source Source, opts ...Option) *Preloader {
	p := &Preloader{source: source, concurrency: DefaultConcurrency}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Source returns the preloader's storage capability.
func (p *Preloader) Source() Source { return p.source }

// Preload fills the slots of nodes (all of type t) and of every node fetched
// beneath them, following sel. It returns only when every batch has finished.
//
// A failed batch does not fail Preload: the failure is stored in the slots of
// the edge it served and its subtree is not preloaded. Preload fails only when
// ctx is done.
func (p *Preloader) Preload(ctx context.Context, arena *Arena, t *relation.EntityType, nodes []*Node, sel shape.Selection) error {
	stack := []frame{{typ: t, nodes: nodes, sel: sel}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		reqs := Aggregate(f.typ, f.nodes, f.sel)
		results := p.fetchAll(ctx, reqs)
		if err := ctx.Err(); err != nil {
			return err
		}

		// Children are pushed in reverse so the first edge is expanded first.
		var next []frame
		for i, req := range reqs {
			res := results[i]
			for _, es := range req.Edges {
				if res.err != nil {
					failEdge(arena, req, f.nodes, es, res.err)
					continue
				}
				var children []*Node
				switch req.Kind {
				case relation.ToOne:
					children = fanOutToOne(arena, req, res, f.nodes, es)
				case relation.ToMany:
					children = fanOutToMany(arena, p.source, req, res, f.nodes, es)
				}
				if len(children) > 0 {
					next = append(next, frame{typ: req.Target, nodes: children, sel: es.Selection})
				}
			}
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return nil
}

// fetchAll runs the requests of one level, at most p.concurrency at a time.
// Requests without keys are not sent.
func (p *Preloader) fetchAll(ctx context.Context, reqs []*BatchRequest) []batchResult {
	results := make([]batchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, req := range reqs {
		if len(req.Keys) == 0 {
			continue
		}
		i, req := i, req
		g.Go(func() error {
			results[i] = fetchBatch(ctx, p.source, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
