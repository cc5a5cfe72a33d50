package preload

import (
	"context"

	"github.com/hanpama/graft/internal/events"
	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/shape"
)

// batchResult is the outcome of one BatchRequest.
type batchResult struct {
	byKey map[graph.Key]graph.Row // ToOne
	rows  []graph.Row             // ToMany
	err   error
}

// fetchBatch issues the single fetch of req.
func fetchBatch(ctx context.Context, src Source, req *BatchRequest) batchResult {
	var res batchResult
	err := Observe(ctx, Fetch{Kind: events.FetchBatch, Type: req.Target.Name, Edges: req.EdgeNames(), Keys: len(req.Keys)},
		func(ctx context.Context) (int, error) {
			switch req.Kind {
			case relation.ToOne:
				m, err := src.FetchByKeys(ctx, req.Target, req.Keys)
				res.byKey = m
				return len(m), err
			default:
				rows, err := src.FetchByForeignKey(ctx, req.Target, req.Column, req.Keys, req.Page)
				res.rows = rows
				return len(rows), err
			}
		})
	res.err = err
	return res
}

// frame is a set of nodes of one type and the shape requested below them.
type frame struct {
	typ   *relation.EntityType
	nodes []*Node
	sel   shape.Selection
}

// fanOutToOne fills the slots of one ToOne edge and returns the distinct
// child nodes. Parents sharing a key share the child node. Parents with a null
// key or a dangling key get no slot.
func fanOutToOne(arena *Arena, req *BatchRequest, res batchResult, parents []*Node, es EdgeSelection) []*Node {
	byKey := make(map[graph.Key]*Node)
	var children []*Node
	for _, p := range parents {
		k := p.Get(es.Edge.Column)
		if graph.IsNull(k) {
			continue
		}
		child, ok := byKey[k]
		if !ok {
			row, found := res.byKey[k]
			if !found {
				continue
			}
			child = arena.NewNode(req.Target, row)
			byKey[k] = child
			children = append(children, child)
		}
		_ = arena.Slot(p, es.Edge.Name).Set(Value{One: child})
	}
	return children
}

// fanOutToMany partitions the rows of a ToMany batch by foreign key and fills
// each parent's slot with its bucket in fetch order.
//
// The page of the batch applies to the combined rows, so a later parent's
// bucket may be short or empty. Empty buckets are filled with an empty list
// only when the batch was provably complete (no offset and fewer rows than the
// limit); otherwise the slot stays empty and the resolver fetches directly.
func fanOutToMany(arena *Arena, src Source, req *BatchRequest, res batchResult, parents []*Node, es EdgeSelection) []*Node {
	children := arena.NewNodes(req.Target, res.rows)
	buckets := make(map[graph.Key][]*Node)
	for _, c := range children {
		k := c.Get(req.Column)
		buckets[k] = append(buckets[k], c)
	}
	complete := req.Page.Offset == 0 && (req.Page.Limit == 0 || len(res.rows) < req.Page.Limit)
	for _, p := range parents {
		bucket, ok := buckets[src.PrimaryKeyOf(p.Type, p.Row)]
		if !ok {
			if !complete {
				continue
			}
			bucket = []*Node{}
		}
		_ = arena.Slot(p, es.Edge.Name).Set(Value{Many: bucket, Page: req.Page})
	}
	return children
}

// failEdge records err in the slot of every parent the request covered.
func failEdge(arena *Arena, req *BatchRequest, parents []*Node, es EdgeSelection, err error) {
	ferr := &FetchError{Type: req.Target.Name, Edge: es.Edge.String(), Err: err}
	for _, p := range parents {
		if req.Kind == relation.ToOne && graph.IsNull(p.Get(es.Edge.Column)) {
			continue
		}
		_ = arena.Slot(p, es.Edge.Name).Set(Value{Err: ferr, Page: req.Page})
	}
}
