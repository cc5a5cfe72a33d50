package preload

import (
	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/shape"
)

// EdgeSelection is a requested edge and the shape requested below it.
type EdgeSelection struct {
	Edge      *relation.Edge
	Selection shape.Selection
}

// BatchRequest is one fetch for one depth level: the target type, the column
// the keys filter on and the sorted, duplicate-free key set.
//
// ToOne requests filter the target's primary key and may serve several edges
// that point at the same type. ToMany requests filter the edge's foreign key
// column and always serve exactly one edge.
type BatchRequest struct {
	Kind   relation.Kind
	Target *relation.EntityType
	Column string
	Keys   []graph.Key
	Page   Page
	Edges  []EdgeSelection
}

// EdgeNames returns the names of the edges the request serves.
func (r *BatchRequest) EdgeNames() []string {
	out := make([]string, len(r.Edges))
	for i, e := range r.Edges {
		out[i] = e.Edge.String()
	}
	return out
}

// Aggregate builds the batch requests for the edges of t selected in sel,
// collecting keys across parents. Edges missing from sel produce no request.
// Requests are returned in edge declaration order, a shared ToOne request at
// the position of its first edge.
func Aggregate(t *relation.EntityType, parents []*Node, sel shape.Selection) []*BatchRequest {
	if sel == nil {
		return nil
	}
	var out []*BatchRequest
	toOne := make(map[string]*BatchRequest)
	for _, e := range t.Edges {
		child, ok := sel.ChildSelection(e.Name)
		if !ok {
			continue
		}
		es := EdgeSelection{Edge: e, Selection: child}
		switch e.Kind {
		case relation.ToOne:
			req, ok := toOne[e.Target]
			if !ok {
				req = &BatchRequest{Kind: relation.ToOne, Target: e.TargetType(), Column: e.TargetType().PrimaryKey}
				toOne[e.Target] = req
				out = append(out, req)
			}
			req.Edges = append(req.Edges, es)
			for _, p := range parents {
				req.Keys = append(req.Keys, p.Get(e.Column))
			}
		case relation.ToMany:
			req := &BatchRequest{
				Kind:   relation.ToMany,
				Target: e.TargetType(),
				Column: e.Column,
				Page:   EdgePage(e, child),
				Edges:  []EdgeSelection{es},
			}
			for _, p := range parents {
				req.Keys = append(req.Keys, p.Key())
			}
			out = append(out, req)
		}
	}
	for _, req := range out {
		req.Keys = graph.SortedUniqueKeys(req.Keys)
	}
	return out
}

// EdgePage reads the pagination of a ToMany edge from its selection, applying
// the edge defaults. A limit below 1 falls back to the default. Unpaginated
// edges have the zero Page.
func EdgePage(e *relation.Edge, sel shape.Selection) Page {
	if e.Kind != relation.ToMany || !e.Paginated {
		return Page{}
	}
	p := Page{Limit: e.DefaultLimit, Offset: relation.DefaultOffset}
	if sel != nil {
		p.Limit = sel.IntArgument("limit", p.Limit)
		p.Offset = sel.IntArgument("offset", p.Offset)
	}
	if p.Limit < 1 {
		p.Limit = e.DefaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
