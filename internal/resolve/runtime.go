package resolve

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/graft/internal/executor"
	"github.com/hanpama/graft/internal/preload"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/schema"
	"github.com/hanpama/graft/internal/shape"
)

// Runtime implements executor.Runtime over an Engine for the schema built by
// schema.BuildFromRegistry.
//
// Object values handed to the executor are *preload.Node. Column fields are
// read from the node's row synchronously; root fields and edges arrive in
// BatchResolveAsync together with the selection below them.
//
// Tasks are grouped by (objectType, field). Groups run in parallel, bounded by
// the engine's concurrency; the tasks of one group run in order. Results keep
// the order of the tasks.
type Runtime struct {
	engine *Engine
	reg    *relation.Registry
	roots  map[string]rootField
}

type rootField struct {
	typ      *relation.EntityType
	multiple bool
}

var _ executor.Runtime = (*Runtime)(nil)

func NewRuntime(engine *Engine, reg *relation.Registry) *Runtime {
	roots := make(map[string]rootField, 2*len(reg.Types()))
	for _, t := range reg.Types() {
		roots[t.FieldName()] = rootField{typ: t}
		roots[t.Plural] = rootField{typ: t, multiple: true}
	}
	return &Runtime{engine: engine, reg: reg, roots: roots}
}

// ResolveSync reads a column from the parent node. It never performs I/O.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	n, ok := source.(*preload.Node)
	if !ok {
		return nil, fmt.Errorf("%s.%s: source must be a node, got %T", objectType, field, source)
	}
	return n.Get(field), nil
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	type groupKey struct {
		objectType string
		field      string
	}
	var groups [][]int
	idxByKey := map[groupKey]int{}
	for i, t := range tasks {
		k := groupKey{objectType: t.ObjectType, field: t.Field}
		if gi, ok := idxByKey[k]; ok {
			groups[gi] = append(groups[gi], i)
		} else {
			idxByKey[k] = len(groups)
			groups = append(groups, []int{i})
		}
	}
	run := func(idxs []int) {
		for _, i := range idxs {
			v, err := r.resolveTask(ctx, tasks[i])
			if err != nil {
				results[i] = executor.AsyncResolveResult{Error: classify(err)}
				continue
			}
			results[i] = executor.AsyncResolveResult{Value: v}
		}
	}

	if len(groups) == 1 {
		run(groups[0])
		return results
	}
	var g errgroup.Group
	g.SetLimit(r.engine.concurrency)
	for _, idxs := range groups {
		idxs := idxs
		g.Go(func() error {
			run(idxs)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runtime) resolveTask(ctx context.Context, task executor.AsyncResolveTask) (any, error) {
	if task.Source == nil {
		return r.resolveRoot(ctx, task)
	}
	n, ok := task.Source.(*preload.Node)
	if !ok {
		return nil, fmt.Errorf("%s.%s: source must be a node, got %T", task.ObjectType, task.Field, task.Source)
	}
	edge := n.Type.Edge(task.Field)
	if edge == nil {
		return nil, fmt.Errorf("%s has no edge %s", n.Type.Name, task.Field)
	}
	page := preload.EdgePage(edge, &shape.Tree{Args: task.Args})
	v, err := r.engine.ResolveEdge(ctx, n, edge, page, task.Selection)
	if err != nil {
		return nil, err
	}
	if edge.Kind == relation.ToOne {
		if v.One == nil {
			return nil, nil
		}
		return v.One, nil
	}
	if v.Many == nil {
		return []*preload.Node{}, nil
	}
	return v.Many, nil
}

func (r *Runtime) resolveRoot(ctx context.Context, task executor.AsyncResolveTask) (any, error) {
	root, ok := r.roots[task.Field]
	if !ok {
		return nil, fmt.Errorf("unknown root field %s.%s", task.ObjectType, task.Field)
	}
	if !root.multiple {
		n, err := r.engine.ResolveSingle(ctx, root.typ, task.Args[schema.ArgID], task.Selection)
		if err != nil || n == nil {
			return nil, err
		}
		return n, nil
	}

	args, err := multipleArgs(task.Args)
	if err != nil {
		return nil, err
	}
	return r.engine.ResolveMultiple(ctx, root.typ, args, task.Selection)
}

func multipleArgs(raw map[string]any) (MultipleArgs, error) {
	args := MultipleArgs{Limit: relation.DefaultLimit, Offset: relation.DefaultOffset}
	if v, ok := raw[schema.ArgIDs]; ok && v != nil {
		ids, ok := v.([]any)
		if !ok {
			return args, &InvalidArgumentError{Arg: schema.ArgIDs, Err: fmt.Errorf("expected a list, got %T", v)}
		}
		args.IDs = ids
	}
	if n, ok := shape.Int(raw[schema.ArgLimit]); ok {
		args.Limit = n
	}
	if n, ok := shape.Int(raw[schema.ArgOffset]); ok {
		args.Offset = n
	}
	if v, ok := raw[schema.ArgQuery]; ok && v != nil {
		terms, ok := v.(map[string]any)
		if !ok {
			return args, &InvalidArgumentError{Arg: schema.ArgQuery, Err: fmt.Errorf("expected an object, got %T", v)}
		}
		args.Search = make(map[string]string, len(terms))
		for col, term := range terms {
			if term == nil {
				continue
			}
			s, ok := term.(string)
			if !ok {
				return args, &InvalidArgumentError{Arg: schema.ArgQuery, Err: fmt.Errorf("%s: expected a string, got %T", col, term)}
			}
			args.Search[col] = s
		}
	}
	return args, nil
}

// SerializeLeafValue converts normalized column values to their JSON form.
// IDs are always serialized as strings.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarTypeName string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch scalarTypeName {
	case "ID":
		switch v := value.(type) {
		case string:
			return v, nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case uint64:
			return strconv.FormatUint(v, 10), nil
		case int:
			return strconv.Itoa(v), nil
		case uuid.UUID:
			return v.String(), nil
		}
	case "Int":
		switch v := value.(type) {
		case int, int32, int64:
			return v, nil
		case uint64:
			return v, nil
		}
	case "Float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case "String":
		switch v := value.(type) {
		case string:
			return v, nil
		case uuid.UUID:
			return v.String(), nil
		}
	case "Boolean":
		if v, ok := value.(bool); ok {
			return v, nil
		}
	default:
		return nil, fmt.Errorf("unknown scalar %s", scalarTypeName)
	}
	return nil, fmt.Errorf("cannot serialize %v (%T) as %s", value, value, scalarTypeName)
}
