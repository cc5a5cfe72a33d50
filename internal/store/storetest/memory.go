// Package storetest provides an in-memory store.Repository that records every
// call, for tests of the engine and the resolvers.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

// Call is one recorded repository call.
type Call struct {
	Type   string
	Method string
	Query  store.Query
	Keys   []graph.Key
}

// Memory is a store.Repository over in-memory rows.
type Memory struct {
	mu    sync.Mutex
	rows  map[string][]graph.Row
	fail  map[string]error
	calls []Call
}

var _ store.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rows: map[string][]graph.Row{}, fail: map[string]error{}}
}

// Insert normalizes and stores rows of t. It panics on rows that do not
// normalize.
func (m *Memory) Insert(t *relation.EntityType, rows ...map[string]any) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range rows {
		row, err := graph.NormalizeRow(t, raw)
		if err != nil {
			panic(fmt.Sprintf("storetest: %v", err))
		}
		m.rows[t.Name] = append(m.rows[t.Name], row)
	}
	return m
}

// FailOn makes every call for the named type return err.
func (m *Memory) FailOn(typeName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[typeName] = err
}

// Calls returns the recorded calls in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns the number of recorded calls.
func (m *Memory) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor returns the recorded calls for the named type.
func (m *Memory) CallsFor(typeName string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Type == typeName {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Memory) Fetch(ctx context.Context, t *relation.EntityType, q store.Query) ([]graph.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Type: t.Name, Method: "Fetch", Query: q})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.fail[t.Name]; err != nil {
		return nil, err
	}

	var matched []graph.Row
	var rank []int
	for _, row := range m.rows[t.Name] {
		ok, r := matchAll(row, q.Where)
		if ok {
			matched = append(matched, row)
			rank = append(rank, r)
		}
	}
	idx := make([]int, len(matched))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if rank[a] != rank[b] {
			return rank[a] - rank[b]
		}
		return graph.CompareKeys(matched[a][t.PrimaryKey], matched[b][t.PrimaryKey])
	})

	out := make([]graph.Row, 0, len(idx))
	for i, j := range idx {
		if i < q.Offset {
			continue
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		out = append(out, matched[j].Clone())
	}
	return out, nil
}

func (m *Memory) FetchByKeys(ctx context.Context, t *relation.EntityType, keys []graph.Key) (map[graph.Key]graph.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Type: t.Name, Method: "FetchByKeys", Keys: slices.Clone(keys)})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.fail[t.Name]; err != nil {
		return nil, err
	}
	want := make(map[graph.Key]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[graph.Key]graph.Row)
	for _, row := range m.rows[t.Name] {
		if k := row[t.PrimaryKey]; want[k] {
			out[k] = row.Clone()
		}
	}
	return out, nil
}

// matchAll evaluates the conjunction and returns the prefix search rank of the
// row (0 when the row starts with a searched term).
func matchAll(row graph.Row, where []store.Predicate) (bool, int) {
	rank := 0
	for _, p := range where {
		switch p := p.(type) {
		case store.In:
			if !slices.ContainsFunc(p.Values, func(k graph.Key) bool { return k == row[p.Column] }) {
				return false, 0
			}
		case store.Eq:
			if row[p.Column] != p.Value {
				return false, 0
			}
		case store.Search:
			ok, r := matchSearch(row, p)
			if !ok {
				return false, 0
			}
			rank = r
		default:
			panic(fmt.Sprintf("storetest: unsupported predicate %T", p))
		}
	}
	return true, rank
}

func matchSearch(row graph.Row, s store.Search) (bool, int) {
	fold := cases.Fold()
	best := -1
	for col, term := range s.Terms {
		text, _ := row[col].(string)
		text, term = fold.String(text), fold.String(term)
		switch s.Mode {
		case store.Prefix:
			if !hasWordPrefix(text, term) {
				continue
			}
			r := 1
			if strings.HasPrefix(text, term) {
				r = 0
			}
			if best < 0 || r < best {
				best = r
			}
		default:
			if strings.Contains(text, term) {
				best = 0
			}
		}
	}
	return best >= 0, best
}

func hasWordPrefix(text, term string) bool {
	for _, w := range strings.Fields(text) {
		if strings.HasPrefix(w, term) {
			return true
		}
	}
	return false
}
