package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graft/internal/eventbus"
	"github.com/hanpama/graft/internal/events"
	"github.com/hanpama/graft/internal/executor"
	"github.com/hanpama/graft/internal/language"
	"github.com/hanpama/graft/internal/preload"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/schema"
	"github.com/hanpama/graft/internal/shape"
	"github.com/hanpama/graft/internal/store"
	"github.com/hanpama/graft/internal/store/storetest"
)

const blog = `
entities:
  - name: User
    columns:
      - {name: id, type: int}
      - {name: name, type: string, searchable: true}
    edges:
      - {name: posts, kind: toMany, target: Post, column: author_id}
  - name: Post
    columns:
      - {name: id, type: int}
      - {name: title, type: string}
      - {name: author_id, type: int, nullable: true}
    edges:
      - {name: author, kind: toOne, target: User}
      - {name: comments, kind: toMany, target: Comment}
  - name: Comment
    all: false
    columns:
      - {name: id, type: int}
      - {name: post_id, type: int}
      - {name: body, type: string}
    edges:
      - {name: post, kind: toOne, target: Post}
`

type fixture struct {
	reg    *relation.Registry
	mem    *storetest.Memory
	engine *Engine
	exec   *executor.Executor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg, err := relation.Parse([]byte(blog))
	require.NoError(t, err)
	sch, err := schema.BuildFromRegistry(reg)
	require.NoError(t, err)

	mem := storetest.NewMemory()
	mem.Insert(reg.MustType("User"),
		map[string]any{"id": 1, "name": "ann"},
		map[string]any{"id": 2, "name": "bob"},
		map[string]any{"id": 3, "name": "cat"},
	)
	mem.Insert(reg.MustType("Post"),
		map[string]any{"id": 10, "title": "hello", "author_id": 1},
		map[string]any{"id": 11, "title": "world", "author_id": 1},
		map[string]any{"id": 12, "title": "graphs", "author_id": 2},
		map[string]any{"id": 13, "title": "orphan", "author_id": 99},
	)
	mem.Insert(reg.MustType("Comment"),
		map[string]any{"id": 100, "post_id": 10, "body": "nice"},
		map[string]any{"id": 101, "post_id": 12, "body": "meh"},
	)

	engine := NewEngine(mem, opts...)
	return &fixture{
		reg:    reg,
		mem:    mem,
		engine: engine,
		exec:   executor.NewExecutor(NewRuntime(engine, reg), sch),
	}
}

func (f *fixture) run(t *testing.T, query string, vars map[string]any) (string, []executor.GraphQLError) {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := f.exec.ExecuteRequest(context.Background(), doc, "", vars, nil)
	data, err := json.Marshal(res.Data)
	require.NoError(t, err)
	return string(data), res.Errors
}

// rootNodes resolves typ by ids without a selection and forgets the calls it
// made.
func (f *fixture) rootNodes(t *testing.T, typ string, ids ...any) (*preload.Arena, []*preload.Node) {
	t.Helper()
	nodes, err := f.engine.ResolveMultiple(context.Background(), f.reg.MustType(typ), MultipleArgs{IDs: ids}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	f.mem.ResetCalls()
	return nodes[0].Arena(), nodes
}

func preloadPage(limit, offset int) preload.Page {
	return preload.Page{Limit: limit, Offset: offset}
}

func codes(errs []executor.GraphQLError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i], _ = e.Extensions["code"].(string)
	}
	return out
}

func recordMisses(t *testing.T) func() []events.SlotMiss {
	t.Helper()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	var (
		mu     sync.Mutex
		misses []events.SlotMiss
	)
	eventbus.Subscribe(func(_ context.Context, e events.SlotMiss) {
		mu.Lock()
		defer mu.Unlock()
		misses = append(misses, e)
	})
	return func() []events.SlotMiss {
		mu.Lock()
		defer mu.Unlock()
		return append([]events.SlotMiss(nil), misses...)
	}
}

func TestNestedQueryFetchesOncePerLevel(t *testing.T) {
	f := newFixture(t)
	misses := recordMisses(t)

	data, errs := f.run(t, `{
		users {
			id
			name
			posts { title author { name } }
		}
	}`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"users": [
		{"id": "1", "name": "ann", "posts": [
			{"title": "hello", "author": {"name": "ann"}},
			{"title": "world", "author": {"name": "ann"}}
		]},
		{"id": "2", "name": "bob", "posts": [
			{"title": "graphs", "author": {"name": "bob"}}
		]},
		{"id": "3", "name": "cat", "posts": []}
	]}`, data)

	var got []string
	for _, c := range f.mem.Calls() {
		got = append(got, c.Type+"."+c.Method)
	}
	want := []string{"User.Fetch", "Post.Fetch", "User.FetchByKeys"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, misses())
}

func TestBatchedResultMatchesIndividualResolution(t *testing.T) {
	f := newFixture(t)
	const body = `{ id name posts { title comments { body } author { name } } }`

	data, errs := f.run(t, `{ users `+body+` }`, nil)
	require.Empty(t, errs)
	var batched struct {
		Users []map[string]any `json:"users"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &batched))
	require.Len(t, batched.Users, 3)

	for i, id := range []string{"1", "2", "3"} {
		data, errs := f.run(t, `query($id: ID!) { user(id: $id) `+body+` }`, map[string]any{"id": id})
		require.Empty(t, errs)
		var single struct {
			User map[string]any `json:"user"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &single))
		if diff := cmp.Diff(batched.Users[i], single.User); diff != "" {
			t.Errorf("user %s mismatch (-batched +single):\n%s", id, diff)
		}
	}
}

func TestEmptyIDsFetchNothing(t *testing.T) {
	f := newFixture(t)
	data, errs := f.run(t, `{ users(ids: []) { name posts { title } } }`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"users": []}`, data)
	assert.Zero(t, f.mem.CallCount())
}

func TestRootListByIDs(t *testing.T) {
	f := newFixture(t)
	data, errs := f.run(t, `{ users(ids: ["3", "1", "1"]) { name } }`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"users": [{"name": "ann"}, {"name": "cat"}]}`, data)
}

func TestRootListRequiresIDsWhenNotAllowAll(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ResolveMultiple(context.Background(), f.reg.MustType("Comment"), MultipleArgs{}, nil)
	var aerr *InvalidArgumentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "ids", aerr.Arg)
	assert.Zero(t, f.mem.CallCount())
}

func TestSharedNodeSecondTakeFallsBack(t *testing.T) {
	f := newFixture(t)
	misses := recordMisses(t)

	data, errs := f.run(t, `{ posts(ids: ["10", "11"]) { id author { posts { title } } } }`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"posts": [
		{"id": "10", "author": {"posts": [{"title": "hello"}, {"title": "world"}]}},
		{"id": "11", "author": {"posts": [{"title": "hello"}, {"title": "world"}]}}
	]}`, data)

	got := misses()
	require.Len(t, got, 1)
	assert.Equal(t, events.SlotMiss{Type: "User", Edge: "User.posts", Reason: "taken"}, got[0])
	assert.Len(t, f.mem.CallsFor("Post"), 3)
}

func TestEdgeArgumentsOutsidePreloadedPageFallBack(t *testing.T) {
	f := newFixture(t)
	arena, nodes := f.rootNodes(t, "User", 1)
	user := nodes[0]
	edge := user.Type.Edge("posts")

	v, err := f.engine.ResolveEdge(context.Background(), user, edge, preloadPage(1, 1), nil)
	require.NoError(t, err)
	require.Len(t, v.Many, 1)
	assert.Equal(t, "world", v.Many[0].Get("title"))
	assert.Same(t, arena, v.Many[0].Arena())

	calls := f.mem.CallsFor("Post")
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].Query.Limit)
	assert.Equal(t, 1, calls[0].Query.Offset)
}

func TestScopeAppliesToRootFetches(t *testing.T) {
	f := newFixture(t, WithScope(func(ctx context.Context, typ *relation.EntityType, q *store.Query) error {
		if typ.Name == "User" {
			*q = q.And(store.Eq{Column: "name", Value: "bob"})
		}
		return nil
	}))
	data, errs := f.run(t, `{ users { name posts { title } } }`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"users": [{"name": "bob", "posts": [{"title": "graphs"}]}]}`, data)
}

func TestScopeErrorFailsRootField(t *testing.T) {
	f := newFixture(t, WithScope(func(context.Context, *relation.EntityType, *store.Query) error {
		return errors.New("no tenant")
	}))
	_, errs := f.run(t, `{ user(id: 1) { name } }`, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "no tenant", errs[0].Message)
	assert.Equal(t, []string{CodeInternal}, codes(errs))
	assert.Zero(t, f.mem.CallCount())
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	data, errs := f.run(t, `{ users(query: {name: "AN"}) { name } }`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"users": [{"name": "ann"}]}`, data)

	calls := f.mem.CallsFor("User")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Query.Where, store.Search{Terms: map[string]string{"name": "AN"}, Mode: store.Contains})
}

func TestSearchPrefixMode(t *testing.T) {
	f := newFixture(t, WithSearchMode(store.Prefix))
	data, errs := f.run(t, `{ users(query: {name: "b"}) { name } }`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"users": [{"name": "bob"}]}`, data)
}

func TestSearchRejectsUnsearchableColumns(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ResolveMultiple(context.Background(), f.reg.MustType("User"), MultipleArgs{Search: map[string]string{"id": "1"}}, nil)
	var aerr *InvalidArgumentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "query", aerr.Arg)
}

func TestSingleMissingRowIsNull(t *testing.T) {
	f := newFixture(t)
	data, errs := f.run(t, `{ user(id: 42) { name } }`, nil)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"user": null}`, data)
}

func TestErrorCodes(t *testing.T) {
	t.Run("dangling key is NOT_FOUND", func(t *testing.T) {
		f := newFixture(t)
		data, errs := f.run(t, `{ post(id: 13) { title author { name } } }`, nil)
		require.Len(t, errs, 1)
		assert.Equal(t, []string{CodeNotFound}, codes(errs))
		assert.Equal(t, executor.Path{"post", "author"}, errs[0].Path)
		assert.JSONEq(t, `{"post": {"title": "orphan", "author": null}}`, data)
	})

	t.Run("failed batch is FETCH_FAILED", func(t *testing.T) {
		f := newFixture(t)
		f.mem.FailOn("User", errors.New("connection reset"))
		data, errs := f.run(t, `{ posts(ids: ["10", "12"]) { title author { name } } }`, nil)
		require.Len(t, errs, 2)
		assert.Equal(t, []string{CodeFetchFailed, CodeFetchFailed}, codes(errs))
		assert.Contains(t, errs[0].Message, "connection reset")
		assert.JSONEq(t, `{"posts": [
			{"title": "hello", "author": null},
			{"title": "graphs", "author": null}
		]}`, data)
		assert.Len(t, f.mem.CallsFor("User"), 1)
	})

	t.Run("failed root fetch is FETCH_FAILED", func(t *testing.T) {
		f := newFixture(t)
		f.mem.FailOn("User", errors.New("down"))
		data, errs := f.run(t, `{ user(id: 1) { name } }`, nil)
		assert.Equal(t, []string{CodeFetchFailed}, codes(errs))
		assert.JSONEq(t, `{"user": null}`, data)
	})

	t.Run("malformed id is BAD_USER_INPUT", func(t *testing.T) {
		f := newFixture(t)
		_, errs := f.run(t, `{ user(id: "abc") { name } }`, nil)
		assert.Equal(t, []string{CodeInvalidArgument}, codes(errs))
		assert.Zero(t, f.mem.CallCount())
	})
}

func TestSerializeLeafValue(t *testing.T) {
	r := &Runtime{}
	ctx := context.Background()
	tests := []struct {
		scalar string
		in     any
		want   any
	}{
		{"ID", int64(7), "7"},
		{"ID", "a", "a"},
		{"Int", int64(3), int64(3)},
		{"Float", int64(2), float64(2)},
		{"String", "x", "x"},
		{"Boolean", true, true},
		{"String", nil, nil},
	}
	for _, tt := range tests {
		got, err := r.SerializeLeafValue(ctx, tt.scalar, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %v", tt.scalar, tt.in)
	}
	_, err := r.SerializeLeafValue(ctx, "Int", "3")
	assert.Error(t, err)
}

func TestMultipleArgs(t *testing.T) {
	args, err := multipleArgs(map[string]any{
		"ids":    []any{"1"},
		"limit":  5,
		"offset": 2,
		"query":  map[string]any{"name": "a", "title": nil},
	})
	require.NoError(t, err)
	want := MultipleArgs{IDs: []any{"1"}, Limit: 5, Offset: 2, Search: map[string]string{"name": "a"}}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}

	args, err = multipleArgs(map[string]any{"ids": nil})
	require.NoError(t, err)
	assert.Nil(t, args.IDs)
	assert.Equal(t, relation.DefaultLimit, args.Limit)
}

func TestSelectionDrivesPreload(t *testing.T) {
	f := newFixture(t)
	sel := shape.Select(map[string]*shape.Tree{"posts": shape.Leaf()})
	nodes, err := f.engine.ResolveMultiple(context.Background(), f.reg.MustType("User"), MultipleArgs{IDs: []any{1, 2}}, sel)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, 2, f.mem.CallCount())

	v, err := f.engine.ResolveEdge(context.Background(), nodes[1], nodes[1].Type.Edge("posts"), preloadPage(relation.DefaultLimit, 0), nil)
	require.NoError(t, err)
	require.Len(t, v.Many, 1)
	assert.Equal(t, 2, f.mem.CallCount())
}
