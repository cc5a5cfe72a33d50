package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/graft/internal/schema"
	"github.com/hanpama/graft/internal/shape"
)

// taskRecorder answers async list fields with an empty list, other async
// fields with an empty object, and keeps the tasks it saw.
type taskRecorder struct {
	tasks []AsyncResolveTask
	err   error
}

func (r *taskRecorder) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	return "x", nil
}

func (r *taskRecorder) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	r.tasks = append(r.tasks, tasks...)
	out := make([]AsyncResolveResult, len(tasks))
	for i := range out {
		if r.err != nil {
			out[i].Error = r.err
			continue
		}
		if tasks[i].Field == "posts" || tasks[i].Field == "comments" {
			out[i].Value = []any{}
			continue
		}
		out[i].Value = map[string]any{}
	}
	return out
}

func (r *taskRecorder) SerializeLeafValue(ctx context.Context, scalarTypeName string, value any) (any, error) {
	return value, nil
}

func blogSchema() *schema.Schema {
	intArg := func(name string, def any) *schema.InputValue {
		return schema.NewInputValue(name, "", schema.NamedType("Int")).SetDefault(def)
	}
	query := schema.NewType("Query", schema.TypeKindObject, "").
		AddField(schema.NewField("posts", "", schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType("Post"))))).
			SetAsync(true).
			AddArgument(intArg("limit", 10)).
			AddArgument(intArg("offset", 0)))
	post := schema.NewType("Post", schema.TypeKindObject, "").
		AddField(schema.NewField("title", "", schema.NamedType("String"))).
		AddField(schema.NewField("author", "", schema.NamedType("User")).SetAsync(true)).
		AddField(schema.NewField("comments", "", schema.ListType(schema.NamedType("Comment"))).
			SetAsync(true).
			AddArgument(intArg("limit", 10)).
			AddArgument(intArg("offset", 0)))
	user := schema.NewType("User", schema.TypeKindObject, "").
		AddField(schema.NewField("name", "", schema.NamedType("String")))
	comment := schema.NewType("Comment", schema.TypeKindObject, "").
		AddField(schema.NewField("body", "", schema.NamedType("String"))).
		AddField(schema.NewField("author", "", schema.NamedType("User")).SetAsync(true))
	return newSchemaWithQueryType(query, post, user, comment, schema.NewType("String", schema.TypeKindScalar, ""), schema.NewType("Int", schema.TypeKindScalar, ""))
}

func rootSelection(t *testing.T, query string, vars map[string]any) shape.Selection {
	t.Helper()
	rt := &taskRecorder{}
	res := NewExecutor(rt, blogSchema()).ExecuteRequest(context.Background(), mustParseQuery(t, query), "", vars, nil)
	require.Empty(t, res.Errors)
	require.NotEmpty(t, rt.tasks)
	return rt.tasks[0].Selection
}

func TestLookahead_ChildrenAndDefaults(t *testing.T) {
	sel := rootSelection(t, `{ posts { title author { name } comments(limit: 3) { body } } }`, nil)

	assert.Equal(t, 10, sel.IntArgument("limit", -1))

	_, ok := sel.ChildSelection("title")
	assert.True(t, ok)
	_, ok = sel.ChildSelection("missing")
	assert.False(t, ok)

	author, ok := sel.ChildSelection("author")
	require.True(t, ok)
	_, ok = author.ChildSelection("name")
	assert.True(t, ok)

	comments, ok := sel.ChildSelection("comments")
	require.True(t, ok)
	assert.Equal(t, 3, comments.IntArgument("limit", -1))
	assert.Equal(t, 0, comments.IntArgument("offset", -1))
	_, ok = comments.ChildSelection("author")
	assert.False(t, ok)

	title, _ := sel.ChildSelection("title")
	_, ok = title.ChildSelection("anything")
	assert.False(t, ok)
}

func TestLookahead_FragmentsDirectivesAndVariables(t *testing.T) {
	sel := rootSelection(t, `
		query Q($n: Int, $skip: Boolean!) {
			posts {
				...PostParts
				author @skip(if: $skip) { name }
			}
		}
		fragment PostParts on Post {
			comments(limit: $n) { ... on Comment { author { name } } }
		}`, map[string]any{"n": 4, "skip": true})

	_, ok := sel.ChildSelection("author")
	assert.False(t, ok)

	comments, ok := sel.ChildSelection("comments")
	require.True(t, ok)
	assert.Equal(t, 4, comments.IntArgument("limit", -1))
	_, ok = comments.ChildSelection("author")
	assert.True(t, ok)
}

func TestLookahead_AliasesMergeByFieldName(t *testing.T) {
	sel := rootSelection(t, `{ posts { a: author { name } b: author { name } first: comments(limit: 1) { body } second: comments(limit: 5) { author { name } } } }`, nil)

	comments, ok := sel.ChildSelection("comments")
	require.True(t, ok)
	assert.Equal(t, 1, comments.IntArgument("limit", -1))
	_, ok = comments.ChildSelection("author")
	assert.True(t, ok)
	_, ok = comments.ChildSelection("body")
	assert.True(t, ok)
}

func TestLookahead_InvalidArgumentFallsBackToDefault(t *testing.T) {
	sel := rootSelection(t, `{ posts { comments(limit: null) { body } } }`, nil)
	comments, ok := sel.ChildSelection("comments")
	require.True(t, ok)
	v, present := comments.Argument("limit")
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, 7, comments.IntArgument("limit", 7))
}

type codedError struct{ code string }

func (e codedError) Error() string              { return "coded failure" }
func (e codedError) Extensions() map[string]any { return map[string]any{"code": e.code} }

func TestErrors_ExtensionsArePropagated(t *testing.T) {
	rt := &taskRecorder{err: codedError{code: "NOT_FOUND"}}
	res := NewExecutor(rt, blogSchema()).ExecuteRequest(context.Background(), mustParseQuery(t, `{ posts { title } }`), "", nil, nil)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "coded failure", res.Errors[0].Message)
	assert.Equal(t, Path{"posts"}, res.Errors[0].Path)
	assert.Equal(t, map[string]any{"code": "NOT_FOUND"}, res.Errors[0].Extensions)
	assert.Equal(t, map[string]any{"posts": nil}, res.Data)

	var ext ExtendedError
	assert.True(t, errors.As(rt.err, &ext))
}
