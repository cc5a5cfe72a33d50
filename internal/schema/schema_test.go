package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graft/internal/language"
	"github.com/hanpama/graft/internal/relation"
)

const registryYAML = `
entities:
  - name: User
    columns:
      - {name: id, type: int}
      - {name: name, type: string, searchable: true}
      - {name: email, type: string, nullable: true}
    edges:
      - {name: posts, kind: toMany, target: Post, column: author_id, defaultLimit: 5}
      - {name: drafts, kind: toMany, target: Post, column: author_id, paginated: false}
  - name: Post
    all: false
    columns:
      - {name: id, type: uuid}
      - {name: author_id, type: int, nullable: true}
      - {name: score, type: float}
      - {name: draft, type: bool}
    edges:
      - {name: author, kind: toOne, target: User}
`

const wantSDL = `type Post {
  id: ID!
  author_id: Int
  score: Float!
  draft: Boolean!
  author: User
}

type Query {
  "Fetches one User by primary key."
  user(id: ID!): User
  "Lists User rows ordered by primary key."
  users(ids: [ID!], limit: Int = 10, offset: Int = 0, query: UserQuery): [User!]!
  "Fetches one Post by primary key."
  post(id: ID!): Post
  "Lists Post rows ordered by primary key."
  posts(ids: [ID!]!, limit: Int = 10, offset: Int = 0): [Post!]!
}

type User {
  id: ID!
  name: String!
  email: String
  posts(limit: Int = 5, offset: Int = 0): [Post!]!
  drafts: [Post!]!
}

"Search terms for User. Rows matching any given term are returned."
input UserQuery {
  name: String
}
`

func mustSchema(t *testing.T) *Schema {
	t.Helper()
	reg, err := relation.Parse([]byte(registryYAML))
	require.NoError(t, err)
	s, err := BuildFromRegistry(reg)
	require.NoError(t, err)
	return s
}

func TestRenderRegistrySchema(t *testing.T) {
	got := Render(mustSchema(t))
	if diff := cmp.Diff(wantSDL, got); diff != "" {
		t.Fatalf("SDL mismatch (-want +got):\n%s", diff)
	}
	_, err := language.ParseSchema("graft.graphql", got)
	require.NoError(t, err)
}

func TestBuildFromRegistryResolution(t *testing.T) {
	s := mustSchema(t)
	require.NotNil(t, s.GetQueryType())
	assert.Nil(t, s.GetMutationType())

	for _, name := range []string{"user", "users", "post", "posts"} {
		f := s.GetQueryType().Field(name)
		require.NotNil(t, f, name)
		assert.True(t, f.Async, name)
	}

	user := s.Types["User"]
	assert.False(t, user.Field("name").Async)
	assert.True(t, user.Field("posts").Async)
	assert.True(t, s.Types["Post"].Field("author").Async)

	posts := s.GetQueryType().Field("posts")
	assert.Nil(t, posts.Argument(ArgQuery))
	assert.True(t, IsNonNull(posts.Argument(ArgIDs).Type))
	assert.Equal(t, relation.DefaultLimit, posts.Argument(ArgLimit).DefaultValue)

	assert.Equal(t, TypeKindInputObject, s.Types["UserQuery"].Kind)
	assert.Equal(t, TypeKindScalar, s.Types["ID"].Kind)
	assert.NotNil(t, s.Directives["skip"])
}

func TestScalarFor(t *testing.T) {
	assert.Equal(t, "Int", ScalarFor(relation.Int))
	assert.Equal(t, "Float", ScalarFor(relation.Float))
	assert.Equal(t, "String", ScalarFor(relation.String))
	assert.Equal(t, "Boolean", ScalarFor(relation.Bool))
	assert.Equal(t, "ID", ScalarFor(relation.ID))
	assert.Equal(t, "ID", ScalarFor(relation.UUID))
}

func TestRenderValue(t *testing.T) {
	assert.Equal(t, `{a: 1, b: ["x", true]}`, renderValue(map[string]any{"b": []any{"x", true}, "a": 1}))
	assert.Equal(t, "null", renderValue(nil))
	assert.Equal(t, "1.5", renderValue(1.5))
}
