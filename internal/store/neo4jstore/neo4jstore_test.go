package neo4jstore

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

type fakeRunner struct {
	query   string
	params  map[string]any
	records []*neo4j.Record
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	f.query, f.params = query, params
	if f.err != nil {
		return nil, f.err
	}
	return &neo4j.EagerResult{Keys: []string{"n"}, Records: f.records}, nil
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{neo4j.Node{Labels: []string{"Person"}, Props: props}}}
}

func personType(t *testing.T) *relation.EntityType {
	t.Helper()
	reg, err := relation.New(&relation.EntityType{
		Name: "Person",
		Columns: []*relation.Column{
			{Name: "id", Type: relation.Int},
			{Name: "name", Type: relation.String, Searchable: true},
			{Name: "team_id", Type: relation.Int, Nullable: true},
		},
	})
	require.NoError(t, err)
	return reg.MustType("Person")
}

func TestFetchBuildsCypher(t *testing.T) {
	person := personType(t)
	runner := &fakeRunner{records: []*neo4j.Record{
		nodeRecord(map[string]any{"id": int64(1), "name": "Ada", "team_id": int64(7)}),
	}}
	s := New(runner)

	rows, err := s.Fetch(context.Background(), person, store.Query{
		Where: []store.Predicate{
			store.In{Column: "team_id", Values: []graph.Key{int64(7), int64(8)}},
			store.Search{Terms: map[string]string{"name": "ad"}, Mode: store.Prefix},
		},
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, "MATCH (n:`Person`) WHERE n.`team_id` IN $p0 AND ((toLower(n.`name`) STARTS WITH toLower($p1) OR toLower(n.`name`) CONTAINS (' ' + toLower($p1)))) RETURN n ORDER BY CASE WHEN toLower(n.`name`) STARTS WITH toLower($p1) THEN 0 ELSE 1 END, n.`id` SKIP $p2 LIMIT $p3", runner.query)
	if diff := cmp.Diff(map[string]any{
		"p0": []any{int64(7), int64(8)},
		"p1": "ad",
		"p2": int64(20),
		"p3": int64(10),
	}, runner.params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]graph.Row{{"id": int64(1), "name": "Ada", "team_id": int64(7)}}, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchByKeys(t *testing.T) {
	person := personType(t)
	runner := &fakeRunner{records: []*neo4j.Record{
		nodeRecord(map[string]any{"id": int64(2), "name": "Bo"}),
	}}
	s := New(runner)

	rows, err := s.FetchByKeys(context.Background(), person, []graph.Key{int64(2), int64(3)})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:`Person`) WHERE n.`id` IN $p0 RETURN n ORDER BY n.`id`", runner.query)
	if diff := cmp.Diff(map[graph.Key]graph.Row{int64(2): {"id": int64(2), "name": "Bo", "team_id": nil}}, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchNullAndContains(t *testing.T) {
	person := personType(t)
	runner := &fakeRunner{}
	s := New(runner)

	_, err := s.Fetch(context.Background(), person, store.Query{Where: []store.Predicate{
		store.Eq{Column: "team_id"},
		store.Search{Terms: map[string]string{"name": "x"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:`Person`) WHERE n.`team_id` IS NULL AND (toLower(n.`name`) CONTAINS toLower($p0)) RETURN n ORDER BY n.`id`", runner.query)
}

func TestFetchError(t *testing.T) {
	person := personType(t)
	s := New(&fakeRunner{err: assert.AnError})
	_, err := s.Fetch(context.Background(), person, store.Query{})
	require.ErrorIs(t, err, assert.AnError)

	_, err = New(&fakeRunner{}).Fetch(context.Background(), person, store.Query{Where: []store.Predicate{store.In{Column: "age"}}})
	assert.EqualError(t, err, "neo4jstore: Person: no column age")
}
