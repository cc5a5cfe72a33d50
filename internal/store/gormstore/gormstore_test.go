package gormstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *relation.EntityType) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s, err := Open("mysql", db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg, err := relation.New(&relation.EntityType{
		Name: "Comment",
		Columns: []*relation.Column{
			{Name: "id", Type: relation.Int},
			{Name: "post_id", Type: relation.Int},
			{Name: "body", Type: relation.String, Searchable: true},
		},
	})
	require.NoError(t, err)
	return s, mock, reg.MustType("Comment")
}

func TestFetchInWithPagination(t *testing.T) {
	s, mock, comment := newMockStore(t)

	mock.ExpectQuery("SELECT `id`, `post_id`, `body` FROM `comments`(.+)`post_id` IN \\(\\?,\\?\\)(.+)ORDER BY `id` ASC LIMIT 10 OFFSET 2").
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "body"}).
			AddRow(int64(5), int64(1), []byte("hi")).
			AddRow(int64(6), int64(2), []byte("yo")))

	rows, err := s.Fetch(context.Background(), comment, store.Query{
		Where:  []store.Predicate{store.In{Column: "post_id", Values: []graph.Key{int64(1), int64(2)}}},
		Limit:  10,
		Offset: 2,
	})
	require.NoError(t, err)
	want := []graph.Row{
		{"id": int64(5), "post_id": int64(1), "body": "hi"},
		{"id": int64(6), "post_id": int64(2), "body": "yo"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPrefixSearch(t *testing.T) {
	s, mock, comment := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM `comments`(.+)`body` LIKE \\? OR `body` LIKE \\?(.+)ORDER BY CASE WHEN `body` LIKE \\? THEN 0 ELSE 1 END(.+)`id` ASC").
		WithArgs("go%", "% go%", "go%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "body"}))

	rows, err := s.Fetch(context.Background(), comment, store.Query{
		Where: []store.Predicate{store.Search{Terms: map[string]string{"body": "go"}, Mode: store.Prefix}},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchByKeysMissing(t *testing.T) {
	s, mock, comment := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM `comments`(.+)`id` IN \\(\\?\\)").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "body"}))

	_, err := store.FetchOne(context.Background(), s, comment, int64(9))
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchCanceled(t *testing.T) {
	s, mock, comment := newMockStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, comment, store.Query{})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchUnknownColumn(t *testing.T) {
	s, _, comment := newMockStore(t)
	_, err := s.Fetch(context.Background(), comment, store.Query{Where: []store.Predicate{store.Eq{Column: "nope", Value: 1}}})
	assert.EqualError(t, err, "gormstore: Comment: no column nope")
}
