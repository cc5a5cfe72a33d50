// Package store defines the repository the engine reads entities through.
//
// A Repository knows how to run two kinds of reads against a backend: a
// filtered, paginated fetch of one entity type, and a point lookup of many
// primary keys at once. Backends live in the sqlstore, gormstore and neo4jstore
// subpackages; they all order results by primary key so batch fetches are
// deterministic.
package store

import (
	"context"
	"fmt"

	"github.com/hanpama/graft/internal/graph"
	"github.com/hanpama/graft/internal/relation"
)

// Repository reads rows of declared entity types. Returned rows are normalized
// with graph.NormalizeRow.
type Repository interface {
	// Fetch returns the rows of t matching q, ordered by primary key (search
	// ranking first for prefix searches).
	Fetch(ctx context.Context, t *relation.EntityType, q Query) ([]graph.Row, error)
	// FetchByKeys returns the rows of t whose primary key is one of keys, keyed
	// by primary key. Missing keys are absent from the map.
	FetchByKeys(ctx context.Context, t *relation.EntityType, keys []graph.Key) (map[graph.Key]graph.Row, error)
}

// Query is a conjunction of predicates with optional pagination.
type Query struct {
	Where []Predicate
	// Limit caps the number of rows. Zero means no limit.
	Limit  int
	Offset int
}

// And returns a copy of q with p appended to its predicates.
func (q Query) And(p Predicate) Query {
	where := make([]Predicate, 0, len(q.Where)+1)
	where = append(where, q.Where...)
	q.Where = append(where, p)
	return q
}

// Predicate is one of In, Eq or Search.
type Predicate interface {
	predicate()
}

// In matches rows whose Column holds one of Values. An empty In matches nothing.
type In struct {
	Column string
	Values []graph.Key
}

// Eq matches rows whose Column equals Value. A nil Value matches NULL.
type Eq struct {
	Column string
	Value  any
}

// SearchMode selects how Search matches text.
type SearchMode string

const (
	// Contains matches the term anywhere in the column, case-insensitively.
	Contains SearchMode = "contains"
	// Prefix matches words starting with the term and ranks rows whose column
	// starts with the term first.
	Prefix SearchMode = "prefix"
)

// ParseSearchMode parses a SearchMode name.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case "", Contains:
		return Contains, nil
	case Prefix:
		return Prefix, nil
	}
	return "", fmt.Errorf("unknown search mode %q", s)
}

// Search matches rows where any of the terms matches its column. Terms maps a
// column name to the searched text.
type Search struct {
	Terms map[string]string
	Mode  SearchMode
}

func (In) predicate()     {}
func (Eq) predicate()     {}
func (Search) predicate() {}

// FetchOne looks up a single row by primary key. It returns a *NotFoundError
// when the row does not exist.
func FetchOne(ctx context.Context, r Repository, t *relation.EntityType, key graph.Key) (graph.Row, error) {
	rows, err := r.FetchByKeys(ctx, t, []graph.Key{key})
	if err != nil {
		return nil, err
	}
	row, ok := rows[key]
	if !ok {
		return nil, NewNotFoundError(t.Name, key)
	}
	return row, nil
}
