// Package relation holds the relationship descriptor table: the entity types the
// engine serves, their columns, and the edges between them.
//
// The table is declarative. It is loaded once at process start (usually from a
// YAML file), validated, and then consulted read-only by the preloader, the
// resolvers and the schema builder.
package relation

import (
	"fmt"
	"strings"
)

// Kind is the cardinality of an edge.
type Kind int

const (
	ToOne Kind = iota + 1
	ToMany
)

func (k Kind) String() string {
	switch k {
	case ToOne:
		return "toOne"
	case ToMany:
		return "toMany"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func parseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "toone", "to_one", "one", "belongs_to":
		return ToOne, nil
	case "tomany", "to_many", "many", "has_many":
		return ToMany, nil
	}
	return 0, fmt.Errorf("unknown edge kind %q", s)
}

// ColumnType is the logical type of a column. It decides how raw driver values
// are normalized and which GraphQL scalar the column is exposed as.
type ColumnType string

const (
	Int    ColumnType = "int"
	Float  ColumnType = "float"
	String ColumnType = "string"
	Bool   ColumnType = "bool"
	ID     ColumnType = "id"
	UUID   ColumnType = "uuid"
)

func (t ColumnType) valid() bool {
	switch t {
	case Int, Float, String, Bool, ID, UUID:
		return true
	}
	return false
}

// DefaultLimit and DefaultOffset are the pagination defaults of ToMany edges and
// root list fields.
const (
	DefaultLimit  = 10
	DefaultOffset = 0
)

type Column struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	Searchable bool
}

// Edge is a named relationship from one entity type to another.
//
// For ToOne edges Column names the foreign key column on the owning entity; the
// target is looked up by primary key. For ToMany edges Column names the foreign
// key column on the target entity that references the owner's primary key.
//
// Paginated ToMany edges accept limit and offset, defaulting to DefaultLimit and
// 0. ToMany edges that are not paginated are fetched without a limit.
type Edge struct {
	Name         string
	Kind         Kind
	Target       string
	Column       string
	Paginated    bool
	DefaultLimit int

	owner  *EntityType
	target *EntityType
}

// Owner returns the entity type declaring the edge.
func (e *Edge) Owner() *EntityType { return e.owner }

// TargetType returns the resolved target entity type.
func (e *Edge) TargetType() *EntityType { return e.target }

// String identifies the edge as Owner.name.
func (e *Edge) String() string {
	if e.owner == nil {
		return e.Name
	}
	return e.owner.Name + "." + e.Name
}

type EntityType struct {
	Name       string
	Table      string
	PrimaryKey string
	// Plural names the root list field. Defaults to the pluralized camel-cased name.
	Plural string
	// AllowAll permits root list queries without an id filter.
	AllowAll bool
	Columns  []*Column
	Edges    []*Edge

	columns map[string]*Column
	edges   map[string]*Edge
}

// Column returns the named column or nil.
func (t *EntityType) Column(name string) *Column { return t.columns[name] }

// Edge returns the named edge or nil.
func (t *EntityType) Edge(name string) *Edge { return t.edges[name] }

// PrimaryColumn returns the primary key column.
func (t *EntityType) PrimaryColumn() *Column { return t.columns[t.PrimaryKey] }

// SearchInputName names the GraphQL input type holding the search terms of
// root list queries.
func (t *EntityType) SearchInputName() string { return t.Name + "Query" }

// SearchableColumns returns the columns that root list search may match on, in
// declaration order.
func (t *EntityType) SearchableColumns() []*Column {
	var out []*Column
	for _, c := range t.Columns {
		if c.Searchable {
			out = append(out, c)
		}
	}
	return out
}

func (t *EntityType) String() string { return t.Name }

// Registry is the validated descriptor table.
type Registry struct {
	types  []*EntityType
	byName map[string]*EntityType
}

// New validates the given entity types, fills defaults and resolves edge targets.
// All problems are reported together as a *ValidationError.
func New(types ...*EntityType) (*Registry, error) {
	r := &Registry{byName: make(map[string]*EntityType, len(types))}
	v := &validator{}
	for _, t := range types {
		normalize(t)
		if t.Name == "" {
			v.addf("entity type without a name")
			continue
		}
		if _, dup := r.byName[t.Name]; dup {
			v.addf("entity type %s declared twice", t.Name)
			continue
		}
		r.byName[t.Name] = t
		r.types = append(r.types, t)
	}
	for _, t := range r.types {
		v.entity(r, t)
	}
	v.rootNames(r)
	if err := v.err(); err != nil {
		return nil, err
	}
	return r, nil
}

// Types returns the entity types in declaration order.
func (r *Registry) Types() []*EntityType { return r.types }

// Type returns the named entity type or nil.
func (r *Registry) Type(name string) *EntityType { return r.byName[name] }

// MustType returns the named entity type and panics when it is not declared.
func (r *Registry) MustType(name string) *EntityType {
	t := r.byName[name]
	if t == nil {
		panic(fmt.Sprintf("relation: unknown entity type %q", name))
	}
	return t
}
