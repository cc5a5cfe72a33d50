package relation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// title upper-cases the first letter of each word. Casers are stateful, so a new
// one is made per call.
func title(s string) string {
	return cases.Title(language.English, cases.NoLower).String(strings.TrimSpace(s))
}

// ValidationError lists every problem found in a descriptor table.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid relationship registry: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid relationship registry (%d problems):\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}

// FieldName is the root field name that fetches a single entity.
func (t *EntityType) FieldName() string { return inflect.CamelizeDownFirst(t.Name) }

func normalize(t *EntityType) {
	t.Name = title(t.Name)
	if t.Name == "" {
		return
	}
	if t.Table == "" {
		t.Table = inflect.Underscore(inflect.Pluralize(t.Name))
	}
	if t.PrimaryKey == "" {
		t.PrimaryKey = "id"
	}
	if t.Plural == "" {
		t.Plural = inflect.Pluralize(t.FieldName())
	}
	t.columns = make(map[string]*Column, len(t.Columns))
	for _, c := range t.Columns {
		if c.Type == "" {
			c.Type = String
		}
		if _, dup := t.columns[c.Name]; !dup {
			t.columns[c.Name] = c
		}
	}
	t.edges = make(map[string]*Edge, len(t.Edges))
	for _, e := range t.Edges {
		e.owner = t
		e.Target = title(e.Target)
		if e.Column == "" {
			switch e.Kind {
			case ToOne:
				e.Column = inflect.Underscore(e.Name) + "_id"
			case ToMany:
				e.Column = inflect.Underscore(t.Name) + "_id"
			}
		}
		if e.Kind == ToMany && e.Paginated && e.DefaultLimit == 0 {
			e.DefaultLimit = DefaultLimit
		}
		if _, dup := t.edges[e.Name]; !dup {
			t.edges[e.Name] = e
		}
	}
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

var graphQLName = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// reservedTypeNames cannot be used for entities.
var reservedTypeNames = map[string]bool{
	"Query": true, "String": true, "Int": true, "Float": true, "Boolean": true, "ID": true,
}

func (v *validator) entity(r *Registry, t *EntityType) {
	switch {
	case !graphQLName.MatchString(t.Name):
		v.addf("%s: not a valid GraphQL type name", t.Name)
	case reservedTypeNames[t.Name]:
		v.addf("%s: type name is reserved", t.Name)
	}
	if len(t.SearchableColumns()) > 0 && r.Type(t.SearchInputName()) != nil {
		v.addf("%s: search input %s collides with an entity type", t.Name, t.SearchInputName())
	}

	seen := make(map[string]bool)
	for _, c := range t.Columns {
		switch {
		case c.Name == "":
			v.addf("%s: column without a name", t.Name)
		case !graphQLName.MatchString(c.Name):
			v.addf("%s.%s: not a valid GraphQL field name", t.Name, c.Name)
		case seen[c.Name]:
			v.addf("%s: column %s declared twice", t.Name, c.Name)
		case !c.Type.valid():
			v.addf("%s.%s: unknown column type %q", t.Name, c.Name, c.Type)
		case c.Searchable && c.Type != String:
			v.addf("%s.%s: only string columns can be searchable", t.Name, c.Name)
		}
		seen[c.Name] = true
	}

	pk := t.PrimaryColumn()
	switch {
	case pk == nil:
		v.addf("%s: primary key column %s is not declared", t.Name, t.PrimaryKey)
	case pk.Nullable:
		v.addf("%s: primary key column %s cannot be nullable", t.Name, t.PrimaryKey)
	case pk.Type == Float || pk.Type == Bool:
		v.addf("%s: primary key column %s has unsupported type %s", t.Name, t.PrimaryKey, pk.Type)
	}

	for _, e := range t.Edges {
		if e.Name == "" {
			v.addf("%s: edge without a name", t.Name)
			continue
		}
		if seen[e.Name] {
			v.addf("%s.%s: name is already used by a column or edge", t.Name, e.Name)
			continue
		}
		if !graphQLName.MatchString(e.Name) {
			v.addf("%s.%s: not a valid GraphQL field name", t.Name, e.Name)
		}
		seen[e.Name] = true
		v.edge(r, t, e)
	}
}

func (v *validator) edge(r *Registry, t *EntityType, e *Edge) {
	e.target = r.Type(e.Target)
	if e.target == nil {
		v.addf("%s.%s: unknown target type %q", t.Name, e.Name, e.Target)
	}
	switch e.Kind {
	case ToOne:
		if e.Paginated {
			v.addf("%s.%s: toOne edges cannot be paginated", t.Name, e.Name)
		}
		fk := t.Column(e.Column)
		if fk == nil {
			v.addf("%s.%s: foreign key column %s is not declared on %s", t.Name, e.Name, e.Column, t.Name)
		} else if e.target != nil {
			v.keyTypes(t, e, t.Name, fk, e.target.Name, e.target.PrimaryColumn())
		}
	case ToMany:
		if e.DefaultLimit < 0 {
			v.addf("%s.%s: negative default limit %d", t.Name, e.Name, e.DefaultLimit)
		}
		if e.target == nil {
			break
		}
		fk := e.target.Column(e.Column)
		if fk == nil {
			v.addf("%s.%s: foreign key column %s is not declared on %s", t.Name, e.Name, e.Column, e.target.Name)
		} else {
			v.keyTypes(t, e, e.target.Name, fk, t.Name, t.PrimaryColumn())
		}
	default:
		v.addf("%s.%s: unknown edge kind %s", t.Name, e.Name, e.Kind)
	}
}

// keyTypes reports a foreign key column whose values would not compare equal
// to the primary key it joins against once both are normalized.
func (v *validator) keyTypes(t *EntityType, e *Edge, fkOwner string, fk *Column, pkOwner string, pk *Column) {
	if pk == nil || !pk.Type.valid() || !fk.Type.valid() || keyTypesMatch(fk.Type, pk.Type) {
		return
	}
	v.addf("%s.%s: foreign key column %s.%s has type %s but %s.%s is %s",
		t.Name, e.Name, fkOwner, fk.Name, fk.Type, pkOwner, pk.Name, pk.Type)
}

// keyTypesMatch reports whether keys of types a and b normalize to the same
// values. id normalizes integers to int64 like int does; id and string differ
// on digit-only values, so they do not pair.
func keyTypesMatch(a, b ColumnType) bool {
	return a == b || (a == ID && b == Int) || (a == Int && b == ID)
}

func (v *validator) rootNames(r *Registry) {
	owners := make(map[string]string)
	claim := func(field, owner string) {
		if prev, ok := owners[field]; ok {
			v.addf("root field %s is claimed by both %s and %s", field, prev, owner)
			return
		}
		owners[field] = owner
	}
	for _, t := range r.types {
		claim(t.FieldName(), t.Name)
		claim(t.Plural, t.Name)
	}
}
