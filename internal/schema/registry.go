package schema

import (
	"fmt"

	"github.com/hanpama/graft/internal/relation"
)

// Argument names of the generated root and edge fields.
const (
	ArgID     = "id"
	ArgIDs    = "ids"
	ArgLimit  = "limit"
	ArgOffset = "offset"
	ArgQuery  = "query"
)

// BuildFromRegistry builds the executable schema served for reg.
//
// Every entity type becomes an object type holding its columns (resolved
// synchronously from the row) and its edges (resolved asynchronously). The
// Query type gets a single fetch field and a list field per entity. Root list
// fields take a search input when the entity has searchable columns.
func BuildFromRegistry(reg *relation.Registry) (*Schema, error) {
	s := NewSchema("")
	s.SetQueryType("Query")
	s.AddType(stringType).
		AddType(intType).
		AddType(floatType).
		AddType(booleanType).
		AddType(idType)
	s.AddDirective(includeDirective).
		AddDirective(skipDirective)

	query := NewType("Query", TypeKindObject, "")
	s.AddType(query)
	for _, t := range reg.Types() {
		obj, err := buildEntity(t)
		if err != nil {
			return nil, err
		}
		if _, taken := s.Types[obj.Name]; taken {
			return nil, fmt.Errorf("type %s is already defined", obj.Name)
		}
		s.AddType(obj)

		query.AddField(NewField(t.FieldName(), fmt.Sprintf("Fetches one %s by primary key.", t.Name), NamedType(t.Name)).
			SetAsync(true).
			AddArgument(NewInputValue(ArgID, "", NonNullType(NamedType("ID")))))

		ids := ListType(NonNullType(NamedType("ID")))
		if !t.AllowAll {
			ids = NonNullType(ids)
		}
		list := NewField(t.Plural, fmt.Sprintf("Lists %s rows ordered by primary key.", t.Name), listOf(t.Name)).
			SetAsync(true).
			AddArgument(NewInputValue(ArgIDs, "", ids)).
			AddArgument(NewInputValue(ArgLimit, "", NamedType("Int")).SetDefault(relation.DefaultLimit)).
			AddArgument(NewInputValue(ArgOffset, "", NamedType("Int")).SetDefault(relation.DefaultOffset))
		if searchable := t.SearchableColumns(); len(searchable) > 0 {
			in := NewType(t.SearchInputName(), TypeKindInputObject, fmt.Sprintf("Search terms for %s. Rows matching any given term are returned.", t.Name))
			for _, c := range searchable {
				in.AddInputField(NewInputValue(c.Name, "", NamedType("String")))
			}
			if _, taken := s.Types[in.Name]; taken {
				return nil, fmt.Errorf("type %s is already defined", in.Name)
			}
			s.AddType(in)
			list.AddArgument(NewInputValue(ArgQuery, "", NamedType(in.Name)))
		}
		query.AddField(list)
	}
	return s, nil
}

func buildEntity(t *relation.EntityType) (*Type, error) {
	obj := NewType(t.Name, TypeKindObject, "")
	for _, c := range t.Columns {
		ref := NamedType(ScalarFor(c.Type))
		if c.Name == t.PrimaryKey {
			ref = NamedType("ID")
		}
		if !c.Nullable {
			ref = NonNullType(ref)
		}
		obj.AddField(NewField(c.Name, "", ref))
	}
	for _, e := range t.Edges {
		target := e.TargetType()
		if target == nil {
			return nil, fmt.Errorf("%s: target type is not resolved", e)
		}
		switch e.Kind {
		case relation.ToOne:
			obj.AddField(NewField(e.Name, "", NamedType(target.Name)).SetAsync(true))
		case relation.ToMany:
			f := NewField(e.Name, "", listOf(target.Name)).SetAsync(true)
			if e.Paginated {
				f.AddArgument(NewInputValue(ArgLimit, "", NamedType("Int")).SetDefault(e.DefaultLimit)).
					AddArgument(NewInputValue(ArgOffset, "", NamedType("Int")).SetDefault(relation.DefaultOffset))
			}
			obj.AddField(f)
		default:
			return nil, fmt.Errorf("%s: unknown edge kind %s", e, e.Kind)
		}
	}
	return obj, nil
}

// ScalarFor returns the GraphQL scalar a column type is exposed as.
func ScalarFor(t relation.ColumnType) string {
	switch t {
	case relation.Int:
		return "Int"
	case relation.Float:
		return "Float"
	case relation.Bool:
		return "Boolean"
	case relation.ID, relation.UUID:
		return "ID"
	default:
		return "String"
	}
}

func listOf(name string) *TypeRef {
	return NonNullType(ListType(NonNullType(NamedType(name))))
}
