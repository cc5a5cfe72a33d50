package executor

import (
	"sync"

	language "github.com/hanpama/graft/internal/language"
	schema "github.com/hanpama/graft/internal/schema"
	"github.com/hanpama/graft/internal/shape"
)

// lookahead exposes the selection below a field to resolvers before the
// executor reaches it. Children are collected with the same rules as
// execution (fragments, @skip and @include) and merged by field name, so
// aliases of one field share a single child selection. The arguments of the
// first occurrence win.
type lookahead struct {
	state  *executionState
	typ    *schema.Type
	fields []*language.Field
	args   map[string]any

	once     sync.Once
	children map[string]*lookahead
}

var _ shape.Selection = (*lookahead)(nil)

func newLookahead(state *executionState, def *schema.Field, fields []*language.Field) *lookahead {
	l := &lookahead{state: state, fields: fields}
	if t := state.schema.Types[schema.GetNamedType(def.Type)]; t != nil && t.Kind == schema.TypeKindObject {
		l.typ = t
	}
	l.args = lookaheadArgs(state, def, fields[0].Arguments)
	return l
}

func (l *lookahead) ChildSelection(field string) (shape.Selection, bool) {
	if l.typ == nil {
		return nil, false
	}
	l.once.Do(l.collect)
	child, ok := l.children[field]
	if !ok {
		return nil, false
	}
	return child, true
}

func (l *lookahead) collect() {
	l.children = make(map[string]*lookahead)
	byName := make(map[string][]*language.Field)
	var order []string
	grouped := collectFields(l.state, l.typ, mergeSelectionSets(l.fields))
	for _, cf := range grouped.orderedFields() {
		name := cf.Fields[0].Name
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = append(byName[name], cf.Fields...)
	}
	for _, name := range order {
		def := getFieldDefinition(l.typ, name)
		if def == nil {
			continue
		}
		l.children[name] = newLookahead(l.state, def, byName[name])
	}
}

func (l *lookahead) Argument(name string) (any, bool) {
	v, ok := l.args[name]
	return v, ok
}

func (l *lookahead) IntArgument(name string, def int) int {
	v, ok := l.args[name]
	if !ok {
		return def
	}
	if n, ok := shape.Int(v); ok {
		return n
	}
	return def
}

// lookaheadArgs coerces arguments like coerceArgumentValues but drops values
// that fail to coerce instead of reporting them. Execution of the field itself
// reports those errors.
func lookaheadArgs(state *executionState, def *schema.Field, arguments language.ArgumentList) map[string]any {
	vars := state.variableValues
	out := make(map[string]any, len(def.Arguments))
	for _, argDef := range def.Arguments {
		if argDef.DefaultValue != nil {
			out[argDef.Name] = argDef.DefaultValue
		}
	}
	for _, arg := range arguments {
		argDef := def.Argument(arg.Name)
		if argDef == nil {
			continue
		}
		v, err := coerceValue(state.schema, valueFromASTWithVars(arg.Value, vars), argDef.Type)
		if err != nil {
			continue
		}
		out[arg.Name] = v
	}
	return out
}
