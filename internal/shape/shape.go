// Package shape describes the requested shape of a query below one field: which
// child fields were selected and with which arguments.
//
// The preloader consults a Selection to decide which edges to batch-fetch. A
// missing child selection means the edge was not requested and must not be
// preloaded. Implementations treat inconsistencies (unknown fields, arguments
// that cannot be coerced) as "not selected" or "use the default".
package shape

import "math"

// Selection is the requested shape below a single field.
type Selection interface {
	// ChildSelection returns the merged selection of the named child field.
	ChildSelection(field string) (Selection, bool)
	// Argument returns the coerced value of the named argument, applying schema
	// defaults. The second result is false when the argument is absent.
	Argument(name string) (any, bool)
	// IntArgument returns the named argument as an int, or def when it is
	// absent, null or not an integer.
	IntArgument(name string, def int) int
}

// Tree is a static Selection. A nil *Tree selects nothing.
type Tree struct {
	Args     map[string]any
	Children map[string]*Tree
}

// Select builds a Tree from child trees keyed by field name.
func Select(children map[string]*Tree) *Tree {
	return &Tree{Children: children}
}

// Leaf is a selected field without children.
func Leaf() *Tree { return &Tree{} }

// WithArgs returns a copy of t carrying args.
func (t *Tree) WithArgs(args map[string]any) *Tree {
	out := &Tree{Args: args}
	if t != nil {
		out.Children = t.Children
	}
	return out
}

func (t *Tree) ChildSelection(field string) (Selection, bool) {
	if t == nil {
		return nil, false
	}
	child, ok := t.Children[field]
	if !ok {
		return nil, false
	}
	if child == nil {
		child = Leaf()
	}
	return child, true
}

func (t *Tree) Argument(name string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.Args[name]
	return v, ok
}

func (t *Tree) IntArgument(name string, def int) int {
	v, ok := t.Argument(name)
	if !ok {
		return def
	}
	if n, ok := Int(v); ok {
		return n
	}
	return def
}

// Int converts a coerced GraphQL Int value to int.
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Child is a convenience for nested lookups on a possibly nil Selection.
func Child(sel Selection, path ...string) (Selection, bool) {
	cur := sel
	for _, name := range path {
		if cur == nil {
			return nil, false
		}
		next, ok := cur.ChildSelection(name)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}
