package executor

import (
	"context"

	"github.com/hanpama/graft/internal/shape"
)

// Runtime defines the host integration surface for field resolution, batching
// and leaf-value serialization used by the Executor.
//
// General contract
//   - The Executor performs a breadth-first execution. At each depth it drains all
//     synchronous fields first via ResolveSync, then calls BatchResolveAsync ONCE
//     with all async tasks collected at that depth. The next depth does not begin
//     until BatchResolveAsync returns and those results are completed.
//   - ResolveSync is never invoked for fields marked async, and
//     BatchResolveAsync is only invoked when there is at least one async field
//     at the current depth.
//   - Errors returned from any method are converted into located GraphQL errors.
//     If the field's return type is Non-Null, the null propagates up to the
//     top-level field.
//   - Implementations must be safe for concurrent operations and must not
//     mutate source or args values.
//
// Object/field identifiers
// - objectType is the GraphQL type name (e.g. "User").
// - field is the GraphQL field name on that type (e.g. "posts").
// - For root fields, objectType is "Query" and source is nil.
// - args is the map of argument names to already-coerced Go values.
type Runtime interface {
	// ResolveSync resolves a synchronous field value immediately. Return
	// (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	//
	// Requirements:
	// - Return len(results) == len(tasks).
	// - results[i] corresponds to tasks[i].
	// - Return independent errors per element without failing the whole batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// SerializeLeafValue serializes a scalar value to a JSON-safe Go value.
	SerializeLeafValue(ctx context.Context, scalarTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
	// Selection is the shape requested below the field, merged across every
	// occurrence of the field in the operation.
	Selection shape.Selection
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}

// ExtendedError is implemented by resolver errors that carry GraphQL error
// extensions, such as a machine readable code.
type ExtendedError interface {
	error
	Extensions() map[string]any
}
