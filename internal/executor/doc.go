// Package executor implements a breadth-first, batch-friendly GraphQL executor
// with explicit runtime hooks for synchronous resolution, depth-wise batching of
// asynchronous work and leaf serialization.
//
// # Execution Model
//
// The executor works level by level:
//   - Synchronous fields (schema.Field.Async == false) are resolved immediately
//     through Runtime.ResolveSync and expanded without adding batch depth.
//     Column projections are synchronous.
//   - Asynchronous fields are queued and resolved together in a single
//     Runtime.BatchResolveAsync call per depth. Root fields and relationship
//     edges are asynchronous.
//
// For a query with asynchronous depth d, BatchResolveAsync is invoked exactly
// d times. Purely synchronous descents do not increase d.
//
// Every async task carries a shape.Selection of the fields requested below it.
// Root resolvers use it to preload relationships for the whole subtree before
// the executor descends; edge resolvers use it when they have to fetch on
// their own.
//
// # Value Completion
//
//   - Non-Null: a null result records an error and nullifies the top-level
//     field. Queued tasks under a nullified path are dropped.
//   - List: elements complete with index-aware paths.
//   - Leaf: Runtime.SerializeLeafValue produces a JSON-safe value.
//   - Object: subfields are collected (fragments, @skip and @include
//     honored) and executed as above.
//
// # Errors and Partial Success
//
// Errors are accumulated as located GraphQL errors (message, path and
// optional extensions). Batch results are independent, so one failed field
// does not fail its siblings.
//
// Fragments apply only when their type condition names the concrete object
// type. The schemas this engine serves have no interfaces or unions.
package executor
