// Package mesgraph extends a Level 0-2 plant/process knowledge graph with
// ISA-95 Level 3-4 manufacturing-execution semantics: materials, batches,
// critical control points (CCPs), deviations, and the traceability
// relationships between them.
//
// The extension never owns a graph connection. It composes a graph-access
// capability supplied by the host ontology and layers MES operations on top
// of it:
//
//   - graph: the capability contract (node/edge merge, append, one-hop
//     adjacency) plus the natural-key registry and an in-memory reference
//     store.
//   - graph/id: deterministic, content-addressable node IDs derived from a
//     node type and its identifying properties.
//   - redisgraph: a Redis-backed implementation of the graph contract for
//     embedded and development deployments.
//   - mes: the entity model, the idempotent upsert engine, batch/material
//     genealogy traversal, and the RCA context builder.
//   - tool: tool definitions and a duplicate-checked registry exposing the
//     MES operations to an external AI agent runtime. The registry is pure
//     metadata plus a name-to-handler table; invocation transport is the
//     caller's responsibility.
//   - catalog: YAML plant master data (materials, CCPs) applied through the
//     upsert engine.
//
// # Merge semantics
//
// Every entity is identified by a natural key unique within its type. Upserts
// resolve that key to a deterministic node ID and issue a single atomic
// merge: caller-supplied attributes overwrite, unspecified attributes are
// preserved, and concurrent upserts of the same key converge to one node
// (last-write-wins per attribute). Deviations are the one exception: each
// attachment is a distinct observation and always creates a new node.
//
// # Errors
//
// Operations return *OntologyError values carrying the failed operation and
// an error kind (validation, invalid transition, not found, duplicate tool,
// storage). Genealogy truncation and cycle detection are result metadata,
// never errors; retry policy is left entirely to the caller.
package mesgraph
