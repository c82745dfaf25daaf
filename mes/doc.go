// Package mes layers ISA-95 Level 3-4 manufacturing-execution semantics on
// top of a shared plant knowledge graph: the entity model (materials,
// batches, CCPs, deviations), the idempotent upsert engine, batch/material
// genealogy traversal, and the RCA context builder.
//
// The Extension type composes a graph.Store supplied by the host ontology;
// it holds no private entity copies that could drift from the graph. All
// operations are synchronous and issue their graph calls sequentially; a
// caller that needs a timeout wraps the context it passes in.
package mes
