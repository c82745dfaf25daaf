// Package graph defines the graph-access contract the MES ontology extension
// is composed over, together with the supporting pieces that make natural-key
// upserts possible: node and edge value types, the identifying-property
// registry, and an in-memory reference store.
//
// The host ontology supplies the real storage engine. This package only pins
// down three capabilities and their merge contracts:
//
//   - find-or-create a node by deterministic ID with attribute merge
//     (Store.MergeNode), plus an append-only variant for observation nodes
//     (Store.AppendNode);
//   - find-or-create a directed, typed edge with mergeable attributes
//     (Store.MergeEdge);
//   - one-hop adjacency following a given edge type and direction
//     (Store.Neighbors), from which callers build bounded traversals.
//
// Merge operations are atomic per call and last-write-wins per attribute, so
// concurrent upserts of the same natural key converge to a single node
// regardless of interleaving.
package graph
