// Package redisgraph implements graph.Store on Redis for embedded and
// development deployments.
//
// Layout, under a configurable key prefix (default "kg"):
//
//	kg:node:{id}             node JSON
//	kg:edge:{from|TYPE|to}   edge JSON
//	kg:out:{id}:{TYPE}       list of neighbor IDs, insertion order
//	kg:in:{id}:{TYPE}        list of neighbor IDs, insertion order
//
// Merges run inside WATCH/MULTI transactions so concurrent upserts of the
// same natural key converge without lost updates; append-only nodes use
// SETNX. Adjacency lists are written only when an edge is first created,
// which keeps them duplicate-free and in insertion order.
package redisgraph
