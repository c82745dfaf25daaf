package graph

import (
	"context"
	"errors"
)

// Common errors returned by store operations.
var (
	// ErrNodeNotFound is returned when a requested node does not exist.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrInvalidNode is returned when a node fails validation or lacks an ID.
	ErrInvalidNode = errors.New("graph: invalid node")

	// ErrInvalidEdge is returned when an edge fails validation.
	ErrInvalidEdge = errors.New("graph: invalid edge")

	// ErrStorageFailed is returned when the underlying storage backend fails.
	ErrStorageFailed = errors.New("graph: storage operation failed")
)

// Store is the graph-access capability object the MES extension composes.
// The host ontology supplies the implementation; this package ships MemStore
// and redisgraph ships a Redis-backed one.
//
// Contract, on which the extension's idempotence properties depend:
//
//   - MergeNode and MergeEdge are atomic per call. Two concurrent merges of
//     the same key converge to one node/edge with last-write-wins attribute
//     resolution; the created flag is true for exactly one of them.
//   - AppendNode never merges. Every call stores a distinct node even when
//     the attributes match an existing one.
//   - Implementations add no retry logic; failures wrap ErrStorageFailed and
//     propagate so the caller can apply its own policy.
type Store interface {
	// MergeNode finds a node by node.ID and merges the supplied attributes
	// into it (caller attributes overwrite, absent attributes are preserved),
	// or creates the node if absent. The returned bool is true when the node
	// was newly created. The returned node is a snapshot the caller owns.
	MergeNode(ctx context.Context, node *Node) (*Node, bool, error)

	// AppendNode stores a new node unconditionally. Used for append-only
	// observation nodes (deviations) where distinct calls are distinct facts.
	AppendNode(ctx context.Context, node *Node) (*Node, error)

	// GetNode retrieves a node by ID.
	// Returns ErrNodeNotFound if the node does not exist.
	GetNode(ctx context.Context, id string) (*Node, error)

	// MergeEdge finds the edge identified by (FromID, Type, ToID) and merges
	// the supplied attributes, or creates the edge if absent. Both endpoints
	// must exist; ErrNodeNotFound is returned otherwise. The bool is true
	// when the edge was newly created.
	MergeEdge(ctx context.Context, edge *Edge) (*Edge, bool, error)

	// GetEdge retrieves an edge by its (FromID, Type, ToID) identity.
	// Returns ErrNodeNotFound if no such edge exists.
	GetEdge(ctx context.Context, fromID, edgeType, toID string) (*Edge, error)

	// Neighbors returns the nodes one hop away from nodeID along edges of
	// edgeType in the given direction, in stable discovery (insertion)
	// order. A missing start node yields ErrNodeNotFound; a node with no
	// matching edges yields an empty slice.
	Neighbors(ctx context.Context, nodeID, edgeType string, dir Direction) ([]*Node, error)
}
