package graph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation. It honors the full merge
// contract and is safe for concurrent use, which makes it the reference
// implementation for tests and for embedded callers that do not run a graph
// database.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge

	// adjacency per node, per edge type, in insertion order
	out map[string]map[string][]string
	in  map[string]map[string][]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		out:   make(map[string]map[string][]string),
		in:    make(map[string]map[string][]string),
	}
}

// MergeNode implements Store.
func (s *MemStore) MergeNode(ctx context.Context, node *Node) (*Node, bool, error) {
	if node == nil {
		return nil, false, fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if err := node.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}
	if node.ID == "" {
		return nil, false, fmt.Errorf("%w: merge requires a node ID", ErrInvalidNode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[node.ID]
	if !ok {
		stored := node.Clone()
		now := time.Now()
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.nodes[node.ID] = stored
		return stored.Clone(), true, nil
	}

	// Last-write-wins per attribute; absent attributes are preserved.
	for k, v := range node.Properties {
		if existing.Properties == nil {
			existing.Properties = make(map[string]any)
		}
		existing.Properties[k] = v
	}
	existing.UpdatedAt = time.Now()
	return existing.Clone(), false, nil
}

// AppendNode implements Store. Each call stores a distinct node; an ID
// collision is an error rather than a merge.
func (s *MemStore) AppendNode(ctx context.Context, node *Node) (*Node, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}
	if node.ID == "" {
		return nil, fmt.Errorf("%w: append requires a node ID", ErrInvalidNode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[node.ID]; ok {
		return nil, fmt.Errorf("%w: append collision on node %q", ErrStorageFailed, node.ID)
	}

	stored := node.Clone()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.nodes[node.ID] = stored
	return stored.Clone(), nil
}

// GetNode implements Store.
func (s *MemStore) GetNode(ctx context.Context, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return node.Clone(), nil
}

// MergeEdge implements Store.
func (s *MemStore) MergeEdge(ctx context.Context, edge *Edge) (*Edge, bool, error) {
	if edge == nil {
		return nil, false, fmt.Errorf("%w: nil edge", ErrInvalidEdge)
	}
	if err := edge.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidEdge, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.FromID]; !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrNodeNotFound, edge.FromID)
	}
	if _, ok := s.nodes[edge.ToID]; !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrNodeNotFound, edge.ToID)
	}

	key := edge.Key()
	existing, ok := s.edges[key]
	if !ok {
		stored := edge.Clone()
		s.edges[key] = stored
		s.appendAdjacency(edge)
		return stored.Clone(), true, nil
	}

	for k, v := range edge.Properties {
		if existing.Properties == nil {
			existing.Properties = make(map[string]any)
		}
		existing.Properties[k] = v
	}
	return existing.Clone(), false, nil
}

func (s *MemStore) appendAdjacency(edge *Edge) {
	if s.out[edge.FromID] == nil {
		s.out[edge.FromID] = make(map[string][]string)
	}
	s.out[edge.FromID][edge.Type] = append(s.out[edge.FromID][edge.Type], edge.ToID)

	if s.in[edge.ToID] == nil {
		s.in[edge.ToID] = make(map[string][]string)
	}
	s.in[edge.ToID][edge.Type] = append(s.in[edge.ToID][edge.Type], edge.FromID)
}

// GetEdge implements Store.
func (s *MemStore) GetEdge(ctx context.Context, fromID, edgeType, toID string) (*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := fmt.Sprintf("%s|%s|%s", fromID, edgeType, toID)
	edge, ok := s.edges[key]
	if !ok {
		return nil, fmt.Errorf("%w: edge %s", ErrNodeNotFound, key)
	}
	return edge.Clone(), nil
}

// Neighbors implements Store. Results preserve edge insertion order so that
// repeated traversals of an unchanged graph return identical sequences.
func (s *MemStore) Neighbors(ctx context.Context, nodeID, edgeType string, dir Direction) ([]*Node, error) {
	if err := dir.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	var ids []string
	if dir == DirectionOut || dir == DirectionBoth {
		if adj := s.out[nodeID]; adj != nil {
			ids = append(ids, adj[edgeType]...)
		}
	}
	if dir == DirectionIn || dir == DirectionBoth {
		if adj := s.in[nodeID]; adj != nil {
			ids = append(ids, adj[edgeType]...)
		}
	}

	neighbors := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := s.nodes[id]; ok {
			neighbors = append(neighbors, node.Clone())
		}
	}
	return neighbors, nil
}
