package redisgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atbash-labs/mesgraph/graph"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds WATCH retry loops under contention.
const maxTxRetries = 16

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the key namespace. Default "kg".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is a Redis-backed graph.Store.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// New creates a Store over the given Redis client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "kg",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ graph.Store = (*Store)(nil)

func (s *Store) nodeKey(id string) string {
	return fmt.Sprintf("%s:node:%s", s.prefix, id)
}

func (s *Store) edgeKey(edgeKey string) string {
	return fmt.Sprintf("%s:edge:%s", s.prefix, edgeKey)
}

func (s *Store) outKey(id, edgeType string) string {
	return fmt.Sprintf("%s:out:%s:%s", s.prefix, id, edgeType)
}

func (s *Store) inKey(id, edgeType string) string {
	return fmt.Sprintf("%s:in:%s:%s", s.prefix, id, edgeType)
}

// MergeNode atomically creates the node or merges its properties
// last-write-wins. The returned flag is true when the node was created.
func (s *Store) MergeNode(ctx context.Context, node *graph.Node) (*graph.Node, bool, error) {
	if node == nil || node.ID == "" {
		return nil, false, fmt.Errorf("%w: merge requires a node ID", graph.ErrInvalidNode)
	}
	if err := node.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", graph.ErrInvalidNode, err)
	}

	key := s.nodeKey(node.ID)
	var merged *graph.Node
	var created bool

	txn := func(tx *redis.Tx) error {
		existing, err := getJSON[graph.Node](ctx, tx, key)
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		now := time.Now()
		if errors.Is(err, redis.Nil) {
			created = true
			merged = node.Clone()
			merged.CreatedAt = now
			merged.UpdatedAt = now
		} else {
			created = false
			merged = existing.Clone()
			// Property-free nodes round-trip through JSON with a nil map.
			if merged.Properties == nil {
				merged.Properties = make(map[string]any)
			}
			for k, v := range node.Properties {
				merged.Properties[k] = v
			}
			merged.UpdatedAt = now
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txn, key); err != nil {
		return nil, false, fmt.Errorf("%w: merge node %s: %v", graph.ErrStorageFailed, node.ID, err)
	}
	return merged, created, nil
}

// AppendNode stores a node that must not already exist. Deviations and other
// append-only facts use this path so that nothing ever merges them.
func (s *Store) AppendNode(ctx context.Context, node *graph.Node) (*graph.Node, error) {
	if node == nil || node.ID == "" {
		return nil, fmt.Errorf("%w: append requires a node ID", graph.ErrInvalidNode)
	}
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrInvalidNode, err)
	}

	stored := node.Clone()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: encode node %s: %v", graph.ErrStorageFailed, node.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.nodeKey(node.ID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: append node %s: %v", graph.ErrStorageFailed, node.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: append-only node %s already exists", graph.ErrStorageFailed, node.ID)
	}
	return stored, nil
}

// GetNode fetches a node by ID.
func (s *Store) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	node, err := getJSON[graph.Node](ctx, s.client, s.nodeKey(id))
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get node %s: %v", graph.ErrStorageFailed, id, err)
	}
	return node, nil
}

// MergeEdge atomically creates the edge or merges its properties
// last-write-wins. At most one edge exists per (from, type, to) triple;
// adjacency lists are appended only on creation. Both endpoints must exist.
func (s *Store) MergeEdge(ctx context.Context, edge *graph.Edge) (*graph.Edge, bool, error) {
	if edge == nil {
		return nil, false, fmt.Errorf("%w: edge is nil", graph.ErrInvalidEdge)
	}
	if err := edge.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", graph.ErrInvalidEdge, err)
	}

	for _, endpoint := range []string{edge.FromID, edge.ToID} {
		exists, err := s.client.Exists(ctx, s.nodeKey(endpoint)).Result()
		if err != nil {
			return nil, false, fmt.Errorf("%w: check endpoint %s: %v", graph.ErrStorageFailed, endpoint, err)
		}
		if exists == 0 {
			return nil, false, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, endpoint)
		}
	}

	key := s.edgeKey(edge.Key())
	var merged *graph.Edge
	var created bool

	txn := func(tx *redis.Tx) error {
		existing, err := getJSON[graph.Edge](ctx, tx, key)
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if errors.Is(err, redis.Nil) {
			created = true
			merged = edge.Clone()
		} else {
			created = false
			merged = existing.Clone()
			if merged.Properties == nil {
				merged.Properties = make(map[string]any)
			}
			for k, v := range edge.Properties {
				merged.Properties[k] = v
			}
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if created {
				pipe.RPush(ctx, s.outKey(edge.FromID, edge.Type), edge.ToID)
				pipe.RPush(ctx, s.inKey(edge.ToID, edge.Type), edge.FromID)
			}
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txn, key); err != nil {
		return nil, false, fmt.Errorf("%w: merge edge %s: %v", graph.ErrStorageFailed, edge.Key(), err)
	}
	return merged, created, nil
}

// GetEdge fetches an edge by its (from, type, to) triple.
func (s *Store) GetEdge(ctx context.Context, fromID, edgeType, toID string) (*graph.Edge, error) {
	key := s.edgeKey(fmt.Sprintf("%s|%s|%s", fromID, edgeType, toID))
	edge, err := getJSON[graph.Edge](ctx, s.client, key)
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: edge %s|%s|%s", graph.ErrNodeNotFound, fromID, edgeType, toID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get edge: %v", graph.ErrStorageFailed, err)
	}
	return edge, nil
}

// Neighbors returns the one-hop neighbors of a node over edges of the given
// type, in edge insertion order.
func (s *Store) Neighbors(ctx context.Context, nodeID, edgeType string, dir graph.Direction) ([]*graph.Node, error) {
	if err := dir.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.client.Exists(ctx, s.nodeKey(nodeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: check node %s: %v", graph.ErrStorageFailed, nodeID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}

	var ids []string
	if dir == graph.DirectionOut || dir == graph.DirectionBoth {
		out, err := s.client.LRange(ctx, s.outKey(nodeID, edgeType), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: out adjacency of %s: %v", graph.ErrStorageFailed, nodeID, err)
		}
		ids = append(ids, out...)
	}
	if dir == graph.DirectionIn || dir == graph.DirectionBoth {
		in, err := s.client.LRange(ctx, s.inKey(nodeID, edgeType), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: in adjacency of %s: %v", graph.ErrStorageFailed, nodeID, err)
		}
		ids = append(ids, in...)
	}

	neighbors := make([]*graph.Node, 0, len(ids))
	for _, id := range ids {
		node, err := getJSON[graph.Node](ctx, s.client, s.nodeKey(id))
		if errors.Is(err, redis.Nil) {
			// Dangling adjacency entry. Skip rather than fail the whole
			// traversal; partial plants are normal during ingestion.
			s.logger.Warn("dangling adjacency entry", "node", nodeID, "neighbor", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get neighbor %s: %v", graph.ErrStorageFailed, id, err)
		}
		neighbors = append(neighbors, node)
	}
	return neighbors, nil
}

// watch runs txn under WATCH on the given keys, retrying on transaction
// conflicts.
func (s *Store) watch(ctx context.Context, txn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction contention on %v after %d retries", keys, maxTxRetries)
}

// redisGetter is satisfied by both *redis.Client and *redis.Tx.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// getJSON fetches and decodes a JSON value. Returns redis.Nil unchanged when
// the key is absent so callers can branch on it.
func getJSON[T any](ctx context.Context, client redisGetter, key string) (*T, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &value, nil
}
