package mes

import (
	"context"
	"fmt"
	"strings"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
)

// LineageDirection selects which way a genealogy traversal walks.
type LineageDirection int

const (
	// LineageUpstream walks toward inputs: the materials a batch consumed
	// and the batches that produced them.
	LineageUpstream LineageDirection = iota

	// LineageDownstream walks toward outputs: the materials a batch produced
	// and the batches that consumed them.
	LineageDownstream
)

// String returns the string representation of the LineageDirection.
func (d LineageDirection) String() string {
	switch d {
	case LineageUpstream:
		return "upstream"
	case LineageDownstream:
		return "downstream"
	default:
		return fmt.Sprintf("LineageDirection(%d)", d)
	}
}

// IsValid returns true if the direction is a valid value.
func (d LineageDirection) IsValid() bool {
	return d == LineageUpstream || d == LineageDownstream
}

// ParseLineageDirection parses a string into a LineageDirection value.
func ParseLineageDirection(s string) (LineageDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upstream":
		return LineageUpstream, nil
	case "downstream":
		return LineageDownstream, nil
	default:
		return 0, fmt.Errorf("invalid lineage direction: %s", s)
	}
}

// GenealogyNode is one entity encountered during a lineage traversal.
type GenealogyNode struct {
	// Type is the node type (material or batch).
	Type string `json:"type"`

	// ID is the graph node ID.
	ID string `json:"id"`

	// Hop is the distance from the root batch, starting at 1 for the first
	// material layer.
	Hop int `json:"hop"`

	// Node is the underlying graph node with its full property set.
	Node *graph.Node `json:"node"`
}

// GenealogyResult is the outcome of a lineage traversal. Hops alternate
// between material layers and batch layers: hop 1 is the materials directly
// consumed (upstream) or produced (downstream) by the root batch, hop 2 the
// batches one production step away, and so on.
type GenealogyResult struct {
	// BatchNumber is the root batch the traversal started from.
	BatchNumber string `json:"batch_number"`

	// Direction is the traversal direction.
	Direction LineageDirection `json:"direction"`

	// Hops holds the discovered entities grouped by distance from the root.
	// Hops[i] is hop i+1. A node appears in the hop where it was first
	// reached.
	Hops [][]GenealogyNode `json:"hops"`

	// Truncated is true when the hop limit cut the traversal short of the
	// full lineage.
	Truncated bool `json:"truncated"`

	// CycleDetected is true when the traversal re-encountered a node it had
	// already visited. Rework and recycle loops are legitimate in production
	// data; the traversal reports them rather than failing.
	CycleDetected bool `json:"cycle_detected"`
}

// Nodes returns every discovered entity across all hops in traversal order.
func (r *GenealogyResult) Nodes() []GenealogyNode {
	var all []GenealogyNode
	for _, hop := range r.Hops {
		all = append(all, hop...)
	}
	return all
}

// Lineage walks the genealogy of a batch in the given direction for at most
// maxHops hops. Upstream follows CONSUMED edges out of batches and PRODUCES
// edges into materials; downstream follows PRODUCES edges out of batches and
// CONSUMED edges into materials. The walk is breadth-first, so every entity
// is reported at its minimum distance from the root, and a visited set makes
// it terminate on cyclic genealogies.
//
// maxHops <= 0 means unlimited; on cyclic data the visited set still bounds
// the walk.
func (e *Extension) Lineage(ctx context.Context, batchNumber string, direction LineageDirection, maxHops int) (*GenealogyResult, error) {
	const op = "Extension.Lineage"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if !direction.IsValid() {
		return nil, mesgraph.NewValidationError(op, fmt.Errorf("invalid lineage direction: %d", int(direction)))
	}

	root, err := e.getBatchNode(ctx, op, batchNumber)
	if err != nil {
		return nil, err
	}

	result := &GenealogyResult{
		BatchNumber: batchNumber,
		Direction:   direction,
	}

	visited := map[string]bool{root.ID: true}
	frontier := []*graph.Node{root}

	for hop := 1; maxHops <= 0 || hop <= maxHops; hop++ {
		next, cycle, err := e.expandFrontier(ctx, frontier, direction, visited)
		if err != nil {
			return nil, mesgraph.NewStorageError(op, err)
		}
		if cycle {
			result.CycleDetected = true
		}
		if len(next) == 0 {
			break
		}

		layer := make([]GenealogyNode, 0, len(next))
		for _, node := range next {
			layer = append(layer, GenealogyNode{
				Type: node.Type,
				ID:   node.ID,
				Hop:  hop,
				Node: node,
			})
		}
		result.Hops = append(result.Hops, layer)
		frontier = next
	}

	// The loop above stops at the hop limit without knowing whether more
	// lineage exists beyond it. Probe one expansion further so Truncated is
	// accurate.
	if maxHops > 0 && len(result.Hops) == maxHops {
		beyond, cycle, err := e.expandFrontier(ctx, frontier, direction, visited)
		if err != nil {
			return nil, mesgraph.NewStorageError(op, err)
		}
		if cycle {
			result.CycleDetected = true
		}
		result.Truncated = len(beyond) > 0
	}

	e.logger.Debug("lineage traversed",
		"batch", batchNumber, "direction", direction.String(),
		"hops", len(result.Hops), "truncated", result.Truncated, "cycle", result.CycleDetected)
	return result, nil
}

// expandFrontier computes the next BFS layer. Each frontier node expands
// according to its type and the traversal direction:
//
//	upstream:   batch -CONSUMED-> material, material <-PRODUCES- batch
//	downstream: batch -PRODUCES-> material, material <-CONSUMED- batch
//
// Nodes already visited are skipped; re-encountering a node from an earlier
// layer is a cycle, while converging on a node within the same layer (shared
// ancestry) is not.
func (e *Extension) expandFrontier(ctx context.Context, frontier []*graph.Node, direction LineageDirection, visited map[string]bool) ([]*graph.Node, bool, error) {
	var next []*graph.Node
	cycle := false
	thisLayer := make(map[string]bool)

	for _, node := range frontier {
		var edgeType string
		var dir graph.Direction

		switch node.Type {
		case graph.NodeTypeBatch:
			dir = graph.DirectionOut
			if direction == LineageUpstream {
				edgeType = graph.EdgeTypeConsumed
			} else {
				edgeType = graph.EdgeTypeProduces
			}
		case graph.NodeTypeMaterial:
			dir = graph.DirectionIn
			if direction == LineageUpstream {
				edgeType = graph.EdgeTypeProduces
			} else {
				edgeType = graph.EdgeTypeConsumed
			}
		default:
			continue
		}

		neighbors, err := e.store.Neighbors(ctx, node.ID, edgeType, dir)
		if err != nil {
			return nil, false, err
		}

		for _, neighbor := range neighbors {
			if visited[neighbor.ID] {
				if !thisLayer[neighbor.ID] {
					cycle = true
				}
				continue
			}
			visited[neighbor.ID] = true
			thisLayer[neighbor.ID] = true
			next = append(next, neighbor)
		}
	}

	return next, cycle, nil
}
