package mes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
)

const (
	defaultRCAHopLimit = 2
	defaultRCAMargin   = time.Hour
)

// RCAOption configures an RCA context build.
type RCAOption func(*rcaConfig)

type rcaConfig struct {
	hopLimit   int
	margin     time.Duration
	windowFrom time.Time
	windowTo   time.Time
}

// WithHopLimit bounds the upstream genealogy traversal. Default 2.
func WithHopLimit(n int) RCAOption {
	return func(c *rcaConfig) {
		c.hopLimit = n
	}
}

// WithWindow pins the deviation time window to an explicit interval,
// overriding the derived batch production window.
func WithWindow(from, to time.Time) RCAOption {
	return func(c *rcaConfig) {
		c.windowFrom = from
		c.windowTo = to
	}
}

// WithMargin extends the derived batch production window on both sides.
// Default one hour. Ignored when WithWindow is given.
func WithMargin(d time.Duration) RCAOption {
	return func(c *rcaConfig) {
		c.margin = d
	}
}

// TimeWindow is the half-open time interval an RCA context is restricted to.
// A zero From or To leaves that side unbounded.
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// AttachedDeviation is a deviation together with the entity it hangs off.
type AttachedDeviation struct {
	// Deviation is the recorded observation.
	Deviation *Deviation `json:"deviation"`

	// SourceType is the node type of the entity the deviation is attached
	// to (batch or ccp).
	SourceType string `json:"source_type"`

	// SourceID is the natural identifier of that entity (batch number or
	// CCP id).
	SourceID string `json:"source_id"`
}

// RCAContext is the bounded evidence set for root-cause analysis of one
// batch: the batch itself, its upstream genealogy, the CCPs governing the
// process steps involved, and every deviation inside the time window. The
// context is assembled fresh from the live graph on every call and never
// cached.
type RCAContext struct {
	// Batch is the batch under investigation.
	Batch *Batch `json:"batch"`

	// Genealogy is the upstream lineage, bounded by the hop limit.
	Genealogy *GenealogyResult `json:"genealogy"`

	// CCPs are the control points at the process steps of the batch and of
	// every upstream batch in the genealogy.
	CCPs []*CCP `json:"ccps"`

	// Deviations are the in-window deviations of the batch, the upstream
	// batches, and the resolved CCPs, sorted by timestamp ascending with
	// ties broken by ID.
	Deviations []AttachedDeviation `json:"deviations"`

	// Window is the time window the deviations were restricted to.
	Window TimeWindow `json:"window"`
}

// BuildRCAContext assembles the RCA context for a batch. The time window
// defaults to the batch's production window extended by the margin; an
// unstarted batch gets an unbounded window.
func (e *Extension) BuildRCAContext(ctx context.Context, batchNumber string, opts ...RCAOption) (*RCAContext, error) {
	const op = "Extension.BuildRCAContext"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	cfg := &rcaConfig{
		hopLimit: defaultRCAHopLimit,
		margin:   defaultRCAMargin,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.hopLimit <= 0 {
		return nil, mesgraph.NewValidationError(op, fmt.Errorf("hop limit must be > 0, got %d", cfg.hopLimit))
	}

	batch, err := e.GetBatch(ctx, batchNumber)
	if err != nil {
		return nil, err
	}

	genealogy, err := e.Lineage(ctx, batchNumber, LineageUpstream, cfg.hopLimit)
	if err != nil {
		return nil, err
	}

	window := TimeWindow{From: cfg.windowFrom, To: cfg.windowTo}
	if window.From.IsZero() && window.To.IsZero() {
		window = productionWindow(batch, cfg.margin)
	}

	result := &RCAContext{
		Batch:     batch,
		Genealogy: genealogy,
		Window:    window,
	}

	// Batches whose process steps bound the CCP search: the root plus every
	// upstream batch in the genealogy.
	batches := []*Batch{batch}
	for _, gn := range genealogy.Nodes() {
		if gn.Type != graph.NodeTypeBatch {
			continue
		}
		upstream, err := batchFromNode(gn.Node)
		if err != nil {
			return nil, mesgraph.NewInternalError(op, err)
		}
		batches = append(batches, upstream)
	}

	seenCCPs := make(map[string]bool)
	for _, b := range batches {
		if b.ProcessStep == "" {
			continue
		}
		ccps, err := e.ccpsAtStep(ctx, op, b.ProcessStep)
		if err != nil {
			return nil, err
		}
		for _, c := range ccps {
			if seenCCPs[c.ID] {
				continue
			}
			seenCCPs[c.ID] = true
			result.CCPs = append(result.CCPs, c)
		}
	}

	for _, b := range batches {
		devs, err := e.deviationsOf(ctx, op, graph.NodeTypeBatch, map[string]any{graph.PropNumber: b.Number}, b.Number, window)
		if err != nil {
			return nil, err
		}
		result.Deviations = append(result.Deviations, devs...)
	}
	for _, c := range result.CCPs {
		devs, err := e.deviationsOf(ctx, op, graph.NodeTypeCCP, map[string]any{graph.PropID: c.ID}, c.ID, window)
		if err != nil {
			return nil, err
		}
		result.Deviations = append(result.Deviations, devs...)
	}

	sort.SliceStable(result.Deviations, func(i, j int) bool {
		ti, tj := result.Deviations[i].Deviation.Timestamp, result.Deviations[j].Deviation.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return result.Deviations[i].Deviation.ID < result.Deviations[j].Deviation.ID
	})

	e.logger.Debug("rca context assembled",
		"batch", batchNumber,
		"genealogy_hops", len(genealogy.Hops),
		"ccps", len(result.CCPs),
		"deviations", len(result.Deviations))
	return result, nil
}

// productionWindow derives the deviation window from the batch timestamps,
// widened by the margin. Missing timestamps leave that side unbounded.
func productionWindow(batch *Batch, margin time.Duration) TimeWindow {
	var w TimeWindow
	if !batch.StartedAt.IsZero() {
		w.From = batch.StartedAt.Add(-margin)
	}
	if !batch.CompletedAt.IsZero() {
		w.To = batch.CompletedAt.Add(margin)
	}
	return w
}

// ccpsAtStep resolves the CCPs anchored to a process step via AT_STEP edges.
// An unknown step is not an error: partially ingested plants simply have no
// CCPs there yet.
func (e *Extension) ccpsAtStep(ctx context.Context, op, step string) ([]*CCP, error) {
	stepID, err := e.ids.Generate(graph.NodeTypeProcessStep, map[string]any{graph.PropName: step})
	if err != nil {
		return nil, mesgraph.NewValidationError(op, err)
	}

	neighbors, err := e.store.Neighbors(ctx, stepID, graph.EdgeTypeAtStep, graph.DirectionIn)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return nil, nil
		}
		return nil, mesgraph.NewStorageError(op, err)
	}

	var ccps []*CCP
	for _, node := range neighbors {
		if node.Type != graph.NodeTypeCCP {
			continue
		}
		c, err := ccpFromNode(node)
		if err != nil {
			return nil, mesgraph.NewInternalError(op, err)
		}
		ccps = append(ccps, c)
	}
	return ccps, nil
}

// deviationsOf collects the in-window deviations attached to one entity.
func (e *Extension) deviationsOf(ctx context.Context, op, sourceType string, key map[string]any, sourceID string, window TimeWindow) ([]AttachedDeviation, error) {
	nodeID, err := e.ids.Generate(sourceType, key)
	if err != nil {
		return nil, mesgraph.NewValidationError(op, err)
	}

	neighbors, err := e.store.Neighbors(ctx, nodeID, graph.EdgeTypeHasDeviation, graph.DirectionOut)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return nil, nil
		}
		return nil, mesgraph.NewStorageError(op, err)
	}

	var out []AttachedDeviation
	for _, node := range neighbors {
		if node.Type != graph.NodeTypeDeviation {
			continue
		}
		d, err := deviationFromNode(node)
		if err != nil {
			return nil, mesgraph.NewInternalError(op, err)
		}
		if !window.Contains(d.Timestamp) {
			continue
		}
		out = append(out, AttachedDeviation{
			Deviation:  d,
			SourceType: sourceType,
			SourceID:   sourceID,
		})
	}
	return out, nil
}
