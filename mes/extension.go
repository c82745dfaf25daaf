package mes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
	"github.com/atbash-labs/mesgraph/graph/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/atbash-labs/mesgraph/mes"

// Option configures an Extension.
type Option func(*extensionConfig)

type extensionConfig struct {
	registry *graph.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
}

// WithRegistry sets a custom node type registry. Use this when the host
// ontology has registered its own Level 0-2 node types alongside the MES
// defaults.
func WithRegistry(registry *graph.Registry) Option {
	return func(c *extensionConfig) {
		c.registry = registry
	}
}

// WithLogger sets a custom structured logger.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *extensionConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for the extension's operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *extensionConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for the extension's counters.
func WithMeter(meter metric.Meter) Option {
	return func(c *extensionConfig) {
		c.meter = meter
	}
}

// Extension layers the MES operations over a graph.Store supplied by the
// host ontology. It owns no storage and no locks: correctness under
// concurrent callers comes entirely from the store's merge contract
// (last-write-wins convergence) and the append-only nature of deviations.
type Extension struct {
	store    graph.Store
	registry *graph.Registry
	ids      id.Generator
	logger   *slog.Logger
	tracer   trace.Tracer
	upserts  metric.Int64Counter
}

// NewExtension creates an Extension over the given store.
func NewExtension(store graph.Store, opts ...Option) *Extension {
	cfg := &extensionConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.registry == nil {
		cfg.registry = graph.NewRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(instrumentationName)
	}
	if cfg.meter == nil {
		cfg.meter = otel.Meter(instrumentationName)
	}

	upserts, err := cfg.meter.Int64Counter("mesgraph.upserts",
		metric.WithDescription("Entity and relationship upserts issued against the graph"))
	if err != nil {
		cfg.logger.Warn("failed to create upsert counter", "error", err)
	}

	return &Extension{
		store:    store,
		registry: cfg.registry,
		ids:      id.NewGenerator(cfg.registry),
		logger:   cfg.logger,
		tracer:   cfg.tracer,
		upserts:  upserts,
	}
}

// Registry returns the node type registry the extension derives IDs from.
func (e *Extension) Registry() *graph.Registry {
	return e.registry
}

// NodeID returns the deterministic graph node ID for a natural key.
func (e *Extension) NodeID(nodeType string, identifying map[string]any) (string, error) {
	return e.ids.Generate(nodeType, identifying)
}

// UpsertMaterial idempotently merges a material into the graph by its
// (name, category) natural key. The returned flag is true when the node was
// newly created; on merge, supplied attributes overwrite and unspecified
// attributes are preserved.
func (e *Extension) UpsertMaterial(ctx context.Context, material *Material) (*Material, bool, error) {
	const op = "Extension.UpsertMaterial"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if material == nil {
		return nil, false, mesgraph.NewValidationError(op, errors.New("material is nil"))
	}
	if err := material.Validate(); err != nil {
		return nil, false, err
	}

	node, created, err := e.mergeEntity(ctx, op, material.NodeType(), material.IdentifyingProperties(), material.Properties())
	if err != nil {
		return nil, false, err
	}

	merged, err := materialFromNode(node)
	if err != nil {
		return nil, false, mesgraph.NewInternalError(op, err)
	}

	e.countUpsert(ctx, graph.NodeTypeMaterial, created)
	e.logger.Debug("material upserted", "name", material.Name, "category", material.Category.String(), "created", created)
	return merged, created, nil
}

// UpsertBatch idempotently merges a batch into the graph by its batch
// number. The produced material node is merged as well (so genealogy works
// even when ingestion order is batch-first) and connected with a PRODUCES
// edge; a non-empty process step is merged and connected with AT_STEP.
//
// Status merges forward only: replaying the same ingestion record stays
// idempotent, and a record carrying a status the stored batch could still
// reach moves it ahead, but a stale record (say Planned over Completed) has
// its status dropped so the merge never rewinds the status machine.
// TransitionBatch remains the only operation that steps a live batch through
// individual transitions.
func (e *Extension) UpsertBatch(ctx context.Context, batch *Batch) (*Batch, bool, error) {
	const op = "Extension.UpsertBatch"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if batch == nil {
		return nil, false, mesgraph.NewValidationError(op, errors.New("batch is nil"))
	}
	if err := batch.Validate(); err != nil {
		return nil, false, err
	}

	properties := batch.Properties()
	if current, ok, err := e.currentBatchStatus(ctx, op, batch.Number); err != nil {
		return nil, false, err
	} else if ok && !current.CanReach(batch.Status) {
		delete(properties, graph.PropStatus)
		e.logger.Warn("stale batch status dropped from merge",
			"number", batch.Number, "stored", current.String(), "incoming", batch.Status.String())
	}

	node, created, err := e.mergeEntity(ctx, op, batch.NodeType(), batch.IdentifyingProperties(), properties)
	if err != nil {
		return nil, false, err
	}

	// Produced material: merge the node (identifying properties only, so an
	// already-ingested material keeps its attributes) and the PRODUCES edge.
	produced := &Material{Name: batch.Material, Category: batch.MaterialCategory}
	materialNode, _, err := e.mergeEntity(ctx, op, produced.NodeType(), produced.IdentifyingProperties(), produced.IdentifyingProperties())
	if err != nil {
		return nil, false, err
	}
	if _, _, err := e.store.MergeEdge(ctx, graph.NewEdge(node.ID, materialNode.ID, graph.EdgeTypeProduces)); err != nil {
		return nil, false, mesgraph.NewStorageError(op, err)
	}

	if batch.ProcessStep != "" {
		if err := e.linkStep(ctx, op, node.ID, batch.ProcessStep); err != nil {
			return nil, false, err
		}
	}

	merged, err := batchFromNode(node)
	if err != nil {
		return nil, false, mesgraph.NewInternalError(op, err)
	}

	e.countUpsert(ctx, graph.NodeTypeBatch, created)
	e.logger.Debug("batch upserted", "number", batch.Number, "created", created)
	return merged, created, nil
}

// UpsertCCP idempotently merges a critical control point by its identifier,
// merges its monitoring tag references as Level 0-2 tag nodes connected via
// MONITORED_BY, and anchors the CCP to its process step via AT_STEP.
func (e *Extension) UpsertCCP(ctx context.Context, ccp *CCP) (*CCP, bool, error) {
	const op = "Extension.UpsertCCP"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if ccp == nil {
		return nil, false, mesgraph.NewValidationError(op, errors.New("ccp is nil"))
	}
	if err := ccp.Validate(); err != nil {
		return nil, false, err
	}

	node, created, err := e.mergeEntity(ctx, op, ccp.NodeType(), ccp.IdentifyingProperties(), ccp.Properties())
	if err != nil {
		return nil, false, err
	}

	for _, tag := range ccp.Tags {
		tagKey := map[string]any{graph.PropName: tag}
		tagNode, _, err := e.mergeEntity(ctx, op, graph.NodeTypeTag, tagKey, tagKey)
		if err != nil {
			return nil, false, err
		}
		if _, _, err := e.store.MergeEdge(ctx, graph.NewEdge(node.ID, tagNode.ID, graph.EdgeTypeMonitoredBy)); err != nil {
			return nil, false, mesgraph.NewStorageError(op, err)
		}
	}

	if ccp.ProcessStep != "" {
		if err := e.linkStep(ctx, op, node.ID, ccp.ProcessStep); err != nil {
			return nil, false, err
		}
	}

	merged, err := ccpFromNode(node)
	if err != nil {
		return nil, false, mesgraph.NewInternalError(op, err)
	}

	e.countUpsert(ctx, graph.NodeTypeCCP, created)
	e.logger.Debug("ccp upserted", "id", ccp.ID, "created", created)
	return merged, created, nil
}

// TransitionBatch moves a batch to a new status, enforcing the monotonic
// transition order. An illegal move fails with an InvalidTransition error
// naming the current and attempted states; the graph is left untouched.
func (e *Extension) TransitionBatch(ctx context.Context, batchNumber string, to BatchStatus) (*Batch, error) {
	const op = "Extension.TransitionBatch"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if !to.IsValid() {
		return nil, mesgraph.NewValidationError(op, fmt.Errorf("invalid target status: %d", int(to)))
	}

	node, err := e.getBatchNode(ctx, op, batchNumber)
	if err != nil {
		return nil, err
	}

	batch, err := batchFromNode(node)
	if err != nil {
		return nil, mesgraph.NewInternalError(op, err)
	}

	if !batch.Status.CanTransition(to) {
		return nil, mesgraph.NewInvalidTransitionError(op, batch.Status.String(), to.String()).
			WithContext(map[string]any{"batch": batchNumber})
	}

	update := graph.NewNode(graph.NodeTypeBatch).WithID(node.ID).
		WithProperty(graph.PropStatus, to.String())
	merged, _, err := e.store.MergeNode(ctx, update)
	if err != nil {
		return nil, mesgraph.NewStorageError(op, err)
	}

	result, err := batchFromNode(merged)
	if err != nil {
		return nil, mesgraph.NewInternalError(op, err)
	}

	e.logger.Info("batch transitioned", "number", batchNumber, "from", batch.Status.String(), "to", to.String())
	return result, nil
}

// LinkConsumption records that a batch consumed a quantity of a material as
// a CONSUMED edge. Linking the same (batch, material) pair again updates the
// quantity last-write-wins instead of duplicating the edge. Fails with a
// NotFound error if either endpoint does not exist; callers that want
// create-on-demand upsert the endpoints first and retry.
func (e *Extension) LinkConsumption(ctx context.Context, batchNumber, materialName string, category MaterialCategory, quantity float64) error {
	const op = "Extension.LinkConsumption"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if quantity < 0 {
		return mesgraph.NewValidationError(op, fmt.Errorf("quantity must be >= 0, got %v", quantity))
	}

	batchNode, err := e.getBatchNode(ctx, op, batchNumber)
	if err != nil {
		return err
	}

	materialID, err := e.ids.Generate(graph.NodeTypeMaterial, map[string]any{
		graph.PropName:     materialName,
		graph.PropCategory: category.String(),
	})
	if err != nil {
		return mesgraph.NewValidationError(op, err)
	}
	if _, err := e.store.GetNode(ctx, materialID); err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return mesgraph.NewNotFoundError(op, mesgraph.ErrMaterialNotFound).
				WithContext(map[string]any{"material": materialName, "category": category.String()})
		}
		return mesgraph.NewStorageError(op, err)
	}

	edge := graph.NewEdge(batchNode.ID, materialID, graph.EdgeTypeConsumed).
		WithProperty(graph.PropQuantity, quantity)
	if _, _, err := e.store.MergeEdge(ctx, edge); err != nil {
		return mesgraph.NewStorageError(op, err)
	}

	e.countUpsert(ctx, graph.EdgeTypeConsumed, false)
	e.logger.Debug("consumption linked", "batch", batchNumber, "material", materialName, "quantity", quantity)
	return nil
}

// AttachDeviation appends a deviation to a batch or CCP. This operation
// never merges: every call stores a new deviation node even when the
// timestamp and value match a prior one, because distinct observations are
// distinct facts. The target is addressed by its natural identifier
// (batch number or CCP id); a missing target fails with NotFound.
func (e *Extension) AttachDeviation(ctx context.Context, targetType, targetID string, deviation *Deviation) (*Deviation, error) {
	const op = "Extension.AttachDeviation"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	if deviation == nil {
		return nil, mesgraph.NewValidationError(op, errors.New("deviation is nil"))
	}
	if err := deviation.Validate(); err != nil {
		return nil, err
	}

	var key map[string]any
	var missing error
	switch targetType {
	case graph.NodeTypeBatch:
		key = map[string]any{graph.PropNumber: targetID}
		missing = mesgraph.ErrBatchNotFound
	case graph.NodeTypeCCP:
		key = map[string]any{graph.PropID: targetID}
		missing = mesgraph.ErrCCPNotFound
	default:
		return nil, mesgraph.NewValidationError(op,
			fmt.Errorf("deviations attach to %q or %q nodes, not %q", graph.NodeTypeBatch, graph.NodeTypeCCP, targetType))
	}

	nodeID, err := e.ids.Generate(targetType, key)
	if err != nil {
		return nil, mesgraph.NewValidationError(op, err)
	}
	targetNode, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return nil, mesgraph.NewNotFoundError(op, missing).
				WithContext(map[string]any{"target": targetID})
		}
		return nil, mesgraph.NewStorageError(op, err)
	}

	devNode := graph.NewNode(deviation.NodeType()).
		WithID(fmt.Sprintf("%s:%s", graph.NodeTypeDeviation, deviation.ID)).
		WithProperties(deviation.Properties())
	stored, err := e.store.AppendNode(ctx, devNode)
	if err != nil {
		return nil, mesgraph.NewStorageError(op, err)
	}

	if _, _, err := e.store.MergeEdge(ctx, graph.NewEdge(targetNode.ID, stored.ID, graph.EdgeTypeHasDeviation)); err != nil {
		return nil, mesgraph.NewStorageError(op, err)
	}

	attached, err := deviationFromNode(stored)
	if err != nil {
		return nil, mesgraph.NewInternalError(op, err)
	}

	e.countUpsert(ctx, graph.NodeTypeDeviation, true)
	e.logger.Info("deviation attached",
		"target_type", targetType, "target", targetID,
		"severity", deviation.Severity.String(), "value", deviation.Value)
	return attached, nil
}

// GetBatch fetches a batch by number.
func (e *Extension) GetBatch(ctx context.Context, batchNumber string) (*Batch, error) {
	const op = "Extension.GetBatch"
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	node, err := e.getBatchNode(ctx, op, batchNumber)
	if err != nil {
		return nil, err
	}

	batch, err := batchFromNode(node)
	if err != nil {
		return nil, mesgraph.NewInternalError(op, err)
	}
	return batch, nil
}

// mergeEntity derives the deterministic node ID and issues one atomic merge.
// One code path for create and update: the idempotence contract forbids a
// separate create/update split.
func (e *Extension) mergeEntity(ctx context.Context, op, nodeType string, identifying, properties map[string]any) (*graph.Node, bool, error) {
	nodeID, err := e.ids.Generate(nodeType, identifying)
	if err != nil {
		return nil, false, mesgraph.NewValidationError(op, err)
	}

	node := graph.NewNode(nodeType).WithID(nodeID).WithProperties(properties)
	merged, created, err := e.store.MergeNode(ctx, node)
	if err != nil {
		return nil, false, mesgraph.NewStorageError(op, err)
	}
	return merged, created, nil
}

// linkStep merges the process-step node and an AT_STEP edge from the source.
func (e *Extension) linkStep(ctx context.Context, op, fromID, step string) error {
	stepKey := map[string]any{graph.PropName: step}
	stepNode, _, err := e.mergeEntity(ctx, op, graph.NodeTypeProcessStep, stepKey, stepKey)
	if err != nil {
		return err
	}
	if _, _, err := e.store.MergeEdge(ctx, graph.NewEdge(fromID, stepNode.ID, graph.EdgeTypeAtStep)); err != nil {
		return mesgraph.NewStorageError(op, err)
	}
	return nil
}

// currentBatchStatus reads the stored status of a batch, reporting false
// when the batch does not exist yet.
func (e *Extension) currentBatchStatus(ctx context.Context, op, batchNumber string) (BatchStatus, bool, error) {
	nodeID, err := e.ids.Generate(graph.NodeTypeBatch, map[string]any{graph.PropNumber: batchNumber})
	if err != nil {
		return 0, false, mesgraph.NewValidationError(op, err)
	}

	node, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return 0, false, nil
		}
		return 0, false, mesgraph.NewStorageError(op, err)
	}

	status, err := ParseBatchStatus(stringProp(node.Properties, graph.PropStatus))
	if err != nil {
		return 0, false, mesgraph.NewInternalError(op, fmt.Errorf("batch %s: %w", batchNumber, err))
	}
	return status, true, nil
}

// getBatchNode resolves a batch number to its node, mapping absence to the
// batch-specific NotFound error.
func (e *Extension) getBatchNode(ctx context.Context, op, batchNumber string) (*graph.Node, error) {
	nodeID, err := e.ids.Generate(graph.NodeTypeBatch, map[string]any{graph.PropNumber: batchNumber})
	if err != nil {
		return nil, mesgraph.NewValidationError(op, err)
	}

	node, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return nil, mesgraph.NewNotFoundError(op, mesgraph.ErrBatchNotFound).
				WithContext(map[string]any{"batch": batchNumber})
		}
		return nil, mesgraph.NewStorageError(op, err)
	}
	return node, nil
}

func (e *Extension) countUpsert(ctx context.Context, entity string, created bool) {
	if e.upserts == nil {
		return
	}
	e.upserts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.Bool("created", created),
		))
}
