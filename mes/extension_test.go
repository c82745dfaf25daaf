package mes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestExtension(t *testing.T) *Extension {
	t.Helper()
	return NewExtension(graph.NewMemStore())
}

func TestExtension_UpsertMaterial_Idempotent(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	first, created, err := ext.UpsertMaterial(ctx, &Material{Name: "Flour", Category: CategoryRaw, Unit: "kg"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "kg", first.Unit)

	// Second upsert of the same natural key merges instead of duplicating;
	// supplied attributes win, unspecified attributes survive.
	second, created, err := ext.UpsertMaterial(ctx, &Material{Name: "Flour", Category: CategoryRaw})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "kg", second.Unit, "merge must preserve attributes the second call omitted")

	third, created, err := ext.UpsertMaterial(ctx, &Material{Name: "Flour", Category: CategoryRaw, Unit: "t"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "t", third.Unit, "merge must overwrite attributes the call supplies")
}

func TestExtension_UpsertMaterial_CategoryDistinguishes(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	_, created, err := ext.UpsertMaterial(ctx, &Material{Name: "Sugar", Category: CategoryRaw})
	require.NoError(t, err)
	assert.True(t, created)

	// Same name, different category: a different entity.
	_, created, err = ext.UpsertMaterial(ctx, &Material{Name: "Sugar", Category: CategoryFinished})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestExtension_UpsertMaterial_Invalid(t *testing.T) {
	ext := newTestExtension(t)

	_, _, err := ext.UpsertMaterial(context.Background(), &Material{Category: CategoryRaw})
	require.Error(t, err)

	var oerr *mesgraph.OntologyError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, mesgraph.KindValidation, oerr.Kind)

	_, _, err = ext.UpsertMaterial(context.Background(), nil)
	require.Error(t, err)
}

func TestExtension_UpsertBatch_LinksProducedMaterialAndStep(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	batch := &Batch{
		Number:           "B100",
		Material:         "Dough",
		MaterialCategory: CategoryIntermediate,
		ProcessStep:      "Mixing",
		Status:           StatusPlanned,
		Quantity:         500,
		Unit:             "kg",
	}
	got, created, err := ext.UpsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "B100", got.Number)
	assert.Equal(t, StatusPlanned, got.Status)

	// The produced material exists even though it was never upserted
	// explicitly, so downstream genealogy works batch-first.
	material, created, err := ext.UpsertMaterial(ctx, &Material{Name: "Dough", Category: CategoryIntermediate})
	require.NoError(t, err)
	assert.False(t, created, "UpsertBatch should have created the produced material node")
	assert.Equal(t, "Dough", material.Name)

	// Replay is a no-op merge.
	_, created, err = ext.UpsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestExtension_UpsertBatch_StaleStatusReplay(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	record := &Batch{
		Number:           "B300",
		Material:         "Bread",
		MaterialCategory: CategoryFinished,
		Status:           StatusPlanned,
		Quantity:         100,
	}
	_, _, err := ext.UpsertBatch(ctx, record)
	require.NoError(t, err)

	_, err = ext.TransitionBatch(ctx, "B300", StatusInProgress)
	require.NoError(t, err)
	_, err = ext.TransitionBatch(ctx, "B300", StatusCompleted)
	require.NoError(t, err)

	// Replaying the original Planned record merges its attributes but must
	// not rewind the status machine.
	record.Quantity = 110
	merged, created, err := ext.UpsertBatch(ctx, record)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StatusCompleted, merged.Status, "stale status must not revert a completed batch")
	assert.Equal(t, 110.0, merged.Quantity, "non-status attributes still merge")

	// A record carrying a status still ahead of the stored one moves it.
	ahead := &Batch{
		Number:           "B301",
		Material:         "Bread",
		MaterialCategory: CategoryFinished,
		Status:           StatusPlanned,
	}
	_, _, err = ext.UpsertBatch(ctx, ahead)
	require.NoError(t, err)

	ahead.Status = StatusCompleted
	merged, _, err = ext.UpsertBatch(ctx, ahead)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, merged.Status)
}

func TestExtension_TransitionBatch(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	_, _, err := ext.UpsertBatch(ctx, &Batch{
		Number:           "B200",
		Material:         "Bread",
		MaterialCategory: CategoryFinished,
		Status:           StatusPlanned,
	})
	require.NoError(t, err)

	got, err := ext.TransitionBatch(ctx, "B200", StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	got, err = ext.TransitionBatch(ctx, "B200", StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	// Completed is terminal.
	_, err = ext.TransitionBatch(ctx, "B200", StatusInProgress)
	require.Error(t, err)
	assert.ErrorIs(t, err, mesgraph.ErrInvalidTransition)

	var oerr *mesgraph.OntologyError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, mesgraph.KindInvalidTransition, oerr.Kind)
	assert.Equal(t, "Completed", oerr.Context["current"])
	assert.Equal(t, "InProgress", oerr.Context["attempted"])

	// The failed transition left the batch untouched.
	current, err := ext.GetBatch(ctx, "B200")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, current.Status)
}

func TestExtension_TransitionBatch_HoldCycle(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	_, _, err := ext.UpsertBatch(ctx, &Batch{
		Number:           "B201",
		Material:         "Bread",
		MaterialCategory: CategoryFinished,
		Status:           StatusInProgress,
	})
	require.NoError(t, err)

	for _, to := range []BatchStatus{StatusOnHold, StatusInProgress, StatusOnHold, StatusRejected} {
		_, err := ext.TransitionBatch(ctx, "B201", to)
		require.NoError(t, err, "transition to %s", to)
	}
}

func TestExtension_TransitionBatch_NotFound(t *testing.T) {
	ext := newTestExtension(t)

	_, err := ext.TransitionBatch(context.Background(), "B999", StatusInProgress)
	require.Error(t, err)
	assert.ErrorIs(t, err, mesgraph.ErrBatchNotFound)
}

func TestExtension_LinkConsumption(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	_, _, err := ext.UpsertMaterial(ctx, &Material{Name: "Flour", Category: CategoryRaw, Unit: "kg"})
	require.NoError(t, err)
	_, _, err = ext.UpsertBatch(ctx, &Batch{
		Number:           "B100",
		Material:         "Dough",
		MaterialCategory: CategoryIntermediate,
		Status:           StatusInProgress,
	})
	require.NoError(t, err)

	require.NoError(t, ext.LinkConsumption(ctx, "B100", "Flour", CategoryRaw, 300))

	// Re-linking the same pair updates the quantity on the single edge
	// instead of duplicating it.
	require.NoError(t, ext.LinkConsumption(ctx, "B100", "Flour", CategoryRaw, 325))

	result, err := ext.Lineage(ctx, "B100", LineageUpstream, 1)
	require.NoError(t, err)
	require.Len(t, result.Hops, 1)
	require.Len(t, result.Hops[0], 1, "one CONSUMED edge after duplicate link")
	assert.Equal(t, graph.NodeTypeMaterial, result.Hops[0][0].Type)
}

func TestExtension_LinkConsumption_MissingEndpoints(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	err := ext.LinkConsumption(ctx, "B404", "Flour", CategoryRaw, 10)
	assert.ErrorIs(t, err, mesgraph.ErrBatchNotFound)

	_, _, err = ext.UpsertBatch(ctx, &Batch{
		Number:           "B404",
		Material:         "Dough",
		MaterialCategory: CategoryIntermediate,
		Status:           StatusPlanned,
	})
	require.NoError(t, err)

	err = ext.LinkConsumption(ctx, "B404", "Unobtainium", CategoryRaw, 10)
	assert.ErrorIs(t, err, mesgraph.ErrMaterialNotFound)
}

func TestExtension_AttachDeviation_AppendOnly(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	_, _, err := ext.UpsertBatch(ctx, &Batch{
		Number:           "B100",
		Material:         "Dough",
		MaterialCategory: CategoryIntermediate,
		Status:           StatusInProgress,
	})
	require.NoError(t, err)

	ts := time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC)

	// Identical readings are distinct facts: both must be stored.
	for i := 0; i < 2; i++ {
		d, err := NewDeviation(ts, 82.4, SeverityMajor)
		require.NoError(t, err)
		_, err = ext.AttachDeviation(ctx, graph.NodeTypeBatch, "B100", d)
		require.NoError(t, err)
	}

	rca, err := ext.BuildRCAContext(ctx, "B100", WithWindow(ts.Add(-time.Minute), ts.Add(time.Minute)))
	require.NoError(t, err)
	assert.Len(t, rca.Deviations, 2, "identical readings must both be kept")
}

func TestExtension_AttachDeviation_Targets(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	limit := CriticalLimit{Min: fp(60), Max: fp(80)}
	ccp, err := NewCCP("CCP-1", "Pasteurization", limit, "TT-101")
	require.NoError(t, err)
	_, _, err = ext.UpsertCCP(ctx, ccp)
	require.NoError(t, err)

	d, err := NewDeviation(time.Now().UTC(), 85.0, SeverityCritical)
	require.NoError(t, err)
	attached, err := ext.AttachDeviation(ctx, graph.NodeTypeCCP, "CCP-1", d)
	require.NoError(t, err)
	assert.Equal(t, d.ID, attached.ID)

	// Missing target.
	d2, err := NewDeviation(time.Now().UTC(), 85.0, SeverityCritical)
	require.NoError(t, err)
	_, err = ext.AttachDeviation(ctx, graph.NodeTypeBatch, "B999", d2)
	assert.ErrorIs(t, err, mesgraph.ErrBatchNotFound)

	_, err = ext.AttachDeviation(ctx, graph.NodeTypeCCP, "CCP-404", d2)
	assert.ErrorIs(t, err, mesgraph.ErrCCPNotFound)

	// Deviations only attach to batches and CCPs.
	_, err = ext.AttachDeviation(ctx, graph.NodeTypeMaterial, "Flour", d2)
	require.Error(t, err)
	var oerr *mesgraph.OntologyError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, mesgraph.KindValidation, oerr.Kind)
}

func TestExtension_UpsertCCP_Idempotent(t *testing.T) {
	ext := newTestExtension(t)
	ctx := context.Background()

	limit := CriticalLimit{Min: fp(60), Max: fp(80), Expression: "value != 0.0"}
	ccp, err := NewCCP("CCP-1", "Pasteurization", limit, "TT-101", "TT-102")
	require.NoError(t, err)

	first, created, err := ext.UpsertCCP(ctx, ccp)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"TT-101", "TT-102"}, first.Tags)
	require.NotNil(t, first.Limit.Min)
	assert.Equal(t, 60.0, *first.Limit.Min)
	assert.Equal(t, "value != 0.0", first.Limit.Expression)

	_, created, err = ext.UpsertCCP(ctx, ccp)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestExtension_UpsertCCP_InvalidLimit(t *testing.T) {
	ext := newTestExtension(t)

	bad := &CCP{ID: "CCP-X", Limit: CriticalLimit{Min: fp(10), Max: fp(5)}}
	_, _, err := ext.UpsertCCP(context.Background(), bad)
	require.Error(t, err)

	var oerr *mesgraph.OntologyError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, mesgraph.KindValidation, oerr.Kind)
}

// recordingTracer captures span names while delegating to a no-op tracer.
type recordingTracer struct {
	embedded.Tracer
	mu    sync.Mutex
	spans []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.spans = append(r.spans, name)
	r.mu.Unlock()
	return noop.NewTracerProvider().Tracer("recording").Start(ctx, name)
}

func TestExtension_EveryOperationStartsASpan(t *testing.T) {
	rec := &recordingTracer{}
	ext := NewExtension(graph.NewMemStore(), WithTracer(rec))
	ctx := context.Background()

	_, _, err := ext.UpsertMaterial(ctx, &Material{Name: "Flour", Category: CategoryRaw})
	require.NoError(t, err)
	_, _, err = ext.UpsertBatch(ctx, &Batch{
		Number: "B100", Material: "Dough", MaterialCategory: CategoryIntermediate,
		ProcessStep: "Mixing", Status: StatusPlanned,
	})
	require.NoError(t, err)

	limit := CriticalLimit{Max: fp(30)}
	ccp, err := NewCCP("CCP-MIX", "Mixing", limit)
	require.NoError(t, err)
	_, _, err = ext.UpsertCCP(ctx, ccp)
	require.NoError(t, err)

	_, err = ext.TransitionBatch(ctx, "B100", StatusInProgress)
	require.NoError(t, err)
	require.NoError(t, ext.LinkConsumption(ctx, "B100", "Flour", CategoryRaw, 50))

	d, err := NewDeviation(time.Now().UTC(), 31.0, SeverityMinor)
	require.NoError(t, err)
	_, err = ext.AttachDeviation(ctx, graph.NodeTypeBatch, "B100", d)
	require.NoError(t, err)

	_, err = ext.GetBatch(ctx, "B100")
	require.NoError(t, err)
	_, err = ext.Lineage(ctx, "B100", LineageUpstream, 2)
	require.NoError(t, err)
	_, err = ext.BuildRCAContext(ctx, "B100")
	require.NoError(t, err)

	for _, op := range []string{
		"Extension.UpsertMaterial",
		"Extension.UpsertBatch",
		"Extension.UpsertCCP",
		"Extension.TransitionBatch",
		"Extension.LinkConsumption",
		"Extension.AttachDeviation",
		"Extension.GetBatch",
		"Extension.Lineage",
		"Extension.BuildRCAContext",
	} {
		assert.Contains(t, rec.spans, op)
	}
}

func TestExtension_StorePropagation(t *testing.T) {
	ext := NewExtension(failingStore{})

	_, _, err := ext.UpsertMaterial(context.Background(), &Material{Name: "Flour", Category: CategoryRaw})
	require.Error(t, err)

	var oerr *mesgraph.OntologyError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, mesgraph.KindStorage, oerr.Kind)
}

// failingStore errors on every call, for propagation tests.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) MergeNode(context.Context, *graph.Node) (*graph.Node, bool, error) {
	return nil, false, errStoreDown
}

func (failingStore) AppendNode(context.Context, *graph.Node) (*graph.Node, error) {
	return nil, errStoreDown
}

func (failingStore) GetNode(context.Context, string) (*graph.Node, error) {
	return nil, errStoreDown
}

func (failingStore) MergeEdge(context.Context, *graph.Edge) (*graph.Edge, bool, error) {
	return nil, false, errStoreDown
}

func (failingStore) GetEdge(context.Context, string, string, string) (*graph.Edge, error) {
	return nil, errStoreDown
}

func (failingStore) Neighbors(context.Context, string, string, graph.Direction) ([]*graph.Node, error) {
	return nil, errStoreDown
}
