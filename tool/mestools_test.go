package tool

import (
	"context"
	"testing"
	"time"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
	"github.com/atbash-labs/mesgraph/mes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOntologyRegistry(t *testing.T) (*Registry, *mes.Extension) {
	t.Helper()
	ext := mes.NewExtension(graph.NewMemStore())
	reg := NewRegistry()
	require.NoError(t, RegisterOntologyTools(reg, ext))
	return reg, ext
}

func mustExecute(t *testing.T, reg *Registry, name string, input map[string]any) map[string]any {
	t.Helper()
	tl, ok := reg.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	out, err := tl.Execute(context.Background(), input)
	require.NoError(t, err, "tool %s", name)
	return out
}

func TestRegisterOntologyTools_ToolSet(t *testing.T) {
	reg, _ := newOntologyRegistry(t)

	want := []string{
		"attach_deviation",
		"build_rca_context",
		"get_genealogy",
		"link_consumption",
		"transition_batch",
		"upsert_batch",
		"upsert_material",
	}
	var got []string
	for _, tl := range reg.List() {
		got = append(got, tl.Name())
	}
	assert.Equal(t, want, got)

	// Every descriptor carries a parameter schema and a description.
	for _, d := range reg.Descriptors() {
		assert.NotEmpty(t, d.Description, "tool %s", d.Name)
		if d.Name != "get_genealogy" && d.Name != "build_rca_context" {
			assert.Equal(t, "object", d.InputSchema.Type, "tool %s", d.Name)
		}
	}
}

func TestRegisterOntologyTools_Twice(t *testing.T) {
	reg, ext := newOntologyRegistry(t)

	err := RegisterOntologyTools(reg, ext)
	require.Error(t, err)
	assert.ErrorIs(t, err, mesgraph.ErrDuplicateToolName)
}

func TestOntologyTools_EndToEnd(t *testing.T) {
	reg, _ := newOntologyRegistry(t)

	out := mustExecute(t, reg, "upsert_material", map[string]any{
		"name": "Flour", "category": "raw", "unit": "kg",
	})
	assert.Equal(t, true, out["created"])

	out = mustExecute(t, reg, "upsert_batch", map[string]any{
		"number":            "B100",
		"material":          "Dough",
		"material_category": "intermediate",
		"process_step":      "Mixing",
		"quantity":          50.0,
		"started_at":        "2024-05-14T08:00:00Z",
	})
	assert.Equal(t, true, out["created"])
	assert.Equal(t, "Planned", out["status"])

	out = mustExecute(t, reg, "transition_batch", map[string]any{
		"number": "B100", "status": "InProgress",
	})
	assert.Equal(t, "InProgress", out["status"])

	mustExecute(t, reg, "link_consumption", map[string]any{
		"batch_number":      "B100",
		"material":          "Flour",
		"material_category": "raw",
		"quantity":          50.0,
	})

	out = mustExecute(t, reg, "attach_deviation", map[string]any{
		"target_type": "batch",
		"target_id":   "B100",
		"timestamp":   time.Date(2024, 5, 14, 8, 30, 0, 0, time.UTC).Format(time.RFC3339),
		"value":       91.2,
		"severity":    "minor",
		"note":        "mixer temperature spike",
	})
	assert.NotEmpty(t, out["deviation_id"])

	out = mustExecute(t, reg, "get_genealogy", map[string]any{
		"batch_number": "B100",
		"direction":    "upstream",
		"max_hops":     2.0,
	})
	hops, ok := out["hops"].([]any)
	require.True(t, ok, "hops missing: %v", out)
	require.Len(t, hops, 1, "Flour at hop 1, no recorded producer beyond")
	assert.Equal(t, false, out["truncated"])

	out = mustExecute(t, reg, "build_rca_context", map[string]any{
		"batch_number": "B100",
	})
	deviations, ok := out["deviations"].([]any)
	require.True(t, ok, "deviations missing: %v", out)
	assert.Len(t, deviations, 1)
}

func TestOntologyTools_ErrorsPropagate(t *testing.T) {
	reg, _ := newOntologyRegistry(t)

	tl, ok := reg.Get("transition_batch")
	require.True(t, ok)
	_, err := tl.Execute(context.Background(), map[string]any{
		"number": "B999", "status": "InProgress",
	})
	assert.ErrorIs(t, err, mesgraph.ErrBatchNotFound)

	tl, ok = reg.Get("upsert_material")
	require.True(t, ok)
	_, err = tl.Execute(context.Background(), map[string]any{
		"name": "Flour", "category": "plasma",
	})
	assert.Error(t, err, "enum violation fails schema validation")
}
