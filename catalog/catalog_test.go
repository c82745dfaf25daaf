package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atbash-labs/mesgraph/graph"
	"github.com/atbash-labs/mesgraph/mes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bakeryCatalog = `
materials:
  - name: Flour
    category: raw
    unit: kg
  - name: Dough
    category: intermediate
    unit: kg
  - name: Bread
    category: finished

ccps:
  - id: CCP-MIX
    process_step: Mixing
    limit:
      max: 30
    tags: [TT-201]
  - id: CCP-BAKE
    process_step: Baking
    limit:
      min: 180
      max: 230
      expression: "value != 200.0 || value >= 180.0"
    tags: [TT-301, TT-302]
`

func TestParse(t *testing.T) {
	catalog, err := Parse(strings.NewReader(bakeryCatalog))
	require.NoError(t, err)

	require.Len(t, catalog.Materials, 3)
	assert.Equal(t, "Flour", catalog.Materials[0].Name)
	assert.Equal(t, "raw", catalog.Materials[0].Category)

	require.Len(t, catalog.CCPs, 2)
	bake := catalog.CCPs[1]
	assert.Equal(t, "CCP-BAKE", bake.ID)
	require.NotNil(t, bake.Limit.Min)
	assert.Equal(t, 180.0, *bake.Limit.Min)
	assert.Equal(t, []string{"TT-301", "TT-302"}, bake.Tags)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("materialz:\n  - name: Flour\n"))
	assert.Error(t, err, "typoed keys must not be silently dropped")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bakeryCatalog), 0o644))

	catalog, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, catalog.Materials, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCatalog_Validate(t *testing.T) {
	bad := &Catalog{
		Materials: []MaterialSpec{{Name: "Flour", Category: "plasma"}},
	}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Flour")

	badLimit := &Catalog{
		CCPs: []CCPSpec{{ID: "CCP-X", Limit: mes.CriticalLimit{Expression: "value >"}}},
	}
	assert.Error(t, badLimit.Validate())
}

func TestCatalog_Apply(t *testing.T) {
	catalog, err := Parse(strings.NewReader(bakeryCatalog))
	require.NoError(t, err)

	ext := mes.NewExtension(graph.NewMemStore())
	ctx := context.Background()
	require.NoError(t, catalog.Apply(ctx, ext))

	// Applied materials are merges: re-upserting finds them in place.
	_, created, err := ext.UpsertMaterial(ctx, &mes.Material{Name: "Flour", Category: mes.CategoryRaw})
	require.NoError(t, err)
	assert.False(t, created)

	// Re-applying the same catalog is a no-op.
	require.NoError(t, catalog.Apply(ctx, ext))
	_, created, err = ext.UpsertMaterial(ctx, &mes.Material{Name: "Bread", Category: mes.CategoryFinished})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCatalog_Apply_RejectsBeforeWriting(t *testing.T) {
	catalog := &Catalog{
		Materials: []MaterialSpec{
			{Name: "Flour", Category: "raw"},
			{Name: "Bad", Category: "plasma"},
		},
	}

	ext := mes.NewExtension(graph.NewMemStore())
	require.Error(t, catalog.Apply(context.Background(), ext))

	// Validation failed before the first upsert, so even the valid entry
	// was never written.
	_, created, err := ext.UpsertMaterial(context.Background(), &mes.Material{Name: "Flour", Category: mes.CategoryRaw})
	require.NoError(t, err)
	assert.True(t, created)
}
