// Package catalog loads declarative plant catalogs - material and CCP
// definitions in YAML - and applies them through the upsert engine. Because
// every application is an idempotent merge, re-applying a catalog after an
// edit converges the graph to the edited state without duplicating entities.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/atbash-labs/mesgraph/mes"
	"gopkg.in/yaml.v3"
)

// MaterialSpec is the YAML form of a material definition.
type MaterialSpec struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Unit     string `yaml:"unit,omitempty"`
}

// CCPSpec is the YAML form of a critical control point definition.
type CCPSpec struct {
	ID          string            `yaml:"id"`
	ProcessStep string            `yaml:"process_step,omitempty"`
	Limit       mes.CriticalLimit `yaml:"limit"`
	Tags        []string          `yaml:"tags,omitempty"`
}

// Catalog is a declarative set of plant definitions.
type Catalog struct {
	Materials []MaterialSpec `yaml:"materials,omitempty"`
	CCPs      []CCPSpec      `yaml:"ccps,omitempty"`
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	catalog, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes a catalog from YAML.
func Parse(r io.Reader) (*Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &catalog, nil
}

// Validate checks every definition without touching the graph, so a broken
// catalog is rejected before any entity is applied.
func (c *Catalog) Validate() error {
	for i, spec := range c.Materials {
		if _, err := spec.toMaterial(); err != nil {
			return fmt.Errorf("material %d (%s): %w", i, spec.Name, err)
		}
	}
	for i, spec := range c.CCPs {
		if _, err := spec.toCCP(); err != nil {
			return fmt.Errorf("ccp %d (%s): %w", i, spec.ID, err)
		}
	}
	return nil
}

// Apply upserts every definition in the catalog through the extension,
// materials first so CCP tag references never race their subjects. The whole
// catalog is validated before the first upsert.
func (c *Catalog) Apply(ctx context.Context, ext *mes.Extension) error {
	if err := c.Validate(); err != nil {
		return err
	}

	for _, spec := range c.Materials {
		material, err := spec.toMaterial()
		if err != nil {
			return err
		}
		if _, _, err := ext.UpsertMaterial(ctx, material); err != nil {
			return fmt.Errorf("apply material %s: %w", spec.Name, err)
		}
	}

	for _, spec := range c.CCPs {
		ccp, err := spec.toCCP()
		if err != nil {
			return err
		}
		if _, _, err := ext.UpsertCCP(ctx, ccp); err != nil {
			return fmt.Errorf("apply ccp %s: %w", spec.ID, err)
		}
	}

	return nil
}

func (s MaterialSpec) toMaterial() (*mes.Material, error) {
	category, err := mes.ParseMaterialCategory(s.Category)
	if err != nil {
		return nil, err
	}
	return mes.NewMaterial(s.Name, category, s.Unit)
}

func (s CCPSpec) toCCP() (*mes.CCP, error) {
	return mes.NewCCP(s.ID, s.ProcessStep, s.Limit, s.Tags...)
}
