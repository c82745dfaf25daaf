package mes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
)

// MaterialCategory classifies a material within the production flow.
type MaterialCategory int

const (
	// CategoryRaw is an input material with no recorded producer.
	CategoryRaw MaterialCategory = iota

	// CategoryIntermediate is produced and consumed inside the plant.
	CategoryIntermediate

	// CategoryFinished is a sellable end product.
	CategoryFinished
)

// String returns the string representation of the MaterialCategory.
func (c MaterialCategory) String() string {
	switch c {
	case CategoryRaw:
		return "raw"
	case CategoryIntermediate:
		return "intermediate"
	case CategoryFinished:
		return "finished"
	default:
		return fmt.Sprintf("MaterialCategory(%d)", c)
	}
}

// IsValid returns true if the category is a valid value.
func (c MaterialCategory) IsValid() bool {
	return c >= CategoryRaw && c <= CategoryFinished
}

// ParseMaterialCategory parses a string into a MaterialCategory value.
func ParseMaterialCategory(s string) (MaterialCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return CategoryRaw, nil
	case "intermediate":
		return CategoryIntermediate, nil
	case "finished":
		return CategoryFinished, nil
	default:
		return 0, fmt.Errorf("invalid material category: %s", s)
	}
}

// Material is a material definition. Its identifier is unique per category:
// (name, category) is the natural key.
type Material struct {
	// Name is the material identifier (name or code).
	Name string

	// Category classifies the material (raw, intermediate, finished).
	Category MaterialCategory

	// Unit is the unit of measure (e.g., "kg", "l"). Optional.
	Unit string
}

// NewMaterial creates a Material and validates its required fields.
func NewMaterial(name string, category MaterialCategory, unit string) (*Material, error) {
	m := &Material{Name: name, Category: category, Unit: unit}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the material's required fields.
func (m *Material) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return mesgraph.NewValidationError("Material.Validate", errors.New("material name is required"))
	}
	if !m.Category.IsValid() {
		return mesgraph.NewValidationError("Material.Validate",
			fmt.Errorf("invalid material category: %d", int(m.Category)))
	}
	return nil
}

// NodeType returns the canonical node type for material nodes.
func (m *Material) NodeType() string {
	return graph.NodeTypeMaterial
}

// IdentifyingProperties returns the natural key of the material.
func (m *Material) IdentifyingProperties() map[string]any {
	return map[string]any{
		graph.PropName:     m.Name,
		graph.PropCategory: m.Category.String(),
	}
}

// Properties returns all properties to set on the material node.
func (m *Material) Properties() map[string]any {
	props := m.IdentifyingProperties()
	if m.Unit != "" {
		props[graph.PropUnit] = m.Unit
	}
	return props
}

// materialFromNode rebuilds a Material from its graph node.
func materialFromNode(node *graph.Node) (*Material, error) {
	if node.Type != graph.NodeTypeMaterial {
		return nil, fmt.Errorf("node %s is a %s, not a material", node.ID, node.Type)
	}

	category, err := ParseMaterialCategory(stringProp(node.Properties, graph.PropCategory))
	if err != nil {
		return nil, fmt.Errorf("material node %s: %w", node.ID, err)
	}

	return &Material{
		Name:     stringProp(node.Properties, graph.PropName),
		Category: category,
		Unit:     stringProp(node.Properties, graph.PropUnit),
	}, nil
}
