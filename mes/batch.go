package mes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
)

// Batch is a production batch/lot. Its natural key is the batch number.
//
// The produced material reference is distinct from the materials the batch
// consumes (recorded as CONSUMED edges); that asymmetry is what makes
// genealogy traversal directional.
type Batch struct {
	// Number is the lot/batch number. Natural key.
	Number string

	// Material is the name of the material this batch produces.
	Material string

	// MaterialCategory is the category of the produced material.
	MaterialCategory MaterialCategory

	// ProcessStep is the step of the production process the batch runs on.
	// Optional; RCA uses it to resolve relevant CCPs.
	ProcessStep string

	// Status is the current production status. Mutated only through
	// Extension.TransitionBatch, which enforces monotonic ordering.
	Status BatchStatus

	// Quantity is the produced amount, in Unit. Must be >= 0.
	Quantity float64

	// Unit is the unit of measure for Quantity.
	Unit string

	// StartedAt marks the beginning of the production window.
	StartedAt time.Time

	// CompletedAt marks the end of the production window.
	// Zero while the batch is still running.
	CompletedAt time.Time
}

// NewBatch creates a Batch in the Planned state and validates its fields.
func NewBatch(number, material string, category MaterialCategory) (*Batch, error) {
	b := &Batch{
		Number:           number,
		Material:         material,
		MaterialCategory: category,
		Status:           StatusPlanned,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the batch's required fields.
func (b *Batch) Validate() error {
	if strings.TrimSpace(b.Number) == "" {
		return mesgraph.NewValidationError("Batch.Validate", errors.New("batch number is required"))
	}
	if strings.TrimSpace(b.Material) == "" {
		return mesgraph.NewValidationError("Batch.Validate", errors.New("produced material is required"))
	}
	if !b.MaterialCategory.IsValid() {
		return mesgraph.NewValidationError("Batch.Validate",
			fmt.Errorf("invalid material category: %d", int(b.MaterialCategory)))
	}
	if b.Quantity < 0 {
		return mesgraph.NewValidationError("Batch.Validate",
			fmt.Errorf("quantity must be >= 0, got %v", b.Quantity))
	}
	if !b.Status.IsValid() {
		return mesgraph.NewValidationError("Batch.Validate",
			fmt.Errorf("invalid batch status: %d", int(b.Status)))
	}
	return nil
}

// NodeType returns the canonical node type for batch nodes.
func (b *Batch) NodeType() string {
	return graph.NodeTypeBatch
}

// IdentifyingProperties returns the natural key of the batch.
func (b *Batch) IdentifyingProperties() map[string]any {
	return map[string]any{
		graph.PropNumber: b.Number,
	}
}

// Properties returns all properties to set on the batch node.
func (b *Batch) Properties() map[string]any {
	props := b.IdentifyingProperties()
	props[graph.PropMaterial] = b.Material
	props[graph.PropMaterialCategory] = b.MaterialCategory.String()
	props[graph.PropStatus] = b.Status.String()
	props[graph.PropQuantity] = b.Quantity
	if b.ProcessStep != "" {
		props[graph.PropProcessStep] = b.ProcessStep
	}
	if b.Unit != "" {
		props[graph.PropUnit] = b.Unit
	}
	if !b.StartedAt.IsZero() {
		props[graph.PropStartedAt] = b.StartedAt.Format(time.RFC3339Nano)
	}
	if !b.CompletedAt.IsZero() {
		props[graph.PropCompletedAt] = b.CompletedAt.Format(time.RFC3339Nano)
	}
	return props
}

// batchFromNode rebuilds a Batch from its graph node.
func batchFromNode(node *graph.Node) (*Batch, error) {
	if node.Type != graph.NodeTypeBatch {
		return nil, fmt.Errorf("node %s is a %s, not a batch", node.ID, node.Type)
	}

	status, err := ParseBatchStatus(stringProp(node.Properties, graph.PropStatus))
	if err != nil {
		return nil, fmt.Errorf("batch node %s: %w", node.ID, err)
	}

	category := CategoryRaw
	if raw := stringProp(node.Properties, graph.PropMaterialCategory); raw != "" {
		category, err = ParseMaterialCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("batch node %s: %w", node.ID, err)
		}
	}

	return &Batch{
		Number:           stringProp(node.Properties, graph.PropNumber),
		Material:         stringProp(node.Properties, graph.PropMaterial),
		MaterialCategory: category,
		ProcessStep:      stringProp(node.Properties, graph.PropProcessStep),
		Status:           status,
		Quantity:         floatProp(node.Properties, graph.PropQuantity),
		Unit:             stringProp(node.Properties, graph.PropUnit),
		StartedAt:        timeProp(node.Properties, graph.PropStartedAt),
		CompletedAt:      timeProp(node.Properties, graph.PropCompletedAt),
	}, nil
}

// stringProp reads a string property, tolerating absent keys.
func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// floatProp reads a numeric property, tolerating absent keys and the
// numeric widenings a JSON round trip produces.
func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// timeProp reads an RFC 3339 timestamp property, tolerating absence.
func timeProp(props map[string]any, key string) time.Time {
	raw := stringProp(props, key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
