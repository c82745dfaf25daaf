package mes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
	"github.com/google/uuid"
)

// Severity ranks how serious a deviation is.
type Severity int

const (
	// SeverityMinor is a deviation with no direct product impact.
	SeverityMinor Severity = iota

	// SeverityMajor is a deviation that requires disposition review.
	SeverityMajor

	// SeverityCritical is a deviation that fails the batch outright.
	SeverityCritical
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// IsValid returns true if the severity is a valid value.
func (s Severity) IsValid() bool {
	return s >= SeverityMinor && s <= SeverityCritical
}

// ParseSeverity parses a string into a Severity value.
func ParseSeverity(str string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "minor":
		return SeverityMinor, nil
	case "major":
		return SeverityMajor, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("invalid severity: %s", str)
	}
}

// Deviation is an out-of-limit reading or quality exception attached to a
// batch or a CCP. Deviations are append-only: distinct observations are
// distinct facts, so attaching the same timestamp and value twice produces
// two deviations. Each deviation therefore carries its own generated
// identity instead of a natural key.
type Deviation struct {
	// ID is the generated deviation identity.
	ID string

	// Timestamp is when the reading was taken.
	Timestamp time.Time

	// Value is the measured value that triggered the deviation.
	Value float64

	// Severity ranks the deviation.
	Severity Severity

	// Note is an optional free-text annotation.
	Note string
}

// NewDeviation creates a Deviation with a fresh identity.
func NewDeviation(timestamp time.Time, value float64, severity Severity) (*Deviation, error) {
	d := &Deviation{
		ID:        uuid.NewString(),
		Timestamp: timestamp,
		Value:     value,
		Severity:  severity,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// WithNote sets the free-text annotation and returns the deviation.
func (d *Deviation) WithNote(note string) *Deviation {
	d.Note = note
	return d
}

// Validate checks the deviation's required fields.
func (d *Deviation) Validate() error {
	if d.ID == "" {
		return mesgraph.NewValidationError("Deviation.Validate", errors.New("deviation id is required"))
	}
	if d.Timestamp.IsZero() {
		return mesgraph.NewValidationError("Deviation.Validate", errors.New("deviation timestamp is required"))
	}
	if !d.Severity.IsValid() {
		return mesgraph.NewValidationError("Deviation.Validate",
			fmt.Errorf("invalid severity: %d", int(d.Severity)))
	}
	return nil
}

// NodeType returns the canonical node type for deviation nodes.
func (d *Deviation) NodeType() string {
	return graph.NodeTypeDeviation
}

// Properties returns all properties to set on the deviation node.
func (d *Deviation) Properties() map[string]any {
	props := map[string]any{
		graph.PropID:        d.ID,
		graph.PropTimestamp: d.Timestamp.Format(time.RFC3339Nano),
		graph.PropValue:     d.Value,
		graph.PropSeverity:  d.Severity.String(),
	}
	if d.Note != "" {
		props[graph.PropNote] = d.Note
	}
	return props
}

// deviationFromNode rebuilds a Deviation from its graph node.
func deviationFromNode(node *graph.Node) (*Deviation, error) {
	if node.Type != graph.NodeTypeDeviation {
		return nil, fmt.Errorf("node %s is a %s, not a deviation", node.ID, node.Type)
	}

	severity, err := ParseSeverity(stringProp(node.Properties, graph.PropSeverity))
	if err != nil {
		return nil, fmt.Errorf("deviation node %s: %w", node.ID, err)
	}

	return &Deviation{
		ID:        stringProp(node.Properties, graph.PropID),
		Timestamp: timeProp(node.Properties, graph.PropTimestamp),
		Value:     floatProp(node.Properties, graph.PropValue),
		Severity:  severity,
		Note:      stringProp(node.Properties, graph.PropNote),
	}, nil
}
