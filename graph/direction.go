package graph

import "fmt"

// Direction selects which adjacency a neighbor lookup follows.
type Direction int

const (
	// DirectionOut follows edges leaving the node.
	DirectionOut Direction = iota

	// DirectionIn follows edges arriving at the node.
	DirectionIn

	// DirectionBoth follows edges in either direction.
	DirectionBoth
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "out"
	case DirectionIn:
		return "in"
	case DirectionBoth:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", d)
	}
}

// IsValid returns true if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d >= DirectionOut && d <= DirectionBoth
}

// Validate returns an error if the direction is invalid.
func (d Direction) Validate() error {
	if !d.IsValid() {
		return fmt.Errorf("invalid direction value: %d", d)
	}
	return nil
}

// ParseDirection parses a string into a Direction value.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "out":
		return DirectionOut, nil
	case "in":
		return DirectionIn, nil
	case "both":
		return DirectionBoth, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s", s)
	}
}
