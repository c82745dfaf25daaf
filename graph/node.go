package graph

import (
	"errors"
	"fmt"
	"time"
)

// Node represents a node in the plant knowledge graph.
// MES entities map onto nodes through their node type and a property map;
// the node ID is derived deterministically from the entity's natural key.
type Node struct {
	// ID is the unique node identifier. For merged nodes this is the
	// deterministic ID produced by graph/id; append-only nodes carry their
	// own generated identity.
	ID string `json:"id"`

	// Type is the node type (e.g., "material", "batch", "ccp").
	// Required field.
	Type string `json:"type"`

	// Properties contains the node's key-value attributes.
	Properties map[string]any `json:"properties,omitempty"`

	// CreatedAt is the timestamp when the node was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp of the last attribute merge.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNode creates a new Node of the given type with an initialized property
// map and current timestamps.
func NewNode(nodeType string) *Node {
	now := time.Now()
	return &Node{
		Type:       nodeType,
		Properties: make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithID sets the node ID and returns the node for method chaining.
func (n *Node) WithID(id string) *Node {
	n.ID = id
	return n
}

// WithProperty sets a single property and returns the node for chaining.
// A nil Properties map is initialized on first use.
func (n *Node) WithProperty(key string, value any) *Node {
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	n.Properties[key] = value
	return n
}

// WithProperties replaces the entire property map and returns the node.
func (n *Node) WithProperties(props map[string]any) *Node {
	n.Properties = props
	return n
}

// Clone returns a deep copy of the node. Stores hand out clones so callers
// can never mutate stored state through a returned pointer.
func (n *Node) Clone() *Node {
	c := *n
	if n.Properties != nil {
		c.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// Validate checks that the node has all required fields set.
func (n *Node) Validate() error {
	if n.Type == "" {
		return errors.New("node type is required")
	}
	return nil
}

// Edge represents a directed, typed connection between two nodes.
// At most one edge exists per (from, to, type) triple; merging an existing
// edge updates its attributes last-write-wins instead of duplicating it.
type Edge struct {
	// FromID is the source node ID.
	FromID string `json:"from_id"`

	// ToID is the target node ID.
	ToID string `json:"to_id"`

	// Type describes the edge type (e.g., "CONSUMED", "PRODUCES").
	Type string `json:"type"`

	// Properties contains optional edge attributes, such as the consumed
	// quantity on a CONSUMED edge.
	Properties map[string]any `json:"properties,omitempty"`
}

// NewEdge creates a new Edge with the specified source, target, and type.
func NewEdge(fromID, toID, edgeType string) *Edge {
	return &Edge{
		FromID:     fromID,
		ToID:       toID,
		Type:       edgeType,
		Properties: make(map[string]any),
	}
}

// WithProperty adds a single property to the edge and returns it for chaining.
func (e *Edge) WithProperty(key string, value any) *Edge {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = value
	return e
}

// Key returns the identity of the edge within its graph: the (from, type, to)
// triple joined into a single string.
func (e *Edge) Key() string {
	return fmt.Sprintf("%s|%s|%s", e.FromID, e.Type, e.ToID)
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	c := *e
	if e.Properties != nil {
		c.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// Validate checks that the edge has all required fields populated.
func (e *Edge) Validate() error {
	if e.FromID == "" {
		return fmt.Errorf("edge FromID cannot be empty")
	}
	if e.ToID == "" {
		return fmt.Errorf("edge ToID cannot be empty")
	}
	if e.Type == "" {
		return fmt.Errorf("edge Type cannot be empty")
	}
	return nil
}
