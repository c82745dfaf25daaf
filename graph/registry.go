package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Sentinel errors for registry operations.
var (
	// ErrNodeTypeNotRegistered indicates that the requested node type is not
	// in the registry.
	ErrNodeTypeNotRegistered = errors.New("node type not registered")

	// ErrNodeTypeAlreadyRegistered indicates an attempt to register a node
	// type twice.
	ErrNodeTypeAlreadyRegistered = errors.New("node type already registered")

	// ErrMissingIdentifyingProperties indicates that one or more natural-key
	// properties are missing from a node's property map.
	ErrMissingIdentifyingProperties = errors.New("missing identifying properties")
)

// NodeTypeRegistry maps each node type to its identifying properties - the
// minimum property set that uniquely identifies a node of that type and from
// which its deterministic ID is derived. The identifying properties form the
// natural key used for deduplication: repeated upserts of the same key must
// converge to one node.
type NodeTypeRegistry interface {
	// GetIdentifyingProperties returns the property names that uniquely
	// identify a node of the given type.
	// Returns ErrNodeTypeNotRegistered if the node type is unknown.
	GetIdentifyingProperties(nodeType string) ([]string, error)

	// IsRegistered checks if a node type exists in the registry.
	IsRegistered(nodeType string) bool

	// ValidateProperties checks that all identifying properties are present
	// and non-empty in the given property map. Returns the missing property
	// names alongside ErrMissingIdentifyingProperties when validation fails.
	ValidateProperties(nodeType string, properties map[string]any) ([]string, error)

	// AllNodeTypes returns a sorted list of all registered node type names.
	AllNodeTypes() []string
}

// Registry is the default NodeTypeRegistry. It is pre-populated with the MES
// node types; the host ontology may register its own Level 0-2 types so the
// same ID scheme covers the whole graph. Thread-safe.
type Registry struct {
	mu    sync.RWMutex
	types map[string][]string
}

// NewRegistry creates a Registry pre-populated with the MES natural keys:
//
//   - material: [name, category] - identifier unique per category
//   - batch: [number] - the lot/batch number
//   - ccp: [id] - the control point identifier
//   - deviation: [id] - per-observation identity, never merged
//   - tag: [name] - Level 0-2 monitoring tag reference
//   - process_step: [name] - anchor for batch/CCP step association
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string][]string)}

	r.types[NodeTypeMaterial] = []string{PropName, PropCategory}
	r.types[NodeTypeBatch] = []string{PropNumber}
	r.types[NodeTypeCCP] = []string{PropID}
	r.types[NodeTypeDeviation] = []string{PropID}
	r.types[NodeTypeTag] = []string{PropName}
	r.types[NodeTypeProcessStep] = []string{PropName}

	return r
}

// Register adds a node type with its identifying properties.
// Returns ErrNodeTypeAlreadyRegistered if the type is already present:
// silently redefining a natural key would change every derived ID.
func (r *Registry) Register(nodeType string, properties []string) error {
	if nodeType == "" {
		return errors.New("node type cannot be empty")
	}
	if len(properties) == 0 {
		return fmt.Errorf("node type %q requires at least one identifying property", nodeType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[nodeType]; ok {
		return fmt.Errorf("%w: %s", ErrNodeTypeAlreadyRegistered, nodeType)
	}

	props := make([]string, len(properties))
	copy(props, properties)
	r.types[nodeType] = props
	return nil
}

// GetIdentifyingProperties returns the natural-key property names for a type.
func (r *Registry) GetIdentifyingProperties(nodeType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	props, ok := r.types[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeTypeNotRegistered, nodeType)
	}

	result := make([]string, len(props))
	copy(result, props)
	return result, nil
}

// IsRegistered checks if a node type exists in the registry.
func (r *Registry) IsRegistered(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.types[nodeType]
	return ok
}

// ValidateProperties checks that all identifying properties are present in
// the given property map and returns the missing names on failure.
func (r *Registry) ValidateProperties(nodeType string, properties map[string]any) ([]string, error) {
	identifying, err := r.GetIdentifyingProperties(nodeType)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, prop := range identifying {
		val, ok := properties[prop]
		if !ok || val == nil {
			missing = append(missing, prop)
			continue
		}
		if s, isStr := val.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, prop)
		}
	}

	if len(missing) > 0 {
		return missing, fmt.Errorf("%w for node type %q: %v", ErrMissingIdentifyingProperties, nodeType, missing)
	}

	return nil, nil
}

// AllNodeTypes returns a sorted list of all registered node type names.
func (r *Registry) AllNodeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for nodeType := range r.types {
		types = append(types, nodeType)
	}

	sort.Strings(types)
	return types
}
