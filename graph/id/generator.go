// Package id creates deterministic, content-addressable identifiers for
// graph nodes. An ID is derived from the node type and the node's
// identifying properties (its natural key), so the same entity always maps
// to the same node regardless of which caller ingests it first - the basis
// of the upsert engine's idempotence.
package id

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/atbash-labs/mesgraph/graph"
)

// Generator creates deterministic IDs for graph nodes.
type Generator interface {
	// Generate creates a deterministic ID from node type and properties.
	// The ID format is {nodeType}:{base64url(sha256(canonical)[:12])}.
	//
	// Returns an error if the node type is not registered or required
	// identifying properties are missing. The same node type and natural
	// key always produce the same ID.
	Generate(nodeType string, properties map[string]any) (string, error)
}

// DeterministicGenerator implements Generator using SHA-256 over a canonical
// rendering of the identifying properties:
//
//  1. Look up the node type's identifying properties in the registry.
//  2. Validate they are present.
//  3. Build the canonical string nodeType:prop1=val1|prop2=val2 with keys
//     sorted and values normalized (strings lowercased and trimmed, numbers
//     printed in fixed form, complex values JSON-encoded).
//  4. Hash, take 12 bytes, base64url-encode without padding.
type DeterministicGenerator struct {
	registry graph.NodeTypeRegistry
}

// NewGenerator creates a DeterministicGenerator backed by the given registry.
func NewGenerator(registry graph.NodeTypeRegistry) *DeterministicGenerator {
	return &DeterministicGenerator{registry: registry}
}

// Generate creates a deterministic ID from node type and properties.
func (g *DeterministicGenerator) Generate(nodeType string, properties map[string]any) (string, error) {
	identifying, err := g.registry.GetIdentifyingProperties(nodeType)
	if err != nil {
		return "", fmt.Errorf("identifying properties for %q: %w", nodeType, err)
	}

	if missing, err := g.registry.ValidateProperties(nodeType, properties); err != nil {
		return "", fmt.Errorf("natural key for %q incomplete (missing %v): %w", nodeType, missing, err)
	}

	canonical, err := canonicalString(nodeType, identifying, properties)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256([]byte(canonical))
	encoded := base64.RawURLEncoding.EncodeToString(hash[:12])
	return fmt.Sprintf("%s:%s", nodeType, encoded), nil
}

// canonicalString renders the natural key as nodeType:k1=v1|k2=v2 with keys
// sorted for order independence.
func canonicalString(nodeType string, identifying []string, properties map[string]any) (string, error) {
	keys := make([]string, len(identifying))
	copy(keys, identifying)
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		normalized, err := normalizeValue(properties[key])
		if err != nil {
			return "", fmt.Errorf("normalize property %q: %w", key, err)
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, normalized))
	}

	return fmt.Sprintf("%s:%s", nodeType, strings.Join(pairs, "|")), nil
}

// normalizeValue converts a property value to a canonical string so that
// representationally different but equal inputs hash identically.
func normalizeValue(val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "null", nil
	case string:
		return strings.ToLower(strings.TrimSpace(v)), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return fmt.Sprintf("%.6f", v), nil
	case float64:
		return fmt.Sprintf("%.6f", v), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal complex value: %w", err)
		}
		return string(encoded), nil
	}
}
