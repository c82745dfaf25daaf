package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/schema"
)

// Descriptor is the handler-free metadata snapshot of a registered tool, in
// the shape an agent runtime consumes.
type Descriptor struct {
	Name         string      `json:"name"`
	Version      string      `json:"version"`
	Description  string      `json:"description"`
	Tags         []string    `json:"tags,omitempty"`
	InputSchema  schema.JSON `json:"input_schema"`
	OutputSchema schema.JSON `json:"output_schema"`
}

// Registry stores tools by name. Registration of a duplicate name fails
// immediately: tool names are the dispatch key an agent runtime sees, so a
// collision is a configuration error, never a call-time condition.
// Thread-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return mesgraph.NewDuplicateToolError("Registry.Register", name)
	}

	r.tools[name] = t
	return nil
}

// Get returns the tool registered under name, or false if absent.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Descriptors returns the pure-metadata view of every registered tool,
// sorted by name. The snapshot carries no handlers and is safe to serialize
// and hand to an external agent runtime.
func (r *Registry) Descriptors() []Descriptor {
	tools := r.List()

	descriptors := make([]Descriptor, 0, len(tools))
	for _, t := range tools {
		descriptors = append(descriptors, Descriptor{
			Name:         t.Name(),
			Version:      t.Version(),
			Description:  t.Description(),
			Tags:         t.Tags(),
			InputSchema:  t.InputSchema(),
			OutputSchema: t.OutputSchema(),
		})
	}
	return descriptors
}
