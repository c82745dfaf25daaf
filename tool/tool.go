package tool

import (
	"context"
	"errors"

	"github.com/atbash-labs/mesgraph/schema"
)

// HandlerFunc is a function that implements a tool's execution logic.
// Input and output are decoded JSON objects.
type HandlerFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Tool is the interface for registered ontology tools.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Version returns the semantic version of this tool.
	Version() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Tags returns a list of tags for categorizing and discovering this tool.
	Tags() []string

	// InputSchema returns the JSON schema for the tool's parameters.
	InputSchema() schema.JSON

	// OutputSchema returns the JSON schema for the tool's result.
	OutputSchema() schema.JSON

	// Execute validates the input against the input schema and runs the
	// handler. Context is used for cancellation, deadlines, and
	// request-scoped values.
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Config holds the configuration for building a Tool.
type Config struct {
	name         string
	version      string
	description  string
	tags         []string
	inputSchema  schema.JSON
	outputSchema schema.JSON
	handler      HandlerFunc
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		version:      "1.0.0",
		tags:         []string{},
		inputSchema:  schema.Object(map[string]schema.JSON{}),
		outputSchema: schema.Object(map[string]schema.JSON{}),
	}
}

// SetName sets the tool name.
func (c *Config) SetName(name string) *Config {
	c.name = name
	return c
}

// SetVersion sets the tool version.
func (c *Config) SetVersion(version string) *Config {
	c.version = version
	return c
}

// SetDescription sets the tool description.
func (c *Config) SetDescription(desc string) *Config {
	c.description = desc
	return c
}

// SetTags sets the tool tags.
func (c *Config) SetTags(tags []string) *Config {
	c.tags = tags
	return c
}

// SetInputSchema sets the parameter schema.
func (c *Config) SetInputSchema(s schema.JSON) *Config {
	c.inputSchema = s
	return c
}

// SetOutputSchema sets the result schema.
func (c *Config) SetOutputSchema(s schema.JSON) *Config {
	c.outputSchema = s
	return c
}

// SetHandler sets the execution function.
func (c *Config) SetHandler(fn HandlerFunc) *Config {
	c.handler = fn
	return c
}

// ontologyTool is the internal implementation of the Tool interface.
type ontologyTool struct {
	name         string
	version      string
	description  string
	tags         []string
	inputSchema  schema.JSON
	outputSchema schema.JSON
	handler      HandlerFunc
}

// New creates a new Tool from the provided Config.
// Returns an error if required fields (name, handler) are missing.
func New(cfg *Config) (Tool, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.name == "" {
		return nil, errors.New("tool name is required")
	}

	if cfg.handler == nil {
		return nil, errors.New("tool handler is required")
	}

	return &ontologyTool{
		name:         cfg.name,
		version:      cfg.version,
		description:  cfg.description,
		tags:         cfg.tags,
		inputSchema:  cfg.inputSchema,
		outputSchema: cfg.outputSchema,
		handler:      cfg.handler,
	}, nil
}

// Name returns the tool name.
func (t *ontologyTool) Name() string {
	return t.name
}

// Version returns the tool version.
func (t *ontologyTool) Version() string {
	return t.version
}

// Description returns the tool description.
func (t *ontologyTool) Description() string {
	return t.description
}

// Tags returns the tool tags.
func (t *ontologyTool) Tags() []string {
	return t.tags
}

// InputSchema returns the parameter schema.
func (t *ontologyTool) InputSchema() schema.JSON {
	return t.inputSchema
}

// OutputSchema returns the result schema.
func (t *ontologyTool) OutputSchema() schema.JSON {
	return t.outputSchema
}

// Execute validates input against the parameter schema and runs the handler.
func (t *ontologyTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	if err := t.inputSchema.Validate(input); err != nil {
		return nil, err
	}
	return t.handler(ctx, input)
}
