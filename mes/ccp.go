package mes

import (
	"errors"
	"strings"

	"github.com/atbash-labs/mesgraph"
	"github.com/atbash-labs/mesgraph/graph"
)

// CCP is a critical control point: a process step where a measurable
// parameter must stay within a critical limit to ensure product quality.
// Its natural key is the CCP identifier.
type CCP struct {
	// ID is the control point identifier. Natural key.
	ID string

	// ProcessStep is the process step the CCP watches.
	ProcessStep string

	// Limit is the critical limit for the monitored parameter.
	Limit CriticalLimit

	// Tags are the names of the Level 0-2 monitoring tags backing this CCP.
	Tags []string
}

// NewCCP creates a CCP and validates its required fields, including that
// the critical limit expression compiles.
func NewCCP(id, processStep string, limit CriticalLimit, tags ...string) (*CCP, error) {
	c := &CCP{ID: id, ProcessStep: processStep, Limit: limit, Tags: tags}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the CCP's required fields.
func (c *CCP) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return mesgraph.NewValidationError("CCP.Validate", errors.New("ccp id is required"))
	}
	if err := c.Limit.Validate(); err != nil {
		return mesgraph.NewValidationError("CCP.Validate", err)
	}
	return nil
}

// NodeType returns the canonical node type for CCP nodes.
func (c *CCP) NodeType() string {
	return graph.NodeTypeCCP
}

// IdentifyingProperties returns the natural key of the CCP.
func (c *CCP) IdentifyingProperties() map[string]any {
	return map[string]any{
		graph.PropID: c.ID,
	}
}

// Properties returns all properties to set on the CCP node.
func (c *CCP) Properties() map[string]any {
	props := c.IdentifyingProperties()
	if c.ProcessStep != "" {
		props[graph.PropProcessStep] = c.ProcessStep
	}
	if c.Limit.Min != nil {
		props[graph.PropLimitMin] = *c.Limit.Min
	}
	if c.Limit.Max != nil {
		props[graph.PropLimitMax] = *c.Limit.Max
	}
	if c.Limit.Expression != "" {
		props[graph.PropLimitExpr] = c.Limit.Expression
	}
	if len(c.Tags) > 0 {
		props[graph.PropTags] = strings.Join(c.Tags, ",")
	}
	return props
}

// ccpFromNode rebuilds a CCP from its graph node.
func ccpFromNode(node *graph.Node) (*CCP, error) {
	if node.Type != graph.NodeTypeCCP {
		return nil, errors.New("node " + node.ID + " is not a ccp")
	}

	c := &CCP{
		ID:          stringProp(node.Properties, graph.PropID),
		ProcessStep: stringProp(node.Properties, graph.PropProcessStep),
		Limit: CriticalLimit{
			Expression: stringProp(node.Properties, graph.PropLimitExpr),
		},
	}

	if _, ok := node.Properties[graph.PropLimitMin]; ok {
		min := floatProp(node.Properties, graph.PropLimitMin)
		c.Limit.Min = &min
	}
	if _, ok := node.Properties[graph.PropLimitMax]; ok {
		max := floatProp(node.Properties, graph.PropLimitMax)
		c.Limit.Max = &max
	}
	if raw := stringProp(node.Properties, graph.PropTags); raw != "" {
		c.Tags = strings.Split(raw, ",")
	}

	return c, nil
}
