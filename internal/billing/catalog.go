package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82/client"

	"mailcrew/internal/agent/ports"
	mailcrewerrors "mailcrew/internal/errors"
	"mailcrew/internal/logging"
	"mailcrew/internal/tools/shared"
)

// handlerFunc performs one Stripe operation and returns a textual result.
type handlerFunc func(ctx context.Context, args map[string]any) (string, error)

// stripeAction adapts a Stripe operation to the ToolExecutor contract.
type stripeAction struct {
	shared.BaseTool
	handler handlerFunc
}

func (a *stripeAction) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	content, err := a.handler(ctx, call.Arguments)
	if err != nil {
		return shared.ToolError(call.ID, "%s: %v", a.Metadata().Name, err)
	}
	return &ports.ToolResult{CallID: call.ID, Content: content}, nil
}

// Catalog enumerates the Stripe actions available to the agent, partitioned
// at construction time into read-only and mutating sets. The partition is
// static; an action never appears in both.
type Catalog struct {
	readOnly []ports.ToolExecutor
	mutating []ports.ToolExecutor
}

// NewCatalog builds the action catalog over a Stripe API client. A missing
// secret key fails construction outright: an agent silently missing tools
// is a correctness hazard, not a degraded mode.
func NewCatalog(secretKey string, logger logging.Logger) (*Catalog, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, mailcrewerrors.NewConfigError("STRIPE_SECRET_KEY", "stripe secret key is required to build the action catalog")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return newCatalogWithAPI(api, logger)
}

func newCatalogWithAPI(api *client.API, logger logging.Logger) (*Catalog, error) {
	logger = logging.OrNop(logger)

	c := &Catalog{}
	for _, spec := range readOnlySpecs(api) {
		c.readOnly = append(c.readOnly, newAction(spec, true))
	}
	for _, spec := range mutatingSpecs(api) {
		c.mutating = append(c.mutating, newAction(spec, false))
	}

	if err := c.checkPartition(); err != nil {
		return nil, err
	}

	logger.Info("Stripe catalog built: %d read-only, %d mutating actions",
		len(c.readOnly), len(c.mutating))
	return c, nil
}

// ReadOnly returns the actions safe to expose unwrapped.
func (c *Catalog) ReadOnly() []ports.ToolExecutor {
	return c.readOnly
}

// Mutating returns the actions that must pass the approval gate before
// their handler runs.
func (c *Catalog) Mutating() []ports.ToolExecutor {
	return c.mutating
}

func (c *Catalog) checkPartition() error {
	seen := make(map[string]bool)
	for _, action := range c.readOnly {
		meta := action.Metadata()
		if !meta.ReadOnly {
			return fmt.Errorf("action %s in read-only set is not marked read-only", meta.Name)
		}
		seen[meta.Name] = true
	}
	for _, action := range c.mutating {
		meta := action.Metadata()
		if meta.ReadOnly {
			return fmt.Errorf("action %s in mutating set is marked read-only", meta.Name)
		}
		if seen[meta.Name] {
			return fmt.Errorf("action %s appears in both partitions", meta.Name)
		}
	}
	return nil
}

// actionSpec declares one catalog entry.
type actionSpec struct {
	name        string
	description string
	params      ports.ParameterSchema
	category    string
	handler     handlerFunc
}

func newAction(spec actionSpec, readOnly bool) ports.ToolExecutor {
	return &stripeAction{
		BaseTool: shared.NewBaseTool(
			ports.ToolDefinition{
				Name:        spec.name,
				Description: spec.description,
				Parameters:  spec.params,
			},
			ports.ToolMetadata{
				Name:     spec.name,
				Version:  "1.0.0",
				Category: spec.category,
				ReadOnly: readOnly,
			},
		),
		handler: spec.handler,
	}
}

func objectSchema(props map[string]ports.Property, required ...string) ports.ParameterSchema {
	if props == nil {
		props = map[string]ports.Property{}
	}
	return ports.ParameterSchema{Type: "object", Properties: props, Required: required}
}
