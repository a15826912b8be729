package components

import (
	"context"
	"fmt"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/intent"
	"github.com/attalus-io/vestibule/internal/intent/handlers"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/types"
)

// IntentSystem is the execution component: the handler registry, the
// contextual resolver, and the orchestrator, assembled with the built-in
// handlers. It publishes the handlers' donation manifests so the NLU
// component learns their phrases.
type IntentSystem struct {
	registry *intent.Registry
	resolver *intent.Resolver
	orch     *intent.Orchestrator
	timer    *handlers.Timer
}

var (
	_ component.Component      = (*IntentSystem)(nil)
	_ component.DonationSource = (*IntentSystem)(nil)
)

// NewIntentSystem returns an uninitialized execution component.
func NewIntentSystem() *IntentSystem { return &IntentSystem{} }

func (c *IntentSystem) Name() string { return config.ComponentIntentSystem }

func (c *IntentSystem) Dependencies() []string { return nil }

// Init builds the registry with the built-in handlers and wires the
// orchestrator to the session manager.
func (c *IntentSystem) Init(_ context.Context, deps *component.Deps) error {
	if deps.Sessions == nil {
		return fmt.Errorf("intent_system: session manager required")
	}
	if deps.Timers == nil {
		return fmt.Errorf("intent_system: timer manager required")
	}

	c.registry = intent.NewRegistry()
	c.timer = handlers.NewTimer(deps.Timers)
	builtins := []intent.Handler{
		handlers.NewConversation(),
		c.timer,
		handlers.NewMedia(),
	}
	for _, h := range builtins {
		if err := c.registry.Register(h); err != nil {
			return fmt.Errorf("intent_system: register %s: %w", h.Name(), err)
		}
	}

	resolverCfg := intent.ResolverConfig{}
	if deps.Config != nil {
		resolverCfg.DomainPriorities = deps.Config.IntentSystem.DomainPriorities
		resolverCfg.DestructiveCommands = deps.Config.IntentSystem.DestructiveCommands
	}
	c.resolver = intent.NewResolver(c.registry, resolverCfg)
	c.orch = intent.NewOrchestrator(c.registry, c.resolver, deps.Sessions, deps.Collector)

	for _, h := range builtins {
		if dp, ok := h.(intent.DonationProvider); ok {
			c.orch.RegisterDonation(dp.Donation())
		}
	}
	return nil
}

func (c *IntentSystem) Shutdown(context.Context) error { return nil }

// Execute runs one intent through the orchestrator pipeline.
func (c *IntentSystem) Execute(ctx context.Context, in types.Intent) types.IntentResult {
	return c.orch.Execute(ctx, in)
}

// Donations returns the built-in handlers' manifests for phrase learning.
func (c *IntentSystem) Donations() []*donation.Donation {
	var out []*donation.Donation
	for _, h := range c.registry.Handlers() {
		if dp, ok := h.(intent.DonationProvider); ok {
			out = append(out, dp.Donation())
		}
	}
	return out
}

// Registry exposes the handler registry so extensions can add handlers
// before donations are distributed.
func (c *IntentSystem) Registry() *intent.Registry { return c.registry }

// Orchestrator exposes the pipeline for middleware and error handler
// installation.
func (c *IntentSystem) Orchestrator() *intent.Orchestrator { return c.orch }

// Timer exposes the timer handler so the application can wire firing
// announcements to synthesis and playback.
func (c *IntentSystem) Timer() *handlers.Timer { return c.timer }
