// Package component defines the runtime unit contract and the manager that
// brings units up in dependency order and down in reverse.
//
// A component wraps one capability of the assistant (speech recognition,
// synthesis, intent execution) behind a uniform lifecycle. Components
// declare which other components they need; the manager initializes the
// enabled set topologically, records failures without aborting startup,
// and substitutes registered fallbacks where possible.
package component

import (
	"context"

	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/observe"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/internal/timers"
	"github.com/attalus-io/vestibule/pkg/donation"
)

// Component is one managed runtime unit.
type Component interface {
	// Name identifies the component in the toggle map and the registry.
	Name() string

	// Dependencies lists the component names that must initialize first.
	Dependencies() []string

	// Init prepares the component for use. Dependencies listed by
	// [Component.Dependencies] are initialized before Init runs and are
	// reachable through deps.Components.
	Init(ctx context.Context, deps *Deps) error

	// Shutdown releases the component's resources. Called in reverse
	// initialization order.
	Shutdown(ctx context.Context) error
}

// Deps carries the framework services injected into every component. The
// component registry is the manager itself, so initialized peers can be
// looked up during Init and at runtime.
type Deps struct {
	Config     *config.Config
	Sessions   *session.Manager
	Timers     *timers.Manager
	Metrics    *observe.Metrics
	Collector  *observe.Collector
	Components *Manager

	// Providers is the external provider factory registry. Entries
	// registered here take precedence over the built-in constructors, so
	// plugins and tests can supply their own backends. Optional.
	Providers *config.Registry
}

// DonationSource is implemented by components that publish intent handler
// donation manifests (the intent system).
type DonationSource interface {
	Donations() []*donation.Donation
}

// DonationConsumer is implemented by components that ingest donation
// manifests after initialization (the NLU component). The manager feeds
// every source's manifests to every consumer in its post-init pass.
type DonationConsumer interface {
	ConsumeDonations(donations []*donation.Donation) error
}

// State is a component's lifecycle phase.
type State string

const (
	// StateRegistered means a factory exists but Init has not run.
	StateRegistered State = "registered"

	// StateReady means Init succeeded.
	StateReady State = "ready"

	// StateDegraded means Init failed but a registered fallback serves in
	// the component's place.
	StateDegraded State = "degraded"

	// StateFailed means Init failed and no fallback could take over.
	StateFailed State = "failed"

	// StateStopped means Shutdown has run.
	StateStopped State = "stopped"
)

// Status describes one component's current condition.
type Status struct {
	Name  string `json:"name"`
	State State  `json:"state"`

	// Error holds the initialization failure, if any.
	Error string `json:"error,omitempty"`

	// Fallback names the substitute serving a degraded component.
	Fallback string `json:"fallback,omitempty"`
}
