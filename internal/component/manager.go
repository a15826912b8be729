package component

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/attalus-io/vestibule/pkg/donation"
)

// ErrDependencyCycle reports that the enabled components cannot be ordered
// because their dependency declarations form a cycle. This is a
// configuration error and aborts startup.
var ErrDependencyCycle = errors.New("component dependency cycle")

// Factory constructs a component. Construction must be cheap and must not
// touch external resources; that work belongs in Init. A factory error
// marks the component failed without aborting startup.
type Factory func() (Component, error)

// Manager owns the component lifecycle. It initializes the enabled set in
// dependency order, substitutes registered fallbacks for components that
// fail, and shuts everything down in reverse order. It also serves as the
// live registry components use to reach their peers.
type Manager struct {
	deps *Deps

	mu        sync.RWMutex
	factories map[string]Factory
	fallbacks map[string]string
	live      map[string]Component
	states    map[string]*Status
	order     []string
	done      bool
}

// NewManager returns a manager that injects deps into every component it
// initializes. The manager installs itself as deps.Components so peers are
// reachable through the same struct.
func NewManager(deps *Deps) *Manager {
	if deps == nil {
		deps = &Deps{}
	}
	m := &Manager{
		deps:      deps,
		factories: make(map[string]Factory),
		fallbacks: make(map[string]string),
		live:      make(map[string]Component),
		states:    make(map[string]*Status),
	}
	deps.Components = m
	return m
}

// RegisterFactory makes a component constructible under name. Registering
// the same name twice keeps the last factory.
func (m *Manager) RegisterFactory(name string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = f
}

// RegisterFallback names a substitute factory to initialize under name when
// the primary fails. The substitute serves under the primary's name so
// registry lookups keep working.
func (m *Manager) RegisterFallback(name, substitute string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[name] = substitute
}

// Initialize constructs and initializes every enabled component in
// dependency order. Failures degrade the affected component rather than
// aborting: the failure is recorded, a registered fallback is tried, and
// startup continues. Only an unorderable dependency graph is fatal.
// Initialize is idempotent; repeat calls after a successful run are no-ops.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}

	log := slog.Default().With("subsystem", "components")

	built := m.constructLocked(log)
	order, err := initOrder(built)
	if err != nil {
		return err
	}

	for _, name := range order {
		c := built[name]
		for _, dep := range c.Dependencies() {
			st, ok := m.states[dep]
			switch {
			case !ok:
				log.Warn("component dependency not enabled",
					"component", name, "dependency", dep)
			case st.State == StateFailed:
				log.Warn("component dependency failed, attempting anyway",
					"component", name, "dependency", dep)
			case st.State == StateDegraded:
				log.Warn("component dependency degraded",
					"component", name, "dependency", dep, "fallback", st.Fallback)
			}
		}

		if err := c.Init(ctx, m.deps); err != nil {
			log.Error("component initialization failed",
				"component", name, "error", err)
			m.states[name].State = StateFailed
			m.states[name].Error = err.Error()
			m.substituteLocked(ctx, name, log)
			continue
		}
		m.markReadyLocked(ctx, name, c)
		log.Info("component ready", "component", name)
	}

	m.distributeDonationsLocked(log)
	m.done = true
	log.Info("component initialization complete",
		"ready", len(m.order), "total", len(built), "profile", m.profileLocked())
	return nil
}

// constructLocked runs the factories for every enabled component and
// records construction failures. Enabled names without a factory are
// reported but otherwise ignored.
func (m *Manager) constructLocked(log *slog.Logger) map[string]Component {
	if m.deps.Config != nil {
		for _, name := range m.deps.Config.EnabledComponents() {
			if _, ok := m.factories[name]; !ok {
				log.Warn("component enabled but no factory registered", "component", name)
			}
		}
	}

	built := make(map[string]Component, len(m.factories))
	for _, name := range slices.Sorted(maps.Keys(m.factories)) {
		if m.deps.Config != nil && !m.deps.Config.ComponentEnabled(name) {
			log.Debug("component disabled", "component", name)
			continue
		}
		c, err := m.factories[name]()
		if err != nil {
			log.Warn("component construction failed", "component", name, "error", err)
			m.states[name] = &Status{Name: name, State: StateFailed, Error: err.Error()}
			continue
		}
		built[name] = c
		m.states[name] = &Status{Name: name, State: StateRegistered}
	}
	return built
}

// substituteLocked initializes the registered fallback under the failed
// component's name, leaving the state degraded on success.
func (m *Manager) substituteLocked(ctx context.Context, name string, log *slog.Logger) {
	subName, ok := m.fallbacks[name]
	if !ok {
		return
	}
	factory, ok := m.factories[subName]
	if !ok {
		log.Warn("fallback has no factory", "component", name, "fallback", subName)
		return
	}
	sub, err := factory()
	if err == nil {
		err = sub.Init(ctx, m.deps)
	}
	if err != nil {
		log.Error("fallback initialization failed",
			"component", name, "fallback", subName, "error", err)
		return
	}
	m.markReadyLocked(ctx, name, sub)
	m.states[name].State = StateDegraded
	m.states[name].Fallback = subName
	log.Warn("component degraded to fallback", "component", name, "fallback", subName)
}

func (m *Manager) markReadyLocked(ctx context.Context, name string, c Component) {
	m.live[name] = c
	m.states[name].State = StateReady
	m.states[name].Error = ""
	m.order = append(m.order, name)
	if m.deps.Metrics != nil {
		m.deps.Metrics.ComponentsReady.Add(ctx, 1)
	}
}

// distributeDonationsLocked collects handler manifests from every source
// component and feeds them to every consumer. Ingestion failures degrade
// recognition quality but are not fatal.
func (m *Manager) distributeDonationsLocked(log *slog.Logger) {
	var manifests []*donation.Donation
	for _, name := range m.order {
		if src, ok := m.live[name].(DonationSource); ok {
			manifests = append(manifests, src.Donations()...)
		}
	}
	if len(manifests) == 0 {
		return
	}
	for _, name := range m.order {
		sink, ok := m.live[name].(DonationConsumer)
		if !ok {
			continue
		}
		if err := sink.ConsumeDonations(manifests); err != nil {
			log.Warn("donation ingestion failed", "component", name, "error", err)
			continue
		}
		log.Debug("donations ingested", "component", name, "manifests", len(manifests))
	}
}

// initOrder topologically sorts the constructed components by their
// dependency declarations (Kahn's algorithm). Dependencies outside the
// constructed set carry no ordering weight; the dependent decides at Init
// time whether it can live without them. Ties break lexically so the order
// is deterministic.
func initOrder(nodes map[string]Component) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for name, c := range nodes {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range c.Dependencies() {
			if _, ok := nodes[dep]; !ok {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	queue := make([]string, 0, len(nodes))
	for name, d := range indegree {
		if d == 0 {
			queue = append(queue, name)
		}
	}
	slices.Sort(queue)

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		slices.Sort(queue)
	}

	if len(order) != len(nodes) {
		var stuck []string
		for name, d := range indegree {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Get returns the live component registered under name. Degraded
// components resolve to their fallback instance.
func (m *Manager) Get(name string) (Component, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.live[name]
	return c, ok
}

// List returns the names of all live components, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.live))
}

// States reports the condition of every component the manager has touched,
// sorted by name.
func (m *Manager) States() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b Status) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Profile reports the deployment shape derived from the configuration.
func (m *Manager) Profile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profileLocked()
}

func (m *Manager) profileLocked() string {
	if m.deps.Config == nil {
		return "custom(0)"
	}
	return m.deps.Config.DeploymentProfile()
}

// Shutdown stops live components in reverse initialization order. Shutdown
// errors are logged and do not stop the teardown. After Shutdown the
// manager can be initialized again.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := slog.Default().With("subsystem", "components")

	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		c, ok := m.live[name]
		if !ok {
			continue
		}
		if err := c.Shutdown(ctx); err != nil {
			log.Warn("component shutdown failed", "component", name, "error", err)
		}
		m.states[name].State = StateStopped
		delete(m.live, name)
		if m.deps.Metrics != nil {
			m.deps.Metrics.ComponentsReady.Add(ctx, -1)
		}
	}
	m.order = m.order[:0]
	m.done = false
}
