package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// runner tracks one started source: cancelling stops its Listen channel,
// done closes when the forwarding goroutine has drained it.
type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the registered sources and fans their items into one
// queue. Register wires a source, Start brings up everything that can
// run, Next hands the pipeline the oldest pending item.
type Manager struct {
	mu      sync.Mutex
	sources map[string]Source
	order   []string
	runners map[string]*runner
	closed  bool

	queue *queue
}

func NewManager() *Manager {
	return &Manager{
		sources: make(map[string]Source),
		runners: make(map[string]*runner),
		queue:   newQueue(),
	}
}

// Register adds a source under its own name. Registration order is kept
// and used by Start and Sources.
func (m *Manager) Register(src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := src.Name()
	if _, dup := m.sources[name]; dup {
		return fmt.Errorf("input source %q already registered", name)
	}
	m.sources[name] = src
	m.order = append(m.order, name)
	return nil
}

// Lookup returns a registered source by name.
func (m *Manager) Lookup(name string) (Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[name]
	return src, ok
}

// Start brings up every registered source. A source that fails to start
// does not stop the others; the failures come back joined so the caller
// can decide how loud to be about them.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	m.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := m.StartSource(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartSource starts one source by name. Starting an already running
// source is a no-op.
func (m *Manager) StartSource(ctx context.Context, name string) error {
	m.mu.Lock()
	src, ok := m.sources[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, running := m.runners[name]; running {
		m.mu.Unlock()
		return nil
	}

	// The run context outlives the Start call: sources stop on
	// StopSource or Close, not when the caller's ctx ends.
	runCtx, cancel := context.WithCancel(context.Background())
	ch, err := src.Listen(runCtx)
	if err != nil {
		cancel()
		m.mu.Unlock()
		return fmt.Errorf("start input %s: %w", name, err)
	}
	r := &runner{cancel: cancel, done: make(chan struct{})}
	m.runners[name] = r
	m.mu.Unlock()

	go m.forward(runCtx, name, ch, r.done)
	slog.Info("input source started", "source", name, "type", src.Type())
	return nil
}

// forward drains one source's channel into the shared queue, stamping
// the source name on each item. It exits when the channel closes.
func (m *Manager) forward(ctx context.Context, name string, ch <-chan Data, done chan struct{}) {
	defer close(done)
	for item := range ch {
		item.Source = name
		if err := m.queue.push(ctx, item); err != nil {
			return
		}
	}
}

// StopSource stops one source and waits for its forwarding goroutine to
// finish, so no item from it arrives after StopSource returns. Stopping
// a source that is not running is a no-op.
func (m *Manager) StopSource(ctx context.Context, name string) error {
	m.mu.Lock()
	src, ok := m.sources[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	r := m.runners[name]
	delete(m.runners, name)
	m.mu.Unlock()

	if r == nil {
		return nil
	}
	r.cancel()
	err := src.Stop(ctx)
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	slog.Info("input source stopped", "source", name)
	return err
}

// Next blocks until an item is pending, the ctx ends, or the manager is
// closed.
func (m *Manager) Next(ctx context.Context) (Data, error) {
	return m.queue.pop(ctx)
}

// Depth reports how many items are queued and not yet consumed.
func (m *Manager) Depth() int {
	return m.queue.len()
}

// Sources reports every registered source in registration order.
func (m *Manager) Sources() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.order))
	for _, name := range m.order {
		src := m.sources[name]
		out = append(out, Status{
			Name:      name,
			Type:      src.Type(),
			Available: src.Available(),
			Listening: src.Listening(),
			Settings:  src.Settings(),
		})
	}
	return out
}

// Close stops every running source and shuts the queue down. Items still
// queued are dropped. Close is idempotent.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	names := make([]string, 0, len(m.runners))
	for _, name := range m.order {
		if _, running := m.runners[name]; running {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := m.StopSource(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
		}
	}
	m.queue.close()
	return errors.Join(errs...)
}
