// Package timers provides the timer service injected into intent handlers.
// Timers are identified by caller-chosen ids, fire one-shot or recurring
// callbacks, and can be cancelled individually or all at once. A cancelled
// timer never delivers a callback that has not already started.
package timers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	// ErrTimerExists is returned when scheduling under an id that is
	// already active.
	ErrTimerExists = errors.New("timers: timer already exists")

	// ErrStopped is returned when scheduling on a stopped manager.
	ErrStopped = errors.New("timers: manager stopped")
)

// Callback is invoked when a timer fires. The context is the manager's run
// context; recurring callbacks should return quickly since the next firing
// is not scheduled until the callback returns.
type Callback func(ctx context.Context, id string)

type timer struct {
	id        string
	recurring bool
	interval  time.Duration

	mu        sync.Mutex
	cancelled bool
	stop      chan struct{}
}

// markCancelled flips the timer to cancelled. Returns false if it already was.
func (t *timer) markCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	close(t.stop)
	return true
}

// stillActive reports whether the timer may fire. Checked after every timer
// pop so a cancellation that raced the firing suppresses the callback.
func (t *timer) stillActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled
}

// Manager schedules and cancels timers for intent handlers. All methods are
// safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	timers  map[string]*timer
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewManager creates a timer manager. Callbacks receive a context derived
// from ctx; cancelling ctx stops every timer.
func NewManager(ctx context.Context) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Manager{
		timers: make(map[string]*timer),
		ctx:    runCtx,
		cancel: cancel,
	}
}

// ScheduleOnce arranges for fn to run once after delay. The id must not be
// in use by an active timer.
func (m *Manager) ScheduleOnce(id string, delay time.Duration, fn Callback) error {
	return m.schedule(id, delay, false, fn)
}

// ScheduleRecurring arranges for fn to run every interval until cancelled.
func (m *Manager) ScheduleRecurring(id string, interval time.Duration, fn Callback) error {
	if interval <= 0 {
		return fmt.Errorf("timers: recurring interval must be positive, got %v", interval)
	}
	return m.schedule(id, interval, true, fn)
}

func (m *Manager) schedule(id string, d time.Duration, recurring bool, fn Callback) error {
	t := &timer{
		id:        id,
		recurring: recurring,
		interval:  d,
		stop:      make(chan struct{}),
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if _, ok := m.timers[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTimerExists, id)
	}
	m.timers[id] = t
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(t, fn)
	return nil
}

func (m *Manager) run(t *timer, fn Callback) {
	defer m.wg.Done()

	tm := time.NewTimer(t.interval)
	defer tm.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.remove(t.id, t)
			return
		case <-t.stop:
			m.remove(t.id, t)
			return
		case <-tm.C:
			if !t.stillActive() {
				m.remove(t.id, t)
				return
			}
			fn(m.ctx, t.id)
			if !t.recurring {
				m.remove(t.id, t)
				return
			}
			tm.Reset(t.interval)
		}
	}
}

// remove drops a timer from the registry if it is still the registered one.
// A newer timer scheduled under the same id after a cancel is left alone.
func (m *Manager) remove(id string, t *timer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.timers[id]; ok && cur == t {
		delete(m.timers, id)
	}
}

// Cancel stops the timer with the given id. Returns true if a timer was
// cancelled, false if no such timer was active. A cancelled timer fires no
// further callbacks; like [time.Timer.Stop], Cancel does not wait for a
// callback that is already running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.timers[id]
	if ok {
		delete(m.timers, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	return t.markCancelled()
}

// CancelAll stops every active timer and returns how many were cancelled.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	cancelled := make([]*timer, 0, len(m.timers))
	for _, t := range m.timers {
		cancelled = append(cancelled, t)
	}
	m.timers = make(map[string]*timer)
	m.mu.Unlock()

	n := 0
	for _, t := range cancelled {
		if t.markCancelled() {
			n++
		}
	}
	return n
}

// Active returns the ids of all scheduled timers, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.timers))
	for id := range m.timers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of scheduled timers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Stop cancels all timers, rejects further scheduling, and waits for timer
// goroutines to exit. Safe to call multiple times.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.CancelAll()
	m.cancel()
	m.wg.Wait()
}
