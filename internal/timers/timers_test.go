package timers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleOnce_Fires(t *testing.T) {
	m := NewManager(context.Background())
	defer m.Stop()

	fired := make(chan string, 1)
	err := m.ScheduleOnce("timer_1", 10*time.Millisecond, func(_ context.Context, id string) {
		fired <- id
	})
	require.NoError(t, err)

	select {
	case id := <-fired:
		assert.Equal(t, "timer_1", id, "callback id")
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	// One-shot timers unregister themselves after firing.
	deadline := time.Now().Add(time.Second)
	for m.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("fired timer was not removed")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCancel_SuppressesCallback(t *testing.T) {
	m := NewManager(context.Background())
	defer m.Stop()

	var fired atomic.Int32
	err := m.ScheduleOnce("doomed", 50*time.Millisecond, func(context.Context, string) {
		fired.Add(1)
	})
	require.NoError(t, err)

	require.True(t, m.Cancel("doomed"), "Cancel should report success for an active timer")
	assert.False(t, m.Cancel("doomed"), "second Cancel should report no active timer")

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load(), "cancelled timer fired")
}

func TestScheduleRecurring(t *testing.T) {
	m := NewManager(context.Background())
	defer m.Stop()

	fired := make(chan struct{}, 16)
	err := m.ScheduleRecurring("tick", 10*time.Millisecond, func(context.Context, string) {
		fired <- struct{}{}
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("recurring timer stalled after %d firings", i)
		}
	}

	require.True(t, m.Cancel("tick"), "Cancel should stop the recurring timer")

	// Drain anything in flight, then verify silence.
	time.Sleep(30 * time.Millisecond)
	for len(fired) > 0 {
		<-fired
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fired, "recurring timer fired after cancellation")
}

func TestScheduleRecurring_RejectsNonPositiveInterval(t *testing.T) {
	m := NewManager(context.Background())
	defer m.Stop()

	err := m.ScheduleRecurring("bad", 0, func(context.Context, string) {})
	assert.Error(t, err, "zero interval should be rejected")
}

func TestSchedule_DuplicateID(t *testing.T) {
	m := NewManager(context.Background())
	defer m.Stop()

	cb := func(context.Context, string) {}
	require.NoError(t, m.ScheduleOnce("dup", time.Minute, cb))
	err := m.ScheduleOnce("dup", time.Minute, cb)
	assert.ErrorIs(t, err, ErrTimerExists)

	// After cancelling, the id is free again.
	m.Cancel("dup")
	assert.NoError(t, m.ScheduleOnce("dup", time.Minute, cb), "rescheduling a cancelled id")
}

func TestCancelAll(t *testing.T) {
	m := NewManager(context.Background())
	defer m.Stop()

	var fired atomic.Int32
	cb := func(context.Context, string) { fired.Add(1) }
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.ScheduleOnce(id, 50*time.Millisecond, cb), "schedule %s", id)
	}

	active := m.Active()
	require.Len(t, active, 3)
	assert.Equal(t, "a", active[0])

	assert.Equal(t, 3, m.CancelAll())
	assert.Zero(t, m.Count(), "count after CancelAll")

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load(), "callbacks fired after CancelAll")
}

func TestStop_RejectsNewTimers(t *testing.T) {
	m := NewManager(context.Background())

	require.NoError(t, m.ScheduleOnce("pre", time.Minute, func(context.Context, string) {}))
	m.Stop()

	err := m.ScheduleOnce("post", time.Millisecond, func(context.Context, string) {})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, m.Count(), "count after stop")

	// Stop is idempotent.
	m.Stop()
}

func TestCallbackCanCancelOtherTimers(t *testing.T) {
	m := NewManager(context.Background())
	defer m.Stop()

	done := make(chan struct{})
	require.NoError(t, m.ScheduleOnce("victim", time.Minute, func(context.Context, string) {}))
	err := m.ScheduleOnce("canceller", 10*time.Millisecond, func(_ context.Context, _ string) {
		m.Cancel("victim")
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("canceller never fired")
	}

	deadline := time.Now().Add(time.Second)
	for m.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timers not cleaned up: %v", m.Active())
		}
		time.Sleep(2 * time.Millisecond)
	}
}
