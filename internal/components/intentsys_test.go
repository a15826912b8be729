package components

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/internal/timers"
	"github.com/attalus-io/vestibule/pkg/types"
)

func newTestIntentSystem(t *testing.T, cfg *config.Config) *IntentSystem {
	t.Helper()
	tm := timers.NewManager(context.Background())
	t.Cleanup(tm.Stop)
	deps := &component.Deps{
		Config:   cfg,
		Sessions: session.NewManager(session.ManagerConfig{}),
		Timers:   tm,
	}
	c := NewIntentSystem()
	require.NoError(t, c.Init(context.Background(), deps))
	return c
}

func TestIntentSystemInitRequiresManagers(t *testing.T) {
	err := NewIntentSystem().Init(context.Background(), &component.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session manager")

	deps := &component.Deps{Sessions: session.NewManager(session.ManagerConfig{})}
	err = NewIntentSystem().Init(context.Background(), deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timer manager")
}

func TestIntentSystemRegistersBuiltins(t *testing.T) {
	c := newTestIntentSystem(t, nil)

	names := make([]string, 0, 3)
	for _, h := range c.Registry().Handlers() {
		names = append(names, h.Name())
	}
	assert.ElementsMatch(t, []string{"conversation", "timer", "media"}, names)
	assert.NotNil(t, c.Timer())
}

func TestIntentSystemExecutesConversation(t *testing.T) {
	c := newTestIntentSystem(t, nil)

	res := c.Execute(context.Background(), types.NewIntent("conversation.general", "привет", "s1", 0.9))
	assert.True(t, res.Success)
	assert.True(t, res.ShouldSpeak)
	assert.NotEmpty(t, res.Text)
}

func TestIntentSystemUnknownDomain(t *testing.T) {
	c := newTestIntentSystem(t, nil)

	res := c.Execute(context.Background(), types.NewIntent("thermostat.set", "поставь 22 градуса", "s1", 0.9))
	assert.False(t, res.Success)
	assert.Equal(t, types.ErrKindNoHandler, res.Error)
}

func TestIntentSystemPublishesDonations(t *testing.T) {
	c := newTestIntentSystem(t, nil)

	domains := make(map[string]bool)
	for _, d := range c.Donations() {
		domains[d.HandlerDomain] = true
	}
	assert.True(t, domains["timer"])
	// The media handler donates under the "audio" domain it serves.
	assert.True(t, domains["audio"])
}

func TestIntentSystemContextualStopResolvesActiveAction(t *testing.T) {
	c := newTestIntentSystem(t, nil)

	set := c.Execute(context.Background(), types.NewIntent("timer.set", "поставь таймер на десять минут", "s1", 0.9))
	require.True(t, set.Success, "timer.set failed: %s", set.Text)

	res := c.Execute(context.Background(), types.NewIntent("contextual.stop", "стоп", "s1", 1.0))
	assert.True(t, res.Success, "contextual stop failed: %s", res.Text)
}
