package input

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a hand-driven source: tests call emit to produce items.
type fakeSource struct {
	name      string
	kind      Kind
	listenErr error

	mu        sync.Mutex
	listening bool
	ch        chan Data
	stops     int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Type() Kind { return f.kind }

func (f *fakeSource) Available() bool { return f.listenErr == nil }

func (f *fakeSource) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listening
}

func (f *fakeSource) Settings() map[string]any {
	return map[string]any{"fake": true}
}

func (f *fakeSource) Listen(ctx context.Context) (<-chan Data, error) {
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	f.mu.Lock()
	ch := make(chan Data, 16)
	f.ch = ch
	f.listening = true
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		f.listening = false
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

func (f *fakeSource) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

// emit queues an item if the source is listening.
func (f *fakeSource) emit(d Data) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.listening {
		return false
	}
	f.ch <- d
	return true
}

func TestManagerRegisterRejectsDuplicate(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())

	require.NoError(t, m.Register(&fakeSource{name: "cli", kind: KindText}))
	err := m.Register(&fakeSource{name: "cli", kind: KindText})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestManagerStartUnknownSource(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())

	assert.ErrorIs(t, m.StartSource(context.Background(), "ghost"), ErrUnknownSource)
	assert.ErrorIs(t, m.StopSource(context.Background(), "ghost"), ErrUnknownSource)
}

func TestManagerFanInStampsSourceAndKeepsPerSourceOrder(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())
	ctx := context.Background()

	a := &fakeSource{name: "alpha", kind: KindText}
	b := &fakeSource{name: "beta", kind: KindText}
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Start(ctx))

	require.True(t, a.emit(Data{Kind: KindText, Text: "a1"}))
	require.True(t, a.emit(Data{Kind: KindText, Text: "a2"}))
	require.True(t, b.emit(Data{Kind: KindText, Text: "b1"}))

	bySource := map[string][]string{}
	for i := 0; i < 3; i++ {
		item, err := m.Next(ctx)
		require.NoError(t, err)
		bySource[item.Source] = append(bySource[item.Source], item.Text)
	}
	assert.Equal(t, []string{"a1", "a2"}, bySource["alpha"])
	assert.Equal(t, []string{"b1"}, bySource["beta"])
}

func TestManagerStartCollectsFailuresAndKeepsGoing(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())
	ctx := context.Background()

	bad := &fakeSource{name: "mic", kind: KindAudio, listenErr: errors.New("device busy")}
	good := &fakeSource{name: "cli", kind: KindText}
	require.NoError(t, m.Register(bad))
	require.NoError(t, m.Register(good))

	err := m.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mic")
	assert.Contains(t, err.Error(), "device busy")

	require.True(t, good.emit(Data{Kind: KindText, Text: "still here"}))
	item, err := m.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cli", item.Source)
	assert.Equal(t, "still here", item.Text)
}

func TestManagerStartSourceIdempotent(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())
	ctx := context.Background()

	src := &fakeSource{name: "cli", kind: KindText}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.StartSource(ctx, "cli"))
	require.NoError(t, m.StartSource(ctx, "cli"))
	assert.True(t, src.Listening())
}

func TestManagerStopSourceSilencesIt(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())
	ctx := context.Background()

	src := &fakeSource{name: "cli", kind: KindText}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.StartSource(ctx, "cli"))

	require.True(t, src.emit(Data{Kind: KindText, Text: "before"}))
	item, err := m.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "before", item.Text)

	require.NoError(t, m.StopSource(ctx, "cli"))
	assert.False(t, src.Listening())
	assert.Equal(t, 1, src.stops)
	assert.False(t, src.emit(Data{Kind: KindText, Text: "after"}))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = m.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Stopping again is a no-op.
	require.NoError(t, m.StopSource(ctx, "cli"))
	assert.Equal(t, 1, src.stops)
}

func TestManagerCloseDropsPendingAndUnblocksNext(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	src := &fakeSource{name: "cli", kind: KindText}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx))

	require.True(t, src.emit(Data{Kind: KindText, Text: "p1"}))
	require.True(t, src.emit(Data{Kind: KindText, Text: "p2"}))
	require.Eventually(t, func() bool { return m.Depth() == 2 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, m.Close(ctx))
	assert.False(t, src.Listening())

	_, err := m.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// Close twice is fine, and a start after close is refused.
	require.NoError(t, m.Close(ctx))
	assert.ErrorIs(t, m.StartSource(ctx, "cli"), ErrClosed)
}

func TestManagerSourcesReportsStatus(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())
	ctx := context.Background()

	cli := &fakeSource{name: "cli", kind: KindText}
	mic := &fakeSource{name: "microphone", kind: KindAudio, listenErr: errors.New("no device")}
	require.NoError(t, m.Register(cli))
	require.NoError(t, m.Register(mic))
	require.NoError(t, m.StartSource(ctx, "cli"))

	statuses := m.Sources()
	require.Len(t, statuses, 2)

	assert.Equal(t, "cli", statuses[0].Name)
	assert.Equal(t, KindText, statuses[0].Type)
	assert.True(t, statuses[0].Available)
	assert.True(t, statuses[0].Listening)
	assert.Equal(t, map[string]any{"fake": true}, statuses[0].Settings)

	assert.Equal(t, "microphone", statuses[1].Name)
	assert.False(t, statuses[1].Available)
	assert.False(t, statuses[1].Listening)
}

func TestManagerLookup(t *testing.T) {
	m := NewManager()
	defer m.Close(context.Background())

	web := NewWeb()
	require.NoError(t, m.Register(web))

	got, ok := m.Lookup("web")
	require.True(t, ok)
	assert.Same(t, web, got)

	_, ok = m.Lookup("ghost")
	assert.False(t, ok)
}
