package components

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/audio"
)

// recordingSink captures played frames in order.
type recordingSink struct {
	mu     sync.Mutex
	frames []audio.AudioData
	played chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{played: make(chan struct{}, 64)}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Play(_ context.Context, frame audio.AudioData) error {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	s.played <- struct{}{}
	return nil
}

func (s *recordingSink) wait(t *testing.T, n int) []audio.AudioData {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.played:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d of %d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.AudioData, len(s.frames))
	copy(out, s.frames)
	return out
}

func newTestAudio(t *testing.T, cfg *config.Config, sink PlaybackSink) *Audio {
	t.Helper()
	a := NewAudio()
	if sink != nil {
		a.SetSink(sink)
	}
	require.NoError(t, a.Init(context.Background(), &component.Deps{Config: cfg}))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func pcmFrame(ms, rate int) audio.AudioData {
	return audio.NewAudioData(audio.SilencePCM(ms, rate), rate, 1)
}

func TestAudioConvertIdentityIsFree(t *testing.T) {
	a := newTestAudio(t, nil, nil)

	in := pcmFrame(20, 16000)
	out, err := a.Convert(context.Background(), in, 16000, config.ComponentASR, audio.UseCaseASR)
	require.NoError(t, err)
	assert.Equal(t, in.SampleRate, out.SampleRate)
	// Identity conversion returns the frame untouched, no metadata stamp.
	_, ok := out.Meta(audio.MetaResamplingApplied)
	assert.False(t, ok)
}

func TestAudioConvertResamples(t *testing.T) {
	a := newTestAudio(t, nil, nil)

	in := pcmFrame(20, 48000)
	out, err := a.Convert(context.Background(), in, 16000, config.ComponentASR, audio.UseCaseASR)
	require.NoError(t, err)
	assert.Equal(t, 16000, out.SampleRate)
	applied, ok := out.Meta(audio.MetaResamplingApplied)
	require.True(t, ok)
	assert.Equal(t, true, applied)
}

func TestAudioEnsureFormatConvertsChannelsAndRate(t *testing.T) {
	a := newTestAudio(t, nil, nil)

	stereo := audio.NewAudioData(audio.SilencePCM(20, 48000), 48000, 2)
	out, err := a.EnsureFormat(context.Background(), stereo, 16000, 1, config.ComponentASR, audio.UseCaseASR)
	require.NoError(t, err)
	assert.Equal(t, 16000, out.SampleRate)
	assert.Equal(t, 1, out.Channels)
}

func TestAudioPlayPreservesOrder(t *testing.T) {
	sink := newRecordingSink()
	a := newTestAudio(t, nil, sink)

	rates := []int{8000, 16000, 24000}
	for _, r := range rates {
		require.NoError(t, a.Play(context.Background(), pcmFrame(10, r)))
	}

	frames := sink.wait(t, len(rates))
	require.Len(t, frames, len(rates))
	for i, r := range rates {
		assert.Equal(t, r, frames[i].SampleRate)
	}
}

func TestAudioPlayConvertsToOutputRate(t *testing.T) {
	sink := newRecordingSink()
	cfg := &config.Config{}
	cfg.Audio.OutputSampleRate = 16000
	a := newTestAudio(t, cfg, sink)

	require.NoError(t, a.Play(context.Background(), pcmFrame(10, 48000)))

	frames := sink.wait(t, 1)
	assert.Equal(t, 16000, frames[0].SampleRate)
}

func TestAudioPlayDisabledDropsFrames(t *testing.T) {
	sink := newRecordingSink()
	off := false
	cfg := &config.Config{}
	cfg.System.AudioPlaybackEnabled = &off
	a := newTestAudio(t, cfg, sink)

	require.NoError(t, a.Play(context.Background(), pcmFrame(10, 16000)))
	assert.Equal(t, 0, a.QueueDepth())

	select {
	case <-sink.played:
		t.Fatal("frame played despite playback being disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAudioPlayAfterShutdownFails(t *testing.T) {
	a := NewAudio()
	require.NoError(t, a.Init(context.Background(), &component.Deps{}))
	require.NoError(t, a.Shutdown(context.Background()))

	err := a.Play(context.Background(), pcmFrame(10, 16000))
	require.Error(t, err)
}
