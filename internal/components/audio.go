package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/observe"
	"github.com/attalus-io/vestibule/pkg/audio"
)

// playbackQueueDepth bounds the playback queue. Play blocks once the queue
// is full rather than dropping or reordering frames.
const playbackQueueDepth = 64

// PlaybackSink is the output device boundary. The default sink logs what
// would have been played; deployments with a real output device inject
// their own.
type PlaybackSink interface {
	Play(ctx context.Context, frame audio.AudioData) error
	Name() string
}

// Audio is the audio processing component. It owns the process-wide
// resample cache every pipeline stage converts through and the ordered
// playback queue synthesized speech goes out on.
type Audio struct {
	res       *audio.Resampler
	collector *observe.Collector
	sink      PlaybackSink
	outRate   int
	playback  bool

	queue  chan audio.AudioData
	cancel context.CancelFunc
	runCtx context.Context
	done   chan struct{}
}

var _ component.Component = (*Audio)(nil)

// NewAudio returns an uninitialized audio component. A custom playback sink
// may be injected with SetSink before initialization.
func NewAudio() *Audio {
	return &Audio{playback: true}
}

// SetSink replaces the playback sink. Must be called before Init.
func (a *Audio) SetSink(s PlaybackSink) { a.sink = s }

func (a *Audio) Name() string { return config.ComponentAudio }

func (a *Audio) Dependencies() []string { return nil }

// Init builds the resampler and starts the playback worker.
func (a *Audio) Init(_ context.Context, deps *component.Deps) error {
	cacheEntries := 0
	if deps.Config != nil {
		cacheEntries = deps.Config.Audio.ResampleCacheEntries
		a.outRate = deps.Config.Audio.OutputSampleRate
		a.playback = deps.Config.System.IsPlaybackEnabled()
	}
	a.res = audio.NewResampler(cacheEntries)
	a.collector = deps.Collector
	if a.collector == nil {
		a.collector = observe.NewCollector(nil)
	}
	if a.sink == nil {
		a.sink = logSink{}
	}

	a.queue = make(chan audio.AudioData, playbackQueueDepth)
	a.runCtx, a.cancel = context.WithCancel(context.Background())
	a.done = make(chan struct{})
	go a.run()
	return nil
}

// Shutdown stops the playback worker. Queued frames that have not started
// playing are dropped.
func (a *Audio) Shutdown(ctx context.Context) error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Resampler exposes the shared conversion cache to sibling components.
func (a *Audio) Resampler() *audio.Resampler { return a.res }

// Convert resamples a frame to dstRate, recording the operation under the
// calling component's name. Identity conversions are free and unrecorded.
func (a *Audio) Convert(ctx context.Context, frame audio.AudioData, dstRate int, caller string, useCase audio.UseCase) (audio.AudioData, error) {
	if dstRate <= 0 || frame.SampleRate == dstRate {
		return frame, nil
	}
	start := time.Now()
	out, err := a.res.Convert(frame, dstRate, useCase)
	a.collector.RecordResample(ctx, caller, err == nil, time.Since(start))
	if err != nil {
		return audio.AudioData{}, fmt.Errorf("resample %dHz -> %dHz for %s: %w",
			frame.SampleRate, dstRate, caller, err)
	}
	return out, nil
}

// EnsureFormat converts a frame to the given channel count and rate.
// channels or rate of zero leave that dimension untouched.
func (a *Audio) EnsureFormat(ctx context.Context, frame audio.AudioData, rate, channels int, caller string, useCase audio.UseCase) (audio.AudioData, error) {
	if channels > 0 && frame.Channels != channels {
		data, err := audio.ConvertChannels(frame.Data, frame.Channels, channels)
		if err != nil {
			return audio.AudioData{}, fmt.Errorf("convert %dch -> %dch for %s: %w",
				frame.Channels, channels, caller, err)
		}
		frame.Data = data
		frame.Channels = channels
	}
	return a.Convert(ctx, frame, rate, caller, useCase)
}

// Play queues a frame for ordered playback. Blocks while the queue is full;
// returns without queueing when playback is disabled.
func (a *Audio) Play(ctx context.Context, frame audio.AudioData) error {
	if !a.playback {
		slog.Debug("playback disabled, dropping frame", "duration", frame.Duration())
		return nil
	}
	select {
	case <-a.runCtx.Done():
		return fmt.Errorf("audio component stopped")
	default:
	}
	select {
	case a.queue <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.runCtx.Done():
		return fmt.Errorf("audio component stopped")
	}
}

// QueueDepth reports how many frames are waiting to play.
func (a *Audio) QueueDepth() int { return len(a.queue) }

func (a *Audio) run() {
	defer close(a.done)
	for {
		select {
		case <-a.runCtx.Done():
			return
		case frame := <-a.queue:
			if a.outRate > 0 && frame.SampleRate != a.outRate {
				converted, err := a.Convert(a.runCtx, frame, a.outRate, config.ComponentAudio, audio.UseCaseGeneral)
				if err != nil {
					slog.Warn("playback resample failed", "error", err)
					continue
				}
				frame = converted
			}
			if err := a.sink.Play(a.runCtx, frame); err != nil {
				slog.Warn("playback failed", "sink", a.sink.Name(), "error", err)
			}
		}
	}
}

// logSink is the default output device: it logs frame metadata instead of
// producing sound, which is the right behavior for api and headless
// deployments and for hosts without an output device.
type logSink struct{}

func (logSink) Name() string { return "log" }

func (logSink) Play(_ context.Context, frame audio.AudioData) error {
	slog.Info("audio playback",
		"duration", frame.Duration(),
		"sample_rate", frame.SampleRate,
		"bytes", len(frame.Data))
	return nil
}
