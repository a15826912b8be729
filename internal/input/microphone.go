package input

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/audio"
)

// CaptureConfig is what a capture backend needs to open a stream.
type CaptureConfig struct {
	Device     string
	SampleRate int
	Channels   int
	FrameMs    int
}

// CaptureDevice opens PCM capture streams. The returned channel carries
// one frame per FrameMs and closes when ctx is cancelled. The default
// build registers no device; deployments plug one in (or a ReplayDevice
// for simulated capture).
type CaptureDevice interface {
	Name() string
	Available() bool
	Capture(ctx context.Context, cfg CaptureConfig) (<-chan audio.AudioData, error)
}

// Microphone turns a capture backend into an input source emitting audio
// frames. Without a backend it registers fine but refuses to start.
type Microphone struct {
	cfg    config.MicrophoneInputConfig
	device CaptureDevice

	mu        sync.Mutex
	listening bool
	out       chan Data
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewMicrophone(cfg config.MicrophoneInputConfig, device CaptureDevice) *Microphone {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameMs <= 0 {
		cfg.FrameMs = 30
	}
	return &Microphone{cfg: cfg, device: device}
}

func (m *Microphone) Name() string { return config.InputMicrophone }

func (m *Microphone) Type() Kind { return KindAudio }

func (m *Microphone) Available() bool {
	return m.device != nil && m.device.Available()
}

func (m *Microphone) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *Microphone) Settings() map[string]any {
	s := map[string]any{
		"sample_rate": m.cfg.SampleRate,
		"channels":    m.cfg.Channels,
		"frame_ms":    m.cfg.FrameMs,
	}
	if m.cfg.Device != "" {
		s["device"] = m.cfg.Device
	}
	if m.device != nil {
		s["backend"] = m.device.Name()
	}
	return s
}

func (m *Microphone) Listen(ctx context.Context) (<-chan Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listening {
		return m.out, nil
	}
	if m.device == nil || !m.device.Available() {
		return nil, ErrNoCaptureDevice
	}

	runCtx, cancel := context.WithCancel(ctx)
	frames, err := m.device.Capture(runCtx, CaptureConfig{
		Device:     m.cfg.Device,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
		FrameMs:    m.cfg.FrameMs,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open capture: %w", err)
	}

	out := make(chan Data)
	done := make(chan struct{})
	m.listening, m.out, m.cancel, m.done = true, out, cancel, done

	go func() {
		defer close(done)
		defer close(out)
		for frame := range frames {
			select {
			case out <- Data{Kind: KindAudio, Audio: frame}:
			case <-runCtx.Done():
				return
			}
		}
		m.setListening(false)
	}()
	return out, nil
}

func (m *Microphone) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.listening {
		m.mu.Unlock()
		return nil
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.setListening(false)
	return nil
}

func (m *Microphone) setListening(v bool) {
	m.mu.Lock()
	m.listening = v
	m.mu.Unlock()
}

// ReplayDevice feeds prerecorded PCM as capture frames, sized and paced
// like a real microphone. It stands in for hardware in tests and lets a
// deployment pipe a recording through the full voice path.
type ReplayDevice struct {
	// Source holds raw little-endian 16-bit PCM at whatever rate the
	// capture config asks for.
	Source io.Reader

	// Interval overrides the frame pacing. Zero paces frames at
	// FrameMs, matching real capture; negative emits without delay.
	Interval time.Duration
}

func (d *ReplayDevice) Name() string { return "replay" }

func (d *ReplayDevice) Available() bool { return d.Source != nil }

func (d *ReplayDevice) Capture(ctx context.Context, cfg CaptureConfig) (<-chan audio.AudioData, error) {
	if d.Source == nil {
		return nil, ErrNoCaptureDevice
	}
	frameBytes := cfg.SampleRate * cfg.Channels * 2 * cfg.FrameMs / 1000
	if frameBytes <= 0 {
		return nil, fmt.Errorf("replay: bad frame size for rate %d channels %d frame %dms",
			cfg.SampleRate, cfg.Channels, cfg.FrameMs)
	}
	pace := d.Interval
	if pace == 0 {
		pace = time.Duration(cfg.FrameMs) * time.Millisecond
	}

	out := make(chan audio.AudioData)
	go func() {
		defer close(out)
		for {
			buf := make([]byte, frameBytes)
			n, err := io.ReadFull(d.Source, buf)
			if n == 0 {
				return
			}
			// A short tail still goes out as a final partial frame.
			frame := audio.NewAudioData(buf[:n], cfg.SampleRate, cfg.Channels)
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
			if pace > 0 {
				select {
				case <-time.After(pace):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
