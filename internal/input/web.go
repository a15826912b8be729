package input

import (
	"context"
	"sync"

	"github.com/attalus-io/vestibule/internal/config"
)

// webPushBuffer absorbs short pipeline stalls so HTTP and WebSocket
// handlers are not held up by a busy consumer.
const webPushBuffer = 16

// Web is the source the web API feeds. Handlers call Push with text
// commands or decoded PCM; the source relays them to the manager while
// it is listening and rejects them with ErrNotListening otherwise.
type Web struct {
	mu        sync.Mutex
	listening bool
	in        chan Data
	out       chan Data
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewWeb() *Web {
	return &Web{}
}

func (w *Web) Name() string { return config.InputWeb }

// Type is mixed: the web API pushes both text commands and audio.
func (w *Web) Type() Kind { return KindMixed }

func (w *Web) Available() bool { return true }

func (w *Web) Listening() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.listening
}

func (w *Web) Settings() map[string]any { return nil }

func (w *Web) Listen(ctx context.Context) (<-chan Data, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listening {
		return w.out, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	in := make(chan Data, webPushBuffer)
	out := make(chan Data)
	done := make(chan struct{})
	w.listening, w.in, w.out = true, in, out
	w.runCtx, w.cancel, w.done = runCtx, cancel, done

	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case item := <-in:
				select {
				case out <- item:
				case <-runCtx.Done():
					return
				}
			case <-runCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (w *Web) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.listening {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	w.listening = false
	w.mu.Unlock()
	return nil
}

// Push hands one item from the web layer to the pipeline. It blocks only
// when the push buffer is full, and fails once the source stops.
func (w *Web) Push(ctx context.Context, item Data) error {
	w.mu.Lock()
	if !w.listening {
		w.mu.Unlock()
		return ErrNotListening
	}
	in, runCtx := w.in, w.runCtx
	w.mu.Unlock()

	select {
	case in <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return ErrNotListening
	}
}
