package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/types"
)

// ProcessAudioStream runs the continuous microphone mode: frames flow
// in, results flow out. While the wake gate is closed every frame goes
// to the trigger detector; after a wake the detector's own command (if
// it transcribed one) executes directly, otherwise VAD collects the
// following utterance. Each finished utterance runs the pipeline and
// re-arms the gate. The output channel closes when the input closes or
// ctx ends; a pending voice segment is flushed on input close.
func (e *Engine) ProcessAudioStream(ctx context.Context, frames <-chan audio.AudioData, req Request) <-chan types.IntentResult {
	out := make(chan types.IntentResult)

	go func() {
		defer close(out)

		emit := func(res types.IntentResult) bool {
			select {
			case out <- res:
				return true
			case <-ctx.Done():
				return false
			}
		}

		gateNeeded := e.enabled(config.StageVoiceTrigger) && !req.skipWakeWord()
		if gateNeeded && e.comps.VoiceTrigger == nil {
			conv := e.sessions.Get(ctx, req.SessionID)
			emit(e.fail(req, config.StageVoiceTrigger, types.ErrKindComponentNotAvailable,
				conv.Language(), errors.New("voice trigger component not available"), time.Now()))
			return
		}

		gateOpen := !gateNeeded
		vadOn := e.enabled(config.StageVAD)
		vad := audio.NewDetector(e.cfg.VAD.DetectorConfig())

		// utter executes one complete utterance and re-arms the gate.
		// False means the consumer is gone.
		utter := func(a audio.AudioData) bool {
			start := time.Now()
			conv := e.sessions.Get(ctx, req.SessionID)
			res := e.runAudioUtterance(ctx, conv, a, req, utteranceMode{gated: true, segmented: true})
			e.finish(ctx, "stream", start, req, conv)
			if !emit(res) {
				return false
			}
			if gateNeeded {
				gateOpen = false
				vad.Reset()
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					if gateOpen && vadOn {
						if seg, has := vad.Flush(); has {
							utter(seg.Combined())
						}
					}
					return
				}

				if !gateOpen {
					hit, err := e.comps.VoiceTrigger.Detect(ctx, frame)
					if err != nil {
						slog.Warn("voice trigger failed on stream frame", "session", req.SessionID, "error", err)
						continue
					}
					if hit == nil {
						continue
					}
					if hit.Command != "" {
						// The detector transcribed a complete command
						// behind the wake phrase; no utterance follows.
						start := time.Now()
						conv := e.sessions.Get(ctx, req.SessionID)
						res := e.runTextStages(ctx, conv, hit.Command, req)
						setMeta(&res, "transcript", hit.Command)
						setMeta(&res, "transcript_source", config.StageVoiceTrigger)
						e.finish(ctx, "stream", start, req, conv)
						if !emit(res) {
							return
						}
						continue
					}
					gateOpen = true
					vad.Reset()
					continue
				}

				if !vadOn {
					// Direct mode: callers push one utterance per frame.
					if !utter(frame) {
						return
					}
					continue
				}
				if seg, has := vad.ProcessFrame(frame); has {
					if !utter(seg.Combined()) {
						return
					}
				}
			}
		}
	}()
	return out
}
