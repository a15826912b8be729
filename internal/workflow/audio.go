package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/attalus-io/vestibule/internal/components"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/types"
)

// vadFrameMs is the frame length one-shot audio is chopped into before
// feeding the voice activity detector.
const vadFrameMs = 30

// utteranceMode tells runAudioUtterance which front stages still apply.
// The streaming path has already gated and segmented by the time an
// utterance reaches the pipeline.
type utteranceMode struct {
	gated     bool
	segmented bool
}

// ProcessAudioInput drives the full pipeline from one audio payload:
// wake gate, VAD trimming, transcription, then the text stages.
func (e *Engine) ProcessAudioInput(ctx context.Context, frame audio.AudioData, req Request) types.IntentResult {
	start := time.Now()
	conv := e.sessions.Get(ctx, req.SessionID)
	if req.Trace != nil {
		req.Trace.SnapshotBefore(contextSnapshot(conv))
	}

	res := e.runAudioUtterance(ctx, conv, frame, req, utteranceMode{})
	e.finish(ctx, "audio", start, req, conv)
	return res
}

func (e *Engine) runAudioUtterance(ctx context.Context, conv *session.ConversationContext, frame audio.AudioData, req Request, mode utteranceMode) types.IntentResult {
	lang := conv.Language()

	var transcript, transcriptSource string
	if !mode.gated && e.enabled(config.StageVoiceTrigger) && !req.skipWakeWord() {
		if e.comps.VoiceTrigger == nil {
			return e.fail(req, config.StageVoiceTrigger, types.ErrKindComponentNotAvailable,
				lang, errors.New("voice trigger component not available"), time.Now())
		}
		t0 := time.Now()
		det, err := e.comps.VoiceTrigger.Detect(ctx, frame)
		if err != nil {
			return e.fail(req, config.StageVoiceTrigger, types.ErrKindVoiceTriggerFailed, lang, err, t0)
		}
		if det == nil {
			e.record(req.Trace, config.StageVoiceTrigger, t0, audioDescriptor(frame),
				map[string]any{"detected": false}, nil)
			return notAddressed()
		}
		e.record(req.Trace, config.StageVoiceTrigger, t0, audioDescriptor(frame), map[string]any{
			"detected":   true,
			"phrase":     det.Phrase,
			"confidence": det.Confidence,
			"command":    det.Command,
		}, nil)
		// A transcribing detector already heard the command; running
		// ASR again over the same payload would only repeat work.
		if det.Command != "" {
			transcript, transcriptSource = det.Command, config.StageVoiceTrigger
		}
	}

	if transcript == "" {
		audioIn := frame
		if !mode.segmented && e.enabled(config.StageVAD) {
			audioIn = e.segment(frame, req)
		}

		var failed *types.IntentResult
		transcript, failed = e.transcribe(ctx, audioIn, req, lang)
		if failed != nil {
			return *failed
		}
		if strings.TrimSpace(transcript) == "" {
			return noSpeech()
		}
		transcriptSource = config.StageASR
	}

	res := e.runTextStages(ctx, conv, transcript, req)
	setMeta(&res, "transcript", transcript)
	setMeta(&res, "transcript_source", transcriptSource)
	return res
}

// segment runs voice activity detection over a one-shot payload and
// keeps only the voiced part. Hearing no voice at all passes the payload
// through unchanged and lets the recognizer decide.
func (e *Engine) segment(blob audio.AudioData, req Request) audio.AudioData {
	t0 := time.Now()
	det := audio.NewDetector(e.cfg.VAD.DetectorConfig())

	var segs []audio.VoiceSegment
	for _, f := range splitFrames(blob, vadFrameMs) {
		if seg, ok := det.ProcessFrame(f); ok {
			segs = append(segs, seg)
		}
	}
	if seg, ok := det.Flush(); ok {
		segs = append(segs, seg)
	}

	if len(segs) == 0 {
		e.record(req.Trace, config.StageVAD, t0, audioDescriptor(blob),
			map[string]any{"segments": 0, "passthrough": true}, nil)
		return blob
	}

	var voiced time.Duration
	combined := make([]byte, 0, len(blob.Data))
	for _, seg := range segs {
		voiced += seg.Duration
		combined = append(combined, seg.Combined().Data...)
	}
	out := audio.NewAudioData(combined, blob.SampleRate, blob.Channels)
	e.record(req.Trace, config.StageVAD, t0, audioDescriptor(blob), map[string]any{
		"segments":  len(segs),
		"voiced_ms": float64(voiced.Microseconds()) / 1000,
	}, nil)
	return out
}

// transcribe runs the ASR stage. A non-nil second return is the
// short-circuit failure result.
func (e *Engine) transcribe(ctx context.Context, audioIn audio.AudioData, req Request, lang string) (string, *types.IntentResult) {
	if !e.enabled(config.StageASR) || e.comps.ASR == nil {
		res := e.fail(req, config.StageASR, types.ErrKindComponentNotAvailable,
			lang, errors.New("asr component not available"), time.Now())
		return "", &res
	}

	t0 := time.Now()
	result, err := e.comps.ASR.Transcribe(ctx, audioIn)
	if err != nil {
		res := e.fail(req, config.StageASR, asrErrorKind(err), lang, err, t0)
		return "", &res
	}
	e.record(req.Trace, config.StageASR, t0, audioDescriptor(audioIn), map[string]any{
		"text":       result.Text,
		"confidence": result.Confidence,
		"language":   result.Language,
	}, nil)
	if e.metrics != nil {
		e.metrics.ASRDuration.Record(ctx, time.Since(t0).Seconds())
	}
	return result.Text, nil
}

// asrErrorKind maps a transcription failure to its stable kind. The
// fallback chain flattens causes into one message, so rate and
// conversion problems are told apart by their text.
func asrErrorKind(err error) types.ErrorKind {
	switch {
	case strings.Contains(err.Error(), components.ErrSampleRateMismatch.Error()):
		return types.ErrKindSampleRateMismatch
	case errors.Is(err, audio.ErrUnsupportedChannels),
		strings.Contains(err.Error(), "resample"):
		return types.ErrKindResamplingFailed
	default:
		return types.ErrKindTranscriptionFailed
	}
}

// splitFrames chops a payload into frameMs-sized frames aligned to whole
// samples. The final frame keeps whatever remains.
func splitFrames(blob audio.AudioData, frameMs int) []audio.AudioData {
	sampleBytes := 2 * blob.Channels
	if sampleBytes <= 0 || blob.SampleRate <= 0 || len(blob.Data) == 0 {
		return []audio.AudioData{blob}
	}
	frameBytes := blob.SampleRate * sampleBytes * frameMs / 1000
	frameBytes -= frameBytes % sampleBytes
	if frameBytes <= 0 {
		return []audio.AudioData{blob}
	}

	frames := make([]audio.AudioData, 0, len(blob.Data)/frameBytes+1)
	for off := 0; off < len(blob.Data); off += frameBytes {
		end := off + frameBytes
		if end > len(blob.Data) {
			end = len(blob.Data)
		}
		frames = append(frames, audio.NewAudioData(blob.Data[off:end], blob.SampleRate, blob.Channels))
	}
	return frames
}
