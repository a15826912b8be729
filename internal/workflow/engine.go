// Package workflow runs the staged voice pipeline: wake-word gating,
// voice activity detection, transcription, text normalization, intent
// recognition and execution, optional LLM enrichment, and synthesis with
// playback. Stages are individually switchable; the engine follows the
// per-stage flags of the unified voice assistant workflow and degrades
// to a failure result when an enabled stage has no live component.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/attalus-io/vestibule/internal/components"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/observe"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/provider/voicetrigger"
	"github.com/attalus-io/vestibule/pkg/types"
)

// The engine consumes each component through the narrow interface its
// stage needs, so a deployment can wire substitutes and tests can script
// stages. The concrete components satisfy these.
type (
	// WakeDetector is the voice_trigger stage.
	WakeDetector interface {
		Detect(ctx context.Context, frame audio.AudioData) (*voicetrigger.Detection, error)
	}

	// Transcriber is the asr stage.
	Transcriber interface {
		Transcribe(ctx context.Context, frame audio.AudioData) (asr.Result, error)
	}

	// Normalizer is the text_processing stage.
	Normalizer interface {
		Normalize(text, lang string) string
	}

	// Recognizer is the nlu stage.
	Recognizer interface {
		Recognize(ctx context.Context, req nlu.Request) (types.Intent, error)
	}

	// Executor is the intent_execution stage.
	Executor interface {
		Execute(ctx context.Context, in types.Intent) types.IntentResult
	}

	// Enricher is the llm stage.
	Enricher interface {
		Enrich(ctx context.Context, conv *session.ConversationContext, text, lang string) (string, error)
	}

	// Player is the audio_output stage.
	Player interface {
		Play(ctx context.Context, frame audio.AudioData) error
	}
)

var (
	_ WakeDetector = (*components.VoiceTrigger)(nil)
	_ Transcriber  = (*components.ASR)(nil)
	_ Normalizer   = (*components.TextProcessor)(nil)
	_ Recognizer   = (*components.NLU)(nil)
	_ Executor     = (*components.IntentSystem)(nil)
	_ Enricher     = (*components.LLM)(nil)
	_ Player       = (*components.Audio)(nil)
)

// Components carries the live pipeline components. A nil field means the
// component is disabled or failed to initialize; requests that reach its
// stage fail with component_not_available (or skip it, for best-effort
// stages).
type Components struct {
	VoiceTrigger  WakeDetector
	Audio         Player
	ASR           Transcriber
	TextProcessor Normalizer
	NLU           Recognizer
	IntentSystem  Executor
	LLM           Enricher
	TTS           components.Synthesizer
}

// Engine executes the unified voice assistant pipeline.
type Engine struct {
	cfg       *config.Config
	stages    *config.WorkflowConfig
	sessions  *session.Manager
	comps     Components
	metrics   *observe.Metrics
	collector *observe.Collector
}

// Option adjusts the engine.
type Option func(*Engine)

// WithMetrics wires the OTel instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCollector wires the process-wide stats collector.
func WithCollector(c *observe.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

func NewEngine(cfg *config.Config, sessions *session.Manager, comps Components, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("workflow: nil config")
	}
	if sessions == nil {
		return nil, errors.New("workflow: nil session manager")
	}
	stages := cfg.Workflows.UnifiedVoiceAssistant
	if stages == nil {
		return nil, errors.New("workflow: unified_voice_assistant workflow not configured")
	}

	e := &Engine{cfg: cfg, stages: stages, sessions: sessions, comps: comps}
	for _, opt := range opts {
		opt(e)
	}

	// Config validation already rejected stage flags whose component
	// toggle is off; here a component may still be missing because its
	// init failed. That degrades per request instead of aborting.
	for _, stage := range config.PipelineStages {
		if stages.StageEnabled(stage) && !e.stageLive(stage) {
			slog.Warn("pipeline stage enabled without a live component",
				"stage", stage, "component", config.StageComponent[stage])
		}
	}
	return e, nil
}

func (e *Engine) enabled(stage string) bool {
	return e.stages.StageEnabled(stage)
}

func (e *Engine) stageLive(stage string) bool {
	switch stage {
	case config.StageVoiceTrigger:
		return e.comps.VoiceTrigger != nil
	case config.StageVAD, config.StageAudioOutput:
		return e.comps.Audio != nil
	case config.StageASR:
		return e.comps.ASR != nil
	case config.StageTextProcessing:
		return e.comps.TextProcessor != nil
	case config.StageNLU:
		return e.comps.NLU != nil
	case config.StageIntentExecution:
		return e.comps.IntentSystem != nil
	case config.StageLLM:
		return e.comps.LLM != nil
	case config.StageTTS:
		return e.comps.TTS != nil
	}
	return false
}

// Request carries the per-call parameters shared by all entry points.
type Request struct {
	// SessionID scopes conversation state; empty would create an
	// anonymous shared session, so callers always set it.
	SessionID string

	// WantsAudio asks for synthesis and playback of the spoken reply.
	WantsAudio bool

	// ClientContext holds client options such as skip_wake_word.
	ClientContext map[string]any

	// Trace, when set, records every executed stage.
	Trace *Trace
}

func (r Request) skipWakeWord() bool {
	v, ok := r.ClientContext["skip_wake_word"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// record is the single trace hook every stage goes through.
func (e *Engine) record(tr *Trace, stage string, start time.Time, input, output any, md map[string]any) {
	if tr == nil {
		return
	}
	tr.Record(stage, input, output, md, time.Since(start))
}

// fail logs a short-circuiting stage failure, records it, and builds the
// failure result the caller returns as-is.
func (e *Engine) fail(req Request, stage string, kind types.ErrorKind, lang string, err error, start time.Time) types.IntentResult {
	slog.Error("pipeline stage failed", "stage", stage, "kind", kind, "session", req.SessionID, "error", err)
	md := map[string]any{"failed": true, "kind": string(kind)}
	if err != nil {
		md["error"] = err.Error()
	}
	e.record(req.Trace, stage, start, nil, nil, md)

	res := types.ErrorResult(kind, failureText(kind, lang))
	res.Metadata["stage"] = stage
	return res
}

// finish closes out one request: after-snapshot and pipeline latency.
func (e *Engine) finish(ctx context.Context, entry string, start time.Time, req Request, conv *session.ConversationContext) {
	if req.Trace != nil {
		req.Trace.SnapshotAfter(contextSnapshot(conv))
	}
	if e.metrics != nil {
		e.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("entry", entry)))
	}
}

// notAddressed is the outcome of audio that never passed the wake gate.
// Nothing failed; the utterance simply was not for the assistant.
func notAddressed() types.IntentResult {
	return types.IntentResult{
		Success:   true,
		Metadata:  map[string]any{"wake_word_detected": false},
		Timestamp: time.Now(),
	}
}

// noSpeech is the outcome of audio in which the recognizer heard nothing.
func noSpeech() types.IntentResult {
	return types.IntentResult{
		Success:   true,
		Metadata:  map[string]any{"no_speech": true},
		Timestamp: time.Now(),
	}
}

func setMeta(res *types.IntentResult, key string, value any) {
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata[key] = value
}

// audioDescriptor summarizes a frame for traces; raw payloads are never
// recorded.
func audioDescriptor(frame audio.AudioData) map[string]any {
	return map[string]any{
		"bytes":       len(frame.Data),
		"sample_rate": frame.SampleRate,
		"channels":    frame.Channels,
		"duration_ms": float64(frame.Duration().Microseconds()) / 1000,
	}
}

// contextSnapshot captures the conversation fields the trace evolution
// view compares.
func contextSnapshot(conv *session.ConversationContext) map[string]any {
	if conv == nil {
		return nil
	}
	return map[string]any{
		"session_id":     conv.SessionID(),
		"language":       conv.Language(),
		"history_turns":  len(conv.History()),
		"active_actions": conv.ActionCount(),
		"current_domain": conv.CurrentDomain(),
		"recent_intents": fmt.Sprint(conv.RecentIntents()),
	}
}

// failureText picks the user-facing message for a short-circuited stage.
func failureText(kind types.ErrorKind, lang string) string {
	type msg struct{ ru, en string }
	table := map[types.ErrorKind]msg{
		types.ErrKindComponentNotAvailable: {
			ru: "Извините, эта функция сейчас недоступна.",
			en: "Sorry, that capability is not available right now.",
		},
		types.ErrKindVoiceTriggerFailed: {
			ru: "Извините, не удалось обработать аудио.",
			en: "Sorry, I could not process the audio.",
		},
		types.ErrKindTranscriptionFailed: {
			ru: "Извините, я не расслышала. Повторите, пожалуйста.",
			en: "Sorry, I could not make that out. Please say it again.",
		},
		types.ErrKindSampleRateMismatch: {
			ru: "Извините, формат аудио не поддерживается.",
			en: "Sorry, the audio format is not supported.",
		},
		types.ErrKindResamplingFailed: {
			ru: "Извините, не удалось преобразовать аудио.",
			en: "Sorry, the audio could not be converted.",
		},
		types.ErrKindTTSFailed: {
			ru: "Ответ готов, но озвучить его не получилось.",
			en: "The reply is ready, but speaking it failed.",
		},
	}
	m, ok := table[kind]
	if !ok {
		m = msg{
			ru: "Извините, произошла ошибка при обработке запроса.",
			en: "Sorry, something went wrong while handling the request.",
		}
	}
	if lang == "en" {
		return m.en
	}
	return m.ru
}
