// Package types defines the shared types used across all Vestibule packages.
//
// These types form the lingua franca between input sources, the workflow
// engine, intent handlers, and providers. They are intentionally minimal —
// each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Intent is a recognized user intention, produced by the NLU layer and
// consumed by the intent orchestrator. Intents are immutable once recognized.
type Intent struct {
	// Name is the full intent name in "domain.action" form (e.g., "timer.set").
	Name string

	// Domain is the part before the first dot. The pseudo-domain "contextual"
	// marks a command whose target must be resolved against active actions
	// (e.g., a bare "stop").
	Domain string

	// Action is the part after the first dot.
	Action string

	// Entities holds extracted parameters (durations, choices, free text).
	Entities map[string]any

	// Confidence is the recognizer's confidence in [0, 1].
	Confidence float64

	// RawText is the original utterance the intent was recognized from.
	RawText string

	// SessionID identifies the conversation this intent belongs to.
	SessionID string

	// Timestamp is when the intent was recognized.
	Timestamp time.Time
}

// NewIntent builds an Intent from a "domain.action" name, deriving Domain and
// Action. Names without a dot become "<name>.<name>" with the whole string as
// domain, which keeps registry domain fallback working for degenerate input.
func NewIntent(name, rawText, sessionID string, confidence float64) Intent {
	domain, action := SplitIntentName(name)
	return Intent{
		Name:       name,
		Domain:     domain,
		Action:     action,
		Entities:   map[string]any{},
		Confidence: confidence,
		RawText:    rawText,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
	}
}

// SplitIntentName splits "domain.action" into its parts. Only the first dot
// separates; "media.playlist.next" yields ("media", "playlist.next").
func SplitIntentName(name string) (domain, action string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, name
}

// IntentResult is the outcome of executing an intent. Handlers return it; the
// orchestrator records it in conversation history and the workflow engine
// turns it into speech or an API response.
type IntentResult struct {
	// Text is the user-facing response in the session language.
	Text string

	// ShouldSpeak indicates whether Text should be synthesized when the
	// request wants audio output.
	ShouldSpeak bool

	// Success reports whether the intent was executed.
	Success bool

	// Error is the stable error kind for programmatic handling. Empty on
	// success.
	Error ErrorKind

	// Confidence is carried over from the intent (or set by the handler).
	Confidence float64

	// Metadata holds structured details (disambiguation prompts, resolution
	// info, handler extras).
	Metadata map[string]any

	// Timestamp is when the result was produced.
	Timestamp time.Time

	// ActionMetadata describes a fire-and-forget action the handler started,
	// if any (used for contextual command tracking).
	ActionMetadata map[string]any
}

// Success builds a successful spoken result.
func SuccessResult(text string, confidence float64) IntentResult {
	return IntentResult{
		Text:        text,
		ShouldSpeak: true,
		Success:     true,
		Confidence:  confidence,
		Metadata:    map[string]any{},
		Timestamp:   time.Now(),
	}
}

// ErrorResult builds a failed result with a stable kind and a user-facing
// message.
func ErrorResult(kind ErrorKind, text string) IntentResult {
	return IntentResult{
		Text:        text,
		ShouldSpeak: true,
		Success:     false,
		Error:       kind,
		Metadata:    map[string]any{},
		Timestamp:   time.Now(),
	}
}

// ErrorKind is a stable, machine-readable failure category. Kinds, not
// classes: callers branch on the string, user-facing text travels separately.
type ErrorKind string

const (
	// ErrKindConfigurationInvalid marks startup-time configuration failures.
	ErrKindConfigurationInvalid ErrorKind = "configuration_invalid"

	// ErrKindComponentNotAvailable marks a missing runtime dependency
	// (audio device, required component).
	ErrKindComponentNotAvailable ErrorKind = "component_not_available"

	// ErrKindNoHandler means no handler pattern matched the intent.
	ErrKindNoHandler ErrorKind = "no_handler"

	// ErrKindHandlerUnavailable means the matched handler declined the intent.
	ErrKindHandlerUnavailable ErrorKind = "handler_unavailable"

	// ErrKindNoActiveActions means a contextual command arrived with nothing
	// running to apply it to.
	ErrKindNoActiveActions ErrorKind = "no_active_actions"

	// ErrKindNoCapableHandlers means active actions exist but none of their
	// handlers support the contextual command.
	ErrKindNoCapableHandlers ErrorKind = "no_capable_handlers"

	// ErrKindAmbiguousTarget means contextual resolution could not pick a
	// single target.
	ErrKindAmbiguousTarget ErrorKind = "ambiguous_target"

	// ErrKindRequiresConfirmation means resolution needs a user decision
	// before anything is executed.
	ErrKindRequiresConfirmation ErrorKind = "requires_confirmation"

	// ErrKindResamplingFailed marks an audio conversion failure.
	ErrKindResamplingFailed ErrorKind = "resampling_failed"

	// ErrKindSampleRateMismatch marks an unresolvable rate conflict
	// (resampling disabled but rates differ).
	ErrKindSampleRateMismatch ErrorKind = "sample_rate_mismatch"

	// ErrKindTranscriptionFailed marks an ASR provider failure.
	ErrKindTranscriptionFailed ErrorKind = "transcription_failed"

	// ErrKindTTSFailed marks a synthesis failure.
	ErrKindTTSFailed ErrorKind = "tts_failed"

	// ErrKindVoiceTriggerFailed marks a wake-word detection failure.
	ErrKindVoiceTriggerFailed ErrorKind = "voice_trigger_failed"

	// ErrKindExecutionError is the catch-all for handler exceptions.
	ErrKindExecutionError ErrorKind = "execution_error"

	// ErrKindTraceOverflow is recorded in trace metadata when recording caps
	// are exceeded. Never surfaced to callers.
	ErrKindTraceOverflow ErrorKind = "trace_overflow"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string
}
