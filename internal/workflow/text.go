package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/attalus-io/vestibule/internal/components"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
	"github.com/attalus-io/vestibule/pkg/types"
)

// generalIntent is the catch-all conversation intent the pipeline falls
// back to when recognition is disabled or inconclusive.
const generalIntent = "conversation.general"

// ProcessTextInput runs the pipeline from already-textual input: text
// processing, recognition, execution, enrichment, and the audio tail.
// Voice trigger, VAD, and transcription are skipped.
func (e *Engine) ProcessTextInput(ctx context.Context, text string, req Request) types.IntentResult {
	start := time.Now()
	conv := e.sessions.Get(ctx, req.SessionID)
	if req.Trace != nil {
		req.Trace.SnapshotBefore(contextSnapshot(conv))
	}

	res := e.runTextStages(ctx, conv, text, req)
	e.finish(ctx, "text", start, req, conv)
	return res
}

// runTextStages is the shared back half of every entry point: transcript
// in, executed result out.
func (e *Engine) runTextStages(ctx context.Context, conv *session.ConversationContext, transcript string, req Request) types.IntentResult {
	lang := conv.Language()

	normalized := transcript
	if e.enabled(config.StageTextProcessing) && e.comps.TextProcessor != nil {
		t0 := time.Now()
		normalized = e.comps.TextProcessor.Normalize(transcript, lang)
		e.record(req.Trace, config.StageTextProcessing, t0, transcript, normalized, nil)
	}

	intent := e.recognize(ctx, normalized, transcript, req, lang)
	res := e.execute(ctx, intent, req)
	res = e.enrich(ctx, conv, intent, res, req)
	e.speak(ctx, &res, req, lang)
	return res
}

// recognize maps the normalized utterance to an intent. With recognition
// disabled the pipeline degrades to direct conversation at full
// confidence; the original transcript always survives as RawText so
// handlers parse what was actually said.
func (e *Engine) recognize(ctx context.Context, normalized, raw string, req Request, lang string) types.Intent {
	if !e.enabled(config.StageNLU) || e.comps.NLU == nil {
		return types.NewIntent(generalIntent, raw, req.SessionID, 1.0)
	}

	t0 := time.Now()
	in, err := e.comps.NLU.Recognize(ctx, nlu.Request{
		Text:      normalized,
		SessionID: req.SessionID,
		Language:  lang,
	})
	if err != nil {
		slog.Warn("intent recognition failed, treating as conversation", "error", err)
		in = types.NewIntent(generalIntent, raw, req.SessionID, 0)
	}
	in.RawText = raw
	in.SessionID = req.SessionID
	e.record(req.Trace, config.StageNLU, t0, normalized, map[string]any{
		"intent":     in.Name,
		"confidence": in.Confidence,
	}, nil)
	return in
}

// execute hands the intent to the orchestrator. With execution disabled
// the pipeline is transcription-only and echoes the utterance.
func (e *Engine) execute(ctx context.Context, in types.Intent, req Request) types.IntentResult {
	if !e.enabled(config.StageIntentExecution) || e.comps.IntentSystem == nil {
		return types.IntentResult{
			Text:       in.RawText,
			Success:    true,
			Confidence: in.Confidence,
			Metadata:   map[string]any{"intent_execution_skipped": true},
			Timestamp:  time.Now(),
		}
	}

	t0 := time.Now()
	res := e.comps.IntentSystem.Execute(ctx, in)
	e.record(req.Trace, config.StageIntentExecution, t0,
		map[string]any{"intent": in.Name, "entities": in.Entities},
		map[string]any{"success": res.Success, "text": res.Text, "error": string(res.Error)},
		nil)
	return res
}

// enrich rewrites weakly-recognized small talk through the LLM. The
// recognizer's below-threshold fallback arrives at full confidence, so
// the weak-match signal is the fallback entity, not the confidence field.
// Anything going wrong keeps the handler's own reply.
func (e *Engine) enrich(ctx context.Context, conv *session.ConversationContext, in types.Intent, res types.IntentResult, req Request) types.IntentResult {
	if !e.enabled(config.StageLLM) || e.comps.LLM == nil || !res.Success {
		return res
	}
	if in.Name != generalIntent {
		return res
	}
	_, fellBack := in.Entities[components.NLUFallbackEntity]
	if !fellBack && in.Confidence >= e.cfg.NLU.ConfidenceThreshold {
		return res
	}

	t0 := time.Now()
	text, err := e.comps.LLM.Enrich(ctx, conv, in.RawText, conv.Language())
	if err != nil {
		slog.Warn("llm enrichment failed, keeping handler reply", "error", err)
		e.record(req.Trace, config.StageLLM, t0, in.RawText, nil,
			map[string]any{"error": err.Error()})
		return res
	}
	if text != "" {
		res.Text = text
		setMeta(&res, "llm_enriched", true)
	}
	e.record(req.Trace, config.StageLLM, t0, in.RawText, text, nil)
	return res
}

// speak synthesizes and queues the reply when the caller wants audio and
// the handler allows it. Synthesis failure flips the result to tts_failed
// while keeping the text for display; a playback queue error only
// annotates, the reply itself already succeeded.
func (e *Engine) speak(ctx context.Context, res *types.IntentResult, req Request, lang string) {
	if !req.WantsAudio || !res.ShouldSpeak || res.Text == "" {
		return
	}
	if !e.enabled(config.StageTTS) || e.comps.TTS == nil {
		return
	}

	t0 := time.Now()
	frame, err := e.comps.TTS.Synthesize(ctx, res.Text, tts.Options{Language: lang})
	if err != nil {
		res.Success = false
		res.Error = types.ErrKindTTSFailed
		setMeta(res, "tts_error", err.Error())
		e.record(req.Trace, config.StageTTS, t0, res.Text, nil,
			map[string]any{"error": err.Error()})
		return
	}
	e.record(req.Trace, config.StageTTS, t0, res.Text, audioDescriptor(frame), nil)
	if e.metrics != nil {
		e.metrics.TTSDuration.Record(ctx, time.Since(t0).Seconds())
	}

	// The console synthesizer produces no payload; there is nothing to
	// queue.
	if len(frame.Data) == 0 {
		return
	}
	if !e.enabled(config.StageAudioOutput) || e.comps.Audio == nil {
		return
	}

	t1 := time.Now()
	if err := e.comps.Audio.Play(ctx, frame); err != nil {
		slog.Warn("playback enqueue failed", "session", req.SessionID, "error", err)
		setMeta(res, "playback_error", err.Error())
		e.record(req.Trace, config.StageAudioOutput, t1, audioDescriptor(frame), nil,
			map[string]any{"error": err.Error()})
		return
	}
	e.record(req.Trace, config.StageAudioOutput, t1, audioDescriptor(frame), "queued", nil)
}
