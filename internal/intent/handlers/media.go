package handlers

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/attalus-io/vestibule/internal/intent"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/types"
)

//go:embed media_donation.json
var mediaDonationJSON []byte

// playMusicAction names the active action a playing session carries.
const playMusicAction = "play_music"

// defaultVolume is the starting playback volume in percent.
const defaultVolume = 50

// playback is the simulated player state for one session.
type playback struct {
	track     string
	paused    bool
	volume    int
	startedAt time.Time
}

// Media is a demo player in the audio domain. It tracks per-session
// playback state without producing sound; the point is exercising intent
// routing, contextual commands, and action bookkeeping end to end.
type Media struct {
	don *donation.Donation

	mu       sync.Mutex
	sessions map[string]*playback
}

var (
	_ intent.Handler             = (*Media)(nil)
	_ intent.MethodRouter        = (*Media)(nil)
	_ intent.DonationProvider    = (*Media)(nil)
	_ intent.ContextualCommander = (*Media)(nil)
)

// NewMedia builds the media handler.
func NewMedia() *Media {
	return &Media{
		don:      mustDonation(mediaDonationJSON),
		sessions: make(map[string]*playback),
	}
}

func (h *Media) Name() string { return "media" }

func (h *Media) Patterns() []string {
	return []string{"audio.play", "audio.stop", "audio.pause", "audio.resume", "audio.volume", "audio"}
}

func (h *Media) CanHandle(types.Intent) bool { return true }

func (h *Media) Donation() *donation.Donation { return h.don }

func (h *Media) ContextualCommands() []string {
	return []string{"stop", "pause", "resume", "continue", "volume"}
}

func (h *Media) Execute(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	switch in.Action {
	case "play":
		return h.play(in, conv), nil
	case "stop":
		return h.stop(in, conv), nil
	case "pause":
		return h.pause(in, conv), nil
	case "resume", "continue":
		return h.resume(in, conv), nil
	case "volume":
		return h.setVolume(in, conv), nil
	default:
		lang := conv.Language()
		return types.ErrorResult(types.ErrKindExecutionError,
			say(lang, "Я не умею так управлять музыкой.", "I can't do that with playback.")), nil
	}
}

func (h *Media) ExecuteMethod(ctx context.Context, method string, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	switch method {
	case "play":
		return h.play(in, conv), nil
	case "stop":
		return h.stop(in, conv), nil
	case "pause":
		return h.pause(in, conv), nil
	case "resume":
		return h.resume(in, conv), nil
	case "volume":
		return h.setVolume(in, conv), nil
	default:
		return h.Execute(ctx, in, conv)
	}
}

// play starts (or replaces) playback and declares the play_music action.
func (h *Media) play(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()
	track := trackName(in)

	h.mu.Lock()
	p := h.sessions[in.SessionID]
	if p == nil {
		p = &playback{volume: defaultVolume}
		h.sessions[in.SessionID] = p
	}
	p.track = track
	p.paused = false
	p.startedAt = time.Now()
	h.mu.Unlock()

	var text string
	if track == "" {
		text = say(lang, "Включаю музыку.", "Playing music.")
	} else {
		text = say(lang, fmt.Sprintf("Включаю: %s.", track), fmt.Sprintf("Playing %s.", track))
	}

	res := types.SuccessResult(text, in.Confidence)
	if track != "" {
		res.Metadata["track"] = track
	}
	res.ActionMetadata = map[string]any{"action_name": playMusicAction}
	return res
}

// stop ends playback and completes the play_music action.
func (h *Media) stop(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()

	h.mu.Lock()
	_, playing := h.sessions[in.SessionID]
	delete(h.sessions, in.SessionID)
	h.mu.Unlock()

	if !playing {
		return types.ErrorResult(types.ErrKindNoActiveActions,
			say(lang, "Сейчас ничего не играет.", "Nothing is playing right now."))
	}

	res := types.SuccessResult(say(lang, "Останавливаю.", "Stopping."), in.Confidence)
	res.ActionMetadata = map[string]any{"completed_action": playMusicAction}
	return res
}

func (h *Media) pause(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()

	h.mu.Lock()
	p := h.sessions[in.SessionID]
	if p != nil {
		p.paused = true
	}
	h.mu.Unlock()

	if p == nil {
		return types.ErrorResult(types.ErrKindNoActiveActions,
			say(lang, "Сейчас ничего не играет.", "Nothing is playing right now."))
	}
	return types.SuccessResult(say(lang, "Пауза.", "Paused."), in.Confidence)
}

func (h *Media) resume(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()

	h.mu.Lock()
	p := h.sessions[in.SessionID]
	resumed := p != nil && p.paused
	if resumed {
		p.paused = false
	}
	h.mu.Unlock()

	if p == nil {
		return types.ErrorResult(types.ErrKindNoActiveActions,
			say(lang, "Сейчас ничего не играет.", "Nothing is playing right now."))
	}
	if !resumed {
		return types.SuccessResult(say(lang, "Музыка уже играет.", "Music is already playing."), in.Confidence)
	}
	return types.SuccessResult(say(lang, "Продолжаю.", "Resuming."), in.Confidence)
}

// setVolume adjusts the playback volume, 0 to 100 percent.
func (h *Media) setVolume(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()

	level, ok := volumeLevel(in)
	if !ok {
		return types.ErrorResult(types.ErrKindExecutionError,
			say(lang, "Не поняла, какую громкость поставить.", "I couldn't tell what volume you want."))
	}

	h.mu.Lock()
	p := h.sessions[in.SessionID]
	if p != nil {
		p.volume = level
	}
	h.mu.Unlock()

	if p == nil {
		return types.ErrorResult(types.ErrKindNoActiveActions,
			say(lang, "Сейчас ничего не играет.", "Nothing is playing right now."))
	}

	res := types.SuccessResult(
		say(lang, fmt.Sprintf("Громкость %d процентов.", level), fmt.Sprintf("Volume %d percent.", level)),
		in.Confidence)
	res.Metadata["volume"] = level
	return res
}

// Playing reports the session's current playback state. Used by tests and
// the status endpoint.
func (h *Media) Playing(sessionID string) (track string, paused bool, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.sessions[sessionID]
	if !ok {
		return "", false, false
	}
	return p.track, p.paused, true
}

// trackName pulls the requested track from the donated entities.
func trackName(in types.Intent) string {
	for _, key := range []string{"track", "query"} {
		if s, ok := in.Entities[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// volumeLevel extracts a 0..100 volume from the entities or the utterance.
func volumeLevel(in types.Intent) (int, bool) {
	switch v := in.Entities["level"].(type) {
	case float64:
		return clampVolume(int(v))
	case int:
		return clampVolume(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return clampVolume(n)
		}
	}
	if m := bareNumberRe.FindStringSubmatch(in.RawText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return clampVolume(n)
		}
	}
	return 0, false
}

func clampVolume(n int) (int, bool) {
	if n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}
