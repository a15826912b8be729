package handlers

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/attalus-io/vestibule/internal/intent"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/internal/timers"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/types"
)

//go:embed timer_donation.json
var timerDonationJSON []byte

// maxTimerDuration caps how far out a timer may be set.
const maxTimerDuration = 24 * time.Hour

// Announcer delivers unsolicited speech to a session, used when a timer
// fires. The app wires this to synthesis and playback; without one, firings
// are only logged.
type Announcer interface {
	Announce(ctx context.Context, sessionID, text string)
}

// timerEntry tracks one scheduled timer and the session that owns it.
type timerEntry struct {
	sessionID  string
	actionName string
	duration   time.Duration
	createdAt  time.Time
	expiresAt  time.Time
	conv       *session.ConversationContext
}

// Timer sets, cancels, and lists countdown timers. Each running timer is
// also a fire-and-forget action on its session, so bare commands like
// "отмени" can resolve to it.
type Timer struct {
	timers    *timers.Manager
	announcer Announcer
	don       *donation.Donation

	mu     sync.Mutex
	active map[string]timerEntry // manager timer id -> entry
}

var (
	_ intent.Handler             = (*Timer)(nil)
	_ intent.MethodRouter        = (*Timer)(nil)
	_ intent.DonationProvider    = (*Timer)(nil)
	_ intent.ContextualCommander = (*Timer)(nil)
)

// NewTimer builds the timer handler on top of a timer manager.
func NewTimer(tm *timers.Manager) *Timer {
	return &Timer{
		timers: tm,
		don:    mustDonation(timerDonationJSON),
		active: make(map[string]timerEntry),
	}
}

// SetAnnouncer wires the speech path used when a timer fires.
func (h *Timer) SetAnnouncer(a Announcer) { h.announcer = a }

func (h *Timer) Name() string { return "timer" }

func (h *Timer) Patterns() []string {
	return []string{"timer.set", "timer.cancel", "timer.list", "timer"}
}

func (h *Timer) CanHandle(types.Intent) bool { return true }

func (h *Timer) Donation() *donation.Donation { return h.don }

// ContextualCommands lists the bare commands a running timer competes for.
func (h *Timer) ContextualCommands() []string { return []string{"stop", "cancel"} }

func (h *Timer) Execute(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	switch in.Action {
	case "set":
		return h.set(ctx, in, conv)
	case "cancel", "stop":
		return h.cancel(in, conv), nil
	case "list", "remaining", "status":
		return h.list(in, conv), nil
	default:
		lang := conv.Language()
		return types.ErrorResult(types.ErrKindExecutionError,
			say(lang, "Я не умею так работать с таймерами.", "I can't do that with timers.")), nil
	}
}

func (h *Timer) ExecuteMethod(ctx context.Context, method string, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	switch method {
	case "set":
		return h.set(ctx, in, conv)
	case "cancel":
		return h.cancel(in, conv), nil
	case "list":
		return h.list(in, conv), nil
	default:
		return h.Execute(ctx, in, conv)
	}
}

// set schedules a one-shot timer and declares it as an active action.
func (h *Timer) set(_ context.Context, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	lang := conv.Language()

	d, err := parseTimerDuration(in)
	if err != nil {
		return types.ErrorResult(types.ErrKindExecutionError,
			say(lang, "Не поняла, на сколько поставить таймер.", "I couldn't tell how long the timer should be.")), nil
	}
	if d <= 0 || d > maxTimerDuration {
		return types.ErrorResult(types.ErrKindExecutionError,
			say(lang, "Такой таймер поставить не получится.", "I can't set a timer for that long.")), nil
	}

	h.mu.Lock()
	actionName := h.nextActionNameLocked(in.SessionID)
	timerID := in.SessionID + "/" + actionName
	now := time.Now()
	h.active[timerID] = timerEntry{
		sessionID:  in.SessionID,
		actionName: actionName,
		duration:   d,
		createdAt:  now,
		expiresAt:  now.Add(d),
		conv:       conv,
	}
	h.mu.Unlock()

	if err := h.timers.ScheduleOnce(timerID, d, h.fire); err != nil {
		h.mu.Lock()
		delete(h.active, timerID)
		h.mu.Unlock()
		return types.IntentResult{}, intent.Failf(types.ErrKindExecutionError, "schedule timer: %w", err)
	}

	res := types.SuccessResult(
		say(lang,
			fmt.Sprintf("Таймер на %s запущен.", formatDuration(d, lang)),
			fmt.Sprintf("Timer set for %s.", formatDuration(d, lang))),
		in.Confidence)
	res.Metadata["timer_id"] = timerID
	res.Metadata["duration_s"] = d.Seconds()
	res.Metadata["expires_at"] = now.Add(d).Format(time.RFC3339)
	res.ActionMetadata = map[string]any{"action_name": actionName}
	return res, nil
}

// cancel stops a timer. With several running, the most recently set one is
// cancelled unless the intent names a timer_id.
func (h *Timer) cancel(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()

	h.mu.Lock()
	var (
		targetID string
		target   timerEntry
	)
	if id, ok := in.Entities["timer_id"].(string); ok {
		if e, exists := h.active[id]; exists && e.sessionID == in.SessionID {
			targetID, target = id, e
		}
	} else {
		for id, e := range h.active {
			if e.sessionID != in.SessionID {
				continue
			}
			if targetID == "" || e.createdAt.After(target.createdAt) {
				targetID, target = id, e
			}
		}
	}
	if targetID != "" {
		delete(h.active, targetID)
	}
	h.mu.Unlock()

	if targetID == "" {
		return types.ErrorResult(types.ErrKindNoActiveActions,
			say(lang, "Нет активных таймеров.", "There are no timers running."))
	}

	h.timers.Cancel(targetID)
	conv.CompleteAction(target.actionName)

	res := types.SuccessResult(say(lang, "Таймер отменён.", "Timer cancelled."), in.Confidence)
	res.Metadata["timer_id"] = targetID
	res.ActionMetadata = map[string]any{"completed_action": target.actionName}
	return res
}

// list reports the session's running timers, soonest first.
func (h *Timer) list(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()

	h.mu.Lock()
	var entries []timerEntry
	for _, e := range h.active {
		if e.sessionID == in.SessionID {
			entries = append(entries, e)
		}
	}
	h.mu.Unlock()

	if len(entries) == 0 {
		return types.SuccessResult(
			say(lang, "Нет активных таймеров.", "There are no timers running."), in.Confidence)
	}

	slices.SortFunc(entries, func(a, b timerEntry) int {
		return a.expiresAt.Compare(b.expiresAt)
	})

	remaining := time.Until(entries[0].expiresAt).Round(time.Second)
	var text string
	if len(entries) == 1 {
		text = say(lang,
			fmt.Sprintf("Таймер завершится через %s.", formatDuration(remaining, lang)),
			fmt.Sprintf("The timer ends in %s.", formatDuration(remaining, lang)))
	} else {
		text = say(lang,
			fmt.Sprintf("Активных таймеров: %d. Ближайший завершится через %s.", len(entries), formatDuration(remaining, lang)),
			fmt.Sprintf("%d timers running. The next one ends in %s.", len(entries), formatDuration(remaining, lang)))
	}

	res := types.SuccessResult(text, in.Confidence)
	res.Metadata["timer_count"] = len(entries)
	return res
}

// fire runs when a timer elapses: drop the bookkeeping, complete the
// session action, and announce.
func (h *Timer) fire(ctx context.Context, id string) {
	h.mu.Lock()
	e, ok := h.active[id]
	delete(h.active, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	e.conv.CompleteAction(e.actionName)

	lang := e.conv.Language()
	text := say(lang,
		fmt.Sprintf("Таймер на %s завершён!", formatDuration(e.duration, lang)),
		fmt.Sprintf("Your %s timer is done!", formatDuration(e.duration, lang)))

	if h.announcer != nil {
		h.announcer.Announce(ctx, e.sessionID, text)
		return
	}
	slog.Info("timer fired", "session_id", e.sessionID, "timer_id", id)
}

// nextActionNameLocked picks a session-unique action name. The first timer
// is "set_timer"; later ones get a numeric suffix. Callers hold h.mu.
func (h *Timer) nextActionNameLocked(sessionID string) string {
	taken := make(map[string]bool)
	for _, e := range h.active {
		if e.sessionID == sessionID {
			taken[e.actionName] = true
		}
	}
	if !taken["set_timer"] {
		return "set_timer"
	}
	for i := 2; ; i++ {
		name := fmt.Sprintf("set_timer_%d", i)
		if !taken[name] {
			return name
		}
	}
}

// durationRe matches "5 минут", "1 час 30 мин", "10 seconds". Longer unit
// spellings come first so they win the alternation.
var durationRe = regexp.MustCompile(`(\d+)\s*(час|мин|сек|hour|min|sec|ч|м|с|h|m|s)`)

// bareNumberRe catches "таймер на 30": a number with no unit is taken as
// minutes, the kitchen-timer convention.
var bareNumberRe = regexp.MustCompile(`(\d+)`)

// parseTimerDuration extracts the timer length from the intent: a donated
// "duration" entity (seconds, or a Go duration string) when present,
// otherwise the raw utterance text.
func parseTimerDuration(in types.Intent) (time.Duration, error) {
	switch v := in.Entities["duration"].(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
		if d, ok := parseSpokenDuration(v); ok {
			return d, nil
		}
	}
	if d, ok := parseSpokenDuration(in.RawText); ok {
		return d, nil
	}
	return 0, fmt.Errorf("no duration in intent %q", in.Name)
}

// spokenNumbers maps numeral words to values. Transcripts carry numbers
// both ways depending on the recognition backend, so duration parsing
// accepts words as well as digits.
var spokenNumbers = map[string]int{
	"один": 1, "одну": 1, "одна": 1, "два": 2, "две": 2, "три": 3,
	"четыре": 4, "пять": 5, "шесть": 6, "семь": 7, "восемь": 8,
	"девять": 9, "десять": 10, "одиннадцать": 11, "двенадцать": 12,
	"тринадцать": 13, "четырнадцать": 14, "пятнадцать": 15,
	"шестнадцать": 16, "семнадцать": 17, "восемнадцать": 18,
	"девятнадцать": 19, "двадцать": 20, "тридцать": 30, "сорок": 40,
	"пятьдесят": 50,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
}

// digitizeNumberWords rewrites numeral words as digits, merging adjacent
// words so "двадцать пять" becomes "25".
func digitizeNumberWords(text string) string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	run, haveRun := 0, false
	flush := func() {
		if haveRun {
			out = append(out, strconv.Itoa(run))
			run, haveRun = 0, false
		}
	}
	for _, f := range fields {
		if n, ok := spokenNumbers[f]; ok {
			run += n
			haveRun = true
			continue
		}
		flush()
		out = append(out, f)
	}
	flush()
	return strings.Join(out, " ")
}

// parseSpokenDuration sums every number-unit pair in the text. Text with
// numbers but no units is read as minutes.
func parseSpokenDuration(text string) (time.Duration, bool) {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "полчаса", "30 мин")
	lower = strings.ReplaceAll(lower, "half an hour", "30 min")
	lower = digitizeNumberWords(lower)

	matches := durationRe.FindAllStringSubmatch(lower, -1)
	if len(matches) > 0 {
		var total time.Duration
		for _, m := range matches {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			switch m[2] {
			case "час", "hour", "ч", "h":
				total += time.Duration(n) * time.Hour
			case "мин", "min", "м", "m":
				total += time.Duration(n) * time.Minute
			default:
				total += time.Duration(n) * time.Second
			}
		}
		return total, total > 0
	}

	if m := bareNumberRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return time.Duration(n) * time.Minute, true
		}
	}
	return 0, false
}

// formatDuration renders a duration for speech: "1 ч 30 мин", "45 сек".
func formatDuration(d time.Duration, lang string) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	type unit struct {
		n  int
		ru string
		en string
	}
	units := []unit{
		{hours, "ч", "h"},
		{minutes, "мин", "min"},
		{seconds, "сек", "sec"},
	}

	var parts []string
	for _, u := range units {
		if u.n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", u.n, say(lang, u.ru, u.en)))
	}
	if len(parts) == 0 {
		return say(lang, "0 сек", "0 sec")
	}
	return strings.Join(parts, " ")
}
