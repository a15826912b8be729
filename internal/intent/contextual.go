package intent

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/types"
)

// contextualDomain is the reserved domain the recognizer assigns to bare
// commands ("stop", "pause") that need resolution against active actions.
const contextualDomain = "contextual"

// Resolution method names, recorded in metrics and in the rewritten
// intent's entities.
const (
	// methodSingle means only one domain was competing.
	methodSingle = "single_candidate"

	// methodScore means scoring picked a clear winner among several.
	methodScore = "score"

	// methodCache means the user answered a pending confirmation question.
	methodCache = "cache"

	// methodConfirmation means resolution stopped to ask the user.
	methodConfirmation = "confirmation"
)

// tieWindow is how close (in points) a score must be to the best one to
// count as tied with it.
const tieWindow = 10

// Scoring weights. A domain scores priority (0..100) plus recency (0..50,
// decaying one point per minute since its latest action started) plus
// multiplicity (5 per active action, capped at 20). Confidence is the total
// over 150, capped at 1.
const (
	maxPriority         = 100
	maxRecency          = 50
	multiplicityPerItem = 5
	maxMultiplicity     = 20
	maxScore            = maxPriority + maxRecency
)

// Resolution is the outcome of resolving a contextual command.
type Resolution struct {
	// Intent is the rewritten "{domain}.{command}" intent. Valid only when
	// FailKind is empty and NeedsConfirmation is false.
	Intent types.Intent

	// Domain is the winning domain.
	Domain string

	// Method records how the winner was picked.
	Method string

	// Confidence is the resolution confidence in [0, 1].
	Confidence float64

	// NeedsConfirmation means resolution was ambiguous and the user must
	// pick a target. Prompt carries the question, Candidates the tied
	// domains best first.
	NeedsConfirmation bool
	Prompt            string
	Candidates        []string

	// Scores holds the per-domain totals considered.
	Scores map[string]float64

	// FailKind is set when resolution failed outright (no active actions,
	// or none of their domains serve the command).
	FailKind types.ErrorKind
}

// Resolver rewrites bare contextual commands against a session's active
// actions. A bare "stop" with only music playing becomes "audio.stop"; with
// both music and a timer running it becomes a confirmation question.
//
// Safe for concurrent use; all state is read-only after construction.
type Resolver struct {
	registry    *Registry
	priorities  map[string]int
	destructive map[string]struct{}
}

// ResolverConfig carries the tuning knobs for contextual resolution.
type ResolverConfig struct {
	// DomainPriorities weights domains; values are clamped to [0, 100].
	DomainPriorities map[string]int

	// DestructiveCommands never auto-resolve when more than one domain is
	// tied; they always ask.
	DestructiveCommands []string
}

// NewResolver builds a resolver over the registry's contextual-command
// index.
func NewResolver(reg *Registry, cfg ResolverConfig) *Resolver {
	destructive := make(map[string]struct{}, len(cfg.DestructiveCommands))
	for _, c := range cfg.DestructiveCommands {
		destructive[c] = struct{}{}
	}
	return &Resolver{
		registry:    reg,
		priorities:  maps.Clone(cfg.DomainPriorities),
		destructive: destructive,
	}
}

// Resolve scores the domains competing for the intent's bare command and
// either rewrites the intent to the winner or asks for confirmation.
//
// The decision chain:
//  1. No active actions: fail with no_active_actions.
//  2. No overlap between action domains and the domains advertising the
//     command: fail with no_capable_handlers.
//  3. One candidate: rewrite to it directly.
//  4. Several candidates: score each; a clear winner (no other domain
//     within the tie window) is rewritten to. A tie asks for confirmation
//     when the command is destructive or three or more domains compete.
func (r *Resolver) Resolve(in types.Intent, conv *session.ConversationContext) Resolution {
	command := in.Action
	actions := conv.ActiveActions()
	if len(actions) == 0 {
		return Resolution{FailKind: types.ErrKindNoActiveActions}
	}

	capable := r.registry.ContextualDomains(command)
	candidates := r.score(command, actions, capable)
	if len(candidates) == 0 {
		return Resolution{FailKind: types.ErrKindNoCapableHandlers}
	}

	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		scores[c.domain] = c.total
	}

	if len(candidates) == 1 {
		return r.rewrite(in, candidates[0], methodSingle, scores)
	}

	top := candidates[0]
	var tied []string
	for _, c := range candidates {
		if c.total >= top.total-tieWindow {
			tied = append(tied, c.domain)
		}
	}

	_, isDestructive := r.destructive[command]
	if len(tied) > 1 && (isDestructive || len(candidates) >= 3) {
		prompt := respond(conv.Language(), "confirm_target", joinChoices(conv.Language(), tied))
		return Resolution{
			NeedsConfirmation: true,
			Prompt:            prompt,
			Candidates:        tied,
			Confidence:        top.confidence,
			Scores:            scores,
		}
	}

	return r.rewrite(in, top, methodScore, scores)
}

// Answer checks whether the utterance picks one of the pending candidates
// by name. It returns the rewritten "{domain}.{command}" intent when the
// text names exactly one candidate. Naming none or several leaves the
// question pending.
func (r *Resolver) Answer(in types.Intent, pending session.Disambiguation) (types.Intent, bool) {
	text := strings.ToLower(in.RawText)
	words := strings.Fields(text)

	var picked string
	for _, domain := range pending.Candidates {
		hit := slices.Contains(words, domain) || strings.Contains(text, domain)
		if !hit {
			continue
		}
		if picked != "" {
			return types.Intent{}, false
		}
		picked = domain
	}
	if picked == "" {
		return types.Intent{}, false
	}

	out := types.NewIntent(picked+"."+pending.Command, in.RawText, in.SessionID, 1.0)
	out.Entities = cloneEntities(in.Entities)
	out.Entities["_contextual_resolution"] = map[string]any{
		"original_command": in.Name,
		"command":          pending.Command,
		"target_domain":    picked,
		"method":           methodCache,
		"confidence":       1.0,
		"candidates":       slices.Clone(pending.Candidates),
	}
	return out, true
}

// candidateScore is one domain's standing in a resolution.
type candidateScore struct {
	domain     string
	total      float64
	confidence float64
}

// score computes totals for every domain that both owns an active action
// and advertises the command. The result is sorted best first; equal scores
// order by domain name for determinism.
func (r *Resolver) score(command string, actions map[string]session.ActiveAction, capable []string) []candidateScore {
	type domainState struct {
		count  int
		latest time.Time
	}
	byDomain := make(map[string]*domainState)
	for _, a := range actions {
		st := byDomain[a.Domain]
		if st == nil {
			st = &domainState{}
			byDomain[a.Domain] = st
		}
		st.count++
		if a.StartedAt.After(st.latest) {
			st.latest = a.StartedAt
		}
	}

	// One clock reading for the whole resolution: candidates whose actions
	// started at the same instant must score identically.
	now := time.Now()

	var out []candidateScore
	for _, domain := range capable {
		st, ok := byDomain[domain]
		if !ok {
			continue
		}

		priority := float64(min(max(r.priorities[domain], 0), maxPriority))

		ageMinutes := now.Sub(st.latest).Minutes()
		recency := max(0, maxRecency-ageMinutes)

		multiplicity := float64(min(st.count*multiplicityPerItem, maxMultiplicity))

		total := priority + recency + multiplicity
		out = append(out, candidateScore{
			domain:     domain,
			total:      total,
			confidence: min(total/maxScore, 1.0),
		})
	}

	slices.SortFunc(out, func(a, b candidateScore) int {
		if a.total != b.total {
			if a.total > b.total {
				return -1
			}
			return 1
		}
		return strings.Compare(a.domain, b.domain)
	})
	return out
}

// rewrite produces the resolved intent for the winning domain, carrying the
// original entities plus a record of how resolution happened.
func (r *Resolver) rewrite(in types.Intent, winner candidateScore, method string, scores map[string]float64) Resolution {
	out := types.NewIntent(winner.domain+"."+in.Action, in.RawText, in.SessionID, winner.confidence)
	out.Entities = cloneEntities(in.Entities)
	out.Entities["_contextual_resolution"] = map[string]any{
		"original_command": in.Name,
		"command":          in.Action,
		"target_domain":    winner.domain,
		"method":           method,
		"score":            winner.total,
		"confidence":       winner.confidence,
	}
	return Resolution{
		Intent:     out,
		Domain:     winner.domain,
		Method:     method,
		Confidence: winner.confidence,
		Scores:     scores,
	}
}

func cloneEntities(src map[string]any) map[string]any {
	out := make(map[string]any, len(src)+1)
	maps.Copy(out, src)
	return out
}
