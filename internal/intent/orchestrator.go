package intent

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attalus-io/vestibule/internal/observe"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/types"
)

// Orchestrator runs the intent execution pipeline:
//
//  1. Middleware, in registration order. A failing middleware is skipped.
//  2. Contextual resolution: bare commands are rewritten against active
//     actions, pending confirmation questions are answered.
//  3. Registry lookup.
//  4. Availability check via [Handler.CanHandle].
//  5. Execution, preferring donation method routing when the handler
//     publishes the matched method.
//  6. Error mapping: a registered [ErrorHandlerFunc] for the error kind, or
//     a generic failure result.
//  7. Bookkeeping: execution metrics, session analytics, conversation
//     turns, and recency statistics.
//
// Every terminal outcome, including failures before a handler ran, is
// recorded in metrics and appended to the conversation so follow-up turns
// see what the user was told.
//
// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	registry  *Registry
	resolver  *Resolver
	sessions  *session.Manager
	collector *observe.Collector

	mu            sync.RWMutex
	middleware    []Middleware
	errorHandlers map[types.ErrorKind]ErrorHandlerFunc
	donations     map[string]*donation.Donation
}

// NewOrchestrator wires the pipeline. A nil collector gets replaced with a
// detached one so recording never needs a nil check.
func NewOrchestrator(reg *Registry, res *Resolver, sessions *session.Manager, collector *observe.Collector) *Orchestrator {
	if collector == nil {
		collector = observe.NewCollector(nil)
	}
	return &Orchestrator{
		registry:      reg,
		resolver:      res,
		sessions:      sessions,
		collector:     collector,
		errorHandlers: make(map[types.ErrorKind]ErrorHandlerFunc),
		donations:     make(map[string]*donation.Donation),
	}
}

// Use appends a middleware to the pipeline.
func (o *Orchestrator) Use(mw Middleware) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.middleware = append(o.middleware, mw)
}

// OnError registers a custom result builder for one error kind.
func (o *Orchestrator) OnError(kind types.ErrorKind, fn ErrorHandlerFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errorHandlers[kind] = fn
}

// RegisterDonation makes a handler's manifest available for method routing.
// Called by the component manager after handler initialization.
func (o *Orchestrator) RegisterDonation(d *donation.Donation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.donations[d.HandlerDomain] = d
}

// Execute runs one intent through the pipeline and returns the result.
func (o *Orchestrator) Execute(ctx context.Context, in types.Intent) types.IntentResult {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "intent.execute", trace.WithAttributes(
		attribute.String("intent.name", in.Name),
		attribute.String("session.id", in.SessionID),
	))
	defer span.End()
	log := observe.Logger(ctx)

	conv := o.sessions.Get(ctx, in.SessionID)

	for _, mw := range o.middlewareChain() {
		next, err := mw(ctx, in, conv)
		if err != nil {
			log.Warn("intent middleware failed", "intent", in.Name, "error", err)
			continue
		}
		in = next
	}

	in, early := o.resolveContextual(ctx, in, conv)
	if early != nil {
		return o.finish(ctx, in, conv, *early, start)
	}

	h, pattern, ok := o.registry.Resolve(in.Name)
	if !ok {
		log.Warn("no handler for intent", "intent", in.Name)
		res := types.ErrorResult(types.ErrKindNoHandler, respond(conv.Language(), "no_handler", in.Name))
		return o.finish(ctx, in, conv, res, start)
	}
	span.SetAttributes(attribute.String("intent.handler", h.Name()), attribute.String("intent.pattern", pattern))

	if !h.CanHandle(in) {
		log.Warn("handler declined intent", "intent", in.Name, "handler", h.Name())
		res := types.ErrorResult(types.ErrKindHandlerUnavailable, respond(conv.Language(), "handler_unavailable", h.Name()))
		return o.finish(ctx, in, conv, res, start)
	}

	res, err := o.executeHandler(ctx, h, in, conv)
	if err != nil {
		kind := Kind(err)
		log.Error("intent execution failed", "intent", in.Name, "handler", h.Name(), "kind", string(kind), "error", err)
		if fn := o.errorHandler(kind); fn != nil {
			res = fn(ctx, in, conv, err)
		} else {
			res = types.ErrorResult(kind, respond(conv.Language(), "execution_error"))
		}
	}

	o.applyActionMetadata(in, h, conv, res)
	return o.finish(ctx, in, conv, res, start)
}

// resolveContextual answers a pending confirmation question or resolves a
// bare contextual command. A non-nil result short-circuits the pipeline; no
// handler runs for it.
func (o *Orchestrator) resolveContextual(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.Intent, *types.IntentResult) {
	if pending, ok := conv.PendingDisambiguation(); ok {
		if rewritten, answered := o.resolver.Answer(in, pending); answered {
			conv.ClearDisambiguation()
			o.collector.RecordDisambiguation(ctx, observe.DisambiguationRecord{
				Command:    pending.Command,
				Domain:     rewritten.Domain,
				Method:     methodCache,
				Confidence: rewritten.Confidence,
				CacheHit:   true,
			})
			observe.Logger(ctx).Info("disambiguation answered",
				"command", pending.Command, "domain", rewritten.Domain)
			return rewritten, nil
		}
	}

	if in.Domain != contextualDomain {
		return in, nil
	}

	resolveStart := time.Now()
	resolution := o.resolver.Resolve(in, conv)
	latency := time.Since(resolveStart)
	lang := conv.Language()

	switch {
	case resolution.FailKind == types.ErrKindNoActiveActions:
		res := types.ErrorResult(resolution.FailKind, respond(lang, "no_active_actions"))
		return in, &res

	case resolution.FailKind != "":
		res := types.ErrorResult(resolution.FailKind, respond(lang, "no_capable_handlers", in.Action))
		return in, &res

	case resolution.NeedsConfirmation:
		conv.StoreDisambiguation(session.Disambiguation{
			Command:    in.Action,
			Candidates: resolution.Candidates,
			Prompt:     resolution.Prompt,
		})
		o.collector.RecordDisambiguation(ctx, observe.DisambiguationRecord{
			Command:    in.Action,
			Domain:     "ambiguous",
			Method:     methodConfirmation,
			Confidence: resolution.Confidence,
			Latency:    latency,
		})
		res := types.IntentResult{
			Text:        resolution.Prompt,
			ShouldSpeak: true,
			Success:     false,
			Error:       types.ErrKindRequiresConfirmation,
			Confidence:  resolution.Confidence,
			Metadata: map[string]any{
				"requires_disambiguation": true,
				"command":                 in.Action,
				"candidates":              resolution.Candidates,
				"scores":                  resolution.Scores,
			},
			Timestamp: time.Now(),
		}
		return in, &res

	default:
		o.collector.RecordDisambiguation(ctx, observe.DisambiguationRecord{
			Command:    in.Action,
			Domain:     resolution.Domain,
			Method:     resolution.Method,
			Confidence: resolution.Confidence,
			Latency:    latency,
		})
		observe.Logger(ctx).Info("contextual command resolved",
			"command", in.Action, "domain", resolution.Domain, "method", resolution.Method)
		return resolution.Intent, nil
	}
}

// executeHandler dispatches to the handler, routing through a donated
// method name when the handler publishes one for this intent.
func (o *Orchestrator) executeHandler(ctx context.Context, h Handler, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	if router, ok := h.(MethodRouter); ok {
		if d := o.donationFor(in.Domain); d != nil {
			if m := d.Method(in.Action); m != nil {
				return router.ExecuteMethod(ctx, m.MethodName, in, conv)
			}
		}
	}
	return h.Execute(ctx, in, conv)
}

// applyActionMetadata applies lifecycle effects the handler declared in the
// result: "action_name" registers a fire-and-forget action owned by the
// intent's domain, "completed_action" removes one.
func (o *Orchestrator) applyActionMetadata(in types.Intent, h Handler, conv *session.ConversationContext, res types.IntentResult) {
	if res.ActionMetadata == nil {
		return
	}
	if name, ok := res.ActionMetadata["action_name"].(string); ok && name != "" && res.Success {
		conv.RegisterAction(name, session.ActiveAction{Domain: in.Domain, Handler: h.Name()})
	}
	if name, ok := res.ActionMetadata["completed_action"].(string); ok && name != "" {
		conv.CompleteAction(name)
	}
}

// finish records metrics and analytics, appends the conversation turns, and
// updates recency statistics. Runs for every terminal outcome.
func (o *Orchestrator) finish(ctx context.Context, in types.Intent, conv *session.ConversationContext, res types.IntentResult, start time.Time) types.IntentResult {
	latency := time.Since(start)

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Bool("intent.success", res.Success),
		attribute.String("intent.error", string(res.Error)),
	)

	o.collector.RecordIntentExecution(ctx, in.Name, res.Success, latency, string(res.Error))
	o.sessions.RecordIntentActivity(ctx, in.SessionID, session.IntentActivity{
		Name:       in.Name,
		Domain:     in.Domain,
		Success:    res.Success,
		Confidence: in.Confidence,
		OccurredAt: start,
	})

	if in.RawText != "" {
		conv.AddUserTurn(in.RawText)
	}
	if res.Text != "" {
		conv.AddAssistantTurn(res.Text)
	}
	conv.RecordIntent(in, res.Success)

	return res
}

func (o *Orchestrator) middlewareChain() []Middleware {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.middleware
}

func (o *Orchestrator) errorHandler(kind types.ErrorKind) ErrorHandlerFunc {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.errorHandlers[kind]
}

func (o *Orchestrator) donationFor(domain string) *donation.Donation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.donations[domain]
}
