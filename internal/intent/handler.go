// Package intent routes recognized intents to handlers. The [Registry] maps
// intent name patterns to handlers, the [Resolver] rewrites bare contextual
// commands ("stop", "pause") against a session's active actions, and the
// [Orchestrator] runs the full pipeline: middleware, contextual resolution,
// lookup, execution, metrics, and conversation bookkeeping.
package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/types"
)

// Handler executes intents for one domain.
//
// Implementations must be safe for concurrent use: the orchestrator may
// execute intents from several sessions at once.
type Handler interface {
	// Name identifies the handler in logs, traces, and active actions.
	Name() string

	// Patterns returns the intent name patterns this handler serves.
	// Patterns are exact names ("timer.set"), wildcards ("timer.*",
	// "media.playlist.?"), or a bare domain ("conversation") that catches
	// every intent in that domain not claimed by a more specific pattern.
	Patterns() []string

	// CanHandle reports whether the handler will accept the intent right
	// now. A registered handler may still decline, for example while a
	// required downstream component is degraded.
	CanHandle(in types.Intent) bool

	// Execute processes the intent and returns the result. Errors are
	// mapped to an error kind via [Kind]; use [Failf] to pick the kind.
	Execute(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error)
}

// MethodRouter is implemented by handlers whose methods are addressable by
// the method names published in their donation manifest. When the matched
// intent corresponds to a donated method, the orchestrator prefers
// ExecuteMethod over [Handler.Execute].
type MethodRouter interface {
	ExecuteMethod(ctx context.Context, method string, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error)
}

// DonationProvider is implemented by handlers that publish a donation
// manifest. The component manager collects manifests after initialization
// and feeds them to both the recognizer and the orchestrator.
type DonationProvider interface {
	Donation() *donation.Donation
}

// ContextualCommander is implemented by handlers that serve bare contextual
// commands. The registry indexes the returned commands so the resolver can
// tell which domains compete for, say, a bare "stop".
type ContextualCommander interface {
	ContextualCommands() []string
}

// Middleware inspects or rewrites an intent before resolution and lookup.
// Returning an error skips this middleware only; the pipeline continues with
// the intent unchanged.
type Middleware func(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.Intent, error)

// ErrorHandlerFunc turns a handler error of a specific kind into a
// user-facing result. Registered per kind on the orchestrator.
type ErrorHandlerFunc func(ctx context.Context, in types.Intent, conv *session.ConversationContext, err error) types.IntentResult

// KindError carries a stable error kind alongside the underlying error so
// the orchestrator can report failures by category instead of by message.
type KindError struct {
	Kind types.ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// Failf builds a [KindError] with a formatted message.
func Failf(kind types.ErrorKind, format string, args ...any) error {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Kind extracts the error kind from err, walking wrapped errors. Errors
// without a kind default to [types.ErrKindExecutionError].
func Kind(err error) types.ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return types.ErrKindExecutionError
}
