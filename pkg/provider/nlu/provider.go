// Package nlu defines the provider interface for natural-language intent
// recognition: turning a normalized utterance into a structured
// [types.Intent].
//
// Providers only recognize; they never decide what happens on a miss. A
// provider that cannot produce an intent returns [ErrNoMatch] and the
// calling component picks the next provider in its chain or falls back to
// conversation.general.
//
// Providers that match against handler-donated phrases additionally
// implement [DonationSink]; the component forwards donations there during
// post-initialization wiring.
package nlu

import (
	"context"
	"errors"

	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/types"
)

// ErrNoMatch is returned by Recognize when the provider cannot map the
// utterance to any intent it knows about.
var ErrNoMatch = errors.New("nlu: no intent matched")

// Request carries an utterance together with the session state a recognizer
// may consult while matching.
type Request struct {
	// Text is the normalized utterance.
	Text string

	// SessionID identifies the conversation the utterance belongs to.
	SessionID string

	// Language is the session language as a BCP 47-ish tag ("ru", "en").
	Language string
}

// Provider recognizes intents from text.
type Provider interface {
	// Recognize maps req.Text to an intent. Returns ErrNoMatch when the
	// utterance does not match anything the provider knows.
	Recognize(ctx context.Context, req Request) (types.Intent, error)

	// Name returns the provider identifier used in configuration and logs.
	Name() string
}

// DonationSink receives handler donations. Providers that match against
// donated phrases implement it in addition to [Provider].
type DonationSink interface {
	// AddDonation registers a handler manifest for phrase matching.
	// Donations for the same domain replace earlier ones.
	AddDonation(d *donation.Donation)
}
