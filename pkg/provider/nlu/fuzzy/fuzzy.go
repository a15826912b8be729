// Package fuzzy implements approximate intent recognition over donated
// phrases. Where the keyword recognizer demands literal containment, this
// one scores utterances with phonetic and Jaro-Winkler matching, so a
// transcription like "паставь тайм ер" still lands on "поставь таймер".
//
// Donated examples participate alongside phrases: an Example's text is
// matched exactly like a phrase and yields the same intent.
package fuzzy

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/textmatch"
	"github.com/attalus-io/vestibule/pkg/types"
)

type phraseIntent struct {
	intentName string
	params     []donation.Parameter
}

// Provider matches utterances approximately against donated phrases.
// Implements [nlu.Provider] and [nlu.DonationSink]. Safe for concurrent
// use.
type Provider struct {
	matcher *textmatch.Matcher

	mu       sync.RWMutex
	byDomain map[string]map[string]phraseIntent
}

// New returns an empty provider using the given matcher options.
func New(opts ...textmatch.Option) *Provider {
	return &Provider{
		matcher:  textmatch.New(opts...),
		byDomain: make(map[string]map[string]phraseIntent),
	}
}

// Name implements [nlu.Provider].
func (p *Provider) Name() string { return "fuzzy" }

// AddDonation indexes the manifest's phrases and example utterances. A new
// donation for the same handler domain replaces the previous one.
func (p *Provider) AddDonation(d *donation.Donation) {
	index := make(map[string]phraseIntent)
	for _, m := range d.MethodDonations {
		pi := phraseIntent{intentName: d.IntentName(m), params: m.Parameters}
		for _, phrase := range m.Phrases {
			index[strings.ToLower(phrase)] = pi
		}
		for _, ex := range m.Examples {
			index[strings.ToLower(ex.Text)] = pi
		}
	}
	p.mu.Lock()
	p.byDomain[d.HandlerDomain] = index
	p.mu.Unlock()
}

// Recognize scores req.Text against every donated phrase, preferring a
// prefix match (which yields the command tail for parameter extraction)
// over a whole-utterance match. Returns [nlu.ErrNoMatch] when nothing
// clears the matcher's thresholds.
func (p *Provider) Recognize(_ context.Context, req nlu.Request) (types.Intent, error) {
	p.mu.RLock()
	phrases := make([]string, 0, 64)
	index := make(map[string]phraseIntent, 64)
	for _, domainIndex := range p.byDomain {
		for phrase, pi := range domainIndex {
			phrases = append(phrases, phrase)
			index[phrase] = pi
		}
	}
	p.mu.RUnlock()

	if len(phrases) == 0 {
		return types.Intent{}, nlu.ErrNoMatch
	}

	phrase, remainder, conf, ok := p.matcher.MatchPrefix(req.Text, phrases)
	if !ok {
		remainder = ""
		phrase, conf, ok = p.matcher.Match(req.Text, phrases)
	}
	if !ok {
		return types.Intent{}, nlu.ErrNoMatch
	}

	pi := index[phrase]
	in := types.NewIntent(pi.intentName, req.Text, req.SessionID, conf)
	if remainder != "" {
		fillEntity(in.Entities, pi.params, remainder)
	}
	return in, nil
}

// fillEntity assigns the command tail to the method's first required
// parameter (or its first parameter when none is required). Integer and
// float parameters receive the first number found in the tail instead of
// the raw text.
func fillEntity(entities map[string]any, params []donation.Parameter, tail string) {
	if len(params) == 0 {
		return
	}
	target := params[0]
	for _, param := range params {
		if param.Required {
			target = param
			break
		}
	}
	switch target.Type {
	case donation.ParamInteger:
		for _, tok := range strings.Fields(tail) {
			if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
				entities[target.Name] = n
				return
			}
		}
	case donation.ParamFloat:
		for _, tok := range strings.Fields(tail) {
			if f, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", "."), 64); err == nil {
				entities[target.Name] = f
				return
			}
		}
	default:
		entities[target.Name] = tail
	}
}
