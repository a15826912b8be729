// Package keyword implements intent recognition by donated-phrase token
// matching. A method matches when every token of one of its donated phrases
// appears, in order, somewhere in the utterance; among matches the longest
// phrase wins. Parameter values are pulled from the tokens the phrase did
// not consume.
//
// The matcher is deliberately strict: it only fires on utterances that
// literally contain a donated phrase. Misheard or reworded utterances are
// the fuzzy recognizer's job.
package keyword

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/types"
)

type candidate struct {
	intentName string
	tokens     []string
	params     []donation.Parameter
}

// Provider matches utterances against donated phrases. Implements
// [nlu.Provider] and [nlu.DonationSink]. Safe for concurrent use.
type Provider struct {
	mu       sync.RWMutex
	byDomain map[string][]candidate
}

// New returns an empty provider. It recognizes nothing until donations
// arrive through AddDonation.
func New() *Provider {
	return &Provider{byDomain: make(map[string][]candidate)}
}

// Name implements [nlu.Provider].
func (p *Provider) Name() string { return "keyword" }

// AddDonation indexes every phrase of every method in the manifest. A new
// donation for the same handler domain replaces the previous one.
func (p *Provider) AddDonation(d *donation.Donation) {
	var cands []candidate
	for _, m := range d.MethodDonations {
		for _, phrase := range m.Phrases {
			toks := tokenize(phrase)
			if len(toks) == 0 {
				continue
			}
			cands = append(cands, candidate{
				intentName: d.IntentName(m),
				tokens:     toks,
				params:     m.Parameters,
			})
		}
	}
	p.mu.Lock()
	p.byDomain[d.HandlerDomain] = cands
	p.mu.Unlock()
}

// Recognize maps req.Text to the intent of the longest donated phrase whose
// tokens all occur, in order, in the utterance. Returns [nlu.ErrNoMatch]
// when no phrase is contained.
func (p *Provider) Recognize(_ context.Context, req nlu.Request) (types.Intent, error) {
	utter := tokenize(req.Text)
	if len(utter) == 0 {
		return types.Intent{}, nlu.ErrNoMatch
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var (
		best     *candidate
		leftover []string
	)
	for domain := range p.byDomain {
		for i := range p.byDomain[domain] {
			c := &p.byDomain[domain][i]
			rest, ok := consume(utter, c.tokens)
			if !ok {
				continue
			}
			if best == nil || len(c.tokens) > len(best.tokens) {
				best = c
				leftover = rest
			}
		}
	}
	if best == nil {
		return types.Intent{}, nlu.ErrNoMatch
	}

	// Full containment is a strong signal; confidence grows with how much
	// of the utterance the phrase accounts for.
	coverage := float64(len(best.tokens)) / float64(len(utter))
	in := types.NewIntent(best.intentName, req.Text, req.SessionID, 0.6+0.4*coverage)
	extract(in.Entities, best.params, leftover)
	return in, nil
}

// consume reports whether phrase occurs as an ordered subsequence of utter,
// returning the utterance tokens the phrase did not use.
func consume(utter, phrase []string) (leftover []string, ok bool) {
	next := 0
	for _, tok := range utter {
		if next < len(phrase) && tok == phrase[next] {
			next++
			continue
		}
		leftover = append(leftover, tok)
	}
	if next != len(phrase) {
		return nil, false
	}
	return leftover, true
}

// extract fills entities from the tokens the phrase left unconsumed.
// Numeric parameters take the first number; choice parameters take the
// first leftover token among their choices; everything else receives the
// joined leftover text.
func extract(entities map[string]any, params []donation.Parameter, leftover []string) {
	if len(params) == 0 || len(leftover) == 0 {
		return
	}
	rest := strings.Join(leftover, " ")
	for _, param := range params {
		switch param.Type {
		case donation.ParamInteger:
			if n, ok := firstInt(leftover); ok {
				entities[param.Name] = n
			}
		case donation.ParamFloat:
			if f, ok := firstFloat(leftover); ok {
				entities[param.Name] = f
			}
		case donation.ParamChoice:
			for _, tok := range leftover {
				for _, choice := range param.Choices {
					if tok == strings.ToLower(choice) {
						entities[param.Name] = choice
					}
				}
			}
		default:
			entities[param.Name] = rest
		}
	}
}

func firstInt(tokens []string) (int64, bool) {
	for _, tok := range tokens {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func firstFloat(tokens []string) (float64, bool) {
	for _, tok := range tokens {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", "."), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// tokenize folds text to lower case and splits it on anything that is not
// a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
