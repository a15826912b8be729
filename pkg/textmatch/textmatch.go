// Package textmatch scores recognised speech against known phrases using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity. It backs wake-phrase detection and command alias resolution,
// where speech recognition output rarely matches the configured phrase byte
// for byte ("jarvis" heard as "gervis", "выключи" heard as "выключить").
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the input and of each known phrase. Any code overlap makes
//     the phrase a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the phrase with the
//     highest Jaro-Winkler similarity (case-insensitive) wins, provided its
//     score exceeds the phonetic threshold. When no phonetic candidate is
//     found, a secondary pass tests pure Jaro-Winkler similarity against all
//     phrases using a stricter fuzzy threshold (default 0.85).
//
// Multi-word phrases are supported: the matcher compares full strings,
// space-stripped strings, and the best pairwise token score.
package textmatch

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched phrase to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher scores heard text against known phrases. All methods are safe for
// concurrent use; the Matcher is read-only after construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the phrase most similar to heard.
//
// heard may be a single word or a space-separated n-gram. When matched is
// false, phrase equals heard unchanged and confidence is 0.
func (m *Matcher) Match(heard string, phrases []string) (phrase string, confidence float64, matched bool) {
	if len(phrases) == 0 || strings.TrimSpace(heard) == "" {
		return heard, 0, false
	}

	heardLower := strings.ToLower(strings.TrimSpace(heard))
	heardTokens := strings.Fields(heardLower)
	heardCodes := codesForTokens(heardTokens)

	type candidate struct {
		phrase   string
		score    float64
		phonetic bool
	}

	var best candidate

	for _, p := range phrases {
		pLower := strings.ToLower(strings.TrimSpace(p))
		if pLower == "" {
			continue
		}
		pTokens := strings.Fields(pLower)

		phoneticMatch := codesOverlap(heardCodes, codesForTokens(pTokens))
		score := bestJWScore(heardTokens, pTokens, heardLower, pLower)

		if phoneticMatch {
			if score >= m.phoneticThreshold {
				if !best.phonetic || score > best.score {
					best = candidate{phrase: p, score: score, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if score >= m.fuzzyThreshold && score > best.score {
				best = candidate{phrase: p, score: score, phonetic: false}
			}
		}
	}

	if best.phrase != "" {
		return best.phrase, best.score, true
	}
	return heard, 0, false
}

// MatchPrefix tests whether heard begins with one of the phrases and splits
// off the remainder. Token windows of the phrase length, plus one shorter and
// one longer, are tried so that recognition splitting a phrase differently
// ("ves ti bule" vs "vestibule") still anchors.
//
// When matched is false, remainder is empty and confidence is 0.
func (m *Matcher) MatchPrefix(heard string, phrases []string) (phrase, remainder string, confidence float64, matched bool) {
	tokens := strings.Fields(strings.TrimSpace(heard))
	if len(tokens) == 0 || len(phrases) == 0 {
		return "", "", 0, false
	}

	var bestPhrase, bestRemainder string
	var bestScore float64

	for _, p := range phrases {
		pTokens := strings.Fields(strings.ToLower(strings.TrimSpace(p)))
		if len(pTokens) == 0 {
			continue
		}
		for _, width := range []int{len(pTokens), len(pTokens) + 1, len(pTokens) - 1} {
			if width < 1 || width > len(tokens) {
				continue
			}
			window := strings.Join(tokens[:width], " ")
			if got, score, ok := m.Match(window, []string{p}); ok && got == p && score > bestScore {
				bestPhrase = p
				bestRemainder = strings.TrimSpace(strings.Join(tokens[width:], " "))
				bestScore = score
			}
		}
	}

	if bestPhrase == "" {
		return "", "", 0, false
	}
	return bestPhrase, bestRemainder, bestScore, true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or contains
// no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and the phrase using three strategies: full strings, space-stripped
// strings, and the best pairwise token score. longTolerance is passed as
// false for standard Jaro-Winkler scoring.
func bestJWScore(inputTokens, phraseTokens []string, inputFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(inputFull, phraseFull, false)

	if len(inputTokens) > 1 || len(phraseTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(phraseTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, pt := range phraseTokens {
			if s := matchr.JaroWinkler(it, pt, false); s > score {
				score = s
			}
		}
	}

	return score
}
