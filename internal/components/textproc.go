package components

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
)

// TextProcessor normalizes ASR transcripts before intent recognition:
// punctuation is stripped, case is folded, and digit tokens are spelled out
// in the session language so donated phrases match the way people speak
// ("5" and "пять" land on the same phrase).
//
// The original transcript is preserved on the intent as RawText; handlers
// that want digits parse from there.
type TextProcessor struct {
	expandNumbers bool
	lowercase     bool
}

var _ component.Component = (*TextProcessor)(nil)

// NewTextProcessor returns an uninitialized transcript normalizer.
func NewTextProcessor() *TextProcessor {
	return &TextProcessor{expandNumbers: true, lowercase: true}
}

func (c *TextProcessor) Name() string { return config.ComponentTextProcessor }

func (c *TextProcessor) Dependencies() []string { return nil }

func (c *TextProcessor) Init(_ context.Context, deps *component.Deps) error {
	if deps.Config != nil {
		c.expandNumbers = deps.Config.TextProcessor.ExpandNumbersEnabled()
		c.lowercase = deps.Config.TextProcessor.LowercaseEnabled()
	}
	return nil
}

func (c *TextProcessor) Shutdown(context.Context) error { return nil }

// Normalize produces the matching form of a transcript. lang selects the
// numeral vocabulary; anything but "en" spells numbers in Russian.
func (c *TextProcessor) Normalize(text, lang string) string {
	if c.lowercase {
		text = strings.ToLower(text)
	}
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	if c.expandNumbers {
		for i, tok := range tokens {
			if n, err := strconv.Atoi(tok); err == nil {
				if words := spellNumber(n, lang); words != "" {
					tokens[i] = words
				}
			}
		}
	}
	return strings.Join(tokens, " ")
}

var (
	ruUnits = []string{"ноль", "один", "два", "три", "четыре", "пять", "шесть",
		"семь", "восемь", "девять", "десять", "одиннадцать", "двенадцать",
		"тринадцать", "четырнадцать", "пятнадцать", "шестнадцать",
		"семнадцать", "восемнадцать", "девятнадцать"}
	ruTens = []string{"", "", "двадцать", "тридцать", "сорок", "пятьдесят",
		"шестьдесят", "семьдесят", "восемьдесят", "девяносто"}
	ruHundreds = []string{"", "сто", "двести", "триста", "четыреста",
		"пятьсот", "шестьсот", "семьсот", "восемьсот", "девятьсот"}

	enUnits = []string{"zero", "one", "two", "three", "four", "five", "six",
		"seven", "eight", "nine", "ten", "eleven", "twelve", "thirteen",
		"fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}
	enTens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty",
		"seventy", "eighty", "ninety"}
)

// spellNumber writes n out in words. Numbers outside [0, 999] come back
// empty and stay as digits.
func spellNumber(n int, lang string) string {
	if n < 0 || n > 999 {
		return ""
	}
	if lang == "en" {
		return spellEN(n)
	}
	return spellRU(n)
}

func spellRU(n int) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, ruHundreds[n/100])
		n %= 100
		if n == 0 {
			return strings.Join(parts, " ")
		}
	}
	if n < 20 {
		if n > 0 || len(parts) == 0 {
			parts = append(parts, ruUnits[n])
		}
		return strings.Join(parts, " ")
	}
	parts = append(parts, ruTens[n/10])
	if n%10 > 0 {
		parts = append(parts, ruUnits[n%10])
	}
	return strings.Join(parts, " ")
}

func spellEN(n int) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, enUnits[n/100], "hundred")
		n %= 100
		if n == 0 {
			return strings.Join(parts, " ")
		}
	}
	if n < 20 {
		if n > 0 || len(parts) == 0 {
			parts = append(parts, enUnits[n])
		}
		return strings.Join(parts, " ")
	}
	parts = append(parts, enTens[n/10])
	if n%10 > 0 {
		parts = append(parts, enUnits[n%10])
	}
	return strings.Join(parts, " ")
}
