// Package detect matches message text against a fixed vocabulary of
// meeting-related trigger terms.
package detect

import (
	"strings"
)

// DefaultVocabulary is the bilingual (Farsi/English) trigger list. Matches
// are reported in vocabulary order, so keep the order stable.
var DefaultVocabulary = []string{
	"جلسه", "قرار", "meeting", "appointment", "session",
	"میتینگ", "ملاقات", "دیدار", "نشست", "کنفرانس",
	"conference", "call", "تماس", "zoom", "skype",
}

// Detector holds a vocabulary with pre-lowered terms for matching.
type Detector struct {
	terms   []string
	lowered []string
}

// New returns a Detector over the given vocabulary. A nil or empty
// vocabulary falls back to DefaultVocabulary.
func New(vocabulary []string) *Detector {
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}
	terms := make([]string, len(vocabulary))
	lowered := make([]string, len(vocabulary))
	for i, term := range vocabulary {
		terms[i] = term
		lowered[i] = strings.ToLower(term)
	}
	return &Detector{terms: terms, lowered: lowered}
}

// Match returns the vocabulary terms present in text as case-insensitive
// substrings, in vocabulary order. Same input always yields the same result.
func (d *Detector) Match(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var matched []string
	for i, term := range d.lowered {
		if strings.Contains(lower, term) {
			matched = append(matched, d.terms[i])
		}
	}
	return matched
}
