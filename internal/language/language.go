// Package language picks the spoken language for a text segment.
//
// Resolution order: a voice's fixed language, then the pronunciation
// dictionary (any registered word forces Japanese), then a character-class
// heuristic that treats plain ASCII text as English.
package language

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

const (
	// LatinDefault is chosen for text made only of ASCII letters, digits and
	// punctuation.
	LatinDefault = tts.LanguageEN

	// NonLatinDefault is chosen for everything else and for dictionary hits.
	NonLatinDefault = tts.LanguageJP
)

// asciiPunctuation is the punctuation accepted by the Latin heuristic.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// DictionaryLookup reports whether any dictionary surface form occurs in a
// fullwidth-normalised text.
type DictionaryLookup interface {
	ContainsSubstring(ctx context.Context, normalized string) (bool, error)
}

// Selector resolves segment languages. The zero value has no dictionary and
// relies on the voice hint and the heuristic only.
type Selector struct {
	dict DictionaryLookup
}

// New returns a Selector that consults dict. dict may be nil.
func New(dict DictionaryLookup) *Selector {
	return &Selector{dict: dict}
}

// Resolve returns the language text should be spoken in. A non-empty hint is
// returned unchanged. Dictionary failures are logged and fall through to the
// heuristic; Resolve itself never fails.
func (s *Selector) Resolve(ctx context.Context, text string, hint tts.Language) tts.Language {
	if hint != "" {
		return hint
	}
	if s != nil && s.dict != nil {
		found, err := s.dict.ContainsSubstring(ctx, Fullwidth(text))
		if err != nil {
			slog.Debug("language: dictionary lookup failed; using heuristic", "err", err)
		} else if found {
			return NonLatinDefault
		}
	}
	if IsLatin(text) {
		return LatinDefault
	}
	return NonLatinDefault
}

// IsLatin reports whether every rune of text is printable ASCII: a letter, a
// digit, a space or one of the ASCII punctuation marks.
func IsLatin(text string) bool {
	for _, r := range text {
		if r >= 128 {
			return false
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
		case strings.ContainsRune(asciiPunctuation, r):
		default:
			return false
		}
	}
	return true
}

var toFullwidth = runes.Map(func(r rune) rune {
	switch {
	case r >= 'A' && r <= 'Z':
		return r - 'A' + 'Ａ'
	case r >= 'a' && r <= 'z':
		return r - 'a' + 'ａ'
	}
	return r
})

// Fullwidth maps ASCII letters to their fullwidth forms (A to U+FF21, a to
// U+FF41). All other runes are left alone.
func Fullwidth(s string) string {
	out, _, err := transform.String(toFullwidth, s)
	if err != nil {
		return s
	}
	return out
}
