// Package segment splits chat text into pieces short enough to synthesise
// and play one at a time.
//
// All lengths are counted in runes. Messages longer than [HardCap] are cut at
// the latest separator inside the trailing window and reported as truncated;
// what remains is split greedily into chunks of at most [MaxChunk] runes,
// preferring separator boundaries no earlier than [MinChunk].
package segment

import (
	"slices"
	"strings"
	"unicode"
)

const (
	// HardCap is the longest text that is read aloud. Longer input is truncated.
	HardCap = 140

	// truncateFrom is the first rune index considered for the truncation cut.
	truncateFrom = 100

	// MaxChunk is the longest chunk handed to a single synthesis call.
	MaxChunk = 50

	// MinChunk is the earliest separator position the chunk scan accepts.
	MinChunk = 20

	// TargetChunk is the chunk length the constants were tuned for. It is
	// not enforced.
	TargetChunk = 35
)

// Placeholder replaces the whole message when it contains a URL.
const Placeholder = "URL"

// OmissionMarker is spoken after the last segment of a truncated message.
const OmissionMarker = "以下略"

// truncationSeparators are tried when cutting at [HardCap]; the latest match
// across all of them wins.
var truncationSeparators = [][]rune{
	[]rune("。"), []rune("．"), []rune("\n"), []rune("."), []rune("!"), []rune("?"),
	[]rune("！"), []rune("？"), []rune("、"), []rune(","), []rune("，"), []rune(" "), []rune("　"),
}

// pairSeparators end a sentence and a line at once.
var pairSeparators = [][2]rune{
	{'。', '\n'}, {'.', '\n'}, {'!', '\n'}, {'?', '\n'}, {'！', '\n'}, {'？', '\n'},
}

var singleSeparators = []rune{'。', '．', '\n', '.', '!', '?', '！', '？', '、', ',', '，', ' ', '　'}

// ContainsURL reports whether text contains an http or https URL.
func ContainsURL(text string) bool {
	return strings.Contains(text, "http://") || strings.Contains(text, "https://")
}

// Split returns the speakable segments of text in order and whether the text
// was truncated. Text containing a URL yields the single [Placeholder]
// segment and is never reported as truncated.
func Split(text string) (segments []string, truncated bool) {
	if ContainsURL(text) {
		return []string{Placeholder}, false
	}
	r := []rune(text)
	if len(r) > HardCap {
		r = truncate(r)
		truncated = true
	}
	return chunk(r), truncated
}

// truncate cuts r at the separator ending closest to HardCap within
// [truncateFrom, HardCap), or exactly at HardCap when none exists.
func truncate(r []rune) []rune {
	cut := -1
	for _, sep := range truncationSeparators {
		for i := HardCap - len(sep); i >= truncateFrom; i-- {
			if hasAt(r, i, sep) {
				cut = max(cut, i+len(sep))
				break
			}
		}
	}
	if cut < 0 {
		cut = HardCap
	}
	return r[:cut]
}

func chunk(r []rune) []string {
	r = trimRunes(r)
	var out []string
	for len(r) > 0 {
		if len(r) <= MaxChunk {
			out = appendTrimmed(out, r)
			break
		}
		cut := MaxChunk
		for i := MaxChunk - 1; i >= MinChunk; i-- {
			if i+1 < len(r) && isPair(r[i], r[i+1]) {
				cut = i + 2
				break
			}
			if slices.Contains(singleSeparators, r[i]) {
				cut = i + 1
				break
			}
		}
		out = appendTrimmed(out, r[:cut])
		r = trimRunes(r[cut:])
	}
	return out
}

func isPair(a, b rune) bool {
	return slices.Contains(pairSeparators, [2]rune{a, b})
}

func hasAt(r []rune, i int, sep []rune) bool {
	if i < 0 || i+len(sep) > len(r) {
		return false
	}
	return slices.Equal(r[i:i+len(sep)], sep)
}

func appendTrimmed(out []string, r []rune) []string {
	if s := string(trimRunes(r)); s != "" {
		return append(out, s)
	}
	return out
}

func trimRunes(r []rune) []rune {
	start, end := 0, len(r)
	for start < end && unicode.IsSpace(r[start]) {
		start++
	}
	for end > start && unicode.IsSpace(r[end-1]) {
		end--
	}
	return r[start:end]
}
