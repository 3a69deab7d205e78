// Package textnorm provides the text normalization shared by the intent
// engine and its keyword tables: lowercasing, diacritic stripping and
// word-level phrase matching.
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s and removes diacritics (NFD decomposition followed
// by removal of nonspacing combining marks). It is idempotent.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	// A fresh chain per call: transform.Transformer values carry state and
	// are not safe for concurrent use.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, lower)
	if err != nil {
		return lower
	}
	return out
}

// Words splits s into words. Any rune that is not a letter or a digit is a
// separator, so punctuation never sticks to a word.
func Words(s string) []string {
	var words []string
	var current strings.Builder

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// WordCount returns len(Words(s)).
func WordCount(s string) int {
	return len(Words(s))
}

// Canonical joins the words of s with single spaces.
func Canonical(s string) string {
	return strings.Join(Words(s), " ")
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments are expected to be normalized already.
func ContainsPhrase(text, phrase string) bool {
	p := Canonical(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+Canonical(text)+" ", " "+p+" ")
}

// ContainsAny reports whether any of phrases occurs in text on word
// boundaries.
func ContainsAny(text string, phrases []string) bool {
	if len(phrases) == 0 {
		return false
	}
	padded := " " + Canonical(text) + " "
	for _, phrase := range phrases {
		p := Canonical(phrase)
		if p != "" && strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// MatchPhrases returns the phrases found in words and the words left over
// once every match has been removed. phrases must already be ordered longest
// first (see SortLongestFirst) so that "pode ser" wins over "pode". Each
// phrase is removed in a single left-to-right pass, so the cost is linear in
// len(words) for a fixed table.
func MatchPhrases(words []string, phrases []string) (matched []string, rest []string) {
	rest = append([]string(nil), words...)
	for _, phrase := range phrases {
		pw := strings.Fields(phrase)
		if len(pw) == 0 || len(pw) > len(rest) {
			continue
		}
		kept := rest[:0]
		for i := 0; i < len(rest); {
			if hasPrefix(rest[i:], pw) {
				matched = append(matched, phrase)
				i += len(pw)
				continue
			}
			kept = append(kept, rest[i])
			i++
		}
		rest = kept
	}
	return matched, rest
}

func hasPrefix(words, phrase []string) bool {
	if len(phrase) > len(words) {
		return false
	}
	for j := range phrase {
		if words[j] != phrase[j] {
			return false
		}
	}
	return true
}

// SortLongestFirst orders phrases in place by descending word count, keeping
// declaration order among phrases of the same length.
func SortLongestFirst(phrases []string) {
	sort.SliceStable(phrases, func(i, j int) bool {
		return WordCount(phrases[i]) > WordCount(phrases[j])
	})
}
