// Package textnorm folds free text so names and short replies typed on a
// phone keyboard can be compared reliably.
//
// The contract is: Normalize(a) == Normalize(b) means a and b refer to the
// same thing. Case, diacritics and repeated whitespace are ignored.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips combining marks and collapses whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Equal reports whether a and b are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Words splits normalized text into letter/digit runs.
func Words(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsPhrase reports whether phrase occurs in text as a run of whole
// words. "pode agendar" matches "Pode agendar sim!" but "ok" does not match
// "book".
func ContainsPhrase(text, phrase string) bool {
	needle := Words(phrase)
	if len(needle) == 0 {
		return false
	}
	haystack := Words(text)
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of phrases occurs in text.
func ContainsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return true
		}
	}
	return false
}
