// Package textnorm normalises free-form names for comparison.
//
// Room names, device names and intent phrases arrive in whatever case,
// width and punctuation a person or an LLM chose. Normalize folds them to
// one comparable form: NFKC, Unicode case folding, punctuation and
// separators turned into spaces, whitespace collapsed.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparable form of s.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// A Caser is stateful, so one is made per call.
	folded := cases.Fold().String(norm.NFKC.String(s))

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return ' '
	}, folded)

	return strings.Join(strings.Fields(mapped), " ")
}

// Tokens returns the whitespace-separated words of Normalize(s).
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// Related reports whether two already-normalised strings are equal or one
// contains the other. Empty strings are never related.
func Related(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Squash removes spaces from a normalised string so "living room" and
// "livingroom" compare equal.
func Squash(s string) string {
	return strings.ReplaceAll(s, " ", "")
}
