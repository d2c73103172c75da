// Package textnorm provides text normalization shared by header mapping and
// status normalization: diacritics stripping, case folding, and key collapsing.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold strips diacritics, lowercases and trims the input.
// "Confirmé " becomes "confirme".
func Fold(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Key folds the input and collapses every run of non-alphanumeric runes into
// a single space, yielding a stable lookup key for free-text labels.
// "Téléphone (client)" becomes "telephone client".
func Key(s string) string {
	folded := Fold(s)
	var b strings.Builder
	lastSpace := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
