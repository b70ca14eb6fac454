package reconcile

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lower-cases s and strips diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over folded
// runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	fa, fb := fold(a), fold(b)
	longest := max(utf8.RuneCountInString(fa), utf8.RuneCountInString(fb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.Distance(fa, fb, nil))/float64(longest)
}
