// Package dedup matches extracted trucks against stored business records
// and merges them.
package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// genericPhrases describe the business type rather than name it.
var genericPhrases = []string{
	"food truck", "food trailer", "mobile kitchen", "street food", "food cart",
}

var (
	nonAlnumRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	foldCase   = cases.Fold()
)

// fold decomposes, strips combining marks and case-folds s.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return foldCase.String(out)
}

// cleanText folds s, maps "&" to "and" and collapses punctuation and
// whitespace to single spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(fold(s), "&", " and ")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// NameKey normalizes a business name for exact matching: accents and case
// are folded, punctuation dropped, and generic phrases such as "food
// truck" removed. A name made only of generic phrases keeps them.
func NameKey(name string) string {
	base := cleanText(name)
	key := " " + base + " "
	for _, p := range genericPhrases {
		key = strings.ReplaceAll(key, " "+p+" ", " ")
	}
	key = strings.Join(strings.Fields(key), " ")
	if key == "" {
		return base
	}
	return key
}

// prefixLen is the number of leading characters candidates must share.
const prefixLen = 3

// NamePrefix returns the candidate-lookup prefix of a name key.
func NamePrefix(key string) string {
	r := []rune(key)
	if len(r) > prefixLen {
		r = r[:prefixLen]
	}
	return string(r)
}
