package ledger

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// arabicLetterFolder collapses letter variants that shop staff type
// interchangeably: hamza-carrying alefs, taa marbuta and alef maksura.
var arabicLetterFolder = strings.NewReplacer(
	"أ", "ا", "إ", "ا", "آ", "ا", "ٱ", "ا",
	"ة", "ه", "ى", "ي", "ـ", "",
)

// NormalizeName folds a display name into a matching key: compatibility
// normalized, diacritics (including Arabic harakat) removed, case folded,
// letter variants collapsed and whitespace squeezed.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)
	folded = arabicLetterFolder.Replace(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// PhoneDigits keeps only the digits of a phone number, in ASCII.
func PhoneDigits(s string) string {
	s = digitFolder.Replace(s)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sameName compares two names case-insensitively.
func sameName(a, b string) bool {
	return a != "" && NormalizeName(a) == NormalizeName(b)
}
