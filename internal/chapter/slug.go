package chapter

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugBytes is the widest slug a bundle block can hold.
const MaxSlugBytes = 48

var lowerCaser = cases.Lower(language.Und)

// Slugify derives a lowercase ASCII-ish slug from title. Accents are folded
// away; every other run of non-alphanumerics becomes a single hyphen.
func Slugify(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}
	folded = lowerCaser.String(folded)

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return strings.TrimRight(TruncateUTF8(b.String(), MaxSlugBytes), "-")
}

// NormalizeSlug keeps a remote-provided slug when usable and derives one from
// title otherwise.
func NormalizeSlug(remote, title string) string {
	if s := strings.TrimSpace(remote); s != "" {
		return strings.TrimRight(TruncateUTF8(s, MaxSlugBytes), "-")
	}
	return Slugify(title)
}
