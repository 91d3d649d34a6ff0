// Package phone canonicalizes Vietnamese phone numbers so that every written
// form of the same number maps to one dedup key.
package phone

import "strings"

const countryCode = "84"

// Normalize strips separators and a leading '+', then rewrites a leading
// country code "84" into the domestic "0" prefix. It is idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i, r := range strings.TrimSpace(raw) {
		switch r {
		case '.', '-', ' ', '\t', '(', ')':
			continue
		case '+':
			if i == 0 {
				continue
			}
		}
		b.WriteRune(r)
	}
	out := b.String()
	if strings.HasPrefix(out, countryCode) && len(out) > len(countryCode) {
		out = "0" + out[len(countryCode):]
	}
	return out
}

// Equal reports whether two raw representations denote the same number.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
