package models

import "strings"

// MaxPrefixLength bounds the prefixes considered when matching a number
const MaxPrefixLength = 15

// NormalizeNumber strips everything but digits, so "+44 20 7946" becomes "44207946".
func NormalizeNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PrefixesOf returns every leading substring of the normalized number, longest first.
func PrefixesOf(number string) []string {
	digits := NormalizeNumber(number)
	if len(digits) > MaxPrefixLength {
		digits = digits[:MaxPrefixLength]
	}
	out := make([]string, 0, len(digits))
	for i := len(digits); i > 0; i-- {
		out = append(out, digits[:i])
	}
	return out
}
