// Package nameparse implements the three instructor-name dialects found in
// the upstream sources, a shared normalization/matching-key scheme, and the
// two transactional auto-match pipelines that tie evaluation-site and
// rating-site names back to canonical instructors (spec §4.5).
package nameparse

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases, NFD-decomposes, strips combining marks, and drops
// every non-alphabetic rune (including whitespace and hyphens). It is
// idempotent: Normalize(Normalize(s)) == Normalize(s) (property P4).
func Normalize(s string) string {
	s = strings.ToLower(s)
	decomposed := norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark, dropped by NFD-then-strip
		}
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// decodeEntities unescapes HTML entities such as "&amp;" that appear in
// ERP-rendered display names.
func decodeEntities(s string) string {
	return html.UnescapeString(s)
}

// knownSuffixes are recognized generational/professional suffixes, matched
// case-insensitively with an optional trailing period.
var knownSuffixes = []string{"ii", "iii", "iv", "jr", "sr"}

// splitSuffix detects a trailing suffix token in a whitespace-delimited
// name part, returning the remainder and the canonicalized suffix (empty if
// none found).
func splitSuffix(s string) (rest, suffix string) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return s, ""
	}
	last := strings.ToLower(strings.TrimSuffix(fields[len(fields)-1], "."))
	for _, known := range knownSuffixes {
		if last == known {
			return strings.Join(fields[:len(fields)-1], " "), canonicalSuffix(last)
		}
	}
	return s, ""
}

func canonicalSuffix(lower string) string {
	switch lower {
	case "ii":
		return "II"
	case "iii":
		return "III"
	case "iv":
		return "IV"
	case "jr":
		return "Jr"
	case "sr":
		return "Sr"
	default:
		return ""
	}
}
