package nameparse

import (
	"fmt"
	"regexp"
	"strings"
)

// Name is a parsed instructor name, dialect-agnostic once constructed.
type Name struct {
	First    string
	Last     string
	Suffix   string
	Nickname string // non-empty if the source carried a parenthesized/quoted alias
}

// ParseERPName parses the ERP display form "Last, First Middle" (+ optional
// suffix). Total and pure: returns an error rather than panicking on
// unparseable input, never on malformed HTML entities (those just decode to
// themselves).
func ParseERPName(raw string) (Name, error) {
	raw = decodeEntities(strings.TrimSpace(raw))
	if raw == "" {
		return Name{}, fmt.Errorf("empty ERP name")
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return Name{}, fmt.Errorf("ERP name %q missing comma separator", raw)
	}
	last := strings.TrimSpace(parts[0])
	firstMiddle := strings.TrimSpace(parts[1])
	if last == "" || firstMiddle == "" {
		return Name{}, fmt.Errorf("ERP name %q has an empty part", raw)
	}

	first, suffix := splitSuffix(firstMiddle)
	if suffix == "" {
		// The suffix may instead trail the last name, e.g. "Smith Jr, John".
		last, suffix = splitSuffix(last)
	}
	return Name{First: strings.TrimSpace(first), Last: last, Suffix: suffix}, nil
}

var (
	parenNickname  = regexp.MustCompile(`\(([^)]+)\)`)
	quotedNickname = regexp.MustCompile(`["“”]([^"“”]+)["“”]`)
	emailLike      = regexp.MustCompile(`\S+@\S+`)
)

// ParseRatingSiteName parses the rating site's separate first/last fields,
// extracting a nickname from parentheses or (smart-)quotes, stripping a
// trailing comma, rejecting email-address-shaped first names (a known
// upstream data-quality issue), and splitting a suffix off the last name.
func ParseRatingSiteName(first, last string) (Name, error) {
	first = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(first), ","))
	last = strings.TrimSpace(last)
	if first == "" || last == "" {
		return Name{}, fmt.Errorf("rating-site name missing first or last part")
	}
	if emailLike.MatchString(first) {
		return Name{}, fmt.Errorf("rating-site first name %q looks like an email address", first)
	}

	var nickname string
	if m := parenNickname.FindStringSubmatch(first); m != nil {
		nickname = strings.TrimSpace(m[1])
		first = strings.TrimSpace(parenNickname.ReplaceAllString(first, ""))
	} else if m := quotedNickname.FindStringSubmatch(first); m != nil {
		nickname = strings.TrimSpace(m[1])
		first = strings.TrimSpace(quotedNickname.ReplaceAllString(first, ""))
	}

	lastClean, suffix := splitSuffix(last)
	return Name{First: first, Last: lastClean, Suffix: suffix, Nickname: nickname}, nil
}

var evalTerm = regexp.MustCompile(`(?i)^(spr|sum\s*i{1,2}|fall|fa|spring|summer)\s+(\d{4})$`)

// EvaluationTerm is a parsed evaluation-site term, already collapsed to the
// ERP's season vocabulary ("Spring" | "Summer" | "Fall").
type EvaluationTerm struct {
	Season string
	Year   int
}

// ParseEvaluationTerm parses strings like "Spr 2026" or "Sum II 2026",
// collapsing "Sum I" and "Sum II" to a single "Summer" season so both halves
// of the summer term match the ERP's single-season encoding.
func ParseEvaluationTerm(raw string) (EvaluationTerm, error) {
	raw = strings.TrimSpace(raw)
	m := evalTerm.FindStringSubmatch(raw)
	if m == nil {
		return EvaluationTerm{}, fmt.Errorf("unrecognized evaluation-site term %q", raw)
	}
	season := strings.ToLower(strings.Join(strings.Fields(m[1]), ""))
	var year int
	if _, err := fmt.Sscanf(m[2], "%d", &year); err != nil {
		return EvaluationTerm{}, fmt.Errorf("unrecognized year in term %q: %w", raw, err)
	}

	switch {
	case strings.HasPrefix(season, "spr"):
		return EvaluationTerm{Season: "Spring", Year: year}, nil
	case strings.HasPrefix(season, "sum"):
		return EvaluationTerm{Season: "Summer", Year: year}, nil
	case strings.HasPrefix(season, "fa"):
		return EvaluationTerm{Season: "Fall", Year: year}, nil
	default:
		return EvaluationTerm{}, fmt.Errorf("unrecognized season in term %q", raw)
	}
}
