package scoring

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MatchMode selects how a submitted value is compared with the correct answer.
type MatchMode string

const (
	// MatchNormalized compares NFC-normalized, trimmed, whitespace-collapsed,
	// case-folded forms.
	MatchNormalized MatchMode = "normalized"
	// MatchExact compares the raw strings byte for byte.
	MatchExact MatchMode = "exact"
)

// ParseMatchMode validates a configured match mode. Empty means normalized.
func ParseMatchMode(value string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", MatchNormalized:
		return MatchNormalized, nil
	case MatchExact:
		return MatchExact, nil
	default:
		return "", fmt.Errorf("unknown answer match mode %q", value)
	}
}

// Normalize returns the canonical form used by MatchNormalized.
func Normalize(value string) string {
	value = norm.NFC.String(value)
	value = strings.Join(strings.Fields(value), " ")
	// cases.Caser is stateful, so a fresh one is built per call.
	return cases.Fold().String(value)
}

// Equal reports whether submitted matches correct under the mode. An empty
// submission never matches.
func (m MatchMode) Equal(submitted, correct string) bool {
	if m == MatchExact {
		return submitted != "" && submitted == correct
	}
	normalized := Normalize(submitted)
	return normalized != "" && normalized == Normalize(correct)
}
