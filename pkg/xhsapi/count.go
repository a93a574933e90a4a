package xhsapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// suffixFactors maps the count-abbreviation suffixes observed on the wire to
// their multiplier (spec.md §9 design note).
var suffixFactors = map[string]float64{
	"万": 10000,
	"w": 10000,
	"W": 10000,
}

// ParseCount accepts a raw JSON count field that may arrive as a native
// integer, a plain digit string, or a suffixed string like "2.1万" / "3.5w",
// and normalizes all three into an int. This is the single parser spec.md
// §9 calls for instead of scattering ad hoc field-by-field parsing.
func ParseCount(raw json.RawMessage) (int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, nil
	}

	// Native JSON number.
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return int(n), nil
	}

	// JSON string: unquote, then check for a trailing suffix.
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("parsing count %q: %w", trimmed, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	for suffix, factor := range suffixFactors {
		if strings.HasSuffix(s, suffix) {
			numPart := strings.TrimSuffix(s, suffix)
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("parsing count %q: %w", s, err)
			}
			return int(n * factor), nil
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing count %q: %w", s, err)
	}
	return int(n), nil
}
