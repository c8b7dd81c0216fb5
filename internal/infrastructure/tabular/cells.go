package tabular

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Spellings read as a missing value in text formats.
var nullMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
	"None": {},
}

// parseCell types a text cell: integer, then float, then string.
func parseCell(raw string) any {
	s := strings.TrimSpace(raw)
	if _, ok := nullMarkers[s]; ok {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) {
			return nil
		}
		return f
	}
	return raw
}

// formatFloat always keeps a decimal point so the value reads back as a float.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// formatCell renders a cell for text formats. Missing values become "".
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return formatFloat(x)
	case string:
		return x
	default:
		return ""
	}
}

func header(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		out[i] = strings.TrimSpace(name)
	}
	return out
}

// uniqueNames names blank headers "Unnamed: i" and suffixes repeats with
// ".1", ".2" so every column stays addressable.
func uniqueNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		candidate := name
		for n := 1; ; n++ {
			if _, dup := seen[candidate]; !dup {
				break
			}
			candidate = fmt.Sprintf("%s.%d", name, n)
		}
		seen[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}
