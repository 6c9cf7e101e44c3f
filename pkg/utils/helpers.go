package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseDuration safely parses duration string like "5m"
func ParseDuration(d string) time.Duration {
	if d == "" {
		return 5 * time.Minute
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return 5 * time.Minute
	}
	return duration
}

// normalizeDecimal applies the lenient comma-decimal policy: "," becomes "."
// and surrounding whitespace is removed.
func normalizeDecimal(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
}

// looksNumeric reports whether s is an optional leading "-" followed by
// digits containing at most one ".".
func looksNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	dots, digits := 0, 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
			if dots > 1 {
				return false
			}
		case r >= '0' && r <= '9':
			digits++
		default:
			return false
		}
	}
	return digits > 0
}

// ParseNumber converts a raw property value to float64 using the
// comma-as-decimal policy. It never panics; ok is false when the value has no
// numeric reading.
func ParseNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case bool:
		return 0, false
	case string:
		s := normalizeDecimal(val)
		if !looksNumeric(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return ParseNumber(fmt.Sprint(v))
	}
}

// NumberOrZero is ParseNumber with malformed input mapped to 0.0.
func NumberOrZero(v any) float64 {
	f, _ := ParseNumber(v)
	return f
}

// CoerceCell converts a property value for a long-form row. Values of fields
// flagged neverConvert come back as strings with an integer float's ".0"
// suffix stripped ("531.0" -> "531"); everything else becomes a float64 when it
// parses, or stays as it was.
func CoerceCell(v any, neverConvert bool) any {
	if v == nil {
		return nil
	}
	if neverConvert {
		s := strings.TrimSpace(Stringify(v))
		if looksNumeric(normalizeDecimal(s)) {
			s = strings.TrimSuffix(s, ".0")
		}
		return s
	}
	if f, ok := ParseNumber(v); ok {
		return f
	}
	return v
}

// Stringify renders a raw property value the way it is shown in labels.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// RoundTo rounds f to the given number of decimal places.
func RoundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
