package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DatePolicy decides what happens to a row whose date cell cannot be parsed.
type DatePolicy string

const (
	// DateLenient substitutes today's date silently.
	DateLenient DatePolicy = "lenient"
	// DateFlag substitutes today's date and reports a warning for the row.
	DateFlag DatePolicy = "flag"
	// DateStrict rejects the row.
	DateStrict DatePolicy = "strict"
)

// ParseDatePolicy validates a policy name; "" means DateLenient.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch p := DatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DateLenient, nil
	case DateLenient, DateFlag, DateStrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown date policy %q (want lenient, flag or strict)", s)
	}
}

// ParseDate converts DD-MM-YYYY / DD/MM/YYYY (two- or four-digit year) to
// YYYY-MM-DD. Two-digit years are read as 20YY. ISO dates pass through.
// Anything else yields now's date and ok=false.
func ParseDate(s string, now time.Time) (date string, ok bool) {
	today := now.Format(time.DateOnly)

	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i] // drop a trailing time component
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '/' })
	if len(parts) != 3 || strings.Count(s, "-")+strings.Count(s, "/") != 2 {
		return today, false
	}
	for _, p := range parts {
		if !isDigits(p) {
			return today, false
		}
	}

	day, month, year := parts[0], parts[1], parts[2]
	if len(day) == 4 {
		year, day = day, year // YYYY-MM-DD
	}

	switch len(year) {
	case 2:
		year = "20" + year
	case 4:
	default:
		return today, false
	}
	if len(day) > 2 || len(month) > 2 {
		return today, false
	}

	out := fmt.Sprintf("%s-%s-%s", year, pad2(month), pad2(day))
	if _, err := time.Parse(time.DateOnly, out); err != nil {
		return today, false
	}
	return out, true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}
