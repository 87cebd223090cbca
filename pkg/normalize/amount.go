package normalize

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount strips every character other than digits, '.' and '-' and
// parses the rest, so "₪1,234.50" reads as 1234.5 and "-150 ש\"ח" as -150.
// ok is false when nothing numeric is left.
func ParseAmount(s string) (amount float64, ok bool) {
	var b strings.Builder
	digits := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
			b.WriteRune(r)
		case r == '.' || r == '-':
			b.WriteRune(r)
		}
	}
	if !digits {
		return 0, false
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
