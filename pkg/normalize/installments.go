package normalize

import (
	"regexp"
	"strings"
)

var installmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`תשלום\s*(\d+)\s*מתוך\s*(\d+)`),
	regexp.MustCompile(`(?i)installment\s*(\d+)\s*of\s*(\d+)`),
}

// Installments extracts current/total installment numbers from notes.
func Installments(notes string) (current, total string, ok bool) {
	for _, re := range installmentPatterns {
		if m := re.FindStringSubmatch(notes); m != nil {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

// AnnotateInstallments appends "current/total" to notes that describe an
// installment payment. Other notes are returned unchanged.
func AnnotateInstallments(notes string) string {
	current, total, ok := Installments(notes)
	if !ok {
		return notes
	}
	return strings.TrimSpace(notes) + " " + current + "/" + total
}
