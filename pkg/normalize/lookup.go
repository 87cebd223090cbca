package normalize

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/yurifrl/budgetu/pkg/models"
)

var categoryTable = buildTable(map[models.Category][]string{
	models.CategoryHousing:        {"housing", "home", "rent", "mortgage", "דיור", "שכירות", "משכנתא", "בית", "שכר דירה"},
	models.CategoryFood:           {"food", "groceries", "grocery", "restaurant", "restaurants", "מזון", "אוכל", "סופר", "סופרמרקט", "מסעדות", "מסעדה", "מכולת"},
	models.CategoryTransportation: {"transportation", "transport", "fuel", "gas station", "car", "parking", "taxi", "תחבורה", "דלק", "רכב", "חניה", "מונית", "תחבורה ציבורית"},
	models.CategoryUtilities:      {"utilities", "bills", "electricity", "water", "internet", "phone", "חשבונות", "חשמל", "מים", "גז", "ארנונה", "אינטרנט", "טלפון", "תקשורת"},
	models.CategoryHealthcare:     {"healthcare", "health", "medical", "pharmacy", "doctor", "בריאות", "רפואה", "תרופות", "בית מרקחת", "רופא", "קופת חולים"},
	models.CategoryEntertainment:  {"entertainment", "leisure", "fun", "movies", "בידור", "בילויים", "פנאי", "קולנוע", "תרבות"},
	models.CategoryShopping:       {"shopping", "clothing", "clothes", "קניות", "ביגוד", "הלבשה", "אופנה"},
	models.CategoryEducation:      {"education", "school", "tuition", "books", "חינוך", "לימודים", "ספרים", "שכר לימוד", "גן"},
	models.CategorySavings:        {"savings", "investment", "investments", "saving", "חיסכון", "חסכון", "השקעות", "השקעה"},
	models.CategoryOther:          {"other", "misc", "miscellaneous", "אחר", "שונות", "כללי"},
})

var statusTable = buildTable(map[models.Status][]string{
	models.StatusPending:   {"pending", "processing", "ממתין", "בהמתנה", "בתהליך", "עסקה בקליטה"},
	models.StatusCompleted: {"completed", "complete", "done", "cleared", "posted", "הושלם", "בוצע", "שולם", "נקלט"},
	models.StatusCancelled: {"cancelled", "canceled", "void", "בוטל", "מבוטל", "בוטלה"},
})

var typeTable = buildTable(map[models.Type][]string{
	models.TypeIncome:  {"income", "credit", "deposit", "הכנסה", "הכנסות", "זיכוי", "הפקדה"},
	models.TypeExpense: {"expense", "debit", "withdrawal", "הוצאה", "הוצאות", "חיוב", "משיכה"},
})

// NormalizeCategory maps free text onto a category identifier. Unknown text
// yields CategoryOther; canonical identifiers map to themselves.
func NormalizeCategory(s string) models.Category {
	if c, ok := lookupCategory(s); ok {
		return c
	}
	return models.CategoryOther
}

// lookupCategory reports whether s names a category, "other" included.
func lookupCategory(s string) (models.Category, bool) {
	c, ok := categoryTable[fold(s)]
	return c, ok
}

// NormalizeStatus maps free text onto a status, defaulting to StatusCompleted.
func NormalizeStatus(s string) models.Status {
	if st, ok := statusTable[fold(s)]; ok {
		return st
	}
	return models.StatusCompleted
}

// NormalizeType maps free text onto a type, defaulting to TypeExpense.
func NormalizeType(s string) models.Type {
	if t, ok := typeTable[fold(s)]; ok {
		return t
	}
	return models.TypeExpense
}

func buildTable[T ~string](in map[T][]string) map[string]T {
	out := make(map[string]T)
	for canonical, tokens := range in {
		out[fold(string(canonical))] = canonical
		for _, tok := range tokens {
			out[fold(tok)] = canonical
		}
	}
	return out
}

// fold trims and case-folds s. A Caser is stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
