package normalize

import "github.com/yurifrl/budgetu/pkg/models"

// Aliases lists, per canonical field, the header strings accepted for it in
// priority order.
type Aliases map[models.Field][]string

// DefaultAliases returns the built-in English and Hebrew header table.
func DefaultAliases() Aliases {
	return Aliases{
		models.FieldDate: {
			"date", "Date", "DATE",
			"תאריך", "תאריך עסקה", "תאריך רכישה", "תאריך חיוב", "תאריך ערך",
			"Transaction Date", "Posting Date",
		},
		models.FieldAmount: {
			"amount", "Amount", "AMOUNT",
			"סכום", "סכום חיוב", "סכום העסקה", "סכום עסקה", "סכום בש\"ח", "חובה/זכות",
			"Sum", "Value",
		},
		models.FieldDescription: {
			"description", "Description", "DESCRIPTION",
			"תיאור", "שם בית העסק", "שם בית עסק", "פרטים", "תיאור התנועה", "בית עסק",
			"Payee", "Merchant", "Details",
		},
		models.FieldCategory: {
			"category", "Category", "CATEGORY",
			"קטגוריה", "ענף",
		},
		models.FieldType: {
			"type", "Type", "TYPE",
			"סוג", "סוג עסקה", "סוג תנועה",
		},
		models.FieldStatus: {
			"status", "Status", "STATUS",
			"סטטוס", "מצב",
		},
		models.FieldNotes: {
			"notes", "Notes", "NOTES",
			"הערות", "פירוט נוסף", "הערה",
			"Memo", "memo",
		},
	}
}

// Merge returns a copy of a where every field present in overrides has its
// override aliases tried first, followed by the remaining defaults.
func (a Aliases) Merge(overrides Aliases) Aliases {
	out := make(Aliases, len(a))
	for f, list := range a {
		out[f] = append([]string(nil), list...)
	}
	for f, list := range overrides {
		merged := append([]string(nil), list...)
		for _, alias := range out[f] {
			if !contains(merged, alias) {
				merged = append(merged, alias)
			}
		}
		out[f] = merged
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
