package normalize

import (
	"testing"

	"github.com/yurifrl/budgetu/pkg/models"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		input string
		want  models.Category
	}{
		{"housing", models.CategoryHousing},
		{"Housing", models.CategoryHousing},
		{"  RENT ", models.CategoryHousing},
		{"מזון", models.CategoryFood},
		{"סופר", models.CategoryFood},
		{"דלק", models.CategoryTransportation},
		{"Gas  Station", models.CategoryTransportation},
		{"חשמל", models.CategoryUtilities},
		{"בית מרקחת", models.CategoryHealthcare},
		{"quantum computing", models.CategoryOther},
		{"", models.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeCategory(tt.input); got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeCategory_Idempotent(t *testing.T) {
	for _, c := range models.Categories {
		once := NormalizeCategory(string(c))
		twice := NormalizeCategory(string(once))
		if once != c || twice != c {
			t.Errorf("category %q normalized to %q then %q", c, once, twice)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		input string
		want  models.Status
	}{
		{"pending", models.StatusPending},
		{"בהמתנה", models.StatusPending},
		{"Canceled", models.StatusCancelled},
		{"בוטל", models.StatusCancelled},
		{"בוצע", models.StatusCompleted},
		{"whatever", models.StatusCompleted},
		{"", models.StatusCompleted},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.input); got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		input string
		want  models.Type
	}{
		{"income", models.TypeIncome},
		{"INCOME", models.TypeIncome},
		{"זיכוי", models.TypeIncome},
		{"הכנסה", models.TypeIncome},
		{"חיוב", models.TypeExpense},
		{"expense", models.TypeExpense},
		{"unknown", models.TypeExpense},
	}

	for _, tt := range tests {
		if got := NormalizeType(tt.input); got != tt.want {
			t.Errorf("NormalizeType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
