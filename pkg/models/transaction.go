package models

import (
	"strconv"
	"time"
)

// Category is one of the fixed ledger category identifiers.
type Category string

const (
	CategoryHousing        Category = "housing"
	CategoryFood           Category = "food"
	CategoryTransportation Category = "transportation"
	CategoryUtilities      Category = "utilities"
	CategoryHealthcare     Category = "healthcare"
	CategoryEntertainment  Category = "entertainment"
	CategoryShopping       Category = "shopping"
	CategoryEducation      Category = "education"
	CategorySavings        Category = "savings"
	CategoryOther          Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryHousing,
	CategoryFood,
	CategoryTransportation,
	CategoryUtilities,
	CategoryHealthcare,
	CategoryEntertainment,
	CategoryShopping,
	CategoryEducation,
	CategorySavings,
	CategoryOther,
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Type is the direction of money flow.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// Status is the clearing state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ImportedTransaction is a normalized statement row. Amount is always a
// non-negative magnitude; direction lives in Type.
type ImportedTransaction struct {
	Row         int      `json:"row"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Amount      float64  `json:"amount"`
	Category    Category `json:"category"`
	Type        Type     `json:"type"`
	Status      Status   `json:"status"`
	Notes       string   `json:"notes,omitempty"`
}

// SignedAmount returns Amount negated for expenses.
func (t ImportedTransaction) SignedAmount() float64 {
	if t.Type == TypeExpense {
		return -t.Amount
	}
	return t.Amount
}

// ExportHeader is the column order of CSVRow.
var ExportHeader = []string{"Date", "Description", "Category", "Type", "Status", "Amount", "Notes"}

// CSVRow renders the transaction in ExportHeader order.
func (t ImportedTransaction) CSVRow() []string {
	return []string{
		t.Date,
		t.Description,
		string(t.Category),
		string(t.Type),
		string(t.Status),
		strconv.FormatFloat(t.Amount, 'f', 2, 64),
		t.Notes,
	}
}

// Transaction is an ImportedTransaction that was confirmed and merged into
// the ledger.
type Transaction struct {
	ImportedTransaction
	ID         string    `json:"id"`
	Source     string    `json:"source,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
}

// Filter narrows ledger queries. Zero values match everything.
type Filter struct {
	From      string // inclusive YYYY-MM-DD
	To        string // inclusive YYYY-MM-DD
	Category  Category
	Type      Type
	Query     string  // description substring
	MinAmount float64 // inclusive, on the unsigned amount
	MaxAmount float64 // inclusive, on the unsigned amount
	Limit     int
}

// CategoryMapping auto-categorizes transactions whose description contains
// Pattern and whose own category is absent or unrecognized.
type CategoryMapping struct {
	Pattern  string   `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	Category Category `json:"category" yaml:"category" mapstructure:"category"`
}
