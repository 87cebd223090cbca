package normalize

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/yurifrl/budgetu/pkg/models"
)

// DefaultPlaceholder replaces an empty description.
const DefaultPlaceholder = "ללא תיאור"

// Facts carries what the normalizer learned about the source cells, for the
// importer's validation predicate.
type Facts struct {
	RawDate        string
	RawAmount      string
	RawDescription string
	AmountOK       bool
	DateOK         bool
	SignedAmount   float64
}

// Normalizer turns RawRows into ImportedTransactions.
type Normalizer struct {
	placeholder string
	mappings    []models.CategoryMapping
	now         func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPlaceholder overrides the empty-description placeholder.
func WithPlaceholder(p string) Option {
	return func(n *Normalizer) {
		if p != "" {
			n.placeholder = p
		}
	}
}

// WithCategoryMappings sets the description → category table consulted for
// rows whose own category is absent or unrecognized. Longer patterns win.
func WithCategoryMappings(mappings []models.CategoryMapping) Option {
	return func(n *Normalizer) {
		n.mappings = nil
		for _, m := range mappings {
			if strings.TrimSpace(m.Pattern) == "" || !m.Category.Valid() {
				continue
			}
			n.mappings = append(n.mappings, m)
		}
		sort.SliceStable(n.mappings, func(i, j int) bool {
			return len(n.mappings[i].Pattern) > len(n.mappings[j].Pattern)
		})
	}
}

// WithClock sets the source of "today" for unparseable dates.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		placeholder: DefaultPlaceholder,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// With returns a copy of n with opts applied on top.
func (n *Normalizer) With(opts ...Option) *Normalizer {
	c := *n
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Row normalizes one row under mapping m.
func (n *Normalizer) Row(row models.RawRow, m models.FieldMapping) (models.ImportedTransaction, Facts) {
	facts := Facts{
		RawDate:        strings.TrimSpace(row.Get(m[models.FieldDate])),
		RawAmount:      strings.TrimSpace(row.Get(m[models.FieldAmount])),
		RawDescription: strings.TrimSpace(row.Get(m[models.FieldDescription])),
	}

	tx := models.ImportedTransaction{
		Row:         row.Index,
		Description: facts.RawDescription,
		Status:      models.StatusCompleted,
	}
	if tx.Description == "" {
		tx.Description = n.placeholder
	}

	tx.Date, facts.DateOK = ParseDate(facts.RawDate, n.now())

	facts.SignedAmount, facts.AmountOK = ParseAmount(facts.RawAmount)
	tx.Amount = math.Abs(facts.SignedAmount)

	tx.Type = n.resolveType(row, m, facts)

	if m.Has(models.FieldStatus) {
		tx.Status = NormalizeStatus(row.Get(m[models.FieldStatus]))
	}

	// Mappings only fill in a category the row does not name itself.
	if c, ok := lookupCategory(row.Get(m[models.FieldCategory])); ok {
		tx.Category = c
	} else {
		tx.Category = n.categorize(facts.RawDescription)
	}

	if notes := strings.TrimSpace(row.Get(m[models.FieldNotes])); notes != "" {
		tx.Notes = AnnotateInstallments(notes)
	}

	return tx, facts
}

// resolveType reads direction from a negative amount first, then from the
// type cell, and finally treats a remaining positive amount as income.
func (n *Normalizer) resolveType(row models.RawRow, m models.FieldMapping, facts Facts) models.Type {
	if facts.AmountOK && facts.SignedAmount < 0 {
		return models.TypeExpense
	}
	if raw := strings.TrimSpace(row.Get(m[models.FieldType])); raw != "" {
		return NormalizeType(raw)
	}
	if facts.AmountOK && facts.SignedAmount > 0 {
		return models.TypeIncome
	}
	return models.TypeExpense
}

func (n *Normalizer) categorize(description string) models.Category {
	if description == "" {
		return models.CategoryOther
	}
	desc := fold(description)
	for _, m := range n.mappings {
		if strings.Contains(desc, fold(m.Pattern)) {
			return m.Category
		}
	}
	return models.CategoryOther
}
