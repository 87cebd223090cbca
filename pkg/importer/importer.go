package importer

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/normalize"
)

// RejectReason says why a row was left out of a batch.
type RejectReason string

const (
	ReasonMissingDate        RejectReason = "missing_date"
	ReasonMissingAmount      RejectReason = "missing_amount"
	ReasonInvalidAmount      RejectReason = "invalid_amount"
	ReasonNonPositiveAmount  RejectReason = "non_positive_amount"
	ReasonMissingDescription RejectReason = "missing_description"
	ReasonInvalidDate        RejectReason = "invalid_date"
)

// Rejection records a dropped row. Row is the 0-based data row index.
type Rejection struct {
	Row    int          `json:"row"`
	Reason RejectReason `json:"reason"`
}

// WarningDateDefaulted marks a row whose date could not be parsed and was
// replaced with today's date.
const WarningDateDefaulted = "date_defaulted"

// Warning is an accepted row that needs a second look.
type Warning struct {
	Row   int    `json:"row"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Result is the outcome of one import run.
type Result struct {
	Source   string                       `json:"source"`
	Mapping  models.FieldMapping          `json:"mapping"`
	Accepted []models.ImportedTransaction `json:"accepted"`
	Rejected []Rejection                  `json:"rejected"`
	Warnings []Warning                    `json:"warnings"`
}

// Skipped returns how many rows were dropped.
func (r *Result) Skipped() int {
	return len(r.Rejected)
}

// Totals sums the accepted batch per direction.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// Totals adds up accepted amounts in decimal so cents do not drift.
func (r *Result) Totals() Totals {
	var t Totals
	for _, tx := range r.Accepted {
		amount := decimal.NewFromFloat(tx.Amount).Round(2)
		if tx.Type == models.TypeIncome {
			t.Income = t.Income.Add(amount)
		} else {
			t.Expense = t.Expense.Add(amount)
		}
	}
	t.Net = t.Income.Sub(t.Expense)
	return t
}

// Importer turns a parsed Sheet into a batch of transactions ready for
// preview. It never touches the ledger; merging is the caller's decision.
type Importer struct {
	logger     *log.Logger
	normalizer *normalize.Normalizer
	aliases    normalize.Aliases
	policy     normalize.DatePolicy
	allowEmpty bool
}

// Option configures an Importer.
type Option func(*Importer)

func WithNormalizer(n *normalize.Normalizer) Option {
	return func(i *Importer) {
		i.normalizer = n
	}
}

func WithAliases(a normalize.Aliases) Option {
	return func(i *Importer) {
		i.aliases = a
	}
}

func WithDatePolicy(p normalize.DatePolicy) Option {
	return func(i *Importer) {
		i.policy = p
	}
}

// WithEmptyDescriptions accepts rows without a description; they carry the
// normalizer's placeholder instead of being rejected.
func WithEmptyDescriptions(allow bool) Option {
	return func(i *Importer) {
		i.allowEmpty = allow
	}
}

// New returns a new Importer instance.
func New(logger *log.Logger, opts ...Option) *Importer {
	i := &Importer{
		logger:     logger,
		normalizer: normalize.New(),
		aliases:    normalize.DefaultAliases(),
		policy:     normalize.DateLenient,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// WithPolicy returns a copy of i that applies policy p to unparseable dates.
func (i *Importer) WithPolicy(p normalize.DatePolicy) *Importer {
	c := *i
	c.policy = p
	return &c
}

// WithMappings returns a copy of i that categorizes with mappings instead of
// its normalizer's own table.
func (i *Importer) WithMappings(mappings []models.CategoryMapping) *Importer {
	c := *i
	c.normalizer = i.normalizer.With(normalize.WithCategoryMappings(mappings))
	return &c
}

// Policy returns the date policy in effect.
func (i *Importer) Policy() normalize.DatePolicy {
	return i.policy
}

// Resolve matches the sheet's headers against the configured aliases.
func (i *Importer) Resolve(sheet *models.Sheet) (models.FieldMapping, error) {
	m, err := normalize.ResolveColumns(sheet.Headers(), i.aliases)
	if err != nil {
		return nil, fmt.Errorf("resolving columns of %s: %w", sheet.Name, err)
	}
	i.logger.Debug("resolved columns", "file", sheet.Name, "mapping", m)
	return m, nil
}

// Import normalizes and validates every row of sheet under mapping m. A nil
// mapping is resolved from the sheet's headers. Mapping problems fail the
// whole import; bad rows are reported in Result.Rejected.
func (i *Importer) Import(sheet *models.Sheet, m models.FieldMapping) (*Result, error) {
	if m == nil {
		resolved, err := i.Resolve(sheet)
		if err != nil {
			return nil, err
		}
		m = resolved
	} else {
		if err := normalize.Validate(m); err != nil {
			return nil, err
		}
		if err := normalize.CheckHeaders(m, sheet.Headers()); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Source:   sheet.Name,
		Mapping:  m,
		Accepted: make([]models.ImportedTransaction, 0, sheet.Len()),
	}

	for _, row := range sheet.Rows() {
		tx, facts := i.normalizer.Row(row, m)

		if reason, ok := i.check(facts); !ok {
			i.logger.Debug("skipping row", "row", row.Index, "reason", reason, "date", facts.RawDate, "amount", facts.RawAmount)
			res.Rejected = append(res.Rejected, Rejection{Row: row.Index, Reason: reason})
			continue
		}

		if !facts.DateOK && i.policy == normalize.DateFlag {
			res.Warnings = append(res.Warnings, Warning{Row: row.Index, Kind: WarningDateDefaulted, Value: facts.RawDate})
		}
		res.Accepted = append(res.Accepted, tx)
	}

	i.logger.Info("import complete",
		"file", sheet.Name,
		"accepted", len(res.Accepted),
		"skipped", res.Skipped(),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// check is the validation predicate. Reasons are tested in a fixed order so a
// row with several problems always reports the same one.
func (i *Importer) check(f normalize.Facts) (RejectReason, bool) {
	switch {
	case f.RawDate == "":
		return ReasonMissingDate, false
	case f.RawAmount == "":
		return ReasonMissingAmount, false
	case !f.AmountOK:
		return ReasonInvalidAmount, false
	case f.SignedAmount == 0:
		return ReasonNonPositiveAmount, false
	case f.RawDescription == "" && !i.allowEmpty:
		return ReasonMissingDescription, false
	case !f.DateOK && i.policy == normalize.DateStrict:
		return ReasonInvalidDate, false
	}
	return "", true
}
