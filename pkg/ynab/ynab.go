package ynab

import (
	"errors"
	"fmt"
	"math"

	"github.com/brunomvsouza/ynab.go"
	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/transaction"
	"github.com/charmbracelet/log"

	"github.com/yurifrl/budgetu/pkg/compare"
	"github.com/yurifrl/budgetu/pkg/models"
)

// ErrNotConfigured is returned by NewExporter when the budget, account or
// token is missing.
var ErrNotConfigured = errors.New("ynab export is not configured")

// TransactionCreator is the part of the YNAB transaction service the
// exporter needs.
type TransactionCreator interface {
	CreateTransactions(budgetID string, p []transaction.PayloadTransaction) (*transaction.OperationSummary, error)
}

// Exporter pushes confirmed ledger transactions into one YNAB account.
type Exporter struct {
	logger    *log.Logger
	budgetID  string
	accountID string
	service   TransactionCreator
}

// NewExporter builds an Exporter backed by the YNAB API client.
func NewExporter(logger *log.Logger, token, budgetID, accountID string) (*Exporter, error) {
	if token == "" || budgetID == "" || accountID == "" {
		return nil, ErrNotConfigured
	}
	client := ynab.NewClient(token)
	return NewExporterWith(logger, client.Transaction(), budgetID, accountID), nil
}

// NewExporterWith builds an Exporter over any TransactionCreator.
func NewExporterWith(logger *log.Logger, service TransactionCreator, budgetID, accountID string) *Exporter {
	return &Exporter{
		logger:    logger,
		budgetID:  budgetID,
		accountID: accountID,
		service:   service,
	}
}

// Payloads converts transactions into YNAB API payloads. Amounts become
// milliunits with outflows negative; cancelled transactions are left out.
func (e *Exporter) Payloads(txs []models.Transaction) ([]transaction.PayloadTransaction, error) {
	out := make([]transaction.PayloadTransaction, 0, len(txs))
	for _, t := range txs {
		if t.Status == models.StatusCancelled {
			continue
		}

		date, err := api.DateFromString(t.Date)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}

		cleared := transaction.ClearingStatusCleared
		if t.Status == models.StatusPending {
			cleared = transaction.ClearingStatusUncleared
		}

		payee := t.Description
		importID := "budgetu:" + compare.ID(t.ImportedTransaction)
		p := transaction.PayloadTransaction{
			AccountID: e.accountID,
			Date:      date,
			Amount:    Milliunits(t.SignedAmount()),
			Cleared:   cleared,
			Approved:  true,
			PayeeName: &payee,
			ImportID:  &importID,
		}
		if t.Notes != "" {
			memo := t.Notes
			p.Memo = &memo
		}
		out = append(out, p)
	}
	return out, nil
}

// Push creates txs in YNAB with a single API call.
func (e *Exporter) Push(txs []models.Transaction) (int, error) {
	payloads, err := e.Payloads(txs)
	if err != nil {
		return 0, err
	}
	if len(payloads) == 0 {
		return 0, nil
	}
	if _, err := e.service.CreateTransactions(e.budgetID, payloads); err != nil {
		return 0, fmt.Errorf("failed to create transactions: %w", err)
	}
	e.logger.Info("created ynab transactions", "count", len(payloads), "account_id", e.accountID)
	return len(payloads), nil
}

// Milliunits converts a currency amount to YNAB's integer milliunits.
func Milliunits(amount float64) int64 {
	return int64(math.Round(amount * 1000))
}
