package executors

import (
	"context"
	"fmt"
	"os"

	"github.com/yurifrl/budgetu/pkg/importer"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/plan"
	"github.com/yurifrl/budgetu/pkg/reconcile"
)

// Preview is an imported batch reconciled against the ledger, waiting for
// the user to confirm or discard it.
type Preview struct {
	Source string
	Result *importer.Result
	Report *reconcile.Report
}

// PreviewBytes parses and imports a statement, then matches the accepted rows
// against ledger transactions in the same date range. A nil mapping resolves
// columns from aliases. Nothing is written.
func (e *Executor) PreviewBytes(ctx context.Context, data []byte, filename, source string, m models.FieldMapping) (*Preview, error) {
	sheet, err := e.parser.ProcessBytes(data, filename)
	if err != nil {
		return nil, err
	}

	imp, err := e.importerFor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := imp.Import(sheet, m)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = filename
	}
	res.Source = source

	existing, err := e.existing(ctx, res.Accepted)
	if err != nil {
		return nil, err
	}

	report := reconcile.Build(res.Accepted, existing)
	e.logger.Debug("built preview", "source", source, "accepted", len(res.Accepted), "rejected", res.Skipped(), "to_add", report.MissingCount(), "in_sync", report.InSyncCount())

	return &Preview{Source: source, Result: res, Report: report}, nil
}

// Plan previews one plan statement and renders it.
func (e *Executor) Plan(ctx context.Context, st plan.Statement) (*Preview, error) {
	e.logger.Debug("planning statement", "file", st.File)

	data, err := os.ReadFile(st.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}
	m, err := st.FieldMapping()
	if err != nil {
		return nil, fmt.Errorf("statement %s: %w", st.File, err)
	}

	pv, err := e.PreviewBytes(ctx, data, st.File, st.Source, m)
	if err != nil {
		return nil, fmt.Errorf("statement %s: %w", st.File, err)
	}
	Render(e.out, pv, e.money)
	return pv, nil
}

// existing lists ledger transactions between the earliest and latest date of
// the batch.
func (e *Executor) existing(ctx context.Context, batch []models.ImportedTransaction) ([]models.Transaction, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	from, to := batch[0].Date, batch[0].Date
	for _, tx := range batch[1:] {
		if tx.Date < from {
			from = tx.Date
		}
		if tx.Date > to {
			to = tx.Date
		}
	}
	txs, err := e.ledger.List(ctx, models.Filter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	return txs, nil
}
