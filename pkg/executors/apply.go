package executors

import (
	"context"
	"fmt"

	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/plan"
)

// Outcome reports what a confirmation wrote.
type Outcome struct {
	Merged []models.Transaction `json:"merged"`
	Pushed int                  `json:"pushed"`
}

// Confirm merges a preview into the ledger. Only entries missing from the
// ledger are merged unless allowDuplicates is set, in which case every
// accepted row is. A configured pusher then exports the merged rows; the
// merge is kept even when the export fails. Ledger resets are refused
// while it runs.
func (e *Executor) Confirm(ctx context.Context, pv *Preview, allowDuplicates bool) (*Outcome, error) {
	if e.session != nil {
		done, err := e.session.BeginImport(e.now())
		if err != nil {
			return nil, err
		}
		defer done()
	}

	batch := pv.Report.ToAdd()
	if allowDuplicates {
		batch = pv.Result.Accepted
	}
	if len(batch) == 0 {
		e.logger.Info("nothing to merge", "source", pv.Source)
		return &Outcome{}, nil
	}

	merged, err := e.ledger.Merge(ctx, batch, pv.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", pv.Source, err)
	}
	e.logger.Info("merged transactions", "source", pv.Source, "count", len(merged))

	out := &Outcome{Merged: merged}
	if e.pusher == nil {
		return out, nil
	}
	pushed, err := e.pusher.Push(merged)
	if err != nil {
		return out, fmt.Errorf("merged %d transactions but export failed: %w", len(merged), err)
	}
	out.Pushed = pushed
	return out, nil
}

// Apply plans and confirms every statement of p in order, stopping at the
// first failure.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan, allowDuplicates bool) error {
	e.logger.Debug("applying plan", "statements", len(p.Statements))

	run := e.WithPolicy(p.Policy(e.Policy()))

	for _, st := range p.Statements {
		pv, err := run.Plan(ctx, st)
		if err != nil {
			return err
		}
		out, err := run.Confirm(ctx, pv, allowDuplicates)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "Applied %s: %d merged, %d exported\n", pv.Source, len(out.Merged), out.Pushed)
	}
	return nil
}
