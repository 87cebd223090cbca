// Package reconcile compares a freshly imported batch with the transactions
// already in the ledger. Both the CLI plan/apply executors and the HTTP
// preview use the same report.
package reconcile

import (
	"github.com/yurifrl/budgetu/pkg/compare"
	"github.com/yurifrl/budgetu/pkg/models"
)

// Status indicates the reconciliation result for a given batch entry.
//
//   - Synced:    already present in the ledger.
//   - ToAdd:     missing, will be merged on confirm.
//   - Duplicate: repeats an earlier entry of the same batch.
type Status int

const (
	Synced Status = iota
	ToAdd
	Duplicate
)

func (s Status) String() string {
	switch s {
	case Synced:
		return "synced"
	case ToAdd:
		return "to add"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Entry links a batch transaction with the ledger transaction it matched,
// if any, and records the reconciliation status.
type Entry struct {
	Local    models.ImportedTransaction
	Existing *models.Transaction // nil unless Status == Synced
	Status   Status
}

// Report holds every batch entry plus the subset that still needs merging.
type Report struct {
	Items []Entry
	toAdd []models.ImportedTransaction
}

// Build walks the batch in order and matches each transaction against the
// ledger by compare.Key. Repeats inside the batch collapse onto the first
// occurrence.
func Build(batch []models.ImportedTransaction, existing []models.Transaction) *Report {
	ledger := make(map[string]*models.Transaction, len(existing))
	for i := range existing {
		key := compare.Key(existing[i].ImportedTransaction)
		if _, ok := ledger[key]; !ok {
			ledger[key] = &existing[i]
		}
	}

	seen := make(map[string]bool, len(batch))
	r := &Report{
		Items: make([]Entry, 0, len(batch)),
		toAdd: make([]models.ImportedTransaction, 0, len(batch)),
	}
	for _, tx := range batch {
		key := compare.Key(tx)
		entry := Entry{Local: tx, Status: ToAdd}
		switch {
		case ledger[key] != nil:
			entry.Status = Synced
			entry.Existing = ledger[key]
		case seen[key]:
			entry.Status = Duplicate
		default:
			r.toAdd = append(r.toAdd, tx)
		}
		seen[key] = true
		r.Items = append(r.Items, entry)
	}
	return r
}

// InSyncCount returns how many batch entries are already in the ledger.
func (r *Report) InSyncCount() int {
	return r.count(Synced)
}

// DuplicateCount returns how many batch entries repeat an earlier one.
func (r *Report) DuplicateCount() int {
	return r.count(Duplicate)
}

// MissingCount returns how many batch entries will be merged.
func (r *Report) MissingCount() int {
	return len(r.toAdd)
}

// ToAdd returns the batch transactions that are not yet in the ledger, in
// batch order.
func (r *Report) ToAdd() []models.ImportedTransaction {
	return r.toAdd
}

func (r *Report) count(s Status) int {
	n := 0
	for _, e := range r.Items {
		if e.Status == s {
			n++
		}
	}
	return n
}
