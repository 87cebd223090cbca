package store

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/yurifrl/budgetu/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "ledger.db"), log.New(io.Discard))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 10, 18, 12, 30, 45, 123, time.UTC) }
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBatch() []models.ImportedTransaction {
	return []models.ImportedTransaction{
		{Row: 0, Date: "2024-03-05", Description: "Paz", Amount: 200, Category: models.CategoryTransportation, Type: models.TypeExpense, Status: models.StatusCompleted},
		{Row: 1, Date: "2024-03-01", Description: "Salary", Amount: 9000, Category: models.CategoryOther, Type: models.TypeIncome, Status: models.StatusCompleted},
		{Row: 2, Date: "2024-03-09", Description: "Super_Pharm 50%", Amount: 42.9, Category: models.CategoryHealthcare, Type: models.TypeExpense, Status: models.StatusPending, Notes: "תשלום 1 מתוך 3 1/3"},
	}
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	merged, err := s.Merge(ctx, sampleBatch(), "march.csv")
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged, got %d", len(merged))
	}

	ids := map[string]bool{}
	for _, m := range merged {
		if m.ID == "" || ids[m.ID] {
			t.Errorf("expected unique non-empty IDs, got %q", m.ID)
		}
		ids[m.ID] = true
		if m.Source != "march.csv" {
			t.Errorf("source = %q", m.Source)
		}
	}

	all, err := s.List(ctx, models.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 stored, got %d", len(all))
	}
	if all[0].Description != "Salary" || all[2].Description != "Super_Pharm 50%" {
		t.Errorf("expected date order, got %q, %q, %q", all[0].Description, all[1].Description, all[2].Description)
	}

	got := all[2]
	want := merged[2]
	if got.ID != want.ID || got.ImportedTransaction != want.ImportedTransaction {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}
	if !got.ImportedAt.Equal(time.Date(2026, 10, 18, 12, 30, 45, 0, time.UTC)) {
		t.Errorf("imported_at = %v", got.ImportedAt)
	}
}

func TestMerge_RollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	batch := sampleBatch()
	batch[1].Amount = -1 // violates the amount >= 0 check

	if _, err := s.Merge(ctx, batch, "bad.csv"); err == nil {
		t.Fatal("expected Merge to fail")
	}

	all, err := s.List(ctx, models.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no rows after rollback, got %d", len(all))
	}
}

func TestList_Filter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.Merge(ctx, sampleBatch(), "march.csv"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	tests := []struct {
		name   string
		filter models.Filter
		want   []string
	}{
		{"date range", models.Filter{From: "2024-03-02", To: "2024-03-09"}, []string{"Paz", "Super_Pharm 50%"}},
		{"category", models.Filter{Category: models.CategoryTransportation}, []string{"Paz"}},
		{"type", models.Filter{Type: models.TypeIncome}, []string{"Salary"}},
		{"query", models.Filter{Query: "pharm"}, []string{"Super_Pharm 50%"}},
		{"query wildcard characters are literal", models.Filter{Query: "_"}, []string{"Super_Pharm 50%"}},
		{"query percent", models.Filter{Query: "50%"}, []string{"Super_Pharm 50%"}},
		{"limit", models.Filter{Limit: 2}, []string{"Salary", "Paz"}},
		{"min amount", models.Filter{MinAmount: 200}, []string{"Salary", "Paz"}},
		{"max amount", models.Filter{MaxAmount: 200}, []string{"Paz", "Super_Pharm 50%"}},
		{"amount range before limit", models.Filter{MaxAmount: 250, Limit: 1}, []string{"Paz"}},
		{"no match", models.Filter{Query: "wolt"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d results, got %d", len(tt.want), len(got))
			}
			for i, d := range tt.want {
				if got[i].Description != d {
					t.Errorf("result %d = %q, want %q", i, got[i].Description, d)
				}
			}
		})
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.Merge(ctx, sampleBatch(), "march.csv"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := s.PutCategoryMapping(ctx, models.CategoryMapping{Pattern: "paz", Category: models.CategoryTransportation}); err != nil {
		t.Fatalf("PutCategoryMapping failed: %v", err)
	}

	n, err := s.Reset(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Reset = %d, %v", n, err)
	}
	mappings, _ := s.CategoryMappings(ctx)
	if len(mappings) != 1 {
		t.Errorf("reset must keep category mappings, got %v", mappings)
	}
}

func TestCategoryMappings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.PutCategoryMapping(ctx, models.CategoryMapping{Pattern: " wolt ", Category: models.CategoryFood}); err != nil {
		t.Fatalf("PutCategoryMapping failed: %v", err)
	}
	if err := s.PutCategoryMapping(ctx, models.CategoryMapping{Pattern: "paz", Category: models.CategoryShopping}); err != nil {
		t.Fatalf("PutCategoryMapping failed: %v", err)
	}
	if err := s.PutCategoryMapping(ctx, models.CategoryMapping{Pattern: "paz", Category: models.CategoryTransportation}); err != nil {
		t.Fatalf("PutCategoryMapping update failed: %v", err)
	}

	got, err := s.CategoryMappings(ctx)
	if err != nil {
		t.Fatalf("CategoryMappings failed: %v", err)
	}
	want := []models.CategoryMapping{
		{Pattern: "paz", Category: models.CategoryTransportation},
		{Pattern: "wolt", Category: models.CategoryFood},
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("mappings = %v, want %v", got, want)
	}

	if err := s.PutCategoryMapping(ctx, models.CategoryMapping{Pattern: "x", Category: "bogus"}); err == nil {
		t.Error("expected error for unknown category")
	}
	if err := s.PutCategoryMapping(ctx, models.CategoryMapping{Pattern: "  ", Category: models.CategoryFood}); err == nil {
		t.Error("expected error for empty pattern")
	}

	if err := s.DeleteCategoryMapping(ctx, "wolt"); err != nil {
		t.Fatalf("DeleteCategoryMapping failed: %v", err)
	}
	if err := s.DeleteCategoryMapping(ctx, "wolt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(ctx, path, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.Merge(ctx, sampleBatch()[:1], "a.csv"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	s.Close()

	s, err = Open(ctx, path, log.New(io.Discard))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	all, err := s.List(ctx, models.Filter{})
	if err != nil || len(all) != 1 {
		t.Errorf("expected 1 persisted transaction, got %d (%v)", len(all), err)
	}
}
