package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/yurifrl/budgetu/pkg/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup or delete matches nothing.
var ErrNotFound = errors.New("not found")

// ErrInvalidMapping is returned for a category mapping with an empty pattern
// or an unknown category.
var ErrInvalidMapping = errors.New("invalid category mapping")

// Store is the SQLite-backed ledger. Writes go through a single mutex;
// reads use the connection pool directly.
type Store struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Open creates (if needed) and migrates the database at path.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Debug("opened ledger", "path", path)
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const insertTransaction = `INSERT INTO transactions
	(id, date, description, amount, category, type, status, notes, source, source_row, imported_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Merge confirms a whole batch: every transaction gets a fresh identifier
// and all rows are inserted in one SQL transaction. Any failure leaves the
// ledger untouched.
func (s *Store) Merge(ctx context.Context, batch []models.ImportedTransaction, source string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	importedAt := s.now().UTC().Truncate(time.Second)
	merged := make([]models.Transaction, 0, len(batch))
	for _, it := range batch {
		t := models.Transaction{
			ImportedTransaction: it,
			ID:                  uuid.NewString(),
			Source:              source,
			ImportedAt:          importedAt,
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, t.Date, t.Description, t.Amount, string(t.Category), string(t.Type),
			string(t.Status), t.Notes, t.Source, t.Row, importedAt.Format(time.RFC3339),
		)
		if err != nil {
			return nil, fmt.Errorf("insert row %d: %w", it.Row, err)
		}
		merged = append(merged, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}

	s.logger.Info("merged batch", "source", source, "transactions", len(merged))
	return merged, nil
}

// List returns ledger transactions matching f, oldest first.
func (s *Store) List(ctx context.Context, f models.Filter) ([]models.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Query != "" {
		where = append(where, `description LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Query)+"%")
	}
	if f.MinAmount != 0 {
		where = append(where, "amount >= ?")
		args = append(args, f.MinAmount)
	}
	if f.MaxAmount != 0 {
		where = append(where, "amount <= ?")
		args = append(args, f.MaxAmount)
	}

	query := `SELECT id, date, description, amount, category, type, status, notes, source, source_row, imported_at
		FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, imported_at, source_row"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			t          models.Transaction
			category   string
			typ        string
			status     string
			importedAt string
		)
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &t.Amount, &category, &typ, &status,
			&t.Notes, &t.Source, &t.Row, &importedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Category = models.Category(category)
		t.Type = models.Type(typ)
		t.Status = models.Status(status)
		if t.ImportedAt, err = time.Parse(time.RFC3339, importedAt); err != nil {
			return nil, fmt.Errorf("transaction %s: bad imported_at %q: %w", t.ID, importedAt, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Reset deletes every ledger transaction and reports how many were removed.
// Category mappings are kept.
func (s *Store) Reset(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions")
	if err != nil {
		return 0, fmt.Errorf("reset ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset ledger: %w", err)
	}
	s.logger.Warn("ledger reset", "deleted", n)
	return n, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
