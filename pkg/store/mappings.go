package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yurifrl/budgetu/pkg/models"
)

// CategoryMappings returns the stored description → category table.
func (s *Store) CategoryMappings(ctx context.Context) ([]models.CategoryMapping, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT pattern, category FROM category_mappings ORDER BY pattern")
	if err != nil {
		return nil, fmt.Errorf("query category mappings: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryMapping
	for rows.Next() {
		var (
			m        models.CategoryMapping
			category string
		)
		if err := rows.Scan(&m.Pattern, &category); err != nil {
			return nil, fmt.Errorf("scan category mapping: %w", err)
		}
		m.Category = models.Category(category)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category mappings: %w", err)
	}
	return out, nil
}

// PutCategoryMapping creates or replaces the mapping for m.Pattern.
func (s *Store) PutCategoryMapping(ctx context.Context, m models.CategoryMapping) error {
	m.Pattern = strings.TrimSpace(m.Pattern)
	if m.Pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidMapping)
	}
	if !m.Category.Valid() {
		return fmt.Errorf("%w: %q has unknown category %q", ErrInvalidMapping, m.Pattern, m.Category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO category_mappings (pattern, category, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (pattern) DO UPDATE SET category = excluded.category, updated_at = excluded.updated_at`,
		m.Pattern, string(m.Category), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save category mapping %q: %w", m.Pattern, err)
	}
	s.logger.Debug("saved category mapping", "pattern", m.Pattern, "category", m.Category)
	return nil
}

// DeleteCategoryMapping removes the mapping for pattern.
func (s *Store) DeleteCategoryMapping(ctx context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM category_mappings WHERE pattern = ?", strings.TrimSpace(pattern))
	if err != nil {
		return fmt.Errorf("delete category mapping %q: %w", pattern, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category mapping %q: %w", pattern, err)
	}
	if n == 0 {
		return fmt.Errorf("category mapping %q: %w", pattern, ErrNotFound)
	}
	return nil
}
