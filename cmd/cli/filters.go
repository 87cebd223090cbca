package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/budgetu/pkg/csv"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/parser"
	"github.com/yurifrl/budgetu/pkg/service"
)

type filters struct {
	startDate   string
	endDate     string
	minAmount   float64
	maxAmount   float64
	description string
}

func (f *filters) toFilterFunc() csv.FilterFunc[models.ImportedTransaction] {
	return func(t models.ImportedTransaction) bool {
		// Normalized dates are YYYY-MM-DD, so string order is date order.
		if f.startDate != "" && t.Date < f.startDate {
			return false
		}
		if f.endDate != "" && t.Date > f.endDate {
			return false
		}
		if f.minAmount != 0 && t.Amount < f.minAmount {
			return false
		}
		if f.maxAmount != 0 && t.Amount > f.maxAmount {
			return false
		}
		if f.description != "" && !strings.Contains(strings.ToLower(t.Description), strings.ToLower(f.description)) {
			return false
		}
		return true
	}
}

// ledgerFilter applies the same flags to a ledger query.
func (f *filters) ledgerFilter(category models.Category, typ models.Type, limit int) models.Filter {
	return models.Filter{
		From:      f.startDate,
		To:        f.endDate,
		Category:  category,
		Type:      typ,
		Query:     f.description,
		MinAmount: f.minAmount,
		MaxAmount: f.maxAmount,
		Limit:     limit,
	}
}

// FileProcessor converts statements to the export CSV on stdout.
type FileProcessor struct {
	logger    *log.Logger
	processor *service.Processor
	filter    csv.FilterFunc[models.ImportedTransaction]
}

func NewFileProcessor(logger *log.Logger, processor *service.Processor, filters *filters) *FileProcessor {
	return &FileProcessor{
		logger:    logger,
		processor: processor,
		filter:    filters.toFilterFunc(),
	}
}

func (p *FileProcessor) ProcessDirectory(inputDir string) error {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !parser.Supported(entry.Name()) {
			continue
		}

		if err := p.ProcessFile(filepath.Join(inputDir, entry.Name())); err != nil {
			p.logger.Warn("error processing file", "error", err)
		}
	}

	return nil
}

func (p *FileProcessor) ProcessFile(inputPath string) error {
	fileBytes, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	res, err := p.processor.Convert(fileBytes, filepath.Base(inputPath))
	if err != nil {
		return fmt.Errorf("failed to process file: %w", err)
	}
	for _, r := range res.Rejected {
		p.logger.Debug("skipped row", "file", inputPath, "row", r.Row, "reason", r.Reason)
	}

	outputBytes, err := csv.Create(models.ExportHeader, res.Accepted, p.filter)
	if err != nil {
		return err
	}

	fmt.Print(string(outputBytes))
	return nil
}
