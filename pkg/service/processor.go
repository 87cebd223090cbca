package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/yurifrl/budgetu/pkg/csv"
	"github.com/yurifrl/budgetu/pkg/importer"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/parser"
)

// OutputSuffix is appended to the base name of every converted statement.
const OutputSuffix = "-budgetu.csv"

// FileResult is the outcome of converting one statement.
type FileResult struct {
	Input    string
	Output   string
	Accepted int
	Skipped  int
	Err      error
}

// Processor converts every statement in a directory into the normalized CSV
// export. Files are handled concurrently; a bad file is logged and reported
// without stopping the others.
type Processor struct {
	logger   *log.Logger
	parser   *parser.Parser
	importer *importer.Importer
	workers  int
	outDir   string
	filter   csv.FilterFunc[models.ImportedTransaction]
}

type Option func(*Processor)

func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithOutputDir writes converted files to dir instead of next to their input.
func WithOutputDir(dir string) Option {
	return func(p *Processor) {
		p.outDir = dir
	}
}

// WithFilter drops transactions the filter rejects from every output file.
func WithFilter(f csv.FilterFunc[models.ImportedTransaction]) Option {
	return func(p *Processor) {
		p.filter = f
	}
}

func NewProcessor(logger *log.Logger, ps *parser.Parser, imp *importer.Importer, opts ...Option) *Processor {
	p := &Processor{
		logger:   logger,
		parser:   ps,
		importer: imp,
		workers:  4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDirectory converts the supported files directly inside dir, skipping
// earlier outputs. Results are returned in directory order.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string) ([]FileResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}

	var inputs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !parser.Supported(name) || strings.HasSuffix(strings.ToLower(name), OutputSuffix) {
			continue
		}
		inputs = append(inputs, filepath.Join(dir, name))
	}
	sort.Strings(inputs)

	if p.outDir != "" {
		if err := os.MkdirAll(p.outDir, 0755); err != nil {
			return nil, fmt.Errorf("error creating output directory: %w", err)
		}
	}

	results := make([]FileResult, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, input := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = p.ProcessFile(input)
			if results[i].Err != nil {
				p.logger.Error("failed to process file", "file", input, "error", results[i].Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ProcessFile converts one statement and writes the export CSV.
func (p *Processor) ProcessFile(input string) FileResult {
	res := FileResult{Input: input, Output: p.outputPath(input)}

	data, err := os.ReadFile(input)
	if err != nil {
		res.Err = fmt.Errorf("error reading file: %w", err)
		return res
	}

	batch, err := p.Convert(data, filepath.Base(input))
	if err != nil {
		res.Err = err
		return res
	}
	res.Accepted = len(batch.Accepted)
	res.Skipped = batch.Skipped()

	out, err := csv.Create(models.ExportHeader, batch.Accepted, p.filter)
	if err != nil {
		res.Err = fmt.Errorf("error encoding output: %w", err)
		return res
	}
	if err := os.WriteFile(res.Output, out, 0644); err != nil {
		res.Err = fmt.Errorf("error writing output file: %w", err)
		return res
	}

	p.logger.Info("processed file successfully", "input", input, "output", res.Output, "accepted", res.Accepted, "skipped", res.Skipped)
	return res
}

// Convert parses and imports one statement, resolving columns from aliases.
func (p *Processor) Convert(data []byte, filename string) (*importer.Result, error) {
	sheet, err := p.parser.ProcessBytes(data, filename)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}
	res, err := p.importer.Import(sheet, nil)
	if err != nil {
		return nil, fmt.Errorf("error importing file: %w", err)
	}
	return res, nil
}

func (p *Processor) outputPath(input string) string {
	name := filepath.Base(input)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if p.outDir != "" {
		return filepath.Join(p.outDir, base+OutputSuffix)
	}
	return filepath.Join(filepath.Dir(input), base+OutputSuffix)
}
