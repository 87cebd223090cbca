package executors

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/currency"

	"github.com/yurifrl/budgetu/pkg/importer"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/normalize"
	"github.com/yurifrl/budgetu/pkg/parser"
	"github.com/yurifrl/budgetu/pkg/session"
)

// Ledger is the part of the store the executors need.
type Ledger interface {
	List(ctx context.Context, f models.Filter) ([]models.Transaction, error)
	Merge(ctx context.Context, batch []models.ImportedTransaction, source string) ([]models.Transaction, error)
}

// CategorySource supplies category mappings edited at runtime.
type CategorySource interface {
	CategoryMappings(ctx context.Context) ([]models.CategoryMapping, error)
}

// Pusher exports merged transactions to a remote budget.
type Pusher interface {
	Push(txs []models.Transaction) (int, error)
}

type Executor struct {
	logger   *log.Logger
	parser   *parser.Parser
	importer *importer.Importer
	ledger   Ledger
	pusher   Pusher
	session  *session.State
	mapSrc   CategorySource
	static   []models.CategoryMapping
	money    Money
	out      io.Writer
	now      func() time.Time
}

type Option func(*Executor)

// WithPusher exports every confirmed batch after it is merged.
func WithPusher(p Pusher) Option {
	return func(e *Executor) {
		e.pusher = p
	}
}

// WithSession gates confirmation on the shared import state.
func WithSession(s *session.State) Option {
	return func(e *Executor) {
		e.session = s
	}
}

// WithCategorySource reloads category mappings from src before every
// preview. Stored mappings override static ones with the same pattern.
func WithCategorySource(src CategorySource, static []models.CategoryMapping) Option {
	return func(e *Executor) {
		e.mapSrc = src
		e.static = static
	}
}

// defaultCurrency formats totals when no currency is configured.
var defaultCurrency = currency.MustParseISO("ILS")

func WithCurrency(unit currency.Unit) Option {
	return func(e *Executor) {
		e.money = NewMoney(unit)
	}
}

// WithOutput sets where plan previews are rendered. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) {
		e.out = w
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

func New(logger *log.Logger, p *parser.Parser, imp *importer.Importer, ledger Ledger, opts ...Option) *Executor {
	e := &Executor{
		logger:   logger,
		parser:   p,
		importer: imp,
		ledger:   ledger,
		money:    NewMoney(defaultCurrency),
		out:      os.Stdout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithPolicy returns a copy of e whose importer applies date policy p.
func (e *Executor) WithPolicy(p normalize.DatePolicy) *Executor {
	c := *e
	c.importer = e.importer.WithPolicy(p)
	return &c
}

// Policy returns the date policy of e's importer.
func (e *Executor) Policy() normalize.DatePolicy {
	return e.importer.Policy()
}

// importerFor returns the importer to use for one preview.
func (e *Executor) importerFor(ctx context.Context) (*importer.Importer, error) {
	if e.mapSrc == nil {
		return e.importer, nil
	}
	stored, err := e.mapSrc.CategoryMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load category mappings: %w", err)
	}

	overridden := make(map[string]bool, len(stored))
	for _, m := range stored {
		overridden[strings.ToLower(m.Pattern)] = true
	}
	merged := make([]models.CategoryMapping, 0, len(e.static)+len(stored))
	for _, m := range e.static {
		if !overridden[strings.ToLower(m.Pattern)] {
			merged = append(merged, m)
		}
	}
	merged = append(merged, stored...)
	return e.importer.WithMappings(merged), nil
}

// Money returns the formatter used for rendered amounts.
func (e *Executor) Money() Money {
	return e.money
}
