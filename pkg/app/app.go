// Package app wires the configured components together for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/text/currency"

	"github.com/yurifrl/budgetu/pkg/config"
	"github.com/yurifrl/budgetu/pkg/executors"
	"github.com/yurifrl/budgetu/pkg/importer"
	"github.com/yurifrl/budgetu/pkg/normalize"
	"github.com/yurifrl/budgetu/pkg/parser"
	"github.com/yurifrl/budgetu/pkg/server"
	"github.com/yurifrl/budgetu/pkg/session"
	"github.com/yurifrl/budgetu/pkg/store"
	"github.com/yurifrl/budgetu/pkg/ynab"
)

// NewLogger returns the stderr logger every binary uses.
func NewLogger(prefix string, level log.Level) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
		Level:           level,
	})
}

// NewImporter builds an importer from the aliases, placeholder, static
// category mappings and date policy in cfg.
func NewImporter(cfg *config.Config, logger *log.Logger) *importer.Importer {
	n := normalize.New(
		normalize.WithPlaceholder(cfg.DescriptionPlaceholder),
		normalize.WithCategoryMappings(cfg.CategoryMappings),
	)
	return importer.New(logger,
		importer.WithNormalizer(n),
		importer.WithAliases(cfg.ColumnAliases()),
		importer.WithDatePolicy(cfg.Policy()),
		importer.WithEmptyDescriptions(cfg.AllowEmptyDescription),
	)
}

// App holds the components that share the ledger.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Store    *store.Store
	Session  *session.State
	Executor *executors.Executor
}

// Open opens the ledger and builds an executor that renders to out. YNAB
// export is enabled only when cfg configures it.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger, out io.Writer) (*App, error) {
	unit, err := currency.ParseISO(cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", cfg.Currency, err)
	}

	st, err := store.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	state := session.New()
	opts := []executors.Option{
		executors.WithSession(state),
		executors.WithCategorySource(st, cfg.CategoryMappings),
		executors.WithCurrency(unit),
		executors.WithOutput(out),
	}

	exporter, err := ynab.NewExporter(logger, cfg.YNABToken(), cfg.YNAB.BudgetID, cfg.YNAB.AccountID)
	switch {
	case err == nil:
		opts = append(opts, executors.WithPusher(exporter))
		logger.Info("ynab export enabled", "budget_id", cfg.YNAB.BudgetID, "account_id", cfg.YNAB.AccountID)
	case errors.Is(err, ynab.ErrNotConfigured):
		logger.Debug("ynab export disabled")
	default:
		st.Close()
		return nil, err
	}

	exec := executors.New(logger, parser.New(logger), NewImporter(cfg, logger), st, opts...)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Session:  state,
		Executor: exec,
	}, nil
}

// NewServer builds the HTTP API over the app's ledger and session.
func (a *App) NewServer() *server.Server {
	return server.New(a.Logger, a.Executor, a.Store, a.Session,
		server.WithMaxUploadMB(a.Config.Server.MaxUploadMB),
		server.WithPendingTTL(a.Config.Server.PendingTTL),
		server.WithMaxPending(a.Config.Server.MaxPending),
	)
}

func (a *App) Close() error {
	return a.Store.Close()
}
