package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/yurifrl/budgetu/pkg/app"
	"github.com/yurifrl/budgetu/pkg/config"
	"github.com/yurifrl/budgetu/pkg/executors"
	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/parser"
	"github.com/yurifrl/budgetu/pkg/plan"
	"github.com/yurifrl/budgetu/pkg/service"
)

var (
	cliFilters filters
	cfgFile    string
)

var rootCmd = &cobra.Command{
	Use:           "budgetu-cli",
	Short:         "Budgetu command-line interface",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

// setup loads configuration (config file, env and flag overrides) and builds
// the logger.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger("budgetu-cli", cfg.Level()), nil
}

// open additionally opens the ledger. Callers must Close the App.
func open(cmd *cobra.Command) (*app.App, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	return app.Open(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}

// parseMapping reads --map field=header pairs.
func parseMapping(pairs []string) (models.FieldMapping, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := models.FieldMapping{}
	for _, pair := range pairs {
		name, header, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q, expected field=header", pair)
		}
		f, ok := models.ParseField(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q: unknown field %q", pair, name)
		}
		m[f] = header
	}
	return m, nil
}

var importCmd = &cobra.Command{
	Use:   "import [flags] <file>",
	Short: "Preview a statement against the ledger and optionally merge it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		pairs, _ := cmd.Flags().GetStringArray("map")
		mapping, err := parseMapping(pairs)
		if err != nil {
			return err
		}
		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = filepath.Base(args[0])
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		pv, err := a.Executor.PreviewBytes(cmd.Context(), data, filepath.Base(args[0]), source, mapping)
		if err != nil {
			return err
		}

		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			pp.Fprintln(cmd.ErrOrStderr(), pv.Result.Mapping, pv.Result.Rejected, pv.Result.Warnings)
		}
		executors.Render(cmd.OutOrStdout(), pv, a.Executor.Money())

		if confirm, _ := cmd.Flags().GetBool("confirm"); !confirm {
			fmt.Fprintln(cmd.OutOrStdout(), "Dry run: pass --confirm to merge into the ledger")
			return nil
		}
		allowDuplicates, _ := cmd.Flags().GetBool("allow-duplicates")
		out, err := a.Executor.Confirm(cmd.Context(), pv, allowDuplicates)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %d transaction(s), exported %d\n", len(out.Merged), out.Pushed)
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <input_path>",
	Short: "Convert bank statements to the normalized CSV format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		processor := NewFileProcessor(logger, service.NewProcessor(logger, parser.New(logger), app.NewImporter(cfg, logger)), &cliFilters)

		matches, err := filepath.Glob(args[0])
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("no files found matching pattern %s", args[0])
		}

		for _, match := range matches {
			fileInfo, err := os.Stat(match)
			if err != nil {
				logger.Warn("failed to stat file", "error", err, "file", match)
				continue
			}

			if fileInfo.IsDir() {
				if err := processor.ProcessDirectory(match); err != nil {
					logger.Warn("failed to process directory", "error", err, "dir", match)
				}
			} else {
				if err := processor.ProcessFile(match); err != nil {
					logger.Warn("failed to process file", "error", err, "file", match)
				}
			}
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <plan_file>",
	Short: "Preview a YAML plan of statements (dry-run)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Plan preview for %s\n", args[0])
		p.Print(cmd.OutOrStdout())

		exec := a.Executor.WithPolicy(p.Policy(a.Executor.Policy()))
		var toAdd, inSync int
		for _, st := range p.Statements {
			pv, err := exec.Plan(cmd.Context(), st)
			if err != nil {
				return err
			}
			toAdd += pv.Report.MissingCount()
			inSync += pv.Report.InSyncCount()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Summary: %d statement(s), %d transaction(s) to add, %d in sync\n", len(p.Statements), toAdd, inSync)
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <plan_file>",
	Short: "Merge every statement of a YAML plan into the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		allowDuplicates, _ := cmd.Flags().GetBool("allow-duplicates")
		return a.Executor.Apply(cmd.Context(), p, allowDuplicates)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		category, _ := cmd.Flags().GetString("category")
		typ, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		txs, err := a.Store.List(cmd.Context(), cliFilters.ledgerFilter(models.Category(category), models.Type(typ), limit))
		if err != nil {
			return err
		}

		money := a.Executor.Money()
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Date", "Description", "Category", "Status", "Source", "Amount"})
		for _, tx := range txs {
			t.AppendRow(table.Row{tx.Date, text.Trim(tx.Description, 40), tx.Category, tx.Status, tx.Source, money.Format(tx.SignedAmount())})
		}
		t.AppendFooter(table.Row{"", "", "", "", "Count", len(txs)})
		t.SetStyle(table.StyleRounded)
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 6, Align: text.AlignRight, AlignFooter: text.AlignRight}})
		t.Render()
		return nil
	},
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage description to category mappings",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored category mappings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		mappings, err := a.Store.CategoryMappings(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range a.Config.CategoryMappings {
			fmt.Fprintf(cmd.OutOrStdout(), "%-30s %s (config)\n", m.Pattern, m.Category)
		}
		for _, m := range mappings {
			fmt.Fprintf(cmd.OutOrStdout(), "%-30s %s\n", m.Pattern, m.Category)
		}
		return nil
	},
}

var mappingsSetCmd = &cobra.Command{
	Use:   "set <pattern> <category>",
	Short: "Create or replace a category mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Store.PutCategoryMapping(cmd.Context(), models.CategoryMapping{
			Pattern:  args[0],
			Category: models.Category(strings.ToLower(args[1])),
		})
	},
}

var mappingsRmCmd = &cobra.Command{
	Use:   "rm <pattern>",
	Short: "Delete a category mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Store.DeleteCategoryMapping(cmd.Context(), args[0])
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the import API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := a.NewServer()
		a.Logger.Info("starting server", "addr", a.Config.Server.Addr)
		return srv.Start(cmd.Context(), a.Config.Server.Addr)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is budgetu.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Ledger database path")
	rootCmd.PersistentFlags().String("date-policy", "", "Unparseable dates: lenient, flag or strict")
	rootCmd.PersistentFlags().String("placeholder", "", "Description used for rows without one")
	rootCmd.PersistentFlags().Bool("allow-empty-description", false, "Accept rows without a description, using the placeholder")
	rootCmd.PersistentFlags().String("currency", "", "ISO currency code for amounts")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Filter flags (global)
	rootCmd.PersistentFlags().StringVar(&cliFilters.startDate, "start", "", "Start date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&cliFilters.endDate, "end", "", "End date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().Float64Var(&cliFilters.minAmount, "min", 0, "Minimum amount")
	rootCmd.PersistentFlags().Float64Var(&cliFilters.maxAmount, "max", 0, "Maximum amount")
	rootCmd.PersistentFlags().StringVar(&cliFilters.description, "description", "", "Filter by description (case insensitive)")

	importCmd.Flags().StringArray("map", nil, "Explicit column mapping as field=header (repeatable)")
	importCmd.Flags().String("source", "", "Source label stored with merged transactions (default is the file name)")
	importCmd.Flags().Bool("confirm", false, "Merge the previewed batch into the ledger")
	importCmd.Flags().Bool("allow-duplicates", false, "Merge rows that already exist in the ledger")
	importCmd.Flags().Bool("dump", false, "Pretty-print the resolved mapping and rejected rows")

	applyCmd.Flags().Bool("allow-duplicates", false, "Merge rows that already exist in the ledger")

	listCmd.Flags().String("category", "", "Only this category")
	listCmd.Flags().String("type", "", "Only income or expense")
	listCmd.Flags().Int("limit", 0, "Maximum number of rows")

	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")

	mappingsCmd.AddCommand(mappingsListCmd, mappingsSetCmd, mappingsRmCmd)
	rootCmd.AddCommand(importCmd, convertCmd, planCmd, applyCmd, listCmd, mappingsCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
