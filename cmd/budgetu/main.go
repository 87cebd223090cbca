package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/budgetu/pkg/app"
	"github.com/yurifrl/budgetu/pkg/config"
	"github.com/yurifrl/budgetu/pkg/parser"
	"github.com/yurifrl/budgetu/pkg/service"
)

func main() {
	flags := pflag.NewFlagSet("budgetu", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "Config file (default is budgetu.yaml)")
	outputPath := flags.StringP("output", "o", "", "Output directory (default: same as input file)")
	flags.Int("workers", 0, "Files converted in parallel (default 4)")
	flags.String("date-policy", "", "Unparseable dates: lenient, flag or strict")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: budgetu [-o output_dir] <directory>\n")
		os.Exit(1)
	}

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	logger := app.NewLogger("budgetu", cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	processor := service.NewProcessor(logger, parser.New(logger), app.NewImporter(cfg, logger),
		service.WithWorkers(cfg.Workers),
		service.WithOutputDir(*outputPath),
	)

	results, err := processor.ProcessDirectory(ctx, args[0])
	if err != nil {
		logger.Fatal("processing failed", "error", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("done", "files", len(results), "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
