package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/budgetu/pkg/app"
	"github.com/yurifrl/budgetu/pkg/config"
)

func main() {
	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "Config file (default is budgetu.yaml)")
	flags.String("addr", "", "Listen address (default :8080)")
	flags.String("db", "", "Ledger database path")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	logger := app.NewLogger("budgetu", cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger, os.Stdout)
	if err != nil {
		logger.Fatal("failed to open ledger", "err", err)
	}
	defer a.Close()

	srv := a.NewServer()
	logger.Info("starting server", "addr", cfg.Server.Addr)
	if err := srv.Start(ctx, cfg.Server.Addr); err != nil {
		logger.Error("server error", "err", err)
	}
}
