package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/normalize"
)

const sampleConfig = `
db_path: /tmp/ledger.db
date_policy: flag
currency: EUR
workers: 2
aliases:
  amount: ["Betrag", "Umsatz"]
category_mappings:
  - pattern: wolt
    category: food
server:
  addr: ":9090"
ynab:
  budget_id: b-1
  account_id: a-1
  token_env: TEST_YNAB_TOKEN
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "budgetu.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestBuild_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Build("", nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Policy() != normalize.DateLenient || cfg.Server.Addr != ":8080" || cfg.Workers != 4 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.DescriptionPlaceholder != normalize.DefaultPlaceholder {
		t.Errorf("placeholder = %q", cfg.DescriptionPlaceholder)
	}
	if cfg.Level() != log.InfoLevel {
		t.Errorf("level = %v", cfg.Level())
	}
}

func TestBuild_File(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TEST_YNAB_TOKEN", "secret")

	cfg, err := Build(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if cfg.DBPath != "/tmp/ledger.db" || cfg.Policy() != normalize.DateFlag || cfg.Currency != "EUR" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.MaxUploadMB != 10 || cfg.Server.PendingTTL != 30*time.Minute || cfg.Server.MaxPending != 64 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.CategoryMappings) != 1 || cfg.CategoryMappings[0] != (models.CategoryMapping{Pattern: "wolt", Category: models.CategoryFood}) {
		t.Errorf("category mappings = %+v", cfg.CategoryMappings)
	}
	if !cfg.YNABEnabled() || cfg.YNABToken() != "secret" {
		t.Errorf("ynab should be enabled: %+v", cfg.YNAB)
	}

	aliases := cfg.ColumnAliases()
	if got := aliases[models.FieldAmount]; got[0] != "Betrag" || got[1] != "Umsatz" || got[2] != "amount" {
		t.Errorf("amount aliases = %v", got[:3])
	}
}

func TestBuild_EnvAndFlags(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BUDGETU_DATE_POLICY", "strict")
	t.Setenv("BUDGETU_SERVER_ADDR", ":7070")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("addr", ":8080", "")
	flags.Int("workers", 4, "")
	if err := flags.Parse([]string{"--db", "flag.db", "--workers", "8"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Build(writeConfig(t, sampleConfig), flags)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if cfg.Policy() != normalize.DateStrict {
		t.Errorf("env should override file, got %q", cfg.DatePolicy)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("unchanged flag must not override env, got %q", cfg.Server.Addr)
	}
	if cfg.DBPath != "flag.db" || cfg.Workers != 8 {
		t.Errorf("flags should override file, got db=%q workers=%d", cfg.DBPath, cfg.Workers)
	}
}

func TestBuild_DotEnv(t *testing.T) {
	chdirTemp(t)
	if err := os.WriteFile(".env", []byte("BUDGETU_CURRENCY=USD\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BUDGETU_CURRENCY") })

	cfg, err := Build("", nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Currency != "USD" {
		t.Errorf("currency = %q, want value from .env", cfg.Currency)
	}
}

func TestBuild_Invalid(t *testing.T) {
	chdirTemp(t)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"date policy", "date_policy: maybe\n", "unknown date policy"},
		{"alias field", "aliases:\n  payee: [x]\n", `unknown field "payee"`},
		{"category", "category_mappings:\n  - pattern: x\n    category: toys\n", "invalid entry"},
		{"workers", "workers: 0\n", "workers must be at least 1"},
		{"currency", "currency: shekel\n", "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(writeConfig(t, tt.content), nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuild_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	if _, err := Build(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}
