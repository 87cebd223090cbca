package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"golang.org/x/text/currency"

	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/normalize"
)

const envPrefix = "BUDGETU"

type Config struct {
	DBPath                 string                   `mapstructure:"db_path"`
	DatePolicy             string                   `mapstructure:"date_policy"`
	DescriptionPlaceholder string                   `mapstructure:"description_placeholder"`
	AllowEmptyDescription  bool                     `mapstructure:"allow_empty_description"`
	Currency               string                   `mapstructure:"currency"`
	LogLevel               string                   `mapstructure:"log_level"`
	Workers                int                      `mapstructure:"workers"`
	Aliases                map[string][]string      `mapstructure:"aliases"`
	CategoryMappings       []models.CategoryMapping `mapstructure:"category_mappings"`
	Server                 ServerConfig             `mapstructure:"server"`
	YNAB                   YNABConfig               `mapstructure:"ynab"`
}

type ServerConfig struct {
	Addr        string        `mapstructure:"addr"`
	MaxUploadMB int64         `mapstructure:"max_upload_mb"`
	PendingTTL  time.Duration `mapstructure:"pending_ttl"`
	MaxPending  int           `mapstructure:"max_pending"`
}

type YNABConfig struct {
	BudgetID  string `mapstructure:"budget_id"`
	AccountID string `mapstructure:"account_id"`
	TokenEnv  string `mapstructure:"token_env"`
}

// flagKeys binds command-line flag names to config keys.
var flagKeys = map[string]string{
	"db":                      "db_path",
	"date-policy":             "date_policy",
	"placeholder":             "description_placeholder",
	"allow-empty-description": "allow_empty_description",
	"currency":                "currency",
	"log-level":               "log_level",
	"workers":                 "workers",
	"addr":                    "server.addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "./data/budgetu.db")
	v.SetDefault("date_policy", string(normalize.DateLenient))
	v.SetDefault("description_placeholder", normalize.DefaultPlaceholder)
	v.SetDefault("allow_empty_description", false)
	v.SetDefault("currency", "ILS")
	v.SetDefault("log_level", "info")
	v.SetDefault("workers", 4)
	v.SetDefault("aliases", map[string][]string{})
	v.SetDefault("category_mappings", []models.CategoryMapping{})
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.pending_ttl", "30m")
	v.SetDefault("server.max_pending", 64)
	v.SetDefault("ynab.budget_id", "")
	v.SetDefault("ynab.account_id", "")
	v.SetDefault("ynab.token_env", "YNAB_TOKEN")
}

// Build layers defaults, the config file, BUDGETU_* environment variables
// (a .env file in the working directory is loaded first) and flags, in that
// order of increasing precedence. An empty cfgFile looks for budgetu.yaml in
// the working directory and $HOME/.config/budgetu; not finding one is fine.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("budgetu")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/budgetu")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := normalize.ParseDatePolicy(c.DatePolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := currency.ParseISO(c.Currency); err != nil {
		errs = append(errs, fmt.Errorf("currency %q: %w", c.Currency, err))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	for name := range c.Aliases {
		if _, ok := models.ParseField(name); !ok {
			errs = append(errs, fmt.Errorf("aliases: unknown field %q", name))
		}
	}
	for _, m := range c.CategoryMappings {
		if strings.TrimSpace(m.Pattern) == "" || !m.Category.Valid() {
			errs = append(errs, fmt.Errorf("category_mappings: invalid entry %q -> %q", m.Pattern, m.Category))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ColumnAliases returns the built-in header aliases with configured
// overrides tried first.
func (c *Config) ColumnAliases() normalize.Aliases {
	overrides := make(normalize.Aliases, len(c.Aliases))
	for name, list := range c.Aliases {
		if f, ok := models.ParseField(name); ok {
			overrides[f] = list
		}
	}
	return normalize.DefaultAliases().Merge(overrides)
}

// Policy returns the parsed date policy. Validate has already checked it.
func (c *Config) Policy() normalize.DatePolicy {
	p, _ := normalize.ParseDatePolicy(c.DatePolicy)
	return p
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// YNABToken reads the API token from the configured environment variable.
func (c *Config) YNABToken() string {
	return os.Getenv(c.YNAB.TokenEnv)
}

// YNABEnabled reports whether exports to YNAB are configured.
func (c *Config) YNABEnabled() bool {
	return c.YNAB.BudgetID != "" && c.YNAB.AccountID != "" && c.YNABToken() != ""
}
