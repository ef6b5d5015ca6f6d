// Package config loads papertrade settings from YAML, a .env file and
// PAPERTRADE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. PAPERTRADE_API_PORT.
const EnvPrefix = "PAPERTRADE"

// Config is the root configuration.
type Config struct {
	Paper   PaperConfig   `mapstructure:"paper"   json:"paper"   yaml:"paper"`
	Quotes  QuotesConfig  `mapstructure:"quotes"  json:"quotes"  yaml:"quotes"`
	Journal JournalConfig `mapstructure:"journal" json:"journal" yaml:"journal"`
	API     APIConfig     `mapstructure:"api"     json:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" json:"logging" yaml:"logging"`
}

// PaperConfig configures the simulated ledger.
type PaperConfig struct {
	StateFile      string        `mapstructure:"state_file"      json:"state_file"      yaml:"state_file"`
	InitialBalance float64       `mapstructure:"initial_balance" json:"initial_balance" yaml:"initial_balance"`
	LtpInterval    time.Duration `mapstructure:"ltp_interval"    json:"ltp_interval"    yaml:"ltp_interval"`
	RolloverCron   string        `mapstructure:"rollover_cron"   json:"rollover_cron"   yaml:"rollover_cron"` // evaluated in IST
}

// QuotesConfig selects and guards the quote provider.
type QuotesConfig struct {
	Provider     string             `mapstructure:"provider"      json:"provider"      yaml:"provider"` // "yahoo", "screener", "static"
	MaxBatch     int                `mapstructure:"max_batch"     json:"max_batch"     yaml:"max_batch"`
	Concurrency  int                `mapstructure:"concurrency"   json:"concurrency"   yaml:"concurrency"`
	RatePerSec   float64            `mapstructure:"rate_per_sec"  json:"rate_per_sec"  yaml:"rate_per_sec"`
	Burst        int                `mapstructure:"burst"         json:"burst"         yaml:"burst"`
	Timeout      time.Duration      `mapstructure:"timeout"       json:"timeout"       yaml:"timeout"`
	CacheTTL     time.Duration      `mapstructure:"cache_ttl"     json:"cache_ttl"     yaml:"cache_ttl"` // zero disables
	StaticPrices map[string]float64 `mapstructure:"static_prices" json:"static_prices" yaml:"static_prices"`
	Breaker      BreakerConfig      `mapstructure:"breaker"       json:"breaker"       yaml:"breaker"`
}

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	FailureRatio float64       `mapstructure:"failure_ratio" json:"failure_ratio" yaml:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"  json:"min_requests"  yaml:"min_requests"`
	Interval     time.Duration `mapstructure:"interval"      json:"interval"      yaml:"interval"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"  json:"open_timeout"  yaml:"open_timeout"`
}

// JournalConfig locates the SQLite trade journal. An empty path disables it.
type JournalConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host        string   `mapstructure:"host"         json:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         json:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level      string `mapstructure:"level"        json:"level"        yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"       json:"format"       yaml:"format"` // "text" or "json"
	File       string `mapstructure:"file"         json:"file"         yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  json:"max_size_mb"  yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"  json:"max_backups"  yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
}

// Load searches ./config, ~/.papertrade and /etc/papertrade for config.yaml.
// A missing file is not an error; defaults and environment apply.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".papertrade"))
	v.AddConfigPath("/etc/papertrade")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile loads configuration from an explicit path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are skipped and variables
// already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// viper lower-cases map keys; symbols are upper case.
	if len(cfg.Quotes.StaticPrices) > 0 {
		prices := make(map[string]float64, len(cfg.Quotes.StaticPrices))
		for sym, p := range cfg.Quotes.StaticPrices {
			prices[strings.ToUpper(sym)] = p
		}
		cfg.Quotes.StaticPrices = prices
	}
	cfg.Paper.StateFile = expandHome(cfg.Paper.StateFile)
	cfg.Journal.Path = expandHome(cfg.Journal.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Paper.StateFile == "" {
		errs = append(errs, errors.New("paper.state_file is required"))
	}
	if c.Paper.InitialBalance < 0 {
		errs = append(errs, errors.New("paper.initial_balance cannot be negative"))
	}
	if c.Paper.LtpInterval < 0 {
		errs = append(errs, errors.New("paper.ltp_interval cannot be negative"))
	}
	switch c.Quotes.Provider {
	case "yahoo", "screener", "static":
	default:
		errs = append(errs, fmt.Errorf("quotes.provider %q is not one of yahoo, screener, static", c.Quotes.Provider))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	return errors.Join(errs...)
}

// Addr returns host:port for the HTTP server.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paper.state_file", filepath.Join(homeDir(), ".papertrade", "state.json"))
	v.SetDefault("paper.initial_balance", 1000000) // ₹10 lakh
	v.SetDefault("paper.ltp_interval", "5s")
	v.SetDefault("paper.rollover_cron", "0 9 * * 1-5") // 09:00 IST, before the pre-open

	v.SetDefault("quotes.provider", "yahoo")
	v.SetDefault("quotes.concurrency", 4)
	v.SetDefault("quotes.rate_per_sec", 5)
	v.SetDefault("quotes.burst", 5)
	v.SetDefault("quotes.timeout", "10s")
	v.SetDefault("quotes.cache_ttl", "1s")
	v.SetDefault("quotes.breaker.failure_ratio", 0.5)
	v.SetDefault("quotes.breaker.min_requests", 5)
	v.SetDefault("quotes.breaker.interval", "1m")
	v.SetDefault("quotes.breaker.open_timeout", "30s")

	v.SetDefault("journal.path", filepath.Join(homeDir(), ".papertrade", "journal.db"))

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
