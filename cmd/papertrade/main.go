// papertrade is a simulated NSE cash-market broker.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"github.com/seenimoa/papertrade/internal/broker"
	"github.com/seenimoa/papertrade/internal/config"
	"github.com/seenimoa/papertrade/internal/journal"
	"github.com/seenimoa/papertrade/internal/logging"
	"github.com/seenimoa/papertrade/internal/metrics"
	"github.com/seenimoa/papertrade/internal/quote"
	"github.com/seenimoa/papertrade/internal/store"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global state, populated by the root command's pre-run.
var (
	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
	rt      *app
)

func main() {
	err := rootCmd.Execute()
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "Paper trading engine for the NSE cash market",
	Long: `papertrade simulates a broker account: orders fill against live
quotes, positions and holdings are marked to market and the ledger is
rolled over every trading day. Run "papertrade serve" for the HTTP API
or use the order and book commands directly against the state file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		if sf, _ := cmd.Flags().GetString("state-file"); sf != "" {
			cfg.Paper.StateFile = sf
		}

		var closer io.Closer
		logger, closer, err = logging.New(logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		closers = append(closers, closer)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("state-file", "", "ledger state file override")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("papertrade %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// ════════════════════════════════════════════════════════════════════
// Runtime wiring
// ════════════════════════════════════════════════════════════════════

// app holds the engine components shared by every command.
type app struct {
	metrics *metrics.Metrics
	fetcher *quote.Fetcher
	guard   *quote.Guard
	store   *store.Store
	journal *journal.Journal
	broker  *broker.PaperBroker
}

// openRuntime builds the engine from cfg. It is called lazily so that
// commands like version never touch the state file.
func openRuntime() (*app, error) {
	if rt != nil {
		return rt, nil
	}

	r := &app{metrics: metrics.New()}

	provider, err := quote.NewProvider(cfg.Quotes.Provider, cfg.Quotes.Timeout, cfg.Quotes.StaticPrices)
	if err != nil {
		return nil, err
	}
	if s, ok := provider.(*quote.Static); ok && cfg.Quotes.MaxBatch > 0 {
		s.SetMaxBatch(cfg.Quotes.MaxBatch)
	}
	r.guard = quote.NewGuard(provider, quote.GuardSettings{
		RatePerSec:   cfg.Quotes.RatePerSec,
		Burst:        cfg.Quotes.Burst,
		FailureRatio: cfg.Quotes.Breaker.FailureRatio,
		MinRequests:  cfg.Quotes.Breaker.MinRequests,
		Interval:     cfg.Quotes.Breaker.Interval,
		OpenTimeout:  cfg.Quotes.Breaker.OpenTimeout,
		OnStateChange: func(name string, state gobreaker.State) {
			r.metrics.SetBreakerState(name, int(state))
		},
	}, logger)
	r.fetcher = quote.NewFetcher(r.guard, logger, r.metrics)
	r.fetcher.Concurrency = cfg.Quotes.Concurrency
	if cfg.Quotes.CacheTTL > 0 {
		r.fetcher.Cache = quote.NewCache(cfg.Quotes.CacheTTL)
	}

	r.store = store.New(cfg.Paper.StateFile, cfg.Paper.InitialBalance, store.WithLogger(logger))
	if err := r.store.Load(); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	opts := broker.Options{Logger: logger, Metrics: r.metrics}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return nil, err
		}
		closers = append(closers, j)
		r.journal = j
		opts.Journal = j
	}

	r.broker = broker.NewPaperBroker(r.store, r.fetcher, opts)
	rt = r
	return r, nil
}

// errNoJournal is returned by journal commands when journaling is off.
var errNoJournal = errors.New("trade journal disabled (journal.path is empty)")

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func wantJSON(cmd *cobra.Command) bool {
	j, _ := cmd.Flags().GetBool("json")
	return j
}
