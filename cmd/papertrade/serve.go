package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/seenimoa/papertrade/api"
	"github.com/seenimoa/papertrade/pkg/utils"
)

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server, the LTP loop and the daily rollover",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRuntime()
		if err != nil {
			return err
		}
		addr := cfg.API.Addr()
		if a, _ := cmd.Flags().GetString("addr"); a != "" {
			addr = a
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := api.NewServer(api.Options{
			Config:  cfg,
			Broker:  r.broker,
			Journal: journalReader(r),
			Quotes:  r.fetcher,
			Metrics: r.metrics,
			Logger:  logger,
			Version: version,
		})
		r.broker.SetNotifier(srv.Hub())

		// Bring the ledger up to today before anything else touches it.
		if _, err := r.broker.Rollover(ctx, ""); err != nil {
			return fmt.Errorf("startup rollover: %w", err)
		}

		sched, err := startRolloverSchedule(ctx, r)
		if err != nil {
			return err
		}
		defer sched.Stop()

		if cfg.Paper.LtpInterval > 0 {
			if err := r.broker.StartLtpUpdates(cfg.Paper.LtpInterval); err != nil {
				return err
			}
			defer r.broker.StopLtpUpdates()
		}

		fmt.Printf("🌐 papertrade API on %s (quotes: %s)\n", addr, cfg.Quotes.Provider)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address override (host:port)")
}

// startRolloverSchedule runs the daily rollover on cfg.Paper.RolloverCron,
// evaluated in IST. An empty expression disables the schedule; orders still roll
// the ledger forward lazily.
func startRolloverSchedule(ctx context.Context, r *app) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(utils.IST))
	if cfg.Paper.RolloverCron != "" {
		_, err := c.AddFunc(cfg.Paper.RolloverCron, func() {
			res, err := r.broker.Rollover(ctx, "")
			if err != nil {
				logger.Error("scheduled rollover failed", "error", err)
				return
			}
			logger.Info("scheduled rollover", "date", res.Date, "applied", res.Applied,
				"closed", len(res.Closed), "expired", len(res.Expired))
		})
		if err != nil {
			return nil, fmt.Errorf("invalid paper.rollover_cron %q: %w", cfg.Paper.RolloverCron, err)
		}
	}
	c.Start()
	return c, nil
}

// journalReader avoids handing the server a typed-nil journal.
func journalReader(r *app) api.JournalReader {
	if r.journal == nil {
		return nil
	}
	return r.journal
}
