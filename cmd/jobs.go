package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	"github.com/vibast-solutions/ms-go-fan-billing/config"
)

var sweepExpiredWorker bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run ledger maintenance sweeps",
}

var sweepExpiredCmd = &cobra.Command{
	Use:   "expired",
	Short: "Fail lapsed success orders and revoke push tokens of users without an active order",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"sweep_expired",
			sweepExpiredWorker,
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpirySweepInterval },
			func(s *service.ExpirySweeper, ctx context.Context) error {
				return s.RunExpirationBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.AddCommand(sweepExpiredCmd)

	sweepExpiredCmd.Flags().BoolVar(&sweepExpiredWorker, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	worker bool,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.ExpirySweeper, ctx context.Context) error,
) {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}()

	sweeper := newExpirySweeper(cfg, db, newPushDispatcher(context.Background(), cfg))

	if worker {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		runWorker(name, intervalResolver(cfg), quit, func(ctx context.Context) error { return fn(sweeper, ctx) })
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(sweeper, ctx) })
}

// runWorker runs fn immediately and then on every tick until stop fires.
func runWorker(name string, interval time.Duration, stop <-chan os.Signal, fn func(ctx context.Context) error) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(ctx) })

	for {
		select {
		case <-stop:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
