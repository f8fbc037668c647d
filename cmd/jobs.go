package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/venuetix-solutions/ms-go-orders/app/service"
	"github.com/venuetix-solutions/ms-go-orders/config"
)

var (
	workerMode bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stale unpaid orders past the retention window",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"purge_stale",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PurgeInterval },
			func(s *service.OrderService, ctx context.Context) error {
				return s.RunPurgeStaleBatch(ctx)
			},
		)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-poll the gateway for orders stuck in processing",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(s *service.OrderService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(reconcileCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.OrderService, ctx context.Context) error,
) {
	cfg, orderService, cleanup := mustCreateOrderService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), orderService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(orderService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	orderService *service.OrderService,
	fn func(s *service.OrderService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(orderService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(orderService, ctx) })
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
