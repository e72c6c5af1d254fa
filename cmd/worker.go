package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/billpay-relay/internal/gateway"
	"github.com/frahmantamala/billpay-relay/internal/reconciliation"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that keep orders consistent with the payment gateway.`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Verify stale orders against ToyyibPay",
	Long:  `Periodically finds REGISTERED or PENDING orders that carry a bill code and confirms their status with getBillTransactions.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	maxWorkers     int
	jobQueueSize   int
	workerPoolSize int
	gatewayURL     string
	staleAfter     time.Duration
	sweepInterval  time.Duration
	sweepOnce      bool
)

func startReconcileWorker() {
	ctx := context.Background()

	config, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	deps, err := NewDependencies(ctx, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	logger := deps.Logger

	client := gateway.NewClient(gateway.Config{
		BaseURL:        getStringFlag(gatewayURL, config.Gateway.BaseURL),
		UserSecretKey:  config.Gateway.UserSecretKey,
		RequestTimeout: config.Gateway.RequestTimeout,
	}, logger)

	sweeper := reconciliation.NewSweeper(deps.Stale, client, deps.Orders, reconciliation.Config{
		StaleAfter:    getDurationFlag(staleAfter, config.Reconciliation.StaleAfter),
		SweepInterval: getDurationFlag(sweepInterval, config.Reconciliation.SweepInterval),
		BatchSize:     config.Reconciliation.BatchSize,
	}, logger)

	if sweepOnce {
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.Error("reconciliation sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info("reconciliation sweep complete", "verified", n)
		return
	}

	poolConfig := gateway.PoolConfig{
		MaxWorkers:     getIntFlag(maxWorkers, config.Gateway.MaxWorkers),
		JobQueueSize:   getIntFlag(jobQueueSize, config.Gateway.JobQueueSize),
		WorkerPoolSize: getIntFlag(workerPoolSize, config.Gateway.WorkerPoolSize),
	}
	logger.Info("starting reconcile worker",
		"max_workers", poolConfig.MaxWorkers,
		"job_queue_size", poolConfig.JobQueueSize,
		"worker_pool_size", poolConfig.WorkerPoolSize,
		"gateway_url", getStringFlag(gatewayURL, config.Gateway.BaseURL))

	pool := gateway.NewPool(poolConfig, sweeper.Process, logger)
	pool.Start()
	sweeper.Attach(pool)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- sweeper.Run(runCtx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("reconcile worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	logger.Info("received signal, shutting down reconcile worker", "signal", sig)
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("reconcile worker shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Worker pool channel size (overrides config)")
	reconcileWorkerCmd.Flags().StringVar(&gatewayURL, "gateway-url", "", "ToyyibPay base URL (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "Age after which a non-final order is verified (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Time between sweeps (overrides config)")
	reconcileWorkerCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep inline and exit")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
