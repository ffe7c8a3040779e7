package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/purchase-tracker/internal/config"
	"github.com/jonathan/purchase-tracker/internal/scheduler"
	"github.com/jonathan/purchase-tracker/internal/server"
	"github.com/jonathan/purchase-tracker/internal/server/ratelimit"
)

var (
	servePort     int
	serveNoCron   bool
	shutdownGrace time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the HTTP API together with the cron triggers (scheduled ingestion,
price sweep, stale-job reconciliation). Stale jobs left by a previous
process are failed before the server accepts requests.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveNoCron, "no-cron", false, "Do not register the cron triggers")
	serveCmd.Flags().DurationVar(&shutdownGrace, "shutdown-grace", 30*time.Second, "How long to wait for running jobs on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	jwtCfg, err := config.NewJWTConfig(os.Getenv)
	if err != nil {
		return err
	}
	pwCfg, err := config.NewPasswordConfig(os.Getenv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.broker.StartRelay(ctx); err != nil {
		return fmt.Errorf("failed to start event relay: %w", err)
	}

	if n, err := a.reconciler.Run(ctx); err != nil {
		log.Warn("startup reconciliation failed", "error", err)
	} else if n > 0 {
		log.Info("failed stale jobs from a previous run", "count", n)
	}

	schedCfg := scheduler.Config{
		IngestionSpec: cfg.ScheduleCron,
		PriceSpec:     cfg.PriceCheckCron,
		ReconcileSpec: cfg.ReconcileCron,
	}
	if serveNoCron {
		schedCfg = scheduler.Config{ReconcileSpec: cfg.ReconcileCron}
	}
	sched, err := scheduler.New(schedCfg, scheduler.Deps{
		Starter:    a.orchestrator,
		Sweeper:    a.prices,
		Reconciler: a.reconciler,
		Topics:     a.broker,
	}, log)
	if err != nil {
		return err
	}
	sched.Start()

	srv := server.New(cfg.Addr(), server.Deps{
		Users:     a.db,
		Passwords: pwCfg,
		JWT:       server.NewJWTService(jwtCfg),
		Settings:  a.db,
		Box:       a.box,
		Starter:   a.orchestrator,
		Jobs:      a.poller,
		Streamer:  a.streamer,
		Items:     a.prices,
		Purchases: a.db,
		Webhooks:  a.dispatcher,
		Limiter:   ratelimit.NewLimiter(ratelimit.LoadConfig(os.Getenv)),
		Health:    a.db.Ping,
		Log:       log,
	})
	runErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := a.orchestrator.Shutdown(shutdownCtx); err != nil {
		log.Warn("jobs still running at shutdown were marked failed", "error", err)
	}
	return runErr
}
