package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/builtin"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/config"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/githost"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/observability"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/orchestrator"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/queue"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/scheduler"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/server"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tracker"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the ticket HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg config.File) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// The queue, checkpoint store, and ticket store share one database
	// file.
	q, err := queue.NewSQLiteQueueFromDB(db)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}
	cps, err := checkpoint.NewSQLiteStoreFromDB(db)
	if err != nil {
		return fmt.Errorf("init checkpoint store: %w", err)
	}
	tix, err := tickets.NewSQLiteStoreFromDB(db)
	if err != nil {
		return fmt.Errorf("init ticket store: %w", err)
	}

	clients, err := llm.BuildTenantClients(cfg, llm.NewRegistry())
	if err != nil {
		return fmt.Errorf("build llm clients: %w", err)
	}

	host, err := buildGitHost(ctx, logger)
	if err != nil {
		return err
	}

	graphs := builtin.Graphs(builtin.NewRenderer(), host)
	registry := orchestrator.NewRegistry()
	for name, policy := range builtin.StagePolicies() {
		registry.Register(orchestrator.Entry{
			Graph:     graphs[name],
			Running:   policy.Running,
			Suspended: policy.Suspended,
			Completed: policy.Completed,
		})
	}

	metrics := observability.NewMetricsRecorder()
	orch := orchestrator.New(registry, cps, tix, q,
		orchestrator.WithClients(clients.For),
		orchestrator.WithTracker(tracker.NewMemory()),
		orchestrator.WithRetry(fault.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			BackoffFactor:  cfg.Retry.BackoffFactor,
			Jitter:         0.1,
		}),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
	)

	budgets := make(map[string]int, len(cfg.Tenants))
	for tenantID, tenant := range cfg.Tenants {
		budgets[tenantID] = tenant.MaxConcurrent
	}
	sched := scheduler.New(q, orch, scheduler.Config{
		Owner:         schedulerOwner(),
		PollInterval:  cfg.Scheduler.PollInterval,
		BatchSize:     cfg.Scheduler.BatchSize,
		LeaseDuration: cfg.Scheduler.LeaseDuration,
		RenewInterval: cfg.Scheduler.RenewInterval,
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		TenantBudgets: budgets,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace,
	}, scheduler.WithLogger(logger), scheduler.WithMetrics(metrics))

	api := server.New(tix, cps, q, builtin.GraphRefinement, server.WithLogger(logger))
	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: api.Handler()}

	errCh := make(chan error, 2)
	go func() {
		err := sched.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		errCh <- err
	}()
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.Server.Addr))
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.String("error", err.Error()))
	}

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildGitHost uses the real GitHub client when a token is present and
// falls back to the in-memory host for local runs.
func buildGitHost(ctx context.Context, logger *slog.Logger) (githost.Host, error) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return githost.NewGitHub(ctx, token), nil
	}
	logger.Warn("GITHUB_TOKEN not set, pull requests go to the in-memory git host")
	return githost.NewMemory(), nil
}

func schedulerOwner() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "ticketflow"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
