package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/badge"
	"github.com/dukerupert/chorepoints/internal/chore"
	"github.com/dukerupert/chorepoints/internal/database"
	"github.com/dukerupert/chorepoints/internal/event"
	"github.com/dukerupert/chorepoints/internal/goal"
	"github.com/dukerupert/chorepoints/internal/identity"
	"github.com/dukerupert/chorepoints/internal/keylock"
	"github.com/dukerupert/chorepoints/internal/leaderboard"
	"github.com/dukerupert/chorepoints/internal/ledger"
	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/reward"
	"github.com/dukerupert/chorepoints/internal/scheduler"
	"github.com/dukerupert/chorepoints/internal/server"
	"github.com/dukerupert/chorepoints/internal/store"
	"github.com/dukerupert/chorepoints/internal/tracing"
	ws "github.com/dukerupert/chorepoints/internal/websocket"
)

// rateLimiterIdle is how long a client IP is remembered by the login limiter.
const rateLimiterIdle = 15 * time.Minute

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
}

func serveRun(ctx context.Context) error {
	logger := newLogger()

	shutdownTracing, err := tracing.Setup(cfg.Tracing, os.Stderr, programName)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	s := store.New(db)
	locks := keylock.New()
	hub := ws.NewHub(logger.With("component", "websocket"))
	events := event.Fanout{hub, event.NewLogPublisher(logger.With("component", "events"))}

	dir := identity.NewDirectory(s, cfg.SessionTTL, logger.With("component", "identity"))
	guard := authz.NewGuard(dir, m, logger.With("component", "authz"))
	l := ledger.New(s, guard, locks, events, m, logger.With("component", "ledger"))

	srv := server.New(server.Deps{
		DB:                 db,
		Directory:          dir,
		Families:           identity.NewFamilies(s, guard, logger.With("component", "families")),
		Guard:              guard,
		Chores:             chore.NewEngine(s, guard, l, locks, events, m, logger.With("component", "chore")),
		Ledger:             l,
		Badges:             badge.NewService(s, guard, l, logger.With("component", "badge")),
		Board:              leaderboard.NewBoard(s, guard, l),
		Rewards:            reward.NewService(s, guard, l, events, m, logger.With("component", "reward")),
		Goals:              goal.NewService(s, guard, logger.With("component", "goal")),
		Hub:                hub,
		Metrics:            m,
		OpTimeout:          cfg.OpTimeout,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		LoginBurst:         cfg.LoginBurst,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
	}, logger)

	spawner := chore.NewSpawner(s, m, logger.With("component", "spawner"))
	sched := scheduler.New(time.Minute, logger.With("component", "scheduler"))
	if err := sched.Add("spawn", cfg.SpawnSchedule, func(ctx context.Context) error {
		_, err := spawner.Run(ctx, time.Now())
		return err
	}); err != nil {
		return err
	}
	if err := sched.Add("cleanup", cfg.CleanupSchedule, func(ctx context.Context) error {
		n, err := dir.CleanupSessions(ctx)
		if err != nil {
			return err
		}
		srv.RateLimiter().Cleanup(rateLimiterIdle)
		logger.Debug("cleanup finished", "sessions_removed", n)
		return nil
	}); err != nil {
		return err
	}
	sched.Start()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("chorepoints listening", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
