package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrEthical07/cyclecore"
	"github.com/MrEthical07/cyclecore/internal/httpapi"
	"github.com/MrEthical07/cyclecore/internal/storage"
	promexport "github.com/MrEthical07/cyclecore/metrics/export/prometheus"
	"github.com/MrEthical07/cyclecore/middleware"
	"github.com/MrEthical07/cyclecore/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, cfg daemonConfig, logger *slog.Logger) error {
	b := cyclecore.New().
		WithConfig(cfg.engineConfig()).
		WithLogger(logger)

	if cfg.DatabaseDSN != "" {
		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		b.WithStatsRepository(stats.NewPostgresRepository(db)).
			WithUserProvider(storage.NewUserRepository(db))
	} else {
		logger.Warn("DATABASE_URL not set: statistics are kept in memory and password login is disabled")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		b.WithRedis(rdb)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if _, err := promexport.Register(reg, engine); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	throttle := middleware.NewThrottle(middleware.ThrottleConfig{
		Rate:            rate.Limit(float64(cfg.AuthRatePerMin) / 60),
		Burst:           max(cfg.AuthRatePerMin/3, 1),
		CleanupInterval: 5 * time.Minute,
	})
	defer throttle.Stop()

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Engine:           engine,
			Logger:           logger,
			Gatherer:         reg,
			Throttle:         throttle,
			TrustProxy:       cfg.TrustProxy,
			SecureCookies:    cfg.CookieSecure,
			RefreshCookieTTL: cfg.RefreshTTL,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runMigrate(ctx context.Context, cfg daemonConfig, logger *slog.Logger) error {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("migrations applied")
	return nil
}

// openDatabase connects and applies pending migrations.
func openDatabase(ctx context.Context, cfg daemonConfig, logger *slog.Logger) (*sql.DB, error) {
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := storage.Open(ctx, cfg.DatabaseDSN, storage.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("database connection established")
	return db, nil
}

func runHealthcheck(ctx context.Context, cfg daemonConfig) error {
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return fmt.Errorf("parse address %q: %w", cfg.Addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+net.JoinHostPort(host, port)+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: status %d", resp.StatusCode)
	}
	return nil
}
