package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/greenmart/internal/app"
	"github.com/noah-isme/greenmart/internal/config"
	"github.com/noah-isme/greenmart/internal/db"
	"github.com/noah-isme/greenmart/internal/geo"
	"github.com/noah-isme/greenmart/internal/health"
	"github.com/noah-isme/greenmart/internal/obs"
	"github.com/noah-isme/greenmart/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(obs.LogConfig{
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Service: "greenmart-api",
		Env:     cfg.AppEnv,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	tracing := cfg.TracingEnabled
	if tracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "greenmart-api",
			Environment:   cfg.AppEnv,
			Exporter:      cfg.TracingExporter,
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSampleRatio,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("tracing disabled")
			tracing = false
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Error().Err(err).Msg("flush tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := db.NewPool(startCtx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        int32(cfg.DBMaxConns),
		ApplicationName: "greenmart-api",
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := openRedis(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	wards, err := geo.DefaultWardTable()
	if err != nil {
		return fmt.Errorf("load ward table: %w", err)
	}
	limiterStore, err := app.NewLimiterStore(rdb)
	if err != nil {
		return fmt.Errorf("rate limiter store: %w", err)
	}

	deps := app.Dependencies{
		Config:       cfg,
		DB:           pool,
		Redis:        rdb,
		Logger:       logger,
		Validator:    validator.New(),
		Wards:        wards,
		LimiterStore: limiterStore,
		Tracing:      tracing,
	}
	if cfg.MetricsEnabled {
		deps.HTTPMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)
	}
	svcs, err := app.NewServices(deps)
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}
	handler, err := app.NewRouter(deps, svcs)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health.SetReady(true)
		logger.Info().Str("addr", srv.Addr).Int("wards", wards.Len()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn().Err(err).Msg("redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Warn().Err(err).Msg("redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
