package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Flashl3opard/structify/internal/bridge"
	"github.com/Flashl3opard/structify/internal/cache"
	"github.com/Flashl3opard/structify/internal/handlers"
	"github.com/Flashl3opard/structify/internal/httpserver"
	"github.com/Flashl3opard/structify/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves POST /api/chart, POST /api/mindmap, GET /healthz and GET /metrics
until SIGINT or SIGTERM, then drains in-flight requests.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	metrics.Register()

	logger.Info("loaded config",
		zap.Int("port", cfg.Server.Port),
		zap.String("upstream_base_url", cfg.Upstream.BaseURL),
		zap.String("model", cfg.Upstream.Model),
		zap.Bool("api_key_set", cfg.Upstream.APIKey != ""),
		zap.Int("max_retries", cfg.Upstream.MaxRetries),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("cache_version", cfg.Cache.Version),
	)
	if cfg.Upstream.APIKey == "" {
		logger.Warn("GROQ_API_KEY is not set; /api/chart will answer 500 until it is")
	}

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Backend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer redisClient.Close()
	}

	// ----- Result cache -----
	resultCache := cache.NewResultCache(cfg.ResultCache(), redisClient)
	if closer, ok := resultCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Fail fast if Redis is misconfigured
	if pinger, ok := resultCache.(interface{ Ping(context.Context) error }); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established", zap.String("addr", cfg.Cache.RedisAddr))
	}
	resultCache = cache.NewLoggingResultCache(resultCache)

	// ----- Bridge -----
	b, err := bridge.New(cfg.Bridge(), logger)
	if err != nil {
		return err
	}
	defer b.Close()

	conv := bridge.WithRetry(b, cfg.Retry(), logger)

	chartHandler := handlers.NewChartHandler(
		conv,
		resultCache,
		cfg.Cache.TTL,
		cfg.Cache.Version,
		b.Model(),
		b.Instruction(),
	)
	chartHandler.FlightTimeout = cfg.Server.RequestTimeout

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, chartHandler, httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// ----- Graceful shutdown -----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
			return err
		}
		logger.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}
