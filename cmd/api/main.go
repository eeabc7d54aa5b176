package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"backoffice/internal/attendance"
	"backoffice/internal/cloudinary"
	"backoffice/internal/config"
	"backoffice/internal/directory"
	"backoffice/internal/httpapi"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/queue"
	"backoffice/internal/statscache"
	"backoffice/internal/store"
	"backoffice/internal/verification"
	"backoffice/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	zl := logger.New(cfg.LoggerLevel, cfg.LoggerFormat)
	defer func() { _ = zl.Sync() }()

	if err := runHTTP(cfg, zl); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolOptions{
		MaxOpen:  cfg.DBMaxOpenConns,
		MaxIdle:  cfg.DBMaxIdleConns,
		Lifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx, db.Client, zl); err != nil {
			return err
		}
	}

	rdb := store.NewRedis(store.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	})
	defer rdb.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	loc := cfg.Location()
	cache := statscache.New(rdb.Client, cfg.RedisPrefix, cfg.StatsCacheTTL)

	events, closeEvents, err := openPublisher(ctx, cfg, rdb, worker.New(cache, m, zl.Named("worker")), zl)
	if err != nil {
		return err
	}
	defer closeEvents()

	tokens := verification.NewTokens(cfg.QRSigningKey, cfg.JWTIssuer, cfg.QRTokenTTL)
	att := attendance.NewService(attendance.NewRepository(db.Client), verification.NewVerifier(tokens), loc, zl.Named("attendance")).
		WithStatsCache(cache)
	dir := directory.NewService(directory.NewRepository(db.Client)).
		WithStatsInvalidator(cache, zl.Named("directory"))

	opts := []httpapi.Option{httpapi.WithEvents(events), httpapi.WithMetrics(m)}
	if cfg.CloudinaryEnabled() {
		opts = append(opts, httpapi.WithPhotos(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)))
		zl.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		zl.Info("cloudinary not configured, photo uploads disabled")
	}

	h := httpapi.NewHandler(att, dir, tokens, zl.Named("http"), opts...)
	r := httpapi.NewRouter(h, httpapi.RouterConfig{
		JWTSigningKey:   cfg.JWTSigningKey,
		JWTIssuer:       cfg.JWTIssuer,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         m,
		MetricsHandler:  promhttp.Handler(),
		Health: map[string]httpapi.HealthCheck{
			"db":    db.Healthy,
			"redis": rdb.Healthy,
		},
		Log: zl,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("addr", srv.Addr), zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	zl.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced shutdown", zap.Error(err))
	}
	zl.Info("server exited")
	return nil
}

// openPublisher returns the configured event backend and its close function.
// The memory backend has no separate worker process, so w consumes it here.
func openPublisher(ctx context.Context, cfg config.App, rdb *store.Redis, w *worker.Worker, zl *zap.Logger) (queue.Publisher, func(), error) {
	switch cfg.QueueBackend {
	case "memory":
		q := queue.NewInMemory(64)
		go func() {
			if err := w.Run(ctx, q); err != nil {
				zl.Error("in-process worker failed", zap.Error(err))
			}
		}()
		return q, func() {}, nil
	case "rabbitmq":
		q, err := queue.DialRabbit(cfg.RabbitMQURL, cfg.RabbitMQQueue, zl.Named("rabbitmq"))
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	default:
		return queue.NewRedisQueue(rdb.Client, rdb.Key(cfg.QueueKey)), func() {}, nil
	}
}
