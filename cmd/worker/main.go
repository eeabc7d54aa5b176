package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"backoffice/internal/config"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/queue"
	"backoffice/internal/statscache"
	"backoffice/internal/store"
	"backoffice/internal/worker"
)

// Worker consumes attendance.recorded events and invalidates cached statistics.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl := logger.New(cfg.LoggerLevel, cfg.LoggerFormat).Named("worker")
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		zl.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	rdb := store.NewRedis(store.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	})
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		zl.Warn("redis not reachable, cache invalidation will retry as events arrive")
	}

	var q queue.Queue
	switch cfg.QueueBackend {
	case "rabbitmq":
		rq, err := queue.DialRabbit(cfg.RabbitMQURL, cfg.RabbitMQQueue, zl.Named("rabbitmq"))
		if err != nil {
			zl.Fatal("rabbitmq connect failed", zap.Error(err))
		}
		defer rq.Close()
		q = rq
	case "redis":
		q = queue.NewRedisQueue(rdb.Client, rdb.Key(cfg.QueueKey))
	default:
		zl.Fatal("the memory queue is consumed inside the api process", zap.String("backend", cfg.QueueBackend))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(cfg.WorkerMetricsPort, reg, zl)

	w := worker.New(statscache.New(rdb.Client, cfg.RedisPrefix, cfg.StatsCacheTTL), m, zl)
	if err := w.Run(ctx, q); err != nil {
		zl.Fatal("worker failed", zap.Error(err))
	}
}

func serveMetrics(port string, reg *prometheus.Registry, zl *zap.Logger) {
	if port == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		zl.Warn("metrics server stopped", zap.Error(err))
	}
}
