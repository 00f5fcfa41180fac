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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/packer/internal/config"
	"github.com/luxfi/packer/internal/logging"
	"github.com/luxfi/packer/internal/metrics"
	"github.com/luxfi/packer/internal/queue"
	"github.com/luxfi/packer/internal/storage"
	"github.com/luxfi/packer/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the packing worker pool",
	Long: `Run workers that pop pack_encrypt, compress and decrypt_unpack jobs from the
Redis queue, read their input from blob storage and write the result back.

Keys are generated when the worker starts, so decrypt_unpack jobs must carry
ciphertexts produced by the same worker process.

Health and Prometheus metrics are served on metrics.addr (/health, /metrics).`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	logger.Info("packer worker starting",
		zap.Int("workers", cfg.Worker.Count),
		zap.String("redis", cfg.Redis.Addr),
		zap.String("storage", cfg.Storage.Path),
		zap.String("metrics", cfg.Metrics.Addr),
	)

	q, err := openQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := buildPacker(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool := worker.New(worker.Config{
		Workers:         cfg.Worker.Count,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	}, q, store, p, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", zap.String("addr", cfg.Metrics.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
	if err := pool.Stop(); err != nil {
		logger.Warn("worker pool shutdown error", zap.Error(err))
	}

	succeeded, failed := pool.Stats()
	logger.Info("shutdown complete", zap.Int64("succeeded", succeeded), zap.Int64("failed", failed))
	return nil
}

func openQueue(cfg *config.Config) (*queue.RedisQueue, error) {
	q, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Worker.Queue)
	if err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}
	return q, nil
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	fs, err := storage.NewFileStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}
	if cfg.Storage.Compress {
		return storage.NewCompressed(fs), nil
	}
	return fs, nil
}
