package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/corplake/lake-coalescer/internal/catalog"
	"github.com/corplake/lake-coalescer/internal/coalesce"
	"github.com/corplake/lake-coalescer/internal/config"
	"github.com/corplake/lake-coalescer/internal/events"
	"github.com/corplake/lake-coalescer/internal/logging"
	"github.com/corplake/lake-coalescer/internal/metrics"
	"github.com/corplake/lake-coalescer/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return 2
	}

	logging.Setup(cfg.Logging)
	log := logging.Component("main")
	log.Info("lake coalescer starting", "version", Version, "git_sha", GitSHA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	store, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		log.Error("failed to create storage", "error", err)
		return 2
	}
	defer store.Close()

	exec, err := coalesce.NewExecutor(store, coalesce.ExecutorOptions{
		Workers:  cfg.Workers,
		Isolated: cfg.IsolatedWorkers,
		NewStore: func() (storage.ObjectStore, error) {
			return storage.NewObjectStore(cfg.Storage)
		},
		CompressOutput: cfg.CompressOutput,
	})
	if err != nil {
		log.Error("failed to create executor", "error", err)
		return 2
	}
	defer exec.Close()

	cat := catalog.NewWriter(cfg.Catalog)
	defer cat.Close()

	emitter := events.NewEmitter(cfg.Events)
	defer emitter.Close()

	opts := coalesce.RunOptions{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		Partition: cfg.Partition,
		Manifests: cfg.Manifests,
		SizeLimit: cfg.MaxBatchBytes,
		FileLimit: cfg.MaxBatchFiles,
		PageSize:  cfg.PageSize,
	}
	if cfg.ByBatch {
		opts.Strategy = coalesce.ByBatch
	}

	runner := coalesce.NewRunner(opts, store, exec, cat, emitter)

	verdict, err := runner.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown complete")
			return 1
		}
		log.Error("run failed", "error", err)
		return 1
	}

	if !verdict {
		log.Error("run finished with failed batches")
		return 1
	}

	log.Info("run finished cleanly")
	return 0
}
