// Package catalog records coalescing lineage in PostgreSQL: one row per run
// and one row per merged batch. The catalog is optional; when no DSN is
// configured a no-op writer is used, and catalog errors are warnings, never
// pipeline failures.
package catalog

import (
	"context"
	"log/slog"
	"time"
)

// Config configures the lineage catalog.
type Config struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Namespace   string `yaml:"namespace"`
}

// RunRecord summarises one coalescing run.
type RunRecord struct {
	RunID     string
	Bucket    string
	Prefix    string
	Partition int
	Manifests bool
	Tranches  int
	Batches   int
	Failed    int
	Succeeded bool
	Duration  time.Duration
	StartedAt time.Time
}

// MergeRecord describes one merged batch.
type MergeRecord struct {
	RunID       string
	Topic       string
	Partition   int
	MergedKey   string
	SourceCount int
	ByteSize    int64
	MergedAt    time.Time
}

// Writer persists coalescing lineage.
type Writer interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	RecordMerge(ctx context.Context, rec MergeRecord) error
	Close() error
}

// NewWriter returns a PostgreSQL writer when a DSN is configured, falling
// back to a no-op writer otherwise or when the connection fails.
func NewWriter(cfg Config) Writer {
	log := slog.With("component", "catalog")
	if cfg.PostgresDSN == "" {
		log.Debug("no catalog DSN configured, using no-op writer")
		return noopWriter{}
	}

	w, err := NewPostgresWriter(cfg)
	if err != nil {
		log.Warn("failed to connect to catalog, lineage disabled", "error", err)
		return noopWriter{}
	}
	return w
}

type noopWriter struct{}

func (noopWriter) RecordRun(_ context.Context, _ RunRecord) error     { return nil }
func (noopWriter) RecordMerge(_ context.Context, _ MergeRecord) error { return nil }
func (noopWriter) Close() error                                       { return nil }
