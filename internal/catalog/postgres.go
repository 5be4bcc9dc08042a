package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// connectTimeout bounds catalog connection setup.
const connectTimeout = 10 * time.Second

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(cfg Config) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{pool: pool, cfg: cfg}

	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	slog.With("component", "catalog").Info("connected to PostgreSQL catalog")
	return w, nil
}

// initSchema creates the coalescer_* tables if they don't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// RecordRun inserts one run summary row.
func (w *PostgresWriter) RecordRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO coalescer_runs
			(run_id, namespace, bucket, prefix, partition, manifests,
			 tranches, batches, failed, succeeded, duration_ms, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := w.pool.Exec(ctx, query,
		rec.RunID,
		w.cfg.Namespace,
		rec.Bucket,
		rec.Prefix,
		rec.Partition,
		rec.Manifests,
		rec.Tranches,
		rec.Batches,
		rec.Failed,
		rec.Succeeded,
		rec.Duration.Milliseconds(),
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordMerge inserts one merged-batch lineage row.
func (w *PostgresWriter) RecordMerge(ctx context.Context, rec MergeRecord) error {
	query := `
		INSERT INTO coalescer_merges
			(run_id, namespace, topic, partition, merged_key, source_count, byte_size, merged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := w.pool.Exec(ctx, query,
		rec.RunID,
		w.cfg.Namespace,
		rec.Topic,
		rec.Partition,
		rec.MergedKey,
		rec.SourceCount,
		rec.ByteSize,
		rec.MergedAt,
	)
	if err != nil {
		return fmt.Errorf("record merge: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}
