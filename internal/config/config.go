// Package config assembles the run configuration from defaults, an optional
// YAML file, environment variables, and command-line flags, in that order.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/corplake/lake-coalescer/internal/catalog"
	"github.com/corplake/lake-coalescer/internal/events"
	"github.com/corplake/lake-coalescer/internal/logging"
	"github.com/corplake/lake-coalescer/internal/metrics"
	"github.com/corplake/lake-coalescer/internal/storage"
)

// MaxPartition is the highest partition index a topic can carry.
const MaxPartition = 19

// Config is the full configuration for one coalescing run.
type Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Partition int    `yaml:"partition"` // -1 = all partitions, else 0..19
	Manifests bool   `yaml:"manifests"` // coalesce streaming manifests

	MaxBatchBytes int64 `yaml:"max_batch_bytes"` // max coalesced object size
	MaxBatchFiles int   `yaml:"max_batch_files"` // max files per batch
	PageSize      int   `yaml:"page_size"`       // object summaries per listing page

	Workers         int  `yaml:"workers"`          // 0 = pool default
	IsolatedWorkers bool `yaml:"isolated_workers"` // per-unit store clients
	ByBatch         bool `yaml:"by_batch"`         // force batch-level dispatch

	CompressOutput bool `yaml:"compress_output"` // zstd-compress merged objects

	Storage storage.Config `yaml:"storage"`
	Logging logging.Config `yaml:"logging"`
	Metrics metrics.Config `yaml:"metrics"`
	Catalog catalog.Config `yaml:"catalog"`
	Events  events.Config  `yaml:"events"`
}

// Default returns the built-in configuration, matching the historical CLI
// defaults of the coalescer.
func Default() Config {
	return Config{
		Bucket:        "corporate-data",
		Prefix:        "corporate_storage/ucfs_audit/2020/11/05/data/businessAudit",
		Partition:     -1,
		MaxBatchBytes: 100_000,
		MaxBatchFiles: 10,
		PageSize:      2_000_000,
		Storage: storage.Config{
			Backend: "s3",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
		Metrics: metrics.Config{
			Address: ":9090",
		},
	}
}

// Load builds the configuration from args (everything after the program
// name). A -config flag names an optional YAML file applied over the
// defaults; environment variables and the remaining flags are applied on
// top.
func Load(args []string) (Config, error) {
	cfg := Default()

	// Pre-pass: find the config file before registering the real flags, so
	// file values become the flag defaults.
	configPath := peekConfigPath(args)
	if configPath != "" {
		if err := loadFile(&cfg, configPath); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	fs := flag.NewFlagSet("lake-coalescer", flag.ContinueOnError)
	fs.String("config", configPath, "Path to a YAML configuration file.")
	fs.BoolVar(&cfg.Manifests, "manifests", cfg.Manifests, "Coalesce streaming manifests.")
	fs.StringVar(&cfg.Bucket, "bucket", cfg.Bucket, "The target bucket.")
	fs.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "The common key prefix.")
	fs.IntVar(&cfg.Partition, "partition", cfg.Partition, "The partition to coalesce (-1 for all).")
	fs.Int64Var(&cfg.MaxBatchBytes, "size", cfg.MaxBatchBytes, "The maximum size in bytes of a coalesced object.")
	fs.IntVar(&cfg.MaxBatchFiles, "files", cfg.MaxBatchFiles, "The maximum number of files to coalesce into one.")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "The number of coalescing workers (0 for the pool default).")
	fs.BoolVar(&cfg.IsolatedWorkers, "isolated", cfg.IsolatedWorkers, "Give every unit of work its own store client.")
	fs.BoolVar(&cfg.ByBatch, "by-batch", cfg.ByBatch, "Dispatch batches individually instead of per partition.")
	fs.IntVar(&cfg.PageSize, "summaries", cfg.PageSize, "How many object summaries to fetch at a time.")
	fs.BoolVar(&cfg.CompressOutput, "compress", cfg.CompressOutput, "Write merged objects zstd-compressed.")
	fs.BoolVar(&cfg.Storage.Localstack, "localstack", cfg.Storage.Localstack, "Target a LocalStack instance.")
	fs.StringVar(&cfg.Storage.Backend, "backend", cfg.Storage.Backend, "Storage backend: s3, gcs, or local.")
	fs.StringVar(&cfg.Storage.LocalDir, "local-dir", cfg.Storage.LocalDir, "Base directory for the local backend.")
	fs.StringVar(&cfg.Storage.S3Endpoint, "s3-endpoint", cfg.Storage.S3Endpoint, "Custom S3 endpoint URL.")
	fs.StringVar(&cfg.Storage.S3Region, "s3-region", cfg.Storage.S3Region, "S3 region.")
	fs.BoolVar(&cfg.Metrics.Enabled, "metrics", cfg.Metrics.Enabled, "Serve Prometheus metrics.")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Storage.Bucket = cfg.Bucket

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Partition < -1 || c.Partition > MaxPartition {
		return fmt.Errorf("partition must be -1 or in [0, %d], got %d", MaxPartition, c.Partition)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("summaries page size must be positive, got %d", c.PageSize)
	}
	switch c.Storage.Backend {
	case "local", "gcs", "s3":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	return nil
}

// peekConfigPath scans args for -config without consuming anything else.
func peekConfigPath(args []string) string {
	path := os.Getenv("COALESCER_CONFIG")
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				path = args[i+1]
			}
		case strings.HasPrefix(arg, "-config="):
			path = strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		}
	}
	return path
}

// loadFile applies a YAML configuration file over cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config) {
	cfg.Bucket = getenvDefault("COALESCER_BUCKET", cfg.Bucket)
	cfg.Prefix = getenvDefault("COALESCER_PREFIX", cfg.Prefix)
	cfg.Storage.Backend = getenvDefault("COALESCER_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = getenvDefault("COALESCER_LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.S3Endpoint = getenvDefault("COALESCER_S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3Region = getenvDefault("COALESCER_S3_REGION", cfg.Storage.S3Region)
	cfg.Catalog.PostgresDSN = getenvDefault("COALESCER_CATALOG_DSN", cfg.Catalog.PostgresDSN)
	cfg.Catalog.Namespace = getenvDefault("COALESCER_CATALOG_NAMESPACE", cfg.Catalog.Namespace)
	cfg.Events.Endpoint = getenvDefault("COALESCER_EVENTS_ENDPOINT", cfg.Events.Endpoint)
	if cfg.Events.Endpoint != "" {
		cfg.Events.Enabled = true
	}
	cfg.Logging.Format = getenvDefault("COALESCER_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("COALESCER_LOG_LEVEL", cfg.Logging.Level)

	if v := os.Getenv("COALESCER_WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Workers = parsed
		}
	}
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
