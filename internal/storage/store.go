// Package storage abstracts the object store used by the coalescing
// pipeline: paged listing, whole-object reads, merged writes, and deletes.
package storage

import (
	"context"
	"fmt"
)

// Object describes one listed object.
type Object struct {
	Key  string
	Size int64
}

// FirstPageToken starts a paged listing.
var FirstPageToken = []byte("first")

// ObjectStore is the store client used by the lister and the batch
// coalescer. Implementations must be safe for concurrent use by multiple
// goroutines.
type ObjectStore interface {
	// ListPage returns one page of at most pageSize objects under prefix,
	// in listing order, plus the token for the next page. An empty next
	// token means the listing is exhausted.
	ListPage(ctx context.Context, prefix string, pageToken []byte, pageSize int) ([]Object, []byte, error)

	// Read returns the full contents of one object.
	Read(ctx context.Context, key string) ([]byte, error)

	// WriteMerged writes the ordered contents as a single object at key.
	WriteMerged(ctx context.Context, key string, contents [][]byte) error

	// Delete removes the given objects.
	Delete(ctx context.Context, keys []string) error

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// Config configures the storage backend.
type Config struct {
	Backend string `yaml:"backend"` // "local" | "gcs" | "s3"
	Bucket  string `yaml:"bucket"`

	// Local filesystem
	LocalDir string `yaml:"local_dir"`

	// S3 (also works for MinIO, LocalStack, B2, R2)
	S3Endpoint string `yaml:"s3_endpoint"` // custom endpoint; forces path-style addressing
	S3Region   string `yaml:"s3_region"`

	// Localstack targets a local emulator with the default LocalStack
	// endpoint unless S3Endpoint is set explicitly.
	Localstack bool `yaml:"localstack"`
}

// localstackEndpoint is the default LocalStack edge endpoint.
const localstackEndpoint = "http://localhost:4566"

// NewObjectStore creates a storage backend based on configuration.
func NewObjectStore(cfg Config) (ObjectStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		return NewGCSStore(cfg.Bucket)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		endpoint := cfg.S3Endpoint
		if endpoint == "" && cfg.Localstack {
			endpoint = localstackEndpoint
		}
		return NewS3Store(cfg.Bucket, endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
