package storage

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// blobStore implements ObjectStore over a gocloud.dev bucket. The s3 and
// gcs backends share it, differing only in how the bucket is opened.
type blobStore struct {
	bucket *blob.Bucket
	scheme string // "s3" | "gs"
	name   string
}

// ListPage returns one page of object listings from the bucket.
func (s *blobStore) ListPage(ctx context.Context, prefix string, pageToken []byte, pageSize int) ([]Object, []byte, error) {
	if len(pageToken) == 0 || string(pageToken) == string(FirstPageToken) {
		pageToken = blob.FirstPageToken
	}

	listed, next, err := s.bucket.ListPage(ctx, pageToken, pageSize, &blob.ListOptions{
		Prefix: prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list page under %s: %w", prefix, err)
	}

	objects := make([]Object, 0, len(listed))
	for _, obj := range listed {
		if obj.IsDir {
			continue
		}
		objects = append(objects, Object{Key: obj.Key, Size: obj.Size})
	}

	return objects, next, nil
}

// Read returns the full contents of one object.
func (s *blobStore) Read(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// WriteMerged writes the ordered contents as a single object.
func (s *blobStore) WriteMerged(ctx context.Context, key string, contents [][]byte) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	for _, chunk := range contents {
		if _, err := w.Write(chunk); err != nil {
			w.Close()
			return fmt.Errorf("write data to %s: %w", key, err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Delete removes the given objects one by one.
func (s *blobStore) Delete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.bucket.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
	}
	return nil
}

// URI returns the canonical URI for the given key.
func (s *blobStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, key)
}

// Close releases the bucket connection.
func (s *blobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
