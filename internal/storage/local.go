package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore serves objects from the local filesystem. Keys map to paths
// under the base directory. Intended for development and tests.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// ListPage lists objects under prefix in key order. The page token is the
// last key of the previous page, so deleting already-listed objects never
// shifts later pages.
func (s *LocalStore) ListPage(ctx context.Context, prefix string, pageToken []byte, pageSize int) ([]Object, []byte, error) {
	var all []Object

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		all = append(all, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", s.baseDir, err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	after := ""
	if len(pageToken) > 0 && string(pageToken) != string(FirstPageToken) {
		after = string(pageToken)
	}

	var page []Object
	for _, obj := range all {
		if after != "" && obj.Key <= after {
			continue
		}
		page = append(page, obj)
		if pageSize > 0 && len(page) == pageSize {
			break
		}
	}

	var next []byte
	if pageSize > 0 && len(page) == pageSize {
		next = []byte(page[len(page)-1].Key)
	}
	return page, next, nil
}

// Read returns the full contents of one object.
func (s *LocalStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// WriteMerged writes the ordered contents as a single object, atomically
// via temp file + rename.
func (s *LocalStore) WriteMerged(ctx context.Context, key string, contents [][]byte) error {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file %s: %w", tempPath, err)
	}
	for _, chunk := range contents {
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			os.Remove(tempPath)
			return fmt.Errorf("write temp file %s: %w", tempPath, err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}

// Delete removes the given objects.
func (s *LocalStore) Delete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(key))); err != nil {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
	}
	return nil
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	return "file://" + filepath.Join(s.baseDir, filepath.FromSlash(key))
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
