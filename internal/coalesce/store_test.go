package coalesce

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/corplake/lake-coalescer/internal/storage"
)

// fakeStore is an in-memory ObjectStore for pipeline tests. Write and read
// failures can be injected per key.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	failReads   map[string]bool
	failWrites  map[string]bool
	failDeletes map[string]bool

	reads   int
	writes  int
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:     make(map[string][]byte),
		failReads:   make(map[string]bool),
		failWrites:  make(map[string]bool),
		failDeletes: make(map[string]bool),
	}
}

func (s *fakeStore) put(key, contents string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = []byte(contents)
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *fakeStore) contents(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return string(data), ok
}

func (s *fakeStore) ListPage(_ context.Context, prefix string, pageToken []byte, pageSize int) ([]storage.Object, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []storage.Object
	for key, data := range s.objects {
		if strings.HasPrefix(key, prefix) {
			all = append(all, storage.Object{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	after := ""
	if len(pageToken) > 0 && string(pageToken) != string(storage.FirstPageToken) {
		after = string(pageToken)
	}

	var page []storage.Object
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

func (s *fakeStore) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.failReads[key] {
		return nil, fmt.Errorf("injected read failure for %s", key)
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStore) WriteMerged(_ context.Context, key string, contents [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failWrites[key] {
		return fmt.Errorf("injected write failure for %s", key)
	}
	var merged []byte
	for _, chunk := range contents {
		merged = append(merged, chunk...)
	}
	s.objects[key] = merged
	return nil
}

func (s *fakeStore) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	for _, key := range keys {
		if s.failDeletes[key] {
			return fmt.Errorf("injected delete failure for %s", key)
		}
		delete(s.objects, key)
	}
	return nil
}

func (s *fakeStore) URI(key string) string {
	return "fake://" + key
}

func (s *fakeStore) Close() error {
	return nil
}
