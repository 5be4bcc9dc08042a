package storage

import (
	"context"
	"strings"
	"testing"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return store
}

func seedObjects(t *testing.T, store *LocalStore, objects map[string]string) {
	t.Helper()
	ctx := context.Background()
	for key, contents := range objects {
		if err := store.WriteMerged(ctx, key, [][]byte{[]byte(contents)}); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	err := store.WriteMerged(ctx, "lake/db.alpha.users_0_0-9.jsonl.coalesced",
		[][]byte{[]byte("one,"), []byte("two,"), []byte("three")})
	if err != nil {
		t.Fatalf("WriteMerged failed: %v", err)
	}

	data, err := store.Read(ctx, "lake/db.alpha.users_0_0-9.jsonl.coalesced")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "one,two,three" {
		t.Errorf("Read = %q, want concatenation in order", data)
	}

	if err := store.Delete(ctx, []string{"lake/db.alpha.users_0_0-9.jsonl.coalesced"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Read(ctx, "lake/db.alpha.users_0_0-9.jsonl.coalesced"); err == nil {
		t.Error("Read after Delete should fail")
	}
}

func TestLocalStoreReadMissing(t *testing.T) {
	store := newTestLocalStore(t)
	if _, err := store.Read(context.Background(), "lake/missing.jsonl"); err == nil {
		t.Error("Read of missing object should fail")
	}
}

func TestLocalStoreDeleteMissing(t *testing.T) {
	store := newTestLocalStore(t)
	if err := store.Delete(context.Background(), []string{"lake/missing.jsonl"}); err == nil {
		t.Error("Delete of missing object should fail")
	}
}

func TestLocalStoreListPage(t *testing.T) {
	store := newTestLocalStore(t)
	seedObjects(t, store, map[string]string{
		"lake/a.jsonl":  "aa",
		"lake/b.jsonl":  "bbbb",
		"lake/c.jsonl":  "c",
		"lake/d.jsonl":  "dd",
		"other/x.jsonl": "x",
	})
	ctx := context.Background()

	page, next, err := store.ListPage(ctx, "lake/", FirstPageToken, 3)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page) != 3 || len(next) == 0 {
		t.Fatalf("first page = %d objects, next = %q", len(page), next)
	}
	wantFirst := []string{"lake/a.jsonl", "lake/b.jsonl", "lake/c.jsonl"}
	for i, obj := range page {
		if obj.Key != wantFirst[i] {
			t.Errorf("page[%d].Key = %q, want %q", i, obj.Key, wantFirst[i])
		}
	}
	if page[1].Size != 4 {
		t.Errorf("page[1].Size = %d, want 4", page[1].Size)
	}

	page, next, err = store.ListPage(ctx, "lake/", next, 3)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page) != 1 || page[0].Key != "lake/d.jsonl" {
		t.Fatalf("second page = %v, want only lake/d.jsonl", page)
	}
	if len(next) != 0 {
		t.Errorf("short page should end paging, next = %q", next)
	}
}

func TestLocalStoreListPageStableUnderDeletion(t *testing.T) {
	store := newTestLocalStore(t)
	seedObjects(t, store, map[string]string{
		"lake/a.jsonl": "a",
		"lake/b.jsonl": "b",
		"lake/c.jsonl": "c",
		"lake/d.jsonl": "d",
	})
	ctx := context.Background()

	page, next, err := store.ListPage(ctx, "lake/", FirstPageToken, 2)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("first page = %d objects, want 2", len(page))
	}

	// Deleting already-listed objects must not shift the next page.
	if err := store.Delete(ctx, []string{"lake/a.jsonl", "lake/b.jsonl"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	page, _, err = store.ListPage(ctx, "lake/", next, 2)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	want := []string{"lake/c.jsonl", "lake/d.jsonl"}
	if len(page) != 2 {
		t.Fatalf("second page = %v, want %v", page, want)
	}
	for i, obj := range page {
		if obj.Key != want[i] {
			t.Errorf("page[%d].Key = %q, want %q", i, obj.Key, want[i])
		}
	}
}

func TestLocalStoreListPageUnbounded(t *testing.T) {
	store := newTestLocalStore(t)
	seedObjects(t, store, map[string]string{
		"lake/a.jsonl": "a",
		"lake/b.jsonl": "b",
	})

	page, next, err := store.ListPage(context.Background(), "lake/", FirstPageToken, 0)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("unbounded page = %d objects, want all", len(page))
	}
	if len(next) != 0 {
		t.Errorf("unbounded listing should return no next token, got %q", next)
	}
}

func TestLocalStoreURI(t *testing.T) {
	store := newTestLocalStore(t)
	uri := store.URI("lake/a.jsonl")
	if !strings.HasPrefix(uri, "file://") || !strings.HasSuffix(uri, "lake/a.jsonl") {
		t.Errorf("URI = %q, want file:// path ending in key", uri)
	}
}
