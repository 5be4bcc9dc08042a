package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/corplake/lake-coalescer/internal/batching"
	"github.com/corplake/lake-coalescer/internal/storage"
)

// seedPartition writes n two-object batches for one partition into the store
// and returns them in sequence order.
func seedPartition(store *fakeStore, topic string, partition, n int) []batching.Batch {
	batches := make([]batching.Batch, 0, n)
	for seq := 0; seq < n; seq++ {
		first := fmt.Sprintf("lake/%s_%d_%d-0.jsonl", topic, partition, seq*20)
		second := fmt.Sprintf("lake/%s_%d_%d-0.jsonl", topic, partition, seq*20+10)
		store.put(first, "a")
		store.put(second, "b")
		batches = append(batches, makeBatch(topic, partition, seq, first, second))
	}
	return batches
}

func trancheOf(batches ...batching.Batch) batching.BatchedTranche {
	tranche := batching.BatchedTranche{}
	for _, b := range batches {
		if tranche[b.Topic] == nil {
			tranche[b.Topic] = map[int][]batching.Batch{}
		}
		tranche[b.Topic][b.Partition] = append(tranche[b.Topic][b.Partition], b)
	}
	return tranche
}

func TestExecuteFailureIsolation(t *testing.T) {
	store := newFakeStore()
	batches := seedPartition(store, "db.core.claimant", 0, 3)

	// Poison the middle batch's destination. Its siblings must still merge.
	store.failWrites[DestinationKey(batches[1], false)] = true

	exec, err := NewExecutor(store, ExecutorOptions{Workers: 2})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	defer exec.Close()

	results := exec.Execute(context.Background(), trancheOf(batches...), ByBatch)
	if len(results) != 3 {
		t.Fatalf("got %d unit results, want 3", len(results))
	}

	verdicts := make(map[int]bool, 3)
	for _, outcomes := range results {
		if len(outcomes) != 1 {
			t.Fatalf("by-batch unit produced %d outcomes, want 1", len(outcomes))
		}
		verdicts[outcomes[0].Seq] = outcomes[0].OK
	}
	want := map[int]bool{0: true, 1: false, 2: true}
	for seq, ok := range want {
		if verdicts[seq] != ok {
			t.Errorf("batch %d OK = %v, want %v", seq, verdicts[seq], ok)
		}
	}

	// The failed batch's sources survive; the succeeded ones are gone.
	if _, ok := store.contents(batches[1].Objects[0].Key); !ok {
		t.Error("failed batch sources should remain in the store")
	}
	if _, ok := store.contents(batches[0].Objects[0].Key); ok {
		t.Error("succeeded batch sources should have been deleted")
	}
}

func TestExecuteStrategiesProduceSameMergedSet(t *testing.T) {
	run := func(strategy Strategy) []string {
		store := newFakeStore()
		var all []batching.Batch
		all = append(all, seedPartition(store, "db.core.claimant", 0, 2)...)
		all = append(all, seedPartition(store, "db.core.claimant", 1, 2)...)
		all = append(all, seedPartition(store, "db.agent.contact", 0, 1)...)

		exec, err := NewExecutor(store, ExecutorOptions{Workers: 4})
		if err != nil {
			t.Fatalf("NewExecutor failed: %v", err)
		}
		defer exec.Close()

		for _, outcomes := range exec.Execute(context.Background(), trancheOf(all...), strategy) {
			for _, o := range outcomes {
				if !o.OK {
					t.Fatalf("unexpected failure under %s: %v", strategy, o.Err)
				}
			}
		}
		return store.keys()
	}

	byBatch := run(ByBatch)
	byPartition := run(ByPartition)
	sort.Strings(byBatch)
	sort.Strings(byPartition)
	if len(byBatch) != len(byPartition) {
		t.Fatalf("strategies diverge: by-batch %v, by-partition %v", byBatch, byPartition)
	}
	for i := range byBatch {
		if byBatch[i] != byPartition[i] {
			t.Fatalf("strategies diverge: by-batch %v, by-partition %v", byBatch, byPartition)
		}
	}
}

func TestExecuteByPartitionUnitGrouping(t *testing.T) {
	store := newFakeStore()
	var all []batching.Batch
	all = append(all, seedPartition(store, "db.core.claimant", 0, 3)...)
	all = append(all, seedPartition(store, "db.core.claimant", 1, 2)...)

	exec, err := NewExecutor(store, ExecutorOptions{Workers: 2})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	defer exec.Close()

	results := exec.Execute(context.Background(), trancheOf(all...), ByPartition)
	if len(results) != 2 {
		t.Fatalf("got %d units, want one per partition", len(results))
	}

	sizes := []int{len(results[0]), len(results[1])}
	sort.Ints(sizes)
	if sizes[0] != 2 || sizes[1] != 3 {
		t.Errorf("unit outcome counts = %v, want [2 3]", sizes)
	}
}

func TestExecuteEmptyTranche(t *testing.T) {
	exec, err := NewExecutor(newFakeStore(), ExecutorOptions{})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	defer exec.Close()

	if results := exec.Execute(context.Background(), batching.BatchedTranche{}, ByPartition); results != nil {
		t.Errorf("empty tranche produced results: %v", results)
	}
}

func TestExecuteIsolatedUsesFactoryPerUnit(t *testing.T) {
	shared := newFakeStore()
	batches := seedPartition(shared, "db.core.claimant", 0, 2)
	batches = append(batches, seedPartition(shared, "db.core.claimant", 1, 2)...)

	var mu sync.Mutex
	built := 0

	exec, err := NewExecutor(shared, ExecutorOptions{
		Workers:  2,
		Isolated: true,
		NewStore: func() (storage.ObjectStore, error) {
			mu.Lock()
			built++
			mu.Unlock()
			return shared, nil
		},
	})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	defer exec.Close()

	results := exec.Execute(context.Background(), trancheOf(batches...), ByPartition)
	for _, outcomes := range results {
		for _, o := range outcomes {
			if !o.OK {
				t.Fatalf("unexpected failure: %v", o.Err)
			}
		}
	}

	if built != len(results) {
		t.Errorf("factory called %d times, want once per unit (%d)", built, len(results))
	}
}

func TestExecuteIsolatedFactoryFailureFailsUnitOnly(t *testing.T) {
	shared := newFakeStore()
	batches := seedPartition(shared, "db.core.claimant", 0, 2)
	batches = append(batches, seedPartition(shared, "db.core.claimant", 1, 1)...)

	var mu sync.Mutex
	calls := 0

	exec, err := NewExecutor(shared, ExecutorOptions{
		// Single worker so units run in sorted submission order and the
		// failure lands deterministically on partition 0.
		Workers:  1,
		Isolated: true,
		NewStore: func() (storage.ObjectStore, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return nil, errors.New("injected connect failure")
			}
			return shared, nil
		},
	})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	defer exec.Close()

	results := exec.Execute(context.Background(), trancheOf(batches...), ByPartition)
	if len(results) != 2 {
		t.Fatalf("got %d units, want 2", len(results))
	}

	// Unit 0 is partition 0 (sorted submission order).
	for _, o := range results[0] {
		if o.OK {
			t.Error("unit with failed store construction should fail every batch")
		}
		var ioErr *BatchIOError
		if !errors.As(o.Err, &ioErr) || ioErr.Op != "connect" {
			t.Errorf("Err = %v, want *BatchIOError with Op connect", o.Err)
		}
	}
	for _, o := range results[1] {
		if !o.OK {
			t.Errorf("sibling unit should be unaffected, got %v", o.Err)
		}
	}
}
