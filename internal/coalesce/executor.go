package coalesce

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/corplake/lake-coalescer/internal/batching"
	"github.com/corplake/lake-coalescer/internal/metrics"
	"github.com/corplake/lake-coalescer/internal/storage"
)

// Strategy selects the granularity of work submitted to the pool.
type Strategy string

const (
	// ByBatch submits every batch as its own unit of work. Used when a
	// single explicit partition is targeted.
	ByBatch Strategy = "by-batch"

	// ByPartition submits one unit per partition; each unit coalesces its
	// partition's batches sequentially on one worker. This bounds concurrent
	// store clients to the partition count.
	ByPartition Strategy = "by-partition"
)

// StoreFactory constructs a fresh store client for an isolated worker unit.
type StoreFactory func() (storage.ObjectStore, error)

// ExecutorOptions configures the tranche executor.
type ExecutorOptions struct {
	// Workers bounds pool concurrency; 0 means runtime.GOMAXPROCS(0).
	Workers int

	// Isolated makes every unit construct its own store client from
	// NewStore and close it when the unit finishes, mirroring the
	// process-pool substrate where connection state is never shared.
	Isolated bool

	// NewStore is required when Isolated is set.
	NewStore StoreFactory

	// CompressOutput writes merged objects zstd-compressed.
	CompressOutput bool
}

// Executor dispatches batch coalescing across a bounded worker pool. All
// submission happens from the calling goroutine; workers never submit
// further work.
type Executor struct {
	store    storage.ObjectStore
	workers  int
	isolated bool
	newStore StoreFactory
	enc      *zstd.Encoder
	log      *slog.Logger
}

// unit is one schedulable slice of a tranche: a single batch under ByBatch,
// or a whole partition's batches under ByPartition.
type unit struct {
	batches []batching.Batch
}

// NewExecutor creates a tranche executor over the given store.
func NewExecutor(store storage.ObjectStore, opts ExecutorOptions) (*Executor, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var enc *zstd.Encoder
	if opts.CompressOutput {
		var err error
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
	}

	return &Executor{
		store:    store,
		workers:  workers,
		isolated: opts.Isolated,
		newStore: opts.NewStore,
		enc:      enc,
		log:      slog.With("component", "executor"),
	}, nil
}

// Close releases the output encoder, if any.
func (e *Executor) Close() error {
	if e.enc != nil {
		e.enc.Close()
	}
	return nil
}

// Execute coalesces every batch of the tranche under the given strategy and
// returns one outcome slice per submitted unit. It blocks until all units
// have completed; there is no fire-and-forget.
func (e *Executor) Execute(ctx context.Context, batched batching.BatchedTranche, strategy Strategy) [][]Outcome {
	units := makeUnits(batched, strategy)
	if len(units) == 0 {
		return nil
	}

	e.log.Debug("executing tranche",
		"strategy", string(strategy),
		"units", len(units),
		"batches", batched.Batches(),
		"workers", e.workers,
	)

	results := make([][]Outcome, len(units))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	inFlight := newInFlightGauge()
	for i, u := range units {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, u unit) {
			defer wg.Done()
			defer func() { <-sem }()
			inFlight.add(1)
			defer inFlight.add(-1)

			results[i] = e.runUnit(ctx, u)
		}(i, u)
	}

	wg.Wait()
	return results
}

// runUnit coalesces one unit's batches sequentially on one worker.
func (e *Executor) runUnit(ctx context.Context, u unit) []Outcome {
	store := e.store
	if e.isolated {
		fresh, err := e.newStore()
		if err != nil {
			// The whole unit fails; siblings are unaffected.
			outcomes := make([]Outcome, len(u.batches))
			for i, b := range u.batches {
				outcomes[i] = Outcome{
					Topic:     b.Topic,
					Partition: b.Partition,
					Seq:       b.Seq,
					Objects:   len(b.Objects),
					Err:       &BatchIOError{Op: "connect", Key: b.Objects[0].Key, Err: err},
				}
			}
			return outcomes
		}
		defer fresh.Close()
		store = fresh
	}

	coalescer := NewCoalescer(store, e.enc, e.log)

	outcomes := make([]Outcome, len(u.batches))
	for i, b := range u.batches {
		outcomes[i] = coalescer.Coalesce(ctx, b)
		recordBatchMetrics(outcomes[i])
	}
	return outcomes
}

// makeUnits slices a batched tranche into schedulable units. Topics and
// partitions are visited in sorted order so submission order is stable.
func makeUnits(batched batching.BatchedTranche, strategy Strategy) []unit {
	topics := make([]string, 0, len(batched))
	for topic := range batched {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	var units []unit
	for _, topic := range topics {
		byPartition := batched[topic]

		partitions := make([]int, 0, len(byPartition))
		for partition := range byPartition {
			partitions = append(partitions, partition)
		}
		sort.Ints(partitions)

		for _, partition := range partitions {
			batches := byPartition[partition]
			if len(batches) == 0 {
				continue
			}
			switch strategy {
			case ByBatch:
				for _, b := range batches {
					units = append(units, unit{batches: []batching.Batch{b}})
				}
			default:
				units = append(units, unit{batches: batches})
			}
		}
	}
	return units
}

// recordBatchMetrics folds one outcome into the global metrics, if enabled.
func recordBatchMetrics(o Outcome) {
	m := metrics.Get()
	if m == nil {
		return
	}
	switch {
	case o.Skipped:
		m.IncBatchesSkipped(o.Topic)
	case o.OK:
		m.IncBatchesCoalesced(o.Topic)
		m.AddObjectsMerged(o.Topic, float64(o.Objects))
		m.AddObjectsDeleted(o.Topic, float64(o.Objects))
		m.AddBytesMerged(o.Topic, float64(o.Bytes))
	default:
		m.IncBatchesFailed(o.Topic)
	}
	m.ObserveBatchDuration(o.Duration.Seconds())
}

// inFlightGauge mirrors the pool's in-flight unit count into metrics.
type inFlightGauge struct {
	mu    sync.Mutex
	count int
}

func newInFlightGauge() *inFlightGauge {
	return &inFlightGauge{}
}

func (g *inFlightGauge) add(delta int) {
	g.mu.Lock()
	g.count += delta
	count := g.count
	g.mu.Unlock()

	if m := metrics.Get(); m != nil {
		m.SetInFlightUnits(float64(count))
	}
}
