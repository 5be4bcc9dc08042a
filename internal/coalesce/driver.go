package coalesce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/corplake/lake-coalescer/internal/batching"
	"github.com/corplake/lake-coalescer/internal/catalog"
	"github.com/corplake/lake-coalescer/internal/events"
	"github.com/corplake/lake-coalescer/internal/grouping"
	"github.com/corplake/lake-coalescer/internal/logging"
	"github.com/corplake/lake-coalescer/internal/metrics"
	"github.com/corplake/lake-coalescer/internal/storage"
)

// RunOptions configures one coalescing run.
type RunOptions struct {
	Bucket    string
	Prefix    string
	Partition int  // grouping.AllPartitions or a single partition in [0, 19]
	Manifests bool // streaming-manifest key parsing

	SizeLimit int64 // max cumulative batch bytes; <= 0 unbounded
	FileLimit int   // max descriptors per batch; <= 0 unbounded
	PageSize  int   // listing page size; one page = one tranche

	// Strategy overrides the default dispatch granularity. Empty derives it
	// from the partition selector: a single explicit partition runs ByBatch,
	// all partitions run ByPartition.
	Strategy Strategy
}

// strategy resolves the effective dispatch strategy.
func (o RunOptions) strategy() Strategy {
	if o.Strategy != "" {
		return o.Strategy
	}
	if o.Partition != grouping.AllPartitions {
		return ByBatch
	}
	return ByPartition
}

// Runner drives tranches through grouping, batching, execution, and
// aggregation. The process verdict is the logical AND of all tranche
// verdicts.
type Runner struct {
	opts    RunOptions
	store   storage.ObjectStore
	exec    *Executor
	catalog catalog.Writer
	events  events.Emitter
	runID   string
	log     *slog.Logger
}

// NewRunner creates a runner for one coalescing run.
func NewRunner(opts RunOptions, store storage.ObjectStore, exec *Executor, cat catalog.Writer, emitter events.Emitter) *Runner {
	runID := uuid.New().String()
	return &Runner{
		opts:    opts,
		store:   store,
		exec:    exec,
		catalog: cat,
		events:  emitter,
		runID:   runID,
		log:     slog.With("component", "runner", "run_id", runID),
	}
}

// RunID returns this run's identity, carried in logs, events, and lineage.
func (r *Runner) RunID() string {
	return r.runID
}

// Run lists the prefix page by page and coalesces each tranche. It returns
// true iff every batch of every tranche succeeded. An error is returned only
// when listing itself fails; per-batch and per-tranche failures are folded
// into the verdict.
func (r *Runner) Run(ctx context.Context) (bool, error) {
	start := time.Now()
	r.log.Info("starting run",
		"bucket", r.opts.Bucket,
		"prefix", r.opts.Prefix,
		"partition", r.opts.Partition,
		"manifests", r.opts.Manifests,
		"size_limit", r.opts.SizeLimit,
		"file_limit", r.opts.FileLimit,
		"page_size", r.opts.PageSize,
		"strategy", string(r.opts.strategy()),
	)

	verdict := true
	tranches := 0
	batches := 0
	failed := 0

	token := storage.FirstPageToken
	for {
		objects, next, err := r.store.ListPage(ctx, r.opts.Prefix, token, r.opts.PageSize)
		if err != nil {
			return false, fmt.Errorf("list tranche %d: %w", tranches, err)
		}

		if len(objects) > 0 {
			result := r.runTranche(ctx, tranches, objects)
			verdict = verdict && result.verdict
			tranches++
			batches += result.batches
			failed += result.failed
		}

		if len(next) == 0 {
			break
		}
		token = next
	}

	elapsed := time.Since(start)
	r.log.Info("run complete",
		"tranches", tranches,
		"batches", batches,
		"failed", failed,
		"verdict", verdict,
		"duration", elapsed.String(),
	)

	if err := r.catalog.RecordRun(ctx, catalog.RunRecord{
		RunID:     r.runID,
		Bucket:    r.opts.Bucket,
		Prefix:    r.opts.Prefix,
		Partition: r.opts.Partition,
		Manifests: r.opts.Manifests,
		Tranches:  tranches,
		Batches:   batches,
		Failed:    failed,
		Succeeded: verdict,
		Duration:  elapsed,
		StartedAt: start.UTC(),
	}); err != nil {
		r.log.Warn("failed to record run in catalog", "error", err)
	}

	return verdict, nil
}

// trancheResult carries per-tranche counts back to the run loop.
type trancheResult struct {
	verdict bool
	batches int
	failed  int
}

// runTranche takes one listing page through the four pipeline stages. Any
// failure is contained to this tranche; the run loop proceeds to the next
// page regardless.
func (r *Runner) runTranche(ctx context.Context, seq int, objects []storage.Object) trancheResult {
	start := time.Now()
	correlationID := logging.GenerateCorrelationID()
	log := logging.TrancheLogger(correlationID, seq, len(objects)).With("run_id", r.runID)
	ctx = logging.WithCorrelationID(ctx, correlationID)

	log.Info("tranche listed")

	grouped, warnings := grouping.Group(objects, r.opts.Partition, r.opts.Manifests)
	for _, w := range warnings {
		log.Warn("skipping object", "error", w)
	}
	if m := metrics.Get(); m != nil && len(warnings) > 0 {
		m.AddObjectsSkipped(float64(len(warnings)))
	}

	batched := batching.Slice(r.opts.SizeLimit, r.opts.FileLimit, grouped)
	log.Info("tranche batched",
		"topics", len(batched),
		"descriptors", grouped.Descriptors(),
		"batches", batched.Batches(),
	)

	unitOutcomes := r.exec.Execute(ctx, batched, r.opts.strategy())
	verdict := Aggregate(unitOutcomes)

	outcomes := Flatten(unitOutcomes)
	merged := 0
	failedCount := 0
	for _, o := range outcomes {
		switch {
		case o.OK && o.MergedKey != "":
			merged++
			if err := r.catalog.RecordMerge(ctx, catalog.MergeRecord{
				RunID:       r.runID,
				Topic:       o.Topic,
				Partition:   o.Partition,
				MergedKey:   o.MergedKey,
				SourceCount: o.Objects,
				ByteSize:    o.Bytes,
				MergedAt:    time.Now().UTC(),
			}); err != nil {
				log.Warn("failed to record merge in catalog", "error", err)
			}
		case !o.OK:
			failedCount++
			log.Error("batch failed",
				"topic", o.Topic,
				"partition", o.Partition,
				"batch", o.Seq,
				"error", o.Err,
			)
		}
	}

	elapsed := time.Since(start)
	log.Info("tranche complete",
		"batches", len(outcomes),
		"merged", merged,
		"failed", failedCount,
		"verdict", verdict,
		"duration", elapsed.String(),
	)

	if m := metrics.Get(); m != nil {
		m.IncTranchesProcessed()
		if !verdict {
			m.IncTranchesFailed()
		}
		m.ObserveTrancheDuration(elapsed.Seconds())
	}

	if err := r.events.EmitTranche(ctx, events.TrancheReport{
		RunID:      r.runID,
		Bucket:     r.opts.Bucket,
		Prefix:     r.opts.Prefix,
		Tranche:    seq,
		Objects:    len(objects),
		Skipped:    len(warnings),
		Batches:    len(outcomes),
		Merged:     merged,
		Failed:     failedCount,
		Verdict:    verdict,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		log.Warn("failed to emit tranche report", "error", err)
	}

	return trancheResult{verdict: verdict, batches: len(outcomes), failed: failedCount}
}
