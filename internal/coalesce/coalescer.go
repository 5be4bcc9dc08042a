// Package coalesce merges batched lake objects into fewer, larger objects
// and drives the per-tranche pipeline.
package coalesce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/corplake/lake-coalescer/internal/batching"
	"github.com/corplake/lake-coalescer/internal/storage"
)

// BatchIOError reports a store failure while coalescing one batch. It is
// caught at the batch boundary; sibling batches are unaffected.
type BatchIOError struct {
	Op  string // "read" | "write" | "delete"
	Key string
	Err error
}

func (e *BatchIOError) Error() string {
	return fmt.Sprintf("batch %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *BatchIOError) Unwrap() error {
	return e.Err
}

// Outcome is the terminal result of coalescing one batch. There is no retry
// state; a failed batch is reported and left as-is.
type Outcome struct {
	Topic     string
	Partition int
	Seq       int
	OK        bool
	Skipped   bool // batch of size <= 1, nothing to merge
	Err       error
	MergedKey string
	Objects   int
	Bytes     int64
	Duration  time.Duration
}

// Coalescer merges the objects of one batch into a single output object and
// deletes the inputs. It is a pure function of (batch, store) with no shared
// mutable state, so any worker substrate can run it.
type Coalescer struct {
	store storage.ObjectStore
	enc   *zstd.Encoder // nil when output compression is off
	log   *slog.Logger
}

// NewCoalescer creates a coalescer over the given store. enc may be nil.
func NewCoalescer(store storage.ObjectStore, enc *zstd.Encoder, log *slog.Logger) *Coalescer {
	if log == nil {
		log = slog.With("component", "coalescer")
	}
	return &Coalescer{store: store, enc: enc, log: log}
}

// DestinationKey derives the merged object's key from the batch's first
// member. The first key encodes topic, partition, and position, so the
// result is deterministic per batch.
func DestinationKey(b batching.Batch, compressed bool) string {
	key := b.Objects[0].Key + ".coalesced"
	if compressed {
		key += ".zst"
	}
	return key
}

// Coalesce merges one batch. Batches of size <= 1 are a no-op success and
// never touch the store. Any read, write, or delete failure marks the batch
// failed; a failed batch may leave the merged object written with some
// sources undeleted. That window is accepted, not rolled back.
func (c *Coalescer) Coalesce(ctx context.Context, b batching.Batch) Outcome {
	start := time.Now()
	outcome := Outcome{
		Topic:     b.Topic,
		Partition: b.Partition,
		Seq:       b.Seq,
		Objects:   len(b.Objects),
	}

	if len(b.Objects) <= 1 {
		c.log.Debug("not processing batch of size <= 1",
			"topic", b.Topic, "partition", b.Partition, "batch", b.Seq)
		outcome.OK = true
		outcome.Skipped = true
		outcome.Duration = time.Since(start)
		return outcome
	}

	contents := make([][]byte, 0, len(b.Objects))
	keys := make([]string, 0, len(b.Objects))
	for _, obj := range b.Objects {
		data, err := c.store.Read(ctx, obj.Key)
		if err != nil {
			outcome.Err = &BatchIOError{Op: "read", Key: obj.Key, Err: err}
			outcome.Duration = time.Since(start)
			return outcome
		}
		contents = append(contents, data)
		keys = append(keys, obj.Key)
	}

	if c.enc != nil {
		var merged []byte
		for _, chunk := range contents {
			merged = append(merged, chunk...)
		}
		contents = [][]byte{c.enc.EncodeAll(merged, nil)}
	}

	dest := DestinationKey(b, c.enc != nil)
	if err := c.store.WriteMerged(ctx, dest, contents); err != nil {
		outcome.Err = &BatchIOError{Op: "write", Key: dest, Err: err}
		outcome.Duration = time.Since(start)
		return outcome
	}

	if err := c.store.Delete(ctx, keys); err != nil {
		outcome.Err = &BatchIOError{Op: "delete", Key: dest, Err: err}
		outcome.Duration = time.Since(start)
		return outcome
	}

	var bytes int64
	for _, chunk := range contents {
		bytes += int64(len(chunk))
	}

	outcome.OK = true
	outcome.MergedKey = dest
	outcome.Bytes = bytes
	outcome.Duration = time.Since(start)

	c.log.Debug("coalesced batch",
		"topic", b.Topic,
		"partition", b.Partition,
		"batch", b.Seq,
		"objects", len(b.Objects),
		"bytes", bytes,
		"key", dest,
	)
	return outcome
}
