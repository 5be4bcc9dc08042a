// Package batching slices partition groups into size- and count-bounded
// batches, the unit of coalescing work.
package batching

import (
	"github.com/corplake/lake-coalescer/internal/grouping"
)

// Batch is an ordered sub-sequence of one partition's descriptors that is
// merged into a single object. Seq is the batch's position within its
// partition.
type Batch struct {
	Topic     string
	Partition int
	Seq       int
	Objects   []grouping.Descriptor
}

// Size returns the cumulative byte size of the batch members.
func (b Batch) Size() int64 {
	var total int64
	for _, obj := range b.Objects {
		total += obj.Size
	}
	return total
}

// BatchedTranche maps topic -> partition -> ordered batches. Concatenating a
// partition's batches in order reconstructs its group exactly.
type BatchedTranche map[string]map[int][]Batch

// Batches returns the total batch count across all partitions.
func (bt BatchedTranche) Batches() int {
	n := 0
	for _, partitions := range bt {
		for _, batches := range partitions {
			n += len(batches)
		}
	}
	return n
}

// Slice batches every partition group under the two limits.
//
// A batch is closed when adding the next descriptor would push its byte size
// over sizeLimit (unless the batch is still empty) or when it already holds
// fileLimit descriptors. A single descriptor larger than sizeLimit is placed
// alone in its own batch; objects are atomic and never split. A limit <= 0
// means unbounded for that dimension.
func Slice(sizeLimit int64, fileLimit int, grouped grouping.GroupedTranche) BatchedTranche {
	batched := make(BatchedTranche)

	for topic, partitions := range grouped {
		byPartition := make(map[int][]Batch, len(partitions))
		for partition, group := range partitions {
			byPartition[partition] = slicePartition(topic, partition, sizeLimit, fileLimit, group)
		}
		batched[topic] = byPartition
	}

	return batched
}

func slicePartition(topic string, partition int, sizeLimit int64, fileLimit int, group []grouping.Descriptor) []Batch {
	var (
		batches []Batch
		current []grouping.Descriptor
		size    int64
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Batch{
			Topic:     topic,
			Partition: partition,
			Seq:       len(batches),
			Objects:   current,
		})
		current = nil
		size = 0
	}

	for _, obj := range group {
		if sizeLimit > 0 && len(current) > 0 && size+obj.Size > sizeLimit {
			flush()
		}
		if fileLimit > 0 && len(current) >= fileLimit {
			flush()
		}
		current = append(current, obj)
		size += obj.Size
	}
	flush()

	return batches
}
