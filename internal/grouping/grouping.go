// Package grouping partitions flat object listings into topic/partition
// groups ready for batching.
package grouping

import (
	"github.com/corplake/lake-coalescer/internal/storage"
)

// AllPartitions routes every descriptor to its natural partition.
const AllPartitions = -1

// Descriptor identifies one stored object and its place in the lake.
// Descriptors are immutable once built; listing order is preserved
// throughout the pipeline.
type Descriptor struct {
	Topic     string
	Partition int
	Key       string
	Size      int64
}

// GroupedTranche maps topic -> partition -> ordered descriptors for one
// listing page. Every well-formed descriptor from the source tranche appears
// in exactly one group.
type GroupedTranche map[string]map[int][]Descriptor

// Descriptors returns the total descriptor count across all groups.
func (g GroupedTranche) Descriptors() int {
	n := 0
	for _, partitions := range g {
		for _, group := range partitions {
			n += len(group)
		}
	}
	return n
}

// Group builds a GroupedTranche from one page of object listings.
//
// partition selects a single partition in [0, 19]; AllPartitions (-1) keeps
// every partition. Objects belonging to other partitions are silently
// excluded, not an error. manifests switches key parsing to the
// streaming-manifest structure.
//
// Objects whose keys fail to parse are skipped; the returned slice holds one
// *MalformedKeyError per skipped object so the caller can log them as
// warnings. Output order within each group follows input order.
func Group(objects []storage.Object, partition int, manifests bool) (GroupedTranche, []error) {
	grouped := make(GroupedTranche)
	var warnings []error

	for _, obj := range objects {
		topic, part, err := ParseKey(obj.Key, manifests)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}

		if partition != AllPartitions && part != partition {
			continue
		}

		partitions, ok := grouped[topic]
		if !ok {
			partitions = make(map[int][]Descriptor)
			grouped[topic] = partitions
		}

		partitions[part] = append(partitions[part], Descriptor{
			Topic:     topic,
			Partition: part,
			Key:       obj.Key,
			Size:      obj.Size,
		})
	}

	return grouped, warnings
}
