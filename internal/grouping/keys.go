package grouping

import (
	"fmt"
	"regexp"
	"strconv"
)

// Key patterns for the two object families stored in the lake.
//
// Regular corporate data objects carry a dotted topic and a Kafka-style
// partition/offset suffix:
//
//	corporate_storage/ucfs_audit/2020/11/05/data/businessAudit/db.core.claimant_4_100-200.jsonl.gz
//
// Streaming manifest objects use underscores throughout and a single offset:
//
//	corporate_storage/.../streaming/db_core_claimant_4_100.csv
var (
	dataKeyPattern     = regexp.MustCompile(`(?:^|/)(db\.[\w-]+\.[\w-]+)_(\d+)_(\d+)-(\d+)\.(?:.+)$`)
	manifestKeyPattern = regexp.MustCompile(`(?:^|/)(db_[\w-]+_[\w-]+)_(\d+)_(\d+)\.(?:.+)$`)
)

// MalformedKeyError reports an object key that does not match the expected
// structure for the active parsing mode. It is a per-descriptor warning, not
// fatal to the tranche.
type MalformedKeyError struct {
	Key       string
	Manifests bool
}

func (e *MalformedKeyError) Error() string {
	mode := "data"
	if e.Manifests {
		mode = "manifest"
	}
	return fmt.Sprintf("malformed %s object key: %q", mode, e.Key)
}

// ParseKey extracts the topic and partition index from an object key.
// manifests selects the streaming-manifest key structure instead of the
// regular corporate data one.
func ParseKey(key string, manifests bool) (topic string, partition int, err error) {
	pattern := dataKeyPattern
	if manifests {
		pattern = manifestKeyPattern
	}

	m := pattern.FindStringSubmatch(key)
	if m == nil {
		return "", 0, &MalformedKeyError{Key: key, Manifests: manifests}
	}

	partition, err = strconv.Atoi(m[2])
	if err != nil {
		// Unreachable with the patterns above, kept for safety.
		return "", 0, &MalformedKeyError{Key: key, Manifests: manifests}
	}

	return m[1], partition, nil
}
