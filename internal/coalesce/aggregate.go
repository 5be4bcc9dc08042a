package coalesce

// Aggregate reduces per-unit outcomes to a tranche verdict: true iff every
// batch in the tranche succeeded. ByBatch units hold one outcome each and
// ByPartition units hold a partition's worth; flattening first makes the
// reduction identical for both strategies.
func Aggregate(unitOutcomes [][]Outcome) bool {
	for _, outcomes := range unitOutcomes {
		for _, o := range outcomes {
			if !o.OK {
				return false
			}
		}
	}
	return true
}

// Flatten joins per-unit outcomes into a single slice in submission order.
func Flatten(unitOutcomes [][]Outcome) []Outcome {
	var flat []Outcome
	for _, outcomes := range unitOutcomes {
		flat = append(flat, outcomes...)
	}
	return flat
}
