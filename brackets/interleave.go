package brackets

// Interleave merges per-category batches by round-robin draw: one item from the
// first batch, one from the second, and so on, until every batch is drained.
// Each batch keeps its internal order. batches is visited in the given order.
func Interleave[T any](batches [][]T) []T {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	merged := make([]T, 0, total)
	for i := 0; len(merged) < total; i++ {
		for _, b := range batches {
			if i < len(b) {
				merged = append(merged, b[i])
			}
		}
	}
	return merged
}
