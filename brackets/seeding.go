package brackets

import "fmt"

// SeedPools deals ranked contestants into pools in serpentine order
// (1,2,...,k then k,...,2,1) so every pool receives a comparable spread of
// preselection ranks. sizes comes from DistributeToPools.
func SeedPools(ranked []int, sizes []int) ([][]int, error) {
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != len(ranked) {
		return nil, fmt.Errorf("%w: %d contestants for %d pool seats", ErrConfiguration, len(ranked), total)
	}
	pools := make([][]int, len(sizes))
	for i := range pools {
		pools[i] = make([]int, 0, sizes[i])
	}
	k := len(sizes)
	for i, id := range ranked {
		lap, idx := i/k, i%k
		if lap%2 == 1 {
			idx = k - 1 - idx
		}
		pools[idx] = append(pools[idx], id)
	}
	return pools, nil
}
