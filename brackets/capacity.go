package brackets

import (
	"errors"
	"fmt"
)

var ErrConfiguration = errors.New("invalid category configuration")

// MinimumContestants is the smallest roster that fills every pool with two
// contestants and still eliminates at least one in preselection.
func MinimumContestants(poolCount int) (int, error) {
	if poolCount < 1 {
		return 0, fmt.Errorf("%w: pool count must be at least 1, got %d", ErrConfiguration, poolCount)
	}
	return poolCount*2 + 1, nil
}

// PoolCapacity returns the largest multiple of poolCount strictly below registeredCount.
func PoolCapacity(registeredCount, poolCount int) (int, error) {
	if poolCount < 1 {
		return 0, fmt.Errorf("%w: pool count must be at least 1, got %d", ErrConfiguration, poolCount)
	}
	if registeredCount < 1 {
		return 0, nil
	}
	return ((registeredCount - 1) / poolCount) * poolCount, nil
}

// DistributeToPools splits qualifiedCount into poolCount pools of identical size.
func DistributeToPools(qualifiedCount, poolCount int) ([]int, error) {
	if poolCount < 1 {
		return nil, fmt.Errorf("%w: pool count must be at least 1, got %d", ErrConfiguration, poolCount)
	}
	if qualifiedCount%poolCount != 0 {
		return nil, fmt.Errorf("%w: %d qualified contestants cannot be split evenly into %d pools", ErrConfiguration, qualifiedCount, poolCount)
	}
	sizes := make([]int, poolCount)
	for i := range sizes {
		sizes[i] = qualifiedCount / poolCount
	}
	return sizes, nil
}
