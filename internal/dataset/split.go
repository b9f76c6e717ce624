package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// SplitLengths returns the train/validation sizes for a full length and a
// training fraction: trainLen = floor(fullLen*fraction) and
// trainLen + valLen == fullLen.
func SplitLengths(fullLen int, fraction float64) (trainLen, valLen int) {
	trainLen = int(math.Floor(float64(fullLen) * fraction))
	if trainLen < 0 {
		trainLen = 0
	}
	if trainLen > fullLen {
		trainLen = fullLen
	}
	return trainLen, fullLen - trainLen
}

// RandomSplit partitions ds into training and validation subsets using a
// random permutation, sized by SplitLengths.
func RandomSplit(ds *Dataset, fraction float64, rng *rand.Rand) (train, val *Dataset, err error) {
	if fraction < 0 || fraction > 1 || math.IsNaN(fraction) {
		return nil, nil, fmt.Errorf("training fraction must be in [0, 1] (got %v)", fraction)
	}
	trainLen, _ := SplitLengths(ds.Len(), fraction)
	perm := rng.Perm(ds.Len())
	return ds.Subset(perm[:trainLen]), ds.Subset(perm[trainLen:]), nil
}
