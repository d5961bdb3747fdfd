package dataset

import (
	"math"
	"math/rand"
	"sort"

	"golang.org/x/xerrors"
)

// SplitIndices holds disjoint, exhaustive index sets into a dataset.
type SplitIndices struct {
	Train []int
	Val   []int
	Test  []int
}

// Splits are the materialised subsets of a dataset.
type Splits struct {
	Train, Val, Test *Dataset
	Indices          SplitIndices
}

// Partition draws a seeded permutation of n indices, carves ceil(test*n) test
// items first and then ceil(val/(1-test)*rest) validation items from what
// remains. Each subset keeps ascending index order.
func Partition(n int, testFraction, valFraction float64, seed int64) (SplitIndices, error) {
	if n < 0 {
		return SplitIndices{}, xerrors.Errorf("negative size %d: %w", n, ErrInvalidSplit)
	}
	if testFraction < 0 || testFraction >= 1 || valFraction < 0 || valFraction >= 1 ||
		testFraction+valFraction >= 1 {
		return SplitIndices{}, xerrors.Errorf("test=%g val=%g: %w", testFraction, valFraction, ErrInvalidSplit)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	nTest := ceil(testFraction * float64(n))
	rest := n - nTest
	nVal := ceil(valFraction / (1 - testFraction) * float64(rest))
	if nVal > rest {
		nVal = rest
	}

	idx := SplitIndices{
		Test:  sorted(perm[:nTest]),
		Val:   sorted(perm[nTest : nTest+nVal]),
		Train: sorted(perm[nTest+nVal:]),
	}
	return idx, nil
}

// ceil ignores float noise so that 0.1*30 counts as 3, not 4.
func ceil(x float64) int {
	return int(math.Ceil(x - 1e-9))
}

func sorted(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	sort.Ints(out)
	return out
}

// Split partitions ds with Partition.
func Split(ds *Dataset, testFraction, valFraction float64, seed int64) (*Splits, error) {
	idx, err := Partition(ds.Len(), testFraction, valFraction, seed)
	if err != nil {
		return nil, err
	}
	return &Splits{
		Train:   ds.Subset(idx.Train),
		Val:     ds.Subset(idx.Val),
		Test:    ds.Subset(idx.Test),
		Indices: idx,
	}, nil
}
