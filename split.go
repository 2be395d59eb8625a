package yoloprep

// Dataset splitting.

import (
	"fmt"
	"math"
	"math/rand"
)

// Subset is one of the disjoint parts a dataset is split into.
type Subset string

// The subsets, in output order.
const (
	Train Subset = "train"
	Val   Subset = "val"
	Test  Subset = "test"
)

// Subsets lists all subsets in output order.
var Subsets = []Subset{Train, Val, Test}

// ratioTolerance is the allowed deviation of the ratio sum from 1.
const ratioTolerance = 1e-6

// Ratios are the fractions of the records that go into each subset.
type Ratios struct {
	Train float64 `mapstructure:"train" yaml:"train" json:"train"`
	Val   float64 `mapstructure:"val" yaml:"val" json:"val"`
	Test  float64 `mapstructure:"test" yaml:"test" json:"test"`
}

// DefaultRatios is the 70/20/10 split.
var DefaultRatios = Ratios{Train: 0.7, Val: 0.2, Test: 0.1}

// Validate fails with ErrInvalidRatio unless all ratios are non-negative and add up to 1.
func (r Ratios) Validate() error {
	for _, v := range []float64{r.Train, r.Val, r.Test} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %v is negative", ErrInvalidRatio, r)
		}
	}
	if sum := r.Train + r.Val + r.Test; math.Abs(sum-1) > ratioTolerance {
		return fmt.Errorf("%w: %v adds up to %g, not 1", ErrInvalidRatio, r, sum)
	}
	return nil
}

// Counts returns the subset sizes for n records. The validation and test sizes are rounded and the
// training set receives the remainder.
func (r Ratios) Counts(n int) (train, val, test int) {
	val = int(math.Round(float64(n) * r.Val))
	test = int(math.Round(float64(n) * r.Test))
	if val > n {
		val = n
	}
	if val+test > n {
		test = n - val
	}
	return n - val - test, val, test
}

func (r Ratios) String() string {
	return fmt.Sprintf("%g/%g/%g", r.Train, r.Val, r.Test)
}

// Split shuffles a copy of the records with rng and slices it into the training, validation and
// test sets according to ratios.
//
// The result depends only on the record order, the state of rng and the ratios, so a generator
// seeded with a fixed value reproduces the same split.
func (records DatasetRecords) Split(ratios Ratios, rng *rand.Rand) (map[Subset]DatasetRecords, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}

	shuffled := make(DatasetRecords, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTrain, nVal, _ := ratios.Counts(len(shuffled))
	return map[Subset]DatasetRecords{
		Train: shuffled[:nTrain:nTrain],
		Val:   shuffled[nTrain : nTrain+nVal : nTrain+nVal],
		Test:  shuffled[nTrain+nVal:],
	}, nil
}
