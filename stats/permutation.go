package stats

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	acerrors "github.com/scttfrdmn/acbench/errors"
)

// PermUnpairedTest is the one-sided unpaired permutation test for "x is
// better than y".
//
// With equal sample sizes the pooled values are shuffled and split in two
// halves, and the statistic is the difference of the half sums. Unequal
// sizes are delegated to PermUnpairedUnbalancedTest. The inputs are not
// modified.
func PermUnpairedTest(x, y []float64, reps int, rng *rand.Rand) float64 {
	if len(x) == 0 || len(y) == 0 {
		return math.NaN()
	}
	if Identical(x, y) {
		return 1.0
	}
	if len(x) != len(y) {
		return PermUnpairedUnbalancedTest(x, y, reps, rng)
	}

	observed := floats.Sum(x) - floats.Sum(y)
	pooled := make([]float64, 0, len(x)+len(y))
	pooled = append(pooled, x...)
	pooled = append(pooled, y...)
	half := len(pooled) / 2

	resampled := make([]float64, reps)
	for i := range resampled {
		shuffle(pooled, rng)
		resampled[i] = floats.Sum(pooled[:half]) - floats.Sum(pooled[half:])
	}
	return PercentileRank(resampled, observed)
}

// PermUnpairedUnbalancedTest handles samples of different sizes. Each
// repetition subsamples the larger group down to the size of the smaller
// one, then pools and splits as in the balanced test. The statistic is the
// difference of means.
func PermUnpairedUnbalancedTest(x, y []float64, reps int, rng *rand.Rand) float64 {
	if len(x) == 0 || len(y) == 0 {
		return math.NaN()
	}
	observed := stat.Mean(x, nil) - stat.Mean(y, nil)

	small := min(len(x), len(y))
	xs := append([]float64(nil), x...)
	ys := append([]float64(nil), y...)
	pooled := make([]float64, 2*small)

	resampled := make([]float64, reps)
	for i := range resampled {
		xSub, ySub := xs, ys
		if len(xs) > len(ys) {
			shuffle(xs, rng)
			xSub = xs[:small]
		} else {
			shuffle(ys, rng)
			ySub = ys[:small]
		}
		copy(pooled, xSub)
		copy(pooled[small:], ySub)
		shuffle(pooled, rng)
		resampled[i] = stat.Mean(pooled[:small], nil) - stat.Mean(pooled[small:], nil)
	}
	return PercentileRank(resampled, observed)
}

// PermPairedTest is the one-sided paired permutation test. The statistic is
// the sum of the paired differences; each repetition flips the sign of every
// difference at random.
func PermPairedTest(x, y []float64, reps int, rng *rand.Rand) (float64, error) {
	if len(x) != len(y) {
		return 0, acerrors.NewArgumentError("PermPairedTest", "x and y must have the same size for a paired test")
	}
	if len(x) == 0 {
		return math.NaN(), nil
	}
	if Identical(x, y) {
		return 1.0, nil
	}

	diffs := make([]float64, len(x))
	floats.SubTo(diffs, x, y)
	observed := floats.Sum(diffs)

	resampled := make([]float64, reps)
	for i := range resampled {
		var s float64
		for _, d := range diffs {
			if rng.Intn(2) == 0 {
				s -= d
			} else {
				s += d
			}
		}
		resampled[i] = s
	}
	return PercentileRank(resampled, observed), nil
}

// PercentileRank returns the percentile rank of score within dist as a
// fraction. Values equal to score get the average of their ranks, so an
// all-equal distribution ranks its own value close to 0.5.
func PercentileRank(dist []float64, score float64) float64 {
	if len(dist) == 0 {
		return math.NaN()
	}
	var left, right int
	for _, v := range dist {
		if v < score {
			left++
		}
		if v <= score {
			right++
		}
	}
	plus := 0
	if left < right {
		plus = 1
	}
	return float64(left+right+plus) / float64(2*len(dist))
}

func shuffle(v []float64, rng *rand.Rand) {
	rng.Shuffle(len(v), func(i, j int) { v[i], v[j] = v[j], v[i] })
}
