// Package stats implements the one-sided significance tests used to compare
// configurators at a fixed time step.
//
// All tests share one orientation: the alternative hypothesis is that the
// first sample x is better (lower) than the second sample y. A small p-value
// is evidence for x being better; a p-value close to one is evidence for y
// being better.
//
// Example:
//
//	tester := stats.NewTester()
//	rng := stats.NewRand(42, "scenario", "smac")
//	p := tester.PValue(reference, candidate, rng)
//	if tester.Better(p) {
//	    fmt.Println("candidate beats the reference")
//	}
package stats

import (
	"math"
	"math/rand"
)

// SignificanceLevel represents statistical significance thresholds.
type SignificanceLevel float64

const (
	// SignificanceLevel001 represents 99% confidence
	SignificanceLevel001 SignificanceLevel = 0.01
	// SignificanceLevel005 represents 95% confidence (default)
	SignificanceLevel005 SignificanceLevel = 0.05
	// SignificanceLevel010 represents 90% confidence
	SignificanceLevel010 SignificanceLevel = 0.10
)

const (
	// DefaultReps is the number of permutations per test.
	DefaultReps = 10000
	// DefaultFastPathMin is the per-group sample size from which the rank-sum
	// test replaces the permutation test.
	DefaultFastPathMin = 20
)

// Tester selects and runs the significance test for a pair of samples.
type Tester struct {
	// Reps is the number of permutations.
	Reps int
	// Alpha is the significance level.
	Alpha SignificanceLevel
	// FastPathMin enables the rank-sum fast path when both groups have at
	// least this many samples. Zero disables it.
	FastPathMin int
	// Seed is the base seed for generators derived with Rand.
	Seed int64
}

// NewTester creates a tester with default settings.
func NewTester() *Tester {
	return &Tester{
		Reps:        DefaultReps,
		Alpha:       SignificanceLevel005,
		FastPathMin: DefaultFastPathMin,
	}
}

// Rand derives the generator for one unit of work.
func (t *Tester) Rand(parts ...string) *rand.Rand {
	return NewRand(t.Seed, parts...)
}

// PValue returns the one-sided p-value for "x is better than y".
//
// Identical samples give exactly 1. Empty samples give NaN, which is
// neither similar nor better.
func (t *Tester) PValue(x, y []float64, rng *rand.Rand) float64 {
	if len(x) == 0 || len(y) == 0 {
		return math.NaN()
	}
	if Identical(x, y) {
		return 1.0
	}
	if t.FastPathMin > 0 && len(x) >= t.FastPathMin && len(y) >= t.FastPathMin {
		return RankSumTest(x, y, Less)
	}
	reps := t.Reps
	if reps <= 0 {
		reps = DefaultReps
	}
	return PermUnpairedTest(x, y, reps, rng)
}

// Rejects reports whether p rejects the null hypothesis, i.e. x is
// significantly better than y.
func (t *Tester) Rejects(p float64) bool {
	return p <= t.Level()
}

// Similar reports whether y cannot be distinguished from x.
func (t *Tester) Similar(p float64) bool {
	return p > t.Level()
}

// Better reports whether y is significantly better than x.
func (t *Tester) Better(p float64) bool {
	return p > 1-t.Level()
}

// Level returns the significance level in effect. An unset or invalid Alpha
// falls back to 0.05.
func (t *Tester) Level() float64 {
	if t.Alpha <= 0 || t.Alpha >= 1 {
		return float64(SignificanceLevel005)
	}
	return float64(t.Alpha)
}

// Identical reports whether x and y have the same length and equal elements.
func Identical(x, y []float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
