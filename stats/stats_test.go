package stats

import (
	"errors"
	"math"
	"testing"

	acerrors "github.com/scttfrdmn/acbench/errors"
)

// TestIdenticalSampleShortcut tests that identical samples give exactly 1
func TestIdenticalSampleShortcut(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5}
	rng := NewRand(1, "identical")

	if p := PermUnpairedTest(x, x, 1000, rng); p != 1.0 {
		t.Errorf("Expected p = 1.0 for identical samples, got %v", p)
	}
	p, err := PermPairedTest(x, x, 1000, rng)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p != 1.0 {
		t.Errorf("Expected paired p = 1.0 for identical samples, got %v", p)
	}
	if p := NewTester().PValue(x, x, rng); p != 1.0 {
		t.Errorf("Expected tester p = 1.0 for identical samples, got %v", p)
	}
}

// TestPermutationSymmetry tests p(x, y) + p(y, x) = 1 within Monte-Carlo error
func TestPermutationSymmetry(t *testing.T) {
	cases := []struct {
		name string
		x, y []float64
	}{
		{"separated", []float64{1, 2, 3, 4, 5}, []float64{3, 4, 5, 6, 7}},
		{"overlapping", []float64{1, 2, 3, 5, 6, 7}, []float64{2, 3, 4, 6, 8, 9}},
		{"ties", []float64{1, 1, 1, 2, 3}, []float64{2, 2, 3, 3, 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pxy := PermUnpairedTest(tc.x, tc.y, 10000, NewRand(7, tc.name, "xy"))
			pyx := PermUnpairedTest(tc.y, tc.x, 10000, NewRand(7, tc.name, "yx"))

			if math.Abs(pxy-(1-pyx)) > 0.02 {
				t.Errorf("Expected p(x,y) ~ 1-p(y,x), got %.4f and %.4f", pxy, pyx)
			}
		})
	}
}

// TestPermutationOrientation tests that a small p-value means x is better
func TestPermutationOrientation(t *testing.T) {
	better := []float64{1, 2, 1, 2, 1, 2, 1, 2}
	worse := []float64{10, 11, 10, 11, 10, 11, 10, 11}

	if p := PermUnpairedTest(better, worse, 2000, NewRand(3)); p > 0.05 {
		t.Errorf("Expected small p when x is better, got %.4f", p)
	}
	if p := PermUnpairedTest(worse, better, 2000, NewRand(3)); p < 0.95 {
		t.Errorf("Expected large p when y is better, got %.4f", p)
	}
}

// TestUnbalancedPermutation tests the dedicated path for unequal sizes
func TestUnbalancedPermutation(t *testing.T) {
	x := []float64{1, 2, 1, 2}
	y := []float64{10, 11, 12, 10, 11, 12, 10, 11}

	p := PermUnpairedTest(x, y, 2000, NewRand(5))
	if p > 0.1 {
		t.Errorf("Expected small p for clearly better smaller group, got %.4f", p)
	}

	q := PermUnpairedUnbalancedTest(y, x, 2000, NewRand(5))
	if q < 0.9 {
		t.Errorf("Expected large p for clearly worse larger group, got %.4f", q)
	}

	// Inputs must not be reordered
	if x[0] != 1 || y[0] != 10 || y[2] != 12 {
		t.Error("Expected inputs to stay untouched")
	}
}

// TestPermPairedLengthMismatch tests that mismatched lengths are a hard error
func TestPermPairedLengthMismatch(t *testing.T) {
	_, err := PermPairedTest([]float64{1, 2}, []float64{1, 2, 3}, 100, NewRand(1))
	if err == nil {
		t.Fatal("Expected error for mismatched lengths")
	}

	var argErr *acerrors.ArgumentError
	if !errors.As(err, &argErr) {
		t.Errorf("Expected ArgumentError, got %T", err)
	}
}

// TestPermPairedOrientation tests the sign-flip test direction
func TestPermPairedOrientation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := []float64{2, 3, 4, 5, 6, 7, 8, 9}

	p, err := PermPairedTest(x, y, 5000, NewRand(11))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p > 0.05 {
		t.Errorf("Expected small p when every pair favours x, got %.4f", p)
	}
}

// TestPercentileRank tests tie handling of the percentile rank
func TestPercentileRank(t *testing.T) {
	dist := []float64{1, 2, 3, 4}

	tests := []struct {
		score    float64
		expected float64
	}{
		{0, 0},
		{5, 1},
		{3, 0.75},
		{2.5, 0.5},
	}
	for _, tc := range tests {
		if got := PercentileRank(dist, tc.score); math.Abs(got-tc.expected) > 1e-12 {
			t.Errorf("PercentileRank(%v) = %v, expected %v", tc.score, got, tc.expected)
		}
	}

	if !math.IsNaN(PercentileRank(nil, 1)) {
		t.Error("Expected NaN for empty distribution")
	}
}

// TestRankSumTest tests the normal approximation against known values
func TestRankSumTest(t *testing.T) {
	x := []float64{1, 2, 3}
	y := []float64{4, 5, 6}

	less := RankSumTest(x, y, Less)
	if math.Abs(less-0.0404) > 1e-3 {
		t.Errorf("Expected one-sided p ~ 0.0404, got %.4f", less)
	}

	greater := RankSumTest(x, y, Greater)
	if greater < 0.95 {
		t.Errorf("Expected large p for the opposite tail, got %.4f", greater)
	}

	two := RankSumTest(x, y, TwoSided)
	if math.Abs(two-2*less) > 1e-9 {
		t.Errorf("Expected two-sided p = 2 * one-sided, got %.4f", two)
	}
}

// TestRankSumAllTied tests that fully tied samples give p = 1
func TestRankSumAllTied(t *testing.T) {
	x := []float64{2, 2, 2}
	y := []float64{2, 2, 2}

	if p := RankSumTest(x, y, Less); p != 1.0 {
		t.Errorf("Expected p = 1 for fully tied samples, got %v", p)
	}
}

// TestTesterFastPath tests that large groups use the rank-sum test
func TestTesterFastPath(t *testing.T) {
	x := make([]float64, 25)
	y := make([]float64, 25)
	for i := range x {
		x[i] = float64(i)
		y[i] = float64(i) + 3.5
	}

	tester := NewTester()
	got := tester.PValue(x, y, NewRand(1))
	want := RankSumTest(x, y, Less)
	if got != want {
		t.Errorf("Expected fast path p %.6f, got %.6f", want, got)
	}

	tester.FastPathMin = 0
	perm := tester.PValue(x, y, NewRand(1))
	if perm == want {
		t.Error("Expected permutation test when the fast path is disabled")
	}
	if perm > 0.5 {
		t.Errorf("Expected p < 0.5 when x is better, got %.4f", perm)
	}
}

// TestTesterThresholds tests the rejection, similarity and superiority flags
func TestTesterThresholds(t *testing.T) {
	tester := NewTester()

	if !tester.Rejects(0.05) || tester.Rejects(0.051) {
		t.Error("Expected rejection exactly at p <= alpha")
	}
	if tester.Similar(0.05) || !tester.Similar(0.2) {
		t.Error("Expected similarity for p > alpha")
	}
	if tester.Better(0.94) || !tester.Better(0.96) {
		t.Error("Expected superiority for p > 1 - alpha")
	}
	if tester.Similar(math.NaN()) || tester.Better(math.NaN()) {
		t.Error("Expected NaN to be neither similar nor better")
	}
}

// TestQuantile tests linear interpolation between closest ranks
func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	tests := []struct {
		q        float64
		expected float64
	}{
		{0, 1},
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
		{1, 4},
	}
	for _, tc := range tests {
		if got := Quantile(sorted, tc.q); math.Abs(got-tc.expected) > 1e-12 {
			t.Errorf("Quantile(%.2f) = %v, expected %v", tc.q, got, tc.expected)
		}
	}

	if got := Median([]float64{5, 1, 3}); got != 3 {
		t.Errorf("Expected median 3, got %v", got)
	}
	if !math.IsNaN(Median(nil)) {
		t.Error("Expected NaN median for empty input")
	}
}

// TestQuantileInfinite tests samples containing timeouts recorded as +Inf
func TestQuantileInfinite(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name     string
		sorted   []float64
		q        float64
		expected float64
	}{
		{"all timeouts", []float64{inf, inf}, 0.5, inf},
		{"upper timeout", []float64{5, inf}, 0.5, inf},
		{"exact rank", []float64{1, 5, inf}, 0.5, 5},
		{"lower quartile", []float64{1, 3, inf, inf}, 0.25, 2.5},
		{"negative", []float64{math.Inf(-1), 2}, 0.5, math.Inf(-1)},
	}
	for _, tc := range tests {
		got := Quantile(tc.sorted, tc.q)
		if got != tc.expected {
			t.Errorf("%s: Quantile(%v) = %v, expected %v", tc.name, tc.q, got, tc.expected)
		}
	}
	if got := Median([]float64{inf, 4, inf}); got != inf {
		t.Errorf("Expected infinite median, got %v", got)
	}
}

// TestNewRandDeterminism tests per-unit seeding
func TestNewRandDeterminism(t *testing.T) {
	a := NewRand(42, "scen", "smac").Float64()
	b := NewRand(42, "scen", "smac").Float64()
	c := NewRand(42, "scen", "irace").Float64()

	if a != b {
		t.Error("Expected equal streams for equal inputs")
	}
	if a == c {
		t.Error("Expected different streams for different units")
	}
}
