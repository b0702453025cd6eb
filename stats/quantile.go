package stats

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
)

// Quantile returns the q-quantile of an ascending sorted sample using linear
// interpolation between the closest ranks (R type 7). gonum's stat.Quantile
// only provides the empirical and R type 4 estimators, which disagree with
// the quartiles reported by common analysis tools on small samples.
// Infinite neighbours are returned as is, so a sample of timeouts has an
// infinite median instead of NaN.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 || math.IsNaN(q) {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * q
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	a, b, frac := sorted[i], sorted[i+1], h-lo
	switch {
	case frac == 0 || a == b:
		return a
	case math.IsInf(a, -1):
		return a
	case math.IsInf(b, 1):
		return b
	}
	return a + frac*(b-a)
}

// Median returns the median of values without modifying them.
func Median(values []float64) float64 {
	return Quantile(Sorted(values), 0.5)
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	return s
}

// Quartiles returns the 25th percentile, the median and the 75th percentile.
func Quartiles(values []float64) (q25, median, q75 float64) {
	s := Sorted(values)
	return Quantile(s, 0.25), Quantile(s, 0.5), Quantile(s, 0.75)
}

// NewRand derives a generator from a base seed and the names of one unit of
// work, e.g. scenario, configurator and purpose. The same inputs always give
// the same stream, independent of the order in which units are scheduled.
func NewRand(seed int64, parts ...string) *rand.Rand {
	h := fnv.New64a()
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(uint64(seed) >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
