package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Alternative is the alternative hypothesis of the rank-sum test.
type Alternative int

const (
	// Less: x tends to be smaller than y.
	Less Alternative = iota
	// Greater: x tends to be larger than y.
	Greater
	// TwoSided: x and y differ in location.
	TwoSided
)

func (a Alternative) String() string {
	switch a {
	case Less:
		return "less"
	case Greater:
		return "greater"
	default:
		return "two-sided"
	}
}

// RankSumTest performs the Mann-Whitney U test with the normal
// approximation, tie correction and continuity correction.
func RankSumTest(x, y []float64, alt Alternative) float64 {
	n1, n2 := len(x), len(y)
	if n1 == 0 || n2 == 0 {
		return math.NaN()
	}

	ranks, tieTerm := rank(x, y)
	var r1 float64
	for i := 0; i < n1; i++ {
		r1 += ranks[i]
	}

	fn1, fn2 := float64(n1), float64(n2)
	n := fn1 + fn2
	u1 := r1 - fn1*(fn1+1)/2
	u2 := fn1*fn2 - u1
	mu := fn1 * fn2 / 2
	sigma := math.Sqrt(fn1 * fn2 / 12 * ((n + 1) - tieTerm/(n*(n-1))))
	if sigma == 0 {
		return 1.0
	}

	var u float64
	switch alt {
	case Greater:
		u = u1
	case Less:
		u = u2
	default:
		u = math.Max(u1, u2)
	}
	z := (u - mu - 0.5) / sigma
	p := distuv.UnitNormal.Survival(z)
	if alt == TwoSided {
		p = math.Min(1, 2*p)
	}
	return p
}

// rank assigns average ranks to the concatenation of x and y and returns
// them in input order together with the tie correction sum(t^3 - t).
func rank(x, y []float64) ([]float64, float64) {
	type item struct {
		value float64
		index int
	}
	items := make([]item, 0, len(x)+len(y))
	for i, v := range x {
		items = append(items, item{v, i})
	}
	for i, v := range y {
		items = append(items, item{v, len(x) + i})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].value < items[j].value })

	ranks := make([]float64, len(items))
	var tieTerm float64
	for i := 0; i < len(items); {
		j := i + 1
		for j < len(items) && items[j].value == items[i].value {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[items[k].index] = avg
		}
		if t := float64(j - i); t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}
	return ranks, tieTerm
}
