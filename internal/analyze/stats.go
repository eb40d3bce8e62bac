package analyze

import (
	"math"
	"sort"
)

// Percentile computes the p-th percentile (p in [0,100]) of a sorted
// ascending slice using linear interpolation between closest ranks:
// index = p/100 * (N-1), interpolating on the fractional part. Returns
// nil for an empty slice. This is the interpolated definition, not
// nearest-rank; Percentile(values, 50) equals the classic median.
func Percentile(sorted []float64, p float64) *float64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	if n == 1 {
		v := sorted[0]
		return &v
	}
	if p <= 0 {
		v := sorted[0]
		return &v
	}
	if p >= 100 {
		v := sorted[n-1]
		return &v
	}

	idx := p / 100 * float64(n-1)
	lo := math.Floor(idx)
	frac := idx - lo
	i := int(lo)
	if frac == 0 {
		v := sorted[i]
		return &v
	}
	v := sorted[i] + frac*(sorted[i+1]-sorted[i])
	return &v
}

// Median returns the central element for odd N, the mean of the two
// central elements for even N, nil for empty input. Input must be
// sorted ascending.
func Median(sorted []float64) *float64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	if n%2 == 1 {
		v := sorted[n/2]
		return &v
	}
	v := (sorted[n/2-1] + sorted[n/2]) / 2
	return &v
}

// describe computes the full distribution summary over values (not
// required to be sorted; sorted in place).
func describe(values []float64) distribution {
	d := distribution{count: int64(len(values))}
	if len(values) == 0 {
		return d
	}
	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	d.mean = &mean
	d.min = ptr(values[0])
	d.max = ptr(values[len(values)-1])
	d.median = Median(values)
	d.p50 = Percentile(values, 50)
	d.p90 = Percentile(values, 90)
	d.p95 = Percentile(values, 95)
	d.p99 = Percentile(values, 99)

	if len(values) > 1 {
		var sqDev float64
		for _, v := range values {
			delta := v - mean
			sqDev += delta * delta
		}
		d.stdDev = ptr(math.Sqrt(sqDev / float64(len(values)-1)))
	} else {
		d.stdDev = ptr(0.0)
	}
	return d
}

type distribution struct {
	count                int64
	mean, median, stdDev *float64
	min, max             *float64
	p50, p90, p95, p99   *float64
}

func ptr(v float64) *float64 { return &v }
