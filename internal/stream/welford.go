package stream

import "math"

// welford is an online mean/variance accumulator using Welford's update.
// It is numerically stable for large, closely-clustered values where the
// naive sum-of-squares formula cancels catastrophically, and its mean and
// variance are invariant to the order values arrive in (min/max are too,
// trivially; only recency-style statistics would not be).
type welford struct {
	count int64
	mean  float64
	m2    float64 // sum of squared deviations from the running mean
	sum   float64
	min   float64
	max   float64
}

// observe folds one value into the accumulator in O(1).
func (w *welford) observe(v float64) {
	w.count++
	w.sum += v
	delta := v - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (v - w.mean)

	if w.count == 1 {
		w.min, w.max = v, v
		return
	}
	if v < w.min {
		w.min = v
	}
	if v > w.max {
		w.max = v
	}
}

// variance returns the sample variance (n-1 denominator), 0 for fewer
// than two values.
func (w *welford) variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

func (w *welford) stdDev() float64 {
	return math.Sqrt(w.variance())
}

// bounds returns min/max, nil when no value has been observed.
func (w *welford) bounds() (*float64, *float64) {
	if w.count == 0 {
		return nil, nil
	}
	mn, mx := w.min, w.max
	return &mn, &mx
}
