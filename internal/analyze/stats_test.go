package analyze

import (
	"math"
	"testing"
)

func fromOneTo(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return values
}

func wantFloat(t *testing.T, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("got nil, want %v", want)
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", *got, want)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	// On 1..100 the interpolated percentiles fall between ranks.
	values := fromOneTo(100)
	wantFloat(t, Percentile(values, 50), 50.5)
	wantFloat(t, Percentile(values, 90), 90.1)
	wantFloat(t, Percentile(values, 95), 95.05)
	wantFloat(t, Percentile(values, 99), 99.01)
}

func TestPercentileExactRank(t *testing.T) {
	// Five elements put the quartiles exactly on ranks.
	values := []float64{10, 20, 30, 40, 50}
	wantFloat(t, Percentile(values, 0), 10)
	wantFloat(t, Percentile(values, 25), 20)
	wantFloat(t, Percentile(values, 50), 30)
	wantFloat(t, Percentile(values, 75), 40)
	wantFloat(t, Percentile(values, 100), 50)
}

func TestPercentileClamps(t *testing.T) {
	values := []float64{1, 2, 3}
	wantFloat(t, Percentile(values, -10), 1)
	wantFloat(t, Percentile(values, 250), 3)
}

func TestPercentileDegenerate(t *testing.T) {
	if got := Percentile(nil, 50); got != nil {
		t.Fatalf("empty input should yield nil, got %v", *got)
	}
	wantFloat(t, Percentile([]float64{7}, 99), 7)
}

func TestPercentileMatchesMedian(t *testing.T) {
	for _, values := range [][]float64{
		fromOneTo(7),
		fromOneTo(8),
		{1, 1, 2, 3, 5, 8, 13},
	} {
		p := Percentile(values, 50)
		m := Median(values)
		if *p != *m {
			t.Errorf("p50 %v != median %v for %v", *p, *m, values)
		}
	}
}

func TestMedian(t *testing.T) {
	wantFloat(t, Median([]float64{1, 2, 3}), 2)
	wantFloat(t, Median([]float64{1, 2, 3, 4}), 2.5)
	wantFloat(t, Median([]float64{5}), 5)
	if got := Median(nil); got != nil {
		t.Fatalf("empty input should yield nil, got %v", *got)
	}
}

func TestDescribe(t *testing.T) {
	d := describe([]float64{4, 2, 6, 8})
	if d.count != 4 {
		t.Fatalf("count = %d, want 4", d.count)
	}
	wantFloat(t, d.mean, 5)
	wantFloat(t, d.median, 5)
	wantFloat(t, d.min, 2)
	wantFloat(t, d.max, 8)
	// Sample variance of {2,4,6,8} is 20/3.
	wantFloat(t, d.stdDev, math.Sqrt(20.0/3.0))
}

func TestDescribeSingleValue(t *testing.T) {
	d := describe([]float64{42})
	wantFloat(t, d.mean, 42)
	wantFloat(t, d.stdDev, 0)
	wantFloat(t, d.p99, 42)
}

func TestDescribeEmpty(t *testing.T) {
	d := describe(nil)
	if d.count != 0 {
		t.Fatalf("count = %d, want 0", d.count)
	}
	if d.mean != nil || d.median != nil || d.stdDev != nil || d.min != nil || d.max != nil {
		t.Fatal("empty describe should leave every field nil")
	}
}
