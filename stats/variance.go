package stats

import "math"

// OnlineVariance maintains running mean and variance in O(1) using
// Welford's algorithm. Zero value is ready to use.
type OnlineVariance struct {
	n    int
	mean float64
	m2   float64
}

// Update incorporates x into the running statistics.
func (v *OnlineVariance) Update(x float64) {
	v.n++
	delta := x - v.mean
	v.mean += delta / float64(v.n)
	delta2 := x - v.mean
	v.m2 += delta * delta2
}

// N returns the number of values that have been added.
func (v *OnlineVariance) N() int {
	return v.n
}

// Mean returns the running mean. Zero if no values were added.
func (v *OnlineVariance) Mean() float64 {
	return v.mean
}

// Variance returns the sample variance. It's NaN until at least two
// values were added.
func (v *OnlineVariance) Variance() float64 {
	if v.n < 2 {
		return math.NaN()
	}
	return v.m2 / float64(v.n-1)
}

// Valid reports if variance is defined.
func (v *OnlineVariance) Valid() bool {
	return v.n >= 2
}
