// Package stats provides the statistical primitives used by artifact
// detection: online variance, autoregressive models, autocorrelation and
// Yule-Walker estimation. Batch estimators are computed with gonum.
package stats

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrRange is returned when arguments are empty, too short or out of
	// the supported range.
	ErrRange = errors.New("argument out of range")
	// ErrSingular is returned when Yule-Walker system can't be solved.
	ErrSingular = errors.New("singular autocorrelation matrix")
)

// SampleMean returns arithmetic mean of x.
func SampleMean(x []float64) (float64, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("sample mean of empty slice: %w", ErrRange)
	}
	return stat.Mean(x, nil), nil
}

// SampleVariance returns Bessel-corrected variance of x.
func SampleVariance(x []float64) (float64, error) {
	if len(x) < 2 {
		return 0, fmt.Errorf("sample variance of %d values: %w", len(x), ErrRange)
	}
	return stat.Variance(x, nil), nil
}

// SampleVarianceMean returns Bessel-corrected variance of x around known
// mean mu.
func SampleVarianceMean(x []float64, mu float64) (float64, error) {
	if len(x) < 2 {
		return 0, fmt.Errorf("sample variance of %d values: %w", len(x), ErrRange)
	}
	n := float64(len(x))
	return stat.MomentAbout(2, x, mu, nil) * n / (n - 1), nil
}

// SampleStd returns sample standard deviation of x.
func SampleStd(x []float64) (float64, error) {
	if len(x) < 2 {
		return 0, fmt.Errorf("sample deviation of %d values: %w", len(x), ErrRange)
	}
	return stat.StdDev(x, nil), nil
}

// SampleCov returns Bessel-corrected covariance of x and y.
func SampleCov(x, y []float64) (float64, error) {
	if len(x) < 2 || len(x) != len(y) {
		return 0, fmt.Errorf("sample covariance of %d and %d values: %w", len(x), len(y), ErrRange)
	}
	return stat.Covariance(x, y, nil), nil
}

// Corr returns Pearson correlation of x and y. It's NaN if either
// series is constant.
func Corr(x, y []float64) (float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return 0, fmt.Errorf("correlation of %d and %d values: %w", len(x), len(y), ErrRange)
	}
	return stat.Correlation(x, y, nil), nil
}

// WeightedMean returns mean of x weighted by w.
func WeightedMean(x, w []float64) (float64, error) {
	if len(x) == 0 || len(x) != len(w) {
		return 0, fmt.Errorf("weighted mean of %d values with %d weights: %w", len(x), len(w), ErrRange)
	}
	return stat.Mean(x, w), nil
}

// WeightedCovariance returns covariance of x and y weighted by w. Weights
// are frequency weights, the sum is divided by sum(w)-1.
func WeightedCovariance(x, y, w []float64) (float64, error) {
	if len(x) == 0 || len(x) != len(y) || len(y) != len(w) {
		return 0, fmt.Errorf("weighted covariance of %d, %d values with %d weights: %w", len(x), len(y), len(w), ErrRange)
	}
	return stat.Covariance(x, y, w), nil
}

// WeightedCorrelation returns correlation of x and y weighted by w.
func WeightedCorrelation(x, y, w []float64) (float64, error) {
	if len(x) == 0 || len(x) != len(y) || len(y) != len(w) {
		return 0, fmt.Errorf("weighted correlation of %d, %d values with %d weights: %w", len(x), len(y), len(w), ErrRange)
	}
	return stat.Correlation(x, y, w), nil
}

// Summary returns a short human readable description of x.
func Summary(x []float64) string {
	if len(x) == 0 {
		return "[]float64{n: 0}"
	}
	mu := stat.Mean(x, nil)
	s := math.NaN()
	if len(x) > 1 {
		s = stat.StdDev(x, nil)
	}
	head, tail := make([]string, 0, 5), make([]string, 0, 5)
	for i := 0; i < len(x) && i < 5; i++ {
		head = append(head, fmt.Sprint(x[i]))
		tail = append(tail, fmt.Sprint(x[len(x)-1-i]))
	}
	return fmt.Sprintf("[]float64{n: %d, mean: %v, std. deviation: %v, first 5: %s, last 5: %s}",
		len(x), mu, s, strings.Join(head, ", "), strings.Join(tail, ", "))
}
