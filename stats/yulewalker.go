package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ACF returns the autocorrelation of x at lag k. Both autocovariance and
// variance are biased (divided by n) and use the sample mean. ACF(0, x)
// is 1.
func ACF(k int, x []float64) (float64, error) {
	if k < 0 {
		return 0, fmt.Errorf("acf lag %d: %w", k, ErrRange)
	}
	if len(x) == 0 {
		return 0, fmt.Errorf("acf of empty slice: %w", ErrRange)
	}
	if k == 0 {
		return 1, nil
	}
	return autocorrelations(x, k)[k], nil
}

// PACF returns the partial autocorrelation of x at lag k, the last
// coefficient of Yule-Walker AR(k) fit.
func PACF(k int, x []float64) (float64, error) {
	phi, err := FitAR(k, x)
	if err != nil {
		return 0, err
	}
	return phi[k-1], nil
}

// FitAR estimates coefficients of AR(p) model of x with Yule-Walker
// equations. The Toeplitz autocorrelation matrix is inverted explicitly.
// AR(0) is noise, so p must be positive.
func FitAR(p int, x []float64) ([]float64, error) {
	if p < 1 {
		return nil, fmt.Errorf("ar order %d: %w", p, ErrRange)
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("ar fit of %d values: %w", len(x), ErrRange)
	}
	return yuleWalker(autocorrelations(x, p), p)
}

// EstimateAROrder returns the smallest order i such that PACF at every
// lag in (i, maxOrder] lies within two standard deviations of the mean of
// PACF sequence itself. If there is no such order, maxOrder is returned.
//
// Cost is about maxOrder Yule-Walker fits, use small maxOrder.
func EstimateAROrder(x []float64, maxOrder int) (int, error) {
	if maxOrder < 1 {
		return 0, fmt.Errorf("max ar order %d: %w", maxOrder, ErrRange)
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("ar order of %d values: %w", len(x), ErrRange)
	}
	if maxOrder == 1 {
		return 1, nil
	}

	acf := autocorrelations(x, maxOrder)
	pacf := make([]float64, maxOrder)
	for i := 1; i <= maxOrder; i++ {
		phi, err := yuleWalker(acf, i)
		if err != nil {
			return 0, err
		}
		pacf[i-1] = phi[i-1]
	}

	pacfMean, pacfStd := stat.MeanStdDev(pacf, nil)
	minCutoff := pacfMean - 2*pacfStd
	maxCutoff := pacfMean + 2*pacfStd

	for i := 1; i < maxOrder; i++ {
		if within(pacf[i:], minCutoff, maxCutoff) {
			return i, nil
		}
	}
	return maxOrder, nil
}

func within(x []float64, lo, hi float64) bool {
	for _, v := range x {
		if v < lo || v > hi {
			return false
		}
	}
	return true
}

// autocorrelations returns ACF of x for lags [0, maxLag].
func autocorrelations(x []float64, maxLag int) []float64 {
	n := len(x)
	mu := stat.Mean(x, nil)
	var sigma float64
	for _, xi := range x {
		sigma += (xi - mu) * (xi - mu)
	}
	sigma /= float64(n)

	acf := make([]float64, maxLag+1)
	acf[0] = 1
	for k := 1; k <= maxLag; k++ {
		var cov float64
		for t := 0; t < n-k; t++ {
			cov += (x[t] - mu) * (x[t+k] - mu)
		}
		cov /= float64(n)
		acf[k] = cov / sigma
	}
	return acf
}

// yuleWalker solves phi = R^-1 * r where r = acf[1..p] and R is symmetric
// Toeplitz matrix with R[i][j] = acf[|i-j|].
func yuleWalker(acf []float64, p int) ([]float64, error) {
	// constant series has no autocorrelation.
	if math.IsNaN(acf[1]) {
		return nil, fmt.Errorf("yule-walker order %d: undefined autocorrelation: %w", p, ErrSingular)
	}
	r := mat.NewVecDense(p, nil)
	R := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		r.SetVec(i, acf[i+1])
		for j := i; j < p; j++ {
			R.SetSym(i, j, acf[j-i])
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(R); err != nil {
		return nil, fmt.Errorf("yule-walker order %d: %v: %w", p, err, ErrSingular)
	}
	var phi mat.VecDense
	phi.MulVec(&inv, r)

	coefficients := make([]float64, p)
	for i := range coefficients {
		v := phi.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("yule-walker order %d: coefficient %d is %v: %w", p, i, v, ErrSingular)
		}
		coefficients[i] = v
	}
	return coefficients, nil
}
