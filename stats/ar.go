package stats

import (
	"fmt"
	"math"
)

// ARModel predicts the next value of a series as a constant plus a
// linear combination of the previous p values. Predict is O(p).
type ARModel struct {
	c      float64
	phi    []float64
	window []float64
}

// NewARModel returns AR(len(phi)) model. Constant and all coefficients
// must be finite and at least one coefficient is required.
func NewARModel(c float64, phi []float64) (*ARModel, error) {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return nil, fmt.Errorf("ar constant %v: %w", c, ErrRange)
	}
	if len(phi) == 0 {
		return nil, fmt.Errorf("ar model without coefficients: %w", ErrRange)
	}
	for i, v := range phi {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("ar coefficient %d is %v: %w", i, v, ErrRange)
		}
	}
	coefficients := make([]float64, len(phi))
	copy(coefficients, phi)
	return &ARModel{
		c:      c,
		phi:    coefficients,
		window: make([]float64, 0, len(phi)+1),
	}, nil
}

// Predict records x and returns the forecast of the value that follows
// it. Until p+1 values were observed the model returns x unchanged.
func (m *ARModel) Predict(x float64) float64 {
	p := len(m.phi)
	m.window = append(m.window, x)
	if len(m.window) <= p {
		return x
	}
	// evict the oldest, the window keeps p latest values.
	copy(m.window, m.window[1:])
	m.window = m.window[:p]

	xHat := m.c
	for i := 0; i < p; i++ {
		xHat += m.phi[i] * m.window[p-1-i]
	}
	return xHat
}

// Order returns p.
func (m *ARModel) Order() int {
	return len(m.phi)
}

// Constant returns c.
func (m *ARModel) Constant() float64 {
	return m.c
}

// Coefficients returns a copy of phi.
func (m *ARModel) Coefficients() []float64 {
	phi := make([]float64, len(m.phi))
	copy(phi, m.phi)
	return phi
}

func (m *ARModel) String() string {
	return fmt.Sprintf("AR(%d){c: %v, phi: %v}", len(m.phi), m.c, m.phi)
}
