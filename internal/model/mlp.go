package model

import (
	"math"
	"math/rand"
)

// MLP is a small feed-forward regressor: one tanh hidden layer trained by
// plain stochastic gradient descent for a fixed number of epochs.
type MLP struct {
	Hidden int         `json:"hidden"`
	W1     [][]float64 `json:"w1"` // [hidden][in]
	B1     []float64   `json:"b1"`
	W2     []float64   `json:"w2"` // [hidden]
	B2     float64     `json:"b2"`
}

const (
	mlpHidden    = 16
	mlpEpochs    = 200
	mlpLearnRate = 0.01
)

func fitMLP(X [][]float64, y []float64, rng *rand.Rand) *MLP {
	in := len(X[0])
	m := &MLP{
		Hidden: mlpHidden,
		W1:     make([][]float64, mlpHidden),
		B1:     make([]float64, mlpHidden),
		W2:     make([]float64, mlpHidden),
	}

	// Small symmetric random init.
	scale := 1.0 / math.Sqrt(float64(in))
	for h := 0; h < mlpHidden; h++ {
		m.W1[h] = make([]float64, in)
		for j := range m.W1[h] {
			m.W1[h][j] = (rng.Float64()*2 - 1) * scale
		}
		m.W2[h] = (rng.Float64()*2 - 1) * scale
	}

	hidden := make([]float64, mlpHidden)
	for epoch := 0; epoch < mlpEpochs; epoch++ {
		for _, i := range rng.Perm(len(X)) {
			row := X[i]

			// Forward pass.
			for h := 0; h < mlpHidden; h++ {
				z := m.B1[h]
				for j, v := range row {
					z += m.W1[h][j] * v
				}
				hidden[h] = math.Tanh(z)
			}
			out := m.B2
			for h := 0; h < mlpHidden; h++ {
				out += m.W2[h] * hidden[h]
			}

			// Backward pass, squared-error loss.
			dOut := out - y[i]
			for h := 0; h < mlpHidden; h++ {
				dHidden := dOut * m.W2[h] * (1 - hidden[h]*hidden[h])
				m.W2[h] -= mlpLearnRate * dOut * hidden[h]
				for j, v := range row {
					m.W1[h][j] -= mlpLearnRate * dHidden * v
				}
				m.B1[h] -= mlpLearnRate * dHidden
			}
			m.B2 -= mlpLearnRate * dOut
		}
	}

	return m
}

// Predict runs one forward pass.
func (m *MLP) Predict(v []float64) float64 {
	out := m.B2
	for h := 0; h < m.Hidden; h++ {
		z := m.B1[h]
		for j := range m.W1[h] {
			if j < len(v) {
				z += m.W1[h][j] * v[j]
			}
		}
		out += m.W2[h] * math.Tanh(z)
	}
	return out
}
