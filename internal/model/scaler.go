// Package model provides the statistical model bank: a registry of trained
// models per feature domain with an explicit training floor, a neutral
// not-trained default, and immutable fitted snapshots swapped on retrain.
package model

import (
	"fmt"
	"math"
)

// StandardScaler normalizes features to zero mean and unit variance.
// The scaler is fitted jointly with its model and the same fitted instance
// is reused, unmodified, at inference time.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column mean and standard deviation over a sample
// matrix. Zero-variance columns get std 1 so transforming never divides by
// zero.
func FitScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty matrix")
	}

	dims := len(X[0])
	mean := make([]float64, dims)
	std := make([]float64, dims)

	for _, row := range X {
		if len(row) != dims {
			return nil, fmt.Errorf("inconsistent row length: expected %d, got %d", dims, len(row))
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(X))
	for j := range mean {
		mean[j] /= n
	}

	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			std[j] = 1
		}
	}

	return &StandardScaler{Mean: mean, Std: std}, nil
}

// Transform scales one vector. Vectors shorter or longer than the fitted
// dimensionality are truncated or zero-padded to it.
func (s *StandardScaler) Transform(v []float64) []float64 {
	out := make([]float64, len(s.Mean))
	for j := range out {
		var x float64
		if j < len(v) {
			x = v[j]
		}
		out[j] = (x - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TransformAll scales a matrix row by row.
func (s *StandardScaler) TransformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.Transform(row)
	}
	return out
}
