package model

import (
	"math"
	"math/rand"
)

// KMeans is a centroid clustering model used for behavioral pattern
// grouping: a fixed number of centroids refined by Lloyd's iterations.
// Inference returns the nearest centroid and its distance; the mean
// training distance is kept as a normalizer so distance can double as a
// coarse anomaly proxy.
type KMeans struct {
	K         int         `json:"k"`
	Centroids [][]float64 `json:"centroids"`
	MeanDist  float64     `json:"meanDist"`
}

const (
	kmeansClusters = 8
	kmeansMaxIter  = 100
)

func fitKMeans(X [][]float64, rng *rand.Rand) *KMeans {
	k := kmeansClusters
	if k > len(X) {
		k = len(X)
	}

	km := &KMeans{K: k}

	// Initialize centroids from distinct random samples.
	perm := rng.Perm(len(X))
	km.Centroids = make([][]float64, k)
	for i := 0; i < k; i++ {
		c := make([]float64, len(X[perm[i]]))
		copy(c, X[perm[i]])
		km.Centroids[i] = c
	}

	assign := make([]int, len(X))
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, row := range X {
			idx, _ := km.nearest(row)
			if assign[i] != idx {
				assign[i] = idx
				changed = true
			}
		}

		// Recompute centroids.
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(X[0]))
		}
		for i, row := range X {
			c := assign[i]
			counts[c]++
			for j, v := range row {
				sums[c][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // keep the stale centroid rather than emptying it
			}
			for j := range sums[c] {
				km.Centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}

		if !changed {
			break
		}
	}

	var total float64
	for _, row := range X {
		_, d := km.nearest(row)
		total += d
	}
	km.MeanDist = total / float64(len(X))
	if km.MeanDist == 0 {
		km.MeanDist = 1
	}

	return km
}

// Infer returns the nearest centroid index and the distance to it.
func (km *KMeans) Infer(v []float64) (cluster int, distance float64) {
	return km.nearest(v)
}

func (km *KMeans) nearest(v []float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for i, c := range km.Centroids {
		if d := euclidean(v, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}
