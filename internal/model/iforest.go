package model

import (
	"math"
	"math/rand"
	"sort"
)

// IsolationForest is a lightweight anomaly detector suitable for small to
// medium datasets. It builds random split trees up to a height limit and
// scores points by average path length: isolated points terminate early and
// score close to 1.
type IsolationForest struct {
	Trees      []*iTree `json:"trees"`
	NumTrees   int      `json:"numTrees"`
	SampleSize int      `json:"sampleSize"`
	HeightLim  int      `json:"heightLim"`

	// Threshold is the anomaly-score cutoff derived at fit time from the
	// expected contamination fraction of the training set.
	Threshold float64 `json:"threshold"`
}

type iTree struct {
	Root *iNode `json:"root"`
}

type iNode struct {
	Leaf     bool    `json:"leaf"`
	Size     int     `json:"size"`
	Dim      int     `json:"dim,omitempty"`
	SplitVal float64 `json:"splitVal,omitempty"`
	Left     *iNode  `json:"left,omitempty"`
	Right    *iNode  `json:"right,omitempty"`
}

const (
	iforestTrees         = 100
	iforestSampleSize    = 256
	iforestContamination = 0.10
)

// fitIsolationForest trains a forest over a scaled sample matrix and derives
// the outlier threshold from the contamination quantile of training scores.
func fitIsolationForest(X [][]float64, rng *rand.Rand) *IsolationForest {
	sampleSize := iforestSampleSize
	if sampleSize > len(X) {
		sampleSize = len(X)
	}

	f := &IsolationForest{
		NumTrees:   iforestTrees,
		SampleSize: sampleSize,
		HeightLim:  int(math.Ceil(math.Log2(float64(sampleSize) + 1))),
	}

	f.Trees = make([]*iTree, f.NumTrees)
	for i := 0; i < f.NumTrees; i++ {
		idxs := rng.Perm(len(X))
		sample := make([][]float64, sampleSize)
		for j := 0; j < sampleSize; j++ {
			sample[j] = X[idxs[j]]
		}
		f.Trees[i] = &iTree{Root: buildITree(sample, 0, f.HeightLim, rng)}
	}

	// Threshold = (1 - contamination) quantile of training scores.
	scores := make([]float64, len(X))
	for i, row := range X {
		scores[i] = f.Score(row)
	}
	f.Threshold = quantile(scores, 1-iforestContamination)

	return f
}

func buildITree(X [][]float64, h, hlim int, rng *rand.Rand) *iNode {
	if len(X) <= 1 || h >= hlim {
		return &iNode{Leaf: true, Size: len(X)}
	}

	dim := rng.Intn(len(X[0]))
	minv, maxv := X[0][dim], X[0][dim]
	for _, row := range X[1:] {
		if row[dim] < minv {
			minv = row[dim]
		}
		if row[dim] > maxv {
			maxv = row[dim]
		}
	}
	if minv == maxv {
		return &iNode{Leaf: true, Size: len(X)}
	}

	split := minv + rng.Float64()*(maxv-minv)
	var left, right [][]float64
	for _, row := range X {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &iNode{
		Size:     len(X),
		Dim:      dim,
		SplitVal: split,
		Left:     buildITree(left, h+1, hlim, rng),
		Right:    buildITree(right, h+1, hlim, rng),
	}
}

// Score returns the anomaly score in [0,1] for one scaled vector.
func (f *IsolationForest) Score(v []float64) float64 {
	if len(f.Trees) == 0 {
		return 0.5
	}

	var total float64
	for _, t := range f.Trees {
		total += pathLength(t.Root, v, 0)
	}
	avg := total / float64(len(f.Trees))

	c := avgPathLength(f.SampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avg/c)
}

// Outlier reports whether v scores above the fitted contamination threshold.
func (f *IsolationForest) Outlier(v []float64) bool {
	return f.Score(v) >= f.Threshold
}

func pathLength(n *iNode, v []float64, depth float64) float64 {
	if n == nil {
		return depth
	}
	if n.Leaf {
		return depth + avgPathLength(n.Size)
	}
	if n.Dim < len(v) && v[n.Dim] < n.SplitVal {
		return pathLength(n.Left, v, depth+1)
	}
	return pathLength(n.Right, v, depth+1)
}

// avgPathLength is c(n), the average path length of an unsuccessful BST
// search over n points, used to normalize isolation depths.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+0.5772156649) - 2*(fn-1)/fn
}

func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(q * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
