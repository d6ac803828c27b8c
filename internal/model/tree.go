package model

import (
	"math"
	"math/rand"
)

// TreeNode is one node of a regression tree fit by variance reduction.
// The same trees serve the classifier (0/1 labels, averaged into a
// probability) and the regressors.
type TreeNode struct {
	Leaf  bool      `json:"leaf"`
	Value float64   `json:"value"`
	Dim   int       `json:"dim,omitempty"`
	Split float64   `json:"split,omitempty"`
	Left  *TreeNode `json:"left,omitempty"`
	Right *TreeNode `json:"right,omitempty"`
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	featureFrac float64 // fraction of dimensions considered per split; 0 = all
}

func buildRegTree(X [][]float64, y []float64, idxs []int, depth int, p treeParams, rng *rand.Rand) *TreeNode {
	if len(idxs) == 0 {
		return &TreeNode{Leaf: true, Value: 0}
	}
	if depth >= p.maxDepth || len(idxs) <= p.minLeaf {
		return &TreeNode{Leaf: true, Value: meanAt(y, idxs)}
	}

	dims := len(X[0])
	candidates := dims
	if p.featureFrac > 0 {
		candidates = int(math.Ceil(p.featureFrac * float64(dims)))
	}

	bestDim, bestSplit := -1, 0.0
	bestScore := math.Inf(1)

	for _, dim := range rng.Perm(dims)[:candidates] {
		minv, maxv := X[idxs[0]][dim], X[idxs[0]][dim]
		for _, i := range idxs[1:] {
			if X[i][dim] < minv {
				minv = X[i][dim]
			}
			if X[i][dim] > maxv {
				maxv = X[i][dim]
			}
		}
		if minv == maxv {
			continue
		}

		// A few random split candidates per dimension is enough at this
		// data scale and keeps fitting cheap.
		for t := 0; t < 4; t++ {
			split := minv + rng.Float64()*(maxv-minv)
			if score := splitScore(X, y, idxs, dim, split); score < bestScore {
				bestScore, bestDim, bestSplit = score, dim, split
			}
		}
	}

	if bestDim < 0 {
		return &TreeNode{Leaf: true, Value: meanAt(y, idxs)}
	}

	var left, right []int
	for _, i := range idxs {
		if X[i][bestDim] < bestSplit {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &TreeNode{Leaf: true, Value: meanAt(y, idxs)}
	}

	return &TreeNode{
		Dim:   bestDim,
		Split: bestSplit,
		Left:  buildRegTree(X, y, left, depth+1, p, rng),
		Right: buildRegTree(X, y, right, depth+1, p, rng),
	}
}

// splitScore is the size-weighted variance of the two partitions.
func splitScore(X [][]float64, y []float64, idxs []int, dim int, split float64) float64 {
	var ln, rn int
	var lsum, rsum float64
	for _, i := range idxs {
		if X[i][dim] < split {
			ln++
			lsum += y[i]
		} else {
			rn++
			rsum += y[i]
		}
	}
	if ln == 0 || rn == 0 {
		return math.Inf(1)
	}

	lmean, rmean := lsum/float64(ln), rsum/float64(rn)
	var score float64
	for _, i := range idxs {
		if X[i][dim] < split {
			d := y[i] - lmean
			score += d * d
		} else {
			d := y[i] - rmean
			score += d * d
		}
	}
	return score
}

// Predict walks the tree for one vector.
func (n *TreeNode) Predict(v []float64) float64 {
	for !n.Leaf {
		if n.Dim < len(v) && v[n.Dim] < n.Split {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

func meanAt(y []float64, idxs []int) float64 {
	var sum float64
	for _, i := range idxs {
		sum += y[i]
	}
	return sum / float64(len(idxs))
}
