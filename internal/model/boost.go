package model

import (
	"math/rand"
)

// GradientBoost is a gradient-boosted regressor: shallow trees fit the
// residuals of the running prediction, scaled by a learning rate.
type GradientBoost struct {
	Base      float64     `json:"base"`
	TreeList  []*TreeNode `json:"trees"`
	LearnRate float64     `json:"learnRate"`
}

const (
	boostRounds    = 50
	boostMaxDepth  = 3
	boostLearnRate = 0.1
)

func fitGradientBoost(X [][]float64, y []float64, rng *rand.Rand) *GradientBoost {
	g := &GradientBoost{LearnRate: boostLearnRate}

	// F0 is the target mean.
	var sum float64
	for _, v := range y {
		sum += v
	}
	g.Base = sum / float64(len(y))

	params := treeParams{maxDepth: boostMaxDepth, minLeaf: 2}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = g.Base
	}

	idxs := make([]int, len(X))
	for i := range idxs {
		idxs[i] = i
	}

	residual := make([]float64, len(y))
	for round := 0; round < boostRounds; round++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}

		tree := buildRegTree(X, residual, idxs, 0, params, rng)
		g.TreeList = append(g.TreeList, tree)

		for i, row := range X {
			pred[i] += g.LearnRate * tree.Predict(row)
		}
	}

	return g
}

// Predict returns the boosted point estimate for one vector.
func (g *GradientBoost) Predict(v []float64) float64 {
	out := g.Base
	for _, t := range g.TreeList {
		out += g.LearnRate * t.Predict(v)
	}
	return out
}
