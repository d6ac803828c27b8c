package model

import (
	"math/rand"
)

// RandomForest is a bootstrap ensemble of regression trees. With 0/1 labels
// the averaged prediction is a class probability; with continuous targets
// it is a point estimate.
type RandomForest struct {
	TreeList   []*TreeNode `json:"trees"`
	Classifier bool        `json:"classifier"`
}

const (
	forestTrees    = 50
	forestMaxDepth = 8
	forestMinLeaf  = 2
)

func fitRandomForest(X [][]float64, y []float64, classifier bool, rng *rand.Rand) *RandomForest {
	f := &RandomForest{
		TreeList:   make([]*TreeNode, forestTrees),
		Classifier: classifier,
	}

	params := treeParams{
		maxDepth:    forestMaxDepth,
		minLeaf:     forestMinLeaf,
		featureFrac: 0.6,
	}

	n := len(X)
	for t := 0; t < forestTrees; t++ {
		// Bootstrap sample with replacement.
		idxs := make([]int, n)
		for i := range idxs {
			idxs[i] = rng.Intn(n)
		}
		f.TreeList[t] = buildRegTree(X, y, idxs, 0, params, rng)
	}

	return f
}

// Predict averages the tree predictions. For a classifier the result is the
// probability of class 1, clamped to [0,1].
func (f *RandomForest) Predict(v []float64) float64 {
	if len(f.TreeList) == 0 {
		return 0.5
	}

	var sum float64
	for _, t := range f.TreeList {
		sum += t.Predict(v)
	}
	p := sum / float64(len(f.TreeList))

	if f.Classifier {
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
	}
	return p
}
