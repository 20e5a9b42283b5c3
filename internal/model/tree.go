package model

import (
	"sort"
	"sync"
)

// treeNode is one node of a regression tree fit on boosting gradients.
// Fields stay exported for gob.
type treeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Value     float64
	Left      *treeNode
	Right     *treeNode
}

// regTree is a single round's regression tree. Splits maximize the
// Newton gain G²/(H+λ) and leaves carry the Newton step ΣG/(ΣH+λ).
type regTree struct {
	Root *treeNode
}

type treeConfig struct {
	maxDepth       int
	minSamplesLeaf int
	lambda         float64
	minGain        float64
}

type splitResult struct {
	feature   int
	threshold float64
	gain      float64
}

// fitTree grows one tree on the current gradient/hessian vectors. gains,
// when non-nil, accumulates the realized split gain per feature.
func fitTree(X [][]float64, grad, hess []float64, cfg treeConfig, gains []float64) *regTree {
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	return &regTree{Root: buildNode(X, grad, hess, idx, 0, cfg, gains)}
}

func leafValue(grad, hess []float64, idx []int, lambda float64) float64 {
	var g, h float64
	for _, i := range idx {
		g += grad[i]
		h += hess[i]
	}
	return g / (h + lambda)
}

func buildNode(X [][]float64, grad, hess []float64, idx []int, depth int, cfg treeConfig, gains []float64) *treeNode {
	if depth >= cfg.maxDepth || len(idx) < 2*cfg.minSamplesLeaf {
		return &treeNode{Leaf: true, Value: leafValue(grad, hess, idx, cfg.lambda)}
	}

	best := findBestSplit(X, grad, hess, idx, cfg)
	if best.feature < 0 {
		return &treeNode{Leaf: true, Value: leafValue(grad, hess, idx, cfg.lambda)}
	}
	if gains != nil {
		gains[best.feature] += best.gain
	}

	var left, right []int
	for _, i := range idx {
		if X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      buildNode(X, grad, hess, left, depth+1, cfg, gains),
		Right:     buildNode(X, grad, hess, right, depth+1, cfg, gains),
	}
}

// findBestSplit scans every feature concurrently and picks the winner by
// gain, breaking ties on the lowest feature index so concurrency never
// changes the fitted tree.
func findBestSplit(X [][]float64, grad, hess []float64, idx []int, cfg treeConfig) splitResult {
	nFeatures := len(X[idx[0]])
	results := make([]splitResult, nFeatures)

	var wg sync.WaitGroup
	for f := 0; f < nFeatures; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			results[f] = scanFeature(X, grad, hess, idx, f, cfg)
		}(f)
	}
	wg.Wait()

	best := splitResult{feature: -1}
	for _, r := range results {
		if r.feature < 0 {
			continue
		}
		if best.feature < 0 || r.gain > best.gain {
			best = r
		}
	}
	return best
}

func scanFeature(X [][]float64, grad, hess []float64, idx []int, f int, cfg treeConfig) splitResult {
	type obs struct{ v, g, h float64 }
	obss := make([]obs, len(idx))
	for k, i := range idx {
		obss[k] = obs{v: X[i][f], g: grad[i], h: hess[i]}
	}
	sort.Slice(obss, func(a, b int) bool { return obss[a].v < obss[b].v })

	var gTot, hTot float64
	for _, o := range obss {
		gTot += o.g
		hTot += o.h
	}
	parent := gTot * gTot / (hTot + cfg.lambda)

	best := splitResult{feature: -1}
	var gL, hL float64
	for s := 1; s < len(obss); s++ {
		gL += obss[s-1].g
		hL += obss[s-1].h
		// Thresholds sit midway between consecutive distinct values.
		if obss[s].v == obss[s-1].v {
			continue
		}
		if s < cfg.minSamplesLeaf || len(obss)-s < cfg.minSamplesLeaf {
			continue
		}
		gR := gTot - gL
		hR := hTot - hL
		gain := gL*gL/(hL+cfg.lambda) + gR*gR/(hR+cfg.lambda) - parent
		if gain <= cfg.minGain {
			continue
		}
		if best.feature < 0 || gain > best.gain {
			best = splitResult{feature: f, threshold: (obss[s-1].v + obss[s].v) / 2, gain: gain}
		}
	}
	return best
}

func (t *regTree) predict(row []float64) float64 {
	n := t.Root
	for !n.Leaf {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}
