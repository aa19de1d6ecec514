package forecast

import (
	"fmt"
	"math"
	"sort"
)

// GBTParams configures the gradient-boosted tree regressor.
type GBTParams struct {
	MaxDepth       int
	MaxIter        int
	MinSamplesLeaf int
	MaxBins        int
	LearningRate   float64
}

// DefaultGBTParams mirrors the tuning the pipeline ships with.
func DefaultGBTParams() GBTParams {
	return GBTParams{
		MaxDepth:       6,
		MaxIter:        400,
		MinSamplesLeaf: 20,
		MaxBins:        256,
		LearningRate:   0.05,
	}
}

// TreeNode is one node of a regression tree. Leaves carry the value;
// internal nodes route on Feature <= Threshold.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Leaf      bool
}

// Tree is a flattened regression tree.
type Tree struct {
	Nodes []TreeNode
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		node := t.Nodes[i]
		if node.Leaf {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// GBTRegressor is a histogram-based gradient-boosted tree ensemble for
// squared-error regression. Feature values are bucketed into at most
// MaxBins bins per feature before split search, so each boosting round
// scans bins rather than sorted samples.
type GBTRegressor struct {
	Params GBTParams
	Base   float64
	Trees  []Tree
}

// NewGBTRegressor creates an untrained regressor.
func NewGBTRegressor(params GBTParams) *GBTRegressor {
	return &GBTRegressor{Params: params}
}

// Fit trains the ensemble on X (row-major) against y.
func (g *GBTRegressor) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 || n != len(y) {
		return fmt.Errorf("gbt fit: %d samples vs %d targets", n, len(y))
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return fmt.Errorf("gbt fit: empty feature vectors")
	}

	edges := binEdges(X, g.Params.MaxBins)
	binned := binSamples(X, edges)

	g.Base = mean(y)
	g.Trees = g.Trees[:0]

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.Base
	}
	residual := make([]float64, n)
	indices := make([]int, n)

	for iter := 0; iter < g.Params.MaxIter; iter++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		for i := range indices {
			indices[i] = i
		}

		builder := &treeBuilder{
			params:   g.Params,
			binned:   binned,
			edges:    edges,
			residual: residual,
		}
		tree := builder.build(indices)
		g.Trees = append(g.Trees, tree)

		for i := range pred {
			pred[i] += g.Params.LearningRate * tree.predict(X[i])
		}
	}
	return nil
}

// Predict returns the ensemble prediction for one feature vector.
func (g *GBTRegressor) Predict(x []float64) float64 {
	out := g.Base
	for i := range g.Trees {
		out += g.Params.LearningRate * g.Trees[i].predict(x)
	}
	return out
}

// binEdges computes per-feature split candidates at evenly spaced
// quantiles of the distinct values, capped at maxBins-1 thresholds.
func binEdges(X [][]float64, maxBins int) [][]float64 {
	nFeatures := len(X[0])
	edges := make([][]float64, nFeatures)

	vals := make([]float64, 0, len(X))
	for f := 0; f < nFeatures; f++ {
		vals = vals[:0]
		for i := range X {
			vals = append(vals, X[i][f])
		}
		sort.Float64s(vals)

		distinct := vals[:0:0]
		for i, v := range vals {
			if i == 0 || v != vals[i-1] {
				distinct = append(distinct, v)
			}
		}

		if len(distinct) <= 1 {
			edges[f] = nil
			continue
		}
		nEdges := len(distinct) - 1
		if nEdges > maxBins-1 {
			nEdges = maxBins - 1
		}
		fe := make([]float64, 0, nEdges)
		for k := 1; k <= nEdges; k++ {
			idx := k * len(distinct) / (nEdges + 1)
			if idx >= len(distinct)-1 {
				idx = len(distinct) - 2
			}
			// midpoint between adjacent distinct values
			edge := (distinct[idx] + distinct[idx+1]) / 2
			if len(fe) == 0 || edge > fe[len(fe)-1] {
				fe = append(fe, edge)
			}
		}
		edges[f] = fe
	}
	return edges
}

// binSamples maps each sample to its bin index per feature: the count of
// edges less than the value.
func binSamples(X [][]float64, edges [][]float64) [][]uint16 {
	nFeatures := len(edges)
	binned := make([][]uint16, nFeatures)
	for f := 0; f < nFeatures; f++ {
		col := make([]uint16, len(X))
		fe := edges[f]
		for i := range X {
			col[i] = uint16(sort.SearchFloat64s(fe, X[i][f]))
		}
		binned[f] = col
	}
	return binned
}

type treeBuilder struct {
	params   GBTParams
	binned   [][]uint16
	edges    [][]float64
	residual []float64
	nodes    []TreeNode
}

func (b *treeBuilder) build(indices []int) Tree {
	b.nodes = b.nodes[:0]
	b.grow(indices, 0)
	return Tree{Nodes: append([]TreeNode(nil), b.nodes...)}
}

// grow appends the subtree for the given samples and returns its index.
func (b *treeBuilder) grow(indices []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{})

	sum := 0.0
	for _, i := range indices {
		sum += b.residual[i]
	}
	value := sum / float64(len(indices))

	if depth >= b.params.MaxDepth || len(indices) < 2*b.params.MinSamplesLeaf {
		b.nodes[idx] = TreeNode{Leaf: true, Value: value}
		return idx
	}

	feature, threshold, ok := b.bestSplit(indices, sum)
	if !ok {
		b.nodes[idx] = TreeNode{Leaf: true, Value: value}
		return idx
	}

	var left, right []int
	for _, i := range indices {
		if float64Bin(b.edges[feature], b.binned[feature][i]) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		b.nodes[idx] = TreeNode{Leaf: true, Value: value}
		return idx
	}

	leftIdx := b.grow(left, depth+1)
	rightIdx := b.grow(right, depth+1)
	b.nodes[idx] = TreeNode{Feature: feature, Threshold: threshold, Left: leftIdx, Right: rightIdx}
	return idx
}

// bestSplit scans per-feature bin histograms for the split maximizing the
// variance-reduction gain sumL²/nL + sumR²/nR - sumP²/nP.
func (b *treeBuilder) bestSplit(indices []int, totalSum float64) (int, float64, bool) {
	nP := float64(len(indices))
	parentScore := totalSum * totalSum / nP

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	for f := range b.binned {
		fe := b.edges[f]
		if len(fe) == 0 {
			continue
		}
		nBins := len(fe) + 1
		counts := make([]int, nBins)
		sums := make([]float64, nBins)
		col := b.binned[f]
		for _, i := range indices {
			bin := col[i]
			counts[bin]++
			sums[bin] += b.residual[i]
		}

		cumCount := 0
		cumSum := 0.0
		for bin := 0; bin < nBins-1; bin++ {
			cumCount += counts[bin]
			cumSum += sums[bin]
			nL := float64(cumCount)
			nR := nP - nL
			if cumCount < b.params.MinSamplesLeaf || int(nR) < b.params.MinSamplesLeaf {
				continue
			}
			sumR := totalSum - cumSum
			gain := cumSum*cumSum/nL + sumR*sumR/nR - parentScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = fe[bin]
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

// float64Bin maps a bin index back to a representative value for split
// routing: the bin's upper edge, or +Inf for the last bin.
func float64Bin(edges []float64, bin uint16) float64 {
	if int(bin) < len(edges) {
		return edges[bin]
	}
	return math.Inf(1)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
