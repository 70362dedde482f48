package icm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultSampleSizeBound is the count at which a node's own estimate is
	// no longer discounted for sample size.
	DefaultSampleSizeBound = 400.0

	// keeps every symbol reachable through the parent distribution
	maxInterpolationWeight = 0.999

	// mutual information at or below this is treated as independence
	minSplitInfo = 1e-12
)

// completeNode interpolates the distribution of a node from its counts and
// its parent, and for inner levels picks the branch position of the node.
func (t *Trainer) completeNode(frame, level, id int) {
	tr := t.tree
	k := tr.k
	nodes := tr.nodes[frame]
	n := &nodes[id]

	var (
		parent []float64
		info   float64
	)
	if level == 0 {
		parent = uniform(k)
	} else {
		p := &nodes[tr.parent(id)]
		parent, info = p.prob, p.mutInfo
	}
	if !n.reached {
		copy(n.prob, parent)
		return
	}

	table := t.table(frame, id)
	ct := table[:k]
	sum := floats.Sum(ct)

	var lambda float64
	if level == 0 {
		lambda = sampleSaturation(sum, t.opts.sampleSizeBound)
	} else {
		lambda = interpolationWeight(info, sum, k, t.opts.sampleSizeBound)
	}
	interpolate(n.prob, ct, sum, parent, lambda)

	if level == t.cfg.ModelDepth || sum <= 0 {
		return
	}
	pos, mi := bestSplit(table[k:], sum, k, tr.usedPositions(frame, id))
	if pos < 0 {
		return
	}
	n.mutInfoPos, n.mutInfo = pos, mi
	for s := 0; s < k; s++ {
		c := &nodes[tr.child(id, s)]
		c.reached = true
		c.mutInfoSeq = s
	}
}

// bestSplit returns the unused position whose pair table carries the most
// mutual information, preferring positions nearer the predicted symbol on
// ties, or -1 when no position beats independence.
func bestSplit(pairs []float64, sum float64, k int, used []bool) (int, float64) {
	best, bestInfo := -1, minSplitInfo
	rows := len(pairs) / (k * k)
	for x := rows - 1; x >= 0; x-- {
		if used[x] {
			continue
		}
		mi := mutualInfo(pairs[x*k*k:(x+1)*k*k], k, sum)
		if mi > bestInfo {
			best, bestInfo = x, mi
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, bestInfo
}

// mutualInfo is the empirical mutual information, in nats, of the k*k
// contingency table ct whose cells add up to sum.
func mutualInfo(ct []float64, k int, sum float64) float64 {
	if sum <= 0 {
		return 0
	}
	row := make([]float64, k)
	col := make([]float64, k)
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			row[a] += ct[a*k+b]
			col[b] += ct[a*k+b]
		}
	}
	var mi float64
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			c := ct[a*k+b]
			if c <= 0 {
				continue
			}
			mi += c / sum * math.Log(c*sum/(row[a]*col[b]))
		}
	}
	if mi < 0 {
		return 0
	}
	return mi
}

// sampleSaturation grows linearly with the sample size n up to bound.
func sampleSaturation(n, bound float64) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(maxInterpolationWeight, n/bound)
}

// interpolationWeight is the weight of a node's own estimate: the sample
// saturation of its count n times the G-test confidence that the parent's
// split information is not noise. G = 2nI follows a chi-square
// distribution with (k-1)^2 degrees of freedom under independence.
func interpolationWeight(info, n float64, k int, bound float64) float64 {
	if n <= 0 || info <= 0 {
		return 0
	}
	chi := distuv.ChiSquared{K: float64((k - 1) * (k - 1))}
	return sampleSaturation(n, bound) * chi.CDF(2*n*info)
}

func interpolate(dst, ct []float64, sum float64, parent []float64, lambda float64) {
	if sum <= 0 || lambda <= 0 {
		copy(dst, parent)
		return
	}
	for s := range dst {
		dst[s] = lambda*ct[s]/sum + (1-lambda)*parent[s]
	}
}

func uniform(k int) []float64 {
	u := make([]float64, k)
	for i := range u {
		u[i] = 1 / float64(k)
	}
	return u
}

// takeLogs turns every probability table into log-probabilities so window
// scores add up instead of multiplying.
func (t *tree) takeLogs() {
	for i, p := range t.probs {
		t.probs[i] = math.Log(p)
	}
}
