// Package cluster partitions sequence reads into clusters with one
// interpolated context model per cluster, iterating model training and read
// reassignment until the partition settles.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-scimm/scimm/internal/icm"
	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/pkg/rworker"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats"
)

var ErrNoModel = errors.New("no cluster has trainable reads")

// Read is one sequence to cluster.
type Read struct {
	ID  string
	Seq string
}

// Iteration reports the state after one training and reassignment round.
type Iteration struct {
	N          int
	K          int
	Likelihood float64
	Reassigned int
}

// Result is the partition with the best likelihood seen.
type Result struct {
	K int
	// cluster of every read, in input order
	Assign     []int
	Priors     []float64
	Likelihood float64
	// iteration the partition was found at, 0 for the initial one
	Iteration  int
	Iterations int
	Seed       uint32
}

// Clusters lists the read indexes of every cluster.
func (r *Result) Clusters() [][]int {
	out := make([][]int, r.K)
	for i, c := range r.Assign {
		out[c] = append(out[c], i)
	}
	return out
}

type Clusterer struct {
	k           int
	modelCfg    icm.Config
	soft        bool
	seed        uint32
	parallel    int
	maxIter     int
	initial     []int
	mates       map[string]string
	constraints map[string]int
	progress    func(Iteration)
}

// New returns a Clusterer of reads into at most k clusters.
func New(k int, opts ...Option) (*Clusterer, error) {
	c := &Clusterer{
		k:        k,
		modelCfg: icm.Config{ModelLen: icm.DefaultModelLen, ModelDepth: icm.DefaultModelDepth, Periodicity: 1, Alphabet: icm.DNA},
		parallel: 1,
		maxIter:  DefaultMaxIter,
	}
	for _, f := range opts {
		f(c)
	}
	if c.modelCfg.Alphabet == nil {
		c.modelCfg.Alphabet = icm.DNA
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithInitial starts from the given partition instead of a random one.
func WithInitial(assign []int) Option {
	return func(c *Clusterer) {
		c.initial = assign
	}
}

type state struct {
	reads []Read
	mate  []int
	fixed []int
	k     int
	// current cluster of every read
	assign []int
	// soft training weight of every read per cluster
	weights [][]float64
	priors  []float64
	scores  [][]float64
}

// Run clusters reads and returns the best partition found.
func (c *Clusterer) Run(ctx context.Context, reads []Read) (*Result, error) {
	logger := logging.FromContext(ctx)
	s, err := c.prepare(reads)
	if err != nil {
		return nil, err
	}

	seed := c.seed
	if seed == 0 {
		seed = uint32(time.Now().UnixNano())
	}
	var rng fastrand.RNG
	rng.Seed(seed)
	if err := c.partition(s, &rng); err != nil {
		return nil, err
	}

	prog := newProgress(DefaultLikeDecreaseLimit)
	n := len(reads)
	rsments, iter, good := n, 0, true
	for iter < c.maxIter && float64(rsments) >= float64(n)*DefaultReassignFrac && good {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		models, err := c.train(s)
		if err != nil {
			return nil, err
		}
		keep := make([]bool, s.k)
		for i, m := range models {
			keep[i] = m != nil
		}
		if ids := s.constrainedIn(keep); len(ids) > 0 {
			logger.Warnw("constrained reads lost their cluster", "iteration", iter, "reads", ids)
			return nil, fmt.Errorf("%w: cluster of constrained reads %v has no trainable reads", icm.ErrInvalidState, ids)
		}
		s.remove(keep)
		models = compact(models)
		if s.k == 0 {
			return nil, ErrNoModel
		}

		if err := c.score(s, models); err != nil {
			return nil, err
		}
		s.priors = s.updatePriors(c.soft)
		like, probs := s.readProbs(s.priors, c.soft)
		rsments = s.reassign(probs, c.soft)
		s.filterEmpty()

		it := Iteration{N: iter, K: s.k, Likelihood: like, Reassigned: rsments}
		logger.Debugf("iter %d: likelihood %.0f, %d reassignments, %d clusters", iter, like, rsments, s.k)
		if c.progress != nil {
			c.progress(it)
		}
		good = prog.assess(iter, like, s)
	}

	best := prog.best
	if best == nil {
		return nil, ErrNoModel
	}
	best.Iterations = iter
	best.Seed = seed
	return best, nil
}

func (c *Clusterer) prepare(reads []Read) (*state, error) {
	if len(reads) == 0 {
		return nil, fmt.Errorf("%w: no reads", icm.ErrInvalidSequence)
	}
	index := make(map[string]int, len(reads))
	s := &state{
		reads:  reads,
		mate:   make([]int, len(reads)),
		fixed:  make([]int, len(reads)),
		assign: make([]int, len(reads)),
		k:      c.k,
	}
	for i, r := range reads {
		if err := c.modelCfg.Alphabet.Validate(r.Seq); err != nil {
			return nil, fmt.Errorf("read %s: %w", r.ID, err)
		}
		if _, ok := index[r.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate read id %s", icm.ErrInvalidSequence, r.ID)
		}
		index[r.ID] = i
		s.mate[i], s.fixed[i], s.assign[i] = -1, -1, -1
	}
	for a, b := range c.mates {
		i, ok := index[a]
		j, ok2 := index[b]
		if !ok || !ok2 {
			return nil, fmt.Errorf("%w: mates %s and %s are not both reads", icm.ErrInvalidSequence, a, b)
		}
		s.mate[i], s.mate[j] = j, i
	}
	for id, cl := range c.constraints {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: constrained read %s is unknown", icm.ErrInvalidSequence, id)
		}
		if cl < 0 || cl >= c.k {
			return nil, fmt.Errorf("%w: read %s constrained to cluster %d of %d", icm.ErrOutOfRange, id, cl, c.k)
		}
		s.fixed[i] = cl
	}
	return s, nil
}

// partition makes the initial assignment. Mates share a cluster and
// constrained reads start in theirs.
func (c *Clusterer) partition(s *state, rng *fastrand.RNG) error {
	if c.initial != nil && len(c.initial) != len(s.reads) {
		return fmt.Errorf("%w: initial partition has %d reads, %d expected", icm.ErrConfiguration, len(c.initial), len(s.reads))
	}
	for i := range s.reads {
		if s.assign[i] >= 0 {
			continue
		}
		var cl int
		switch m := s.mate[i]; {
		case s.fixed[i] >= 0:
			cl = s.fixed[i]
		case m >= 0 && s.fixed[m] >= 0:
			cl = s.fixed[m]
		case c.initial != nil:
			cl = c.initial[i]
			if cl < 0 || cl >= s.k {
				return fmt.Errorf("%w: initial cluster %d of read %s", icm.ErrOutOfRange, cl, s.reads[i].ID)
			}
		default:
			cl = int(rng.Uint32n(uint32(s.k)))
		}
		s.assign[i] = cl
		if m := s.mate[i]; m >= 0 && s.assign[m] < 0 {
			s.assign[m] = cl
		}
	}
	// a constraint wins over the cluster a mate brought along
	for i, cl := range s.fixed {
		if cl >= 0 {
			s.assign[i] = cl
		}
	}

	s.priors = make([]float64, s.k)
	for i := range s.priors {
		s.priors[i] = 1 / float64(s.k)
	}
	if c.soft {
		s.weights = make([][]float64, len(s.reads))
		for i, cl := range s.assign {
			s.weights[i] = make([]float64, s.k)
			s.weights[i][cl] = 1
		}
	}
	return nil
}

// train fits one model per cluster, nil for a cluster without trainable
// reads.
func (c *Clusterer) train(s *state) ([]*icm.Model, error) {
	models := make([]*icm.Model, s.k)
	pool := rworker.New(c.parallel)
	for cl := 0; cl < s.k; cl++ {
		examples := s.examples(cl, c.modelCfg.ModelLen, c.soft)
		if len(examples) == 0 {
			continue
		}
		pool.Job(func() error {
			tr, err := icm.NewTrainer(c.modelCfg)
			if err != nil {
				return err
			}
			if err := tr.Accumulate(examples...); err != nil {
				return fmt.Errorf("cluster %d: %w", cl, err)
			}
			m, err := tr.Finalize()
			if err != nil {
				return fmt.Errorf("cluster %d: %w", cl, err)
			}
			models[cl] = m
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	return models, nil
}

func (s *state) examples(cl, modelLen int, soft bool) []icm.Example {
	var out []icm.Example
	for i, r := range s.reads {
		if len(r.Seq) < modelLen {
			continue
		}
		switch {
		case soft && s.weights[i][cl] > DefaultSoftAssignMin:
			out = append(out, icm.Example{Seq: r.Seq, P: s.weights[i][cl]})
		case !soft && s.assign[i] == cl:
			out = append(out, icm.Example{Seq: r.Seq, P: 1})
		}
	}
	return out
}

// score fills the log-probability of every read under every model.
func (c *Clusterer) score(s *state, models []*icm.Model) error {
	s.scores = make([][]float64, len(s.reads))
	for i := range s.scores {
		s.scores[i] = make([]float64, s.k)
	}
	pool := rworker.New(c.parallel)
	for cl, m := range models {
		pool.Job(func() error {
			for i, r := range s.reads {
				lp, err := m.ScoreString(r.Seq, 0)
				if err != nil {
					return fmt.Errorf("score read %s with cluster %d: %w", r.ID, cl, err)
				}
				s.scores[i][cl] = lp
			}
			return nil
		})
	}
	return pool.Wait()
}

// readProbs returns the likelihood of the reads and the posterior of every
// read per cluster under priors. Mates are scored together and count half
// each toward the likelihood.
func (s *state) readProbs(priors []float64, soft bool) (float64, [][]float64) {
	var like float64
	probs := make([][]float64, len(s.reads))
	logPriors := make([]float64, s.k)
	for c, p := range priors {
		logPriors[c] = math.Log(p)
	}
	rs := make([]float64, s.k)
	for i := range s.reads {
		probs[i] = make([]float64, s.k)
		if cl := s.fixed[i]; cl >= 0 {
			probs[i][cl] = 1
			continue
		}
		copy(rs, s.scores[i])
		if m := s.mate[i]; m >= 0 {
			floats.Add(rs, s.scores[m])
		}
		floats.Add(rs, logPriors)
		sum := floats.LogSumExp(rs)
		for c := range rs {
			probs[i][c] = math.Exp(rs[c] - sum)
		}

		contrib := floats.Max(rs)
		if soft {
			contrib = sum
		}
		if s.mate[i] >= 0 {
			contrib /= 2
		}
		like += contrib
	}
	return like, probs
}

// updatePriors is the expected share of sequence in every cluster.
func (s *state) updatePriors(soft bool) []float64 {
	_, probs := s.readProbs(s.priors, soft)
	bp := make([]float64, s.k)
	for i, r := range s.reads {
		floats.AddScaled(bp, float64(len(r.Seq)), probs[i])
	}
	total := floats.Sum(bp)
	if total == 0 {
		return s.priors
	}
	floats.Scale(1/total, bp)
	return bp
}

// reassign moves every read to its most probable cluster and returns the
// number of unconstrained reads that moved.
func (s *state) reassign(probs [][]float64, soft bool) int {
	var moved int
	for i := range s.reads {
		cl := s.fixed[i]
		if cl < 0 {
			cl = floats.MaxIdx(probs[i])
			if cl != s.assign[i] {
				moved++
			}
		}
		s.assign[i] = cl
		if soft {
			s.weights[i] = probs[i]
		}
	}
	return moved
}

// constrainedIn lists the constrained reads whose cluster is not kept.
func (s *state) constrainedIn(keep []bool) []string {
	var ids []string
	for i, cl := range s.fixed {
		if cl >= 0 && !keep[cl] {
			ids = append(ids, s.reads[i].ID)
		}
	}
	return ids
}

func (s *state) filterEmpty() {
	keep := make([]bool, s.k)
	for _, cl := range s.assign {
		if cl >= 0 {
			keep[cl] = true
		}
	}
	s.remove(keep)
}

// remove drops the clusters not kept, renumbers the rest in order and
// renormalizes the priors. Reads of a dropped cluster are left unassigned.
// Callers never drop the cluster of a constrained read.
func (s *state) remove(keep []bool) {
	remap := make([]int, len(keep))
	next := 0
	for c, ok := range keep {
		remap[c] = -1
		if ok {
			remap[c] = next
			next++
		}
	}
	if next == s.k {
		return
	}
	mapCluster := func(c int) int {
		if c < 0 {
			return c
		}
		return remap[c]
	}
	for i := range s.reads {
		s.assign[i] = mapCluster(s.assign[i])
		s.fixed[i] = mapCluster(s.fixed[i])
		if s.weights != nil {
			s.weights[i] = keepColumns(s.weights[i], keep)
		}
		if s.scores != nil {
			s.scores[i] = keepColumns(s.scores[i], keep)
		}
	}
	s.priors = keepColumns(s.priors, keep)
	if total := floats.Sum(s.priors); total > 0 {
		floats.Scale(1/total, s.priors)
	} else {
		for c := range s.priors {
			s.priors[c] = 1 / float64(next)
		}
	}
	s.k = next
}

func keepColumns(row []float64, keep []bool) []float64 {
	out := make([]float64, 0, len(row))
	for c, v := range row {
		if keep[c] {
			out = append(out, v)
		}
	}
	return out
}

func compact(models []*icm.Model) []*icm.Model {
	out := models[:0]
	for _, m := range models {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
