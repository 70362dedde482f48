package icm

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Example is one labeled training sequence with its prior weight P.
type Example struct {
	Seq string
	P   float64
}

type example struct {
	codes []int8
	p     float64
}

// State is the lifecycle phase of a Trainer.
type State uint8

const (
	StateEmpty State = iota
	StateTraining
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateTraining:
		return "training"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

type Option func(*options)

type options struct {
	sampleSizeBound  float64
	sequentialFrames bool
}

var defaultOptions = options{sampleSizeBound: DefaultSampleSizeBound}

// WithSampleSizeBound sets the count at which a node's own estimate saturates.
func WithSampleSizeBound(n float64) Option {
	return func(o *options) {
		if n > 0 {
			o.sampleSizeBound = n
		}
	}
}

// WithSequentialFrames trains the periodicity frames one after another.
func WithSequentialFrames() Option {
	return func(o *options) {
		o.sequentialFrames = true
	}
}

// Trainer accumulates weighted symbol-pair counts into every node of a
// context tree and turns them into a Model.
//
// Each node owns a table inside one count memory block: k counts of the
// predicted symbol followed by ModelLen-1 rows of k*k pair counts, where
// row x, cell c*k+s counts windows with context symbol c at position x and
// predicted symbol s.
type Trainer struct {
	cfg      Config
	opts     options
	tree     *tree
	counts   []float64
	tableLen int
	examples []example
	state    State
}

func NewTrainer(cfg Config, opts ...Option) (*Trainer, error) {
	cfg = cfg.withDefaults()
	t, err := newTree(cfg)
	if err != nil {
		return nil, err
	}
	k := cfg.Alphabet.Size()
	tableLen := k + (cfg.ModelLen-1)*k*k
	if cfg.Periodicity*t.numNodes*tableLen > 2*maxTableEntries {
		return nil, fmt.Errorf("%w: count tables for len %d and depth %d are too large",
			ErrConfiguration, cfg.ModelLen, cfg.ModelDepth)
	}

	tr := &Trainer{
		cfg:      cfg,
		opts:     defaultOptions,
		tree:     t,
		counts:   make([]float64, cfg.Periodicity*t.numNodes*tableLen),
		tableLen: tableLen,
	}
	for _, f := range opts {
		f(&tr.opts)
	}
	for f := range t.nodes {
		t.nodes[f][0].reached = true
	}
	return tr, nil
}

func (t *Trainer) Config() Config { return t.cfg }

func (t *Trainer) State() State { return t.state }

// Len is the number of accepted training examples.
func (t *Trainer) Len() int { return len(t.examples) }

// Accumulate validates and copies examples and counts them into the root of
// every frame. Deeper levels are counted by Finalize once their parents have
// chosen split positions. A batch with an invalid example is rejected as a
// whole.
func (t *Trainer) Accumulate(examples ...Example) error {
	if t.state == StateFinalized {
		return fmt.Errorf("%w: accumulate on a finalized trainer", ErrInvalidState)
	}
	batch := make([]example, 0, len(examples))
	for i, ex := range examples {
		if ex.P < 0 || math.IsNaN(ex.P) || math.IsInf(ex.P, 0) {
			return fmt.Errorf("%w: example %d: weight %v must be finite and non-negative", ErrInvalidSequence, i, ex.P)
		}
		if len(ex.Seq) < t.cfg.ModelLen {
			return fmt.Errorf("%w: example %d: length %d is shorter than model len %d",
				ErrInvalidSequence, i, len(ex.Seq), t.cfg.ModelLen)
		}
		codes, err := t.cfg.Alphabet.encode(ex.Seq)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		batch = append(batch, example{codes: codes, p: ex.P})
	}

	for _, ex := range batch {
		for f := 0; f < t.cfg.Periodicity; f++ {
			t.countLevel(f, 0, ex)
		}
	}
	t.examples = append(t.examples, batch...)
	if len(t.examples) > 0 {
		t.state = StateTraining
	}
	return nil
}

// CountTotal is the weight counted so far at a node.
func (t *Trainer) CountTotal(frame, level, id int) (float64, error) {
	if t.state == StateFinalized {
		return 0, fmt.Errorf("%w: counts are released by finalize", ErrInvalidState)
	}
	idx, err := t.tree.index(frame, level, id)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, c := range t.table(frame, idx)[:t.tree.k] {
		sum += c
	}
	return sum, nil
}

func (t *Trainer) table(frame, id int) []float64 {
	off := (frame*t.tree.numNodes + id) * t.tableLen
	return t.counts[off : off+t.tableLen : off+t.tableLen]
}

// countLevel adds the windows of ex predicting a symbol of frame that reach
// a node at level. A window reaches a level-L node only when every ancestor
// split position holds the symbol of the branch leading towards it.
func (t *Trainer) countLevel(frame, level int, ex example) {
	n, p := t.cfg.ModelLen, t.cfg.Periodicity
	if ex.p == 0 {
		return
	}
	first := n - 1
	if r := ((first-frame)%p + p) % p; r != 0 {
		first += p - r
	}
	for e := first; e < len(ex.codes); e += p {
		window := ex.codes[e-n+1 : e+1]
		if hasWildcard(window) {
			continue
		}
		id, reached := t.tree.descend(frame, level, func(pos int) int { return int(window[pos]) })
		if reached != level {
			continue
		}
		t.addWindow(t.table(frame, id), window, ex.p)
	}
}

func (t *Trainer) addWindow(table []float64, window []int8, p float64) {
	k := t.tree.k
	last := int(window[len(window)-1])
	table[last] += p
	pairs := table[k:]
	for x := 0; x < len(window)-1; x++ {
		pairs[x*k*k+int(window[x])*k+last] += p
	}
}

func hasWildcard(window []int8) bool {
	for _, c := range window {
		if c < 0 {
			return true
		}
	}
	return false
}

// Finalize counts every level, interpolates every node, takes logs and
// returns the read-only model. The trainer releases its counts and examples.
func (t *Trainer) Finalize() (*Model, error) {
	switch t.state {
	case StateFinalized:
		return nil, fmt.Errorf("%w: trainer is already finalized", ErrInvalidState)
	case StateEmpty:
		return nil, fmt.Errorf("%w: no training examples", ErrInvalidState)
	}

	if t.opts.sequentialFrames {
		for f := 0; f < t.cfg.Periodicity; f++ {
			t.trainFrame(f)
		}
	} else {
		g := errgroup.Group{}
		for f := 0; f < t.cfg.Periodicity; f++ {
			f := f
			g.Go(func() error {
				t.trainFrame(f)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("training frames: %w", err)
		}
	}
	t.tree.takeLogs()

	m := &Model{cfg: t.cfg, tree: t.tree}
	t.tree, t.counts, t.examples = nil, nil, nil
	t.state = StateFinalized
	return m, nil
}

// trainFrame touches only the nodes and count tables of its own frame.
func (t *Trainer) trainFrame(frame int) {
	tr := t.tree
	for level := 0; level <= t.cfg.ModelDepth; level++ {
		start, end := tr.levelStart[level], tr.levelStart[level+1]
		if level > 0 && anyReached(tr.nodes[frame][start:end]) {
			for _, ex := range t.examples {
				t.countLevel(frame, level, ex)
			}
		}
		for id := start; id < end; id++ {
			t.completeNode(frame, level, id)
		}
	}
}

func anyReached(nodes []node) bool {
	for i := range nodes {
		if nodes[i].reached {
			return true
		}
	}
	return false
}
