package icm

import "fmt"

// node is one context of the tree. Node ids follow heap order within a
// frame: the root is 0 and the child of id for symbol s is id*k + 1 + s.
type node struct {
	// window position this node branches on, -1 for a leaf
	mutInfoPos int
	// symbol the parent's branch position holds for windows reaching this node, -1 at the root
	mutInfoSeq int
	// whether training windows can reach the node
	reached bool
	// mutual information of the chosen split, training only
	mutInfo float64
	// distribution over the alphabet, log-probabilities once finalized
	prob []float64
}

// tree is an arena of nodes for every frame, addressed by (frame, id).
type tree struct {
	cfg        Config
	k          int
	numNodes   int
	levelStart []int
	nodes      [][]node
	probs      []float64
}

func newTree(cfg Config) (*tree, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := cfg.Alphabet.Size()
	levelStart := make([]int, cfg.ModelDepth+2)
	width := 1
	for l := 0; l <= cfg.ModelDepth; l++ {
		levelStart[l+1] = levelStart[l] + width
		width *= k
	}
	numNodes := levelStart[cfg.ModelDepth+1]

	t := &tree{
		cfg:        cfg,
		k:          k,
		numNodes:   numNodes,
		levelStart: levelStart,
		nodes:      make([][]node, cfg.Periodicity),
		probs:      make([]float64, cfg.Periodicity*numNodes*k),
	}
	for f := range t.nodes {
		t.nodes[f] = make([]node, numNodes)
		for id := range t.nodes[f] {
			off := (f*numNodes + id) * k
			n := &t.nodes[f][id]
			n.mutInfoPos, n.mutInfoSeq = -1, -1
			n.prob = t.probs[off : off+k : off+k]
		}
	}
	return t, nil
}

func (t *tree) child(id, sym int) int { return id*t.k + 1 + sym }

func (t *tree) parent(id int) int { return (id - 1) / t.k }

// branch is the symbol leading from the parent of id to id.
func (t *tree) branch(id int) int { return (id - 1) % t.k }

func (t *tree) levelOf(id int) int {
	l := 0
	for id >= t.levelStart[l+1] {
		l++
	}
	return l
}

// index converts a (frame, level, id within level) address to an arena id.
func (t *tree) index(frame, level, id int) (int, error) {
	if frame < 0 || frame >= t.cfg.Periodicity {
		return 0, fmt.Errorf("%w: frame %d not in [0, %d)", ErrOutOfRange, frame, t.cfg.Periodicity)
	}
	if level < 0 || level > t.cfg.ModelDepth {
		return 0, fmt.Errorf("%w: level %d not in [0, %d]", ErrOutOfRange, level, t.cfg.ModelDepth)
	}
	width := t.levelStart[level+1] - t.levelStart[level]
	if id < 0 || id >= width {
		return 0, fmt.Errorf("%w: node %d not in [0, %d) at level %d", ErrOutOfRange, id, width, level)
	}
	return t.levelStart[level] + id, nil
}

// descend follows branch positions from the root of frame until maxLevel, a
// leaf, or a position for which resolve returns a negative symbol.
func (t *tree) descend(frame, maxLevel int, resolve func(pos int) int) (id, level int) {
	nodes := t.nodes[frame]
	for level < maxLevel {
		pos := nodes[id].mutInfoPos
		if pos < 0 {
			break
		}
		sym := resolve(pos)
		if sym < 0 {
			break
		}
		id = t.child(id, sym)
		level++
	}
	return id, level
}

// usedPositions marks the branch positions of the ancestors of id.
func (t *tree) usedPositions(frame, id int) []bool {
	used := make([]bool, t.cfg.ModelLen)
	nodes := t.nodes[frame]
	for id != 0 {
		id = t.parent(id)
		if pos := nodes[id].mutInfoPos; pos >= 0 {
			used[pos] = true
		}
	}
	return used
}

// label renders the context of id: '?' marks the predicted position, the
// branch positions on the path carry their symbol and the rest are '-'.
func (t *tree) label(frame, id int) []byte {
	label := make([]byte, t.cfg.ModelLen)
	for i := range label {
		label[i] = '-'
	}
	label[len(label)-1] = '?'
	nodes := t.nodes[frame]
	for id != 0 {
		p := t.parent(id)
		if pos := nodes[p].mutInfoPos; pos >= 0 {
			label[pos] = t.cfg.Alphabet.Symbol(t.branch(id))
		}
		id = p
	}
	return label
}
