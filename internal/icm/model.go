package icm

import (
	"fmt"
	"math"
)

// Model is a finalized, read-only interpolated context model. The zero
// value is an empty model that every scoring call rejects.
type Model struct {
	cfg  Config
	tree *tree
}

// NodeInfo describes one node of a finalized model.
type NodeInfo struct {
	Frame int
	Level int
	// ID is the index of the node within its level, in [0, k^Level).
	ID         int
	MutInfoPos int
	MutInfoSeq int
	Reached    bool
	LogProb    []float64
}

func (m *Model) Config() Config { return m.cfg }

// Empty reports whether the model holds no parameters.
func (m *Model) Empty() bool { return m == nil || m.tree == nil }

func (m *Model) ready() error {
	if m.Empty() {
		return fmt.Errorf("%w: model is empty", ErrInvalidState)
	}
	return nil
}

func (m *Model) checkFrame(frame int) error {
	if frame < 0 || frame >= m.cfg.Periodicity {
		return fmt.Errorf("%w: frame %d not in [0, %d)", ErrOutOfRange, frame, m.cfg.Periodicity)
	}
	return nil
}

// Node returns a copy of the node at (frame, level, id).
func (m *Model) Node(frame, level, id int) (NodeInfo, error) {
	if err := m.ready(); err != nil {
		return NodeInfo{}, err
	}
	idx, err := m.tree.index(frame, level, id)
	if err != nil {
		return NodeInfo{}, err
	}
	return m.nodeInfo(frame, level, idx), nil
}

func (m *Model) nodeInfo(frame, level, idx int) NodeInfo {
	n := &m.tree.nodes[frame][idx]
	lp := make([]float64, len(n.prob))
	copy(lp, n.prob)
	return NodeInfo{
		Frame:      frame,
		Level:      level,
		ID:         idx - m.tree.levelStart[level],
		MutInfoPos: n.mutInfoPos,
		MutInfoSeq: n.mutInfoSeq,
		Reached:    n.reached,
		LogProb:    lp,
	}
}

// Visit calls fn for every node, frame-major, then level-ascending, then in
// id order within a level. It stops at the first error fn returns.
func (m *Model) Visit(fn func(NodeInfo) error) error {
	if err := m.ready(); err != nil {
		return err
	}
	t := m.tree
	for f := 0; f < m.cfg.Periodicity; f++ {
		for l := 0; l <= m.cfg.ModelDepth; l++ {
			for idx := t.levelStart[l]; idx < t.levelStart[l+1]; idx++ {
				if err := fn(m.nodeInfo(f, l, idx)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Restore rebuilds a model from nodes in Visit order.
func Restore(cfg Config, nodes []NodeInfo) (*Model, error) {
	cfg = cfg.withDefaults()
	t, err := newTree(cfg)
	if err != nil {
		return nil, err
	}
	if want := cfg.Periodicity * t.numNodes; len(nodes) != want {
		return nil, fmt.Errorf("%w: got %d nodes, model needs %d", ErrConfiguration, len(nodes), want)
	}

	i := 0
	for f := 0; f < cfg.Periodicity; f++ {
		for l := 0; l <= cfg.ModelDepth; l++ {
			for idx := t.levelStart[l]; idx < t.levelStart[l+1]; idx++ {
				ni := nodes[i]
				i++
				if ni.Frame != f || ni.Level != l || ni.ID != idx-t.levelStart[l] {
					return nil, fmt.Errorf("%w: node (%d, %d, %d) out of order, want (%d, %d, %d)",
						ErrOutOfRange, ni.Frame, ni.Level, ni.ID, f, l, idx-t.levelStart[l])
				}
				if len(ni.LogProb) != t.k {
					return nil, fmt.Errorf("%w: node (%d, %d, %d) has %d probabilities, want %d",
						ErrOutOfRange, f, l, ni.ID, len(ni.LogProb), t.k)
				}
				if ni.MutInfoPos < -1 || ni.MutInfoPos >= cfg.ModelLen-1 ||
					(ni.MutInfoPos >= 0 && l == cfg.ModelDepth) {
					return nil, fmt.Errorf("%w: node (%d, %d, %d) branches on position %d",
						ErrOutOfRange, f, l, ni.ID, ni.MutInfoPos)
				}
				if ni.MutInfoSeq < -1 || ni.MutInfoSeq >= t.k {
					return nil, fmt.Errorf("%w: node (%d, %d, %d) restricted to symbol %d",
						ErrOutOfRange, f, l, ni.ID, ni.MutInfoSeq)
				}
				n := &t.nodes[f][idx]
				n.mutInfoPos, n.mutInfoSeq, n.reached = ni.MutInfoPos, ni.MutInfoSeq, ni.Reached
				copy(n.prob, ni.LogProb)
			}
		}
	}
	return &Model{cfg: cfg, tree: t}, nil
}

// BuildIndependent returns a model that ignores context and draws
// nucleotides from a genome with the given GC fraction. The alphabet must
// contain a, c, g and t; any other symbol gets no probability mass.
func BuildIndependent(cfg Config, gcFrac float64) (*Model, error) {
	cfg = cfg.withDefaults()
	if !(gcFrac > 0 && gcFrac < 1) {
		return nil, fmt.Errorf("%w: gc fraction %v not in (0, 1)", ErrConfiguration, gcFrac)
	}
	t, err := newTree(cfg)
	if err != nil {
		return nil, err
	}
	dist := make([]float64, t.k)
	for _, b := range []struct {
		c byte
		p float64
	}{{'a', (1 - gcFrac) / 2}, {'c', gcFrac / 2}, {'g', gcFrac / 2}, {'t', (1 - gcFrac) / 2}} {
		idx, ok := cfg.Alphabet.Index(b.c)
		if !ok || idx < 0 {
			return nil, fmt.Errorf("%w: alphabet %s has no symbol %q", ErrConfiguration, cfg.Alphabet.Name(), b.c)
		}
		dist[idx] = b.p
	}
	for f := range t.nodes {
		t.nodes[f][0].reached = true
		for id := range t.nodes[f] {
			copy(t.nodes[f][id].prob, dist)
		}
	}
	t.takeLogs()
	return &Model{cfg: cfg, tree: t}, nil
}

func (m *Model) logUniform() float64 {
	return -math.Log(float64(m.tree.k))
}
