package icm

import (
	"fmt"
	"iter"
	"math"
)

// ScoreWindow returns the log-probability of the last symbol of window given
// the symbols before it. The walk descends from the root through the branch
// positions to the deepest reachable node; interpolation already folded the
// shallower levels into that node.
func (m *Model) ScoreWindow(window string, frame int) (float64, error) {
	codes, err := m.prepareWindow(window, frame)
	if err != nil {
		return 0, err
	}
	return m.windowLogProb(codes, 0, frame), nil
}

// FullWindowProb is ScoreWindow as a plain probability.
func (m *Model) FullWindowProb(window string, frame int) (float64, error) {
	lp, err := m.ScoreWindow(window, frame)
	if err != nil {
		return 0, err
	}
	return math.Exp(lp), nil
}

// PartialWindowProb returns the probability of s[predictPos] when only
// s[:predictPos] is known, as near the start of a sequence. The known part
// is aligned to the end of the window so branch positions before it stop
// the walk.
func (m *Model) PartialWindowProb(predictPos int, s string, frame int) (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if err := m.checkFrame(frame); err != nil {
		return 0, err
	}
	if predictPos < 0 || predictPos >= m.cfg.ModelLen {
		return 0, fmt.Errorf("%w: predict position %d not in [0, %d)", ErrOutOfRange, predictPos, m.cfg.ModelLen)
	}
	if len(s) <= predictPos {
		return 0, fmt.Errorf("%w: string of length %d has no position %d", ErrOutOfRange, len(s), predictPos)
	}
	codes, err := m.cfg.Alphabet.encode(s[:predictPos+1])
	if err != nil {
		return 0, err
	}
	return math.Exp(m.windowLogProb(codes, m.cfg.ModelLen-1-predictPos, frame)), nil
}

// FullWindowDistrib returns the distribution of the last position of window
// given the symbols before it. The last symbol itself is ignored.
func (m *Model) FullWindowDistrib(window string, frame int) ([]float64, error) {
	codes, err := m.prepareWindow(window, frame)
	if err != nil {
		return nil, err
	}
	id := m.walk(codes, 0, frame)
	dist := make([]float64, m.tree.k)
	for i, lp := range m.tree.nodes[frame][id].prob {
		dist[i] = math.Exp(lp)
	}
	return dist, nil
}

// CumulativeScore returns the running sums of per-position log-probabilities
// of seq, position i scored in frame (frame0+i) mod periodicity. Positions
// before a full window is available are scored with the partial window rule.
// The sequence is validated up front; ranging over the result again restarts
// from the first position.
func (m *Model) CumulativeScore(seq string, frame0 int) (iter.Seq2[int, float64], error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if err := m.checkFrame(frame0); err != nil {
		return nil, err
	}
	codes, err := m.cfg.Alphabet.encode(seq)
	if err != nil {
		return nil, err
	}
	n, p := m.cfg.ModelLen, m.cfg.Periodicity
	return func(yield func(int, float64) bool) {
		var total float64
		for i := range codes {
			frame := (frame0 + i) % p
			if i >= n-1 {
				total += m.windowLogProb(codes[i-n+1:i+1], 0, frame)
			} else {
				total += m.windowLogProb(codes[:i+1], n-1-i, frame)
			}
			if !yield(i, total) {
				return
			}
		}
	}, nil
}

// ScoreString is the total log-probability of s starting in frame0.
func (m *Model) ScoreString(s string, frame0 int) (float64, error) {
	scores, err := m.CumulativeScore(s, frame0)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, sc := range scores {
		total = sc
	}
	return total, nil
}

func (m *Model) prepareWindow(window string, frame int) ([]int8, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if err := m.checkFrame(frame); err != nil {
		return nil, err
	}
	if len(window) != m.cfg.ModelLen {
		return nil, fmt.Errorf("%w: window length %d, model len is %d", ErrOutOfRange, len(window), m.cfg.ModelLen)
	}
	return m.cfg.Alphabet.encode(window)
}

// walk descends for codes aligned to start at window position offset.
func (m *Model) walk(codes []int8, offset, frame int) int {
	id, _ := m.tree.descend(frame, m.cfg.ModelDepth, func(pos int) int {
		if pos < offset {
			return -1
		}
		return int(codes[pos-offset])
	})
	return id
}

func (m *Model) windowLogProb(codes []int8, offset, frame int) float64 {
	last := codes[len(codes)-1]
	if last < 0 {
		return m.logUniform()
	}
	return m.tree.nodes[frame][m.walk(codes, offset, frame)].prob[last]
}
