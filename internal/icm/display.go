package icm

import (
	"fmt"
	"io"
	"math"

	"github.com/go-scimm/scimm/internal/byteutil"
)

// Display writes a human-readable dump of every reached node: its id, frame,
// context label, branch position and the probability of each symbol.
func (m *Model) Display(w io.Writer) error {
	if err := m.ready(); err != nil {
		return err
	}
	buf := byteutil.GetBytesBuf()
	defer byteutil.PutBytesBuf(buf)

	t := m.tree
	fmt.Fprintf(buf, "model_len = %d  model_depth = %d  periodicity = %d  alphabet = %s  nodes = %d\n",
		m.cfg.ModelLen, m.cfg.ModelDepth, m.cfg.Periodicity, m.cfg.Alphabet.Name(), t.numNodes)
	fmt.Fprintf(buf, "%7s %5s %2s %*s %4s", "id", "level", "fr", m.cfg.ModelLen, "context", "pos")
	for i := 0; i < t.k; i++ {
		fmt.Fprintf(buf, " %7c", m.cfg.Alphabet.Symbol(i))
	}
	buf.WriteByte('\n')

	for f := range t.nodes {
		for id := range t.nodes[f] {
			n := &t.nodes[f][id]
			if !n.reached {
				continue
			}
			fmt.Fprintf(buf, "%7d %5d %2d %s %4d", id, t.levelOf(id), f, t.label(f, id), n.mutInfoPos)
			for _, lp := range n.prob {
				fmt.Fprintf(buf, " %7.4f", math.Exp(lp))
			}
			buf.WriteByte('\n')
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("writing frame %d: %w", f, err)
		}
		buf.Reset()
	}
	return nil
}
