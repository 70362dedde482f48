package model

import (
	"bytes"
	"fmt"
	"time"

	"github.com/davecgh/go-xdr/xdr2"
	"github.com/go-scimm/scimm/internal/icm"
	"github.com/google/uuid"
)

// Profile is the trained model of a class.
type Profile struct {
	ID        uuid.UUID
	Class     string
	Samples   int
	CreatedAt time.Time
	Model     *icm.Model
}

func NewProfile(class string, samples int, m *icm.Model) Profile {
	return Profile{
		ID:        uuid.New(),
		Class:     class,
		Samples:   samples,
		CreatedAt: time.Now(),
		Model:     m,
	}
}

// record is the XDR layout of a profile.
type record struct {
	ID          string
	Class       string
	Samples     int64
	CreatedAt   int64
	ModelLen    int32
	ModelDepth  int32
	Periodicity int32
	Alphabet    string
	Symbols     string
	Wildcards   string
	Nodes       []nodeRecord
}

type nodeRecord struct {
	Frame      int32
	Level      int32
	ID         int32
	MutInfoPos int32
	MutInfoSeq int32
	Reached    bool
	LogProb    []float64
}

// MarshalBinary encodes the profile and every node of its model with XDR.
func (p Profile) MarshalBinary() ([]byte, error) {
	if p.Model.Empty() {
		return nil, fmt.Errorf("profile %s has no model", p.Class)
	}
	cfg := p.Model.Config()
	rec := record{
		ID:          p.ID.String(),
		Class:       p.Class,
		Samples:     int64(p.Samples),
		CreatedAt:   p.CreatedAt.UnixNano(),
		ModelLen:    int32(cfg.ModelLen),
		ModelDepth:  int32(cfg.ModelDepth),
		Periodicity: int32(cfg.Periodicity),
		Alphabet:    cfg.Alphabet.Name(),
		Symbols:     cfg.Alphabet.Symbols(),
		Wildcards:   cfg.Alphabet.Wildcards(),
	}
	if err := p.Model.Visit(func(n icm.NodeInfo) error {
		rec.Nodes = append(rec.Nodes, nodeRecord{
			Frame:      int32(n.Frame),
			Level:      int32(n.Level),
			ID:         int32(n.ID),
			MutInfoPos: int32(n.MutInfoPos),
			MutInfoSeq: int32(n.MutInfoSeq),
			Reached:    n.Reached,
			LogProb:    n.LogProb,
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("visit model of %s: %w", p.Class, err)
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &rec); err != nil {
		return nil, fmt.Errorf("xdr marshal profile %s: %w", p.Class, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a profile written by MarshalBinary and restores
// its model.
func (p *Profile) UnmarshalBinary(data []byte) error {
	var rec record
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &rec); err != nil {
		return fmt.Errorf("xdr unmarshal profile: %w", err)
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("profile id %q: %w", rec.ID, err)
	}

	alphabet := icm.DNA
	if rec.Alphabet != icm.DNA.Name() || rec.Symbols != icm.DNA.Symbols() {
		if alphabet, err = icm.NewAlphabet(rec.Alphabet, rec.Symbols, rec.Wildcards); err != nil {
			return fmt.Errorf("profile %s alphabet: %w", rec.Class, err)
		}
	}
	cfg := icm.Config{
		ModelLen:    int(rec.ModelLen),
		ModelDepth:  int(rec.ModelDepth),
		Periodicity: int(rec.Periodicity),
		Alphabet:    alphabet,
	}
	nodes := make([]icm.NodeInfo, len(rec.Nodes))
	for i, n := range rec.Nodes {
		nodes[i] = icm.NodeInfo{
			Frame:      int(n.Frame),
			Level:      int(n.Level),
			ID:         int(n.ID),
			MutInfoPos: int(n.MutInfoPos),
			MutInfoSeq: int(n.MutInfoSeq),
			Reached:    n.Reached,
			LogProb:    n.LogProb,
		}
	}
	m, err := icm.Restore(cfg, nodes)
	if err != nil {
		return fmt.Errorf("restore model of %s: %w", rec.Class, err)
	}

	*p = Profile{
		ID:        id,
		Class:     rec.Class,
		Samples:   int(rec.Samples),
		CreatedAt: time.Unix(0, rec.CreatedAt),
		Model:     m,
	}
	return nil
}
