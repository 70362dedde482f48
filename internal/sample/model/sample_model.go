package model

import (
	"time"

	"github.com/go-scimm/scimm/internal/icm"
	"github.com/google/uuid"
)

type Status uint8

const (
	// StatusNew samples have not been used by a training run yet.
	StatusNew Status = iota
	StatusTrained
)

func NewSample(class, seq string, weight float64, createdAt time.Time) Sample {
	return Sample{
		ID:        uuid.New(),
		Class:     class,
		Seq:       seq,
		Weight:    weight,
		Status:    StatusNew,
		CreatedAt: createdAt,
	}
}

// Sample is one training sequence of a class.
type Sample struct {
	ID        uuid.UUID `json:"id"`
	Class     string    `json:"class"`
	Seq       string    `json:"seq"`
	Weight    float64   `json:"weight"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Sample) IsNew() bool {
	return s.Status == StatusNew
}

func (s Sample) IsTrained() bool {
	return s.Status == StatusTrained
}

func (s Sample) Example() icm.Example {
	return icm.Example{Seq: s.Seq, P: s.Weight}
}
