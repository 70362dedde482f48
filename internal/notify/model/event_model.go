package model

import (
	"time"

	profileModel "github.com/go-scimm/scimm/internal/profile/model"
	"github.com/google/uuid"
)

// NewEvent describes a freshly trained profile.
func NewEvent(p profileModel.Profile) Event {
	e := Event{
		ID:        uuid.New(),
		Class:     p.Class,
		ProfileID: p.ID,
		Samples:   p.Samples,
		TrainedAt: p.CreatedAt,
	}
	if p.Model != nil {
		cfg := p.Model.Config()
		e.ModelLen, e.ModelDepth, e.Periodicity = cfg.ModelLen, cfg.ModelDepth, cfg.Periodicity
	}
	return e
}

type Event struct {
	ID          uuid.UUID `json:"id"`
	Class       string    `json:"class"`
	ProfileID   uuid.UUID `json:"profileId"`
	Samples     int       `json:"samples"`
	ModelLen    int       `json:"modelLen"`
	ModelDepth  int       `json:"modelDepth"`
	Periodicity int       `json:"periodicity"`
	TrainedAt   time.Time `json:"trainedAt"`
}
