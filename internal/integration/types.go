package integration

import "time"

type Sample struct {
	Seq       string    `json:"seq"`
	Weight    *float64  `json:"weight,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type CollectRequest struct {
	Class string   `json:"class"`
	Data  []Sample `json:"data"`
}

type CollectResponse struct {
	Status    string `json:"status"`
	Collected int    `json:"collected"`
}

type TrainRequest struct {
	Class string `json:"class"`
}

type TrainResponse struct {
	ID          string    `json:"id"`
	Class       string    `json:"class"`
	Samples     int       `json:"samples"`
	ModelLen    int       `json:"modelLen"`
	ModelDepth  int       `json:"modelDepth"`
	Periodicity int       `json:"periodicity"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Sequence struct {
	ID  string `json:"id"`
	Seq string `json:"seq"`
}

type ScoreRequest struct {
	Class      string     `json:"class"`
	Frame      int        `json:"frame"`
	Cumulative bool       `json:"cumulative"`
	Data       []Sequence `json:"data"`
}

type ScoreResponse struct {
	Class string `json:"class"`
	Data  []struct {
		ID         string    `json:"id"`
		LogProb    float64   `json:"logProb"`
		LogOdds    float64   `json:"logOdds"`
		Cumulative []float64 `json:"cumulative"`
	} `json:"data"`
}

type ClassifyRequest struct {
	Top   int        `json:"top"`
	Frame int        `json:"frame"`
	Data  []Sequence `json:"data"`
}

type ClassScore struct {
	Class   string  `json:"class"`
	LogProb float64 `json:"logProb"`
	LogOdds float64 `json:"logOdds"`
}

type ClassifyResponse struct {
	Data []struct {
		ID      string       `json:"id"`
		Classes []ClassScore `json:"classes"`
	} `json:"data"`
}
