package train

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/trainer"
)

const maxBodyBytes = 1024 * 1024

type request struct {
	Class string `json:"class"`
}

type response struct {
	ID          string    `json:"id"`
	Class       string    `json:"class"`
	Samples     int       `json:"samples"`
	ModelLen    int       `json:"modelLen"`
	ModelDepth  int       `json:"modelDepth"`
	Periodicity int       `json:"periodicity"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewHandler(cfg *Config, t trainer.Trainer) (http.Handler, error) {
	if t == nil {
		return nil, fmt.Errorf("trainer is not created")
	}
	return &handler{cfg: cfg, trainer: t}, nil
}

type handler struct {
	trainer trainer.Trainer
	cfg     *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	if !httputil.CheckJSONPost(ctx, w, r) {
		return
	}

	defer r.Body.Close()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(&req); err != nil {
		httputil.DecodeErr(ctx, w, err)
		return
	}
	if req.Class == "" {
		httputil.RespBadRequest(ctx, w, `{"error": "class must not be empty"}`)
		return
	}

	p, err := h.trainer.Train(ctx, req.Class)
	if err != nil {
		httputil.RespErr(ctx, w, err)
		return
	}
	cfg := p.Model.Config()
	httputil.RespJSON(ctx, w, response{
		ID:          p.ID.String(),
		Class:       p.Class,
		Samples:     p.Samples,
		ModelLen:    cfg.ModelLen,
		ModelDepth:  cfg.ModelDepth,
		Periodicity: cfg.Periodicity,
		CreatedAt:   p.CreatedAt,
	})
}
