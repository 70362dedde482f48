package score

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/trainer"
	"golang.org/x/sync/errgroup"
)

const maxBodyBytes = 64 * 1024 * 1024

type request struct {
	Class string `json:"class"`
	// frame of the first symbol of every sequence
	Frame      int  `json:"frame"`
	Cumulative bool `json:"cumulative"`
	Data       []struct {
		ID  string `json:"id"`
		Seq string `json:"seq"`
	} `json:"data"`
}

type result struct {
	ID         string    `json:"id"`
	LogProb    float64   `json:"logProb"`
	LogOdds    float64   `json:"logOdds"`
	Cumulative []float64 `json:"cumulative,omitempty"`
}

type response struct {
	Class string   `json:"class"`
	Data  []result `json:"data"`
}

func NewHandler(cfg *Config, scorer trainer.Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is not created")
	}
	return &handler{
		cfg:    cfg,
		scorer: scorer,
	}, nil
}

type handler struct {
	scorer trainer.Scorer
	cfg    *Config
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

	if len(req.Data) > h.cfg.MaxDataItemsLen {
		httputil.RespBadRequest(ctx, w, `{"error": "data items is too large, max allowed len is %d"}`, h.cfg.MaxDataItemsLen)
		return
	}

	respData := make([]result, len(req.Data))
	errGrp, gctx := errgroup.WithContext(ctx)
	for i, dat := range req.Data {
		errGrp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := h.scorer.Score(gctx, req.Class, dat.Seq, req.Frame, req.Cumulative)
			if err != nil {
				return fmt.Errorf("score %q: %w", dat.ID, err)
			}
			respData[i] = result{ID: dat.ID, LogProb: s.LogProb, LogOdds: s.LogOdds, Cumulative: s.Cumulative}
			return nil
		})
	}
	if err := errGrp.Wait(); err != nil {
		httputil.RespErr(ctx, w, err)
		return
	}

	httputil.RespJSON(ctx, w, response{Class: req.Class, Data: respData})
}
