package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/trainer"
)

const maxBodyBytes = 64 * 1024 * 1024

type request struct {
	Top   int `json:"top"`
	Frame int `json:"frame"`
	Data  []struct {
		ID  string `json:"id"`
		Seq string `json:"seq"`
	} `json:"data"`
}

type result struct {
	ID      string          `json:"id"`
	Classes []trainer.Score `json:"classes"`
}

type response struct {
	Data []result `json:"data"`
}

func NewHandler(cfg *Config, scorer trainer.Scorer) (http.Handler, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is not created")
	}
	return &handler{cfg: cfg, scorer: scorer}, nil
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
	top := req.Top
	if top == 0 {
		top = h.cfg.DefaultTop
	}

	resp := response{Data: make([]result, 0, len(req.Data))}
	for _, dat := range req.Data {
		ranked, err := h.scorer.Classify(ctx, dat.Seq, req.Frame, top)
		if err != nil {
			httputil.RespErr(ctx, w, fmt.Errorf("classify %q: %w", dat.ID, err))
			return
		}
		resp.Data = append(resp.Data, result{ID: dat.ID, Classes: ranked})
	}

	httputil.RespJSON(ctx, w, resp)
}
