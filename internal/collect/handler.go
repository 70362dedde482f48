package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/sample/model"
	"github.com/go-scimm/scimm/internal/trainer"
)

const maxBodyBytes = 64 * 1024 * 1024

type request struct {
	Class string `json:"class"`
	Data  []struct {
		Seq string `json:"seq"`
		// 1 when omitted
		Weight    *float64  `json:"weight"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"data"`
}

type response struct {
	Status    string `json:"status"`
	Collected int    `json:"collected"`
}

func NewHandler(cfg *Config, collector trainer.Collector) (http.Handler, error) {
	if collector == nil {
		return nil, fmt.Errorf("collector is not created")
	}
	return &handler{
		collector: collector,
		cfg:       cfg,
	}, nil
}

type handler struct {
	collector trainer.Collector
	cfg       *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

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

	sort.SliceStable(req.Data, func(i, j int) bool {
		return req.Data[i].CreatedAt.Before(req.Data[j].CreatedAt)
	})
	samples := make([]model.Sample, 0, len(req.Data))
	now := time.Now()
	for _, dat := range req.Data {
		weight := 1.0
		if dat.Weight != nil {
			weight = *dat.Weight
		}
		createdAt := dat.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		samples = append(samples, model.NewSample(req.Class, dat.Seq, weight, createdAt))
	}

	if err := h.collector.Collect(samples...); err != nil {
		httputil.RespErr(ctx, w, err)
		return
	}
	logger.Infof("collected %d samples for class %s", len(samples), req.Class)
	httputil.RespJSON(ctx, w, response{Status: "ok", Collected: len(samples)})
}
