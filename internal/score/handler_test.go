package score

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-scimm/scimm/internal/trainer"
)

type fakeScorer struct{}

func (fakeScorer) Score(_ context.Context, class, seq string, frame int, cumulative bool) (*trainer.Score, error) {
	if class != "known" {
		return nil, fmt.Errorf("%w: %s", trainer.ErrUnknownClass, class)
	}
	s := &trainer.Score{Class: class, LogProb: -float64(len(seq)), LogOdds: float64(frame)}
	if cumulative {
		s.Cumulative = []float64{s.LogProb}
	}
	return s, nil
}

func (fakeScorer) Classify(context.Context, string, int, int) ([]trainer.Score, error) {
	return nil, nil
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		expected []result
	}{
		{
			name:   "positive_score",
			body:   `{"class": "known", "frame": 2, "data": [{"id": "a", "seq": "ACG"}, {"id": "b", "seq": "ACGTA"}]}`,
			status: http.StatusOK,
			expected: []result{
				{ID: "a", LogProb: -3, LogOdds: 2},
				{ID: "b", LogProb: -5, LogOdds: 2},
			},
		},
		{
			name:     "positive_cumulative",
			body:     `{"class": "known", "cumulative": true, "data": [{"id": "a", "seq": "AC"}]}`,
			status:   http.StatusOK,
			expected: []result{{ID: "a", LogProb: -2, Cumulative: []float64{-2}}},
		},
		{
			name:   "negative_unknown_class",
			body:   `{"class": "other", "data": [{"id": "a", "seq": "ACG"}]}`,
			status: http.StatusNotFound,
		},
		{
			name:   "negative_too_many_items",
			body:   `{"class": "known", "data": [{"seq": "A"}, {"seq": "C"}, {"seq": "G"}]}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "negative_unknown_field",
			body:   `{"klass": "known"}`,
			status: http.StatusBadRequest,
		},
	}

	h, err := NewHandler(&Config{RequestTimeout: time.Second, MaxDataItemsLen: 2}, fakeScorer{})
	if err != nil {
		t.Fatalf("NewHandler, got: %v, expected: nil", err)
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(test.body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != test.status {
				t.Fatalf("status, got: %v, expected: %v (%s)", w.Code, test.status, w.Body.String())
			}
			if test.status != http.StatusOK {
				return
			}
			var resp response
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response, got: %v, expected: nil", err)
			}
			if len(resp.Data) != len(test.expected) {
				t.Fatalf("results, got: %v, expected: %v", len(resp.Data), len(test.expected))
			}
			for i := range resp.Data {
				got, want := resp.Data[i], test.expected[i]
				if got.ID != want.ID || got.LogProb != want.LogProb || got.LogOdds != want.LogOdds ||
					len(got.Cumulative) != len(want.Cumulative) {
					t.Errorf("result %d, got: %+v, expected: %+v", i, got, want)
				}
			}
		})
	}
}
