package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-scimm/scimm/internal/classify"
	"github.com/go-scimm/scimm/internal/collect"
	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/icm"
	"github.com/go-scimm/scimm/internal/score"
	"github.com/go-scimm/scimm/internal/server"
	"github.com/go-scimm/scimm/internal/train"
	"github.com/go-scimm/scimm/internal/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, ctx context.Context) (*Client, chan error) {
	t.Helper()
	db, err := database.NewFromEnv(ctx, &database.Config{
		FileName:    filepath.Join(t.TempDir(), "scimm.db"),
		OpenTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	shutdownCh := make(chan error, 1)
	m, err := trainer.New(db, shutdownCh,
		trainer.WithModelConfig(icm.Config{ModelLen: 6, ModelDepth: 3, Periodicity: 3, Alphabet: icm.DNA}),
		trainer.WithDBFlushSize(1000),
		trainer.WithDBFlushTime(time.Hour),
		trainer.WithRetrainInterval(0),
	)
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx))

	collectHandler, err := collect.NewHandler(&collect.Config{RequestTimeout: 5 * time.Second, MaxDataItemsLen: 100}, m)
	require.NoError(t, err)
	trainHandler, err := train.NewHandler(&train.Config{RequestTimeout: 5 * time.Second}, m)
	require.NoError(t, err)
	scoreHandler, err := score.NewHandler(&score.Config{RequestTimeout: 5 * time.Second, MaxDataItemsLen: 100}, m)
	require.NoError(t, err)
	classifyHandler, err := classify.NewHandler(&classify.Config{RequestTimeout: 5 * time.Second, MaxDataItemsLen: 100, DefaultTop: 3}, m)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/collect", collectHandler)
	mux.Handle("/train", trainHandler)
	mux.Handle("/score", scoreHandler)
	mux.Handle("/classify", classifyHandler)
	mux.Handle("/health", server.HandleHealth(ctx))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	client, err := NewClient(strings.TrimPrefix(ts.URL, "http://"), httputil.HTTPClientConfig{}, 5*time.Second)
	require.NoError(t, err)
	return client, shutdownCh
}

func samples(seq string, n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Seq: seq, CreatedAt: time.Now()}
	}
	return out
}

func TestService(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, shutdownCh := newService(t, ctx)

	require.NoError(t, client.Health(ctx))

	classes := map[string]string{
		"at": "ATATATATATATATATATAT",
		"gc": "GCGCGCGCGCGCGCGCGCGC",
	}
	for class, seq := range classes {
		resp, err := client.Collect(ctx, CollectRequest{Class: class, Data: samples(seq, 20)})
		require.NoError(t, err)
		assert.Equal(t, 20, resp.Collected)
	}

	for class := range classes {
		class := class
		var trained *TrainResponse
		require.Eventually(t, func() bool {
			resp, err := client.Train(ctx, TrainRequest{Class: class})
			if err != nil {
				return false
			}
			trained = resp
			return resp.Samples == 20
		}, 5*time.Second, 20*time.Millisecond)
		assert.Equal(t, class, trained.Class)
		assert.Equal(t, 6, trained.ModelLen)
		assert.Equal(t, 3, trained.Periodicity)
	}

	scored, err := client.Score(ctx, ScoreRequest{
		Class:      "at",
		Cumulative: true,
		Data:       []Sequence{{ID: "at", Seq: "ATATATATAT"}, {ID: "gc", Seq: "GCGCGCGCGC"}},
	})
	require.NoError(t, err)
	require.Len(t, scored.Data, 2)
	assert.Equal(t, "at", scored.Data[0].ID)
	assert.Greater(t, scored.Data[0].LogProb, scored.Data[1].LogProb)
	require.Len(t, scored.Data[0].Cumulative, 10)
	assert.InDelta(t, scored.Data[0].LogProb, scored.Data[0].Cumulative[9], 1e-9)

	ranked, err := client.Classify(ctx, ClassifyRequest{Top: 1, Data: []Sequence{{ID: "q", Seq: "GCGCGCGCGC"}}})
	require.NoError(t, err)
	require.Len(t, ranked.Data, 1)
	require.Len(t, ranked.Data[0].Classes, 1)
	assert.Equal(t, "gc", ranked.Data[0].Classes[0].Class)

	_, err = client.Score(ctx, ScoreRequest{Class: "absent", Data: []Sequence{{Seq: "ACGT"}}})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	_, err = client.Collect(ctx, CollectRequest{Class: "at", Data: []Sample{{Seq: "ATXATATA"}}})
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)

	cancel()
	require.NoError(t, <-shutdownCh)
}
