package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/notify/model"
	profileModel "github.com/go-scimm/scimm/internal/profile/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mtx    sync.Mutex
	events map[string]model.Event
}

func newMemStore(events ...model.Event) *memStore {
	s := &memStore{events: map[string]model.Event{}}
	for _, e := range events {
		s.events[e.ID.String()] = e
	}
	return s
}

func (s *memStore) Store(_ context.Context, events ...model.Event) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, e := range events {
		s.events[e.ID.String()] = e
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, events ...model.Event) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, e := range events {
		delete(s.events, e.ID.String())
	}
	return nil
}

func (s *memStore) FindAll(context.Context) ([]model.Event, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var out []model.Event
	for _, e := range s.events {
		out = append(out, e)
	}
	return out, nil
}

type receiver struct {
	mtx     sync.Mutex
	classes []string
	status  int
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rc.mtx.Lock()
	defer rc.mtx.Unlock()
	if rc.status != 0 {
		w.WriteHeader(rc.status)
		return
	}
	for _, e := range req.Events {
		rc.classes = append(rc.classes, e.Class)
	}
}

func TestManager_Deliver(t *testing.T) {
	all, coding, broken := &receiver{}, &receiver{}, &receiver{status: http.StatusInternalServerError}
	allSrv, codingSrv, brokenSrv := httptest.NewServer(all), httptest.NewServer(coding), httptest.NewServer(broken)
	defer allSrv.Close()
	defer codingSrv.Close()
	defer brokenSrv.Close()

	store := newMemStore()
	m, err := newManager(store, make(chan error, 1), WithTargets(Targets{
		{URL: allSrv.URL},
		{URL: codingSrv.URL, Class: "coding"},
		{URL: brokenSrv.URL, Class: "noncoding"},
	}))
	require.NoError(t, err)

	m.NotifyTrained(profileModel.Profile{Class: "coding", CreatedAt: time.Now()})
	m.NotifyTrained(profileModel.Profile{Class: "noncoding", CreatedAt: time.Now()})
	m.deliver(context.Background())

	assert.ElementsMatch(t, []string{"coding", "noncoding"}, all.classes)
	assert.Equal(t, []string{"coding"}, coding.classes)

	// the event the broken target refused is retried
	pending := m.take()
	require.Len(t, pending, 1)
	assert.Equal(t, "noncoding", pending[0].Class)

	m.push(pending...)
	require.NoError(t, m.shutdown())
	stored, err := store.FindAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestManager_RunRestoresPending(t *testing.T) {
	rc := &receiver{}
	srv := httptest.NewServer(rc)
	defer srv.Close()

	store := newMemStore(model.NewEvent(profileModel.Profile{Class: "left"}))
	shutdownCh := make(chan error, 1)
	m, err := newManager(store, shutdownCh, WithTargets(Targets{{URL: srv.URL}}), WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Run(ctx))
	require.Eventually(t, func() bool {
		rc.mtx.Lock()
		defer rc.mtx.Unlock()
		return len(rc.classes) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "left", rc.classes[0])

	cancel()
	require.NoError(t, <-shutdownCh)
	stored, err := store.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestNewManager_Invalid(t *testing.T) {
	_, err := newManager(newMemStore(), nil, WithInterval(0))
	assert.Error(t, err)

	_, err = newManager(newMemStore(), nil, WithMaxPending(0))
	assert.Error(t, err)

	_, err = newManager(newMemStore(), nil, WithTargets(Targets{{
		URL:        "http://localhost",
		HTTPConfig: httputilConfigWithBoth(),
	}}))
	assert.Error(t, err)
}

func TestManager_PendingBound(t *testing.T) {
	store := newMemStore()
	m, err := newManager(store, make(chan error, 1), WithTargets(Targets{{URL: "http://localhost"}}), WithMaxPending(2))
	require.NoError(t, err)

	for _, class := range []string{"a", "b", "c"} {
		m.NotifyTrained(profileModel.Profile{Class: class})
	}
	pending := m.take()
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].Class)
	assert.Equal(t, "c", pending[1].Class)

	m.push(pending...)
	require.NoError(t, m.shutdown())
	// training that finishes after shutdown is not queued
	m.NotifyTrained(profileModel.Profile{Class: "late"})
	assert.Empty(t, m.take())

	stored, err := store.FindAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestTargets_Decode(t *testing.T) {
	var ts Targets
	require.NoError(t, ts.Decode(`[{"url": "http://a", "class": "coding"}, {"url": "http://b"}]`))
	require.Len(t, ts, 2)
	assert.True(t, ts[0].accepts("coding"))
	assert.False(t, ts[0].accepts("other"))
	assert.True(t, ts[1].accepts("other"))
}

func httputilConfigWithBoth() httputil.HTTPClientConfig {
	return httputil.HTTPClientConfig{BearerToken: "t", BasicAuth: &httputil.BasicAuth{Username: "u"}}
}
