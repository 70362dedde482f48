// Package notify posts trained profile summaries to webhook targets.
// Undelivered notifications survive restarts in the database.
package notify

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-scimm/scimm/internal/buildinfo"
	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/logging"
	notifyDb "github.com/go-scimm/scimm/internal/notify/database"
	"github.com/go-scimm/scimm/internal/notify/model"
	profileModel "github.com/go-scimm/scimm/internal/profile/model"
	"github.com/go-scimm/scimm/pkg/rworker"
	"go.uber.org/zap"
)

type ProvideFn = func(chan<- error) (Manager, error)

type Manager interface {
	NotifyTrained(profileModel.Profile)
	Run(context.Context) error
	Stop()
}

type Options struct {
	maxConcurrentRequest int
	requestTimeout       time.Duration
	interval             time.Duration
	maxPending           int
	targets              Targets
}

type Option func(*manager)

func WithMaxConcurrentRequest(n int) Option {
	return func(m *manager) {
		m.opts.maxConcurrentRequest = n
	}
}

func WithInterval(t time.Duration) Option {
	return func(m *manager) {
		m.opts.interval = t
	}
}

func WithRequestTimeout(t time.Duration) Option {
	return func(m *manager) {
		m.opts.requestTimeout = t
	}
}

// WithMaxPending bounds the events waiting for delivery. The oldest are
// dropped first.
func WithMaxPending(n int) Option {
	return func(m *manager) {
		m.opts.maxPending = n
	}
}

func WithTargets(ts Targets) Option {
	return func(m *manager) {
		m.opts.targets = ts
	}
}

type request struct {
	Events []model.Event `json:"events"`
}

// pendingStore is the persistence the manager needs.
type pendingStore interface {
	Store(context.Context, ...model.Event) error
	Delete(context.Context, ...model.Event) error
	FindAll(context.Context) ([]model.Event, error)
}

func New(db *database.DB, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance is not created")
	}
	return newManager(notifyDb.New(db), shutdownCh, opts...)
}

func newManager(store pendingStore, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	m := &manager{
		opts: Options{
			maxConcurrentRequest: 16,
			requestTimeout:       10 * time.Second,
			interval:             5 * time.Second,
			maxPending:           10000,
		},
		logger:     logging.FromContext(context.Background()),
		store:      store,
		shutdownCh: shutdownCh,
		clients:    map[int]*http.Client{},
	}
	for _, f := range opts {
		f(m)
	}
	if m.opts.interval <= 0 {
		return nil, fmt.Errorf("notify interval must be positive, got %v", m.opts.interval)
	}
	if m.opts.maxPending <= 0 {
		return nil, fmt.Errorf("notify max pending must be positive, got %d", m.opts.maxPending)
	}
	for i, target := range m.opts.targets {
		if _, err := url.Parse(target.URL); err != nil {
			return nil, fmt.Errorf("target %d url: %w", i, err)
		}
		client, err := httputil.NewClientFromConfig(target.HTTPConfig, m.opts.requestTimeout)
		if err != nil {
			return nil, fmt.Errorf("unable create client for target %s: %w", target.URL, err)
		}
		m.clients[i] = client
	}
	return m, nil
}

type manager struct {
	mtx        sync.Mutex
	opts       Options
	store      pendingStore
	shutdownCh chan<- error
	clients    map[int]*http.Client
	pending    []model.Event
	// set once the pending events are persisted on shutdown
	closed bool
	logger *zap.SugaredLogger
	cancel func()
}

func (m *manager) Run(ctx context.Context) error {
	if err := m.initialize(ctx); err != nil {
		return fmt.Errorf("can not start notify manager: %w", err)
	}
	m.mtx.Lock()
	m.logger = logging.FromContext(ctx)
	m.mtx.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.notifier(ctx)
	return nil
}

func (m *manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// NotifyTrained queues the summary of p for delivery.
func (m *manager) NotifyTrained(p profileModel.Profile) {
	if len(m.opts.targets) == 0 {
		return
	}
	m.push(model.NewEvent(p))
}

func (m *manager) push(events ...model.Event) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		for _, e := range events {
			m.logger.Warnw("notifier is shut down, event dropped", "class", e.Class, "event", e.ID.String())
		}
		return
	}
	m.pending = append(m.pending, events...)
	if over := len(m.pending) - m.opts.maxPending; over > 0 {
		m.logger.Warnf("notify queue is full, dropped %d oldest events", over)
		m.pending = append([]model.Event(nil), m.pending[over:]...)
	}
}

func (m *manager) take() []model.Event {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	events := m.pending
	m.pending = nil
	return events
}

// initialize queues the notifications left over by the last run.
func (m *manager) initialize(ctx context.Context) error {
	events, err := m.store.FindAll(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	logging.FromContext(ctx).Infof("restored %d pending notifications", len(events))
	m.push(events...)
	return m.store.Delete(ctx, events...)
}

func (m *manager) shutdown() error {
	m.mtx.Lock()
	events := m.pending
	m.pending, m.closed = nil, true
	m.mtx.Unlock()
	if err := m.store.Store(context.Background(), events...); err != nil {
		return fmt.Errorf("notify shutdown: unable store pending events: %w", err)
	}
	return nil
}

func (m *manager) notifier(ctx context.Context) {
	defer func() {
		m.shutdownCh <- m.shutdown()
	}()
	ticker := time.NewTicker(m.opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.deliver(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// deliver sends the pending events to every target that accepts them. An
// event that any of its targets failed to take stays pending.
func (m *manager) deliver(ctx context.Context) {
	logger := logging.FromContext(ctx)
	events := m.take()
	if len(events) == 0 {
		return
	}

	var (
		mtx    sync.Mutex
		failed = map[int]bool{}
	)
	pool := rworker.New(m.opts.maxConcurrentRequest)
	for i, target := range m.opts.targets {
		var (
			batch   []model.Event
			indexes []int
		)
		for j, e := range events {
			if target.accepts(e.Class) {
				batch = append(batch, e)
				indexes = append(indexes, j)
			}
		}
		if len(batch) == 0 {
			continue
		}
		pool.Job(func() error {
			if err := m.do(ctx, i, target, request{Events: batch}); err != nil {
				mtx.Lock()
				for _, j := range indexes {
					failed[j] = true
				}
				mtx.Unlock()
				return fmt.Errorf("notify %s: %w", target.URL, err)
			}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		logger.Errorf("notify error: %v", err)
	}

	var retry []model.Event
	for j, e := range events {
		if failed[j] {
			retry = append(retry, e)
		}
	}
	m.push(retry...)
}

func (m *manager) do(ctx context.Context, i int, target Target, r request) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.requestTimeout)
	defer cancel()
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("unable encode json data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := m.clients[i].Do(req)
	if err != nil {
		return fmt.Errorf("sending request error: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("unable create gzip.NewReader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	respBody, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("response was not 2xx: %d %s", resp.StatusCode, respBody)
	}
	return nil
}
