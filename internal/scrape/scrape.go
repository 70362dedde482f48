// Package scrape polls remote endpoints for training samples and hands
// them to the collector.
package scrape

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-scimm/scimm/internal/buildinfo"
	"github.com/go-scimm/scimm/internal/httputil"
	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/sample/model"
	"github.com/go-scimm/scimm/internal/trainer"
	"github.com/go-scimm/scimm/pkg/rworker"
)

// response has the shape of a collect request.
type response struct {
	Class string `json:"class"`
	Data  []struct {
		Seq       string    `json:"seq"`
		Weight    *float64  `json:"weight"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"data"`
}

type Manager interface {
	Run(context.Context) error
	Stop()
}

type ProvideFn = func(trainer.Collector, chan<- error) (Manager, error)

type Options struct {
	maxConcurrentRequest int
	requestTimeout       time.Duration
	scrapeInterval       time.Duration
}

type Option func(*manager)

func WithMaxConcurrentRequest(n int) Option {
	return func(o *manager) {
		o.opts.maxConcurrentRequest = n
	}
}

func WithInterval(t time.Duration) Option {
	return func(o *manager) {
		o.opts.scrapeInterval = t
	}
}

func WithRequestTimeout(t time.Duration) Option {
	return func(o *manager) {
		o.opts.requestTimeout = t
	}
}

func WithTargets(ts Targets) Option {
	return func(o *manager) {
		o.targets = ts
	}
}

func New(collector trainer.Collector, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	if collector == nil {
		return nil, fmt.Errorf("collector instance is not defined")
	}
	m := &manager{
		opts: Options{
			maxConcurrentRequest: 16,
			requestTimeout:       10 * time.Second,
			scrapeInterval:       30 * time.Second,
		},
		shutdownCh: shutdownCh,
		collector:  collector,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.opts.scrapeInterval <= 0 {
		return nil, fmt.Errorf("scrape interval must be positive, got %v", m.opts.scrapeInterval)
	}
	for _, target := range m.targets {
		if _, err := url.Parse(target.URL); err != nil {
			return nil, fmt.Errorf("target url %q: %w", target.URL, err)
		}
		client, err := httputil.NewClientFromConfig(target.HTTPConfig, m.opts.requestTimeout)
		if err != nil {
			return nil, fmt.Errorf("unable create client for target %s: %w", target.URL, err)
		}
		m.clients = append(m.clients, client)
	}
	return m, nil
}

type manager struct {
	opts       Options
	targets    Targets
	clients    []*http.Client
	collector  trainer.Collector
	shutdownCh chan<- error
	cancel     func()
}

func (s *manager) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		defer func() {
			s.shutdownCh <- nil
		}()
		ticker := time.NewTicker(s.opts.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.scrapping(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *manager) scrape(ctx context.Context, i int) (response, error) {
	var response response
	ctx, cancel := context.WithTimeout(ctx, s.opts.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.targets[i].URL, nil)
	if err != nil {
		return response, fmt.Errorf("creating request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := s.clients[i].Do(req)
	if err != nil {
		return response, fmt.Errorf("sending request error: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return response, fmt.Errorf("unable create gzip.NewReader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return response, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return response, fmt.Errorf("response was not 200 OK: %s", body)
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return response, fmt.Errorf("decoding response error: %w", err)
	}
	return response, nil
}

func (s *manager) scrapping(ctx context.Context) {
	logger := logging.FromContext(ctx)
	pool := rworker.New(s.opts.maxConcurrentRequest)
	for i, target := range s.targets {
		pool.Job(func() error {
			resp, err := s.scrape(ctx, i)
			if err != nil {
				return fmt.Errorf("scrape %s: %w", target.URL, err)
			}
			class := resp.Class
			if target.Class != "" {
				class = target.Class
			}
			sort.SliceStable(resp.Data, func(i, j int) bool {
				return resp.Data[i].CreatedAt.Before(resp.Data[j].CreatedAt)
			})
			now := time.Now()
			samples := make([]model.Sample, 0, len(resp.Data))
			for _, dat := range resp.Data {
				weight := 1.0
				if dat.Weight != nil {
					weight = *dat.Weight
				}
				createdAt := dat.CreatedAt
				if createdAt.IsZero() {
					createdAt = now
				}
				samples = append(samples, model.NewSample(class, dat.Seq, weight, createdAt))
			}
			if err := s.collector.Collect(samples...); err != nil {
				return fmt.Errorf("send %s to collect error: %w", target.URL, err)
			}
			logger.Debugf("scraped %d samples of class %s from %s", len(samples), class, target.URL)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		logger.Errorf("scrape manager error: %v", err)
	}
}
