package trainer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/metric"
	"github.com/go-scimm/scimm/internal/sample/model"
)

type dbSchedulerConfig struct {
	deps           pullDependencies
	maxItemsStored int
	maxStorageTime time.Duration
	rebuildDBTime  time.Duration
}

func newDBScheduler(config dbSchedulerConfig) *dbScheduler {
	return &dbScheduler{opts: config}
}

// dbScheduler deletes old samples from the DB. It keeps at most
// maxItemsStored samples per class and drops samples older than
// maxStorageTime. Samples that have not been trained on yet are never
// deleted.
type dbScheduler struct {
	opts dbSchedulerConfig
}

// processOutdatedSamples deletes the trained samples of class older than
// the configured storage time.
func (s *dbScheduler) processOutdatedSamples(ctx context.Context, class string) (int, error) {
	samples, err := s.opts.deps.fetchSamplesByClass(class, func(sample model.Sample) bool {
		return sample.IsTrained() && time.Since(sample.CreatedAt) > s.opts.maxStorageTime
	})
	if err != nil {
		return 0, fmt.Errorf("unable find samples by class %s: %w", class, err)
	}

	if err := s.opts.deps.deleteSamples(ctx, samples); err != nil {
		return 0, fmt.Errorf("unable delete outdated samples of class %s: %w", class, err)
	}
	return len(samples), nil
}

// processOverSizeSamples deletes the oldest trained samples of class until
// at most maxItemsStored samples are left.
func (s *dbScheduler) processOverSizeSamples(ctx context.Context, class string, total int) (int, error) {
	samples, err := s.opts.deps.fetchSamplesByClass(class, func(sample model.Sample) bool {
		return sample.IsTrained()
	})
	if err != nil {
		return 0, fmt.Errorf("unable find samples by class %s: %w", class, err)
	}

	excess := total - s.opts.maxItemsStored
	if excess <= 0 {
		return 0, nil
	}
	if excess > len(samples) {
		excess = len(samples)
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].CreatedAt.Before(samples[j].CreatedAt)
	})

	if err := s.opts.deps.deleteSamples(ctx, samples[:excess]); err != nil {
		return 0, fmt.Errorf("unable delete oversize samples of class %s: %w", class, err)
	}
	return excess, nil
}

// rebuildOutdated checks every class for outdated samples.
func (s *dbScheduler) rebuildOutdated(ctx context.Context) error {
	classes, err := s.opts.deps.fetchKeys()
	if err != nil {
		return fmt.Errorf("unable to fetch sample keys: %w", err)
	}
	for _, class := range classes {
		n, err := s.processOutdatedSamples(ctx, class)
		if err != nil {
			return fmt.Errorf("unable process samples: %w", err)
		}
		metric.Count(ctx, metric.SamplesPruned, class, int64(n))
	}
	return nil
}

// rebuildSize checks the number of stored samples of every class.
func (s *dbScheduler) rebuildSize(ctx context.Context) error {
	classes, err := s.opts.deps.fetchKeys()
	if err != nil {
		return fmt.Errorf("unable fetch keys: %w", err)
	}
	for _, class := range classes {
		length, err := s.opts.deps.countByClass(class)
		if err != nil {
			return fmt.Errorf("unable count by class %s: %w", class, err)
		}
		if length <= s.opts.maxItemsStored {
			continue
		}
		n, err := s.processOverSizeSamples(ctx, class, length)
		if err != nil {
			return fmt.Errorf("unable process samples: %w", err)
		}
		metric.Count(ctx, metric.SamplesPruned, class, int64(n))
	}

	return nil
}

// schedule runs the cleanup functions every rebuildDBTime.
func (s *dbScheduler) schedule(ctx context.Context) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(s.opts.rebuildDBTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.opts.maxItemsStored > 0 {
				if err := s.rebuildSize(ctx); err != nil {
					logger.Errorf("unable db rebuild size: %v", err)
				}
			}
			if s.opts.maxStorageTime > 0 {
				if err := s.rebuildOutdated(ctx); err != nil {
					logger.Errorf("unable db rebuild outdated: %v", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
