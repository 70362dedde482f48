package trainer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-scimm/scimm/internal/icm"
	profileModel "github.com/go-scimm/scimm/internal/profile/model"
	sampleDb "github.com/go-scimm/scimm/internal/sample/database"
	"github.com/go-scimm/scimm/internal/sample/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the bbolt stores.
type memStore struct {
	mtx      sync.Mutex
	samples  map[string]map[string]model.Sample
	profiles map[string]profileModel.Profile
}

func newMemStore() *memStore {
	return &memStore{
		samples:  map[string]map[string]model.Sample{},
		profiles: map[string]profileModel.Profile{},
	}
}

func (s *memStore) deps() pullDependencies {
	return pullDependencies{
		fetchSamples: func(_ context.Context, filter sampleDb.FilterFn) ([]model.Sample, error) {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			var out []model.Sample
			for _, class := range s.samples {
				for _, x := range class {
					if filter == nil || filter(x) {
						out = append(out, x)
					}
				}
			}
			return out, nil
		},
		fetchSamplesByClass: func(class string, filter sampleDb.FilterFn) ([]model.Sample, error) {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			var out []model.Sample
			for _, x := range s.samples[class] {
				if filter == nil || filter(x) {
					out = append(out, x)
				}
			}
			return out, nil
		},
		deleteSamples: func(_ context.Context, samples []model.Sample) error {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			for _, x := range samples {
				delete(s.samples[x.Class], x.ID.String())
			}
			return nil
		},
		appendSamples: func(_ context.Context, samples []model.Sample) error {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			for _, x := range samples {
				if s.samples[x.Class] == nil {
					s.samples[x.Class] = map[string]model.Sample{}
				}
				s.samples[x.Class][x.ID.String()] = x
			}
			return nil
		},
		updateSamples: func(_ context.Context, samples []model.Sample) (int, error) {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			var n int
			for _, x := range samples {
				if _, ok := s.samples[x.Class][x.ID.String()]; ok {
					s.samples[x.Class][x.ID.String()] = x
					n++
				}
			}
			return n, nil
		},
		fetchKeys: func() ([]string, error) {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			var keys []string
			for k := range s.samples {
				keys = append(keys, k)
			}
			return keys, nil
		},
		countByClass: func(class string) (int, error) {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			return len(s.samples[class]), nil
		},
		storeProfile: func(_ context.Context, p profileModel.Profile) error {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			s.profiles[p.Class] = p
			return nil
		},
		fetchProfiles: func(context.Context) ([]profileModel.Profile, error) {
			s.mtx.Lock()
			defer s.mtx.Unlock()
			var out []profileModel.Profile
			for _, p := range s.profiles {
				out = append(out, p)
			}
			return out, nil
		},
	}
}

func newTestManager(t *testing.T, store *memStore, opts ...Option) (*manager, chan error) {
	t.Helper()
	shutdownCh := make(chan error, 1)
	opts = append([]Option{
		WithModelConfig(icm.Config{ModelLen: 4, ModelDepth: 2, Periodicity: 1}),
		WithDBFlushSize(1000),
		WithDBFlushTime(time.Hour),
	}, opts...)
	m, err := newManager(store.deps(), shutdownCh, opts...)
	require.NoError(t, err)
	return m, shutdownCh
}

func TestNewManager_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		expected error
	}{
		{
			name:     "negative_depth",
			opts:     []Option{WithModelConfig(icm.Config{ModelLen: 3, ModelDepth: 3, Periodicity: 1})},
			expected: icm.ErrConfiguration,
		},
		{
			name:     "negative_background",
			opts:     []Option{WithBackgroundGC(1.5)},
			expected: icm.ErrConfiguration,
		},
		{
			name:     "negative_zero_flush_time",
			opts:     []Option{WithDBFlushTime(0)},
			expected: icm.ErrConfiguration,
		},
		{
			name:     "negative_flush_time",
			opts:     []Option{WithDBFlushTime(-time.Second)},
			expected: icm.ErrConfiguration,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := newManager(newMemStore().deps(), make(chan error, 1), test.opts...)
			if !errors.Is(err, test.expected) {
				t.Errorf("newManager, got: %v, expected: %v", err, test.expected)
			}
		})
	}
}

func TestManager_CollectTrainScore(t *testing.T) {
	store := newMemStore()
	m, shutdownCh := newTestManager(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Run(ctx))

	var samples []model.Sample
	for i := 0; i < 20; i++ {
		samples = append(samples,
			model.NewSample("at", "ATATATATATATATAT", 1, time.Now()),
			model.NewSample("gc", "GCGCGCGCGCGCGCGC", 1, time.Now()),
		)
	}
	require.NoError(t, m.Collect(samples...))

	// wait for the collector to buffer everything
	require.Eventually(t, func() bool { return m.dbTxExecutor.len() == len(samples) }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"at", "gc"}, m.dirtyClasses())

	for _, class := range []string{"at", "gc"} {
		p, err := m.Train(ctx, class)
		require.NoError(t, err)
		assert.Equal(t, 20, p.Samples)
	}
	assert.Empty(t, m.dirtyClasses())

	trained, err := store.deps().fetchSamples(ctx, func(s model.Sample) bool { return s.IsTrained() })
	require.NoError(t, err)
	assert.Len(t, trained, len(samples))

	at, err := m.Score(ctx, "at", "ATATATAT", 0, true)
	require.NoError(t, err)
	gc, err := m.Score(ctx, "gc", "ATATATAT", 0, false)
	require.NoError(t, err)
	assert.Greater(t, at.LogProb, gc.LogProb)
	assert.Greater(t, at.LogOdds, 0.0)
	require.Len(t, at.Cumulative, 8)
	assert.Equal(t, at.LogProb, at.Cumulative[7])
	assert.Nil(t, gc.Cumulative)

	ranked, err := m.Classify(ctx, "GCGCGCGCGC", 0, 1)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "gc", ranked[0].Class)

	ranked, err = m.Classify(ctx, "GCGCGCGCGC", 0, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.GreaterOrEqual(t, ranked[0].LogProb, ranked[1].LogProb)

	_, err = m.Score(ctx, "unknown", "ACGT", 0, false)
	assert.True(t, errors.Is(err, ErrUnknownClass))
	_, err = m.Score(ctx, "at", "ACGT", 3, false)
	assert.True(t, errors.Is(err, icm.ErrOutOfRange))
	_, err = m.Classify(ctx, "ACXT", 0, 1)
	assert.True(t, errors.Is(err, icm.ErrInvalidSequence))

	cancel()
	require.NoError(t, <-shutdownCh)
	assert.True(t, errors.Is(m.Collect(samples[0]), ErrShuttingDown))
}

func TestManager_CollectRejectsInvalidBatch(t *testing.T) {
	m, _ := newTestManager(t, newMemStore())
	tests := []struct {
		name   string
		sample model.Sample
	}{
		{name: "no_class", sample: model.NewSample("", "ACGTACGT", 1, time.Now())},
		{name: "short", sample: model.NewSample("c", "ACG", 1, time.Now())},
		{name: "bad_symbol", sample: model.NewSample("c", "ACGTXCGT", 1, time.Now())},
		{name: "negative_weight", sample: model.NewSample("c", "ACGTACGT", -1, time.Now())},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := m.Collect(model.NewSample("c", "ACGTACGT", 1, time.Now()), test.sample)
			if !errors.Is(err, icm.ErrInvalidSequence) {
				t.Errorf("Collect, got: %v, expected: %v", err, icm.ErrInvalidSequence)
			}
			if len(m.collectCh) != 0 {
				t.Errorf("Collect queued %d samples of a rejected batch", len(m.collectCh))
			}
		})
	}
}

func TestManager_TrainNotEnoughSamples(t *testing.T) {
	store := newMemStore()
	m, _ := newTestManager(t, store, WithMinSamples(3))
	require.NoError(t, store.deps().appendSamples(context.Background(), testSamples(2)))

	_, err := m.Train(context.Background(), "test-class")
	assert.True(t, errors.Is(err, ErrNotEnoughSamples))
	_, err = m.Score(context.Background(), "test-class", "ACGT", 0, false)
	assert.True(t, errors.Is(err, ErrUnknownClass))
}

func TestManager_BulkLoadAndRetrain(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.deps().appendSamples(ctx, testSamples(3)))

	first, _ := newTestManager(t, store)
	require.NoError(t, first.bulkLoad(ctx))
	assert.Equal(t, []string{"test-class"}, first.dirtyClasses())
	require.NoError(t, first.retrainDirty(ctx))
	assert.Empty(t, first.dirtyClasses())

	want, err := first.Score(ctx, "test-class", "ACGTACGTAA", 0, false)
	require.NoError(t, err)

	// a restarted manager picks up the stored profile
	second, _ := newTestManager(t, store)
	require.NoError(t, second.bulkLoad(ctx))
	assert.Empty(t, second.dirtyClasses())
	got, err := second.Score(ctx, "test-class", "ACGTACGTAA", 0, false)
	require.NoError(t, err)
	assert.Equal(t, want.LogProb, got.LogProb)
}

type fakeNotifier struct {
	mtx     sync.Mutex
	classes []string
}

func (f *fakeNotifier) NotifyTrained(p profileModel.Profile) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.classes = append(f.classes, p.Class)
}

func TestManager_TrainNotifies(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.deps().appendSamples(ctx, testSamples(3)))

	notifier := &fakeNotifier{}
	m, _ := newTestManager(t, store, WithNotifier(notifier), WithMinSamples(3))
	p, err := m.Train(ctx, "test-class")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Samples)
	assert.Equal(t, []string{"test-class"}, notifier.classes)

	// a failed training is not announced
	_, err = m.Train(ctx, "absent")
	assert.True(t, errors.Is(err, ErrNotEnoughSamples))
	assert.Len(t, notifier.classes, 1)
}

func TestManager_TrainKeepsPrunedSamplesDeleted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	samples := testSamples(3)
	require.NoError(t, store.deps().appendSamples(ctx, samples))

	deps := store.deps()
	fetch := deps.fetchSamplesByClass
	// the scheduler prunes a sample while the class is being trained
	deps.fetchSamplesByClass = func(class string, filter sampleDb.FilterFn) ([]model.Sample, error) {
		found, err := fetch(class, filter)
		if err == nil {
			err = deps.deleteSamples(ctx, samples[:1])
		}
		return found, err
	}
	m, err := newManager(deps, make(chan error, 1),
		WithModelConfig(icm.Config{ModelLen: 4, ModelDepth: 2, Periodicity: 1}),
		WithDBFlushTime(time.Hour),
	)
	require.NoError(t, err)

	p, err := m.Train(ctx, "test-class")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Samples)

	left, err := store.deps().fetchSamplesByClass("test-class", nil)
	require.NoError(t, err)
	require.Len(t, left, 2)
	for _, s := range left {
		assert.NotEqual(t, samples[0].ID, s.ID)
		assert.True(t, s.IsTrained())
	}
}
