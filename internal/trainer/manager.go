package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/icm"
	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/metric"
	profileDb "github.com/go-scimm/scimm/internal/profile/database"
	profileModel "github.com/go-scimm/scimm/internal/profile/model"
	sampleDb "github.com/go-scimm/scimm/internal/sample/database"
	"github.com/go-scimm/scimm/internal/sample/model"
	"github.com/go-scimm/scimm/pkg/pqueue"
	"github.com/go-scimm/scimm/pkg/rworker"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownClass     = errors.New("unknown class")
	ErrNotEnoughSamples = errors.New("not enough samples")
	ErrShuttingDown     = errors.New("shutting down")
)

// ProvideFn returns the Manager instance. The notifier may be nil.
type ProvideFn func(TrainNotifier, chan<- error) (Manager, error)

// TrainNotifier is told about every trained profile.
type TrainNotifier interface {
	NotifyTrained(profileModel.Profile)
}

// Manager is the background service that stores samples, trains a model
// per class and scores sequences against the trained models.
type Manager interface {
	Collector
	Trainer
	Scorer
	// Run loads the stored profiles and starts the background workers
	Run(context.Context) error
	Stop()
}

// Collector accepts training samples and queues them for storage.
type Collector interface {
	Collect(in ...model.Sample) error
}

// Trainer trains the model of a class from its stored samples.
type Trainer interface {
	Train(ctx context.Context, class string) (*profileModel.Profile, error)
}

// Scorer scores sequences against trained classes.
type Scorer interface {
	Score(ctx context.Context, class, seq string, frame int, cumulative bool) (*Score, error)
	Classify(ctx context.Context, seq string, frame, top int) ([]Score, error)
}

// Score is the result of scoring a sequence against one class.
type Score struct {
	Class   string  `json:"class"`
	LogProb float64 `json:"logProb"`
	// LogProb minus the log-probability under the independent background
	LogOdds    float64   `json:"logOdds"`
	Cumulative []float64 `json:"cumulative,omitempty"`
}

// Abstractions for getting dependencies
type (
	fetchSamplesFn        func(context.Context, sampleDb.FilterFn) ([]model.Sample, error)
	fetchSamplesByClassFn func(string, sampleDb.FilterFn) ([]model.Sample, error)
	deleteSamplesFn       func(context.Context, []model.Sample) error
	appendSamplesFn       func(context.Context, []model.Sample) error
	updateSamplesFn       func(context.Context, []model.Sample) (int, error)
	fetchKeysFn           func() ([]string, error)
	countByClassFn        func(string) (int, error)
	storeProfileFn        func(context.Context, profileModel.Profile) error
	fetchProfilesFn       func(context.Context) ([]profileModel.Profile, error)
)

type pullDependencies struct {
	fetchSamples        fetchSamplesFn
	fetchSamplesByClass fetchSamplesByClassFn
	deleteSamples       deleteSamplesFn
	appendSamples       appendSamplesFn
	updateSamples       updateSamplesFn
	fetchKeys           fetchKeysFn
	countByClass        countByClassFn
	storeProfile        storeProfileFn
	fetchProfiles       fetchProfilesFn
}

func dependenciesFor(db *database.DB) pullDependencies {
	samples, profiles := sampleDb.New(db), profileDb.New(db)
	return pullDependencies{
		fetchSamples:        samples.FindAll,
		fetchSamplesByClass: samples.FindByClass,
		deleteSamples:       samples.DeleteMany,
		appendSamples:       samples.AppendMany,
		updateSamples:       samples.UpdateExisting,
		fetchKeys:           samples.Keys,
		countByClass:        samples.CountByClass,
		storeProfile:        profiles.Store,
		fetchProfiles:       profiles.FindAll,
	}
}

type Options struct {
	modelCfg           icm.Config
	backgroundGC       float64
	minSamples         int
	retrainInterval    time.Duration
	maxConcurrentTrain int
	maxItemsStored     int
	maxStorageTime     time.Duration
	dbFlushTime        time.Duration
	dbFlushSize        int
	rebuildDBTime      time.Duration
	notifier           TrainNotifier
	deps               pullDependencies
}

type Option func(*manager)

func WithModelConfig(cfg icm.Config) Option {
	return func(m *manager) {
		m.opts.modelCfg = cfg
	}
}

func WithNotifier(n TrainNotifier) Option {
	return func(m *manager) {
		m.opts.notifier = n
	}
}

func WithBackgroundGC(gc float64) Option {
	return func(m *manager) {
		m.opts.backgroundGC = gc
	}
}

func WithMinSamples(n int) Option {
	return func(m *manager) {
		m.opts.minSamples = n
	}
}

func WithRetrainInterval(t time.Duration) Option {
	return func(m *manager) {
		m.opts.retrainInterval = t
	}
}

func WithMaxConcurrentTrain(n int) Option {
	return func(m *manager) {
		m.opts.maxConcurrentTrain = n
	}
}

func WithDBFlushTime(t time.Duration) Option {
	return func(m *manager) {
		m.opts.dbFlushTime = t
	}
}

func WithDBFlushSize(n int) Option {
	return func(m *manager) {
		m.opts.dbFlushSize = n
	}
}

func WithRebuildDBTime(t time.Duration) Option {
	return func(m *manager) {
		m.opts.rebuildDBTime = t
	}
}

func WithMaxItemsStored(n int) Option {
	return func(m *manager) {
		m.opts.maxItemsStored = n
	}
}

func WithMaxStorageTime(t time.Duration) Option {
	return func(m *manager) {
		m.opts.maxStorageTime = t
	}
}

// New returns a manager storing samples and profiles in db.
func New(db *database.DB, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	if db == nil {
		return nil, fmt.Errorf("database instance is not created")
	}
	return newManager(dependenciesFor(db), shutdownCh, opts...)
}

func newManager(deps pullDependencies, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	m := &manager{
		opts: Options{
			modelCfg:           icm.DefaultConfig(),
			backgroundGC:       0.5,
			minSamples:         1,
			maxConcurrentTrain: 1,
			dbFlushTime:        5 * time.Second,
			dbFlushSize:        64,
		},
		profiles:   map[string]*entry{},
		dirty:      map[string]struct{}{},
		classLocks: map[string]*sync.Mutex{},
		collectCh:  make(chan model.Sample, 64),
		stopCh:     make(chan struct{}),
		shutdownCh: shutdownCh,
	}
	for _, f := range opts {
		f(m)
	}
	m.opts.deps = deps

	if m.opts.modelCfg.Alphabet == nil {
		m.opts.modelCfg.Alphabet = icm.DNA
	}
	if err := m.opts.modelCfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	if _, err := icm.BuildIndependent(m.opts.modelCfg, m.opts.backgroundGC); err != nil {
		return nil, fmt.Errorf("background model: %w", err)
	}
	if m.opts.minSamples < 1 {
		m.opts.minSamples = 1
	}
	if m.opts.dbFlushTime <= 0 {
		return nil, fmt.Errorf("%w: db flush time %v must be positive", icm.ErrConfiguration, m.opts.dbFlushTime)
	}

	m.dbScheduler = newDBScheduler(dbSchedulerConfig{
		deps:           m.opts.deps,
		maxItemsStored: m.opts.maxItemsStored,
		maxStorageTime: m.opts.maxStorageTime,
		rebuildDBTime:  m.opts.rebuildDBTime,
	})
	m.dbTxExecutor = newDBTxExecutor(
		m.opts.deps.appendSamples,
		dbTxExecutorOptions{
			flushSize: m.opts.dbFlushSize,
			flushTime: m.opts.dbFlushTime,
		},
		shutdownCh,
	)

	return m, nil
}

// entry is a trained class held in memory.
type entry struct {
	profile    profileModel.Profile
	background *icm.Model
}

type manager struct {
	mtx sync.RWMutex

	opts Options
	// the transaction manager in the store
	dbTxExecutor *dbTxExecutor
	// managing data in storage
	dbScheduler *dbScheduler

	// trained classes
	profiles map[string]*entry
	// classes with samples collected since their last training
	dirty      map[string]struct{}
	classLocks map[string]*sync.Mutex

	collectCh chan model.Sample
	// closed when the collector stops
	stopCh     chan struct{}
	shutdownCh chan<- error

	cancel func()
}

func (m *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if err := m.bulkLoad(ctx); err != nil {
		cancel()
		return fmt.Errorf("can not start trainer manager: %w", err)
	}

	go m.collector(ctx)
	go m.dbTxExecutor.flusher(ctx, m.stopCh)
	if m.opts.rebuildDBTime > 0 {
		go m.dbScheduler.schedule(ctx)
	}
	if m.opts.retrainInterval > 0 {
		go m.retrainer(ctx)
	}
	return nil
}

func (m *manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// bulkLoad loads the stored profiles and marks the classes that have
// untrained samples.
func (m *manager) bulkLoad(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	profiles, err := m.opts.deps.fetchProfiles(ctx)
	if err != nil {
		return fmt.Errorf("error fetching profiles: %w", err)
	}
	for _, p := range profiles {
		e, err := m.newEntry(p)
		if err != nil {
			return fmt.Errorf("profile %s: %w", p.Class, err)
		}
		m.mtx.Lock()
		m.profiles[p.Class] = e
		m.mtx.Unlock()
	}

	fresh, err := m.opts.deps.fetchSamples(ctx, func(s model.Sample) bool { return s.IsNew() })
	if err != nil {
		return fmt.Errorf("error fetching new samples: %w", err)
	}
	for _, s := range fresh {
		m.markDirty(s.Class)
	}

	logger.Infof("loaded %d profiles, %d untrained samples", len(profiles), len(fresh))
	return nil
}

func (m *manager) newEntry(p profileModel.Profile) (*entry, error) {
	bg, err := icm.BuildIndependent(p.Model.Config(), m.opts.backgroundGC)
	if err != nil {
		return nil, fmt.Errorf("background model: %w", err)
	}
	return &entry{profile: p, background: bg}, nil
}

func (m *manager) validate(s model.Sample) error {
	if s.Class == "" {
		return fmt.Errorf("%w: sample has no class", icm.ErrInvalidSequence)
	}
	if s.Weight < 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
		return fmt.Errorf("%w: weight %v must be finite and non-negative", icm.ErrInvalidSequence, s.Weight)
	}
	if len(s.Seq) < m.opts.modelCfg.ModelLen {
		return fmt.Errorf("%w: length %d is shorter than model len %d",
			icm.ErrInvalidSequence, len(s.Seq), m.opts.modelCfg.ModelLen)
	}
	return m.opts.modelCfg.Alphabet.Validate(s.Seq)
}

// Collect validates the samples and queues them for storage. Either every
// sample is queued or none.
func (m *manager) Collect(data ...model.Sample) error {
	for i := range data {
		if err := m.validate(data[i]); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	select {
	case <-m.stopCh:
		return ErrShuttingDown
	default:
	}
	for i := range data {
		select {
		case m.collectCh <- data[i]:
		case <-m.stopCh:
			return ErrShuttingDown
		}
	}
	return nil
}

func (m *manager) collector(ctx context.Context) {
	defer close(m.stopCh)
	for {
		select {
		case in := <-m.collectCh:
			m.store(ctx, in)
		case <-ctx.Done():
			// keep what is already queued
			for {
				select {
				case in := <-m.collectCh:
					m.store(ctx, in)
				default:
					return
				}
			}
		}
	}
}

func (m *manager) store(ctx context.Context, s model.Sample) {
	m.dbTxExecutor.append(ctx, s)
	m.markDirty(s.Class)
	metric.Count(ctx, metric.SamplesCollected, s.Class, 1)
}

func (m *manager) markDirty(class string) {
	m.mtx.Lock()
	m.dirty[class] = struct{}{}
	m.mtx.Unlock()
}

func (m *manager) dirtyClasses() []string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	classes := make([]string, 0, len(m.dirty))
	for class := range m.dirty {
		classes = append(classes, class)
	}
	return classes
}

func (m *manager) classLock(class string) *sync.Mutex {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	l, ok := m.classLocks[class]
	if !ok {
		l = &sync.Mutex{}
		m.classLocks[class] = l
	}
	return l
}

// Train trains a model from every stored sample of class, stores it as the
// class profile and marks the samples as trained.
func (m *manager) Train(ctx context.Context, class string) (*profileModel.Profile, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	result := "error"
	defer func() {
		metric.Since(ctx, metric.TrainLatency, class, result, start)
	}()

	lock := m.classLock(class)
	lock.Lock()
	defer lock.Unlock()

	m.mtx.Lock()
	delete(m.dirty, class)
	m.mtx.Unlock()

	if err := m.dbTxExecutor.flush(ctx); err != nil {
		m.markDirty(class)
		return nil, err
	}
	samples, err := m.opts.deps.fetchSamplesByClass(class, nil)
	if err != nil {
		m.markDirty(class)
		return nil, fmt.Errorf("unable find samples by class %s: %w", class, err)
	}
	if len(samples) < m.opts.minSamples {
		return nil, fmt.Errorf("%w: class %s has %d samples, %d needed",
			ErrNotEnoughSamples, class, len(samples), m.opts.minSamples)
	}

	tr, err := icm.NewTrainer(m.opts.modelCfg)
	if err != nil {
		return nil, fmt.Errorf("create trainer: %w", err)
	}
	examples := make([]icm.Example, len(samples))
	for i := range samples {
		examples[i] = samples[i].Example()
	}
	if err := tr.Accumulate(examples...); err != nil {
		return nil, fmt.Errorf("accumulate samples of %s: %w", class, err)
	}
	icmModel, err := tr.Finalize()
	if err != nil {
		return nil, fmt.Errorf("finalize model of %s: %w", class, err)
	}

	profile := profileModel.NewProfile(class, len(samples), icmModel)
	e, err := m.newEntry(profile)
	if err != nil {
		return nil, err
	}
	if err := m.opts.deps.storeProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("store profile of %s: %w", class, err)
	}

	var trained []model.Sample
	for _, s := range samples {
		if s.IsNew() {
			s.Status = model.StatusTrained
			trained = append(trained, s)
		}
	}
	// samples pruned since the fetch stay deleted
	if _, err := m.opts.deps.updateSamples(ctx, trained); err != nil {
		logger.Errorf("unable mark samples of %s trained: %v", class, err)
	}

	m.mtx.Lock()
	m.profiles[class] = e
	m.mtx.Unlock()

	if m.opts.notifier != nil {
		m.opts.notifier.NotifyTrained(profile)
	}
	result = "ok"
	logger.Infof("trained class %s on %d samples", class, len(samples))
	return &profile, nil
}

func (m *manager) retrainer(ctx context.Context) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(m.opts.retrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.retrainDirty(ctx); err != nil {
				logger.Errorf("unable retrain: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// retrainDirty trains every class with samples collected since its last
// training.
func (m *manager) retrainDirty(ctx context.Context) error {
	pool := rworker.New(m.opts.maxConcurrentTrain)
	for _, class := range m.dirtyClasses() {
		pool.Job(func() error {
			if _, err := m.Train(ctx, class); err != nil && !errors.Is(err, ErrNotEnoughSamples) {
				return fmt.Errorf("train %s: %w", class, err)
			}
			return nil
		})
	}
	return pool.Wait()
}

func (m *manager) entry(class string) (*entry, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	e, ok := m.profiles[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	return e, nil
}

// Score scores seq against the model of class, frame is the frame of the
// first symbol.
func (m *manager) Score(ctx context.Context, class, seq string, frame int, cumulative bool) (*Score, error) {
	e, err := m.entry(class)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer metric.Since(ctx, metric.ScoreLatency, class, "", start)
	return e.score(class, seq, frame, cumulative)
}

func (e *entry) score(class, seq string, frame int, cumulative bool) (*Score, error) {
	res := &Score{Class: class}
	if cumulative {
		scores, err := e.profile.Model.CumulativeScore(seq, frame)
		if err != nil {
			return nil, err
		}
		res.Cumulative = make([]float64, 0, len(seq))
		for _, s := range scores {
			res.Cumulative = append(res.Cumulative, s)
			res.LogProb = s
		}
	} else {
		lp, err := e.profile.Model.ScoreString(seq, frame)
		if err != nil {
			return nil, err
		}
		res.LogProb = lp
	}
	bg, err := e.background.ScoreString(seq, frame)
	if err != nil {
		return nil, err
	}
	res.LogOdds = res.LogProb - bg
	return res, nil
}

// Classify scores seq against every trained class and returns the top
// classes by log-probability, best first. top <= 0 returns every class.
func (m *manager) Classify(ctx context.Context, seq string, frame, top int) ([]Score, error) {
	m.mtx.RLock()
	entries := make(map[string]*entry, len(m.profiles))
	for class, e := range m.profiles {
		entries[class] = e
	}
	m.mtx.RUnlock()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no trained classes", ErrUnknownClass)
	}

	opts := []pqueue.Option{pqueue.WithOrderDesc()}
	if top > 0 {
		opts = append(opts, pqueue.WithCap(uint(top)))
	}
	q := pqueue.New[Score](opts...)
	mtx := sync.Mutex{}

	g, gctx := errgroup.WithContext(ctx)
	for class, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			s, err := e.score(class, seq, frame, false)
			if err != nil {
				return fmt.Errorf("score %s: %w", class, err)
			}
			metric.Since(ctx, metric.ScoreLatency, class, "", start)
			mtx.Lock()
			q.Push(*s, s.LogProb)
			mtx.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := q.PopAll()
	ranked := make([]Score, len(items))
	for i, it := range items {
		ranked[i] = it.Value
	}
	return ranked, nil
}
