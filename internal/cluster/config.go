package cluster

import (
	"fmt"

	"github.com/go-scimm/scimm/internal/icm"
)

const (
	DefaultMaxIter           = 200
	DefaultLikeDecreaseLimit = 5
	DefaultReassignFrac      = 0.0005
	DefaultSoftAssignMin     = 0.01
)

// Config is the environment configuration of batch clustering.
type Config struct {
	ReadsFile string `envconfig:"SCIMM_READS_FILE" required:"true"`
	OutputDir string `envconfig:"SCIMM_OUTPUT_DIR" default:"."`
	MatesFile string `envconfig:"SCIMM_MATES_FILE"`
	// read id and cluster number per line
	ConstraintsFile string `envconfig:"SCIMM_CONSTRAINTS_FILE"`
	K               int    `envconfig:"SCIMM_CLUSTERS" required:"true"`
	// expectation maximization with soft assignments
	Soft bool `envconfig:"SCIMM_EM" default:"false"`
	// 0 seeds from the clock
	Seed        uint32 `envconfig:"SCIMM_SEED" default:"0"`
	Parallel    int    `envconfig:"SCIMM_PARALLEL" default:"1"`
	MaxIter     int    `envconfig:"SCIMM_MAX_ITER" default:"200"`
	ModelLen    int    `envconfig:"SCIMM_MODEL_LEN" default:"12"`
	ModelDepth  int    `envconfig:"SCIMM_MODEL_DEPTH" default:"7"`
	Periodicity int    `envconfig:"SCIMM_PERIODICITY" default:"1"`
}

func (c *Config) ModelConfig() icm.Config {
	return icm.Config{
		ModelLen:    c.ModelLen,
		ModelDepth:  c.ModelDepth,
		Periodicity: c.Periodicity,
		Alphabet:    icm.DNA,
	}
}

// Options converts the configuration into clustering options.
func (c *Config) Options() []Option {
	return []Option{
		WithModelConfig(c.ModelConfig()),
		WithSoftAssign(c.Soft),
		WithSeed(c.Seed),
		WithParallel(c.Parallel),
		WithMaxIter(c.MaxIter),
	}
}

type Option func(*Clusterer)

func WithModelConfig(cfg icm.Config) Option {
	return func(c *Clusterer) {
		c.modelCfg = cfg
	}
}

// WithSoftAssign trains every model on all reads weighted by their
// posterior instead of on the reads assigned to it.
func WithSoftAssign(soft bool) Option {
	return func(c *Clusterer) {
		c.soft = soft
	}
}

func WithSeed(seed uint32) Option {
	return func(c *Clusterer) {
		c.seed = seed
	}
}

// WithParallel limits the number of models trained or scored at once.
func WithParallel(n int) Option {
	return func(c *Clusterer) {
		c.parallel = n
	}
}

func WithMaxIter(n int) Option {
	return func(c *Clusterer) {
		c.maxIter = n
	}
}

// WithMates keeps paired reads in the same cluster and scores them
// together. Pairs are given by read id in both directions or one.
func WithMates(mates map[string]string) Option {
	return func(c *Clusterer) {
		c.mates = mates
	}
}

// WithConstraints pins reads to clusters by read id.
func WithConstraints(constraints map[string]int) Option {
	return func(c *Clusterer) {
		c.constraints = constraints
	}
}

// WithProgress is called after every iteration.
func WithProgress(fn func(Iteration)) Option {
	return func(c *Clusterer) {
		c.progress = fn
	}
}

func (c *Clusterer) validate() error {
	if c.k < 1 {
		return fmt.Errorf("%w: cluster count %d must be positive", icm.ErrConfiguration, c.k)
	}
	if c.maxIter < 1 {
		return fmt.Errorf("%w: max iterations %d must be positive", icm.ErrConfiguration, c.maxIter)
	}
	return c.modelCfg.Validate()
}
