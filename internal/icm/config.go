package icm

import "fmt"

// Glimmer defaults.
const (
	DefaultModelLen    = 12
	DefaultModelDepth  = 7
	DefaultPeriodicity = 3

	// upper bound of probability table entries a tree may hold
	maxTableEntries = 1 << 27
)

// Config holds the immutable shape of a model.
type Config struct {
	// Number of symbols in a window, the last one is predicted.
	ModelLen int
	// Most levels below the root, i.e. most positions a prediction depends on.
	ModelDepth int
	// Number of sub-models alternating cyclically, e.g. 3 for codon position.
	Periodicity int
	// Symbol set, DNA when nil.
	Alphabet *Alphabet
}

func DefaultConfig() Config {
	return Config{
		ModelLen:    DefaultModelLen,
		ModelDepth:  DefaultModelDepth,
		Periodicity: DefaultPeriodicity,
		Alphabet:    DNA,
	}
}

func (c Config) withDefaults() Config {
	if c.Alphabet == nil {
		c.Alphabet = DNA
	}
	return c
}

// Validate checks the len/depth/periodicity relationship.
func (c Config) Validate() error {
	if c.ModelLen < 1 {
		return fmt.Errorf("%w: model len %d must be positive", ErrConfiguration, c.ModelLen)
	}
	if c.ModelDepth < 0 || c.ModelDepth >= c.ModelLen {
		return fmt.Errorf("%w: model depth %d must be in [0, %d)", ErrConfiguration, c.ModelDepth, c.ModelLen)
	}
	if c.Periodicity < 1 {
		return fmt.Errorf("%w: periodicity %d must be at least 1", ErrConfiguration, c.Periodicity)
	}
	if c.Alphabet == nil {
		return fmt.Errorf("%w: alphabet is not set", ErrConfiguration)
	}
	k := c.Alphabet.Size()
	entries, width := 0, 1
	for l := 0; l <= c.ModelDepth; l++ {
		entries += width * k * c.Periodicity
		if entries > maxTableEntries {
			return fmt.Errorf("%w: depth %d over %d symbols and periodicity %d is too large",
				ErrConfiguration, c.ModelDepth, k, c.Periodicity)
		}
		width *= k
	}
	return nil
}

// NumNodes is the number of tree nodes per frame.
func (c Config) NumNodes() int {
	k := c.withDefaults().Alphabet.Size()
	n, width := 0, 1
	for l := 0; l <= c.ModelDepth; l++ {
		n += width
		width *= k
	}
	return n
}
