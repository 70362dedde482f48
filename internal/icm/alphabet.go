package icm

import (
	"fmt"
	"strings"
)

const (
	symWildcard int8 = -1
	symInvalid  int8 = -2

	maxAlphabetSize = 64
)

// DNA is the nucleotide alphabet with the IUPAC ambiguity codes as wildcards.
var DNA = MustNewAlphabet("dna", "acgt", "nrykmswbdhv")

// Alphabet maps sequence characters to symbol indexes. Lookups are
// case-insensitive. Wildcard characters are accepted in sequences but carry
// no symbol: training skips windows containing them and scoring treats them
// as unknown context.
type Alphabet struct {
	name      string
	symbols   string
	wildcards string
	index     [256]int8
}

// NewAlphabet returns an alphabet over the given ASCII symbols.
func NewAlphabet(name, symbols, wildcards string) (*Alphabet, error) {
	symbols = strings.ToLower(symbols)
	wildcards = strings.ToLower(wildcards)
	if len(symbols) < 2 || len(symbols) > maxAlphabetSize {
		return nil, fmt.Errorf("%w: alphabet %q must have 2..%d symbols, got %d",
			ErrConfiguration, name, maxAlphabetSize, len(symbols))
	}

	a := &Alphabet{name: name, symbols: symbols, wildcards: wildcards}
	for i := range a.index {
		a.index[i] = symInvalid
	}
	set := func(c byte, v int8) error {
		if c >= 0x80 {
			return fmt.Errorf("%w: alphabet %q: non-ASCII character %q", ErrConfiguration, name, c)
		}
		if a.index[c] != symInvalid {
			return fmt.Errorf("%w: alphabet %q: duplicate character %q", ErrConfiguration, name, c)
		}
		a.index[c] = v
		if u := upper(c); u != c {
			a.index[u] = v
		}
		return nil
	}
	for i := 0; i < len(symbols); i++ {
		if err := set(symbols[i], int8(i)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < len(wildcards); i++ {
		if err := set(wildcards[i], symWildcard); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// MustNewAlphabet is like NewAlphabet but panics on error.
func MustNewAlphabet(name, symbols, wildcards string) *Alphabet {
	a, err := NewAlphabet(name, symbols, wildcards)
	if err != nil {
		panic(err)
	}
	return a
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func (a *Alphabet) Name() string { return a.name }

// Size is the number of symbols, the branching factor of the context tree.
func (a *Alphabet) Size() int { return len(a.symbols) }

func (a *Alphabet) Symbols() string { return a.symbols }

func (a *Alphabet) Wildcards() string { return a.wildcards }

func (a *Alphabet) Symbol(i int) byte { return a.symbols[i] }

// Index returns the symbol index of c, or -1 with ok == true for a wildcard.
func (a *Alphabet) Index(c byte) (idx int, ok bool) {
	v := a.index[c]
	if v == symInvalid {
		return 0, false
	}
	return int(v), true
}

// encode converts s to symbol codes, wildcards become symWildcard.
func (a *Alphabet) encode(s string) ([]int8, error) {
	codes := make([]int8, len(s))
	for i := 0; i < len(s); i++ {
		v := a.index[s[i]]
		if v == symInvalid {
			return nil, fmt.Errorf("%w: character %q at position %d is not in alphabet %s",
				ErrInvalidSequence, s[i], i, a.name)
		}
		codes[i] = v
	}
	return codes, nil
}

// Validate reports whether every character of s belongs to the alphabet.
func (a *Alphabet) Validate(s string) error {
	_, err := a.encode(s)
	return err
}
