package icm

import "errors"

var (
	// ErrConfiguration is returned for an invalid len/depth/periodicity/alphabet combination.
	ErrConfiguration = errors.New("icm: invalid configuration")
	// ErrInvalidSequence is returned for a training example or query that cannot be used.
	ErrInvalidSequence = errors.New("icm: invalid sequence")
	// ErrOutOfRange is returned when a frame, level, node id or window length is out of bounds.
	ErrOutOfRange = errors.New("icm: out of range")
	// ErrInvalidState is returned when an operation does not fit the lifecycle phase.
	ErrInvalidState = errors.New("icm: invalid state")
)
