// Package random provides uniform samplers on the open interval (0, 1).
package random

import "math/rand/v2"

// Uniform draws values strictly inside (0, 1). Zero is never returned,
// so callers may take logarithms of the result without checking.
type Uniform interface {
	Open() float64
}

// Stream is a seeded PCG stream. It is not safe for concurrent use;
// give each worker its own Stream.
type Stream struct {
	rng *rand.Rand
}

// NewStream creates a stream from a seed and a stream identifier.
func NewStream(seed uint64, stream uint64) *Stream {
	return &Stream{rng: rand.New(rand.NewPCG(seed, stream))}
}

// Open returns a uniform value in (0, 1).
func (s *Stream) Open() float64 {
	for {
		// Float64 is in [0, 1); rejecting 0 leaves (0, 1).
		if u := s.rng.Float64(); u > 0 {
			return u
		}
	}
}

// NewStreams creates n independent streams sharing a seed, one per worker.
func NewStreams(seed uint64, n int) []*Stream {
	streams := make([]*Stream, n)
	for i := range streams {
		streams[i] = NewStream(seed, uint64(i)+1)
	}
	return streams
}

// Sequence replays a fixed list of values, cycling when exhausted.
// Used to drive the model deterministically in tests and tools.
type Sequence struct {
	values []float64
	next   int
}

// NewSequence creates a replaying sampler. Values must lie in (0, 1).
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Open returns the next value of the sequence.
func (s *Sequence) Open() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}
