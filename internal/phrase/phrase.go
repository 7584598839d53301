// Package phrase provides a text-matching optimization domain: candidates
// are fixed-length letter strings evolved toward a target phrase. It serves
// as the built-in workload for the CLI and the job server.
package phrase

import (
	"fmt"
	"math/rand/v2"
)

// Text is one candidate: a fixed-length byte buffer mutated in place by the
// recombination strategies.
type Text struct {
	data []byte
}

// NewText allocates a zeroed candidate of the given length.
func NewText(length int) *Text {
	return &Text{data: make([]byte, length)}
}

// Bytes exposes the underlying buffer for strategies.
func (t *Text) Bytes() []byte {
	return t.data
}

func (t *Text) String() string {
	return string(t.data)
}

// Environment scores candidates by their distance to a target phrase.
// Evaluate is pure and safe for concurrent use; Reserve and Clone are only
// ever called from the engine's single-threaded phases.
type Environment struct {
	target []byte
	rng    *rand.Rand
}

// NewEnvironment creates an environment for the given target phrase. The
// seed drives the random initialization of the starting population.
func NewEnvironment(target string, seed uint64) (*Environment, error) {
	if target == "" {
		return nil, fmt.Errorf("target phrase cannot be empty")
	}
	return &Environment{
		target: []byte(target),
		rng:    rand.New(rand.NewPCG(seed, seed)),
	}, nil
}

// Target returns the goal phrase.
func (e *Environment) Target() string {
	return string(e.target)
}

// Reserve constructs count candidates filled with uniformly random letters.
func (e *Environment) Reserve(count int) ([]*Text, error) {
	pool := make([]*Text, count)
	for i := range pool {
		candidate := NewText(len(e.target))
		for j := range candidate.data {
			candidate.data[j] = RandomLetter(e.rng)
		}
		pool[i] = candidate
	}
	return pool, nil
}

// Release reclaims the pool. Candidate memory is garbage collected, so this
// only drops the handles.
func (e *Environment) Release(pool []*Text) {
	for i := range pool {
		pool[i] = nil
	}
}

// Evaluate returns the mean absolute byte distance to the target. Zero means
// an exact match; lower is better.
func (e *Environment) Evaluate(candidate *Text) (float64, error) {
	if len(candidate.data) != len(e.target) {
		return 0, fmt.Errorf("candidate length %d does not match target length %d", len(candidate.data), len(e.target))
	}
	distance := 0
	for i, b := range candidate.data {
		d := int(b) - int(e.target[i])
		if d < 0 {
			d = -d
		}
		distance += d
	}
	return float64(distance) / float64(len(e.target)), nil
}

// Clone produces an independently owned copy of the candidate.
func (e *Environment) Clone(candidate *Text) (*Text, error) {
	clone := NewText(len(candidate.data))
	copy(clone.data, candidate.data)
	return clone, nil
}

// RandomLetter draws one letter, upper or lower case with equal probability.
func RandomLetter(rng *rand.Rand) byte {
	if rng.IntN(2) == 0 {
		return byte('A' + rng.IntN(26))
	}
	return byte('a' + rng.IntN(26))
}
