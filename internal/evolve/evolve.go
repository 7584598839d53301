// Package evolve implements a generational, population-based stochastic
// optimizer. The engine owns a fixed-size pool of opaque candidate handles,
// scores them against a caller-supplied environment, preserves the
// best-scoring elite each generation, and regenerates the remaining slots by
// weighted sampling from the elite through pluggable recombination strategies.
//
// Lower scores denote better candidates. The engine never inspects candidate
// content; creation, evaluation, cloning, and destruction are delegated to
// the Environment.
package evolve

import "math/rand/v2"

// Environment creates, scores, and reclaims candidates on behalf of the
// engine. Evaluate must be safe to call concurrently across distinct
// candidates within one evaluation pass.
type Environment[C any] interface {
	// Reserve constructs exactly count fresh candidates. Called once per
	// run, before the first generation.
	Reserve(count int) ([]C, error)

	// Release reclaims every candidate in the pool. Called exactly once at
	// run end, on every exit path.
	Release(pool []C)

	// Evaluate scores a single candidate. Pure and read-only.
	Evaluate(candidate C) (float64, error)

	// Clone produces an independently owned copy, used only for result
	// extraction. Ownership of the copy transfers to the caller.
	Clone(candidate C) (C, error)
}

// Strategy produces one offspring candidate from the current elite.
// Strategies are tried in caller-supplied order; the first one whose
// Threshold exceeds a uniform draw is applied, and the last strategy in the
// list acts as an unconditional fallback.
type Strategy[C any] interface {
	// Threshold is the activation probability in [0, 1].
	Threshold() float64

	// Mutate overwrites the content of offspring using the elite parents.
	// The weights slice pairs positionally with parents; total is the sum
	// of all weights. Parent sampling should go through PickParent or
	// PickParents. Implementations must not modify the parents.
	Mutate(parents []C, weights []float64, total float64, offspring C, rng *rand.Rand) error
}

// Observer is invoked once per generation on the ranked elite, after
// evaluation and before recombination. Read-only; a nil observer is
// permitted.
type Observer[C any] interface {
	Visit(generation int, elite []C, scores []float64)
}

// ConfigError reports a rejected engine or run configuration. Validation is
// performed before any candidate is reserved, so a ConfigError implies no
// partial run took place.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Reason
}
