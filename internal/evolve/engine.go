package evolve

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// Engine drives the evolve/rank/recombine cycle over a fixed-capacity
// candidate pool. The handle, score, and elite-weight arrays are allocated
// once at construction and never resized; an Engine may be reused for
// multiple runs.
type Engine[C any] struct {
	pool    []C
	scores  []float64
	weights []float64
	count   int
}

// RunConfig holds the per-run parameters.
type RunConfig struct {
	// MaxGenerations is the generation budget. Zero is valid: the initial
	// pool is still evaluated and ranked, but no recombination happens.
	MaxGenerations int

	// MinError stops the run early once the best score reaches or drops
	// below it.
	MinError float64

	// EliteFraction is the fraction of the pool preserved each generation,
	// in [0, 1]. The resulting elite must hold at least two members so
	// that two distinct parents can be drawn.
	EliteFraction float64

	// Seed drives all random draws. Each recombination slot derives its
	// own generator from Seed, so runs are reproducible regardless of
	// parallelism.
	Seed uint64

	// Parallelism bounds concurrent evaluation and recombination calls.
	// Zero or negative selects GOMAXPROCS.
	Parallelism int
}

// Result summarizes a completed run.
type Result struct {
	// Generations is the number of recombination cycles executed.
	Generations int

	// BestScore is the minimum score of the final ranked pool.
	BestScore float64

	// Count is the number of clones written to the result buffer.
	Count int
}

// New allocates an engine with a fixed population capacity.
func New[C any](capacity int) (*Engine[C], error) {
	if capacity <= 0 {
		return nil, &ConfigError{Field: "capacity", Reason: "must be positive"}
	}
	return &Engine[C]{
		pool:    make([]C, capacity),
		scores:  make([]float64, capacity),
		weights: make([]float64, capacity),
		count:   capacity,
	}, nil
}

// Capacity returns the fixed population size.
func (e *Engine[C]) Capacity() int {
	return e.count
}

// Run executes the optimization until the generation budget is exhausted or
// the best score reaches cfg.MinError. The generation satisfying the
// threshold is retained and its elite is used for extraction.
//
// Up to min(eliteCount, len(out)) clones of the top-ranked elite are written
// into out in ascending-score order; slots beyond Result.Count are left
// untouched. The observer may be nil. Population resources are released on
// every exit path, including collaborator failure and context cancellation.
func (e *Engine[C]) Run(ctx context.Context, cfg RunConfig, env Environment[C], observer Observer[C], strategies []Strategy[C], out []C) (Result, error) {
	eliteCount, err := cfg.validate(e.count, len(strategies))
	if err != nil {
		return Result{}, err
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	reserved, err := env.Reserve(e.count)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reserve population: %w", err)
	}
	if len(reserved) != e.count {
		env.Release(reserved)
		return Result{}, fmt.Errorf("environment reserved %d candidates, want %d", len(reserved), e.count)
	}
	copy(e.pool, reserved)
	defer env.Release(e.pool)

	generation := 0
	var best float64
	for {
		select {
		case <-ctx.Done():
			return Result{Generations: generation, BestScore: best}, ctx.Err()
		default:
		}

		if err := e.evaluate(env, parallelism); err != nil {
			return Result{Generations: generation}, err
		}
		e.rank()
		best = e.scores[0]

		if generation >= cfg.MaxGenerations || best <= cfg.MinError {
			break
		}

		total := e.eliteWeights(eliteCount)
		if observer != nil {
			observer.Visit(generation, e.pool[:eliteCount], e.scores[:eliteCount])
		}
		if err := e.recombine(strategies, eliteCount, total, cfg.Seed, generation, parallelism); err != nil {
			return Result{Generations: generation, BestScore: best}, err
		}
		generation++
	}

	stored := min(eliteCount, len(out))
	for i := 0; i < stored; i++ {
		clone, err := env.Clone(e.pool[i])
		if err != nil {
			return Result{Generations: generation, BestScore: best, Count: i},
				fmt.Errorf("failed to clone result %d: %w", i, err)
		}
		out[i] = clone
	}

	return Result{Generations: generation, BestScore: best, Count: stored}, nil
}

// evaluate scores the whole pool, fanning out across workers. No ordering is
// guaranteed among sibling calls; each worker writes only its own score slot.
func (e *Engine[C]) evaluate(env Environment[C], parallelism int) error {
	p := pool.New().WithErrors().WithMaxGoroutines(parallelism)
	for i := range e.pool {
		p.Go(func() error {
			score, err := env.Evaluate(e.pool[i])
			if err != nil {
				return fmt.Errorf("failed to evaluate candidate %d: %w", i, err)
			}
			e.scores[i] = score
			return nil
		})
	}
	return p.Wait()
}

// eliteWeights fills the weight buffer from the elite's scores and returns
// the total weight. Ranks are mirrored so the best member carries the largest
// weight: with lower-is-better scores, the raw score of the worst elite
// member becomes the weight of the best one.
func (e *Engine[C]) eliteWeights(eliteCount int) float64 {
	total := 0.0
	for i := 0; i < eliteCount; i++ {
		e.weights[i] = e.scores[eliteCount-1-i]
		total += e.scores[i]
	}
	return total
}

// recombine overwrites every non-elite slot with one offspring. Each worker
// owns exactly one slot and derives its own generator from the run seed, so
// draws are race-free and reproducible.
func (e *Engine[C]) recombine(strategies []Strategy[C], eliteCount int, total float64, seed uint64, generation int, parallelism int) error {
	parents := e.pool[:eliteCount]
	weights := e.weights[:eliteCount]

	p := pool.New().WithErrors().WithMaxGoroutines(parallelism)
	for slot := eliteCount; slot < e.count; slot++ {
		p.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, uint64(generation)*uint64(e.count)+uint64(slot)))
			strategy := pickStrategy(strategies, rng)
			if err := strategy.Mutate(parents, weights, total, e.pool[slot], rng); err != nil {
				return fmt.Errorf("failed to recombine slot %d: %w", slot, err)
			}
			return nil
		})
	}
	return p.Wait()
}

// validate rejects bad run parameters before any candidate is reserved.
func (cfg RunConfig) validate(capacity, strategyCount int) (int, error) {
	if cfg.MaxGenerations < 0 {
		return 0, &ConfigError{Field: "maxGenerations", Reason: "cannot be negative"}
	}
	if cfg.EliteFraction < 0 || cfg.EliteFraction > 1 {
		return 0, &ConfigError{Field: "eliteFraction", Reason: "must be in [0, 1]"}
	}
	if strategyCount == 0 {
		return 0, &ConfigError{Field: "strategies", Reason: "cannot be empty"}
	}
	eliteCount := int(float64(capacity) * cfg.EliteFraction)
	if eliteCount < 2 {
		return 0, &ConfigError{
			Field:  "eliteFraction",
			Reason: fmt.Sprintf("yields an elite of %d, need at least 2 for parent selection", eliteCount),
		}
	}
	return eliteCount, nil
}
