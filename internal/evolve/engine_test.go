package evolve

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scalarCell is a one-dimensional candidate used as the test domain: its
// fitness is the absolute distance to the environment's target value.
type scalarCell struct {
	value float64
}

type scalarEnv struct {
	target     float64
	evalCalls  atomic.Int64
	releases   atomic.Int64
	evalErr    error
	cloneErr   error
	reserveErr error
	shortPool  bool
}

func (e *scalarEnv) Reserve(count int) ([]*scalarCell, error) {
	if e.reserveErr != nil {
		return nil, e.reserveErr
	}
	if e.shortPool {
		count--
	}
	pool := make([]*scalarCell, count)
	for i := range pool {
		pool[i] = &scalarCell{value: float64(i) * 2}
	}
	return pool, nil
}

func (e *scalarEnv) Release(pool []*scalarCell) {
	e.releases.Add(1)
}

func (e *scalarEnv) Evaluate(c *scalarCell) (float64, error) {
	e.evalCalls.Add(1)
	if e.evalErr != nil {
		return 0, e.evalErr
	}
	return math.Abs(c.value - e.target), nil
}

func (e *scalarEnv) Clone(c *scalarCell) (*scalarCell, error) {
	if e.cloneErr != nil {
		return nil, e.cloneErr
	}
	return &scalarCell{value: c.value}, nil
}

// averagingStrategy writes the mean of two distinct weighted parents.
type averagingStrategy struct {
	calls atomic.Int64
}

func (s *averagingStrategy) Threshold() float64 { return 1.0 }

func (s *averagingStrategy) Mutate(parents []*scalarCell, weights []float64, total float64, offspring *scalarCell, rng *rand.Rand) error {
	s.calls.Add(1)
	i, j := PickParents(weights, total, rng)
	offspring.value = (parents[i].value + parents[j].value) / 2
	return nil
}

// scoreRecorder captures the best score of every visited generation.
type scoreRecorder struct {
	best []float64
}

func (r *scoreRecorder) Visit(generation int, elite []*scalarCell, scores []float64) {
	r.best = append(r.best, scores[0])
}

func defaultConfig() RunConfig {
	return RunConfig{
		MaxGenerations: 50,
		MinError:       0.01,
		EliteFraction:  0.25,
		Seed:           42,
	}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := New[*scalarCell](capacity)
		require.Error(t, err)

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "capacity", cfgErr.Field)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name  string
		cfg   RunConfig
		field string
	}{
		{
			name:  "negative generations",
			cfg:   RunConfig{MaxGenerations: -1, EliteFraction: 0.25},
			field: "maxGenerations",
		},
		{
			name:  "elite fraction above one",
			cfg:   RunConfig{EliteFraction: 1.5},
			field: "eliteFraction",
		},
		{
			name:  "negative elite fraction",
			cfg:   RunConfig{EliteFraction: -0.1},
			field: "eliteFraction",
		},
		{
			name:  "elite too small for two parents",
			cfg:   RunConfig{EliteFraction: 0.1}, // floor(8 * 0.1) = 0
			field: "eliteFraction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := New[*scalarCell](8)
			require.NoError(t, err)

			env := &scalarEnv{target: 5}
			strategies := []Strategy[*scalarCell]{&averagingStrategy{}}

			_, err = engine.Run(context.Background(), tt.cfg, env, nil, strategies, nil)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)

			// Fail fast: nothing was reserved, so nothing is released
			assert.Equal(t, int64(0), env.releases.Load())
			assert.Equal(t, int64(0), env.evalCalls.Load())
		})
	}
}

func TestRunRejectsEmptyStrategyList(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5}
	_, err = engine.Run(context.Background(), defaultConfig(), env, nil, nil, nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "strategies", cfgErr.Field)
}

func TestZeroGenerationBudget(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5}
	strategy := &averagingStrategy{}
	out := make([]*scalarCell, 8)

	cfg := defaultConfig()
	cfg.MaxGenerations = 0
	cfg.MinError = 0

	result, err := engine.Run(context.Background(), cfg, env, nil, []Strategy[*scalarCell]{strategy}, out)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Generations)
	// Initial values 0,2,...,14 against target 5: closest is 4 or 6
	assert.Equal(t, 1.0, result.BestScore)
	assert.Equal(t, int64(0), strategy.calls.Load(), "no recombination on a zero budget")
	assert.Equal(t, int64(8), env.evalCalls.Load(), "generation 0 is still evaluated")
	assert.Equal(t, int64(1), env.releases.Load())
}

func TestImmediateConvergence(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5}
	strategy := &averagingStrategy{}

	cfg := defaultConfig()
	cfg.MinError = math.Inf(1)

	result, err := engine.Run(context.Background(), cfg, env, nil, []Strategy[*scalarCell]{strategy}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Generations)
	assert.Equal(t, int64(8), env.evalCalls.Load(), "exactly one evaluation pass")
	assert.Equal(t, int64(0), strategy.calls.Load())
}

func TestBestScoreNonIncreasing(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5}
	recorder := &scoreRecorder{}

	cfg := defaultConfig()
	cfg.MinError = 0 // force a full budget unless an exact hit occurs

	result, err := engine.Run(context.Background(), cfg, env, recorder, []Strategy[*scalarCell]{&averagingStrategy{}}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, recorder.best)
	for i := 1; i < len(recorder.best); i++ {
		assert.LessOrEqual(t, recorder.best[i], recorder.best[i-1],
			"best score worsened between generations %d and %d", i-1, i)
	}
	assert.LessOrEqual(t, result.BestScore, recorder.best[0])
}

func TestEndToEndScenario(t *testing.T) {
	// Capacity 8 with eliteFraction 0.25 gives an elite of 2. The
	// averaging strategy pulls offspring between elite parents, so the
	// run must reach the 0.01 threshold well inside 50 generations.
	baseline, err := New[*scalarCell](8)
	require.NoError(t, err)

	cfg := defaultConfig()
	cfg.MaxGenerations = 0
	initial, err := baseline.Run(context.Background(), cfg, &scalarEnv{target: 5}, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, nil)
	require.NoError(t, err)

	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5}
	out := make([]*scalarCell, 4)

	result, err := engine.Run(context.Background(), defaultConfig(), env, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, out)
	require.NoError(t, err)

	assert.LessOrEqual(t, result.BestScore, initial.BestScore)
	assert.LessOrEqual(t, result.BestScore, 0.01)
	assert.Equal(t, 2, result.Count, "result count is min(eliteCount, buffer size)")
	assert.Less(t, result.Generations, 50)

	// Extracted clones are independent copies in ascending-score order
	require.NotNil(t, out[0])
	require.NotNil(t, out[1])
	assert.LessOrEqual(t, math.Abs(out[0].value-5), math.Abs(out[1].value-5))
	assert.Nil(t, out[2], "slots beyond the written count stay untouched")
}

func TestResultBufferSmallerThanElite(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5}
	out := make([]*scalarCell, 1)

	result, err := engine.Run(context.Background(), defaultConfig(), env, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	require.NotNil(t, out[0])
}

func TestReserveFailure(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5, reserveErr: errors.New("out of slots")}
	_, err = engine.Run(context.Background(), defaultConfig(), env, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "out of slots")
	assert.Equal(t, int64(0), env.releases.Load(), "nothing to release when reserve fails")
}

func TestReserveCountMismatch(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5, shortPool: true}
	_, err = engine.Run(context.Background(), defaultConfig(), env, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "reserved 7 candidates, want 8")
	assert.Equal(t, int64(1), env.releases.Load(), "short pool is still released")
}

func TestEvaluateFailureReleasesPopulation(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5, evalErr: errors.New("sensor offline")}
	_, err = engine.Run(context.Background(), defaultConfig(), env, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "sensor offline")
	assert.Equal(t, int64(1), env.releases.Load())
}

func TestStrategyFailureReleasesPopulation(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5}
	failing := &failingStrategy{err: errors.New("bad genome")}

	cfg := defaultConfig()
	cfg.MinError = 0 // do not converge before recombination happens

	_, err = engine.Run(context.Background(), cfg, env, nil, []Strategy[*scalarCell]{failing}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad genome")
	assert.Equal(t, int64(1), env.releases.Load())
}

func TestCloneFailureReleasesPopulation(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	env := &scalarEnv{target: 5, cloneErr: errors.New("copy rejected")}
	out := make([]*scalarCell, 2)

	_, err = engine.Run(context.Background(), defaultConfig(), env, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, out)
	require.Error(t, err)
	assert.ErrorContains(t, err, "copy rejected")
	assert.Equal(t, int64(1), env.releases.Load())
}

func TestContextCancellation(t *testing.T) {
	engine, err := New[*scalarCell](8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := &scalarEnv{target: 5}
	_, err = engine.Run(ctx, defaultConfig(), env, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), env.evalCalls.Load())
	assert.Equal(t, int64(1), env.releases.Load(), "population released on cancellation")
}

func TestRunIsReproducible(t *testing.T) {
	run := func() Result {
		engine, err := New[*scalarCell](16)
		require.NoError(t, err)

		cfg := defaultConfig()
		cfg.MinError = 0
		cfg.MaxGenerations = 10
		cfg.Parallelism = 4

		result, err := engine.Run(context.Background(), cfg, &scalarEnv{target: 5}, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, nil)
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()
	assert.Equal(t, first, second, "same seed must yield the same run")
}

func TestEliteWeightsMirrorRanks(t *testing.T) {
	engine, err := New[*scalarCell](4)
	require.NoError(t, err)

	copy(engine.scores, []float64{1, 2, 3, 4})
	total := engine.eliteWeights(2)

	assert.Equal(t, 3.0, total)
	assert.Equal(t, 2.0, engine.weights[0], "best rank carries the largest weight")
	assert.Equal(t, 1.0, engine.weights[1])
}

type failingStrategy struct {
	err error
}

func (s *failingStrategy) Threshold() float64 { return 1.0 }

func (s *failingStrategy) Mutate(parents []*scalarCell, weights []float64, total float64, offspring *scalarCell, rng *rand.Rand) error {
	return s.err
}

func BenchmarkRun(b *testing.B) {
	for i := 0; i < b.N; i++ {
		engine, _ := New[*scalarCell](64)
		cfg := RunConfig{
			MaxGenerations: 20,
			MinError:       0,
			EliteFraction:  0.25,
			Seed:           uint64(i),
		}
		if _, err := engine.Run(context.Background(), cfg, &scalarEnv{target: 5}, nil, []Strategy[*scalarCell]{&averagingStrategy{}}, nil); err != nil {
			b.Fatal(err)
		}
	}
}
