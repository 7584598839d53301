package phrase

import (
	"math/rand/v2"

	"github.com/evofit/evofit/internal/evolve"
)

// Default activation probabilities for the built-in strategy cascade.
const (
	DefaultMutationRate  = 0.3
	DefaultCrossoverRate = 0.8
)

// Crossover mates two distinct weighted parents, inheriting each byte from
// either parent with equal probability.
type Crossover struct {
	Probability float64
}

func (c *Crossover) Threshold() float64 {
	return c.Probability
}

func (c *Crossover) Mutate(parents []*Text, weights []float64, total float64, offspring *Text, rng *rand.Rand) error {
	first, second := evolve.PickParents(weights, total, rng)
	father := parents[first].Bytes()
	mother := parents[second].Bytes()
	junior := offspring.Bytes()

	for i := range junior {
		if rng.IntN(2) == 0 {
			junior[i] = father[i]
		} else {
			junior[i] = mother[i]
		}
	}
	return nil
}

// PointMutation copies one weighted parent and replaces a single random
// position with a random letter.
type PointMutation struct {
	Probability float64
}

func (m *PointMutation) Threshold() float64 {
	return m.Probability
}

func (m *PointMutation) Mutate(parents []*Text, weights []float64, total float64, offspring *Text, rng *rand.Rand) error {
	parent := parents[evolve.PickParent(weights, total, rng)]
	junior := offspring.Bytes()
	copy(junior, parent.Bytes())
	junior[rng.IntN(len(junior))] = RandomLetter(rng)
	return nil
}

// DefaultStrategies returns the built-in cascade: point mutation first, then
// crossover as the dominant fallback.
func DefaultStrategies() []evolve.Strategy[*Text] {
	return []evolve.Strategy[*Text]{
		&PointMutation{Probability: DefaultMutationRate},
		&Crossover{Probability: DefaultCrossoverRate},
	}
}
