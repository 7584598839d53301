package evolve

import "math/rand/v2"

// PickParent draws one elite index by roulette-wheel selection: a uniform
// draw over [0, total) is matched against the cumulative weights in rank
// order, and the first index whose cumulative weight exceeds the draw wins.
// A non-positive total degenerates to a uniform draw.
func PickParent(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	u := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if cumulative > u {
			return i
		}
	}
	return len(weights) - 1
}

// PickParents draws two distinct elite indices. When both draws land on the
// same index, the second is shifted to its neighbor: index+1, or index-1 if
// the index is the last elite position. Distinctness is guaranteed whenever
// the elite holds at least two members.
func PickParents(weights []float64, total float64, rng *rand.Rand) (int, int) {
	first := PickParent(weights, total, rng)
	second := PickParent(weights, total, rng)
	if first == second {
		if second == len(weights)-1 {
			second--
		} else {
			second++
		}
	}
	return first, second
}

// pickStrategy walks the cascade in order, applying the first strategy whose
// threshold exceeds a fresh uniform draw. The last strategy is the
// unconditional fallback, so every slot receives exactly one offspring.
func pickStrategy[C any](strategies []Strategy[C], rng *rand.Rand) Strategy[C] {
	for _, s := range strategies[:len(strategies)-1] {
		if s.Threshold() > rng.Float64() {
			return s
		}
	}
	return strategies[len(strategies)-1]
}
