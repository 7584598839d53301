package evolve

// rank restores ascending order over the score array, permuting the handle
// array in lockstep on every exchange. Not stable: equal scores may reorder
// handles arbitrarily, which is acceptable since selection depends only on
// score value and rank.
func (e *Engine[C]) rank() {
	if e.count > 1 {
		e.qsort(0, e.count-1)
	}
}

// qsort is an in-place partition-exchange sort over [lo, hi]. The smaller
// partition is handled by the recursive call and the larger by the loop,
// bounding auxiliary call depth to O(log n).
func (e *Engine[C]) qsort(lo, hi int) {
	for lo < hi {
		p := e.partition(lo, hi)
		if p-lo < hi-(p+1) {
			e.qsort(lo, p)
			lo = p + 1
		} else {
			e.qsort(p+1, hi)
			hi = p
		}
	}
}

// partition splits [lo, hi] around the score at lo, swapping score and
// handle together to preserve the positional pairing.
func (e *Engine[C]) partition(lo, hi int) int {
	pivot := e.scores[lo]
	i := lo - 1
	j := hi + 1

	for {
		for i++; e.scores[i] < pivot; i++ {
		}
		for j--; e.scores[j] > pivot; j-- {
		}
		if i >= j {
			return j
		}
		e.scores[i], e.scores[j] = e.scores[j], e.scores[i]
		e.pool[i], e.pool[j] = e.pool[j], e.pool[i]
	}
}
