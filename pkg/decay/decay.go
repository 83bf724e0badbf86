// Package decay computes the live weight of a token lock as a pure function
// of chain height. It performs no I/O so a reconciliation pass can evaluate
// every lock against one consistent height snapshot.
package decay

// Curve maps a lock's parameters and the current chain height to its live
// weight and expiry state. Implementations must be deterministic, monotone
// non-increasing in currentHeight, and satisfy the boundary conditions
// weight(createdAtHeight) == initialAmount and weight(h >= targetHeight) == 0.
type Curve interface {
	WeightAt(initialAmount, createdAtHeight, targetHeight, currentHeight uint64) (weight uint64, expired bool)
}

// Linear decays weight in a straight line from initialAmount at creation to
// zero at the target unlock height.
type Linear struct{}

// WeightAt returns floor(initialAmount * remaining / span) clamped to
// [0, initialAmount], and whether the lock is expired at currentHeight.
//
// The product is split as (q*span + r) * remaining to stay within uint64 for
// any initialAmount as long as the lock span fits in 32 bits, which covers
// multi-century lock durations on any real chain.
func (Linear) WeightAt(initialAmount, createdAtHeight, targetHeight, currentHeight uint64) (uint64, bool) {
	if currentHeight >= targetHeight {
		return 0, true
	}
	if targetHeight <= createdAtHeight {
		// Degenerate span. The lock is not yet past its target, so it still
		// carries its full amount.
		return initialAmount, false
	}

	span := targetHeight - createdAtHeight
	remaining := targetHeight - currentHeight
	if remaining >= span {
		// currentHeight at or before creation: no decay yet.
		return initialAmount, false
	}

	q := initialAmount / span
	r := initialAmount % span
	weight := q*remaining + r*remaining/span
	if weight > initialAmount {
		weight = initialAmount
	}
	return weight, false
}
