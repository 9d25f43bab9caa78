package inference

import "go.uber.org/atomic"

// Slot is the single in-flight permit shared by the sampler and the dispatcher. At most one
// holder exists at a time; callers that fail to acquire it drop their work instead of waiting.
type Slot struct {
	busy atomic.Bool
}

// TryAcquire takes the permit if it is free.
func (s *Slot) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release frees the permit. Releasing a free slot is a no-op.
func (s *Slot) Release() {
	s.busy.Store(false)
}

// InFlight reports whether the permit is currently held.
func (s *Slot) InFlight() bool {
	return s.busy.Load()
}
