package gate

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/jdziat/firmware-jobs/pkg/security"
)

// Gate is a counting admission gate with reject-on-full semantics.
type Gate struct {
	sem         *semaphore.Weighted
	capacity    int64
	outstanding atomic.Int64
}

// New creates a gate with the given capacity.
// Capacity is clamped to [1, security.MaxWorkers].
func New(capacity int) *Gate {
	c := int64(security.ClampWorkers(capacity))
	return &Gate{
		sem:      semaphore.NewWeighted(c),
		capacity: c,
	}
}

// TryAcquire takes a slot if one is free. It never blocks.
func (g *Gate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.outstanding.Add(1)
	return true
}

// Release returns a slot taken by TryAcquire.
// Releasing more slots than were acquired panics.
func (g *Gate) Release() {
	g.sem.Release(1)
	g.outstanding.Add(-1)
}

// Outstanding returns the number of slots currently held.
func (g *Gate) Outstanding() int64 {
	return g.outstanding.Load()
}

// Capacity returns the gate capacity.
func (g *Gate) Capacity() int64 {
	return g.capacity
}
