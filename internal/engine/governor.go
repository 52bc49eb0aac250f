package engine

import (
	"sync/atomic"
	"time"
)

// Governor states. One-shot: armed resolves to exactly one of fired or
// disarmed, decided by a compare-and-swap so a deadline racing a
// near-simultaneous natural exit can never double-terminate the process
// or produce two terminal results.
const (
	govInert int32 = iota
	govArmed
	govFired
	govDisarmed
)

// governor races process completion against a single one-shot deadline.
// With no timeout requested it stays inert and the process runs unbounded.
type governor struct {
	timeout time.Duration
	state   atomic.Int32
	timer   *time.Timer
}

func newGovernor(timeout time.Duration) *governor {
	return &governor{timeout: timeout}
}

// arm starts the deadline timer. onFire runs at most once, on the timer
// goroutine, if the deadline elapses before disarm.
func (g *governor) arm(onFire func()) {
	if g.timeout <= 0 {
		return
	}
	g.state.Store(govArmed)
	g.timer = time.AfterFunc(g.timeout, func() {
		if g.state.CompareAndSwap(govArmed, govFired) {
			onFire()
		}
	})
}

// disarm cancels the pending deadline on natural process exit. No-op when
// inert or already fired.
func (g *governor) disarm() {
	if g.state.CompareAndSwap(govArmed, govDisarmed) {
		g.timer.Stop()
	}
}

// fired reports whether the deadline won the race.
func (g *governor) fired() bool {
	return g.state.Load() == govFired
}
