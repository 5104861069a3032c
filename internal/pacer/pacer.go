// Package pacer throttles the broadcaster's produce/encode loop so that
// output duration tracks wall-clock time (spec §4.5).
package pacer

import (
	"time"

	"github.com/orbitcast/broadcaster/internal/shutdown"
)

const (
	// minDelay is the floor below which a sleep is not worth taking.
	minDelay = time.Millisecond
	// maxDelay is the ceiling on any single sleep, so one slow encode
	// call can't cause a multi-second stall.
	maxDelay = 50 * time.Millisecond
)

// Pacer sleeps after each encoded frame to keep the encoder's reported
// duration within [0, maxDelay] of elapsed real time.
type Pacer struct {
	latch     *shutdown.Latch
	startTime time.Time
}

// New creates a Pacer whose clock starts now. latch is used for a
// cancellable wait: Set unblocks any in-progress sleep within maxDelay.
func New(latch *shutdown.Latch) *Pacer {
	return &Pacer{latch: latch, startTime: time.Now()}
}

// Pace computes delay = duration - elapsed(real time) and sleeps for
// min(delay, maxDelay) if delay exceeds minDelay. The sleep is a
// cancellable wait against the shutdown latch (spec §4.5, §5).
func (p *Pacer) Pace(duration time.Duration) {
	elapsed := time.Since(p.startTime)
	delay := duration - elapsed
	if delay <= minDelay {
		return
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	p.latch.Wait(delay)
}
