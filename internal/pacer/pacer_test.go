package pacer

import (
	"testing"
	"time"

	"github.com/orbitcast/broadcaster/internal/shutdown"
)

func TestPaceSleepsWhenAheadOfSchedule(t *testing.T) {
	t.Parallel()
	latch := shutdown.New()
	p := New(latch)

	start := time.Now()
	p.Pace(30 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed < minDelay {
		t.Errorf("Pace returned too fast: %v", elapsed)
	}
	if elapsed > maxDelay+10*time.Millisecond {
		t.Errorf("Pace slept longer than the ceiling allows: %v", elapsed)
	}
}

func TestPaceCapsAtMaxDelay(t *testing.T) {
	t.Parallel()
	latch := shutdown.New()
	p := New(latch)

	start := time.Now()
	p.Pace(10 * time.Second) // way ahead of schedule
	elapsed := time.Since(start)

	if elapsed > maxDelay+15*time.Millisecond {
		t.Errorf("Pace slept past the ceiling: %v", elapsed)
	}
}

func TestPaceReturnsImmediatelyWhenBehindSchedule(t *testing.T) {
	t.Parallel()
	latch := shutdown.New()
	p := New(latch)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	p.Pace(1 * time.Millisecond) // already behind wall clock
	elapsed := time.Since(start)

	if elapsed > 5*time.Millisecond {
		t.Errorf("Pace should not sleep when behind schedule, slept %v", elapsed)
	}
}

func TestPaceWakesOnShutdown(t *testing.T) {
	t.Parallel()
	latch := shutdown.New()
	p := New(latch)

	done := make(chan struct{})
	go func() {
		p.Pace(time.Second) // would otherwise sleep up to maxDelay
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	latch.Set()

	select {
	case <-done:
	case <-time.After(maxDelay + 100*time.Millisecond):
		t.Fatal("Pace did not wake promptly on shutdown")
	}
}
