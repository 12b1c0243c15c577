package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowMonotonicAndNowWallAdvance(t *testing.T) {
	start := NowMonotonic()
	wallStart := NowWall()
	time.Sleep(5 * time.Millisecond)
	assert.True(t, NowMonotonic().After(start))
	assert.True(t, NowWall().After(wallStart))
}

func TestWatchdogFiresOnExpire(t *testing.T) {
	fired := make(chan struct{})
	StartWatchdog(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire before the timeout")
	}
}

func TestWatchdogCancelPreventsFire(t *testing.T) {
	var fired int32
	wd := StartWatchdog(30*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	wd.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestWatchdogCancelAfterFireIsSafe(t *testing.T) {
	fired := make(chan struct{})
	wd := StartWatchdog(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
	assert.NotPanics(t, func() { wd.Cancel() })
}

func TestSignalClockOnEscalateAndOnHangupAreWired(t *testing.T) {
	// InstallTerminationHandler/OnEscalate/OnHangup install real OS signal
	// handlers shared process-wide; raising signals across a test binary
	// is flaky by nature. This exercises the wiring surface without
	// depending on delivery of an actual OS signal.
	clock := NewSignalClock()
	var escalated int32
	clock.OnEscalate(func() { atomic.StoreInt32(&escalated, 1) })
	assert.NotNil(t, clock.escalate)

	var hungup int32
	clock.OnHangup(func() { atomic.StoreInt32(&hungup, 1) })

	clock.escalate()
	assert.Equal(t, int32(1), atomic.LoadInt32(&escalated))
}
