package core

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// SignalClock is the Signal/Clock Surface (C8): it isolates the rest of
// the core from OS signal details and from wall-clock time (spec §4.8).
// Grounded on infrastructure/middleware/shutdown.go's ListenForSignals
// (signal.Notify on SIGINT/SIGTERM/SIGQUIT then a single Shutdown call)
// and infrastructure/service/runner.go's signal-channel-blocking pattern.
type SignalClock struct {
	sigCh    chan os.Signal
	hupCh    chan os.Signal
	once     sync.Once
	onTerm   func()
	escalate func()
}

// NewSignalClock returns a clock with no handlers installed yet.
func NewSignalClock() *SignalClock {
	return &SignalClock{
		sigCh: make(chan os.Signal, 2),
		hupCh: make(chan os.Signal, 1),
	}
}

// NowMonotonic returns a monotonic instant suitable for deadline math;
// time.Now() in Go already carries a monotonic reading alongside the wall
// clock, so subtracting two time.Time values is unaffected by wall-clock
// adjustments as long as both come from time.Now().
func NowMonotonic() time.Time {
	return time.Now()
}

// NowWall returns wall-clock time, used only for log timestamps.
func NowWall() time.Time {
	return time.Now()
}

// InstallTerminationHandler invokes callback on the first SIGTERM/SIGINT.
// A second termination signal arriving while callback is still running
// triggers escalate instead of waiting for callback to return, per spec
// §4.8/§8 boundary behavior "a second termination signal during landing
// triggers forced exit within one scheduler tick".
func (c *SignalClock) InstallTerminationHandler(callback func()) {
	c.onTerm = callback
	signal.Notify(c.sigCh, syscall.SIGTERM, syscall.SIGINT)
	signal.Notify(c.hupCh, syscall.SIGHUP)

	go func() {
		first := true
		for range c.sigCh {
			if first {
				first = false
				// callback (typically a full landing run) must not block
				// this loop, or a second signal arriving mid-landing would
				// sit buffered in sigCh instead of escalating immediately.
				go c.once.Do(func() {
					if c.onTerm != nil {
						c.onTerm()
					}
				})
				continue
			}
			if c.escalate != nil {
				c.escalate()
			}
		}
	}()
}

// OnEscalate registers the callback invoked when a second termination
// signal arrives while landing is in progress.
func (c *SignalClock) OnEscalate(escalate func()) {
	c.escalate = escalate
}

// OnHangup registers a callback for SIGHUP (log-rotation signal, spec §6).
func (c *SignalClock) OnHangup(callback func()) {
	go func() {
		for range c.hupCh {
			callback()
		}
	}()
}

// Watchdog is a one-shot timer that force-exits the process if its
// deadline elapses before Cancel is called.
type Watchdog struct {
	timer *time.Timer
}

// StartWatchdog arms a one-shot timer invoking onExpire after deadline,
// unless Cancel is called first.
func StartWatchdog(deadline time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{timer: time.AfterFunc(deadline, onExpire)}
}

// Cancel disarms the watchdog. Safe to call after it has already fired.
func (w *Watchdog) Cancel() {
	w.timer.Stop()
}
