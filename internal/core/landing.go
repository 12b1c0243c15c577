package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LandingOutcome is one subsystem's result from the landing pass.
type LandingOutcome struct {
	Name    string
	State   State
	Elapsed time.Duration
	Reason  string
}

// LandingReview is the summary emitted at State level after a landing
// pass (spec §4.7, mirroring the Launch Review per §7).
type LandingReview struct {
	Order           []string // reverse of the launch order actually used
	Outcomes        map[string]LandingOutcome
	Clean           int
	Errored         int
	FinalThreadLeft int
}

func (r LandingReview) String() string {
	return fmt.Sprintf("landing review: clean=%d error=%d final_thread_total=%d order=%v", r.Clean, r.Errored, r.FinalThreadLeft, r.Order)
}

// AnyError reports whether at least one subsystem ended in Error, which
// determines exit code 1 vs 0 (spec §6).
func (r LandingReview) AnyError() bool {
	return r.Errored > 0
}

// LandingSequencer is the Landing Sequencer (C7): it shuts everything down
// in the reverse of the startup order, bounded in time (spec §4.7).
type LandingSequencer struct {
	Registry *Registry
	Bus      *LogBus
	Threads  *ThreadRegistry
	Pending  *PendingResultManager
	Flags    *ProcessFlags

	StopDeadline  time.Duration
	FlushDeadline time.Duration
}

// NewLandingSequencer returns a sequencer using the default 5s per-
// subsystem stop deadline and 2s flush deadline.
func NewLandingSequencer(reg *Registry, bus *LogBus, threads *ThreadRegistry, pending *PendingResultManager, flags *ProcessFlags) *LandingSequencer {
	return &LandingSequencer{
		Registry:      reg,
		Bus:           bus,
		Threads:       threads,
		Pending:       pending,
		Flags:         flags,
		StopDeadline:  DefaultStopDeadline,
		FlushDeadline: DefaultFlushDeadline,
	}
}

// Run tears down every subsystem named in launchOrder, in exact reverse
// of that order — not reverse registration order — per spec §4.7/§8's
// "for all teardowns, the exact reverse [of the topological start order]
// is followed".
func (l *LandingSequencer) Run(ctx context.Context, launchOrder []string) LandingReview {
	l.Flags.SetStopping(true)
	defer l.Flags.SetStopping(false)

	reverse := make([]string, len(launchOrder))
	for i, n := range launchOrder {
		reverse[len(launchOrder)-1-i] = n
	}

	for _, name := range reverse {
		l.Registry.SetShutdownFlag(name, true)
	}

	review := LandingReview{Order: reverse, Outcomes: make(map[string]LandingOutcome, len(reverse))}
	stopDeadline := l.StopDeadline
	if stopDeadline <= 0 {
		stopDeadline = DefaultStopDeadline
	}

	for _, name := range reverse {
		sub, ok := l.Registry.Get(name)
		if !ok {
			continue
		}

		state, _ := l.Registry.State(name)
		if state != StateRunning {
			// Never started, or already in Error/Inactive: nothing to stop.
			continue
		}
		if !l.Registry.CanStop(name) {
			// init never returned Ok: stop must not be invoked (spec §3).
			continue
		}

		_ = l.Registry.SetState(name, StateStopping)
		start := time.Now()

		stopErr := runWithRecover(ctx, stopDeadline, sub.Stop)
		l.Registry.MarkStopAttempted(name)
		if stopErr != nil {
			l.Bus.Log(name, LevelError, "stop returned error: "+stopErr.Error())
		}

		group, _ := l.Registry.Group(name)
		outcome := l.Threads.JoinAll(group, stopDeadline)

		if outcome.AllJoined && !errors.Is(stopErr, ErrDeadlineExceeded) {
			_ = l.Registry.SetState(name, StateInactive)
			review.Outcomes[name] = LandingOutcome{Name: name, State: StateInactive, Elapsed: time.Since(start)}
			review.Clean++
		} else {
			_ = l.Registry.SetState(name, StateError)
			l.Bus.Log(name, LevelAlert, "stop timeout, surviving threads: "+outcome.Summary())
			review.Outcomes[name] = LandingOutcome{
				Name:    name,
				State:   StateError,
				Elapsed: time.Since(start),
				Reason:  outcome.Summary(),
			}
			review.Errored++
		}
	}

	l.Pending.CancelAll()
	l.Bus.Flush(l.flushDeadline())

	total := l.Threads.CountTotal()
	review.FinalThreadLeft = total
	if total != 1 {
		l.Bus.Log("landing", LevelAlert, fmt.Sprintf("thread leak detected: count_total=%d, expected 1", total))
	}

	l.Bus.Log("landing", LevelState, review.String())
	return review
}

func (l *LandingSequencer) flushDeadline() time.Duration {
	if l.FlushDeadline <= 0 {
		return DefaultFlushDeadline
	}
	return l.FlushDeadline
}
