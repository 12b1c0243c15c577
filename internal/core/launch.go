package core

import (
	"context"
	"fmt"
	"time"
)

// Default deadlines, chosen for concreteness per spec §9 Open Questions
// (the source document does not fix them).
const (
	DefaultInitDeadline    = 10 * time.Second
	DefaultStopDeadline    = 5 * time.Second
	DefaultLandingDeadline = 30 * time.Second
	DefaultFlushDeadline   = 2 * time.Second
)

// LaunchOutcome is one subsystem's result from a single launch pass.
type LaunchOutcome struct {
	Name    string
	State   State
	Reason  string
	Started time.Time
}

// LaunchReview is the summary emitted at State level after a launch pass
// (spec §4.6 step 5).
type LaunchReview struct {
	Order    []string
	Outcomes map[string]LaunchOutcome
	Running  int
	Errored  int
	Inactive int
}

// String renders a compact human-readable summary line.
func (r LaunchReview) String() string {
	return fmt.Sprintf("launch review: running=%d error=%d inactive=%d order=%v", r.Running, r.Errored, r.Inactive, r.Order)
}

// LaunchSequencer is the Launch Sequencer (C6): it drives readiness
// checks and starts subsystems in dependency order (spec §4.6).
type LaunchSequencer struct {
	Registry *Registry
	Bus      *LogBus
	Threads  *ThreadRegistry
	Pending  *PendingResultManager
	Flags    *ProcessFlags

	InitDeadline time.Duration
}

// NewLaunchSequencer returns a sequencer wired to the given core
// components, using the default 10s init deadline.
func NewLaunchSequencer(reg *Registry, bus *LogBus, threads *ThreadRegistry, pending *PendingResultManager, flags *ProcessFlags) *LaunchSequencer {
	return &LaunchSequencer{
		Registry:     reg,
		Bus:          bus,
		Threads:      threads,
		Pending:      pending,
		Flags:        flags,
		InitDeadline: DefaultInitDeadline,
	}
}

// Run drives the full startup sequence: computes topo order, then for
// each subsystem runs its readiness check, transitions state, and invokes
// Init with a deadline, continuing through failures (spec §4.6's
// partial-failure policy: the sequencer never aborts mid-pass).
func (l *LaunchSequencer) Run(ctx context.Context) (LaunchReview, error) {
	l.Flags.SetStarting(true)
	defer l.Flags.SetStarting(false)

	order, err := l.Registry.TopoOrder()
	if err != nil {
		return LaunchReview{}, err
	}

	review := LaunchReview{Order: order, Outcomes: make(map[string]LaunchOutcome, len(order))}

	for _, name := range order {
		sub, ok := l.Registry.Get(name)
		if !ok {
			continue
		}

		report := sub.ReadinessCheck(ctx)
		for _, line := range report.Lines() {
			l.Bus.Log(name, LevelState, line)
		}

		if !report.FinalGo() {
			_ = l.Registry.SetState(name, StateInactive)
			reason := firstFailingLine(report)
			review.Outcomes[name] = LaunchOutcome{Name: name, State: StateInactive, Reason: reason}
			review.Inactive++
			continue
		}

		if err := l.Registry.SetState(name, StateReady); err != nil {
			l.Bus.Log(name, LevelError, "illegal transition Inactive->Ready: "+err.Error())
			continue
		}
		if err := l.Registry.SetState(name, StateStarting); err != nil {
			l.Bus.Log(name, LevelError, "illegal transition Ready->Starting: "+err.Error())
			continue
		}

		group := l.Threads.CreateGroup(name)
		l.Registry.SetGroup(name, group)

		deadline := l.InitDeadline
		if deadline <= 0 {
			deadline = DefaultInitDeadline
		}

		initErr := runWithRecover(ctx, deadline, sub.Init)
		l.Registry.MarkInitAttempted(name, initErr == nil)

		if initErr != nil {
			_ = l.Registry.SetState(name, StateError)
			l.Bus.Log(name, LevelError, "init failed: "+initErr.Error())
			review.Outcomes[name] = LaunchOutcome{Name: name, State: StateError, Reason: initErr.Error()}
			review.Errored++
			continue
		}

		_ = l.Registry.SetState(name, StateRunning)
		started := time.Now()
		review.Outcomes[name] = LaunchOutcome{Name: name, State: StateRunning, Started: started}
		review.Running++
	}

	l.Flags.SetRunning(true)
	l.Bus.Log("launch", LevelState, review.String())
	return review, nil
}

func firstFailingLine(r ReadinessReport) string {
	if !r.SystemOK {
		return r.SystemLine
	}
	if !r.ConfigOK {
		return r.ConfigLine
	}
	if !r.ResourcesOK {
		return r.ResourcesLine
	}
	if !r.SubsystemOK {
		return r.SubsystemLine
	}
	return r.DepsLine
}

// runWithRecover invokes fn with a deadline-bounded context, recovering
// any panic at this sequencer boundary and converting it into an error
// result rather than letting it propagate (spec §9 "Exceptions/panics").
func runWithRecover(ctx context.Context, deadline time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- fmt.Errorf("panic: %v", r)
			}
		}()
		resultCh <- fn(callCtx)
	}()

	select {
	case err := <-resultCh:
		return err
	case <-callCtx.Done():
		return ErrDeadlineExceeded
	}
}
