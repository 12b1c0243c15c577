// Package terminal implements Hydrogen's D6 collaborator subsystem: a
// minimal stub demonstrating the smallest valid Subsystem implementation.
// PTY allocation and line discipline are out of scope (SPEC_FULL.md
// §4.14).
package terminal

import (
	"context"
	"time"

	"github.com/R3E-Network/hydrogen/internal/core"
)

// Config is the subsystem's declared configuration schema.
type Config struct {
	Dependencies []string
}

// Subsystem is the terminal collaborator.
type Subsystem struct {
	handle core.Handle
	cfg    Config
}

// New constructs the terminal subsystem.
func New(handle core.Handle, cfg Config) *Subsystem {
	return &Subsystem{handle: handle, cfg: cfg}
}

func (s *Subsystem) Name() string           { return "terminal" }
func (s *Subsystem) Dependencies() []string { return s.cfg.Dependencies }

func (s *Subsystem) ReadinessCheck(ctx context.Context) core.ReadinessReport {
	system := func() (bool, string) { return true, "process runtime available" }
	config := func() (bool, string) { return true, "no terminal-specific configuration" }
	resources := func() (bool, string) { return true, "no dedicated resources to probe" }
	subsystemSpecific := func() (bool, string) { return true, "stub implementation" }
	deps := func() (bool, string) {
		running := map[string]bool{}
		if s.handle.RunningSet != nil {
			running = s.handle.RunningSet()
		}
		return core.DependenciesReadyCheck(s.cfg.Dependencies, running)
	}
	return core.BuildReport(s.Name(), system, config, resources, subsystemSpecific, deps)
}

func (s *Subsystem) Init(ctx context.Context) error {
	done := make(chan struct{})
	s.handle.Threads.Register(s.handle.Group, "idle", done)

	go func() {
		defer close(done)
		for {
			if s.handle.ShutdownFlag != nil && s.handle.ShutdownFlag() {
				return
			}
			time.Sleep(25 * time.Millisecond)
		}
	}()

	return nil
}

func (s *Subsystem) Stop(ctx context.Context) error {
	return nil
}
