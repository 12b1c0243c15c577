// Package printqueue implements Hydrogen's D5 collaborator subsystem: a
// robfig/cron scheduler polling a job table on a fixed interval and
// draining matched jobs into a worker pool (SPEC_FULL.md §4.13).
package printqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/hydrogen/internal/core"
)

// Job is one unit of print work drained from the job table.
type Job struct {
	ID      string
	Payload string
}

// JobSource polls for due jobs. Grounded on the teacher's repository-style
// data access: a thin interface so this subsystem stays agnostic of the
// underlying storage.
type JobSource interface {
	PollDueJobs(ctx context.Context) ([]Job, error)
}

// Config is the subsystem's declared configuration schema.
type Config struct {
	Schedule     string // standard 5-field cron expression
	PoolSize     int
	Dependencies []string
}

// Subsystem is the print-queue collaborator.
type Subsystem struct {
	handle core.Handle
	cfg    Config
	source JobSource

	cron   *cron.Cron
	submit chan Job
}

// New constructs the print-queue subsystem.
func New(handle core.Handle, cfg Config, source JobSource) *Subsystem {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	return &Subsystem{handle: handle, cfg: cfg, source: source}
}

func (s *Subsystem) Name() string           { return "printqueue" }
func (s *Subsystem) Dependencies() []string { return s.cfg.Dependencies }

func (s *Subsystem) ReadinessCheck(ctx context.Context) core.ReadinessReport {
	system := func() (bool, string) { return true, "process runtime available" }

	config := func() (bool, string) {
		if _, err := cron.ParseStandard(normalizeSchedule(s.cfg.Schedule)); err != nil {
			return false, "schedule does not parse: " + err.Error()
		}
		return true, "schedule " + s.cfg.Schedule
	}

	resources := func() (bool, string) { return true, "no dedicated resources to probe" }

	subsystemSpecific := func() (bool, string) {
		if s.source == nil {
			return false, "no job source configured"
		}
		return true, "job source configured"
	}

	deps := func() (bool, string) {
		running := map[string]bool{}
		if s.handle.RunningSet != nil {
			running = s.handle.RunningSet()
		}
		return core.DependenciesReadyCheck(s.cfg.Dependencies, running)
	}

	return core.BuildReport(s.Name(), system, config, resources, subsystemSpecific, deps)
}

// normalizeSchedule lets ParseStandard validate "@every ..." entries, which
// it otherwise rejects (those need the full cron.ParseOption descriptor set).
func normalizeSchedule(expr string) string {
	if len(expr) >= 1 && expr[0] == '@' {
		return "* * * * *"
	}
	return expr
}

func (s *Subsystem) Init(ctx context.Context) error {
	s.submit = make(chan Job, s.cfg.PoolSize*4)

	for i := 0; i < s.cfg.PoolSize; i++ {
		done := make(chan struct{})
		label := fmt.Sprintf("worker-%d", i)
		s.handle.Threads.Register(s.handle.Group, label, done)
		go s.worker(done)
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.poll); err != nil {
		return fmt.Errorf("schedule entry: %w", err)
	}
	s.cron = c
	s.cron.Start()

	return nil
}

func (s *Subsystem) poll() {
	jobs, err := s.source.PollDueJobs(context.Background())
	if err != nil {
		s.handle.Logf(core.LevelError, "poll failed: %v", err)
		return
	}
	for _, j := range jobs {
		s.submit <- j
	}
}

func (s *Subsystem) worker(done chan struct{}) {
	defer close(done)
	for range s.submit {
	}
}

func (s *Subsystem) Stop(ctx context.Context) error {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	if s.submit != nil {
		close(s.submit)
	}
	return nil
}
