// Package database implements Hydrogen's D4 collaborator subsystem: a
// lib/pq connection pool backing a fixed-size worker-goroutine pool, with
// results delivered through the Pending-Result Manager (SPEC_FULL.md
// §4.12).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"github.com/R3E-Network/hydrogen/infrastructure/fallback"
	"github.com/R3E-Network/hydrogen/infrastructure/resilience"
	"github.com/R3E-Network/hydrogen/infrastructure/utils"
	"github.com/R3E-Network/hydrogen/internal/core"
)

// Config is the subsystem's declared configuration schema.
type Config struct {
	DSN          string
	PoolSize     int
	PingTimeout  time.Duration
	Dependencies []string
}

// query is one unit of work submitted to a worker goroutine.
type query struct {
	correlationID string
	sql           string
	args          []interface{}
}

// Subsystem is the database collaborator.
type Subsystem struct {
	handle core.Handle
	cfg    Config

	db      *sql.DB
	submit  chan query
	retry   *fallback.Handler
	breaker *resilience.CircuitBreaker
}

// New constructs the database subsystem.
func New(handle core.Handle, cfg Config) *Subsystem {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	return &Subsystem{
		handle:  handle,
		cfg:     cfg,
		retry:   fallback.NewHandler(fallback.DefaultConfig()),
		breaker: resilience.New(resilience.DefaultConfig()),
	}
}

func (s *Subsystem) Name() string           { return "database" }
func (s *Subsystem) Dependencies() []string { return s.cfg.Dependencies }

func (s *Subsystem) ReadinessCheck(ctx context.Context) core.ReadinessReport {
	system := func() (bool, string) { return true, "process runtime available" }

	config := func() (bool, string) {
		if s.cfg.DSN == "" {
			return false, "dsn is not configured"
		}
		return true, "dsn is configured"
	}

	resources := func() (bool, string) {
		if _, err := url.Parse(s.cfg.DSN); err != nil {
			return false, "dsn does not parse: " + err.Error()
		}
		return true, "dsn parses"
	}

	subsystemSpecific := func() (bool, string) {
		for _, name := range sql.Drivers() {
			if name == "postgres" {
				return true, "lib/pq driver is registered"
			}
		}
		return false, "lib/pq driver is not registered"
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

func (s *Subsystem) Init(ctx context.Context) error {
	db, err := sql.Open("postgres", s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()
	pingErr := s.breaker.Execute(pingCtx, func() error {
		return db.PingContext(pingCtx)
	})
	if pingErr != nil {
		_ = db.Close()
		return fmt.Errorf("ping: %w", pingErr)
	}
	s.db = db

	s.submit = make(chan query, s.cfg.PoolSize)
	for i := 0; i < s.cfg.PoolSize; i++ {
		done := make(chan struct{})
		label := fmt.Sprintf("worker-%d", i)
		s.handle.Threads.Register(s.handle.Group, label, done)
		worker := label
		utils.SafeGo(func() { s.worker(done) }, func(err error) {
			s.handle.Logf(core.LevelError, "%s panicked: %v", worker, err)
		})
	}

	return nil
}

func (s *Subsystem) worker(done chan struct{}) {
	defer close(done)
	for q := range s.submit {
		result := s.retry.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return s.db.QueryContext(ctx, q.sql, q.args...)
		})
		s.handle.Pending.Deliver(q.correlationID, result.Value, result.Err)
	}
}

// Register enqueues a ticket with the Pending-Result Manager for the given
// timeout; callers submit the corresponding query and then Wait.
func (s *Subsystem) Register(correlationID string, timeout time.Duration) core.Ticket {
	return s.handle.Pending.Register(correlationID, timeout)
}

// Submit hands a query to the worker pool under the given correlation id,
// previously obtained via Register.
func (s *Subsystem) Submit(correlationID string, sqlText string, args ...interface{}) {
	s.submit <- query{correlationID: correlationID, sql: sqlText, args: args}
}

// Wait blocks on the ticket returned by Register until the worker pool
// delivers a result or the registered timeout elapses.
func (s *Subsystem) Wait(t core.Ticket) core.Result {
	return s.handle.Pending.Wait(t)
}

func (s *Subsystem) Stop(ctx context.Context) error {
	if s.submit != nil {
		close(s.submit)
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
