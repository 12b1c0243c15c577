// Command hydrogend is the Hydrogen orchestrator process: it wires the
// core lifecycle components together with the six collaborator
// subsystems, runs the launch sequence, waits for a termination signal,
// then runs the landing sequence and exits with the code mandated by
// SPEC_FULL.md §6.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/hydrogen/infrastructure/logging"
	"github.com/R3E-Network/hydrogen/internal/config"
	"github.com/R3E-Network/hydrogen/internal/core"
	"github.com/R3E-Network/hydrogen/internal/subsystem/database"
	"github.com/R3E-Network/hydrogen/internal/subsystem/mdns"
	"github.com/R3E-Network/hydrogen/internal/subsystem/printqueue"
	"github.com/R3E-Network/hydrogen/internal/subsystem/terminal"
	"github.com/R3E-Network/hydrogen/internal/subsystem/webserver"
	"github.com/R3E-Network/hydrogen/internal/subsystem/websocket"
)

// Exit codes per SPEC_FULL.md §6.
const (
	exitClean        = 0
	exitCleanWithErr = 1
	exitWatchdog     = 2
	exitFatalBoot    = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	bootLog := logging.NewFromEnv("hydrogend")

	tree, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load configuration", err, nil)
		return exitFatalBoot
	}

	bus := core.NewLogBus(4096, prometheus.DefaultRegisterer)
	bus.AddSink(core.NewConsoleSink(os.Stdout), core.LevelState)

	if logPath := tree.String("log_bus.file_path", ""); logPath != "" {
		fileSink, err := core.NewFileSink(logPath)
		if err != nil {
			bootLog.Error(context.Background(), "failed to open log bus file sink", err, nil)
			return exitFatalBoot
		}
		bus.AddSink(fileSink, core.LevelState)
	}

	threads := core.NewThreadRegistry()
	pending := core.NewPendingResultManager()
	registry := core.NewRegistry()
	flags := &core.ProcessFlags{}

	if err := registerSubsystems(registry, threads, bus, pending, tree); err != nil {
		bootLog.Error(context.Background(), "failed to register subsystems", err, nil)
		return exitFatalBoot
	}

	launcher := core.NewLaunchSequencer(registry, bus, threads, pending, flags)
	review, err := launcher.Run(context.Background())
	if err != nil {
		bootLog.Error(context.Background(), "launch sequencer aborted", err, nil)
		return exitFatalBoot
	}
	bootLog.Info(context.Background(), review.String(), nil)

	publishLaunchReview(registry, review)

	clock := core.NewSignalClock()
	landingDone := make(chan core.LandingReview, 1)
	var watchdog *core.Watchdog

	clock.InstallTerminationHandler(func() {
		bootLog.Info(context.Background(), "termination signal received, beginning landing", nil)
		watchdog = core.StartWatchdog(core.DefaultLandingDeadline, func() {
			forceExit(bus, threads, "landing deadline exceeded")
		})

		lander := core.NewLandingSequencer(registry, bus, threads, pending, flags)
		result := lander.Run(context.Background(), review.Order)
		if watchdog != nil {
			watchdog.Cancel()
		}
		landingDone <- result
	})
	clock.OnEscalate(func() {
		forceExit(bus, threads, "second termination signal during landing")
	})
	clock.OnHangup(func() {
		bus.Reopen()
	})

	landingReview := <-landingDone
	bootLog.Info(context.Background(), landingReview.String(), nil)

	bus.Close()

	if landingReview.AnyError() {
		return exitCleanWithErr
	}
	return exitClean
}

// forceExit writes the Fatal-level synchronous log record scenario 5
// mandates — the last thing written before a forced exit must identify
// every thread still running — then terminates with exitWatchdog.
func forceExit(bus *core.LogBus, threads *core.ThreadRegistry, reason string) {
	bus.Log("hydrogend", core.LevelFatal, fmt.Sprintf("%s, forcing exit; surviving threads: %v", reason, threads.Survivors()))
	os.Exit(exitWatchdog)
}

// registerSubsystems builds each collaborator's typed Handle and adds it
// to the registry in the order the spec's webserver→database dependency
// chain naturally resolves (insertion order only breaks topo-sort ties;
// the registry's own Kahn's-algorithm pass computes the real order).
func registerSubsystems(registry *core.Registry, threads *core.ThreadRegistry, bus *core.LogBus, pending *core.PendingResultManager, tree config.Tree) error {
	handleFor := func(name string) core.Handle {
		group := threads.CreateGroup(name)
		return core.Handle{
			Name:         name,
			Bus:          bus,
			Threads:      threads,
			Pending:      pending,
			Group:        group,
			ShutdownFlag: func() bool { return registry.ShutdownFlag(name) },
			RunningSet:   registry.RunningSet,
		}
	}

	dbSub := database.New(handleFor("database"), database.Config{
		DSN:      tree.String("database.dsn", ""),
		PoolSize: tree.Int("database.pool_size", 4),
	})
	if err := registry.Add(dbSub); err != nil {
		return fmt.Errorf("register database: %w", err)
	}

	webSub := webserver.New(handleFor("webserver"), webserver.Config{
		BindAddr:     tree.String("webserver.bind_addr", "0.0.0.0:8080"),
		Dependencies: []string{"database"},
	})
	if err := registry.Add(webSub); err != nil {
		return fmt.Errorf("register webserver: %w", err)
	}

	wsSub := websocket.New(handleFor("websocket"), webSub)
	if err := registry.Add(wsSub); err != nil {
		return fmt.Errorf("register websocket: %w", err)
	}

	mdnsSub := mdns.New(handleFor("mdns"), mdns.Config{
		ServiceName: tree.String("mdns.service_name", "hydrogen"),
		GroupAddr:   tree.String("mdns.group_addr", "224.0.0.251:5353"),
		Port:        tree.Int("webserver.port", 8080),
		Interval:    30 * time.Second,
	})
	if err := registry.Add(mdnsSub); err != nil {
		return fmt.Errorf("register mdns: %w", err)
	}

	pqSub := printqueue.New(handleFor("printqueue"), printqueue.Config{
		Schedule:     tree.String("printqueue.schedule", "@every 30s"),
		PoolSize:     tree.Int("printqueue.pool_size", 2),
		Dependencies: []string{"database"},
	}, &dbJobSource{db: dbSub, table: tree.String("printqueue.job_table", "print_jobs")})
	if err := registry.Add(pqSub); err != nil {
		return fmt.Errorf("register printqueue: %w", err)
	}

	termSub := terminal.New(handleFor("terminal"), terminal.Config{})
	if err := registry.Add(termSub); err != nil {
		return fmt.Errorf("register terminal: %w", err)
	}

	return nil
}

// publishLaunchReview gives the webserver subsystem the Launch Review
// snapshot its /status endpoint serves, without coupling the sequencer to
// any one collaborator's reporting surface.
func publishLaunchReview(registry *core.Registry, review core.LaunchReview) {
	sub, ok := registry.Get("webserver")
	if !ok {
		return
	}
	webSub, ok := sub.(*webserver.Subsystem)
	if !ok {
		return
	}
	webSub.SetLaunchReview(reviewStringer{review})
}

type reviewStringer struct {
	review core.LaunchReview
}

func (r reviewStringer) String() string { return r.review.String() }

// dbJobSource adapts the database subsystem's register/submit/wait surface
// into the printqueue.JobSource interface, so the print-queue's poll keeps
// its single Pending-Result correlation path even though it never blocks a
// caller on the result (SPEC_FULL.md §4.13).
type dbJobSource struct {
	db    *database.Subsystem
	table string
}

func (s *dbJobSource) PollDueJobs(ctx context.Context) ([]printqueue.Job, error) {
	correlationID := fmt.Sprintf("printqueue-poll-%d", time.Now().UnixNano())
	ticket := s.db.Register(correlationID, 5*time.Second)
	s.db.Submit(correlationID, fmt.Sprintf("SELECT id, payload FROM %s WHERE claimed_at IS NULL", s.table))
	result := s.db.Wait(ticket)
	if result.State != core.PendingDelivered {
		return nil, fmt.Errorf("poll %s: pending state %d", s.table, result.State)
	}
	if result.Err != nil {
		return nil, result.Err
	}

	rows, ok := result.Payload.(*sql.Rows)
	if !ok || rows == nil {
		return nil, nil
	}
	defer rows.Close()

	var jobs []printqueue.Job
	for rows.Next() {
		var job printqueue.Job
		if err := rows.Scan(&job.ID, &job.Payload); err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
