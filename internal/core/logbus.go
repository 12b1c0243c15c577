package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is a log delivery destination (console, rolling file, database).
// Each sink is drained by its own dedicated goroutine.
type Sink interface {
	Name() string
	Write(LogRecord) error
	// Close releases any resources the sink holds (files, connections).
	Close() error
}

type sinkEntry struct {
	rec     *LogRecord
	barrier chan struct{}
}

type sinkState struct {
	sink    Sink
	queue   chan sinkEntry
	dropped uint64
	done    chan struct{} // closed once the drain goroutine returns
}

// LogBus is the Log Bus (C1): accepts records from any goroutine at any
// time, filters per (sink, subsystem, level), and delivers to every
// registered sink without blocking the caller on sink I/O (spec §4.1).
type LogBus struct {
	mu   sync.RWMutex
	sinkNames []string // registration order
	sinks     map[string]*sinkState

	levelMu      sync.RWMutex
	perPair      map[string]map[string]LogLevel // sink -> subsystem -> level
	defaultLevel map[string]LogLevel            // sink -> default level

	queueCapacity int

	queueDepth *prometheus.GaugeVec
	dropTotal  *prometheus.CounterVec
}

// NewLogBus returns a Log Bus with no sinks registered yet. queueCapacity
// bounds each sink's queue, shared by all producers; a saturated queue drops the
// newest record and increments that sink's drop counter.
func NewLogBus(queueCapacity int, registerer prometheus.Registerer) *LogBus {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	b := &LogBus{
		sinks:         make(map[string]*sinkState),
		perPair:       make(map[string]map[string]LogLevel),
		defaultLevel:  make(map[string]LogLevel),
		queueCapacity: queueCapacity,
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hydrogen_logbus_queue_depth",
			Help: "Current number of buffered records per log sink.",
		}, []string{"sink"}),
		dropTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hydrogen_logbus_dropped_total",
			Help: "Total log records dropped per sink due to a saturated queue.",
		}, []string{"sink"}),
	}
	if registerer != nil {
		registerer.MustRegister(b.queueDepth, b.dropTotal)
	}
	return b
}

// AddSink registers a sink and starts its dedicated drain goroutine. Must
// be called before Log is used against that sink's name.
func (b *LogBus) AddSink(s Sink, defaultLevel LogLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := &sinkState{
		sink:  s,
		queue: make(chan sinkEntry, b.queueCapacity),
		done:  make(chan struct{}),
	}
	b.sinks[s.Name()] = st
	b.sinkNames = append(b.sinkNames, s.Name())

	b.levelMu.Lock()
	b.defaultLevel[s.Name()] = defaultLevel
	b.levelMu.Unlock()

	go b.drain(s.Name(), st)
}

func (b *LogBus) drain(name string, st *sinkState) {
	defer close(st.done)
	for entry := range st.queue {
		if entry.barrier != nil {
			close(entry.barrier)
			continue
		}
		_ = st.sink.Write(*entry.rec)
		b.queueDepth.WithLabelValues(name).Set(float64(len(st.queue)))
	}
}

// SetLevel sets the minimum emitted level for one (sink, subsystem) pair.
func (b *LogBus) SetLevel(sink, subsystem string, level LogLevel) {
	b.levelMu.Lock()
	defer b.levelMu.Unlock()
	if b.perPair[sink] == nil {
		b.perPair[sink] = make(map[string]LogLevel)
	}
	b.perPair[sink][subsystem] = level
}

// GetLevel returns the effective minimum level for one (sink, subsystem)
// pair: the explicit override if set, else the sink's default.
func (b *LogBus) GetLevel(sink, subsystem string) LogLevel {
	b.levelMu.RLock()
	defer b.levelMu.RUnlock()
	if m, ok := b.perPair[sink]; ok {
		if lvl, ok := m[subsystem]; ok {
			return lvl
		}
	}
	return b.defaultLevel[sink]
}

// SetDefaultLevel sets a sink's fallback minimum level for subsystems with
// no explicit override.
func (b *LogBus) SetDefaultLevel(sink string, level LogLevel) {
	b.levelMu.Lock()
	defer b.levelMu.Unlock()
	b.defaultLevel[sink] = level
}

func (b *LogBus) shouldEmit(sink, source string, level LogLevel) bool {
	threshold := b.GetLevel(sink, source)
	return level >= threshold
}

// Log enqueues a record for every registered sink whose level matrix
// permits it. It never blocks beyond a bounded enqueue attempt: a
// saturated sink queue drops the record and bumps that sink's counter.
// Fatal-level records are additionally written synchronously to every
// sink whose level matrix admits them, so a crash-imminent message is not lost even if the process exits
// before the queue drains.
func (b *LogBus) Log(source string, level LogLevel, message string) {
	if level >= LevelQuiet {
		// Quiet is a suppression value only; nothing logs "at" Quiet.
		return
	}

	rec := LogRecord{
		Source:   source,
		Level:    level,
		WallTime: time.Now(),
		MonoTime: time.Now().UnixNano(),
		Message:  message,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, name := range b.sinkNames {
		st := b.sinks[name]
		if !b.shouldEmit(name, source, level) {
			continue
		}

		r := rec
		select {
		case st.queue <- sinkEntry{rec: &r}:
		default:
			atomic.AddUint64(&st.dropped, 1)
			b.dropTotal.WithLabelValues(name).Inc()
		}

		if level == LevelFatal {
			_ = st.sink.Write(r)
		}
	}
}

// DroppedCount returns the number of records dropped for one sink.
func (b *LogBus) DroppedCount(sink string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.sinks[sink]
	if !ok {
		return 0
	}
	return atomic.LoadUint64(&st.dropped)
}

// Flush drains every sink's outstanding records, up to deadline per sink.
// Used during shutdown (spec §4.7 step 5, default 2s).
func (b *LogBus) Flush(deadline time.Duration) {
	b.mu.RLock()
	sinks := make([]*sinkState, 0, len(b.sinks))
	for _, name := range b.sinkNames {
		sinks = append(sinks, b.sinks[name])
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for _, st := range sinks {
		barrier := make(chan struct{})
		wg.Add(1)
		select {
		case st.queue <- sinkEntry{barrier: barrier}:
		default:
			// Queue saturated: nothing to flush past, count it as flushed.
			close(barrier)
		}
		go func(b chan struct{}) {
			defer wg.Done()
			<-b
		}(barrier)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-timer.C:
	}
}

// Close stops every sink's drain goroutine and releases sink resources.
// Call only after Flush, at final process teardown.
func (b *LogBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range b.sinkNames {
		st := b.sinks[name]
		close(st.queue)
		<-st.done
		_ = st.sink.Close()
	}
}

// Reopen closes and reopens every file-backed sink, for SIGHUP-driven log
// rotation (spec §6 Signals).
func (b *LogBus) Reopen() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, name := range b.sinkNames {
		if r, ok := b.sinks[name].sink.(interface{ Reopen() error }); ok {
			_ = r.Reopen()
		}
	}
}
