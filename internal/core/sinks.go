package core

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// FormatRecord renders a record in the line format mandated by spec §6:
// ISO-8601 timestamp with millisecond precision and UTC offset, six-char
// space-padded level name, subsystem, thread label, message — with no
// embedded newlines (escaped as \n).
func FormatRecord(r LogRecord) string {
	msg := strings.ReplaceAll(r.Message, "\n", `\n`)
	thread := r.ThreadLabel
	return fmt.Sprintf("%s %s %s %s %s",
		r.WallTime.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		r.Level.String(),
		r.Source,
		thread,
		msg,
	)
}

// ConsoleSink writes formatted records to a writer (normally os.Stdout or
// os.Stderr), one per line.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Write(r LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, FormatRecord(r))
	return err
}

func (s *ConsoleSink) Close() error { return nil }

// FileSink writes formatted records to a rolling log file. Reopen closes
// and reopens the underlying file descriptor, supporting SIGHUP-driven
// log rotation (spec §6 Signals) — an external rotator (logrotate-style)
// renames the file and the core reopens the same path.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink opens path for append, creating it if necessary.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: path, f: f}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(r LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.f, FormatRecord(r))
	return err
}

func (s *FileSink) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.f.Close()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// DatabaseSink writes records to a SQL table when a connection is
// available. Per spec §4.1, its connection is optional: when nil or
// unreachable, it reverts to buffering up to a configured capacity and
// drops the oldest buffered record on overflow. The bounded-buffer shape
// is grounded on infrastructure/fallback.Handler's cache, generalized here
// from time-based expiry to a capacity-based ring buffer.
type DatabaseSink struct {
	mu       sync.Mutex
	db       *sql.DB // may be nil
	table    string
	buffer   []LogRecord
	capacity int
}

// NewDatabaseSink returns a sink that, while db is nil or failing, buffers
// up to capacity records, dropping the oldest on overflow. Use
// SetConnection to attach a live *sql.DB once the database subsystem is
// Running; the sink then drains its buffer opportunistically.
func NewDatabaseSink(table string, capacity int) *DatabaseSink {
	if capacity <= 0 {
		capacity = 4096
	}
	return &DatabaseSink{table: table, capacity: capacity}
}

func (s *DatabaseSink) Name() string { return "database" }

// SetConnection attaches (or detaches, with nil) the live database handle.
func (s *DatabaseSink) SetConnection(db *sql.DB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
}

func (s *DatabaseSink) Write(r LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		s.bufferLocked(r)
		return nil
	}

	if err := s.insertLocked(r); err != nil {
		s.bufferLocked(r)
		return err
	}
	s.drainBufferLocked()
	return nil
}

func (s *DatabaseSink) bufferLocked(r LogRecord) {
	if len(s.buffer) >= s.capacity {
		s.buffer = s.buffer[1:] // drop oldest
	}
	s.buffer = append(s.buffer, r)
}

func (s *DatabaseSink) drainBufferLocked() {
	remaining := s.buffer[:0]
	for _, r := range s.buffer {
		if err := s.insertLocked(r); err != nil {
			remaining = append(remaining, r)
		}
	}
	s.buffer = remaining
}

func (s *DatabaseSink) insertLocked(r LogRecord) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (source, level, wall_time, mono_time, message, thread_label) VALUES ($1, $2, $3, $4, $5, $6)",
		s.table,
	)
	_, err := s.db.Exec(query, r.Source, int(r.Level), r.WallTime, r.MonoTime, r.Message, r.ThreadLabel)
	return err
}

func (s *DatabaseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil
}
