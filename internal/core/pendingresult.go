package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// PendingState is the terminal (or waiting) state of a pending-result entry.
type PendingState int

const (
	PendingWaiting PendingState = iota
	PendingDelivered
	PendingTimedOut
	PendingCancelled
)

// Result is what Wait returns: the terminal state, plus the payload and
// error when Delivered.
type Result struct {
	State   PendingState
	Payload interface{}
	Err     error
}

// Ticket is the handle returned by Register; pass it to Wait.
type Ticket struct {
	correlationID string
	done          chan Result
}

type pendingEntry struct {
	done     chan Result
	deadline time.Time
	timer    *time.Timer
	mu       sync.Mutex
	closed   bool
}

// PendingResultManager is the Pending-Result Manager (C3): it correlates a
// request submitted to an asynchronous worker pool with the caller
// waiting for its result (spec §4.3).
type PendingResultManager struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry

	droppedDeliveries uint64
}

// NewPendingResultManager returns an empty manager.
func NewPendingResultManager() *PendingResultManager {
	return &PendingResultManager{entries: make(map[string]*pendingEntry)}
}

// Register inserts a Waiting entry for correlationID with the given
// timeout and returns a ticket for Wait. If correlationID is already
// registered, the prior entry is replaced (callers are expected to use
// process-unique ids, per spec §3).
func (p *PendingResultManager) Register(correlationID string, timeout time.Duration) Ticket {
	entry := &pendingEntry{
		done:     make(chan Result, 1),
		deadline: time.Now().Add(timeout),
	}

	p.mu.Lock()
	p.entries[correlationID] = entry
	p.mu.Unlock()

	entry.timer = time.AfterFunc(timeout, func() {
		p.completeTimeout(correlationID, entry)
	})

	return Ticket{correlationID: correlationID, done: entry.done}
}

func (p *PendingResultManager) completeTimeout(correlationID string, entry *pendingEntry) {
	entry.mu.Lock()
	if entry.closed {
		entry.mu.Unlock()
		return
	}
	entry.closed = true
	entry.mu.Unlock()

	p.mu.Lock()
	if p.entries[correlationID] == entry {
		delete(p.entries, correlationID)
	}
	p.mu.Unlock()

	entry.done <- Result{State: PendingTimedOut}
}

// Wait blocks until the ticket's entry is Delivered, TimedOut, or
// Cancelled. Each ticket's channel is observed by exactly one waiter.
func (p *PendingResultManager) Wait(t Ticket) Result {
	return <-t.done
}

// Deliver transitions a Waiting entry to Delivered and wakes its waiter.
// If no entry exists for correlationID (already timed out, cancelled, or
// never registered), this is a silent no-op that bumps the
// dropped-delivery counter — the ordering guarantee is that a deliver
// which precedes a wait on the same ticket is always observed; a deliver
// that arrives after the entry already resolved cannot retroactively wake
// anyone.
func (p *PendingResultManager) Deliver(correlationID string, payload interface{}, err error) {
	p.mu.Lock()
	entry, ok := p.entries[correlationID]
	if ok {
		delete(p.entries, correlationID)
	}
	p.mu.Unlock()

	if !ok {
		atomic.AddUint64(&p.droppedDeliveries, 1)
		return
	}

	entry.mu.Lock()
	if entry.closed {
		entry.mu.Unlock()
		atomic.AddUint64(&p.droppedDeliveries, 1)
		return
	}
	entry.closed = true
	entry.mu.Unlock()

	entry.timer.Stop()
	entry.done <- Result{State: PendingDelivered, Payload: payload, Err: err}
}

// CancelAll wakes every outstanding waiter with Cancelled. Used during
// shutdown (spec §4.7 step 4).
func (p *PendingResultManager) CancelAll() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*pendingEntry)
	p.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		if entry.closed {
			entry.mu.Unlock()
			continue
		}
		entry.closed = true
		entry.mu.Unlock()

		entry.timer.Stop()
		entry.done <- Result{State: PendingCancelled}
	}
}

// DroppedDeliveries returns the count of Deliver calls that found no
// waiting entry (spec §8 scenario 6).
func (p *PendingResultManager) DroppedDeliveries() uint64 {
	return atomic.LoadUint64(&p.droppedDeliveries)
}
