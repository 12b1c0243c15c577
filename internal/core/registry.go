package core

import (
	"sort"
	"sync"
	"time"
)

// subsystemRecord is the registry's internal bookkeeping for one subsystem
// (spec §3's Subsystem record).
type subsystemRecord struct {
	subsystem      Subsystem
	state          State
	stateChangedAt time.Time
	dependencies   []string
	group          GroupHandle
	shutdownFlag   bool
	initCalled     bool
	initOK         bool
	stopCalled     bool
}

// Registry is the Subsystem Registry (C4): the single source of truth for
// subsystem identity, state, dependencies, and lifecycle hooks.
type Registry struct {
	mu      sync.RWMutex
	order   []string // insertion order; breaks topo-sort ties
	records map[string]*subsystemRecord
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*subsystemRecord)}
}

// Add registers a subsystem. It fails if the name already exists or if
// adding it would introduce a dependency cycle (checked by attempting a
// topological sort over the resulting name set).
func (r *Registry) Add(s Subsystem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.records[name]; exists {
		return ErrDuplicateName
	}

	rec := &subsystemRecord{
		subsystem:      s,
		state:          StateInactive,
		stateChangedAt: time.Now(),
		dependencies:   append([]string{}, s.Dependencies()...),
	}

	candidateOrder := append(append([]string{}, r.order...), name)
	candidateRecords := make(map[string]*subsystemRecord, len(r.records)+1)
	for k, v := range r.records {
		candidateRecords[k] = v
	}
	candidateRecords[name] = rec

	if _, err := topoOrderLocked(candidateOrder, candidateRecords); err != nil {
		return err
	}

	r.order = candidateOrder
	r.records[name] = rec
	return nil
}

// Remove deletes a subsystem from the registry, restoring the prior topo
// order among the remaining subsystems (spec §8 round-trip property).
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[name]; !ok {
		return ErrUnknownSubsystem
	}
	delete(r.records, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the subsystem registered under name, or nil.
func (r *Registry) Get(name string) (Subsystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return nil, false
	}
	return rec.subsystem, true
}

// State returns the current state of a subsystem.
func (r *Registry) State(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return 0, false
	}
	return rec.state, true
}

// SetState validates and applies a state transition. An illegal transition
// is a no-op that returns ErrIllegalTransition; the caller is expected to
// log it at Error level.
func (r *Registry) SetState(name string, next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return ErrUnknownSubsystem
	}
	if !legalTransitions[rec.state][next] {
		return ErrIllegalTransition
	}
	rec.state = next
	rec.stateChangedAt = time.Now()
	return nil
}

// SetGroup records a subsystem's Thread Registry group handle, once it has
// one (assigned during Init).
func (r *Registry) SetGroup(name string, h GroupHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[name]; ok {
		rec.group = h
	}
}

// Group returns a subsystem's thread group handle.
func (r *Registry) Group(name string) (GroupHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return "", false
	}
	return rec.group, true
}

// MarkInitAttempted records that Init was called and whether it succeeded,
// enforcing "init invoked at most once per lifecycle pass".
func (r *Registry) MarkInitAttempted(name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, exists := r.records[name]; exists {
		rec.initCalled = true
		rec.initOK = ok
	}
}

// MarkStopAttempted records that Stop was called.
func (r *Registry) MarkStopAttempted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, exists := r.records[name]; exists {
		rec.stopCalled = true
	}
}

// CanStop reports whether a subsystem's Init previously returned success —
// Stop must be invoked only if Init returned Ok (spec §3 invariant).
func (r *Registry) CanStop(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return false
	}
	return rec.initCalled && rec.initOK && !rec.stopCalled
}

// SetShutdownFlag sets the per-subsystem flag its own workers observe.
func (r *Registry) SetShutdownFlag(name string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[name]; ok {
		rec.shutdownFlag = v
	}
}

// ShutdownFlag reads the per-subsystem shutdown flag.
func (r *Registry) ShutdownFlag(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	return ok && rec.shutdownFlag
}

// Dependencies returns the declared dependency list for a subsystem.
func (r *Registry) Dependencies(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return nil
	}
	return append([]string{}, rec.dependencies...)
}

// TopoOrder returns a startup ordering satisfying every declared
// dependency, tie-broken by insertion order (Kahn's algorithm), per
// spec §4.4.
func (r *Registry) TopoOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return topoOrderLocked(r.order, r.records)
}

// topoOrderLocked implements Kahn's algorithm: each pass scans names in
// insertion order and appends any whose dependencies are already resolved,
// so the tie-break among simultaneously-ready names is always insertion
// order. This mirrors the teacher's DependencyManager.ResolveOrder
// iterative-pass shape (system/core/dependency.go), adapted to operate
// directly against the registry's own records instead of a separate
// dependency map.
func topoOrderLocked(names []string, records map[string]*subsystemRecord) ([]string, error) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}

	resolved := make([]string, 0, len(names))
	done := make(map[string]bool, len(names))

	for len(resolved) < len(names) {
		progressed := false

		for _, name := range names {
			if done[name] {
				continue
			}

			waiting := false
			for _, dep := range records[name].dependencies {
				if !set[dep] {
					// Missing dependency: not a cycle, reported separately
					// by the readiness framework's dependency check.
					continue
				}
				if !done[dep] {
					waiting = true
					break
				}
			}

			if waiting {
				continue
			}

			resolved = append(resolved, name)
			done[name] = true
			progressed = true
		}

		if !progressed {
			return nil, ErrCycle
		}
	}

	return resolved, nil
}

// RunningSet returns the set of subsystem names currently in Running
// state, for use by readiness dependency checks.
func (r *Registry) RunningSet() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]bool)
	for name, rec := range r.records {
		if rec.state == StateRunning {
			set[name] = true
		}
	}
	return set
}

// Names returns every registered subsystem name in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// StatesSnapshot returns a copy of every subsystem's current state keyed
// by name, for reporting (Launch/Landing Review). The result is a map, so
// it carries no order.
func (r *Registry) StatesSnapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]State, len(r.records))
	for name, rec := range r.records {
		snap[name] = rec.state
	}
	return snap
}

// sortedKeys is a small helper used by reporting code.
func sortedKeys(m map[string]State) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
