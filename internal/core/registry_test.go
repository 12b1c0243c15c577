package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubsystem struct {
	name string
	deps []string
}

func (s *stubSubsystem) Name() string                                       { return s.name }
func (s *stubSubsystem) Dependencies() []string                             { return s.deps }
func (s *stubSubsystem) ReadinessCheck(ctx context.Context) ReadinessReport { return ReadinessReport{} }
func (s *stubSubsystem) Init(ctx context.Context) error                    { return nil }
func (s *stubSubsystem) Stop(ctx context.Context) error                    { return nil }

func TestRegistryTopoOrderInsertionTieBreak(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "log"}))
	require.NoError(t, r.Add(&stubSubsystem{name: "threads", deps: []string{"log"}}))
	require.NoError(t, r.Add(&stubSubsystem{name: "net", deps: []string{"threads"}}))
	require.NoError(t, r.Add(&stubSubsystem{name: "webserver", deps: []string{"net"}}))

	order, err := r.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"log", "threads", "net", "webserver"}, order)
}

func TestRegistryAddRejectsCycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "a", deps: []string{"b"}}))
	err := r.Add(&stubSubsystem{name: "b", deps: []string{"a"}})
	assert.ErrorIs(t, err, ErrCycle)
}

func TestRegistryAddRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "a"}))
	err := r.Add(&stubSubsystem{name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestRegistryRemoveRestoresPriorOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "a"}))
	require.NoError(t, r.Add(&stubSubsystem{name: "b"}))
	require.NoError(t, r.Add(&stubSubsystem{name: "c"}))

	before, err := r.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, before)

	require.NoError(t, r.Add(&stubSubsystem{name: "d"}))
	require.NoError(t, r.Remove("d"))

	after, err := r.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegistryLegalTransitions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "a"}))

	require.NoError(t, r.SetState("a", StateReady))
	require.NoError(t, r.SetState("a", StateStarting))
	require.NoError(t, r.SetState("a", StateRunning))
	require.NoError(t, r.SetState("a", StateStopping))
	require.NoError(t, r.SetState("a", StateInactive))
}

func TestRegistryRejectsIllegalTransition(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "a"}))

	err := r.SetState("a", StateRunning)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	state, ok := r.State("a")
	require.True(t, ok)
	assert.Equal(t, StateInactive, state)
}

func TestRegistryRunningSet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "a"}))
	require.NoError(t, r.Add(&stubSubsystem{name: "b"}))

	require.NoError(t, r.SetState("a", StateReady))
	require.NoError(t, r.SetState("a", StateStarting))
	require.NoError(t, r.SetState("a", StateRunning))

	running := r.RunningSet()
	assert.True(t, running["a"])
	assert.False(t, running["b"])
}

func TestRegistryCanStopOnlyAfterSuccessfulInit(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubSubsystem{name: "a"}))

	assert.False(t, r.CanStop("a"))

	r.MarkInitAttempted("a", false)
	assert.False(t, r.CanStop("a"))

	r.MarkInitAttempted("a", true)
	assert.True(t, r.CanStop("a"))

	r.MarkStopAttempted("a")
	assert.False(t, r.CanStop("a"))
}
