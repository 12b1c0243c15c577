package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLifecycleErrorFormatsWithoutCause(t *testing.T) {
	err := NewLifecycleError(KindConfiguration, "webserver", "bind_addr is not configured")
	assert.Equal(t, "[configuration_error] webserver: bind_addr is not configured", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapLifecycleErrorFormatsWithCause(t *testing.T) {
	cause := errors.New("listen tcp: address already in use")
	err := WrapLifecycleError(KindResource, "webserver", "port probe failed", cause)
	assert.Contains(t, err.Error(), "resource_error")
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, cause, err.Unwrap())
}

func TestKindOfExtractsKindThroughWrapping(t *testing.T) {
	base := NewLifecycleError(KindInitFailure, "database", "ping failed")
	wrapped := errors.New("outer: " + base.Error())

	_, ok := KindOf(wrapped)
	assert.False(t, ok, "a plain-string wrap should not expose a kind")

	kind, ok := KindOf(base)
	assert.True(t, ok)
	assert.Equal(t, KindInitFailure, kind)

	fmtWrapped := fmtErrorf(base)
	kind, ok = KindOf(fmtWrapped)
	assert.True(t, ok)
	assert.Equal(t, KindInitFailure, kind)
}

func fmtErrorf(err error) error {
	return &wrapper{err}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }

func TestSentinelErrorsAreDistinct(t *testing.T) {
	assert.NotEqual(t, ErrCycle, ErrDuplicateName)
	assert.NotEqual(t, ErrUnknownSubsystem, ErrIllegalTransition)
	assert.True(t, errors.Is(ErrDeadlineExceeded, ErrDeadlineExceeded))
}
