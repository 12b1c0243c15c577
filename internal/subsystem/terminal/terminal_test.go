package terminal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/hydrogen/internal/core"
)

func TestTerminalInitExitsOnShutdownFlag(t *testing.T) {
	threads := core.NewThreadRegistry()
	bus := core.NewLogBus(16, nil)
	group := threads.CreateGroup("terminal")

	var shutdown int32
	handle := core.Handle{
		Name:         "terminal",
		Bus:          bus,
		Threads:      threads,
		Group:        group,
		ShutdownFlag: func() bool { return atomic.LoadInt32(&shutdown) != 0 },
	}

	sub := New(handle, Config{})
	report := sub.ReadinessCheck(context.Background())
	assert.True(t, report.FinalGo())

	require.NoError(t, sub.Init(context.Background()))
	assert.Equal(t, 1, threads.Count(group))

	atomic.StoreInt32(&shutdown, 1)

	outcome := threads.JoinAll(group, time.Second)
	assert.True(t, outcome.AllJoined)
}
