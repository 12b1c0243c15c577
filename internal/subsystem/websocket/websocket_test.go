package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/hydrogen/internal/core"
)

type fakeProvider struct {
	engine *gin.Engine
}

func (f *fakeProvider) Engine() *gin.Engine { return f.engine }

func newTestHandle(threads *core.ThreadRegistry, bus *core.LogBus, running map[string]bool) core.Handle {
	group := threads.CreateGroup("websocket")
	return core.Handle{
		Name:       "websocket",
		Bus:        bus,
		Threads:    threads,
		Group:      group,
		RunningSet: func() map[string]bool { return running },
	}
}

func TestWebsocketReadinessFailsWithoutProvider(t *testing.T) {
	threads := core.NewThreadRegistry()
	bus := core.NewLogBus(16, nil)
	sub := New(newTestHandle(threads, bus, map[string]bool{"webserver": true}), nil)

	report := sub.ReadinessCheck(nil)
	assert.False(t, report.FinalGo())
	assert.False(t, report.SubsystemOK)
}

func TestWebsocketReadinessFailsWhenWebserverNotRunning(t *testing.T) {
	threads := core.NewThreadRegistry()
	bus := core.NewLogBus(16, nil)
	gin.SetMode(gin.TestMode)
	provider := &fakeProvider{engine: gin.New()}
	sub := New(newTestHandle(threads, bus, map[string]bool{}), provider)

	report := sub.ReadinessCheck(nil)
	assert.False(t, report.FinalGo())
	assert.False(t, report.DepsOK)
}

func TestWebsocketUpgradeAndReadLoop(t *testing.T) {
	threads := core.NewThreadRegistry()
	bus := core.NewLogBus(16, nil)
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	provider := &fakeProvider{engine: engine}
	sub := New(newTestHandle(threads, bus, map[string]bool{"webserver": true}), provider)

	require.NoError(t, sub.Init(nil))

	srv := httptest.NewServer(engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	sub.mu.Lock()
	count := len(sub.conns)
	sub.mu.Unlock()
	assert.Equal(t, 1, count)

	require.NoError(t, sub.Stop(nil))

	time.Sleep(20 * time.Millisecond)
	sub.mu.Lock()
	count = len(sub.conns)
	sub.mu.Unlock()
	assert.Equal(t, 0, count)
}
