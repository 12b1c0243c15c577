// Package websocket implements Hydrogen's D2 collaborator subsystem: a
// gorilla/websocket upgrade endpoint mounted on the webserver's shared
// gin.Engine (SPEC_FULL.md §4.10).
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/hydrogen/internal/core"
)

// EngineProvider exposes the webserver subsystem's shared gin.Engine,
// satisfied by internal/subsystem/webserver.Subsystem without importing it
// directly (keeps the dependency direction clean: websocket depends on the
// interface, not the concrete webserver type).
type EngineProvider interface {
	Engine() *gin.Engine
}

// Subsystem is the websocket collaborator.
type Subsystem struct {
	handle   core.Handle
	provider EngineProvider
	deps     []string

	upgrader websocket.Upgrader

	mu      sync.Mutex
	closing bool
	conns   map[*websocket.Conn]struct{}
}

// New constructs the websocket subsystem. It depends on the webserver
// subsystem by default, since it shares its gin.Engine.
func New(handle core.Handle, provider EngineProvider) *Subsystem {
	return &Subsystem{
		handle:   handle,
		provider: provider,
		deps:     []string{"webserver"},
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

func (s *Subsystem) Name() string           { return "websocket" }
func (s *Subsystem) Dependencies() []string { return s.deps }

func (s *Subsystem) ReadinessCheck(ctx context.Context) core.ReadinessReport {
	system := func() (bool, string) { return true, "process runtime available" }
	config := func() (bool, string) { return true, "no websocket-specific configuration" }
	resources := func() (bool, string) { return true, "no dedicated resources to probe" }
	subsystemSpecific := func() (bool, string) {
		if s.provider == nil {
			return false, "no webserver engine provider configured"
		}
		return true, "engine provider configured"
	}
	deps := func() (bool, string) {
		running := map[string]bool{}
		if s.handle.RunningSet != nil {
			running = s.handle.RunningSet()
		}
		return core.DependenciesReadyCheck(s.deps, running)
	}
	return core.BuildReport(s.Name(), system, config, resources, subsystemSpecific, deps)
}

func (s *Subsystem) Init(ctx context.Context) error {
	engine := s.provider.Engine()
	if engine == nil {
		return fmt.Errorf("webserver engine is not available")
	}
	engine.GET("/ws", s.handleUpgrade)
	return nil
}

func (s *Subsystem) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

func (s *Subsystem) handleUpgrade(c *gin.Context) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		c.Status(http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.handle.Logf(core.LevelError, "websocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	label := "conn-" + c.Request.RemoteAddr
	done := make(chan struct{})
	s.handle.Threads.Register(s.handle.Group, label, done)

	go s.readPingLoop(conn, done)
}

func (s *Subsystem) readPingLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
