// Package webserver implements Hydrogen's D1 collaborator subsystem: a
// gin.Engine wrapped as a core.Subsystem (SPEC_FULL.md §4.9).
package webserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/hydrogen/infrastructure/logging"
	"github.com/R3E-Network/hydrogen/infrastructure/metrics"
	"github.com/R3E-Network/hydrogen/infrastructure/middleware"
	"github.com/R3E-Network/hydrogen/internal/core"
)

// Version is reported on the detailed health endpoint. Hydrogen has no
// build-stamping step yet, so this is a fixed placeholder.
const Version = "dev"

// Config is the subsystem's declared configuration schema.
type Config struct {
	BindAddr     string
	Dependencies []string

	// RateLimitRPS and RateLimitBurstSize configure the per-client token
	// bucket applied to every request; zero means "use the default".
	RateLimitRPS       int
	RateLimitBurstSize int
}

// RateLimitPerSecond returns the configured per-client request rate, or a
// conservative default when unset.
func (c Config) RateLimitPerSecond() int {
	if c.RateLimitRPS > 0 {
		return c.RateLimitRPS
	}
	return 50
}

// RateLimitBurst returns the configured token-bucket burst size, or a
// conservative default when unset.
func (c Config) RateLimitBurst() int {
	if c.RateLimitBurstSize > 0 {
		return c.RateLimitBurstSize
	}
	return 20
}

// Subsystem is the webserver collaborator.
type Subsystem struct {
	handle core.Handle
	cfg    Config

	mu       sync.Mutex
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener

	launchReview fmt.Stringer
}

// New constructs the webserver subsystem bound to the given handle and config.
func New(handle core.Handle, cfg Config) *Subsystem {
	if len(cfg.Dependencies) == 0 {
		cfg.Dependencies = []string{"database"}
	}
	return &Subsystem{handle: handle, cfg: cfg}
}

func (s *Subsystem) Name() string           { return "webserver" }
func (s *Subsystem) Dependencies() []string { return s.cfg.Dependencies }

// SetLaunchReview lets the orchestrator publish a Launch Review snapshot for
// the /status endpoint, without coupling this package to the sequencer.
func (s *Subsystem) SetLaunchReview(review fmt.Stringer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launchReview = review
}

// Engine returns the underlying gin.Engine so dependent subsystems (e.g.
// websocket) can register routes on the same server, per §4.10's "shares
// its gin.Engine through a typed handle" requirement.
func (s *Subsystem) Engine() *gin.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Subsystem) ReadinessCheck(ctx context.Context) core.ReadinessReport {
	system := func() (bool, string) { return true, "process runtime available" }

	config := func() (bool, string) {
		if s.cfg.BindAddr == "" {
			return false, "bind_addr is not configured"
		}
		if _, _, err := net.SplitHostPort(s.cfg.BindAddr); err != nil {
			return false, "bind_addr does not parse: " + err.Error()
		}
		return true, "bind_addr " + s.cfg.BindAddr
	}

	resources := func() (bool, string) {
		ln, err := net.Listen("tcp", s.cfg.BindAddr)
		if err != nil {
			return false, "port probe failed: " + err.Error()
		}
		_ = ln.Close()
		return true, "port is free"
	}

	subsystemSpecific := func() (bool, string) {
		engine := gin.New()
		if engine == nil {
			return false, "gin engine construction failed"
		}
		return true, "gin engine constructs"
	}

	deps := func() (bool, string) {
		running := map[string]bool{}
		if s.handle.RunningSet != nil {
			running = s.handle.RunningSet()
		}
		return core.DependenciesReadyCheck(s.cfg.Dependencies, running)
	}

	return core.BuildReport(s.Name(), system, config, resources, subsystemSpecific, deps)
}

func (s *Subsystem) Init(ctx context.Context) error {
	s.mu.Lock()
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/status", s.handleStatus)

	checker := middleware.NewHealthChecker(Version)
	checker.RegisterCheck("dependencies", s.dependenciesHealthCheck)
	engine.GET("/healthz/detailed", gin.WrapF(checker.Handler()))

	s.engine = engine

	ln, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.BindAddr, err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.stack(engine)}
	s.mu.Unlock()

	done := make(chan struct{})
	s.handle.Threads.Register(s.handle.Group, "accept-loop", done)

	go func() {
		defer close(done)
		serveErr := s.server.Serve(ln)
		if serveErr != nil && serveErr != http.ErrServerClosed {
			s.handle.Logf(core.LevelError, "serve error: %v", serveErr)
		}
	}()

	return nil
}

// stack wraps the gin engine with the teacher's net/http middleware chain,
// innermost first: metrics, structured access logging, rate limiting, body
// limit, CORS, security headers, recovery outermost. gin handlers and this
// middleware package both satisfy http.Handler, but the middleware package
// predates gin adoption and was never converted to gin.HandlerFunc form.
//
// A private prometheus registry is used (rather than the process default)
// so that constructing more than one webserver Subsystem in the same
// process — every table-driven test does this — never collides on the
// "http_requests_total"-family metric names.
func (s *Subsystem) stack(engine http.Handler) http.Handler {
	log := logging.NewFromEnv("webserver")
	m := metrics.NewWithRegistry("webserver", prometheus.NewRegistry())

	recovery := middleware.NewRecoveryMiddleware(log)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(nil)
	cors := middleware.NewCORSMiddleware(nil)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)
	limiter := middleware.NewRateLimiter(s.cfg.RateLimitPerSecond(), s.cfg.RateLimitBurst(), log)
	accessLog := middleware.LoggingMiddleware(log)
	recordMetrics := middleware.MetricsMiddleware("webserver", m)

	h := recordMetrics(engine)
	h = accessLog(h)
	h = limiter.Handler(h)
	h = bodyLimit.Handler(h)
	h = cors.Handler(h)
	h = securityHeaders.Handler(h)
	h = recovery.Handler(h)
	return h
}

func (s *Subsystem) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// dependenciesHealthCheck reports an error naming the first declared
// dependency not currently Running, for the detailed health endpoint.
func (s *Subsystem) dependenciesHealthCheck() error {
	running := map[string]bool{}
	if s.handle.RunningSet != nil {
		running = s.handle.RunningSet()
	}
	ok, detail := core.DependenciesReadyCheck(s.cfg.Dependencies, running)
	if !ok {
		return fmt.Errorf("%s", detail)
	}
	return nil
}

func (s *Subsystem) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Subsystem) handleStatus(c *gin.Context) {
	s.mu.Lock()
	review := s.launchReview
	s.mu.Unlock()
	if review == nil {
		c.JSON(http.StatusOK, gin.H{"launch_review": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"launch_review": review.String()})
}
