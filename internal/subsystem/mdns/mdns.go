// Package mdns implements Hydrogen's D3 collaborator subsystem: a single
// goroutine periodically re-advertising a service record over a UDP
// net.PacketConn (SPEC_FULL.md §4.11).
package mdns

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/R3E-Network/hydrogen/internal/core"
)

// Config is the subsystem's declared configuration schema.
type Config struct {
	ServiceName  string
	GroupAddr    string // multicast/broadcast target, e.g. "224.0.0.251:5353"
	Interval     time.Duration
	Port         int // the webserver's bound port, advertised in the record
	Dependencies []string
}

// Subsystem is the mDNS collaborator.
type Subsystem struct {
	handle core.Handle
	cfg    Config

	conn net.PacketConn
	done chan struct{}
}

// New constructs the mDNS subsystem. It depends on the webserver subsystem
// by default, since the record it advertises names the webserver's port.
func New(handle core.Handle, cfg Config) *Subsystem {
	if len(cfg.Dependencies) == 0 {
		cfg.Dependencies = []string{"webserver"}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Subsystem{handle: handle, cfg: cfg}
}

func (s *Subsystem) Name() string           { return "mdns" }
func (s *Subsystem) Dependencies() []string { return s.cfg.Dependencies }

func hasUsableInterface() (bool, string) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, "cannot enumerate network interfaces: " + err.Error()
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true, "usable interface " + iface.Name
	}
	return false, "no usable non-loopback interface found"
}

func (s *Subsystem) ReadinessCheck(ctx context.Context) core.ReadinessReport {
	system := func() (bool, string) { return true, "process runtime available" }

	config := func() (bool, string) {
		if s.cfg.GroupAddr == "" {
			return false, "group_addr is not configured"
		}
		if s.cfg.Port <= 0 {
			return false, "advertised port is not configured"
		}
		return true, fmt.Sprintf("advertising port %d to %s", s.cfg.Port, s.cfg.GroupAddr)
	}

	resources := func() (bool, string) {
		return true, "no dedicated resources to probe beyond the interface check"
	}

	subsystemSpecific := func() (bool, string) {
		return hasUsableInterface()
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
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	s.conn = conn

	addr, err := net.ResolveUDPAddr("udp4", s.cfg.GroupAddr)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("resolve group addr %s: %w", s.cfg.GroupAddr, err)
	}

	done := make(chan struct{})
	s.done = done
	s.handle.Threads.Register(s.handle.Group, "advertiser", done)

	go s.advertiseLoop(addr, done)
	return nil
}

func (s *Subsystem) advertiseLoop(addr *net.UDPAddr, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sendRecord(addr)
	for {
		select {
		case <-ticker.C:
			if s.handle.ShutdownFlag != nil && s.handle.ShutdownFlag() {
				return
			}
			s.sendRecord(addr)
		default:
			if s.handle.ShutdownFlag != nil && s.handle.ShutdownFlag() {
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (s *Subsystem) sendRecord(addr *net.UDPAddr) {
	record := fmt.Sprintf("%s:%d", s.cfg.ServiceName, s.cfg.Port)
	if _, err := s.conn.WriteTo([]byte(record), addr); err != nil {
		s.handle.Logf(core.LevelError, "mdns advertise failed: %v", err)
	}
}

func (s *Subsystem) Stop(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
