// Package server runs one listening profile: the TCP accept loop, the
// device registry with keepalive expiry, and the admin operations the
// HTTP API exposes.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbeving/sccpd/internal/dialplan"
	"github.com/rbeving/sccpd/internal/directory"
	"github.com/rbeving/sccpd/internal/events"
	"github.com/rbeving/sccpd/internal/sccp/device"
	"github.com/rbeving/sccpd/internal/sccp/session"
	"github.com/rbeving/sccpd/internal/sccp/wire"
	"github.com/rbeving/sccpd/internal/telco"
)

// Settings are the per-profile knobs an admin can change at runtime.
// Changes apply to registrations made after the change.
type Settings struct {
	KeepAlive  time.Duration `json:"keepalive"`
	DateFormat string        `json:"date_format"`
	Domain     string        `json:"domain"`
}

// Config assembles one profile server.
type Config struct {
	Name      string
	BindAddr  string
	Port      int
	Settings  Settings
	Directory directory.Service
	Sessions  *session.Directory
	Core      telco.Core
	Plan      *dialplan.Plan
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Server accepts device connections for one profile.
type Server struct {
	name     string
	ln       net.Listener
	registry *device.Registry
	sessions *session.Directory
	core     telco.Core
	plan     *dialplan.Plan
	dir      directory.Service
	pub      events.Publisher
	logger   *slog.Logger

	settingsMu sync.Mutex
	settings   Settings

	callID    uint32
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// New binds the profile's listening socket. Call Serve to start
// accepting.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	settings := cfg.Settings
	if settings.KeepAlive <= 0 {
		settings.KeepAlive = 60 * time.Second
	}
	if settings.DateFormat == "" {
		settings.DateFormat = "M/D/Y"
	}

	addr := net.JoinHostPort(cfg.BindAddr, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		name:     cfg.Name,
		ln:       ln,
		sessions: cfg.Sessions,
		core:     cfg.Core,
		plan:     cfg.Plan,
		dir:      cfg.Directory,
		pub:      pub,
		logger:   logger,
		settings: settings,
		done:     make(chan struct{}),
	}

	// Devices get a generous grace period over the advertised interval
	// before the registry drops them.
	ttl := settings.KeepAlive * 3
	sweep := settings.KeepAlive / 2
	if sweep < time.Second {
		sweep = time.Second
	}
	s.registry = device.NewRegistry(ttl, sweep, s.onExpire)
	return s, nil
}

// Addr is the bound listen address, useful when Port was 0.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve runs the accept loop until Close. It returns nil on clean
// shutdown.
func (s *Server) Serve() error {
	s.logger.Info("[Server] profile listening", "profile", s.name, "addr", s.ln.Addr().String())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			s.logger.Error("[Server] accept failed", "profile", s.name, "error", err)
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	settings := s.Settings()
	l := device.NewListener(device.Config{
		Conn:       conn,
		Directory:  s.dir,
		Sessions:   s.sessions,
		Core:       s.core,
		Plan:       s.plan,
		Registry:   s.registry,
		Publisher:  s.pub,
		Logger:     s.logger,
		KeepAlive:  settings.KeepAlive,
		DateFormat: settings.DateFormat,
		Domain:     settings.Domain,
		NewCallID:  s.nextCallID,
	})
	l.Run()
}

func (s *Server) nextCallID() uint32 {
	return atomic.AddUint32(&s.callID, 1)
}

func (s *Server) onExpire(name string, l *device.Listener) {
	s.logger.Warn("[Server] device keepalive expired", "profile", s.name, "device", name)
	s.pub.PublishAsync(events.NewDeviceExpired(name, l.Snapshot().LastSeen))
	l.Close("keepalive expired")
}

// Close stops accepting and tears down every connected device.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ln.Close()
		for _, name := range s.registry.Names() {
			if l, ok := s.registry.Get(name); ok {
				l.Close("server shutdown")
			}
		}
		s.wg.Wait()
		s.registry.Close()
	})
}

// ListDevices snapshots every registered device.
func (s *Server) ListDevices() []device.Info {
	names := s.registry.Names()
	infos := make([]device.Info, 0, len(names))
	for _, name := range names {
		if l, ok := s.registry.Get(name); ok {
			infos = append(infos, l.Snapshot())
		}
	}
	return infos
}

// DumpDevice reports one device's registration state.
func (s *Server) DumpDevice(name string) (device.Info, error) {
	l, ok := s.registry.Get(name)
	if !ok {
		return device.Info{}, fmt.Errorf("device %s not registered", name)
	}
	return l.Snapshot(), nil
}

// KillDevice forcibly disconnects a device.
func (s *Server) KillDevice(name string) error {
	l, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("device %s not registered", name)
	}
	l.Close("killed by admin")
	return nil
}

// SendCommand delivers an arbitrary server-to-device message, the admin
// path for ringer/lamp/speaker/call-state/reset/service data pushes.
func (s *Server) SendCommand(name string, body wire.Body) error {
	l, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("device %s not registered", name)
	}
	if err := l.Send(body); err != nil {
		return fmt.Errorf("send %s to %s: %w", wire.TypeName(body.MessageType()), name, err)
	}
	return nil
}

// Settings returns the profile settings applied to new registrations.
func (s *Server) Settings() Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.settings
}

// UpdateSettings replaces the profile settings. Existing registrations
// keep the values they registered with.
func (s *Server) UpdateSettings(settings Settings) error {
	if settings.KeepAlive <= 0 {
		return fmt.Errorf("keepalive must be positive")
	}
	if settings.DateFormat == "" {
		return fmt.Errorf("date format must not be empty")
	}
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
	s.logger.Info("[Server] settings updated", "profile", s.name,
		"keepalive", settings.KeepAlive.String())
	return nil
}

// Sessions exposes the live call table for the admin surface.
func (s *Server) Sessions() []session.Entry {
	var all []session.Entry
	for _, name := range s.registry.Names() {
		all = append(all, s.sessions.FindByDevice(name, 0)...)
	}
	return all
}
