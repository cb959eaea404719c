// Package app assembles the daemon: directory, dialplan, telephony core,
// events publisher, profile server and admin API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbeving/sccpd/internal/api"
	"github.com/rbeving/sccpd/internal/config"
	"github.com/rbeving/sccpd/internal/dialplan"
	"github.com/rbeving/sccpd/internal/directory"
	"github.com/rbeving/sccpd/internal/events"
	"github.com/rbeving/sccpd/internal/sccp/server"
	"github.com/rbeving/sccpd/internal/sccp/session"
	"github.com/rbeving/sccpd/internal/telco"
)

// Daemon is the assembled call control server.
type Daemon struct {
	cfg       *config.Config
	directory directory.Service
	publisher events.Publisher
	natsPub   *events.NATSPublisher
	profile   *server.Server
	apiServer *api.Server
}

// NewServer wires the daemon from configuration. Close releases
// everything acquired here.
func NewServer(cfg *config.Config) (*Daemon, error) {
	plan, err := dialplan.NewPlan(cfg.Dialplan)
	if err != nil {
		return nil, fmt.Errorf("dialplan: %w", err)
	}

	var dir directory.Service
	if cfg.Database.Path != "" {
		dir, err = directory.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open directory database: %w", err)
		}
		slog.Info("[App] using sqlite directory", "path", cfg.Database.Path)
	} else {
		dir = directory.NewMemoryService()
		slog.Warn("[App] no database configured, directory is in-memory only")
	}

	var pub events.Publisher = events.NewLoggingPublisher(slog.Default())
	var natsPub *events.NATSPublisher
	if cfg.NATS.Enabled {
		natsCfg := events.DefaultNATSConfig()
		if cfg.NATS.URL != "" {
			natsCfg.URL = cfg.NATS.URL
		}
		if cfg.NATS.StreamName != "" {
			natsCfg.StreamName = cfg.NATS.StreamName
		}
		natsPub, err = events.NewNATSPublisher(natsCfg, slog.Default())
		if err != nil {
			_ = dir.Close()
			return nil, fmt.Errorf("connect NATS: %w", err)
		}
		pub = events.NewMultiPublisher(natsPub, events.NewLoggingPublisher(slog.Default()))
	}

	core := telco.NewLocalCore(slog.Default())
	sessions := session.NewDirectory()

	profile, err := server.New(server.Config{
		Name:     cfg.Profile.Name,
		BindAddr: cfg.Profile.BindAddr,
		Port:     cfg.Profile.Port,
		Settings: server.Settings{
			KeepAlive:  time.Duration(cfg.Profile.KeepAliveSeconds) * time.Second,
			DateFormat: cfg.Profile.DateFormat,
			Domain:     cfg.Profile.Domain,
		},
		Directory: dir,
		Sessions:  sessions,
		Core:      core,
		Plan:      plan,
		Publisher: pub,
		Logger:    slog.Default(),
	})
	if err != nil {
		if natsPub != nil {
			natsPub.Close()
		}
		_ = dir.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		directory: dir,
		publisher: pub,
		natsPub:   natsPub,
		profile:   profile,
	}
	if cfg.API.Enabled {
		d.apiServer = api.NewServer(cfg.API.Addr, profile)
	}
	return d, nil
}

// Start serves until the context is cancelled or the accept loop fails.
func (d *Daemon) Start(ctx context.Context) error {
	if d.apiServer != nil {
		if err := d.apiServer.Start(); err != nil {
			return fmt.Errorf("start api: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.profile.Serve() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close tears the daemon down in reverse dependency order.
func (d *Daemon) Close() {
	if d.apiServer != nil {
		if err := d.apiServer.Stop(); err != nil {
			slog.Warn("[App] api stop failed", "error", err)
		}
	}
	d.profile.Close()
	if d.natsPub != nil {
		d.natsPub.Close()
	}
	if err := d.directory.Close(); err != nil {
		slog.Warn("[App] directory close failed", "error", err)
	}
}
