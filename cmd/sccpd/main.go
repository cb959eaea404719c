package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbeving/sccpd/internal/app"
	"github.com/rbeving/sccpd/internal/banner"
	"github.com/rbeving/sccpd/internal/config"
	"github.com/rbeving/sccpd/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(os.Stdout, logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.SetLevel(cfg.Log.Level)

	daemon, err := app.NewServer(cfg)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}
	defer daemon.Close()

	run(daemon, cfg)
}

func run(daemon *app.Daemon, cfg *config.Config) {
	apiAddr := "disabled"
	if cfg.API.Enabled {
		apiAddr = cfg.API.Addr
	}
	banner.Print("SCCP CALL CONTROL", []banner.ConfigLine{
		{Label: "Profile", Value: cfg.Profile.Name},
		{Label: "Bind", Value: fmt.Sprintf("%s:%d", cfg.Profile.BindAddr, cfg.Profile.Port)},
		{Label: "Keepalive", Value: fmt.Sprintf("%ds", cfg.Profile.KeepAliveSeconds)},
		{Label: "API", Value: apiAddr},
	})
	slog.Info("Starting SCCP call control server",
		"profile", cfg.Profile.Name,
		"bind", cfg.Profile.BindAddr,
		"port", cfg.Profile.Port,
	)
	if cfg.API.Enabled {
		slog.Info("API available", "addr", cfg.API.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := daemon.Start(ctx); err != nil {
			slog.Error("Server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)
	cancel()

	time.Sleep(time.Second)
}
