package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/agentgate/internal/auth"
	"github.com/loykin/agentgate/internal/config"
	"github.com/loykin/agentgate/internal/history"
	"github.com/loykin/agentgate/internal/history/factory"
	"github.com/loykin/agentgate/internal/metrics"
	"github.com/loykin/agentgate/internal/proxy"
	"github.com/loykin/agentgate/internal/status"
	"github.com/loykin/agentgate/internal/supervisor"
	gatetls "github.com/loykin/agentgate/internal/tls"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=agentgate.toml or provide as argument")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	log := cfg.Log.NewSlogger()
	slog.SetDefault(log)

	// History sink for phase transitions
	var sink history.Sink
	if cfg.History != nil && cfg.History.Enabled {
		sink, err = factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("failed to create history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
	}

	tracker := status.NewTracker()
	tracker.OnChange(func(from, to status.Phase, snap status.Snapshot) {
		metrics.RecordPhaseTransition(string(from), string(to))
		if sink == nil {
			return
		}
		e := history.Event{
			From:       from,
			To:         to,
			OccurredAt: time.Now().UTC(),
			PID:        snap.PID,
			Error:      snap.LastError,
		}
		if err := sink.Send(context.Background(), e); err != nil {
			log.Warn("history sink send failed", "err", err)
		}
	})

	// Metrics
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := metrics.RegisterDefault(); err != nil {
			log.Warn("failed to register metrics", "err", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := metrics.Serve(cfg.Metrics.Listen); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "err", err)
				}
			}()
		}
	}

	childLog := cfg.Log.ChildWriter(cfg.Agent.Name)

	sup := supervisor.New(cfg.Agent, tracker, log, childLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Error("supervision ended with error", "err", err)
		}
	}()

	authmw := auth.New(cfg.Auth.Enabled, cfg.Auth.Username, cfg.Auth.Password, cfg.PlatformActive)
	router := proxy.NewRouter(tracker, cfg.Routes, cfg.Proxy, cfg.ProxyTarget(), authmw)
	server := proxy.NewServer(cfg.Server.Listen, router.Handler(), cfg.Proxy.Timeout)

	protocol := "HTTP"
	errCh := make(chan error, 1)
	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		protocol = "HTTPS"
		tlsCfg, err := gatetls.Setup(cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		server.TLSConfig = tlsCfg
		go func() { errCh <- server.ListenAndServeTLS("", "") }()
	} else {
		go func() { errCh <- server.ListenAndServe() }()
	}

	log.Info("gateway started",
		"protocol", protocol,
		"listen", cfg.Server.Listen,
		"agent", cfg.Agent.Name,
		"target", cfg.ProxyTarget(),
		"workdir", cfg.Agent.WorkDir,
		"platform", cfg.PlatformActive())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			cancel()
			sup.Shutdown(cfg.Agent.StopWait)
			return fmt.Errorf("server error: %w", err)
		}
	}

	cancel()
	sup.Shutdown(cfg.Agent.StopWait)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return server.Close()
	}
	return nil
}
