package main

import (
	"context"
	"io"

	"github.com/mcdev12/rollcall/go/internal/config"
	"github.com/mcdev12/rollcall/go/internal/gateway"
	"github.com/mcdev12/rollcall/go/internal/remote"
	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/mcdev12/rollcall/go/internal/wheel"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store   *roster.Store
	App     *roster.App
	Bridge  *remote.Bridge // nil when no remote store is configured
	Gateway *gateway.Service

	remoteCloser io.Closer
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency chain
	// Store → remote bridge → App → Gateway

	store := roster.NewStore()
	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		store.LoadTeamsFromStorage(seed)
		log.Info().Str("file", cfg.SeedFile).Int("teams", len(seed)).Msg("loaded seed roster")
	}

	services := &Services{Store: store}

	var persister roster.Persister
	if cfg.Driver == config.DriverMemory || cfg.Remote.Configured() {
		remoteStore, closer, err := setupRemote(ctx, cfg)
		if err != nil {
			return nil, err
		}
		services.remoteCloser = closer

		bridge := remote.NewBridge(store, remoteStore, remote.WithDebounce(cfg.SyncDebounce))
		if err := bridge.Start(ctx); err != nil {
			closer.Close()
			return nil, err
		}
		services.Bridge = bridge
		persister = bridge
	} else {
		log.Warn().Msg("remote store is not configured, changes stay in this process")
	}

	services.App = roster.NewApp(store, persister)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.WheelOptions = []wheel.Option{wheel.WithConfig(cfg.Wheel)}
	services.Gateway = gateway.NewService(gatewayConfig, services.App)

	return services, nil
}

// Close tears down the bridge and the remote connection
func (s *Services) Close() {
	if s.Bridge != nil {
		if err := s.Bridge.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close sync bridge")
		}
		stats := s.Bridge.Stats()
		log.Info().
			Int64("pushes_attempted", stats.PushesAttempted).
			Int64("pushes_failed", stats.PushesFailed).
			Int64("remote_loads", stats.RemoteLoads).
			Msg("sync bridge closed")
	}
	if s.remoteCloser != nil {
		if err := s.remoteCloser.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close remote store")
		}
	}
}
