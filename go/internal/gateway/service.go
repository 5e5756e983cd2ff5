// Package gateway exposes the roster and the moderator wheels over HTTP and
// pushes changes to browsers over WebSocket.
package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/mcdev12/rollcall/go/internal/wheel"
	"github.com/rs/zerolog/log"
)

// Service is the roster gateway: JSON API, wheels and WebSocket fan-out
type Service struct {
	store             *roster.Store
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	apiHandler        *APIHandler
	wheels            *WheelRegistry
	cancelObserve     func()
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Layout           wheel.Layout
	WheelOptions     []wheel.Option
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Layout:           wheel.DefaultLayout(),
	}
}

// NewService creates a new gateway service on top of app
func NewService(config Config, app *roster.App) *Service {
	store := app.Store()
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	s := &Service{
		store:             store,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, store),
	}
	s.wheels = NewWheelRegistry(store, s.onSpinResolved, config.WheelOptions...)
	s.apiHandler = NewAPIHandler(app, s.wheels, connectionManager, config.Layout)
	s.cancelObserve = store.Observe(s.onTeamsChanged)
	return s
}

// Start broadcasts store changes and wheel results until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting roster gateway service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("roster gateway service shutting down")
	return s.Stop()
}

// Stop detaches from the store and stops every wheel
func (s *Service) Stop() error {
	if s.cancelObserve != nil {
		s.cancelObserve()
	}
	s.wheels.Close()
	log.Info().Msg("roster gateway service stopped")
	return nil
}

// RegisterRoutes registers the API and WebSocket routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.apiHandler.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("roster gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]any {
	stats := s.connectionManager.GetConnectionStats()
	return map[string]any{
		"service":           "rollcall_gateway",
		"total_connections": stats.TotalConnections,
		"active_teams":      stats.ActiveTeams,
		"wheels":            s.wheels.Len(),
	}
}

func (s *Service) onTeamsChanged(source roster.ChangeSource) {
	s.wheels.Refresh()

	event, err := NewEvent(EventTypeTeamsUpdated, "", TeamsUpdatedPayload{
		Teams:  s.store.Teams(),
		Source: source.String(),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build teams event")
		return
	}
	s.connectionManager.BroadcastToAll(event)
}

func (s *Service) onSpinResolved(res wheel.Resolution) {
	event, err := NewEvent(EventTypeSpinResolved, res.Team, res)
	if err != nil {
		log.Error().Err(err).Msg("failed to build spin event")
		return
	}
	s.connectionManager.BroadcastToTeam(res.Team, event)
}
