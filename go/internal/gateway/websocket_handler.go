package gateway

import (
	"net/http"

	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for roster events
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	store             *roster.Store
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, store *roster.Store) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		store:             store,
	}
}

// HandleRosterConnection handles GET /ws/roster. The optional team query
// parameter limits wheel events to that team; roster updates go to everyone.
func (h *WebSocketHandler) HandleRosterConnection(w http.ResponseWriter, r *http.Request) {
	team := r.URL.Query().Get("team")
	if team != "" && !h.store.HasTeam(team) {
		http.Error(w, "team not found", http.StatusNotFound)
		return
	}

	initial, err := NewEvent(EventTypeTeamsUpdated, "", TeamsUpdatedPayload{
		Teams:  h.store.Teams(),
		Source: "snapshot",
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build roster snapshot")
	}

	// Upgrade writes its own error response
	if err := h.connectionManager.UpgradeConnection(w, r, team, initial); err != nil {
		log.Error().
			Err(err).
			Str("team", team).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/roster", h.HandleRosterConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
