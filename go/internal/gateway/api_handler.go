package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/rollcall/go/internal/roster"
	"github.com/mcdev12/rollcall/go/internal/wheel"
	"github.com/rs/zerolog/log"
)

// Broadcaster fans events out to connected clients
type Broadcaster interface {
	BroadcastToTeam(team string, event *RosterEvent)
	BroadcastToAll(event *RosterEvent)
}

// APIHandler serves the roster JSON API
type APIHandler struct {
	app    *roster.App
	wheels *WheelRegistry
	events Broadcaster
	layout wheel.Layout
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(app *roster.App, wheels *WheelRegistry, events Broadcaster, layout wheel.Layout) *APIHandler {
	return &APIHandler{
		app:    app,
		wheels: wheels,
		events: events,
		layout: layout,
	}
}

// RegisterRoutes registers the API routes with an HTTP mux
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/teams", h.HandleListTeams)
	mux.HandleFunc("POST /api/teams", h.HandleCreateTeam)
	mux.HandleFunc("PUT /api/session/team", h.HandleEnterTeam)
	mux.HandleFunc("GET /api/teams/{team}", h.HandleGetTeam)

	mux.HandleFunc("POST /api/teams/{team}/members", h.HandleAddMember)
	mux.HandleFunc("DELETE /api/teams/{team}/members/{member}", h.HandleRemoveMember)
	mux.HandleFunc("PUT /api/teams/{team}/members/{member}/presence", h.HandleSetPresence)
	mux.HandleFunc("POST /api/teams/{team}/members/{member}/presence/toggle", h.HandleTogglePresence)
	mux.HandleFunc("PUT /api/teams/{team}/members/{member}/count", h.HandleSetCount)
	mux.HandleFunc("POST /api/teams/{team}/members/{member}/moderations", h.HandleRecordModeration)

	mux.HandleFunc("GET /api/teams/{team}/wheel", h.HandleGetWheel)
	mux.HandleFunc("POST /api/teams/{team}/wheel/spin", h.HandleSpin)
	mux.HandleFunc("POST /api/teams/{team}/wheel/confirm", h.HandleConfirm)
}

type nameRequest struct {
	Name   string `json:"name"`
	Create bool   `json:"create,omitempty"`
}

type presenceRequest struct {
	IsPresent *bool `json:"isPresent"`
}

type countRequest struct {
	Count *int `json:"count"`
}

// TeamList is the response of GET /api/teams
type TeamList struct {
	Teams   []string `json:"teams"`
	Current string   `json:"current,omitempty"`
}

// MemberChange is the response of member operations
type MemberChange struct {
	Changed bool             `json:"changed"`
	Team    *roster.TeamView `json:"team"`
}

// WheelView is the response of GET /api/teams/{team}/wheel
type WheelView struct {
	wheel.Snapshot
	Layout   wheel.Layout    `json:"layout"`
	Segments []wheel.Segment `json:"segments"`
	Pending  *wheel.SpinPlan `json:"pending,omitempty"`
}

// HandleListTeams handles GET /api/teams
func (h *APIHandler) HandleListTeams(w http.ResponseWriter, r *http.Request) {
	current, _ := h.app.Store().CurrentTeam()
	writeJSON(w, http.StatusOK, TeamList{
		Teams:   h.app.Store().TeamNames(),
		Current: current,
	})
}

// HandleCreateTeam handles POST /api/teams
func (h *APIHandler) HandleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.createTeam(w, r, req.Name)
}

func (h *APIHandler) createTeam(w http.ResponseWriter, r *http.Request, name string) {
	result := h.app.CreateTeam(r.Context(), name)
	switch {
	case errors.Is(result.Err, roster.ErrBlankName):
		writeError(w, http.StatusBadRequest, result.Err)
	case !result.Success:
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"team_name": result.TeamName,
			"success":   false,
			"error":     "Failed to create team. Please try again.",
		})
	case result.Created:
		writeJSON(w, http.StatusCreated, result)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleEnterTeam handles PUT /api/session/team. A missing team is created
// only when the request asks for it.
func (h *APIHandler) HandleEnterTeam(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}

	name, err := h.app.EnterTeam(req.Name)
	if errors.Is(err, roster.ErrTeamNotFound) && req.Create {
		h.createTeam(w, r, name)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.writeTeam(w, name)
}

// HandleGetTeam handles GET /api/teams/{team}
func (h *APIHandler) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	h.writeTeam(w, r.PathValue("team"))
}

// HandleAddMember handles POST /api/teams/{team}/members
func (h *APIHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	team := r.PathValue("team")
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}

	changed, err := h.app.AddMember(team, req.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.writeChange(w, team, "", changed)
}

// HandleRemoveMember handles DELETE /api/teams/{team}/members/{member}
func (h *APIHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	team, member := r.PathValue("team"), r.PathValue("member")
	h.writeChange(w, team, member, h.app.RemoveMember(team, member))
}

// HandleSetPresence handles PUT /api/teams/{team}/members/{member}/presence
func (h *APIHandler) HandleSetPresence(w http.ResponseWriter, r *http.Request) {
	team, member := r.PathValue("team"), r.PathValue("member")
	var req presenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsPresent == nil {
		writeError(w, http.StatusBadRequest, errors.New("isPresent is required"))
		return
	}
	h.writeChange(w, team, member, h.app.SetPresence(team, member, *req.IsPresent))
}

// HandleTogglePresence handles POST /api/teams/{team}/members/{member}/presence/toggle
func (h *APIHandler) HandleTogglePresence(w http.ResponseWriter, r *http.Request) {
	team, member := r.PathValue("team"), r.PathValue("member")
	h.writeChange(w, team, member, h.app.TogglePresence(team, member))
}

// HandleSetCount handles PUT /api/teams/{team}/members/{member}/count
func (h *APIHandler) HandleSetCount(w http.ResponseWriter, r *http.Request) {
	team, member := r.PathValue("team"), r.PathValue("member")
	var req countRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Count == nil {
		writeError(w, http.StatusBadRequest, errors.New("count is required"))
		return
	}

	changed, err := h.app.EditModerationCount(team, member, *req.Count)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.writeChange(w, team, member, changed)
}

// HandleRecordModeration handles POST /api/teams/{team}/members/{member}/moderations
func (h *APIHandler) HandleRecordModeration(w http.ResponseWriter, r *http.Request) {
	team, member := r.PathValue("team"), r.PathValue("member")
	h.writeChange(w, team, member, h.app.RecordModeration(team, member))
}

// HandleGetWheel handles GET /api/teams/{team}/wheel
func (h *APIHandler) HandleGetWheel(w http.ResponseWriter, r *http.Request) {
	engine, err := h.wheels.Get(r.PathValue("team"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	snapshot := engine.Snapshot()
	view := WheelView{
		Snapshot: snapshot,
		Layout:   h.layout,
		Segments: h.layout.Segments(snapshot.Candidates),
	}
	if plan, ok := engine.Pending(); ok {
		view.Pending = plan
		view.Segments = h.layout.Segments(plan.Candidates)
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSpin handles POST /api/teams/{team}/wheel/spin
func (h *APIHandler) HandleSpin(w http.ResponseWriter, r *http.Request) {
	team := r.PathValue("team")
	engine, err := h.wheels.Get(team)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	plan, err := engine.Spin()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	payload := SpinStartedPayload{Plan: plan, Segments: h.layout.Segments(plan.Candidates)}
	if event, err := NewEvent(EventTypeSpinStarted, team, payload); err != nil {
		log.Error().Err(err).Msg("failed to build spin event")
	} else {
		h.events.BroadcastToTeam(team, event)
	}

	writeJSON(w, http.StatusAccepted, payload)
}

// HandleConfirm handles POST /api/teams/{team}/wheel/confirm
func (h *APIHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	engine, err := h.wheels.Get(r.PathValue("team"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	winner, err := engine.ConfirmSoleWinner()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"winner": winner})
}

func (h *APIHandler) writeTeam(w http.ResponseWriter, team string) {
	view, err := h.app.View(team)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// writeChange reports a member operation. An unchanged result for a missing
// team or member is reported as not found.
func (h *APIHandler) writeChange(w http.ResponseWriter, team, member string, changed bool) {
	if !changed {
		if err := h.app.Lookup(team, member); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}

	view, err := h.app.View(team)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, MemberChange{Changed: changed, Team: view})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, roster.ErrBlankName), errors.Is(err, roster.ErrNegativeCount):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrTeamNotFound), errors.Is(err, roster.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, wheel.ErrSpinning):
		return http.StatusConflict
	case errors.Is(err, wheel.ErrNotEnoughCandidates), errors.Is(err, wheel.ErrNoSoleCandidate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wheel.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
