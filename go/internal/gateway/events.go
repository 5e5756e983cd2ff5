package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/mcdev12/rollcall/go/internal/wheel"
)

// RosterEvent is the envelope pushed to WebSocket clients
type RosterEvent struct {
	ID        string          `json:"id"`
	Team      string          `json:"team,omitempty"` // empty for events about every team
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of roster event
type EventType string

const (
	EventTypeTeamsUpdated EventType = "TeamsUpdated"
	EventTypeSpinStarted  EventType = "SpinStarted"
	EventTypeSpinResolved EventType = "SpinResolved"
)

// TeamsUpdatedPayload carries the whole roster after a change
type TeamsUpdatedPayload struct {
	Teams  models.Teams `json:"teams"`
	Source string       `json:"source"`
}

// SpinStartedPayload is the plan a client animates
type SpinStartedPayload struct {
	Plan     *wheel.SpinPlan `json:"plan"`
	Segments []wheel.Segment `json:"segments"`
}

// NewEvent wraps payload into an event envelope
func NewEvent(eventType EventType, team string, payload any) (*RosterEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &RosterEvent{
		ID:        uuid.New().String(),
		Team:      team,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
