package roster

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Persister defines what the app needs from the remote sync layer
type Persister interface {
	PushNow(ctx context.Context) error
}

// CreateTeamResult reports the outcome of creating a team. It is the one
// operation whose remote failure is shown to the user.
type CreateTeamResult struct {
	TeamName string `json:"team_name"`
	Created  bool   `json:"created"`
	Success  bool   `json:"success"`
	Err      error  `json:"-"`
}

// TeamView is a team together with its derived views
type TeamView struct {
	Name          string                   `json:"name"`
	Members       map[string]models.Member `json:"members"`
	Present       []string                 `json:"present"`
	Absent        []string                 `json:"absent"`
	HighestCount  string                   `json:"highest_count,omitempty"`
	IsCurrentTeam bool                     `json:"is_current_team"`
}

// App handles roster use cases on top of the store
type App struct {
	store     *Store
	persister Persister
}

// NewApp creates a new roster App. persister may be nil when no remote store
// is configured; team creation then only happens locally.
func NewApp(store *Store, persister Persister) *App {
	return &App{
		store:     store,
		persister: persister,
	}
}

// Store exposes the underlying state container
func (a *App) Store() *Store {
	return a.store
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrBlankName
	}
	return name, nil
}

// EnterTeam selects an existing team. A missing team yields ErrTeamNotFound so
// the caller can offer to create it.
func (a *App) EnterTeam(name string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if !a.store.HasTeam(name) {
		return name, fmt.Errorf("%q: %w", name, ErrTeamNotFound)
	}
	a.store.SetCurrentTeam(name)
	return name, nil
}

// CreateTeam creates the team locally, persists it right away and selects it
func (a *App) CreateTeam(ctx context.Context, name string) CreateTeamResult {
	name, err := cleanName(name)
	if err != nil {
		return CreateTeamResult{TeamName: name, Err: err}
	}

	created := a.store.CreateTeam(name)

	if a.persister != nil {
		if err := a.persister.PushNow(ctx); err != nil {
			log.Error().Err(err).Str("team", name).Msg("failed to persist new team")
			return CreateTeamResult{
				TeamName: name,
				Created:  created,
				Err:      fmt.Errorf("failed to persist team %q: %w", name, err),
			}
		}
	} else {
		log.Warn().Str("team", name).Msg("no remote store configured, team kept locally only")
	}

	a.store.SetCurrentTeam(name)

	log.Info().Str("team", name).Bool("created", created).Msg("team ready")
	return CreateTeamResult{TeamName: name, Created: created, Success: true}
}

// AddMember adds a trimmed, non-blank member name to the team
func (a *App) AddMember(team, member string) (bool, error) {
	member, err := cleanName(member)
	if err != nil {
		return false, err
	}
	return a.store.AddTeamMember(team, member), nil
}

// RemoveMember removes a member from the team
func (a *App) RemoveMember(team, member string) bool {
	return a.store.RemoveTeamMember(team, member)
}

// EditModerationCount sets a user supplied count
func (a *App) EditModerationCount(team, member string, count int) (bool, error) {
	if count < 0 {
		return false, ErrNegativeCount
	}
	return a.store.UpdateModerationCount(team, member, count), nil
}

// RecordModeration adds one moderation to the member
func (a *App) RecordModeration(team, member string) bool {
	return a.store.IncrementModerationCount(team, member)
}

// SetPresence moves a member between the working and absent lists
func (a *App) SetPresence(team, member string, isPresent bool) bool {
	return a.store.SetPresence(team, member, isPresent)
}

// TogglePresence flips a member's presence
func (a *App) TogglePresence(team, member string) bool {
	return a.store.TogglePresence(team, member)
}

// View returns a team with its derived views
func (a *App) View(name string) (*TeamView, error) {
	team, ok := a.store.Team(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrTeamNotFound)
	}

	current, hasCurrent := a.store.CurrentTeam()
	highest, _ := MemberWithHighestCount(team)

	return &TeamView{
		Name:          name,
		Members:       team.Members,
		Present:       SortedNames(PresentMembers(team)),
		Absent:        SortedNames(AbsentMembers(team)),
		HighestCount:  highest,
		IsCurrentTeam: hasCurrent && current == name,
	}, nil
}

// Lookup reports whether team exists and, when member is not empty, whether
// the member is on it
func (a *App) Lookup(team, member string) error {
	t, ok := a.store.Team(team)
	if !ok {
		return fmt.Errorf("%q: %w", team, ErrTeamNotFound)
	}
	if member == "" {
		return nil
	}
	if _, ok := t.Members[member]; !ok {
		return fmt.Errorf("%q in %q: %w", member, team, ErrMemberNotFound)
	}
	return nil
}
