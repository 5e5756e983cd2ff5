package roster

import (
	"sync"

	"github.com/mcdev12/rollcall/go/internal/models"
)

// ChangeSource tells observers where a teams change came from
type ChangeSource int

const (
	// SourceLocal is a mutation issued by a user of this process
	SourceLocal ChangeSource = iota
	// SourceRemote is a bulk overwrite from the remote document
	SourceRemote
)

func (s ChangeSource) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Observer is called after every mutation that changed the teams mapping
type Observer func(source ChangeSource)

// Store holds the teams and the current team selection. It is the only place
// the state is mutated; every operation is atomic and none of them fail.
// Referencing a team or member that does not exist is a silent no-op, since
// remote snapshots may lag behind what the user is looking at.
type Store struct {
	mu          sync.Mutex
	teams       models.Teams
	currentTeam string
	hasCurrent  bool

	observersMu sync.RWMutex
	observers   map[int]Observer
	nextID      int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		teams:     make(models.Teams),
		observers: make(map[int]Observer),
	}
}

// Observe registers fn for teams changes. Changes to the current team are not
// reported. The returned func removes the observer.
func (s *Store) Observe(fn Observer) (cancel func()) {
	s.observersMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.observersMu.Unlock()

	return func() {
		s.observersMu.Lock()
		delete(s.observers, id)
		s.observersMu.Unlock()
	}
}

func (s *Store) notify(source ChangeSource) {
	s.observersMu.RLock()
	fns := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.observersMu.RUnlock()

	for _, fn := range fns {
		fn(source)
	}
}

// mutate runs fn under the lock and notifies observers if fn reports a change
func (s *Store) mutate(source ChangeSource, fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	s.mu.Unlock()

	if changed {
		s.notify(source)
	}
	return changed
}

// withMember runs fn on an existing member and writes the result back
func (s *Store) withMember(team, member string, fn func(m *models.Member) bool) bool {
	return s.mutate(SourceLocal, func() bool {
		t, ok := s.teams[team]
		if !ok {
			return false
		}
		m, ok := t.Members[member]
		if !ok {
			return false
		}
		if !fn(&m) {
			return false
		}
		t.Members[member] = m
		return true
	})
}

// SetCurrentTeam selects a team. Existence is the caller's concern.
func (s *Store) SetCurrentTeam(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTeam = name
	s.hasCurrent = true
}

// CurrentTeam returns the selected team, if any
func (s *Store) CurrentTeam() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTeam, s.hasCurrent
}

// CreateTeam inserts an empty team unless one with that name already exists,
// then selects it. It reports whether a team was inserted.
func (s *Store) CreateTeam(name string) bool {
	return s.mutate(SourceLocal, func() bool {
		s.currentTeam = name
		s.hasCurrent = true
		if _, exists := s.teams[name]; exists {
			return false
		}
		s.teams[name] = models.NewTeam()
		return true
	})
}

// AddTeamMember adds a fresh member to an existing team. Adding a name that is
// already on the team does nothing, so its count is never reset.
func (s *Store) AddTeamMember(team, member string) bool {
	return s.mutate(SourceLocal, func() bool {
		t, ok := s.teams[team]
		if !ok {
			return false
		}
		if _, exists := t.Members[member]; exists {
			return false
		}
		if t.Members == nil {
			t.Members = make(map[string]models.Member)
			s.teams[team] = t
		}
		t.Members[member] = models.NewMember()
		return true
	})
}

// RemoveTeamMember deletes the member entry entirely
func (s *Store) RemoveTeamMember(team, member string) bool {
	return s.mutate(SourceLocal, func() bool {
		t, ok := s.teams[team]
		if !ok {
			return false
		}
		if _, exists := t.Members[member]; !exists {
			return false
		}
		delete(t.Members, member)
		return true
	})
}

// UpdateModerationCount sets an exact count. Negative counts are ignored.
func (s *Store) UpdateModerationCount(team, member string, count int) bool {
	if count < 0 {
		return false
	}
	return s.withMember(team, member, func(m *models.Member) bool {
		if m.ModerationCount == count {
			return false
		}
		m.ModerationCount = count
		return true
	})
}

// IncrementModerationCount adds one moderation to the member
func (s *Store) IncrementModerationCount(team, member string) bool {
	return s.withMember(team, member, func(m *models.Member) bool {
		m.ModerationCount++
		return true
	})
}

// SetPresence marks the member present or absent
func (s *Store) SetPresence(team, member string, isPresent bool) bool {
	return s.withMember(team, member, func(m *models.Member) bool {
		if m.IsPresent == isPresent {
			return false
		}
		m.IsPresent = isPresent
		return true
	})
}

// TogglePresence flips the member's presence
func (s *Store) TogglePresence(team, member string) bool {
	return s.withMember(team, member, func(m *models.Member) bool {
		m.IsPresent = !m.IsPresent
		return true
	})
}

// LoadTeamsFromStorage replaces the whole teams mapping with snapshot. There is
// no merge. The current team is left alone.
func (s *Store) LoadTeamsFromStorage(snapshot models.Teams) {
	s.mutate(SourceRemote, func() bool {
		s.teams = snapshot.Clone()
		return true
	})
}

// Teams returns a deep copy of all teams
func (s *Store) Teams() models.Teams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teams.Clone()
}

// Team returns a copy of one team
func (s *Store) Team(name string) (models.Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[name]
	if !ok {
		return models.Team{}, false
	}
	return t.Clone(), true
}

// HasTeam reports whether a team with that name exists
func (s *Store) HasTeam(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.teams[name]
	return ok
}

// TeamNames lists teams in iteration order
func (s *Store) TeamNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teams.Names()
}
