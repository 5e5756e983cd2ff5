package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Member is a single roster entry. Its name is the key in Team.Members.
type Member struct {
	ModerationCount int  `json:"moderationCount"`
	IsPresent       bool `json:"isPresent"`
}

// NewMember returns the state every freshly added member starts with.
func NewMember() Member {
	return Member{ModerationCount: 0, IsPresent: true}
}

// Team is a named roster. Its name is the key in Teams.
type Team struct {
	Members map[string]Member `json:"members"`
}

// NewTeam returns an empty team.
func NewTeam() Team {
	return Team{Members: make(map[string]Member)}
}

// Clone returns a deep copy of the team.
func (t Team) Clone() Team {
	members := make(map[string]Member, len(t.Members))
	for name, m := range t.Members {
		members[name] = m
	}
	return Team{Members: members}
}

// Teams maps team name to team. It is also the shape of the persisted document.
type Teams map[string]Team

// Clone returns a deep copy. A nil receiver yields an empty, non-nil map.
func (ts Teams) Clone() Teams {
	out := make(Teams, len(ts))
	for name, t := range ts {
		out[name] = t.Clone()
	}
	return out
}

// Names returns the team names in iteration order (ascending).
func (ts Teams) Names() []string {
	names := make([]string, 0, len(ts))
	for name := range ts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether there is nothing to load from a document.
func (ts Teams) IsEmpty() bool {
	return len(ts) == 0
}

// Equal reports whether both mappings hold the same teams, members, counts and presence flags.
func (ts Teams) Equal(other Teams) bool {
	if len(ts) != len(other) {
		return false
	}
	for name, t := range ts {
		o, ok := other[name]
		if !ok || len(t.Members) != len(o.Members) {
			return false
		}
		for member, m := range t.Members {
			if om, ok := o.Members[member]; !ok || om != m {
				return false
			}
		}
	}
	return true
}

// EncodeTeams serializes teams into the persisted document form.
func EncodeTeams(ts Teams) ([]byte, error) {
	if ts == nil {
		ts = Teams{}
	}
	data, err := json.Marshal(ts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode teams: %w", err)
	}
	return data, nil
}

// DecodeTeams parses a persisted document. A null or empty document decodes to
// a nil mapping. Teams whose members object was dropped by the store come back
// with an empty member map. Negative moderation counts are clamped to 0.
func DecodeTeams(data []byte) (Teams, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var ts Teams
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to decode teams: %w", err)
	}

	for name, t := range ts {
		if t.Members == nil {
			ts[name] = NewTeam()
			continue
		}
		for member, m := range t.Members {
			if m.ModerationCount < 0 {
				m.ModerationCount = 0
				t.Members[member] = m
			}
		}
	}
	return ts, nil
}
