package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mcdev12/rollcall/go/internal/models"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of a starting roster:
//
//	teams:
//	  - name: core
//	    members:
//	      - name: alice
//	        moderationCount: 2
//	      - name: bob
//	        present: false
type SeedFile struct {
	Teams []SeedTeam `yaml:"teams"`
}

type SeedTeam struct {
	Name    string       `yaml:"name"`
	Members []SeedMember `yaml:"members"`
}

type SeedMember struct {
	Name            string `yaml:"name"`
	ModerationCount int    `yaml:"moderationCount"`
	Present         *bool  `yaml:"present"` // defaults to true
}

// LoadSeed reads a seed roster from path
func LoadSeed(path string) (models.Teams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed converts YAML seed data into teams
func ParseSeed(data []byte) (models.Teams, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	teams := make(models.Teams, len(seed.Teams))
	for _, st := range seed.Teams {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return nil, fmt.Errorf("seed team without a name")
		}
		if _, dup := teams[name]; dup {
			return nil, fmt.Errorf("duplicate seed team %q", name)
		}

		team := models.NewTeam()
		for _, sm := range st.Members {
			member := strings.TrimSpace(sm.Name)
			if member == "" {
				return nil, fmt.Errorf("team %q: member without a name", name)
			}
			if sm.ModerationCount < 0 {
				return nil, fmt.Errorf("team %q: member %q has a negative moderation count", name, member)
			}
			present := true
			if sm.Present != nil {
				present = *sm.Present
			}
			team.Members[member] = models.Member{ModerationCount: sm.ModerationCount, IsPresent: present}
		}
		teams[name] = team
	}
	return teams, nil
}
