package roster

import (
	"fmt"
	"testing"

	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPresentAbsentPartition(t *testing.T) {
	teams := []models.Team{
		models.NewTeam(),
		{Members: map[string]models.Member{"a": {IsPresent: true}}},
		{Members: map[string]models.Member{"a": {IsPresent: false}, "b": {IsPresent: true, ModerationCount: 2}}},
	}
	big := models.NewTeam()
	for i := 0; i < 40; i++ {
		big.Members[fmt.Sprintf("m%02d", i)] = models.Member{IsPresent: i%3 == 0, ModerationCount: i}
	}
	teams = append(teams, big)

	for i, team := range teams {
		t.Run(fmt.Sprintf("team %d", i), func(t *testing.T) {
			present := PresentMembers(team)
			absent := AbsentMembers(team)

			assert.Equal(t, len(team.Members), len(present)+len(absent))
			for name := range present {
				assert.NotContains(t, absent, name)
			}
			union := make(map[string]models.Member)
			for name, m := range present {
				union[name] = m
			}
			for name, m := range absent {
				union[name] = m
			}
			assert.Equal(t, team.Members, union)
		})
	}
}

func TestMemberWithHighestCount(t *testing.T) {
	t.Run("tie resolves to first in iteration order", func(t *testing.T) {
		team := models.Team{Members: map[string]models.Member{
			"A": {ModerationCount: 3},
			"B": {ModerationCount: 5},
			"C": {ModerationCount: 5},
		}}

		for i := 0; i < 20; i++ {
			name, ok := MemberWithHighestCount(team)
			assert.True(t, ok)
			assert.Equal(t, "B", name)
		}
	})

	t.Run("empty team", func(t *testing.T) {
		name, ok := MemberWithHighestCount(models.NewTeam())
		assert.False(t, ok)
		assert.Empty(t, name)
	})

	t.Run("all zero picks first name", func(t *testing.T) {
		team := models.Team{Members: map[string]models.Member{"zoe": {}, "amy": {}}}
		name, ok := MemberWithHighestCount(team)
		assert.True(t, ok)
		assert.Equal(t, "amy", name)
	})
}

func TestPresentNames(t *testing.T) {
	team := models.Team{Members: map[string]models.Member{
		"dave":  {IsPresent: true},
		"alice": {IsPresent: true},
		"carol": {IsPresent: false},
		"bob":   {IsPresent: true},
	}}
	assert.Equal(t, []string{"alice", "bob", "dave"}, PresentNames(team))
}
