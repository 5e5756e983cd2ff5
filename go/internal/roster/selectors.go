package roster

import (
	"sort"

	"github.com/mcdev12/rollcall/go/internal/models"
)

// Selectors are pure reads over a team. Iteration order is ascending member name.

// SortedNames returns the member names of a team in iteration order
func SortedNames(members map[string]models.Member) []string {
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func filterMembers(team models.Team, present bool) map[string]models.Member {
	out := make(map[string]models.Member)
	for name, m := range team.Members {
		if m.IsPresent == present {
			out[name] = m
		}
	}
	return out
}

// PresentMembers returns the members eligible for today's draw
func PresentMembers(team models.Team) map[string]models.Member {
	return filterMembers(team, true)
}

// AbsentMembers returns the members sitting today out
func AbsentMembers(team models.Team) map[string]models.Member {
	return filterMembers(team, false)
}

// PresentNames returns the wheel candidates in iteration order
func PresentNames(team models.Team) []string {
	return SortedNames(PresentMembers(team))
}

// MemberWithHighestCount returns the member with the strictly greatest
// moderation count. On a tie the first member in iteration order wins.
func MemberWithHighestCount(team models.Team) (string, bool) {
	best, bestCount, found := "", 0, false
	for _, name := range SortedNames(team.Members) {
		if count := team.Members[name].ModerationCount; !found || count > bestCount {
			best, bestCount, found = name, count, true
		}
	}
	return best, found
}
