package roster

import "errors"

var (
	// ErrBlankName is returned when a team or member name is empty after trimming
	ErrBlankName = errors.New("name is blank")
	// ErrTeamNotFound is returned when entering a team that does not exist yet
	ErrTeamNotFound = errors.New("team not found")
	// ErrMemberNotFound is returned when a member is not on the team
	ErrMemberNotFound = errors.New("member not found")
	// ErrNegativeCount is returned for a moderation count below zero
	ErrNegativeCount = errors.New("moderation count must not be negative")
)
