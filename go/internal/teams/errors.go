package teams

import "errors"

var (
	ErrCodeRequired      = errors.New("code is required")
	ErrNameRequired      = errors.New("name is required")
	ErrCityRequired      = errors.New("city is required")
	ErrInvalidConference = errors.New("conference must be AFC or NFC")
	ErrInvalidDivision   = errors.New("division must be East, North, South or West")
	// ErrTeamHasPlayers is returned when deleting a team that still rosters players.
	ErrTeamHasPlayers = errors.New("team still has rostered players")
)
