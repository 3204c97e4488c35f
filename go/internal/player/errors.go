package player

import "errors"

var (
	ErrExternalIDRequired = errors.New("external_id is required")
	ErrFullNameRequired   = errors.New("full_name is required")
	// ErrInvalidDraftPick covers non-positive picks and a pick on an undrafted player.
	ErrInvalidDraftPick = errors.New("invalid draft pick")
	ErrUnknownTeam      = errors.New("team is not registered")
)
