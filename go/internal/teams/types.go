package teams

import "github.com/mcdev12/dynasty-projections/go/internal/models"

// CreateTeamRequest represents the data needed to register a team
type CreateTeamRequest struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	City       string `json:"city"`
	Conference string `json:"conference,omitempty"`
	Division   string `json:"division,omitempty"`
}

// UpdateTeamRequest represents the fields that can change on a team
type UpdateTeamRequest struct {
	Code       *string `json:"code,omitempty"`
	Name       *string `json:"name,omitempty"`
	City       *string `json:"city,omitempty"`
	Conference *string `json:"conference,omitempty"`
	Division   *string `json:"division,omitempty"`
}

// TeamFilter represents filtering options for team queries
type TeamFilter struct {
	Conference string `json:"conference,omitempty"`
	Division   string `json:"division,omitempty"`
}

// PaginationParams represents pagination parameters. A zero Limit returns every team.
type PaginationParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// TeamListResponse represents a paginated list of teams
type TeamListResponse struct {
	Teams   []models.Team `json:"teams"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	HasMore bool          `json:"has_more"`
}

// ImportResult represents the result of importing teams
type ImportResult struct {
	TotalProcessed int     `json:"total_processed"`
	Created        int     `json:"created"`
	Updated        int     `json:"updated"`
	Errors         []error `json:"-"`
}
