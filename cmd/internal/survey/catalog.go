package survey

import "context"

// Catalog is the read boundary intake uses to resolve survey definitions.
type Catalog interface {
	// GetSurvey fetches a survey header by ID. Returns ErrNotFound when absent.
	GetSurvey(ctx context.Context, id string) (Survey, error)

	// Questions returns the survey's questions ordered by position.
	// Returns ErrNotFound when the survey does not exist.
	Questions(ctx context.Context, surveyID string) ([]Question, error)
}
