// Package survey holds the read-only survey catalog consumed by intake.
//
// A survey is a versioned questionnaire definition. Intake only needs two
// things from it: whether the survey is currently active, and the ordered
// question list (with validation constraints and sensitivity flags).
package survey

import "time"

// Status is a survey lifecycle status.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// QuestionType enumerates the supported answer widgets.
type QuestionType string

const (
	QuestionText     QuestionType = "text"
	QuestionNumber   QuestionType = "number"
	QuestionDate     QuestionType = "date"
	QuestionDropdown QuestionType = "dropdown"
	QuestionCheckbox QuestionType = "checkbox"
	QuestionRadio    QuestionType = "radio"
)

// Survey is a questionnaire definition header.
type Survey struct {
	ID        string
	Title     string
	Status    Status
	CreatedAt time.Time
}

// Active reports whether the survey accepts new sessions and submissions.
func (s Survey) Active() bool { return s.Status == StatusActive }

// Constraints are optional per-question validation bounds.
// Length bounds apply to text answers; Min/Max apply to number answers.
type Constraints struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// Question is a single survey question.
// Options applies to dropdown/checkbox/radio types. Sensitive marks answers
// that must be encrypted at rest.
type Question struct {
	SurveyID    string
	Code        string
	Prompt      string
	Type        QuestionType
	Required    bool
	Sensitive   bool
	Options     []string
	Constraints Constraints
	Position    int
}

// HasOption reports whether v is one of the question's declared options.
func (q Question) HasOption(v string) bool {
	for _, opt := range q.Options {
		if opt == v {
			return true
		}
	}
	return false
}
