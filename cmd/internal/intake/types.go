// Package intake implements invitation-gated survey submission.
//
// The flow is: an operator issues a single-use invitation token for an
// active survey; the recipient starts a session with that token, autosaves
// partial answers, and finally completes the session. Completion consumes
// the invitation exactly once and persists an immutable response, with
// sensitive answers encrypted at rest.
package intake

import "time"

// InvitationStatus is an invitation lifecycle status.
type InvitationStatus string

const (
	// InvitationPending: issued, not yet delivered or used.
	InvitationPending InvitationStatus = "pending"
	// InvitationSent: delivered to the recipient, still usable.
	InvitationSent InvitationStatus = "sent"
	// InvitationBounced: delivery failed; still usable if the link leaked through.
	InvitationBounced InvitationStatus = "bounced"
	// InvitationCompleted: consumed by a submission. Terminal.
	InvitationCompleted InvitationStatus = "completed"
	// InvitationExpired: deadline passed before use. Terminal.
	InvitationExpired InvitationStatus = "expired"
)

// Usable reports whether the status still admits a submission
// (the expiry deadline is checked separately).
func (s InvitationStatus) Usable() bool {
	switch s {
	case InvitationPending, InvitationSent, InvitationBounced:
		return true
	default:
		return false
	}
}

// Invitation is a single-use, expiring grant to submit one survey response.
// The plain token is never stored; only its hash is.
type Invitation struct {
	ID        string
	SurveyID  string
	Recipient *string
	Status    InvitationStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStatus is a session lifecycle status.
type SessionStatus string

const (
	SessionStarted    SessionStatus = "started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// Session is a respondent's in-flight answer sheet.
// An empty InvitationID marks an anonymous session on a public survey;
// such sessions bypass the invitation gate at completion.
// Answers maps question code to the latest saved raw value.
type Session struct {
	ID           string
	SurveyID     string
	InvitationID string
	Status       SessionStatus
	Answers      map[string]string
	StartedAt    time.Time
	LastSavedAt  time.Time
	CompletedAt  *time.Time
}

// Open reports whether the session can still accept saves.
func (s Session) Open() bool {
	return s.Status == SessionStarted || s.Status == SessionInProgress
}

// Answer is a single persisted answer within a response.
// For sensitive questions Value holds the sealed envelope, not the plaintext.
type Answer struct {
	QuestionCode string
	Value        string
	Sensitive    bool
}

// Response is an immutable submitted survey response.
// InvitationID is empty for anonymous submissions.
type Response struct {
	ID           string
	SurveyID     string
	InvitationID string
	SubmittedAt  time.Time
	Answers      []Answer
}
