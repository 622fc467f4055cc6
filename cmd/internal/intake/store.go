package intake

import (
	"context"
	"time"
)

// InvitationRecord is a normalized invitation insert payload.
type InvitationRecord struct {
	ID        string
	SurveyID  string
	Recipient *string
	TokenHash string
	Status    InvitationStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRecord is a normalized session insert payload.
// An empty InvitationID creates an anonymous session.
type SessionRecord struct {
	ID           string
	SurveyID     string
	InvitationID string
	StartedAt    time.Time
}

// SaveInput describes an autosave merge. Answers are merged key by key into
// the session's saved answers; later saves win per key.
type SaveInput struct {
	SessionID string
	Answers   map[string]string
	Now       time.Time
}

// CompleteInput drives the atomic completion transaction.
//
// Prepare is called with the locked session after the open/used/expired
// checks pass. It must be pure: it validates the merged answers and seals
// sensitive values, returning the final answer rows to persist. Any error
// aborts the transaction without consuming the invitation.
type CompleteInput struct {
	SessionID  string
	ResponseID string
	Now        time.Time
	Prepare    func(s Session) ([]Answer, error)
}

// Store is the persistence boundary for intake.
//
// CompleteSession must be atomic: the invitation gate, the response insert,
// and the session close either all happen or none do. At most one call per
// invitation may succeed, concurrency included. Anonymous sessions carry no
// invitation and skip the gate; the session close alone keeps their
// completion single-shot.
type Store interface {
	CreateInvitation(ctx context.Context, in InvitationRecord) (Invitation, error)
	GetInvitation(ctx context.Context, id string) (Invitation, error)
	GetInvitationByTokenHash(ctx context.Context, tokenHash string) (Invitation, error)

	CreateSession(ctx context.Context, in SessionRecord) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	GetSessionByInvitation(ctx context.Context, invitationID string) (Session, error)
	SaveAnswers(ctx context.Context, in SaveInput) (Session, error)

	CompleteSession(ctx context.Context, in CompleteInput) (Response, error)
	GetResponse(ctx context.Context, id string) (Response, error)

	// SweepExpired marks lapsed usable invitations expired and abandons their
	// open sessions. Returns the number of invitations expired.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	Close() error
}
