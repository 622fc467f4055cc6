package intake

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a dev/test fallback when DB is not configured.
// A single mutex serializes every operation, which gives CompleteSession the
// same at-most-once guarantee the Postgres transaction provides.
type MemoryStore struct {
	mu              sync.Mutex
	invitations     map[string]*Invitation // by id
	invitationByTok map[string]string      // token hash -> id
	sessions        map[string]*Session    // by id
	sessionByInv    map[string]string      // invitation id -> session id
	responses       map[string]*Response   // by id
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invitations:     make(map[string]*Invitation),
		invitationByTok: make(map[string]string),
		sessions:        make(map[string]*Session),
		sessionByInv:    make(map[string]string),
		responses:       make(map[string]*Response),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// CreateInvitation inserts a new invitation record.
func (s *MemoryStore) CreateInvitation(ctx context.Context, in InvitationRecord) (Invitation, error) {
	if err := ctx.Err(); err != nil {
		return Invitation{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.SurveyID) == "" || strings.TrimSpace(in.TokenHash) == "" {
		return Invitation{}, ErrInvalidInput
	}
	if !in.ExpiresAt.After(in.CreatedAt) {
		return Invitation{}, ErrInvalidInput
	}
	if in.Status == "" {
		in.Status = InvitationPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invitations[in.ID]; ok {
		return Invitation{}, ErrInvalidInput
	}
	if _, ok := s.invitationByTok[in.TokenHash]; ok {
		return Invitation{}, ErrInvalidInput
	}

	inv := Invitation{
		ID:        in.ID,
		SurveyID:  in.SurveyID,
		Recipient: in.Recipient,
		Status:    in.Status,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}
	s.invitations[in.ID] = &inv
	s.invitationByTok[in.TokenHash] = in.ID
	return inv, nil
}

// GetInvitation fetches an invitation by ID.
func (s *MemoryStore) GetInvitation(ctx context.Context, id string) (Invitation, error) {
	if err := ctx.Err(); err != nil {
		return Invitation{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Invitation{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[id]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	return *inv, nil
}

// GetInvitationByTokenHash fetches an invitation by token hash.
func (s *MemoryStore) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (Invitation, error) {
	if err := ctx.Err(); err != nil {
		return Invitation{}, err
	}
	if strings.TrimSpace(tokenHash) == "" {
		return Invitation{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.invitationByTok[tokenHash]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	return *s.invitations[id], nil
}

// CreateSession inserts a new session record with an empty answer sheet.
// An empty InvitationID creates an anonymous session, which is never indexed
// by invitation.
func (s *MemoryStore) CreateSession(ctx context.Context, in SessionRecord) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.SurveyID) == "" {
		return Session{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[in.ID]; ok {
		return Session{}, ErrInvalidInput
	}
	if in.InvitationID != "" {
		if _, ok := s.sessionByInv[in.InvitationID]; ok {
			return Session{}, ErrSessionExists
		}
	}

	sess := Session{
		ID:           in.ID,
		SurveyID:     in.SurveyID,
		InvitationID: in.InvitationID,
		Status:       SessionStarted,
		Answers:      map[string]string{},
		StartedAt:    in.StartedAt,
		LastSavedAt:  in.StartedAt,
	}
	s.sessions[in.ID] = &sess
	if in.InvitationID != "" {
		s.sessionByInv[in.InvitationID] = in.ID
	}
	return cloneSession(&sess), nil
}

// GetSession fetches a session by ID.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Session{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// GetSessionByInvitation fetches the session bound to an invitation, if any.
func (s *MemoryStore) GetSessionByInvitation(ctx context.Context, invitationID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(invitationID) == "" {
		return Session{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.sessionByInv[invitationID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

// SaveAnswers merges the given answers into the session sheet (last write wins per key).
func (s *MemoryStore) SaveAnswers(ctx context.Context, in SaveInput) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(in.SessionID) == "" || len(in.Answers) == 0 {
		return Session{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[in.SessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !sess.Open() {
		return Session{}, ErrSessionCompleted
	}

	for k, v := range in.Answers {
		sess.Answers[k] = v
	}
	sess.Status = SessionInProgress
	sess.LastSavedAt = in.Now
	return cloneSession(sess), nil
}

// CompleteSession runs the completion flow under the store lock, mirroring
// the transactional semantics of the Postgres implementation.
func (s *MemoryStore) CompleteSession(ctx context.Context, in CompleteInput) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(in.SessionID) == "" || strings.TrimSpace(in.ResponseID) == "" || in.Prepare == nil {
		return Response{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[in.SessionID]
	if !ok {
		return Response{}, ErrSessionNotFound
	}
	if !sess.Open() {
		return Response{}, ErrSessionCompleted
	}

	var inv *Invitation
	if sess.InvitationID != "" {
		var ok bool
		inv, ok = s.invitations[sess.InvitationID]
		if !ok {
			return Response{}, ErrInvitationNotFound
		}
		switch {
		case inv.Status == InvitationCompleted:
			return Response{}, ErrInvitationUsed
		case inv.Status == InvitationExpired:
			return Response{}, ErrInvitationExpired
		case !inv.Status.Usable():
			return Response{}, ErrInvitationUsed
		case !inv.ExpiresAt.After(in.Now):
			// Persist the lapse before reporting it.
			inv.Status = InvitationExpired
			return Response{}, ErrInvitationExpired
		}
	}

	answers, err := in.Prepare(cloneSession(sess))
	if err != nil {
		return Response{}, err
	}

	if inv != nil {
		inv.Status = InvitationCompleted
	}

	now := in.Now
	sess.Status = SessionCompleted
	sess.CompletedAt = &now
	sess.LastSavedAt = now

	resp := Response{
		ID:           in.ResponseID,
		SurveyID:     sess.SurveyID,
		InvitationID: sess.InvitationID,
		SubmittedAt:  now,
		Answers:      append([]Answer(nil), answers...),
	}
	s.responses[in.ResponseID] = &resp
	return resp, nil
}

// GetResponse fetches a submitted response with its answers.
func (s *MemoryStore) GetResponse(ctx context.Context, id string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Response{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.responses[id]
	if !ok {
		return Response{}, ErrResponseNotFound
	}
	out := *resp
	out.Answers = append([]Answer(nil), resp.Answers...)
	return out, nil
}

// SweepExpired expires lapsed usable invitations and abandons their open sessions.
func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var swept int64
	for _, inv := range s.invitations {
		if !inv.Status.Usable() || inv.ExpiresAt.After(now) {
			continue
		}
		inv.Status = InvitationExpired
		swept++

		if sid, ok := s.sessionByInv[inv.ID]; ok {
			if sess := s.sessions[sid]; sess != nil && sess.Open() {
				sess.Status = SessionAbandoned
			}
		}
	}
	return swept, nil
}

func cloneSession(sess *Session) Session {
	out := *sess
	out.Answers = make(map[string]string, len(sess.Answers))
	for k, v := range sess.Answers {
		out.Answers[k] = v
	}
	return out
}
