package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"vox/cmd/internal/ids"
	"vox/cmd/internal/survey"
	"vox/cmd/security/seal"
	"vox/cmd/security/token"
)

// Service implements the high-level intake operations for Vox.
//
// It issues invitations, runs the session lifecycle (start, autosave,
// complete), and reads back submitted responses with sensitive answers
// decrypted on the fly.
type Service struct {
	cfg     Config
	store   Store
	catalog survey.Catalog
	codec   *seal.Codec

	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger (default: slog.Default()).
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches Prometheus instruments (default: none).
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
//
// The codec is required: without an answer-sealing key the service must not
// accept submissions at all.
func NewService(cfg Config, store Store, catalog survey.Catalog, codec *seal.Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil || catalog == nil || codec == nil {
		return nil, ErrInvalidInput
	}

	s := &Service{
		cfg:     cfg.Normalize(),
		store:   store,
		catalog: catalog,
		codec:   codec,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CreateInvitationInput describes a new invitation.
type CreateInvitationInput struct {
	SurveyID  string
	Recipient *string
	// TTL is the validity window; zero means Config.DefaultInvitationTTL.
	TTL time.Duration
}

// CreatedInvitation carries the stored invitation plus the plain token.
// The token exists only in this return value; hand it to the recipient now.
type CreatedInvitation struct {
	Invitation Invitation
	Token      string
}

// CreateInvitation issues a single-use invitation for an active survey.
func (s *Service) CreateInvitation(ctx context.Context, in CreateInvitationInput) (CreatedInvitation, error) {
	surveyID := strings.TrimSpace(in.SurveyID)
	if surveyID == "" {
		return CreatedInvitation{}, ErrInvalidInput
	}
	if in.TTL < 0 {
		return CreatedInvitation{}, ErrInvalidInput
	}

	sv, err := s.catalog.GetSurvey(ctx, surveyID)
	if err != nil {
		if errors.Is(err, survey.ErrNotFound) {
			return CreatedInvitation{}, ErrSurveyNotFound
		}
		return CreatedInvitation{}, err
	}
	if !sv.Active() {
		return CreatedInvitation{}, ErrSurveyNotActive
	}

	now := s.now()
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultInvitationTTL
	}

	plain, err := token.NewOpaqueToken(s.cfg.TokenBytes)
	if err != nil {
		return CreatedInvitation{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return CreatedInvitation{}, err
	}

	inv, err := s.store.CreateInvitation(ctx, InvitationRecord{
		ID:        id,
		SurveyID:  surveyID,
		Recipient: in.Recipient,
		TokenHash: token.HashInviteTokenHex(plain),
		Status:    InvitationPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return CreatedInvitation{}, err
	}

	s.log.InfoContext(ctx, "intake.invitation.create",
		"invitation_id", inv.ID,
		"survey_id", inv.SurveyID,
		"expires_at", inv.ExpiresAt,
	)
	return CreatedInvitation{Invitation: inv, Token: plain}, nil
}

// StartSessionInput describes a session start. A token binds the session to
// its invitation; without one the start is anonymous and SurveyID is required.
type StartSessionInput struct {
	SurveyID        string
	InvitationToken string
}

// StartSession opens a session, with or without an invitation.
//
// Invited starts are re-entrant: presenting the same token again returns the
// existing open session instead of failing, so a respondent can resume from
// the same link. Expiry is not checked here; a lapsed invitation is rejected
// at the completion gate (or by the sweeper) instead. Anonymous starts open
// a fresh session on an active survey every time.
func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (Session, error) {
	plainToken := strings.TrimSpace(in.InvitationToken)
	surveyID := strings.TrimSpace(in.SurveyID)
	if plainToken == "" && surveyID == "" {
		return Session{}, ErrInvalidInput
	}

	var inv Invitation
	if plainToken != "" {
		var err error
		inv, err = s.store.GetInvitationByTokenHash(ctx, token.HashInviteTokenHex(plainToken))
		if err != nil {
			return Session{}, err
		}
		if err := usableErr(inv.Status); err != nil {
			return Session{}, err
		}
		if surveyID != "" && surveyID != inv.SurveyID {
			return Session{}, ErrInvalidInput
		}
		surveyID = inv.SurveyID
	}

	sv, err := s.catalog.GetSurvey(ctx, surveyID)
	if err != nil {
		if errors.Is(err, survey.ErrNotFound) {
			return Session{}, ErrSurveyNotFound
		}
		return Session{}, err
	}
	if !sv.Active() {
		return Session{}, ErrSurveyNotActive
	}

	if inv.ID != "" {
		existing, err := s.store.GetSessionByInvitation(ctx, inv.ID)
		switch {
		case err == nil:
			if !existing.Open() {
				return Session{}, ErrSessionCompleted
			}
			return existing, nil
		case errors.Is(err, ErrSessionNotFound):
			// First visit; fall through to create.
		default:
			return Session{}, err
		}
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	sess, err := s.store.CreateSession(ctx, SessionRecord{
		ID:           id,
		SurveyID:     surveyID,
		InvitationID: inv.ID,
		StartedAt:    now,
	})
	if errors.Is(err, ErrSessionExists) && inv.ID != "" {
		// Two concurrent starts for the same token; adopt the winner's session.
		existing, getErr := s.store.GetSessionByInvitation(ctx, inv.ID)
		if getErr != nil {
			return Session{}, getErr
		}
		if !existing.Open() {
			return Session{}, ErrSessionCompleted
		}
		return existing, nil
	}
	if err != nil {
		return Session{}, err
	}

	s.metrics.incSessionsStarted()
	s.log.InfoContext(ctx, "intake.session.start",
		"session_id", sess.ID,
		"survey_id", sess.SurveyID,
		"invitation_id", sess.InvitationID,
		"anonymous", sess.InvitationID == "",
	)
	return sess, nil
}

// AutosaveInput describes a partial answer save.
type AutosaveInput struct {
	SessionID string
	Answers   map[string]string
}

// Autosave merges partial answers into the session sheet.
//
// Saves are idempotent and last-write-wins per question. Provided values are
// validated against their question constraints, but required questions may
// still be missing; completeness is only enforced at completion.
func (s *Service) Autosave(ctx context.Context, in AutosaveInput) (Session, error) {
	if strings.TrimSpace(in.SessionID) == "" || len(in.Answers) == 0 {
		return Session{}, ErrInvalidInput
	}
	if len(in.Answers) > s.cfg.MaxAnswersPerSave {
		return Session{}, ErrInvalidInput
	}

	sess, err := s.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return Session{}, err
	}
	if !sess.Open() {
		// A swept session was abandoned because its invitation expired;
		// report that, not a phantom completion.
		if sess.Status == SessionAbandoned && sess.InvitationID != "" {
			inv, err := s.store.GetInvitation(ctx, sess.InvitationID)
			if err == nil {
				if uErr := usableErr(inv.Status); uErr != nil {
					return Session{}, uErr
				}
			}
		}
		return Session{}, ErrSessionCompleted
	}

	// A consumed or swept invitation closes the door even before the
	// session row catches up. A merely lapsed one does not block saving;
	// the completion gate settles it.
	if sess.InvitationID != "" {
		inv, err := s.store.GetInvitation(ctx, sess.InvitationID)
		if err != nil {
			return Session{}, err
		}
		if err := usableErr(inv.Status); err != nil {
			return Session{}, err
		}
	}

	qs, err := s.catalog.Questions(ctx, sess.SurveyID)
	if err != nil {
		if errors.Is(err, survey.ErrNotFound) {
			return Session{}, ErrSurveyNotFound
		}
		return Session{}, err
	}
	if err := validateAnswers(qs, in.Answers, true); err != nil {
		return Session{}, err
	}

	saved, err := s.store.SaveAnswers(ctx, SaveInput{
		SessionID: in.SessionID,
		Answers:   in.Answers,
		Now:       s.now(),
	})
	if err != nil {
		return Session{}, err
	}

	s.metrics.incAutosaves()
	s.log.DebugContext(ctx, "intake.session.autosave",
		"session_id", saved.ID,
		"keys", len(in.Answers),
	)
	return saved, nil
}

// GetSession fetches a session by ID.
func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, ErrInvalidInput
	}
	return s.store.GetSession(ctx, id)
}

// CompleteSessionInput describes a submission. Answers are final overrides
// merged over the autosaved sheet before validation.
type CompleteSessionInput struct {
	SessionID string
	Answers   map[string]string
}

// Complete validates the merged answer sheet, consumes the invitation, and
// persists an immutable response with sensitive answers sealed.
//
// The invitation gate inside the store guarantees at most one response per
// invitation; validation failures leave the invitation untouched.
func (s *Service) Complete(ctx context.Context, in CompleteSessionInput) (Response, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return Response{}, ErrInvalidInput
	}

	sess, err := s.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return Response{}, err
	}

	sv, err := s.catalog.GetSurvey(ctx, sess.SurveyID)
	if err != nil {
		if errors.Is(err, survey.ErrNotFound) {
			return Response{}, ErrSurveyNotFound
		}
		return Response{}, err
	}
	if !sv.Active() {
		return Response{}, ErrSurveyNotActive
	}

	qs, err := s.catalog.Questions(ctx, sess.SurveyID)
	if err != nil {
		return Response{}, err
	}

	now := s.now()
	responseID, err := ids.NewULID(now)
	if err != nil {
		return Response{}, err
	}

	resp, err := s.store.CompleteSession(ctx, CompleteInput{
		SessionID:  in.SessionID,
		ResponseID: responseID,
		Now:        now,
		Prepare: func(locked Session) ([]Answer, error) {
			return s.prepareAnswers(qs, locked.Answers, in.Answers)
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvitationUsed):
			s.metrics.incGateConflict("used")
		case errors.Is(err, ErrInvitationExpired):
			s.metrics.incGateConflict("expired")
		case errors.Is(err, ErrSessionCompleted):
			s.metrics.incGateConflict("session_completed")
		}
		return Response{}, err
	}

	s.metrics.incResponses()
	s.log.InfoContext(ctx, "intake.session.complete",
		"session_id", in.SessionID,
		"response_id", resp.ID,
		"survey_id", resp.SurveyID,
		"answers", len(resp.Answers),
	)
	return resp, nil
}

// prepareAnswers merges, validates, and seals the final answer set.
// Runs inside the store's completion transaction via the Prepare hook.
func (s *Service) prepareAnswers(qs []survey.Question, saved, final map[string]string) ([]Answer, error) {
	merged := make(map[string]string, len(saved)+len(final))
	for k, v := range saved {
		merged[k] = v
	}
	for k, v := range final {
		merged[k] = v
	}

	if err := validateAnswers(qs, merged, false); err != nil {
		return nil, err
	}

	byCode := make(map[string]survey.Question, len(qs))
	for _, q := range qs {
		byCode[q.Code] = q
	}

	out := make([]Answer, 0, len(merged))
	for code, value := range merged {
		q := byCode[code]
		if strings.TrimSpace(value) == "" {
			// Blank optional answers are dropped, not stored.
			continue
		}

		stored, err := s.codec.EncryptValue(value, q.Sensitive)
		if err != nil {
			return nil, fmt.Errorf("seal answer %s: %w", code, err)
		}
		out = append(out, Answer{QuestionCode: code, Value: stored, Sensitive: q.Sensitive})
	}

	sort.Slice(out, func(i, j int) bool {
		qi, qj := byCode[out[i].QuestionCode], byCode[out[j].QuestionCode]
		if qi.Position != qj.Position {
			return qi.Position < qj.Position
		}
		return out[i].QuestionCode < out[j].QuestionCode
	})
	return out, nil
}

// GetResponse fetches a submitted response and decrypts sensitive answers.
// A value that cannot be decrypted surfaces seal.ErrDecrypt; the stored row
// is never silently returned as garbage.
func (s *Service) GetResponse(ctx context.Context, id string) (Response, error) {
	if strings.TrimSpace(id) == "" {
		return Response{}, ErrInvalidInput
	}

	resp, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return Response{}, err
	}

	for i, a := range resp.Answers {
		plain, err := s.codec.DecryptValue(a.Value, a.Sensitive)
		if err != nil {
			s.log.ErrorContext(ctx, "intake.response.decrypt_fail",
				"response_id", resp.ID,
				"question_code", a.QuestionCode,
			)
			return Response{}, fmt.Errorf("answer %s: %w", a.QuestionCode, err)
		}
		resp.Answers[i].Value = plain
	}
	return resp, nil
}

// SweepExpired expires lapsed invitations and abandons their open sessions.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	s.metrics.addInvitationsSwept(n)
	if n > 0 {
		s.log.InfoContext(ctx, "intake.sweep", "expired", n)
	}
	return n, nil
}

func usableErr(st InvitationStatus) error {
	switch st {
	case InvitationCompleted:
		return ErrInvitationUsed
	case InvitationExpired:
		return ErrInvitationExpired
	default:
		if !st.Usable() {
			return ErrInvitationUsed
		}
		return nil
	}
}
