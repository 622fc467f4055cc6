package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists intake state in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "vox").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "vox"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// CreateInvitation inserts a new invitation record.
func (s *PostgresStore) CreateInvitation(ctx context.Context, in InvitationRecord) (Invitation, error) {
	if s == nil || s.pool == nil {
		return Invitation{}, ErrInvalidInput
	}
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

	invitations := pgIdent(s.schema, "invitations")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+invitations+` (
		     id, survey_id, recipient, token_hash, status, created_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID,
		in.SurveyID,
		in.Recipient,
		in.TokenHash,
		in.Status,
		in.CreatedAt,
		in.ExpiresAt,
	)
	if err != nil {
		return Invitation{}, err
	}

	return Invitation{
		ID:        in.ID,
		SurveyID:  in.SurveyID,
		Recipient: in.Recipient,
		Status:    in.Status,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}, nil
}

// GetInvitation fetches an invitation by ID.
func (s *PostgresStore) GetInvitation(ctx context.Context, id string) (Invitation, error) {
	return s.getInvitationBy(ctx, "id", id)
}

// GetInvitationByTokenHash fetches an invitation by token hash.
func (s *PostgresStore) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (Invitation, error) {
	return s.getInvitationBy(ctx, "token_hash", tokenHash)
}

func (s *PostgresStore) getInvitationBy(ctx context.Context, col, key string) (Invitation, error) {
	if s == nil || s.pool == nil {
		return Invitation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Invitation{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Invitation{}, ErrInvalidInput
	}

	invitations := pgIdent(s.schema, "invitations")
	var out Invitation
	err := s.pool.QueryRow(ctx,
		`SELECT id, survey_id, recipient, status, created_at, expires_at
		   FROM `+invitations+`
		  WHERE `+col+` = $1`,
		key,
	).Scan(&out.ID, &out.SurveyID, &out.Recipient, &out.Status, &out.CreatedAt, &out.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrInvitationNotFound
		}
		return Invitation{}, err
	}
	return out, nil
}

// CreateSession inserts a new session record with an empty answer sheet.
// An empty InvitationID stores NULL, so anonymous sessions never collide on
// the invitation uniqueness constraint.
func (s *PostgresStore) CreateSession(ctx context.Context, in SessionRecord) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.SurveyID) == "" {
		return Session{}, ErrInvalidInput
	}

	sessions := pgIdent(s.schema, "sessions")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (
		     id, survey_id, invitation_id, status, answers, started_at, last_saved_at, completed_at
		   ) VALUES ($1, $2, $3, $4, '{}'::jsonb, $5, $5, NULL)`,
		in.ID,
		in.SurveyID,
		nullIfEmpty(in.InvitationID),
		SessionStarted,
		in.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, ErrSessionExists
		}
		return Session{}, err
	}

	return Session{
		ID:           in.ID,
		SurveyID:     in.SurveyID,
		InvitationID: in.InvitationID,
		Status:       SessionStarted,
		Answers:      map[string]string{},
		StartedAt:    in.StartedAt,
		LastSavedAt:  in.StartedAt,
	}, nil
}

// GetSession fetches a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	return s.getSessionBy(ctx, "id", id)
}

// GetSessionByInvitation fetches the session bound to an invitation, if any.
func (s *PostgresStore) GetSessionByInvitation(ctx context.Context, invitationID string) (Session, error) {
	return s.getSessionBy(ctx, "invitation_id", invitationID)
}

func (s *PostgresStore) getSessionBy(ctx context.Context, col, key string) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Session{}, ErrInvalidInput
	}

	sessions := pgIdent(s.schema, "sessions")
	var (
		out   Session
		invID *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, survey_id, invitation_id, status, answers, started_at, last_saved_at, completed_at
		   FROM `+sessions+`
		  WHERE `+col+` = $1`,
		key,
	).Scan(
		&out.ID,
		&out.SurveyID,
		&invID,
		&out.Status,
		&out.Answers,
		&out.StartedAt,
		&out.LastSavedAt,
		&out.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	if invID != nil {
		out.InvitationID = *invID
	}
	if out.Answers == nil {
		out.Answers = map[string]string{}
	}
	return out, nil
}

// SaveAnswers merges the given answers into the session sheet.
// The merge is a jsonb concatenation, so later saves win per key and the
// operation is idempotent for identical payloads.
func (s *PostgresStore) SaveAnswers(ctx context.Context, in SaveInput) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(in.SessionID) == "" || len(in.Answers) == 0 {
		return Session{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "sessions")
	var (
		out   Session
		invID *string
	)
	err := s.pool.QueryRow(ctx,
		`UPDATE `+sessions+`
		    SET answers = answers || $2::jsonb,
		        status = $3,
		        last_saved_at = $4
		  WHERE id = $1
		    AND status IN ($5, $3)
		RETURNING id, survey_id, invitation_id, status, answers, started_at, last_saved_at, completed_at`,
		in.SessionID,
		in.Answers,
		SessionInProgress,
		in.Now,
		SessionStarted,
	).Scan(
		&out.ID,
		&out.SurveyID,
		&invID,
		&out.Status,
		&out.Answers,
		&out.StartedAt,
		&out.LastSavedAt,
		&out.CompletedAt,
	)
	if err == nil {
		if invID != nil {
			out.InvitationID = *invID
		}
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, err
	}

	// Distinguish not-found vs closed.
	if _, selErr := s.GetSession(ctx, in.SessionID); selErr != nil {
		return Session{}, selErr
	}
	return Session{}, ErrSessionCompleted
}

// GetResponse fetches a submitted response with its answers.
func (s *PostgresStore) GetResponse(ctx context.Context, id string) (Response, error) {
	if s == nil || s.pool == nil {
		return Response{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Response{}, ErrInvalidInput
	}

	responses := pgIdent(s.schema, "responses")
	var (
		out   Response
		invID *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, survey_id, invitation_id, submitted_at
		   FROM `+responses+`
		  WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.SurveyID, &invID, &out.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, ErrResponseNotFound
		}
		return Response{}, err
	}
	if invID != nil {
		out.InvitationID = *invID
	}

	answers := pgIdent(s.schema, "answers")
	rows, err := s.pool.Query(ctx,
		`SELECT question_code, value, sensitive
		   FROM `+answers+`
		  WHERE response_id = $1
		  ORDER BY position ASC`,
		id,
	)
	if err != nil {
		return Response{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.QuestionCode, &a.Value, &a.Sensitive); err != nil {
			return Response{}, err
		}
		out.Answers = append(out.Answers, a)
	}
	if err := rows.Err(); err != nil {
		return Response{}, err
	}
	return out, nil
}

// SweepExpired expires lapsed usable invitations and abandons their open sessions.
func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	invitations := pgIdent(s.schema, "invitations")
	tag, err := tx.Exec(ctx,
		`UPDATE `+invitations+`
		    SET status = $1
		  WHERE status IN ($2, $3, $4)
		    AND expires_at <= $5`,
		InvitationExpired,
		InvitationPending,
		InvitationSent,
		InvitationBounced,
		now,
	)
	if err != nil {
		return 0, err
	}

	sessions := pgIdent(s.schema, "sessions")
	_, err = tx.Exec(ctx,
		`UPDATE `+sessions+` AS s
		    SET status = $1
		   FROM `+invitations+` AS i
		  WHERE s.invitation_id = i.id
		    AND i.status = $2
		    AND s.status IN ($3, $4)`,
		SessionAbandoned,
		InvitationExpired,
		SessionStarted,
		SessionInProgress,
	)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
