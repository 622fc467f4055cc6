package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// CompleteSession runs the completion transaction:
//
//  1. lock the session row and reject closed sessions
//  2. lock the invitation row and reject used/expired invitations
//  3. run Prepare (validation + sealing) against the locked session
//  4. consume the invitation with a guarded update
//  5. persist the response and close the session
//
// Anonymous sessions skip steps 2 and 4; the session close alone makes
// their completion single-shot. A lapsed-but-pending invitation is moved
// to expired even though the submission is rejected, so the state machine
// converges without the sweeper.
func (s *PostgresStore) CompleteSession(ctx context.Context, in CompleteInput) (Response, error) {
	if s == nil || s.pool == nil {
		return Response{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(in.SessionID) == "" || strings.TrimSpace(in.ResponseID) == "" || in.Prepare == nil {
		return Response{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := getSessionForUpdateTx(ctx, tx, s.schema, in.SessionID)
	if err != nil {
		return Response{}, err
	}
	if !sess.Open() {
		return Response{}, ErrSessionCompleted
	}

	if sess.InvitationID != "" {
		inv, err := getInvitationForUpdateTx(ctx, tx, s.schema, sess.InvitationID)
		if err != nil {
			return Response{}, err
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
			if err := markInvitationExpiredTx(ctx, tx, s.schema, inv.ID); err != nil {
				return Response{}, err
			}
			if err := tx.Commit(ctx); err != nil {
				return Response{}, err
			}
			return Response{}, ErrInvitationExpired
		}
	}

	answers, err := in.Prepare(sess)
	if err != nil {
		return Response{}, err
	}

	if sess.InvitationID != "" {
		consumed, err := consumeInvitationTx(ctx, tx, s.schema, sess.InvitationID, in.Now)
		if err != nil {
			return Response{}, err
		}
		if !consumed {
			// Should be unreachable under FOR UPDATE; stay conservative.
			return Response{}, ErrInvitationUsed
		}
	}

	if err := insertResponseTx(ctx, tx, s.schema, in.ResponseID, sess, answers, in.Now); err != nil {
		return Response{}, err
	}
	if err := closeSessionTx(ctx, tx, s.schema, sess.ID, in.Now); err != nil {
		return Response{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Response{}, err
	}

	return Response{
		ID:           in.ResponseID,
		SurveyID:     sess.SurveyID,
		InvitationID: sess.InvitationID,
		SubmittedAt:  in.Now,
		Answers:      answers,
	}, nil
}

func getSessionForUpdateTx(ctx context.Context, tx pgx.Tx, schema, id string) (Session, error) {
	sessions := pgIdent(schema, "sessions")

	var (
		out   Session
		invID *string
	)
	err := tx.QueryRow(ctx,
		`SELECT id, survey_id, invitation_id, status, answers, started_at, last_saved_at, completed_at
		   FROM `+sessions+`
		  WHERE id = $1
		  FOR UPDATE`,
		id,
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
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
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

func getInvitationForUpdateTx(ctx context.Context, tx pgx.Tx, schema, id string) (Invitation, error) {
	invitations := pgIdent(schema, "invitations")

	var out Invitation
	err := tx.QueryRow(ctx,
		`SELECT id, survey_id, recipient, status, created_at, expires_at
		   FROM `+invitations+`
		  WHERE id = $1
		  FOR UPDATE`,
		id,
	).Scan(&out.ID, &out.SurveyID, &out.Recipient, &out.Status, &out.CreatedAt, &out.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invitation{}, ErrInvitationNotFound
	}
	if err != nil {
		return Invitation{}, err
	}
	return out, nil
}

func markInvitationExpiredTx(ctx context.Context, tx pgx.Tx, schema, id string) error {
	invitations := pgIdent(schema, "invitations")

	_, err := tx.Exec(ctx,
		`UPDATE `+invitations+`
		    SET status = $2
		  WHERE id = $1`,
		id, InvitationExpired,
	)
	return err
}

func consumeInvitationTx(ctx context.Context, tx pgx.Tx, schema, id string, now time.Time) (bool, error) {
	invitations := pgIdent(schema, "invitations")

	tag, err := tx.Exec(ctx,
		`UPDATE `+invitations+`
		    SET status = $2
		  WHERE id = $1
		    AND status IN ($3, $4, $5)
		    AND expires_at > $6`,
		id,
		InvitationCompleted,
		InvitationPending,
		InvitationSent,
		InvitationBounced,
		now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func insertResponseTx(ctx context.Context, tx pgx.Tx, schema, responseID string, sess Session, answers []Answer, now time.Time) error {
	responses := pgIdent(schema, "responses")

	_, err := tx.Exec(ctx,
		`INSERT INTO `+responses+` (id, survey_id, invitation_id, submitted_at)
		 VALUES ($1, $2, $3, $4)`,
		responseID, sess.SurveyID, nullIfEmpty(sess.InvitationID), now,
	)
	if err != nil {
		return err
	}

	answersTbl := pgIdent(schema, "answers")
	for pos, a := range answers {
		_, err := tx.Exec(ctx,
			`INSERT INTO `+answersTbl+` (response_id, question_code, position, value, sensitive)
			 VALUES ($1, $2, $3, $4, $5)`,
			responseID, a.QuestionCode, pos, a.Value, a.Sensitive,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func closeSessionTx(ctx context.Context, tx pgx.Tx, schema, id string, now time.Time) error {
	sessions := pgIdent(schema, "sessions")

	_, err := tx.Exec(ctx,
		`UPDATE `+sessions+`
		    SET status = $2,
		        completed_at = $3,
		        last_saved_at = $3
		  WHERE id = $1`,
		id, SessionCompleted, now,
	)
	return err
}
