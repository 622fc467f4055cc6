package intakeapi

import (
	"time"

	"vox/cmd/internal/intake"
)

type inviteCreateRequest struct {
	SurveyID   string  `json:"survey_id"`
	Recipient  *string `json:"recipient,omitempty"`
	TTLSeconds int64   `json:"ttl_seconds,omitempty"`
}

type inviteCreateResponse struct {
	InvitationID string    `json:"invitation_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// sessionStartRequest starts a session. Either field alone is enough: a
// token implies the invitation's survey, a bare survey_id starts an
// anonymous session.
type sessionStartRequest struct {
	SurveyID        string `json:"survey_id,omitempty"`
	InvitationToken string `json:"invitation_token,omitempty"`
}

type autosaveRequest struct {
	SessionID string            `json:"session_id"`
	Answers   map[string]string `json:"answers"`
}

type completeRequest struct {
	SessionID string            `json:"session_id"`
	Answers   map[string]string `json:"answers,omitempty"`
}

type sessionResponse struct {
	SessionID   string            `json:"session_id"`
	SurveyID    string            `json:"survey_id"`
	Status      string            `json:"status"`
	Answers     map[string]string `json:"answers"`
	StartedAt   time.Time         `json:"started_at"`
	LastSavedAt time.Time         `json:"last_saved_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

type completeResponse struct {
	ResponseID  string    `json:"response_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type answerDTO struct {
	QuestionCode string `json:"question_code"`
	Value        string `json:"value"`
	Sensitive    bool   `json:"sensitive"`
}

type responseDTO struct {
	ResponseID   string      `json:"response_id"`
	SurveyID     string      `json:"survey_id"`
	InvitationID string      `json:"invitation_id,omitempty"`
	SubmittedAt  time.Time   `json:"submitted_at"`
	Answers      []answerDTO `json:"answers"`
}

func toSessionResponse(s intake.Session) sessionResponse {
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	return sessionResponse{
		SessionID:   s.ID,
		SurveyID:    s.SurveyID,
		Status:      string(s.Status),
		Answers:     s.Answers,
		StartedAt:   s.StartedAt,
		LastSavedAt: s.LastSavedAt,
		CompletedAt: s.CompletedAt,
	}
}

func toResponseDTO(r intake.Response) responseDTO {
	out := responseDTO{
		ResponseID:   r.ID,
		SurveyID:     r.SurveyID,
		InvitationID: r.InvitationID,
		SubmittedAt:  r.SubmittedAt,
		Answers:      make([]answerDTO, 0, len(r.Answers)),
	}
	for _, a := range r.Answers {
		out.Answers = append(out.Answers, answerDTO{
			QuestionCode: a.QuestionCode,
			Value:        a.Value,
			Sensitive:    a.Sensitive,
		})
	}
	return out
}
