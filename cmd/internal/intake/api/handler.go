// Package intakeapi exposes the intake service over HTTP.
package intakeapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vox/cmd/internal/intake"
	"vox/cmd/security/seal"
)

// Handler wires HTTP intake endpoints to the intake service.
type Handler struct {
	log   *slog.Logger
	cfg   Config
	svc   *intake.Service
	authz Authorizer
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAuthorizer overrides the default admin-key operator authorizer.
func WithAuthorizer(a Authorizer) HandlerOption {
	return func(h *Handler) {
		if h == nil || a == nil {
			return
		}
		h.authz = a
	}
}

// NewHandler constructs an intake Handler.
func NewHandler(log *slog.Logger, svc *intake.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("intakeapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log: log,
		cfg: cfg,
		svc: svc,
		// A blank admin key leaves the authorizer disabled, which surfaces
		// as 503 admin_disabled rather than a bare 401.
		authz: NewAdminKeyAuthorizer(cfg.AdminKey),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires intake routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/intake/invitations/create", h.handleInviteCreate)
	mux.HandleFunc("/intake/sessions/start", h.handleSessionStart)
	mux.HandleFunc("/intake/sessions/autosave", h.handleAutosave)
	mux.HandleFunc("/intake/sessions/complete", h.handleComplete)
	mux.HandleFunc("/intake/sessions", h.handleSessionGet)
	mux.HandleFunc("/intake/responses", h.handleResponseGet)
}

// ---- handlers ----

func (h *Handler) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireOperator(w, r) {
		return
	}

	var req inviteCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.SurveyID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "survey_id is required")
		return
	}
	if req.TTLSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "ttl_seconds must be positive")
		return
	}

	ttl := h.cfg.InviteTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if ttl > h.cfg.InviteMaxTTL {
		ttl = h.cfg.InviteMaxTTL
	}

	created, err := h.svc.CreateInvitation(r.Context(), intake.CreateInvitationInput{
		SurveyID:  req.SurveyID,
		Recipient: req.Recipient,
		TTL:       ttl,
	})
	if err != nil {
		h.writeServiceError(w, r, "intake.invite.create.fail", err)
		return
	}

	writeJSON(w, http.StatusCreated, inviteCreateResponse{
		InvitationID: created.Invitation.ID,
		Token:        created.Token,
		ExpiresAt:    created.Invitation.ExpiresAt,
	})
}

func (h *Handler) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req sessionStartRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.InvitationToken) == "" && strings.TrimSpace(req.SurveyID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "invitation_token or survey_id is required")
		return
	}

	sess, err := h.svc.StartSession(r.Context(), intake.StartSessionInput{
		SurveyID:        req.SurveyID,
		InvitationToken: req.InvitationToken,
	})
	if err != nil {
		h.writeServiceError(w, r, "intake.session.start.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) handleAutosave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req autosaveRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id and answers are required")
		return
	}

	sess, err := h.svc.Autosave(r.Context(), intake.AutosaveInput{
		SessionID: req.SessionID,
		Answers:   req.Answers,
	})
	if err != nil {
		h.writeServiceError(w, r, "intake.session.autosave.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req completeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	resp, err := h.svc.Complete(r.Context(), intake.CompleteSessionInput{
		SessionID: req.SessionID,
		Answers:   req.Answers,
	})
	if err != nil {
		h.writeServiceError(w, r, "intake.session.complete.fail", err)
		return
	}
	writeJSON(w, http.StatusCreated, completeResponse{
		ResponseID:  resp.ID,
		SubmittedAt: resp.SubmittedAt,
	})
}

func (h *Handler) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}

	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "intake.session.get.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) handleResponseGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireOperator(w, r) {
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}

	resp, err := h.svc.GetResponse(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "intake.response.get.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponseDTO(resp))
}

// ---- helpers ----

func (h *Handler) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	if a, ok := h.authz.(AdminKeyAuthorizer); ok && !a.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "admin_disabled", "operator key not configured")
		return false
	}
	if !h.authz.Authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "operator credentials required")
		return false
	}
	return true
}

// writeServiceError maps service errors onto the wire contract.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case errors.Is(err, intake.ErrInvitationNotFound):
		writeError(w, http.StatusNotFound, "invitation_not_found", "invitation not found")
	case errors.Is(err, intake.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, intake.ErrResponseNotFound):
		writeError(w, http.StatusNotFound, "response_not_found", "response not found")
	case errors.Is(err, intake.ErrSurveyNotFound):
		writeError(w, http.StatusNotFound, "survey_not_found", "survey not found")
	case errors.Is(err, intake.ErrInvitationUsed):
		writeError(w, http.StatusConflict, "invitation_used", "invitation already used")
	case errors.Is(err, intake.ErrSessionCompleted):
		writeError(w, http.StatusConflict, "session_completed", "session already completed")
	case errors.Is(err, intake.ErrInvitationExpired):
		writeError(w, http.StatusGone, "invitation_expired", "invitation expired")
	case errors.Is(err, intake.ErrSurveyNotActive):
		writeError(w, http.StatusUnprocessableEntity, "survey_not_active", "survey is not accepting responses")
	case errors.Is(err, intake.ErrValidation):
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", verr.QuestionCode+": "+verr.Reason)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "answers failed validation")
	case errors.Is(err, seal.ErrDecrypt):
		h.log.ErrorContext(r.Context(), event, "err", err)
		writeError(w, http.StatusInternalServerError, "decrypt_failed", "stored answer could not be decrypted")
	case errors.Is(err, intake.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	default:
		h.log.ErrorContext(r.Context(), event, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
