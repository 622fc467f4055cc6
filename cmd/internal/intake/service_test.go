package intake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vox/cmd/internal/survey"
	"vox/cmd/security/seal"
)

const testSurveyID = "01TESTSURVEY00000000000000"

func testCatalog(t *testing.T) *survey.MemoryCatalog {
	t.Helper()

	c := survey.NewMemoryCatalog()
	c.Add(
		survey.Survey{ID: testSurveyID, Title: "Team health check", Status: survey.StatusActive, CreatedAt: time.Now().UTC()},
		[]survey.Question{
			{Code: "q_mood", Prompt: "How are you doing?", Type: survey.QuestionRadio, Required: true, Options: []string{"great", "ok", "rough"}, Position: 1},
			{Code: "q_salary", Prompt: "Current salary", Type: survey.QuestionNumber, Sensitive: true, Position: 2},
			{Code: "q_notes", Prompt: "Anything else?", Type: survey.QuestionText, Position: 3},
		},
	)
	return c
}

type serviceFixture struct {
	svc     *Service
	store   *MemoryStore
	catalog *survey.MemoryCatalog
	codec   *seal.Codec
	clock   *fakeClock
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	codec, err := seal.NewCodec("test-answers-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	f := &serviceFixture{
		store:   NewMemoryStore(),
		catalog: testCatalog(t),
		codec:   codec,
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	f.svc, err = NewService(Config{}, f.store, f.catalog, codec, WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return f
}

func mustInvite(t *testing.T, f *serviceFixture, ttl time.Duration) CreatedInvitation {
	t.Helper()

	created, err := f.svc.CreateInvitation(context.Background(), CreateInvitationInput{SurveyID: testSurveyID, TTL: ttl})
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	return created
}

func TestService_CreateInvitation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)

	if created.Token == "" {
		t.Fatalf("missing plain token")
	}
	if created.Invitation.Status != InvitationPending {
		t.Fatalf("status %s, want pending", created.Invitation.Status)
	}
	if got, want := created.Invitation.ExpiresAt, f.clock.Now().Add(time.Hour); !got.Equal(want) {
		t.Fatalf("expires_at %v, want %v", got, want)
	}

	if _, err := f.svc.CreateInvitation(ctx, CreateInvitationInput{SurveyID: "missing"}); !errors.Is(err, ErrSurveyNotFound) {
		t.Fatalf("missing survey: got %v, want ErrSurveyNotFound", err)
	}

	if err := f.catalog.SetStatus(testSurveyID, survey.StatusDraft); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := f.svc.CreateInvitation(ctx, CreateInvitationInput{SurveyID: testSurveyID}); !errors.Is(err, ErrSurveyNotActive) {
		t.Fatalf("draft survey: got %v, want ErrSurveyNotActive", err)
	}
}

func TestService_StartSession_ReentrantAndGated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)

	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.Status != SessionStarted || sess.SurveyID != testSurveyID {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Same token again resumes the same session.
	again, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession again: %v", err)
	}
	if again.ID != sess.ID {
		t.Fatalf("re-entry created a new session: %s vs %s", again.ID, sess.ID)
	}

	if _, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: "no-such-token"}); !errors.Is(err, ErrInvitationNotFound) {
		t.Fatalf("unknown token: got %v, want ErrInvitationNotFound", err)
	}

	if _, err := f.svc.StartSession(ctx, StartSessionInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty start: got %v, want ErrInvalidInput", err)
	}
	if _, err := f.svc.StartSession(ctx, StartSessionInput{SurveyID: "other-survey", InvitationToken: created.Token}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("survey mismatch: got %v, want ErrInvalidInput", err)
	}
}

func TestService_StartSession_LapsedButPendingStillStarts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Minute)
	f.clock.Advance(time.Hour)

	// Expiry is enforced at the completion gate, not at start.
	if _, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token}); err != nil {
		t.Fatalf("StartSession on lapsed pending invitation: %v", err)
	}
}

func TestService_Autosave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	saved, err := f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok"}})
	if err != nil {
		t.Fatalf("Autosave: %v", err)
	}
	if saved.Status != SessionInProgress || saved.Answers["q_mood"] != "ok" {
		t.Fatalf("unexpected session after save: %+v", saved)
	}

	// Last write wins per key, identical payloads are idempotent.
	saved, err = f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "great", "q_notes": "fine"}})
	if err != nil {
		t.Fatalf("Autosave 2: %v", err)
	}
	if saved.Answers["q_mood"] != "great" || saved.Answers["q_notes"] != "fine" {
		t.Fatalf("merge mismatch: %v", saved.Answers)
	}

	// Provided values are constraint-checked even on partial saves.
	_, err = f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "terrible"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("off-list radio: got %v, want ErrValidation", err)
	}
	_, err = f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_bogus": "x"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown question: got %v, want ErrValidation", err)
	}

	if _, err := f.svc.Autosave(ctx, AutosaveInput{SessionID: "missing", Answers: map[string]string{"q_mood": "ok"}}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session: got %v, want ErrSessionNotFound", err)
	}
}

func TestService_Complete_FullFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if _, err := f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok", "q_salary": "98000"}}); err != nil {
		t.Fatalf("Autosave: %v", err)
	}

	// Final overrides win over the autosaved sheet.
	resp, err := f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "great"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.Answers) != 2 {
		t.Fatalf("%d answers, want 2", len(resp.Answers))
	}
	if resp.Answers[0].QuestionCode != "q_mood" || resp.Answers[0].Value != "great" {
		t.Fatalf("unexpected first answer: %+v", resp.Answers[0])
	}

	// Sensitive answer is sealed in storage.
	if !resp.Answers[1].Sensitive || !seal.Sealed(resp.Answers[1].Value) {
		t.Fatalf("salary answer not sealed: %+v", resp.Answers[1])
	}
	if strings.Contains(resp.Answers[1].Value, "98000") {
		t.Fatalf("stored answer leaks plaintext")
	}

	// Reads decrypt transparently.
	got, err := f.svc.GetResponse(ctx, resp.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if got.Answers[1].Value != "98000" {
		t.Fatalf("decrypted value %q, want 98000", got.Answers[1].Value)
	}

	// Session closed, invitation consumed.
	closed, err := f.svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if closed.Status != SessionCompleted || closed.CompletedAt == nil {
		t.Fatalf("session not closed: %+v", closed)
	}
	inv, err := f.store.GetInvitation(ctx, created.Invitation.ID)
	if err != nil {
		t.Fatalf("GetInvitation: %v", err)
	}
	if inv.Status != InvitationCompleted {
		t.Fatalf("invitation status %s, want completed", inv.Status)
	}

	// Second completion attempt conflicts; token replay is also blocked.
	if _, err := f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID}); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("double complete: got %v, want ErrSessionCompleted", err)
	}
	if _, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token}); !errors.Is(err, ErrInvitationUsed) {
		t.Fatalf("token replay: got %v, want ErrInvitationUsed", err)
	}
	if _, err := f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok"}}); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("autosave after completion: got %v, want ErrSessionCompleted", err)
	}
}

func TestService_Complete_ValidationDoesNotConsumeInvitation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// Required q_mood missing.
	_, err = f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID, Answers: map[string]string{"q_notes": "hi"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("incomplete submit: got %v, want ErrValidation", err)
	}

	inv, err := f.store.GetInvitation(ctx, created.Invitation.ID)
	if err != nil {
		t.Fatalf("GetInvitation: %v", err)
	}
	if inv.Status != InvitationPending {
		t.Fatalf("invitation consumed by failed validation: %s", inv.Status)
	}

	// Fixing the sheet still works.
	if _, err := f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok"}}); err != nil {
		t.Fatalf("retry complete: %v", err)
	}
}

func TestService_Complete_ExpiredAtGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Minute)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	f.clock.Advance(time.Hour)

	_, err = f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok"}})
	if !errors.Is(err, ErrInvitationExpired) {
		t.Fatalf("lapsed complete: got %v, want ErrInvitationExpired", err)
	}

	// The lapse is persisted, so the next start fails fast.
	if _, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token}); !errors.Is(err, ErrInvitationExpired) {
		t.Fatalf("start after lapse persisted: got %v, want ErrInvitationExpired", err)
	}
}

func TestService_Complete_InactiveSurvey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := f.catalog.SetStatus(testSurveyID, survey.StatusArchived); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	_, err = f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok"}})
	if !errors.Is(err, ErrSurveyNotActive) {
		t.Fatalf("archived survey: got %v, want ErrSurveyNotActive", err)
	}
}

func TestService_GetResponse_DecryptFailureSurfaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	resp, err := f.svc.Complete(ctx, CompleteSessionInput{
		SessionID: sess.ID,
		Answers:   map[string]string{"q_mood": "ok", "q_salary": "120000"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Same store, rotated sealing secret: stored envelopes no longer open.
	rotated, err := seal.NewCodec("rotated-secret-9876543210")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc2, err := NewService(Config{}, f.store, f.catalog, rotated, WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc2.GetResponse(ctx, resp.ID); !errors.Is(err, seal.ErrDecrypt) {
		t.Fatalf("rotated key read: got %v, want seal.ErrDecrypt", err)
	}

	if _, err := f.svc.GetResponse(ctx, "missing"); !errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("missing response: got %v, want ErrResponseNotFound", err)
	}
}

func TestService_AnonymousFullFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)

	sess, err := f.svc.StartSession(ctx, StartSessionInput{SurveyID: testSurveyID})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.InvitationID != "" {
		t.Fatalf("anonymous session carries invitation %q", sess.InvitationID)
	}

	if _, err := f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_notes": "hi"}}); err != nil {
		t.Fatalf("Autosave: %v", err)
	}

	resp, err := f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.InvitationID != "" {
		t.Fatalf("anonymous response carries invitation %q", resp.InvitationID)
	}

	// The session close alone keeps anonymous completion single-shot.
	if _, err := f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess.ID}); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("double complete: got %v, want ErrSessionCompleted", err)
	}

	// A second anonymous respondent is independent of the first.
	sess2, err := f.svc.StartSession(ctx, StartSessionInput{SurveyID: testSurveyID})
	if err != nil {
		t.Fatalf("StartSession 2: %v", err)
	}
	if sess2.ID == sess.ID {
		t.Fatalf("anonymous starts shared a session")
	}
	if _, err := f.svc.Complete(ctx, CompleteSessionInput{SessionID: sess2.ID, Answers: map[string]string{"q_mood": "great"}}); err != nil {
		t.Fatalf("Complete 2: %v", err)
	}
}

func TestService_StartSession_AnonymousChecks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)

	if _, err := f.svc.StartSession(ctx, StartSessionInput{SurveyID: "missing"}); !errors.Is(err, ErrSurveyNotFound) {
		t.Fatalf("unknown survey: got %v, want ErrSurveyNotFound", err)
	}

	if err := f.catalog.SetStatus(testSurveyID, survey.StatusDraft); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := f.svc.StartSession(ctx, StartSessionInput{SurveyID: testSurveyID}); !errors.Is(err, ErrSurveyNotActive) {
		t.Fatalf("draft survey: got %v, want ErrSurveyNotActive", err)
	}
}

// raceyStore hides the session from the duplicate check once, so StartSession
// hits the store's uniqueness guard the way a concurrent start would.
type raceyStore struct {
	*MemoryStore
	misses int
}

func (s *raceyStore) GetSessionByInvitation(ctx context.Context, invitationID string) (Session, error) {
	if s.misses > 0 {
		s.misses--
		return Session{}, ErrSessionNotFound
	}
	return s.MemoryStore.GetSessionByInvitation(ctx, invitationID)
}

func TestService_StartSession_ConcurrentCreateAdoptsWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)

	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	racey := &raceyStore{MemoryStore: f.store, misses: 1}
	svc2, err := NewService(Config{}, racey, f.catalog, f.codec, WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	// The create collides with the existing session; the loser must adopt
	// the winner's session instead of surfacing the store error.
	again, err := svc2.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession after lost race: %v", err)
	}
	if again.ID != sess.ID {
		t.Fatalf("adopted session %s, want %s", again.ID, sess.ID)
	}
}

func TestService_Autosave_AbandonedSessionReportsExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Minute)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.svc.SweepExpired(ctx); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}

	// The sweeper abandoned the session because the invitation lapsed;
	// a late autosave must say so, not claim a completed session.
	_, err = f.svc.Autosave(ctx, AutosaveInput{SessionID: sess.ID, Answers: map[string]string{"q_mood": "ok"}})
	if !errors.Is(err, ErrInvitationExpired) {
		t.Fatalf("autosave on swept session: got %v, want ErrInvitationExpired", err)
	}
}

func TestService_GetResponse_AnswersInQuestionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	created := mustInvite(t, f, time.Hour)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: created.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	resp, err := f.svc.Complete(ctx, CompleteSessionInput{
		SessionID: sess.ID,
		Answers:   map[string]string{"q_notes": "fine", "q_salary": "120000", "q_mood": "ok"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := f.svc.GetResponse(ctx, resp.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	want := []string{"q_mood", "q_salary", "q_notes"}
	if len(got.Answers) != len(want) {
		t.Fatalf("%d answers, want %d", len(got.Answers), len(want))
	}
	for i, code := range want {
		if got.Answers[i].QuestionCode != code {
			t.Fatalf("answer %d is %s, want %s", i, got.Answers[i].QuestionCode, code)
		}
	}
}

func TestService_SweepExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newServiceFixture(t)
	lapsed := mustInvite(t, f, time.Minute)
	mustInvite(t, f, 48*time.Hour)
	sess, err := f.svc.StartSession(ctx, StartSessionInput{InvitationToken: lapsed.Token})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	f.clock.Advance(time.Hour)

	n, err := f.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}

	got, err := f.svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != SessionAbandoned {
		t.Fatalf("session status %s, want abandoned", got.Status)
	}
}
