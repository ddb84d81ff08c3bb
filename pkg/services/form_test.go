package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navarrastar/gapscan/pkg/clients/webhook"
	"github.com/navarrastar/gapscan/pkg/i18n"
	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/models"
	"github.com/navarrastar/gapscan/pkg/storage"
	"github.com/navarrastar/gapscan/pkg/validation"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	requests []webhook.Request
	err      error
	block    chan struct{}
}

func (s *recordingSubmitter) Submit(_ context.Context, req webhook.Request) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.err
}

func (s *recordingSubmitter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *recordingSubmitter) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func testValidator(t *testing.T) *validation.Validator {
	t.Helper()
	catalog, err := i18n.NewCatalog()
	require.NoError(t, err)
	v, err := validation.New(catalog)
	require.NoError(t, err)
	return v
}

type formFixture struct {
	form      *Form
	store     *storage.MemoryStore
	submitter *recordingSubmitter
	successes int
}

func newFixture(t *testing.T) *formFixture {
	t.Helper()
	fx := &formFixture{store: storage.NewMemoryStore(), submitter: &recordingSubmitter{}}
	fx.form = fx.build(t, fx.submitter)
	return fx
}

func (fx *formFixture) build(t *testing.T, submitter webhook.Client) *Form {
	t.Helper()
	form, err := NewForm(context.Background(), FormOptions{
		SessionID: "session-1",
		StoreKey:  storage.Key("gapScanFormData", "session-1"),
		Store:     fx.store,
		Submitter: submitter,
		Validator: testValidator(t),
		Page:      models.PageContext{URL: "https://example.com/", UserAgent: "test-agent"},
		Locale:    "en",
		OnSuccess: func() { fx.successes++ },
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	return form
}

func (fx *formFixture) stored(t *testing.T) (models.FormDraft, bool) {
	t.Helper()
	d, err := fx.store.Load(context.Background(), "gapScanFormData:session-1")
	if errors.Is(err, storage.ErrDraftNotFound) {
		return models.FormDraft{}, false
	}
	require.NoError(t, err)
	return d, true
}

var (
	step1 = models.Step1Input{Name: "Jo Lee", Email: "jo@firm.com", Company: "Acme", Industry: "Technology", TeamSize: "2-10"}
	step2 = models.Step2Input{Challenges: []string{"Too much manual data entry"}, BiggestTimeConsumer: "Following up with leads daily"}
	step3 = models.Step3Input{AutomationWish: "Auto-send invoices", Timeline: "urgent"}
)

func advanceToStep3(t *testing.T, f *Form) {
	t.Helper()
	ctx := context.Background()
	errs, err := f.AdvanceStep1(ctx, step1)
	require.NoError(t, err)
	require.Nil(t, errs)
	errs, err = f.AdvanceStep2(ctx, step2)
	require.NoError(t, err)
	require.Nil(t, errs)
}

func TestForm_StartsAtStep1(t *testing.T) {
	fx := newFixture(t)
	snap := fx.form.Snapshot()

	assert.Equal(t, models.StateStep1, snap.State)
	assert.Equal(t, 1, snap.Step)
	assert.False(t, snap.Rehydrated)
	assert.Equal(t, "en", snap.Language)
}

func TestForm_Step1GuardBlocksInvalidEmail(t *testing.T) {
	fx := newFixture(t)
	in := step1
	in.Email = "not-an-email"

	errs, err := fx.form.AdvanceStep1(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, errs, "email")
	assert.Equal(t, models.StateStep1, fx.form.State())
	_, ok := fx.stored(t)
	assert.False(t, ok, "nothing is persisted before a step validates")

	in.Email = "a@b.co"
	errs, err = fx.form.AdvanceStep1(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, errs)
	assert.Equal(t, models.StateStep2, fx.form.State())
}

func TestForm_ValidationMessagesFollowLocale(t *testing.T) {
	fx := newFixture(t)
	fx.form.SetLocale("fr-FR")

	errs, err := fx.form.AdvanceStep1(context.Background(), models.Step1Input{})
	require.NoError(t, err)
	assert.Equal(t, "Choisis la taille de ton équipe", errs["teamSize"])
	assert.Equal(t, "fr", fx.form.Locale())
}

func TestForm_PersistsOnEveryAdvance(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.form.AdvanceStep1(ctx, step1)
	require.NoError(t, err)
	d, ok := fx.stored(t)
	require.True(t, ok)
	assert.Equal(t, "Jo Lee", d.Name)
	assert.Empty(t, d.Challenges)

	_, err = fx.form.AdvanceStep2(ctx, step2)
	require.NoError(t, err)
	d, _ = fx.stored(t)
	assert.Equal(t, step2.Challenges, d.Challenges)
	assert.Equal(t, "Jo Lee", d.Name)
}

func TestForm_RehydratesFromStore(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.form.AdvanceStep1(context.Background(), step1)
	require.NoError(t, err)

	reloaded := fx.build(t, fx.submitter)
	snap := reloaded.Snapshot()

	assert.Equal(t, models.StateStep1, snap.State)
	assert.True(t, snap.Rehydrated)
	assert.Equal(t, step1, snap.Draft.Step1())
}

func TestForm_BackKeepsAnswers(t *testing.T) {
	fx := newFixture(t)
	advanceToStep3(t, fx.form)

	require.NoError(t, fx.form.Back())
	assert.Equal(t, models.StateStep2, fx.form.State())
	require.NoError(t, fx.form.Back())
	assert.Equal(t, models.StateStep1, fx.form.State())
	assert.ErrorIs(t, fx.form.Back(), ErrInvalidTransition)

	d := fx.form.Draft()
	assert.Equal(t, step1, d.Step1())
	assert.Equal(t, step2.BiggestTimeConsumer, d.BiggestTimeConsumer)
}

func TestForm_ToggleChallenge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.form.ToggleChallenge("Other")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = fx.form.AdvanceStep1(ctx, step1)
	require.NoError(t, err)

	before, err := fx.form.ToggleChallenge("Repetitive admin tasks")
	require.NoError(t, err)

	after, err := fx.form.ToggleChallenge("Other")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Repetitive admin tasks", "Other"}, after)

	restored, err := fx.form.ToggleChallenge("Other")
	require.NoError(t, err)
	assert.ElementsMatch(t, before, restored)

	_, err = fx.form.ToggleChallenge("Aliens")
	assert.ErrorIs(t, err, ErrUnknownChallenge)

	errs, err := fx.form.AdvanceStep2(ctx, models.Step2Input{BiggestTimeConsumer: "Following up with leads daily"})
	require.NoError(t, err)
	assert.Nil(t, errs)
	assert.Equal(t, []string{"Repetitive admin tasks"}, fx.form.Draft().Challenges)
}

func TestForm_Step2RequiresAChallenge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.form.AdvanceStep1(ctx, step1)
	require.NoError(t, err)

	errs, err := fx.form.AdvanceStep2(ctx, models.Step2Input{BiggestTimeConsumer: "Following up with leads daily"})
	require.NoError(t, err)
	assert.Contains(t, errs, "challenges")
	assert.Equal(t, models.StateStep2, fx.form.State())
}

func TestForm_OutOfOrderOperations(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.form.AdvanceStep2(ctx, step2)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = fx.form.Submit(ctx, step3)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, fx.form.Resubmit(ctx), ErrInvalidTransition)
	assert.Zero(t, fx.submitter.calls())
}

func TestForm_SubmitSuccessClearsStoreAndNotifiesOnce(t *testing.T) {
	fx := newFixture(t)
	advanceToStep3(t, fx.form)

	errs, err := fx.form.Submit(context.Background(), step3)
	require.NoError(t, err)
	assert.Nil(t, errs)

	assert.Equal(t, models.StateSuccess, fx.form.State())
	assert.Equal(t, 1, fx.successes)
	_, ok := fx.stored(t)
	assert.False(t, ok)

	_, err = fx.form.Submit(context.Background(), step3)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, fx.successes)
	assert.Equal(t, 1, fx.submitter.calls())

	req := fx.submitter.requests[0]
	assert.Equal(t, "en", req.Locale)
	assert.Equal(t, "test-agent", req.Page.UserAgent)
	assert.Equal(t, "Auto-send invoices", req.Draft.AutomationWish)
}

func TestForm_Step3GuardBlocksSubmission(t *testing.T) {
	fx := newFixture(t)
	advanceToStep3(t, fx.form)

	in := step3
	in.Timeline = "someday"
	errs, err := fx.form.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, errs, "timeline")
	assert.Equal(t, models.StateStep3, fx.form.State())
	assert.Zero(t, fx.submitter.calls())
}

func TestForm_FailedSubmissionKeepsDraftForRetry(t *testing.T) {
	fx := newFixture(t)
	advanceToStep3(t, fx.form)
	fx.submitter.setErr(&webhook.TransportError{StatusCode: http.StatusInternalServerError})

	_, err := fx.form.Submit(context.Background(), step3)
	require.Error(t, err)
	assert.True(t, webhook.IsRetryable(err))

	snap := fx.form.Snapshot()
	assert.Equal(t, models.StateError, snap.State)
	assert.Equal(t, 3, snap.Step)
	assert.Equal(t, "Failed to submit form. Please try again later.", snap.Error)
	assert.True(t, snap.Retryable)
	assert.Zero(t, fx.successes)

	stored, ok := fx.stored(t)
	require.True(t, ok)
	assert.Equal(t, fx.form.Draft(), stored)

	fx.submitter.setErr(nil)
	require.NoError(t, fx.form.Resubmit(context.Background()))
	assert.Equal(t, models.StateSuccess, fx.form.State())
	assert.Equal(t, 1, fx.successes)

	require.Equal(t, 2, fx.submitter.calls())
	assert.Equal(t, fx.submitter.requests[0].Draft, fx.submitter.requests[1].Draft)
	_, ok = fx.stored(t)
	assert.False(t, ok)
}

func TestForm_ConfigurationErrorMessage(t *testing.T) {
	fx := newFixture(t)
	advanceToStep3(t, fx.form)
	fx.submitter.setErr(&webhook.ConfigurationError{Reason: "missing"})
	fx.form.SetLocale("fr")

	_, err := fx.form.Submit(context.Background(), step3)
	require.Error(t, err)

	snap := fx.form.Snapshot()
	assert.Equal(t, "Configuration du webhook manquante. Contacte le support.", snap.Error)
	assert.False(t, snap.Retryable)
	_, ok := fx.stored(t)
	assert.True(t, ok)
}

func TestForm_BackFromErrorClearsMessage(t *testing.T) {
	fx := newFixture(t)
	advanceToStep3(t, fx.form)
	fx.submitter.setErr(errors.New("down"))

	_, err := fx.form.Submit(context.Background(), step3)
	require.Error(t, err)
	require.NoError(t, fx.form.Back())

	snap := fx.form.Snapshot()
	assert.Equal(t, models.StateStep2, snap.State)
	assert.Empty(t, snap.Error)
}

func TestForm_RejectsDuplicateSubmission(t *testing.T) {
	fx := newFixture(t)
	fx.submitter.block = make(chan struct{})
	advanceToStep3(t, fx.form)

	done := make(chan error, 1)
	go func() {
		_, err := fx.form.Submit(context.Background(), step3)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return fx.form.State() == models.StateSubmitting
	}, time.Second, 5*time.Millisecond)

	_, err := fx.form.Submit(context.Background(), step3)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	assert.ErrorIs(t, fx.form.Back(), ErrInvalidTransition)

	close(fx.submitter.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fx.submitter.calls())
}

func TestForm_SubmissionSurvivesCanceledRequest(t *testing.T) {
	fx := newFixture(t)
	advanceToStep3(t, fx.form)

	var sawCanceled bool
	submitter := submitterFunc(func(ctx context.Context, _ webhook.Request) error {
		sawCanceled = ctx.Err() != nil
		return nil
	})
	fx.form.submitter = submitter

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.form.Submit(ctx, step3)
	require.NoError(t, err)
	assert.False(t, sawCanceled)
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (models.FormDraft, error) {
	return models.FormDraft{}, errors.New("storage disabled")
}

func (failingStore) Save(context.Context, string, models.FormDraft) error {
	return errors.New("storage disabled")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("storage disabled")
}

func TestForm_ToleratesUnavailableStore(t *testing.T) {
	submitter := &recordingSubmitter{}
	form, err := NewForm(context.Background(), FormOptions{
		SessionID: "s",
		Store:     failingStore{},
		Submitter: submitter,
		Validator: testValidator(t),
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)

	advanceToStep3(t, form)
	_, err = form.Submit(context.Background(), step3)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, form.State())
	assert.Equal(t, step1.Name, submitter.requests[0].Draft.Name)
}

func TestForm_RequiresCollaborators(t *testing.T) {
	_, err := NewForm(context.Background(), FormOptions{SessionID: "s"})
	assert.Error(t, err)
}

// The scenario from the product brief: three steps, one POST, success on 200.
func TestForm_EndToEndAgainstWebhook(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(b, &body))
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fx := &formFixture{store: storage.NewMemoryStore()}
	form := fx.build(t, webhook.NewClient(srv.URL, webhook.WithLogger(logging.Discard())))
	ctx := context.Background()

	errs, err := form.AdvanceStep1(ctx, step1)
	require.NoError(t, err)
	require.Nil(t, errs)
	errs, err = form.AdvanceStep2(ctx, step2)
	require.NoError(t, err)
	require.Nil(t, errs)
	errs, err = form.Submit(ctx, step3)
	require.NoError(t, err)
	require.Nil(t, errs)

	assert.Equal(t, models.StateSuccess, form.State())
	assert.Equal(t, 1, fx.successes)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	body := bodies[0]
	for field, want := range map[string]any{
		"name":                "Jo Lee",
		"email":               "jo@firm.com",
		"company":             "Acme",
		"industry":            "Technology",
		"teamSize":            "2-10",
		"biggestTimeConsumer": "Following up with leads daily",
		"automationWish":      "Auto-send invoices",
		"timeline":            "urgent",
		"language":            "en",
		"referrer":            "direct",
	} {
		assert.Equal(t, want, body[field], field)
	}
	assert.Equal(t, []any{"Too much manual data entry"}, body["challenges"])
	ts, _ := body["timestamp"].(string)
	_, parseErr := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, parseErr)
}

func TestForm_EndToEndNon2xxKeepsDraft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fx := &formFixture{store: storage.NewMemoryStore()}
	form := fx.build(t, webhook.NewClient(srv.URL, webhook.WithLogger(logging.Discard())))
	advanceToStep3(t, form)

	_, err := form.Submit(context.Background(), step3)
	var transportErr *webhook.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusServiceUnavailable, transportErr.StatusCode)

	stored, ok := fx.stored(t)
	require.True(t, ok)
	assert.Equal(t, "Auto-send invoices", stored.AutomationWish)
	assert.Equal(t, step1, stored.Step1())
}

func TestForm_EndToEndWithoutEndpoint(t *testing.T) {
	fx := &formFixture{store: storage.NewMemoryStore()}
	form := fx.build(t, webhook.NewClient("", webhook.WithLogger(logging.Discard())))
	advanceToStep3(t, form)

	_, err := form.Submit(context.Background(), step3)
	assert.True(t, webhook.IsConfiguration(err))
	assert.Equal(t, models.StateError, form.State())
}

type submitterFunc func(ctx context.Context, req webhook.Request) error

func (f submitterFunc) Submit(ctx context.Context, req webhook.Request) error {
	return f(ctx, req)
}
