package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/navarrastar/gapscan/pkg/clients/webhook"
	"github.com/navarrastar/gapscan/pkg/i18n"
	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/metrics"
	"github.com/navarrastar/gapscan/pkg/models"
	"github.com/navarrastar/gapscan/pkg/storage"
	"github.com/navarrastar/gapscan/pkg/utils"
	"github.com/navarrastar/gapscan/pkg/validation"
)

var (
	ErrInvalidTransition    = errors.New("operation not allowed in current form state")
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrUnknownChallenge     = errors.New("unknown challenge option")
)

// FormOptions wires a Form to its collaborators
type FormOptions struct {
	SessionID string
	StoreKey  string
	Store     storage.DraftStore
	Submitter webhook.Client
	Validator *validation.Validator
	Page      models.PageContext
	Locale    string
	// OnSuccess runs once, after the webhook accepted the submission.
	OnSuccess func()
	Logger    *logging.Logger
	Metrics   *metrics.FormMetrics
}

// Form is the Gap Scan wizard for one visitor. All methods are safe for
// concurrent use; at most one submission is in flight at a time.
type Form struct {
	mu sync.Mutex

	id         string
	key        string
	state      models.State
	draft      models.FormDraft
	selected   []string
	locale     string
	page       models.PageContext
	lastErr    error
	rehydrated bool
	notified   bool

	store     storage.DraftStore
	submitter webhook.Client
	validator *validation.Validator
	onSuccess func()
	logger    *logging.Logger
	metrics   *metrics.FormMetrics
}

// Snapshot is a read-only view of a Form for rendering
type Snapshot struct {
	SessionID  string           `json:"sessionId"`
	State      models.State     `json:"state"`
	Step       int              `json:"step"`
	Draft      models.FormDraft `json:"draft"`
	Selected   []string         `json:"selectedChallenges"`
	Language   string           `json:"language"`
	Rehydrated bool             `json:"rehydrated"`
	Error      string           `json:"error,omitempty"`
	Retryable  bool             `json:"retryable,omitempty"`
}

// NewForm creates a Form, prefilling it from any draft stored under the
// session key. The wizard always starts at step 1.
func NewForm(ctx context.Context, opts FormOptions) (*Form, error) {
	if opts.Store == nil || opts.Submitter == nil || opts.Validator == nil {
		return nil, errors.New("services: form requires store, submitter and validator")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	key := opts.StoreKey
	if key == "" {
		key = opts.SessionID
	}

	f := &Form{
		id:        opts.SessionID,
		key:       key,
		state:     models.StateStep1,
		locale:    i18n.Normalize(opts.Locale),
		page:      opts.Page,
		store:     opts.Store,
		submitter: opts.Submitter,
		validator: opts.Validator,
		onSuccess: opts.OnSuccess,
		logger:    opts.Logger.With("session_id", opts.SessionID),
		metrics:   opts.Metrics,
	}

	draft, err := opts.Store.Load(ctx, key)
	switch {
	case err == nil:
		f.draft = draft
		f.selected = slices.Clone(draft.Challenges)
		f.rehydrated = !draft.IsEmpty()
	case errors.Is(err, storage.ErrDraftNotFound):
	default:
		f.logger.Warn("could not load stored draft, starting empty", "error", err)
	}

	return f, nil
}

// ID returns the session id.
func (f *Form) ID() string {
	return f.id
}

// State returns the current state
func (f *Form) State() models.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Draft returns a copy of the current draft
func (f *Form) Draft() models.FormDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Clone()
}

// LastError returns the error of the latest failed submission, if any.
func (f *Form) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Snapshot returns a consistent view of the form
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		SessionID:  f.id,
		State:      f.state,
		Step:       f.state.Step(),
		Draft:      f.draft.Clone(),
		Selected:   slices.Clone(f.selected),
		Language:   f.locale,
		Rehydrated: f.rehydrated,
	}
	if s.Selected == nil {
		s.Selected = []string{}
	}
	if f.lastErr != nil {
		s.Error = f.userMessage(f.lastErr)
		s.Retryable = webhook.IsRetryable(f.lastErr)
	}
	return s
}

// SetLocale switches the language used for messages and the payload
func (f *Form) SetLocale(lang string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locale = i18n.Normalize(lang)
}

// RefreshPage records the visitor's latest page context. Empty fields keep
// their previous value, so a reload without UTM parameters keeps the earlier ones.
func (f *Form) RefreshPage(page models.PageContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page.URL != "" {
		f.page.URL = page.URL
	}
	if page.Referrer != "" {
		f.page.Referrer = page.Referrer
	}
	if page.UserAgent != "" {
		f.page.UserAgent = page.UserAgent
	}
}

// Page returns the page context sent with the submission.
func (f *Form) Page() models.PageContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// Locale returns the active language tag.
func (f *Form) Locale() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locale
}

// AdvanceStep1 validates the "About You" answers and moves to step 2.
// Validation failures are returned with a nil error and leave the state as is.
func (f *Form) AdvanceStep1(ctx context.Context, in models.Step1Input) (validation.Errors, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != models.StateStep1 {
		return nil, ErrInvalidTransition
	}
	if errs := f.validator.Step1(in, f.locale); errs != nil {
		f.metrics.ObserveStep(1, "invalid")
		return errs, nil
	}

	f.draft.MergeStep1(in)
	f.persist(ctx)
	f.state = models.StateStep2
	f.metrics.ObserveStep(1, "ok")
	f.logger.Info("step completed", "step", 1, "email_hash", utils.HashString(in.Email))
	return nil, nil
}

// AdvanceStep2 validates the "Your Challenges" answers and moves to step 3.
// A nil in.Challenges means "use the selection built with ToggleChallenge".
func (f *Form) AdvanceStep2(ctx context.Context, in models.Step2Input) (validation.Errors, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != models.StateStep2 {
		return nil, ErrInvalidTransition
	}
	if in.Challenges == nil {
		in.Challenges = slices.Clone(f.selected)
	}
	if errs := f.validator.Step2(in, f.locale); errs != nil {
		f.metrics.ObserveStep(2, "invalid")
		return errs, nil
	}

	f.draft.MergeStep2(in)
	f.selected = slices.Clone(in.Challenges)
	f.persist(ctx)
	f.state = models.StateStep3
	f.metrics.ObserveStep(2, "ok")
	f.logger.Info("step completed", "step", 2, "challenges", len(in.Challenges))
	return nil, nil
}

// Back returns to the previous step without validating or dropping answers
func (f *Form) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case models.StateStep2:
		f.state = models.StateStep1
	case models.StateStep3, models.StateError:
		f.state = models.StateStep2
		f.lastErr = nil
	default:
		return ErrInvalidTransition
	}
	return nil
}

// ToggleChallenge adds option to the step 2 selection, or removes it when
// already selected. It returns the resulting selection.
func (f *Form) ToggleChallenge(option string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != models.StateStep2 {
		return nil, ErrInvalidTransition
	}
	if !models.IsChallengeOption(option) {
		return nil, ErrUnknownChallenge
	}

	if i := slices.Index(f.selected, option); i >= 0 {
		f.selected = slices.Delete(f.selected, i, i+1)
	} else {
		f.selected = append(f.selected, option)
	}
	return slices.Clone(f.selected), nil
}

// Submit validates the "What You Want" answers and delivers the complete
// draft to the webhook. It is accepted from step 3 and, for retries, from
// the error state. A transport or configuration failure is returned as the
// error and leaves the draft stored for another attempt.
func (f *Form) Submit(ctx context.Context, in models.Step3Input) (validation.Errors, error) {
	req, errs, err := f.beginSubmit(ctx, &in)
	if errs != nil || err != nil {
		return errs, err
	}
	return nil, f.deliver(ctx, req)
}

// Resubmit sends the already entered draft again after a failed attempt.
func (f *Form) Resubmit(ctx context.Context) error {
	req, errs, err := f.beginSubmit(ctx, nil)
	if err != nil {
		return err
	}
	if errs != nil {
		return errs
	}
	return f.deliver(ctx, req)
}

func (f *Form) beginSubmit(ctx context.Context, in *models.Step3Input) (webhook.Request, validation.Errors, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case models.StateSubmitting:
		return webhook.Request{}, nil, ErrSubmissionInProgress
	case models.StateStep3, models.StateError:
	default:
		return webhook.Request{}, nil, ErrInvalidTransition
	}
	if in == nil && f.state != models.StateError {
		return webhook.Request{}, nil, ErrInvalidTransition
	}

	if in != nil {
		if errs := f.validator.Step3(*in, f.locale); errs != nil {
			f.metrics.ObserveStep(3, "invalid")
			return webhook.Request{}, errs, nil
		}
		f.draft.MergeStep3(*in)
	}
	if errs := f.validator.Complete(f.draft, f.locale); errs != nil {
		f.metrics.ObserveStep(3, "invalid")
		return webhook.Request{}, errs, nil
	}

	f.persist(ctx)
	f.metrics.ObserveStep(3, "ok")
	f.state = models.StateSubmitting
	f.lastErr = nil

	return webhook.Request{
		Draft:  f.draft.Clone(),
		Locale: f.locale,
		Page:   f.page,
	}, nil, nil
}

func (f *Form) deliver(ctx context.Context, req webhook.Request) error {
	// Once issued the request runs to completion, even if the caller leaves.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	err := f.submitter.Submit(ctx, req)
	elapsed := time.Since(start).Seconds()

	f.mu.Lock()
	if err != nil {
		f.state = models.StateError
		f.lastErr = err
		f.metrics.ObserveSubmission(outcome(err), elapsed)
		f.mu.Unlock()

		if webhook.IsConfiguration(err) {
			f.logger.Error("submission failed: webhook not configured", "kind", "configuration", "error", err)
		} else {
			f.logger.Warn("submission failed, draft kept for retry", "kind", "transport", "error", err)
		}
		return err
	}

	f.state = models.StateSuccess
	f.metrics.ObserveSubmission("success", elapsed)
	if delErr := f.store.Delete(ctx, f.key); delErr != nil {
		f.logger.Warn("could not clear stored draft", "error", delErr)
	}
	var notify func()
	if !f.notified {
		f.notified = true
		notify = f.onSuccess
	}
	f.mu.Unlock()

	f.logger.Info("gap scan submitted", "email_hash", utils.HashString(req.Draft.Email))
	if notify != nil {
		notify()
	}
	return nil
}

// persist mirrors the draft to the store. Failures are logged and the
// in-memory draft stays authoritative. Callers hold f.mu.
func (f *Form) persist(ctx context.Context) {
	if err := f.store.Save(ctx, f.key, f.draft.Clone()); err != nil {
		f.logger.Warn("could not persist draft, keeping it in memory", "error", err)
	}
}

// userMessage renders err for the visitor. Callers hold f.mu.
func (f *Form) userMessage(err error) string {
	return UserMessage(f.validator.Catalog(), f.locale, err)
}

// UserMessage renders a submission failure in lang. Configuration problems
// get a "contact support" text, everything else suggests trying again.
func UserMessage(catalog *i18n.Catalog, lang string, err error) string {
	key := i18n.KeyTransportError
	switch {
	case errors.Is(err, ErrSubmissionInProgress):
		key = i18n.KeyInProgress
	case webhook.IsConfiguration(err):
		key = i18n.KeyConfigurationError
	}
	if catalog == nil {
		return err.Error()
	}
	return catalog.T(lang, key)
}

func outcome(err error) string {
	if webhook.IsConfiguration(err) {
		return "configuration"
	}
	return "transport"
}
