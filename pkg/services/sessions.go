package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/navarrastar/gapscan/pkg/clients/webhook"
	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/metrics"
	"github.com/navarrastar/gapscan/pkg/models"
	"github.com/navarrastar/gapscan/pkg/storage"
	"github.com/navarrastar/gapscan/pkg/validation"
)

var ErrSessionNotFound = errors.New("form session not found or expired")

type activeSession struct {
	form      *Form
	expiresAt time.Time
}

// expired reports whether the session is past its deadline and idle. Callers
// hold the registry lock.
func (s *activeSession) expired(now time.Time) bool {
	return now.After(s.expiresAt) && s.form.State() != models.StateSubmitting
}

// OpenRequest describes a visitor opening (or reloading) the form
type OpenRequest struct {
	// SessionID of a previous visit. Unknown or malformed ids get a fresh one,
	// but a well-formed id still rehydrates whatever draft is stored for it.
	SessionID string
	Language  string
	Page      models.PageContext
	OnSuccess func()
}

// SessionRegistry owns one Form per visitor and forgets idle ones after a
// timeout. Stored drafts outlive the in-memory session.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*activeSession
	timeout  time.Duration
	now      func() time.Time

	keyPrefix     string
	defaultLocale string
	store         storage.DraftStore
	submitter     webhook.Client
	validator     *validation.Validator
	logger        *logging.Logger
	metrics       *metrics.FormMetrics
}

// RegistryConfig holds the registry settings taken from configuration
type RegistryConfig struct {
	Timeout       time.Duration
	KeyPrefix     string
	DefaultLocale string
}

// NewSessionRegistry creates a registry whose forms share the given collaborators
func NewSessionRegistry(
	cfg RegistryConfig,
	store storage.DraftStore,
	submitter webhook.Client,
	validator *validation.Validator,
	logger *logging.Logger,
	m *metrics.FormMetrics,
) *SessionRegistry {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Hour
	}
	return &SessionRegistry{
		sessions:      make(map[string]*activeSession),
		timeout:       cfg.Timeout,
		now:           time.Now,
		keyPrefix:     cfg.KeyPrefix,
		defaultLocale: cfg.DefaultLocale,
		store:         store,
		submitter:     submitter,
		validator:     validator,
		logger:        logger,
		metrics:       m,
	}
}

// Open returns the visitor's live form, or builds one rehydrated from the
// draft store. The boolean reports whether a new Form was created.
func (r *SessionRegistry) Open(ctx context.Context, req OpenRequest) (*Form, bool, error) {
	if form, err := r.Get(req.SessionID); err == nil {
		if req.Language != "" {
			form.SetLocale(req.Language)
		}
		form.RefreshPage(req.Page)
		return form, false, nil
	}

	id := req.SessionID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	lang := req.Language
	if lang == "" {
		lang = r.defaultLocale
	}

	form, err := NewForm(ctx, FormOptions{
		SessionID: id,
		StoreKey:  storage.Key(r.keyPrefix, id),
		Store:     r.store,
		Submitter: r.submitter,
		Validator: r.validator,
		Page:      req.Page,
		Locale:    lang,
		OnSuccess: req.OnSuccess,
		Logger:    r.logger,
		Metrics:   r.metrics,
	})
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	r.sessions[id] = &activeSession{form: form, expiresAt: r.now().Add(r.timeout)}
	r.mu.Unlock()

	rehydrated := form.Snapshot().Rehydrated
	r.metrics.ObserveSession(rehydrated)
	r.logger.Info("form session opened", "session_id", id, "rehydrated", rehydrated)
	return form, true, nil
}

// Get returns a live form and extends its expiry
func (r *SessionRegistry) Get(id string) (*Form, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := r.now()
	if s.expired(now) {
		delete(r.sessions, id)
		return nil, ErrSessionNotFound
	}
	s.expiresAt = now.Add(r.timeout)
	return s.form, nil
}

// Sweep drops expired sessions and returns how many were removed. A form
// with a submission in flight is kept until the submission settles.
func (r *SessionRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, s := range r.sessions {
		if s.expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("expired form sessions dropped", "count", n)
			}
		}
	}
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
