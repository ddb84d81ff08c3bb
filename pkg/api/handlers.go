package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/navarrastar/gapscan/pkg/clients/webhook"
	"github.com/navarrastar/gapscan/pkg/i18n"
	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/models"
	"github.com/navarrastar/gapscan/pkg/services"
	"github.com/navarrastar/gapscan/pkg/validation"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	sessions *services.SessionRegistry
	catalog  *i18n.Catalog
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	sessions *services.SessionRegistry,
	catalog *i18n.Catalog,
	gatherer prometheus.Gatherer,
	logger *logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		sessions: sessions,
		catalog:  catalog,
		gatherer: gatherer,
		logger:   logger,
	}
}

// RegisterRoutes mounts the API on r. writeLimit guards the endpoints that
// mutate a session; pass nil to disable it.
func RegisterRoutes(r gin.IRouter, h *Handlers, writeLimit gin.HandlerFunc) {
	if writeLimit == nil {
		writeLimit = func(c *gin.Context) { c.Next() }
	}

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", h.Metrics())

	g := r.Group("/api/gap-scan")
	g.GET("/options", h.Options)
	g.POST("/sessions", writeLimit, h.OpenSession)
	g.GET("/sessions/:id", h.GetSession)
	g.PUT("/sessions/:id/language", h.SetLanguage)
	g.POST("/sessions/:id/steps/1", writeLimit, h.Step1)
	g.POST("/sessions/:id/steps/2", writeLimit, h.Step2)
	g.POST("/sessions/:id/back", h.Back)
	g.POST("/sessions/:id/challenges/toggle", h.ToggleChallenge)
	g.POST("/sessions/:id/submit", writeLimit, h.Submit)
	g.POST("/sessions/:id/retry", writeLimit, h.Retry)
}

// HealthCheck handler for monitoring
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Metrics exposes the prometheus registry.
func (h *Handlers) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// Options returns the select and checkbox catalogs
func (h *Handlers) Options(c *gin.Context) {
	c.JSON(http.StatusOK, models.Catalog())
}

type openSessionRequest struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
	PageURL   string `json:"pageUrl"`
	Referrer  string `json:"referrer"`
}

type languageRequest struct {
	Language string `json:"language" binding:"required"`
}

type toggleRequest struct {
	Challenge string `json:"challenge" binding:"required"`
}

type successMessage struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type sessionResponse struct {
	services.Snapshot
	// Scheduling tells the page to reveal the booking widget.
	Scheduling bool            `json:"scheduling"`
	Success    *successMessage `json:"success,omitempty"`
}

// OpenSession starts a form session or resumes an existing one
func (h *Handlers) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = c.GetHeader("X-Session-ID")
	}
	if req.PageURL == "" {
		req.PageURL = c.Request.Referer()
	}

	var form *services.Form
	form, created, err := h.sessions.Open(c.Request.Context(), services.OpenRequest{
		SessionID: req.SessionID,
		Language:  req.Language,
		Page: models.PageContext{
			URL:       req.PageURL,
			Referrer:  req.Referrer,
			UserAgent: c.Request.UserAgent(),
		},
		OnSuccess: func() {
			h.logger.Info("scheduling widget unlocked", "session_id", form.ID())
		},
	})
	if err != nil {
		h.fail(c, nil, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.respond(c, status, form)
}

// GetSession returns the current snapshot
func (h *Handlers) GetSession(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, form)
}

// SetLanguage switches the session language
func (h *Handlers) SetLanguage(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	var req languageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language is required"})
		return
	}
	form.SetLocale(req.Language)
	h.respond(c, http.StatusOK, form)
}

// Step1 validates "About You" and advances
func (h *Handlers) Step1(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	var in models.Step1Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	errs, err := form.AdvanceStep1(c.Request.Context(), in)
	h.afterStep(c, form, errs, err)
}

// Step2 validates "Your Challenges" and advances. Without a challenges
// field the selection built through the toggle endpoint is used.
func (h *Handlers) Step2(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	var in models.Step2Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	errs, err := form.AdvanceStep2(c.Request.Context(), in)
	h.afterStep(c, form, errs, err)
}

// Back goes to the previous step
func (h *Handlers) Back(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	if err := form.Back(); err != nil {
		h.fail(c, form, err)
		return
	}
	h.respond(c, http.StatusOK, form)
}

// ToggleChallenge flips one challenge in the step 2 selection
func (h *Handlers) ToggleChallenge(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "challenge is required"})
		return
	}
	if _, err := form.ToggleChallenge(req.Challenge); err != nil {
		h.fail(c, form, err)
		return
	}
	h.respond(c, http.StatusOK, form)
}

// Submit validates "What You Want" and sends the whole form to the webhook
func (h *Handlers) Submit(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	var in models.Step3Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	errs, err := form.Submit(c.Request.Context(), in)
	h.afterStep(c, form, errs, err)
}

// Retry resends the entered answers after a failed submission
func (h *Handlers) Retry(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	err := form.Resubmit(c.Request.Context())
	var errs validation.Errors
	if errors.As(err, &errs) {
		h.afterStep(c, form, errs, nil)
		return
	}
	h.afterStep(c, form, nil, err)
}

func (h *Handlers) form(c *gin.Context) (*services.Form, bool) {
	form, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, nil, err)
		return nil, false
	}
	return form, true
}

func (h *Handlers) afterStep(c *gin.Context, form *services.Form, errs validation.Errors, err error) {
	switch {
	case err != nil:
		h.fail(c, form, err)
	case errs != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
	default:
		h.respond(c, http.StatusOK, form)
	}
}

func (h *Handlers) respond(c *gin.Context, status int, form *services.Form) {
	snap := form.Snapshot()
	resp := sessionResponse{Snapshot: snap}
	if snap.State == models.StateSuccess {
		resp.Scheduling = true
		resp.Success = &successMessage{
			Title:       h.catalog.T(snap.Language, i18n.KeySuccessTitle),
			Description: h.catalog.T(snap.Language, i18n.KeySuccessDescription),
		}
	}
	c.JSON(status, resp)
}

// fail maps an error to its status code and writes the error body. Webhook
// failures carry the localized message and the session snapshot.
func (h *Handlers) fail(c *gin.Context, form *services.Form, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	lang := i18n.English
	if form != nil {
		lang = form.Locale()
	}

	body := gin.H{"error": err.Error()}
	var transportErr *webhook.TransportError
	switch {
	case webhook.IsConfiguration(err), errors.As(err, &transportErr), errors.Is(err, services.ErrSubmissionInProgress):
		body["error"] = services.UserMessage(h.catalog, lang, err)
		body["retryable"] = webhook.IsRetryable(err)
	}
	if form != nil {
		body["session"] = form.Snapshot()
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	var transportErr *webhook.TransportError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnknownChallenge):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrSubmissionInProgress):
		return http.StatusConflict
	case webhook.IsConfiguration(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
