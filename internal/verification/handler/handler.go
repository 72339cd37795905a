package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veriflow/internal/audit"
	"veriflow/internal/verification/metrics"
	"veriflow/internal/verification/models"
	"veriflow/internal/verification/service"
	"veriflow/internal/verification/signature"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/httputil"
	"veriflow/pkg/requestcontext"
)

// SignatureHeader carries the provider's HMAC over the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody caps webhook payload reads.
const maxWebhookBody = 1 << 20

// Service defines the verification operations the handler exposes.
type Service interface {
	CreateSession(ctx context.Context, input service.CreateSessionInput) (*models.Session, error)
	RetrySession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	GetSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ListPendingReview(ctx context.Context) ([]*models.Session, error)
	ProcessWebhook(ctx context.Context, payload *models.WebhookPayload) error
}

// AuditPublisher records security-relevant webhook rejections.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Handler wires verification endpoints to the service.
type Handler struct {
	service  Service
	verifier *signature.Verifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    AuditPublisher
}

type Option func(*Handler)

// WithAuditPublisher records signature rejections on the audit trail.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(h *Handler) {
		h.audit = publisher
	}
}

// New constructs a verification handler with its dependencies.
func New(service Service, verifier *signature.Verifier, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		verifier: verifier,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts the authenticated session endpoints on the router. The
// webhook endpoint is registered separately so it never sits behind internal
// auth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verification/sessions", h.HandleCreateSession)
	r.Post("/verification/sessions/{sessionID}/retry", h.HandleRetrySession)
	r.Get("/verification/sessions/pending-review", h.HandleListPendingReview)
	r.Get("/verification/sessions/{sessionID}", h.HandleGetSession)
}

// RegisterWebhook mounts the provider-facing webhook endpoint.
func (h *Handler) RegisterWebhook(r chi.Router) {
	r.Post("/verification/webhook", h.HandleWebhook)
}

// HandleCreateSession handles POST /verification/sessions.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.DecodeJSON[CreateSessionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	input, err := req.ToInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.CreateSession(ctx, input)
	if err != nil {
		h.logger.ErrorContext(ctx, "create verification session failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSession(session))
}

// HandleRetrySession handles POST /verification/sessions/{sessionID}/retry.
func (h *Handler) HandleRetrySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.RetrySession(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "retry verification session failed",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSession(session))
}

// HandleGetSession handles GET /verification/sessions/{sessionID}.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.GetSession(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

// HandleListPendingReview handles GET /verification/sessions/pending-review.
func (h *Handler) HandleListPendingReview(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListPendingReview(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSessions(sessions))
}

// HandleWebhook handles POST /verification/webhook.
//
// The signature is checked over the raw bytes exactly as received, before any
// parsing; an unverifiable payload gets 401 and no further reads. Duplicates
// acknowledge with 200 so the provider stops redelivering.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
		return
	}

	if !h.verifier.Verify(body, r.Header.Get(SignatureHeader)) {
		h.logger.WarnContext(ctx, "webhook signature rejected",
			"request_id", requestcontext.RequestID(ctx),
			"remote_ip", requestcontext.ClientIP(ctx),
		)
		h.metrics.IncrementSignatureRejection()
		if h.audit != nil {
			_ = h.audit.Emit(ctx, audit.Event{
				Action: audit.ActionWebhookRejected,
				Reason: "webhook signature verification failed",
			})
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature"))
		return
	}

	payload, err := models.ParseWebhookPayload(body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.ProcessWebhook(ctx, payload); err != nil {
		h.logger.ErrorContext(ctx, "webhook processing failed",
			"request_id", requestcontext.RequestID(ctx),
			"event_type", payload.EventName(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "webhook acknowledged",
		"request_id", requestcontext.RequestID(ctx),
		"event_type", payload.EventName(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, WebhookAck{Status: "ok"})
}
