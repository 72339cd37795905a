// Package service orchestrates the verification pipeline: flow selection,
// provider session creation, retries, and webhook-driven state transitions.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veriflow/internal/audit"
	subjectmodels "veriflow/internal/subject/models"
	"veriflow/internal/verification/metrics"
	"veriflow/internal/verification/models"
	"veriflow/internal/verification/provider"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
)

// SessionStore is the persistence the service needs for sessions.
type SessionStore interface {
	Insert(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.Session, error)
	FindLatestByRequestID(ctx context.Context, requestID id.RequestID) (*models.Session, error)
	ListPendingReview(ctx context.Context) ([]*models.Session, error)
}

// SubjectStore receives verification outcomes for KYB subjects.
type SubjectStore interface {
	ApplyOutcome(ctx context.Context, subjectID id.SubjectID, outcome subjectmodels.Outcome) error
}

// AuditPublisher records pipeline events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Notifier receives outcome notices after the durable update.
type Notifier interface {
	SessionCompleted(ctx context.Context, session *models.Session)
	SessionDeclined(ctx context.Context, session *models.Session)
	SessionAbandoned(ctx context.Context, session *models.Session)
}

// Config carries the verification policy knobs.
type Config struct {
	// HighValueThresholdCents splits business applications between the light
	// and full flows.
	HighValueThresholdCents int64

	// CallbackURL is where the provider delivers webhooks.
	CallbackURL string

	// RedirectURL is where the applicant lands after the hosted flow.
	RedirectURL string
}

// Service orchestrates verification sessions.
type Service struct {
	sessions SessionStore
	provider provider.Client
	cfg      Config

	subjects SubjectStore
	notifier Notifier
	audit    AuditPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithSubjectStore(subjects SubjectStore) Option {
	return func(s *Service) {
		s.subjects = subjects
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// New constructs a Service.
func New(sessions SessionStore, providerClient provider.Client, cfg Config, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		provider: providerClient,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateSessionInput is the request to open a verification session.
type CreateSessionInput struct {
	RequestID             id.RequestID
	SubjectType           models.SubjectType
	TransactionValueCents int64

	// SubjectID links the session to a KYB subject (director/UBO) whose
	// record receives the outcome.
	SubjectID *id.SubjectID
}

// SelectFlow picks the verification flow for an application. Consumers always
// get the light flow; businesses escalate to the full flow at the high-value
// threshold.
func (s *Service) SelectFlow(subjectType models.SubjectType, valueCents int64) models.FlowType {
	if subjectType == models.SubjectConsumer {
		return models.FlowLightConsumer
	}
	if valueCents >= s.cfg.HighValueThresholdCents {
		return models.FlowFullBusiness
	}
	return models.FlowLightBusiness
}

// flowFeatures maps each flow to the provider features it requests.
var flowFeatures = map[models.FlowType][]provider.Feature{
	models.FlowLightConsumer: {provider.FeatureIdentity, provider.FeatureLiveness},
	models.FlowLightBusiness: {provider.FeatureIdentity, provider.FeatureDocumentExtraction, provider.FeatureLiveness},
	models.FlowFullBusiness:  {provider.FeatureIdentity, provider.FeatureDocumentExtraction, provider.FeatureLiveness, provider.FeatureAML},
}

// CreateSession selects a flow, opens a provider session, and persists the
// local record in not_started.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	if input.RequestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "request_id is required")
	}
	if _, err := models.ParseSubjectType(string(input.SubjectType)); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if input.TransactionValueCents < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction value cannot be negative")
	}

	flow := s.SelectFlow(input.SubjectType, input.TransactionValueCents)
	return s.openSession(ctx, input.RequestID, flow, input.SubjectType, input.SubjectID)
}

// RetrySession opens a fresh session for the request behind an earlier one.
// Only the latest session for a request may be retried, and only from the
// declined or abandoned state; completed-approved work is never redone.
func (s *Service) RetrySession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	previous, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	latest, err := s.sessions.FindLatestByRequestID(ctx, previous.RequestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load latest session for request")
	}
	if latest.ID != previous.ID {
		return nil, dErrors.New(dErrors.CodeConflict, "a newer session exists for this request")
	}
	if previous.Status != models.StatusDeclined && previous.Status != models.StatusAbandoned {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"session in state %s cannot be retried", previous.Status)
	}

	created, err := s.openSession(ctx, previous.RequestID, previous.FlowType, previous.SubjectType, previous.SubjectID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.Event{
		Action:            audit.ActionSessionRetried,
		SessionID:         created.ID,
		RequestID:         created.RequestID,
		ProviderSessionID: created.ProviderSessionID,
		Reason:            fmt.Sprintf("previous session %s was %s", previous.ID, previous.Status),
	})
	return created, nil
}

func (s *Service) openSession(ctx context.Context, requestID id.RequestID, flow models.FlowType, subjectType models.SubjectType, subjectID *id.SubjectID) (*models.Session, error) {
	req := provider.CreateSessionRequest{
		FlowName:    string(flow),
		Features:    flowFeatures[flow],
		CallbackURL: s.cfg.CallbackURL,
		RedirectURL: s.cfg.RedirectURL,
	}
	if subjectID != nil {
		vendorData, err := json.Marshal(models.SubjectRef{KYBSubjectID: subjectID.String()})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode vendor data")
		}
		req.VendorData = string(vendorData)
	}

	start := time.Now()
	resp, err := s.provider.CreateSession(ctx, req)
	s.metrics.ObserveProviderLatency(time.Since(start))
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	session, err := models.NewSession(id.NewSessionID(), resp.SessionID, requestID, flow, subjectType, now)
	if err != nil {
		return nil, err
	}
	session.SubjectID = subjectID
	session.VerificationURL = resp.VerificationURL
	if !resp.ExpiresAt.IsZero() {
		expiresAt := resp.ExpiresAt
		session.ExpiresAt = &expiresAt
	}

	if err := s.sessions.Insert(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "provider session already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist session")
	}

	s.logger.InfoContext(ctx, "verification session created",
		"session_id", session.ID.String(),
		"request_id", requestID.String(),
		"flow_type", string(flow),
	)
	s.emitAudit(ctx, audit.Event{
		Action:            audit.ActionSessionCreated,
		SessionID:         session.ID,
		RequestID:         requestID,
		ProviderSessionID: session.ProviderSessionID,
		ToStatus:          string(session.Status),
	})
	s.metrics.IncrementSessionsCreated(string(flow))
	return session, nil
}

// GetSession returns the current projection of a session.
func (s *Service) GetSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

// ListPendingReview returns completed sessions awaiting manual review.
func (s *Service) ListPendingReview(ctx context.Context) ([]*models.Session, error) {
	sessions, err := s.sessions.ListPendingReview(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending review sessions")
	}
	return sessions, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "emit audit event",
			"action", string(event.Action),
			"error", err,
		)
	}
}
