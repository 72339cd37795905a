package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"veriflow/internal/audit"
	subjectmodels "veriflow/internal/subject/models"
	"veriflow/internal/verification/models"
	"veriflow/internal/verification/risk"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
)

var tracer = otel.Tracer("veriflow/verification")

// ProcessWebhook applies one provider event to its session. The caller has
// already verified the payload signature against the raw bytes.
//
// Dispatch order: resolve the session, short-circuit duplicates, reject
// events against finalized sessions, then apply the transition. The session
// update is durable before any side effect (audit, notification, subject
// propagation) runs; side-effect failures are logged and never surface to
// the provider.
func (s *Service) ProcessWebhook(ctx context.Context, payload *models.WebhookPayload) error {
	start := time.Now()
	defer func() {
		s.metrics.ObserveWebhookLatency(time.Since(start))
	}()

	ctx, span := tracer.Start(ctx, "verification.ProcessWebhook")
	defer span.End()

	eventType, err := payload.EventType()
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("event_type", string(eventType)))

	providerSessionID := payload.ProviderSessionID()
	if providerSessionID == "" {
		return dErrors.New(dErrors.CodeValidation, "webhook payload missing session id")
	}

	session, err := s.sessions.FindByProviderSessionID(ctx, providerSessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "unknown provider session")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve session")
	}
	span.SetAttributes(attribute.String("session_id", session.ID.String()))

	if session.IsDuplicate(payload.EventName(), payload.Timestamp) {
		s.logger.InfoContext(ctx, "duplicate webhook event ignored",
			"session_id", session.ID.String(),
			"event_type", string(eventType),
			"event_timestamp", payload.Timestamp,
		)
		s.metrics.IncrementWebhookEvent(string(eventType), "duplicate")
		s.emitAudit(ctx, audit.Event{
			Action:            audit.ActionWebhookDuplicate,
			SessionID:         session.ID,
			RequestID:         session.RequestID,
			ProviderSessionID: session.ProviderSessionID,
			Reason:            "event " + string(eventType) + " at " + payload.Timestamp + " already processed",
		})
		return nil
	}

	if session.Status.IsTerminal() {
		s.logger.WarnContext(ctx, "webhook for finalized session",
			"session_id", session.ID.String(),
			"status", string(session.Status),
			"event_type", string(eventType),
		)
		s.metrics.IncrementWebhookEvent(string(eventType), "anomaly")
		s.emitAudit(ctx, audit.Event{
			Action:            audit.ActionWebhookAnomaly,
			SessionID:         session.ID,
			RequestID:         session.RequestID,
			ProviderSessionID: session.ProviderSessionID,
			FromStatus:        string(session.Status),
			Reason:            "event " + string(eventType) + " received after finalization",
		})
		return dErrors.New(dErrors.CodeConflict, "session already finalized")
	}

	s.attachSubjectRef(ctx, session, payload)

	fromStatus := session.Status
	now := requestcontext.Now(ctx)

	switch eventType {
	case models.EventVerificationCompleted:
		err = s.applyCompletion(session, payload, now)
	case models.EventVerificationFailed:
		err = session.ApplyDeclined(payload.Raw(), now)
	case models.EventSessionAbandoned, models.EventSessionExpired:
		err = session.ApplyAbandoned(payload.Raw(), now)
	case models.EventStatusUpdated:
		err = s.applyStatusUpdate(session, payload, now)
	}
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}
		return err
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist session update")
	}

	s.logger.InfoContext(ctx, "webhook event processed",
		"session_id", session.ID.String(),
		"event_type", string(eventType),
		"from_status", string(fromStatus),
		"to_status", string(session.Status),
	)
	s.metrics.IncrementWebhookEvent(string(eventType), "processed")
	s.emitAudit(ctx, audit.Event{
		Action:            audit.ActionStatusTransition,
		SessionID:         session.ID,
		RequestID:         session.RequestID,
		ProviderSessionID: session.ProviderSessionID,
		FromStatus:        string(fromStatus),
		ToStatus:          string(session.Status),
		Result:            string(session.VerificationResult),
		RiskTier:          string(session.RiskTier),
	})

	if session.Status.IsTerminal() {
		s.notify(ctx, session)
		s.propagateToSubject(ctx, session)
	}
	return nil
}

// applyCompletion scores the extracted data and finalizes the session with
// the derived outcome.
func (s *Service) applyCompletion(session *models.Session, payload *models.WebhookPayload, now time.Time) error {
	if payload.Data == nil {
		return dErrors.New(dErrors.CodeValidation, "completion event missing extracted data")
	}
	breakdown := risk.Score(*payload.Data)
	result := risk.ResultForTier(breakdown)
	if err := session.ApplyCompletion(result, breakdown.RiskTier, payload.Data, payload.Raw(), now); err != nil {
		return err
	}
	s.metrics.IncrementOutcome(string(result), string(breakdown.RiskTier))
	return nil
}

// applyStatusUpdate folds a status push into the state machine. An approved
// or declined push finalizes the session as completed with the matching
// outcome; without extracted data to score, approved records the low tier
// and declined the high tier. Expiry in any spelling is an abandonment. A
// not_started push carries no new information and is dropped; anything
// unrecognized is recorded as progress.
func (s *Service) applyStatusUpdate(session *models.Session, payload *models.WebhookPayload, now time.Time) error {
	switch payload.NormalizedStatus() {
	case "approved":
		return s.finalizeFromStatus(session, models.ResultApproved, models.TierLow, payload, now)
	case "declined", "rejected":
		return s.finalizeFromStatus(session, models.ResultDeclined, models.TierHigh, payload, now)
	case "abandoned", "expired", "kyc_expired":
		return session.ApplyAbandoned(payload.Raw(), now)
	case "not_started":
		return nil
	default:
		return session.ApplyProgress(payload.Raw(), now)
	}
}

func (s *Service) finalizeFromStatus(session *models.Session, result models.Result, tier models.RiskTier, payload *models.WebhookPayload, now time.Time) error {
	if err := session.ApplyCompletion(result, tier, payload.Data, payload.Raw(), now); err != nil {
		return err
	}
	s.metrics.IncrementOutcome(string(result), string(tier))
	return nil
}

// attachSubjectRef links the session to the KYB subject named in vendor_data
// the first time an event carries one. An undecodable vendor_data string is
// logged and ignored.
func (s *Service) attachSubjectRef(ctx context.Context, session *models.Session, payload *models.WebhookPayload) {
	if session.SubjectID != nil {
		return
	}
	ref, err := payload.SubjectRef()
	if err != nil {
		s.logger.WarnContext(ctx, "unreadable vendor_data on webhook",
			"session_id", session.ID.String(),
			"error", err,
		)
		return
	}
	if ref == nil {
		return
	}
	subjectID, err := id.ParseSubjectID(ref.KYBSubjectID)
	if err != nil {
		s.logger.WarnContext(ctx, "invalid subject id in vendor_data",
			"session_id", session.ID.String(),
			"error", err,
		)
		return
	}
	session.SubjectID = &subjectID
}

func (s *Service) notify(ctx context.Context, session *models.Session) {
	if s.notifier == nil {
		return
	}
	switch session.Status {
	case models.StatusCompleted:
		s.notifier.SessionCompleted(ctx, session)
	case models.StatusDeclined:
		s.notifier.SessionDeclined(ctx, session)
	case models.StatusAbandoned:
		s.notifier.SessionAbandoned(ctx, session)
	}
}

// propagateToSubject pushes the terminal outcome onto the linked KYB subject.
// Failures are logged; subject bookkeeping never blocks webhook acknowledgement.
func (s *Service) propagateToSubject(ctx context.Context, session *models.Session) {
	if s.subjects == nil || session.SubjectID == nil {
		return
	}
	// Abandonment carries no verdict; it must not overwrite an outcome a
	// previous session already recorded on the subject.
	if session.Status == models.StatusAbandoned {
		return
	}
	outcome := subjectmodels.Outcome{
		Status:    subjectStatusFor(session),
		RiskTier:  string(session.RiskTier),
		SessionID: session.ID,
		At:        requestcontext.Now(ctx),
	}
	if err := s.subjects.ApplyOutcome(ctx, *session.SubjectID, outcome); err != nil {
		s.logger.WarnContext(ctx, "propagate outcome to subject",
			"session_id", session.ID.String(),
			"subject_id", session.SubjectID.String(),
			"error", err,
		)
		return
	}
	s.emitAudit(ctx, audit.Event{
		Action:    audit.ActionSubjectUpdated,
		SessionID: session.ID,
		RequestID: session.RequestID,
		ToStatus:  string(outcome.Status),
		RiskTier:  outcome.RiskTier,
	})
}

func subjectStatusFor(session *models.Session) subjectmodels.Status {
	switch {
	case session.Status == models.StatusCompleted && session.VerificationResult == models.ResultApproved:
		return subjectmodels.StatusVerified
	case session.Status == models.StatusCompleted && session.VerificationResult == models.ResultPendingReview:
		return subjectmodels.StatusPendingReview
	case session.Status == models.StatusDeclined,
		session.Status == models.StatusCompleted && session.VerificationResult == models.ResultDeclined:
		return subjectmodels.StatusDeclined
	default:
		return subjectmodels.StatusUnverified
	}
}
