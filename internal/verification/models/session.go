package models

import (
	"encoding/json"
	"time"

	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
)

// Status is the lifecycle state of a verification session.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDeclined   Status = "declined"
	StatusAbandoned  Status = "abandoned"
)

// IsTerminal reports whether no further transitions are defined out of s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusAbandoned:
		return true
	}
	return false
}

// CanTransitionTo reports whether the forward-only transition table permits
// moving from s to target. Terminal states permit nothing.
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusNotStarted:
		return target == StatusInProgress || target.IsTerminal()
	case StatusInProgress:
		return target == StatusInProgress || target.IsTerminal()
	}
	return false
}

// FlowType is the verification procedure requested from the provider.
type FlowType string

const (
	FlowLightConsumer FlowType = "light-consumer"
	FlowLightBusiness FlowType = "light-business"
	FlowFullBusiness  FlowType = "full-business"
)

// SubjectType classifies the applicant.
type SubjectType string

const (
	SubjectBusiness SubjectType = "business"
	SubjectConsumer SubjectType = "consumer"
)

// ParseSubjectType constructs a SubjectType from external input.
func ParseSubjectType(s string) (SubjectType, error) {
	switch SubjectType(s) {
	case SubjectBusiness, SubjectConsumer:
		return SubjectType(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown subject type %q", s)
}

// Result is the verification outcome of a completed session.
type Result string

const (
	ResultApproved      Result = "approved"
	ResultDeclined      Result = "declined"
	ResultPendingReview Result = "pending_review"
)

// RiskTier buckets the risk score.
type RiskTier string

const (
	TierLow    RiskTier = "low"
	TierMedium RiskTier = "medium"
	TierHigh   RiskTier = "high"
)

// Session is the central entity: one record per verification attempt.
//
// Invariants:
//   - ProviderSessionID is unique and immutable once assigned
//   - Status only moves forward through the transition table; terminal
//     states (completed, declined, abandoned) permit no further transitions
//   - RiskTier and VerificationResult are set together or not at all
//   - RawWebhookPayload holds the last processed payload; the pair
//     (event type, event timestamp) inside it is the idempotency key
//
// Sessions are never deleted. The record is an append-only audit trail with
// a mutable current-state projection.
type Session struct {
	ID                id.SessionID   `json:"id"`
	ProviderSessionID string         `json:"provider_session_id"`
	RequestID         id.RequestID   `json:"request_id"`
	SubjectID         *id.SubjectID  `json:"subject_id,omitempty"`
	FlowType          FlowType       `json:"flow_type"`
	SubjectType       SubjectType    `json:"subject_type"`
	Status            Status         `json:"status"`
	VerificationResult Result        `json:"verification_result,omitempty"`
	RiskTier          RiskTier       `json:"risk_tier,omitempty"`
	ExtractedData     *ExtractedIdentityData `json:"extracted_data,omitempty"`
	VerificationURL   string         `json:"verification_url,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	WebhookReceivedAt *time.Time     `json:"webhook_received_at,omitempty"`
	RawWebhookPayload json.RawMessage `json:"raw_webhook_payload,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewSession constructs a session in the initial not_started state.
func NewSession(sessionID id.SessionID, providerSessionID string, requestID id.RequestID, flow FlowType, subject SubjectType, now time.Time) (*Session, error) {
	if providerSessionID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "provider session id cannot be empty")
	}
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "originating request id is required")
	}
	return &Session{
		ID:                sessionID,
		ProviderSessionID: providerSessionID,
		RequestID:         requestID,
		FlowType:          flow,
		SubjectType:       subject,
		Status:            StatusNotStarted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// payloadKey is the minimal shape needed to derive the idempotency key from
// a stored raw payload.
type payloadKey struct {
	Event       string `json:"event"`
	WebhookType string `json:"webhook_type"`
	Timestamp   string `json:"timestamp"`
}

// IsDuplicate reports whether (eventType, timestamp) matches the idempotency
// key of the last payload processed for this session.
func (s *Session) IsDuplicate(eventType, timestamp string) bool {
	if len(s.RawWebhookPayload) == 0 {
		return false
	}
	var prev payloadKey
	if err := json.Unmarshal(s.RawWebhookPayload, &prev); err != nil {
		return false
	}
	prevEvent := prev.Event
	if prevEvent == "" {
		prevEvent = prev.WebhookType
	}
	return prevEvent == eventType && prev.Timestamp == timestamp
}

// CanTransitionTo checks the session's own status against the table.
func (s *Session) CanTransitionTo(target Status) error {
	if !s.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"no transition from %s to %s", s.Status, target)
	}
	return nil
}

// ApplyCompletion moves the session to completed, recording the outcome.
// Result, tier, and extracted data are set in one step so the
// set-together-or-not-at-all invariant holds by construction.
func (s *Session) ApplyCompletion(result Result, tier RiskTier, data *ExtractedIdentityData, raw json.RawMessage, now time.Time) error {
	if result == "" || tier == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "result and risk tier must be set together")
	}
	if err := s.CanTransitionTo(StatusCompleted); err != nil {
		return err
	}
	s.Status = StatusCompleted
	s.VerificationResult = result
	s.RiskTier = tier
	s.ExtractedData = data
	s.CompletedAt = &now
	s.recordWebhook(raw, now)
	return nil
}

// ApplyDeclined marks a hard verification failure. Distinct from a
// risk-based declined outcome but with the same terminal semantics.
func (s *Session) ApplyDeclined(raw json.RawMessage, now time.Time) error {
	if err := s.CanTransitionTo(StatusDeclined); err != nil {
		return err
	}
	s.Status = StatusDeclined
	s.VerificationResult = ResultDeclined
	s.RiskTier = TierHigh
	s.CompletedAt = &now
	s.recordWebhook(raw, now)
	return nil
}

// ApplyAbandoned covers both explicit abandonment and provider-side expiry;
// expiry is an unattended abandonment.
func (s *Session) ApplyAbandoned(raw json.RawMessage, now time.Time) error {
	if err := s.CanTransitionTo(StatusAbandoned); err != nil {
		return err
	}
	s.Status = StatusAbandoned
	s.CompletedAt = &now
	s.recordWebhook(raw, now)
	return nil
}

// ApplyProgress records a non-terminal provider status push.
func (s *Session) ApplyProgress(raw json.RawMessage, now time.Time) error {
	if err := s.CanTransitionTo(StatusInProgress); err != nil {
		return err
	}
	s.Status = StatusInProgress
	s.recordWebhook(raw, now)
	return nil
}

func (s *Session) recordWebhook(raw json.RawMessage, now time.Time) {
	if len(raw) > 0 {
		s.RawWebhookPayload = raw
	}
	s.WebhookReceivedAt = &now
	s.UpdatedAt = now
}
