package audit

import (
	"time"

	id "veriflow/pkg/domain"
)

// Action names a recorded pipeline occurrence.
type Action string

const (
	ActionSessionCreated   Action = "session_created"
	ActionSessionRetried   Action = "session_retried"
	ActionStatusTransition Action = "status_transition"
	ActionWebhookRejected  Action = "webhook_rejected"
	ActionWebhookDuplicate Action = "webhook_duplicate"
	ActionWebhookAnomaly   Action = "webhook_anomaly"
	ActionSessionSwept     Action = "session_swept"
	ActionSubjectUpdated   Action = "subject_updated"
)

// Event is emitted from domain logic to capture key pipeline actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Action            Action       `json:"action"`
	Timestamp         time.Time    `json:"timestamp"`
	SessionID         id.SessionID `json:"session_id,omitempty"`
	RequestID         id.RequestID `json:"request_id,omitempty"`
	ProviderSessionID string       `json:"provider_session_id,omitempty"`
	FromStatus        string       `json:"from_status,omitempty"`
	ToStatus          string       `json:"to_status,omitempty"`
	Result            string       `json:"result,omitempty"`
	RiskTier          string       `json:"risk_tier,omitempty"`
	Reason            string       `json:"reason,omitempty"`
}
