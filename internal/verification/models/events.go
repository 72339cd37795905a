package models

import (
	"encoding/json"
	"strings"

	dErrors "veriflow/pkg/domain-errors"
)

// EventType is the closed set of provider webhook events. Parsing at the
// boundary keeps dispatch exhaustive; adding an event type is a compile-time
// visible change, not a silent default fallthrough.
type EventType string

const (
	EventVerificationCompleted EventType = "verification.completed"
	EventVerificationFailed    EventType = "verification.failed"
	EventSessionAbandoned      EventType = "session.abandoned"
	EventSessionExpired        EventType = "session.expired"
	EventStatusUpdated         EventType = "status.updated"
)

// ParseEventType constructs an EventType from external input.
// Errors: CodeValidation for empty or unknown event names.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventVerificationCompleted, EventVerificationFailed,
		EventSessionAbandoned, EventSessionExpired, EventStatusUpdated:
		return EventType(s), nil
	}
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "webhook payload missing event type")
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown event type %q", s)
}

// EventResult is the result object carried by completion events.
type EventResult struct {
	Status    string  `json:"status,omitempty"`
	RiskScore float64 `json:"risk_score,omitempty"`
}

// EventError is the error object carried by failure events.
type EventError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WebhookPayload is the parsed inbound webhook body. The provider is
// inconsistent about field naming (event vs webhook_type, sessionId vs
// session_id); accessors below normalize that.
type WebhookPayload struct {
	Event       string `json:"event,omitempty"`
	WebhookType string `json:"webhook_type,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	SessionIDv2 string `json:"session_id,omitempty"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status,omitempty"`

	Result *EventResult           `json:"result,omitempty"`
	Data   *ExtractedIdentityData `json:"data,omitempty"`
	Error  *EventError            `json:"error,omitempty"`

	// VendorData is an opaque metadata string we set at session creation;
	// it may carry a JSON-encoded subject reference.
	VendorData string `json:"vendor_data,omitempty"`

	raw json.RawMessage
}

// ParseWebhookPayload decodes raw webhook bytes. The raw bytes are retained
// so the stored payload is exactly what the provider signed, never a
// re-serialized copy.
func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed webhook payload")
	}
	p.raw = json.RawMessage(raw)
	return &p, nil
}

// Raw returns the byte-exact payload as received.
func (p *WebhookPayload) Raw() json.RawMessage {
	return p.raw
}

// EventName returns the raw event name from whichever field carries it.
func (p *WebhookPayload) EventName() string {
	if p.Event != "" {
		return p.Event
	}
	return p.WebhookType
}

// EventType parses the normalized event name against the closed enum.
func (p *WebhookPayload) EventType() (EventType, error) {
	return ParseEventType(p.EventName())
}

// ProviderSessionID returns the session identifier from whichever field
// carries it, or "" when absent.
func (p *WebhookPayload) ProviderSessionID() string {
	if p.SessionID != "" {
		return p.SessionID
	}
	return p.SessionIDv2
}

// NormalizedStatus lowercases the provider status string and collapses
// whitespace to underscores ("In Review" -> "in_review").
func (p *WebhookPayload) NormalizedStatus() string {
	return strings.Join(strings.Fields(strings.ToLower(p.Status)), "_")
}

// SubjectRef identifies the verification subject a session belongs to when
// it verifies a sub-entity (e.g. a company director).
type SubjectRef struct {
	KYBSubjectID string `json:"kyb_subject_id"`
}

// SubjectRef best-effort parses vendor_data for a subject reference.
// Returns (nil, nil) when vendor_data is empty or carries no subject id;
// returns an error only for undecodable JSON, which callers log and ignore
// since a bad vendor_data string never aborts event handling.
func (p *WebhookPayload) SubjectRef() (*SubjectRef, error) {
	if p.VendorData == "" {
		return nil, nil
	}
	var ref SubjectRef
	if err := json.Unmarshal([]byte(p.VendorData), &ref); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "vendor_data is not valid JSON")
	}
	if ref.KYBSubjectID == "" {
		return nil, nil
	}
	return &ref, nil
}
