package handler

import (
	"time"

	"veriflow/internal/verification/models"
)

// SessionResponse is the wire projection of a session.
type SessionResponse struct {
	ID                 string     `json:"id"`
	RequestID          string     `json:"request_id"`
	SubjectID          string     `json:"subject_id,omitempty"`
	FlowType           string     `json:"flow_type"`
	SubjectType        string     `json:"subject_type"`
	Status             string     `json:"status"`
	VerificationResult string     `json:"verification_result,omitempty"`
	RiskTier           string     `json:"risk_tier,omitempty"`
	VerificationURL    string     `json:"verification_url,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FromSession projects a session onto the wire shape. The provider session
// id and raw webhook payload stay internal.
func FromSession(session *models.Session) SessionResponse {
	resp := SessionResponse{
		ID:                 session.ID.String(),
		RequestID:          session.RequestID.String(),
		FlowType:           string(session.FlowType),
		SubjectType:        string(session.SubjectType),
		Status:             string(session.Status),
		VerificationResult: string(session.VerificationResult),
		RiskTier:           string(session.RiskTier),
		VerificationURL:    session.VerificationURL,
		ExpiresAt:          session.ExpiresAt,
		CompletedAt:        session.CompletedAt,
		CreatedAt:          session.CreatedAt,
		UpdatedAt:          session.UpdatedAt,
	}
	if session.SubjectID != nil {
		resp.SubjectID = session.SubjectID.String()
	}
	return resp
}

// SessionListResponse wraps a list of sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

// FromSessions projects a session list.
func FromSessions(sessions []*models.Session) SessionListResponse {
	out := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, session := range sessions {
		out.Sessions = append(out.Sessions, FromSession(session))
	}
	out.Count = len(out.Sessions)
	return out
}

// WebhookAck is the body returned for accepted webhooks.
type WebhookAck struct {
	Status string `json:"status"`
}
