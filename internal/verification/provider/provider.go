// Package provider talks to the external KYC provider's session API.
// The pipeline treats it as an opaque remote call; only the session-creation
// contract is modeled here.
package provider

import (
	"context"
	"time"
)

// Feature is a verification capability requested from the provider.
type Feature string

const (
	FeatureIdentity           Feature = "identity"
	FeatureDocumentExtraction Feature = "document_extraction"
	FeatureLiveness           Feature = "liveness"
	FeatureAML                Feature = "aml"
)

// CreateSessionRequest describes the verification session to open.
type CreateSessionRequest struct {
	FlowName     string    `json:"flow_name"`
	Jurisdiction string    `json:"jurisdiction,omitempty"`
	Features     []Feature `json:"features"`

	// VendorData is opaque metadata echoed back on every webhook; we use it
	// to carry the subject reference for sub-entity sessions.
	VendorData string `json:"vendor_data,omitempty"`

	CallbackURL string `json:"callback_url"`
	RedirectURL string `json:"redirect_url"`

	// Metadata travels with the session for provider-side reporting.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateSessionResponse is the provider's answer to a session request.
type CreateSessionResponse struct {
	SessionID       string    `json:"session_id"`
	VerificationURL string    `json:"verification_url"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Client creates provider sessions. The interface stays small so tests can
// stub quickly.
type Client interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error)
}

// MockClient returns canned responses, optionally after a simulated latency.
type MockClient struct {
	Latency   time.Duration
	SessionID string
	URL       string
	ExpiresAt time.Time
	Err       error

	// LastRequest records the most recent request for assertions.
	LastRequest *CreateSessionRequest
}

func (c *MockClient) CreateSession(_ context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	time.Sleep(c.Latency)
	c.LastRequest = &req
	if c.Err != nil {
		return nil, c.Err
	}
	return &CreateSessionResponse{
		SessionID:       c.SessionID,
		VerificationURL: c.URL,
		ExpiresAt:       c.ExpiresAt,
	}, nil
}
