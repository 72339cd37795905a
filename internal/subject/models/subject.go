package models

import (
	"time"

	id "veriflow/pkg/domain"
)

// Status is the verification standing of a KYB subject.
type Status string

const (
	StatusUnverified    Status = "unverified"
	StatusVerified      Status = "verified"
	StatusPendingReview Status = "pending_review"
	StatusDeclined      Status = "declined"
)

// Subject is a person verified as part of a business application, typically
// a director or ultimate beneficial owner. Sessions reference subjects via
// the vendor data they carry through the provider round trip.
type Subject struct {
	ID                 id.SubjectID  `json:"id"`
	FullName           string        `json:"full_name"`
	Role               string        `json:"role,omitempty"`
	VerificationStatus Status        `json:"verification_status"`
	RiskTier           string        `json:"risk_tier,omitempty"`
	LastSessionID      *id.SessionID `json:"last_session_id,omitempty"`
	VerifiedAt         *time.Time    `json:"verified_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Outcome is the session result propagated onto a subject.
type Outcome struct {
	Status    Status
	RiskTier  string
	SessionID id.SessionID
	At        time.Time
}

// Apply folds a session outcome into the subject record.
func (s *Subject) Apply(outcome Outcome) {
	s.VerificationStatus = outcome.Status
	s.RiskTier = outcome.RiskTier
	sessionID := outcome.SessionID
	s.LastSessionID = &sessionID
	if outcome.Status == StatusVerified {
		at := outcome.At
		s.VerifiedAt = &at
	}
	s.UpdatedAt = outcome.At
}
