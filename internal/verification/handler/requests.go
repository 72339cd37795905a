package handler

import (
	"veriflow/internal/verification/models"
	"veriflow/internal/verification/service"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
)

// CreateSessionRequest is the body of POST /verification/sessions.
type CreateSessionRequest struct {
	RequestID             string `json:"request_id"`
	SubjectType           string `json:"subject_type"`
	TransactionValueCents int64  `json:"transaction_value_cents,omitempty"`

	// SubjectID links the session to a KYB subject (director/UBO).
	SubjectID string `json:"subject_id,omitempty"`
}

// ToInput validates and converts the wire request into the service input.
func (r CreateSessionRequest) ToInput() (service.CreateSessionInput, error) {
	requestID, err := id.ParseRequestID(r.RequestID)
	if err != nil {
		return service.CreateSessionInput{}, dErrors.New(dErrors.CodeValidation, "request_id must be a valid UUID")
	}
	subjectType, err := models.ParseSubjectType(r.SubjectType)
	if err != nil {
		return service.CreateSessionInput{}, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	input := service.CreateSessionInput{
		RequestID:             requestID,
		SubjectType:           subjectType,
		TransactionValueCents: r.TransactionValueCents,
	}
	if r.SubjectID != "" {
		subjectID, err := id.ParseSubjectID(r.SubjectID)
		if err != nil {
			return service.CreateSessionInput{}, dErrors.New(dErrors.CodeValidation, "subject_id must be a valid UUID")
		}
		input.SubjectID = &subjectID
	}
	return input, nil
}
