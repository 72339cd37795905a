package models

// DocumentAuthenticity is the provider's verdict on the submitted document.
type DocumentAuthenticity string

const (
	DocumentValid      DocumentAuthenticity = "valid"
	DocumentSuspicious DocumentAuthenticity = "suspicious"
	DocumentInvalid    DocumentAuthenticity = "invalid"
)

// ProofOfAddress is the provider's proof-of-address record.
type ProofOfAddress struct {
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
}

// ExtractedIdentityData is the immutable value object the provider produces
// on completion, stored verbatim inside the session. The risk engine scores
// it; nothing in this service mutates it.
type ExtractedIdentityData struct {
	FullName    string `json:"full_name,omitempty"`
	IDNumber    string `json:"id_number,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Nationality string `json:"nationality,omitempty"`

	// Optional company/director data for business flows.
	CompanyName        string `json:"company_name,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	DirectorName       string `json:"director_name,omitempty"`

	ProofOfAddress *ProofOfAddress `json:"proof_of_address,omitempty"`

	// LivenessScore is the biometric liveness confidence in [0,1].
	LivenessScore float64 `json:"liveness_score"`

	DocumentAuthenticity DocumentAuthenticity `json:"document_authenticity"`

	// AML screening signals. SanctionsMatch and PEPMatch are absolute
	// overrides in scoring, not additive penalties.
	AMLFlags       []string `json:"aml_flags,omitempty"`
	SanctionsMatch bool     `json:"sanctions_match"`
	PEPMatch       bool     `json:"pep_match"`
}
