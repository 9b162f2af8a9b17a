package domain

// ============================================================
// Validation endpoints: Request / Response types
// ============================================================

// DocumentType is a Brazilian taxpayer document kind.
type DocumentType string

const (
	DocumentCPF  DocumentType = "cpf"
	DocumentCNPJ DocumentType = "cnpj"
)

// Document statuses that hold a document number.
const (
	DocumentStatusTrial  = "trial"
	DocumentStatusActive = "active"
)

// BlockingDocumentStatuses are the statuses that make a document number unavailable.
var BlockingDocumentStatuses = []string{DocumentStatusTrial, DocumentStatusActive}

// EmailValidationPayload is the raw body for POST /validate/email.
type EmailValidationPayload struct {
	Email any `json:"email"`
}

// DocumentValidationPayload is the raw body for POST /validate/document.
type DocumentValidationPayload struct {
	Type   any `json:"type"`
	Number any `json:"number"`
}

// DocumentQuery is a validated document lookup.
type DocumentQuery struct {
	Type   DocumentType
	Number string
}

// ValidationResult is returned by the read-only uniqueness checks.
type ValidationResult struct {
	Valid    bool
	Reason   string
	Document DocumentType // set by document checks
}

// Reasons reported by ValidationResult.
const (
	ReasonInUse             = "in use"
	ReasonAlreadyRegistered = "already registered"
)

// EmailValidationResponse is the body for 200 from POST /validate/email.
type EmailValidationResponse struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// DocumentValidationResponse is the body for 200 from POST /validate/document.
type DocumentValidationResponse struct {
	Valid bool `json:"valid"`
}

// ErrorMessageResponse is the {error, message} envelope used by the document endpoint.
type ErrorMessageResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthStatus is the body for GET /health.
type HealthStatus struct {
	Status string `json:"status"`
}
