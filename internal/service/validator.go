package service

import (
	"strings"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
)

// Messages returned to the frontend for rejected input.
const (
	msgInvalidEmail     = "Email inválido"
	msgInvalidFullName  = "Nome completo inválido"
	msgShortPassword    = "A senha deve ter pelo menos 6 caracteres"
	msgDocumentRequired = "Tipo e número do documento são obrigatórios"
	msgInvalidDocType   = "Tipo de documento inválido"
	minFullNameLength   = 3
	minPasswordLength   = 6
)

// ValidateSignup checks the raw signup body and returns the normalized
// request. It makes no external calls.
func ValidateSignup(p *domain.SignupPayload) (*domain.SignupRequest, error) {
	if p == nil {
		return nil, &domain.ErrValidation{Field: "email", Message: msgInvalidEmail}
	}

	email, err := ValidateEmailInput(p.Email)
	if err != nil {
		return nil, err
	}

	fullName, ok := p.FullName.(string)
	if !ok || domain.TextLength(strings.TrimSpace(fullName)) < minFullNameLength {
		return nil, &domain.ErrValidation{Field: "fullName", Message: msgInvalidFullName}
	}

	password, ok := p.Password.(string)
	if !ok || domain.TextLength(password) < minPasswordLength {
		return nil, &domain.ErrValidation{Field: "password", Message: msgShortPassword}
	}

	return &domain.SignupRequest{
		Email:     email,
		FullName:  strings.TrimSpace(fullName),
		Password:  password,
		TrialDays: TrialDays(p.Trial),
	}, nil
}

// ValidateEmailInput accepts any string containing "@" and returns it trimmed.
func ValidateEmailInput(v any) (string, error) {
	email, ok := v.(string)
	if !ok || !strings.Contains(email, "@") {
		return "", &domain.ErrValidation{Field: "email", Message: msgInvalidEmail}
	}
	return strings.TrimSpace(email), nil
}

// TrialDays maps the optional trial flag to a trial period in days.
func TrialDays(trial any) int {
	if s, ok := trial.(string); ok && s == domain.TrialExtended {
		return domain.ExtendedTrialDays
	}
	return domain.DefaultTrialDays
}

// ValidateDocumentInput requires both type and number as strings, with type
// one of cpf or cnpj.
func ValidateDocumentInput(p *domain.DocumentValidationPayload) (domain.DocumentQuery, error) {
	if p == nil {
		return domain.DocumentQuery{}, &domain.ErrValidation{Field: "type", Message: msgDocumentRequired}
	}

	docType, _ := p.Type.(string)
	number, _ := p.Number.(string)
	number = strings.TrimSpace(number)
	if docType == "" || number == "" {
		field := "number"
		if docType == "" {
			field = "type"
		}
		return domain.DocumentQuery{}, &domain.ErrValidation{Field: field, Message: msgDocumentRequired}
	}

	switch domain.DocumentType(docType) {
	case domain.DocumentCPF, domain.DocumentCNPJ:
	default:
		return domain.DocumentQuery{}, &domain.ErrValidation{Field: "type", Message: msgInvalidDocType}
	}

	return domain.DocumentQuery{Type: domain.DocumentType(docType), Number: number}, nil
}
