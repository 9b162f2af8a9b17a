package service

import (
	"context"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Validation results recorded in bfa_validations_total.
const (
	resultValid   = "valid"
	resultInUse   = "in_use"
	resultInvalid = "invalid_input"
	resultError   = "error"

	kindEmail    = "email"
	kindDocument = "document"
)

// ValidationService answers the read-only uniqueness checks. It never
// mutates the directory or the store.
type ValidationService struct {
	directory   port.UserDirectory
	store       port.RecordStore
	metrics     *observability.Metrics
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewValidationService creates the validation service. A non-positive
// callTimeout falls back to the default.
func NewValidationService(directory port.UserDirectory, store port.RecordStore, metrics *observability.Metrics, callTimeout time.Duration, logger *zap.Logger) *ValidationService {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &ValidationService{
		directory:   directory,
		store:       store,
		metrics:     metrics,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// ValidateEmail reports whether the address is free in the directory.
func (v *ValidationService) ValidateEmail(ctx context.Context, payload *domain.EmailValidationPayload) (*domain.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "ValidationService.ValidateEmail")
	defer span.End()

	var raw any
	if payload != nil {
		raw = payload.Email
	}
	email, err := ValidateEmailInput(raw)
	if err != nil {
		v.metrics.IncrValidation(kindEmail, resultInvalid)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, v.callTimeout)
	defer cancel()

	user, err := v.directory.GetUserByEmail(callCtx, email)
	if err != nil {
		if kind, ok := domain.DirectoryKind(err); !ok || kind != domain.DirectoryUserNotFound {
			span.SetStatus(codes.Error, err.Error())
			v.metrics.IncrValidation(kindEmail, resultError)
			v.logger.Error("validate email: lookup failed",
				zap.String("code", domain.ErrorCode(err)),
				zap.Error(err),
			)
			return nil, &domain.ErrExternalService{Service: serviceDirectory, Err: err}
		}
		user = nil
	}

	if user != nil {
		v.metrics.IncrValidation(kindEmail, resultInUse)
		v.logger.Info("validate email: in use", zap.String("email", email))
		return &domain.ValidationResult{Valid: false, Reason: domain.ReasonInUse}, nil
	}

	v.metrics.IncrValidation(kindEmail, resultValid)
	v.logger.Info("validate email: available", zap.String("email", email))
	return &domain.ValidationResult{Valid: true}, nil
}

// ValidateDocument reports whether no trial or active record holds the document.
func (v *ValidationService) ValidateDocument(ctx context.Context, payload *domain.DocumentValidationPayload) (*domain.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "ValidationService.ValidateDocument")
	defer span.End()

	query, err := ValidateDocumentInput(payload)
	if err != nil {
		v.metrics.IncrValidation(kindDocument, resultInvalid)
		return nil, err
	}
	span.SetAttributes(attribute.String("document.type", string(query.Type)))

	callCtx, cancel := context.WithTimeout(ctx, v.callTimeout)
	defer cancel()

	taken, err := v.store.HasActiveDocument(callCtx, query)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		v.metrics.IncrValidation(kindDocument, resultError)
		v.logger.Error("validate document: query failed",
			zap.String("type", string(query.Type)),
			zap.String("code", domain.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: serviceStore, Err: err}
	}

	if taken {
		v.metrics.IncrValidation(kindDocument, resultInUse)
		return &domain.ValidationResult{Valid: false, Reason: domain.ReasonAlreadyRegistered, Document: query.Type}, nil
	}

	v.metrics.IncrValidation(kindDocument, resultValid)
	return &domain.ValidationResult{Valid: true, Document: query.Type}, nil
}
