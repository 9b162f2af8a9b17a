package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/service"

	"go.uber.org/zap"
)

const msgEmailInUse = "Este email já está em uso"

// ============================================================
// Validação: POST /validate/email, POST /validate/document
// ============================================================

func validateEmailHandler(svc *service.ValidationService, development bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /validate/email")
		defer span.End()

		var payload domain.EmailValidationPayload
		if err := decodeBody(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}

		result, err := svc.ValidateEmail(ctx, &payload)
		if err != nil {
			var validation *domain.ErrValidation
			if errors.As(err, &validation) {
				writeJSON(w, http.StatusBadRequest, domain.EmailValidationResponse{Valid: false, Error: validation.Message})
				return
			}
			logger.Error("validate email failed", zap.String("code", domain.ErrorCode(err)), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, domain.EmailValidationResponse{
				Valid:   false,
				Error:   msgEmailCheckError,
				Details: detailsFor(err, development),
			})
			return
		}

		if !result.Valid {
			writeJSON(w, http.StatusOK, domain.EmailValidationResponse{Valid: false, Error: msgEmailInUse})
			return
		}
		writeJSON(w, http.StatusOK, domain.EmailValidationResponse{Valid: true})
	}
}

func validateDocumentHandler(svc *service.ValidationService, development bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /validate/document")
		defer span.End()

		var payload domain.DocumentValidationPayload
		if err := decodeBody(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}

		result, err := svc.ValidateDocument(ctx, &payload)
		if err != nil {
			var validation *domain.ErrValidation
			if errors.As(err, &validation) {
				writeError(w, http.StatusBadRequest, validation.Message)
				return
			}
			logger.Error("validate document failed", zap.String("code", domain.ErrorCode(err)), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, domain.ErrorMessageResponse{
				Error:   msgInternalError,
				Message: msgDocCheckError,
				Details: detailsFor(err, development),
			})
			return
		}

		if !result.Valid {
			writeJSON(w, http.StatusConflict, domain.ErrorMessageResponse{
				Error:   msgDocRegistered,
				Message: fmt.Sprintf("Este %s já está em uso por outra conta ativa ou em período de teste.", strings.ToUpper(string(result.Document))),
			})
			return
		}
		writeJSON(w, http.StatusOK, domain.DocumentValidationResponse{Valid: true})
	}
}
