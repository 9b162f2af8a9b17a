package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const (
	maxBodyBytes = 100 << 10

	msgInvalidBody     = "Corpo da requisição inválido"
	msgInternalError   = "Erro interno"
	msgInternalServer  = "Erro interno do servidor"
	msgSignupFailed    = "Erro ao criar usuário"
	msgEmailCheckError = "Erro ao validar email"
	msgDocCheckError   = "Erro ao validar documento"
	msgDocRegistered   = "Documento já registrado"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody reads a JSON object into dst. An empty body leaves dst at its
// zero value so field validation reports the first missing field.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// detailsFor returns the error text in development and a generic marker otherwise.
func detailsFor(err error, development bool) string {
	if development {
		return err.Error()
	}
	return msgInternalError
}

// handleServiceError maps domain errors to HTTP responses. Upstream and
// unknown failures answer 500 with internalMsg and never the cause.
func handleServiceError(w http.ResponseWriter, err error, internalMsg string, logger *zap.Logger) {
	var validation *domain.ErrValidation
	var conflict *domain.ErrConflict
	var partial *domain.ErrPartialSignup
	var external *domain.ErrExternalService
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("field", validation.Field), zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("resource", conflict.Resource))
		writeError(w, http.StatusBadRequest, conflict.Message)
	case errors.As(err, &partial):
		logger.Error("partial signup",
			zap.String("uid", partial.UID),
			zap.String("stage", string(partial.Stage)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, internalMsg)
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.String("service", circuitOpen.Service), zap.Error(err))
		writeError(w, http.StatusInternalServerError, internalMsg)
	case errors.As(err, &timeout):
		logger.Error("upstream timeout", zap.String("operation", timeout.Operation), zap.Error(err))
		writeError(w, http.StatusInternalServerError, internalMsg)
	case errors.As(err, &external):
		logger.Error("upstream error",
			zap.String("service", external.Service),
			zap.String("code", domain.ErrorCode(err)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, internalMsg)
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, internalMsg)
	}
}
