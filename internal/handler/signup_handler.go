package handler

import (
	"net/http"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const msgUserCreated = "Usuário criado com sucesso"

// ============================================================
// Cadastro: POST /signup
// ============================================================

func signupHandler(svc *service.SignupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /signup")
		defer span.End()

		var payload domain.SignupPayload
		if err := decodeBody(w, r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}

		result, err := svc.Signup(ctx, &payload)
		if err != nil {
			handleServiceError(w, err, msgSignupFailed, logger)
			return
		}
		span.SetAttributes(attribute.String("user.uid", result.Account.UID))

		writeJSON(w, http.StatusCreated, domain.SignupResponse{
			Message:     msgUserCreated,
			CustomToken: result.Token,
			User:        result.Account,
		})
	}
}
