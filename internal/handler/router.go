package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const readinessTimeout = 2 * time.Second

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options carries router settings that come from configuration.
type Options struct {
	FrontendURL string
	// Development adds error details to validation failures.
	Development bool
	// Readiness maps dependency names to their probes.
	Readiness map[string]HealthChecker
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(signupSvc *service.SignupService, validationSvc *service.ValidationService, metrics *observability.Metrics, logger *zap.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(RecovererMiddleware(logger))
	useSecurityHeaders(r)
	r.Use(CORSMiddleware(opts.FrontendURL))
	r.Use(middleware.Compress(5))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/health", healthHandler())
	r.Get("/readyz", readyzHandler(opts.Readiness, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/metrics/signup", signupMetricsHandler(metrics))

	// --- Signup ---
	r.Post("/signup", signupHandler(signupSvc, logger))

	// --- Validation ---
	r.Route("/validate", func(r chi.Router) {
		r.Post("/email", validateEmailHandler(validationSvc, opts.Development, logger))
		r.Post("/document", validateDocumentHandler(validationSvc, opts.Development, logger))
	})

	return r
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: "ok"})
	}
}

func readyzHandler(checks map[string]HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		failed := make(map[string]string)
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
				failed[name] = "unavailable"
			}
		}

		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func signupMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSignupSnapshot())
	}
}
