package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/handler"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/journal"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/memory"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/port"
	"github.com/boddenberg/nuvex-bfa-go/internal/service"

	"go.uber.org/zap"
)

const frontendURL = "http://localhost:8080"

type testEnv struct {
	dir     *memory.Directory
	store   *memory.Store
	metrics *observability.Metrics
	router  http.Handler
}

func newTestEnv(t *testing.T, opts handler.Options) *testEnv {
	t.Helper()
	return newTestEnvWith(t, memory.NewDirectory(), opts)
}

func newTestEnvWith(t *testing.T, dir port.UserDirectory, opts handler.Options) *testEnv {
	t.Helper()
	store := memory.NewStore()
	issuer, err := memory.NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	signupSvc := service.NewSignupService(dir, store, issuer, journal.NewMemory(), metrics, logger)
	validationSvc := service.NewValidationService(dir, store, metrics, time.Second, logger)
	if opts.FrontendURL == "" {
		opts.FrontendURL = frontendURL
	}

	env := &testEnv{store: store, metrics: metrics}
	if md, ok := dir.(*memory.Directory); ok {
		env.dir = md
	}
	env.router = handler.NewRouter(signupSvc, validationSvc, metrics, logger, opts)
	return env
}

func (e *testEnv) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, handler.Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

type failingCheck struct{}

func (failingCheck) Health(context.Context) error { return errors.New("down") }

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, handler.Options{})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	env = newTestEnv(t, handler.Options{Readiness: map[string]handler.HealthChecker{"redis": failingCheck{}}})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, handler.Options{})
	env.post("/signup", `{"email":"a@b.com","fullName":"Jane Doe","password":"secret1"}`)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `bfa_signups_total{outcome="created"} 1`) {
		t.Errorf("expected signup counter in exposition, got:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/signup", nil))
	var snap domain.SignupMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.SignupsCreated != 1 {
		t.Errorf("expected 1 created signup, got %d", snap.SignupsCreated)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, handler.Options{})

	req := httptest.NewRequest(http.MethodOptions, "/signup", nil)
	req.Header.Set("Origin", frontendURL)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != frontendURL {
		t.Errorf("expected allowed origin %s, got %q", frontendURL, got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials to be allowed")
	}

	req = httptest.NewRequest(http.MethodOptions, "/signup", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allowed origin for foreign site, got %q", got)
	}
}

func TestSignupHandler(t *testing.T) {
	env := newTestEnv(t, handler.Options{})

	rec := env.post("/signup", `{"email":"a@b.com","fullName":"Jane Doe","password":"secret1","trial":"extended"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.SignupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "Usuário criado com sucesso" || resp.CustomToken == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.User.Email != "a@b.com" || resp.User.DisplayName != "Jane Doe" || resp.User.UID == "" {
		t.Errorf("unexpected user %+v", resp.User)
	}
	if strings.Contains(rec.Body.String(), "secret1") {
		t.Error("password must never be echoed")
	}

	profile, _ := env.store.GetUserProfile(context.Background(), resp.User.UID)
	if profile == nil || profile.TrialPeriod != 14 || !profile.AutoBilling {
		t.Errorf("unexpected profile %+v", profile)
	}
}

func TestSignupHandler_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"invalid email", `{"email":"nope","fullName":"Jane Doe","password":"secret1"}`, http.StatusBadRequest, "Email inválido"},
		{"empty body", ``, http.StatusBadRequest, "Email inválido"},
		{"short name", `{"email":"a@b.com","fullName":"Jo","password":"secret1"}`, http.StatusBadRequest, "Nome completo inválido"},
		{"short password", `{"email":"a@b.com","fullName":"Jane Doe","password":"123"}`, http.StatusBadRequest, "A senha deve ter pelo menos 6 caracteres"},
		{"malformed json", `{"email":`, http.StatusBadRequest, "Corpo da requisição inválido"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, handler.Options{})
			rec := env.post("/signup", tt.body)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if body := decode(t, rec); body["error"] != tt.message {
				t.Errorf("expected error %q, got %v", tt.message, body["error"])
			}
			if env.dir.Len() != 0 {
				t.Error("no account may be created")
			}
		})
	}
}

type brokenDirectory struct{}

func (brokenDirectory) GetUserByEmail(context.Context, string) (*domain.UserAccount, error) {
	return nil, &domain.ErrDirectory{Kind: domain.DirectoryUnavailable, Op: "lookup", Code: "INTERNAL", Err: errors.New("backend exploded")}
}

func (brokenDirectory) CreateUser(context.Context, domain.NewUser) (*domain.UserAccount, error) {
	return nil, errors.New("unreachable")
}

func (brokenDirectory) DeleteUser(context.Context, string) error { return nil }

func TestSignupHandler_UpstreamFailureIsGeneric(t *testing.T) {
	env := newTestEnvWith(t, brokenDirectory{}, handler.Options{})

	rec := env.post("/signup", `{"email":"a@b.com","fullName":"Jane Doe","password":"secret1"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decode(t, rec); body["error"] != "Erro ao criar usuário" {
		t.Errorf("unexpected body %v", body)
	}
	if strings.Contains(rec.Body.String(), "exploded") || strings.Contains(rec.Body.String(), "INTERNAL") {
		t.Error("upstream details leaked")
	}
}

func TestValidateEmailHandler(t *testing.T) {
	env := newTestEnv(t, handler.Options{})

	rec := env.post("/validate/email", `{"email":"a@b.com"}`)
	if rec.Code != http.StatusOK || decode(t, rec)["valid"] != true {
		t.Fatalf("expected valid email, got %d %s", rec.Code, rec.Body.String())
	}

	env.post("/signup", `{"email":"a@b.com","fullName":"Jane Doe","password":"secret1"}`)
	rec = env.post("/validate/email", `{"email":"a@b.com"}`)
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["valid"] != false || body["error"] != "Este email já está em uso" {
		t.Errorf("expected in use, got %d %v", rec.Code, body)
	}

	rec = env.post("/validate/email", `{"email":123}`)
	body = decode(t, rec)
	if rec.Code != http.StatusBadRequest || body["valid"] != false || body["error"] != "Email inválido" {
		t.Errorf("expected 400 invalid email, got %d %v", rec.Code, body)
	}
}

func TestValidateEmailHandler_UpstreamFailure(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		details     string
	}{
		{"production hides details", false, "Erro interno"},
		{"development shows details", true, "external service error [user_directory]: directory lookup [unavailable]: backend exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnvWith(t, brokenDirectory{}, handler.Options{Development: tt.development})
			rec := env.post("/validate/email", `{"email":"a@b.com"}`)

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
			body := decode(t, rec)
			if body["error"] != "Erro ao validar email" || body["valid"] != false {
				t.Errorf("unexpected body %v", body)
			}
			if body["details"] != tt.details {
				t.Errorf("expected details %q, got %v", tt.details, body["details"])
			}
		})
	}
}

func TestValidateDocumentHandler(t *testing.T) {
	env := newTestEnv(t, handler.Options{})
	env.store.SeedDocument(domain.DocumentCPF, "12345678900", "cancelled")
	env.store.SeedDocument(domain.DocumentCPF, "98765432100", "active")

	rec := env.post("/validate/document", `{"type":"cpf","number":"12345678900"}`)
	if rec.Code != http.StatusOK || decode(t, rec)["valid"] != true {
		t.Errorf("cancelled document must not block, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.post("/validate/document", `{"type":"cpf","number":"98765432100"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["error"] != "Documento já registrado" {
		t.Errorf("unexpected error %v", body["error"])
	}
	if body["message"] != "Este CPF já está em uso por outra conta ativa ou em período de teste." {
		t.Errorf("unexpected message %v", body["message"])
	}

	tests := []struct {
		body    string
		message string
	}{
		{`{"type":"cpf"}`, "Tipo e número do documento são obrigatórios"},
		{`{"number":"1"}`, "Tipo e número do documento são obrigatórios"},
		{`{"type":"rg","number":"1"}`, "Tipo de documento inválido"},
	}
	for _, tt := range tests {
		rec := env.post("/validate/document", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.body, rec.Code)
			continue
		}
		if got := decode(t, rec)["error"]; got != tt.message {
			t.Errorf("%s: expected %q, got %v", tt.body, tt.message, got)
		}
	}
}
