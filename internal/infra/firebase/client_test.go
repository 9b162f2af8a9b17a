package firebase_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/config"
	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/firebase"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/resilience"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testProject = "nuvex-test"

func testCredential(t *testing.T) *config.ServiceCredential {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return &config.ServiceCredential{
		ProjectID:    testProject,
		ClientEmail:  "svc@nuvex-test.iam.gserviceaccount.com",
		PrivateKeyID: "kid-1",
		PrivateKey:   key,
		Source:       "test",
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...firebase.Option) (*firebase.Client, *config.ServiceCredential) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cred := testCredential(t)
	endpoints := firebase.Endpoints{IdentityToolkit: srv.URL, Firestore: srv.URL}
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	client := firebase.NewClient(&http.Client{Timeout: 2 * time.Second}, cred, endpoints,
		resilience.NewCircuitBreaker(t.Name()), cfg, zap.NewNop(), opts...)
	return client, cred
}

func writeGoogleError(w http.ResponseWriter, status int, message, grpcStatus string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message, "status": grpcStatus},
	})
}

func TestGetUserByEmail_Found(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/"+testProject+"/accounts:lookup" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Email []string `json:"email"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Email) != 1 || body.Email[0] != "a@b.com" {
			t.Errorf("unexpected lookup body %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]string{{"localId": "uid-1", "email": "a@b.com", "displayName": "Jane Doe"}},
		})
	})

	user, err := client.GetUserByEmail(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user == nil || user.UID != "uid-1" || user.DisplayName != "Jane Doe" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"kind":"identitytoolkit#GetAccountInfoResponse"}`))
	})

	user, err := client.GetUserByEmail(context.Background(), "new@b.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestGetUserByEmail_RetriesThenUnavailable(t *testing.T) {
	var calls atomic.Int32
	metrics := observability.NewMetrics()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeGoogleError(w, http.StatusServiceUnavailable, "backend unavailable", "UNAVAILABLE")
	}, firebase.WithMetrics(metrics))

	_, err := client.GetUserByEmail(context.Background(), "a@b.com")

	var dirErr *domain.ErrDirectory
	if !errors.As(err, &dirErr) {
		t.Fatalf("expected ErrDirectory, got %v", err)
	}
	if dirErr.Kind != domain.DirectoryUnavailable {
		t.Errorf("expected unavailable, got %s", dirErr.Kind)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCreateUser_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/"+testProject+"/accounts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret1" || body["displayName"] != "Jane Doe" {
			t.Errorf("unexpected create body %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"localId": "uid-9", "email": body["email"]})
	})

	account, err := client.CreateUser(context.Background(), domain.NewUser{Email: "a@b.com", Password: "secret1", DisplayName: "Jane Doe"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if account.UID != "uid-9" || account.Email != "a@b.com" || account.DisplayName != "Jane Doe" {
		t.Errorf("unexpected account %+v", account)
	}
}

func TestCreateUser_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    domain.DirectoryErrorKind
	}{
		{"email exists", "EMAIL_EXISTS", domain.DirectoryEmailExists},
		{"weak password", "WEAK_PASSWORD : Password should be at least 6 characters", domain.DirectoryInvalidPassword},
		{"invalid password", "INVALID_PASSWORD", domain.DirectoryInvalidPassword},
		{"other", "PROJECT_DISABLED", domain.DirectoryUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeGoogleError(w, http.StatusBadRequest, tt.message, "INVALID_ARGUMENT")
			})

			_, err := client.CreateUser(context.Background(), domain.NewUser{Email: "a@b.com", Password: "secret1"})

			kind, ok := domain.DirectoryKind(err)
			if !ok {
				t.Fatalf("expected ErrDirectory, got %v", err)
			}
			if kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, kind)
			}
			if calls.Load() != 1 {
				t.Errorf("create must not be retried, got %d calls", calls.Load())
			}
		})
	}
}

func TestCreateUser_NotRetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeGoogleError(w, http.StatusInternalServerError, "INTERNAL", "INTERNAL")
	})

	_, err := client.CreateUser(context.Background(), domain.NewUser{Email: "a@b.com", Password: "secret1"})
	if kind, _ := domain.DirectoryKind(err); kind != domain.DirectoryUnavailable {
		t.Errorf("expected unavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestDeleteUser_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/accounts:delete") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeGoogleError(w, http.StatusBadRequest, "USER_NOT_FOUND", "INVALID_ARGUMENT")
	})

	err := client.DeleteUser(context.Background(), "uid-1")
	if kind, _ := domain.DirectoryKind(err); kind != domain.DirectoryUserNotFound {
		t.Errorf("expected user not found, got %v", err)
	}
}

func TestAccessToken_SignedAndCached(t *testing.T) {
	var tokens []string
	metrics := observability.NewMetrics()
	client, cred := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		w.Write([]byte(`{}`))
	}, firebase.WithMetrics(metrics))

	for i := 0; i < 2; i++ {
		if _, err := client.GetUserByEmail(context.Background(), "a@b.com"); err != nil {
			t.Fatal(err)
		}
	}

	if len(tokens) != 2 || tokens[0] != tokens[1] {
		t.Fatalf("expected the cached token to be reused, got %v", tokens)
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokens[0], claims, func(t *jwt.Token) (any, error) {
		return &cred.PrivateKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || !tok.Valid {
		t.Fatalf("invalid access token: %v", err)
	}
	if claims["aud"] != "https://identitytoolkit.googleapis.com/" || claims["iss"] != cred.ClientEmail {
		t.Errorf("unexpected claims %v", claims)
	}
	if tok.Header["kid"] != "kid-1" {
		t.Errorf("expected kid header, got %v", tok.Header["kid"])
	}

	snap := metrics.GetSignupSnapshot()
	if snap.TokenCacheHitRate != 0.5 {
		t.Errorf("expected one hit and one miss, got rate %f", snap.TokenCacheHitRate)
	}
}

func TestEmulator_UsesOwnerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if !strings.HasPrefix(r.URL.Path, "/identitytoolkit.googleapis.com/v1/") {
			t.Errorf("unexpected emulator path %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := &config.Config{AuthEmulatorHost: strings.TrimPrefix(srv.URL, "http://")}
	endpoints := firebase.EndpointsFromConfig(cfg)
	if !endpoints.AuthEmulated || endpoints.FirestoreEmulated {
		t.Fatalf("unexpected endpoints %+v", endpoints)
	}

	client := firebase.NewClient(srv.Client(), testCredential(t), endpoints,
		resilience.NewCircuitBreaker("emulator"), resilience.Config{}, zap.NewNop())
	if _, err := client.GetUserByEmail(context.Background(), "a@b.com"); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer owner" {
		t.Errorf("expected owner bearer, got %q", auth)
	}
}

func TestCreateCustomToken(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client, cred := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("custom tokens are signed locally")
	}, firebase.WithClock(func() time.Time { return fixed }))

	signed, err := client.CreateCustomToken(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		return &cred.PrivateKey.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("invalid custom token: %v", err)
	}
	if claims["uid"] != "uid-1" || claims["sub"] != cred.ClientEmail {
		t.Errorf("unexpected claims %v", claims)
	}
	if claims["aud"] != "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit" {
		t.Errorf("unexpected audience %v", claims["aud"])
	}
	if exp, _ := claims.GetExpirationTime(); !exp.Equal(fixed.Add(time.Hour)) {
		t.Errorf("expected 1h lifetime, got %v", exp)
	}
}

func TestCreateCustomToken_RejectsEmptyUID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := client.CreateCustomToken(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty uid")
	}
}

func readBody(t *testing.T, r *http.Request) string {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}
