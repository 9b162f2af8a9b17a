// Package firebase talks to Firebase Authentication (Identity Toolkit v1) and
// Cloud Firestore over their REST APIs, authenticated with the service
// account loaded at startup.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/config"
	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/cache"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/nuvex-bfa-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("firebase")

const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com"
	defaultFirestoreURL       = "https://firestore.googleapis.com"

	identityToolkitAudience = "https://identitytoolkit.googleapis.com/"
	firestoreAudience       = "https://firestore.googleapis.com/"

	serviceAuth      = "firebase/auth"
	serviceFirestore = "firebase/firestore"
)

// Endpoints holds the REST base URLs. Emulated services accept the
// "owner" bearer token instead of a signed service account JWT.
type Endpoints struct {
	IdentityToolkit   string
	Firestore         string
	AuthEmulated      bool
	FirestoreEmulated bool
}

// EndpointsFromConfig resolves production or emulator base URLs.
func EndpointsFromConfig(cfg *config.Config) Endpoints {
	ep := Endpoints{
		IdentityToolkit: defaultIdentityToolkitURL,
		Firestore:       defaultFirestoreURL,
	}
	if cfg.AuthEmulatorHost != "" {
		ep.IdentityToolkit = fmt.Sprintf("http://%s/identitytoolkit.googleapis.com", cfg.AuthEmulatorHost)
		ep.AuthEmulated = true
	}
	if cfg.FirestoreEmulatorHost != "" {
		ep.Firestore = fmt.Sprintf("http://%s", cfg.FirestoreEmulatorHost)
		ep.FirestoreEmulated = true
	}
	return ep
}

// Client wraps HTTP calls to the Firebase REST APIs. It implements
// port.UserDirectory, port.RecordStore and port.TokenIssuer.
type Client struct {
	httpClient *http.Client
	cred       *config.ServiceCredential
	endpoints  Endpoints
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	tokens     port.Cache[string]
	metrics    *observability.Metrics
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithTokenCache shares an access-token cache with the client.
func WithTokenCache(c port.Cache[string]) Option {
	return func(cl *Client) { cl.tokens = c }
}

// WithMetrics records upstream errors and token cache hits.
func WithMetrics(m *observability.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithClock sets the clock used for token timestamps and profile dates.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

// NewClient creates a Firebase client. The credential must already be loaded.
func NewClient(httpClient *http.Client, cred *config.ServiceCredential, endpoints Endpoints, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		cred:       cred,
		endpoints:  endpoints,
		cb:         cb,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
	if cfg.MaxConcurrency > 0 {
		c.bulkhead = resilience.NewBulkhead(cfg.MaxConcurrency)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.tokens == nil {
		c.tokens = cache.New[string](accessTokenLifetime)
	}
	return c
}

// apiError is a non-2xx answer decoded from the Google error envelope.
type apiError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d %s: %s", e.HTTPStatus, e.Status, e.Message)
}

// providerCode returns the leading code of messages like
// "WEAK_PASSWORD : Password should be at least 6 characters".
func (e *apiError) providerCode() string {
	code, _, _ := strings.Cut(e.Message, ":")
	code = strings.TrimSpace(code)
	if code == "" || strings.Contains(code, " ") {
		return e.Status
	}
	return code
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func decodeAPIError(status int, body []byte) *apiError {
	apiErr := &apiError{HTTPStatus: status}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Status = env.Error.Status
		apiErr.Message = env.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

// retryable reports whether a failed attempt may succeed if repeated.
func retryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus == http.StatusTooManyRequests || apiErr.HTTPStatus >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// doJSON executes an authenticated JSON request against one of the APIs.
// out may be nil. Non-2xx answers come back as *apiError.
func (c *Client) doJSON(ctx context.Context, audience, method, url string, in, out any) error {
	if c.bulkhead != nil {
		if err := c.bulkhead.Acquire(ctx); err != nil {
			return err
		}
		defer c.bulkhead.Release()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.logger.Error("firebase: failed to create request",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return err
	}

	token, err := c.accessToken(audience)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("firebase: request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, raw)
		c.logger.Warn("firebase: non-2xx response",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.providerCode()),
		)
		return apiErr
	}

	c.logger.Debug("firebase: request OK",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
	)

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// read runs an idempotent call through the breaker with retries.
func (c *Client) read(ctx context.Context, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			err := fn()
			if err != nil && !retryable(err) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	return err
}

// write runs a mutation through the breaker exactly once.
func (c *Client) write(fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		err := fn()
		if err != nil && !retryable(err) {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	})
	return err
}

// upstreamCause turns breaker and deadline errors into domain errors and
// strips the permanent marker from everything else.
func (c *Client) upstreamCause(service, op string, err error) error {
	switch {
	case resilience.IsBreakerOpen(err):
		return &domain.ErrCircuitOpen{Service: service}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: op}
	default:
		return resilience.Unwrap(err)
	}
}

func (c *Client) incrExternalError(service string) {
	if c.metrics != nil {
		c.metrics.IncrExternalError(service)
	}
}
