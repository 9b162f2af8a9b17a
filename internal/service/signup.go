// Package service holds the signup workflow, the read-only validation
// checks and the reconciliation of partial signups.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/signup")

// Upstream names used in ErrExternalService.
const (
	serviceDirectory = "user_directory"
	serviceStore     = "record_store"
	serviceTokens    = "token_issuer"
)

const (
	msgEmailInUse   = "Este email já está em uso"
	msgWeakPassword = "Senha inválida"

	defaultCallTimeout = 8 * time.Second
)

// SignupService creates accounts: directory account, profile record, then
// a custom token, in that order.
type SignupService struct {
	directory   port.UserDirectory
	store       port.RecordStore
	tokens      port.TokenIssuer
	journal     port.OrphanJournal
	metrics     *observability.Metrics
	callTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// SignupOption configures optional SignupService settings.
type SignupOption func(*SignupService)

// WithCallTimeout bounds every individual upstream call.
func WithCallTimeout(d time.Duration) SignupOption {
	return func(s *SignupService) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithClock overrides time.Now for createdAt/lastLogin.
func WithClock(now func() time.Time) SignupOption {
	return func(s *SignupService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSignupService creates the signup workflow. journal may be nil, in
// which case partial signups are only logged.
func NewSignupService(
	directory port.UserDirectory,
	store port.RecordStore,
	tokens port.TokenIssuer,
	journal port.OrphanJournal,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...SignupOption,
) *SignupService {
	s := &SignupService{
		directory:   directory,
		store:       store,
		tokens:      tokens,
		journal:     journal,
		metrics:     metrics,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup validates the payload and runs the workflow.
func (s *SignupService) Signup(ctx context.Context, payload *domain.SignupPayload) (*domain.SignupResult, error) {
	ctx, span := tracer.Start(ctx, "SignupService.Signup")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("signup", time.Since(start))
	}()

	req, err := ValidateSignup(payload)
	if err != nil {
		var ve *domain.ErrValidation
		if errors.As(err, &ve) {
			s.logger.Warn("signup: invalid input", zap.String("field", ve.Field))
		}
		s.metrics.IncrSignup(observability.OutcomeRejected)
		return nil, err
	}

	result, err := s.run(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.IncrSignup(signupOutcome(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("user.uid", result.Account.UID))
	s.metrics.IncrSignup(observability.OutcomeCreated)
	s.logger.Info("user signed up",
		zap.String("email", req.Email),
		zap.String("uid", result.Account.UID),
		zap.Int("trial_days", req.TrialDays),
	)
	return result, nil
}

func (s *SignupService) run(ctx context.Context, req *domain.SignupRequest) (*domain.SignupResult, error) {
	// Step 1: fail fast on a known address. Racy by nature; CreateUser is
	// the real uniqueness check.
	existing, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Warn("signup: email already in use", zap.String("email", req.Email))
		return nil, &domain.ErrConflict{Resource: "email", Message: msgEmailInUse}
	}

	// Nothing has been written yet, so a gone caller can still be honored.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// From here on the steps run detached from the caller so a disconnect
	// never leaves the account half-made. Each call is still bounded.
	detached := context.WithoutCancel(ctx)

	// Step 2: create the account.
	account, err := s.createAccount(detached, req)
	if err != nil {
		return nil, err
	}

	// Step 3: persist the profile.
	now := s.now().UTC()
	profile := domain.UserProfileRecord{
		FullName:    req.FullName,
		Email:       req.Email,
		CreatedAt:   now,
		LastLogin:   now,
		Role:        domain.RoleUser,
		AutoBilling: true,
		TrialPeriod: req.TrialDays,
	}
	if err := s.persistProfile(detached, account.UID, profile); err != nil {
		s.recordOrphan(detached, account, profile, err)
		return nil, s.partial(account.UID, domain.StagePersistProfile, serviceStore, err)
	}

	// Step 4: issue the custom token.
	token, err := s.issueToken(detached, account.UID)
	if err != nil {
		return nil, s.partial(account.UID, domain.StageIssueToken, serviceTokens, err)
	}

	return &domain.SignupResult{Token: token, Account: *account}, nil
}

func (s *SignupService) lookup(ctx context.Context, email string) (*domain.UserAccount, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	user, err := s.directory.GetUserByEmail(callCtx, email)
	if err == nil {
		return user, nil
	}
	if kind, ok := domain.DirectoryKind(err); ok && kind == domain.DirectoryUserNotFound {
		return nil, nil
	}
	s.logUpstream("lookup", err)
	return nil, &domain.ErrExternalService{Service: serviceDirectory, Err: err}
}

func (s *SignupService) createAccount(ctx context.Context, req *domain.SignupRequest) (*domain.UserAccount, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	account, err := s.directory.CreateUser(callCtx, domain.NewUser{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.FullName,
	})
	if err == nil {
		return account, nil
	}

	kind, _ := domain.DirectoryKind(err)
	switch kind {
	case domain.DirectoryEmailExists:
		s.logger.Warn("signup: email taken at creation", zap.String("email", req.Email))
		return nil, &domain.ErrConflict{Resource: "email", Message: msgEmailInUse}
	case domain.DirectoryInvalidPassword:
		s.logger.Warn("signup: password rejected by directory", zap.String("code", domain.ErrorCode(err)))
		return nil, &domain.ErrValidation{Field: "password", Message: msgWeakPassword}
	}
	s.logUpstream("create_user", err)
	return nil, &domain.ErrExternalService{Service: serviceDirectory, Err: err}
}

func (s *SignupService) persistProfile(ctx context.Context, uid string, profile domain.UserProfileRecord) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.store.SetUserProfile(callCtx, uid, profile)
}

func (s *SignupService) issueToken(ctx context.Context, uid string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.tokens.CreateCustomToken(callCtx, uid)
}

func (s *SignupService) recordOrphan(ctx context.Context, account *domain.UserAccount, profile domain.UserProfileRecord, cause error) {
	if s.journal == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	entry := domain.OrphanedSignup{
		UID:        account.UID,
		Email:      account.Email,
		Profile:    profile,
		Stage:      domain.StagePersistProfile,
		RecordedAt: s.now().UTC(),
	}
	if err := s.journal.Record(callCtx, entry); err != nil {
		s.logger.Error("signup: failed to journal orphaned account",
			zap.String("uid", account.UID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.metrics.IncrOrphan(observability.OrphanRecorded)
}

func (s *SignupService) partial(uid string, stage domain.SignupStage, service string, err error) error {
	s.logger.Error("signup: partial signup needs reconciliation",
		zap.String("uid", uid),
		zap.String("stage", string(stage)),
		zap.String("code", domain.ErrorCode(err)),
		zap.Error(err),
	)
	return &domain.ErrPartialSignup{
		UID:   uid,
		Stage: stage,
		Err:   &domain.ErrExternalService{Service: service, Err: err},
	}
}

func (s *SignupService) logUpstream(op string, err error) {
	s.logger.Error("signup: upstream call failed",
		zap.String("op", op),
		zap.String("code", domain.ErrorCode(err)),
		zap.Error(err),
	)
}

func signupOutcome(err error) string {
	var (
		conflict   *domain.ErrConflict
		validation *domain.ErrValidation
		partial    *domain.ErrPartialSignup
	)
	switch {
	case errors.As(err, &conflict):
		return observability.OutcomeConflicted
	case errors.As(err, &validation):
		return observability.OutcomeRejected
	case errors.As(err, &partial):
		return observability.OutcomePartial
	default:
		return observability.OutcomeFailed
	}
}
