package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/config"
	"github.com/boddenberg/nuvex-bfa-go/internal/handler"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/cache"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/firebase"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/journal"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/memory"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/redis"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/nuvex-bfa-go/internal/port"
	"github.com/boddenberg/nuvex-bfa-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// backend groups the ports served by one provider.
type backend struct {
	directory port.UserDirectory
	store     port.RecordStore
	tokens    port.TokenIssuer
}

func main() {
	// --- Load .env file (for local development) ---
	dotenvKeys, dotenvErr := config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)

	if dotenvErr == nil {
		logger.Debug(".env loaded", zap.Strings("keys", dotenvKeys))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
	_ = logger.Sync()
}

// run wires the server and blocks until ctx is canceled or a component
// fails. Deferred cleanup runs on every return path.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("env", cfg.Environment),
		zap.String("backend", cfg.Backend),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("upstream_call_timeout", cfg.UpstreamCallTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("reconcile_interval", cfg.ReconcileInterval),
		zap.Bool("redis", cfg.RedisURL != ""),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "nuvex-bfa")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Backend ---
	var be backend
	switch cfg.Backend {
	case config.BackendMemory:
		be, err = newMemoryBackend(cfg, logger)
	default:
		be, err = newFirebaseBackend(cfg, metrics, logger)
	}
	if err != nil {
		return err
	}

	// --- Orphan journal ---
	readiness := map[string]handler.HealthChecker{}
	var orphans port.OrphanJournal = journal.NewMemory()

	rdb, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		orphans = journal.NewRedis(rdb.Client)
		readiness["redis"] = rdb
		logger.Info("orphan journal stored in redis", zap.String("key", journal.Key))
	} else {
		logger.Warn("REDIS_URL not set, orphan journal is in-process and lost on restart")
	}

	// --- Services ---
	signupSvc := service.NewSignupService(be.directory, be.store, be.tokens, orphans, metrics, logger,
		service.WithCallTimeout(cfg.UpstreamCallTimeout),
	)
	validationSvc := service.NewValidationService(be.directory, be.store, metrics, cfg.UpstreamCallTimeout, logger)
	reconciler := service.NewReconciler(be.directory, be.store, orphans, metrics, cfg.OrphanMaxAge, cfg.UpstreamCallTimeout, logger)

	// --- Router ---
	router := handler.NewRouter(signupSvc, validationSvc, metrics, logger, handler.Options{
		FrontendURL: cfg.FrontendURL,
		Development: cfg.IsDevelopment(),
		Readiness:   readiness,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("orphan reconciler started", zap.Duration("interval", cfg.ReconcileInterval))
		return reconciler.Run(gCtx, cfg.ReconcileInterval)
	})

	// --- Graceful shutdown ---
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newFirebaseBackend loads the service credential and builds the REST
// client.
func newFirebaseBackend(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (backend, error) {
	cred, err := config.LoadServiceCredential(cfg.CredentialsFile)
	if err != nil {
		return backend{}, fmt.Errorf("load firebase credential: %w", err)
	}

	endpoints := firebase.EndpointsFromConfig(cfg)
	logger.Info("using firebase backend",
		zap.String("project_id", cred.ProjectID),
		zap.String("credential_source", cred.Source),
		zap.Bool("auth_emulator", endpoints.AuthEmulated),
		zap.Bool("firestore_emulator", endpoints.FirestoreEmulated),
	)

	client := firebase.NewClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		cred,
		endpoints,
		resilience.NewCircuitBreaker("firebase"),
		resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		},
		logger,
		firebase.WithTokenCache(cache.New[string](cfg.TokenCacheTTL)),
		firebase.WithMetrics(metrics),
	)
	return backend{directory: client, store: client, tokens: client}, nil
}

func newMemoryBackend(cfg *config.Config, logger *zap.Logger) (backend, error) {
	issuer, err := memory.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return backend{}, fmt.Errorf("create token issuer: %w", err)
	}
	logger.Warn("using in-memory backend, accounts are lost on restart")
	return backend{directory: memory.NewDirectory(), store: memory.NewStore(), tokens: issuer}, nil
}
