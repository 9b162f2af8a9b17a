package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/nuvex-bfa-go/internal/domain"
	"github.com/boddenberg/nuvex-bfa-go/internal/infra/observability"
	"github.com/boddenberg/nuvex-bfa-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reconciler finishes or removes accounts journaled by SignupService after
// a failed profile write. Every pass is idempotent.
type Reconciler struct {
	directory   port.UserDirectory
	store       port.RecordStore
	journal     port.OrphanJournal
	metrics     *observability.Metrics
	maxAge      time.Duration
	callTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewReconciler creates a reconciler. Entries older than maxAge whose
// profile still cannot be written have their account deleted.
func NewReconciler(directory port.UserDirectory, store port.RecordStore, journal port.OrphanJournal, metrics *observability.Metrics, maxAge, callTimeout time.Duration, logger *zap.Logger) *Reconciler {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Reconciler{
		directory:   directory,
		store:       store,
		journal:     journal,
		metrics:     metrics,
		maxAge:      maxAge,
		callTimeout: callTimeout,
		now:         time.Now,
		logger:      logger,
	}
}

// Sweep makes one pass over the journal.
func (r *Reconciler) Sweep(ctx context.Context) (*domain.SweepReport, error) {
	ctx, span := tracer.Start(ctx, "Reconciler.Sweep")
	defer span.End()

	entries, err := r.journal.List(ctx)
	if err != nil {
		r.metrics.IncrOrphan(observability.OrphanSweepError)
		return nil, fmt.Errorf("list orphans: %w", err)
	}

	report := &domain.SweepReport{Scanned: len(entries)}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			report.Pending = report.Scanned - report.Completed - report.Deleted
			return report, err
		}

		switch r.reconcile(ctx, entry) {
		case observability.OrphanCompleted:
			report.Completed++
		case observability.OrphanDeleted:
			report.Deleted++
		default:
			report.Pending++
		}
	}

	span.SetAttributes(
		attribute.Int("orphans.scanned", report.Scanned),
		attribute.Int("orphans.pending", report.Pending),
	)
	if report.Scanned > 0 {
		r.logger.Info("reconcile: sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("completed", report.Completed),
			zap.Int("deleted", report.Deleted),
			zap.Int("pending", report.Pending),
		)
	}
	return report, nil
}

// reconcile returns the orphan event for entry, or "" if it stays pending.
func (r *Reconciler) reconcile(ctx context.Context, entry domain.OrphanedSignup) string {
	log := r.logger.With(zap.String("uid", entry.UID))

	existing, err := r.getProfile(ctx, entry.UID)
	if err != nil {
		log.Warn("reconcile: profile lookup failed", zap.Error(err))
		return r.keep(ctx, entry)
	}
	if existing == nil {
		err = r.setProfile(ctx, entry)
	}
	if err == nil {
		if !r.remove(ctx, entry.UID) {
			return ""
		}
		r.metrics.IncrOrphan(observability.OrphanCompleted)
		log.Info("reconcile: profile completed")
		return observability.OrphanCompleted
	}

	if r.now().Sub(entry.RecordedAt) < r.maxAge {
		log.Warn("reconcile: profile write failed, will retry",
			zap.Int("attempts", entry.Attempts+1),
			zap.Error(err),
		)
		return r.keep(ctx, entry)
	}

	if err := r.deleteAccount(ctx, entry.UID); err != nil {
		log.Error("reconcile: failed to delete expired orphan", zap.Error(err))
		return r.keep(ctx, entry)
	}
	if !r.remove(ctx, entry.UID) {
		return ""
	}
	r.metrics.IncrOrphan(observability.OrphanDeleted)
	log.Warn("reconcile: expired orphan account deleted",
		zap.String("email", entry.Email),
		zap.Time("recorded_at", entry.RecordedAt),
	)
	return observability.OrphanDeleted
}

func (r *Reconciler) getProfile(ctx context.Context, uid string) (*domain.UserProfileRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.store.GetUserProfile(callCtx, uid)
}

func (r *Reconciler) setProfile(ctx context.Context, entry domain.OrphanedSignup) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.store.SetUserProfile(callCtx, entry.UID, entry.Profile)
}

// deleteAccount treats an already missing account as deleted.
func (r *Reconciler) deleteAccount(ctx context.Context, uid string) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	err := r.directory.DeleteUser(callCtx, uid)
	if kind, ok := domain.DirectoryKind(err); ok && kind == domain.DirectoryUserNotFound {
		return nil
	}
	return err
}

func (r *Reconciler) remove(ctx context.Context, uid string) bool {
	if err := r.journal.Remove(ctx, uid); err != nil {
		r.metrics.IncrOrphan(observability.OrphanSweepError)
		r.logger.Error("reconcile: failed to remove journal entry", zap.String("uid", uid), zap.Error(err))
		return false
	}
	return true
}

func (r *Reconciler) keep(ctx context.Context, entry domain.OrphanedSignup) string {
	entry.Attempts++
	if err := r.journal.Record(ctx, entry); err != nil {
		r.metrics.IncrOrphan(observability.OrphanSweepError)
		r.logger.Error("reconcile: failed to update journal entry", zap.String("uid", entry.UID), zap.Error(err))
	}
	return ""
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reconcile: sweep failed", zap.Error(err))
			}
		}
	}
}
