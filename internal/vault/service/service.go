// Package service exposes the vault operations behind audit, metrics, and
// tracing. It translates store sentinel errors into domain errors exactly once.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credvault/internal/bundle"
	"credvault/internal/credential"
	"credvault/internal/platform/metrics"
	"credvault/internal/sentinel"
	"credvault/internal/vault/models"
	"credvault/internal/vault/store"
	id "credvault/pkg/domain"
	dErrors "credvault/pkg/domain-errors"
	"credvault/pkg/platform/audit"
	"credvault/pkg/secrets"
)

// AuditPublisher emits audit events for entry lifecycle actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Exporter writes reputation bundles to the downloadable artifact format.
type Exporter interface {
	Export(b *bundle.Bundle, token credential.Token) (bundle.ExportResult, error)
}

// Service owns vault entry custody: creation, unlock, expiry checks,
// statistics, deletion, and bundle export.
type Service struct {
	store    store.Store
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	exporter Exporter
	entryTTL time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures the vault service.
type Option func(*Service)

// WithAuditor configures an audit publisher for the service.
func WithAuditor(auditor AuditPublisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithMetrics configures Prometheus metrics for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithExporter configures the bundle exporter.
func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithEntryTTL overrides the custody window for new entries when greater than zero.
func WithEntryTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.entryTTL = d
		}
	}
}

// WithLogger configures a logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a vault service over the given store.
func NewService(st store.Store, opts ...Option) *Service {
	svc := &Service{
		store:    st,
		entryTTL: 365 * 24 * time.Hour,
		tracer:   otel.Tracer("credvault/vault"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// StoreRequest carries everything needed to provision a vault entry.
type StoreRequest struct {
	Credential       credential.Token
	Bundle           *bundle.Bundle
	BiometricSecret  string
	PassphraseSecret string
}

// Store provisions a new custody record for a minted credential. Whichever
// unlock secrets are supplied are hashed before anything is persisted.
func (s *Service) Store(ctx context.Context, req StoreRequest) (*models.VaultEntry, error) {
	if req.Credential.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "credential ID is required")
	}
	if !req.Credential.Tier.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "credential tier is required")
	}

	var biometricHash, passphraseHash string
	var err error
	if req.BiometricSecret != "" {
		if biometricHash, err = secrets.Hash(req.BiometricSecret); err != nil {
			return nil, err
		}
	}
	if req.PassphraseSecret != "" {
		if passphraseHash, err = secrets.Hash(req.PassphraseSecret); err != nil {
			return nil, err
		}
	}

	now := s.now()
	entry := &models.VaultEntry{
		ID:             id.NewEntryID(),
		CredentialID:   req.Credential.ID,
		Subject:        req.Credential.Subject,
		Credential:     req.Credential,
		Bundle:         req.Bundle,
		StoredAt:       now,
		ExpiresAt:      now.Add(s.entryTTL),
		Status:         models.StatusActive,
		BiometricHash:  biometricHash,
		PassphraseHash: passphraseHash,
	}

	if err := s.store.Create(ctx, entry); err != nil {
		return nil, s.fail(ctx, audit.EventEntryCreated, entry.Subject, entry.ID.String(), translateEntryError(err))
	}

	s.logAudit(ctx, audit.EventEntryCreated, entry.Subject, entry.ID.String(), "stored", "", 0)
	if s.metrics != nil {
		s.metrics.IncrementEntriesCreated()
	}
	s.syncActiveGauge(ctx)
	return entry.Clone(), nil
}

// UnlockResult pairs the unlocked entry with the remaining attempt budget.
type UnlockResult struct {
	Entry             *models.VaultEntry
	AttemptsRemaining int
}

// Unlock verifies an unlock secret and returns the entry on success. Failed
// attempts are counted by the store; the returned error carries the stable
// code the caller needs to decide whether to retry.
func (s *Service) Unlock(ctx context.Context, entryID id.EntryID, method models.UnlockMethod, secret string) (*UnlockResult, error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "vault.unlock", trace.WithAttributes(
		attribute.String("entry_id", entryID.String()),
		attribute.String("method", string(method)),
	))

	entry, remaining, err := s.store.Unlock(ctx, entryID, method, secret, started)
	duration := s.now().Sub(started)
	if s.metrics != nil {
		s.metrics.ObserveUnlockLatency(duration.Seconds())
	}
	// The store may have flipped the entry to expired or locked during the
	// attempt; rederive the gauge either way.
	s.syncActiveGauge(ctx)

	if err != nil {
		derr := translateUnlockError(err, remaining)
		span.RecordError(derr)
		span.SetStatus(otelcodes.Error, derr.Error())
		span.End()

		if errors.Is(err, sentinel.ErrVerificationFailed) {
			if s.metrics != nil {
				s.metrics.IncrementUnlockFailures()
			}
			if remaining == 0 {
				// This attempt tripped the lockout.
				s.logAudit(ctx, audit.EventEntryLocked, "", entryID.String(), "locked", "attempts_exhausted", duration)
				if s.metrics != nil {
					s.metrics.IncrementEntriesLocked()
				}
				return nil, derr
			}
		}
		s.failNoWrap(ctx, audit.EventEntryUnlocked, "", entryID.String(), derr, duration)
		return nil, derr
	}

	span.End()
	s.logAudit(ctx, audit.EventEntryUnlocked, entry.Subject, entryID.String(), "unlocked", string(method), duration)
	if s.metrics != nil {
		s.metrics.IncrementEntriesUnlocked()
	}
	return &UnlockResult{Entry: entry, AttemptsRemaining: remaining}, nil
}

// Get returns an entry without unlock verification. Intended for display
// metadata; reads are stale-tolerant.
func (s *Service) Get(ctx context.Context, entryID id.EntryID) (*models.VaultEntry, error) {
	entry, err := s.store.FindByID(ctx, entryID)
	if err != nil {
		return nil, translateEntryError(err)
	}
	s.logAudit(ctx, audit.EventEntryAccessed, entry.Subject, entryID.String(), "read", "", 0)
	return entry, nil
}

// ListBySubject returns all custody records for a subject.
func (s *Service) ListBySubject(ctx context.Context, subject id.DID) ([]*models.VaultEntry, error) {
	entries, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return nil, translateEntryError(err)
	}
	return entries, nil
}

// CheckExpiry reports whether an entry is expired and whether it is inside
// the soft refresh-warning window.
func (s *Service) CheckExpiry(ctx context.Context, entryID id.EntryID) (models.ExpiryStatus, error) {
	status, err := s.store.CheckExpiry(ctx, entryID, s.now())
	if err != nil {
		return models.ExpiryStatus{}, translateEntryError(err)
	}
	return status, nil
}

// Statistics summarizes the store.
func (s *Service) Statistics(ctx context.Context) (models.Statistics, error) {
	stats, err := s.store.Statistics(ctx, s.now())
	if err != nil {
		return models.Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not compute statistics")
	}
	return stats, nil
}

// Delete removes an entry permanently. Returns true when an entry was removed.
func (s *Service) Delete(ctx context.Context, entryID id.EntryID) (bool, error) {
	entry, err := s.store.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, translateEntryError(err)
	}

	if err := s.store.Delete(ctx, entryID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, s.fail(ctx, audit.EventEntryDeleted, entry.Subject, entryID.String(), translateEntryError(err))
	}

	s.logAudit(ctx, audit.EventEntryDeleted, entry.Subject, entryID.String(), "deleted", "", 0)
	if s.metrics != nil {
		s.metrics.IncrementEntriesDeleted()
	}
	s.syncActiveGauge(ctx)
	return true, nil
}

// Export writes the entry's reputation bundle to the downloadable artifact
// format and reports the file produced.
func (s *Service) Export(ctx context.Context, entryID id.EntryID) (bundle.ExportResult, error) {
	if s.exporter == nil {
		return bundle.ExportResult{}, dErrors.New(dErrors.CodeInternal, "exporter not configured")
	}
	entry, err := s.store.FindByID(ctx, entryID)
	if err != nil {
		return bundle.ExportResult{}, translateEntryError(err)
	}
	if entry.Bundle == nil {
		return bundle.ExportResult{}, dErrors.New(dErrors.CodeBadRequest, "entry has no reputation bundle")
	}

	res, err := s.exporter.Export(entry.Bundle, entry.Credential)
	if err != nil {
		return bundle.ExportResult{}, s.fail(ctx, audit.EventEntryExported, entry.Subject, entryID.String(), err)
	}
	s.logAudit(ctx, audit.EventEntryExported, entry.Subject, entryID.String(), "exported", res.Filename, 0)
	return res, nil
}

// syncActiveGauge rederives the active-entries gauge from store statistics so
// lazy status flips inside the store are reflected.
func (s *Service) syncActiveGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	stats, err := s.store.Statistics(ctx, s.now())
	if err != nil {
		return
	}
	s.metrics.SetActiveEntries(stats.ByStatus[string(models.StatusActive)])
}

// logAudit emits a success audit event and mirrors it to the structured log.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject id.DID, entryID, decision, reason string, duration time.Duration) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event),
			"entry_id", entryID,
			"subject", subject,
			"decision", decision,
			"duration_ms", duration.Milliseconds(),
		)
	}
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Subject:    subject,
		EntryID:    entryID,
		Action:     string(event),
		Decision:   decision,
		Reason:     reason,
		DurationMS: duration.Milliseconds(),
		Success:    true,
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "error", err, "action", event)
	}
}

// fail records an operation failure to audit and log, then returns the error.
func (s *Service) fail(ctx context.Context, event audit.AuditEvent, subject id.DID, entryID string, err error) error {
	s.failNoWrap(ctx, event, subject, entryID, err, 0)
	return err
}

func (s *Service) failNoWrap(ctx context.Context, event audit.AuditEvent, subject id.DID, entryID string, err error, duration time.Duration) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, string(audit.EventOperationFailed),
			"operation", event,
			"entry_id", entryID,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
	}
	if s.auditor == nil {
		return
	}
	emitErr := s.auditor.Emit(ctx, audit.Event{
		Subject:    subject,
		EntryID:    entryID,
		Action:     string(audit.EventOperationFailed),
		Decision:   string(event),
		Reason:     err.Error(),
		DurationMS: duration.Milliseconds(),
		Success:    false,
	})
	if emitErr != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "error", emitErr, "action", event)
	}
}

// translateEntryError maps store sentinel errors onto stable domain codes.
func translateEntryError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeEntryNotFound, "entry not found")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeEntryExpired, "entry has expired")
	case errors.Is(err, sentinel.ErrLocked):
		return dErrors.Wrap(err, dErrors.CodeEntryLocked, "entry is locked")
	case errors.Is(err, sentinel.ErrInvalidInput):
		return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "entry already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, err.Error())
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "vault store failure")
	}
}

func translateUnlockError(err error, remaining int) error {
	if errors.Is(err, sentinel.ErrVerificationFailed) {
		return dErrors.Wrap(err, dErrors.CodeUnlockFailed,
			fmt.Sprintf("unlock verification failed, %d attempts remaining", remaining))
	}
	return translateEntryError(err)
}
