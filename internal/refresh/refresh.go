// Package refresh orchestrates biometric-gated credential re-issuance.
//
// A refresh walks the entry through scan -> verify -> update-profile ->
// commit. The entry sits in refreshing status for the duration; any failure
// after BeginRefresh aborts back to active with no observable mutation of
// credential, bundle, or history.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credvault/internal/biometric"
	"credvault/internal/bundle"
	"credvault/internal/credential"
	"credvault/internal/minter"
	"credvault/internal/platform/metrics"
	"credvault/internal/profile"
	"credvault/internal/sentinel"
	"credvault/internal/vault/models"
	"credvault/internal/vault/store"
	id "credvault/pkg/domain"
	dErrors "credvault/pkg/domain-errors"
	"credvault/pkg/platform/audit"
)

// SessionAuthorizer gates a refresh on a verified biometric session.
// Authorize claims the session for exactly one refresh; Release returns the
// claim when the refresh aborts mid-flight.
type SessionAuthorizer interface {
	Authorize(ctx context.Context, sessionID id.SessionID, subject id.DID) error
	Release(ctx context.Context, sessionID id.SessionID) error
}

// AuditPublisher emits audit events for refresh outcomes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Orchestrator drives the refresh protocol across the vault store, the
// minter, the profile source, the biometric manager, and the external
// bundle assembler.
type Orchestrator struct {
	vault     store.Store
	minter    *minter.Minter
	profiles  profile.Source
	sessions  SessionAuthorizer
	assembler bundle.Assembler
	auditor   AuditPublisher
	metrics   *metrics.Metrics
	entryTTL  time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithAuditor configures an audit publisher.
func WithAuditor(auditor AuditPublisher) Option {
	return func(o *Orchestrator) { o.auditor = auditor }
}

// WithMetrics configures Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithEntryTTL overrides the custody extension applied on commit when greater than zero.
func WithEntryTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.entryTTL = d
		}
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates a refresh orchestrator with the required collaborators.
func New(vault store.Store, m *minter.Minter, profiles profile.Source, sessions SessionAuthorizer, assembler bundle.Assembler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		vault:     vault,
		minter:    m,
		profiles:  profiles,
		sessions:  sessions,
		assembler: assembler,
		entryTTL:  365 * 24 * time.Hour,
		tracer:    otel.Tracer("credvault/refresh"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request identifies the entry to refresh and the session authorizing it.
type Request struct {
	EntryID   id.EntryID
	SessionID id.SessionID
	Reason    models.RefreshReason
}

// Result reports a completed refresh.
type Result struct {
	Entry      *models.VaultEntry
	Record     models.RefreshRecord
	Credential credential.Token
}

// Refresh re-issues the entry's credential in place. On success the entry
// carries the new credential and bundle, an extended custody window, and one
// more refresh-history row. On failure the entry is returned to active with
// its pre-refresh content intact.
func (o *Orchestrator) Refresh(ctx context.Context, req Request) (*Result, error) {
	if !req.Reason.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown refresh reason")
	}

	started := o.now()
	ctx, span := o.tracer.Start(ctx, "vault.refresh", trace.WithAttributes(
		attribute.String("entry_id", req.EntryID.String()),
		attribute.String("reason", string(req.Reason)),
	))
	defer span.End()

	// Scan: take the entry into refreshing status and snapshot its state.
	entry, err := o.vault.BeginRefresh(ctx, req.EntryID, started)
	if err != nil {
		derr := translateBeginError(err)
		o.observeFailure(ctx, span, req, "", derr, started)
		return nil, derr
	}

	// Verify: the session must vouch for this entry's subject. A successful
	// authorization claims the session for this refresh.
	if err := o.sessions.Authorize(ctx, req.SessionID, entry.Subject); err != nil {
		derr := translateSessionError(err)
		o.abort(ctx, req.EntryID)
		o.observeFailure(ctx, span, req, entry.Subject, derr, started)
		return nil, derr
	}

	oldEpoch := id.EpochUnknown
	if entry.Bundle != nil {
		oldEpoch = entry.Bundle.Epoch
	}
	newEpoch := id.EpochAt(started)

	// Update-profile: re-read activity and re-mint against it, preserving the
	// credential identifier.
	prof, err := o.profiles.Get(ctx, entry.Subject)
	if err != nil {
		derr := dErrors.Recode(err, dErrors.CodeRefreshFailed, "could not load activity profile")
		o.rollback(ctx, req.EntryID, req.SessionID)
		o.observeFailure(ctx, span, req, entry.Subject, derr, started)
		return nil, derr
	}

	newToken, err := o.minter.Reissue(ctx, entry.Subject, entry.Credential.ID)
	if err != nil {
		derr := dErrors.Recode(err, dErrors.CodeRefreshFailed, "re-issuance failed")
		o.rollback(ctx, req.EntryID, req.SessionID)
		o.observeFailure(ctx, span, req, entry.Subject, derr, started)
		return nil, derr
	}

	// Regenerate the bundle only when the entry already carries one; the vault
	// never fabricates a bundle on its own.
	newBundle := entry.Bundle
	if entry.Bundle != nil {
		newBundle, err = o.assembler.Assemble(ctx, newToken, prof)
		if err != nil {
			derr := dErrors.Recode(err, dErrors.CodeRefreshFailed, "bundle regeneration failed")
			o.rollback(ctx, req.EntryID, req.SessionID)
			o.observeFailure(ctx, span, req, entry.Subject, derr, started)
			return nil, derr
		}
		// The rotation's epoch is authoritative regardless of the assembler's
		// clock, so the committed bundle always matches the recorded rotation.
		newBundle.Epoch = newEpoch
	}

	record := models.RefreshRecord{
		ID:               id.NewRefreshID(),
		RefreshedAt:      started,
		OldEpoch:         oldEpoch,
		NewEpoch:         newEpoch,
		BiometricUsed:    true,
		TrustIndexChange: newToken.TrustIndex - entry.Credential.TrustIndex,
		Reason:           req.Reason,
	}

	// Commit: replace credential and bundle, append history, extend custody.
	updated, err := o.vault.CommitRefresh(ctx, req.EntryID, models.RefreshCommit{
		Credential: newToken,
		Bundle:     newBundle,
		Record:     record,
		ExpiresAt:  started.Add(o.entryTTL),
	})
	if err != nil {
		derr := dErrors.Recode(err, dErrors.CodeRefreshFailed, "commit failed")
		o.rollback(ctx, req.EntryID, req.SessionID)
		o.observeFailure(ctx, span, req, entry.Subject, derr, started)
		return nil, derr
	}

	duration := o.now().Sub(started)
	o.emitRefreshed(ctx, updated, record, duration)
	if o.metrics != nil {
		o.metrics.IncrementRefreshesCompleted(string(req.Reason))
		o.metrics.ObserveRefreshLatency(duration.Seconds())
	}
	return &Result{Entry: updated, Record: record, Credential: newToken}, nil
}

// abort returns the entry to active after a mid-flight failure. Best effort:
// the entry may already be active if BeginRefresh never ran.
func (o *Orchestrator) abort(ctx context.Context, entryID id.EntryID) {
	if err := o.vault.AbortRefresh(ctx, entryID); err != nil && o.logger != nil {
		o.logger.ErrorContext(ctx, "refresh abort failed",
			"entry_id", entryID,
			"error", err,
		)
	}
}

// rollback aborts the refresh and returns the session claim so the subject can
// retry with the same verification.
func (o *Orchestrator) rollback(ctx context.Context, entryID id.EntryID, sessionID id.SessionID) {
	o.abort(ctx, entryID)
	if err := o.sessions.Release(ctx, sessionID); err != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "could not release biometric session",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// syncActiveGauge rederives the active-entries gauge from store statistics so
// status flips inside the store are reflected.
func (o *Orchestrator) syncActiveGauge(ctx context.Context) {
	if o.metrics == nil {
		return
	}
	stats, err := o.vault.Statistics(ctx, o.now())
	if err != nil {
		return
	}
	o.metrics.SetActiveEntries(stats.ByStatus[string(models.StatusActive)])
}

func (o *Orchestrator) emitRefreshed(ctx context.Context, entry *models.VaultEntry, record models.RefreshRecord, duration time.Duration) {
	if o.logger != nil {
		o.logger.InfoContext(ctx, string(audit.EventEntryRefreshed),
			"entry_id", entry.ID,
			"subject", entry.Subject,
			"old_epoch", record.OldEpoch,
			"new_epoch", record.NewEpoch,
			"trust_delta", record.TrustIndexChange,
			"duration_ms", duration.Milliseconds(),
		)
	}
	if o.auditor == nil {
		return
	}
	err := o.auditor.Emit(ctx, audit.Event{
		Subject:    entry.Subject,
		EntryID:    entry.ID.String(),
		Action:     string(audit.EventEntryRefreshed),
		Decision:   "refreshed",
		Reason:     string(record.Reason),
		DurationMS: duration.Milliseconds(),
		Success:    true,
	})
	if err != nil && o.logger != nil {
		o.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
	}
}

func (o *Orchestrator) observeFailure(ctx context.Context, span trace.Span, req Request, subject id.DID, err error, started time.Time) {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())

	duration := o.now().Sub(started)
	if o.logger != nil {
		o.logger.WarnContext(ctx, "refresh failed",
			"entry_id", req.EntryID,
			"reason", req.Reason,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
	}
	if o.metrics != nil {
		o.metrics.IncrementRefreshesFailed()
		o.syncActiveGauge(ctx)
	}
	if o.auditor == nil {
		return
	}
	emitErr := o.auditor.Emit(ctx, audit.Event{
		Subject:    subject,
		EntryID:    req.EntryID.String(),
		Action:     string(audit.EventOperationFailed),
		Decision:   string(audit.EventEntryRefreshed),
		Reason:     err.Error(),
		DurationMS: duration.Milliseconds(),
		Success:    false,
	})
	if emitErr != nil && o.logger != nil {
		o.logger.ErrorContext(ctx, "failed to emit audit event", "error", emitErr)
	}
}

// translateBeginError maps store sentinel errors from BeginRefresh onto the
// caller-facing taxonomy.
func translateBeginError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeEntryNotFound, "entry not found")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeEntryExpired, "entry has expired")
	case errors.Is(err, sentinel.ErrLocked):
		return dErrors.Wrap(err, dErrors.CodeEntryLocked, "entry is locked")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeRefreshFailed, "refresh already in progress")
	default:
		return dErrors.Wrap(err, dErrors.CodeRefreshFailed, "could not begin refresh")
	}
}

func translateSessionError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeSessionNotFound, "biometric session not found")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeSessionExpired, "biometric session has expired")
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrNotVerified):
		return dErrors.Wrap(err, dErrors.CodeBiometricNotVerified, "biometric session cannot authorize this refresh")
	default:
		return dErrors.Wrap(err, dErrors.CodeRefreshFailed, "session authorization failed")
	}
}

var _ SessionAuthorizer = (*biometric.Manager)(nil)
