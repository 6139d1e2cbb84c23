// Package sweeper runs the recurring expiry pass over vault entries and
// biometric sessions.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credvault/internal/platform/metrics"
	"credvault/internal/vault/models"
	"credvault/pkg/platform/audit"
)

// EntryStore exposes the expiry transition for vault entries. Statistics backs
// the active-entries gauge after a sweep.
type EntryStore interface {
	MarkExpired(ctx context.Context, now time.Time) (int, error)
	Statistics(ctx context.Context, now time.Time) (models.Statistics, error)
}

// SessionStore exposes cleanup for expired biometric sessions.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// AuditPublisher emits audit events for sweep runs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	ExpiredEntries  int
	DeletedSessions int
}

// Sweeper periodically expires stale entries and purges dead sessions. Each
// pass is idempotent: entries already expired are not touched again, and
// locked or refreshing entries are never transitioned.
type Sweeper struct {
	entries  EntryStore
	sessions SessionStore
	interval time.Duration
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// SweepOption configures the Sweeper.
type SweepOption func(*Sweeper)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) SweepOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithAuditor configures an audit publisher for sweep events.
func WithAuditor(auditor AuditPublisher) SweepOption {
	return func(s *Sweeper) { s.auditor = auditor }
}

// WithMetrics configures Prometheus metrics for sweep counts.
func WithMetrics(m *metrics.Metrics) SweepOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithLogger overrides the logger used for sweep errors.
func WithLogger(logger *slog.Logger) SweepOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Sweeper with required stores and options applied.
func New(entries EntryStore, sessions SessionStore, opts ...SweepOption) (*Sweeper, error) {
	if entries == nil || sessions == nil {
		return nil, fmt.Errorf("entries and sessions stores are required")
	}
	s := &Sweeper{
		entries:  entries,
		sessions: sessions,
		interval: time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start runs the sweep periodically until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep pass as of now. Errors from the two stores
// are aggregated so one failing store does not mask the other.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	now := time.Now()
	var res SweepResult
	var errs []error

	expired, err := s.entries.MarkExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("mark expired entries: %w", err))
	} else {
		res.ExpiredEntries = expired
	}

	deleted, err := s.sessions.DeleteExpiredSessions(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired sessions: %w", err))
	} else {
		res.DeletedSessions = deleted
	}

	if res.ExpiredEntries > 0 {
		if s.metrics != nil {
			s.metrics.IncrementEntriesSwept(res.ExpiredEntries)
			if stats, serr := s.entries.Statistics(ctx, now); serr == nil {
				s.metrics.SetActiveEntries(stats.ByStatus[string(models.StatusActive)])
			}
		}
		s.emitSwept(ctx, res.ExpiredEntries)
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

func (s *Sweeper) emitSwept(ctx context.Context, count int) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:   string(audit.EventEntrySwept),
		Decision: "expired",
		Reason:   fmt.Sprintf("%d entries past custody window", count),
		Success:  true,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit sweep audit event", "error", err)
	}
}
