// Package biometric manages short-lived verification challenge sessions.
//
// The scoring here simulates a sensor match: sample quality gates the outcome
// and the score above the pass threshold carries sensor jitter. A real
// deployment replaces scoreSample with an attestation call.
package biometric

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"credvault/internal/platform/metrics"
	"credvault/internal/sentinel"
	id "credvault/pkg/domain"
	"credvault/pkg/platform/audit"
)

// AuditPublisher records session lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DefaultSessionTTL is the challenge validity window.
const DefaultSessionTTL = 5 * time.Minute

// passThreshold is the minimum quality score that verifies a session.
const passThreshold = 70

// Manager owns biometric session state. Sessions for different subjects are
// independent and may be created and verified concurrently.
type Manager struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Session
	ttl      time.Duration
	logger   *slog.Logger
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	now      func() time.Time
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithSessionTTL overrides the challenge validity window when greater than zero.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger configures a logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithAuditor configures an audit publisher for session events.
func WithAuditor(auditor AuditPublisher) ManagerOption {
	return func(m *Manager) {
		m.auditor = auditor
	}
}

// WithMetrics configures Prometheus metrics.
func WithMetrics(met *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = met
	}
}

// NewManager constructs an empty session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[id.SessionID]*Session),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession issues a fresh challenge for a subject.
func (m *Manager) CreateSession(ctx context.Context, subject id.DID, modality Modality) (*Session, error) {
	if subject.IsNil() {
		return nil, fmt.Errorf("subject is required: %w", sentinel.ErrInvalidInput)
	}
	if modality == "" {
		modality = ModalityFingerprint
	}
	if !modality.Valid() {
		return nil, fmt.Errorf("unknown modality %q: %w", modality, sentinel.ErrInvalidInput)
	}

	now := m.now()
	session := &Session{
		ID:        id.NewSessionID(),
		Subject:   subject,
		StartedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Modality:  modality,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.InfoContext(ctx, "biometric session created",
			"session_id", session.ID,
			"subject", subject,
			"modality", modality,
		)
	}
	m.emit(ctx, audit.Event{
		Timestamp: now,
		Subject:   subject,
		Action:    string(audit.EventSessionCreated),
		Decision:  string(modality),
		Success:   true,
	})
	if m.metrics != nil {
		m.metrics.IncrementSessionsCreated()
	}
	out := *session
	return &out, nil
}

// Verify scores a sample against the session's challenge and resolves the
// session's verified flag. Raw samples are never stored or logged.
func (m *Manager) Verify(ctx context.Context, sessionID id.SessionID, sample string) (VerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return VerifyResult{}, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if session.Expired(m.now()) {
		return VerifyResult{}, fmt.Errorf("session expired: %w", sentinel.ErrExpired)
	}

	result := scoreSample(sample)
	session.QualityScore = result.QualityScore
	if result.Success {
		session.Verified = true
	}

	if m.logger != nil {
		m.logger.InfoContext(ctx, "biometric verification",
			"session_id", sessionID,
			"success", result.Success,
			"quality_score", result.QualityScore,
		)
	}
	m.emit(ctx, audit.Event{
		Timestamp: m.now(),
		Subject:   session.Subject,
		Action:    string(audit.EventSessionVerified),
		Reason:    result.Reason,
		Success:   result.Success,
	})
	if !result.Success && m.metrics != nil {
		m.metrics.IncrementVerificationsFailed()
	}
	return result, nil
}

// Authorize atomically claims a session for one operation. The session must be
// verified, unclaimed, unexpired, and belong to the subject; a successful call
// marks it consumed inside the same critical section so a concurrent caller
// cannot reuse it. Release undoes the claim if the operation aborts.
func (m *Manager) Authorize(_ context.Context, sessionID id.SessionID, subject id.DID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if session.Expired(m.now()) {
		return fmt.Errorf("session expired: %w", sentinel.ErrExpired)
	}
	if session.Consumed {
		return fmt.Errorf("session already used: %w", sentinel.ErrAlreadyUsed)
	}
	if !session.Verified {
		return fmt.Errorf("session not verified: %w", sentinel.ErrNotVerified)
	}
	if session.Subject != subject {
		return fmt.Errorf("session subject mismatch: %w", sentinel.ErrNotVerified)
	}
	session.Consumed = true
	return nil
}

// Release returns a claimed session so it can authorize another attempt after
// an aborted operation.
func (m *Manager) Release(_ context.Context, sessionID id.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	session.Consumed = false
	return nil
}

// Get returns a copy of a session's current state.
func (m *Manager) Get(_ context.Context, sessionID id.SessionID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if session, ok := m.sessions[sessionID]; ok {
		out := *session
		return &out, nil
	}
	return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
}

// DeleteExpiredSessions removes sessions whose challenge window has passed.
// The time parameter is injected for testability.
func (m *Manager) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for sid, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, sid)
			deleted++
		}
	}
	return deleted, nil
}

// emit publishes a session audit event. Audit failures never fail the
// session operation itself.
func (m *Manager) emit(ctx context.Context, event audit.Event) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Emit(ctx, event); err != nil && m.logger != nil {
		m.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}

// scoreSample derives a quality score from a sample. Samples below the
// minimum length never verify; adequate samples pass with sensor jitter in
// the score.
func scoreSample(sample string) VerifyResult {
	if sample == "" {
		return VerifyResult{QualityScore: 0, Reason: "empty_sample"}
	}
	if len(sample) < 8 {
		score := len(sample) * 8 // always below passThreshold
		return VerifyResult{QualityScore: score, Reason: "low_quality"}
	}
	score := passThreshold + rand.Intn(100-passThreshold+1)
	return VerifyResult{Success: true, QualityScore: score}
}
