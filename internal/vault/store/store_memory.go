package store

import (
	"context"
	"fmt"
	"math"
	"time"

	gosync "sync"

	"credvault/internal/sentinel"
	"credvault/internal/vault/models"
	id "credvault/pkg/domain"
	keyed "credvault/pkg/platform/sync"
	"credvault/pkg/secrets"
)

// DefaultMaxAttempts is the unlock attempt budget before an entry locks out.
const DefaultMaxAttempts = 3

// DefaultRefreshWarning is the soft boundary before expiry at which
// CheckExpiry recommends a refresh.
const DefaultRefreshWarning = 30 * 24 * time.Hour

// InMemoryStore keeps vault entries in memory for the lifetime of the process.
// Safe for concurrent use: the entries map is guarded by mu, and every
// mutating operation additionally holds a per-entry keyed mutex so unlock,
// refresh, and sweep on the same entry serialize.
type InMemoryStore struct {
	mu      gosync.RWMutex
	entries map[id.EntryID]*models.VaultEntry

	entryLocks     *keyed.KeyedMutex
	maxAttempts    int
	refreshWarning time.Duration
}

// StoreOption configures the InMemoryStore.
type StoreOption func(*InMemoryStore)

// WithMaxAttempts overrides the unlock attempt budget when greater than zero.
func WithMaxAttempts(n int) StoreOption {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRefreshWarning overrides the soft refresh-warning window when greater than zero.
func WithRefreshWarning(d time.Duration) StoreOption {
	return func(s *InMemoryStore) {
		if d > 0 {
			s.refreshWarning = d
		}
	}
}

// NewInMemoryStore constructs an empty in-memory vault store.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		entries:        make(map[id.EntryID]*models.VaultEntry),
		entryLocks:     keyed.NewKeyedMutex(),
		maxAttempts:    DefaultMaxAttempts,
		refreshWarning: DefaultRefreshWarning,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAttempts returns the configured unlock attempt budget.
func (s *InMemoryStore) MaxAttempts() int { return s.maxAttempts }

func (s *InMemoryStore) Create(_ context.Context, entry *models.VaultEntry) error {
	if entry == nil || entry.ID.IsNil() {
		return fmt.Errorf("entry with ID is required: %w", sentinel.ErrInvalidInput)
	}
	if entry.Status != models.StatusActive {
		return fmt.Errorf("new entries must be active: %w", sentinel.ErrInvalidState)
	}
	if entry.ExpiresAt.Before(entry.StoredAt) {
		return fmt.Errorf("expiry precedes storage time: %w", sentinel.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; ok {
		return fmt.Errorf("entry already exists: %w", sentinel.ErrAlreadyUsed)
	}
	s.entries[entry.ID] = entry.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, entryID id.EntryID) (*models.VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[entryID]; ok {
		return entry.Clone(), nil
	}
	return nil, fmt.Errorf("entry not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject id.DID) ([]*models.VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*models.VaultEntry, 0)
	for _, entry := range s.entries {
		if entry.Subject == subject {
			entries = append(entries, entry.Clone())
		}
	}
	return entries, nil
}

// Unlock implements the attempt-limited unlock state machine. An attempt
// against a method with no configured secret still consumes from the shared
// attempt budget.
func (s *InMemoryStore) Unlock(_ context.Context, entryID id.EntryID, method models.UnlockMethod, secret string, now time.Time) (*models.VaultEntry, int, error) {
	if !method.Valid() {
		return nil, 0, fmt.Errorf("unknown unlock method %q: %w", method, sentinel.ErrInvalidInput)
	}

	s.entryLocks.Lock(entryID.String())
	defer s.entryLocks.Unlock(entryID.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return nil, 0, fmt.Errorf("entry not found: %w", sentinel.ErrNotFound)
	}

	// Lazy expiry check flips status before anything else is evaluated.
	if entry.Status == models.StatusActive && entry.IsExpired(now) {
		entry.Status = models.StatusExpired
	}

	switch entry.Status {
	case models.StatusExpired:
		return nil, 0, fmt.Errorf("entry expired: %w", sentinel.ErrExpired)
	case models.StatusLocked:
		return nil, 0, fmt.Errorf("entry locked: %w", sentinel.ErrLocked)
	case models.StatusRefreshing:
		return nil, 0, fmt.Errorf("entry is being refreshed: %w", sentinel.ErrInvalidState)
	}

	hash, configured := entry.SecretHash(method)
	if configured {
		if err := secrets.Verify(secret, hash); err == nil {
			entry.RecordAccess(now)
			return entry.Clone(), s.maxAttempts, nil
		}
	}

	locked := entry.RecordFailedAttempt(s.maxAttempts)
	remaining := s.maxAttempts - entry.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	if locked {
		return nil, remaining, fmt.Errorf("secret mismatch, entry locked: %w", sentinel.ErrVerificationFailed)
	}
	return nil, remaining, fmt.Errorf("secret mismatch: %w", sentinel.ErrVerificationFailed)
}

func (s *InMemoryStore) CheckExpiry(_ context.Context, entryID id.EntryID, now time.Time) (models.ExpiryStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return models.ExpiryStatus{}, fmt.Errorf("entry not found: %w", sentinel.ErrNotFound)
	}

	remaining := entry.ExpiresAt.Sub(now)
	days := int(math.Ceil(remaining.Hours() / 24))
	expired := entry.IsExpired(now) || entry.Status == models.StatusExpired
	if expired && days > 0 {
		days = 0
	}
	return models.ExpiryStatus{
		IsExpired:       expired,
		DaysUntilExpiry: days,
		ShouldRefresh:   !expired && remaining <= s.refreshWarning,
	}, nil
}

func (s *InMemoryStore) Statistics(_ context.Context, now time.Time) (models.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.Statistics{
		ByStatus: map[string]int{
			string(models.StatusActive):     0,
			string(models.StatusExpired):    0,
			string(models.StatusLocked):     0,
			string(models.StatusRefreshing): 0,
		},
	}

	totalAccess := 0
	for _, entry := range s.entries {
		stats.TotalEntries++
		stats.ByStatus[string(entry.Status)]++
		totalAccess += entry.AccessCount
		stats.TotalRefreshes += len(entry.RefreshHistory)
		if entry.Status == models.StatusActive && !entry.IsExpired(now) && entry.ExpiresAt.Sub(now) <= s.refreshWarning {
			stats.ExpiringSoon++
		}
	}
	if stats.TotalEntries > 0 {
		stats.AverageAccessCount = float64(totalAccess) / float64(stats.TotalEntries)
	}
	return stats, nil
}

func (s *InMemoryStore) Delete(_ context.Context, entryID id.EntryID) error {
	s.entryLocks.Lock(entryID.String())
	defer s.entryLocks.Unlock(entryID.String())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entryID]; !ok {
		return fmt.Errorf("entry not found: %w", sentinel.ErrNotFound)
	}
	delete(s.entries, entryID)
	return nil
}

// MarkExpired flips past-due active entries to expired as of the given time.
// The time parameter is injected for testability (no hidden time.Now() calls).
func (s *InMemoryStore) MarkExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for _, entry := range s.entries {
		if entry.Status == models.StatusActive && entry.IsExpired(now) {
			entry.Status = models.StatusExpired
			flipped++
		}
	}
	return flipped, nil
}

func (s *InMemoryStore) BeginRefresh(_ context.Context, entryID id.EntryID, now time.Time) (*models.VaultEntry, error) {
	s.entryLocks.Lock(entryID.String())
	defer s.entryLocks.Unlock(entryID.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("entry not found: %w", sentinel.ErrNotFound)
	}

	if entry.Status == models.StatusActive && entry.IsExpired(now) {
		entry.Status = models.StatusExpired
	}

	switch entry.Status {
	case models.StatusExpired:
		return nil, fmt.Errorf("entry expired: %w", sentinel.ErrExpired)
	case models.StatusLocked:
		return nil, fmt.Errorf("entry locked: %w", sentinel.ErrLocked)
	case models.StatusRefreshing:
		return nil, fmt.Errorf("refresh already in progress: %w", sentinel.ErrInvalidState)
	}

	entry.Status = models.StatusRefreshing
	snapshot := entry.Clone()
	// The snapshot reflects pre-refresh content; report it as active since the
	// refreshing status is transient bookkeeping.
	snapshot.Status = models.StatusActive
	return snapshot, nil
}

func (s *InMemoryStore) CommitRefresh(_ context.Context, entryID id.EntryID, commit models.RefreshCommit) (*models.VaultEntry, error) {
	s.entryLocks.Lock(entryID.String())
	defer s.entryLocks.Unlock(entryID.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("entry not found: %w", sentinel.ErrNotFound)
	}
	if entry.Status != models.StatusRefreshing {
		return nil, fmt.Errorf("entry is not refreshing: %w", sentinel.ErrInvalidState)
	}
	if commit.ExpiresAt.Before(entry.StoredAt) {
		return nil, fmt.Errorf("expiry precedes storage time: %w", sentinel.ErrInvalidInput)
	}

	entry.Credential = commit.Credential
	entry.Bundle = commit.Bundle
	entry.RefreshHistory = append(entry.RefreshHistory, commit.Record)
	entry.ExpiresAt = commit.ExpiresAt
	entry.Status = models.StatusActive
	return entry.Clone(), nil
}

func (s *InMemoryStore) AbortRefresh(_ context.Context, entryID id.EntryID) error {
	s.entryLocks.Lock(entryID.String())
	defer s.entryLocks.Unlock(entryID.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return fmt.Errorf("entry not found: %w", sentinel.ErrNotFound)
	}
	if entry.Status != models.StatusRefreshing {
		return fmt.Errorf("entry is not refreshing: %w", sentinel.ErrInvalidState)
	}
	entry.Status = models.StatusActive
	return nil
}

var _ Store = (*InMemoryStore)(nil)
