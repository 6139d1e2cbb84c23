package store

import (
	"context"
	"time"

	"credvault/internal/vault/models"
	id "credvault/pkg/domain"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound when the requested entry does not exist
// - Return sentinel.ErrExpired / ErrLocked / ErrVerificationFailed /
//   ErrInvalidState for lifecycle violations
// - Return nil for successful operations
// Services translate sentinel errors into domain errors exactly once.

// Store is the vault entry repository. Mutating operations on a given entry
// serialize against each other; the in-memory implementation holds a per-entry
// keyed mutex for the duration of each operation. The interface is the seam a
// durable backend slots into without changing the state machine.
type Store interface {
	// Create persists a new entry. The entry must arrive in active status
	// with ExpiresAt >= StoredAt.
	Create(ctx context.Context, entry *models.VaultEntry) error

	// FindByID returns a deep copy of the entry.
	FindByID(ctx context.Context, entryID id.EntryID) (*models.VaultEntry, error)

	// ListBySubject returns deep copies of all entries for a subject.
	ListBySubject(ctx context.Context, subject id.DID) ([]*models.VaultEntry, error)

	// Unlock verifies a secret against the configured hash for the method.
	// It re-checks expiry lazily, counts failed attempts, locks the entry at
	// the attempt limit, and on success resets the counter and updates access
	// bookkeeping. The int return is the number of attempts remaining after
	// this call. The time parameter is injected for testability.
	Unlock(ctx context.Context, entryID id.EntryID, method models.UnlockMethod, secret string, now time.Time) (*models.VaultEntry, int, error)

	// CheckExpiry reports hard expiry and the soft refresh-warning boundary.
	CheckExpiry(ctx context.Context, entryID id.EntryID, now time.Time) (models.ExpiryStatus, error)

	// Statistics summarizes entry counts, access averages, and upcoming expiries.
	Statistics(ctx context.Context, now time.Time) (models.Statistics, error)

	// Delete removes an entry permanently.
	Delete(ctx context.Context, entryID id.EntryID) error

	// MarkExpired flips past-due active entries to expired and returns how
	// many changed. Idempotent; never touches locked or refreshing entries.
	MarkExpired(ctx context.Context, now time.Time) (int, error)

	// BeginRefresh transitions an active entry to refreshing and returns a
	// deep copy of its pre-refresh state. Fails on expired, locked, or
	// already-refreshing entries.
	BeginRefresh(ctx context.Context, entryID id.EntryID, now time.Time) (*models.VaultEntry, error)

	// CommitRefresh atomically replaces credential and bundle, appends the
	// refresh record, extends expiry, and returns the entry to active.
	CommitRefresh(ctx context.Context, entryID id.EntryID, commit models.RefreshCommit) (*models.VaultEntry, error)

	// AbortRefresh returns a refreshing entry to active without mutating
	// credential, bundle, or history.
	AbortRefresh(ctx context.Context, entryID id.EntryID) error
}
