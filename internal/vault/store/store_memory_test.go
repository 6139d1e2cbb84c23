package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credvault/internal/bundle"
	"credvault/internal/credential"
	"credvault/internal/sentinel"
	"credvault/internal/vault/models"
	id "credvault/pkg/domain"
	"credvault/pkg/secrets"
)

var baseTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newEntry(t *testing.T, passphrase string) *models.VaultEntry {
	t.Helper()

	credID := id.NewCredentialID()
	subject := id.DID("did:civic:alice")
	token, err := credential.New(credID, subject, id.TierCitizen, 55, 3, baseTime, credential.Metadata{
		Issuer:     "credvault",
		ValidUntil: baseTime.Add(365 * 24 * time.Hour),
	})
	require.NoError(t, err)

	var hash string
	if passphrase != "" {
		hash, err = secrets.Hash(passphrase)
		require.NoError(t, err)
	}

	return &models.VaultEntry{
		ID:             id.NewEntryID(),
		CredentialID:   credID,
		Subject:        subject,
		Credential:     token,
		StoredAt:       baseTime,
		ExpiresAt:      baseTime.Add(365 * 24 * time.Hour),
		Status:         models.StatusActive,
		PassphraseHash: hash,
	}
}

func TestCreate(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))

	found, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.CredentialID, found.CredentialID)
	assert.Equal(t, models.StatusActive, found.Status)
}

func TestCreate_Rejections(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	err := store.Create(ctx, nil)
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	expired := newEntry(t, "")
	expired.Status = models.StatusExpired
	assert.ErrorIs(t, store.Create(ctx, expired), sentinel.ErrInvalidState)

	backwards := newEntry(t, "")
	backwards.ExpiresAt = backwards.StoredAt.Add(-time.Hour)
	assert.ErrorIs(t, store.Create(ctx, backwards), sentinel.ErrInvalidInput)

	dup := newEntry(t, "")
	require.NoError(t, store.Create(ctx, dup))
	assert.ErrorIs(t, store.Create(ctx, dup), sentinel.ErrAlreadyUsed)
}

func TestCreate_StoresCopy(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "")
	require.NoError(t, store.Create(ctx, entry))

	// Mutating the caller's struct must not reach stored state.
	entry.Status = models.StatusLocked

	found, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, found.Status)
}

func TestFindByID_NotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.FindByID(context.Background(), id.NewEntryID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListBySubject(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := newEntry(t, "")
	second := newEntry(t, "")
	other := newEntry(t, "")
	other.Subject = id.DID("did:civic:bob")

	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, other))

	entries, err := store.ListBySubject(ctx, id.DID("did:civic:alice"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.ListBySubject(ctx, id.DID("did:civic:nobody"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnlock_Success(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))

	unlocked, remaining, err := store.Unlock(ctx, entry.ID, models.MethodPassphrase, "open-sesame", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, remaining)
	assert.Equal(t, 1, unlocked.AccessCount)
	assert.Equal(t, baseTime.Add(time.Hour), unlocked.LastAccessedAt)
	assert.Equal(t, 0, unlocked.FailedAttempts)
}

func TestUnlock_LockoutAfterThreeFailures(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))

	now := baseTime.Add(time.Hour)

	_, remaining, err := store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)
	assert.Equal(t, 2, remaining)

	_, remaining, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)
	assert.Equal(t, 1, remaining)

	_, remaining, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)
	assert.Equal(t, 0, remaining)

	// The entry is now locked; even the correct secret is refused.
	_, _, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "open-sesame", now)
	assert.ErrorIs(t, err, sentinel.ErrLocked)

	found, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, found.Status)
}

func TestUnlock_SuccessResetsFailureCounter(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))
	now := baseTime.Add(time.Hour)

	// Two failures, then success, then two more failures: still not locked.
	_, _, err := store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)
	_, _, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)

	_, _, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "open-sesame", now)
	require.NoError(t, err)

	_, remaining, err := store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)
	assert.Equal(t, 2, remaining)
	_, _, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)

	found, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, found.Status)
}

func TestUnlock_UnconfiguredMethodConsumesAttempt(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	// Entry has a passphrase but no biometric template.
	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))
	now := baseTime.Add(time.Hour)

	_, remaining, err := store.Unlock(ctx, entry.ID, models.MethodBiometric, "any-template", now)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)
	assert.Equal(t, 2, remaining, "attempts against a missing method count toward the shared budget")
}

func TestUnlock_UnknownMethod(t *testing.T) {
	store := NewInMemoryStore()
	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(context.Background(), entry))

	_, _, err := store.Unlock(context.Background(), entry.ID, models.UnlockMethod("retina"), "x", baseTime)
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}

func TestUnlock_LazyExpiry(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))

	afterExpiry := entry.ExpiresAt.Add(time.Hour)
	_, _, err := store.Unlock(ctx, entry.ID, models.MethodPassphrase, "open-sesame", afterExpiry)
	assert.ErrorIs(t, err, sentinel.ErrExpired)

	// The lazy check flipped the stored status too.
	found, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, found.Status)
}

func TestUnlock_NotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, _, err := store.Unlock(context.Background(), id.NewEntryID(), models.MethodPassphrase, "x", baseTime)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestUnlock_CustomMaxAttempts(t *testing.T) {
	store := NewInMemoryStore(WithMaxAttempts(1))
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))

	_, remaining, err := store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", baseTime)
	assert.ErrorIs(t, err, sentinel.ErrVerificationFailed)
	assert.Equal(t, 0, remaining)

	_, _, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "open-sesame", baseTime)
	assert.ErrorIs(t, err, sentinel.ErrLocked)
}

func TestCheckExpiry(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "")
	require.NoError(t, store.Create(ctx, entry))

	t.Run("far from expiry", func(t *testing.T) {
		status, err := store.CheckExpiry(ctx, entry.ID, baseTime.Add(24*time.Hour))
		require.NoError(t, err)
		assert.False(t, status.IsExpired)
		assert.False(t, status.ShouldRefresh)
		assert.Equal(t, 364, status.DaysUntilExpiry)
	})

	t.Run("inside refresh warning window", func(t *testing.T) {
		status, err := store.CheckExpiry(ctx, entry.ID, entry.ExpiresAt.Add(-10*24*time.Hour))
		require.NoError(t, err)
		assert.False(t, status.IsExpired)
		assert.True(t, status.ShouldRefresh)
		assert.Equal(t, 10, status.DaysUntilExpiry)
	})

	t.Run("past expiry", func(t *testing.T) {
		status, err := store.CheckExpiry(ctx, entry.ID, entry.ExpiresAt.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, status.IsExpired)
		assert.False(t, status.ShouldRefresh)
		assert.Equal(t, 0, status.DaysUntilExpiry)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := store.CheckExpiry(ctx, id.NewEntryID(), baseTime)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestStatistics(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	active := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, active))

	soon := newEntry(t, "")
	soon.ExpiresAt = baseTime.Add(10 * 24 * time.Hour)
	require.NoError(t, store.Create(ctx, soon))

	locked := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, locked))
	for i := 0; i < DefaultMaxAttempts; i++ {
		_, _, _ = store.Unlock(ctx, locked.ID, models.MethodPassphrase, "wrong", baseTime)
	}

	// One successful unlock on the active entry.
	_, _, err := store.Unlock(ctx, active.ID, models.MethodPassphrase, "open-sesame", baseTime)
	require.NoError(t, err)

	stats, err := store.Statistics(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.ByStatus[string(models.StatusActive)])
	assert.Equal(t, 1, stats.ByStatus[string(models.StatusLocked)])
	assert.Equal(t, 1, stats.ExpiringSoon)
	assert.InDelta(t, 1.0/3.0, stats.AverageAccessCount, 0.001)
	assert.Equal(t, 0, stats.TotalRefreshes)
}

func TestStatistics_Empty(t *testing.T) {
	store := NewInMemoryStore()
	stats, err := store.Statistics(context.Background(), baseTime)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries)
	assert.Zero(t, stats.AverageAccessCount)
}

func TestDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "")
	require.NoError(t, store.Create(ctx, entry))
	require.NoError(t, store.Delete(ctx, entry.ID))

	_, err := store.FindByID(ctx, entry.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, entry.ID), sentinel.ErrNotFound)
}

func TestMarkExpired_Idempotent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	fresh := newEntry(t, "")
	stale := newEntry(t, "")
	stale.ExpiresAt = baseTime.Add(24 * time.Hour)
	require.NoError(t, store.Create(ctx, fresh))
	require.NoError(t, store.Create(ctx, stale))

	sweepTime := baseTime.Add(48 * time.Hour)
	flipped, err := store.MarkExpired(ctx, sweepTime)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	// A second sweep over the same state is a no-op.
	flipped, err = store.MarkExpired(ctx, sweepTime)
	require.NoError(t, err)
	assert.Equal(t, 0, flipped)

	found, err := store.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, found.Status)

	found, err = store.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, found.Status)
}

func TestMarkExpired_SkipsLockedEntries(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	locked := newEntry(t, "open-sesame")
	locked.ExpiresAt = baseTime.Add(24 * time.Hour)
	require.NoError(t, store.Create(ctx, locked))
	for i := 0; i < DefaultMaxAttempts; i++ {
		_, _, _ = store.Unlock(ctx, locked.ID, models.MethodPassphrase, "wrong", baseTime)
	}

	flipped, err := store.MarkExpired(ctx, baseTime.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, flipped)

	found, err := store.FindByID(ctx, locked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, found.Status)
}

func TestBeginCommitRefresh(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	entry.Bundle = &bundle.Bundle{ID: "b-1", Epoch: "2026-07"}
	require.NoError(t, store.Create(ctx, entry))

	snapshot, err := store.BeginRefresh(ctx, entry.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, snapshot.Status, "snapshot reports pre-refresh view")
	assert.Equal(t, "2026-07", snapshot.Bundle.Epoch)

	// While refreshing, unlock and a second refresh are refused.
	_, _, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "open-sesame", baseTime.Add(time.Hour))
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	_, err = store.BeginRefresh(ctx, entry.ID, baseTime.Add(time.Hour))
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	newToken := entry.Credential
	newToken.TrustIndex = 90
	record := models.RefreshRecord{
		ID:          id.NewRefreshID(),
		RefreshedAt: baseTime.Add(time.Hour),
		OldEpoch:    "2026-07",
		NewEpoch:    "2026-08",
		Reason:      models.ReasonUserRequest,
	}
	newExpiry := baseTime.Add(400 * 24 * time.Hour)

	updated, err := store.CommitRefresh(ctx, entry.ID, models.RefreshCommit{
		Credential: newToken,
		Bundle:     &bundle.Bundle{ID: "b-2", Epoch: "2026-08"},
		Record:     record,
		ExpiresAt:  newExpiry,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, updated.Status)
	assert.Equal(t, 90, updated.Credential.TrustIndex)
	assert.Equal(t, "2026-08", updated.Bundle.Epoch)
	assert.Equal(t, newExpiry, updated.ExpiresAt)
	require.Len(t, updated.RefreshHistory, 1)
	assert.Equal(t, record.ID, updated.RefreshHistory[0].ID)
}

func TestCommitRefresh_RequiresRefreshingStatus(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "")
	require.NoError(t, store.Create(ctx, entry))

	_, err := store.CommitRefresh(ctx, entry.ID, models.RefreshCommit{
		Credential: entry.Credential,
		ExpiresAt:  entry.ExpiresAt,
	})
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestAbortRefresh_RestoresActive(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	entry := newEntry(t, "open-sesame")
	require.NoError(t, store.Create(ctx, entry))

	before, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)

	_, err = store.BeginRefresh(ctx, entry.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.AbortRefresh(ctx, entry.ID))

	after, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "abort leaves no observable mutation")

	// Unlock works again after the abort.
	_, _, err = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "open-sesame", baseTime.Add(2*time.Hour))
	require.NoError(t, err)
}

func TestBeginRefresh_BlockedStates(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		_, err := store.BeginRefresh(ctx, id.NewEntryID(), baseTime)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		entry := newEntry(t, "")
		require.NoError(t, store.Create(ctx, entry))
		_, err := store.BeginRefresh(ctx, entry.ID, entry.ExpiresAt.Add(time.Hour))
		assert.ErrorIs(t, err, sentinel.ErrExpired)
	})

	t.Run("locked", func(t *testing.T) {
		entry := newEntry(t, "open-sesame")
		require.NoError(t, store.Create(ctx, entry))
		for i := 0; i < DefaultMaxAttempts; i++ {
			_, _, _ = store.Unlock(ctx, entry.ID, models.MethodPassphrase, "wrong", baseTime)
		}
		_, err := store.BeginRefresh(ctx, entry.ID, baseTime)
		assert.ErrorIs(t, err, sentinel.ErrLocked)
	})
}
