// Package models defines the vault custody records and their lifecycle rules.
package models

import (
	"time"

	"credvault/internal/bundle"
	"credvault/internal/credential"
	id "credvault/pkg/domain"
)

// EntryStatus is the lifecycle state of a vault entry.
//
// Transitions are restricted:
//
//	active -> expired     (sweeper, or lazy check at unlock/refresh time)
//	active -> locked      (unlock attempts exhausted)
//	active -> refreshing  (refresh begins)
//	refreshing -> active  (refresh commits or aborts)
//
// locked and expired are terminal with respect to unlock; such entries must be
// re-provisioned, not unlocked.
type EntryStatus string

const (
	StatusActive     EntryStatus = "active"
	StatusExpired    EntryStatus = "expired"
	StatusLocked     EntryStatus = "locked"
	StatusRefreshing EntryStatus = "refreshing"
)

// UnlockMethod selects which configured secret an unlock attempt is checked
// against.
type UnlockMethod string

const (
	MethodBiometric  UnlockMethod = "biometric"
	MethodPassphrase UnlockMethod = "passphrase"
)

// Valid reports whether the method is one of the known unlock methods.
func (m UnlockMethod) Valid() bool {
	return m == MethodBiometric || m == MethodPassphrase
}

// RefreshReason records why a credential was re-issued.
type RefreshReason string

const (
	ReasonExpiry         RefreshReason = "expiry"
	ReasonUserRequest    RefreshReason = "user_request"
	ReasonSecurityUpdate RefreshReason = "security_update"
)

// Valid reports whether the reason is one of the known refresh reasons.
func (r RefreshReason) Valid() bool {
	switch r {
	case ReasonExpiry, ReasonUserRequest, ReasonSecurityUpdate:
		return true
	}
	return false
}

// RefreshRecord is one row of an entry's append-only refresh history.
type RefreshRecord struct {
	ID               id.RefreshID  `json:"refresh_id"`
	RefreshedAt      time.Time     `json:"refreshed_at"`
	OldEpoch         string        `json:"old_epoch"`
	NewEpoch         string        `json:"new_epoch"`
	BiometricUsed    bool          `json:"biometric_used"`
	TrustIndexChange int           `json:"trust_index_change"`
	Reason           RefreshReason `json:"reason"`
}

// VaultEntry is the persisted custody record pairing a credential with its
// access-control secrets and lifecycle metadata.
//
// Invariants:
//   - ExpiresAt is always >= StoredAt
//   - RefreshHistory is append-only and time-ordered
//   - at least one of BiometricHash/PassphraseHash is set for the entry to be
//     unlockable by that method
type VaultEntry struct {
	ID             id.EntryID
	CredentialID   id.CredentialID
	Subject        id.DID
	Credential     credential.Token
	Bundle         *bundle.Bundle
	StoredAt       time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
	BiometricHash  string
	PassphraseHash string
	FailedAttempts int
	Status         EntryStatus
	RefreshHistory []RefreshRecord
}

// Clone returns a deep copy so callers cannot mutate store state through
// returned entries.
func (e *VaultEntry) Clone() *VaultEntry {
	out := *e
	if e.Bundle != nil {
		b := *e.Bundle
		if e.Bundle.Summary != nil {
			b.Summary = make(map[string]any, len(e.Bundle.Summary))
			for k, v := range e.Bundle.Summary {
				b.Summary[k] = v
			}
		}
		out.Bundle = &b
	}
	if e.RefreshHistory != nil {
		out.RefreshHistory = make([]RefreshRecord, len(e.RefreshHistory))
		copy(out.RefreshHistory, e.RefreshHistory)
	}
	return &out
}

// SecretHash returns the stored hash for the given unlock method, and whether
// that method is configured for this entry.
func (e *VaultEntry) SecretHash(method UnlockMethod) (string, bool) {
	switch method {
	case MethodBiometric:
		return e.BiometricHash, e.BiometricHash != ""
	case MethodPassphrase:
		return e.PassphraseHash, e.PassphraseHash != ""
	}
	return "", false
}

// IsExpired reports whether the custody window has passed.
func (e *VaultEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// RecordAccess updates access bookkeeping after a successful unlock and resets
// the failed-attempt counter.
func (e *VaultEntry) RecordAccess(now time.Time) {
	e.FailedAttempts = 0
	e.AccessCount++
	e.LastAccessedAt = now
}

// RecordFailedAttempt counts a failed unlock and reports whether the entry
// just crossed the lockout threshold.
func (e *VaultEntry) RecordFailedAttempt(maxAttempts int) bool {
	e.FailedAttempts++
	if e.FailedAttempts >= maxAttempts && e.Status == StatusActive {
		e.Status = StatusLocked
		return true
	}
	return false
}

// ExpiryStatus is the result of a soft expiry check.
type ExpiryStatus struct {
	IsExpired       bool `json:"is_expired"`
	DaysUntilExpiry int  `json:"days_until_expiry"`
	ShouldRefresh   bool `json:"should_refresh"`
}

// Statistics summarizes the store for operators and the presentation layer.
type Statistics struct {
	TotalEntries       int            `json:"total_entries"`
	ByStatus           map[string]int `json:"by_status"`
	AverageAccessCount float64        `json:"average_access_count"`
	ExpiringSoon       int            `json:"expiring_soon"`
	TotalRefreshes     int            `json:"total_refreshes"`
}

// RefreshCommit carries the full replacement state applied atomically when a
// refresh completes.
type RefreshCommit struct {
	Credential credential.Token
	Bundle     *bundle.Bundle
	Record     RefreshRecord
	ExpiresAt  time.Time
}
