package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "credvault/pkg/domain-errors"
)

func TestParseDID_Valid(t *testing.T) {
	did, err := ParseDID("did:civic:alice")
	require.NoError(t, err)
	assert.Equal(t, DID("did:civic:alice"), did)
}

func TestParseDID_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too few segments", "did:alice"},
		{"too many segments", "did:civic:alice:extra"},
		{"empty scheme", ":civic:alice"},
		{"empty method", "did::alice"},
		{"empty identifier", "did:civic:"},
		{"no separators", "alice"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDID(tc.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSubject))
		})
	}
}

func TestParseEntryID(t *testing.T) {
	raw := uuid.NewString()
	entryID, err := ParseEntryID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, entryID.String())

	_, err = ParseEntryID("not-a-uuid")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseEntryID("")
	require.Error(t, err)
}

func TestNewCredentialID_Prefixed(t *testing.T) {
	credID := NewCredentialID()
	assert.Contains(t, credID.String(), "urn:cred:")
	assert.False(t, credID.IsNil())

	// Fresh identifiers never collide in practice.
	assert.NotEqual(t, credID, NewCredentialID())
}

func TestIsNil(t *testing.T) {
	assert.True(t, EntryID{}.IsNil())
	assert.True(t, SessionID{}.IsNil())
	assert.True(t, CredentialID("").IsNil())
	assert.True(t, DID("").IsNil())

	assert.False(t, NewEntryID().IsNil())
	assert.False(t, NewSessionID().IsNil())
}

func TestTierOrdering(t *testing.T) {
	assert.True(t, TierCommander.AtLeast(TierGovernor))
	assert.True(t, TierGovernor.AtLeast(TierModerator))
	assert.True(t, TierModerator.AtLeast(TierCitizen))
	assert.True(t, TierCitizen.AtLeast(TierCitizen))
	assert.False(t, TierCitizen.AtLeast(TierModerator))
}

func TestTierValid(t *testing.T) {
	for _, tier := range []Tier{TierCitizen, TierModerator, TierGovernor, TierCommander} {
		assert.True(t, tier.Valid(), tier)
	}
	assert.False(t, Tier("admiral").Valid())
	assert.Equal(t, -1, Tier("admiral").Rank())
}

func TestEpochAt(t *testing.T) {
	jan := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01", EpochAt(jan))

	// Same calendar month maps to the same epoch.
	assert.Equal(t, EpochAt(jan), EpochAt(jan.AddDate(0, 0, 10)))

	// Month boundary rotates the epoch.
	assert.Equal(t, "2026-02", EpochAt(jan.AddDate(0, 1, 0)))

	// Local timezones normalize to UTC buckets.
	eastern := time.FixedZone("UTC-5", -5*60*60)
	lateJan := time.Date(2026, 1, 31, 23, 0, 0, 0, eastern)
	assert.Equal(t, "2026-02", EpochAt(lateJan))
}
