package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credvault/pkg/domain"
)

func validMetadata(issuedAt time.Time) Metadata {
	return Metadata{
		Issuer:        "credvault",
		SchemaVersion: "1.0.0",
		Network:       "civicmesh",
		ValidUntil:    issuedAt.Add(365 * 24 * time.Hour),
	}
}

func TestNew(t *testing.T) {
	issuedAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	token, err := New(id.NewCredentialID(), id.DID("did:civic:alice"), id.TierModerator, 80, 12, issuedAt, validMetadata(issuedAt))
	require.NoError(t, err)

	assert.Equal(t, id.TierModerator, token.Tier)
	assert.Equal(t, 80, token.TrustIndex)
	assert.Equal(t, issuedAt, token.IssuedAt)
}

func TestNew_Invariants(t *testing.T) {
	issuedAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	subject := id.DID("did:civic:alice")

	_, err := New("", subject, id.TierCitizen, 50, 0, issuedAt, validMetadata(issuedAt))
	assert.ErrorContains(t, err, "credential_id")

	_, err = New(id.NewCredentialID(), "", id.TierCitizen, 50, 0, issuedAt, validMetadata(issuedAt))
	assert.ErrorContains(t, err, "subject")

	_, err = New(id.NewCredentialID(), subject, id.Tier("emperor"), 50, 0, issuedAt, validMetadata(issuedAt))
	assert.ErrorContains(t, err, "tier")

	_, err = New(id.NewCredentialID(), subject, id.TierCitizen, 50, 0, time.Time{}, validMetadata(issuedAt))
	assert.ErrorContains(t, err, "issued_at")

	meta := validMetadata(issuedAt)
	meta.ValidUntil = issuedAt.Add(-time.Hour)
	_, err = New(id.NewCredentialID(), subject, id.TierCitizen, 50, 0, issuedAt, meta)
	assert.ErrorContains(t, err, "valid_until")
}
