// Package credential defines the issued credential artifact.
//
// A Token is immutable once issued: a refresh produces a new Token that
// replaces the old one inside the same vault entry while preserving the
// credential identifier.
//
// Domain Purity: this package contains only pure domain logic with no I/O
// and no time.Now() calls; timestamps are supplied by callers.
package credential

import (
	"errors"
	"time"

	id "credvault/pkg/domain"
)

var (
	errMissingCredentialID = errors.New("credential_id is required")
	errMissingSubject      = errors.New("subject is required")
	errInvalidTier         = errors.New("tier is not a known classification")
	errMissingIssuedAt     = errors.New("issued_at is required")
	errExpiryBeforeIssue   = errors.New("valid_until must not precede issued_at")
)

// Metadata carries issuance context alongside the scored fields.
type Metadata struct {
	Issuer          string    `json:"issuer"`
	SchemaVersion   string    `json:"schema_version"`
	Network         string    `json:"network"`
	ValidUntil      time.Time `json:"valid_until"`
	LastActivity    time.Time `json:"last_activity"`
	VoteCount       int       `json:"vote_count"`
	EngagementScore int       `json:"engagement_score"`
}

// Token is the issued, tiered artifact proving civic standing.
type Token struct {
	ID         id.CredentialID `json:"id"`
	Subject    id.DID          `json:"subject"`
	IssuedAt   time.Time       `json:"issued_at"`
	Tier       id.Tier         `json:"tier"`
	TrustIndex int             `json:"trust_index"`
	StreakDays int             `json:"streak_days"`
	Metadata   Metadata        `json:"metadata"`
}

// New constructs a Token with validated invariants.
func New(credentialID id.CredentialID, subject id.DID, tier id.Tier, trustIndex, streakDays int, issuedAt time.Time, meta Metadata) (Token, error) {
	if credentialID.IsNil() {
		return Token{}, errMissingCredentialID
	}
	if subject.IsNil() {
		return Token{}, errMissingSubject
	}
	if !tier.Valid() {
		return Token{}, errInvalidTier
	}
	if issuedAt.IsZero() {
		return Token{}, errMissingIssuedAt
	}
	if meta.ValidUntil.Before(issuedAt) {
		return Token{}, errExpiryBeforeIssue
	}
	return Token{
		ID:         credentialID,
		Subject:    subject,
		IssuedAt:   issuedAt,
		Tier:       tier,
		TrustIndex: trustIndex,
		StreakDays: streakDays,
		Metadata:   meta,
	}, nil
}

// Expired reports whether the token's validity window has passed.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.Metadata.ValidUntil)
}
