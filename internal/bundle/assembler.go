package bundle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"credvault/internal/credential"
	"credvault/internal/profile"
	id "credvault/pkg/domain"
)

// ReferenceAssembler is an in-process Assembler for local and test use. A real
// deployment points the vault at the external assembly service instead.
type ReferenceAssembler struct {
	now func() time.Time
}

// NewReferenceAssembler constructs the in-process assembler.
func NewReferenceAssembler() *ReferenceAssembler {
	return &ReferenceAssembler{now: time.Now}
}

// Assemble produces a bundle stamped with the current epoch and a summary of
// the profile the credential was scored from.
func (a *ReferenceAssembler) Assemble(_ context.Context, token credential.Token, prof profile.ActivityProfile) (*Bundle, error) {
	now := a.now()
	return &Bundle{
		ID:          uuid.NewString(),
		Epoch:       id.EpochAt(now),
		Subject:     token.Subject,
		Tier:        token.Tier,
		GeneratedAt: now,
		Summary: map[string]any{
			"trust_index":      prof.TrustIndex,
			"engagement_level": prof.EngagementLevel,
			"vote_history":     prof.VoteHistory,
			"streak_days":      prof.StreakDays,
			"reputation":       prof.Reputation,
		},
	}, nil
}

var _ Assembler = (*ReferenceAssembler)(nil)
