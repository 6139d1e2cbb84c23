// Package profile holds per-subject activity snapshots consumed by the minter
// and the refresh protocol. Profiles are produced and updated by external
// civic systems; the vault never computes them from scratch.
package profile

import (
	"time"

	id "credvault/pkg/domain"
)

// ReputationCounts summarizes community feedback for a subject.
type ReputationCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// ActivityProfile is the behavioral snapshot a credential is minted from.
// TrustIndex and EngagementLevel are 0-100; counters are non-negative.
type ActivityProfile struct {
	DID             id.DID           `json:"did"`
	TrustIndex      int              `json:"trust_index"`
	StreakDays      int              `json:"streak_days"`
	VoteHistory     int              `json:"vote_history"`
	EngagementLevel int              `json:"engagement_level"`
	LastActiveAt    time.Time        `json:"last_active_at"`
	Reputation      ReputationCounts `json:"reputation"`
}

// Update is a partial profile mutation. Nil fields are left unchanged.
type Update struct {
	TrustIndex      *int
	StreakDays      *int
	VoteHistory     *int
	EngagementLevel *int
	LastActiveAt    *time.Time
	Reputation      *ReputationCounts
}

// Apply returns a copy of the profile with the non-nil update fields applied.
// Percentages are clamped to 0-100 and counters floored at zero.
func (p ActivityProfile) Apply(u Update) ActivityProfile {
	out := p
	if u.TrustIndex != nil {
		out.TrustIndex = clampPercent(*u.TrustIndex)
	}
	if u.StreakDays != nil {
		out.StreakDays = max(0, *u.StreakDays)
	}
	if u.VoteHistory != nil {
		out.VoteHistory = max(0, *u.VoteHistory)
	}
	if u.EngagementLevel != nil {
		out.EngagementLevel = clampPercent(*u.EngagementLevel)
	}
	if u.LastActiveAt != nil {
		out.LastActiveAt = *u.LastActiveAt
	}
	if u.Reputation != nil {
		out.Reputation = *u.Reputation
	}
	return out
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
