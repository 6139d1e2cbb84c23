package profile

import (
	"context"
	"sync"
	"time"

	id "credvault/pkg/domain"
)

// Source resolves activity profiles for subjects. The in-memory implementation
// is a stand-in for the external activity system; the interface is the seam a
// deployment replaces.
type Source interface {
	Get(ctx context.Context, subject id.DID) (ActivityProfile, error)
	Update(ctx context.Context, subject id.DID, update Update) (ActivityProfile, error)
}

// InMemorySource stores profiles in memory and synthesizes baseline profiles
// for subjects it has never seen. Synthesis is deterministic per subject so
// repeated mints classify identically.
type InMemorySource struct {
	mu       sync.RWMutex
	profiles map[id.DID]ActivityProfile
	now      func() time.Time
}

// NewInMemorySource constructs an empty in-memory profile source.
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{
		profiles: make(map[id.DID]ActivityProfile),
		now:      time.Now,
	}
}

// Seed installs a known profile, normalizing its subject field.
func (s *InMemorySource) Seed(profile ActivityProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.DID] = profile
}

// Get returns the stored profile for a subject, synthesizing and storing a
// baseline one for unknown subjects.
func (s *InMemorySource) Get(_ context.Context, subject id.DID) (ActivityProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[subject]; ok {
		return p, nil
	}
	p := synthesize(subject, s.now())
	s.profiles[subject] = p
	return p, nil
}

// Update applies a partial mutation and returns the resulting profile.
// Unknown subjects are synthesized first so updates never fail on absence.
func (s *InMemorySource) Update(_ context.Context, subject id.DID, update Update) (ActivityProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[subject]
	if !ok {
		p = synthesize(subject, s.now())
	}
	p = p.Apply(update)
	s.profiles[subject] = p
	return p, nil
}

// synthesize derives a plausible baseline profile from the subject identifier.
// The derived numbers stay below moderation thresholds so unknown subjects
// always start as citizens.
func synthesize(subject id.DID, now time.Time) ActivityProfile {
	h := hashDID(subject)
	return ActivityProfile{
		DID:             subject,
		TrustIndex:      40 + int(h%31),  // 40-70
		StreakDays:      int(h % 15),     // 0-14
		VoteHistory:     int(h % 20),     // 0-19
		EngagementLevel: 30 + int(h%40),  // 30-69
		LastActiveAt:    now,
		Reputation: ReputationCounts{
			Positive: int(h % 25),
			Neutral:  int(h % 10),
			Negative: int(h % 4),
		},
	}
}

func hashDID(subject id.DID) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(subject); i++ {
		h ^= uint32(subject[i])
		h *= 16777619
	}
	return h
}
