package domain

// Tier is an ordered privilege classification for civic credentials.
// Higher rank means more privilege.
type Tier string

const (
	TierCitizen   Tier = "citizen"
	TierModerator Tier = "moderator"
	TierGovernor  Tier = "governor"
	TierCommander Tier = "commander"
)

var tierRank = map[Tier]int{
	TierCitizen:   0,
	TierModerator: 1,
	TierGovernor:  2,
	TierCommander: 3,
}

// Rank returns the ordinal position of the tier. Unknown tiers rank below Citizen.
func (t Tier) Rank() int {
	if rank, ok := tierRank[t]; ok {
		return rank
	}
	return -1
}

// Valid reports whether the tier is one of the known classifications.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether the tier carries at least the privilege of other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

func (t Tier) String() string { return string(t) }
