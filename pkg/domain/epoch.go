package domain

import "time"

// EpochUnknown is recorded when an entry has no bundle to read an epoch from.
const EpochUnknown = "unknown"

// EpochAt returns the coarse reputation period for a point in time.
// Epochs are year-month buckets in UTC so a refresh within the same
// calendar month rotates to the same epoch.
func EpochAt(t time.Time) string {
	return t.UTC().Format("2006-01")
}
