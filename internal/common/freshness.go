package common

import "time"

// Freshness TTLs for cached and streamed data
const (
	FreshnessHistory   = 5 * time.Minute
	FreshnessLivePrice = 2 * time.Minute // no update for this long marks a price stale
)

// IsFreshAt returns true if updated is within ttl of now. A zero time is never fresh.
func IsFreshAt(updated, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
