package models

import "time"

// SnapshotTTL is how long a cached snapshot is trusted for cold-start display.
const SnapshotTTL = 24 * time.Hour

// BalanceSnapshot is a derived, recomputable view of the proof store.
type BalanceSnapshot struct {
	Total       int64            `json:"total"`
	PerMint     map[string]int64 `json:"perMint"`
	LastUpdated time.Time        `json:"lastUpdated"`
	IsStale     bool             `json:"isStale"`
}

// Expired reports whether the snapshot is older than SnapshotTTL.
func (s BalanceSnapshot) Expired(now time.Time) bool {
	return now.Sub(s.LastUpdated) > SnapshotTTL
}
