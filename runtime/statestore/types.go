package statestore

import "time"

// DefaultTTL is the default per-entry time-to-live (spec default: 24h),
// used when a caller passes ttl <= 0 to GetOrInit/Update.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often the background sweep goroutine scans
// for TTL-expired entries.
const DefaultSweepInterval = 60 * time.Second

// entry is one stored state value plus its bookkeeping fields, shared by
// both the in-memory LRU list and TTL sweep.
type entry struct {
	key        Key
	value      []byte
	createdAt  time.Time
	lastAccess time.Time
	ttl        time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.lastAccess) > e.ttl
}
