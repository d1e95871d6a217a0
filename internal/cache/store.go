package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Store persists query results keyed by a content hash of the query text and
// its variables. Entries expire by age; expiry is evaluated against the ttl
// the reader passes, so the same entry can be fresh for one query class and
// stale for another. Implementations must be safe for concurrent use and must
// fail open: a broken backend degrades to misses, never to query failures.
type Store interface {
	// Get returns the cached payload for (query, variables) if one exists and
	// is younger than ttl. A ttl of zero means the store default.
	Get(ctx context.Context, query string, variables map[string]any, ttl time.Duration) ([]byte, bool)

	// Set writes the payload for (query, variables), overwriting any previous
	// entry. The ttl is a hint for backends with server-side expiry; age-based
	// backends ignore it.
	Set(ctx context.Context, query string, variables map[string]any, payload []byte, ttl time.Duration) error

	// Delete removes the entry for (query, variables), reporting whether one
	// existed.
	Delete(ctx context.Context, query string, variables map[string]any) bool

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// CleanupExpired removes entries older than ttl (store default when zero)
	// and returns how many were removed.
	CleanupExpired(ctx context.Context, ttl time.Duration) int

	// EnforceSizeLimit evicts oldest entries until the store is within its
	// byte budget.
	EnforceSizeLimit(ctx context.Context)

	Stats(ctx context.Context) Stats
	ResetStats()
	Close() error
}

// Stats is a point-in-time snapshot of a store's counters and footprint.
// HitRate is a percentage over hits+misses; expired reads count toward
// neither.
type Stats struct {
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Writes     uint64  `json:"writes"`
	Expired    uint64  `json:"expired"`
	Errors     uint64  `json:"errors"`
	EntryCount int     `json:"entry_count"`
	SizeBytes  int64   `json:"size_bytes"`
	SizeMB     float64 `json:"size_mb"`
	HitRate    float64 `json:"hit_rate"`
}

// cacheKey derives the content-hash key. Variables are serialized with
// sorted keys so logically equal maps collapse onto one entry; a nil and an
// empty map hash identically.
func cacheKey(query string, variables map[string]any) string {
	content := strings.TrimSpace(query)
	if len(variables) > 0 {
		if encoded, err := json.Marshal(variables); err == nil {
			content += string(encoded)
		}
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
