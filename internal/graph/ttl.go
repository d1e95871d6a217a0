package graph

import (
	"context"
	"encoding/json"
	"time"
)

// Query types with cache lifetimes matched to how fast the underlying data
// moves. Anything else uses the client's default TTL.
const (
	QueryTypeDefault      = "default"
	QueryTypeTokenInfo    = "token_info"    // token metadata changes rarely
	QueryTypeHistorical   = "historical"    // closed daily candles are immutable
	QueryTypeCurrentPrice = "current_price" // prices move fast
	QueryTypeVolume       = "volume"        // rolling windows update moderately
)

// TTLFor resolves the cache TTL for a query type, falling back to def for
// unknown types.
func TTLFor(queryType string, def time.Duration) time.Duration {
	switch queryType {
	case QueryTypeTokenInfo:
		return 24 * time.Hour
	case QueryTypeHistorical:
		return 6 * time.Hour
	case QueryTypeCurrentPrice:
		return time.Minute
	case QueryTypeVolume:
		return 5 * time.Minute
	default:
		return def
	}
}

// Querier is the minimal query capability.
type Querier interface {
	Query(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// TTLQuerier adds per-query-type cache lifetimes. Implementations without a
// cache satisfy it by forwarding QueryWithTTL to Query, so consumers never
// branch on whether caching is on.
type TTLQuerier interface {
	Querier
	QueryWithTTL(ctx context.Context, query string, variables map[string]any, queryType string) (json.RawMessage, error)
}
