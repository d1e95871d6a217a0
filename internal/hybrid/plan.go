package hybrid

// Mode selects how a requested block range is resolved.
type Mode string

const (
	// ModeRPC serves the whole range from on-chain logs in one query.
	ModeRPC Mode = "rpc"
	// ModeHybrid splits the range: indexer for history, RPC for the blocks
	// the indexer has not caught up to yet.
	ModeHybrid Mode = "hybrid"
	// ModeChunked scans the whole range over sequential on-chain queries
	// when no indexer is available.
	ModeChunked Mode = "chunked"
)

// Config bounds a single fetch.
type Config struct {
	// MaxBlocks is the largest span served by one log query.
	MaxBlocks uint64
	// RecentWindow is how many blocks below the head are considered too
	// fresh for the indexer.
	RecentWindow uint64
}

// DefaultConfig matches typical public RPC limits.
func DefaultConfig() Config {
	return Config{MaxBlocks: 10000, RecentWindow: 1000}
}

// FetchPlan is the resolved strategy for one request. Derived, never stored.
type FetchPlan struct {
	FromBlock    uint64 `json:"from_block"`
	ToBlock      uint64 `json:"to_block"`
	CurrentBlock uint64 `json:"current_block"`
	RPCCutoff    uint64 `json:"rpc_cutoff"`
	Mode         Mode   `json:"mode"`
}

// PlanFetch computes the fetch strategy for a block range against the
// current chain head. Nil bounds default to the head and the recent window
// below it. Ranges within MaxBlocks go straight to RPC; anything wider
// splits at head-RecentWindow when an indexer is available, and falls back
// to chunked RPC scanning otherwise.
func PlanFetch(currentBlock uint64, fromBlock, toBlock *uint64, cfg Config, indexerAvailable bool) FetchPlan {
	plan := FetchPlan{CurrentBlock: currentBlock}

	if toBlock != nil {
		plan.ToBlock = *toBlock
	} else {
		plan.ToBlock = currentBlock
	}

	if fromBlock != nil {
		plan.FromBlock = *fromBlock
	} else if plan.ToBlock > cfg.RecentWindow {
		plan.FromBlock = plan.ToBlock - cfg.RecentWindow
	}

	if plan.FromBlock > plan.ToBlock {
		plan.FromBlock = plan.ToBlock
	}

	if currentBlock > cfg.RecentWindow {
		plan.RPCCutoff = currentBlock - cfg.RecentWindow
	}

	blockRange := plan.ToBlock - plan.FromBlock
	switch {
	case blockRange <= cfg.MaxBlocks:
		plan.Mode = ModeRPC
	case indexerAvailable:
		plan.Mode = ModeHybrid
	default:
		plan.Mode = ModeChunked
	}

	return plan
}
