package hybrid

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tokenlens/internal/metrics"
	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

// ChainClient resolves the current chain head.
type ChainClient interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// MetadataSource resolves token metadata once per request so both sources
// normalize values with the same decimals.
type MetadataSource interface {
	TokenMetadata(ctx context.Context, token string) models.TokenInfo
}

// LogSource reads transfers straight from chain logs.
type LogSource interface {
	FetchTransfers(ctx context.Context, token, wallet string, fromBlock, toBlock uint64, meta models.TokenInfo) ([]models.Transfer, error)
}

// IndexerSource reads transfers from a subgraph indexer.
type IndexerSource interface {
	Transfers(ctx context.Context, token, wallet string, fromBlock, toBlock uint64, meta models.TokenInfo) ([]models.Transfer, error)
}

// Fetcher answers transfer queries by choosing, per request, between on-chain
// logs, the indexer, or a split across both, and merging the results into one
// deduplicated, block-ordered list.
type Fetcher struct {
	chain    ChainClient
	metadata MetadataSource
	logs     LogSource
	indexer  IndexerSource // nil disables the hybrid path
	cfg      Config
	logger   *logger.Logger
}

// NewFetcher creates a Fetcher. A nil indexer forces wide ranges onto the
// chunked RPC path.
func NewFetcher(chain ChainClient, metadata MetadataSource, logs LogSource, indexer IndexerSource, cfg Config, log *logger.Logger) *Fetcher {
	if cfg.MaxBlocks == 0 {
		cfg.MaxBlocks = DefaultConfig().MaxBlocks
	}
	if cfg.RecentWindow == 0 {
		cfg.RecentWindow = DefaultConfig().RecentWindow
	}

	return &Fetcher{
		chain:    chain,
		metadata: metadata,
		logs:     logs,
		indexer:  indexer,
		cfg:      cfg,
		logger:   log,
	}
}

// FetchTransfers returns the merged transfer list for one token, optionally
// filtered to one wallet, over [fromBlock, toBlock]. Nil bounds default to
// the recent window below the chain head. The result is deduplicated and
// sorted ascending by (block number, log index).
func (f *Fetcher) FetchTransfers(ctx context.Context, token, wallet string, fromBlock, toBlock *uint64) ([]models.Transfer, FetchPlan, error) {
	currentBlock, err := f.chain.LatestBlockNumber(ctx)
	if err != nil {
		return nil, FetchPlan{}, fmt.Errorf("failed to resolve chain head: %w", err)
	}

	plan := PlanFetch(currentBlock, fromBlock, toBlock, f.cfg, f.indexer != nil)
	meta := f.metadata.TokenMetadata(ctx, token)

	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(string(plan.Mode)).Observe(time.Since(start).Seconds())
	}()

	var transfers []models.Transfer
	switch plan.Mode {
	case ModeRPC:
		f.logger.Debug("Fetching %s transfers via RPC only (blocks %d-%d)", token, plan.FromBlock, plan.ToBlock)
		transfers, err = f.logs.FetchTransfers(ctx, token, wallet, plan.FromBlock, plan.ToBlock, meta)
	case ModeHybrid:
		transfers, err = f.fetchHybrid(ctx, token, wallet, plan, meta)
	case ModeChunked:
		transfers, err = f.fetchChunked(ctx, token, wallet, plan, meta)
	}
	if err != nil {
		return nil, plan, err
	}

	return transfers, plan, nil
}

// fetchHybrid serves history from the indexer and the freshest blocks from
// RPC, then merges the two. The cutoff overlaps nothing: the indexer covers
// [from, cutoff] and RPC covers (cutoff, to]. Dedup still runs because an
// indexer that has caught up past the cutoff can report blocks the RPC side
// also saw.
func (f *Fetcher) fetchHybrid(ctx context.Context, token, wallet string, plan FetchPlan, meta models.TokenInfo) ([]models.Transfer, error) {
	var historical, recent []models.Transfer

	if plan.FromBlock < plan.RPCCutoff {
		f.logger.Debug("Fetching %s history via indexer (blocks %d-%d)", token, plan.FromBlock, plan.RPCCutoff)
		transfers, err := f.indexer.Transfers(ctx, token, wallet, plan.FromBlock, plan.RPCCutoff, meta)
		if err != nil {
			return nil, fmt.Errorf("indexer fetch failed: %w", err)
		}
		historical = transfers
	}

	if plan.ToBlock > plan.RPCCutoff {
		f.logger.Debug("Fetching %s recent transfers via RPC (blocks %d-%d)", token, plan.RPCCutoff+1, plan.ToBlock)
		transfers, err := f.logs.FetchTransfers(ctx, token, wallet, plan.RPCCutoff+1, plan.ToBlock, meta)
		if err != nil {
			return nil, fmt.Errorf("rpc fetch failed: %w", err)
		}
		recent = transfers
	}

	return MergeTransfers(historical, recent), nil
}

// fetchChunked scans the range over sequential MaxBlocks windows. Sequential
// on purpose: one outstanding request at a time keeps the RPC provider's
// rate limit intact.
func (f *Fetcher) fetchChunked(ctx context.Context, token, wallet string, plan FetchPlan, meta models.TokenInfo) ([]models.Transfer, error) {
	all := make([]models.Transfer, 0)

	currentFrom := plan.FromBlock
	for currentFrom < plan.ToBlock {
		currentTo := currentFrom + f.cfg.MaxBlocks
		if currentTo > plan.ToBlock {
			currentTo = plan.ToBlock
		}

		f.logger.Debug("Fetching %s transfers chunk (blocks %d-%d)", token, currentFrom, currentTo)
		chunk, err := f.logs.FetchTransfers(ctx, token, wallet, currentFrom, currentTo, meta)
		if err != nil {
			return nil, fmt.Errorf("chunk %d-%d failed: %w", currentFrom, currentTo, err)
		}
		all = append(all, chunk...)

		currentFrom = currentTo + 1
	}

	return all, nil
}

// MergeTransfers concatenates historical and recent transfers, drops
// duplicates by (tx hash, log index), and sorts ascending by (block number,
// log index). First occurrence wins, so historical records shadow their
// on-chain duplicates.
func MergeTransfers(historical, recent []models.Transfer) []models.Transfer {
	seen := make(map[string]bool, len(historical)+len(recent))
	merged := make([]models.Transfer, 0, len(historical)+len(recent))

	for _, lists := range [][]models.Transfer{historical, recent} {
		for _, transfer := range lists {
			key := transfer.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, transfer)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].BlockNumber != merged[j].BlockNumber {
			return merged[i].BlockNumber < merged[j].BlockNumber
		}
		return merged[i].LogIndex < merged[j].LogIndex
	})

	return merged
}
