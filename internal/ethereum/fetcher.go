package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	eth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"tokenlens/internal/metrics"
	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

// LogFetcher retrieves ERC-20 Transfer events straight from the chain via
// eth_getLogs. This is the authoritative, real-time source; wide ranges
// belong on the indexer path.
type LogFetcher struct {
	client *Client
	cache  *BlockTimestampCache
	logger *logger.Logger
}

// NewLogFetcher creates a fetcher with a block timestamp cache.
func NewLogFetcher(client *Client, log *logger.Logger) *LogFetcher {
	return &LogFetcher{
		client: client,
		cache:  NewBlockTimestampCache(5 * time.Minute),
		logger: log,
	}
}

// FetchTransfers fetches Transfer events for one token over [fromBlock,
// toBlock], decoded and normalized with the token's metadata. A non-empty
// wallet keeps only transfers where that wallet is sender or recipient; the
// filter runs client-side because a topic filter can only pin one indexed
// position per query. Logs that fail to decode are skipped with a warning.
func (f *LogFetcher) FetchTransfers(ctx context.Context, token, wallet string, fromBlock, toBlock uint64, meta models.TokenInfo) ([]models.Transfer, error) {
	query := eth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{common.HexToAddress(token)},
		Topics: [][]common.Hash{
			{ERC20TransferEventSignature},
		},
	}

	logs, err := f.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	if len(logs) == 0 {
		return nil, nil
	}

	// One timestamp lookup per distinct block, cache first
	uniqueBlocks := make(map[uint64]bool)
	blocksToFetch := make([]uint64, 0)
	blockTimestamps := make(map[uint64]time.Time)

	for _, log := range logs {
		if uniqueBlocks[log.BlockNumber] {
			continue
		}
		uniqueBlocks[log.BlockNumber] = true
		if timestamp, found := f.cache.Get(log.BlockNumber); found {
			blockTimestamps[log.BlockNumber] = timestamp
		} else {
			blocksToFetch = append(blocksToFetch, log.BlockNumber)
		}
	}

	if len(blocksToFetch) > 0 {
		fetched, err := f.fetchTimestamps(ctx, blocksToFetch)
		if err != nil {
			return nil, err
		}
		for block, timestamp := range fetched {
			blockTimestamps[block] = timestamp
		}
	}

	wallet = strings.ToLower(wallet)

	transfers := make([]models.Transfer, 0, len(logs))
	for _, log := range logs {
		timestamp, ok := blockTimestamps[log.BlockNumber]
		if !ok {
			return nil, fmt.Errorf("missing timestamp for block %d", log.BlockNumber)
		}

		transfer, err := ParseTransferLog(log, meta, timestamp)
		if err != nil {
			f.logger.Warn("Skipping undecodable log in tx %s: %v", log.TxHash.Hex(), err)
			continue
		}

		if wallet != "" && transfer.From != wallet && transfer.To != wallet {
			continue
		}

		transfers = append(transfers, transfer)
	}

	metrics.TransfersFetchedTotal.WithLabelValues(models.SourceRPC).Add(float64(len(transfers)))
	return transfers, nil
}

// fetchTimestamps resolves block timestamps via header fetches, at most five
// in flight so a log-heavy range does not stampede the RPC provider.
func (f *LogFetcher) fetchTimestamps(ctx context.Context, blocks []uint64) (map[uint64]time.Time, error) {
	type blockResult struct {
		blockNum  uint64
		timestamp time.Time
		err       error
	}

	results := make(chan blockResult, len(blocks))
	semaphore := make(chan struct{}, 5)

	for _, blockNum := range blocks {
		bn := blockNum
		go func() {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			blockCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			header, err := f.client.HeaderByNumber(blockCtx, new(big.Int).SetUint64(bn))
			if err != nil {
				results <- blockResult{blockNum: bn, err: err}
				return
			}

			timestamp := time.Unix(int64(header.Time), 0).UTC()
			f.cache.Set(bn, timestamp)
			results <- blockResult{blockNum: bn, timestamp: timestamp}
		}()
	}

	timestamps := make(map[uint64]time.Time, len(blocks))
	for range blocks {
		result := <-results
		if result.err != nil {
			return nil, fmt.Errorf("failed to get block %d: %w", result.blockNum, result.err)
		}
		timestamps[result.blockNum] = result.timestamp
	}

	return timestamps, nil
}

// BlockTimestamp returns the timestamp of one block, using the cache.
func (f *LogFetcher) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	if timestamp, found := f.cache.Get(blockNumber); found {
		return timestamp, nil
	}

	header, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get block %d: %w", blockNumber, err)
	}

	timestamp := time.Unix(int64(header.Time), 0).UTC()
	f.cache.Set(blockNumber, timestamp)
	return timestamp, nil
}
