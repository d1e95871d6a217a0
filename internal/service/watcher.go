package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tokenlens/internal/hybrid"
	"tokenlens/internal/metrics"
	"tokenlens/internal/models"
	"tokenlens/internal/repository"
	"tokenlens/pkg/logger"
)

// TransferFetcher resolves transfers over a block range; satisfied by the
// hybrid fetcher.
type TransferFetcher interface {
	FetchTransfers(ctx context.Context, token, wallet string, fromBlock, toBlock *uint64) ([]models.Transfer, hybrid.FetchPlan, error)
}

// ChainClient resolves the current chain head.
type ChainClient interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Publisher receives live transfer events; satisfied by the stream hub.
type Publisher interface {
	Publish(transfer models.Transfer)
}

// Watcher polls the chain for new transfers touching watched wallets and
// publishes them to the stream. Each poll covers only the blocks since the
// previous one, so every window stays on the plain RPC path.
type Watcher struct {
	chain        ChainClient
	fetcher      TransferFetcher
	watchlist    repository.Watchlist
	publisher    Publisher
	logger       *logger.Logger
	pollInterval time.Duration

	lastBlock uint64
}

// NewWatcher creates a watcher. It starts from the chain head at first poll;
// history before startup is the query API's business.
func NewWatcher(chain ChainClient, fetcher TransferFetcher, watchlist repository.Watchlist, publisher Publisher, pollInterval time.Duration, log *logger.Logger) *Watcher {
	return &Watcher{
		chain:        chain,
		fetcher:      fetcher,
		watchlist:    watchlist,
		publisher:    publisher,
		logger:       log,
		pollInterval: pollInterval,
	}
}

// Start runs the poll loop until ctx is cancelled. Poll failures are logged
// and counted, never fatal; the next tick retries from the same block.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("Watcher started (poll interval %s)", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher stopped")
			return nil
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				metrics.WatcherErrorsTotal.WithLabelValues("poll").Inc()
				w.logger.Error("Watcher poll failed: %v", err)
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	head, err := w.chain.LatestBlockNumber(pollCtx)
	if err != nil {
		return err
	}
	metrics.CurrentBlockHeight.Set(float64(head))

	// First poll anchors the window, nothing to fetch yet
	if w.lastBlock == 0 {
		w.lastBlock = head
		return nil
	}
	if head <= w.lastBlock {
		return nil
	}

	watched, err := w.watchlist.List(pollCtx)
	if err != nil {
		return err
	}
	if len(watched) == 0 {
		w.lastBlock = head
		return nil
	}

	// One fetch per token, wallets filtered from the shared result
	walletsByToken := make(map[string]map[string]bool)
	for _, entry := range watched {
		token := strings.ToLower(entry.Token)
		if walletsByToken[token] == nil {
			walletsByToken[token] = make(map[string]bool)
		}
		walletsByToken[token][strings.ToLower(entry.Address)] = true
	}

	fromBlock := w.lastBlock + 1
	published := 0
	var fetchErr error
	for token, wallets := range walletsByToken {
		transfers, _, err := w.fetcher.FetchTransfers(pollCtx, token, "", &fromBlock, &head)
		if err != nil {
			metrics.WatcherErrorsTotal.WithLabelValues("fetch").Inc()
			w.logger.Error("Watcher fetch failed for token %s: %v", token, err)
			if fetchErr == nil {
				fetchErr = fmt.Errorf("fetch failed for token %s: %w", token, err)
			}
			continue
		}

		for _, transfer := range transfers {
			if wallets[transfer.From] || wallets[transfer.To] {
				w.publisher.Publish(transfer)
				published++
			}
		}
	}

	// A failed fetch keeps lastBlock where it was, so the next tick covers
	// the same window again instead of losing it.
	if fetchErr != nil {
		return fetchErr
	}

	if published > 0 {
		w.logger.Info("Watcher published %d transfers from blocks %d-%d", published, fromBlock, head)
	} else {
		w.logger.Debug("Watcher found no watched transfers in blocks %d-%d", fromBlock, head)
	}

	w.lastBlock = head
	return nil
}
