package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenlens/internal/hybrid"
	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: "error"})
}

type fakeChain struct {
	head uint64
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

type fetchCall struct {
	token    string
	from, to uint64
}

type fakeFetcher struct {
	calls     []fetchCall
	transfers []models.Transfer
	err       error
}

func (f *fakeFetcher) FetchTransfers(ctx context.Context, token, wallet string, fromBlock, toBlock *uint64) ([]models.Transfer, hybrid.FetchPlan, error) {
	f.calls = append(f.calls, fetchCall{token: token, from: *fromBlock, to: *toBlock})
	if f.err != nil {
		return nil, hybrid.FetchPlan{}, f.err
	}
	return f.transfers, hybrid.FetchPlan{}, nil
}

type fakeWatchlist struct {
	wallets []models.WatchedWallet
}

func (f *fakeWatchlist) Add(ctx context.Context, wallet models.WatchedWallet) error { return nil }
func (f *fakeWatchlist) Remove(ctx context.Context, address, token string) (bool, error) {
	return false, nil
}
func (f *fakeWatchlist) List(ctx context.Context) ([]models.WatchedWallet, error) {
	return f.wallets, nil
}
func (f *fakeWatchlist) Close(ctx context.Context) error { return nil }

type fakePublisher struct {
	published []models.Transfer
}

func (f *fakePublisher) Publish(transfer models.Transfer) {
	f.published = append(f.published, transfer)
}

func TestWatcherPollPublishesWatchedTransfers(t *testing.T) {
	chain := &fakeChain{head: 1000}
	fetcher := &fakeFetcher{transfers: []models.Transfer{
		{From: "0xwatched", To: "0xsomeone", TxHash: "0xa"},
		{From: "0xother", To: "0xelse", TxHash: "0xb"},
		{From: "0xother", To: "0xwatched", TxHash: "0xc"},
	}}
	watchlist := &fakeWatchlist{wallets: []models.WatchedWallet{
		{Address: "0xWatched", Token: "0xToken"},
	}}
	publisher := &fakePublisher{}

	w := NewWatcher(chain, fetcher, watchlist, publisher, 0, testLogger())
	ctx := context.Background()

	// First poll anchors the window without fetching
	require.NoError(t, w.poll(ctx))
	assert.Empty(t, fetcher.calls)

	chain.head = 1010
	require.NoError(t, w.poll(ctx))

	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, fetchCall{token: "0xtoken", from: 1001, to: 1010}, fetcher.calls[0])

	// Only transfers touching the watched wallet go out
	require.Len(t, publisher.published, 2)
	assert.Equal(t, "0xa", publisher.published[0].TxHash)
	assert.Equal(t, "0xc", publisher.published[1].TxHash)
}

func TestWatcherPollRetriesFailedWindow(t *testing.T) {
	chain := &fakeChain{head: 100}
	fetcher := &fakeFetcher{err: fmt.Errorf("all providers failed")}
	watchlist := &fakeWatchlist{wallets: []models.WatchedWallet{
		{Address: "0xwatched", Token: "0xtoken"},
	}}
	publisher := &fakePublisher{}

	w := NewWatcher(chain, fetcher, watchlist, publisher, 0, testLogger())
	ctx := context.Background()

	require.NoError(t, w.poll(ctx))

	// Failed fetch keeps the window open
	chain.head = 110
	require.Error(t, w.poll(ctx))
	assert.Equal(t, uint64(100), w.lastBlock)

	// Next poll covers the same blocks again
	fetcher.err = nil
	fetcher.transfers = []models.Transfer{{From: "0xwatched", TxHash: "0xa"}}
	chain.head = 111
	require.NoError(t, w.poll(ctx))
	assert.Equal(t, uint64(111), w.lastBlock)

	require.Len(t, fetcher.calls, 2)
	assert.Equal(t, fetchCall{token: "0xtoken", from: 101, to: 110}, fetcher.calls[0])
	assert.Equal(t, fetchCall{token: "0xtoken", from: 101, to: 111}, fetcher.calls[1])
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "0xa", publisher.published[0].TxHash)
}

func TestWatcherPollSkipsWhenNoNewBlocks(t *testing.T) {
	chain := &fakeChain{head: 1000}
	fetcher := &fakeFetcher{}
	w := NewWatcher(chain, fetcher, &fakeWatchlist{}, &fakePublisher{}, 0, testLogger())
	ctx := context.Background()

	require.NoError(t, w.poll(ctx))
	require.NoError(t, w.poll(ctx))
	assert.Empty(t, fetcher.calls)
}

func TestWatcherPollAdvancesPastEmptyWatchlist(t *testing.T) {
	chain := &fakeChain{head: 1000}
	fetcher := &fakeFetcher{}
	w := NewWatcher(chain, fetcher, &fakeWatchlist{}, &fakePublisher{}, 0, testLogger())
	ctx := context.Background()

	require.NoError(t, w.poll(ctx))
	chain.head = 1100
	require.NoError(t, w.poll(ctx))
	assert.Equal(t, uint64(1100), w.lastBlock)

	// Wallet added later only sees blocks from here on
	chain.head = 1200
	w.watchlist = &fakeWatchlist{wallets: []models.WatchedWallet{{Address: "0xw", Token: "0xt"}}}
	require.NoError(t, w.poll(ctx))
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, uint64(1101), fetcher.calls[0].from)
}
