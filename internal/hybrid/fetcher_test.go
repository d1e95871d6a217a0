package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: "error"})
}

func uint64Ptr(v uint64) *uint64 { return &v }

type fakeChain struct {
	head uint64
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

type fakeMetadata struct {
	info models.TokenInfo
}

func (f *fakeMetadata) TokenMetadata(ctx context.Context, token string) models.TokenInfo {
	return f.info
}

type rangeCall struct {
	from, to uint64
}

type fakeLogSource struct {
	calls     []rangeCall
	transfers []models.Transfer
	err       error
}

func (f *fakeLogSource) FetchTransfers(ctx context.Context, token, wallet string, fromBlock, toBlock uint64, meta models.TokenInfo) ([]models.Transfer, error) {
	f.calls = append(f.calls, rangeCall{from: fromBlock, to: toBlock})
	return f.transfers, f.err
}

type fakeIndexer struct {
	calls     []rangeCall
	transfers []models.Transfer
	err       error
}

func (f *fakeIndexer) Transfers(ctx context.Context, token, wallet string, fromBlock, toBlock uint64, meta models.TokenInfo) ([]models.Transfer, error) {
	f.calls = append(f.calls, rangeCall{from: fromBlock, to: toBlock})
	return f.transfers, f.err
}

func transfer(tx string, block uint64, logIndex uint) models.Transfer {
	return models.Transfer{
		TxHash:      tx,
		BlockNumber: block,
		LogIndex:    logIndex,
		Timestamp:   time.Unix(int64(1700000000+block*12), 0).UTC(),
	}
}

func TestPlanFetchSelection(t *testing.T) {
	cfg := Config{MaxBlocks: 10000, RecentWindow: 1000}
	head := uint64(100000)

	// 500-block span fits in one RPC query
	plan := PlanFetch(head, uint64Ptr(99000), uint64Ptr(99500), cfg, true)
	assert.Equal(t, ModeRPC, plan.Mode)

	// 50000-block span with indexer splits at head-1000
	plan = PlanFetch(head, uint64Ptr(50000), uint64Ptr(100000), cfg, true)
	assert.Equal(t, ModeHybrid, plan.Mode)
	assert.Equal(t, uint64(99000), plan.RPCCutoff)

	// Same span without indexer scans in chunks
	plan = PlanFetch(head, uint64Ptr(50000), uint64Ptr(100000), cfg, false)
	assert.Equal(t, ModeChunked, plan.Mode)
}

func TestPlanFetchDefaults(t *testing.T) {
	cfg := Config{MaxBlocks: 10000, RecentWindow: 1000}

	plan := PlanFetch(100000, nil, nil, cfg, true)
	assert.Equal(t, uint64(100000), plan.ToBlock)
	assert.Equal(t, uint64(99000), plan.FromBlock)
	assert.Equal(t, ModeRPC, plan.Mode)

	// From beyond to clamps rather than underflowing
	plan = PlanFetch(100000, uint64Ptr(500), uint64Ptr(100), cfg, true)
	assert.Equal(t, plan.ToBlock, plan.FromBlock)

	// Early chain: no recent window to subtract
	plan = PlanFetch(500, nil, nil, cfg, true)
	assert.Equal(t, uint64(0), plan.RPCCutoff)
}

func TestMergeTransfersDedup(t *testing.T) {
	historical := []models.Transfer{
		transfer("0xa", 10, 0),
		transfer("0xb", 12, 0),
	}
	recent := []models.Transfer{
		transfer("0xb", 12, 0),
		transfer("0xc", 15, 0),
	}

	merged := MergeTransfers(historical, recent)
	require.Len(t, merged, 3)
	assert.Equal(t, "0xa", merged[0].TxHash)
	assert.Equal(t, "0xb", merged[1].TxHash)
	assert.Equal(t, "0xc", merged[2].TxHash)
}

func TestMergeTransfersOrdering(t *testing.T) {
	// Same transaction emitting several Transfer logs
	historical := []models.Transfer{
		transfer("0xa", 20, 3),
		transfer("0xa", 20, 1),
	}
	recent := []models.Transfer{
		transfer("0xb", 10, 5),
	}

	merged := MergeTransfers(historical, recent)
	require.Len(t, merged, 3)
	assert.Equal(t, uint64(10), merged[0].BlockNumber)
	assert.Equal(t, uint(1), merged[1].LogIndex)
	assert.Equal(t, uint(3), merged[2].LogIndex)
}

func TestFetchTransfersRPCOnly(t *testing.T) {
	logs := &fakeLogSource{transfers: []models.Transfer{transfer("0xa", 99100, 0)}}
	f := NewFetcher(&fakeChain{head: 100000}, &fakeMetadata{}, logs, &fakeIndexer{}, Config{MaxBlocks: 10000, RecentWindow: 1000}, testLogger())

	transfers, plan, err := f.FetchTransfers(context.Background(), "0xtoken", "", uint64Ptr(99000), uint64Ptr(99500))
	require.NoError(t, err)
	assert.Equal(t, ModeRPC, plan.Mode)
	require.Len(t, logs.calls, 1)
	assert.Equal(t, rangeCall{from: 99000, to: 99500}, logs.calls[0])
	assert.Len(t, transfers, 1)
}

func TestFetchTransfersHybridSplit(t *testing.T) {
	indexer := &fakeIndexer{transfers: []models.Transfer{
		transfer("0xa", 60000, 0),
		transfer("0xb", 98500, 0),
	}}
	logs := &fakeLogSource{transfers: []models.Transfer{
		transfer("0xb", 98500, 0), // also seen by the lagging side
		transfer("0xc", 99900, 0),
	}}
	f := NewFetcher(&fakeChain{head: 100000}, &fakeMetadata{}, logs, indexer, Config{MaxBlocks: 10000, RecentWindow: 1000}, testLogger())

	transfers, plan, err := f.FetchTransfers(context.Background(), "0xtoken", "", uint64Ptr(50000), uint64Ptr(100000))
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, plan.Mode)

	// History up to the cutoff from the indexer, the rest from RPC
	require.Len(t, indexer.calls, 1)
	assert.Equal(t, rangeCall{from: 50000, to: 99000}, indexer.calls[0])
	require.Len(t, logs.calls, 1)
	assert.Equal(t, rangeCall{from: 99001, to: 100000}, logs.calls[0])

	// 0xb deduplicated
	require.Len(t, transfers, 3)
	assert.Equal(t, "0xa", transfers[0].TxHash)
	assert.Equal(t, "0xb", transfers[1].TxHash)
	assert.Equal(t, "0xc", transfers[2].TxHash)
}

func TestFetchTransfersHybridRecentOnlyRange(t *testing.T) {
	// Wider than MaxBlocks but entirely above the cutoff: no indexer call.
	indexer := &fakeIndexer{}
	logs := &fakeLogSource{}
	f := NewFetcher(&fakeChain{head: 200000}, &fakeMetadata{}, logs, indexer, Config{MaxBlocks: 100, RecentWindow: 1000}, testLogger())

	_, plan, err := f.FetchTransfers(context.Background(), "0xtoken", "", uint64Ptr(199500), uint64Ptr(200000))
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, plan.Mode)
	assert.Empty(t, indexer.calls)
	require.Len(t, logs.calls, 1)
	assert.Equal(t, rangeCall{from: 199001, to: 200000}, logs.calls[0])
}

func TestFetchTransfersChunked(t *testing.T) {
	logs := &fakeLogSource{}
	f := NewFetcher(&fakeChain{head: 100000}, &fakeMetadata{}, logs, nil, Config{MaxBlocks: 10000, RecentWindow: 1000}, testLogger())

	_, plan, err := f.FetchTransfers(context.Background(), "0xtoken", "", uint64Ptr(0), uint64Ptr(50000))
	require.NoError(t, err)
	assert.Equal(t, ModeChunked, plan.Mode)
	assert.Len(t, logs.calls, 5)

	// Windows are contiguous and cover the whole range
	assert.Equal(t, uint64(0), logs.calls[0].from)
	for i := 1; i < len(logs.calls); i++ {
		assert.Equal(t, logs.calls[i-1].to+1, logs.calls[i].from)
	}
	assert.Equal(t, uint64(50000), logs.calls[len(logs.calls)-1].to)
}

func TestFetchTransfersIndexerErrorPropagates(t *testing.T) {
	indexer := &fakeIndexer{err: assert.AnError}
	f := NewFetcher(&fakeChain{head: 100000}, &fakeMetadata{}, &fakeLogSource{}, indexer, Config{MaxBlocks: 10000, RecentWindow: 1000}, testLogger())

	_, _, err := f.FetchTransfers(context.Background(), "0xtoken", "", uint64Ptr(0), uint64Ptr(100000))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSummarize(t *testing.T) {
	wallet := "0xwallet"
	transfers := []models.Transfer{
		{From: "0xaaa", To: wallet, Value: 100, Timestamp: time.Unix(1000, 0)},
		{From: "0xbbb", To: wallet, Value: 50, Timestamp: time.Unix(2000, 0)},
		{From: wallet, To: "0xaaa", Value: 30, Timestamp: time.Unix(3000, 0)},
	}

	summary := Summarize(transfers, "0xWALLET")
	assert.Equal(t, 3, summary.TotalTransfers)
	assert.Equal(t, 2, summary.ReceivedCount)
	assert.Equal(t, 1, summary.SentCount)
	assert.InDelta(t, 150, summary.TotalReceived, 1e-9)
	assert.InDelta(t, 30, summary.TotalSent, 1e-9)
	assert.InDelta(t, 120, summary.NetChange, 1e-9)
	assert.Equal(t, 2, summary.UniqueCounterparties)
	assert.Equal(t, time.Unix(1000, 0), summary.FirstTransfer)
	assert.Equal(t, time.Unix(3000, 0), summary.LastTransfer)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil, "0xwallet")
	assert.Equal(t, 0, summary.TotalTransfers)
	assert.Zero(t, summary.NetChange)
	assert.True(t, summary.FirstTransfer.IsZero())
}
