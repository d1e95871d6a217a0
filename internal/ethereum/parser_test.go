package ethereum

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenlens/internal/models"
)

func transferLog(from, to common.Address, value *big.Int) types.Log {
	data := make([]byte, 32)
	value.FillBytes(data)

	return types.Log{
		Address: common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"),
		Topics: []common.Hash{
			ERC20TransferEventSignature,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        data,
		BlockNumber: 19000000,
		TxHash:      common.HexToHash("0xaaaa"),
		Index:       7,
	}
}

func TestParseTransferLog(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	// 1.5 tokens at 6 decimals
	log := transferLog(from, to, big.NewInt(1_500_000))
	blockTime := time.Unix(1700000000, 0).UTC()

	meta := models.TokenInfo{Decimals: 6, Symbol: "USDC"}
	transfer, err := ParseTransferLog(log, meta, blockTime)
	require.NoError(t, err)

	assert.Equal(t, "0x1111111111111111111111111111111111111111", transfer.From)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", transfer.To)
	assert.Equal(t, "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", transfer.Token)
	assert.InDelta(t, 1.5, transfer.Value, 1e-9)
	assert.Equal(t, "1500000", transfer.RawValue)
	assert.Equal(t, uint8(6), transfer.Decimals)
	assert.Equal(t, "USDC", transfer.Symbol)
	assert.Equal(t, uint64(19000000), transfer.BlockNumber)
	assert.Equal(t, uint(7), transfer.LogIndex)
	assert.Equal(t, blockTime, transfer.Timestamp)
	assert.Equal(t, models.SourceRPC, transfer.Source)
}

func TestParseTransferLogRejectsMalformed(t *testing.T) {
	from := common.HexToAddress("0x11")
	to := common.HexToAddress("0x22")
	meta := models.TokenInfo{Decimals: 18}

	// Wrong topic count (e.g. ERC-721 Transfer with indexed tokenId)
	log := transferLog(from, to, big.NewInt(1))
	log.Topics = log.Topics[:2]
	_, err := ParseTransferLog(log, meta, time.Now())
	assert.Error(t, err)

	// Wrong event signature
	log = transferLog(from, to, big.NewInt(1))
	log.Topics[0] = common.HexToHash("0xdead")
	_, err = ParseTransferLog(log, meta, time.Now())
	assert.Error(t, err)

	// Truncated data
	log = transferLog(from, to, big.NewInt(1))
	log.Data = log.Data[:16]
	_, err = ParseTransferLog(log, meta, time.Now())
	assert.Error(t, err)
}

func TestScaleValue(t *testing.T) {
	wei, ok := new(big.Int).SetString("2500000000000000000", 10)
	require.True(t, ok)
	assert.InDelta(t, 2.5, scaleValue(wei, 18), 1e-9)
	assert.InDelta(t, 0, scaleValue(big.NewInt(0), 18), 1e-12)
}

func TestBlockTimestampCache(t *testing.T) {
	c := NewBlockTimestampCache(time.Minute)
	now := time.Unix(1700000000, 0)
	c.nowFn = func() time.Time { return now }

	_, found := c.Get(100)
	assert.False(t, found)

	stamp := time.Unix(1699999000, 0)
	c.Set(100, stamp)

	got, found := c.Get(100)
	require.True(t, found)
	assert.Equal(t, stamp, got)
	assert.Equal(t, 1, c.Size())

	// Past the TTL the entry is gone
	now = now.Add(2 * time.Minute)
	_, found = c.Get(100)
	assert.False(t, found)
}
