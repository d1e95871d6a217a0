package ethereum

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"tokenlens/internal/models"
)

// ERC20TransferEventSignature is the keccak256 hash of Transfer(address,address,uint256)
var ERC20TransferEventSignature = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// ParseTransferLog decodes a raw Ethereum log into a normalized Transfer.
// The raw wei value is kept as a decimal string; Value is scaled down by the
// token's decimals for human-readable output.
func ParseTransferLog(log types.Log, meta models.TokenInfo, blockTime time.Time) (models.Transfer, error) {
	if len(log.Topics) != 3 {
		return models.Transfer{}, fmt.Errorf("invalid Transfer event: expected 3 topics, got %d", len(log.Topics))
	}

	if log.Topics[0] != ERC20TransferEventSignature {
		return models.Transfer{}, fmt.Errorf("not a Transfer event")
	}

	if len(log.Data) != 32 {
		return models.Transfer{}, fmt.Errorf("invalid Transfer event data: expected 32 bytes, got %d", len(log.Data))
	}

	from := common.BytesToAddress(log.Topics[1].Bytes())
	to := common.BytesToAddress(log.Topics[2].Bytes())
	raw := new(big.Int).SetBytes(log.Data)

	return models.Transfer{
		Token:       strings.ToLower(log.Address.Hex()),
		From:        strings.ToLower(from.Hex()),
		To:          strings.ToLower(to.Hex()),
		Value:       scaleValue(raw, meta.Decimals),
		RawValue:    raw.String(),
		Decimals:    meta.Decimals,
		Symbol:      meta.Symbol,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		TxHash:      log.TxHash.Hex(),
		Timestamp:   blockTime,
		Source:      models.SourceRPC,
	}, nil
}

// scaleValue divides a raw integer amount by 10^decimals.
func scaleValue(raw *big.Int, decimals uint8) float64 {
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	result, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), divisor).Float64()
	return result
}
