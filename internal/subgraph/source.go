package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"tokenlens/internal/graph"
	"tokenlens/internal/metrics"
	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

// defaultPageSize is the page size for transfer queries. The Graph caps a
// single page at 1000 entities.
const defaultPageSize = 1000

const transfersQuery = `query Transfers($token: String!, $from: Int!, $to: Int!, $first: Int!, $skip: Int!) {
  transfers(
    first: $first,
    skip: $skip,
    orderBy: blockNumber,
    orderDirection: asc,
    where: { token: $token, blockNumber_gte: $from, blockNumber_lte: $to }
  ) {
    id
    from
    to
    value
    blockNumber
    timestamp
    transaction { id }
  }
}`

const walletTransfersQuery = `query WalletTransfers($token: String!, $wallet: String!, $from: Int!, $to: Int!, $first: Int!, $skip: Int!) {
  transfers(
    first: $first,
    skip: $skip,
    orderBy: blockNumber,
    orderDirection: asc,
    where: {
      token: $token,
      blockNumber_gte: $from,
      blockNumber_lte: $to,
      or: [{ from: $wallet }, { to: $wallet }]
    }
  ) {
    id
    from
    to
    value
    blockNumber
    timestamp
    transaction { id }
  }
}`

const metaQuery = `{ _meta { block { number } } }`

// Source reads transfers from a GraphQL subgraph indexer. Indexed data lags
// the chain head but answers wide historical ranges in one round trip, which
// is what the hybrid fetcher uses it for.
type Source struct {
	client   graph.TTLQuerier
	logger   *logger.Logger
	pageSize int
}

// NewSource creates a Source over the given query client.
func NewSource(client graph.TTLQuerier, log *logger.Logger) *Source {
	return &Source{
		client:   client,
		logger:   log,
		pageSize: defaultPageSize,
	}
}

type transferEntity struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber string `json:"blockNumber"`
	Timestamp   string `json:"timestamp"`
	Transaction struct {
		ID string `json:"id"`
	} `json:"transaction"`
}

type transfersPayload struct {
	Transfers []transferEntity `json:"transfers"`
}

// Transfers fetches transfers for one token over [fromBlock, toBlock],
// optionally restricted to a wallet as sender or recipient, paging through
// the subgraph until the range is exhausted. Historical block ranges are
// immutable, so pages cache under the historical TTL class.
func (s *Source) Transfers(ctx context.Context, token, wallet string, fromBlock, toBlock uint64, meta models.TokenInfo) ([]models.Transfer, error) {
	query := transfersQuery
	variables := map[string]any{
		"token": strings.ToLower(token),
		"from":  int64(fromBlock),
		"to":    int64(toBlock),
	}
	if wallet != "" {
		query = walletTransfersQuery
		variables["wallet"] = strings.ToLower(wallet)
	}

	transfers := make([]models.Transfer, 0)
	skip := 0
	for {
		variables["first"] = s.pageSize
		variables["skip"] = skip

		data, err := s.client.QueryWithTTL(ctx, query, variables, graph.QueryTypeHistorical)
		if err != nil {
			return nil, fmt.Errorf("subgraph transfers query failed at skip %d: %w", skip, err)
		}

		var payload transfersPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode transfers payload: %w", err)
		}

		for _, entity := range payload.Transfers {
			transfer, err := normalizeTransfer(entity, token, meta)
			if err != nil {
				s.logger.Warn("Skipping malformed subgraph transfer %s: %v", entity.ID, err)
				continue
			}
			transfers = append(transfers, transfer)
		}

		if len(payload.Transfers) < s.pageSize {
			break
		}
		skip += s.pageSize

		// The Graph refuses skips beyond 100k; a range this dense should be
		// narrowed by the caller
		if skip > 100000 {
			s.logger.Warn("Transfer pagination truncated at skip %d for token %s", skip, token)
			break
		}
	}

	metrics.TransfersFetchedTotal.WithLabelValues(models.SourceSubgraph).Add(float64(len(transfers)))
	return transfers, nil
}

// LatestBlock returns the most recent block the indexer has processed. The
// probe caches only briefly, under the current-price TTL class: the answer
// moves with every chain block.
func (s *Source) LatestBlock(ctx context.Context) (uint64, error) {
	data, err := s.client.QueryWithTTL(ctx, metaQuery, nil, graph.QueryTypeCurrentPrice)
	if err != nil {
		return 0, fmt.Errorf("subgraph _meta query failed: %w", err)
	}

	var payload struct {
		Meta struct {
			Block struct {
				Number uint64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("failed to decode _meta payload: %w", err)
	}

	return payload.Meta.Block.Number, nil
}

// normalizeTransfer converts a subgraph entity into the shared Transfer
// shape. The subgraph reports the value already scaled to token units; the
// raw integer is reconstructed with the resolved decimals. The log index is
// recovered from the entity ID suffix (the 0xTXHASH-N convention) so records
// seen by both sources dedup correctly; entities without one use 0.
func normalizeTransfer(entity transferEntity, token string, meta models.TokenInfo) (models.Transfer, error) {
	value, err := strconv.ParseFloat(entity.Value, 64)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("bad value %q: %w", entity.Value, err)
	}

	blockNumber, err := strconv.ParseUint(entity.BlockNumber, 10, 64)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("bad block number %q: %w", entity.BlockNumber, err)
	}

	unixSecs, err := strconv.ParseInt(entity.Timestamp, 10, 64)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("bad timestamp %q: %w", entity.Timestamp, err)
	}

	txHash := entity.Transaction.ID
	if txHash == "" {
		txHash = entity.ID
	}

	return models.Transfer{
		Token:       strings.ToLower(token),
		From:        strings.ToLower(entity.From),
		To:          strings.ToLower(entity.To),
		Value:       value,
		RawValue:    rawFromValue(value, meta.Decimals),
		Decimals:    meta.Decimals,
		Symbol:      meta.Symbol,
		BlockNumber: blockNumber,
		LogIndex:    logIndexFromID(entity.ID),
		TxHash:      txHash,
		Timestamp:   time.Unix(unixSecs, 0).UTC(),
		Source:      models.SourceSubgraph,
	}, nil
}

// logIndexFromID parses the trailing "-N" of a subgraph entity ID.
func logIndexFromID(id string) uint {
	idx := strings.LastIndex(id, "-")
	if idx < 0 || idx == len(id)-1 {
		return 0
	}
	n, err := strconv.ParseUint(id[idx+1:], 10, 32)
	if err != nil {
		return 0
	}
	return uint(n)
}

// rawFromValue reconstructs the integer amount from a scaled value. Only
// approximate beyond float64 precision, which matches what the indexer
// itself can report.
func rawFromValue(value float64, decimals uint8) string {
	scaled := new(big.Float).Mul(
		big.NewFloat(value),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	)
	raw, _ := scaled.Int(nil)
	return raw.String()
}
