package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"tokenlens/internal/graph"
	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

// Lookback windows for swap aggregation. Wider windows blow past the
// indexer's page limits for liquid tokens.
const (
	topTradersWindow = 7 * 24 * time.Hour
	traderPnLWindow  = 30 * 24 * time.Hour
	swapPageSize     = 1000
)

// Service answers token analytics queries against the subgraph. It depends on
// the TTLQuerier capability only, so a non-caching client works the same,
// just slower.
type Service struct {
	client graph.TTLQuerier
	logger *logger.Logger
	nowFn  func() time.Time
}

// NewService creates an analytics service over the given query client.
func NewService(client graph.TTLQuerier, log *logger.Logger) *Service {
	return &Service{
		client: client,
		logger: log,
		nowFn:  time.Now,
	}
}

const tokenInfoQuery = `query TokenInfo($token: ID!) {
  token(id: $token) {
    symbol
    name
    decimals
    derivedETH
  }
}`

// TokenInfo returns the token's subgraph metadata. Metadata barely moves, so
// it caches under the token-info TTL class.
func (s *Service) TokenInfo(ctx context.Context, token string) (models.TokenInfo, error) {
	data, err := s.client.QueryWithTTL(ctx, tokenInfoQuery, map[string]any{"token": strings.ToLower(token)}, graph.QueryTypeTokenInfo)
	if err != nil {
		return models.TokenInfo{}, fmt.Errorf("token info query failed: %w", err)
	}

	var payload struct {
		Token *struct {
			Symbol     string `json:"symbol"`
			Name       string `json:"name"`
			Decimals   string `json:"decimals"`
			DerivedETH string `json:"derivedETH"`
		} `json:"token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.TokenInfo{}, fmt.Errorf("failed to decode token info: %w", err)
	}
	if payload.Token == nil {
		return models.TokenInfo{}, fmt.Errorf("token %s not found in subgraph", token)
	}

	info := models.TokenInfo{
		Address: strings.ToLower(token),
		Symbol:  payload.Token.Symbol,
		Name:    payload.Token.Name,
	}
	if decimals, err := strconv.ParseUint(payload.Token.Decimals, 10, 8); err == nil {
		info.Decimals = uint8(decimals)
	}
	if derived, err := strconv.ParseFloat(payload.Token.DerivedETH, 64); err == nil {
		info.DerivedETH = derived
	}

	return info, nil
}

const volumeQuery = `query Volume($token: String!, $since: Int!) {
  swaps(where: { timestamp_gte: $since, token0: $token }) {
    amountUSD
  }
}`

// Volume24h sums swap volume in USD over the trailing 24 hours.
func (s *Service) Volume24h(ctx context.Context, token string) (models.TokenVolume, error) {
	since := s.nowFn().Add(-24 * time.Hour).Unix()

	data, err := s.client.QueryWithTTL(ctx, volumeQuery, map[string]any{
		"token": strings.ToLower(token),
		"since": since,
	}, graph.QueryTypeVolume)
	if err != nil {
		return models.TokenVolume{}, fmt.Errorf("volume query failed: %w", err)
	}

	var payload struct {
		Swaps []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"swaps"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.TokenVolume{}, fmt.Errorf("failed to decode volume payload: %w", err)
	}

	volume := models.TokenVolume{Token: strings.ToLower(token), SwapCount: len(payload.Swaps)}
	for _, swap := range payload.Swaps {
		amount, err := strconv.ParseFloat(swap.AmountUSD, 64)
		if err != nil {
			continue
		}
		volume.VolumeUSD += amount
	}

	return volume, nil
}

const priceHistoryQuery = `query PriceHistory($token: String!, $days: Int!, $since: Int!) {
  tokenDayDatas(
    first: $days,
    orderBy: date,
    orderDirection: desc,
    where: { token: $token, date_gte: $since }
  ) {
    date
    priceUSD
    volumeUSD
    open
    high
    low
    close
  }
}`

const currentPriceQuery = `query CurrentPrice($token: ID!) {
  token(id: $token) {
    tokenDayData(first: 1, orderBy: date, orderDirection: desc) {
      priceUSD
    }
  }
}`

// PriceHistory returns up to days daily OHLC candles, oldest first. When the
// subgraph has no day data for the token it falls back to a single point at
// the latest known price.
func (s *Service) PriceHistory(ctx context.Context, token string, days int) ([]models.PricePoint, error) {
	if days <= 0 {
		days = 7
	}
	since := s.nowFn().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	data, err := s.client.QueryWithTTL(ctx, priceHistoryQuery, map[string]any{
		"token": strings.ToLower(token),
		"days":  days,
		"since": since,
	}, graph.QueryTypeHistorical)
	if err != nil {
		return nil, fmt.Errorf("price history query failed: %w", err)
	}

	var payload struct {
		TokenDayDatas []struct {
			Date      int64  `json:"date"`
			PriceUSD  string `json:"priceUSD"`
			VolumeUSD string `json:"volumeUSD"`
			Open      string `json:"open"`
			High      string `json:"high"`
			Low       string `json:"low"`
			Close     string `json:"close"`
		} `json:"tokenDayDatas"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode price history: %w", err)
	}

	if len(payload.TokenDayDatas) == 0 {
		return s.currentPriceFallback(ctx, token)
	}

	points := make([]models.PricePoint, 0, len(payload.TokenDayDatas))
	for _, day := range payload.TokenDayDatas {
		points = append(points, models.PricePoint{
			Date:      time.Unix(day.Date, 0).UTC(),
			Open:      parseFloat(day.Open),
			High:      parseFloat(day.High),
			Low:       parseFloat(day.Low),
			Close:     parseFloat(day.Close),
			VolumeUSD: parseFloat(day.VolumeUSD),
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func (s *Service) currentPriceFallback(ctx context.Context, token string) ([]models.PricePoint, error) {
	data, err := s.client.QueryWithTTL(ctx, currentPriceQuery, map[string]any{"token": strings.ToLower(token)}, graph.QueryTypeCurrentPrice)
	if err != nil {
		return nil, fmt.Errorf("current price query failed: %w", err)
	}

	var payload struct {
		Token *struct {
			TokenDayData []struct {
				PriceUSD string `json:"priceUSD"`
			} `json:"tokenDayData"`
		} `json:"token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode current price: %w", err)
	}
	if payload.Token == nil || len(payload.Token.TokenDayData) == 0 {
		return nil, nil
	}

	price := parseFloat(payload.Token.TokenDayData[0].PriceUSD)
	return []models.PricePoint{{
		Date:  s.nowFn().UTC(),
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}}, nil
}

const swapsQuery = `query Swaps($token: String!, $since: Int!, $first: Int!, $skip: Int!) {
  swaps(
    first: $first,
    skip: $skip,
    orderBy: timestamp,
    orderDirection: desc,
    where: {
      timestamp_gte: $since,
      or: [{ token0: $token }, { token1: $token }]
    }
  ) {
    origin
    amountUSD
    amount0
    amount1
    token0 { id }
    token1 { id }
  }
}`

const traderSwapsQuery = `query TraderSwaps($trader: String!, $token: String!, $since: Int!, $first: Int!, $skip: Int!) {
  swaps(
    first: $first,
    skip: $skip,
    where: {
      origin: $trader,
      timestamp_gte: $since,
      or: [{ token0: $token }, { token1: $token }]
    }
  ) {
    origin
    amountUSD
    amount0
    amount1
    token0 { id }
    token1 { id }
  }
}`

type swapEntity struct {
	Origin    string `json:"origin"`
	AmountUSD string `json:"amountUSD"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Token0    struct {
		ID string `json:"id"`
	} `json:"token0"`
	Token1 struct {
		ID string `json:"id"`
	} `json:"token1"`
}

// isSell reports whether the swap moved the token out of the trader's hands:
// a positive amount on the token's side of the pair means the pool received
// it.
func (e *swapEntity) isSell(token string) bool {
	if strings.ToLower(e.Token0.ID) == token {
		return parseFloat(e.Amount0) > 0
	}
	return parseFloat(e.Amount1) > 0
}

func (s *Service) fetchSwaps(ctx context.Context, query string, variables map[string]any) ([]swapEntity, error) {
	swaps := make([]swapEntity, 0)
	skip := 0
	for {
		variables["first"] = swapPageSize
		variables["skip"] = skip

		data, err := s.client.QueryWithTTL(ctx, query, variables, graph.QueryTypeVolume)
		if err != nil {
			return nil, fmt.Errorf("swaps query failed at skip %d: %w", skip, err)
		}

		var payload struct {
			Swaps []swapEntity `json:"swaps"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode swaps payload: %w", err)
		}
		swaps = append(swaps, payload.Swaps...)

		if len(payload.Swaps) < swapPageSize {
			return swaps, nil
		}
		skip += swapPageSize
		if skip > 100000 {
			s.logger.Warn("Swap pagination truncated at skip %d", skip)
			return swaps, nil
		}
	}
}

// TopTraders aggregates the last week of swaps by origin address and returns
// the limit highest by total USD volume.
func (s *Service) TopTraders(ctx context.Context, token string, limit int) ([]models.TraderStats, error) {
	if limit <= 0 {
		limit = 10
	}
	token = strings.ToLower(token)
	since := s.nowFn().Add(-topTradersWindow).Unix()

	swaps, err := s.fetchSwaps(ctx, swapsQuery, map[string]any{"token": token, "since": since})
	if err != nil {
		return nil, err
	}

	byTrader := make(map[string]*models.TraderStats)
	for _, swap := range swaps {
		trader := strings.ToLower(swap.Origin)
		stats, ok := byTrader[trader]
		if !ok {
			stats = &models.TraderStats{Address: trader}
			byTrader[trader] = stats
		}

		volume := parseFloat(swap.AmountUSD)
		stats.VolumeUSD += volume
		stats.TradeCount++
		if swap.isSell(token) {
			stats.SellUSD += volume
		} else {
			stats.BuyUSD += volume
		}
	}

	traders := make([]models.TraderStats, 0, len(byTrader))
	for _, stats := range byTrader {
		traders = append(traders, *stats)
	}
	sort.Slice(traders, func(i, j int) bool { return traders[i].VolumeUSD > traders[j].VolumeUSD })

	if len(traders) > limit {
		traders = traders[:limit]
	}
	return traders, nil
}

// TraderPnL estimates realized profit for one trader on one token over the
// last 30 days: USD received for sells minus USD paid on buys. Open
// positions are not valued.
func (s *Service) TraderPnL(ctx context.Context, trader, token string) (models.TraderPnL, error) {
	trader = strings.ToLower(trader)
	token = strings.ToLower(token)
	since := s.nowFn().Add(-traderPnLWindow).Unix()

	swaps, err := s.fetchSwaps(ctx, traderSwapsQuery, map[string]any{
		"trader": trader,
		"token":  token,
		"since":  since,
	})
	if err != nil {
		return models.TraderPnL{}, err
	}

	pnl := models.TraderPnL{Trader: trader, Token: token, TradeCount: len(swaps)}
	for _, swap := range swaps {
		volume := parseFloat(swap.AmountUSD)
		if swap.isSell(token) {
			pnl.SoldUSD += volume
		} else {
			pnl.BoughtUSD += volume
		}
	}
	pnl.PnLUSD = pnl.SoldUSD - pnl.BoughtUSD

	return pnl, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
