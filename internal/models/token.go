package models

import "time"

// TokenInfo holds ERC-20 metadata resolved from the contract, with subgraph
// enrichment (derived ETH price, total supply) when the indexer knows the
// token.
type TokenInfo struct {
	Address     string  `json:"address"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Decimals    uint8   `json:"decimals"`
	TotalSupply string  `json:"total_supply,omitempty"`
	DerivedETH  float64 `json:"derived_eth,omitempty"`
	PriceUSD    float64 `json:"price_usd,omitempty"`
}

// PricePoint is one day of OHLC price data for a token.
type PricePoint struct {
	Date      time.Time `json:"date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	VolumeUSD float64   `json:"volume_usd"`
}

// TraderStats aggregates one origin address's swap activity for a token.
type TraderStats struct {
	Address    string  `json:"address"`
	TradeCount int     `json:"trade_count"`
	VolumeUSD  float64 `json:"volume_usd"`
	BuyUSD     float64 `json:"buy_usd"`
	SellUSD    float64 `json:"sell_usd"`
}

// TraderPnL is a rough realized profit estimate for one trader on one token:
// USD sold minus USD bought over the window. Unrealized holdings are ignored.
type TraderPnL struct {
	Trader     string  `json:"trader"`
	Token      string  `json:"token"`
	TradeCount int     `json:"trade_count"`
	BoughtUSD  float64 `json:"bought_usd"`
	SoldUSD    float64 `json:"sold_usd"`
	PnLUSD     float64 `json:"pnl_usd"`
}

// TokenVolume is the trailing 24h swap volume for a token.
type TokenVolume struct {
	Token     string  `json:"token"`
	VolumeUSD float64 `json:"volume_usd"`
	SwapCount int     `json:"swap_count"`
}
