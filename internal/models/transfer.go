package models

import (
	"strconv"
	"time"
)

// Transfer sources. RPC log data is authoritative for recent blocks, the
// subgraph lags the chain head but covers deep history cheaply.
const (
	SourceRPC      = "rpc"
	SourceSubgraph = "subgraph"
)

// Transfer represents a normalized ERC-20 Transfer event from either source.
// Value is the human-readable amount (raw value scaled by token decimals);
// RawValue keeps the unscaled integer as a string for exact arithmetic.
type Transfer struct {
	Token       string    `json:"token"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       float64   `json:"value"`
	RawValue    string    `json:"raw_value"`
	Decimals    uint8     `json:"decimals"`
	Symbol      string    `json:"symbol"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	TxHash      string    `json:"tx_hash"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
}

// Key returns the deduplication key for cross-source merging. Subgraph
// records without a recoverable log index use index 0, so a transfer seen by
// both sources collapses onto one entry.
func (t *Transfer) Key() string {
	return t.TxHash + "_" + strconv.FormatUint(uint64(t.LogIndex), 10)
}

// WalletSummary aggregates one wallet's activity over a set of transfers.
// Counterparty addresses are counted case-insensitively.
type WalletSummary struct {
	Wallet               string    `json:"wallet"`
	TotalTransfers       int       `json:"total_transfers"`
	ReceivedCount        int       `json:"received_count"`
	SentCount            int       `json:"sent_count"`
	TotalReceived        float64   `json:"total_received"`
	TotalSent            float64   `json:"total_sent"`
	NetChange            float64   `json:"net_change"`
	UniqueCounterparties int       `json:"unique_counterparties"`
	FirstTransfer        time.Time `json:"first_transfer,omitempty"`
	LastTransfer         time.Time `json:"last_transfer,omitempty"`
}
