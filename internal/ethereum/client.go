package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps either a single ethclient or a ProviderPool behind one call
// surface. Pool mode adds failover and per-provider circuit breaking; single
// mode keeps local development down to one URL.
type Client struct {
	client *ethclient.Client
	pool   *ProviderPool
}

// NewClient creates a client from a single RPC URL.
// For production, use NewClientFromPool instead.
func NewClient(rpcURL string) (*Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	return &Client{client: client}, nil
}

// NewClientFromPool creates a client backed by a provider pool.
func NewClientFromPool(pool *ProviderPool) *Client {
	return &Client{pool: pool}
}

// LatestBlockNumber returns the current chain head.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// HeaderByNumber fetches a block header; nil means the chain head.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if c.pool != nil {
		return c.pool.HeaderByNumber(ctx, number)
	}
	if c.client == nil {
		return nil, fmt.Errorf("no client or pool available")
	}
	return c.client.HeaderByNumber(ctx, number)
}

// FilterLogs executes eth_getLogs.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	if c.pool != nil {
		return c.pool.FilterLogs(ctx, query)
	}
	if c.client == nil {
		return nil, fmt.Errorf("no client or pool available")
	}
	return c.client.FilterLogs(ctx, query)
}

// CallContract executes eth_call against the given block (nil for latest).
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c.pool != nil {
		return c.pool.CallContract(ctx, msg, blockNumber)
	}
	if c.client == nil {
		return nil, fmt.Errorf("no client or pool available")
	}
	return c.client.CallContract(ctx, msg, blockNumber)
}

// Pool returns the provider pool, nil in single-client mode.
func (c *Client) Pool() *ProviderPool {
	return c.pool
}

// Close closes all connections.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
