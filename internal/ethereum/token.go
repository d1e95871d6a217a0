package ethereum

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

const erc20MetadataABI = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

// Defaults when a token contract does not implement the metadata calls.
const (
	DefaultDecimals = uint8(18)
	DefaultSymbol   = "UNKNOWN"
)

// MetadataResolver resolves ERC-20 metadata (decimals, symbol, name) via
// eth_call and caches it in memory. Metadata is effectively immutable, the
// TTL only bounds memory growth.
type MetadataResolver struct {
	client *Client
	logger *logger.Logger

	mu    sync.RWMutex
	cache map[string]cachedMetadata
	ttl   time.Duration
	nowFn func() time.Time

	abi abi.ABI
}

type cachedMetadata struct {
	info      models.TokenInfo
	expiresAt time.Time
}

// NewMetadataResolver creates a resolver with the given cache TTL.
func NewMetadataResolver(client *Client, ttl time.Duration, log *logger.Logger) *MetadataResolver {
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	if err != nil {
		// The ABI string is a compile-time constant
		panic(fmt.Sprintf("invalid ERC-20 metadata ABI: %v", err))
	}

	return &MetadataResolver{
		client: client,
		logger: log,
		cache:  make(map[string]cachedMetadata),
		ttl:    ttl,
		nowFn:  time.Now,
		abi:    parsed,
	}
}

// TokenMetadata returns the token's metadata, resolving it via RPC on first
// use. A token that does not answer the metadata calls gets 18 decimals and
// an UNKNOWN symbol rather than failing the caller's fetch.
func (r *MetadataResolver) TokenMetadata(ctx context.Context, token string) models.TokenInfo {
	key := strings.ToLower(token)

	r.mu.RLock()
	cached, exists := r.cache[key]
	r.mu.RUnlock()
	if exists && r.nowFn().Before(cached.expiresAt) {
		return cached.info
	}

	info := r.resolve(ctx, key)

	r.mu.Lock()
	r.cache[key] = cachedMetadata{info: info, expiresAt: r.nowFn().Add(r.ttl)}
	r.mu.Unlock()

	return info
}

func (r *MetadataResolver) resolve(ctx context.Context, token string) models.TokenInfo {
	info := models.TokenInfo{
		Address:  token,
		Decimals: DefaultDecimals,
		Symbol:   DefaultSymbol,
	}

	decimals, err := r.callUint8(ctx, token, "decimals")
	if err != nil {
		r.logger.Warn("Token %s decimals() call failed, assuming %d: %v", token, DefaultDecimals, err)
		return info
	}
	info.Decimals = decimals

	if symbol, err := r.callString(ctx, token, "symbol"); err == nil {
		info.Symbol = symbol
	} else {
		r.logger.Warn("Token %s symbol() call failed: %v", token, err)
	}

	if name, err := r.callString(ctx, token, "name"); err == nil {
		info.Name = name
	}

	return info
}

func (r *MetadataResolver) call(ctx context.Context, token, method string) ([]interface{}, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	addr := common.HexToAddress(token)
	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	values, err := r.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s result arity: %d", method, len(values))
	}
	return values, nil
}

func (r *MetadataResolver) callUint8(ctx context.Context, token, method string) (uint8, error) {
	values, err := r.call(ctx, token, method)
	if err != nil {
		return 0, err
	}
	v, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected %s result type %T", method, values[0])
	}
	return v, nil
}

func (r *MetadataResolver) callString(ctx context.Context, token, method string) (string, error) {
	values, err := r.call(ctx, token, method)
	if err != nil {
		return "", err
	}
	v, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s result type %T", method, values[0])
	}
	return v, nil
}
