package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"tokenlens/internal/metrics"
)

// ProviderPool manages multiple Ethereum RPC providers with automatic failover
// Implements weighted round-robin selection among healthy providers
type ProviderPool struct {
	providers []*Provider
	mu        sync.Mutex
	current   int // Round-robin index over healthy providers
}

// NewProviderPool creates a new provider pool from a list of providers
func NewProviderPool(providers []*Provider) *ProviderPool {
	// Sort providers by weight (descending) for optimal selection
	sorted := make([]*Provider, len(providers))
	copy(sorted, providers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})

	return &ProviderPool{providers: sorted}
}

// HealthyProviders returns all currently healthy providers
func (p *ProviderPool) HealthyProviders() []*Provider {
	healthy := make([]*Provider, 0, len(p.providers))
	for _, provider := range p.providers {
		if provider.IsHealthy() {
			healthy = append(healthy, provider)
		}
	}
	return healthy
}

// SelectProvider returns the next healthy provider using round-robin.
// Falls back to the highest-weight provider if none are healthy.
func (p *ProviderPool) SelectProvider() (*Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := p.HealthyProviders()
	if len(healthy) > 0 {
		selected := healthy[p.current%len(healthy)]
		p.current++
		return selected, nil
	}

	// All providers unhealthy - try any provider as last resort
	if len(p.providers) > 0 {
		return p.providers[0], fmt.Errorf("all providers unhealthy, using %s as fallback", p.providers[0].Name)
	}

	return nil, fmt.Errorf("no providers available")
}

// failover runs call against providers in round-robin order until one
// succeeds, recording per-provider metrics and circuit breaker outcomes.
// skip, when non-nil, lets the caller reject a provider before dialing it
// (e.g. its max log range is too small for the request).
func failover[T any](p *ProviderPool, ctx context.Context, method string, skip func(*Provider) error, call func(context.Context, *ethclient.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempted := make(map[string]bool)

	// Allow one retry of each provider
	maxAttempts := len(p.providers) * 2
	for attempt := 0; attempt < maxAttempts; attempt++ {
		provider, err := p.SelectProvider()
		if err != nil {
			return zero, fmt.Errorf("no healthy providers available: %w", err)
		}

		if skip != nil {
			if err := skip(provider); err != nil {
				attempted[provider.Name] = true
				lastErr = err
				continue
			}
		}

		// First pass skips providers that already failed
		if attempted[provider.Name] && attempt < len(p.providers) {
			continue
		}

		providerCtx, cancel := context.WithTimeout(ctx, provider.Timeout)
		start := time.Now()
		result, err := call(providerCtx, provider.Client())
		cancel()

		metrics.RPCRequestDuration.WithLabelValues(provider.Name, method).Observe(time.Since(start).Seconds())
		metrics.RPCRequestsTotal.WithLabelValues(provider.Name, method).Inc()

		if err == nil {
			provider.RecordSuccess()
			return result, nil
		}

		provider.RecordFailure(err)
		lastErr = fmt.Errorf("provider %s failed: %w", provider.Name, err)
		attempted[provider.Name] = true

		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// FilterLogs executes eth_getLogs with automatic failover across providers.
// Providers whose configured max range is smaller than the requested span are
// skipped. The span is to-from, the same exclusive convention the fetch
// planner sizes its windows with, so a window of exactly MaxRange blocks is
// still served.
func (p *ProviderPool) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	span := query.ToBlock.Uint64() - query.FromBlock.Uint64()

	skip := func(provider *Provider) error {
		if span > provider.MaxRange {
			return fmt.Errorf("provider %s max range (%d) exceeded by span (%d)", provider.Name, provider.MaxRange, span)
		}
		return nil
	}

	return failover(p, ctx, "FilterLogs", skip, func(ctx context.Context, client *ethclient.Client) ([]types.Log, error) {
		return client.FilterLogs(ctx, query)
	})
}

// HeaderByNumber executes eth_getBlockByNumber (header only) with automatic
// failover. A nil number fetches the chain head.
func (p *ProviderPool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return failover(p, ctx, "HeaderByNumber", nil, func(ctx context.Context, client *ethclient.Client) (*types.Header, error) {
		return client.HeaderByNumber(ctx, number)
	})
}

// CallContract executes eth_call with automatic failover.
func (p *ProviderPool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return failover(p, ctx, "CallContract", nil, func(ctx context.Context, client *ethclient.Client) ([]byte, error) {
		return client.CallContract(ctx, msg, blockNumber)
	})
}

// Close closes all provider connections
func (p *ProviderPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, provider := range p.providers {
		provider.Close()
	}
}
