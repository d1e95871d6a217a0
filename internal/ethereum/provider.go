package ethereum

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"tokenlens/internal/metrics"
)

// ProviderState represents the health state of an RPC provider
type ProviderState int

const (
	StateHealthy ProviderState = iota
	StateUnhealthy
	StateHalfOpen // Testing if provider recovered
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "half_open"
	}
}

// Provider represents a single Ethereum RPC endpoint with health tracking
type Provider struct {
	Name     string
	URL      string
	Weight   int
	MaxRange uint64 // Maximum block span (to - from) for eth_getLogs
	Timeout  time.Duration

	client *ethclient.Client

	// Circuit breaker state
	mu              sync.Mutex
	state           ProviderState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastSuccessTime time.Time

	// Circuit breaker config
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	halfOpenMaxCalls int
	halfOpenCalls    int
}

// NewProvider creates a new provider instance
func NewProvider(name, url string, weight int, maxRange uint64, timeout time.Duration, cbConfig CircuitBreakerConfig) (*Provider, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to provider %s: %w", name, err)
	}

	return &Provider{
		Name:             name,
		URL:              url,
		Weight:           weight,
		MaxRange:         maxRange,
		Timeout:          timeout,
		client:           client,
		state:            StateHealthy,
		failureThreshold: cbConfig.FailureThreshold,
		successThreshold: cbConfig.SuccessThreshold,
		timeout:          cbConfig.Timeout,
		halfOpenMaxCalls: cbConfig.HalfOpenMaxCalls,
	}, nil
}

// IsHealthy reports whether the provider may receive a call. An unhealthy
// provider transitions to half-open once its cooldown passes; half-open
// providers admit a bounded number of probe calls.
func (p *Provider) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateHealthy:
		return true
	case StateUnhealthy:
		if time.Since(p.lastFailureTime) > p.timeout {
			p.state = StateHalfOpen
			p.halfOpenCalls = 0
			p.successCount = 0
			return true
		}
		return false
	default:
		return p.halfOpenCalls < p.halfOpenMaxCalls
	}
}

// RecordSuccess marks a successful call and updates circuit breaker state
func (p *Provider) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastSuccessTime = time.Now()
	p.successCount++
	p.failureCount = 0

	if p.state == StateHalfOpen {
		p.halfOpenCalls++
		if p.successCount >= p.successThreshold {
			p.state = StateHealthy
			p.halfOpenCalls = 0
			p.successCount = 0
		}
	}
}

// RecordFailure marks a failed call and updates circuit breaker state
func (p *Provider) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastFailureTime = time.Now()
	p.failureCount++
	p.successCount = 0

	metrics.RPCErrorsTotal.WithLabelValues(p.Name, classifyRPCError(err)).Inc()

	if p.state == StateHalfOpen {
		// Any failure while probing reopens the breaker
		p.state = StateUnhealthy
		p.halfOpenCalls = 0
	} else if p.failureCount >= p.failureThreshold {
		p.state = StateUnhealthy
	}
}

// State returns the current circuit breaker state.
func (p *Provider) State() ProviderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Client returns the ethclient for this provider
func (p *Provider) Client() *ethclient.Client {
	return p.client
}

// Close closes the provider's client connection
func (p *Provider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// classifyRPCError buckets an error into a coarse category so the metrics
// label set stays bounded.
func classifyRPCError(err error) string {
	if err == nil {
		return "ok"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return "rate_limited"
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503"):
		return "server_error"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "eof"):
		return "network_error"
	default:
		return "client_error"
	}
}

// CircuitBreakerConfig holds circuit breaker parameters
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}
