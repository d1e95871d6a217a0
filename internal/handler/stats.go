package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tokenlens/internal/cache"
	"tokenlens/internal/graph"
	"tokenlens/pkg/logger"
)

// StatsSource exposes the query client's counters and health probe.
type StatsSource interface {
	Stats() graph.ClientStats
	CacheStats(ctx context.Context) cache.Stats
	ResetStats()
	HealthCheck(ctx context.Context) bool
	Endpoint() string
}

// StatsHandler serves query/cache statistics and the health endpoint.
type StatsHandler struct {
	source StatsSource
	chain  ChainReader
	logger *logger.Logger
}

// NewStatsHandler creates a stats handler. source may be nil when no
// subgraph endpoint is configured.
func NewStatsHandler(source StatsSource, chain ChainReader, log *logger.Logger) *StatsHandler {
	return &StatsHandler{source: source, chain: chain, logger: log}
}

// GetStats handles GET /api/v1/stats.
func (h *StatsHandler) GetStats(c *gin.Context) {
	start := time.Now()

	if h.source == nil {
		observe(c, start, http.StatusOK)
		c.JSON(http.StatusOK, gin.H{"subgraph": nil})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"subgraph": gin.H{
			"endpoint": h.source.Endpoint(),
			"queries":  h.source.Stats(),
			"cache":    h.source.CacheStats(c.Request.Context()),
		},
	})
}

// ResetStats handles POST /api/v1/stats/reset.
func (h *StatsHandler) ResetStats(c *gin.Context) {
	start := time.Now()

	if h.source != nil {
		h.source.ResetStats()
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// Health handles GET /health. The node probe fetches the chain head; the
// subgraph probe runs an introspection query when an endpoint is configured.
func (h *StatsHandler) Health(c *gin.Context) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	head, err := h.chain.LatestBlockNumber(ctx)
	if err != nil {
		h.logger.Error("Health probe failed against node: %v", err)
		status = http.StatusServiceUnavailable
		checks["node"] = gin.H{"healthy": false, "error": err.Error()}
	} else {
		checks["node"] = gin.H{"healthy": true, "head": head}
	}

	if h.source != nil {
		healthy := h.source.HealthCheck(ctx)
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		checks["subgraph"] = gin.H{"healthy": healthy}
	}

	observe(c, start, status)
	c.JSON(status, gin.H{"status": httpStatusWord(status), "checks": checks})
}

func httpStatusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
