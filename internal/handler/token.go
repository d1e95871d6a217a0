package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tokenlens/internal/analytics"
	"tokenlens/pkg/logger"
)

// TokenHandler serves subgraph-backed token analytics.
type TokenHandler struct {
	analytics *analytics.Service
	logger    *logger.Logger
}

// NewTokenHandler creates a token analytics handler.
func NewTokenHandler(svc *analytics.Service, log *logger.Logger) *TokenHandler {
	return &TokenHandler{analytics: svc, logger: log}
}

// GetTokenInfo handles GET /api/v1/tokens/:address.
func (h *TokenHandler) GetTokenInfo(c *gin.Context) {
	start := time.Now()

	info, err := h.analytics.TokenInfo(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.logger.Error("Token info lookup failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, info)
}

// GetVolume handles GET /api/v1/tokens/:address/volume.
func (h *TokenHandler) GetVolume(c *gin.Context) {
	start := time.Now()

	volume, err := h.analytics.Volume24h(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.logger.Error("Volume lookup failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, volume)
}

// GetPriceHistory handles GET /api/v1/tokens/:address/price-history?days=.
func (h *TokenHandler) GetPriceHistory(c *gin.Context) {
	start := time.Now()

	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	points, err := h.analytics.PriceHistory(c.Request.Context(), c.Param("address"), days)
	if err != nil {
		h.logger.Error("Price history lookup failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"data": points, "days": days})
}

// GetTopTraders handles GET /api/v1/tokens/:address/top-traders?limit=.
func (h *TokenHandler) GetTopTraders(c *gin.Context) {
	start := time.Now()

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	traders, err := h.analytics.TopTraders(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		h.logger.Error("Top traders lookup failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"data": traders})
}

// GetTraderPnL handles GET /api/v1/tokens/:address/traders/:trader/pnl.
func (h *TokenHandler) GetTraderPnL(c *gin.Context) {
	start := time.Now()

	pnl, err := h.analytics.TraderPnL(c.Request.Context(), c.Param("trader"), c.Param("address"))
	if err != nil {
		h.logger.Error("Trader PnL lookup failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, pnl)
}
