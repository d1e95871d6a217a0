package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tokenlens/internal/hybrid"
	"tokenlens/internal/metrics"
	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

// Blocks per day at the post-merge 12s slot time, used to turn a day-based
// summary window into a block range.
const blocksPerDay = 7200

// TransferFetcher resolves transfers over a block range; satisfied by the
// hybrid fetcher.
type TransferFetcher interface {
	FetchTransfers(ctx context.Context, token, wallet string, fromBlock, toBlock *uint64) ([]models.Transfer, hybrid.FetchPlan, error)
}

// ChainReader resolves the current chain head.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// TransferHandler serves transfer queries and wallet summaries.
type TransferHandler struct {
	fetcher TransferFetcher
	chain   ChainReader
	logger  *logger.Logger
}

// NewTransferHandler creates a transfer handler.
func NewTransferHandler(fetcher TransferFetcher, chain ChainReader, log *logger.Logger) *TransferHandler {
	return &TransferHandler{fetcher: fetcher, chain: chain, logger: log}
}

// observe records the request counter and duration for one handler call.
func observe(c *gin.Context, start time.Time, status int) {
	metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(time.Since(start).Seconds())
}

func parseBlockParam(c *gin.Context, name string) (*uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &value, true
}

// GetTransfers handles GET /api/v1/transfers.
// Query params: token (required), wallet, from_block, to_block.
func (h *TransferHandler) GetTransfers(c *gin.Context) {
	start := time.Now()

	token := c.Query("token")
	if token == "" {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "token parameter is required"})
		return
	}

	fromBlock, ok := parseBlockParam(c, "from_block")
	if !ok {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from_block"})
		return
	}
	toBlock, ok := parseBlockParam(c, "to_block")
	if !ok {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to_block"})
		return
	}

	transfers, plan, err := h.fetcher.FetchTransfers(c.Request.Context(), token, c.Query("wallet"), fromBlock, toBlock)
	if err != nil {
		h.logger.Error("Transfer fetch failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"data":  transfers,
		"total": len(transfers),
		"plan":  plan,
	})
}

// GetWalletSummary handles GET /api/v1/wallets/:address/summary.
// Query params: token (required), days (default 30).
func (h *TransferHandler) GetWalletSummary(c *gin.Context) {
	start := time.Now()

	wallet := c.Param("address")
	token := c.Query("token")
	if token == "" {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "token parameter is required"})
		return
	}

	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			observe(c, start, http.StatusBadRequest)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}

	head, err := h.chain.LatestBlockNumber(c.Request.Context())
	if err != nil {
		h.logger.Error("Chain head lookup failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	span := uint64(days) * blocksPerDay
	var fromBlock uint64
	if head > span {
		fromBlock = head - span
	}

	transfers, plan, err := h.fetcher.FetchTransfers(c.Request.Context(), token, wallet, &fromBlock, &head)
	if err != nil {
		h.logger.Error("Transfer fetch failed: %v", err)
		observe(c, start, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"summary":     hybrid.Summarize(transfers, wallet),
		"period_days": days,
		"plan":        plan,
	})
}
