package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tokenlens/internal/models"
	"tokenlens/internal/repository"
	"tokenlens/pkg/logger"
)

// WatchlistHandler manages the set of wallet/token pairs the watcher polls.
type WatchlistHandler struct {
	watchlist repository.Watchlist
	logger    *logger.Logger
}

// NewWatchlistHandler creates a watchlist handler.
func NewWatchlistHandler(wl repository.Watchlist, log *logger.Logger) *WatchlistHandler {
	return &WatchlistHandler{watchlist: wl, logger: log}
}

type watchRequest struct {
	Address string `json:"address" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Label   string `json:"label"`
}

// List handles GET /api/v1/watchlist.
func (h *WatchlistHandler) List(c *gin.Context) {
	start := time.Now()

	entries, err := h.watchlist.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Watchlist read failed: %v", err)
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read watchlist"})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"data": entries, "total": len(entries)})
}

// Add handles POST /api/v1/watchlist.
func (h *WatchlistHandler) Add(c *gin.Context) {
	start := time.Now()

	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and token are required"})
		return
	}

	entry := models.WatchedWallet{
		Address:   req.Address,
		Token:     req.Token,
		Label:     req.Label,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.watchlist.Add(c.Request.Context(), entry); err != nil {
		if errors.Is(err, repository.ErrAlreadyWatched) {
			observe(c, start, http.StatusConflict)
			c.JSON(http.StatusConflict, gin.H{"error": "pair already watched"})
			return
		}
		h.logger.Error("Watchlist insert failed: %v", err)
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add to watchlist"})
		return
	}

	observe(c, start, http.StatusCreated)
	c.JSON(http.StatusCreated, gin.H{"status": "watching", "address": entry.Address, "token": entry.Token})
}

// Remove handles DELETE /api/v1/watchlist.
func (h *WatchlistHandler) Remove(c *gin.Context) {
	start := time.Now()

	address := c.Query("address")
	token := c.Query("token")
	if address == "" || token == "" {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and token query parameters are required"})
		return
	}

	removed, err := h.watchlist.Remove(c.Request.Context(), address, token)
	if err != nil {
		h.logger.Error("Watchlist delete failed: %v", err)
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove from watchlist"})
		return
	}
	if !removed {
		observe(c, start, http.StatusNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "pair not on watchlist"})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"status": "removed", "address": address, "token": token})
}
