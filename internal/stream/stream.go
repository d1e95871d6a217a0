package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tokenlens/internal/metrics"
	"tokenlens/internal/models"
	"tokenlens/pkg/logger"
)

// Hub fans live transfer events out to connected clients over WebSocket or
// SSE. Publishing never blocks: a client that cannot keep up loses events
// rather than stalling the watcher.
type Hub struct {
	clients    map[chan []byte]bool
	mu         sync.RWMutex
	buffer     []models.Transfer
	bufferSize int
	logger     *logger.Logger
}

// NewHub creates a hub. bufferSize bounds both the catch-up buffer and each
// client's channel.
func NewHub(bufferSize int, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[chan []byte]bool),
		buffer:     make([]models.Transfer, 0, bufferSize),
		bufferSize: bufferSize,
		logger:     log,
	}
}

// Publish sends a transfer to all connected clients. With no clients
// connected the event is buffered so the next subscriber catches up.
func (h *Hub) Publish(transfer models.Transfer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		if len(h.buffer) < h.bufferSize {
			h.buffer = append(h.buffer, transfer)
		}
		return
	}

	data, err := json.Marshal(transfer)
	if err != nil {
		h.logger.Error("Failed to marshal transfer for streaming: %v", err)
		return
	}

	for clientChan := range h.clients {
		select {
		case clientChan <- data:
		default:
			// Channel full - drop rather than block the publisher
			h.logger.Debug("Client channel full, dropping event")
		}
	}
}

// Subscribe registers a client channel, replays any buffered events into it,
// and returns the channel with its cleanup function.
func (h *Hub) Subscribe() (chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clientChan := make(chan []byte, h.bufferSize)

	// Replay the catch-up buffer into the fresh channel; its capacity covers
	// the buffer by construction
	for _, transfer := range h.buffer {
		data, err := json.Marshal(transfer)
		if err != nil {
			continue
		}
		clientChan <- data
	}
	h.buffer = h.buffer[:0]

	h.clients[clientChan] = true
	metrics.StreamClients.Set(float64(len(h.clients)))

	cleanup := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.clients, clientChan)
		close(clientChan)
		metrics.StreamClients.Set(float64(len(h.clients)))
	}

	return clientChan, cleanup
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBackgroundCleanup periodically trims the catch-up buffer while no
// clients are connected, bounding memory when the stream sits idle.
func (h *Hub) StartBackgroundCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			if len(h.clients) == 0 && len(h.buffer) > h.bufferSize/2 {
				h.buffer = h.buffer[len(h.buffer)-h.bufferSize/2:]
			}
			h.mu.Unlock()
		}
	}
}
