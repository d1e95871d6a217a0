package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenlens/internal/analytics"
	"tokenlens/internal/cache"
	"tokenlens/internal/config"
	"tokenlens/internal/ethereum"
	"tokenlens/internal/graph"
	"tokenlens/internal/handler"
	"tokenlens/internal/hybrid"
	"tokenlens/internal/repository"
	"tokenlens/internal/service"
	"tokenlens/internal/stream"
	"tokenlens/internal/subgraph"
	"tokenlens/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   logFilePath(cfg),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	// RPC layer: provider pool from YAML (preferred, supports failover) or a
	// single endpoint.
	var ethClient *ethereum.Client
	if cfg.Ethereum.RPCConfig != "" {
		providers, err := config.LoadProvidersFromYAML(cfg.Ethereum.RPCConfig, cfg.Ethereum.RPCURL)
		if err != nil {
			log.Error("Failed to load providers from config: %v", err)
			os.Exit(1)
		}
		ethClient = ethereum.NewClientFromPool(ethereum.NewProviderPool(providers))
		log.Info("Initialized provider pool with %d providers", len(providers))
	} else {
		ethClient, err = ethereum.NewClient(cfg.Ethereum.RPCURL)
		if err != nil {
			log.Error("Failed to connect to RPC endpoint: %v", err)
			os.Exit(1)
		}
		log.Info("Using single RPC provider")
	}
	defer ethClient.Close()

	logFetcher := ethereum.NewLogFetcher(ethClient, log)
	metadata := ethereum.NewMetadataResolver(ethClient, 24*time.Hour, log)

	// Subgraph query client, optional. Without an endpoint the hybrid fetcher
	// serves every range from RPC.
	var graphClient *graph.Client
	var indexer hybrid.IndexerSource
	var analyticsService *analytics.Service
	if cfg.Subgraph.Endpoint != "" {
		var store cache.Store
		if cfg.Subgraph.CacheEnabled {
			store, err = openCacheStore(cfg, log)
			if err != nil {
				log.Warn("Cache store unavailable, querying without cache: %v", err)
				store = nil
			}
		}

		graphClient = graph.NewClient(graph.Options{
			Endpoint:   cfg.Subgraph.Endpoint,
			RateLimit:  cfg.Subgraph.RateLimit,
			MaxRetries: cfg.Subgraph.MaxRetries,
			Timeout:    cfg.Subgraph.Timeout,
			DefaultTTL: cfg.Cache.DefaultTTL,
		}, store, log)

		indexer = subgraph.NewSource(graphClient, log)
		analyticsService = analytics.NewService(graphClient, log)
		log.Info("Subgraph client ready: %s", cfg.Subgraph.Endpoint)
	} else {
		log.Warn("No subgraph endpoint configured, analytics endpoints disabled")
	}

	fetcher := hybrid.NewFetcher(ethClient, metadata, logFetcher, indexer, hybrid.Config{
		MaxBlocks:    cfg.Hybrid.MaxBlocks,
		RecentWindow: cfg.Hybrid.RecentWindow,
	}, log)

	// Watchlist storage, optional.
	var watchlist repository.Watchlist
	if cfg.MongoDB.Enabled {
		mongoWatchlist, err := repository.NewMongoWatchlist(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			log.Error("Failed to connect to MongoDB: %v", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoWatchlist.Close(ctx); err != nil {
				log.Error("Failed to close watchlist store: %v", err)
			}
		}()
		watchlist = mongoWatchlist
	}

	var hub *stream.Hub
	if cfg.Streaming.Enabled {
		hub = stream.NewHub(cfg.Streaming.BufferSize, log)
		log.Info("Streaming enabled: type=%s, route=%s", cfg.Streaming.Type, cfg.Streaming.Route)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Watcher.Enabled {
		if watchlist == nil || hub == nil {
			log.Warn("Watcher requires MongoDB and streaming, not starting")
		} else {
			watcher := service.NewWatcher(ethClient, fetcher, watchlist, hub, cfg.Watcher.PollInterval, log)
			go func() {
				if err := watcher.Start(ctx); err != nil {
					log.Error("Watcher stopped: %v", err)
				}
			}()
			go hub.StartBackgroundCleanup(ctx, time.Minute)
		}
	}

	router := setupRouter(cfg, log, fetcher, ethClient, analyticsService, graphClient, watchlist, hub)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("Starting HTTP server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	log *logger.Logger,
	fetcher *hybrid.Fetcher,
	ethClient *ethereum.Client,
	analyticsService *analytics.Service,
	graphClient *graph.Client,
	watchlist repository.Watchlist,
	hub *stream.Hub,
) *gin.Engine {
	router := gin.Default()

	transferHandler := handler.NewTransferHandler(fetcher, ethClient, log)

	api := router.Group("/api/v1")
	{
		api.GET("/transfers", transferHandler.GetTransfers)
		api.GET("/wallets/:address/summary", transferHandler.GetWalletSummary)

		if analyticsService != nil {
			tokenHandler := handler.NewTokenHandler(analyticsService, log)
			api.GET("/tokens/:address", tokenHandler.GetTokenInfo)
			api.GET("/tokens/:address/volume", tokenHandler.GetVolume)
			api.GET("/tokens/:address/price-history", tokenHandler.GetPriceHistory)
			api.GET("/tokens/:address/top-traders", tokenHandler.GetTopTraders)
			api.GET("/tokens/:address/traders/:trader/pnl", tokenHandler.GetTraderPnL)
		}

		if watchlist != nil {
			watchlistHandler := handler.NewWatchlistHandler(watchlist, log)
			api.GET("/watchlist", watchlistHandler.List)
			api.POST("/watchlist", watchlistHandler.Add)
			api.DELETE("/watchlist", watchlistHandler.Remove)
		}

		statsHandler := newStatsHandler(graphClient, ethClient, log)
		api.GET("/stats", statsHandler.GetStats)
		api.POST("/stats/reset", statsHandler.ResetStats)
		router.GET("/health", statsHandler.Health)
	}

	if cfg.Streaming.Enabled && hub != nil {
		streamHandler := handler.NewStreamHandler(hub, log)
		if cfg.Streaming.Type == "sse" {
			router.GET(cfg.Streaming.Route, streamHandler.HandleSSE)
		} else {
			router.GET(cfg.Streaming.Route, streamHandler.HandleWebSocket)
		}
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// newStatsHandler keeps the nil-interface pitfall out of setupRouter: a nil
// *graph.Client must become a nil StatsSource, not a typed non-nil interface.
func newStatsHandler(graphClient *graph.Client, ethClient *ethereum.Client, log *logger.Logger) *handler.StatsHandler {
	var source handler.StatsSource
	if graphClient != nil {
		source = graphClient
	}
	return handler.NewStatsHandler(source, ethClient, log)
}

func openCacheStore(cfg *config.Config, log *logger.Logger) (cache.Store, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedisStore(cfg.Redis.URI, cfg.Cache.DefaultTTL, log)
	}
	return cache.NewDiskStore(cfg.Cache.Dir, cfg.Cache.DefaultTTL, cfg.Cache.MaxSizeMB, cfg.Cache.Compress, log)
}

func logFilePath(cfg *config.Config) string {
	if !cfg.Logging.ToFile {
		return ""
	}
	return cfg.Logging.FilePath
}
