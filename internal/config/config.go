package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Ethereum  EthereumConfig
	Subgraph  SubgraphConfig
	Cache     CacheConfig
	Hybrid    HybridConfig
	Watcher   WatcherConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Streaming StreamingConfig
}

type ServerConfig struct {
	Port string
}

type EthereumConfig struct {
	RPCURL    string // Single RPC URL (legacy mode)
	RPCConfig string // Path to provider YAML config (preferred)
}

type SubgraphConfig struct {
	Endpoint     string
	RateLimit    float64 // requests per second
	MaxRetries   int
	Timeout      time.Duration
	CacheEnabled bool
}

type CacheConfig struct {
	Backend    string // "disk" or "redis"
	Dir        string
	DefaultTTL time.Duration
	MaxSizeMB  int
	Compress   bool
}

type HybridConfig struct {
	MaxBlocks    uint64 // largest range served by a single log query
	RecentWindow uint64 // blocks below head considered too fresh for the indexer
}

type WatcherConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Enabled  bool
}

type RedisConfig struct {
	URI string
}

type LoggingConfig struct {
	Level      string
	ToFile     bool
	FilePath   string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type StreamingConfig struct {
	Enabled    bool
	Type       string // "ws" or "sse"
	Route      string
	BufferSize int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional
	}

	cfg := &Config{}

	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.Ethereum.RPCURL = getEnv("ETH_RPC_URL", "")
	cfg.Ethereum.RPCConfig = getEnv("RPC_CONFIG", "")

	// Subgraph client configuration
	cfg.Subgraph.Endpoint = getEnv("SUBGRAPH_URL", "")
	rateLimit, err := strconv.ParseFloat(getEnv("SUBGRAPH_RATE_LIMIT", "1.0"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, fmt.Errorf("invalid SUBGRAPH_RATE_LIMIT: must be a positive number")
	}
	cfg.Subgraph.RateLimit = rateLimit

	maxRetries, err := strconv.Atoi(getEnv("SUBGRAPH_MAX_RETRIES", "3"))
	if err != nil || maxRetries < 1 {
		return nil, fmt.Errorf("invalid SUBGRAPH_MAX_RETRIES: must be a positive integer")
	}
	cfg.Subgraph.MaxRetries = maxRetries

	timeout, err := strconv.Atoi(getEnv("SUBGRAPH_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUBGRAPH_TIMEOUT: %w", err)
	}
	cfg.Subgraph.Timeout = time.Duration(timeout) * time.Second
	cfg.Subgraph.CacheEnabled = getEnvBool("SUBGRAPH_CACHE", true)

	// Cache store configuration
	cfg.Cache.Backend = getEnv("CACHE_BACKEND", "disk")
	if cfg.Cache.Backend != "disk" && cfg.Cache.Backend != "redis" {
		return nil, fmt.Errorf("invalid CACHE_BACKEND: %q (want \"disk\" or \"redis\")", cfg.Cache.Backend)
	}
	cfg.Cache.Dir = getEnv("CACHE_DIR", "cache")

	cacheTTL, err := strconv.Atoi(getEnv("CACHE_TTL", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	cfg.Cache.DefaultTTL = time.Duration(cacheTTL) * time.Second

	cacheMaxSize, err := strconv.Atoi(getEnv("CACHE_MAX_SIZE_MB", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_MAX_SIZE_MB: %w", err)
	}
	cfg.Cache.MaxSizeMB = cacheMaxSize
	cfg.Cache.Compress = getEnvBool("CACHE_COMPRESS", false)

	// Hybrid fetch configuration
	maxBlocks, err := strconv.ParseUint(getEnv("MAX_BLOCKS_PER_QUERY", "10000"), 10, 64)
	if err != nil || maxBlocks == 0 {
		return nil, fmt.Errorf("invalid MAX_BLOCKS_PER_QUERY: must be a positive integer")
	}
	cfg.Hybrid.MaxBlocks = maxBlocks

	recentWindow, err := strconv.ParseUint(getEnv("RECENT_BLOCK_WINDOW", "1000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RECENT_BLOCK_WINDOW: %w", err)
	}
	cfg.Hybrid.RecentWindow = recentWindow

	// Watcher (live transfer polling) configuration
	cfg.Watcher.Enabled = getEnvBool("ENABLE_WATCHER", false)
	pollInterval, err := strconv.Atoi(getEnv("WATCHER_POLL_INTERVAL", "12"))
	if err != nil {
		return nil, fmt.Errorf("invalid WATCHER_POLL_INTERVAL: %w", err)
	}
	cfg.Watcher.PollInterval = time.Duration(pollInterval) * time.Second

	cfg.MongoDB.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	cfg.MongoDB.Database = getEnv("MONGODB_DB", "tokenlens")
	cfg.MongoDB.Enabled = getEnvBool("USE_MONGO", false)

	cfg.Redis.URI = getEnv("REDIS_URI", "redis://localhost:6379")

	// Logging configuration
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.ToFile = getEnvBool("LOG_TO_FILE", false)
	cfg.Logging.FilePath = getEnv("LOG_FILE_PATH", "logs/app.log")
	cfg.Logging.Format = getEnv("LOG_FORMAT", "text") // "text" or "json"
	cfg.Logging.Compress = getEnvBool("LOG_COMPRESS", true)

	maxSizeMB, err := strconv.Atoi(getEnv("LOG_MAX_SIZE_MB", "100"))
	if err == nil {
		cfg.Logging.MaxSizeMB = maxSizeMB
	} else {
		cfg.Logging.MaxSizeMB = 100
	}

	maxBackups, err := strconv.Atoi(getEnv("LOG_MAX_BACKUPS", "7"))
	if err == nil {
		cfg.Logging.MaxBackups = maxBackups
	} else {
		cfg.Logging.MaxBackups = 7
	}

	maxAgeDays, err := strconv.Atoi(getEnv("LOG_MAX_AGE_DAYS", "30"))
	if err == nil {
		cfg.Logging.MaxAgeDays = maxAgeDays
	} else {
		cfg.Logging.MaxAgeDays = 30
	}

	// Streaming configuration
	cfg.Streaming.Enabled = getEnvBool("ENABLE_STREAM", false)
	cfg.Streaming.Type = getEnv("STREAM_TYPE", "ws") // "ws" or "sse"
	cfg.Streaming.Route = getEnv("STREAM_ROUTE", "/ws")
	bufferSize, err := strconv.Atoi(getEnv("STREAM_BUFFER", "1024"))
	if err == nil {
		cfg.Streaming.BufferSize = bufferSize
	} else {
		cfg.Streaming.BufferSize = 1024
	}

	// The watcher publishes through the stream hub
	if cfg.Watcher.Enabled && !cfg.Streaming.Enabled {
		cfg.Streaming.Enabled = true
	}

	// Either RPC_CONFIG (YAML) or ETH_RPC_URL (single provider) must be provided
	if cfg.Ethereum.RPCConfig == "" && cfg.Ethereum.RPCURL == "" {
		return nil, fmt.Errorf("either RPC_CONFIG or ETH_RPC_URL must be provided")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}
