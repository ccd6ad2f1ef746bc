// Package config loads the process configuration from the environment,
// in the teacher's loadConfig style: one struct, defaulted fields,
// validated before the rest of the process starts using it. The
// command/menu surface is out of scope, so there is no flags/ini
// layer here — every setting is an environment variable per spec.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Network identifies which chain parameters the process should use.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkRegtest Network = "regtest"
)

const (
	defaultPollInterval    = 30 * time.Second
	defaultMaxWallets      = 20
	defaultSessionLRUCap   = 1000
	defaultBlockBatchSize  = 10
	defaultCommandRateWin  = 10 * time.Second
	defaultPortfolioWindow = 30 * time.Second
)

// Config holds every environment-derived setting the core needs.
type Config struct {
	TelegramBotToken string
	BotPassword      string
	RPCURL           string
	Network          Network
	PollInterval     time.Duration
	MaxWalletsPerUser int
	MempoolURL       string
	AdminChatID      int64
	MongoURI         string
	IndexerURL       string

	SessionLRUCap  int
	BlockBatchSize int

	MetricsAddr string
}

// Load reads and validates the configuration from the environment.
// A missing TELEGRAM_BOT_TOKEN or MONGODB_URI is fatal, matching the
// spec's error taxonomy: startup with no durable store or no chat
// transport cannot proceed.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		BotPassword:       os.Getenv("BOT_PASSWORD"),
		RPCURL:            os.Getenv("RPC_URL"),
		Network:           Network(envOr("NETWORK", string(NetworkMainnet))),
		MempoolURL:        os.Getenv("MEMPOOL_URL"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		IndexerURL:        os.Getenv("INDEXER_URL"),
		MaxWalletsPerUser: defaultMaxWallets,
		PollInterval:      defaultPollInterval,
		SessionLRUCap:     defaultSessionLRUCap,
		BlockBatchSize:    defaultBlockBatchSize,
		MetricsAddr:       envOr("METRICS_ADDR", ":9090"),
	}

	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL_MS: %w", err)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("MAX_WALLETS_PER_USER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_WALLETS_PER_USER: %w", err)
		}
		cfg.MaxWalletsPerUser = n
	}

	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_CHAT_ID: %w", err)
		}
		cfg.AdminChatID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("config: MONGODB_URI is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("config: RPC_URL is required")
	}
	if c.IndexerURL == "" {
		return fmt.Errorf("config: INDEXER_URL is required")
	}
	switch c.Network {
	case NetworkMainnet, NetworkTestnet, NetworkRegtest:
	default:
		return fmt.Errorf("config: unknown NETWORK %q", c.Network)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL_MS must be positive")
	}
	if c.MaxWalletsPerUser <= 0 {
		return fmt.Errorf("config: MAX_WALLETS_PER_USER must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
