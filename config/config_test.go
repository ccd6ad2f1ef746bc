package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("MONGODB_URI", "mongodb://localhost/test")
	t.Setenv("RPC_URL", "http://rpc.local")
	t.Setenv("INDEXER_URL", "http://indexer.local")
}

func TestLoad_DefaultsAppliedWhenOptionalVarsAbsent(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, NetworkMainnet, cfg.Network)
	assert.Equal(t, defaultMaxWallets, cfg.MaxWalletsPerUser)
	assert.Equal(t, defaultPollInterval, cfg.PollInterval)
	assert.Equal(t, int64(0), cfg.AdminChatID)
}

func TestLoad_MissingBotTokenIsFatal(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("MONGODB_URI", "mongodb://localhost/test")
	t.Setenv("RPC_URL", "http://rpc.local")
	t.Setenv("INDEXER_URL", "http://indexer.local")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoad_InvalidNetworkRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NETWORK", "fantasynet")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoad_AdminChatIDParsed(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_CHAT_ID", "12345")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, int64(12345), cfg.AdminChatID)
}

func TestLoad_InvalidPollIntervalRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL_MS", "not-a-number")

	_, err := Load()

	assert.Error(t, err)
}
