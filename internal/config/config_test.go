package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "JOURNAL_MARKET_DATA_PATH", "JOURNAL_ORDERS_PATH", "BINANCE_SYMBOLS", "OKX_SYMBOLS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Journal.MarketDataPath, cfg.Journal.OrdersPath)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Binance.Symbols)
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, cfg.OKX.Symbols)
}

func TestLoadRejectsEqualJournalPaths(t *testing.T) {
	clearEnv(t, "JOURNAL_MARKET_DATA_PATH", "JOURNAL_ORDERS_PATH")
	os.Setenv("JOURNAL_MARKET_DATA_PATH", "/tmp/same.journal")
	os.Setenv("JOURNAL_ORDERS_PATH", "/tmp/same.journal")

	_, err := Load()
	require.Error(t, err)
}

func TestGetSliceEnvSplitsAndTrims(t *testing.T) {
	got := getSliceEnv("EVENTBUS_TEST_SLICE_UNSET", []string{"default"})
	assert.Equal(t, []string{"default"}, got)

	os.Setenv("EVENTBUS_TEST_SLICE_SET", "BTCUSDT, ETHUSDT ,SOLUSDT")
	defer os.Unsetenv("EVENTBUS_TEST_SLICE_SET")
	got = getSliceEnv("EVENTBUS_TEST_SLICE_SET", nil)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, got)
}
