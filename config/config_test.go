package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketstream/config"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// go test -v --run TestLoadDefaults
func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  symbols: [btcusdt]\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"btcusdt"}, cfg.Pipeline.Symbols)
	require.Equal(t, 5*time.Second, cfg.Pipeline.Backoff.Min)
	require.Equal(t, 60*time.Second, cfg.Pipeline.Backoff.Max)
	require.Equal(t, 5, cfg.Pipeline.Backoff.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.Binance.WS.PingInterval)
	require.Equal(t, 10*time.Second, cfg.Binance.WS.GraceWindow)
	require.Equal(t, time.Second, cfg.Aggregator.FlushInterval)
	require.Equal(t, time.Hour, cfg.Cache.TTL.FundingRate)
	require.Equal(t, "restart", cfg.Pipeline.RestartPolicy)
}

// go test -v --run TestLoadDurationStrings
func TestLoadDurationStrings(t *testing.T) {
	path := writeConfig(t, `
aggregator:
  flush_interval: 10s
cache:
  backend: badger
  ttl:
    orderbook: 45s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.Aggregator.FlushInterval)
	require.Equal(t, 45*time.Second, cfg.Cache.TTL.OrderBook)
	require.Equal(t, "badger", cfg.Cache.Backend)
}

// go test -v --run TestLoadEnvOverride
func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  restart_policy: restart\n")
	t.Setenv("MARKETSTREAM_PIPELINE_RESTART_POLICY", "terminate")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "terminate", cfg.Pipeline.RestartPolicy)
}

// go test -v --run TestLoadRejectsInvalid
func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"policy":  "pipeline:\n  restart_policy: forever\n",
		"cache":   "cache:\n  backend: memcached\n",
		"durable": "durable:\n  backend: sqlite\n",
		"backoff": "pipeline:\n  backoff:\n    min: 10s\n    max: 1s\n",
		"flush":   "aggregator:\n  flush_interval: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

// go test -v --run TestLoadMissingFile
func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// go test -v --run TestPostgresDSN
func TestPostgresDSN(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "pw",
		DBName:   "marketstream",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}

	require.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=marketstream sslmode=disable TimeZone=UTC",
		cfg.DSN("dev"))
	require.Contains(t, cfg.AdminDSN("dev"), "dbname=postgres")
	require.Equal(t, "marketstream", cfg.DBName)
}
