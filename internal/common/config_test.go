package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 900, cfg.Chart.Width)
	assert.Equal(t, 400, cfg.Chart.Height)
	assert.Equal(t, 30*time.Second, cfg.DataService.GetTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Cache.GetTTL())
	assert.False(t, cfg.IsProduction())
}

func TestConfig_DurationFallbacks(t *testing.T) {
	ds := DataServiceConfig{Timeout: "bogus"}
	assert.Equal(t, 30*time.Second, ds.GetTimeout())

	br := BreakerConfig{OpenTimeout: ""}
	assert.Equal(t, 30*time.Second, br.GetOpenTimeout())

	ps := PriceStreamConfig{MinBackoff: "x", MaxBackoff: "y", PingInterval: "z"}
	assert.Equal(t, 500*time.Millisecond, ps.GetMinBackoff())
	assert.Equal(t, 30*time.Second, ps.GetMaxBackoff())
	assert.Equal(t, 30*time.Second, ps.GetPingInterval())

	cache := CacheConfig{TTL: "nope"}
	assert.Equal(t, FreshnessHistory, cache.GetTTL())

	cache.TTL = "90s"
	assert.Equal(t, 90*time.Second, cache.GetTTL())
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("SHARES_PORT", "9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestConfig_InvalidPortIgnored(t *testing.T) {
	t.Setenv("SHARES_PORT", "not-a-port")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestConfig_UpstreamEnvOverrides(t *testing.T) {
	t.Setenv("SHARES_DATASERVICE_URL", "http://data.example:9000/api")
	t.Setenv("SHARES_PRICESTREAM_URL", "wss://prices.example/ws")
	t.Setenv("SHARES_LOG_LEVEL", "debug")
	t.Setenv("SHARES_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://data.example:9000/api", cfg.DataService.BaseURL)
	assert.Equal(t, "wss://prices.example/ws", cfg.PriceStream.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.IsProduction())
}

func TestConfig_RedisAddrEnablesCache(t *testing.T) {
	t.Setenv("SHARES_REDIS_ADDR", "cache.internal:6380")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "cache.internal:6380", cfg.Cache.Addr)
}

func TestConfig_CacheEnabledOverridesAddr(t *testing.T) {
	t.Setenv("SHARES_REDIS_ADDR", "cache.internal:6380")
	t.Setenv("SHARES_CACHE_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadConfig_FileMerge(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 7000

[dataservice]
base_url = "http://base/api"
timeout = "5s"

[chart]
width = 1200
`), 0o644))
	require.NoError(t, os.WriteFile(local, []byte(`
[server]
port = 7001

[cache]
enabled = true
ttl = "10m"
`), 0o644))

	cfg, err := LoadConfig(base, local, filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "http://base/api", cfg.DataService.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.DataService.GetTimeout())
	assert.Equal(t, 1200, cfg.Chart.Width)
	assert.Equal(t, 400, cfg.Chart.Height, "unset keys keep defaults")
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Cache.GetTTL())
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadVersionFile(t *testing.T) {
	origVersion, origBuild, origCommit := Version, Build, GitCommit
	t.Cleanup(func() { Version, Build, GitCommit = origVersion, origBuild, origCommit })
	Version, Build, GitCommit = "dev", "unknown", "unknown"

	path := filepath.Join(t.TempDir(), ".version")
	require.NoError(t, os.WriteFile(path, []byte("# build info\nversion: 1.4.2\nbuild: 2026-10-01\ncommit: abc1234\n"), 0o644))

	loadVersionFile(path)
	assert.Equal(t, "1.4.2", Version)
	assert.Equal(t, "2026-10-01", Build)
	assert.Equal(t, "abc1234", GitCommit)
	assert.Contains(t, GetFullVersion(), "1.4.2")
}
