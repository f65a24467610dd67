package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverlay_ReplacesOnlyNamedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit_per_minute: 30\nquery_cache_ttl: 90s\n"), 0o600))

	cfg := &Config{Tunables: Tunables{
		RateLimitPerMinute: 120,
		RateLimitBurst:     20,
		QueryCacheTTL:      30 * time.Second,
		RequestTimeout:     29 * time.Second,
	}}
	require.NoError(t, cfg.applyOverlay(path))

	assert.Equal(t, 30, cfg.Tunables.RateLimitPerMinute)
	assert.Equal(t, 90*time.Second, cfg.Tunables.QueryCacheTTL)
	assert.Equal(t, 20, cfg.Tunables.RateLimitBurst, "untouched field keeps its value")
	assert.Equal(t, 29*time.Second, cfg.Tunables.RequestTimeout)
}

func TestApplyOverlay_BadFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit_per_minute: [oops"), 0o600))

	cfg := &Config{Tunables: Tunables{RateLimitPerMinute: 120}}
	assert.Error(t, cfg.applyOverlay(path))
}

func TestValidate_RejectsNonPositiveTunables(t *testing.T) {
	cfg := &Config{
		Environment: "development",
		Tunables:    Tunables{RateLimitPerMinute: 0, RequestTimeout: time.Second},
	}
	assert.Error(t, cfg.Validate())

	cfg.Tunables.RateLimitPerMinute = 60
	cfg.Tunables.RequestTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg.Tunables.RequestTimeout = time.Second
	assert.NoError(t, cfg.Validate())
}
