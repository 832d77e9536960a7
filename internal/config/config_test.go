package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultLargeTransferThreshold, cfg.LargeTransferThreshold)
	assert.Equal(t, DefaultIntelCacheTTL, cfg.IntelCacheTTL)
	assert.Equal(t, DefaultPollInterval, cfg.MonitorPollInterval)
	assert.False(t, cfg.MonitorEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "CHAIN_ID", "137")
	setEnv(t, "SIMULATOR_URL", "http://sim.internal:9000")
	setEnv(t, "LARGE_TRANSFER_THRESHOLD", "250.5")
	setEnv(t, "INTEL_CACHE_TTL", "90s")
	setEnv(t, "MONITOR_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, int64(137), cfg.ChainID)
	assert.Equal(t, "http://sim.internal:9000", cfg.SimulatorURL)
	assert.Equal(t, 250.5, cfg.LargeTransferThreshold)
	assert.Equal(t, 90*time.Second, cfg.IntelCacheTTL)
	assert.True(t, cfg.MonitorEnabled)
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{
			ChainID:                1,
			RPCURL:                 DefaultRPCURL,
			LargeTransferThreshold: 1000,
			MonitorPollInterval:    15 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "non-positive chain id",
			mutate:  func(c *Config) { c.ChainID = 0 },
			wantErr: "CHAIN_ID must be positive",
		},
		{
			name:    "non-positive threshold",
			mutate:  func(c *Config) { c.LargeTransferThreshold = -1 },
			wantErr: "LARGE_TRANSFER_THRESHOLD must be positive",
		},
		{
			name: "monitor without rpc",
			mutate: func(c *Config) {
				c.MonitorEnabled = true
				c.RPCURL = ""
			},
			wantErr: "RPC_URL is required",
		},
		{
			name:    "poll interval too small",
			mutate:  func(c *Config) { c.MonitorPollInterval = 100 * time.Millisecond },
			wantErr: "MONITOR_POLL_INTERVAL",
		},
		{
			name: "production rejects loopback collaborator",
			mutate: func(c *Config) {
				c.Env = "production"
				c.SimulatorURL = "http://localhost:9000"
			},
			wantErr: "SIMULATOR_URL",
		},
		{
			name: "development allows loopback collaborator",
			mutate: func(c *Config) {
				c.Env = "development"
				c.SimulatorURL = "http://localhost:9000"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "3.25")
	setEnv(t, "TEST_INVALID_FLOAT", "nope")

	assert.Equal(t, 3.25, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 1.5, getEnvFloat("NONEXISTENT_VAR", 1.5))
	assert.Equal(t, 1.5, getEnvFloat("TEST_INVALID_FLOAT", 1.5))
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "2m30s")
	setEnv(t, "TEST_INVALID_DUR", "soon")

	assert.Equal(t, 150*time.Second, getEnvDuration("TEST_DUR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("NONEXISTENT_VAR", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_INVALID_DUR", time.Second))
}
