// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/walletguard/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string (optional, intel lookups uncached if not set)

	// Blockchain settings
	RPCURL  string
	ChainID int64

	// Collaborators
	SimulatorURL   string // Transaction simulation service (optional, static pass-through if not set)
	SimulatorKey   string
	IntelURL       string // Remote threat intelligence API (optional)
	IntelKey       string
	IntelRulesFile string // YAML rules file layered over the builtin denylist (optional)
	ExplorerURL    string // Etherscan-compatible explorer for source verification (optional)
	ExplorerKey    string

	// Pipeline tunables
	LargeTransferThreshold float64       // Unit-normalized value above which a balance change is flagged
	IntelCacheTTL          time.Duration // How long cached intel verdicts stay fresh

	// On-chain monitor
	MonitorEnabled      bool
	MonitorPollInterval time.Duration
	MonitorStartBlock   uint64

	// Telemetry
	OTLPEndpoint string // OTLP gRPC collector address (optional, tracing disabled if not set)
}

const (
	DefaultRPCURL        = "https://eth.llamarpc.com"
	DefaultChainID       = 1 // Ethereum mainnet
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultIntelCacheTTL = 5 * time.Minute
	DefaultPollInterval  = 15 * time.Second

	// DefaultLargeTransferThreshold matches the engine's built-in default.
	DefaultLargeTransferThreshold = 1000.0
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:            os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:               os.Getenv("REDIS_URL"),
		RPCURL:                 getEnv("RPC_URL", DefaultRPCURL),
		ChainID:                getEnvInt64("CHAIN_ID", DefaultChainID),
		SimulatorURL:           os.Getenv("SIMULATOR_URL"),
		SimulatorKey:           os.Getenv("SIMULATOR_KEY"),
		IntelURL:               os.Getenv("INTEL_URL"),
		IntelKey:               os.Getenv("INTEL_KEY"),
		IntelRulesFile:         os.Getenv("INTEL_RULES_FILE"),
		ExplorerURL:            os.Getenv("EXPLORER_URL"),
		ExplorerKey:            os.Getenv("EXPLORER_KEY"),
		LargeTransferThreshold: getEnvFloat("LARGE_TRANSFER_THRESHOLD", DefaultLargeTransferThreshold),
		IntelCacheTTL:          getEnvDuration("INTEL_CACHE_TTL", DefaultIntelCacheTTL),
		MonitorEnabled:         getEnvBool("MONITOR_ENABLED", false),
		MonitorPollInterval:    getEnvDuration("MONITOR_POLL_INTERVAL", DefaultPollInterval),
		MonitorStartBlock:      uint64(getEnvInt64("MONITOR_START_BLOCK", 0)),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive")
	}
	if c.LargeTransferThreshold <= 0 {
		return fmt.Errorf("LARGE_TRANSFER_THRESHOLD must be positive")
	}
	if c.MonitorEnabled && c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required when MONITOR_ENABLED is set")
	}
	if c.MonitorPollInterval < time.Second {
		return fmt.Errorf("MONITOR_POLL_INTERVAL must be at least 1s")
	}

	// In production, collaborator URLs must not point at internal hosts.
	// Local addresses are normal in development.
	if c.IsProduction() {
		for name, endpoint := range map[string]string{
			"SIMULATOR_URL": c.SimulatorURL,
			"INTEL_URL":     c.IntelURL,
			"EXPLORER_URL":  c.ExplorerURL,
		} {
			if endpoint == "" {
				continue
			}
			if err := security.ValidateEndpointURL(endpoint); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
