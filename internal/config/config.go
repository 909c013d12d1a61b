// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string // debug, info, warn, error
	ListenAddr        string // Server listen address (e.g., ":8080")
	DatabasePath      string // SQLite database path
	MetricsListenAddr string // Metrics listener address (e.g., "localhost:9090")

	EthRPCURL   string // Required: Ethereum mainnet JSON-RPC endpoint
	LuksoRPCURL string // Required: LUKSO mainnet JSON-RPC endpoint
	EFPAPIURL   string // Optional: EFP API base URL (empty = public endpoint)
	MasterToken string // Optional: bootstrap token for creating the first admin token

	RPCTimeout   time.Duration // Per-call timeout for chain reads
	PostGrant    time.Duration // Verification validity for post/comment context
	BoardGrant   time.Duration // Verification validity for board context
	ChallengeTTL time.Duration // Signing window for issued challenges
}

// Load parses configuration from environment variables.
// Everything except the RPC endpoints has a sensible default.
func Load() (*Config, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	listenAddr := os.Getenv("LISTEN_ADDR")
	databasePath := os.Getenv("DATABASE_PATH")
	metricsListenAddr := os.Getenv("METRICS_LISTEN_ADDR")

	if logLevel == "" {
		logLevel = "info"
	}
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	if databasePath == "" {
		databasePath = "/data/gating.db"
	}
	if metricsListenAddr == "" {
		metricsListenAddr = "localhost:9090"
	}

	rpcTimeout, err := durationEnv("RPC_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	postGrant, err := durationEnv("POST_GRANT_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	boardGrant, err := durationEnv("BOARD_GRANT_TTL", 4*time.Hour)
	if err != nil {
		return nil, err
	}
	challengeTTL, err := durationEnv("CHALLENGE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:          logLevel,
		ListenAddr:        listenAddr,
		DatabasePath:      databasePath,
		MetricsListenAddr: metricsListenAddr,
		EthRPCURL:         os.Getenv("ETH_RPC_URL"),
		LuksoRPCURL:       os.Getenv("LUKSO_RPC_URL"),
		EFPAPIURL:         os.Getenv("EFP_API_URL"),
		MasterToken:       os.Getenv("MASTER_TOKEN"),
		RPCTimeout:        rpcTimeout,
		PostGrant:         postGrant,
		BoardGrant:        boardGrant,
		ChallengeTTL:      challengeTTL,
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.EthRPCURL == "" {
		return fmt.Errorf("ETH_RPC_URL environment variable is required")
	}
	if c.LuksoRPCURL == "" {
		return fmt.Errorf("LUKSO_RPC_URL environment variable is required")
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC_TIMEOUT must be positive")
	}
	if c.PostGrant <= 0 || c.BoardGrant <= 0 || c.ChallengeTTL <= 0 {
		return fmt.Errorf("grant and challenge durations must be positive")
	}
	return nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}
