// Package config defines the top-level configuration for the sync service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SUISYNC_* environment
// variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Sync     SyncConfig     `toml:"sync"`
	Archive  ArchiveConfig  `toml:"archive"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig selects the target network and bounds RPC usage.
type LedgerConfig struct {
	// Network selects a well-known fullnode endpoint: "mainnet", "testnet",
	// "devnet", or "localnet". RPCURL overrides it when set.
	Network        string  `toml:"network"`
	RPCURL         string  `toml:"rpc_url"`
	RequestsPerSec float64 `toml:"requests_per_sec"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	FiatSymbol     string  `toml:"fiat_symbol"`
	TokenSymbol    string  `toml:"token_symbol"`
}

// networkRPCURLs maps the network selector to public fullnode endpoints.
var networkRPCURLs = map[string]string{
	"mainnet":  "https://fullnode.mainnet.sui.io:443",
	"testnet":  "https://fullnode.testnet.sui.io:443",
	"devnet":   "https://fullnode.devnet.sui.io:443",
	"localnet": "http://127.0.0.1:9000",
}

// ResolveRPCURL returns the endpoint to target: the explicit override when
// set, otherwise the well-known endpoint for the configured network.
func (l LedgerConfig) ResolveRPCURL() (string, error) {
	if strings.TrimSpace(l.RPCURL) != "" {
		return l.RPCURL, nil
	}
	if url, ok := networkRPCURLs[strings.ToLower(l.Network)]; ok {
		return url, nil
	}
	return "", fmt.Errorf("config: unknown ledger network %q and no rpc_url set", l.Network)
}

// Timeout returns the per-request RPC timeout.
func (l LedgerConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: without
// it the service loses the cross-process run lock and the digest fast path,
// both of which degrade safely.
type RedisConfig struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"pool_size"`
	MaxRetries     int    `toml:"max_retries"`
	TLSEnabled     bool   `toml:"tls_enabled"`
	DigestTTLHours int    `toml:"digest_ttl_hours"`
}

// TaskConfig configures one scheduler cadence.
type TaskConfig struct {
	Name  string `toml:"name"`
	Cron  string `toml:"cron"`
	Limit int    `toml:"limit"`
}

// SyncConfig holds the scheduler's cadence table and timezone.
type SyncConfig struct {
	Timezone string       `toml:"timezone"`
	Tasks    []TaskConfig `toml:"tasks"`
}

// ArchiveConfig controls the cold-storage archiver.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// S3Config holds object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the operator HTTP API configuration.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds alerting channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the built-in configuration: mainnet ledger, a
// once-a-minute near-real-time cadence with a small limit, and a
// six-hourly safety-net sweep with a large one.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Network:        "mainnet",
			RequestsPerSec: 5,
			TimeoutSeconds: 30,
			FiatSymbol:     "USDC",
			TokenSymbol:    "SUI",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "suisync",
			User:         "suisync",
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Sync: SyncConfig{
			Timezone: "UTC",
			Tasks: []TaskConfig{
				{Name: "realtime", Cron: "* * * * *", Limit: 20},
				{Name: "safety_net", Cron: "0 */6 * * *", Limit: 500},
			},
		},
		Archive: ArchiveConfig{
			RetentionDays: 180,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal problems. It runs once at
// startup, before any scheduled run is underway.
func (c *Config) Validate() error {
	if _, err := c.Ledger.ResolveRPCURL(); err != nil {
		return err
	}

	if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Database == "" || c.Database.User == "") {
		return fmt.Errorf("config: database requires either dsn or host/database/user")
	}

	if len(c.Sync.Tasks) == 0 {
		return fmt.Errorf("config: at least one sync task must be configured")
	}
	for _, t := range c.Sync.Tasks {
		if t.Name == "" {
			return fmt.Errorf("config: sync task with empty name")
		}
		if t.Limit <= 0 {
			return fmt.Errorf("config: sync task %q: limit must be positive", t.Name)
		}
		if strings.TrimSpace(t.Cron) == "" {
			return fmt.Errorf("config: sync task %q: cron is required", t.Name)
		}
	}

	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Sync.Timezone, err)
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: archive enabled but s3 bucket/region missing")
		}
		if c.Archive.RetentionDays <= 0 {
			return fmt.Errorf("config: archive retention_days must be positive")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}

	switch c.Mode {
	case "sync", "serve", "backfill", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	return nil
}

// Location returns the parsed cron timezone. Validate must have succeeded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
