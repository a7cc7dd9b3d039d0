package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SUISYNC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SUISYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Network, "SUISYNC_LEDGER_NETWORK")
	setStr(&cfg.Ledger.RPCURL, "SUISYNC_LEDGER_RPC_URL")
	setFloat64(&cfg.Ledger.RequestsPerSec, "SUISYNC_LEDGER_REQUESTS_PER_SEC")
	setInt(&cfg.Ledger.TimeoutSeconds, "SUISYNC_LEDGER_TIMEOUT_SECONDS")
	setStr(&cfg.Ledger.FiatSymbol, "SUISYNC_LEDGER_FIAT_SYMBOL")
	setStr(&cfg.Ledger.TokenSymbol, "SUISYNC_LEDGER_TOKEN_SYMBOL")

	// ── Database ──
	setStr(&cfg.Database.DSN, "SUISYNC_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SUISYNC_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SUISYNC_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SUISYNC_DATABASE_NAME")
	setStr(&cfg.Database.User, "SUISYNC_DATABASE_USER")
	setStr(&cfg.Database.Password, "SUISYNC_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SUISYNC_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "SUISYNC_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SUISYNC_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SUISYNC_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SUISYNC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SUISYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUISYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUISYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SUISYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SUISYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SUISYNC_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.DigestTTLHours, "SUISYNC_REDIS_DIGEST_TTL_HOURS")

	// ── Sync ──
	setStr(&cfg.Sync.Timezone, "SUISYNC_SYNC_TIMEZONE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SUISYNC_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SUISYNC_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "SUISYNC_ARCHIVE_CRON")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SUISYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SUISYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "SUISYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SUISYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SUISYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SUISYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SUISYNC_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SUISYNC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SUISYNC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SUISYNC_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SUISYNC_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SUISYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SUISYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SUISYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SUISYNC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SUISYNC_MODE")
	setStr(&cfg.LogLevel, "SUISYNC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
