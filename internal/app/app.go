// Package app wires configuration into the concrete service graph and runs
// the selected operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/vaultline/suisync/internal/blob/s3"
	"github.com/vaultline/suisync/internal/cache/redis"
	"github.com/vaultline/suisync/internal/config"
	"github.com/vaultline/suisync/internal/domain"
	"github.com/vaultline/suisync/internal/notify"
	"github.com/vaultline/suisync/internal/platform/sui"
	"github.com/vaultline/suisync/internal/server"
	"github.com/vaultline/suisync/internal/server/handler"
	"github.com/vaultline/suisync/internal/store/postgres"
	syncer "github.com/vaultline/suisync/internal/sync"
)

// App holds the fully wired service graph for one process.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	pg    *postgres.Client
	cache *redis.Client

	engine    *syncer.Engine
	scheduler *syncer.Scheduler
	archiver  *syncer.ArchiveRunner
	srv       *server.Server
}

// New builds the service graph from validated configuration. Optional
// subsystems (Redis, S3 archiver, notification channels, HTTP server) are
// wired only when enabled; everything downstream tolerates their absence.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("app: connecting postgres: %w", err)
	}
	a.pg = pg

	if cfg.Database.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: running migrations: %w", err)
		}
	}

	trades := postgres.NewTradeStore(pg.Pool())
	wallets := postgres.NewWalletStore(pg.Pool())

	var (
		locks   domain.LockManager
		digests domain.DigestCache
	)
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: connecting redis: %w", err)
		}
		a.cache = rc
		locks = redis.NewLockManager(rc)

		ttl := time.Duration(cfg.Redis.DigestTTLHours) * time.Hour
		digests = redis.NewDigestCache(rc, ttl)
	}

	rpcURL, err := cfg.Ledger.ResolveRPCURL()
	if err != nil {
		a.Close()
		return nil, err
	}
	ledger := sui.NewClient(rpcURL, cfg.Ledger.RequestsPerSec, cfg.Ledger.Timeout())

	a.engine = syncer.NewEngine(ledger, wallets, trades, digests, syncer.EngineConfig{
		FiatSymbol:  cfg.Ledger.FiatSymbol,
		TokenSymbol: cfg.Ledger.TokenSymbol,
	}, logger)

	var alerter syncer.Alerter
	if n := buildNotifier(cfg.Notify, logger); n != nil {
		alerter = n
	}

	tasks := make([]syncer.Task, 0, len(cfg.Sync.Tasks))
	for _, t := range cfg.Sync.Tasks {
		tasks = append(tasks, syncer.Task{Name: t.Name, Cron: t.Cron, Limit: t.Limit})
	}
	a.scheduler, err = syncer.NewScheduler(a.engine, tasks, cfg.Location(), locks, alerter, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	if cfg.Archive.Enabled {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: connecting object storage: %w", err)
		}
		archive := s3blob.NewArchiver(s3blob.NewWriter(blob), trades)
		a.archiver, err = syncer.NewArchiveRunner(archive, cfg.Archive.RetentionDays, cfg.Archive.Cron, cfg.Location(), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	if cfg.Server.Enabled {
		handlers := server.Handlers{
			Health: handler.NewHealthHandler(),
			Sync:   handler.NewSyncHandler(a.scheduler, a.engine, ctx, logger),
			Trades: handler.NewTradeHandler(trades, logger),
		}
		a.srv = server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
		}, handlers, logger)
	}

	return a, nil
}

// buildNotifier assembles the alert channels that have credentials
// configured. Returns nil when none do.
func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Events, logger)
}

// Close releases every connection the app holds. Safe to call on a
// partially built App.
func (a *App) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
}
