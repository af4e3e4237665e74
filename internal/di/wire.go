package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/clients/edgar"
	"github.com/aristath/folio/internal/clients/feargreed"
	"github.com/aristath/folio/internal/clients/jpfin"
	"github.com/aristath/folio/internal/clients/telegram"
	"github.com/aristath/folio/internal/clients/twfin"
	"github.com/aristath/folio/internal/clients/yahoo"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/flight"
	"github.com/aristath/folio/internal/marketdata"
	"github.com/aristath/folio/internal/metrics"
	"github.com/aristath/folio/internal/modules/fx"
	"github.com/aristath/folio/internal/modules/gurus"
	"github.com/aristath/folio/internal/modules/holdings"
	"github.com/aristath/folio/internal/modules/scan"
	"github.com/aristath/folio/internal/modules/settings"
	"github.com/aristath/folio/internal/modules/snapshots"
	"github.com/aristath/folio/internal/modules/watchlist"
	"github.com/aristath/folio/internal/notify"
	"github.com/aristath/folio/internal/prewarm"
	"github.com/aristath/folio/internal/ratelimit"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/secrets"
)

// Wire builds the full container. Construction is ordered: database, cache
// plumbing, provider clients, the router, then services on top. A failure
// anywhere closes what was already opened.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	clock := domain.RealClock{}

	db, err := InitializeDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	c := &Container{DB: db}

	c.Metrics = metrics.New()
	c.Fabric = cache.New(cache.Options{
		DiskDir: cfg.DiskCacheDir,
		Clock:   clock,
		Metrics: c.Metrics,
		Logger:  log,
	})
	c.Flights = flight.New(c.Metrics)
	c.Gates = ratelimit.NewRegistry()

	box, err := secrets.New(cfg.EncryptionKey)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize secrets: %w", err)
	}
	c.Secrets = box

	// Provider clients. Unconfigured ones stay wired and report
	// IsConfigured() == false; the router skips them.
	yahooClient := yahoo.NewClient(log)
	jpfinClient := jpfin.NewClient(cfg.JPFinAPIKey, log)
	twfinClient := twfin.NewClient(cfg.TWFinAPIToken, log)
	edgarClient := edgar.NewClient(cfg.EdgarUserAgent, log)
	sentimentClient := feargreed.NewClient(log)
	telegramClient := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, log)

	c.Market = marketdata.NewRouter(marketdata.RouterOptions{
		Fabric:   c.Fabric,
		Flight:   c.Flights,
		Gates:    c.Gates,
		Metrics:  c.Metrics,
		Logger:   log,
		Clock:    clock,
		Primary:  yahooClient,
		JPFin:    jpfinClient,
		TWFin:    twfinClient,
		Filings:  edgarClient,
		External: sentimentClient,
	})

	conn := db.Conn()
	c.WatchlistRepo = watchlist.NewRepository(conn, clock, log)
	c.AlertRepo = watchlist.NewAlertRepository(conn, clock, log)
	c.HoldingsRepo = holdings.NewRepository(conn, clock, log)
	c.SnapshotsRepo = snapshots.NewRepository(conn, clock, log)
	c.SettingsRepo = settings.NewRepository(conn, clock, log)
	c.FXRepo = fx.NewRepository(conn, clock, log)
	c.GurusRepo = gurus.NewRepository(conn, clock, log)
	c.ScanRepo = scan.NewRepository(conn, clock, log)
	c.LedgerRepo = notify.NewLedgerRepository(conn, log)

	c.Settings = settings.NewService(c.SettingsRepo, box, log)

	c.Gate = notify.NewGate(notify.Options{
		Prefs:   c.Settings,
		Creds:   c.Settings,
		Ledger:  c.LedgerRepo,
		Channel: telegramClient,
		Rebind: func(token, chatID string) notify.Messenger {
			return telegramClient.WithCredentials(token, chatID)
		},
		Clock:   clock,
		Metrics: c.Metrics,
		Logger:  log,
	})

	c.Watchlist = watchlist.NewService(c.WatchlistRepo, c.AlertRepo, c.Market, clock, log)
	c.Holdings = holdings.NewService(c.HoldingsRepo, c.Market, clock, log)
	c.Snapshots = snapshots.NewService(c.SnapshotsRepo, c.Holdings, c.Market, cfg.BenchmarkTickers, cfg.DisplayCurrency, clock, log)
	c.FXMonitor = fx.NewMonitor(c.FXRepo, c.Market, c.Gate, clock, log)
	c.Gurus = gurus.NewService(c.GurusRepo, c.Market, c.Watchlist, clock, log)
	c.Scans = scan.NewService(c.ScanRepo, c.Market, c.WatchlistRepo, c.AlertRepo, c.Gate, clock, log)
	c.Digest = scan.NewDigest(c.Holdings, c.WatchlistRepo, c.Snapshots, c.Gurus, c.Market, c.Gate, cfg.DisplayCurrency, clock, log)
	c.Warmer = prewarm.NewWarmer(c.Market, c.WatchlistRepo, c.HoldingsRepo, c.Gurus, clock, log)

	backupDir := filepath.Join(cfg.DataDir, "backups")
	c.Backups = reliability.NewBackupService(conn, backupDir, clock, log)
	c.Maintenance = reliability.NewMaintenanceJob(conn, c.Backups, cfg.DataDir, clock, log)

	if cfg.R2Configured() {
		remote, err := reliability.NewR2Client(ctx, reliability.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
		}, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize off-site backups: %w", err)
		}
		c.Offsite = reliability.NewOffsiteBackup(remote, c.Backups, cfg.DataDir, clock, log)
	}

	log.Info().
		Bool("jpfin", jpfinClient.IsConfigured()).
		Bool("twfin", twfinClient.IsConfigured()).
		Bool("telegram", telegramClient.IsConfigured()).
		Bool("offsite", c.Offsite != nil).
		Msg("container wired")

	return c, nil
}
