// Package di wires the application: database, cache fabric, provider
// clients, the router, services, and the background jobs.
package di

import (
	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/database"
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

// Container holds every wired component. Handlers and jobs pull what they
// need from here; nothing else constructs services.
type Container struct {
	DB *database.DB

	Metrics *metrics.Metrics
	Fabric  *cache.Fabric
	Flights *flight.Group
	Gates   *ratelimit.Registry
	Market  *marketdata.Router

	Secrets *secrets.Box

	WatchlistRepo *watchlist.Repository
	AlertRepo     *watchlist.AlertRepository
	HoldingsRepo  *holdings.Repository
	SnapshotsRepo *snapshots.Repository
	SettingsRepo  *settings.Repository
	FXRepo        *fx.Repository
	GurusRepo     *gurus.Repository
	ScanRepo      *scan.Repository
	LedgerRepo    *notify.LedgerRepository

	Gate      *notify.Gate
	Watchlist *watchlist.Service
	Holdings  *holdings.Service
	Snapshots *snapshots.Service
	Settings  *settings.Service
	FXMonitor *fx.Monitor
	Gurus     *gurus.Service
	Scans     *scan.Service
	Digest    *scan.Digest
	Warmer    *prewarm.Warmer

	Backups     *reliability.BackupService
	Offsite     *reliability.OffsiteBackup // nil unless R2 is configured
	Maintenance *reliability.MaintenanceJob
}

// Close releases everything the container holds open, cache tier first so
// badger flushes before the process exits.
func (c *Container) Close() error {
	var firstErr error

	if c.Fabric != nil {
		if err := c.Fabric.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
