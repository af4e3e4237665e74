package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/modules/fx"
	"github.com/aristath/folio/internal/modules/gurus"
	"github.com/aristath/folio/internal/modules/holdings"
	"github.com/aristath/folio/internal/modules/scan"
	"github.com/aristath/folio/internal/modules/settings"
	"github.com/aristath/folio/internal/modules/snapshots"
	"github.com/aristath/folio/internal/modules/watchlist"
	"github.com/aristath/folio/internal/notify"
)

// InitializeDatabase opens folio.db and applies every module schema. All
// schemas use IF NOT EXISTS, so restarts are no-ops.
func InitializeDatabase(cfg *config.Config, log zerolog.Logger) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileStandard,
		Name:    "folio",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.InitSchemas(
		watchlist.Schema,
		holdings.Schema,
		snapshots.Schema,
		settings.Schema,
		notify.Schema,
		fx.Schema,
		gurus.Schema,
		scan.Schema,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schemas: %w", err)
	}

	log.Info().Str("path", cfg.DatabasePath).Msg("database initialized")
	return db, nil
}
