// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/aristath/qpubinder/internal/config"
	"github.com/aristath/qpubinder/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the catalog inventory database when the sqlite
// source is selected and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if cfg.Catalog.Source != config.SourceSQLite {
		return container, nil
	}

	// catalog.db - QPU inventory
	catalogDB, err := database.New(database.Config{
		Path:    cfg.Catalog.DBPath,
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog database: %w", err)
	}

	if err := catalogDB.Migrate(); err != nil {
		catalogDB.Close()
		return nil, fmt.Errorf("failed to migrate catalog database: %w", err)
	}
	container.CatalogDB = catalogDB

	log.Info().Str("path", catalogDB.Path()).Msg("Catalog database initialized")
	return container, nil
}
