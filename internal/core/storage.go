package core

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"officeflow/internal/collection"
	"officeflow/internal/infra/persistence/jsonfile"
	"officeflow/internal/infra/persistence/memory"
	"officeflow/internal/infra/persistence/postgres"
	"officeflow/internal/infra/persistence/sqlite"
)

// StorageConfig selects the collection backend.
type StorageConfig struct {
	Driver collection.Driver
	// Root is the data root used by the file driver and the default sqlite path.
	Root        string
	SQLitePath  string
	PostgresDSN string
	// Logger receives warnings from the file driver; nil discards them.
	Logger *zap.Logger
}

// OpenCollectionBackend returns the backend named by cfg.Driver; file is the default.
func OpenCollectionBackend(ctx context.Context, cfg StorageConfig) (collection.Backend, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = collection.DriverFile
	}
	switch driver {
	case collection.DriverFile:
		return jsonfile.NewStore(cfg.Root, jsonfile.WithLogger(cfg.Logger)), nil
	case collection.DriverMemory:
		return memory.NewStore(), nil
	case collection.DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Root, "officeflow.db")
		}
		return sqlite.NewStore(path)
	case collection.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
