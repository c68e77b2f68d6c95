package storage

import (
	"context"
	"fmt"

	"BillWatch/internal/config"
	"BillWatch/internal/ports"
)

// DriverMongo selects the MongoDB-backed store.
const DriverMongo = "mongo"

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (ports.Store, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
		return OpenSQL(ctx, cfg.Driver, cfg.DSN)
	case DriverMongo:
		database := cfg.Database
		if database == "" {
			database = "billwatch"
		}
		return OpenMongo(ctx, cfg.DSN, database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
