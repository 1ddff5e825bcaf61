package storage

import (
	"context"
	"fmt"

	"github.com/hanamilabs/admin-promoter-bot/internal/config"
	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
)

// Open returns the configured registry backend with its schema in place.
func Open(ctx context.Context, cfg config.Config) (ports.ChatRegistry, error) {
	switch cfg.RegistryBackend {
	case "json":
		return OpenJSONFile(cfg.RegistryJSONPath)
	case "mongo":
		store, err := OpenMongo(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case "sqlite", "":
		store, err := OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
	}
}
