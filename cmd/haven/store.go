package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/haven-org/haven/internal/config"
	"github.com/haven-org/haven/internal/db"
	"github.com/haven-org/haven/internal/settings"
	"github.com/haven-org/haven/internal/settings/mongostore"
	"github.com/haven-org/haven/internal/settings/rediscache"
)

// backend is an open settings store and the connections behind it.
type backend struct {
	store   settings.Store
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openStore builds the configured settings store, wrapped in the Redis cache
// when one is configured. SQL tables are migrated on open.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Database.Driver {
	case config.DriverMemory:
		b.store = settings.NewMemoryStore()

	case config.DriverSQLite, config.DriverMySQL:
		gormDB, err := db.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, fmt.Errorf("sql handle: %w", err)
		}
		b.closers = append(b.closers, sqlDB.Close)
		if err := db.AutoMigrate(gormDB); err != nil {
			b.Close()
			return nil, err
		}
		b.store = settings.NewSQLStore(gormDB)

	case config.DriverMongoDB:
		client, err := mongostore.Connect(ctx, cfg.Database.URI)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { return client.Disconnect(context.Background()) })
		store, err := mongostore.New(ctx, client.Database(cfg.Database.Name))
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = store

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		b.closers = append(b.closers, client.Close)
		b.store = rediscache.New(b.store, client, cfg.Cache.TTL, log)
		log.Info("Settings cache enabled", zap.String("addr", cfg.Cache.RedisAddr), zap.Duration("ttl", cfg.Cache.TTL))
	}
	return b, nil
}

// openFromConfig loads configPath and opens its store for one-shot commands.
func openFromConfig(ctx context.Context, configPath string) (*config.Config, *backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	b, err := openStore(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return cfg, b, nil
}
