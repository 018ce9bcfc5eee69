package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/infrastructure/config"
	"github.com/99minutos/identity-system/internal/infrastructure/db/memory"
	mongostore "github.com/99minutos/identity-system/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/identity-system/internal/infrastructure/db/redis"
	"github.com/99minutos/identity-system/internal/infrastructure/db/sqldb"
)

// userStore is what the services and the readiness probe need from a backend.
type userStore interface {
	ports.UserRepository
	ports.Pinger
}

// openStore connects the backend named by cfg.Store.Driver and prepares its
// schema. The returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (userStore, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Store.Driver {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store; users are lost on restart")
		return memory.NewUserRepository(), noop, nil

	case config.StoreMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		repo := mongostore.NewUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return repo, client.Disconnect, nil

	case config.StoreMySQL:
		db, err := sqldb.OpenMySQL(ctx, sqldb.MySQLConfig{
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			Database: cfg.MySQL.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := sqldb.Migrate(ctx, db, sqldb.DriverMySQL); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqldb.NewUserRepository(db, sqldb.DriverMySQL), func(context.Context) error { return db.Close() }, nil

	case config.StoreSQLite:
		db, err := sqldb.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqldb.Migrate(ctx, db, sqldb.DriverSQLite); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqldb.NewUserRepository(db, sqldb.DriverSQLite), func(context.Context) error { return db.Close() }, nil

	case config.StoreRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewUserRepository(client, cfg.Redis.KeyPrefix), func(context.Context) error { return client.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}
