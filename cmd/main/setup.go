package main

import (
	"context"
	"fmt"
	"strings"

	"stock-cache/src/config"
	"stock-cache/src/data_source/iex"
	"stock-cache/src/data_source/synthetic"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
	"stock-cache/src/network"
	"stock-cache/src/provider"
	"stock-cache/src/storage"
)

// -----------------------------------------------------------------------------

// setupDatabase opens the configured store and creates missing tables.
func setupDatabase(ctx context.Context, conf *config.Config, appLogger *logger.Logger) (interfaces.IDatabase, error) {
	var db *storage.SQLStore
	var err error

	switch conf.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(conf.PostgresDSN(), logger.NewLogger(conf, "PostgresDB"))
	default:
		db, err = storage.NewSQLiteDB(conf.Storage.DBPath, logger.NewLogger(conf, "SQLiteDB"))
	}
	if err != nil {
		appLogger.Error("Failed to init db: %v", err)
		return nil, err
	}
	db.BatchSize = conf.Cache.InsertBatch

	if err := db.Initialize(ctx); err != nil {
		appLogger.Error("Failed to migrate db: %v", err)
		db.Close()
		return nil, err
	}
	return db, nil
}

// -----------------------------------------------------------------------------

// setupNetwork initializes the network manager
func setupNetwork(cfg *models.MConfig) interfaces.INetworkManager {
	return network.NewAsyncNetworkManager(cfg, logger.NewLogger(cfg, "NetworkManager"))
}

// -----------------------------------------------------------------------------

// setupProvider picks the data source named in config.
func setupProvider(cfg *models.MConfig, networkManager interfaces.INetworkManager, appLogger *logger.Logger) (*provider.Provider, error) {
	var source interfaces.IDataSource

	switch strings.ToUpper(cfg.Provider.Name) {
	case iex.SourceName:
		source = iex.NewIEXSource(cfg, networkManager, logger.NewLogger(cfg, iex.SourceName))
	case synthetic.SourceName:
		source = synthetic.NewSyntheticSource(cfg.Provider, logger.NewLogger(cfg, synthetic.SourceName))
	default:
		appLogger.Error("Unknown provider %q", cfg.Provider.Name)
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}

	appLogger.Info("Using provider %s", source.Name())
	return provider.New(source, logger.NewLogger(cfg, "Provider")), nil
}
