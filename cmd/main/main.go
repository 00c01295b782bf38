package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-cache/src/cache"
	"stock-cache/src/config"
	"stock-cache/src/logger"
)

const shutdownTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf, conf.Name)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Setup Components
	db, err := setupDatabase(ctx, conf, appLogger)
	if err != nil {
		os.Exit(1)
	}
	defer db.Close()

	networkManager := setupNetwork(conf.MConfig)
	prov, err := setupProvider(conf.MConfig, networkManager, appLogger)
	if err != nil {
		os.Exit(1)
	}
	defer prov.Close()

	stockCache, err := cache.New(ctx, db, prov, conf.Cache, logger.NewLogger(conf, "StockCache"))
	if err != nil {
		appLogger.Critical("Failed to load instruments: %v", err)
	}

	// 5. Live feed
	if err := prov.Start(ctx); err != nil {
		appLogger.Critical("Failed to start provider %s: %v", prov.Name(), err)
	}

	// 6. Servers and publisher run until a signal arrives
	appLogger.Info("%s %s ready with provider %s (%d instruments)", conf.Name, conf.Version, prov.Name(), stockCache.InstrumentCount())
	if err := runServers(ctx, conf, stockCache, prov, appLogger); err != nil {
		appLogger.Error("Shutdown after error: %v", err)
		os.Exit(1)
	}
	appLogger.Info("Shutdown complete.")
}
