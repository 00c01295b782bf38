package main

import (
	"context"

	"stock-cache/src/cache"
	"stock-cache/src/config"
	"stock-cache/src/grpc_control"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/provider"
	"stock-cache/src/publisher"
	"stock-cache/src/server"

	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------

// runServers starts the HTTP API, the gRPC control server and the optional
// tick publisher, and stops them all when ctx ends or one of them fails.
func runServers(ctx context.Context, conf *config.Config, stockCache *cache.StockCache, prov *provider.Provider, appLogger *logger.Logger) error {
	api := server.NewAPIServer(conf.MConfig, stockCache, prov, prov.Name(), logger.NewLogger(conf, "APIServer"))
	control := grpc_control.NewServer(conf.MConfig,
		grpc_control.NewControlService(stockCache, prov, stockCache.Location, logger.NewLogger(conf, "ControlService")),
		logger.NewLogger(conf, "GrpcServer"))

	servers := []interfaces.IDataExchanger{api, control}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(srv.Start)
	}

	if conf.Publisher.Enabled {
		pub := publisher.NewTickPublisher(conf.Publisher, publisher.NewKafkaWriter(conf.Publisher), logger.NewLogger(conf, "Publisher"))
		g.Go(func() error {
			pub.Run(gctx)
			return nil
		})
		prov.Subscribe(pub.Symbols, pub)
		defer func() {
			prov.UnsubscribeAll(pub)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := pub.Close(shutdownCtx); err != nil {
				appLogger.Warning("Closing publisher: %v", err)
			}
		}()
		appLogger.Info("Publishing %d symbols to %s", len(pub.Symbols), conf.Publisher.Topic)
	}

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Stop(shutdownCtx); err != nil {
				appLogger.Warning("Stopping server: %v", err)
			}
		}
		return nil
	})

	return g.Wait()
}
