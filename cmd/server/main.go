package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/roomrelay/internal/app"
	"github.com/Tyrowin/roomrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := app.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	cfg := server.NewConfigFromEnv()
	logger := app.NewLogger(cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []server.RegistryOption
	if cfg.RedisAddr != "" {
		bus, err := server.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisDB, logger)
		if err != nil {
			logger.Error("redis.connect", "err", err)
			os.Exit(1)
		}
		defer func() { _ = bus.Close() }()
		opts = append(opts, server.WithBus(bus))
		logger.Info("redis.connected", "addr", cfg.RedisAddr)
	}

	srv := server.New(*cfg, logger, opts...)
	srv.StartRegistry()

	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())
	go func() {
		if err := srv.ListenAndServe(httpServer); err != nil {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	if err := srv.Shutdown(httpServer, shutdownTimeout); err != nil {
		logger.Error("server.shutdown", "err", err)
		os.Exit(1)
	}
}
