package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mocksync/config"
	"mocksync/pkg/logger"
	"mocksync/router"
	"mocksync/socket"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	cfg.Report()

	if cfg.JWTSecret == "" {
		logger.Sugar.Fatal("JWT_SECRET environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// With REDIS_ADDRESS set, several relay instances can serve one project.
	var broker socket.Broker
	if cfg.RedisAddress != "" {
		client, err := socket.ConnectRedis(ctx, cfg.RedisAddress)
		if err != nil {
			logger.Sugar.Fatalf("Could not connect to Redis: %v", err)
		}
		defer client.Close()
		broker = socket.NewRedisBroker(client)
		logger.Sugar.Infof("Fanning out between relays through Redis at %s", cfg.RedisAddress)
	}

	hub := socket.NewHub(broker)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Setup(hub, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Sugar.Infof("Relay listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Sugar.Errorf("Relay stopped: %v", err)
		os.Exit(1)
	}
	logger.Sugar.Info("Relay stopped")
}
