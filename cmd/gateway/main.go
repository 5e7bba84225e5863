package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aman-churiwal/x402-gateway/internal/config"
	"github.com/aman-churiwal/x402-gateway/internal/logger"
	"github.com/aman-churiwal/x402-gateway/internal/server"
	"github.com/aman-churiwal/x402-gateway/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)
	defer zlog.Sync()

	var redis *storage.RedisClient
	if cfg.Redis.Enabled {
		redis, err = storage.NewRedis(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zlog.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redis.Close()
		zlog.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()))
	}

	var postgres *storage.Postgres
	if cfg.Postgres.Enabled {
		postgres, err = storage.NewPostgres(cfg.Postgres.DSN)
		if err != nil {
			zlog.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer postgres.Close()

		if err := postgres.AutoMigrate(); err != nil {
			zlog.Fatal("failed to run migrations", zap.Error(err))
		}
		zlog.Info("connected to postgres")
	}

	if redis == nil || postgres == nil {
		zlog.Warn("running with in-memory stores; state is lost on restart",
			zap.Bool("redis", redis != nil),
			zap.Bool("postgres", postgres != nil))
	}

	srv, err := server.New(cfg, zlog, redis, postgres)
	if err != nil {
		zlog.Fatal("failed to build server", zap.Error(err))
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			zlog.Error("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Fatal("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}
