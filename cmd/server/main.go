package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livechat-service/internal/api/routes"
	"livechat-service/internal/config"
	"livechat-service/internal/database"
	"livechat-service/internal/service"
	"livechat-service/internal/store"
	"livechat-service/internal/websocket"
)

func main() {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	slog.Info("Starting live chat server", "storage_engine", cfg.Storage.Engine)

	engine, cleanup, err := newThreadStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "engine", cfg.Storage.Engine, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	queue := store.NewWriteQueue(engine, cfg.Storage.QueueDepth)

	var mirror *service.PresenceMirror
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		mirror = service.NewPresenceMirror(rdb)
	}

	hub := websocket.NewHub(queue, mirror)
	go hub.Run()

	// Warm the dashboard from persisted threads before accepting traffic.
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := hub.SeedPresence(seedCtx); err != nil {
		slog.Warn("Failed to seed presence from storage", "error", err)
	}
	seedCancel()

	router := routes.NewRouter(hub, cfg.JWT.Secret)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Drain dispatch before closing the write queue so in-flight frames
	// reach storage.
	hub.Drain()
	hub.Stop()
	queue.Close()

	slog.Info("Server stopped")
}

func newThreadStore(cfg *config.Config) (store.ThreadStore, func(), error) {
	noop := func() {}

	switch cfg.Storage.Engine {
	case config.EnginePostgres:
		db, err := database.NewPostgresConnection(cfg.Postgres.URI())
		if err != nil {
			return nil, noop, err
		}
		s, err := store.NewPostgresStore(db)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case config.EngineMongo:
		mdb, err := database.NewMongoConnection(cfg.Mongo.URI, cfg.Mongo.DBName)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mdb.Close(ctx); err != nil {
				slog.Warn("Failed to close mongodb connection", "error", err)
			}
		}
		return store.NewMongoStore(mdb.DB), cleanup, nil

	case config.EngineFile:
		s, err := store.NewFileStore(cfg.Storage.FileDir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}

	return nil, noop, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
}
