package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"broadcast-console/internal/api/handlers"
	"broadcast-console/internal/config"
	"broadcast-console/internal/events"
	"broadcast-console/internal/infrastructure/backend"
	"broadcast-console/internal/infrastructure/mysql"
	"broadcast-console/internal/infrastructure/obs"
	redisinfra "broadcast-console/internal/infrastructure/redis"
	"broadcast-console/internal/overlay"
	"broadcast-console/internal/services"
	"broadcast-console/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	log := logger.New()
	log.Info("Starting Broadcast Console")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "config", cfg.GetConfigString())

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}(db)

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping MySQL", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to MySQL")

	// Stores and external collaborators
	settingsStore := redisinfra.NewSettingsStore(rdb)
	sessionStore := redisinfra.NewSessionStore(rdb)
	sessionLog := mysql.NewMySQLSessionLogRepository(db)
	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)

	// Transport, overlay, and services
	emitter := events.NewEmitter()
	transport := obs.NewClient(obs.Options{
		Address:        fmt.Sprintf("%s:%d", cfg.Streaming.Address, cfg.Streaming.Port),
		Password:       cfg.Streaming.Password,
		CallTimeout:    cfg.Streaming.CallTimeout,
		ReconnectDelay: cfg.Streaming.ReconnectDelay,
	}, emitter, log)

	engine := overlay.NewEngine(func(ctx context.Context, text string) error {
		return transport.SetTextProperties(ctx, cfg.Streaming.TextSource, text)
	}, clockwork.NewRealClock(), log)

	controller := services.NewStreamController(
		transport, engine, emitter, cfg.Streaming.TextSource, cfg.Streaming.OverlayInterval, log)
	reconciler := services.NewReconciler(
		controller, backendClient, settingsStore, sessionStore, sessionLog,
		emitter, cfg.Reconcile.PollSpec, log)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
	}))

	handlers.NewConsoleHandler(reconciler, controller, log).Register(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("Server stopped", "error", err)
		}
	}()
	log.Info("Console API listening", "host", cfg.Server.Host, "port", cfg.Server.Port)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reconciler.Disconnect(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down server", "error", err)
	}
}
