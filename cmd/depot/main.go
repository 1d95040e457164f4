package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medequip/depot/internal/api"
	"github.com/medequip/depot/internal/auth"
	"github.com/medequip/depot/internal/cache"
	"github.com/medequip/depot/internal/config"
	"github.com/medequip/depot/internal/db"
	"github.com/medequip/depot/internal/queue"
	"github.com/medequip/depot/internal/relay"
	"github.com/medequip/depot/internal/service"
	"github.com/medequip/depot/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(os.Stdout, config.Usage)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n%s", err, config.Usage)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(os.Stdout, os.Stderr, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("depot exited", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}
	version, err := db.SchemaVersion(ctx, database)
	if err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath, "schema_version", version)

	password, err := bootstrapAdmin(ctx, database, cfg.AdminUser)
	if err != nil {
		return err
	}
	if password != "" {
		printAdminCredentials(os.Stdout, cfg.AdminUser, password)
	}

	secret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return err
	}
	issuer := auth.NewTokenIssuer(secret, cfg.TokenTTL)

	// Leave the interface nil when Redis is not configured.
	var recent service.RecentCache
	if cfg.CacheEnabled() {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer client.Close()
		rc := cache.NewRecentTransfers(client, cfg.CacheTTL)
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, recent transfers will be read from the database", "addr", cfg.RedisAddr, "error", err)
		}
		recent = rc
	}

	if cfg.RelayEnabled() {
		producer := queue.NewProducer(queue.ProducerConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Username: cfg.KafkaUsername,
			Password: cfg.KafkaPassword,
			TLS:      cfg.KafkaTLS,
		})
		defer producer.Close()

		// Deferred after producer.Close so the last flush ends first.
		r := relay.New(database, producer, cfg.RelayInterval, cfg.RelayBatch)
		defer startBackground(ctx, r.Run)()
		slog.Info("kafka producer ready", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	transfers := service.NewTransferService(database, recent)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(database, issuer, transfers)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}

	slog.Info("server stopped, closing database")
	return nil
}
