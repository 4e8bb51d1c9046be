package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/complia/complia/pkg/api"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/config"
	"github.com/complia/complia/pkg/llm"
	"github.com/complia/complia/pkg/observability"
	"github.com/complia/complia/pkg/service"
	"github.com/complia/complia/pkg/storage"
	"github.com/complia/complia/pkg/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." && cfg.DatabasePath != ":memory:" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	objects, err := storage.NewStoreFromEnv(ctx)
	if err != nil {
		return err
	}

	recorder := audit.NewRecorder(logger)
	if cfg.AuditArchiveDSN != "" {
		archive, err := audit.OpenPostgresArchive(ctx, cfg.AuditArchiveDSN)
		if err != nil {
			return err
		}
		defer archive.Close()
		recorder = recorder.WithArchive(archive)
		logger.Info("audit archive enabled")
	}

	var client llm.Client
	if cfg.OpenAIAPIKey != "" {
		client = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		logger.Info("llm drafting enabled", slog.String("model", cfg.OpenAIModel))
	}

	tokens := auth.NewHMACIssuer([]byte(cfg.JWTSecret), cfg.TokenIssuer)

	var limiter auth.LimiterStore
	if cfg.RedisAddr != "" {
		limiter = auth.NewRedisLimiterStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		logger.Info("redis rate limiter enabled", slog.String("addr", cfg.RedisAddr))
	} else {
		limiter = auth.NewMemoryLimiterStore()
	}

	reg := service.NewRegistry(service.Deps{
		DB:       db,
		Recorder: recorder,
		Storage:  objects,
		Drafter:  llm.NewDrafter(client),
		Hasher:   auth.BcryptHasher{},
		Tokens:   tokens,
		Logger:   logger,
	})

	handler := api.NewHandler(api.Options{
		Registry:       reg,
		DB:             db,
		Tokens:         tokens,
		Limiter:        limiter,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	if obsCfg.Enabled {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return err
	}
	handler = obs.HTTPMiddleware(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	return obs.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
