package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/httpapi"
	"retailpos/backend/internal/logging"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/sheet"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
	"retailpos/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.Environment, cfg.LogLevel)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.ReportTimezone).Msg("invalid report timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var closers []func()

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection failed")
		}
		closers = append(closers, func() { _ = pg.Close() })
		repo = pg
		log.Info().Msg("using postgres store")
	} else {
		repo = memory.NewSeeded()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store with seed data")
	}

	var reportCache cache.ReportCache = cache.NoopReportCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, report caching disabled")
		} else {
			closers = append(closers, func() { _ = redisCache.Close() })
			reportCache = redisCache
			log.Info().Msg("report cache enabled")
		}
	}

	var sheetClient *sheet.Client
	if cfg.SheetEndpoint != "" {
		sheetClient = sheet.New(cfg.SheetEndpoint, cfg.SheetAPIKey, loc)
		log.Info().Msg("spreadsheet mirror enabled")
	}

	svc := service.New(
		repo,
		reportCache,
		sheetClient,
		loc,
		time.Duration(cfg.ReportCacheTTLSeconds)*time.Second,
	)
	auth := httpapi.NewAuthManager(
		cfg.AuthSecret,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		repo,
	)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	for _, closeFn := range closers {
		closeFn()
	}
}

// validateSecurityConfig rejects startup configurations that would weaken the
// token signing key.
func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters, got %d", len(cfg.AuthSecret))
	}
	return nil
}
