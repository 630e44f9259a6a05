package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tapgate/tapgate/server/internal/config"
	dbpkg "github.com/tapgate/tapgate/server/internal/db"
	"github.com/tapgate/tapgate/server/internal/httpapi"
	"github.com/tapgate/tapgate/server/internal/metrics"
	"github.com/tapgate/tapgate/server/internal/tapgate/service"
	sqlitestore "github.com/tapgate/tapgate/server/internal/tapgate/store/sqlite"
)

func main() {
	cfg := config.FromEnv()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", "tapgate-server").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	conn, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		if err := dbpkg.SeedDev(ctx, conn, dbpkg.SeedDevOptions{ScanSecret: cfg.ScanSecret}); err != nil {
			logger.Warn().Err(err).Msg("dev seed failed")
		}
	}

	writer := dbpkg.NewWorker(conn)
	defer writer.Close()

	scanStore := sqlitestore.NewScanStore(conn, writer)

	// Services
	rec := metrics.NewProvider(cfg.MetricsEnabled)
	policy := service.FraudPolicy{
		Cooldown:   time.Duration(cfg.CooldownMinutes) * time.Minute,
		DailyLimit: cfg.DailyScanLimit,
	}
	scanSvc := service.NewScanService(scanStore, policy, cfg.ScanSecret, logger, rec)
	exportSvc := service.NewExportService(scanStore)

	pruner := service.NewScanPruner(scanStore, service.PrunerConfig{
		RetentionDays: cfg.ScanRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:        logger,
		Addr:          cfg.HTTPAddr,
		Env:           cfg.Env,
		AdminAPIKeys:  cfg.AdminAPIKeys,
		Metrics:       rec,
		ScanService:   scanSvc,
		ExportService: exportSvc,
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
