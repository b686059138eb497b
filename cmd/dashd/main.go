package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/hashyield/dash/internal/activity"
	"github.com/hashyield/dash/internal/api"
	"github.com/hashyield/dash/internal/config"
	"github.com/hashyield/dash/internal/database"
	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/events"
	"github.com/hashyield/dash/internal/export"
	"github.com/hashyield/dash/internal/mirror"
	"github.com/hashyield/dash/internal/orchestrator"
	"github.com/hashyield/dash/internal/position"
	"github.com/hashyield/dash/internal/rates"
	"github.com/hashyield/dash/internal/signer"
	"github.com/hashyield/dash/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	app := &cli.App{
		Name:  "dashd",
		Usage: "custodial wallet dashboard service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the dashboard HTTP service and background workers",
				Action: runServe,
			},
			{
				Name:   "report",
				Usage:  "build the instrument health report once and exit",
				Action: runReport,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	if cfg.SignerURL == "" {
		return errors.New("SIGNER_URL is required")
	}

	pool, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	mirrorClient := mirror.NewClient(cfg.MirrorURL, cfg.MirrorRetryMax, cfg.MirrorRetryBaseDelay, cfg.MirrorRateLimit)
	signerClient := signer.NewClient(cfg.SignerURL, cfg.SignerTimeout)
	bus := events.NewBus()

	var ratesRepo rates.Repository
	var activitySvc *activity.Service
	if pool != nil {
		ratesRepo = rates.NewPgRepository(pool)
		activitySvc = activity.NewService(activity.NewPgRepository(pool))
	}
	ratesSvc := rates.NewService(mirrorClient, ratesRepo, cfg.RateStaleThreshold)

	positionSvc := position.NewService(mirrorClient, ratesSvc, domain.InstrumentRegistry)
	positionCache := position.NewCache(positionSvc, cfg.CacheTTL, bus)
	defer positionCache.Close()

	var recorder orchestrator.ActivityRecorder
	if activitySvc != nil {
		recorder = activitySvc
	}
	orchestratorSvc := orchestrator.NewService(signerClient, mirrorClient, bus, recorder, cfg.ConfirmInterval, cfg.ConfirmTimeout)

	exportSvc := export.NewService(mirrorClient, ratesSvc, reportWriters(ctx, cfg)...)

	aprWorker := worker.NewAprWorker(ratesSvc, bus, cfg.AprWorkerInterval)
	go aprWorker.Run(ctx)

	reportWorker := worker.NewReportWorker(exportSvc, cfg.ReportWorkerInterval)
	go reportWorker.Run(ctx)

	var activityLister api.ActivityLister
	if activitySvc != nil {
		activityLister = activitySvc
	}
	srv := api.NewServer(cfg.HTTPPort, api.ServerDeps{
		Positions:  positionCache,
		Actions:    orchestratorSvc,
		Activities: activityLister,
		Recipients: mirrorClient,
		Health:     exportSvc,
		Bus:        bus,
		Debounce:   cfg.ResolveDebounce,
	})

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func runReport(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	pool, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	mirrorClient := mirror.NewClient(cfg.MirrorURL, cfg.MirrorRetryMax, cfg.MirrorRetryBaseDelay, cfg.MirrorRateLimit)

	var ratesRepo rates.Repository
	if pool != nil {
		ratesRepo = rates.NewPgRepository(pool)
	}
	ratesSvc := rates.NewService(mirrorClient, ratesRepo, cfg.RateStaleThreshold)

	writers := reportWriters(ctx, cfg)
	if len(writers) == 0 {
		return errors.New("no report destination configured (REPORT_DIR or SHEETS_SPREADSHEET_ID)")
	}

	exportSvc := export.NewService(mirrorClient, ratesSvc, writers...)
	if err := exportSvc.Export(ctx); err != nil {
		return fmt.Errorf("exporting report: %w", err)
	}

	slog.Info("report exported")
	return nil
}

// connectDB connects and migrates when DATABASE_URL is set. The service runs
// without a database, losing the activity feed and rate fallback.
func connectDB(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, activity feed and rate fallback disabled")
		return nil, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return pool, nil
}

func reportWriters(ctx context.Context, cfg config.Config) []export.ReportWriter {
	var writers []export.ReportWriter

	if cfg.ReportDir != "" {
		xlsx, err := export.NewXlsxWriter(cfg.ReportDir)
		if err != nil {
			slog.Error("failed to create xlsx writer", "dir", cfg.ReportDir, "error", err)
		} else {
			writers = append(writers, xlsx)
		}
	}

	if cfg.SheetsSpreadsheetID != "" && cfg.SheetsCredentials != "" {
		sheets, err := export.NewSheetsWriter(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsCredentials)
		if err != nil {
			slog.Error("failed to create sheets writer", "error", err)
		} else {
			writers = append(writers, sheets)
		}
	}

	return writers
}
