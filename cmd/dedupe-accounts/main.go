// Command dedupe-accounts merges user accounts that share an email address.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/marsha-lti/internal/repository"
	"github.com/noah-isme/marsha-lti/internal/service"
	"github.com/noah-isme/marsha-lti/pkg/config"
	"github.com/noah-isme/marsha-lti/pkg/database"
	"github.com/noah-isme/marsha-lti/pkg/logger"
	"github.com/noah-isme/marsha-lti/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var (
		email     = flag.String("email", "", "deduplicate only the accounts using this email")
		dryRun    = flag.Bool("dry-run", false, "report what would change and roll every transaction back")
		format    = flag.String("export", "", "also write the report as csv or pdf")
		exportDir = flag.String("export-dir", cfg.Dedupe.ExportDir, "directory receiving exported reports")
		retention = flag.Duration("retention", 0, "delete exported reports older than this (0 keeps everything)")
	)
	flag.Parse()

	logr, err := logger.NewCommand(cfg, "dedupe-accounts")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr, *email, *dryRun, *format, *exportDir, *retention); err != nil {
		logr.Error("deduplication failed", zap.Error(err))
		_ = logr.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logr *zap.Logger, email string, dryRun bool, format, exportDir string, retention time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	deduplicator := service.NewAccountDeduplicator(
		repository.NewTxManager(db),
		repository.NewUserRepository(db),
		repository.NewSocialIdentityRepository(db),
		repository.NewAccountRelationRepository(db),
		nil,
		logr,
		service.DedupeOptions{DryRun: dryRun},
	)

	logr.Info("deduplication started", zap.String("email", email), zap.Bool("dry_run", dryRun))
	tracker, err := deduplicator.Deduplicate(ctx, email)
	if err != nil {
		return err
	}
	logr.Info("deduplication finished", zap.Strings("emails", tracker.Emails()))
	logReport(logr, tracker)

	if format == "" {
		return nil
	}

	store, err := storage.NewReportStore(exportDir)
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	exporter := service.NewDedupeExportService(store, service.DedupeExportConfig{Retention: retention}, logr)
	path, err := exporter.Export(tracker, format, dryRun)
	if err != nil {
		return err
	}
	logr.Info("report exported", zap.String("path", path))
	return nil
}

// logReport writes the report one line per entry so log collectors keep it
// readable.
func logReport(logr *zap.Logger, tracker *service.DedupeTracker) {
	for _, line := range tracker.ReportLines() {
		logr.Info(line)
	}
}
