package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pub-viewer/config"
	"pub-viewer/services"
	"pub-viewer/storage"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Optionale Persistenz und Archivierung
	var store services.SnapshotStore
	if cfg.PersistenceEnabled() {
		db, err := storage.OpenPostgres(cfg)
		if err != nil {
			logging.Fatal("Failed to connect to database", zap.Error(err))
		}
		store = storage.NewSnapshotRepository(db)
		logging.Info("Successfully connected to snapshot database.")
	}
	var archive services.Archiver
	if cfg.ArchiveEnabled() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		archive = storage.NewArchive(s3Client, cfg)
		logging.Info("Upload archive enabled", zap.String("bucket", cfg.S3Bucket), zap.Int("keep", cfg.ArchiveKeep))
	}

	lib := services.NewLibrary(cfg.MaxUploadBytes, store, archive, logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initializePublications(ctx, lib, cfg, logging); err != nil {
		logging.Fatal("Failed to start server", zap.Error(err))
	}

	if cfg.ReloadSchedule != "" {
		cronScheduler := cron.New()
		_, err := cronScheduler.AddFunc(cfg.ReloadSchedule, func() {
			changed, err := lib.ReloadIfChanged(context.Background(), cfg.BibTeXFile)
			if err != nil {
				logging.Error("Scheduled reload failed", zap.String("path", cfg.BibTeXFile), zap.Error(err))
			} else if changed {
				logging.Info("Scheduled reload picked up a new bibliography", zap.String("path", cfg.BibTeXFile))
			}
		})
		if err != nil {
			logging.Fatal("Invalid RELOAD_SCHEDULE", zap.String("schedule", cfg.ReloadSchedule), zap.Error(err))
		}
		cronScheduler.Start()
		defer cronScheduler.Stop()
		logging.Info("Scheduled reload enabled", zap.String("schedule", cfg.ReloadSchedule))
	}

	router := newRouter(cfg, lib, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server shutdown failed", zap.Error(err))
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
	logging.Info("Server stopped")
}

// initializePublications prefers the latest stored snapshot and falls back
// to the configured BibTeX file.
func initializePublications(ctx context.Context, lib *services.Library, cfg *config.Config, log *zap.Logger) error {
	if lib.Store != nil {
		snap, err := lib.Restore(ctx)
		switch {
		case err == nil:
			log.Info("Initialized publications from stored snapshot", zap.Int("count", len(snap.Entries)))
			return nil
		case errors.Is(err, storage.ErrNoSnapshot):
			log.Info("No stored bibliography yet, loading file")
		default:
			log.Warn("Restoring stored bibliography failed, loading file", zap.Error(err))
		}
	}

	log.Info("Attempting to load BibTeX file", zap.String("path", cfg.BibTeXFile))
	snap, err := lib.LoadFile(ctx, cfg.BibTeXFile)
	if err != nil {
		return fmt.Errorf("initialize publications: %w", err)
	}
	log.Info("Initialized publications", zap.Int("count", len(snap.Entries)))
	return nil
}
