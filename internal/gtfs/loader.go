package gtfs

import (
	"context"
	"log/slog"
	"os"

	"xml2pb/internal/storage"
)

// Loader performs the download-parse-import sequence for the static schedule.
// The schedule is loaded once at startup when the database is empty; a forced
// reload happens only on an explicit -import-gtfs run.
type Loader struct {
	downloader *Downloader
	importer   *Importer
	db         *storage.DB
	logger     *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(downloader *Downloader, db *storage.DB, logger *slog.Logger) *Loader {
	return &Loader{
		downloader: downloader,
		importer:   NewImporter(db, logger),
		db:         db,
		logger:     logger,
	}
}

// EnsureData imports GTFS data if the database is empty. Called on startup;
// an error here means there is no schedule to match against and is fatal.
func (l *Loader) EnsureData(ctx context.Context) error {
	if l.db.HasData(ctx) {
		l.logger.Info("GTFS data already present")
		return nil
	}
	l.logger.Info("no GTFS data found, performing initial import")
	return l.Refresh(ctx)
}

// Refresh performs a full download-parse-import cycle unconditionally.
func (l *Loader) Refresh(ctx context.Context) error {
	zipPath, lastModified, etag, err := l.downloader.Download(ctx)
	if err != nil {
		return err
	}
	defer os.Remove(zipPath)

	feed, err := ParseZip(zipPath, l.logger)
	if err != nil {
		return err
	}
	feed.LastModified = lastModified
	feed.ETag = etag

	return l.importer.Import(ctx, feed, zipPath)
}
