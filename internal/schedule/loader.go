package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"xml2pb/internal/storage"
)

// Load reads the imported GTFS tables and builds the in-memory index. Called
// once at startup, after the importer has run; a failure is fatal because the
// publication loop cannot match anything without a schedule.
func Load(ctx context.Context, db *storage.DB, logger *slog.Logger) (*Store, error) {
	services, err := db.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	aliases, err := db.StopAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stop aliases: %w", err)
	}
	stops, err := db.ScheduledStops(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduled stops: %w", err)
	}

	store := NewStore(services, aliases, stops)
	logger.Info("schedule index built",
		"services", len(services),
		"tracker_stops", len(aliases),
		"stop_times", len(stops),
	)
	return store, nil
}
