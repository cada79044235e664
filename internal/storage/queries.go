package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// GetMetadata retrieves a value from the feed_metadata table.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM feed_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMetadata stores a key-value pair in the feed_metadata table.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO feed_metadata (key, value) VALUES (?, ?)`,
		key, value)
	return err
}

// HasData reports whether a GTFS feed has been imported.
func (db *DB) HasData(ctx context.Context) bool {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// ServiceRow is one calendar entry: a service id and its active weekdays.
type ServiceRow struct {
	ServiceID string
	Monday    bool
	Tuesday   bool
	Wednesday bool
	Thursday  bool
	Friday    bool
	Saturday  bool
	Sunday    bool
}

// Services returns all calendar entries.
func (db *DB) Services(ctx context.Context) ([]ServiceRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday
		FROM calendar`)
	if err != nil {
		return nil, fmt.Errorf("services query: %w", err)
	}
	defer rows.Close()

	var out []ServiceRow
	for rows.Next() {
		var s ServiceRow
		if err := rows.Scan(&s.ServiceID, &s.Monday, &s.Tuesday, &s.Wednesday,
			&s.Thursday, &s.Friday, &s.Saturday, &s.Sunday); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StopAliasRow maps a bus-tracker stop identifier to the canonical stop id.
type StopAliasRow struct {
	TrackerID string
	StopID    string
}

// StopAliases returns the tracker-id to stop-id mapping for all stops that
// carry a tracker identifier.
func (db *DB) StopAliases(ctx context.Context) ([]StopAliasRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT stop_bt_id, stop_id
		FROM stops
		WHERE stop_bt_id IS NOT NULL AND stop_bt_id != ''`)
	if err != nil {
		return nil, fmt.Errorf("stop aliases query: %w", err)
	}
	defer rows.Close()

	var out []StopAliasRow
	for rows.Next() {
		var a StopAliasRow
		if err := rows.Scan(&a.TrackerID, &a.StopID); err != nil {
			return nil, fmt.Errorf("scan stop alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ScheduledStopRow is one stop-time joined with its trip and route, the raw
// material for the departure-time index.
type ScheduledStopRow struct {
	TripID         string
	RouteID        string
	RouteShortName string
	Headsign       string
	ServiceID      string
	StopID         string
	StopSequence   int
	ArrivalTime    string
	DepartureTime  string
}

// ScheduledStops returns every stop-time with its trip, route and service id.
func (db *DB) ScheduledStops(ctx context.Context) ([]ScheduledStopRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT trips.trip_id, trips.route_id, routes.route_short_name,
		       COALESCE(trips.trip_headsign, ''), trips.service_id,
		       stop_times.stop_id, stop_times.stop_sequence,
		       stop_times.arrival_time, stop_times.departure_time
		FROM stop_times
		JOIN trips ON trips.trip_id = stop_times.trip_id
		JOIN routes ON routes.route_id = trips.route_id`)
	if err != nil {
		return nil, fmt.Errorf("scheduled stops query: %w", err)
	}
	defer rows.Close()

	var out []ScheduledStopRow
	for rows.Next() {
		var r ScheduledStopRow
		if err := rows.Scan(&r.TripID, &r.RouteID, &r.RouteShortName, &r.Headsign,
			&r.ServiceID, &r.StopID, &r.StopSequence,
			&r.ArrivalTime, &r.DepartureTime); err != nil {
			return nil, fmt.Errorf("scan scheduled stop: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
