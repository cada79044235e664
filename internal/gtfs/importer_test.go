package gtfs

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"xml2pb/internal/storage"
)

var testFeedFiles = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
		"PM,People Mover,http://example.com,America/Anchorage\n",
	"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
		"R5,PM,5,Mountain View,3\n",
	"stops.txt": "stop_id,stop_bt_id,stop_code,stop_name,stop_lat,stop_lon\n" +
		"S1,2222,,Transit Center,61.2,-149.9\n" +
		"S2,3333,,City Hall,61.21,-149.88\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"WK,1,1,1,1,1,0,0,20200101,20201231\n",
	"calendar_dates.txt": "service_id,date,exception_type\n" +
		"WK,20200704,2\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id,block_id\n" +
		"R5,WK,T100,Inbound,1,\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T100,08:15:00,08:15:00,S1,1\n" +
		"T100,08:25:00,08:26:00,S2,2\n",
}

func writeTestZip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range testFeedFiles {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseZip(t *testing.T) {
	feed, err := ParseZip(writeTestZip(t), discardLogger())
	if err != nil {
		t.Fatalf("ParseZip: %v", err)
	}

	if len(feed.Routes) != 1 || feed.Routes[0].RouteShortName != "5" {
		t.Errorf("routes = %+v", feed.Routes)
	}
	if len(feed.Stops) != 2 {
		t.Fatalf("got %d stops, want 2", len(feed.Stops))
	}
	if feed.Stops[0].StopBtID != "2222" {
		t.Errorf("StopBtID = %q, want 2222", feed.Stops[0].StopBtID)
	}
	if len(feed.Trips) != 1 || feed.Trips[0].TripHeadsign != "Inbound" {
		t.Errorf("trips = %+v", feed.Trips)
	}
	if len(feed.Calendar) != 1 || feed.Calendar[0].Monday != "1" {
		t.Errorf("calendar = %+v", feed.Calendar)
	}
	if len(feed.CalendarDates) != 1 {
		t.Errorf("calendar dates = %+v", feed.CalendarDates)
	}
}

func TestImport_EndToEnd(t *testing.T) {
	db, err := storage.Open(":memory:", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	zipPath := writeTestZip(t)
	feed, err := ParseZip(zipPath, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	feed.LastModified = "Mon, 09 Mar 2020 11:00:00 GMT"

	ctx := context.Background()
	if err := NewImporter(db, discardLogger()).Import(ctx, feed, zipPath); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if !db.HasData(ctx) {
		t.Fatal("database should have data after import")
	}

	stops, err := db.ScheduledStops(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 2 {
		t.Fatalf("got %d stop_times, want 2", len(stops))
	}

	aliases, err := db.StopAliases(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(aliases) != 2 {
		t.Errorf("got %d aliases, want 2", len(aliases))
	}

	lm, err := db.GetMetadata(ctx, "last_modified")
	if err != nil {
		t.Fatal(err)
	}
	if lm != feed.LastModified {
		t.Errorf("last_modified = %q", lm)
	}
}

func TestImport_ReplacesPreviousData(t *testing.T) {
	db, err := storage.Open(":memory:", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	zipPath := writeTestZip(t)
	feed, err := ParseZip(zipPath, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	imp := NewImporter(db, discardLogger())
	if err := imp.Import(ctx, feed, zipPath); err != nil {
		t.Fatal(err)
	}
	if err := imp.Import(ctx, feed, zipPath); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	services, err := db.Services(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 {
		t.Errorf("got %d services after re-import, want 1 (no duplicates)", len(services))
	}
}
