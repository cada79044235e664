package match

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"xml2pb/internal/schedule"
	"xml2pb/internal/storage"
	"xml2pb/internal/tracker"
)

func testMatcher() *Matcher {
	services := []storage.ServiceRow{
		{ServiceID: "WK", Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true},
	}
	aliases := []storage.StopAliasRow{
		{TrackerID: "2222", StopID: "S1"},
		{TrackerID: "3333", StopID: "S2"},
		{TrackerID: "4444", StopID: "S3"},
	}
	stops := []storage.ScheduledStopRow{
		{TripID: "T100", RouteID: "R5", RouteShortName: "5", Headsign: "Inbound", ServiceID: "WK",
			StopID: "S1", StopSequence: 1, ArrivalTime: "08:15:00", DepartureTime: "08:15:00"},
		{TripID: "T100", RouteID: "R5", RouteShortName: "5", Headsign: "Inbound", ServiceID: "WK",
			StopID: "S2", StopSequence: 3, ArrivalTime: "08:25:00", DepartureTime: "08:25:00"},
		{TripID: "T100", RouteID: "R5", RouteShortName: "5", Headsign: "Inbound", ServiceID: "WK",
			StopID: "S3", StopSequence: 5, ArrivalTime: "08:40:00", DepartureTime: "08:40:00"},
		{TripID: "T200", RouteID: "R7", RouteShortName: "7", Headsign: "Outbound", ServiceID: "WK",
			StopID: "S1", StopSequence: 1, ArrivalTime: "11:50:00", DepartureTime: "11:50:00"},
	}
	store := schedule.NewStore(services, aliases, stops)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, "99", logger)
}

func dep(sdt, dev, dir, route string) tracker.Departure {
	return tracker.Departure{SDT: sdt, Dev: dev, Direction: dir, Route: tracker.RouteRef{ID: route}}
}

func TestTripDelays_Resolve(t *testing.T) {
	m := testMatcher()
	doc := &tracker.DeparturesDoc{Stops: []tracker.DepartureStop{
		{ID: "2222", Departures: []tracker.Departure{dep("08:15", "120", "I", "5")}},
	}}

	delays := m.TripDelays(doc, time.Monday)
	if len(delays) != 1 {
		t.Fatalf("got %d delays, want 1", len(delays))
	}
	got, ok := delays["T100"]
	if !ok {
		t.Fatal("T100 missing")
	}
	if got.StopSequence != 1 || got.DelaySeconds != 120 {
		t.Errorf("got %+v, want seq 1 delay 120", got)
	}
}

func TestTripDelays_LowestStopSequenceWins(t *testing.T) {
	m := testMatcher()
	// Stop sequence 5 reported first, then 3: the later, earlier-in-trip
	// report must replace it.
	doc := &tracker.DeparturesDoc{Stops: []tracker.DepartureStop{
		{ID: "4444", Departures: []tracker.Departure{dep("08:40", "300", "I", "5")}},
		{ID: "3333", Departures: []tracker.Departure{dep("08:25", "180", "I", "5")}},
	}}

	delays := m.TripDelays(doc, time.Monday)
	got := delays["T100"]
	if got.StopSequence != 3 || got.DelaySeconds != 180 {
		t.Errorf("got %+v, want seq 3 delay 180", got)
	}
}

func TestTripDelays_HigherSequenceDoesNotOverwrite(t *testing.T) {
	m := testMatcher()
	doc := &tracker.DeparturesDoc{Stops: []tracker.DepartureStop{
		{ID: "3333", Departures: []tracker.Departure{dep("08:25", "180", "I", "5")}},
		{ID: "4444", Departures: []tracker.Departure{dep("08:40", "300", "I", "5")}},
	}}

	delays := m.TripDelays(doc, time.Monday)
	got := delays["T100"]
	if got.StopSequence != 3 || got.DelaySeconds != 180 {
		t.Errorf("got %+v, want the seq-3 report kept", got)
	}
}

func TestTripDelays_SkipDoneAndZeroDeviation(t *testing.T) {
	m := testMatcher()
	doc := &tracker.DeparturesDoc{Stops: []tracker.DepartureStop{
		{ID: "2222", Departures: []tracker.Departure{
			dep("Done", "120", "I", "5"),
			dep("08:15", "0", "I", "5"),
		}},
	}}

	if delays := m.TripDelays(doc, time.Monday); len(delays) != 0 {
		t.Errorf("got %d delays, want 0", len(delays))
	}
}

func TestTripDelays_NegativeDeviation(t *testing.T) {
	m := testMatcher()
	doc := &tracker.DeparturesDoc{Stops: []tracker.DepartureStop{
		{ID: "2222", Departures: []tracker.Departure{dep("08:15", "-60", "I", "5")}},
	}}

	delays := m.TripDelays(doc, time.Monday)
	if got := delays["T100"]; got.DelaySeconds != -60 {
		t.Errorf("delay = %d, want -60 (early)", got.DelaySeconds)
	}
}

func TestTripDelays_UnresolvedDropped(t *testing.T) {
	m := testMatcher()
	doc := &tracker.DeparturesDoc{Stops: []tracker.DepartureStop{
		{ID: "2222", Departures: []tracker.Departure{
			dep("08:15", "120", "I", "77"),  // unknown route
			dep("23:59", "120", "I", "5"),   // no such departure time
			dep("08:15", "junk", "I", "5"),  // unparseable deviation
		}},
	}}

	if delays := m.TripDelays(doc, time.Monday); len(delays) != 0 {
		t.Errorf("got %d delays, want 0", len(delays))
	}
}

func TestVehiclePositions_Resolve(t *testing.T) {
	m := testMatcher()
	loc := time.UTC
	doc := &tracker.VehiclesDoc{
		ReportGenerated: "2020-03-09 11:18",
		Vehicles: []tracker.Vehicle{{
			OpStatus: "on-route", Name: "0810", RouteID: "7", TripID: "1150",
			Direction: "O", Latitude: 61.21, Longitude: -149.89, Heading: 270, Speed: 10.0,
		}},
	}

	positions := m.VehiclePositions(doc, time.Monday, loc)
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	got := positions["0810"]
	if got.TripID != "T200" {
		t.Errorf("TripID = %q, want T200", got.TripID)
	}
	if math.Abs(got.SpeedMps-4.4704) > 1e-9 {
		t.Errorf("SpeedMps = %v, want 4.4704 exactly", got.SpeedMps)
	}
	want := time.Date(2020, 3, 9, 11, 18, 0, 0, loc).Unix()
	if got.Timestamp != want {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, want)
	}
	if got.Latitude != 61.21 || got.Longitude != -149.89 || got.Bearing != 270 {
		t.Errorf("position = %+v", got)
	}
}

func TestVehiclePositions_FiltersOutOfServiceAndDeadhead(t *testing.T) {
	m := testMatcher()
	doc := &tracker.VehiclesDoc{Vehicles: []tracker.Vehicle{
		{OpStatus: "out-of-service", Name: "A", RouteID: "7", TripID: "1150", Direction: "O"},
		{OpStatus: "none", Name: "B", RouteID: "7", TripID: "1150", Direction: "O"},
		{OpStatus: "on-route", Name: "C", RouteID: "99", TripID: "1150", Direction: "O"},
	}}

	if positions := m.VehiclePositions(doc, time.Monday, time.UTC); len(positions) != 0 {
		t.Errorf("got %d positions, want 0", len(positions))
	}
}

func TestVehiclePositions_DuplicateNameLastWins(t *testing.T) {
	m := testMatcher()
	doc := &tracker.VehiclesDoc{Vehicles: []tracker.Vehicle{
		{OpStatus: "on-route", Name: "0810", RouteID: "7", TripID: "1150", Direction: "O", Speed: 10},
		{OpStatus: "on-route", Name: "0810", RouteID: "7", TripID: "1150", Direction: "O", Speed: 20},
	}}

	positions := m.VehiclePositions(doc, time.Monday, time.UTC)
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	if got := positions["0810"].SpeedMps; math.Abs(got-20*0.44704) > 1e-9 {
		t.Errorf("SpeedMps = %v, want the later report's speed", got)
	}
}

func TestVehiclePositions_BadTimestampOmitted(t *testing.T) {
	m := testMatcher()
	doc := &tracker.VehiclesDoc{
		ReportGenerated: "last tuesday",
		Vehicles: []tracker.Vehicle{{
			OpStatus: "on-route", Name: "0810", RouteID: "7", TripID: "1150", Direction: "O",
		}},
	}

	positions := m.VehiclePositions(doc, time.Monday, time.UTC)
	if got := positions["0810"].Timestamp; got != 0 {
		t.Errorf("Timestamp = %d, want 0 for unparseable report stamp", got)
	}
}

func TestNormalizeSDT(t *testing.T) {
	tests := []struct{ in, want string }{
		{"08:15", "08:15:00"},
		{"08:15:00", "08:15:00"},
		{"Done", "Done"},
	}
	for _, tt := range tests {
		if got := normalizeSDT(tt.in); got != tt.want {
			t.Errorf("normalizeSDT(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
