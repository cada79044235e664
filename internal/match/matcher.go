package match

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"xml2pb/internal/schedule"
	"xml2pb/internal/tracker"
)

// mphToMps converts the tracker's miles-per-hour speeds to the meters per
// second GTFS-Realtime expects.
const mphToMps = 0.44704

// TripDelay is the resolved delay report for one trip: the earliest reported
// stop on the trip and the deviation there. Positive is late, negative early.
type TripDelay struct {
	StopSequence int
	DelaySeconds int
}

// VehiclePosition is the resolved position report for one vehicle.
type VehiclePosition struct {
	TripID    string
	Timestamp int64 // unix seconds; 0 when the report timestamp was absent or unparseable
	Latitude  float64
	Longitude float64
	Bearing   float64
	SpeedMps  float64
}

// Matcher resolves raw tracker events against the schedule index. Events that
// cannot be matched are expected given the heuristic identifiers the tracker
// provides; they are dropped with a debug log, never an error.
type Matcher struct {
	store         *schedule.Store
	deadheadRoute string
	logger        *slog.Logger
}

// New creates a Matcher. deadheadRoute is the route code the tracker assigns
// to vehicles moving to or from the garage.
func New(store *schedule.Store, deadheadRoute string, logger *slog.Logger) *Matcher {
	return &Matcher{store: store, deadheadRoute: deadheadRoute, logger: logger}
}

// TripDelays resolves the departures document into at most one delay per
// trip. When several departures resolve to the same trip, the one with the
// lowest stop sequence wins; on a tie the first one processed is kept.
func (m *Matcher) TripDelays(doc *tracker.DeparturesDoc, day time.Weekday) map[string]TripDelay {
	delays := make(map[string]TripDelay)

	for _, stop := range doc.Stops {
		for _, dep := range stop.Departures {
			// "Done" means the trip already completed; a zero deviation means
			// the tracker has nothing to report, not that the trip is on time.
			if dep.SDT == "Done" || dep.Dev == "0" {
				continue
			}
			dev, err := strconv.Atoi(dep.Dev)
			if err != nil {
				m.logger.Debug("unparseable deviation", "dev", dep.Dev, "stop", stop.ID)
				continue
			}

			ts, ok := m.store.TripByDeparture(stop.ID, dep.Route.ID, normalizeSDT(dep.SDT), dep.Direction, day)
			if !ok {
				m.logger.Debug("could not resolve departure to a trip",
					"stop", stop.ID, "route", dep.Route.ID, "sdt", dep.SDT, "dir", dep.Direction)
				continue
			}

			if prev, seen := delays[ts.TripID]; !seen || prev.StopSequence > ts.StopSequence {
				delays[ts.TripID] = TripDelay{
					StopSequence: ts.StopSequence,
					DelaySeconds: dev,
				}
			}
		}
	}

	return delays
}

// VehiclePositions resolves the vehicle-location document into at most one
// position per vehicle name; a name appearing twice keeps the last occurrence.
// The document's report-generated stamp, interpreted in loc, becomes each
// entry's timestamp.
func (m *Matcher) VehiclePositions(doc *tracker.VehiclesDoc, day time.Weekday, loc *time.Location) map[string]VehiclePosition {
	positions := make(map[string]VehiclePosition)

	var reported int64
	if doc.ReportGenerated != "" {
		t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(doc.ReportGenerated), loc)
		if err != nil {
			m.logger.Debug("unparseable report timestamp", "value", doc.ReportGenerated)
		} else {
			reported = t.Unix()
		}
	}

	for _, v := range doc.Vehicles {
		if !v.InService() {
			continue
		}
		if v.RouteID == m.deadheadRoute {
			continue
		}

		tr, ok := m.store.TripByVehicle(v.TripID, v.RouteID, v.Direction, day)
		if !ok {
			m.logger.Debug("could not resolve vehicle to a trip",
				"vehicle", v.Name, "tripid", v.TripID, "route", v.RouteID, "dir", v.Direction)
			continue
		}

		positions[v.Name] = VehiclePosition{
			TripID:    tr.TripID,
			Timestamp: reported,
			Latitude:  v.Latitude,
			Longitude: v.Longitude,
			Bearing:   v.Heading,
			SpeedMps:  v.Speed * mphToMps,
		}
	}

	return positions
}

// normalizeSDT pads the tracker's HH:MM departure times to the seconds
// precision the schedule stores.
func normalizeSDT(sdt string) string {
	if strings.Count(sdt, ":") == 1 {
		return sdt + ":00"
	}
	return sdt
}
