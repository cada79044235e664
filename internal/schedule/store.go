package schedule

import (
	"strings"
	"time"

	"xml2pb/internal/storage"
)

// The bus tracker reports direction as a single letter; trips carry the
// rider-facing word in their headsign. 'I' and 'O' generally correspond to
// direction_id 1 and 0, but 'L' can be either, so matching goes through the
// headsign text.
var headsignByDirection = map[string]string{
	"I": "Inbound",
	"O": "Outbound",
	"L": "Loop",
}

// TripStop identifies a scheduled stop-time: a trip and the position of the
// stop within it.
type TripStop struct {
	TripID       string
	StopSequence int
}

// TripRoute identifies a trip and the route it runs on.
type TripRoute struct {
	TripID  string
	RouteID string
}

type depKey struct {
	route    string // route_short_name
	headsign string
	stopID   string
	depTime  string // HH:MM:SS
}

type clockKey struct {
	route    string
	headsign string
	clock    string // first four digits of the first stop's arrival time
}

type depCandidate struct {
	tripStop  TripStop
	serviceID string
}

type vehCandidate struct {
	tripRoute TripRoute
	serviceID string
}

type daySet uint8

func (d daySet) has(w time.Weekday) bool { return d&(1<<uint(w)) != 0 }

// Store is an immutable in-memory index over the loaded schedule. Once built
// it is read-only and safe for concurrent use.
type Store struct {
	services      map[string]daySet
	stopByTracker map[string]string
	byDeparture   map[depKey][]depCandidate
	byFirstStop   map[clockKey][]vehCandidate
}

// NewStore builds the index from raw schedule rows. Rows with stop_sequence 1
// additionally feed the first-stop clock index used for vehicle matching.
func NewStore(services []storage.ServiceRow, aliases []storage.StopAliasRow, stops []storage.ScheduledStopRow) *Store {
	s := &Store{
		services:      make(map[string]daySet, len(services)),
		stopByTracker: make(map[string]string, len(aliases)),
		byDeparture:   make(map[depKey][]depCandidate, len(stops)),
		byFirstStop:   make(map[clockKey][]vehCandidate),
	}

	for _, svc := range services {
		var days daySet
		for w, active := range map[time.Weekday]bool{
			time.Monday:    svc.Monday,
			time.Tuesday:   svc.Tuesday,
			time.Wednesday: svc.Wednesday,
			time.Thursday:  svc.Thursday,
			time.Friday:    svc.Friday,
			time.Saturday:  svc.Saturday,
			time.Sunday:    svc.Sunday,
		} {
			if active {
				days |= 1 << uint(w)
			}
		}
		s.services[svc.ServiceID] = days
	}

	for _, a := range aliases {
		s.stopByTracker[a.TrackerID] = a.StopID
	}

	for _, row := range stops {
		dk := depKey{
			route:    row.RouteShortName,
			headsign: row.Headsign,
			stopID:   row.StopID,
			depTime:  row.DepartureTime,
		}
		s.byDeparture[dk] = append(s.byDeparture[dk], depCandidate{
			tripStop:  TripStop{TripID: row.TripID, StopSequence: row.StopSequence},
			serviceID: row.ServiceID,
		})

		if row.StopSequence == 1 {
			ck := clockKey{
				route:    row.RouteShortName,
				headsign: row.Headsign,
				clock:    firstStopClock(row.ArrivalTime),
			}
			s.byFirstStop[ck] = append(s.byFirstStop[ck], vehCandidate{
				tripRoute: TripRoute{TripID: row.TripID, RouteID: row.RouteID},
				serviceID: row.ServiceID,
			})
		}
	}

	return s
}

// TripByDeparture resolves a departure event to a scheduled trip: route short
// name, mapped headsign, exact seconds-precision departure time at the stop
// the tracker id maps to, and a service active on day. Multiple matches are a
// data-quality condition, not an error; the first candidate is returned.
func (s *Store) TripByDeparture(trackerStopID, routeShortName, departureTime, directionCode string, day time.Weekday) (TripStop, bool) {
	headsign, ok := headsignByDirection[directionCode]
	if !ok {
		return TripStop{}, false
	}
	stopID, ok := s.stopByTracker[trackerStopID]
	if !ok {
		return TripStop{}, false
	}

	candidates := s.byDeparture[depKey{
		route:    routeShortName,
		headsign: headsign,
		stopID:   stopID,
		depTime:  departureTime,
	}]
	for _, c := range candidates {
		if s.services[c.serviceID].has(day) {
			return c.tripStop, true
		}
	}
	return TripStop{}, false
}

// TripByVehicle resolves a vehicle's encoded trip-time code to a scheduled
// trip. The code is the clock time of the trip's first stop: tripid 1150
// belongs to the trip whose first departure is at 11:50:00.
func (s *Store) TripByVehicle(tripTimeCode, routeShortName, directionCode string, day time.Weekday) (TripRoute, bool) {
	headsign, ok := headsignByDirection[directionCode]
	if !ok {
		return TripRoute{}, false
	}

	candidates := s.byFirstStop[clockKey{
		route:    routeShortName,
		headsign: headsign,
		clock:    normalizeTripCode(tripTimeCode),
	}]
	for _, c := range candidates {
		if s.services[c.serviceID].has(day) {
			return c.tripRoute, true
		}
	}
	return TripRoute{}, false
}

// firstStopClock reduces an HH:MM:SS arrival time to its HHMM prefix.
func firstStopClock(arrival string) string {
	digits := strings.ReplaceAll(arrival, ":", "")
	if len(digits) > 4 {
		digits = digits[:4]
	}
	return digits
}

// normalizeTripCode zero-pads a tracker trip-time code to four digits and
// keeps the last four, so "945" and "0945" both mean 09:45.
func normalizeTripCode(code string) string {
	digits := strings.ReplaceAll(code, ":", "")
	for len(digits) < 4 {
		digits = "0" + digits
	}
	return digits[len(digits)-4:]
}
