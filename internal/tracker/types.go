package tracker

// DeparturesDoc is the stopdepartures XML document: every stop the tracker
// knows about, each with its pending departure events.
type DeparturesDoc struct {
	Stops []DepartureStop `xml:"stop"`
}

type DepartureStop struct {
	ID         string      `xml:"id"` // tracker stop id, not the GTFS stop_id
	Name       string      `xml:"name"`
	Departures []Departure `xml:"departure"`
}

type Departure struct {
	SDT       string   `xml:"sdt"` // scheduled departure, HH:MM, or "Done" once completed
	Dev       string   `xml:"dev"` // deviation in seconds; "0" means no data
	Direction string   `xml:"dir"` // I, O or L
	Route     RouteRef `xml:"route"`
}

type RouteRef struct {
	ID string `xml:"id"`
}

// VehiclesDoc is the vehiclelocation XML document.
type VehiclesDoc struct {
	// ReportGenerated is formatted like "2020-03-09 11:18" in the feed's
	// local timezone.
	ReportGenerated string    `xml:"report-generated"`
	Vehicles        []Vehicle `xml:"vehicle"`
}

type Vehicle struct {
	OpStatus  string  `xml:"op-status,attr"`
	Name      string  `xml:"name"`
	RouteID   string  `xml:"routeid"`
	TripID    string  `xml:"tripid"` // clock time of the trip's first departure, e.g. 1150
	LastStop  string  `xml:"laststop"`
	Direction string  `xml:"direction"`
	Latitude  float64 `xml:"latitude"`
	Longitude float64 `xml:"longitude"`
	Heading   float64 `xml:"heading"`
	Speed     float64 `xml:"speed"` // miles per hour
}

// InService reports whether the vehicle is carrying passengers according to
// its operational status flag.
func (v Vehicle) InService() bool {
	return v.OpStatus != "none" && v.OpStatus != "out-of-service"
}
