package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
)

// ParseZip extracts and parses the GTFS CSV files from a zip archive.
// stop_times.txt is NOT loaded into memory here — it is streamed during import.
func ParseZip(path string, logger *slog.Logger) (*Feed, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	feed := &Feed{}

	for _, f := range r.File {
		switch f.Name {
		case "agency.txt":
			feed.Agencies, err = parseCSVFile[Agency](f)
		case "routes.txt":
			feed.Routes, err = parseCSVFile[Route](f)
		case "stops.txt":
			feed.Stops, err = parseCSVFile[Stop](f)
		case "trips.txt":
			feed.Trips, err = parseCSVFile[Trip](f)
		case "calendar.txt":
			feed.Calendar, err = parseCSVFile[CalendarEntry](f)
		case "calendar_dates.txt":
			feed.CalendarDates, err = parseCSVFile[CalendarDate](f)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
		}
	}

	logger.Info("GTFS feed parsed",
		"agencies", len(feed.Agencies),
		"routes", len(feed.Routes),
		"stops", len(feed.Stops),
		"trips", len(feed.Trips),
		"calendar", len(feed.Calendar),
		"calendar_dates", len(feed.CalendarDates),
	)

	return feed, nil
}

// parseCSVFile reads a single CSV file from the zip and decodes it into a slice of T.
func parseCSVFile[T any](f *zip.File) ([]T, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	reader, fieldMap, err := newCSVReader[T](rc)
	if err != nil {
		return nil, err
	}

	var results []T
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		var item T
		decodeRecord(&item, record, fieldMap)
		results = append(results, item)
	}

	return results, nil
}

// CSVStreamer yields one decoded record at a time. Used for stop_times.txt,
// which is too large to hold in memory.
type CSVStreamer struct {
	rc       io.ReadCloser
	reader   *csv.Reader
	fieldMap []fieldMapping
}

type fieldMapping struct {
	csvIndex   int
	fieldIndex int
}

// OpenCSVStream opens a CSV file from the zip for streaming.
func OpenCSVStream[T any](f *zip.File) (*CSVStreamer, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader, fieldMap, err := newCSVReader[T](rc)
	if err != nil {
		rc.Close()
		return nil, err
	}

	return &CSVStreamer{rc: rc, reader: reader, fieldMap: fieldMap}, nil
}

// Next reads the next record into out. Returns io.EOF when done.
func (s *CSVStreamer) Next(out any) error {
	record, err := s.reader.Read()
	if err != nil {
		return err
	}
	decodeRecord(out, record, s.fieldMap)
	return nil
}

// Close releases the underlying reader.
func (s *CSVStreamer) Close() error {
	return s.rc.Close()
}

// newCSVReader prepares a csv.Reader positioned past the header row and the
// column-to-field mapping derived from T's csv struct tags.
func newCSVReader[T any](rc io.Reader) (*csv.Reader, []fieldMapping, error) {
	reader := csv.NewReader(rc)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}

	var t T
	typ := reflect.TypeOf(t)
	tagToField := make(map[string]int)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("csv"); tag != "" {
			tagToField[tag] = i
		}
	}

	var mappings []fieldMapping
	for csvIdx, colName := range header {
		if fieldIdx, ok := tagToField[strings.TrimSpace(colName)]; ok {
			mappings = append(mappings, fieldMapping{csvIndex: csvIdx, fieldIndex: fieldIdx})
		}
	}
	return reader, mappings, nil
}

// decodeRecord fills the struct pointed to by out from a CSV record.
func decodeRecord(out any, record []string, fieldMap []fieldMapping) {
	v := reflect.ValueOf(out).Elem()
	for _, fm := range fieldMap {
		if fm.csvIndex < len(record) {
			v.Field(fm.fieldIndex).SetString(record[fm.csvIndex])
		}
	}
}
