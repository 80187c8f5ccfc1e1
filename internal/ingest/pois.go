// Package ingest loads the POI catalog and the population from input files.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/talgya/footfall/internal/poi"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed is returned for input that cannot be turned into a catalog
// or population.
var ErrMalformed = errors.New("malformed input")

// Column names recognised in the POI catalog CSV.
const (
	colPlacekey = "placekey"
	colPOIID    = "poi_id"
	colName     = "location_name"
	colStart    = "date_range_start"
	colVisits   = "visits_by_each_hour"
	colCapacity = "capacity"
	colJitter   = "jitter"
	colHours    = "opening_hours"
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// POIFile reads a POI catalog CSV from disk.
type POIFile struct {
	Path string

	// CapacityScale multiplies every curve. Zero means 1.
	CapacityScale float64

	// Seed drives the noise of jittered curves.
	Seed int64
}

// LoadPOIs implements poi.Source.
func (f POIFile) LoadPOIs() ([]*poi.POI, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open poi catalog: %w", err)
	}
	defer file.Close()

	pois, err := ReadPOIs(file, f.CapacityScale, f.Seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	slog.Info("poi catalog loaded", "path", f.Path, "pois", len(pois))
	return pois, nil
}

// ReadPOIs parses a POI catalog. Each row needs an id and a location name,
// plus either an hourly visit series starting at date_range_start or a
// constant capacity. A constant capacity may be limited to opening_hours,
// a JSON object of weekday to [open, close) hours such as
// {"mon":[8,18],"sat":[10,14]}.
func ReadPOIs(r io.Reader, scale float64, seed int64) ([]*poi.POI, error) {
	if scale == 0 {
		scale = 1
	}
	if scale < 0 || math.IsNaN(scale) {
		return nil, fmt.Errorf("%w: capacity scale %v", ErrMalformed, scale)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty catalog", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)

	idCol := colPlacekey
	if _, ok := cols[idCol]; !ok {
		idCol = colPOIID
	}
	if _, ok := cols[idCol]; !ok {
		return nil, fmt.Errorf("%w: missing %s or %s column", ErrMalformed, colPlacekey, colPOIID)
	}
	if _, ok := cols[colName]; !ok {
		return nil, fmt.Errorf("%w: missing %s column", ErrMalformed, colName)
	}

	var (
		pois []*poi.POI
		seen = make(map[poi.ID]bool)
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		id := poi.ID(get(idCol))
		if id == poi.None {
			return nil, fmt.Errorf("%w: line %d: empty id", ErrMalformed, line)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: line %d: duplicate id %q", ErrMalformed, line, id)
		}
		seen[id] = true

		name := get(colName)
		if name == "" {
			return nil, fmt.Errorf("%w: line %d: poi %s has no location name", ErrMalformed, line, id)
		}

		base, err := baseCurve(get(colCapacity), get(colStart), get(colVisits))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: poi %s: %v", ErrMalformed, line, id, err)
		}
		if raw := get(colHours); raw != "" {
			c, ok := base.(poi.Constant)
			if !ok {
				return nil, fmt.Errorf("%w: line %d: poi %s: opening_hours needs a capacity", ErrMalformed, line, id)
			}
			hours, err := parseOpeningHours(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: poi %s: %v", ErrMalformed, line, id, err)
			}
			base = poi.WeeklySchedule{Capacity: float64(c), Hours: hours}
		}

		curve := base
		if raw := get(colJitter); raw != "" {
			amp, err := strconv.ParseFloat(raw, 64)
			if err != nil || amp < 0 || amp > 1 {
				return nil, fmt.Errorf("%w: line %d: poi %s: jitter %q not in [0,1]", ErrMalformed, line, id, raw)
			}
			if amp > 0 {
				curve = poi.NewJittered(curve, amp, seed+int64(len(pois)))
			}
		}
		if scale != 1 {
			curve = poi.Scaled{Base: curve, Factor: scale}
		}

		pois = append(pois, &poi.POI{ID: id, Name: name, Curve: curve})
	}

	if len(pois) == 0 {
		return nil, fmt.Errorf("%w: catalog has no rows", ErrMalformed)
	}
	return pois, nil
}

func baseCurve(capacity, start, visits string) (poi.Curve, error) {
	if capacity != "" {
		c, err := strconv.ParseFloat(capacity, 64)
		if err != nil || c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("capacity %q is not a non-negative number", capacity)
		}
		return poi.Constant(c), nil
	}

	if visits == "" {
		return nil, errors.New("neither capacity nor visits_by_each_hour given")
	}
	origin, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, fmt.Errorf("date_range_start: %w", err)
	}
	var values []float64
	if err := json.UnmarshalFromString(visits, &values); err != nil {
		return nil, fmt.Errorf("visits_by_each_hour: %w", err)
	}
	if len(values) == 0 {
		return nil, errors.New("visits_by_each_hour is empty")
	}
	for i, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("visits_by_each_hour[%d] = %v", i, v)
		}
	}
	return poi.HourlyTable{Origin: origin, Values: values}, nil
}

func parseOpeningHours(raw string) (map[time.Weekday]poi.OpeningHours, error) {
	var days map[string][2]int
	if err := json.UnmarshalFromString(raw, &days); err != nil {
		return nil, fmt.Errorf("opening_hours: %w", err)
	}
	hours := make(map[time.Weekday]poi.OpeningHours, len(days))
	for name, span := range days {
		day, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("opening_hours: unknown day %q", name)
		}
		if span[0] < 0 || span[0] > 23 || span[1] < 0 || span[1] > 24 {
			return nil, fmt.Errorf("opening_hours: %s hours %v out of range", name, span)
		}
		hours[day] = poi.OpeningHours{Open: span[0], Close: span[1]}
	}
	return hours, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}
