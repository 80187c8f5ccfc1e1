package report

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/talgya/footfall/internal/poi"
)

// Output file names written by CSVSink.
const (
	CapacityOccupancyFile = "capacity_occupancy.csv"
	ResultsFile           = "simulation_results.csv"
	OccupancyTableFile    = "occupancy_df.csv"
	LocationNamesFile     = "location_names.txt"

	// PartialSuffix marks result tables of a run that halted early.
	PartialSuffix = ".partial"
)

// CSVSink streams an hourly capacity/occupancy log and, on Close, writes
// the hour × POI occupancy tables.
type CSVSink struct {
	dir  string
	file *os.File
	log  *csv.Writer

	ids   []poi.ID
	names []string
	hours [][]int

	failed bool
}

// NewCSVSink creates dir if needed and truncates the hourly log.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, CapacityOccupancyFile))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", CapacityOccupancyFile, err)
	}
	return &CSVSink{dir: dir, file: f, log: csv.NewWriter(f)}, nil
}

// Record implements Sink. Each hour becomes a "Hour N:" line followed by
// name,capacity,occupancy,capacity-occupancy rows.
func (s *CSVSink) Record(_ context.Context, snap poi.Snapshot) error {
	if s.ids == nil {
		s.ids = make([]poi.ID, len(snap.Rows))
		s.names = make([]string, len(snap.Rows))
		for i, r := range snap.Rows {
			s.ids[i] = r.ID
			s.names[i] = r.Name
		}
	}
	if len(snap.Rows) != len(s.ids) {
		return fmt.Errorf("snapshot at tick %d has %d rows, want %d", snap.Tick, len(snap.Rows), len(s.ids))
	}

	if err := s.log.Write([]string{fmt.Sprintf("Hour %d:", snap.Tick)}); err != nil {
		return err
	}
	occ := make([]int, len(snap.Rows))
	for i, r := range snap.Rows {
		occ[i] = r.Occupancy
		rec := []string{
			r.Name,
			strconv.FormatFloat(r.Capacity, 'f', 2, 64),
			strconv.Itoa(r.Occupancy),
			strconv.FormatFloat(r.Slack(), 'f', 2, 64),
		}
		if err := s.log.Write(rec); err != nil {
			return err
		}
	}
	s.hours = append(s.hours, occ)
	s.log.Flush()
	return s.log.Error()
}

// Fail marks the run as halted. Close then writes the result tables with
// PartialSuffix appended and removes any complete tables left by an
// earlier run in the same directory.
func (s *CSVSink) Fail() { s.failed = true }

// Close flushes the hourly log and writes the result tables.
func (s *CSVSink) Close() error {
	s.log.Flush()
	if err := s.log.Error(); err != nil {
		s.file.Close()
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}
	if s.failed {
		for _, name := range []string{ResultsFile, OccupancyTableFile} {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	if s.ids == nil {
		return nil
	}

	header := make([]string, len(s.ids))
	for i, id := range s.ids {
		header[i] = string(id)
	}
	if err := s.writeTable(ResultsFile, header); err != nil {
		return err
	}
	if err := s.writeTable(OccupancyTableFile, s.names); err != nil {
		return err
	}
	return s.writeNames()
}

func (s *CSVSink) writeTable(name string, header []string) error {
	if s.failed {
		name += PartialSuffix
	}
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{""}, header...)); err != nil {
		return err
	}
	for hour, occ := range s.hours {
		rec := make([]string, 0, len(occ)+1)
		rec = append(rec, strconv.Itoa(hour))
		for _, n := range occ {
			rec = append(rec, strconv.Itoa(n))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

func (s *CSVSink) writeNames() error {
	f, err := os.Create(filepath.Join(s.dir, LocationNamesFile))
	if err != nil {
		return fmt.Errorf("create %s: %w", LocationNamesFile, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, n := range s.names {
		fmt.Fprintln(w, n)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
