// Package poi provides the point-of-interest catalog, capacity curves,
// and the occupancy registry mutated by the simulation engine.
package poi

import "time"

// ID is a stable point-of-interest identifier (a placekey in SafeGraph data).
type ID string

// None is the empty location: a person at None is idle.
const None ID = ""

// POI is a location with a time-varying capacity.
type POI struct {
	ID    ID     `json:"id"`
	Name  string `json:"location_name"`
	Curve Curve  `json:"-"`
}

// Source supplies the POI catalog before the simulation starts.
type Source interface {
	LoadPOIs() ([]*POI, error)
}

// Row is one POI's state in a snapshot.
type Row struct {
	ID        ID      `json:"id"`
	Name      string  `json:"location_name"`
	Capacity  float64 `json:"capacity"`
	Occupancy int     `json:"occupancy"`
}

// Slack returns capacity minus occupancy. Negative when a capacity drop
// left more occupants than the curve now allows.
func (r Row) Slack() float64 {
	return r.Capacity - float64(r.Occupancy)
}

// Snapshot is the read-only view of every POI after one simulated hour.
type Snapshot struct {
	Tick int       `json:"tick"`
	Time time.Time `json:"time"`
	Rows []Row     `json:"rows"` // catalog order
}

// TotalOccupancy sums occupancy across all rows.
func (s Snapshot) TotalOccupancy() int {
	total := 0
	for _, r := range s.Rows {
		total += r.Occupancy
	}
	return total
}

// Find returns the row for id.
func (s Snapshot) Find(id ID) (Row, bool) {
	for _, r := range s.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}
