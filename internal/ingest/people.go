package ingest

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

// PeopleFile reads a papdata.json population file from disk.
type PeopleFile struct {
	Path string
}

// LoadPeople implements population.Source.
func (f PeopleFile) LoadPeople() ([]population.Record, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open population: %w", err)
	}
	defer file.Close()

	records, err := ReadPeople(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	slog.Info("population loaded", "path", f.Path, "people", len(records))
	return records, nil
}

type papdata struct {
	People map[string]papPerson `json:"people"`
}

// papPerson uses pointers so absent fields can be told apart from zero.
type papPerson struct {
	Sex  *int    `json:"sex"`
	Age  *int    `json:"age"`
	Home *homeID `json:"home"`
}

// homeID accepts a POI id written either as a string or as a number.
type homeID string

func (h *homeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*h = homeID(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("home must be a string or number: %w", err)
	}
	*h = homeID(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

// ReadPeople parses a papdata document of the form
// {"people": {"<id>": {"sex": 0, "age": 34, "home": "<poi id>"}}}.
// Records come back in ascending id order.
func ReadPeople(r io.Reader) ([]population.Record, error) {
	var doc papdata
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode population: %v", ErrMalformed, err)
	}
	if doc.People == nil {
		return nil, fmt.Errorf("%w: missing \"people\" object", ErrMalformed)
	}

	keys := make([]string, 0, len(doc.People))
	for key := range doc.People {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	byID := make(map[int]string, len(keys))
	ids := make([]int, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: person key %q is not an integer", ErrMalformed, key)
		}
		if prev, dup := byID[id]; dup {
			return nil, fmt.Errorf("%w: person keys %q and %q are the same id", ErrMalformed, prev, key)
		}
		byID[id] = key
		ids = append(ids, id)
	}
	sort.Ints(ids)

	records := make([]population.Record, 0, len(ids))
	for _, id := range ids {
		p := doc.People[byID[id]]
		switch {
		case p.Sex == nil:
			return nil, fmt.Errorf("%w: person %d has no sex", ErrMalformed, id)
		case p.Age == nil:
			return nil, fmt.Errorf("%w: person %d has no age", ErrMalformed, id)
		case p.Home == nil:
			return nil, fmt.Errorf("%w: person %d has no home", ErrMalformed, id)
		}

		if *p.Sex < 0 || *p.Sex > 255 {
			return nil, fmt.Errorf("%w: person %d has sex %d", population.ErrInvalidRecord, id, *p.Sex)
		}
		rec := population.Record{
			ID:   population.PersonID(id),
			Sex:  population.Sex(*p.Sex),
			Age:  *p.Age,
			Home: poi.ID(*p.Home),
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
