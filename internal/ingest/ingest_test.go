package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/population"
)

const catalogCSV = `placekey,location_name,date_range_start,visits_by_each_hour,capacity,jitter
zzw-222@63s-dv7-7yv,Corner Cafe,2024-03-04T00:00:00Z,"[0,1,2,3]",,
zzw-223@63s-dv7-7yv,"Park, North",,,12.5,
zzw-224@63s-dv7-7yv,Library,2024-03-04T00:00:00Z,"[10,10,10,10]",,0.5
`

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func TestReadPOIs(t *testing.T) {
	pois, err := ReadPOIs(strings.NewReader(catalogCSV), 0, 7)
	require.NoError(t, err)
	require.Len(t, pois, 3)

	assert.Equal(t, poi.ID("zzw-222@63s-dv7-7yv"), pois[0].ID)
	assert.Equal(t, "Park, North", pois[1].Name)

	for h, want := range []float64{0, 1, 2, 3, 0, 1} {
		assert.Equal(t, want, pois[0].Curve.At(monday.Add(time.Duration(h)*time.Hour)), "hour %d", h)
	}
	assert.Equal(t, 12.5, pois[1].Curve.At(monday))

	for h := 0; h < 48; h++ {
		c := pois[2].Curve.At(monday.Add(time.Duration(h) * time.Hour))
		assert.GreaterOrEqual(t, c, 5.0)
		assert.LessOrEqual(t, c, 15.0)
	}
}

func TestReadPOIs_Scale(t *testing.T) {
	pois, err := ReadPOIs(strings.NewReader(catalogCSV), 2, 7)
	require.NoError(t, err)
	assert.Equal(t, 25.0, pois[1].Curve.At(monday))
	assert.Equal(t, 6.0, pois[0].Curve.At(monday.Add(3*time.Hour)))
}

func TestReadPOIs_JitterIsSeeded(t *testing.T) {
	a, err := ReadPOIs(strings.NewReader(catalogCSV), 1, 7)
	require.NoError(t, err)
	b, err := ReadPOIs(strings.NewReader(catalogCSV), 1, 7)
	require.NoError(t, err)

	for h := 0; h < 24; h++ {
		at := monday.Add(time.Duration(h) * time.Hour)
		assert.Equal(t, a[2].Curve.At(at), b[2].Curve.At(at))
	}
}

func TestReadPOIs_POIIDColumn(t *testing.T) {
	pois, err := ReadPOIs(strings.NewReader("poi_id,location_name,capacity\nx,Shop,3\n"), 1, 0)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, poi.ID("x"), pois[0].ID)
}

func TestReadPOIs_OpeningHours(t *testing.T) {
	doc := "poi_id,location_name,capacity,opening_hours\n" +
		"x,Shop,6,\"{\"\"mon\"\":[8,18],\"\"Sat\"\":[22,2]}\"\n"
	pois, err := ReadPOIs(strings.NewReader(doc), 1, 0)
	require.NoError(t, err)
	require.Len(t, pois, 1)

	curve := pois[0].Curve
	assert.Equal(t, 0.0, curve.At(monday.Add(7*time.Hour)))
	assert.Equal(t, 6.0, curve.At(monday.Add(8*time.Hour)))
	assert.Equal(t, 6.0, curve.At(monday.Add(17*time.Hour)))
	assert.Equal(t, 0.0, curve.At(monday.Add(18*time.Hour)))
	assert.Equal(t, 0.0, curve.At(monday.AddDate(0, 0, 1).Add(10*time.Hour)), "tuesday is closed")
	saturday := monday.AddDate(0, 0, 5)
	assert.Equal(t, 6.0, curve.At(saturday.Add(23*time.Hour)))
	assert.Equal(t, 0.0, curve.At(saturday.Add(12*time.Hour)))
}

func TestReadPOIs_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty", ""},
		{"no id column", "location_name,capacity\nShop,3\n"},
		{"no name column", "poi_id,capacity\nx,3\n"},
		{"no rows", "poi_id,location_name,capacity\n"},
		{"empty id", "poi_id,location_name,capacity\n,Shop,3\n"},
		{"duplicate id", "poi_id,location_name,capacity\nx,Shop,3\nx,Shop,3\n"},
		{"empty name", "poi_id,location_name,capacity\nx,,3\n"},
		{"negative capacity", "poi_id,location_name,capacity\nx,Shop,-1\n"},
		{"no curve", "poi_id,location_name,capacity\nx,Shop,\n"},
		{"bad visits", "poi_id,location_name,date_range_start,visits_by_each_hour\nx,Shop,2024-03-04T00:00:00Z,[1,2\n"},
		{"negative visits", "poi_id,location_name,date_range_start,visits_by_each_hour\nx,Shop,2024-03-04T00:00:00Z,\"[1,-2]\"\n"},
		{"bad start", "poi_id,location_name,date_range_start,visits_by_each_hour\nx,Shop,yesterday,\"[1]\"\n"},
		{"bad jitter", "poi_id,location_name,capacity,jitter\nx,Shop,3,2\n"},
		{"hours without capacity", "poi_id,location_name,date_range_start,visits_by_each_hour,opening_hours\nx,Shop,2024-03-04T00:00:00Z,\"[1]\",\"{\"\"mon\"\":[8,18]}\"\n"},
		{"hours unknown day", "poi_id,location_name,capacity,opening_hours\nx,Shop,3,\"{\"\"funday\"\":[8,18]}\"\n"},
		{"hours out of range", "poi_id,location_name,capacity,opening_hours\nx,Shop,3,\"{\"\"mon\"\":[8,25]}\"\n"},
		{"hours not json", "poi_id,location_name,capacity,opening_hours\nx,Shop,3,8-18\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPOIs(strings.NewReader(tt.csv), 1, 0)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestReadPOIs_NegativeScale(t *testing.T) {
	_, err := ReadPOIs(strings.NewReader(catalogCSV), -1, 0)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPOIFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "town.csv")
	require.NoError(t, os.WriteFile(path, []byte(catalogCSV), 0o644))

	pois, err := POIFile{Path: path, Seed: 1}.LoadPOIs()
	require.NoError(t, err)
	assert.Len(t, pois, 3)

	_, err = POIFile{Path: filepath.Join(t.TempDir(), "missing.csv")}.LoadPOIs()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadPeople(t *testing.T) {
	doc := `{"people": {
		"10": {"sex": 1, "age": 34, "home": "zzw-222@63s-dv7-7yv"},
		"2":  {"sex": 0, "age": 7, "home": 5}
	}}`
	recs, err := ReadPeople(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, []population.Record{
		{ID: 2, Sex: population.SexMale, Age: 7, Home: "5"},
		{ID: 10, Sex: population.SexFemale, Age: 34, Home: "zzw-222@63s-dv7-7yv"},
	}, recs)
}

func TestReadPeople_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"not json", `{`, ErrMalformed},
		{"no people", `{}`, ErrMalformed},
		{"bad key", `{"people": {"abc": {"sex": 0, "age": 1, "home": "a"}}}`, ErrMalformed},
		{"missing sex", `{"people": {"1": {"age": 1, "home": "a"}}}`, ErrMalformed},
		{"missing age", `{"people": {"1": {"sex": 0, "home": "a"}}}`, ErrMalformed},
		{"missing home", `{"people": {"1": {"sex": 0, "age": 1}}}`, ErrMalformed},
		{"bad sex", `{"people": {"1": {"sex": 3, "age": 1, "home": "a"}}}`, population.ErrInvalidRecord},
		{"bad age", `{"people": {"1": {"sex": 0, "age": 500, "home": "a"}}}`, population.ErrInvalidRecord},
		{"empty home", `{"people": {"1": {"sex": 0, "age": 1, "home": ""}}}`, population.ErrInvalidRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPeople(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadPeople_FirstErrorIsLowestID(t *testing.T) {
	doc := `{"people": {
		"10": {"age": 1, "home": "a"},
		"2": {"sex": 0, "home": "a"},
		"7": {"sex": 0, "age": 1}
	}}`
	for i := 0; i < 20; i++ {
		_, err := ReadPeople(strings.NewReader(doc))
		require.ErrorIs(t, err, ErrMalformed)
		assert.Contains(t, err.Error(), "person 2 has no age")
	}
}

func TestReadPeople_DuplicateIDs(t *testing.T) {
	_, err := ReadPeople(strings.NewReader(`{"people": {
		"1": {"sex": 0, "age": 1, "home": "a"},
		"01": {"sex": 1, "age": 2, "home": "a"}
	}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPeopleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papdata.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"people": {"1": {"sex": 0, "age": 40, "home": "a"}}}`), 0o644))

	recs, err := PeopleFile{Path: path}.LoadPeople()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, poi.ID("a"), recs[0].Home)
}
