// Package config loads run configuration from YAML, .env files, FOOTFALL_*
// environment variables and the legacy setting.txt format.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/footfall/internal/engine"
	"github.com/talgya/footfall/internal/population"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full run configuration.
type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Inputs     InputsConfig     `json:"inputs" yaml:"inputs"`
	Output     OutputConfig     `json:"output" yaml:"output"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	API        APIConfig        `json:"api" yaml:"api"`
}

// SimulationConfig holds the clock, seed and decision parameters.
type SimulationConfig struct {
	Start time.Time `json:"start" yaml:"start"`
	Ticks int       `json:"ticks" yaml:"ticks"`
	Seed  int64     `json:"seed" yaml:"seed"`

	Alpha            float64 `json:"alpha" yaml:"alpha"`
	OccupancyWeight  float64 `json:"occupancy_weight" yaml:"occupancy_weight"`
	TendencyDecay    float64 `json:"tendency_decay" yaml:"tendency_decay"`
	LeaveProbability float64 `json:"leave_probability" yaml:"leave_probability"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`

	TendencyIncrement float64 `json:"tendency_increment" yaml:"tendency_increment"`
	TendencyCeiling   float64 `json:"tendency_ceiling" yaml:"tendency_ceiling"`
	HomeTendency      float64 `json:"home_tendency" yaml:"home_tendency"`

	CapacityScale   float64       `json:"capacity_scale" yaml:"capacity_scale"`
	CheckInvariants bool          `json:"check_invariants" yaml:"check_invariants"`
	Pace            time.Duration `json:"pace" yaml:"pace"`
}

// InputsConfig names the catalog and population files.
type InputsConfig struct {
	POIs   string `json:"pois" yaml:"pois"`
	People string `json:"people" yaml:"people"`
}

// OutputConfig selects where results go. Empty SQLite and PostgresDSN
// disable those stores.
type OutputConfig struct {
	Dir         string `json:"dir" yaml:"dir"`
	SQLite      string `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`

	// TrackPerson is the id whose path is logged; -1 tracks the lowest id.
	TrackPerson int `json:"track_person" yaml:"track_person"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// APIConfig controls the read-only HTTP API. Port 0 disables it.
type APIConfig struct {
	Port int `json:"port" yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := engine.DefaultParams()
	tp := population.DefaultTendencyParams()
	return &Config{
		Simulation: SimulationConfig{
			Start:             time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC),
			Ticks:             168,
			Seed:              42,
			Alpha:             p.Alpha,
			OccupancyWeight:   p.OccupancyWeight,
			TendencyDecay:     p.TendencyDecay,
			LeaveProbability:  p.LeaveProbability,
			Temperature:       p.Temperature,
			TendencyIncrement: tp.Increment,
			TendencyCeiling:   tp.Ceiling,
			HomeTendency:      tp.Home,
			CapacityScale:     1,
			CheckInvariants:   true,
		},
		Inputs: InputsConfig{
			POIs:   filepath.Join("input", "town.csv"),
			People: filepath.Join("input", "papdata.json"),
		},
		Output: OutputConfig{
			Dir:         "output",
			TrackPerson: -1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), a .env file in the working directory (if present) and
// FOOTFALL_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML config. Missing keys keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Output.PostgresDSN = expandEnvVars(cfg.Output.PostgresDSN)
	return cfg, nil
}

// Validate checks ranges that the engine and stores would otherwise reject
// later.
func (c *Config) Validate() error {
	if c.Simulation.Ticks < 1 {
		return fmt.Errorf("%w: ticks must be at least 1, got %d", ErrInvalidConfig, c.Simulation.Ticks)
	}
	if c.Simulation.Start.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrInvalidConfig)
	}
	if err := c.EngineParams().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	tp := c.TendencyParams()
	if tp.Increment < 0 || tp.Ceiling < 0 || tp.Home < 0 || (tp.Ceiling > 0 && tp.Home > tp.Ceiling) {
		return fmt.Errorf("%w: tendency increment/ceiling/home must be non-negative with home <= ceiling", ErrInvalidConfig)
	}
	if s := c.Simulation.CapacityScale; s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("%w: capacity_scale must be non-negative, got %v", ErrInvalidConfig, s)
	}
	if c.Simulation.Pace < 0 {
		return fmt.Errorf("%w: pace must be non-negative, got %v", ErrInvalidConfig, c.Simulation.Pace)
	}
	if c.Inputs.POIs == "" || c.Inputs.People == "" {
		return fmt.Errorf("%w: inputs.pois and inputs.people are required", ErrInvalidConfig)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is required", ErrInvalidConfig)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: invalid api port %d", ErrInvalidConfig, c.API.Port)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid log level: %s (valid: info, debug, trace, or empty for default)", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}

// EngineParams returns the decision parameters for the simulation.
func (c *Config) EngineParams() engine.Params {
	s := c.Simulation
	return engine.Params{
		Alpha:            s.Alpha,
		OccupancyWeight:  s.OccupancyWeight,
		TendencyDecay:    s.TendencyDecay,
		LeaveProbability: s.LeaveProbability,
		Temperature:      s.Temperature,
	}
}

// TendencyParams returns the habit reinforcement settings for the store.
func (c *Config) TendencyParams() population.TendencyParams {
	s := c.Simulation
	return population.TendencyParams{
		Increment: s.TendencyIncrement,
		Ceiling:   s.TendencyCeiling,
		Home:      s.HomeTendency,
	}
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"FOOTFALL_POIS":         &cfg.Inputs.POIs,
		"FOOTFALL_PEOPLE":       &cfg.Inputs.People,
		"FOOTFALL_OUTPUT_DIR":   &cfg.Output.Dir,
		"FOOTFALL_SQLITE":       &cfg.Output.SQLite,
		"FOOTFALL_POSTGRES_DSN": &cfg.Output.PostgresDSN,
		"FOOTFALL_LOG_LEVEL":    &cfg.Logging.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"FOOTFALL_ALPHA":             &cfg.Simulation.Alpha,
		"FOOTFALL_OCCUPANCY_WEIGHT":  &cfg.Simulation.OccupancyWeight,
		"FOOTFALL_TENDENCY_DECAY":    &cfg.Simulation.TendencyDecay,
		"FOOTFALL_LEAVE_PROBABILITY": &cfg.Simulation.LeaveProbability,
		"FOOTFALL_TEMPERATURE":       &cfg.Simulation.Temperature,
		"FOOTFALL_CAPACITY_SCALE":    &cfg.Simulation.CapacityScale,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"FOOTFALL_TICKS":        &cfg.Simulation.Ticks,
		"FOOTFALL_API_PORT":     &cfg.API.Port,
		"FOOTFALL_TRACK_PERSON": &cfg.Output.TrackPerson,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("FOOTFALL_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FOOTFALL_SEED: %w", err)
		}
		cfg.Simulation.Seed = n
	}
	if v := os.Getenv("FOOTFALL_START"); v != "" {
		t, err := ParseStart(v)
		if err != nil {
			return fmt.Errorf("FOOTFALL_START: %w", err)
		}
		cfg.Simulation.Start = t
	}
	if v := os.Getenv("FOOTFALL_CHECK_INVARIANTS"); v != "" {
		cfg.Simulation.CheckInvariants = v == "true" || v == "1"
	}
	return nil
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseStart parses an ISO-8601 start time. Times without a zone are UTC.
func ParseStart(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised start time %q", s)
}

// Settings is the legacy four-line setting.txt: town name, population
// (unused), start time, duration in hours.
type Settings struct {
	Town     string
	Start    time.Time
	Duration int
}

// LoadSettings reads a setting.txt file.
func LoadSettings(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(lines) < 4 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: %s has %d lines, want 4", ErrInvalidConfig, path, len(lines))
	}

	s := &Settings{Town: lines[0]}
	if s.Town == "" {
		return nil, fmt.Errorf("%w: %s: empty town name", ErrInvalidConfig, path)
	}
	if s.Start, err = ParseStart(lines[2]); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if s.Duration, err = strconv.Atoi(lines[3]); err != nil || s.Duration < 1 {
		return nil, fmt.Errorf("%w: %s: duration %q is not a positive integer", ErrInvalidConfig, path, lines[3])
	}
	return s, nil
}

// Apply copies the settings into cfg. The catalog is input/<town>.csv
// next to the settings file.
func (s *Settings) Apply(cfg *Config, settingsPath string) {
	dir := filepath.Dir(settingsPath)
	cfg.Inputs.POIs = filepath.Join(dir, "input", s.Town+".csv")
	cfg.Simulation.Start = s.Start
	cfg.Simulation.Ticks = s.Duration
}
