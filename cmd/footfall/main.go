// Command footfall runs the hourly POI occupancy simulation.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/footfall/internal/config"
	"github.com/talgya/footfall/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("footfall failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "footfall",
		Short: "Hourly occupancy simulation for points of interest",
		Long: `footfall moves a population between points of interest hour by hour.

Each hour some occupants leave, then every idle person picks a POI with
room left, weighing free space, crowding and habit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("settings", "", "legacy setting.txt (town, population, start, hours)")
	rootCmd.PersistentFlags().String("pois", "", "POI catalog CSV")
	rootCmd.PersistentFlags().String("people", "", "population JSON (papdata format)")
	rootCmd.PersistentFlags().String("out", "", "output directory")
	rootCmd.PersistentFlags().String("db", "", "SQLite database for run history")
	rootCmd.PersistentFlags().Int64("seed", 0, "random seed")
	rootCmd.PersistentFlags().Int("ticks", 0, "hours to simulate")
	rootCmd.PersistentFlags().String("start", "", "simulated start time (ISO 8601)")
	rootCmd.PersistentFlags().String("log-level", "", "info, debug or trace")
	rootCmd.PersistentFlags().Int("api-port", 0, "serve the read-only HTTP API on this port")

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "footfall version %s\n", version)
		},
	}
}

// loadConfig layers defaults, the config file, .env and FOOTFALL_* variables,
// the legacy settings file and finally explicit flags, then installs the
// logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if settingsPath, _ := flags.GetString("settings"); settingsPath != "" {
		s, err := config.LoadSettings(settingsPath)
		if err != nil {
			return nil, err
		}
		s.Apply(cfg, settingsPath)
	}

	strs := map[string]*string{
		"pois":      &cfg.Inputs.POIs,
		"people":    &cfg.Inputs.People,
		"out":       &cfg.Output.Dir,
		"db":        &cfg.Output.SQLite,
		"log-level": &cfg.Logging.Level,
	}
	for name, dst := range strs {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("ticks") {
		cfg.Simulation.Ticks, _ = flags.GetInt("ticks")
	}
	if flags.Changed("api-port") {
		cfg.API.Port, _ = flags.GetInt("api-port")
	}
	if flags.Changed("start") {
		raw, _ := flags.GetString("start")
		if cfg.Simulation.Start, err = config.ParseStart(raw); err != nil {
			return nil, fmt.Errorf("--start: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, os.Stderr))
	return cfg, nil
}
