package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and inputs without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			w, err := buildWorld(cfg)
			if err != nil {
				return err
			}

			start := cfg.Simulation.Start
			open, total := 0, 0.0
			for _, c := range w.reg.Capacities(start) {
				if c > 0 {
					open++
					total += c
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "POIs:       %d (%d open at start, capacity %.1f)\n", w.reg.Len(), open, total)
			fmt.Fprintf(out, "People:     %s\n", humanize.Comma(int64(w.people.Len())))
			fmt.Fprintf(out, "Start:      %s\n", start.Format("Mon 2006-01-02 15:04 MST"))
			fmt.Fprintf(out, "Ticks:      %d hours\n", cfg.Simulation.Ticks)
			fmt.Fprintf(out, "Parameters: alpha=%.4f occupancy_weight=%.4f decay=%.4f leave=%.2f\n",
				cfg.Simulation.Alpha, cfg.Simulation.OccupancyWeight,
				cfg.Simulation.TendencyDecay, cfg.Simulation.LeaveProbability)
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
}
