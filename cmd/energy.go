package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/inference-sim/dvfs-sim/sim"
)

var energyHierarchy string // Hierarchy whose energy table is applied

// energyCmd evaluates one stats report without running the loop
var energyCmd = &cobra.Command{
	Use:   "energy <stats-report>",
	Short: "Compute energy and power of an existing gem5 stats report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := sim.LookupHierarchy(energyHierarchy)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("power-mode") {
			h.PowerMode = sim.PowerMode(powerMode)
		}
		return reportEnergy(args[0], h, cmd.OutOrStdout())
	},
}

func addEnergyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&energyHierarchy, "hierarchy", "l1-l2", fmt.Sprintf("Cache hierarchy preset %v", sim.PresetNames()))
	cmd.Flags().StringVar(&powerMode, "power-mode", "", "Power mode (interval, cumulative, none)")
}

// reportEnergy prints the energy of the last dump in path under h's model.
func reportEnergy(path string, h *sim.Hierarchy, out io.Writer) error {
	model, err := sim.NewEnergyModel(h.EnergyTerms, h.Coefficients, h.PowerMode)
	if err != nil {
		return err
	}
	snap, err := sim.NewStatReader(model.Counters()).Refresh(path)
	if err != nil {
		return err
	}
	report := model.Accumulate(snap, sim.NewEnergyState())

	color.New(color.Bold).Fprintf(out, "%s (%s)\n", path, h.Name)
	for _, k := range snap.Keys() {
		note := ""
		if snap.Missing(k) {
			note = " (missing)"
		}
		fmt.Fprintf(out, "  %-60s %s%s\n", k, snap.Value(k), note)
	}
	fmt.Fprintf(out, "Energy Consumed: %s nJ\n", report.Cumulative.StringFixed(10))
	if model.Mode() != sim.PowerNone {
		fmt.Fprintf(out, "Power Consumption: %s W\n", report.Power.StringFixed(10))
	}
	return nil
}
