package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/inference-sim/dvfs-sim/sim"
)

// presetsCmd lists the built-in cache hierarchies
var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in cache hierarchies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printPresets(cmd.OutOrStdout())
	},
}

func printPresets(out io.Writer) {
	name := color.New(color.FgCyan, color.Bold)
	for _, n := range sim.PresetNames() {
		h, _ := sim.LookupHierarchy(n)
		name.Fprintf(out, "%-18s", n)
		fmt.Fprintf(out, " %s\n", h.Description)
		fmt.Fprintf(out, "%-18s  workload %s, %d caches, power mode %s\n", "", h.Workload, len(h.Caches), h.PowerMode)
	}
}
