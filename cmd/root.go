package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/inference-sim/dvfs-sim/sim"
)

var (
	// CLI flags shared by run and replay
	configPath    string // YAML run configuration
	hierarchyName string // Built-in hierarchy preset
	statsFile     string // gem5 stats report read after every dump
	maxIntervals  int    // Interval budget
	tickQuantum   int64  // Ticks simulated per interval
	policyName    string // DVFS policy
	powerMode     string // Power mode: interval, cumulative or none
	readRetries   int    // Extra report read attempts
	traceLevel    string // Interval trace level
	resultsPath   string // File to save the JSON run result to
	monitorAddr   string // Listen address of the status monitor

	// CLI flags for the gem5 process
	gem5Binary   string // gem5 executable
	driverScript string // Driver script speaking the JSON-lines protocol
	outDir       string // gem5 output directory
	workload     string // Workload binary override

	logLevel string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "dvfs-sim",
	Short:         "Adaptive DVFS interval control over gem5 cache hierarchies",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// Execute runs the CLI root command. Failures run the registered exit
// handlers before exiting with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		atexit.Exit(1)
	}
}

// addRunFlags binds the run configuration flags to cmd.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML run configuration")
	cmd.Flags().StringVar(&hierarchyName, "hierarchy", "", fmt.Sprintf("Cache hierarchy preset %v", sim.PresetNames()))
	cmd.Flags().StringVar(&statsFile, "stats-file", "", "gem5 stats report to read after every dump")
	cmd.Flags().IntVar(&maxIntervals, "intervals", 0, "Maximum number of intervals")
	cmd.Flags().Int64Var(&tickQuantum, "tick-quantum", 0, "Ticks simulated per interval (0 = until the simulator exits)")
	cmd.Flags().StringVar(&policyName, "policy", "", "DVFS policy (feedback, round-robin, static)")
	cmd.Flags().StringVar(&powerMode, "power-mode", "", "Power mode (interval, cumulative, none)")
	cmd.Flags().IntVar(&readRetries, "read-retries", 0, "Extra attempts when the stats report cannot be read")
	cmd.Flags().StringVar(&traceLevel, "trace", "", "Interval trace level (none, intervals)")
	cmd.Flags().StringVar(&resultsPath, "results", "", "Write the run result as JSON to this file")
	cmd.Flags().StringVar(&monitorAddr, "monitor-addr", "", "Serve run status over HTTP on this address")
}

// resolveConfig loads the YAML configuration (or defaults) and applies the
// flags the user set explicitly.
func resolveConfig(cmd *cobra.Command) (*sim.RunConfig, *sim.Hierarchy, error) {
	cfg := sim.DefaultRunConfig()
	if configPath != "" {
		loaded, err := sim.LoadRunConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("hierarchy") {
		cfg.Hierarchy = hierarchyName
	}
	if flags.Changed("stats-file") {
		cfg.StatsFile = statsFile
	}
	if flags.Changed("intervals") {
		cfg.Intervals.Max = maxIntervals
	}
	if flags.Changed("tick-quantum") {
		cfg.Intervals.TickQuantum = tickQuantum
	}
	if flags.Changed("policy") {
		cfg.Control.Policy = policyName
	}
	if flags.Changed("power-mode") {
		cfg.Energy.PowerMode = sim.PowerMode(powerMode)
	}
	if flags.Changed("read-retries") {
		cfg.Stats.ReadRetries = readRetries
	}
	if flags.Changed("trace") {
		cfg.Trace.Level = traceLevel
	}
	if flags.Lookup("gem5") != nil {
		if flags.Changed("gem5") {
			cfg.Simulator.Binary = gem5Binary
		}
		if flags.Changed("driver") {
			cfg.Simulator.Driver = driverScript
		}
		if flags.Changed("outdir") {
			cfg.Simulator.OutDir = outDir
		}
		if flags.Changed("workload") {
			cfg.Simulator.Workload = workload
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	h, err := cfg.ResolveHierarchy()
	if err != nil {
		return nil, nil, err
	}
	return cfg, h, nil
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&gem5Binary, "gem5", "", "gem5 executable (default from config: gem5.opt)")
	runCmd.Flags().StringVar(&driverScript, "driver", "", "Driver script run by gem5")
	runCmd.Flags().StringVar(&outDir, "outdir", "", "gem5 output directory")
	runCmd.Flags().StringVar(&workload, "workload", "", "Workload binary (default from the hierarchy preset)")

	addRunFlags(replayCmd)
	addEnergyFlags(energyCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(energyCmd)
	rootCmd.AddCommand(presetsCmd)
}
