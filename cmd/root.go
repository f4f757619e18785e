package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/resflow/resflow-sim/sim"
	"github.com/resflow/resflow-sim/sim/model"
	"github.com/resflow/resflow-sim/sim/stats"
	"github.com/resflow/resflow-sim/sim/trace"
)

var (
	// CLI flags overriding the model's run block
	modelPath       string // Path to the YAML model
	seed            int64  // Seed for every random stream of the run
	simulationStart int64  // First tick of the horizon
	simulationEnd   int64  // End of the horizon (exclusive, in ticks)
	dispatchKind    string // Same-instant event dispatch strategy
	workers         int    // Workers of parallel dispatchers
	logLevel        string // Log verbosity level

	// CLI flags for trace output
	traceLevel      string // Trace verbosity level
	traceOutput     string // File receiving the YAML trace
	traceMaxRecords int    // Cap on each trace record list
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "resflow",
	Short: "Discrete-event simulator for resource-constrained workflows",
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// applyOverrides replaces the file's run parameters with the flags the user set.
func applyOverrides(cmd *cobra.Command, cfg sim.Config) sim.Config {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("start") {
		cfg.Start = simulationStart
	}
	if flags.Changed("horizon") {
		cfg.End = simulationEnd
	}
	if flags.Changed("dispatch") {
		cfg.Dispatch = sim.DispatchKind(dispatchKind)
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	return cfg
}

// runSimulation runs a built model and returns its statistics and trace.
func runSimulation(m *sim.Model, cfg sim.Config, tc trace.TraceConfig) (*stats.Collector, *trace.SimulationTrace, error) {
	s, err := sim.NewSimulation(m, cfg)
	if err != nil {
		return nil, nil, err
	}
	collector := stats.NewCollector()
	s.AddListener(collector)
	var st *trace.SimulationTrace
	if tc.Level != "" && tc.Level != trace.TraceLevelNone {
		st = trace.NewSimulationTrace(tc)
		s.AddListener(st)
	}
	s.Run()
	return collector, st, nil
}

func writeTrace(st *trace.SimulationTrace, path string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating trace file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return st.WriteYAML(w)
}

// runCmd executes the simulation using the model file and CLI overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation model",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		if modelPath == "" {
			logrus.Fatalf("Model file not provided. Exiting simulation.")
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}

		spec, err := model.Load(modelPath)
		if err != nil {
			logrus.Fatalf("unable to read model; %v", err)
		}
		m, err := model.Build(spec)
		if err != nil {
			logrus.Fatalf("invalid model; %v", err)
		}
		cfg := applyOverrides(cmd, spec.Config())

		startTime := time.Now()
		collector, st, err := runSimulation(m, cfg, trace.TraceConfig{
			Level:      trace.TraceLevel(traceLevel),
			MaxRecords: traceMaxRecords,
		})
		if err != nil {
			logrus.Fatalf("unable to start simulation; %v", err)
		}
		collector.Print()
		logrus.Infof("Wall time: %v", time.Since(startTime))

		if st != nil {
			summary := trace.Summarize(st)
			logrus.Infof("Trace: %d time steps, %d activity starts, %d interruptions, peak %d concurrent activities",
				summary.TimeSteps, summary.ActivityStarts, summary.Interruptions, summary.MaxConcurrent)
			if err := writeTrace(st, traceOutput); err != nil {
				logrus.Fatalf("unable to write trace; %v", err)
			}
		}

		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&modelPath, "model", "", "Path to the YAML model")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for every random stream (overrides run.seed)")
	runCmd.Flags().Int64Var(&simulationStart, "start", 0, "First tick of the horizon (overrides run.start)")
	runCmd.Flags().Int64Var(&simulationEnd, "horizon", 0, "End of the simulation horizon in ticks (overrides run.end)")
	runCmd.Flags().StringVar(&dispatchKind, "dispatch", string(sim.DispatchSequential), "Event dispatch strategy (sequential, pool, barrier, batched)")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Workers of parallel dispatchers")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Trace level (none, activities, all)")
	runCmd.Flags().StringVar(&traceOutput, "trace-out", "", "File for the YAML trace (stdout when empty)")
	runCmd.Flags().IntVar(&traceMaxRecords, "trace-max-records", 0, "Maximum records per trace list (0 = unbounded)")

	validateCmd.Flags().StringVar(&modelPath, "model", "", "Path to the YAML model")
	validateCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
