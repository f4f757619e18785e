package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resflow/resflow-sim/sim"
	"github.com/resflow/resflow-sim/sim/model"
	"github.com/resflow/resflow-sim/sim/trace"
)

const clinicModel = "../examples/clinic.yaml"

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int64Var(&seed, "seed", 42, "")
	cmd.Flags().Int64Var(&simulationStart, "start", 0, "")
	cmd.Flags().Int64Var(&simulationEnd, "horizon", 0, "")
	cmd.Flags().StringVar(&dispatchKind, "dispatch", "sequential", "")
	cmd.Flags().IntVar(&workers, "workers", 1, "")
	return cmd
}

func TestApplyOverrides_OnlyChangedFlags(t *testing.T) {
	// GIVEN a file config and a command where only --seed and --workers are set
	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--seed", "7", "--workers", "4"}))
	file := sim.Config{Start: 10, End: 500, Seed: 1, Dispatch: sim.DispatchPool, Workers: 2}

	// WHEN overrides are applied
	cfg := applyOverrides(cmd, file)

	// THEN only the changed flags replace file values
	assert.Equal(t, sim.Config{Start: 10, End: 500, Seed: 7, Dispatch: sim.DispatchPool, Workers: 4}, cfg)
}

func TestApplyOverrides_HorizonAndDispatch(t *testing.T) {
	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--horizon", "100", "--start", "5", "--dispatch", "barrier"}))
	cfg := applyOverrides(cmd, sim.Config{End: 1000})
	assert.Equal(t, int64(5), cfg.Start)
	assert.Equal(t, int64(100), cfg.End)
	assert.Equal(t, sim.DispatchBarrier, cfg.Dispatch)
}

func TestRunSimulation_ClinicExample(t *testing.T) {
	// GIVEN the clinic example
	spec, err := model.Load(clinicModel)
	require.NoError(t, err)
	m, err := model.Build(spec)
	require.NoError(t, err)

	// WHEN run with activity tracing
	collector, st, err := runSimulation(m, spec.Config(), trace.TraceConfig{Level: trace.TraceLevelActivities})
	require.NoError(t, err)

	// THEN patients arrived, most were served, and the trace saw them
	assert.Greater(t, collector.ElementsStarted(), 50)
	assert.Greater(t, collector.ElementsFinished(), 0)
	require.NotNil(t, st)
	summary := trace.Summarize(st)
	assert.Equal(t, collector.ElementsStarted(), summary.ElementsStarted)
	assert.LessOrEqual(t, summary.MaxConcurrent, 4, "at most three doctors and one nurse are ever on duty")
	u := collector.Utilization("doctor")
	assert.True(t, u > 0 && u <= 1, "doctor utilization %v", u)
}

func TestRunSimulation_NoTrace(t *testing.T) {
	m, cfg, err := model.LoadAndBuild(clinicModel)
	require.NoError(t, err)
	_, st, err := runSimulation(m, cfg, trace.TraceConfig{Level: trace.TraceLevelNone})
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRunSimulation_InvalidConfig(t *testing.T) {
	m, cfg, err := model.LoadAndBuild(clinicModel)
	require.NoError(t, err)
	cfg.End = cfg.Start
	_, _, err = runSimulation(m, cfg, trace.TraceConfig{})
	assert.Error(t, err)
}

func TestDescribeModel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, describeModel(clinicModel, &buf))
	out := buf.String()
	assert.Contains(t, out, "Model clinic is valid")
	assert.Contains(t, out, "manager 0: doctor nurse | triage xray consult")
}

func TestDescribeModel_MissingFile(t *testing.T) {
	assert.Error(t, describeModel("does-not-exist.yaml", &bytes.Buffer{}))
}
