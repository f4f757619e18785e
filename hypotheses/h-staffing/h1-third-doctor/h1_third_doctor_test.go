package staffing

// H1 Third Doctor Experiment
//
// Hypothesis: in the clinic example, where doctors are the bottleneck, adding
// a third doctor on the same 09:00-17:00 shift raises the number of patients
// discharged within the horizon. Consult waits are recorded alongside; they
// are not asserted because the extra capacity also serves patients who queued
// overnight, which can pull the mean up.
//
// Method:
//   For each seed:
//   1. Load examples/clinic.yaml and run it -> baseline
//   2. Append a doctor cloned from dr_ana's timetable and run again -> treatment
//   3. Record consult mean/p95 wait, doctor utilization and discharges
//   Write one CSV row per (seed, variant) and compare the seed averages.

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/resflow/resflow-sim/sim"
	"github.com/resflow/resflow-sim/sim/model"
	"github.com/resflow/resflow-sim/sim/stats"
	"github.com/stretchr/testify/require"
)

// h1ClinicPath locates examples/clinic.yaml from this file's location.
func h1ClinicPath(t *testing.T) string {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	repoRoot := filepath.Join(filepath.Dir(filename), "..", "..", "..")
	return filepath.Join(repoRoot, "examples", "clinic.yaml")
}

// h1OutputDir is RESFLOW_HYPOTHESIS_OUT when set, else a temp dir.
func h1OutputDir(t *testing.T) string {
	if dir := os.Getenv("RESFLOW_HYPOTHESIS_OUT"); dir != "" {
		require.NoError(t, os.MkdirAll(dir, 0o755))
		return dir
	}
	return t.TempDir()
}

type h1Result struct {
	seed        int64
	variant     string
	meanWait    float64
	p95Wait     float64
	utilization float64
	discharged  int
}

func h1Run(t *testing.T, seed int64, extraDoctor bool) h1Result {
	t.Helper()
	spec, err := model.Load(h1ClinicPath(t))
	require.NoError(t, err)
	variant := "two_doctors"
	if extraDoctor {
		variant = "three_doctors"
		var template *model.ResourceSpec
		for i := range spec.Resources {
			if spec.Resources[i].ID == "dr_ana" {
				template = &spec.Resources[i]
			}
		}
		require.NotNil(t, template, "clinic example must define dr_ana")
		spec.Resources = append(spec.Resources, model.ResourceSpec{ID: "dr_cal", Timetable: template.Timetable})
	}
	m, err := model.Build(spec)
	require.NoError(t, err)

	cfg := spec.Config()
	cfg.Seed = seed
	cfg.Dispatch = sim.DispatchSequential
	s, err := sim.NewSimulation(m, cfg)
	require.NoError(t, err)
	collector := stats.NewCollector()
	s.AddListener(collector)
	s.Run()

	res := h1Result{
		seed:        seed,
		variant:     variant,
		utilization: collector.Utilization("doctor"),
		discharged:  collector.ElementsFinished(),
	}
	for _, a := range collector.Activities() {
		if a.Activity == "consult" {
			res.meanWait = a.MeanWait
			res.p95Wait = a.P95Wait
		}
	}
	return res
}

func TestH1_ThirdDoctorRaisesDischarges(t *testing.T) {
	seeds := []int64{1, 2, 3, 4, 5}
	var rows [][]string
	sums := map[string]*h1Result{
		"two_doctors":   {},
		"three_doctors": {},
	}
	for _, seed := range seeds {
		for _, extra := range []bool{false, true} {
			r := h1Run(t, seed, extra)
			rows = append(rows, []string{
				strconv.FormatInt(r.seed, 10),
				r.variant,
				fmt.Sprintf("%.2f", r.meanWait),
				fmt.Sprintf("%.2f", r.p95Wait),
				fmt.Sprintf("%.3f", r.utilization),
				strconv.Itoa(r.discharged),
			})
			sum := sums[r.variant]
			sum.meanWait += r.meanWait / float64(len(seeds))
			sum.discharged += r.discharged
		}
	}

	out := filepath.Join(h1OutputDir(t), "h1_third_doctor.csv")
	f, err := os.Create(out)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{"seed", "variant", "consult_mean_wait", "consult_p95_wait", "doctor_utilization", "discharged"}))
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
	t.Logf("results written to %s", out)

	two, three := sums["two_doctors"], sums["three_doctors"]
	t.Logf("mean consult wait: two doctors %.1f, three doctors %.1f", two.meanWait, three.meanWait)
	t.Logf("discharged: two doctors %d, three doctors %d", two.discharged, three.discharged)
	require.Greater(t, three.discharged, two.discharged)
}
