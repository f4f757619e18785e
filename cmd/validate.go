package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/resflow/resflow-sim/sim/model"
)

// describeModel loads and builds a model, then writes its manager partition.
func describeModel(path string, w io.Writer) error {
	m, cfg, err := model.LoadAndBuild(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Model %s is valid: horizon [%d, %d), seed %d\n", m.ID, cfg.Start, cfg.End, cfg.Seed)
	for _, mgr := range m.Managers() {
		fmt.Fprintf(w, "  manager %d:", mgr.ID())
		for _, rt := range mgr.ResourceTypes() {
			fmt.Fprintf(w, " %s", rt.ID)
		}
		fmt.Fprint(w, " |")
		for _, a := range mgr.Activities() {
			fmt.Fprintf(w, " %s", a.ID)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// validateCmd checks a model file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a simulation model",
	RunE: func(cmd *cobra.Command, args []string) error {
		setLogLevel()
		if modelPath == "" {
			return fmt.Errorf("model file not provided")
		}
		if err := describeModel(modelPath, cmd.OutOrStdout()); err != nil {
			logrus.Errorf("model %s is invalid", modelPath)
			return err
		}
		return nil
	},
}
