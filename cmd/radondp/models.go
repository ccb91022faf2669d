package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/radon-h2020/radon-defect-predictor/artifact"
	"github.com/radon-h2020/radon-defect-predictor/modelstore"
)

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the models stored in the workdir catalog",
	RunE:  runModelList,
}

func init() {
	modelCmd.AddCommand(modelListCmd)
}

func runModelList(cmd *cobra.Command, args []string) error {
	catalog, err := modelstore.NewCatalog(cfg.ModelsDir(), 0, obs.Logger(), obs.Metrics())
	if err != nil {
		return err
	}
	names, err := catalog.Names()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Printf("No models in %s. Train one or run 'radondp model download'.\n", cfg.ModelsDir())
		return nil
	}

	red := color.New(color.FgRed).SprintFunc()
	fmt.Printf("%-12s %-18s %8s %-12s %s\n", "NAME", "COMBINATION", "SCORE", "TRAINED", "RUN")
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(cfg.ModelsDir(), name, artifact.ManifestFileName))
		if err != nil {
			fmt.Printf("%-12s %s\n", name, red("unreadable manifest"))
			continue
		}
		m, err := artifact.FromJSON(raw)
		if err != nil {
			fmt.Printf("%-12s %s\n", name, red("corrupt manifest"))
			continue
		}
		combo := m.Classifier + "/" + m.Normalizer + "/" + m.Balancer
		fmt.Printf("%-12s %-18s %8.4f %-12s %s\n",
			name, combo, m.Score, m.TrainedAt.Local().Format("2006-01-02"), m.RunID)
	}
	return nil
}
