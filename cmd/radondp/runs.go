package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/radon-h2020/radon-defect-predictor/runhistory"
)

var (
	runsLimit      int
	runsSince      time.Duration
	runsClassifier string
	runsDataset    string
	runsMinScore   float64
	runsFormat     string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the history of past training runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded training runs, newest first",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show one run with all its evaluated candidates",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded runs to stdout",
	RunE:  runRunsExport,
}

func init() {
	for _, c := range []*cobra.Command{runsListCmd, runsExportCmd} {
		c.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs; 0 means no limit")
		c.Flags().DurationVar(&runsSince, "since", 0, "only runs started within this window (e.g. 72h)")
		c.Flags().StringVar(&runsClassifier, "classifier", "", "only runs won by this classifier")
		c.Flags().StringVar(&runsDataset, "dataset", "", "only runs trained on this csv path")
		c.Flags().Float64Var(&runsMinScore, "min-score", 0, "only runs with at least this score")
	}
	runsExportCmd.Flags().StringVar(&runsFormat, "format", "json", "export format (choices: json csv)")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

func openHistory() (runhistory.Store, error) {
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir %s: %w", cfg.WorkDir, err)
	}
	return runhistory.NewSQLite(cfg.HistoryPath())
}

func runsFilter(cmd *cobra.Command) runhistory.RunFilter {
	filter := runhistory.RunFilter{
		Classifier: runsClassifier,
		Dataset:    runsDataset,
		Limit:      runsLimit,
	}
	if runsSince > 0 {
		from := time.Now().UTC().Add(-runsSince)
		filter.From = &from
	}
	if cmd.Flags().Changed("min-score") {
		filter.MinScore = &runsMinScore
	}
	return filter
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	filter := runsFilter(cmd)
	records, err := store.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	red := color.New(color.FgRed).SprintFunc()
	fmt.Printf("%-36s %-20s %-18s %8s %8s\n", "RUN", "STARTED", "BEST", "SCORE", "FAILED")
	for _, r := range records {
		started := r.StartedAt.Local().Format("2006-01-02 15:04:05")
		failed := fmt.Sprintf("%d/%d", r.CandidatesFailed, r.CandidatesTotal)
		if r.BestClassifier == "" {
			fmt.Printf("%-36s %-20s %-18s %8s %8s\n", r.RunID, started, red("no viable model"), "-", failed)
			continue
		}
		fmt.Printf("%-36s %-20s %-18s %8.4f %8s\n", r.RunID, started, r.BestCombo(), r.BestScore, failed)
	}

	sum, err := store.Summary(ctx, filter)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d runs, best score %.4f, mean %.4f, %d of %d candidates failed\n",
		sum.TotalRuns, sum.BestScore, sum.MeanScore, sum.CandidatesFailed, sum.CandidatesTotal)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s\n\n", cyan("Run "+rec.RunID))
	fmt.Printf("Started:   %s\n", rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration:  %s\n", rec.Duration.Round(time.Millisecond))
	fmt.Printf("Dataset:   %s (%d rows, sha256 %s)\n", rec.DatasetPath, rec.DatasetRows, rec.DatasetSHA256)
	fmt.Printf("Seed:      %d\n", rec.Seed)
	fmt.Printf("Ratio:     %.2f\n", rec.ValidationRatio)
	fmt.Printf("Grid:      classifiers [%s], normalizers [%s], balancers [%s]\n",
		rec.Classifiers, rec.Normalizers, rec.Balancers)
	if rec.BestClassifier != "" {
		fmt.Printf("Best:      %s (score %.4f)\n", rec.BestCombo(), rec.BestScore)
	} else {
		fmt.Printf("Best:      none, every candidate failed\n")
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	fmt.Printf("\n%-18s %10s %12s\n", "COMBINATION", "SCORE", "ELAPSED")
	for _, c := range rec.Candidates {
		combo := c.Classifier + "/" + c.Normalizer + "/" + c.Balancer
		switch {
		case c.FitError != "":
			fmt.Println(red(fmt.Sprintf("%-18s %10s %12s  %s", combo, "failed", c.Elapsed.Round(time.Millisecond), c.FitError)))
		case combo == rec.BestCombo():
			fmt.Println(green(fmt.Sprintf("%-18s %10.4f %12s  selected", combo, c.Score, c.Elapsed.Round(time.Millisecond))))
		default:
			fmt.Printf("%-18s %10.4f %12s\n", combo, c.Score, c.Elapsed.Round(time.Millisecond))
		}
	}
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := store.Export(ctx, runsFilter(cmd), runhistory.ExportFormat(runsFormat))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
