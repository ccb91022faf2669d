package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/dataset"
	"github.com/radon-h2020/radon-defect-predictor/modelstore"
	"github.com/radon-h2020/radon-defect-predictor/pkg/observability"
	"github.com/radon-h2020/radon-defect-predictor/runhistory"
	"github.com/radon-h2020/radon-defect-predictor/trainer"
)

var (
	trainCSV         string
	trainLabel       string
	trainClassifiers string
	trainBalancers   string
	trainNormalizers string
	trainSeed        int64
	trainRatio       float64
	trainWorkers     int
	trainBudget      time.Duration
	trainDest        string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a brand new model from scratch",
	Long: `Train searches every requested combination of classifier, normalizer
and balancer on the given metrics table, keeps the combination with the
best F-measure on a held-out validation split, and saves it together
with its feature manifest.

Example:
  radondp train --path-to-csv metrics.csv --classifiers "dt rf" -d ./model`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainCSV, "path-to-csv", "", "path to the csv file containing the data for training")
	trainCmd.Flags().StringVar(&trainLabel, "label", "failure_prone", "name of the label column in the csv")
	trainCmd.Flags().StringVar(&trainClassifiers, "classifiers", "", `classifiers to train, space separated (choices: dt logit nb rf svm)`)
	trainCmd.Flags().StringVar(&trainBalancers, "balancers", "", `balancers for the training data, space separated (choices: none rus ros); empty means all`)
	trainCmd.Flags().StringVar(&trainNormalizers, "normalizers", "", `normalizers for the data, space separated (choices: none minmax std); empty means all`)
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "random seed for partitioning, balancing and fitting")
	trainCmd.Flags().Float64Var(&trainRatio, "validation-ratio", 0.25, "fraction of rows held out for validation")
	trainCmd.Flags().IntVar(&trainWorkers, "workers", 0, "parallel fits; 0 means one per CPU")
	trainCmd.Flags().DurationVar(&trainBudget, "budget", 0, "wall-clock budget for the whole search; 0 means none")
	trainCmd.Flags().StringVarP(&trainDest, "destination", "d", "", "destination folder for the trained model")
	_ = trainCmd.MarkFlagRequired("path-to-csv")
	_ = trainCmd.MarkFlagRequired("classifiers")
	_ = trainCmd.MarkFlagRequired("destination")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := obs.Logger()

	classifiers, err := parseClassifierList(trainClassifiers)
	if err != nil {
		return err
	}
	balancers, err := parseBalancerList(trainBalancers)
	if err != nil {
		return err
	}
	normalizers, err := parseNormalizerList(trainNormalizers)
	if err != nil {
		return err
	}
	if err := checkDir(trainDest); err != nil {
		return err
	}

	raw, err := os.ReadFile(trainCSV)
	if err != nil {
		return fmt.Errorf("read %s: %w", trainCSV, err)
	}
	ds, err := dataset.ReadCSV(bytes.NewReader(raw), trainLabel)
	if err != nil {
		return fmt.Errorf("load %s: %w", trainCSV, err)
	}
	fingerprint := sha256.Sum256(raw)

	opts := trainer.Options{
		Classifiers:     classifiers,
		Normalizers:     normalizers,
		Balancers:       balancers,
		Seed:            trainSeed,
		ValidationRatio: trainRatio,
		Workers:         trainWorkers,
		Budget:          trainBudget,
	}
	if !cmd.Flags().Changed("validation-ratio") && cfg.Training.ValidationRatio > 0 {
		opts.ValidationRatio = cfg.Training.ValidationRatio
	}
	if !cmd.Flags().Changed("workers") {
		opts.Workers = cfg.Training.Workers
	}
	if !cmd.Flags().Changed("budget") {
		opts.Budget = time.Duration(cfg.Training.Budget)
	}

	tr, err := trainer.New(opts, logger, obs.Metrics())
	if err != nil {
		return err
	}

	if len(normalizers) == 0 {
		normalizers = core.Normalizers
	}
	if len(balancers) == 0 {
		balancers = core.Balancers
	}
	gridSize := len(classifiers) * len(normalizers) * len(balancers)

	start := time.Now()
	ctx, span := obs.StartTrainingSpan(ctx, trainCSV, gridSize)
	model, candidates, trainErr := tr.Train(ctx, ds)
	observability.EndSpan(span, trainErr)
	elapsed := time.Since(start)

	rec := runhistory.FromTraining(model, candidates, elapsed)
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = start.UTC()
	}
	rec.Seed = opts.Seed
	rec.ValidationRatio = opts.ValidationRatio
	rec.DatasetPath = trainCSV
	rec.DatasetSHA256 = hex.EncodeToString(fingerprint[:])
	rec.DatasetRows = ds.NumRows()
	rec.Classifiers = joinKinds(classifiers)
	rec.Normalizers = joinKinds(normalizers)
	rec.Balancers = joinKinds(balancers)

	if histErr := recordRun(ctx, rec); histErr != nil {
		logger.Warn("run not recorded in history", zap.Error(histErr))
	}

	if trainErr != nil {
		printCandidates(candidates, nil)
		return trainErr
	}

	store := modelstore.NewFS(trainDest, logger, obs.Metrics())
	if err := store.Save(ctx, model); err != nil {
		return err
	}

	printTrainSummary(model, candidates, elapsed, trainDest)
	return nil
}

func recordRun(ctx context.Context, rec runhistory.RunRecord) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, rec)
}

func printTrainSummary(model *core.SelectedModel, candidates []core.Candidate, elapsed time.Duration, dest string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Training Summary ==="))
	printCandidates(candidates, model)
	fmt.Println()
	fmt.Printf("Run:      %s\n", model.RunID)
	fmt.Printf("Selected: %s (score %.4f)\n", model.Combo, model.Score)
	fmt.Printf("Elapsed:  %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Model saved to %s\n", dest)
}

func printCandidates(candidates []core.Candidate, selected *core.SelectedModel) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("%-18s %10s %12s\n", "COMBINATION", "SCORE", "ELAPSED")
	for _, c := range candidates {
		switch {
		case c.Failed():
			fmt.Println(red(fmt.Sprintf("%-18s %10s %12s  %s", c.Combo, "failed", c.Elapsed.Round(time.Millisecond), c.FitErr)))
		case selected != nil && c.Combo == selected.Combo:
			fmt.Println(green(fmt.Sprintf("%-18s %10.4f %12s  selected", c.Combo, c.Score, c.Elapsed.Round(time.Millisecond))))
		default:
			fmt.Printf("%-18s %10.4f %12s\n", c.Combo, c.Score, c.Elapsed.Round(time.Millisecond))
		}
	}
}

func joinKinds[T ~string](kinds []T) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, " ")
}

func parseClassifierList(s string) ([]core.ClassifierKind, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("classifiers list is empty")
	}
	out := make([]core.ClassifierKind, 0, len(fields))
	for _, f := range fields {
		k, err := core.ParseClassifier(f)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func parseBalancerList(s string) ([]core.BalancerKind, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]core.BalancerKind, 0, len(fields))
	for _, f := range fields {
		k, err := core.ParseBalancer(f)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func parseNormalizerList(s string) ([]core.NormalizerKind, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]core.NormalizerKind, 0, len(fields))
	for _, f := range fields {
		k, err := core.ParseNormalizer(f)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
