package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/extractor"
	"github.com/radon-h2020/radon-defect-predictor/modelstore"
	"github.com/radon-h2020/radon-defect-predictor/pkg/observability"
	"github.com/radon-h2020/radon-defect-predictor/predict"
)

var (
	predictModelDir string
	predictFile     string
	predictLanguage string
	predictDest     string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict unseen instances with a trained model",
	Long: `Predict extracts the metrics of a single infrastructure script,
scores it with a previously saved model and appends the verdict to
prediction_report.json in the destination folder.`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictModelDir, "path-to-model", "", "folder containing the trained model (default: the workdir catalog, keyed by language)")
	predictCmd.Flags().StringVar(&predictFile, "path-to-file", "", "script to analyze")
	predictCmd.Flags().StringVarP(&predictLanguage, "language", "l", "", "language of the script (choices: ansible)")
	predictCmd.Flags().StringVarP(&predictDest, "destination", "d", "", "destination folder for the prediction report")
	_ = predictCmd.MarkFlagRequired("path-to-file")
	_ = predictCmd.MarkFlagRequired("language")
	_ = predictCmd.MarkFlagRequired("destination")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := obs.Logger()

	if err := checkDir(predictDest); err != nil {
		return err
	}
	ext, err := extractor.Default().For(predictLanguage)
	if err != nil {
		return err
	}

	model, err := loadPredictModel(ctx, ext.Language())
	if err != nil {
		return err
	}
	pred, err := predict.New(model, logger, obs.Metrics())
	if err != nil {
		return err
	}

	src, err := os.ReadFile(predictFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", predictFile, err)
	}

	_, span := obs.StartPredictionSpan(ctx, ext.Language(), predictFile)
	row, err := ext.Extract(src)
	var verdict core.Prediction
	if err == nil {
		verdict, err = pred.Predict(row)
	}
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	entry := reportEntry{
		File:         predictFile,
		FailureProne: verdict.FailureProne,
		AnalyzedAt:   time.Now().Format("2006-01-02"),
	}
	reportPath := filepath.Join(predictDest, reportFileName)
	if err := appendReport(reportPath, entry); err != nil {
		return err
	}

	if verdict.FailureProne {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Printf("%s %s (probability %.2f)\n", red("failure-prone:"), predictFile, verdict.Probability)
	} else {
		green := color.New(color.FgGreen, color.Bold).SprintFunc()
		fmt.Printf("%s %s (probability %.2f)\n", green("clean:"), predictFile, verdict.Probability)
	}
	fmt.Printf("Report appended to %s\n", reportPath)
	return nil
}

// loadPredictModel resolves the model from the explicit directory when
// one was given, otherwise from the workdir catalog by language.
func loadPredictModel(ctx context.Context, language string) (*core.SelectedModel, error) {
	logger := obs.Logger()
	if predictModelDir != "" {
		if err := checkDir(predictModelDir); err != nil {
			return nil, err
		}
		return modelstore.NewFS(predictModelDir, logger, obs.Metrics()).Load(ctx)
	}
	catalog, err := modelstore.NewCatalog(cfg.ModelsDir(), 0, logger, obs.Metrics())
	if err != nil {
		return nil, err
	}
	model, err := catalog.Load(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("no stored model for %s, give --path-to-model or run 'radondp model download': %w", language, err)
	}
	return model, nil
}
