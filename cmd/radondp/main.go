// Command radondp trains, downloads and applies defect prediction
// models for infrastructure-as-code scripts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/radon-h2020/radon-defect-predictor/config"
	"github.com/radon-h2020/radon-defect-predictor/pkg/observability"
)

var (
	cfgPath     string
	verbose     bool
	metricsAddr string
	workDir     string

	cfg *config.Config
	obs *observability.Manager
)

var rootCmd = &cobra.Command{
	Use:   "radondp",
	Short: "Train machine learning models for defect prediction of infrastructure code",
	Long: `radondp trains, downloads and applies defect prediction models for
infrastructure-as-code scripts. Training searches a grid of classifier,
normalizer and balancer combinations on a labeled metrics table and
keeps the best scorer; predict flags individual scripts as failure
prone or clean.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a radondp.yaml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9109)")
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "", "working directory for the run log (default ~/.radondp)")
}

// setup loads .env and the config file, applies flag overrides, and
// builds the process-wide logger, metrics and tracer.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if workDir != "" {
		cfg.WorkDir = workDir
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	obs, err = observability.NewManager(observability.Config{
		ServiceName:    "radondp",
		ServiceVersion: version,
		Environment:    "cli",
		JaegerEndpoint: cfg.TracingEndpoint,
		MetricsAddr:    cfg.MetricsAddr,
		LogLevel:       cfg.LogLevel,
		LogFormat:      cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	return nil
}

// checkDir mirrors the path validation flag parsing cannot do.
func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if obs != nil {
		_ = obs.Shutdown(context.Background())
	}
	if err != nil {
		os.Exit(1)
	}
}
