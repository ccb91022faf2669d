package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/radon-h2020/radon-defect-predictor/apiclient"
	"github.com/radon-h2020/radon-defect-predictor/config"
	"github.com/radon-h2020/radon-defect-predictor/modelstore"
	"github.com/radon-h2020/radon-defect-predictor/pkg/observability"
	"github.com/radon-h2020/radon-defect-predictor/scorer"
)

var (
	downloadRepoPath string
	downloadHost     string
	downloadToken    string
	downloadRepo     string
	downloadLanguage string
	downloadDest     string
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Get a pre-trained model to predict unseen instances",
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a pre-trained model from the online APIs",
	Long: `Download scores the local clone of a repository, asks the git host
for its issue frequency and fetches the pre-trained model that best
matches those scores.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadRepoPath, "path-to-repository", "", "local clone of the repository to score")
	downloadCmd.Flags().StringVar(&downloadHost, "host", "", "git host of the repository (choices: github gitlab)")
	downloadCmd.Flags().StringVarP(&downloadToken, "token", "t", "", "access token for the host APIs")
	downloadCmd.Flags().StringVarP(&downloadRepo, "repository", "r", "", "repository full name or id (e.g. radon-h2020/radon-defect-predictor)")
	downloadCmd.Flags().StringVarP(&downloadLanguage, "language", "l", "", "language of the scripts in the repository (choices: ansible tosca)")
	downloadCmd.Flags().StringVarP(&downloadDest, "destination", "d", "", "destination folder for the downloaded model (default: the workdir catalog, keyed by language)")
	_ = downloadCmd.MarkFlagRequired("path-to-repository")
	_ = downloadCmd.MarkFlagRequired("host")
	_ = downloadCmd.MarkFlagRequired("repository")
	_ = downloadCmd.MarkFlagRequired("language")
	modelCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(modelCmd)
}

func runDownload(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	logger := obs.Logger()

	if err := checkDir(downloadRepoPath); err != nil {
		return err
	}
	if downloadDest != "" {
		if err := checkDir(downloadDest); err != nil {
			return err
		}
	}
	host := strings.ToLower(downloadHost)
	if host != "github" && host != "gitlab" {
		return fmt.Errorf("unknown host %q (want one of [github gitlab])", downloadHost)
	}
	language := strings.ToLower(downloadLanguage)
	if language != "ansible" && language != "tosca" {
		return fmt.Errorf("unknown language %q (want one of [ansible tosca])", downloadLanguage)
	}

	token := downloadToken
	if token == "" {
		token = config.TokenFromEnv(host)
	}
	if token == "" {
		token, err = promptToken(host)
		if err != nil {
			return err
		}
	}

	fmt.Println("Downloading model...")
	ctx, span := obs.StartDownloadSpan(ctx, language, host)
	defer func() { observability.EndSpan(span, err) }()

	scores, err := scorer.New(downloadRepoPath, logger).Score(ctx)
	if err != nil {
		return err
	}
	client := apiclient.New(cfg.API.ClientConfig(), logger)
	issueFreq, err := client.IssueFrequency(ctx, host, downloadRepo, token)
	if err != nil {
		return err
	}

	model, err := client.DownloadModel(ctx, apiclient.RepositoryScores{
		Language:         language,
		CommitFrequency:  scores.CommitFrequency,
		CoreContributors: scores.CoreContributors,
		IssueFrequency:   issueFreq,
		PercentComments:  scores.PercentComments,
		PercentIac:       scores.PercentIac,
		SLOC:             scores.SLOC,
	})
	if err != nil {
		return err
	}

	dest := downloadDest
	if dest == "" {
		catalog, err := modelstore.NewCatalog(cfg.ModelsDir(), 0, logger, obs.Metrics())
		if err != nil {
			return err
		}
		if err := catalog.Save(ctx, language, model); err != nil {
			return err
		}
		dest = filepath.Join(cfg.ModelsDir(), language)
	} else if err := modelstore.NewFS(dest, logger, obs.Metrics()).Save(ctx, model); err != nil {
		return err
	}

	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	fmt.Printf("%s %s (score %.4f) saved to %s\n", green("Done!"), model.Combo, model.Score, dest)
	return nil
}

func promptToken(host string) (string, error) {
	label := "GitLab access token: "
	if host == "github" {
		label = "GitHub access token: "
	}
	fmt.Print(label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
