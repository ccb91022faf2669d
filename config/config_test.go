package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"RADONDP_CONFIG", "RADONDP_WORKDIR", "RADONDP_LOG_LEVEL",
		"RADONDP_LOG_FORMAT", "RADONDP_METRICS_ADDR", "RADONDP_TRACING_ENDPOINT",
		"RADONDP_API_URL", "RADONDP_API_TIMEOUT", "RADONDP_WORKERS",
		"RADONDP_VALIDATION_RATIO", "RADONDP_BUDGET",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.WorkDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "https://radon.giovanni.pink/api", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.API.Timeout))
	assert.InDelta(t, 0.25, cfg.Training.ValidationRatio, 1e-9)
	assert.Equal(t, filepath.Join(cfg.WorkDir, "models"), cfg.ModelsDir())
	assert.Equal(t, filepath.Join(cfg.WorkDir, "runs.db"), cfg.HistoryPath())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().API.BaseURL, cfg.API.BaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "radondp.yaml")
	doc := `
workdir: /tmp/radondp-test
log_level: debug
metrics_addr: ":9109"
api:
  base_url: http://localhost:8080/api
  timeout: 5s
training:
  validation_ratio: 0.4
  workers: 3
  budget: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/radondp-test", cfg.WorkDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9109", cfg.MetricsAddr)
	assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.API.Timeout))
	assert.InDelta(t, 0.4, cfg.Training.ValidationRatio, 1e-9)
	assert.Equal(t, 3, cfg.Training.Workers)
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.Training.Budget))

	// Untouched sections keep their defaults.
	assert.Equal(t, "https://api.github.com", cfg.API.GitHubBaseURL)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "radondp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	t.Setenv("RADONDP_LOG_LEVEL", "error")
	t.Setenv("RADONDP_WORKERS", "8")
	t.Setenv("RADONDP_API_TIMEOUT", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Training.Workers)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.API.Timeout))
}

func TestLoadHonorsConfigEnvPath(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "elsewhere.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))
	t.Setenv("RADONDP_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestFromBytesRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad yaml":       "log_level: [",
		"bad duration":   "api:\n  timeout: 5 parsecs\n",
		"bad log level":  "log_level: loud\n",
		"bad log format": "log_format: xml\n",
		"bad ratio":      "training:\n  validation_ratio: 1.2\n",
		"bad burst":      "api:\n  burst: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromBytes([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestClientConfig(t *testing.T) {
	cfg, err := FromBytes([]byte("api:\n  base_url: http://example.test/api\n  timeout: 7s\n"))
	require.NoError(t, err)

	cc := cfg.API.ClientConfig()
	assert.Equal(t, "http://example.test/api", cc.BaseURL)
	assert.Equal(t, 7*time.Second, cc.Timeout)
	assert.Equal(t, cfg.API.Burst, cc.Burst)
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("GITHUB_ACCESS_TOKEN", "gh-token")
	t.Setenv("GITLAB_ACCESS_TOKEN", "gl-token")

	assert.Equal(t, "gh-token", TokenFromEnv("github"))
	assert.Equal(t, "gh-token", TokenFromEnv(" GitHub "))
	assert.Equal(t, "gl-token", TokenFromEnv("gitlab"))
	assert.Empty(t, TokenFromEnv("bitbucket"))
}
