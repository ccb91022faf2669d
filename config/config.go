// Package config loads tool configuration from an optional YAML file
// plus RADONDP_* environment overrides. A missing file is not an error;
// everything has a working default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radon-h2020/radon-defect-predictor/apiclient"
)

// DefaultFileName is looked up in the working directory when no path is
// given.
const DefaultFileName = "radondp.yaml"

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds configuration for the defect prediction tool.
type Config struct {
	WorkDir         string         `yaml:"workdir"`
	LogLevel        string         `yaml:"log_level"`
	LogFormat       string         `yaml:"log_format"`
	MetricsAddr     string         `yaml:"metrics_addr"`
	TracingEndpoint string         `yaml:"tracing_endpoint"`
	API             APIConfig      `yaml:"api"`
	Training        TrainingConfig `yaml:"training"`
}

// APIConfig tunes the pre-trained model service client.
type APIConfig struct {
	BaseURL           string   `yaml:"base_url"`
	GitHubBaseURL     string   `yaml:"github_base_url"`
	GitLabBaseURL     string   `yaml:"gitlab_base_url"`
	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	MaxRetries        int      `yaml:"max_retries"`
}

// TrainingConfig carries the training defaults a flag does not override.
type TrainingConfig struct {
	Workers         int      `yaml:"workers"`
	ValidationRatio float64  `yaml:"validation_ratio"`
	Budget          Duration `yaml:"budget"`
}

// Default returns a configuration that works with no file and no
// environment.
func Default() *Config {
	api := apiclient.DefaultConfig()
	return &Config{
		WorkDir:   defaultWorkDir(),
		LogLevel:  "info",
		LogFormat: "console",
		API: APIConfig{
			BaseURL:           api.BaseURL,
			GitHubBaseURL:     api.GitHubBaseURL,
			GitLabBaseURL:     api.GitLabBaseURL,
			Timeout:           Duration(api.Timeout),
			RequestsPerSecond: api.RequestsPerSecond,
			Burst:             api.Burst,
			MaxRetries:        api.MaxRetries,
		},
		Training: TrainingConfig{
			ValidationRatio: 0.25,
		},
	}
}

func defaultWorkDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".radondp"
	}
	return filepath.Join(home, ".radondp")
}

// Load reads the configuration at path, falling back to RADONDP_CONFIG
// and then DefaultFileName. A missing file yields the defaults.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	if envPath := os.Getenv("RADONDP_CONFIG"); envPath != "" {
		path = envPath
	}
	if path == "" {
		path = DefaultFileName
	}

	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// FromBytes parses configuration data over the defaults, without
// environment overrides.
func FromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.WorkDir = getEnv("RADONDP_WORKDIR", c.WorkDir)
	c.LogLevel = getEnv("RADONDP_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("RADONDP_LOG_FORMAT", c.LogFormat)
	c.MetricsAddr = getEnv("RADONDP_METRICS_ADDR", c.MetricsAddr)
	c.TracingEndpoint = getEnv("RADONDP_TRACING_ENDPOINT", c.TracingEndpoint)
	c.API.BaseURL = getEnv("RADONDP_API_URL", c.API.BaseURL)
	c.API.Timeout = Duration(getEnvDuration("RADONDP_API_TIMEOUT", time.Duration(c.API.Timeout)))
	c.Training.Workers = getEnvInt("RADONDP_WORKERS", c.Training.Workers)
	c.Training.ValidationRatio = getEnvFloat("RADONDP_VALIDATION_RATIO", c.Training.ValidationRatio)
	c.Training.Budget = Duration(getEnvDuration("RADONDP_BUDGET", time.Duration(c.Training.Budget)))
}

// Validate rejects values no component downstream would accept.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q (want json or console)", c.LogFormat)
	}
	if c.WorkDir == "" {
		return fmt.Errorf("workdir must not be empty")
	}
	if c.API.RequestsPerSecond <= 0 {
		return fmt.Errorf("api requests_per_second %v must be positive", c.API.RequestsPerSecond)
	}
	if c.API.Burst <= 0 {
		return fmt.Errorf("api burst %d must be positive", c.API.Burst)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api max_retries %d must not be negative", c.API.MaxRetries)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if r := c.Training.ValidationRatio; r <= 0 || r >= 1 {
		return fmt.Errorf("training validation_ratio %v outside (0,1)", r)
	}
	if c.Training.Workers < 0 {
		return fmt.Errorf("training workers %d must not be negative", c.Training.Workers)
	}
	if c.Training.Budget < 0 {
		return fmt.Errorf("training budget must not be negative")
	}
	return nil
}

// ModelsDir is where trained and downloaded models are stored, one
// subdirectory per language.
func (c *Config) ModelsDir() string {
	return filepath.Join(c.WorkDir, "models")
}

// HistoryPath is the training run log database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.WorkDir, "runs.db")
}

// ClientConfig maps the API section onto the client's own config.
func (c APIConfig) ClientConfig() *apiclient.Config {
	return &apiclient.Config{
		BaseURL:           c.BaseURL,
		GitHubBaseURL:     c.GitHubBaseURL,
		GitLabBaseURL:     c.GitLabBaseURL,
		Timeout:           time.Duration(c.Timeout),
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxRetries:        c.MaxRetries,
	}
}

// TokenFromEnv returns the stored API token for a repository host,
// typically placed in the environment by a .env file.
func TokenFromEnv(host string) string {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "github":
		return os.Getenv("GITHUB_ACCESS_TOKEN")
	case "gitlab":
		return os.Getenv("GITLAB_ACCESS_TOKEN")
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
