// Package apiclient talks to the remote services the model download
// path needs: the pre-trained model endpoint and the code hosting APIs
// that serve issue counts. Every request goes through a client-side
// rate limiter, a circuit breaker and bounded retries with backoff.
package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radon-h2020/radon-defect-predictor/artifact"
	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/modelstore"
)

const maxResponseSize = 64 << 20

// RepositoryScores is the request payload for the pre-trained model
// endpoint. The JSON names are the service contract.
type RepositoryScores struct {
	Language         string  `json:"language"`
	CommitFrequency  float64 `json:"commitFrequency"`
	CoreContributors int     `json:"coreContributors"`
	IssueFrequency   float64 `json:"issueFrequency"`
	PercentComments  float64 `json:"percentComments"`
	PercentIac       float64 `json:"percentIac"`
	SLOC             int     `json:"sloc"`
}

// modelEnvelope is the service answer: the classifier blob in base64
// plus its feature manifest.
type modelEnvelope struct {
	Model      string             `json:"model"`
	Attributes *artifact.Manifest `json:"attributes"`
}

// HTTPError is a non-2xx service answer.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("service returned %d: %s", e.StatusCode, e.Body)
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Config tunes the client. Zero fields take the defaults.
type Config struct {
	BaseURL           string
	GitHubBaseURL     string
	GitLabBaseURL     string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
}

// DefaultConfig returns the production endpoints and conservative
// limits.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://radon.giovanni.pink/api",
		GitHubBaseURL:     "https://api.github.com",
		GitLabBaseURL:     "https://gitlab.com/api/v4",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		MaxRetries:        3,
		RetryBaseDelay:    100 * time.Millisecond,
		RetryMaxDelay:     10 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = d.BaseURL
	}
	if out.GitHubBaseURL == "" {
		out.GitHubBaseURL = d.GitHubBaseURL
	}
	if out.GitLabBaseURL == "" {
		out.GitLabBaseURL = d.GitLabBaseURL
	}
	if out.Timeout <= 0 {
		out.Timeout = d.Timeout
	}
	if out.RequestsPerSecond <= 0 {
		out.RequestsPerSecond = d.RequestsPerSecond
	}
	if out.Burst <= 0 {
		out.Burst = d.Burst
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.RetryBaseDelay <= 0 {
		out.RetryBaseDelay = d.RetryBaseDelay
	}
	if out.RetryMaxDelay <= 0 {
		out.RetryMaxDelay = d.RetryMaxDelay
	}
	return &out
}

// Client is safe for concurrent use.
type Client struct {
	cfg     *Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New builds a client. cfg and logger may be nil.
func New(cfg *Config, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "apiclient"))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model-api",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: breaker,
		logger:  logger,
	}
}

// DownloadModel posts the repository scores and decodes the model the
// service picked for them.
func (c *Client) DownloadModel(ctx context.Context, scores RepositoryScores) (*core.SelectedModel, error) {
	payload, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("encode scores: %w", err)
	}
	endpoint := c.cfg.BaseURL + "/models/pre-trained-model"
	headers := map[string]string{"Content-Type": "application/json"}

	body, err := c.do(ctx, http.MethodPost, endpoint, headers, payload)
	if err != nil {
		return nil, fmt.Errorf("download model: %w", err)
	}

	var envelope modelEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode service answer: %w", err)
	}
	if envelope.Model == "" || envelope.Attributes == nil {
		return nil, fmt.Errorf("service has no model for language %q", scores.Language)
	}
	blob, err := base64.StdEncoding.DecodeString(envelope.Model)
	if err != nil {
		return nil, fmt.Errorf("decode model blob: %w", err)
	}
	if err := envelope.Attributes.Validate(); err != nil {
		return nil, fmt.Errorf("service manifest: %w", err)
	}
	model, err := modelstore.Decode(envelope.Attributes, blob, endpoint)
	if err != nil {
		return nil, err
	}
	c.logger.Info("model downloaded",
		zap.String("run_id", model.RunID),
		zap.String("combination", model.Combo.String()),
		zap.Float64("score", model.Score))
	return model, nil
}

// IssueFrequency fetches the repository's open issue count from its
// hosting API and normalizes it by the repository age in 30-day
// windows.
func (c *Client) IssueFrequency(ctx context.Context, host, fullNameOrID, token string) (float64, error) {
	headers := map[string]string{"Accept": "application/json"}
	var endpoint string
	switch strings.ToLower(host) {
	case "github":
		endpoint = fmt.Sprintf("%s/repos/%s", c.cfg.GitHubBaseURL, fullNameOrID)
		if token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	case "gitlab":
		endpoint = fmt.Sprintf("%s/projects/%s", c.cfg.GitLabBaseURL, url.PathEscape(fullNameOrID))
		if token != "" {
			headers["PRIVATE-TOKEN"] = token
		}
	default:
		return 0, fmt.Errorf("unknown host %q (want github or gitlab)", host)
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, headers, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch repository info: %w", err)
	}
	var info struct {
		OpenIssues int       `json:"open_issues_count"`
		CreatedAt  time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return 0, fmt.Errorf("decode repository info: %w", err)
	}
	months := 1.0
	if !info.CreatedAt.IsZero() {
		if m := time.Since(info.CreatedAt).Hours() / 24 / 30; m > 1 {
			months = m
		}
	}
	return float64(info.OpenIssues) / months, nil
}

// do sends one request through the limiter, the breaker and the retry
// loop. Only throttling and 5xx answers retry.
func (c *Client) do(ctx context.Context, method, endpoint string, headers map[string]string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		result, err := c.breaker.Execute(func() (any, error) {
			return c.send(ctx, method, endpoint, headers, payload)
		})
		if err == nil {
			return result.([]byte), nil
		}
		lastErr = err
		if attempt == c.cfg.MaxRetries || !retryable(err) {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Debug("retrying request",
			zap.String("url", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(c.cfg.RetryMaxDelay) {
		delay = float64(c.cfg.RetryMaxDelay)
	}
	// Up to 25% jitter keeps synchronized clients apart.
	delay += delay * 0.25 * rand.Float64()
	return time.Duration(delay)
}

func (c *Client) send(ctx context.Context, method, endpoint string, headers map[string]string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
