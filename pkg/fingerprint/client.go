package fingerprint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sodav-monitor/sodav/pkg/isrc"
	"github.com/sodav-monitor/sodav/pkg/observability"
)

const maxResponseBytes = 1 << 20

const (
	DefaultAcoustIDURL = "https://api.acoustid.org/v2/lookup"
	DefaultAudDURL     = "https://api.audd.io/"
)

// Config configures the provider clients.
type Config struct {
	AcoustIDURL string        `yaml:"acoustid_url"`
	AcoustIDKey string        `yaml:"acoustid_key"`
	AudDURL     string        `yaml:"audd_url"`
	AudDToken   string        `yaml:"audd_token"`
	Timeout     time.Duration `yaml:"timeout"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// DefaultConfig points at the public provider endpoints.
func DefaultConfig() Config {
	return Config{
		AcoustIDURL: DefaultAcoustIDURL,
		AudDURL:     DefaultAudDURL,
		Timeout:     15 * time.Second,
		Breaker:     DefaultBreakerConfig(),
	}
}

func postForm(ctx context.Context, client *http.Client, provider, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Provider: provider, Code: resp.StatusCode}
	}
	return body, nil
}

// AcoustIDClient looks up Chromaprint fingerprints on AcoustID.
type AcoustIDClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  *breaker
}

// NewAcoustIDClient creates a client from cfg.
func NewAcoustIDClient(cfg Config, metrics *observability.Metrics, logger *observability.Logger) *AcoustIDClient {
	endpoint := cfg.AcoustIDURL
	if endpoint == "" {
		endpoint = DefaultAcoustIDURL
	}
	return &AcoustIDClient{
		endpoint: endpoint,
		apiKey:   cfg.AcoustIDKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  newBreaker("acoustid", cfg.Breaker, metrics, logger),
	}
}

// Lookup resolves a fingerprint of an excerpt lasting duration seconds.
func (c *AcoustIDClient) Lookup(ctx context.Context, fingerprint string, duration int) (*isrc.AcoustIDResponse, error) {
	form := url.Values{
		"client":      {c.apiKey},
		"fingerprint": {fingerprint},
		"duration":    {strconv.Itoa(duration)},
		"meta":        {"recordings isrcs"},
		"format":      {"json"},
	}
	body, err := c.breaker.execute(func() ([]byte, error) {
		return postForm(ctx, c.http, "acoustid", c.endpoint, form)
	})
	if err != nil {
		return nil, err
	}

	resp, err := isrc.DecodeAcoustID(body)
	if err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return nil, fmt.Errorf("acoustid lookup failed with status %q", resp.Status)
	}
	return resp, nil
}

// AudDClient recognizes audio excerpts by URL on AudD.
type AudDClient struct {
	endpoint string
	token    string
	http     *http.Client
	breaker  *breaker
}

// NewAudDClient creates a client from cfg.
func NewAudDClient(cfg Config, metrics *observability.Metrics, logger *observability.Logger) *AudDClient {
	endpoint := cfg.AudDURL
	if endpoint == "" {
		endpoint = DefaultAudDURL
	}
	return &AudDClient{
		endpoint: endpoint,
		token:    cfg.AudDToken,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  newBreaker("audd", cfg.Breaker, metrics, logger),
	}
}

// Recognize identifies the audio at audioURL.
func (c *AudDClient) Recognize(ctx context.Context, audioURL string) (*isrc.AudDResponse, error) {
	form := url.Values{
		"api_token": {c.token},
		"url":       {audioURL},
		"return":    {"apple_music,spotify"},
	}
	body, err := c.breaker.execute(func() ([]byte, error) {
		return postForm(ctx, c.http, "audd", c.endpoint, form)
	})
	if err != nil {
		return nil, err
	}

	resp, err := isrc.DecodeAudD(body)
	if err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("audd recognition failed with status %q", resp.Status)
	}
	return resp, nil
}
