package remoteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/printpush/printpush/internal/provider/resilience"
)

// Fetcher loads the remote config document.
type Fetcher interface {
	Fetch(ctx context.Context) (Config, error)
}

// HTTPFetcherConfig holds configuration for the HTTP fetcher.
type HTTPFetcherConfig struct {
	URL string

	// Timeout bounds a single fetch. Default: 15 seconds.
	Timeout time.Duration

	// Registry receives provider health for status reporting.
	Registry *resilience.Registry
}

// HTTPFetcher fetches the config document over HTTP.
type HTTPFetcher struct {
	url        string
	httpClient *resilience.Client
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	clientCfg := resilience.DefaultClientConfig("remote-config")
	clientCfg.Timeout = cfg.Timeout
	clientCfg.MaxRetries = 2
	clientCfg.Registry = cfg.Registry

	return &HTTPFetcher{
		url:        cfg.URL,
		httpClient: resilience.NewClient(clientCfg),
	}
}

// Fetch downloads and decodes the config document.
func (f *HTTPFetcher) Fetch(ctx context.Context) (Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return Config{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFetchFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Config{}, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Config{}, fmt.Errorf("reading response: %w", err)
	}

	// Start from defaults so missing keys keep their default values.
	cfg := DefaultConfig()
	if err := json.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decoding document: %s", ErrFetchFailed, err.Error())
	}
	return cfg.normalize(), nil
}
