// Package relay delivers notification payloads to the remote push relay.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/provider/resilience"
)

// ErrRelayStatus is returned when the relay answers with a non-2xx status.
var ErrRelayStatus = errors.New("relay returned unexpected status")

// ProviderName identifies the relay in provider health reporting.
const ProviderName = "push-relay"

// The breaker opens after breakerTripAfter failed deliveries in a row and
// stays open for breakerOpenFor.
const (
	breakerTripAfter = 3
	breakerOpenFor   = 30 * time.Second
)

// Target is one delivery address in a relay request.
type Target struct {
	Token         string  `json:"fcmToken"`
	FallbackToken *string `json:"fcmTokenFallback"`
	InstanceID    string  `json:"instanceId"`
}

// Request is the relay request body.
type Request struct {
	Targets      []Target `json:"targets"`
	HighPriority bool     `json:"highPriority"`
	AndroidData  *string  `json:"androidData"`
	ApnsData     any      `json:"apnsData"`
}

// Response is the relay response body.
type Response struct {
	InvalidTokens []string `json:"invalidTokens"`
}

// EndpointSource resolves the relay URL for each call.
type EndpointSource interface {
	RelayURL(ctx context.Context) string
}

// Pruner removes registrations the relay reported as invalid.
type Pruner interface {
	Remove(ctx context.Context, tokens ...string) (int, error)
}

// ClientConfig holds configuration for the relay client.
type ClientConfig struct {
	Endpoint EndpointSource
	Pruner   Pruner
	Logger   zerolog.Logger

	// Timeout bounds a single delivery. Default: 10 seconds.
	Timeout time.Duration

	// RateLimit caps outbound requests per second. Zero disables the limiter.
	RateLimit rate.Limit

	// Burst is the limiter burst size. Default: 10.
	Burst int

	// Registry receives provider health for status reporting.
	Registry *resilience.Registry

	// Metrics records request and pruning counts. Optional.
	Metrics *Metrics
}

// Client posts payloads to the relay. A delivery is attempted once; the
// circuit breaker stops calls while the relay keeps failing.
type Client struct {
	httpClient *resilience.Client
	endpoint   EndpointSource
	pruner     Pruner
	limiter    *rate.Limiter
	metrics    *Metrics
	logger     zerolog.Logger
}

// NewClient creates a new relay client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Burst == 0 {
		cfg.Burst = 10
	}

	breaker := resilience.DefaultCircuitBreakerConfig(ProviderName)
	breaker.ReadyToTrip = resilience.TripAfterConsecutive(breakerTripAfter)
	breaker.Timeout = breakerOpenFor
	breaker.Logger = cfg.Logger

	clientCfg := resilience.DefaultClientConfig(ProviderName)
	clientCfg.Timeout = cfg.Timeout
	clientCfg.DisableRetries = true
	clientCfg.CircuitBreaker = &breaker
	clientCfg.Registry = cfg.Registry

	c := &Client{
		httpClient: resilience.NewClient(clientCfg),
		endpoint:   cfg.Endpoint,
		pruner:     cfg.Pruner,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(cfg.RateLimit, cfg.Burst)
	}
	return c
}

// TargetsFor converts registrations into relay targets.
func TargetsFor(list []apps.AppInstance) []Target {
	targets := make([]Target, 0, len(list))
	for _, app := range list {
		targets = append(targets, Target{
			Token:         app.Token,
			FallbackToken: app.FallbackToken,
			InstanceID:    app.InstanceID,
		})
	}
	return targets
}

// SendRaw delivers one request and prunes the tokens the relay reports as
// invalid. A nil androidData is sent as JSON null.
func (c *Client) SendRaw(ctx context.Context, targets []apps.AppInstance, highPriority bool, androidData *string, apnsData any) error {
	body, err := json.Marshal(Request{
		Targets:      TargetsFor(targets),
		HighPriority: highPriority,
		AndroidData:  androidData,
		ApnsData:     apnsData,
	})
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for relay rate limit: %w", err)
		}
	}

	url := c.endpoint.RelayURL(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	respBody, err := c.post(req)
	c.metrics.recordRequest(highPriority, time.Since(start), err)
	if err != nil {
		return err
	}

	c.logger.Debug().
		Int("targets", len(targets)).
		Bool("high_priority", highPriority).
		Dur("duration", time.Since(start)).
		Msg("relay accepted notification")

	var parsed Response
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	if len(parsed.InvalidTokens) == 0 {
		return nil
	}

	removed, err := c.pruner.Remove(ctx, parsed.InvalidTokens...)
	if err != nil {
		return fmt.Errorf("pruning invalid tokens: %w", err)
	}
	c.metrics.recordPruned(removed)
	c.logger.Info().
		Int("reported", len(parsed.InvalidTokens)).
		Int("removed", removed).
		Msg("pruned invalid tokens")
	return nil
}

func (c *Client) post(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrRelayStatus, resp.StatusCode)
	}
	return body, nil
}
