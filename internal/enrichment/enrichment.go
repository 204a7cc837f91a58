// Package enrichment talks to the external profile service that augments a
// registration with country and segment data. The dependency is known to be
// unreliable; every call goes through a circuit breaker and the caller
// degrades to an empty enrichment when the breaker rejects.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/user-registration/internal/breaker"
	"github.com/example/user-registration/internal/models"
)

// ErrUnavailable signals that enrichment was skipped because the dependency
// is degraded. Callers proceed with an empty enrichment.
var ErrUnavailable = errors.New("enrichment: dependency unavailable")

// Enricher resolves profile attributes for a new registration.
type Enricher interface {
	Enrich(ctx context.Context, email string) (models.Enrichment, error)
}

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the HTTP client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to reach the profile
// service.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client is the concrete HTTP implementation of Enricher.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewClient constructs an HTTP enricher for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("enrichment: base URL is required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "enrichment_client").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Enrich fetches profile attributes for the email address. A non-2xx status
// or timeout is an error; the breaker wrapper counts both as failures.
func (c *Client) Enrich(ctx context.Context, email string) (models.Enrichment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/profiles?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("enrichment: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("enrichment: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return models.Enrichment{}, fmt.Errorf("enrichment: unexpected status %d", resp.StatusCode)
	}

	var out models.Enrichment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Enrichment{}, fmt.Errorf("enrichment: decode response: %w", err)
	}
	return out, nil
}

// Guarded wraps an Enricher with a per-dependency circuit breaker. The
// breaker instance is owned by the caller and passed in explicitly so its
// state can be observed and forced from the outside.
type Guarded struct {
	inner   Enricher
	breaker *breaker.Breaker
	logger  zerolog.Logger
}

// NewGuarded wires an enricher behind the supplied breaker.
func NewGuarded(inner Enricher, b *breaker.Breaker, logger zerolog.Logger) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: b,
		logger:  logger.With().Str("component", "enrichment_guard").Logger(),
	}
}

// Enrich executes the wrapped call when the breaker permits it. A breaker
// rejection comes back as ErrUnavailable without touching the dependency;
// any other error is the dependency's own failure, already recorded in the
// breaker window.
func (g *Guarded) Enrich(ctx context.Context, email string) (models.Enrichment, error) {
	out, err := breaker.Guard(g.breaker, func() (models.Enrichment, error) {
		return g.inner.Enrich(ctx, email)
	})
	if err == nil {
		return out, nil
	}

	if breaker.IsRejection(err) {
		g.logger.Warn().
			Str("breaker", g.breaker.Name()).
			Msg("enrichment rejected by open breaker; degrading")
		return models.Enrichment{}, ErrUnavailable
	}
	return models.Enrichment{}, err
}
