package source

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig configures the HTTP inventory source.
type HTTPConfig struct {
	// Path is the inventory path requested on every target
	// (default "/api/vcenter/host").
	Path string
	// Token is sent as a bearer token when non-empty.
	Token string
	// InsecureSkipVerify disables TLS verification for self-signed vCenters.
	InsecureSkipVerify bool
	// RateLimit caps requests per minute across all targets (default 60).
	RateLimit int
	// Client overrides the HTTP client; mainly for tests.
	Client *http.Client
}

// HTTPSource queries management endpoints over HTTPS.
type HTTPSource struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPSource creates an HTTP inventory source.
func NewHTTPSource(cfg HTTPConfig, logger *slog.Logger) *HTTPSource {
	if cfg.Path == "" {
		cfg.Path = "/api/vcenter/host"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}

	client := cfg.Client
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		// No overall client timeout: the query executor owns the deadline.
		client = &http.Client{Transport: transport}
	}

	return &HTTPSource{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)/60.0), 1),
		logger:  logger.With("component", "http_source"),
	}
}

// Query fetches the raw inventory payload for one endpoint.
func (s *HTTPSource) Query(ctx context.Context, address string) (json.RawMessage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := url.URL{Scheme: "https", Host: address, Path: s.cfg.Path}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	s.logger.Debug("inventory fetched",
		"address", address,
		"bytes", len(body),
		"elapsed", time.Since(start))

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
