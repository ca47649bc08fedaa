// Package metricsapi reads pre-aggregated dashboard bundles from the
// metrics REST API.
package metricsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// Bundles are small JSON documents; anything larger is a server bug.
const maxBundleSize = 8 << 20

// Client implements ports.MetricsAPI.
type Client struct {
	baseURL string
	http    *http.Client
	creds   ports.CredentialSource
	logger  *slog.Logger
}

var _ ports.MetricsAPI = (*Client)(nil)

// NewClient creates a metrics API client. creds may be nil.
func NewClient(baseURL string, timeout time.Duration, creds ports.CredentialSource, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		logger:  logger.With("component", "metrics_api"),
	}
}

// FetchView returns the raw bundle for view.
func (c *Client) FetchView(ctx context.Context, view domain.DashboardView) (json.RawMessage, error) {
	if !view.IsValid() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownView, view)
	}

	endpoint := c.baseURL + "/api/dashboard/" + url.PathEscape(string(view))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			c.logger.Warn("failed to read credential", "error", err)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s metrics: %w", view, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleSize))
	if err != nil {
		return nil, fmt.Errorf("read %s metrics: %w", view, err)
	}

	c.logger.Debug("metrics fetched",
		"view", view,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperrors.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch %s metrics: status %d", view, resp.StatusCode)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("fetch %s metrics: invalid json body", view)
	}
	return json.RawMessage(body), nil
}
