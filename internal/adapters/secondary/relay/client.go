// Package relay talks to the backend voice signaling relay.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

const (
	connectPath    = "/api/voice/connect"
	disconnectPath = "/api/voice/disconnect"

	// Upper bound on error bodies surfaced to the operator.
	maxErrorBody = 4 << 10
)

// Client implements ports.VoiceRelay over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	creds   ports.CredentialSource
	logger  *slog.Logger
}

var _ ports.VoiceRelay = (*Client)(nil)

// NewClient creates a relay client. creds may be nil.
func NewClient(baseURL string, timeout time.Duration, creds ports.CredentialSource, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		logger:  logger.With("component", "voice_relay"),
	}
}

// Connect sends the local offer and returns the relay's answer. A non-2xx
// response becomes an *apperrors.RelayError carrying the body text.
func (c *Client) Connect(ctx context.Context, req domain.RelayConnectRequest) (domain.RelayConnectResponse, error) {
	var out domain.RelayConnectResponse
	if err := c.post(ctx, connectPath, req, &out); err != nil {
		return domain.RelayConnectResponse{}, err
	}
	if out.SDP == "" {
		return domain.RelayConnectResponse{}, fmt.Errorf("relay response missing answer sdp")
	}
	return out, nil
}

// Disconnect closes a relay session.
func (c *Client) Disconnect(ctx context.Context, sessionID string) error {
	body := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}
	return c.post(ctx, disconnectPath, body, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("relay rejected request", "path", path, "status", resp.StatusCode)
		return &apperrors.RelayError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) {
	if c.creds == nil {
		return
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		c.logger.Warn("failed to read credential", "error", err)
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
