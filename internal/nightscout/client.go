// Package nightscout uploads entries to a Nightscout site.
package nightscout

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"carelink-bridge/internal/domain"
)

// EntriesPath is the Nightscout v1 entries endpoint.
const EntriesPath = "/api/v1/entries.json"

// DefaultTimeout bounds a single upload.
const DefaultTimeout = 30 * time.Second

// Client posts entries to one Nightscout entries endpoint.
type Client struct {
	endpoint     string
	hashedSecret string
	client       *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPISecret sets the plain-text API secret sent hashed on every request.
func WithAPISecret(secret string) ClientOption {
	return func(c *Client) {
		c.hashedSecret = HashSecret(secret)
	}
}

// NewClient creates a client posting to endpoint, the full entries.json URL.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HashSecret returns the hex SHA-1 digest Nightscout expects in the api-secret header.
// An empty secret yields an empty string.
func HashSecret(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha1.Sum([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Name identifies the target in logs and metrics.
func (c *Client) Name() string {
	return "nightscout"
}

// Push uploads entries as one JSON array. Nightscout upserts by date and type.
func (c *Client) Push(ctx context.Context, entries []domain.Entry) error {
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.hashedSecret != "" {
		req.Header.Set("api-secret", c.hashedSecret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
