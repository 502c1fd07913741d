// Package carelink fetches device snapshots from the Medtronic CareLink Connect cloud.
package carelink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"carelink-bridge/internal/domain"
	"carelink-bridge/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL          = "https://carelink.minimed.com"
	DefaultTimeout          = 30 * time.Second
	DefaultRetryDelay       = 1 * time.Second
	DefaultBackoffMult      = 2.0
	DefaultMaxRetryDuration = 512 * time.Second
)

const (
	loginPath = "/patient/j_security_check"
	dataPath  = "/patient/connect/ConnectViewerServlet"
)

var (
	// ErrLoginFailed is returned when CareLink does not issue a session.
	ErrLoginFailed = errors.New("carelink login failed")
	// ErrSessionExpired is returned when a data request is bounced to the login page.
	ErrSessionExpired = errors.New("carelink session expired")
)

// Client logs into CareLink and fetches the last-24-hours snapshot.
// It is driven by a single goroutine and is not safe for concurrent use.
type Client struct {
	baseURL          *url.URL
	username         string
	password         string
	client           *http.Client
	retryDelay       time.Duration
	backoffMult      float64
	maxRetryDuration time.Duration
	logger           *log.Logger
	metrics          *observability.Metrics
	now              func() time.Time
	loggedIn         bool
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client. A cookie jar is added if it has none.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		hc := *client
		c.client = &hc
	}
}

// WithBaseURL points the client at another CareLink server, e.g. the EU one.
func WithBaseURL(u *url.URL) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithRetryDelay sets the delay before the first retry.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxRetryDuration bounds the cumulative delay spent retrying one fetch.
func WithMaxRetryDuration(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetryDuration = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records logins on m.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a CareLink client for the given account.
func NewClient(username, password string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(DefaultBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &Client{
		baseURL:          base,
		username:         username,
		password:         password,
		client:           &http.Client{Timeout: DefaultTimeout},
		retryDelay:       DefaultRetryDelay,
		backoffMult:      DefaultBackoffMult,
		maxRetryDuration: DefaultMaxRetryDuration,
		logger:           log.Default(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.client.Jar = jar
	}

	return c, nil
}

// Fetch returns the current snapshot, logging in first when there is no session.
//
// Failed attempts are retried with exponential backoff. Fetch gives up once the
// next delay would push the cumulative wait past the max retry duration.
func (c *Client) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	delay := c.retryDelay
	var waited time.Duration
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if waited+delay > c.maxRetryDuration {
				break
			}
			c.logger.Printf("carelink: attempt %d failed (%v), retrying in %v", attempt, lastErr, delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			waited += delay
			delay = time.Duration(float64(delay) * c.backoffMult)
		}

		snapshot, err := c.fetchOnce(ctx)
		if err == nil {
			return snapshot, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("carelink fetch gave up after %v: %w", waited, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) (*domain.Snapshot, error) {
	if !c.loggedIn {
		err := c.login(ctx)
		c.metrics.RecordLogin(err)
		if err != nil {
			return nil, err
		}
		c.loggedIn = true
	}

	snapshot, err := c.getSnapshot(ctx)
	if errors.Is(err, ErrSessionExpired) {
		c.loggedIn = false
	}
	return snapshot, err
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{
		"j_username":           {c.username},
		"j_password":           {c.password},
		"j_character_encoding": {"UTF-8"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(loginPath).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}
	if isLoginPage(resp.Request.URL) && resp.Request.URL.Query().Get("error") != "" {
		return fmt.Errorf("%w: credentials rejected", ErrLoginFailed)
	}
	if len(c.client.Jar.Cookies(c.baseURL)) == 0 {
		return fmt.Errorf("%w: no session cookie", ErrLoginFailed)
	}

	c.logger.Printf("carelink: logged in as %s", c.username)
	return nil
}

func (c *Client) getSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	u := c.endpoint(dataPath)
	q := url.Values{}
	q.Set("cpSerialNumber", "NONE")
	q.Set("msgType", "last24hours")
	q.Set("requestTime", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrSessionExpired, resp.StatusCode)
	}
	if isLoginPage(resp.Request.URL) {
		return nil, fmt.Errorf("%w: redirected to %s", ErrSessionExpired, resp.Request.URL.Path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var snapshot domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = ""
	return &u
}

func isLoginPage(u *url.URL) bool {
	return u != nil && strings.Contains(strings.ToLower(u.Path), "login")
}
