// Package upstream talks to the alarm platform the alert API proxies.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const (
	signinPath = "/authentication/api/signin"
	alarmsPath = "/alarms/api/Alarm"
	selfPath   = "/authentication/api/Passport/myself"
)

// ErrNoToken is returned when a call needs a token before anyone signed in.
var ErrNoToken = errors.New("no upstream token")

// StatusError is a non-2xx answer from the upstream.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	RefreshInterval time.Duration
	RetryInterval   time.Duration
	Timeout         time.Duration
	// RetryMax bounds retries on transport errors and 5xx answers.
	RetryMax int
	Logger   *log.Logger
}

// Client holds the upstream bearer token and keeps it fresh.
type Client struct {
	base    string
	http    *retryablehttp.Client
	refresh time.Duration
	retry   time.Duration
	logger  *log.Logger

	mu       sync.Mutex
	token    string
	username string
	password string
	timer    *time.Timer
	closed   bool
}

// New creates a client for opts.BaseURL.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = opts.RetryMax
	hc.RetryWaitMin = 200 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.Logger = logger
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Timeout > 0 {
		hc.HTTPClient.Timeout = opts.Timeout
	}

	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		refresh: opts.RefreshInterval,
		retry:   opts.RetryInterval,
		logger:  logger,
	}
}

// Token returns the current bearer token, empty before the first sign-in.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Authenticate signs in, stores the token and credentials, and schedules
// the next refresh.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("password", password)

	body, err := c.get(ctx, signinPath, q, "")
	if err != nil {
		return "", err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "decode signin response")
	}
	if resp.Token == "" {
		return "", errors.New("signin response carries no token")
	}

	c.mu.Lock()
	c.token = resp.Token
	c.username = username
	c.password = password
	c.mu.Unlock()
	c.logger.Println("New upstream token acquired")

	c.schedule(c.refresh)
	return resp.Token, nil
}

// schedule arms the refresh timer, replacing any pending one.
func (c *Client) schedule(after time.Duration) {
	if after <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(after, c.refreshToken)
}

func (c *Client) refreshToken() {
	c.mu.Lock()
	username, password := c.username, c.password
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout())
	defer cancel()

	c.logger.Println("Refreshing upstream token...")
	if _, err := c.Authenticate(ctx, username, password); err != nil {
		c.logger.Printf("Failed to refresh upstream token, retrying in %v: %v", c.retry, err)
		c.schedule(c.retry)
	}
}

func (c *Client) requestTimeout() time.Duration {
	if t := c.http.HTTPClient.Timeout; t > 0 {
		return t
	}
	return 30 * time.Second
}

// Alarms fetches alarms with the stored token, forwarding query unchanged.
// The raw upstream document is returned.
func (c *Client) Alarms(ctx context.Context, query url.Values) (json.RawMessage, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNoToken
	}
	body, err := c.get(ctx, alarmsPath, query, token)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("alarms response is not valid JSON")
	}
	return body, nil
}

// Self returns the user name behind the stored token. On a 401 it signs in
// again once with the stored credentials and retries.
func (c *Client) Self(ctx context.Context) (string, error) {
	token := c.Token()
	if token == "" {
		return "", ErrNoToken
	}

	name, err := c.self(ctx, token)
	if !IsUnauthorized(err) {
		return name, err
	}

	c.mu.Lock()
	username, password := c.username, c.password
	c.mu.Unlock()
	if username == "" {
		return "", err
	}
	if token, err = c.Authenticate(ctx, username, password); err != nil {
		return "", errors.Wrap(err, "re-authenticate")
	}
	return c.self(ctx, token)
}

func (c *Client) self(ctx context.Context, token string) (string, error) {
	body, err := c.get(ctx, selfPath, nil, token)
	if err != nil {
		return "", err
	}
	var resp struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "decode passport response")
	}
	return resp.Username, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, token string) ([]byte, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build upstream request")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// With the passthrough error handler a 5xx that exhausted its retries
	// still carries the last response; report it by status.
	resp, err := c.http.Do(req)
	if resp == nil {
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// Close stops the refresh timer. The client must not be used afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
