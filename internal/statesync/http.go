package statesync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sweeney/ledpanel/internal/logic"
)

// DefaultTimeout bounds every request when none is configured.
const DefaultTimeout = 3 * time.Second

// maxSnapshotBytes caps how much of a GET /states response is read.
const maxSnapshotBytes = 64 << 10

// HTTPClient talks JSON to the state server.
type HTTPClient struct {
	base    string
	http    *http.Client
	conn    Connectivity
	timeout time.Duration
}

// NewHTTPClient creates a client for the server at endpoint (scheme and host,
// optional path prefix). conn may be nil, meaning always connected.
func NewHTTPClient(endpoint string, timeout time.Duration, conn Connectivity) (*HTTPClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse sync endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sync endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("sync endpoint %q: missing host", endpoint)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		base:    strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: timeout},
		conn:    conn,
		timeout: timeout,
	}, nil
}

// IsConnected reports the link state from the configured Connectivity.
func (c *HTTPClient) IsConnected() bool {
	if c.conn == nil {
		return true
	}
	return c.conn.IsConnected()
}

// PushState sends POST /state. The response body is ignored beyond its status.
func (c *HTTPClient) PushState(ctx context.Context, chip, pin int, state bool) error {
	if !c.IsConnected() {
		return nil
	}
	body, err := FormatPush(chip, pin, state)
	if err != nil {
		return fmt.Errorf("format push: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+PathState, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push state: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxSnapshotBytes))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push state: %w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return nil
}

// PullSnapshot sends GET /states and decodes the table leniently.
func (c *HTTPClient) PullSnapshot(ctx context.Context) (logic.Snapshot, error) {
	if !c.IsConnected() {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+PathStates, nil)
	if err != nil {
		return nil, fmt.Errorf("build pull request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("pull snapshot: %w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := ParseSnapshot(body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
