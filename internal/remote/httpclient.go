package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenProvider returns the bearer token for repository requests. The
// session that issued the token is managed by the caller.
type TokenProvider func(ctx context.Context) (string, error)

// Client talks to the repository's document API over HTTP.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

var _ Store = (*Client)(nil)

// NewClient creates a document API client. tokenProvider may be nil for
// unauthenticated endpoints (development server without a token).
func NewClient(baseURL string, timeout time.Duration, tokenProvider TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{MaxIdleConnsPerHost: 4},
		},
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "remote_client")),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	u := c.baseURL + "/documents/" + (&url.URL{Path: path}).EscapedPath()
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request for %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain repository token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// Fetch implements Store.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read document %s: %w", path, err)
		}
		return data, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
	default:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", path, resp.Status)
	}
}

// Upload implements Store.
func (c *Client) Upload(ctx context.Context, path string, data []byte) error {
	resp, err := c.do(ctx, http.MethodPut, path, data)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("upload %s: unexpected status %s", path, resp.Status)
	}
}

// Exists implements Store.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, path, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("head %s: unexpected status %s", path, resp.Status)
	}
}

// Delete implements Store. Absent documents are treated as already deleted.
func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("delete %s: unexpected status %s", path, resp.Status)
	}
}

// List implements Store.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	u := c.baseURL + "/documents?prefix=" + url.QueryEscape(prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain repository token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: unexpected status %s", prefix, resp.Status)
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("failed to decode document list: %w", err)
	}
	return names, nil
}
