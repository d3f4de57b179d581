package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/results"
)

// defaultTimeout bounds each request when no http.Client is supplied.
const defaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client calls the portal API rooted at a base URL such as
// "http://localhost:3000".
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. A nil httpClient gets a default with a timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Health is the /api/health response.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &h, nil); err != nil {
		return nil, err
	}
	return &h, nil
}

// Login submits credentials.
func (c *Client) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	body := map[string]string{"username": username, "password": password}

	var res auth.LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/login", "", body, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refreshToken": refreshToken}

	var res struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/refresh", "", body, &res, nil); err != nil {
		return "", err
	}
	return res.Token, nil
}

// Logout ends the session the token belongs to.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/logout", token, nil, nil, nil)
}

// Profile returns the caller's account.
func (c *Client) Profile(ctx context.Context, token string) (*auth.User, error) {
	var user auth.User
	if err := c.doData(ctx, "/api/profile", token, &user, auth.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

// Results returns the caller's report for a trimester.
func (c *Client) Results(ctx context.Context, token string, trimester int) (*results.Report, error) {
	path := "/api/results?trimester=" + strconv.Itoa(trimester)

	var report results.Report
	if err := c.doData(ctx, path, token, &report, results.ErrNotFound); err != nil {
		return nil, err
	}
	return &report, nil
}

// Analytics returns the class summary. Admin only.
func (c *Client) Analytics(ctx context.Context, token string, trimester int) (*results.Analytics, error) {
	path := "/api/analytics?trimester=" + strconv.Itoa(trimester)

	var a results.Analytics
	if err := c.doData(ctx, path, token, &a, nil); err != nil {
		return nil, err
	}
	return &a, nil
}

// AuditLog lists server-side security events. Admin only.
func (c *Client) AuditLog(ctx context.Context, token string, filter audit.Filter) (*audit.ListResult, error) {
	q := url.Values{}
	if filter.Action != "" {
		q.Set("action", filter.Action)
	}
	if filter.Username != "" {
		q.Set("username", filter.Username)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	path := "/api/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res audit.ListResult
	if err := c.do(ctx, http.MethodGet, path, token, nil, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

// WSTicket obtains a single-use websocket ticket.
func (c *Client) WSTicket(ctx context.Context, token string) (string, error) {
	var res struct {
		Ticket string `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/ws-ticket", token, nil, &res, nil); err != nil {
		return "", err
	}
	return res.Ticket, nil
}

// doData unwraps a {success, data} envelope.
func (c *Client) doData(ctx context.Context, path, token string, out any, notFound error) error {
	env := struct {
		Success bool `json:"success"`
		Data    any  `json:"data"`
	}{Data: out}
	return c.do(ctx, http.MethodGet, path, token, nil, &env, notFound)
}

// do sends one request. body is JSON-encoded when non-nil; out is decoded
// from a 2xx response when non-nil.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any, notFound error) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, notFound)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response, notFound error) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort body
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Status == 0 {
		apiErr.Status = resp.StatusCode
	}
	apiErr.sentinel = sentinelFor(apiErr.Status, apiErr.Code, notFound)
	return apiErr
}
