// Package supabase is a small PostgREST client for the hosted Supabase backend.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to {BaseURL}/rest/v1 with the project API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Table      string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase %s %s: status %d: %s", e.Method, e.Table, e.StatusCode, e.Body)
}

// Temporary marks server-side and rate limit failures as worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NewClient builds a client. timeout bounds every request.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Select runs GET /rest/v1/{table} with PostgREST query parameters, e.g.
// {"email": {"eq.a@b.c"}, "order": {"created_at.desc"}}, and decodes the
// JSON array into out.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out any) error {
	endpoint := c.endpoint(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, table, out)
}

// Insert runs POST /rest/v1/{table} and asks PostgREST to return the stored
// rows, which are decoded into out when it is not nil.
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", table, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(table), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Prefer", "return=representation")
	return c.do(req, table, out)
}

// Delete runs DELETE /rest/v1/{table} with the given filters.
func (c *Client) Delete(ctx context.Context, table string, query url.Values) error {
	endpoint := c.endpoint(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, table, nil)
}

// Eq builds a PostgREST equality filter value.
func Eq(value string) string { return "eq." + value }

func (c *Client) endpoint(table string) string {
	return c.baseURL + "/rest/v1/" + url.PathEscape(table)
}

func (c *Client) do(req *http.Request, table string, out any) error {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase %s %s: %w", req.Method, table, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", table, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: req.Method, Table: table, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}
	return nil
}
