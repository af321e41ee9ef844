package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "MAILVAULT_HTTP_TIMEOUT"
	apiUserEnvKey      = "MAILVAULT_API_USER"
	apiPasswordEnvKey  = "MAILVAULT_API_PASSWORD"
)

// Client is a read-only HTTP client for the mailvault dashboard API.
type Client struct {
	baseURL  string
	http     *http.Client
	username string
	password string
}

// NewClient creates a new API client. Credentials come from
// MAILVAULT_API_USER and MAILVAULT_API_PASSWORD when set.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: httpTimeoutFromEnv()},
		username: strings.TrimSpace(os.Getenv(apiUserEnvKey)),
		password: os.Getenv(apiPasswordEnvKey),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "/health", nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, "/v1/info", nil, &resp)
	return resp, err
}

func (c *Client) ListSnapshots(ctx context.Context, query url.Values) ([]SnapshotResponse, error) {
	var resp []SnapshotResponse
	err := c.do(ctx, "/v1/snapshots", query, &resp)
	return resp, err
}

func (c *Client) GetSnapshot(ctx context.Context, id int64) (SnapshotResponse, error) {
	var resp SnapshotResponse
	err := c.do(ctx, "/v1/snapshots/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp, err
}

func (c *Client) ListSnapshotItems(ctx context.Context, id int64) ([]SnapshotItemResponse, error) {
	var resp []SnapshotItemResponse
	err := c.do(ctx, "/v1/snapshots/"+strconv.FormatInt(id, 10)+"/items", nil, &resp)
	return resp, err
}

func (c *Client) ListRestoreCandidates(ctx context.Context, query url.Values) ([]SnapshotResponse, error) {
	var resp []SnapshotResponse
	err := c.do(ctx, "/v1/snapshots/restore-candidates", query, &resp)
	return resp, err
}

func (c *Client) GetEntry(ctx context.Context, query url.Values) (EntryResponse, error) {
	var resp EntryResponse
	err := c.do(ctx, "/v1/entries", query, &resp)
	return resp, err
}

func (c *Client) GetBlob(ctx context.Context, digest string) (BlobResponse, error) {
	var resp BlobResponse
	err := c.do(ctx, "/v1/blobs/"+url.PathEscape(digest), nil, &resp)
	return resp, err
}

// DownloadBlob streams the stored payload for a digest. The caller owns
// the returned reader.
func (c *Client) DownloadBlob(ctx context.Context, digest string) (io.ReadCloser, error) {
	endpoint := c.baseURL + "/v1/blobs/" + url.PathEscape(digest) + "/content"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func (c *Client) ListTenants(ctx context.Context) ([]TenantResponse, error) {
	var resp []TenantResponse
	err := c.do(ctx, "/v1/tenants", nil, &resp)
	return resp, err
}

func (c *Client) GetStats(ctx context.Context) (StatsResponse, error) {
	var resp StatsResponse
	err := c.do(ctx, "/v1/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}

	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
