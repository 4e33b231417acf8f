package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/skydrivehq/skydrive-backend/pkg/config"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

const (
	accessKeyHeader = "AccessKey"
	cdnURLFormat    = "https://%s.b-cdn.net/%s"

	maxErrorBody = 2048
)

// Client fronts the Bunny edge-storage HTTP API for one storage zone. It holds
// the zone password server-side; callers only ever see the public CDN URL.
type Client struct {
	httpClient *http.Client
	zone       string
	baseURL    string
	password   string
	logger     *logger.Logger
}

// UploadResult reports where an uploaded object landed.
type UploadResult struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Object is one entry of the vendor's directory listing.
type Object struct {
	ObjectName  string `json:"ObjectName"`
	Path        string `json:"Path"`
	Length      int64  `json:"Length"`
	LastChanged string `json:"LastChanged"`
	IsDirectory bool   `json:"IsDirectory"`
}

// NewClient validates the storage-zone credentials and builds the wrapper.
func NewClient(cfg config.BunnyStorageConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "bunny storage credentials not configured")
	}
	baseURL := cfg.Host
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		zone:       cfg.Zone,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		password:   cfg.Password,
		logger:     logg,
	}, nil
}

// Zone returns the configured storage zone name.
func (c *Client) Zone() string {
	if c == nil {
		return ""
	}
	return c.zone
}

// CDNURL builds the deterministic public URL for an object path.
func (c *Client) CDNURL(path string) string {
	return fmt.Sprintf(cdnURLFormat, c.zone, strings.TrimPrefix(path, "/"))
}

// Upload stores the body at path inside the zone and returns the public URL.
// Re-uploading the same path overwrites the previous object.
func (c *Client) Upload(ctx context.Context, path string, body io.Reader) (*UploadResult, error) {
	if strings.TrimSpace(path) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "object path is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(path), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build upload request")
	}
	req.Header.Set(accessKeyHeader, c.password)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "bunny storage upload")
	}
	defer c.closeBody(ctx, resp.Body)

	if err := c.checkStatus(resp, "upload"); err != nil {
		return nil, err
	}

	c.log(ctx, "upload", map[string]any{"path": path})
	return &UploadResult{URL: c.CDNURL(path), Path: path}, nil
}

// Delete removes the object at path. Deleting a missing object surfaces the
// vendor's 404 to the caller; retries are safe.
func (c *Client) Delete(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "object path is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(path), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build delete request")
	}
	req.Header.Set(accessKeyHeader, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "bunny storage delete")
	}
	defer c.closeBody(ctx, resp.Body)

	if err := c.checkStatus(resp, "delete"); err != nil {
		return err
	}

	c.log(ctx, "delete", map[string]any{"path": path})
	return nil
}

// List returns the vendor's raw directory listing for the prefix.
func (c *Client) List(ctx context.Context, prefix string) (json.RawMessage, error) {
	if prefix == "" {
		prefix = "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(prefix), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build list request")
	}
	req.Header.Set(accessKeyHeader, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "bunny storage list")
	}
	defer c.closeBody(ctx, resp.Body)

	if err := c.checkStatus(resp, "list"); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "read list response")
	}
	return json.RawMessage(raw), nil
}

// ParseListing decodes a raw directory listing into typed objects.
func ParseListing(raw json.RawMessage) ([]Object, error) {
	var objects []Object
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("decode storage listing: %w", err)
	}
	return objects, nil
}

func (c *Client) objectURL(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.zone, strings.Join(segments, "/"))
}

func (c *Client) checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return pkgerrors.New(
		pkgerrors.CodeUpstream,
		fmt.Sprintf("bunny %s failed [%d]: %s", op, resp.StatusCode, strings.TrimSpace(string(body))),
	)
}

func (c *Client) closeBody(ctx context.Context, body io.Closer) {
	if body == nil {
		return
	}
	if err := body.Close(); err != nil && c.logger != nil {
		c.logger.Warn(ctx, "bunny storage: closing response body failed")
	}
}

func (c *Client) log(ctx context.Context, op string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	fields["vendor"] = "bunny_storage"
	fields["op"] = op
	c.logger.Info(c.logger.WithFields(ctx, fields), "vendor call complete")
}
