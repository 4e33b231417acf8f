package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/skydrivehq/skydrive-backend/pkg/config"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

const (
	apiBaseFormat      = "https://video.bunnycdn.com/library/%s"
	embedURLFormat     = "https://iframe.mediadelivery.net/embed/%s/%s"
	directPlayFormat   = "https://iframe.mediadelivery.net/play/%s/%s"
	listVideosPageSize = 50

	accessKeyHeader = "AccessKey"
	maxErrorBody    = 2048
)

// Client fronts the Bunny Stream HTTP API for one video library. The library
// API key never leaves the backend; browsers get iframe URLs instead.
type Client struct {
	httpClient *http.Client
	apiBase    string
	libraryID  string
	apiKey     string
	logger     *logger.Logger
}

// CreateVideoResult describes a freshly created video placeholder. UploadURL
// and APIKey let a trusted caller stream the file bytes directly.
type CreateVideoResult struct {
	VideoID   string `json:"videoId"`
	LibraryID string `json:"libraryId"`
	UploadURL string `json:"uploadUrl"`
	APIKey    string `json:"apiKey"`
}

// UploadResult reports the playback URLs for an uploaded video.
type UploadResult struct {
	VideoID       string `json:"videoId"`
	EmbedURL      string `json:"embedUrl"`
	DirectPlayURL string `json:"directPlayUrl"`
}

// Video is one entry of the library listing.
type Video struct {
	GUID         string `json:"guid"`
	Title        string `json:"title"`
	DateUploaded string `json:"dateUploaded"`
}

// VideoPage is a typed view of the vendor's paginated listing.
type VideoPage struct {
	TotalItems   int     `json:"totalItems"`
	CurrentPage  int     `json:"currentPage"`
	ItemsPerPage int     `json:"itemsPerPage"`
	Items        []Video `json:"items"`
}

// NewClient validates the stream-library credentials and builds the wrapper.
func NewClient(cfg config.BunnyStreamConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "bunny stream credentials not configured")
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiBase:    fmt.Sprintf(apiBaseFormat, cfg.LibraryID),
		libraryID:  cfg.LibraryID,
		apiKey:     cfg.APIKey,
		logger:     logg,
	}, nil
}

// NewClientWithBase is NewClient with an explicit API base URL, for
// deployments that front the vendor API with a proxy.
func NewClientWithBase(cfg config.BunnyStreamConfig, apiBase string, logg *logger.Logger) (*Client, error) {
	client, err := NewClient(cfg, logg)
	if err != nil {
		return nil, err
	}
	if apiBase != "" {
		client.apiBase = strings.TrimSuffix(apiBase, "/")
	}
	return client, nil
}

// LibraryID returns the configured library identifier.
func (c *Client) LibraryID() string {
	if c == nil {
		return ""
	}
	return c.libraryID
}

// EmbedURL builds the iframe embed URL for a video.
func (c *Client) EmbedURL(videoID string) string {
	return fmt.Sprintf(embedURLFormat, c.libraryID, videoID)
}

// DirectPlayURL builds the hosted player URL for a video.
func (c *Client) DirectPlayURL(videoID string) string {
	return fmt.Sprintf(directPlayFormat, c.libraryID, videoID)
}

// CreateVideo registers a titled placeholder in the library and returns the
// endpoint a caller can stream the bytes to.
func (c *Client) CreateVideo(ctx context.Context, title string) (*CreateVideoResult, error) {
	if strings.TrimSpace(title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "video title is required")
	}

	payload, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode create-video payload")
	}

	body, err := c.do(ctx, http.MethodPost, c.apiURL("/videos"), bytes.NewReader(payload), "application/json", "create video")
	if err != nil {
		return nil, err
	}

	var created struct {
		GUID string `json:"guid"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode create-video response")
	}
	if created.GUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "bunny stream returned no video id")
	}

	c.log(ctx, "create_video", map[string]any{"video_id": created.GUID})
	return &CreateVideoResult{
		VideoID:   created.GUID,
		LibraryID: c.libraryID,
		UploadURL: c.apiURL("/videos/" + created.GUID),
		APIKey:    c.apiKey,
	}, nil
}

// UploadVideo streams the file bytes into an existing placeholder and returns
// playback URLs. Encoding continues asynchronously on the vendor side.
func (c *Client) UploadVideo(ctx context.Context, videoID string, body io.Reader) (*UploadResult, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "video id is required")
	}

	if _, err := c.do(ctx, http.MethodPut, c.apiURL("/videos/"+videoID), body, "application/octet-stream", "upload video"); err != nil {
		return nil, err
	}

	c.log(ctx, "upload_video", map[string]any{"video_id": videoID})
	return &UploadResult{
		VideoID:       videoID,
		EmbedURL:      c.EmbedURL(videoID),
		DirectPlayURL: c.DirectPlayURL(videoID),
	}, nil
}

// DeleteVideo removes a video from the library. Deleting an unknown id
// surfaces the vendor's 404; retries are safe.
func (c *Client) DeleteVideo(ctx context.Context, videoID string) error {
	if strings.TrimSpace(videoID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "video id is required")
	}

	if _, err := c.do(ctx, http.MethodDelete, c.apiURL("/videos/"+videoID), nil, "", "delete video"); err != nil {
		return err
	}

	c.log(ctx, "delete_video", map[string]any{"video_id": videoID})
	return nil
}

// GetVideo fetches a video's metadata and merges in the computed embed URL.
func (c *Client) GetVideo(ctx context.Context, videoID string) (map[string]any, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "video id is required")
	}

	body, err := c.do(ctx, http.MethodGet, c.apiURL("/videos/"+videoID), nil, "", "get video")
	if err != nil {
		return nil, err
	}

	var metadata map[string]any
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode video metadata")
	}
	metadata["embedUrl"] = c.EmbedURL(videoID)
	return metadata, nil
}

// ListVideos returns the vendor's raw listing for one page, newest first.
func (c *Client) ListVideos(ctx context.Context, page int) (json.RawMessage, error) {
	if page < 1 {
		page = 1
	}

	endpoint := c.apiURL(fmt.Sprintf("/videos?page=%d&itemsPerPage=%d&orderBy=date", page, listVideosPageSize))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "", "list videos")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// ParseVideoPage decodes a raw listing into its typed form.
func ParseVideoPage(raw json.RawMessage) (*VideoPage, error) {
	var page VideoPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode video page: %w", err)
	}
	return &page, nil
}

func (c *Client) apiURL(path string) string {
	return c.apiBase + path
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType, op string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+op+" request")
	}
	req.Header.Set(accessKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "bunny stream "+op)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && c.logger != nil {
			c.logger.Warn(ctx, "bunny stream: closing response body failed")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, pkgerrors.New(
			pkgerrors.CodeUpstream,
			fmt.Sprintf("bunny %s failed [%d]: %s", op, resp.StatusCode, strings.TrimSpace(string(detail))),
		)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "read "+op+" response")
	}
	return raw, nil
}

func (c *Client) log(ctx context.Context, op string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	fields["vendor"] = "bunny_stream"
	fields["op"] = op
	c.logger.Info(c.logger.WithFields(ctx, fields), "vendor call complete")
}
