package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skydrivehq/skydrive-backend/pkg/config"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
)

func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(config.BunnyStreamConfig{
		LibraryID: "12345",
		APIKey:    "library-key",
		Timeout:   5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if server != nil {
		client.apiBase = server.URL + "/library/12345"
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.BunnyStreamConfig{LibraryID: "12345"}, nil)
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestCreateVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/library/12345/videos" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("AccessKey") != "library-key" {
			t.Errorf("missing access key header")
		}
		var payload struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Title != "demo.mp4" {
			t.Errorf("unexpected payload %+v (%v)", payload, err)
		}
		_, _ = w.Write([]byte(`{"guid":"vid-123","title":"demo.mp4"}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	result, err := client.CreateVideo(context.Background(), "demo.mp4")
	if err != nil {
		t.Fatalf("create video: %v", err)
	}
	if result.VideoID != "vid-123" || result.LibraryID != "12345" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.UploadURL != server.URL+"/library/12345/videos/vid-123" {
		t.Fatalf("unexpected upload url %s", result.UploadURL)
	}
	if result.APIKey != "library-key" {
		t.Fatalf("unexpected api key %s", result.APIKey)
	}
}

func TestCreateVideoMissingGUID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := testClient(t, server).CreateVideo(context.Background(), "demo.mp4")
	if err == nil {
		t.Fatal("expected error for missing guid")
	}
}

func TestUploadVideo(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/library/12345/videos/vid-123" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	result, err := testClient(t, server).UploadVideo(context.Background(), "vid-123", strings.NewReader("mp4-bytes"))
	if err != nil {
		t.Fatalf("upload video: %v", err)
	}
	if string(gotBody) != "mp4-bytes" {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if result.EmbedURL != "https://iframe.mediadelivery.net/embed/12345/vid-123" {
		t.Fatalf("unexpected embed url %s", result.EmbedURL)
	}
	if result.DirectPlayURL != "https://iframe.mediadelivery.net/play/12345/vid-123" {
		t.Fatalf("unexpected play url %s", result.DirectPlayURL)
	}
}

func TestDeleteVideoUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("video not found"))
	}))
	defer server.Close()

	err := testClient(t, server).DeleteVideo(context.Background(), "vid-404")
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error should carry vendor status, got %q", err.Error())
	}
}

func TestGetVideoMergesEmbedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"guid":"vid-123","title":"demo.mp4","status":4}`))
	}))
	defer server.Close()

	metadata, err := testClient(t, server).GetVideo(context.Background(), "vid-123")
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if metadata["embedUrl"] != "https://iframe.mediadelivery.net/embed/12345/vid-123" {
		t.Fatalf("unexpected embed url %v", metadata["embedUrl"])
	}
	if metadata["title"] != "demo.mp4" {
		t.Fatalf("vendor metadata should pass through, got %+v", metadata)
	}
}

func TestListVideosPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("page") != "2" || query.Get("itemsPerPage") != "50" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"totalItems":70,"currentPage":2,"itemsPerPage":50,"items":[{"guid":"vid-51","title":"b.mp4","dateUploaded":"2026-08-01T00:00:00Z"}]}`))
	}))
	defer server.Close()

	raw, err := testClient(t, server).ListVideos(context.Background(), 2)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	page, err := ParseVideoPage(raw)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if page.TotalItems != 70 || len(page.Items) != 1 || page.Items[0].GUID != "vid-51" {
		t.Fatalf("unexpected page %+v", page)
	}
}
