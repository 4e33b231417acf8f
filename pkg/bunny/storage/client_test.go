package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skydrivehq/skydrive-backend/pkg/config"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
)

func testConfig(host string) config.BunnyStorageConfig {
	return config.BunnyStorageConfig{
		Zone:     "drive-zone",
		Host:     host,
		Password: "zone-password",
		Timeout:  5 * time.Second,
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.BunnyStorageConfig{Host: "storage.bunnycdn.com"}, nil)
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestUpload(t *testing.T) {
	var gotMethod, gotPath, gotKey string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("AccessKey")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Upload(context.Background(), "user-1/1700000000-report.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotPath != "/drive-zone/user-1/1700000000-report.pdf" {
		t.Fatalf("unexpected request path %s", gotPath)
	}
	if gotKey != "zone-password" {
		t.Fatalf("unexpected access key %q", gotKey)
	}
	if string(gotBody) != "pdf-bytes" {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if result.URL != "https://drive-zone.b-cdn.net/user-1/1700000000-report.pdf" {
		t.Fatalf("unexpected cdn url %s", result.URL)
	}
	if result.Path != "user-1/1700000000-report.pdf" {
		t.Fatalf("unexpected path %s", result.Path)
	}
}

func TestUploadRequiresPath(t *testing.T) {
	client, err := NewClient(testConfig("storage.bunnycdn.com"), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Upload(context.Background(), " ", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestUploadUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid access key"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Upload(context.Background(), "a/b.txt", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid access key") {
		t.Fatalf("error should carry vendor status and body, got %q", err.Error())
	}
}

func TestDelete(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Delete(context.Background(), "user-1/old.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/drive-zone/user-1/old.png" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestListAndParse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing json accept header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"ObjectName":"a.txt","Path":"/drive-zone/user-1/","Length":12,"IsDirectory":false}]`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	raw, err := client.List(context.Background(), "user-1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	objects, err := ParseListing(raw)
	if err != nil {
		t.Fatalf("parse listing: %v", err)
	}
	if len(objects) != 1 || objects[0].ObjectName != "a.txt" || objects[0].Length != 12 {
		t.Fatalf("unexpected listing %+v", objects)
	}
}

func TestCDNURL(t *testing.T) {
	client, err := NewClient(testConfig("storage.bunnycdn.com"), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if got := client.CDNURL("/user-1/a b.txt"); got != "https://drive-zone.b-cdn.net/user-1/a b.txt" {
		t.Fatalf("unexpected cdn url %s", got)
	}
}
