package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

type stubLocatorSource struct {
	locators []string
	err      error
}

func (s *stubLocatorSource) ListLocators(_ context.Context) ([]string, error) {
	return s.locators, s.err
}

type stubBlobLister struct {
	listings map[string]string
	deleted  []string
}

func (s *stubBlobLister) Zone() string { return "drive-zone" }

func (s *stubBlobLister) List(_ context.Context, prefix string) (json.RawMessage, error) {
	listing, ok := s.listings[prefix]
	if !ok {
		return json.RawMessage("[]"), nil
	}
	return json.RawMessage(listing), nil
}

func (s *stubBlobLister) Delete(_ context.Context, path string) error {
	s.deleted = append(s.deleted, path)
	return nil
}

type stubVideoLister struct {
	pages   []string
	deleted []string
}

func (s *stubVideoLister) ListVideos(_ context.Context, page int) (json.RawMessage, error) {
	if page < 1 || page > len(s.pages) {
		return json.RawMessage(`{"totalItems":0,"items":[]}`), nil
	}
	return json.RawMessage(s.pages[page-1]), nil
}

func (s *stubVideoLister) DeleteVideo(_ context.Context, videoID string) error {
	s.deleted = append(s.deleted, videoID)
	return nil
}

func sweepLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newSweepJob(t *testing.T, params OrphanSweepJobParams) *orphanSweepJob {
	t.Helper()
	if params.Logger == nil {
		params.Logger = sweepLogger()
	}
	job, err := NewOrphanSweepJob(params)
	if err != nil {
		t.Fatalf("new sweep job: %v", err)
	}
	sweep := job.(*orphanSweepJob)
	sweep.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return sweep
}

func blobListing(entries ...string) string {
	return "[" + join(entries) + "]"
}

func join(entries []string) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += ","
		}
		out += e
	}
	return out
}

func dirEntry(name string) string {
	return fmt.Sprintf(`{"ObjectName":%q,"Path":"/drive-zone/","IsDirectory":true}`, name)
}

func fileEntry(dir, name, lastChanged string) string {
	return fmt.Sprintf(`{"ObjectName":%q,"Path":"/drive-zone/%s/","LastChanged":%q,"IsDirectory":false}`, name, dir, lastChanged)
}

func TestSweepDeletesOnlyUnknownOldObjects(t *testing.T) {
	blobs := &stubBlobLister{listings: map[string]string{
		"/": blobListing(dirEntry("user-1")),
		"user-1/": blobListing(
			fileEntry("user-1", "known.txt", "2026-08-01T00:00:00"),
			fileEntry("user-1", "orphan-old.txt", "2026-08-01T00:00:00"),
			fileEntry("user-1", "orphan-fresh.txt", "2026-09-01T11:00:00"),
		),
	}}
	videos := &stubVideoLister{pages: []string{
		`{"totalItems":3,"currentPage":1,"itemsPerPage":50,"items":[
			{"guid":"vid-known","dateUploaded":"2026-08-01T00:00:00Z"},
			{"guid":"vid-orphan","dateUploaded":"2026-08-01T00:00:00Z"},
			{"guid":"vid-fresh","dateUploaded":"2026-09-01T11:00:00Z"}]}`,
	}}
	repo := &stubLocatorSource{locators: []string{
		"blob:user-1/known.txt",
		"stream:vid-known",
		"not-a-locator",
	}}

	sweep := newSweepJob(t, OrphanSweepJobParams{
		Repo: repo, Blobs: blobs, Videos: videos, Retention: 48 * time.Hour,
	})
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(blobs.deleted) != 1 || blobs.deleted[0] != "user-1/orphan-old.txt" {
		t.Fatalf("expected only the old orphan blob, got %v", blobs.deleted)
	}
	if len(videos.deleted) != 1 || videos.deleted[0] != "vid-orphan" {
		t.Fatalf("expected only the old orphan video, got %v", videos.deleted)
	}
}

func TestSweepDryRunDeletesNothing(t *testing.T) {
	blobs := &stubBlobLister{listings: map[string]string{
		"/":       blobListing(dirEntry("user-1")),
		"user-1/": blobListing(fileEntry("user-1", "orphan.txt", "2026-01-01T00:00:00")),
	}}
	videos := &stubVideoLister{pages: []string{
		`{"totalItems":1,"items":[{"guid":"vid-orphan","dateUploaded":"2026-01-01T00:00:00Z"}]}`,
	}}

	sweep := newSweepJob(t, OrphanSweepJobParams{
		Repo: &stubLocatorSource{}, Blobs: blobs, Videos: videos, DryRun: true,
	})
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(blobs.deleted) != 0 || len(videos.deleted) != 0 {
		t.Fatalf("dry run must not delete, got blobs=%v videos=%v", blobs.deleted, videos.deleted)
	}
}

func TestSweepPaginatesVideos(t *testing.T) {
	videos := &stubVideoLister{pages: []string{
		`{"totalItems":2,"currentPage":1,"itemsPerPage":1,"items":[{"guid":"vid-a","dateUploaded":"2026-01-01T00:00:00Z"}]}`,
		`{"totalItems":2,"currentPage":2,"itemsPerPage":1,"items":[{"guid":"vid-b","dateUploaded":"2026-01-01T00:00:00Z"}]}`,
	}}

	sweep := newSweepJob(t, OrphanSweepJobParams{
		Repo: &stubLocatorSource{locators: []string{"stream:vid-a"}}, Videos: videos,
	})
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(videos.deleted) != 1 || videos.deleted[0] != "vid-b" {
		t.Fatalf("expected vid-b removed across pages, got %v", videos.deleted)
	}
}
