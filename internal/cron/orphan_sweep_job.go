package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/skydrivehq/skydrive-backend/internal/files"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/storage"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/stream"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

const (
	defaultSweepRetention = 48 * time.Hour
	maxVideoPages         = 200
)

// Vendor timestamps come back without a zone marker more often than not.
var vendorTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

type locatorSource interface {
	ListLocators(ctx context.Context) ([]string, error)
}

type blobLister interface {
	Zone() string
	List(ctx context.Context, prefix string) (json.RawMessage, error)
	Delete(ctx context.Context, path string) error
}

type videoLister interface {
	ListVideos(ctx context.Context, page int) (json.RawMessage, error)
	DeleteVideo(ctx context.Context, videoID string) error
}

// OrphanSweepJobParams configure the reconciliation sweep.
type OrphanSweepJobParams struct {
	Logger    *logger.Logger
	Repo      locatorSource
	Blobs     blobLister
	Videos    videoLister
	Retention time.Duration
	DryRun    bool
}

// NewOrphanSweepJob builds the job that deletes vendor objects no file
// record points at anymore.
func NewOrphanSweepJob(params OrphanSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("locator source required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultSweepRetention
	}
	return &orphanSweepJob{
		logg:      params.Logger,
		repo:      params.Repo,
		blobs:     params.Blobs,
		videos:    params.Videos,
		retention: retention,
		dryRun:    params.DryRun,
		now:       time.Now,
	}, nil
}

type orphanSweepJob struct {
	logg      *logger.Logger
	repo      locatorSource
	blobs     blobLister
	videos    videoLister
	retention time.Duration
	dryRun    bool
	now       func() time.Time
}

func (j *orphanSweepJob) Name() string { return "orphan-sweep" }

// Run diffs both vendor backends against the persisted locators and removes
// unreferenced objects older than the retention window. Individual failures
// are collected; the sweep always visits everything it can.
func (j *orphanSweepJob) Run(ctx context.Context) error {
	locators, err := j.repo.ListLocators(ctx)
	if err != nil {
		return fmt.Errorf("list locators: %w", err)
	}

	knownBlobs := map[string]bool{}
	knownVideos := map[string]bool{}
	for _, raw := range locators {
		locator, err := files.ParseLocator(raw)
		if err != nil {
			j.logg.Warn(j.logg.WithField(ctx, "locator", raw), "skipping malformed locator")
			continue
		}
		switch locator.Kind {
		case files.LocatorKindBlob:
			knownBlobs[locator.Ref] = true
		case files.LocatorKindStream:
			knownVideos[locator.Ref] = true
		}
	}

	cutoff := j.now().UTC().Add(-j.retention)
	var (
		sweepErrs error
		removed   int
	)

	if j.blobs != nil {
		n, err := j.sweepBlobs(ctx, knownBlobs, cutoff)
		removed += n
		sweepErrs = multierr.Append(sweepErrs, err)
	}
	if j.videos != nil {
		n, err := j.sweepVideos(ctx, knownVideos, cutoff)
		removed += n
		sweepErrs = multierr.Append(sweepErrs, err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"known_blobs":  len(knownBlobs),
		"known_videos": len(knownVideos),
		"removed":      removed,
		"dry_run":      j.dryRun,
	})
	j.logg.Info(logCtx, "orphan sweep complete")
	return sweepErrs
}

// sweepBlobs walks the zone one directory deep; uploads land under a
// per-owner prefix, so that covers the whole tree.
func (j *orphanSweepJob) sweepBlobs(ctx context.Context, known map[string]bool, cutoff time.Time) (int, error) {
	root, err := j.listBlobDir(ctx, "/")
	if err != nil {
		return 0, fmt.Errorf("list storage root: %w", err)
	}

	var (
		errs    error
		removed int
	)
	evaluate := func(objects []storage.Object) {
		for _, object := range objects {
			if object.IsDirectory {
				continue
			}
			path := j.relativePath(object)
			if known[path] {
				continue
			}
			changed, ok := parseVendorTime(object.LastChanged)
			if ok && changed.After(cutoff) {
				continue
			}
			removed++
			if j.dryRun {
				j.logg.Info(j.logg.WithField(ctx, "path", path), "dry run: would delete orphaned blob")
				continue
			}
			if err := j.blobs.Delete(ctx, path); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("delete blob %s: %w", path, err))
				continue
			}
			j.logg.Info(j.logg.WithField(ctx, "path", path), "deleted orphaned blob")
		}
	}

	evaluate(root)
	for _, entry := range root {
		if !entry.IsDirectory {
			continue
		}
		children, err := j.listBlobDir(ctx, j.relativePath(entry)+"/")
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list storage dir %s: %w", entry.ObjectName, err))
			continue
		}
		evaluate(children)
	}
	return removed, errs
}

func (j *orphanSweepJob) sweepVideos(ctx context.Context, known map[string]bool, cutoff time.Time) (int, error) {
	var (
		errs    error
		removed int
		seen    int
		total   = -1
	)
	for page := 1; page <= maxVideoPages; page++ {
		raw, err := j.videos.ListVideos(ctx, page)
		if err != nil {
			return removed, multierr.Append(errs, fmt.Errorf("list videos page %d: %w", page, err))
		}
		videoPage, err := stream.ParseVideoPage(raw)
		if err != nil {
			return removed, multierr.Append(errs, err)
		}
		if total < 0 {
			total = videoPage.TotalItems
		}
		if len(videoPage.Items) == 0 {
			break
		}
		seen += len(videoPage.Items)

		for _, video := range videoPage.Items {
			if known[video.GUID] {
				continue
			}
			uploaded, ok := parseVendorTime(video.DateUploaded)
			if ok && uploaded.After(cutoff) {
				continue
			}
			removed++
			if j.dryRun {
				j.logg.Info(j.logg.WithField(ctx, "video_id", video.GUID), "dry run: would delete orphaned video")
				continue
			}
			if err := j.videos.DeleteVideo(ctx, video.GUID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("delete video %s: %w", video.GUID, err))
				continue
			}
			j.logg.Info(j.logg.WithField(ctx, "video_id", video.GUID), "deleted orphaned video")
		}

		if seen >= total {
			break
		}
	}
	return removed, errs
}

func (j *orphanSweepJob) listBlobDir(ctx context.Context, prefix string) ([]storage.Object, error) {
	raw, err := j.blobs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return storage.ParseListing(raw)
}

// relativePath strips the zone prefix from the vendor's absolute object path.
func (j *orphanSweepJob) relativePath(object storage.Object) string {
	dir := strings.TrimPrefix(object.Path, "/")
	dir = strings.TrimPrefix(dir, j.blobs.Zone())
	dir = strings.TrimPrefix(dir, "/")
	return dir + object.ObjectName
}

func parseVendorTime(value string) (time.Time, bool) {
	for _, layout := range vendorTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
