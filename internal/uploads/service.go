package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skydrivehq/skydrive-backend/internal/files"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/storage"
	"github.com/skydrivehq/skydrive-backend/pkg/bunny/stream"
	"github.com/skydrivehq/skydrive-backend/pkg/db/models"
	"github.com/skydrivehq/skydrive-backend/pkg/enums"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
	"github.com/skydrivehq/skydrive-backend/pkg/metrics"
)

const (
	backendBlob   = "blob"
	backendStream = "stream"

	// Placeholder creation counts as the first slice of a video upload.
	videoProgressFloor = 5
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type fileRepository interface {
	Create(ctx context.Context, file *models.File) (*models.File, error)
}

type blobStore interface {
	Upload(ctx context.Context, path string, body io.Reader) (*storage.UploadResult, error)
}

type videoStore interface {
	CreateVideo(ctx context.Context, title string) (*stream.CreateVideoResult, error)
	UploadVideo(ctx context.Context, videoID string, body io.Reader) (*stream.UploadResult, error)
	DeleteVideo(ctx context.Context, videoID string) error
	EmbedURL(videoID string) string
}

// Input describes one file of an upload batch. Body is consumed once.
type Input struct {
	FileName string
	MimeType string
	Size     int64
	Body     io.Reader
}

// Result reports one batch item's outcome. Exactly one of File and Err is
// set; a failed item never aborts its siblings.
type Result struct {
	TaskID string       `json:"task_id"`
	File   *models.File `json:"file,omitempty"`
	Err    string       `json:"error,omitempty"`
}

// Service runs the two-backend upload pipeline and tracks observable tasks.
type Service struct {
	repo     fileRepository
	blobs    blobStore
	videos   videoStore
	registry *Registry
	metrics  *metrics.UploadMetrics
	logger   *logger.Logger
	maxBytes int64

	stampMu   sync.Mutex
	lastStamp int64
}

// NewService constructs the upload orchestrator.
func NewService(
	repo fileRepository,
	blobs blobStore,
	videos videoStore,
	registry *Registry,
	uploadMetrics *metrics.UploadMetrics,
	logg *logger.Logger,
	maxBytes int64,
) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("file repository required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if videos == nil {
		return nil, fmt.Errorf("video store required")
	}
	if registry == nil {
		return nil, fmt.Errorf("task registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:     repo,
		blobs:    blobs,
		videos:   videos,
		registry: registry,
		metrics:  uploadMetrics,
		logger:   logg,
		maxBytes: maxBytes,
	}, nil
}

// Registry exposes the task registry for the polling surface.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Cancel aborts an in-flight task by id.
func (s *Service) Cancel(taskID string) error {
	task, ok := s.registry.Get(taskID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "upload task not found")
	}
	task.Cancel()
	return nil
}

// UploadBatch runs the batch strictly in order. Every item gets its own task
// and its own outcome; a failure marks that task and moves on.
func (s *Service) UploadBatch(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID, inputs []Input) ([]Result, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner identity missing")
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no files in batch")
	}

	results := make([]Result, 0, len(inputs))
	for i := range inputs {
		results = append(results, s.uploadOne(ctx, ownerID, parentID, inputs[i]))
	}
	return results, nil
}

func (s *Service) uploadOne(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID, input Input) Result {
	task := newTask(input.FileName)
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	task.bindCancel(cancel)

	s.registry.register(task)
	defer s.registry.retire(task.id)

	ctxLog := s.logger.WithUploadTask(s.logger.WithOwnerID(ctx, ownerID.String()), task.id)

	file, err := s.run(taskCtx, ctxLog, ownerID, parentID, input, task)
	if err != nil {
		task.fail(err.Error())
		s.metrics.IncCompleted(backendFor(input.MimeType), "error")
		s.logger.Error(ctxLog, "upload failed", err)
		return Result{TaskID: task.id, Err: err.Error()}
	}

	task.complete(file.ID)
	s.metrics.IncCompleted(backendFor(input.MimeType), "done")
	s.metrics.AddBytes(backendFor(input.MimeType), input.Size)
	s.logger.Info(s.logger.WithFileID(ctxLog, file.ID.String()), "upload complete")
	return Result{TaskID: task.id, File: file}
}

func (s *Service) run(ctx context.Context, ctxLog context.Context, ownerID uuid.UUID, parentID *uuid.UUID, input Input, task *Task) (*models.File, error) {
	name := strings.TrimSpace(input.FileName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
	}
	if input.Size <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if s.maxBytes > 0 && input.Size > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file exceeds %d byte limit", s.maxBytes))
	}

	if isVideo(input.MimeType) {
		return s.runVideo(ctx, ctxLog, ownerID, parentID, name, input, task)
	}
	return s.runBlob(ctx, ownerID, parentID, name, input, task)
}

func (s *Service) runBlob(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID, name string, input Input, task *Task) (*models.File, error) {
	destination := s.destinationPath(ownerID, name)
	body := newProgressReader(input.Body, input.Size, 0, 100, func(percent int) {
		task.setProgress(enums.UploadStatusUploading, percent)
	})

	uploaded, err := s.blobs.Upload(ctx, destination, body)
	if err != nil {
		return nil, err
	}

	locator := files.BlobLocator(uploaded.Path).String()
	return s.persist(ctx, &models.File{
		OwnerID:        ownerID,
		Name:           name,
		Kind:           enums.FileKindFile,
		MimeType:       &input.MimeType,
		SizeBytes:      input.Size,
		ParentID:       parentID,
		StorageLocator: &locator,
		CDNURL:         &uploaded.URL,
	})
}

// runVideo spools the payload to disk so the bytes can be read twice: once
// for the stream upload and once for the best-effort blob mirror.
func (s *Service) runVideo(ctx context.Context, ctxLog context.Context, ownerID uuid.UUID, parentID *uuid.UUID, name string, input Input, task *Task) (*models.File, error) {
	spool, err := spoolToDisk(input.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "spool upload payload")
	}
	defer spool.cleanup()

	created, err := s.videos.CreateVideo(ctx, name)
	if err != nil {
		return nil, err
	}
	task.setProgress(enums.UploadStatusProcessing, videoProgressFloor)

	body := newProgressReader(spool.file, input.Size, videoProgressFloor, 100, func(percent int) {
		task.setProgress(enums.UploadStatusProcessing, percent)
	})
	if _, err := s.videos.UploadVideo(ctx, created.VideoID, body); err != nil {
		// The placeholder is now an orphan; remove it outside the
		// possibly-cancelled request context.
		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelCleanup()
		if delErr := s.videos.DeleteVideo(cleanupCtx, created.VideoID); delErr != nil {
			s.logger.Warn(ctxLog, "orphaned video placeholder cleanup failed")
		}
		return nil, err
	}

	cdnURL := s.videos.EmbedURL(created.VideoID)
	if mirrored := s.mirrorBlob(ctx, ctxLog, ownerID, name, spool); mirrored != "" {
		cdnURL = mirrored
	}

	locator := files.StreamLocator(created.VideoID).String()
	return s.persist(ctx, &models.File{
		OwnerID:        ownerID,
		Name:           name,
		Kind:           enums.FileKindFile,
		MimeType:       &input.MimeType,
		SizeBytes:      input.Size,
		ParentID:       parentID,
		StorageLocator: &locator,
		VideoID:        &created.VideoID,
		CDNURL:         &cdnURL,
	})
}

// mirrorBlob copies a video's bytes into blob storage for direct CDN access.
// Mirror failure is non-fatal; callers fall back to the embed URL.
func (s *Service) mirrorBlob(ctx context.Context, ctxLog context.Context, ownerID uuid.UUID, name string, spool *spooledFile) string {
	if err := spool.rewind(); err != nil {
		s.logger.Warn(ctxLog, "blob mirror skipped: rewind spool failed")
		return ""
	}
	uploaded, err := s.blobs.Upload(ctx, s.destinationPath(ownerID, name), spool.file)
	if err != nil {
		s.logger.Warn(ctxLog, "blob mirror failed, falling back to embed url")
		return ""
	}
	return uploaded.URL
}

func (s *Service) persist(ctx context.Context, file *models.File) (*models.File, error) {
	created, err := s.repo.Create(ctx, file)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist file record")
	}
	return created, nil
}

// destinationPath builds `<owner>/<stamp>-<sanitized name>`. The stamp is a
// monotonic millisecond clock, so two uploads of the same name never collide.
func (s *Service) destinationPath(ownerID uuid.UUID, name string) string {
	return fmt.Sprintf("%s/%d-%s", ownerID, s.nextStamp(), sanitizeFileName(name))
}

func (s *Service) nextStamp() int64 {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	stamp := time.Now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

func sanitizeFileName(name string) string {
	return unsafePathChars.ReplaceAllString(name, "")
}

func isVideo(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "video/")
}

func backendFor(mimeType string) string {
	if isVideo(mimeType) {
		return backendStream
	}
	return backendBlob
}

type spooledFile struct {
	file *os.File
}

func spoolToDisk(body io.Reader) (*spooledFile, error) {
	file, err := os.CreateTemp("", "skydrive-upload-*")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, err
	}
	return &spooledFile{file: file}, nil
}

func (s *spooledFile) rewind() error {
	_, err := s.file.Seek(0, io.SeekStart)
	return err
}

func (s *spooledFile) cleanup() {
	_ = s.file.Close()
	_ = os.Remove(s.file.Name())
}
