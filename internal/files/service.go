package files

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/skydrivehq/skydrive-backend/pkg/db"
	"github.com/skydrivehq/skydrive-backend/pkg/db/models"
	"github.com/skydrivehq/skydrive-backend/pkg/enums"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

const maxFileNameLength = 255

// ListView selects one of the drive's listing surfaces.
type ListView string

const (
	ViewFolder  ListView = "folder"
	ViewStarred ListView = "starred"
	ViewShared  ListView = "shared"
	ViewTrash   ListView = "trash"
	ViewRecent  ListView = "recent"
)

// ParseListView validates a view query value, defaulting to the folder view.
func ParseListView(value string) (ListView, error) {
	if value == "" {
		return ViewFolder, nil
	}
	switch view := ListView(value); view {
	case ViewFolder, ViewStarred, ViewShared, ViewTrash, ViewRecent:
		return view, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown view %q", value))
	}
}

type fileRepository interface {
	Create(ctx context.Context, file *models.File) (*models.File, error)
	FindByID(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) (*models.File, error)
	Update(ctx context.Context, ownerID uuid.UUID, id uuid.UUID, fields map[string]any) (*models.File, error)
	Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error
	DeleteTrashed(ctx context.Context, ownerID uuid.UUID) error
	ListFolder(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID) ([]models.File, error)
	ListStarred(ctx context.Context, ownerID uuid.UUID) ([]models.File, error)
	ListShared(ctx context.Context, ownerID uuid.UUID) ([]models.File, error)
	ListTrashed(ctx context.Context, ownerID uuid.UUID) ([]models.File, error)
	ListRecent(ctx context.Context, ownerID uuid.UUID) ([]models.File, error)
	Stats(ctx context.Context, ownerID uuid.UUID) (*Stats, error)
}

type blobStore interface {
	Delete(ctx context.Context, path string) error
}

type videoStore interface {
	DeleteVideo(ctx context.Context, videoID string) error
	GetVideo(ctx context.Context, videoID string) (map[string]any, error)
	EmbedURL(videoID string) string
}

// Service exposes drive metadata and lifecycle semantics.
type Service interface {
	CreateFolder(ctx context.Context, ownerID uuid.UUID, name string, parentID *uuid.UUID) (*models.File, error)
	Rename(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID, name string) (*models.File, error)
	ToggleStar(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (*models.File, error)
	ToggleShare(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (*ShareResult, error)
	ShareLink(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (string, error)
	Delete(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) error
	Restore(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (*models.File, error)
	EmptyTrash(ctx context.Context, ownerID uuid.UUID) (int, error)
	List(ctx context.Context, ownerID uuid.UUID, view ListView, parentID *uuid.UUID) ([]models.File, error)
	Stats(ctx context.Context, ownerID uuid.UUID) (*Stats, error)
}

// ShareResult reports a share toggle outcome.
type ShareResult struct {
	File      *models.File `json:"file"`
	ShareLink string       `json:"share_link,omitempty"`
}

type service struct {
	repo   fileRepository
	blobs  blobStore
	videos videoStore
	logger *logger.Logger
}

// NewService constructs the drive service. The vendor stores are optional;
// without them permanent deletes skip vendor cleanup and log instead.
func NewService(repo fileRepository, blobs blobStore, videos videoStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("file repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		blobs:  blobs,
		videos: videos,
		logger: logg,
	}, nil
}

func (s *service) CreateFolder(ctx context.Context, ownerID uuid.UUID, name string, parentID *uuid.UUID) (*models.File, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner identity missing")
	}
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, ownerID, parentID); err != nil {
		return nil, err
	}

	folder := &models.File{
		OwnerID:  ownerID,
		Name:     name,
		Kind:     enums.FileKindFolder,
		ParentID: parentID,
	}
	created, err := s.repo.Create(ctx, folder)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist folder")
	}
	return created, nil
}

func (s *service) Rename(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID, name string) (*models.File, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, ownerID, fileID, map[string]any{"name": name})
	if err != nil {
		return nil, translateRepoErr(err, "rename file")
	}
	return updated, nil
}

func (s *service) ToggleStar(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (*models.File, error) {
	file, err := s.repo.FindByID(ctx, ownerID, fileID)
	if err != nil {
		return nil, translateRepoErr(err, "load file")
	}
	updated, err := s.repo.Update(ctx, ownerID, fileID, map[string]any{"starred": !file.Starred})
	if err != nil {
		return nil, translateRepoErr(err, "toggle star")
	}
	return updated, nil
}

func (s *service) ToggleShare(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (*ShareResult, error) {
	file, err := s.repo.FindByID(ctx, ownerID, fileID)
	if err != nil {
		return nil, translateRepoErr(err, "load file")
	}

	// A metadata-only flip. Folders flip too; they simply have no link to
	// resolve.
	updated, err := s.repo.Update(ctx, ownerID, fileID, map[string]any{"shared": !file.Shared})
	if err != nil {
		return nil, translateRepoErr(err, "toggle share")
	}

	result := &ShareResult{File: updated}
	if updated.Shared {
		result.ShareLink = s.resolveShareLink(ctx, updated)
	}
	return result, nil
}

func (s *service) ShareLink(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (string, error) {
	file, err := s.repo.FindByID(ctx, ownerID, fileID)
	if err != nil {
		return "", translateRepoErr(err, "load file")
	}
	if !file.Shared {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file is not shared")
	}
	link := s.resolveShareLink(ctx, file)
	if link == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "file has no shareable url")
	}
	return link, nil
}

// resolveShareLink prefers a fresh vendor embed URL for stream-backed files
// and falls back to the stored cdn url on any failure.
func (s *service) resolveShareLink(ctx context.Context, file *models.File) string {
	stored := ""
	if file.CDNURL != nil {
		stored = *file.CDNURL
	}
	if file.VideoID == nil || s.videos == nil {
		return stored
	}

	metadata, err := s.videos.GetVideo(ctx, *file.VideoID)
	if err != nil {
		s.logger.Warn(s.logger.WithFileID(ctx, file.ID.String()), "share link: vendor lookup failed, using stored url")
		return stored
	}
	if embed, ok := metadata["embedUrl"].(string); ok && embed != "" {
		return embed
	}
	return stored
}

// Delete soft-deletes a live record and permanently removes an already
// trashed one, routing vendor cleanup by the stored locator.
func (s *service) Delete(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) error {
	file, err := s.repo.FindByID(ctx, ownerID, fileID)
	if err != nil {
		return translateRepoErr(err, "load file")
	}

	if !file.Trashed {
		if _, err := s.repo.Update(ctx, ownerID, fileID, map[string]any{"trashed": true}); err != nil {
			return translateRepoErr(err, "trash file")
		}
		return nil
	}

	s.cleanupVendor(ctx, file)
	if err := s.repo.Delete(ctx, ownerID, fileID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete file record")
	}
	return nil
}

func (s *service) Restore(ctx context.Context, ownerID uuid.UUID, fileID uuid.UUID) (*models.File, error) {
	file, err := s.repo.FindByID(ctx, ownerID, fileID)
	if err != nil {
		return nil, translateRepoErr(err, "load file")
	}
	if !file.Trashed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is not in trash")
	}
	updated, err := s.repo.Update(ctx, ownerID, fileID, map[string]any{"trashed": false})
	if err != nil {
		return nil, translateRepoErr(err, "restore file")
	}
	return updated, nil
}

// EmptyTrash permanently removes the owner's trash. Vendor cleanup runs per
// record and failures never stop the batch; the records are removed in one
// bulk delete at the end.
func (s *service) EmptyTrash(ctx context.Context, ownerID uuid.UUID) (int, error) {
	trashed, err := s.repo.ListTrashed(ctx, ownerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list trash")
	}
	if len(trashed) == 0 {
		return 0, nil
	}

	var vendorErrs error
	for i := range trashed {
		if err := s.vendorDelete(ctx, &trashed[i]); err != nil {
			vendorErrs = multierr.Append(vendorErrs, err)
		}
	}
	if vendorErrs != nil {
		s.logger.Error(s.logger.WithOwnerID(ctx, ownerID.String()), "empty trash: vendor cleanup incomplete", vendorErrs)
	}

	if err := s.repo.DeleteTrashed(ctx, ownerID); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete trashed records")
	}
	return len(trashed), nil
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, view ListView, parentID *uuid.UUID) ([]models.File, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner identity missing")
	}

	var (
		rows []models.File
		err  error
	)
	switch view {
	case ViewFolder, "":
		rows, err = s.repo.ListFolder(ctx, ownerID, parentID)
	case ViewStarred:
		rows, err = s.repo.ListStarred(ctx, ownerID)
	case ViewShared:
		rows, err = s.repo.ListShared(ctx, ownerID)
	case ViewTrash:
		rows, err = s.repo.ListTrashed(ctx, ownerID)
	case ViewRecent:
		rows, err = s.repo.ListRecent(ctx, ownerID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown view %q", view))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list files")
	}
	return rows, nil
}

func (s *service) Stats(ctx context.Context, ownerID uuid.UUID) (*Stats, error) {
	stats, err := s.repo.Stats(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate stats")
	}
	return stats, nil
}

// cleanupVendor is the best-effort half of a permanent delete. Failures are
// logged and never block record removal.
func (s *service) cleanupVendor(ctx context.Context, file *models.File) {
	if err := s.vendorDelete(ctx, file); err != nil {
		s.logger.Warn(s.logger.WithFileID(ctx, file.ID.String()), "permanent delete: vendor cleanup failed")
	}
}

func (s *service) vendorDelete(ctx context.Context, file *models.File) error {
	if file.StorageLocator == nil {
		return nil
	}
	locator, err := ParseLocator(*file.StorageLocator)
	if err != nil {
		return fmt.Errorf("file %s: %w", file.ID, err)
	}

	switch locator.Kind {
	case LocatorKindBlob:
		if s.blobs == nil {
			return nil
		}
		if err := s.blobs.Delete(ctx, locator.Ref); err != nil {
			return fmt.Errorf("file %s: delete blob: %w", file.ID, err)
		}
	case LocatorKindStream:
		if s.videos == nil {
			return nil
		}
		if err := s.videos.DeleteVideo(ctx, locator.Ref); err != nil {
			return fmt.Errorf("file %s: delete video: %w", file.ID, err)
		}
	}
	return nil
}

func (s *service) checkParent(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.repo.FindByID(ctx, ownerID, *parentID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeValidation, "parent folder not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parent folder")
	}
	if !parent.IsFolder() {
		return pkgerrors.New(pkgerrors.CodeValidation, "parent must be a folder")
	}
	if parent.Trashed {
		return pkgerrors.New(pkgerrors.CodeValidation, "parent folder is in trash")
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(name) > maxFileNameLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("name must be at most %d characters", maxFileNameLength))
	}
	return name, nil
}

func translateRepoErr(err error, action string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
