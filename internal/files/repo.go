package files

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skydrivehq/skydrive-backend/pkg/db/models"
)

const recentListLimit = 50

// Stats aggregates an owner's live (untrashed) records.
type Stats struct {
	TotalFiles  int64 `json:"total_files"`
	TotalBytes  int64 `json:"total_bytes"`
	FolderCount int64 `json:"folder_count"`
	VideoCount  int64 `json:"video_count"`
	ImageCount  int64 `json:"image_count"`
}

// Repository exposes file metadata persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a file repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a file record.
func (r *Repository) Create(ctx context.Context, file *models.File) (*models.File, error) {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return nil, err
	}
	return file, nil
}

// FindByID retrieves one of the owner's records by id.
func (r *Repository) FindByID(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) (*models.File, error) {
	var f models.File
	if err := r.db.WithContext(ctx).First(&f, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// Update applies a field subset to a record and returns the refreshed row.
// updated_at is touched on every call.
func (r *Repository) Update(ctx context.Context, ownerID uuid.UUID, id uuid.UUID, fields map[string]any) (*models.File, error) {
	result := r.db.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, ownerID, id)
}

// Delete removes a record permanently.
func (r *Repository) Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.File{}).Error
}

// DeleteTrashed bulk-removes all of the owner's trashed records.
func (r *Repository) DeleteTrashed(ctx context.Context, ownerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("owner_id = ? AND trashed = TRUE", ownerID).
		Delete(&models.File{}).Error
}

// ListFolder returns the untrashed children of a folder (or of the root when
// parentID is nil), folders before files, names ascending.
func (r *Repository) ListFolder(ctx context.Context, ownerID uuid.UUID, parentID *uuid.UUID) ([]models.File, error) {
	query := r.db.WithContext(ctx).
		Where("owner_id = ? AND trashed = FALSE", ownerID)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var rows []models.File
	if err := orderKindThenName(query).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStarred returns the owner's starred untrashed records.
func (r *Repository) ListStarred(ctx context.Context, ownerID uuid.UUID) ([]models.File, error) {
	return r.listFlagged(ctx, ownerID, "starred = TRUE AND trashed = FALSE")
}

// ListShared returns the owner's shared untrashed records.
func (r *Repository) ListShared(ctx context.Context, ownerID uuid.UUID) ([]models.File, error) {
	return r.listFlagged(ctx, ownerID, "shared = TRUE AND trashed = FALSE")
}

// ListTrashed returns the owner's trash.
func (r *Repository) ListTrashed(ctx context.Context, ownerID uuid.UUID) ([]models.File, error) {
	return r.listFlagged(ctx, ownerID, "trashed = TRUE")
}

// ListRecent returns the owner's untrashed records capped at a fixed page
// size, recency breaking ties within the standard ordering.
func (r *Repository) ListRecent(ctx context.Context, ownerID uuid.UUID) ([]models.File, error) {
	var rows []models.File
	query := r.db.WithContext(ctx).
		Where("owner_id = ? AND trashed = FALSE", ownerID)
	if err := orderKindThenName(query).
		Order("updated_at DESC").
		Limit(recentListLimit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Stats aggregates the owner's untrashed rows. Trash does not count against
// the totals.
func (r *Repository) Stats(ctx context.Context, ownerID uuid.UUID) (*Stats, error) {
	var stats Stats
	row := r.db.WithContext(ctx).
		Model(&models.File{}).
		Select(
			"COUNT(*) FILTER (WHERE kind = 'file') AS total_files, "+
				"COALESCE(SUM(size_bytes) FILTER (WHERE kind = 'file'), 0) AS total_bytes, "+
				"COUNT(*) FILTER (WHERE kind = 'folder') AS folder_count, "+
				"COUNT(*) FILTER (WHERE mime_type LIKE 'video/%') AS video_count, "+
				"COUNT(*) FILTER (WHERE mime_type LIKE 'image/%') AS image_count",
		).
		Where("owner_id = ? AND trashed = FALSE", ownerID).
		Row()
	if err := row.Scan(&stats.TotalFiles, &stats.TotalBytes, &stats.FolderCount, &stats.VideoCount, &stats.ImageCount); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListLocators returns every persisted storage locator across all owners.
// The reconciliation sweep diffs vendor listings against this set.
func (r *Repository) ListLocators(ctx context.Context) ([]string, error) {
	var locators []string
	if err := r.db.WithContext(ctx).
		Model(&models.File{}).
		Where("storage_locator IS NOT NULL").
		Pluck("storage_locator", &locators).Error; err != nil {
		return nil, err
	}
	return locators, nil
}

func (r *Repository) listFlagged(ctx context.Context, ownerID uuid.UUID, condition string) ([]models.File, error) {
	var rows []models.File
	if err := orderKindThenName(r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Where(condition)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Every listing view shares the same base ordering: folders first, then name.
func orderKindThenName(query *gorm.DB) *gorm.DB {
	return query.
		Order("CASE WHEN kind = 'folder' THEN 0 ELSE 1 END").
		Order("name ASC")
}
