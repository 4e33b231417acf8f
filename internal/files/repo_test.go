package files

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skydrivehq/skydrive-backend/pkg/db/models"
	"github.com/skydrivehq/skydrive-backend/pkg/enums"
)

func setupFilesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	files := `
CREATE TABLE IF NOT EXISTS files (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  name TEXT NOT NULL,
  kind TEXT NOT NULL,
  mime_type TEXT,
  size_bytes INTEGER NOT NULL DEFAULT 0,
  parent_id TEXT,
  storage_locator TEXT,
  video_id TEXT,
  cdn_url TEXT,
  starred INTEGER NOT NULL DEFAULT 0,
  trashed INTEGER NOT NULL DEFAULT 0,
  shared INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(files).Error)
	require.NoError(t, db.Exec("DELETE FROM files").Error)
	return db
}

func seedFile(t *testing.T, db *gorm.DB, ownerID uuid.UUID, name string, kind enums.FileKind, mutate func(*models.File)) *models.File {
	t.Helper()

	file := &models.File{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    name,
		Kind:    kind,
	}
	if mutate != nil {
		mutate(file)
	}
	require.NoError(t, db.Create(file).Error)
	return file
}

func names(rows []models.File) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Name)
	}
	return out
}

func TestListFolderOrdersFoldersFirstThenName(t *testing.T) {
	db := setupFilesTestDB(t)
	repo := NewRepository(db)
	ownerID := uuid.New()

	seedFile(t, db, ownerID, "beta.txt", enums.FileKindFile, nil)
	seedFile(t, db, ownerID, "zeta", enums.FileKindFolder, nil)
	seedFile(t, db, ownerID, "alpha.txt", enums.FileKindFile, nil)
	folder := seedFile(t, db, ownerID, "archive", enums.FileKindFolder, nil)
	seedFile(t, db, ownerID, "trashed.txt", enums.FileKindFile, func(f *models.File) { f.Trashed = true })
	seedFile(t, db, ownerID, "nested.txt", enums.FileKindFile, func(f *models.File) { f.ParentID = &folder.ID })
	seedFile(t, db, uuid.New(), "other-owner.txt", enums.FileKindFile, nil)

	rows, err := repo.ListFolder(context.Background(), ownerID, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"archive", "zeta", "alpha.txt", "beta.txt"}, names(rows))
}

func TestListStarredKeepsFoldersFirstThenName(t *testing.T) {
	db := setupFilesTestDB(t)
	repo := NewRepository(db)
	ownerID := uuid.New()

	seedFile(t, db, ownerID, "notes.txt", enums.FileKindFile, func(f *models.File) { f.Starred = true })
	seedFile(t, db, ownerID, "media", enums.FileKindFolder, func(f *models.File) { f.Starred = true })
	seedFile(t, db, ownerID, "a.txt", enums.FileKindFile, func(f *models.File) { f.Starred = true })
	seedFile(t, db, ownerID, "plain.txt", enums.FileKindFile, nil)

	// Bump the last-named file so recency cannot be what orders the view.
	require.NoError(t, db.Exec(
		"UPDATE files SET updated_at = datetime('now', '+1 hour') WHERE name = 'notes.txt'",
	).Error)

	rows, err := repo.ListStarred(context.Background(), ownerID)
	require.NoError(t, err)
	require.Equal(t, []string{"media", "a.txt", "notes.txt"}, names(rows))
}

func TestListRecentIncludesFolders(t *testing.T) {
	db := setupFilesTestDB(t)
	repo := NewRepository(db)
	ownerID := uuid.New()

	seedFile(t, db, ownerID, "report.pdf", enums.FileKindFile, nil)
	seedFile(t, db, ownerID, "projects", enums.FileKindFolder, nil)
	seedFile(t, db, ownerID, "old.txt", enums.FileKindFile, func(f *models.File) { f.Trashed = true })

	rows, err := repo.ListRecent(context.Background(), ownerID)
	require.NoError(t, err)
	require.Equal(t, []string{"projects", "report.pdf"}, names(rows))
}
