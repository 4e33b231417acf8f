package files

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/skydrivehq/skydrive-backend/pkg/db/models"
	"github.com/skydrivehq/skydrive-backend/pkg/enums"
	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
	"github.com/skydrivehq/skydrive-backend/pkg/logger"
)

type stubRepo struct {
	files              map[uuid.UUID]*models.File
	trashed            []models.File
	updates            []map[string]any
	deletedIDs         []uuid.UUID
	deleteTrashedCalls int
	listTrashedErr     error
}

func newStubRepo(files ...*models.File) *stubRepo {
	repo := &stubRepo{files: map[uuid.UUID]*models.File{}}
	for _, f := range files {
		repo.files[f.ID] = f
	}
	return repo
}

func (r *stubRepo) Create(_ context.Context, file *models.File) (*models.File, error) {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	r.files[file.ID] = file
	return file, nil
}

func (r *stubRepo) FindByID(_ context.Context, ownerID uuid.UUID, id uuid.UUID) (*models.File, error) {
	file, ok := r.files[id]
	if !ok || file.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *file
	return &copied, nil
}

func (r *stubRepo) Update(_ context.Context, ownerID uuid.UUID, id uuid.UUID, fields map[string]any) (*models.File, error) {
	file, ok := r.files[id]
	if !ok || file.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	r.updates = append(r.updates, fields)
	if v, ok := fields["name"].(string); ok {
		file.Name = v
	}
	if v, ok := fields["starred"].(bool); ok {
		file.Starred = v
	}
	if v, ok := fields["shared"].(bool); ok {
		file.Shared = v
	}
	if v, ok := fields["trashed"].(bool); ok {
		file.Trashed = v
	}
	copied := *file
	return &copied, nil
}

func (r *stubRepo) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	r.deletedIDs = append(r.deletedIDs, id)
	delete(r.files, id)
	return nil
}

func (r *stubRepo) DeleteTrashed(_ context.Context, _ uuid.UUID) error {
	r.deleteTrashedCalls++
	return nil
}

func (r *stubRepo) ListFolder(_ context.Context, _ uuid.UUID, _ *uuid.UUID) ([]models.File, error) {
	return nil, nil
}
func (r *stubRepo) ListStarred(_ context.Context, _ uuid.UUID) ([]models.File, error) {
	return nil, nil
}
func (r *stubRepo) ListShared(_ context.Context, _ uuid.UUID) ([]models.File, error) {
	return nil, nil
}
func (r *stubRepo) ListTrashed(_ context.Context, _ uuid.UUID) ([]models.File, error) {
	return r.trashed, r.listTrashedErr
}
func (r *stubRepo) ListRecent(_ context.Context, _ uuid.UUID) ([]models.File, error) {
	return nil, nil
}
func (r *stubRepo) Stats(_ context.Context, _ uuid.UUID) (*Stats, error) {
	return &Stats{}, nil
}

type stubBlobStore struct {
	deleted []string
	err     error
}

func (b *stubBlobStore) Delete(_ context.Context, path string) error {
	b.deleted = append(b.deleted, path)
	return b.err
}

type stubVideoStore struct {
	deleted  []string
	metadata map[string]any
	getErr   error
	delErr   error
}

func (v *stubVideoStore) DeleteVideo(_ context.Context, videoID string) error {
	v.deleted = append(v.deleted, videoID)
	return v.delErr
}

func (v *stubVideoStore) GetVideo(_ context.Context, _ string) (map[string]any, error) {
	if v.getErr != nil {
		return nil, v.getErr
	}
	return v.metadata, nil
}

func (v *stubVideoStore) EmbedURL(videoID string) string {
	return "https://iframe.mediadelivery.net/embed/12345/" + videoID
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T, repo fileRepository, blobs blobStore, videos videoStore) Service {
	t.Helper()
	svc, err := NewService(repo, blobs, videos, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreateFolderValidatesParent(t *testing.T) {
	ownerID := uuid.New()
	parent := &models.File{ID: uuid.New(), OwnerID: ownerID, Name: "docs", Kind: enums.FileKindFolder}
	notAFolder := &models.File{ID: uuid.New(), OwnerID: ownerID, Name: "a.txt", Kind: enums.FileKindFile}
	trashedParent := &models.File{ID: uuid.New(), OwnerID: ownerID, Name: "old", Kind: enums.FileKindFolder, Trashed: true}
	repo := newStubRepo(parent, notAFolder, trashedParent)
	svc := newTestService(t, repo, nil, nil)

	folder, err := svc.CreateFolder(context.Background(), ownerID, "reports", &parent.ID)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if folder.Kind != enums.FileKindFolder || folder.ParentID == nil || *folder.ParentID != parent.ID {
		t.Fatalf("unexpected folder %+v", folder)
	}

	for _, badParent := range []uuid.UUID{notAFolder.ID, trashedParent.ID, uuid.New()} {
		if _, err := svc.CreateFolder(context.Background(), ownerID, "x", &badParent); err == nil {
			t.Fatalf("expected validation error for parent %s", badParent)
		}
	}

	if _, err := svc.CreateFolder(context.Background(), ownerID, "  ", nil); err == nil {
		t.Fatal("expected validation error for blank name")
	}
}

func TestDeleteSoftThenPermanent(t *testing.T) {
	ownerID := uuid.New()
	file := &models.File{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Name:           "report.pdf",
		Kind:           enums.FileKindFile,
		StorageLocator: strPtr("blob:user-1/1700-report.pdf"),
	}
	repo := newStubRepo(file)
	blobs := &stubBlobStore{}
	svc := newTestService(t, repo, blobs, nil)

	if err := svc.Delete(context.Background(), ownerID, file.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if !repo.files[file.ID].Trashed {
		t.Fatal("first delete should only trash the record")
	}
	if len(blobs.deleted) != 0 || len(repo.deletedIDs) != 0 {
		t.Fatal("soft delete must not touch vendor or remove the record")
	}

	if err := svc.Delete(context.Background(), ownerID, file.ID); err != nil {
		t.Fatalf("permanent delete: %v", err)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "user-1/1700-report.pdf" {
		t.Fatalf("expected blob cleanup, got %v", blobs.deleted)
	}
	if len(repo.deletedIDs) != 1 || repo.deletedIDs[0] != file.ID {
		t.Fatalf("expected record removal, got %v", repo.deletedIDs)
	}
}

func TestPermanentDeleteSurvivesVendorFailure(t *testing.T) {
	ownerID := uuid.New()
	file := &models.File{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Name:           "clip.mp4",
		Kind:           enums.FileKindFile,
		Trashed:        true,
		StorageLocator: strPtr("stream:vid-9"),
		VideoID:        strPtr("vid-9"),
	}
	repo := newStubRepo(file)
	videos := &stubVideoStore{delErr: errors.New("vendor down")}
	svc := newTestService(t, repo, nil, videos)

	if err := svc.Delete(context.Background(), ownerID, file.ID); err != nil {
		t.Fatalf("permanent delete should succeed despite vendor failure: %v", err)
	}
	if len(videos.deleted) != 1 || videos.deleted[0] != "vid-9" {
		t.Fatalf("expected video delete attempt, got %v", videos.deleted)
	}
	if len(repo.deletedIDs) != 1 {
		t.Fatal("record should be removed even when vendor cleanup fails")
	}
}

func TestRestoreRequiresTrashed(t *testing.T) {
	ownerID := uuid.New()
	live := &models.File{ID: uuid.New(), OwnerID: ownerID, Name: "a.txt", Kind: enums.FileKindFile}
	trashed := &models.File{ID: uuid.New(), OwnerID: ownerID, Name: "b.txt", Kind: enums.FileKindFile, Trashed: true}
	svc := newTestService(t, newStubRepo(live, trashed), nil, nil)

	if _, err := svc.Restore(context.Background(), ownerID, live.ID); err == nil {
		t.Fatal("expected error restoring a live file")
	}
	restored, err := svc.Restore(context.Background(), ownerID, trashed.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Trashed {
		t.Fatal("restored file should not be trashed")
	}
}

func TestEmptyTrashContinuesPastVendorFailures(t *testing.T) {
	ownerID := uuid.New()
	repo := newStubRepo()
	repo.trashed = []models.File{
		{ID: uuid.New(), OwnerID: ownerID, StorageLocator: strPtr("blob:u/a.txt")},
		{ID: uuid.New(), OwnerID: ownerID, StorageLocator: strPtr("stream:vid-1")},
		{ID: uuid.New(), OwnerID: ownerID, Kind: enums.FileKindFolder},
	}
	blobs := &stubBlobStore{err: errors.New("storage down")}
	videos := &stubVideoStore{}
	svc := newTestService(t, repo, blobs, videos)

	removed, err := svc.EmptyTrash(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("empty trash: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if len(blobs.deleted) != 1 || len(videos.deleted) != 1 {
		t.Fatalf("expected one cleanup per backend, got blobs=%v videos=%v", blobs.deleted, videos.deleted)
	}
	if repo.deleteTrashedCalls != 1 {
		t.Fatal("expected one bulk record delete")
	}
}

func TestToggleShareReturnsLink(t *testing.T) {
	ownerID := uuid.New()
	file := &models.File{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    "photo.png",
		Kind:    enums.FileKindFile,
		CDNURL:  strPtr("https://zone.b-cdn.net/u/photo.png"),
	}
	svc := newTestService(t, newStubRepo(file), nil, &stubVideoStore{})

	result, err := svc.ToggleShare(context.Background(), ownerID, file.ID)
	if err != nil {
		t.Fatalf("toggle share: %v", err)
	}
	if !result.File.Shared || result.ShareLink != "https://zone.b-cdn.net/u/photo.png" {
		t.Fatalf("unexpected share result %+v", result)
	}

	result, err = svc.ToggleShare(context.Background(), ownerID, file.ID)
	if err != nil {
		t.Fatalf("toggle share off: %v", err)
	}
	if result.File.Shared || result.ShareLink != "" {
		t.Fatalf("disabling share should clear link, got %+v", result)
	}
}

func TestToggleShareFlipsFolders(t *testing.T) {
	ownerID := uuid.New()
	folder := &models.File{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    "projects",
		Kind:    enums.FileKindFolder,
	}
	svc := newTestService(t, newStubRepo(folder), nil, &stubVideoStore{})

	result, err := svc.ToggleShare(context.Background(), ownerID, folder.ID)
	if err != nil {
		t.Fatalf("toggle share on folder: %v", err)
	}
	if !result.File.Shared {
		t.Fatal("folder shared flag should flip")
	}
	if result.ShareLink != "" {
		t.Fatalf("folders have no link to resolve, got %q", result.ShareLink)
	}
}

func TestShareLinkPrefersFreshEmbedURL(t *testing.T) {
	ownerID := uuid.New()
	file := &models.File{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    "clip.mp4",
		Kind:    enums.FileKindFile,
		Shared:  true,
		VideoID: strPtr("vid-1"),
		CDNURL:  strPtr("https://zone.b-cdn.net/u/clip.mp4"),
	}
	videos := &stubVideoStore{metadata: map[string]any{"embedUrl": "https://iframe.mediadelivery.net/embed/12345/vid-1"}}
	svc := newTestService(t, newStubRepo(file), nil, videos)

	link, err := svc.ShareLink(context.Background(), ownerID, file.ID)
	if err != nil {
		t.Fatalf("share link: %v", err)
	}
	if link != "https://iframe.mediadelivery.net/embed/12345/vid-1" {
		t.Fatalf("expected fresh embed url, got %s", link)
	}

	videos.getErr = errors.New("vendor down")
	link, err = svc.ShareLink(context.Background(), ownerID, file.ID)
	if err != nil {
		t.Fatalf("share link fallback: %v", err)
	}
	if link != "https://zone.b-cdn.net/u/clip.mp4" {
		t.Fatalf("expected stored cdn fallback, got %s", link)
	}
}

func TestDeleteUnknownFile(t *testing.T) {
	svc := newTestService(t, newStubRepo(), nil, nil)
	err := svc.Delete(context.Background(), uuid.New(), uuid.New())
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found code, got %v", err)
	}
}

func TestParseListView(t *testing.T) {
	for value, want := range map[string]ListView{
		"": ViewFolder, "folder": ViewFolder, "starred": ViewStarred,
		"shared": ViewShared, "trash": ViewTrash, "recent": ViewRecent,
	} {
		got, err := ParseListView(value)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %q, %v", value, got, err)
		}
	}
	if _, err := ParseListView("everything"); err == nil {
		t.Fatal("expected error for unknown view")
	}
}
