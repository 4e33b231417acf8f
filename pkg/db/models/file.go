package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/skydrivehq/skydrive-backend/pkg/enums"
)

// File is one row of the drive tree: a regular file or a folder. Folders never
// carry storage fields (mime type, locator, video id, cdn url); a file's bytes
// live with the vendor addressed by StorageLocator.
type File struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID        uuid.UUID      `gorm:"column:owner_id;type:uuid;not null" json:"owner_id"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	Kind           enums.FileKind `gorm:"column:kind;type:file_kind;not null" json:"kind"`
	MimeType       *string        `gorm:"column:mime_type" json:"mime_type,omitempty"`
	SizeBytes      int64          `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	ParentID       *uuid.UUID     `gorm:"column:parent_id;type:uuid" json:"parent_id,omitempty"`
	StorageLocator *string        `gorm:"column:storage_locator" json:"storage_locator,omitempty"`
	VideoID        *string        `gorm:"column:video_id" json:"video_id,omitempty"`
	CDNURL         *string        `gorm:"column:cdn_url" json:"cdn_url,omitempty"`
	Starred        bool           `gorm:"column:starred;not null;default:false" json:"starred"`
	Trashed        bool           `gorm:"column:trashed;not null;default:false" json:"trashed"`
	Shared         bool           `gorm:"column:shared;not null;default:false" json:"shared"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName pins the table used by the repository.
func (File) TableName() string { return "files" }

// IsFolder reports whether the row is a folder node.
func (f *File) IsFolder() bool {
	return f != nil && f.Kind == enums.FileKindFolder
}
