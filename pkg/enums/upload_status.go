package enums

// UploadStatus describes the lifecycle state of an in-flight upload task.
type UploadStatus string

const (
	UploadStatusUploading  UploadStatus = "uploading"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusDone       UploadStatus = "done"
	UploadStatusError      UploadStatus = "error"
)

// String returns the literal string for the status.
func (u UploadStatus) String() string {
	return string(u)
}

// Terminal reports whether the task has finished, successfully or not.
func (u UploadStatus) Terminal() bool {
	return u == UploadStatusDone || u == UploadStatusError
}
