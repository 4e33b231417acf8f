package uploads

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/skydrivehq/skydrive-backend/pkg/enums"
)

// Snapshot is a point-in-time copy of one upload task, safe to serialize.
type Snapshot struct {
	ID       string             `json:"id"`
	FileName string             `json:"file_name"`
	Status   enums.UploadStatus `json:"status"`
	Progress int                `json:"progress"`
	Error    string             `json:"error,omitempty"`
	FileID   *uuid.UUID         `json:"file_id,omitempty"`
}

// Task tracks one in-flight upload. Producers push progress, pollers read
// snapshots; the zero progress scale is 0..100.
type Task struct {
	id       string
	fileName string

	mu       sync.Mutex
	status   enums.UploadStatus
	progress int
	errMsg   string
	fileID   *uuid.UUID
	cancel   context.CancelFunc
}

func newTask(fileName string) *Task {
	return &Task{
		id:       uuid.NewString(),
		fileName: fileName,
		status:   enums.UploadStatusUploading,
	}
}

// ID returns the task identifier.
func (t *Task) ID() string {
	return t.id
}

// Snapshot copies the task state under lock.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:       t.id,
		FileName: t.fileName,
		Status:   t.status,
		Progress: t.progress,
		Error:    t.errMsg,
		FileID:   t.fileID,
	}
}

// Cancel aborts the task's in-flight vendor calls. Terminal tasks ignore it.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	terminal := t.status.Terminal()
	t.mu.Unlock()
	if terminal || cancel == nil {
		return
	}
	cancel()
}

func (t *Task) bindCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
}

func (t *Task) setProgress(status enums.UploadStatus, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = status
	if progress > t.progress {
		t.progress = progress
	}
}

func (t *Task) complete(fileID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = enums.UploadStatusDone
	t.progress = 100
	t.fileID = &fileID
}

func (t *Task) fail(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = enums.UploadStatusError
	t.errMsg = message
}
