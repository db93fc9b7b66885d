package models

import (
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a remote generation job.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusUploaded  TaskStatus = "uploaded" // terminal, the result has been published
)

// IsTerminal reports whether no further transitions are expected without a new job.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusUploaded
}

// HasResult reports whether the status carries a playable video.
func (s TaskStatus) HasResult() bool {
	return s == StatusSucceeded || s == StatusUploaded
}

// ParseTaskStatus maps provider vocabularies onto [TaskStatus].
//
// Unknown values are reported with ok false.
func ParseTaskStatus(raw string) (status TaskStatus, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "submitted", "waiting", "created":
		return StatusQueued, true
	case "running", "processing", "in_progress", "generating", "started":
		return StatusRunning, true
	case "succeeded", "success", "completed", "complete", "done", "finished":
		return StatusSucceeded, true
	case "failed", "failure", "error", "cancelled", "canceled", "expired", "rejected":
		return StatusFailed, true
	case "uploaded", "published":
		return StatusUploaded, true
	default:
		return "", false
	}
}

// TrackedTask is one generation job known to the client.
type TrackedTask struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	VideoURL  string     `json:"video_url,omitempty"`
	CoverURL  string     `json:"cover_url,omitempty"`
	Error     string     `json:"error,omitempty"`
	Loading   bool       `json:"-"` // refresh in flight
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Playable reports whether the task has a video to preview.
func (t TrackedTask) Playable() bool { return t.VideoURL != "" }

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Status   *TaskStatus
	VideoURL *string
	CoverURL *string
	Error    *string
}

// Apply merges the non-nil fields of p into t and reports whether anything was set.
func (p *TaskPatch) Apply(t *TrackedTask) bool {
	if p == nil {
		return false
	}
	changed := false
	if p.Status != nil {
		t.Status = *p.Status
		changed = true
	}
	if p.VideoURL != nil {
		t.VideoURL = *p.VideoURL
		changed = true
	}
	if p.CoverURL != nil {
		t.CoverURL = *p.CoverURL
		changed = true
	}
	if p.Error != nil {
		t.Error = *p.Error
		changed = true
	}
	return changed
}

// Ptr returns a pointer to v, for building a [TaskPatch] inline.
func Ptr[T any](v T) *T { return &v }

// PendingUseResult carries a tracked task's result into the creation form.
type PendingUseResult struct {
	TaskID   string `json:"task_id"`
	VideoURL string `json:"video_url"`
	CoverURL string `json:"cover_url,omitempty"`
}
