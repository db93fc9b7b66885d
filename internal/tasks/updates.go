package tasks

import (
	"fmt"

	"github.com/desertthunder/vgen/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PhaseCreate Phase = iota
	PhasePoll
	PhaseSucceeded
	PhaseFailed
	PhaseSync
	PhaseProbe
	PhaseUpload
	PhaseInsert
	PhaseHydrate
	PhasePublish
)

func (p Phase) String() string {
	switch p {
	case PhaseCreate:
		return "create"
	case PhasePoll:
		return "poll"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	case PhaseSync:
		return "sync"
	case PhaseProbe:
		return "probe"
	case PhaseUpload:
		return "upload"
	case PhaseInsert:
		return "insert"
	case PhaseHydrate:
		return "hydrate"
	case PhasePublish:
		return "publish"
	default:
		return ""
	}
}

// SendProgress sends a progress update through the channel without blocking.
//
// A nil channel is ignored; a full channel drops the update.
func SendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func creatingUpdate(req models.GenerationRequest) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseCreate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Submitting %s %s %ds generation...", req.Resolution, req.AspectRatio, req.Duration),
	}
}

func createdUpdate(taskID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseCreate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Job created (ID: %s)", taskID),
		Data:    taskID,
	}
}

func pollUpdate(attempt, maxAttempts int, status models.TaskStatus) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhasePoll,
		Step:    attempt,
		Total:   maxAttempts,
		Message: fmt.Sprintf("[%d/%d] Job is %s...", attempt, maxAttempts, status),
		Data:    status,
	}
}

func succeededUpdate(videoURL string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseSucceeded,
		Step:    1,
		Total:   1,
		Message: "✓ Video ready",
		Data:    videoURL,
	}
}

func failedUpdate(message string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseFailed,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✗ %s", message),
	}
}

func syncUpdate(step, total int, task models.TrackedTask) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseSync,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %s", step, total, task.TaskID, task.Status),
		Data:    task,
	}
}
