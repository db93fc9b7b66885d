package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
)

// CredentialSource returns the signed-in user's bearer token, if any.
type CredentialSource interface {
	CurrentCredential(ctx context.Context) (string, bool)
}

// Registry tracks generation jobs for the lifetime of a client session.
//
// Tasks are kept in insertion order. One task may be selected for preview; the [Handoff] carries a result to the
// creation form.
type Registry struct {
	gateway  services.Gateway
	auth     CredentialSource
	notifier shared.Notifier
	logger   *log.Logger
	now      func() time.Time
	pending  *Handoff

	mu        sync.Mutex
	tasks     map[string]*models.TrackedTask
	order     []string
	previewID string
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger, which defaults to stderr.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides time.Now for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty [Registry].
func NewRegistry(gateway services.Gateway, auth CredentialSource, notifier shared.Notifier, opts ...RegistryOption) *Registry {
	r := &Registry{
		gateway:  gateway,
		auth:     auth,
		notifier: notifier,
		now:      time.Now,
		pending:  &Handoff{},
		tasks:    make(map[string]*models.TrackedTask),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = shared.NewLogger(nil)
	}
	if r.notifier == nil {
		r.notifier = shared.NewLogNotifier(r.logger)
	}
	return r
}

// AddTask inserts taskID as queued, or merges initial into the entry when it is already tracked.
func (r *Registry) AddTask(taskID string, initial *models.TaskPatch) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		r.logger.Warn("ignoring task without an id")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	task, ok := r.tasks[taskID]
	if !ok {
		task = &models.TrackedTask{TaskID: taskID, Status: models.StatusQueued, CreatedAt: now}
		r.tasks[taskID] = task
		r.order = append(r.order, taskID)
	}
	initial.Apply(task)
	task.Loading = false
	task.UpdatedAt = now
}

// UpdateTask merges patch into a tracked task. Unknown ids are left alone and report false.
func (r *Registry) UpdateTask(taskID string, patch *models.TaskPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return false
	}
	patch.Apply(task)
	task.Loading = false
	task.UpdatedAt = r.now()
	return true
}

// RemoveTask stops tracking taskID and clears the preview if it pointed at it. Unknown ids are a no-op.
func (r *Registry) RemoveTask(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(taskID)
}

func (r *Registry) removeLocked(taskID string) bool {
	if _, ok := r.tasks[taskID]; !ok {
		return false
	}
	delete(r.tasks, taskID)
	for i, id := range r.order {
		if id == taskID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.previewID == taskID {
		r.previewID = ""
	}
	return true
}

// RefreshTask asks the gateway to sync one task and merges the result.
//
// Without a credential it returns [shared.ErrAuthRequired] and notifies once, leaving the task untouched apart from
// its loading flag. Every outcome is reported through the notifier.
func (r *Registry) RefreshTask(ctx context.Context, taskID string) error {
	if !r.setLoading(taskID, true) {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	}

	credential, ok := r.auth.CurrentCredential(ctx)
	if !ok {
		r.setLoading(taskID, false)
		r.notifier.Notify(shared.Notification{
			Level:   shared.LevelWarn,
			Title:   "Sign in required",
			Message: "Sign in with `vgen auth login` to refresh generation tasks.",
		})
		return shared.ErrAuthRequired
	}

	status, err := r.gateway.SyncFromRemote(ctx, taskID, credential)
	if err != nil {
		r.setLoading(taskID, false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.logger.Warn("task refresh failed", "task_id", taskID, "error", err)
		r.notifier.Notify(shared.Notification{Level: shared.LevelError, Title: "Refresh failed", Message: ErrorMessage(err)})
		return err
	}

	task, ok := r.merge(taskID, status)
	if !ok {
		r.logger.Debug("task removed during refresh", "task_id", taskID)
		return nil
	}

	r.logger.Info("task refreshed", "task_id", taskID, "status", task.Status)
	r.notifier.Notify(refreshNotification(task))
	return nil
}

func refreshNotification(task models.TrackedTask) shared.Notification {
	switch {
	case task.Status.HasResult():
		return shared.Notification{Level: shared.LevelSuccess, Title: "Video ready", Message: task.TaskID}
	case task.Status == models.StatusFailed:
		return shared.Notification{Level: shared.LevelError, Title: "Generation failed", Message: task.Error}
	default:
		return shared.Notification{Level: shared.LevelInfo, Title: "Still in progress", Message: fmt.Sprintf("%s is %s", task.TaskID, task.Status)}
	}
}

func (r *Registry) setLoading(taskID string, loading bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if ok {
		task.Loading = loading
	}
	return ok
}

// merge applies a gateway status to a still-tracked task and returns a copy of the result.
func (r *Registry) merge(taskID string, status *services.JobStatus) (models.TrackedTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return models.TrackedTask{}, false
	}
	status.Patch().Apply(task)
	task.Loading = false
	task.UpdatedAt = r.now()
	return *task, true
}

// SyncReport summarizes a [Registry.SyncAll] pass.
type SyncReport struct {
	Checked   int
	Completed int // transitioned to a result-bearing status
	Failed    int // transitioned to failed
	Errors    []error
	Err       error // set when the pass could not run at all
}

// SyncAll refreshes every non-terminal task, quietly.
//
// Only transitions into a terminal status are notified. Per-task errors are logged and collected in the report.
func (r *Registry) SyncAll(ctx context.Context, progress chan<- ProgressUpdate) SyncReport {
	var report SyncReport

	pending := r.pendingIDs()
	if len(pending) == 0 {
		return report
	}

	credential, ok := r.auth.CurrentCredential(ctx)
	if !ok {
		report.Err = shared.ErrAuthRequired
		return report
	}

	for i, taskID := range pending {
		if err := ctx.Err(); err != nil {
			report.Err = err
			return report
		}
		report.Checked++

		status, err := r.gateway.SyncFromRemote(ctx, taskID, credential)
		if err != nil {
			if ctx.Err() != nil {
				report.Err = ctx.Err()
				return report
			}
			r.logger.Warn("background sync failed", "task_id", taskID, "error", err)
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", taskID, err))
			continue
		}

		task, ok := r.merge(taskID, status)
		if !ok {
			continue
		}
		SendProgress(progress, syncUpdate(i+1, len(pending), task))

		switch {
		case task.Status.HasResult():
			report.Completed++
			r.notifier.Notify(refreshNotification(task))
		case task.Status == models.StatusFailed:
			report.Failed++
			r.notifier.Notify(refreshNotification(task))
		}
	}

	return report
}

func (r *Registry) pendingIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, id := range r.order {
		if !r.tasks[id].Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// OpenPreview selects taskID for preview. A task without a video cannot be previewed and reports false.
func (r *Registry) OpenPreview(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok || task.VideoURL == "" {
		return false
	}
	task.Loading = false
	r.previewID = taskID
	return true
}

// ClosePreview clears the preview selection.
func (r *Registry) ClosePreview() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previewID = ""
}

// SetPendingUseResult fills the handoff slot, or clears it when v is nil.
func (r *Registry) SetPendingUseResult(v *models.PendingUseResult) {
	if v == nil {
		r.pending.Clear()
		return
	}
	r.pending.Set(*v)
}

// PendingUseResult returns the unconsumed handoff value, if any.
func (r *Registry) PendingUseResult() *models.PendingUseResult {
	return r.pending.Peek()
}

// Handoff returns the slot the creation form consumes from.
func (r *Registry) Handoff() *Handoff { return r.pending }

// UseResult moves a finished task's result into the handoff slot.
//
// The task is removed (it is spent) and the preview closed.
func (r *Registry) UseResult(taskID string) (models.PendingUseResult, error) {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return models.PendingUseResult{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	}
	if task.VideoURL == "" {
		r.mu.Unlock()
		return models.PendingUseResult{}, fmt.Errorf("%w: %s is %s", shared.ErrNoResult, taskID, task.Status)
	}
	v := models.PendingUseResult{TaskID: task.TaskID, VideoURL: task.VideoURL, CoverURL: task.CoverURL}
	r.removeLocked(taskID)
	r.previewID = ""
	r.pending.Set(v)
	r.mu.Unlock()

	r.logger.Info("task result handed off", "task_id", taskID)
	return v, nil
}

// Tasks returns copies of every tracked task in insertion order.
func (r *Registry) Tasks() []models.TrackedTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.TrackedTask, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tasks[id])
	}
	return out
}

// Task returns a copy of one tracked task.
func (r *Registry) Task(taskID string) (models.TrackedTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return models.TrackedTask{}, false
	}
	return *task, true
}

// PreviewTask returns a copy of the previewed task, or nil.
func (r *Registry) PreviewTask() *models.TrackedTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.previewID == "" {
		return nil
	}
	task, ok := r.tasks[r.previewID]
	if !ok {
		return nil
	}
	t := *task
	return &t
}

// Clear drops every task, the preview and the handoff slot.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[string]*models.TrackedTask)
	r.order = nil
	r.previewID = ""
	r.pending.Clear()
}

// RegistryState is the serializable registry snapshot kept in the [SessionFile].
type RegistryState struct {
	Tasks     []models.TrackedTask     `json:"tasks"`
	PreviewID string                   `json:"preview_id,omitempty"`
	Pending   *models.PendingUseResult `json:"pending_use_result,omitempty"`
}

// State snapshots the registry.
func (r *Registry) State() RegistryState {
	state := RegistryState{Tasks: r.Tasks(), Pending: r.pending.Peek()}
	r.mu.Lock()
	state.PreviewID = r.previewID
	r.mu.Unlock()
	return state
}

// Restore replaces the registry contents with state.
//
// Entries without an id are dropped; duplicates keep the last entry.
func (r *Registry) Restore(state RegistryState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = make(map[string]*models.TrackedTask, len(state.Tasks))
	r.order = r.order[:0]
	for _, t := range state.Tasks {
		if t.TaskID == "" {
			continue
		}
		if t.Status == "" {
			t.Status = models.StatusQueued
		}
		t.Loading = false
		task := t
		if _, dup := r.tasks[t.TaskID]; !dup {
			r.order = append(r.order, t.TaskID)
		}
		r.tasks[t.TaskID] = &task
	}

	r.previewID = ""
	if task, ok := r.tasks[state.PreviewID]; ok && task.VideoURL != "" {
		r.previewID = state.PreviewID
	}

	if state.Pending != nil {
		r.pending.Set(*state.Pending)
	} else {
		r.pending.Clear()
	}
}

// IsAuthRequired reports whether err asks the user to sign in.
func IsAuthRequired(err error) bool { return errors.Is(err, shared.ErrAuthRequired) }
