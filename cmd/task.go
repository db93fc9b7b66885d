package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/formatter"
	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

func taskID(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return "", fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	return id, nil
}

// TaskList prints the tracked tasks.
func (r *Runner) TaskList(ctx context.Context, cmd *cli.Command) error {
	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(registry.State(), cmd.Bool("pretty"))
	}

	list := registry.Tasks()
	if len(list) == 0 {
		return r.writePlain("No tracked tasks. Start one with 'vgen generate \"...\"'.\n")
	}

	previewID := ""
	if t := registry.PreviewTask(); t != nil {
		previewID = t.TaskID
	}
	r.writePlainHeader(fmt.Sprintf("Tracked tasks (%d)", len(list)))
	r.writePlain("%s\n", formatter.TaskTable(list, previewID))
	if pending := registry.PendingUseResult(); pending != nil {
		r.writePlain("Pending result from %s, publish it with 'vgen publish --title ...'\n", pending.TaskID)
	}
	return nil
}

// TaskAdd starts tracking a task created elsewhere.
func (r *Runner) TaskAdd(ctx context.Context, cmd *cli.Command) error {
	id, err := taskID(cmd)
	if err != nil {
		return err
	}
	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}
	registry.AddTask(id, nil)
	r.saveRegistry(registry)
	return r.writePlain("✓ Tracking task %s\n", id)
}

// TaskRefresh queries one task's status and merges it into the registry.
func (r *Runner) TaskRefresh(ctx context.Context, cmd *cli.Command) error {
	id, err := taskID(cmd)
	if err != nil {
		return err
	}
	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}
	if _, ok := registry.Task(id); !ok {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}

	refreshErr := registry.RefreshTask(ctx, id)
	r.saveRegistry(registry)
	if refreshErr != nil {
		return fmt.Errorf("failed to refresh %s: %w", id, refreshErr)
	}

	task, _ := registry.Task(id)
	return r.writeTask(task)
}

// TaskSync syncs every non-terminal task with the gateway.
func (r *Runner) TaskSync(ctx context.Context, cmd *cli.Command) error {
	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}

	var report tasks.SyncReport
	r.withProgress(func(progress chan<- tasks.ProgressUpdate) error {
		report = registry.SyncAll(ctx, progress)
		return nil
	})
	r.saveRegistry(registry)

	switch {
	case errors.Is(report.Err, shared.ErrAuthRequired):
		return r.writePlain("Sign in with 'vgen auth login' to sync tasks.\n")
	case report.Err != nil:
		return fmt.Errorf("sync interrupted: %w", report.Err)
	}

	r.writePlain("✓ Checked %d, completed %d, failed %d\n", report.Checked, report.Completed, report.Failed)
	for _, e := range report.Errors {
		r.writePlain("⚠ %v\n", e)
	}
	return nil
}

// TaskRemove discards a task locally; the gateway is not told.
func (r *Runner) TaskRemove(ctx context.Context, cmd *cli.Command) error {
	id, err := taskID(cmd)
	if err != nil {
		return err
	}
	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}
	if _, ok := registry.Task(id); !ok {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	registry.RemoveTask(id)
	r.saveRegistry(registry)
	return r.writePlain("✓ Removed task %s\n", id)
}

// TaskPreview opens a finished task's video.
func (r *Runner) TaskPreview(ctx context.Context, cmd *cli.Command) error {
	id, err := taskID(cmd)
	if err != nil {
		return err
	}
	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}
	task, ok := registry.Task(id)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}
	if !registry.OpenPreview(id) {
		return fmt.Errorf("%w: %s is %s", shared.ErrNoResult, id, task.Status)
	}
	r.saveRegistry(registry)

	if err := r.open(task.VideoURL); err != nil {
		r.logger.Warn("failed to open preview", "task_id", id, "error", err)
		r.writePlain("Open this URL to preview:\n%s\n", task.VideoURL)
		return nil
	}
	return r.writePlain("→ Previewing %s\n", task.VideoURL)
}

// TaskUse hands a finished task's result to the next publish and stops tracking the task.
func (r *Runner) TaskUse(ctx context.Context, cmd *cli.Command) error {
	id, err := taskID(cmd)
	if err != nil {
		return err
	}
	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}
	result, err := registry.UseResult(id)
	if err != nil {
		return err
	}
	r.saveRegistry(registry)

	r.writePlain("✓ Result of %s is ready to publish\n", result.TaskID)
	return r.writePlain("Run 'vgen publish --title ...' to publish it\n")
}

// SessionClear forgets every tracked task and the pending result.
func (r *Runner) SessionClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.sessionFile.Remove(); err != nil {
		return err
	}
	r.logger.Info("session cleared", "path", r.sessionFile.Path())
	return r.writePlain("✓ Session cleared\n")
}

func (r *Runner) writeTask(task models.TrackedTask) error {
	r.writePlain("Task:   %s\n", task.TaskID)
	r.writePlain("Status: %s\n", task.Status)
	if task.VideoURL != "" {
		r.writePlain("Video:  %s\n", task.VideoURL)
	}
	if task.CoverURL != "" {
		r.writePlain("Cover:  %s\n", task.CoverURL)
	}
	if task.Error != "" {
		r.writePlain("Error:  %s\n", task.Error)
	}
	return nil
}
