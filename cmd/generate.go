package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// Generate submits a prompt and, unless detached, polls until the video is ready.
//
// The task is tracked in the session as soon as the gateway accepts it, so an interrupted run can be resumed with
// 'vgen task sync'.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	req := r.defaultRequest()
	req.Prompt = strings.TrimSpace(cmd.StringArg("prompt"))
	if v := cmd.String("resolution"); v != "" {
		req.Resolution = models.Resolution(v)
	}
	if v := cmd.String("ratio"); v != "" {
		req.AspectRatio = models.AspectRatio(v)
	}
	if v := int(cmd.Int("duration")); v != 0 {
		req.Duration = v
	}
	if v := int(cmd.Int("fps")); v != 0 {
		req.FPS = models.FPS(v)
	}
	if req.Prompt == "" {
		return fmt.Errorf("%w: prompt", shared.ErrMissingArgument)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	registry, err := r.loadRegistry(r.notifier())
	if err != nil {
		return err
	}
	defer r.saveRegistry(registry)

	var snapshot tasks.Snapshot
	err = r.withProgress(func(progress chan<- tasks.ProgressUpdate) error {
		session := tasks.NewSession(r.gateway,
			tasks.WithPollPolicy(tasks.PollPolicyFromConfig(r.config.Gateway)),
			tasks.WithProgress(progress),
			tasks.WithSessionLogger(r.logger),
			tasks.WithTaskCreated(func(taskID string) {
				registry.AddTask(taskID, nil)
			}),
			tasks.WithStatusObserver(func(taskID string, status *services.JobStatus) {
				registry.UpdateTask(taskID, status.Patch())
			}),
		)

		if cmd.Bool("detach") {
			if _, err := session.Start(ctx, req); err != nil {
				return err
			}
			snapshot = session.Snapshot()
			return nil
		}

		var err error
		snapshot, err = session.Run(ctx, req)
		return err
	})

	if err != nil {
		if snapshot.TaskID != "" {
			r.writePlain("Task %s is still tracked; check on it with 'vgen task refresh %s'\n", snapshot.TaskID, snapshot.TaskID)
		}
		return fmt.Errorf("generation failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"task_id":   snapshot.TaskID,
			"state":     snapshot.State.String(),
			"video_url": snapshot.VideoURL,
			"cover_url": snapshot.CoverURL,
		}, true)
	}

	if cmd.Bool("detach") {
		r.writePlain("✓ Task %s created\n", snapshot.TaskID)
		return r.writePlain("Check on it with 'vgen task sync' or 'vgen task refresh %s'\n", snapshot.TaskID)
	}

	r.writePlain("✓ Video ready: %s\n", snapshot.VideoURL)
	return r.writePlain("Publish it with 'vgen publish --task %s --title ...'\n", snapshot.TaskID)
}
