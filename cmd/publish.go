package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/publish"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// Publish publishes local files, a finished task, or the pending result handed off by 'vgen task use'.
func (r *Runner) Publish(ctx context.Context, cmd *cli.Command) error {
	notifier := r.notifier()
	registry, err := r.loadRegistry(notifier)
	if err != nil {
		return err
	}
	defer r.saveRegistry(registry)

	f, closeFeed, err := r.openFeed(ctx, notifier)
	if err != nil {
		return err
	}
	defer closeFeed()

	form := publish.NewForm()
	form.SetMetadata(models.VideoMetadata{
		Title:       cmd.String("title"),
		Description: cmd.String("description"),
		Tags:        models.ParseTags(cmd.String("tags")),
	})

	videoPath := strings.TrimSpace(cmd.String("video"))
	taskID := strings.TrimSpace(cmd.String("task"))
	switch {
	case videoPath != "" && taskID != "":
		return fmt.Errorf("%w: cannot specify both --video and --task", shared.ErrInvalidArgument)
	case taskID != "":
		if _, err := registry.UseResult(taskID); err != nil {
			return err
		}
		form.Sync(registry.Handoff())
	case videoPath != "":
		form.SelectFiles(videoPath, strings.TrimSpace(cmd.String("cover")))
	default:
		if !form.Sync(registry.Handoff()) {
			return fmt.Errorf("%w: pass --video, --task, or hand off a result with 'vgen task use'", shared.ErrMissingArgument)
		}
	}

	state := form.State()
	r.logger.Info("publishing", "mode", state.Mode, "title", state.Metadata.Title)

	var result *publish.Result
	err = r.withProgress(func(progress chan<- tasks.ProgressUpdate) error {
		reconciler, err := r.reconciler(f, registry, notifier, progress)
		if err != nil {
			return err
		}
		result, err = form.Submit(ctx, reconciler)
		return err
	})
	if err != nil {
		if state.Generated != nil {
			registry.SetPendingUseResult(state.Generated)
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result.Video, true)
	}
	r.writePlain("✓ Published %q (%s)\n", result.Video.Title, result.Video.ID)
	if result.Video.VideoURL != "" {
		r.writePlain("Video: %s\n", result.Video.VideoURL)
	}
	return nil
}

// StorageRemove deletes one uploaded object, typically left behind by a partially failed upload.
func (r *Runner) StorageRemove(ctx context.Context, cmd *cli.Command) error {
	key := strings.TrimSpace(cmd.StringArg("key"))
	if key == "" {
		return fmt.Errorf("%w: object key", shared.ErrMissingArgument)
	}
	store, err := r.objectStore()
	if err != nil {
		return err
	}

	credential, ok := r.auth.CurrentCredential(ctx)
	if !ok && r.config.Storage.Backend != "local" {
		return fmt.Errorf("%w: sign in with 'vgen auth login' to remove uploads", shared.ErrAuthRequired)
	}
	if err := store.Delete(ctx, key, credential); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	r.logger.Info("object removed", "key", key)
	return r.writePlain("✓ Removed %s\n", key)
}
