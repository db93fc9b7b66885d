package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// IdentitySource is the signed-in user and their bearer token.
type IdentitySource interface {
	CurrentCredential(ctx context.Context) (string, bool)
	CurrentUser(ctx context.Context) (*services.Identity, error)
}

// FeedSink receives published records; [feed.Feed] implements it.
type FeedSink interface {
	Add(ctx context.Context, video models.PublishedVideo) error
	Replace(ctx context.Context, video models.PublishedVideo) error
}

// TaskRemover drops a task whose result has been published.
type TaskRemover interface {
	RemoveTask(taskID string)
}

// Prober derives missing media attributes; [MediaProber] implements it.
type Prober interface {
	Resolve(ctx context.Context, videoSrc, coverSrc string, known Attributes) Attributes
}

// Deps are the collaborators of a [Reconciler]. Tasks and Progress may be nil.
type Deps struct {
	Auth     IdentitySource
	Catalog  services.Catalog
	Store    services.ObjectStore
	Gateway  services.Gateway
	Feed     FeedSink
	Tasks    TaskRemover
	Prober   Prober
	Notifier shared.Notifier
	Logger   *log.Logger
	Progress chan<- tasks.ProgressUpdate
}

// Reconciler turns an upload or a generation result into exactly one feed entry.
type Reconciler struct {
	Deps
}

// UploadInput is the manual publish path: local video and cover files plus metadata.
type UploadInput struct {
	VideoPath   string
	CoverPath   string
	Metadata    models.VideoMetadata
	Duration    *float64
	AspectRatio float64
}

// GeneratedInput is the generation publish path: a finished task's remote media plus metadata.
type GeneratedInput struct {
	TaskID      string
	VideoURL    string
	CoverURL    string
	Metadata    models.VideoMetadata
	Duration    *float64
	AspectRatio float64
}

// Result describes a successful publish.
type Result struct {
	Video    models.PublishedVideo
	Uploaded []string // object keys written by the upload path
}

// NewReconciler creates a [Reconciler]. Missing notifier, logger and prober get defaults.
func NewReconciler(deps Deps) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = shared.NewLogNotifier(deps.Logger)
	}
	if deps.Prober == nil {
		deps.Prober = NewMediaProber(nil, deps.Logger)
	}
	return &Reconciler{Deps: deps}
}

// PublishUpload uploads the video and cover, inserts an optimistic feed entry and hydrates it in place.
//
// A failure after at least one object was stored returns [shared.ErrPartialUpload] naming the keys; nothing is
// rolled back. A failed hydration keeps the optimistic entry.
func (r *Reconciler) PublishUpload(ctx context.Context, in UploadInput) (*Result, error) {
	res, err := r.publishUpload(ctx, in)
	if err != nil {
		r.fail(err)
		return nil, err
	}
	r.succeed(res.Video)
	return res, nil
}

func (r *Reconciler) publishUpload(ctx context.Context, in UploadInput) (*Result, error) {
	meta := in.Metadata.Normalized()
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := requireFile("video", in.VideoPath); err != nil {
		return nil, err
	}
	if err := requireFile("cover", in.CoverPath); err != nil {
		return nil, err
	}

	user, credential, err := r.identity(ctx)
	if err != nil {
		return nil, err
	}

	tasks.SendProgress(r.Progress, tasks.ProgressUpdate{Phase: tasks.PhaseProbe, Step: 1, Total: 1, Message: "Reading media..."})
	attrs := r.Prober.Resolve(ctx, in.VideoPath, in.CoverPath, Attributes{Duration: in.Duration, AspectRatio: in.AspectRatio})

	res := &Result{}
	videoURL, err := r.upload(ctx, user.ID, "videos", in.VideoPath, credential, 1, res)
	if err != nil {
		return nil, r.partial(res.Uploaded, err)
	}
	coverURL, err := r.upload(ctx, user.ID, "covers", in.CoverPath, credential, 2, res)
	if err != nil {
		return nil, r.partial(res.Uploaded, err)
	}

	tasks.SendProgress(r.Progress, tasks.ProgressUpdate{Phase: tasks.PhaseInsert, Step: 1, Total: 1, Message: "Creating catalog record..."})
	inserted, err := r.Catalog.Insert(ctx, models.VideoDraft{
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
		VideoURL:    videoURL,
		CoverURL:    coverURL,
		Duration:    attrs.Duration,
		AspectRatio: attrs.AspectRatio,
		UploaderID:  user.ID,
		Source:      models.SourceUpload,
	}, credential)
	if err != nil {
		return nil, r.partial(res.Uploaded, err)
	}

	optimistic := *inserted
	optimistic.Hydrated = false
	if optimistic.Source == "" {
		optimistic.Source = models.SourceUpload
	}
	if err := r.Feed.Add(ctx, optimistic); err != nil {
		return nil, err
	}
	res.Video = optimistic

	tasks.SendProgress(r.Progress, tasks.ProgressUpdate{Phase: tasks.PhaseHydrate, Step: 1, Total: 1, Message: "Loading published record..."})
	if hydrated := r.hydrate(ctx, optimistic.ID); hydrated != nil {
		res.Video = *hydrated
	}

	r.Logger.Info("video published", "video_id", res.Video.ID, "source", res.Video.Source, "hydrated", res.Video.Hydrated)
	return res, nil
}

func requireFile(name, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: a %s file is required", shared.ErrValidation, name)
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s file %s is not readable", shared.ErrValidation, name, path)
	}
	return nil
}

// upload stores one local file under a fresh key and records the key in res.
func (r *Reconciler) upload(ctx context.Context, owner, kind, path, credential string, step int, res *Result) (string, error) {
	tasks.SendProgress(r.Progress, tasks.ProgressUpdate{
		Phase:   tasks.PhaseUpload,
		Step:    step,
		Total:   2,
		Message: fmt.Sprintf("[%d/2] Uploading %s...", step, filepath.Base(path)),
	})

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	key := services.ObjectKey(owner, kind, fileExt(path))
	publicURL, err := r.Store.Put(ctx, key, contentType(path), f, credential)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(path), err)
	}
	res.Uploaded = append(res.Uploaded, key)
	r.Logger.Debug("object stored", "key", key, "url", publicURL)
	return publicURL, nil
}

// hydrate fetches the joined record and swaps it into the feed. It returns nil when the optimistic entry stays.
func (r *Reconciler) hydrate(ctx context.Context, id string) *models.PublishedVideo {
	record, err := r.Catalog.FetchByID(ctx, id)
	if err == nil && record == nil {
		err = fmt.Errorf("%w: %s", shared.ErrVideoMissing, id)
	}
	if err != nil {
		r.Logger.Warn("hydration failed, keeping optimistic entry", "video_id", id, "error", err)
		return nil
	}

	record.Hydrated = true
	if err := r.Feed.Replace(ctx, *record); err != nil {
		r.Logger.Warn("failed to replace optimistic entry", "video_id", id, "error", err)
		return nil
	}
	return record
}

// PublishGenerated asks the gateway to finalize a generation result and adds the returned record to the feed.
//
// The task is removed from the registry once the record exists.
func (r *Reconciler) PublishGenerated(ctx context.Context, in GeneratedInput) (*Result, error) {
	res, err := r.publishGenerated(ctx, in)
	if err != nil {
		r.fail(err)
		return nil, err
	}
	r.succeed(res.Video)
	return res, nil
}

func (r *Reconciler) publishGenerated(ctx context.Context, in GeneratedInput) (*Result, error) {
	meta := in.Metadata.Normalized()
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.TaskID) == "" || strings.TrimSpace(in.VideoURL) == "" {
		return nil, fmt.Errorf("%w: a finished generation is required", shared.ErrValidation)
	}

	user, credential, err := r.identity(ctx)
	if err != nil {
		return nil, err
	}

	tasks.SendProgress(r.Progress, tasks.ProgressUpdate{Phase: tasks.PhaseProbe, Step: 1, Total: 1, Message: "Reading media..."})
	attrs := r.Prober.Resolve(ctx, in.VideoURL, in.CoverURL, Attributes{Duration: in.Duration, AspectRatio: in.AspectRatio})

	tasks.SendProgress(r.Progress, tasks.ProgressUpdate{Phase: tasks.PhasePublish, Step: 1, Total: 1, Message: "Publishing generation..."})
	published, err := r.Gateway.Publish(ctx, in.TaskID, services.PublishRequest{
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
		Duration:    attrs.Duration,
		AspectRatio: attrs.AspectRatio,
	}, credential)
	if err != nil {
		return nil, err
	}

	video := published.Video
	video.Source = models.SourceGeneration
	if video.TaskID == "" {
		video.TaskID = published.TaskID
	}
	if video.UploaderID == "" {
		video.UploaderID = user.ID
	}
	if video.Uploader == nil {
		video.Uploader = user.Profile()
	}
	if video.Tags == nil {
		video.Tags = meta.Tags
	}
	if video.Duration == nil {
		video.Duration = attrs.Duration
	}
	if video.AspectRatio <= 0 {
		video.AspectRatio = attrs.AspectRatio
	}
	video.Hydrated = true

	if err := r.Feed.Add(ctx, video); err != nil {
		return nil, err
	}
	if r.Tasks != nil {
		r.Tasks.RemoveTask(in.TaskID)
	}

	r.Logger.Info("video published", "video_id", video.ID, "source", video.Source, "task_id", in.TaskID)
	return &Result{Video: video}, nil
}

func (r *Reconciler) identity(ctx context.Context) (*services.Identity, string, error) {
	credential, ok := r.Auth.CurrentCredential(ctx)
	if !ok {
		return nil, "", shared.ErrAuthRequired
	}
	user, err := r.Auth.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrAuthRequired) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %v", shared.ErrAuthRequired, err)
	}
	return user, credential, nil
}

// partial wraps err as [shared.ErrPartialUpload] when objects were already stored.
func (r *Reconciler) partial(keys []string, err error) error {
	if len(keys) == 0 {
		return err
	}
	r.Logger.Warn("objects left in storage after failed publish", "keys", keys, "error", err)
	return fmt.Errorf("%w: %s left in storage: %w", shared.ErrPartialUpload, strings.Join(keys, ", "), err)
}

func (r *Reconciler) succeed(video models.PublishedVideo) {
	r.Notifier.Notify(shared.Notification{Level: shared.LevelSuccess, Title: "Video published", Message: video.Title})
}

func (r *Reconciler) fail(err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		r.Notifier.Notify(shared.Notification{Level: shared.LevelWarn, Title: "Check the form", Message: err.Error()})
	case errors.Is(err, shared.ErrAuthRequired):
		r.Notifier.Notify(shared.Notification{Level: shared.LevelWarn, Title: "Sign in required", Message: "Sign in with `vgen auth login` to publish."})
	default:
		r.Logger.Error("publish failed", "error", err)
		r.Notifier.Notify(shared.Notification{Level: shared.LevelError, Title: "Publish failed", Message: tasks.ErrorMessage(err)})
	}
}
