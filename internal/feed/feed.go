// package feed is the user-visible video feed, cached locally and confirmed against the catalog.
package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/repositories"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// DefaultSyncLimit is how many catalog records [Feed.Sync] pulls by default.
const DefaultSyncLimit = 50

// Cache stores feed entries; [repositories.VideoRepository] is the SQLite implementation.
type Cache interface {
	Upsert(ctx context.Context, video models.PublishedVideo) error
	Get(ctx context.Context, id string) (*repositories.CachedVideo, error)
	List(ctx context.Context, limit int) ([]repositories.CachedVideo, error)
	SetLike(ctx context.Context, id string, liked bool, count int) error
	Delete(ctx context.Context, id string) error
}

// Feed is the list of published videos the user sees.
type Feed struct {
	cache    Cache
	catalog  services.Catalog
	auth     tasks.CredentialSource
	notifier shared.Notifier
	logger   *log.Logger

	mu sync.Mutex
}

// New creates a [Feed]. A nil notifier logs notifications; a nil logger writes to stderr.
func New(cache Cache, catalog services.Catalog, auth tasks.CredentialSource, notifier shared.Notifier, logger *log.Logger) *Feed {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if notifier == nil {
		notifier = shared.NewLogNotifier(logger)
	}
	return &Feed{cache: cache, catalog: catalog, auth: auth, notifier: notifier, logger: logger}
}

// Add puts a freshly published record at the top of the feed.
func (f *Feed) Add(ctx context.Context, video models.PublishedVideo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cache.Upsert(ctx, video); err != nil {
		return fmt.Errorf("failed to add %s to feed: %w", video.ID, err)
	}
	f.logger.Debug("feed entry added", "video_id", video.ID, "hydrated", video.Hydrated)
	return nil
}

// Replace swaps the entry with the same id for video, keeping its position.
func (f *Feed) Replace(ctx context.Context, video models.PublishedVideo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.cache.Get(ctx, video.ID); err != nil {
		return err
	}
	if err := f.cache.Upsert(ctx, video); err != nil {
		return fmt.Errorf("failed to replace %s in feed: %w", video.ID, err)
	}
	f.logger.Debug("feed entry replaced", "video_id", video.ID, "hydrated", video.Hydrated)
	return nil
}

// Remove hides an entry locally. The catalog record is left alone.
func (f *Feed) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cache.Delete(ctx, id)
}

// Get returns one cached entry.
func (f *Feed) Get(ctx context.Context, id string) (models.PublishedVideo, error) {
	cached, err := f.cache.Get(ctx, id)
	if err != nil {
		return models.PublishedVideo{}, err
	}
	return cached.PublishedVideo, nil
}

// List returns up to limit entries, newest first.
func (f *Feed) List(ctx context.Context, limit int) ([]models.PublishedVideo, error) {
	cached, err := f.cache.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	videos := make([]models.PublishedVideo, 0, len(cached))
	for _, c := range cached {
		videos = append(videos, c.PublishedVideo)
	}
	return videos, nil
}

// Sync pulls the latest catalog records into the cache and returns how many were stored.
//
// The anonymous catalog listing has no like state, so the cached like flag is kept.
func (f *Feed) Sync(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultSyncLimit
	}
	videos, err := f.catalog.List(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list catalog: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored := 0
	for _, v := range videos {
		if existing, err := f.cache.Get(ctx, v.ID); err == nil {
			v.Liked = existing.Liked
		}
		v.Hydrated = true
		if err := f.cache.Upsert(ctx, v); err != nil {
			return stored, err
		}
		stored++
	}
	f.logger.Info("feed synced", "count", stored)
	return stored, nil
}

// ToggleLike flips the like on id, optimistically.
//
// The cached entry changes first; if the catalog rejects the change the entry is restored and one error
// notification is sent.
func (f *Feed) ToggleLike(ctx context.Context, id string) (models.PublishedVideo, error) {
	credential, ok := f.auth.CurrentCredential(ctx)
	if !ok {
		f.notifier.Notify(shared.Notification{
			Level:   shared.LevelWarn,
			Title:   "Sign in required",
			Message: "Sign in with `vgen auth login` to like videos.",
		})
		return models.PublishedVideo{}, shared.ErrAuthRequired
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	op := Optimistic[models.PublishedVideo]{
		Snapshot: func(ctx context.Context) (models.PublishedVideo, error) {
			cached, err := f.cache.Get(ctx, id)
			if err != nil {
				return models.PublishedVideo{}, err
			}
			return cached.PublishedVideo, nil
		},
		Apply: func(ctx context.Context, v models.PublishedVideo) (models.PublishedVideo, error) {
			v.Liked = !v.Liked
			if v.Liked {
				v.LikeCount++
			} else if v.LikeCount > 0 {
				v.LikeCount--
			}
			return v, f.cache.SetLike(ctx, v.ID, v.Liked, v.LikeCount)
		},
		Confirm: func(ctx context.Context, v models.PublishedVideo) (models.PublishedVideo, error) {
			count, err := f.catalog.SetLike(ctx, v.ID, v.Liked, credential)
			if err != nil {
				return v, err
			}
			v.LikeCount = count
			return v, f.cache.SetLike(ctx, v.ID, v.Liked, count)
		},
		Rollback: func(ctx context.Context, v models.PublishedVideo) error {
			return f.cache.SetLike(ctx, v.ID, v.Liked, v.LikeCount)
		},
	}

	video, err := op.Run(ctx)
	if err != nil {
		f.logger.Warn("like failed", "video_id", id, "error", err)
		f.notifier.Notify(shared.Notification{Level: shared.LevelError, Title: "Like failed", Message: tasks.ErrorMessage(err)})
		return models.PublishedVideo{}, err
	}
	return video, nil
}
