package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/shared"
)

const videoColumns = `id, sequence, title, description, tags, video_url, cover_url, duration, aspect_ratio,
	uploader_id, uploader_username, uploader_display_name, uploader_avatar_url,
	source, task_id, like_count, comment_count, view_count, liked, hydrated, created_at, cached_at, deleted_at`

// CachedVideo is a [models.PublishedVideo] as stored in the feed cache.
type CachedVideo struct {
	models.PublishedVideo
	Sequence  int
	CachedAt  time.Time
	DeletedAt *time.Time
}

// VideoRepository caches catalog records in the feed_videos table.
//
// Records are keyed by the catalog id, so a hydrated record replaces its optimistic entry in place and keeps its sequence.
type VideoRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewVideoRepository creates a new VideoRepository with the given database connection
func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db, now: time.Now}
}

// Upsert inserts video, or replaces the cached row with the same id.
//
// A replaced row keeps its sequence; a previously deleted row is restored.
func (r *VideoRepository) Upsert(ctx context.Context, video models.PublishedVideo) error {
	if strings.TrimSpace(video.ID) == "" {
		return fmt.Errorf("%w: video id is required", shared.ErrValidation)
	}

	tags, err := json.Marshal(models.NormalizeTags(video.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sequence int
	err = tx.QueryRowContext(ctx, "SELECT sequence FROM feed_videos WHERE id = ?", video.ID).Scan(&sequence)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if sequence, err = nextSequenceTx(ctx, tx, "feed_videos"); err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up video: %w", err)
	}

	createdAt := video.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	var username, displayName, avatarURL sql.NullString
	if p := video.Uploader; p != nil {
		username = sql.NullString{String: p.Username, Valid: true}
		displayName = sql.NullString{String: p.DisplayName, Valid: true}
		avatarURL = sql.NullString{String: p.AvatarURL, Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO feed_videos (` + videoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err = tx.ExecContext(ctx, query,
		video.ID,
		sequence,
		video.Title,
		video.Description,
		string(tags),
		video.VideoURL,
		video.CoverURL,
		nullFloat(video.Duration),
		video.AspectRatio,
		video.UploaderID,
		username,
		displayName,
		avatarURL,
		string(video.Source),
		video.TaskID,
		video.LikeCount,
		video.CommentCount,
		video.ViewCount,
		video.Liked,
		video.Hydrated,
		createdAt.UTC(),
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store video: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a cached video by id, excluding soft-deleted rows
func (r *VideoRepository) Get(ctx context.Context, id string) (*CachedVideo, error) {
	query := `SELECT ` + videoColumns + ` FROM feed_videos WHERE id = ? AND deleted_at IS NULL`
	video, err := scanVideo(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrVideoMissing, id)
	}
	return video, err
}

// List returns up to limit cached videos, newest first. A limit of zero or less returns every row.
func (r *VideoRepository) List(ctx context.Context, limit int) ([]CachedVideo, error) {
	query := `SELECT ` + videoColumns + ` FROM feed_videos WHERE deleted_at IS NULL ORDER BY created_at DESC, sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []CachedVideo
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return videos, nil
}

// SetLike stores the like flag and counter for a cached video.
func (r *VideoRepository) SetLike(ctx context.Context, id string, liked bool, count int) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE feed_videos SET liked = ?, like_count = ?, cached_at = ? WHERE id = ? AND deleted_at IS NULL",
		liked, count, r.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update like: %w", err)
	}
	return requireRow(result, id)
}

// Delete soft-deletes a cached video by id
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE feed_videos SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", r.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return requireRow(result, id)
}

// Count returns the number of visible cached videos.
func (r *VideoRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_videos WHERE deleted_at IS NULL").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return n, nil
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrVideoMissing, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanVideo scans a feed_videos row selected with videoColumns
func scanVideo(row scanner) (*CachedVideo, error) {
	var (
		v           CachedVideo
		tags        string
		duration    sql.NullFloat64
		username    sql.NullString
		displayName sql.NullString
		avatarURL   sql.NullString
		source      string
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&v.ID, &v.Sequence, &v.Title, &v.Description, &tags, &v.VideoURL, &v.CoverURL, &duration, &v.AspectRatio,
		&v.UploaderID, &username, &displayName, &avatarURL,
		&source, &v.TaskID, &v.LikeCount, &v.CommentCount, &v.ViewCount, &v.Liked, &v.Hydrated,
		&v.CreatedAt, &v.CachedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for %s: %w", v.ID, err)
	}
	v.Tags = models.NormalizeTags(v.Tags)
	v.Source = models.VideoSource(source)
	if duration.Valid {
		d := duration.Float64
		v.Duration = &d
	}
	if username.Valid {
		v.Uploader = &models.Profile{
			ID:          v.UploaderID,
			Username:    username.String,
			DisplayName: displayName.String,
			AvatarURL:   avatarURL.String,
		}
	}
	if deletedAt.Valid {
		v.DeletedAt = &deletedAt.Time
	}

	return &v, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
