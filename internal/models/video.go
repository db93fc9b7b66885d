package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/desertthunder/vgen/internal/shared"
)

const (
	MaxTitleLength = 120
	MaxTags        = 10
)

// FallbackAspectRatio is used when neither the cover nor the video can be probed.
const FallbackAspectRatio = 16.0 / 9.0

// VideoSource records which publish path produced a [PublishedVideo].
type VideoSource string

const (
	SourceUpload     VideoSource = "upload"
	SourceGeneration VideoSource = "generation"
)

// VideoMetadata is what the user types into the creation form.
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Normalized trims the text fields and normalizes the tag set.
func (m VideoMetadata) Normalized() VideoMetadata {
	return VideoMetadata{
		Title:       strings.TrimSpace(m.Title),
		Description: strings.TrimSpace(m.Description),
		Tags:        NormalizeTags(m.Tags),
	}
}

// Validate requires a title of bounded length.
func (m VideoMetadata) Validate() error {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title is longer than %d characters", shared.ErrValidation, MaxTitleLength)
	}
	return nil
}

// NormalizeTags trims, lowercases, strips a leading '#', drops duplicates and keeps at most [MaxTags].
//
// The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.TrimSpace(strings.TrimLeft(tag, "#"))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// ParseTags splits a comma or whitespace separated tag string.
func ParseTags(raw string) []string {
	return NormalizeTags(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}))
}

// Profile is the uploader identity joined onto a catalog record.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// PublishedVideo is a catalog record as shown in the feed.
//
// Records from the catalog insert response lack Uploader and counters; Hydrated is set once the joined record has replaced it.
type PublishedVideo struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Tags         []string    `json:"tags"`
	VideoURL     string      `json:"video_url"`
	CoverURL     string      `json:"cover_url"`
	Duration     *float64    `json:"duration"`
	AspectRatio  float64     `json:"aspect_ratio"`
	UploaderID   string      `json:"user_id"`
	Uploader     *Profile    `json:"profile,omitempty"`
	Source       VideoSource `json:"source"`
	TaskID       string      `json:"task_id"`
	LikeCount    int         `json:"likes_count"`
	CommentCount int         `json:"comments_count"`
	ViewCount    int         `json:"views_count"`
	Liked        bool        `json:"liked_by_me,omitempty"`
	Hydrated     bool        `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}

// UploaderName prefers the display name, then the username, then the raw id.
func (v PublishedVideo) UploaderName() string {
	if v.Uploader != nil {
		if v.Uploader.DisplayName != "" {
			return v.Uploader.DisplayName
		}
		if v.Uploader.Username != "" {
			return v.Uploader.Username
		}
	}
	return v.UploaderID
}

// VideoDraft is the insert payload the reconciler sends to the catalog.
type VideoDraft struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	VideoURL    string      `json:"video_url"`
	CoverURL    string      `json:"cover_url"`
	Duration    *float64    `json:"duration"`
	AspectRatio float64     `json:"aspect_ratio"`
	UploaderID  string      `json:"user_id"`
	Source      VideoSource `json:"source"`
	TaskID      string      `json:"task_id,omitempty"`
}

// VideoPatch updates mutable catalog fields; nil fields are left untouched.
type VideoPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CoverURL    *string  `json:"cover_url,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	AspectRatio *float64 `json:"aspect_ratio,omitempty"`
}
