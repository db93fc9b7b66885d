package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/vgen/internal/formatter"
	"github.com/desertthunder/vgen/internal/models"
)

var (
	_ list.Item = taskItem{}
	_ list.Item = videoItem{}
)

// taskItem wraps [models.TrackedTask] to implement [list.Item].
type taskItem struct {
	task      models.TrackedTask
	previewed bool
}

func (i taskItem) FilterValue() string { return i.task.TaskID }
func (i taskItem) Title() string {
	if i.previewed {
		return "▶ " + i.task.TaskID
	}
	return i.task.TaskID
}
func (i taskItem) Description() string {
	desc := string(i.task.Status)
	if i.task.Loading {
		desc += " (refreshing)"
	}
	switch {
	case i.task.Status == models.StatusFailed && i.task.Error != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.Error)
	case i.task.VideoURL != "":
		desc = fmt.Sprintf("%s • %s", desc, i.task.VideoURL)
	}
	return desc
}

// videoItem wraps [models.PublishedVideo] to implement [list.Item].
type videoItem struct {
	video models.PublishedVideo
}

func (i videoItem) FilterValue() string { return i.video.Title }
func (i videoItem) Title() string {
	if i.video.Liked {
		return "♥ " + i.video.Title
	}
	return i.video.Title
}
func (i videoItem) Description() string {
	desc := fmt.Sprintf("%s • %s • %d likes", i.video.UploaderName(), formatter.FormatDuration(i.video.Duration), i.video.LikeCount)
	if !i.video.Hydrated {
		desc += " • pending"
	}
	return desc
}
