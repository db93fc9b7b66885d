package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/publish"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgRefreshDone MsgKind = iota
	MsgSyncTick
	MsgSyncDone
	MsgProgressUpdate
	MsgGenerationDone
	MsgProbeDone
	MsgPublishDone
	MsgFeedLoaded
	MsgLikeDone
	MsgNotification
)

type refreshResult struct {
	taskID string
	err    error
}

type syncResult struct {
	report    tasks.SyncReport
	scheduled bool
}

type generationResult struct {
	dialog   int
	snapshot tasks.Snapshot
	err      error
}

type progressResult struct {
	dialog int
	update tasks.ProgressUpdate
}

type publishResult struct {
	result *publish.Result
	err    error
}

type feedResult struct {
	videos []models.PublishedVideo
	err    error
}

type likeResult struct {
	video models.PublishedVideo
	err   error
}

// refreshDoneMsg is the constructor for [MsgRefreshDone]
func refreshDoneMsg(taskID string, err error) Msg {
	return Msg{kind: MsgRefreshDone, data: refreshResult{taskID, err}}
}

// syncTickMsg is the constructor for [MsgSyncTick]
func syncTickMsg() Msg {
	return Msg{kind: MsgSyncTick}
}

// syncDoneMsg is the constructor for [MsgSyncDone]; scheduled is false for a manual sync.
func syncDoneMsg(report tasks.SyncReport, scheduled bool) Msg {
	return Msg{kind: MsgSyncDone, data: syncResult{report, scheduled}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(dialog int, update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: progressResult{dialog, update}}
}

// generationDoneMsg is the constructor for [MsgGenerationDone]
func generationDoneMsg(result generationResult) Msg {
	return Msg{kind: MsgGenerationDone, data: result}
}

// probeDoneMsg is the constructor for [MsgProbeDone]
func probeDoneMsg(attrs publish.Attributes) Msg {
	return Msg{kind: MsgProbeDone, data: attrs}
}

// publishDoneMsg is the constructor for [MsgPublishDone]
func publishDoneMsg(result *publish.Result, err error) Msg {
	return Msg{kind: MsgPublishDone, data: publishResult{result, err}}
}

// feedLoadedMsg is the constructor for [MsgFeedLoaded]
func feedLoadedMsg(videos []models.PublishedVideo, err error) Msg {
	return Msg{kind: MsgFeedLoaded, data: feedResult{videos, err}}
}

// likeDoneMsg is the constructor for [MsgLikeDone]
func likeDoneMsg(video models.PublishedVideo, err error) Msg {
	return Msg{kind: MsgLikeDone, data: likeResult{video, err}}
}

// notificationMsg is the constructor for [MsgNotification]
func notificationMsg(n shared.Notification) Msg {
	return Msg{kind: MsgNotification, data: n}
}
