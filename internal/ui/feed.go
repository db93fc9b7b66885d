package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vgen/internal/feed"
	"github.com/desertthunder/vgen/internal/models"
)

func (m *Model) handleFeedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.feedList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.feedList, cmd = m.feedList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.back):
		m.view = TrayView
		return m, nil
	case key.Matches(msg, m.keys.sync):
		return m, m.syncFeed()
	case key.Matches(msg, m.keys.like):
		if item, ok := m.feedList.SelectedItem().(videoItem); ok {
			return m, m.toggleLike(item.video.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.preview):
		if item, ok := m.feedList.SelectedItem().(videoItem); ok {
			if err := m.deps.Open(item.video.VideoURL); err != nil {
				m.deps.Logger.Warn("failed to open video", "id", item.video.ID, "error", err)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.feedList, cmd = m.feedList.Update(msg)
	return m, cmd
}

func (m *Model) loadFeed() tea.Cmd {
	return func() tea.Msg {
		videos, err := m.deps.Feed.List(m.ctx, feed.DefaultSyncLimit)
		return feedLoadedMsg(videos, err)
	}
}

func (m *Model) syncFeed() tea.Cmd {
	return func() tea.Msg {
		if _, err := m.deps.Feed.Sync(m.ctx, feed.DefaultSyncLimit); err != nil {
			return feedLoadedMsg(nil, err)
		}
		videos, err := m.deps.Feed.List(m.ctx, feed.DefaultSyncLimit)
		return feedLoadedMsg(videos, err)
	}
}

// toggleLike flips the like; a failed confirmation is rolled back and notified by the feed itself.
func (m *Model) toggleLike(id string) tea.Cmd {
	return func() tea.Msg {
		video, err := m.deps.Feed.ToggleLike(m.ctx, id)
		return likeDoneMsg(video, err)
	}
}

func (m *Model) setFeed(videos []models.PublishedVideo) {
	items := make([]list.Item, len(videos))
	for i, v := range videos {
		items[i] = videoItem{video: v}
	}
	m.feedList.SetItems(items)
}

func (m *Model) renderFeed() string {
	var b strings.Builder
	b.WriteString(m.feedList.View())
	helpKeys := []key.Binding{m.keys.preview, m.keys.like, m.keys.sync, m.keys.back, m.keys.quit}
	b.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}
