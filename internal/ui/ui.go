package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/vgen/internal/feed"
	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/publish"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TrayView ViewState = iota
	GenerateView
	FormView
	FeedView
)

// Deps are the services the TUI drives. Feed may be nil, which hides the feed view.
type Deps struct {
	Registry     *tasks.Registry
	Gateway      services.Gateway
	Form         *publish.Form
	Reconciler   *publish.Reconciler
	Feed         *feed.Feed
	Notifier     *ChannelNotifier
	Policy       tasks.PollPolicy
	Defaults     models.GenerationRequest
	SyncInterval time.Duration // zero disables the background sync ticker
	Open         func(target string) error
	Logger       *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	deps   Deps
	view   ViewState
	width  int
	height int
	keys   keyMap
	help   help.Model

	taskList list.Model
	feedList list.Model
	spinner  spinner.Model
	syncing  bool
	busy     int
	status   *shared.Notification

	// generation dialog
	prompt      textinput.Model
	session     *tasks.Session
	dialog      int
	cancelGen   context.CancelFunc
	genProgress tasks.ProgressUpdate
	genSnapshot tasks.Snapshot
	genWait     tea.Cmd
	genUpdates  chan tasks.ProgressUpdate
	generating  bool

	// creation form
	inputs     []textinput.Model
	focus      int
	publishing bool
}

const (
	fieldTitle = iota
	fieldDescription
	fieldTags
	fieldVideo
	fieldCover
)

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = NewChannelNotifier(0)
	}
	if deps.Open == nil {
		deps.Open = shared.OpenURL
	}
	if deps.Form == nil {
		deps.Form = publish.NewForm()
	}

	taskList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	taskList.Title = "Generation tasks"
	taskList.SetShowHelp(false)
	feedList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	feedList.Title = "Feed"
	feedList.SetShowHelp(false)

	prompt := textinput.New()
	prompt.Placeholder = "Describe the video to generate"
	prompt.CharLimit = models.MaxPromptLength
	prompt.Width = 60

	m := &Model{
		ctx:      ctx,
		deps:     deps,
		view:     TrayView,
		keys:     newKeyMap(),
		help:     help.New(),
		taskList: taskList,
		feedList: feedList,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		prompt:   prompt,
		inputs:   newFormInputs(),
	}
	m.refreshTasks()
	return m
}

func newFormInputs() []textinput.Model {
	placeholders := []string{"Title", "Description", "tags, comma separated", "path/to/video.mp4", "path/to/cover.jpg"}
	inputs := make([]textinput.Model, len(placeholders))
	for i, p := range placeholders {
		in := textinput.New()
		in.Placeholder = p
		in.Width = 50
		inputs[i] = in
	}
	inputs[fieldTitle].CharLimit = models.MaxTitleLength
	return inputs
}

// Current reports the active view.
func (m *Model) Current() ViewState { return m.view }

// Init starts the spinner, the notification listener and the sync ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForNotification(), m.scheduleSync())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-8)
		m.feedList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		switch m.view {
		case TrayView:
			return m.handleTrayKeys(msg)
		case GenerateView:
			return m.handleGenerateKeys(msg)
		case FormView:
			return m.handleFormKeys(msg)
		case FeedView:
			return m.handleFeedKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgNotification:
		n := msg.data.(shared.Notification)
		m.status = &n
		return m, m.waitForNotification()

	case MsgRefreshDone:
		if m.busy > 0 {
			m.busy--
		}
		m.refreshTasks()
		return m, nil

	case MsgSyncTick:
		if m.syncing {
			return m, m.scheduleSync()
		}
		m.syncing = true
		return m, m.syncAll(true)

	case MsgSyncDone:
		res := msg.data.(syncResult)
		m.syncing = false
		m.refreshTasks()
		if err := res.report.Err; err != nil && !errors.Is(err, shared.ErrAuthRequired) && !errors.Is(err, context.Canceled) {
			m.setStatus(shared.LevelWarn, "Sync failed", err.Error())
		}
		if !res.scheduled {
			m.setStatus(shared.LevelInfo, "Synced", fmt.Sprintf("%d checked, %d ready, %d failed", res.report.Checked, res.report.Completed, res.report.Failed))
			return m, nil
		}
		return m, m.scheduleSync()

	case MsgProgressUpdate:
		res := msg.data.(progressResult)
		if res.dialog != m.dialog {
			return m, nil
		}
		m.genProgress = res.update
		m.refreshTasks()
		return m, m.genWait

	case MsgGenerationDone:
		return m.handleGenerationDone(msg.data.(generationResult))

	case MsgProbeDone:
		return m, nil

	case MsgPublishDone:
		return m.handlePublishDone(msg.data.(publishResult))

	case MsgFeedLoaded:
		res := msg.data.(feedResult)
		if res.err != nil {
			m.setStatus(shared.LevelError, "Feed unavailable", tasks.ErrorMessage(res.err))
			return m, nil
		}
		m.setFeed(res.videos)
		return m, nil

	case MsgLikeDone:
		return m, m.loadFeed()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case TrayView:
		body = m.renderTray()
	case GenerateView:
		body = m.renderGenerate()
	case FormView:
		body = m.renderForm()
	case FeedView:
		body = m.renderFeed()
	}
	return body + "\n" + m.renderStatus()
}

func (m *Model) handleTrayKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.taskList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.taskList, cmd = m.taskList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.back):
		m.deps.Registry.ClosePreview()
		m.refreshTasks()
		return m, nil
	case key.Matches(msg, m.keys.preview):
		return m, m.previewSelected()
	case key.Matches(msg, m.keys.refresh):
		if task, ok := m.selectedTask(); ok {
			m.busy++
			return m, m.refreshTask(task.TaskID)
		}
		return m, nil
	case key.Matches(msg, m.keys.sync):
		if m.syncing {
			return m, nil
		}
		m.syncing = true
		return m, m.syncAll(false)
	case key.Matches(msg, m.keys.discard):
		if task, ok := m.selectedTask(); ok {
			m.deps.Registry.RemoveTask(task.TaskID)
			m.refreshTasks()
			m.setStatus(shared.LevelInfo, "Discarded", task.TaskID)
		}
		return m, nil
	case key.Matches(msg, m.keys.use):
		return m, m.useSelected()
	case key.Matches(msg, m.keys.generate):
		return m, m.openGenerate()
	case key.Matches(msg, m.keys.publish):
		return m, m.openForm()
	case key.Matches(msg, m.keys.feed):
		if m.deps.Feed == nil {
			return m, nil
		}
		m.view = FeedView
		return m, m.loadFeed()
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) selectedTask() (models.TrackedTask, bool) {
	item, ok := m.taskList.SelectedItem().(taskItem)
	if !ok {
		return models.TrackedTask{}, false
	}
	return item.task, true
}

func (m *Model) previewSelected() tea.Cmd {
	task, ok := m.selectedTask()
	if !ok {
		return nil
	}
	if !m.deps.Registry.OpenPreview(task.TaskID) {
		m.setStatus(shared.LevelInfo, "Nothing to preview yet", fmt.Sprintf("%s is %s", task.TaskID, task.Status))
		return nil
	}
	m.refreshTasks()
	if err := m.deps.Open(task.VideoURL); err != nil {
		m.deps.Logger.Warn("failed to open preview", "task_id", task.TaskID, "error", err)
		m.setStatus(shared.LevelWarn, "Open this URL to preview", task.VideoURL)
	}
	return nil
}

func (m *Model) useSelected() tea.Cmd {
	task, ok := m.selectedTask()
	if !ok {
		return nil
	}
	if _, err := m.deps.Registry.UseResult(task.TaskID); err != nil {
		m.setStatus(shared.LevelWarn, "Cannot use this task", err.Error())
		return nil
	}
	m.refreshTasks()
	return m.openForm()
}

// refreshTasks rebuilds the tray list from the registry, keeping the cursor in range.
func (m *Model) refreshTasks() {
	preview := m.deps.Registry.PreviewTask()
	all := m.deps.Registry.Tasks()
	items := make([]list.Item, len(all))
	for i, t := range all {
		items[i] = taskItem{task: t, previewed: preview != nil && preview.TaskID == t.TaskID}
	}
	index := m.taskList.Index()
	m.taskList.SetItems(items)
	if index >= len(items) && len(items) > 0 {
		m.taskList.Select(len(items) - 1)
	}
}

func (m *Model) refreshTask(taskID string) tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg(taskID, m.deps.Registry.RefreshTask(m.ctx, taskID))
	}
}

func (m *Model) syncAll(scheduled bool) tea.Cmd {
	return func() tea.Msg {
		return syncDoneMsg(m.deps.Registry.SyncAll(m.ctx, nil), scheduled)
	}
}

func (m *Model) scheduleSync() tea.Cmd {
	if m.deps.SyncInterval <= 0 {
		return nil
	}
	return tea.Tick(m.deps.SyncInterval, func(time.Time) tea.Msg { return syncTickMsg() })
}

func (m *Model) waitForNotification() tea.Cmd {
	ch := m.deps.Notifier.Notifications()
	return func() tea.Msg {
		select {
		case n := <-ch:
			return notificationMsg(n)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) setStatus(level shared.Level, title, message string) {
	m.status = &shared.Notification{Level: level, Title: title, Message: message}
}

func (m *Model) quit() tea.Cmd {
	m.closeGenerate()
	return tea.Quit
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case TrayView:
		m.taskList, cmd = m.taskList.Update(msg)
	case FeedView:
		m.feedList, cmd = m.feedList.Update(msg)
	}
	return m, cmd
}

func (m *Model) renderTray() string {
	var b strings.Builder
	b.WriteString(m.taskList.View())
	if m.syncing || m.busy > 0 {
		b.WriteString("\n" + m.spinner.View() + " syncing…")
	}
	helpKeys := []key.Binding{
		m.keys.preview, m.keys.refresh, m.keys.sync, m.keys.discard, m.keys.use,
		m.keys.generate, m.keys.publish, m.keys.feed, m.keys.quit,
	}
	b.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderStatus() string {
	if m.status == nil {
		return ""
	}
	text := m.status.Title
	if m.status.Message != "" {
		text += ": " + m.status.Message
	}
	return styles.level(m.status.Level).Render(text)
}
