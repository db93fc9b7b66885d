package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// openGenerate opens the generation dialog with a fresh session.
//
// The session registers its job with the registry as soon as the gateway accepts it, so closing the dialog
// mid-generation leaves the job tracked in the tray.
func (m *Model) openGenerate() tea.Cmd {
	m.dialog++
	m.view = GenerateView
	m.generating = false
	m.genProgress = tasks.ProgressUpdate{}
	m.genSnapshot = tasks.Snapshot{}
	m.genUpdates = make(chan tasks.ProgressUpdate, 16)
	m.session = tasks.NewSession(m.deps.Gateway,
		tasks.WithPollPolicy(m.deps.Policy),
		tasks.WithProgress(m.genUpdates),
		tasks.WithSessionLogger(m.deps.Logger),
		tasks.WithTaskCreated(func(taskID string) {
			m.deps.Registry.AddTask(taskID, nil)
		}),
		tasks.WithStatusObserver(func(taskID string, status *services.JobStatus) {
			m.deps.Registry.UpdateTask(taskID, status.Patch())
		}),
	)
	m.prompt.Reset()
	return m.prompt.Focus()
}

// closeGenerate abandons the local poll loop and resets the session. The remote job is not cancelled.
func (m *Model) closeGenerate() {
	if m.cancelGen != nil {
		m.cancelGen()
		m.cancelGen = nil
	}
	if m.session != nil {
		m.session.Reset()
	}
	m.generating = false
	m.genWait = nil
	m.prompt.Blur()
}

func (m *Model) handleGenerateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.closeGenerate()
		m.session = nil
		m.view = TrayView
		m.refreshTasks()
		return m, nil

	case key.Matches(msg, m.keys.enter):
		switch {
		case m.generating:
			return m, nil
		case m.genSnapshot.State == tasks.StateSucceeded:
			return m, m.acceptGenerated()
		case m.genSnapshot.State == tasks.StateFailed:
			m.session.Reset()
			m.genSnapshot = tasks.Snapshot{}
			return m, m.prompt.Focus()
		default:
			return m, m.startGeneration()
		}
	}

	if m.generating || m.genSnapshot.State.Terminal() {
		return m, nil
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// startGeneration runs the session on a goroutine and streams its progress back into the model.
//
// Progress left in the channel when the result arrives is dropped; the final snapshot supersedes it.
func (m *Model) startGeneration() tea.Cmd {
	req := m.deps.Defaults
	req.Prompt = m.prompt.Value()
	if err := req.WithDefaults().Validate(); err != nil {
		m.setStatus(shared.LevelWarn, "Check the prompt", err.Error())
		return nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelGen = cancel
	m.generating = true
	m.prompt.Blur()

	dialog := m.dialog
	session := m.session
	done := make(chan generationResult, 1)
	m.genProgress = tasks.ProgressUpdate{Phase: tasks.PhaseCreate, Message: "Submitting…"}

	go func() {
		taskID, err := session.Start(ctx, req)
		if err == nil {
			err = session.Poll(ctx, taskID)
		}
		done <- generationResult{dialog: dialog, snapshot: session.Snapshot(), err: err}
	}()

	m.genWait = waitForGeneration(dialog, m.genUpdates, done)
	return m.genWait
}

// waitForGeneration relays either the next progress update or the final result.
func waitForGeneration(dialog int, progress <-chan tasks.ProgressUpdate, done <-chan generationResult) tea.Cmd {
	return func() tea.Msg {
		select {
		case update := <-progress:
			return progressUpdateMsg(dialog, update)
		case res := <-done:
			return generationDoneMsg(res)
		}
	}
}

func (m *Model) handleGenerationDone(res generationResult) (tea.Model, tea.Cmd) {
	if res.dialog != m.dialog {
		return m, nil
	}
	m.generating = false
	m.cancelGen = nil
	m.genWait = nil
	m.genSnapshot = res.snapshot
	m.refreshTasks()

	switch {
	case res.err == nil:
		m.setStatus(shared.LevelSuccess, "Video ready", res.snapshot.TaskID)
	case errors.Is(res.err, context.Canceled):
	case errors.Is(res.err, shared.ErrValidation):
		m.setStatus(shared.LevelWarn, "Check the prompt", res.err.Error())
	default:
		m.setStatus(shared.LevelError, "Generation failed", tasks.ErrorMessage(res.err))
	}
	return m, nil
}

// acceptGenerated hands the dialog's result straight to the creation form.
func (m *Model) acceptGenerated() tea.Cmd {
	snap := m.genSnapshot
	m.deps.Form.ApplyGenerated(models.PendingUseResult{TaskID: snap.TaskID, VideoURL: snap.VideoURL, CoverURL: snap.CoverURL})
	m.closeGenerate()
	m.session = nil
	m.genSnapshot = tasks.Snapshot{}
	return m.openForm()
}

func (m *Model) renderGenerate() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Generate a video"))
	b.WriteString("\n")
	b.WriteString(m.prompt.View())
	b.WriteString("\n\n")

	req := m.deps.Defaults.WithDefaults()
	b.WriteString(styles.help.Render(fmt.Sprintf("%s • %s • %ds • %dfps", req.Resolution, req.AspectRatio, req.Duration, req.FPS)))
	b.WriteString("\n\n")

	var helpKeys []key.Binding
	switch {
	case m.generating:
		b.WriteString(m.spinner.View() + " " + m.genProgress.Message)
		helpKeys = []key.Binding{m.keys.back}
	case m.genSnapshot.State == tasks.StateSucceeded:
		b.WriteString(styles.ok.Render("✓ Video ready") + "\n" + m.genSnapshot.VideoURL)
		helpKeys = []key.Binding{key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "use result")), m.keys.back}
	case m.genSnapshot.State == tasks.StateFailed:
		b.WriteString(styles.err.Render("✗ " + m.genSnapshot.Error))
		helpKeys = []key.Binding{key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "try again")), m.keys.back}
	default:
		helpKeys = []key.Binding{key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "generate")), m.keys.back}
	}

	b.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}
