package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vgen/internal/formatter"
	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/publish"
	"github.com/desertthunder/vgen/internal/shared"
)

var fieldLabels = []string{"Title", "Description", "Tags", "Video file", "Cover file"}

// openForm shows the creation form, consuming a pending handoff first.
func (m *Model) openForm() tea.Cmd {
	m.view = FormView
	m.deps.Form.Sync(m.deps.Registry.Handoff())

	state := m.deps.Form.State()
	m.inputs[fieldTitle].SetValue(state.Metadata.Title)
	m.inputs[fieldDescription].SetValue(state.Metadata.Description)
	m.inputs[fieldTags].SetValue(strings.Join(state.Metadata.Tags, ", "))
	m.inputs[fieldVideo].SetValue(state.VideoPath)
	m.inputs[fieldCover].SetValue(state.CoverPath)

	cmds := []tea.Cmd{m.focusField(fieldTitle)}
	if state.Mode != publish.ModeEmpty && !state.Probed {
		cmds = append(cmds, m.probe())
	}
	return tea.Batch(cmds...)
}

// fieldCount hides the file fields while the form holds a generated result.
func (m *Model) fieldCount() int {
	if m.deps.Form.State().Mode == publish.ModeGenerated {
		return fieldTags + 1
	}
	return len(m.inputs)
}

func (m *Model) focusField(i int) tea.Cmd {
	for j := range m.inputs {
		m.inputs[j].Blur()
	}
	m.focus = i
	return m.inputs[i].Focus()
}

func (m *Model) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.commitForm()
		m.view = TrayView
		m.refreshTasks()
		return m, nil
	case key.Matches(msg, m.keys.next):
		return m, m.focusField((m.focus + 1) % m.fieldCount())
	case key.Matches(msg, m.keys.prev):
		n := m.fieldCount()
		return m, m.focusField((m.focus + n - 1) % n)
	case key.Matches(msg, m.keys.submit):
		return m, m.submitForm()
	case key.Matches(msg, m.keys.enter):
		if m.focus == m.fieldCount()-1 {
			return m, m.submitForm()
		}
		return m, m.focusField(m.focus + 1)
	}

	if m.publishing {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// commitForm copies the inputs into the form. Changed file paths switch it to the upload path.
func (m *Model) commitForm() {
	m.deps.Form.SetMetadata(models.VideoMetadata{
		Title:       m.inputs[fieldTitle].Value(),
		Description: m.inputs[fieldDescription].Value(),
		Tags:        models.ParseTags(m.inputs[fieldTags].Value()),
	})
	state := m.deps.Form.State()
	if state.Mode == publish.ModeGenerated {
		return
	}
	video := strings.TrimSpace(m.inputs[fieldVideo].Value())
	cover := strings.TrimSpace(m.inputs[fieldCover].Value())
	if video != state.VideoPath || cover != state.CoverPath {
		m.deps.Form.SelectFiles(video, cover)
	}
}

func (m *Model) submitForm() tea.Cmd {
	if m.publishing {
		return nil
	}
	if m.deps.Reconciler == nil {
		m.setStatus(shared.LevelWarn, "Publishing unavailable", "no catalog is configured")
		return nil
	}
	m.commitForm()
	m.publishing = true
	return func() tea.Msg {
		res, err := m.deps.Form.Submit(m.ctx, m.deps.Reconciler)
		return publishDoneMsg(res, err)
	}
}

func (m *Model) probe() tea.Cmd {
	if m.deps.Reconciler == nil {
		return nil
	}
	return func() tea.Msg {
		return probeDoneMsg(m.deps.Form.Probe(m.ctx, m.deps.Reconciler.Prober))
	}
}

func (m *Model) handlePublishDone(res publishResult) (tea.Model, tea.Cmd) {
	m.publishing = false
	if res.err != nil {
		return m, nil
	}
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	m.view = TrayView
	m.refreshTasks()
	return m, nil
}

func (m *Model) renderForm() string {
	state := m.deps.Form.State()

	var b strings.Builder
	b.WriteString(styles.title.Render("Create a post"))
	b.WriteString("\n")
	switch state.Mode {
	case publish.ModeGenerated:
		b.WriteString(fmt.Sprintf("Generated result %s\n%s\n\n", state.Generated.TaskID, state.Generated.VideoURL))
	case publish.ModeUpload:
		b.WriteString("Uploading local files\n\n")
	default:
		b.WriteString(styles.help.Render("Select a video file or use a generated result") + "\n\n")
	}

	for i := 0; i < m.fieldCount(); i++ {
		label := styles.label.Render(fieldLabels[i])
		if i == m.focus {
			label = styles.active.Render(fieldLabels[i])
		}
		b.WriteString(label + " " + m.inputs[i].View() + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.publishing:
		b.WriteString(m.spinner.View() + " publishing…")
	case state.Mode == publish.ModeEmpty:
	case !state.Probed:
		b.WriteString(m.spinner.View() + " reading media…")
	default:
		b.WriteString(styles.help.Render(fmt.Sprintf("%s • %s",
			formatter.FormatDuration(state.Attributes.Duration), formatter.FormatAspectRatio(state.Attributes.AspectRatio))))
	}

	helpKeys := []key.Binding{m.keys.next, m.keys.submit, m.keys.back}
	b.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}
