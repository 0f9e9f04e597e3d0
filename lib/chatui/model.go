// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/insight-health/insight/lib/render"
	"github.com/insight-health/insight/lib/stream"
)

// Sender is the controller surface the chat model drives.
// stream.Controller implements it.
type Sender interface {
	Send(ctx context.Context, text string, thinking bool) error
	Cancel()
}

// Layout constants.
const (
	sidebarWidth = 30
	// sidebarMinTotal is the terminal width below which the sidebar
	// is dropped entirely.
	sidebarMinTotal = 80

	noticeFadeDelay = 4 * time.Second
)

// Model is the top-level bubbletea model for the chat surface.
type Model struct {
	sender   Sender
	renderer render.Renderer
	theme    Theme
	keys     KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	transcript viewport.Model
	input      textinput.Model
	spinner    spinner.Model

	// Session state mirrored from controller callbacks.
	state    stream.AppState
	team     stream.TeamUpdate
	tools    []stream.ToolCall
	messages []stream.Message

	// Visualization panel.
	artifact  *render.Result
	showPanel bool

	thinking bool
	notice   string
}

// NewModel creates a chat model driving the given sender. The renderer
// turns artifact snapshots into panel content; nil disables the panel.
func NewModel(sender Sender, renderer render.Renderer) Model {
	input := textinput.New()
	input.Placeholder = "Ask about your health data..."
	input.Focus()

	indicator := spinner.New()
	indicator.Spinner = spinner.Dot

	return Model{
		sender:   sender,
		renderer: renderer,
		theme:    DefaultTheme,
		keys:     DefaultKeyMap,
		input:    input,
		spinner:  indicator,
		state:    stream.StateWelcome,
	}
}

// Thinking reports whether extended reasoning is currently requested.
func (model Model) Thinking() bool { return model.thinking }

// SetThinking sets the initial extended-reasoning toggle (from
// config); the user can flip it per message afterwards.
func (model *Model) SetThinking(enabled bool) { model.thinking = enabled }

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, model.spinner.Tick)
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			model.sender.Cancel()
			return model, tea.Quit

		case key.Matches(message, model.keys.Submit):
			return model.submit()

		case key.Matches(message, model.keys.Cancel):
			model.sender.Cancel()

		case key.Matches(message, model.keys.ScrollUp):
			model.transcript.HalfViewUp()

		case key.Matches(message, model.keys.ScrollDown):
			model.transcript.HalfViewDown()

		case key.Matches(message, model.keys.ToggleThinking):
			model.thinking = !model.thinking

		case key.Matches(message, model.keys.TogglePanel):
			model.showPanel = !model.showPanel
			model.layout()

		default:
			var cmd tea.Cmd
			model.input, cmd = model.input.Update(message)
			return model, cmd
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.layout()

	case StateMsg:
		model.state = message.State

	case TeamMsg:
		model.team = message.Team

	case ToolCallsMsg:
		model.tools = message.Tools

	case MessagesMsg:
		model.messages = message.Messages
		model.refreshTranscript()

	case ArtifactMsg:
		if model.renderer == nil {
			break
		}
		result, err := model.renderer.Render(context.Background(), message.Artifact)
		if err != nil {
			break
		}
		model.artifact = &result
		if !model.showPanel {
			model.showPanel = true
			model.layout()
		}

	case NoticeMsg:
		model.notice = message.Text
		return model, tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
			return noticeFadeMsg{}
		})

	case noticeFadeMsg:
		model.notice = ""

	case sendResultMsg:
		// Setup failures also arrive as a NoticeMsg via the bound
		// callbacks; nothing to do here.

	case spinner.TickMsg:
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(message)
		return model, cmd
	}

	return model, nil
}

// submit sends the typed message through the controller on a command
// goroutine, keeping the update loop non-blocking.
func (model Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(model.input.Value())
	if text == "" {
		return model, nil
	}
	model.input.Reset()

	sender := model.sender
	thinking := model.thinking
	return model, func() tea.Msg {
		return sendResultMsg{err: sender.Send(context.Background(), text, thinking)}
	}
}

// layout recomputes component sizes from the terminal dimensions.
func (model *Model) layout() {
	if !model.ready {
		return
	}
	// One header line, one input line, one status line.
	bodyHeight := model.height - 3
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	transcriptHeight := bodyHeight
	if model.panelVisible() {
		transcriptHeight = bodyHeight - model.panelHeight()
	}
	if transcriptHeight < 1 {
		transcriptHeight = 1
	}

	model.transcript.Width = model.transcriptWidth()
	model.transcript.Height = transcriptHeight
	model.input.Width = model.width - 4
	model.refreshTranscript()
}

func (model *Model) transcriptWidth() int {
	if model.sidebarVisible() {
		return model.width - sidebarWidth - 1
	}
	return model.width
}

func (model *Model) sidebarVisible() bool { return model.width >= sidebarMinTotal }

func (model *Model) panelVisible() bool {
	return model.showPanel && model.artifact != nil
}

func (model *Model) panelHeight() int {
	height := model.height / 3
	if height < 5 {
		height = 5
	}
	return height
}

// refreshTranscript re-renders the transcript into the viewport and
// follows the tail.
func (model *Model) refreshTranscript() {
	if !model.ready {
		return
	}
	atBottom := model.transcript.AtBottom()
	model.transcript.SetContent(model.renderTranscript())
	if atBottom {
		model.transcript.GotoBottom()
	}
}

func (model *Model) renderTranscript() string {
	width := model.transcriptWidth()
	var sections []string
	for _, message := range model.messages {
		if message.Content == "" {
			continue
		}
		accent := model.theme.AssistantAccent
		label := "insight"
		if message.Role == stream.RoleUser {
			accent = model.theme.UserAccent
			label = "you"
		}
		header := newStyle().Bold(true).Foreground(accent).Render(label)
		body := renderMarkdown(message.Content, width-2, model.theme)
		sections = append(sections, header+"\n"+body)
	}
	return strings.Join(sections, "\n\n")
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "initializing..."
	}

	body := model.transcript.View()
	if model.panelVisible() {
		body = lipgloss.JoinVertical(lipgloss.Left, body, model.renderPanel())
	}
	if model.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, " ", model.renderSidebar())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		model.renderHeader(),
		body,
		model.renderInput(),
		model.renderStatus(),
	)
}

func (model Model) renderHeader() string {
	title := newStyle().Bold(true).
		Foreground(model.theme.HeaderForeground).
		Render("insight")

	stateText := string(model.state)
	if !model.state.Terminal() && model.state != stream.StateWelcome && model.state != stream.StateIdle {
		stateText = model.spinner.View() + " " + stateText
	}
	stateView := newStyle().
		Foreground(model.theme.StateColor(model.state)).
		Render(stateText)

	gap := model.width - lipgloss.Width(title) - lipgloss.Width(stateView)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + stateView
}

func (model Model) renderSidebar() string {
	faint := newStyle().Foreground(model.theme.FaintText)
	header := newStyle().Bold(true).Foreground(model.theme.HeaderForeground)

	var lines []string
	lines = append(lines, header.Render("specialists"))
	if len(model.team.Members) == 0 {
		lines = append(lines, faint.Render("  none assembled"))
	}
	for _, member := range model.team.Members {
		status := newStyle().
			Foreground(model.theme.MemberColor(member.Status)).
			Render(string(member.Status))
		lines = append(lines, "  "+member.ID+" "+status)
	}

	if len(model.tools) > 0 {
		lines = append(lines, "", header.Render("tools"))
		for _, tool := range model.tools {
			lines = append(lines, "  "+tool.Name+" "+faint.Render(string(tool.Status)))
		}
	}

	if model.team.TraceID != "" {
		lines = append(lines, "", faint.Render("trace "+model.team.TraceID))
	}

	return newStyle().
		Width(sidebarWidth).
		Render(strings.Join(lines, "\n"))
}

func (model Model) renderPanel() string {
	border := newStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Width(model.transcriptWidth() - 2).
		Height(model.panelHeight() - 2)

	title := "visualization"
	if model.artifact.Partial {
		title = "visualization (streaming)"
	}
	titleView := newStyle().Bold(true).
		Foreground(model.theme.HeaderForeground).
		Render(title)

	return border.Render(titleView + "\n" + model.artifact.Text)
}

func (model Model) renderInput() string {
	return "> " + model.input.View()
}

func (model Model) renderStatus() string {
	if model.notice != "" {
		return newStyle().
			Foreground(model.theme.NoticeForeground).
			Background(model.theme.NoticeBackground).
			Render(" " + model.notice + " ")
	}

	help := newStyle().Foreground(model.theme.HelpText)
	thinking := "off"
	if model.thinking {
		thinking = "on"
	}
	return help.Render("enter send · esc cancel · C-t thinking: " + thinking + " · C-v panel · C-c quit")
}
