package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/mahaj/feedsync/internal/feed"
	"github.com/mahaj/feedsync/pkg/model"
)

const statusInterval = 500 * time.Millisecond

// Feed is the part of *feed.Feed the UI drives.
type Feed interface {
	Submit(text string) (string, error)
	Reveal()
	State() feed.State
}

type changedMsg struct{}

type tickMsg time.Time

type theme struct {
	header    lipgloss.Style
	user      lipgloss.Style
	system    lipgloss.Style
	timestamp lipgloss.Style
	pending   lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
	help      lipgloss.Style
	minimized lipgloss.Style
	badge     lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")
	pink := lipgloss.Color("#ff71ce")
	return theme{
		header:    lipgloss.NewStyle().Foreground(accent).Bold(true),
		user:      lipgloss.NewStyle().Foreground(mint).Bold(true),
		system:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		timestamp: lipgloss.NewStyle().Foreground(muted),
		pending:   lipgloss.NewStyle().Faint(true),
		status:    lipgloss.NewStyle().Foreground(accent),
		errStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		help:      lipgloss.NewStyle().Foreground(muted),
		minimized: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		badge: lipgloss.NewStyle().Foreground(lipgloss.Color("#22062f")).Background(pink).Bold(true).Padding(0, 1),
	}
}

// Model is the bubbletea model for the feed window.
type Model struct {
	feed  Feed
	board *Board
	user  string

	input    textinput.Model
	timeline viewport.Model
	theme    theme

	state  feed.State
	notice string
	width  int
}

func New(f Feed, b *Board, user string) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.Placeholder = "Say something"
	input.CharLimit = 2000
	input.Focus()

	timeline := viewport.New(80, 20)
	timeline.MouseWheelEnabled = true

	m := Model{
		feed:     f,
		board:    b,
		user:     user,
		input:    input,
		timeline: timeline,
		theme:    newTheme(),
		state:    f.State(),
		width:    80,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitChanged(m.board.Changed()), tickEvery(statusInterval))
}

func waitChanged(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.timeline.Width = msg.Width
		m.timeline.Height = max(1, msg.Height-4)
		m.input.Width = max(1, msg.Width-4)
		m.refresh()
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitChanged(m.board.Changed())

	case tickMsg:
		m.state = m.feed.State()
		return m, tickEvery(statusInterval)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+n":
			m.toggle()
			return m, nil
		case "enter":
			if m.board.Hidden() {
				return m, nil
			}
			m.submit()
			return m, nil
		}
		if m.board.Hidden() {
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.timeline, cmd = m.timeline.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) submit() {
	_, err := m.feed.Submit(m.input.Value())
	switch {
	case errors.Is(err, feed.ErrEmptyMessage):
		return
	case err != nil:
		m.notice = err.Error()
		return
	}
	m.notice = ""
	m.input.Reset()
	m.refresh()
	m.timeline.GotoBottom()
}

// toggle minimizes or restores the window. Restoring clears the unread count.
func (m *Model) toggle() {
	if m.board.Hidden() {
		m.board.SetHidden(false)
		m.feed.Reveal()
		m.input.Focus()
		m.refresh()
		m.timeline.GotoBottom()
		return
	}
	m.board.SetHidden(true)
	m.input.Blur()
}

func (m *Model) refresh() {
	follow := m.timeline.AtBottom()
	entries := m.board.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = m.formatEntry(e)
	}
	m.timeline.SetContent(strings.Join(lines, "\n"))
	if follow {
		m.timeline.GotoBottom()
	}
}

// formatEntry renders one message. User and text come from the network and
// are stripped of escape sequences before styling.
func (m Model) formatEntry(e model.Message) string {
	user := ansi.Strip(e.User)
	text := ansi.Strip(e.Text)
	ts := m.theme.timestamp.Render(clockTime(e.Timestamp))

	// Trusted only because the gateway refuses "System" as a display name.
	if e.User == model.SystemUser {
		return ts + " " + m.theme.system.Render(text)
	}
	line := ts + " " + m.theme.user.Render(user) + ": " + text
	if e.Pending {
		return m.theme.pending.Render(line + " (sending)")
	}
	return line
}

// clockTime shows a timestamp as local HH:MM:SS. Anything unparsable is shown
// as a placeholder.
func clockTime(ts string) string {
	if ts == "" {
		return "--:--:--"
	}
	t, err := time.Parse(model.TimestampLayout, ts)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return "--:--:--"
		}
	}
	return t.Local().Format("15:04:05")
}

func (m Model) View() string {
	if m.board.Hidden() {
		line := "feed minimized  ctrl+n to restore"
		if n := m.board.Unread(); n > 0 {
			line = m.theme.badge.Render(fmt.Sprintf("%d unread", n)) + "  " + line
		}
		return m.theme.minimized.Render(line) + "\n"
	}

	var b strings.Builder
	b.WriteString(m.theme.header.Render("feedsync") + "  " + ansi.Strip(m.user) + "  " + m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.timeline.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	help := "enter send  ctrl+n minimize  esc quit"
	if m.notice != "" {
		help = m.theme.errStatus.Render(m.notice) + "  " + help
	}
	b.WriteString(m.theme.help.Render(help))
	return b.String()
}

func (m Model) statusLine() string {
	if m.state == feed.StateDisconnected {
		return m.theme.errStatus.Render(m.state.String())
	}
	return m.theme.status.Render(m.state.String())
}
