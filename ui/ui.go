// Package ui provides the terminal front end of the tutor.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/coordinator"
	"github.com/dgnsrekt/habla/internal/ttypes"
)

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, ctrl Controller) *tea.Program {
	log.Debug("Starting habla", "translate", cfg.Translate)
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithReportFocus()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, ctrl), opts...)
}

type model struct {
	cfg  Config
	ctrl Controller
	feed *snapshotFeed
	vis  *visibilityPump
	keys keyMap

	snap     coordinator.Snapshot
	selected int

	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model

	width  int
	height int
	ready  bool
	notice string
}

func newModel(cfg Config, ctrl Controller) model {
	feed := newSnapshotFeed()
	ctrl.Subscribe(feed.push)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = statusStyle

	return model{
		cfg:      cfg,
		ctrl:     ctrl,
		feed:     feed,
		vis:      newVisibilityPump(),
		keys:     defaultKeyMap(),
		snap:     ctrl.Snapshot(),
		selected: -1,
		spinner:  sp,
		help:     help.New(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.feed.wait(), m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vh := m.height - lipgloss.Height(m.headerView()) - lipgloss.Height(m.footerView())
		if vh < 1 {
			vh = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vh)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vh
		}
		m.refresh(true)

	case snapshotMsg:
		follow := m.viewport.AtBottom() || len(msg.Messages) != len(m.snap.Messages)
		m.snap = coordinator.Snapshot(msg)
		if m.selected >= len(m.snap.Messages) {
			m.selected = len(m.snap.Messages) - 1
		}
		m.refresh(follow)
		cmds = append(cmds, m.feed.wait())

	case actionMsg:
		if msg.err != nil && !ttypes.IsSilent(msg.err) {
			m.notice = ttypes.Status(msg.err)
			log.Debug("action failed", "action", msg.action, "err", msg.err)
		}

	case copiedMsg:
		if msg.err != nil {
			m.notice = "Could not copy to the clipboard."
		} else {
			m.notice = "Copied."
		}

	case tea.FocusMsg:
		m.vis.send(m.ctrl.Visible)

	case tea.BlurMsg:
		m.vis.send(m.ctrl.Hidden)

	case tea.ResumeMsg:
		m.vis.send(m.ctrl.Visible)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if msg.String() == "ctrl+z" {
			// Leaving the terminal counts as backgrounding the app.
			m.vis.send(m.ctrl.Hidden)
			return m, tea.Suspend
		}
		if msg.String() == "pgup" || msg.String() == "pgdown" {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		cmd := m.handleKey(msg)
		return m, cmd
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	m.notice = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit

	case key.Matches(msg, m.keys.Talk):
		if m.snap.State == coordinator.StateRecording {
			return releaseCmd(m.ctrl)
		}
		return pressCmd(m.ctrl)

	case key.Matches(msg, m.keys.Cancel):
		return cancelCmd(m.ctrl)

	case key.Matches(msg, m.keys.Resume):
		if m.snap.Visibility == coordinator.VisibilityReady {
			return nil
		}
		return resumeCmd(m.ctrl)

	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)

	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)

	case key.Matches(msg, m.keys.Tap):
		if id, ok := m.selectedID(); ok {
			return tapCmd(m.ctrl, id)
		}

	case key.Matches(msg, m.keys.Stop):
		if id, ok := m.selectedID(); ok {
			return stopBubbleCmd(m.ctrl, id)
		}

	case key.Matches(msg, m.keys.Copy):
		if m.selected >= 0 && m.selected < len(m.snap.Messages) {
			return copyCmd(m.snap.Messages[m.selected].Text)
		}

	case key.Matches(msg, m.keys.New):
		m.selected = -1
		return resetCmd(m.ctrl)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		if m.ready {
			m.viewport.Height = m.height - lipgloss.Height(m.headerView()) - lipgloss.Height(m.footerView())
		}
	}
	return nil
}

func (m *model) moveSelection(delta int) {
	n := len(m.snap.Messages)
	if n == 0 {
		m.selected = -1
		return
	}
	if m.selected < 0 {
		m.selected = n - 1
	} else {
		m.selected += delta
	}
	m.selected = max(0, min(n-1, m.selected))
	m.refresh(false)
}

func (m model) selectedID() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.snap.Messages) {
		return "", false
	}
	return m.snap.Messages[m.selected].ID, true
}

// refresh re-renders the conversation into the viewport.
func (m *model) refresh(follow bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.conversationView())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m model) conversationView() string {
	if len(m.snap.Messages) == 0 {
		return subtleStyle.Render("\n  Press space to talk. Press it again to send.")
	}
	maxWidth := min(m.cfg.BubbleWidth, m.width-2)
	parts := make([]string, 0, len(m.snap.Messages))
	for i, msg := range m.snap.Messages {
		parts = append(parts, renderBubble(bubbleView{
			msg:      msg,
			revealed: m.snap.Revealed[msg.ID],
			selected: i == m.selected,
			playing:  m.snap.Playing == msg.ID,
		}, maxWidth, m.width))
	}
	return strings.Join(parts, "\n")
}

func (m model) View() string {
	if !m.ready {
		return m.spinner.View() + " starting…"
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	title := titleStyle.Render("habla")
	mode := "es"
	if m.cfg.Translate {
		mode = "es → en"
	}
	header := title + " " + subtleStyle.Render(mode)
	if m.cfg.ShowOpID {
		header += subtleStyle.Render(fmt.Sprintf(" op %d", m.snap.OpID))
	}
	return header + "\n"
}

func (m model) footerView() string {
	return m.statusLine() + "\n" + m.help.View(m.keys)
}

// statusLine renders the state indicator and any status text.
func (m model) statusLine() string {
	name := m.snap.State.String()
	if m.snap.Visibility != coordinator.VisibilityReady {
		name = m.snap.Visibility.String()
	}
	color, ok := stateColors[name]
	if !ok {
		color = lipgloss.Color("196")
	}
	indicator := lipgloss.NewStyle().Foreground(color).Bold(true).Render("● " + name)

	parts := []string{indicator}
	if m.snap.State == coordinator.StateProcessing {
		parts = append(parts, m.spinner.View())
	}
	text := m.notice
	if text == "" {
		text = m.snap.Status
	}
	if text != "" {
		parts = append(parts, statusStyle.Render(truncate(text, m.width-20)))
	}
	if m.snap.NeedsPrime && m.snap.Visibility == coordinator.VisibilityReady {
		parts = append(parts, subtleStyle.Render("audio resumes on next key"))
	}
	return strings.Join(parts, separator)
}
