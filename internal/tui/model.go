package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cabot/internal/domain"
	"cabot/internal/service"
	"cabot/internal/session"
)

const sidebarWidth = 44

type focus int

const (
	focusInput focus = iota
	focusSamples
)

// turnMsg carries a finished turn back into the update loop.
type turnMsg struct{ turn service.Turn }

// Model is the Bubble Tea model for the chat screen. It is Idle until a
// question is submitted, Awaiting until the turn returns, then Idle again.
type Model struct {
	ctx      context.Context
	asker    session.Asker
	session  *session.Session
	samples  []string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	entries  []session.Entry
	pending  string
	awaiting bool
	focus    focus
	cursor   int
	status   string
	ready    bool
}

// New creates the chat model for one session.
func New(ctx context.Context, asker session.Asker, sess *session.Session, samples []string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask me anything about your documents..."
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		asker:    asker,
		session:  sess,
		samples:  samples,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Enter to ask, tab for sample questions, ctrl+l to clear, ctrl+c to quit.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and turn events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + 1 + qh // header, stats, status
		m.viewport.Width = max(20, msg.Width-sidebarWidth-4)
		m.viewport.Height = max(3, msg.Height-reserved-th-1)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case turnMsg:
		m.awaiting = false
		m.pending = ""
		m.entries = m.session.Transcript()
		if msg.turn.Failed() {
			m.status = "Last question failed; the conversation history was not changed."
		} else {
			m.status = fmt.Sprintf("Answered using %d source(s).", len(msg.turn.Sources))
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if !m.awaiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			if m.focus == focusInput {
				m.focus = focusSamples
				m.input.Blur()
			} else {
				m.focus = focusInput
				m.input.Focus()
			}
			return m, nil
		case "ctrl+l":
			if m.awaiting {
				return m, nil
			}
			m.session.Clear()
			m.entries = nil
			m.status = "Conversation cleared."
			m.viewport.SetContent(m.renderTranscript())
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.focus == focusSamples {
			return m.updateSamples(msg)
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			switch strings.ToLower(q) {
			case "":
				return m, nil
			case "exit", "quit":
				return m, tea.Quit
			}
			m.input.SetValue("")
			return m.submit(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSamples(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.samples) == 0 {
		return m, nil
	}
	switch msg.String() {
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.samples)) % len(m.samples)
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(m.samples)
	case "enter":
		return m.submit(m.samples[m.cursor])
	}
	return m, nil
}

func (m Model) submit(q string) (tea.Model, tea.Cmd) {
	if m.awaiting {
		m.status = "Still thinking about the previous question..."
		return m, nil
	}
	m.awaiting = true
	m.pending = q
	m.status = "Thinking..."
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	ctx, asker, sess := m.ctx, m.asker, m.session
	ask := func() tea.Msg {
		return turnMsg{turn: sess.Ask(ctx, asker, q)}
	}
	return m, tea.Batch(ask, m.spinner.Tick)
}

// View renders the transcript, sidebar, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Initializing CA Bot..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("CA Bot")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, transcript, m.renderSidebar())
	input := queryBoxStyle.Render(m.input.View())
	// the session is locked for the whole turn, so it is not read while awaiting
	stats := session.Stats{MessagesExchanged: len(m.entries), ContextHistory: -1}
	if !m.awaiting {
		stats = m.session.Stats()
	}
	status := m.status
	if m.awaiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + body + "\n" + input + "\n" +
		mutedStyle.Render(renderStats(stats)) + "\n" +
		statusStyle.Render(status)
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 && m.pending == "" {
		return mutedStyle.Render("No messages yet. Ask a question or pick a sample.")
	}
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for _, e := range m.entries {
		b.WriteString(renderEntry(e, width))
		b.WriteString("\n\n")
	}
	if m.pending != "" {
		b.WriteString(renderEntry(session.Entry{Role: domain.RoleUser, Content: m.pending}, width))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEntry(e session.Entry, width int) string {
	text := lipgloss.NewStyle().Width(width).Render(e.Content)
	switch {
	case e.Role == domain.RoleUser:
		return userStyle.Render("You") + "\n" + text
	case e.IsError:
		return errorStyle.Render("CA Bot (error)") + "\n" + text
	default:
		return botStyle.Render("CA Bot") + "\n" + text
	}
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Sample Questions"))
	b.WriteString("\n")
	for i, q := range m.samples {
		line := "  " + q
		if m.focus == focusSamples && i == m.cursor {
			line = highlightStyle.Render("> " + q)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return sidebarStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func renderStats(s session.Stats) string {
	history := fmt.Sprint(s.ContextHistory)
	if s.ContextHistory < 0 {
		history = "..."
	}
	return fmt.Sprintf("Messages Exchanged: %d  Context History: %s", s.MessagesExchanged, history)
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sidebarStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(sidebarWidth)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
