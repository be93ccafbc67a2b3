// Package tui is the terminal interaction shell: a chat transcript with a
// streaming answer, a reset key and the memory and tool-log debug panes.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"research-assistant/llm/render"
	"research-assistant/llm/services/conversations"
)

// Pane is the debug view shown next to the transcript.
type Pane int

const (
	PaneNone Pane = iota
	PaneMemory
	PaneTools
)

// Options configure the shell.
type Options struct {
	// Model is shown in the header.
	Model string
	// GlamourStyle is a glamour standard style; empty picks one from the
	// terminal background.
	GlamourStyle string
	Styles       *Styles
}

// Messages for tea updates.
type (
	deltaMsg  string
	toolMsg   conversations.ToolLogEntry
	answerMsg struct {
		answer *conversations.Answer
		err    error
	}
	resetMsg struct {
		session *conversations.Session
		err     error
	}
	// streamClosedMsg ends the listener after the answer arrived.
	streamClosedMsg struct{}
)

// Model is the bubbletea model of the chat shell.
type Model struct {
	manager *conversations.Manager
	session *conversations.Session
	opts    Options
	styles  Styles

	input    textinput.Model
	viewport viewport.Model
	debug    viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	pane      Pane
	streaming bool
	partial   strings.Builder
	events    chan tea.Msg
	cancel    context.CancelFunc
	status    string
	err       error
	width     int
	height    int
}

// New creates the shell for a fresh session of manager.
func New(manager *conversations.Manager, opts Options) (*Model, error) {
	session, err := manager.Create()
	if err != nil {
		return nil, err
	}
	styles := DefaultStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}

	ti := textinput.New()
	ti.Placeholder = "Ask the team... (Enter to send, Ctrl+R reset, Esc to quit)"
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Spinner))

	m := &Model{
		manager:  manager,
		session:  session,
		opts:     opts,
		styles:   styles,
		input:    ti,
		viewport: viewport.New(80, 20),
		debug:    viewport.New(40, 20),
		spinner:  sp,
	}
	if err := m.setRenderer(80); err != nil {
		return nil, err
	}
	m.refresh()
	return m, nil
}

// Session returns the current session.
func (m *Model) Session() *conversations.Session { return m.session }

func (m *Model) setRenderer(width int) error {
	if width < 20 {
		width = 20
	}
	opt := glamour.WithAutoStyle()
	if m.opts.GlamourStyle != "" {
		opt = glamour.WithStylePath(m.opts.GlamourStyle)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(width))
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	m.renderer = r
	return nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyCtrlR:
			if m.streaming {
				m.status = "Wait for the current answer before resetting."
				return m, nil
			}
			return m, m.reset()
		case tea.KeyCtrlT:
			m.toggle(PaneTools)
			return m, nil
		case tea.KeyCtrlO:
			m.toggle(PaneMemory)
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case deltaMsg:
		m.partial.WriteString(string(msg))
		m.refresh()
		return m, m.listen()

	case toolMsg:
		m.refreshDebug()
		return m, m.listen()

	case answerMsg:
		m.streaming = false
		m.partial.Reset()
		m.cancel = nil
		m.err = msg.err
		m.status = ""
		m.refresh()
		return m, m.listen()

	case streamClosedMsg:
		m.events = nil
		return m, nil

	case resetMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.session = msg.session
			m.err = nil
			m.status = "Started a fresh session. Memory cleared."
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width, m.height = width, height
	m.input.Width = max(width-4, 10)

	body := max(height-5, 3)
	mainWidth := width
	if m.pane != PaneNone {
		mainWidth = width * 3 / 5
		m.debug.Width = max(width-mainWidth-4, 10)
		m.debug.Height = max(body-2, 1)
	}
	m.viewport.Width = mainWidth
	m.viewport.Height = body
	_ = m.setRenderer(mainWidth - 4)
	m.refresh()
}

// toggle opens or closes a debug pane. The session settings follow the open
// pane, so tool calls are only recorded while the tool pane is visible.
func (m *Model) toggle(p Pane) {
	if m.pane == p {
		m.pane = PaneNone
	} else {
		m.pane = p
	}
	m.session.UpdateSettings(conversations.Settings{
		ShowMemory:   m.pane == PaneMemory,
		ShowToolLogs: m.pane == PaneTools,
	})
	m.resize(m.width, m.height)
	m.refreshDebug()
}

// submit starts a query. The team runs in a goroutine and reports through
// events, which listen drains one message at a time.
func (m *Model) submit() tea.Cmd {
	query := strings.TrimSpace(m.input.Value())
	if query == "" || m.streaming {
		return nil
	}
	m.input.Reset()
	m.streaming = true
	m.err = nil
	m.status = ""
	m.partial.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	events := make(chan tea.Msg, 64)
	m.events = events
	session := m.session

	go func() {
		defer close(events)
		defer cancel()
		send := func(msg tea.Msg) {
			select {
			case events <- msg:
			case <-ctx.Done():
			}
		}
		sink := conversations.SinkFuncs{
			Delta: func(text string) { send(deltaMsg(text)) },
			Tool:  func(e conversations.ToolLogEntry) { send(toolMsg(e)) },
		}
		ans, err := session.Ask(ctx, query, sink)
		send(answerMsg{answer: ans, err: err})
	}()

	m.refresh()
	return tea.Batch(m.listen(), m.spinner.Tick)
}

func (m *Model) listen() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return msg
	}
}

func (m *Model) reset() tea.Cmd {
	manager, id := m.manager, m.session.ID()
	return func() tea.Msg {
		s, err := manager.Reset(context.Background(), id)
		return resetMsg{session: s, err: err}
	}
}

func (m *Model) markdown(s string) string {
	out, err := m.renderer.Render(s)
	if err != nil {
		return s
	}
	return strings.TrimRight(out, "\n")
}

// Transcript renders the conversation as shown in the main view.
func (m *Model) Transcript() string {
	var b strings.Builder
	turns := m.session.Turns()
	if len(turns) == 0 && !m.streaming {
		b.WriteString(m.markdown(intro()))
	}
	for _, t := range turns {
		switch {
		case t.Role == conversations.RoleUser:
			b.WriteString(m.styles.User.Render("You: ") + t.Content)
		case t.Error:
			b.WriteString(m.styles.Error.Render(t.Content))
		default:
			b.WriteString(m.markdown(t.Content))
		}
		b.WriteString("\n\n")
	}
	if m.streaming {
		b.WriteString(m.markdown(m.partial.String() + render.Cursor))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.Transcript())
	m.viewport.GotoBottom()
	m.refreshDebug()
}

// DebugText renders the content of the open debug pane.
func (m *Model) DebugText() string {
	switch m.pane {
	case PaneMemory:
		return m.session.MemoryDump()
	case PaneTools:
		entries := m.session.ToolLog()
		if len(entries) == 0 {
			return "No tool calls recorded yet."
		}
		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = fmt.Sprintf("[%s] %s", e.Agent, e.Text)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func (m *Model) refreshDebug() {
	m.debug.SetContent(m.DebugText())
}

func (m *Model) View() string {
	header := m.styles.Header.Render("Research Assistant Team")
	if m.opts.Model != "" {
		header += m.styles.Subtle.Render(" · " + m.opts.Model)
	}
	header += m.styles.Subtle.Render(" · " + m.session.ID())

	body := m.viewport.View()
	if m.pane != PaneNone {
		title := "Team memory"
		if m.pane == PaneTools {
			title = "Tool calls"
		}
		pane := m.styles.Pane.Render(m.styles.PaneTitle.Render(title) + "\n" + m.debug.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, pane)
	}

	var status string
	switch {
	case m.streaming:
		status = m.spinner.View() + " The team is working on it..."
	case m.err != nil:
		status = m.styles.Error.Render("An error occurred. Please check your API keys and try again.")
	case m.status != "":
		status = m.styles.Subtle.Render(m.status)
	}

	help := m.styles.Help.Render("enter send · ctrl+r reset · ctrl+o memory · ctrl+t tool logs · pgup/pgdn scroll · esc quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status, m.input.View(), help)
}

func intro() string {
	var b strings.Builder
	b.WriteString("# Research Assistant Team\n\nAsk me anything and my team of specialists will research it for you.\n\n")
	for _, c := range conversations.Capabilities {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\n**Try:**\n\n")
	for _, ex := range conversations.Examples {
		b.WriteString(fmt.Sprintf("- %s *(%s)*\n", ex.Query, ex.Uses))
	}
	b.WriteString("\n" + conversations.MemoryNote + "\n")
	return b.String()
}

// Run starts the shell on the terminal and blocks until the user quits.
func Run(ctx context.Context, manager *conversations.Manager, opts Options) error {
	m, err := New(manager, opts)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
