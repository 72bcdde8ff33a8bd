package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/shsh-chat/internal/chat"
	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const actionTimeout = 30 * time.Second

// demoMessages are the preset messages offered by /demo.
var demoMessages = []string{
	"Hello, World!",
	"How are you today?",
	"This is a WebSocket demo",
	"Real-time communication is awesome!",
	"Next.js + WebSocket = ❤️",
}

const helpText = "/connect · /disconnect · /clear · /demo N · /quit · enter sends"

type storeEventMsg struct {
	event store.Event
}

type storeClosedMsg struct{}

type actionDoneMsg struct {
	status string
	err    error
}

type uiTheme struct {
	header      lipgloss.Style
	panel       lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	connected   lipgloss.Style
	offline     lipgloss.Style
	errorStatus lipgloss.Style
	helpText    lipgloss.Style
	origin      map[domain.Origin]lipgloss.Style
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		header: lipgloss.NewStyle().
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		footer:      lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		connected:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		offline:     lipgloss.NewStyle().Foreground(muted).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		helpText:    lipgloss.NewStyle().Foreground(muted),
		origin: map[domain.Origin]lipgloss.Style{
			domain.OriginUser:   lipgloss.NewStyle().Foreground(blue).Bold(true),
			domain.OriginSystem: lipgloss.NewStyle().Foreground(pink).Bold(true),
		},
	}
}

type model struct {
	mgr         *chat.Manager
	events      <-chan store.Event
	unsubscribe func()

	messages   []domain.Message
	statusLine string
	statusErr  bool
	busy       bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    uiTheme
}

func newModel(mgr *chat.Manager) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Type a message, or /connect to start"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	events, unsubscribe := mgr.Store().Subscribe()

	m := model{
		mgr:         mgr,
		events:      events,
		unsubscribe: unsubscribe,
		statusLine:  "ready",
		input:       input,
		timeline:    timeline,
		spinner:     sp,
		theme:       newTheme(),
	}
	m.reload()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitStoreEvent(m.events),
	)
}

// waitStoreEvent bridges the store subscription into the program.
func waitStoreEvent(ch <-chan store.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return storeClosedMsg{}
		}
		return storeEventMsg{event: ev}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case storeEventMsg:
		m.reload()
		cmds = append(cmds, waitStoreEvent(m.events))
	case storeClosedMsg:
		m.setStatus("message store closed", true)
	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		} else {
			m.setStatus(msg.status, false)
		}
		m.reload()
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, m.quit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		case "enter":
			text := m.input.Value()
			m.input.Reset()
			if cmd := m.submit(text); cmd != nil {
				cmds = append(cmds, cmd)
			}
			return m, tea.Batch(cmds...)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// submit turns one line of input into a manager action.
func (m *model) submit(line string) tea.Cmd {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return m.run("sent", func(ctx context.Context) error {
			return m.mgr.SendMessage(ctx, line)
		})
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch strings.ToLower(name) {
	case "connect":
		return m.run("connected", m.mgr.Connect)
	case "disconnect":
		return m.run("disconnected", m.mgr.Disconnect)
	case "clear":
		return m.run("log cleared", m.mgr.Store().Clear)
	case "demo":
		text, err := demoMessage(arg)
		if err != nil {
			m.setStatus(err.Error(), true)
			return nil
		}
		return m.run("sent demo message", func(ctx context.Context) error {
			return m.mgr.SendMessage(ctx, text)
		})
	case "quit", "exit":
		return m.quit()
	case "help":
		m.setStatus(helpText, false)
		return nil
	default:
		m.setStatus(fmt.Sprintf("unknown command /%s", name), true)
		return nil
	}
}

// run executes op off the UI goroutine; connecting may dial the network.
func (m *model) run(status string, op func(context.Context) error) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{status: status, err: op(ctx)}
	}
}

func (m *model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

func demoMessage(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return demoMessages[0], nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(demoMessages) {
		return "", fmt.Errorf("demo message must be 1-%d", len(demoMessages))
	}
	return demoMessages[n-1], nil
}

func (m *model) setStatus(text string, isErr bool) {
	m.statusLine = text
	m.statusErr = isErr
}

func (m *model) reload() {
	msgs, err := m.mgr.Store().Messages(context.Background())
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	m.messages = msgs
	m.renderTimeline()
}

func (m *model) resize() {
	contentWidth := max(40, m.width-4)
	m.input.Width = max(20, contentWidth-6)
	m.timeline.Width = contentWidth - 2
	// header (3) + input panel (3) + footer (1) + timeline border (2)
	m.timeline.Height = max(3, m.height-9)
}

func (m *model) renderTimeline() {
	if len(m.messages) == 0 {
		m.timeline.SetContent(m.theme.helpText.Render("No messages yet. /connect, then type to chat."))
		return
	}

	width := max(24, m.timeline.Width-2)
	var b strings.Builder
	for _, msg := range m.messages {
		style := m.theme.origin[msg.Origin]
		header := fmt.Sprintf("%s [%s]", msg.CreatedAt.Format("15:04:05"), msg.Origin)
		b.WriteString(style.Render(header))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Body))
		b.WriteString("\n\n")
	}
	m.timeline.SetContent(strings.TrimSpace(b.String()))
	m.timeline.GotoBottom()
}

// statusText describes a connection state the way the header shows it.
func statusText(s domain.ConnectionState) string {
	switch {
	case s.IsSimulated():
		return "Connected (Simulation Mode)"
	case s.IsConnected():
		return "Connected (Live)"
	case s.Phase == domain.PhaseConnecting:
		return "Connecting..."
	default:
		return "Disconnected"
	}
}

func (m model) View() string {
	state := m.mgr.State()
	stateStyle := m.theme.offline
	if state.IsConnected() {
		stateStyle = m.theme.connected
	}
	header := m.theme.header.Render(fmt.Sprintf("SHSH Chat · %s · Messages: %d",
		stateStyle.Render(statusText(state)), len(m.messages)))

	timeline := m.theme.panel.Render(m.timeline.View())
	input := m.theme.inputPanel.Render(m.input.View())

	status := m.theme.helpText.Render(m.statusLine)
	if m.statusErr {
		status = m.theme.errorStatus.Render(m.statusLine)
	}
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	footer := m.theme.footer.Render(status + "  " + m.theme.helpText.Render(helpText))

	return lipgloss.JoinVertical(lipgloss.Left, header, timeline, input, footer)
}
