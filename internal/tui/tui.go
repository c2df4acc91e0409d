package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// TUIModel is the Bubble Tea model for watching and playing a table.
type TUIModel struct {
	logger *log.Logger

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	// State shared with the bridge goroutine
	mu           sync.Mutex
	gameLog      []string
	status       Status
	actionResult chan ActionResult
	quitSignal   chan bool
	quitting     bool
	focusedPane  int // 0 = log, 1 = input

	// Dimensions
	width       int
	height      int
	initialized bool

	// Test mode
	testMode    bool
	capturedLog []string
}

// ActionResult represents the result of a user action
type ActionResult struct {
	Action   string
	Args     []string
	Continue bool
	Error    error
}

// QuitMsg is a custom message to signal quit
type QuitMsg struct{}

// RefreshMsg asks the program to redraw after the bridge changed state.
type RefreshMsg struct{}

// NewTUIModel creates a new TUI model
func NewTUIModel(logger *log.Logger) *TUIModel {
	return NewTUIModelWithOptions(logger, false)
}

// NewTUIModelWithOptions creates a new TUI model with test mode option
func NewTUIModelWithOptions(logger *log.Logger, testMode bool) *TUIModel {
	// Sized properly when the first WindowSizeMsg arrives
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "bet red 10, bet split:5,6 20, spin, claim, balance, help"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 100
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &TUIModel{
		logger:       logger.WithPrefix("tui"),
		logViewport:  vp,
		actionInput:  ti,
		gameLog:      []string{},
		actionResult: make(chan ActionResult, 1),
		quitSignal:   make(chan bool, 1),
		focusedPane:  1,
		testMode:     testMode,
		capturedLog:  []string{},
	}
}

// Init initializes the TUI model
func (m *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenForQuit())
}

func (m *TUIModel) listenForQuit() tea.Cmd {
	return func() tea.Msg {
		<-m.quitSignal
		return QuitMsg{}
	}
}

// Update handles messages in the TUI
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case QuitMsg:
		m.quitting = true
		return m, tea.Sequence(tea.ClearScreen, tea.Quit)

	case RefreshMsg:
		m.mu.Lock()
		m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
		m.mu.Unlock()
		if m.logViewport.Height > 0 {
			m.logViewport.GotoBottom()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			m.actionResult <- ActionResult{Action: "quit", Continue: false}
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				action := strings.TrimSpace(m.actionInput.Value())
				if action != "" {
					m.processAction(action)
				}
				m.actionInput.SetValue("")
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup", "b":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown", "f":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		case "home", "g":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end", "G":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the TUI
func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	// Input pane (bottom, full width)
	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight, 1))
	if m.focusedPane == 1 {
		actionStyle = actionStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	actionPane := actionStyle.Render(actionContent)

	// Sidebar (right of the log, same height)
	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 30)
	paneHeight := max(m.height-actionHeight-4, 1)

	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	m.logViewport.Width = max(m.width-sidebarWidth-4, 1)
	m.logViewport.Height = paneHeight
	if !m.initialized && m.logViewport.Width > 1 && paneHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(m.logViewport.Width).
		Height(paneHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

func (m *TUIModel) renderSidebarPane() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RenderStatus(m.status)
}

func (m *TUIModel) renderActionPane() string {
	var content strings.Builder
	content.WriteString(m.actionInput.View())
	content.WriteString("\n")

	help := "Tab to scroll log • Enter to submit • Ctrl+C to quit"
	if m.focusedPane == 0 {
		help = "Log focused: ↑↓ scroll, PgUp/PgDn half page, Home/End, Tab to input"
	}
	content.WriteString(InfoStyle.Render(help))
	return content.String()
}

// AddLogEntry appends an entry to the log.
func (m *TUIModel) AddLogEntry(entry string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gameLog = append(m.gameLog, entry)
	if m.testMode {
		m.capturedLog = append(m.capturedLog, entry)
	}
}

// AddErrorEntry appends a highlighted error to the log.
func (m *TUIModel) AddErrorEntry(err error) {
	m.AddLogEntry(ErrorStyle.Render("Error: " + err.Error()))
}

// SetStatus replaces the sidebar contents.
func (m *TUIModel) SetStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// CurrentStatus returns the sidebar contents.
func (m *TUIModel) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ClearLog clears the log
func (m *TUIModel) ClearLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameLog = []string{}
}

func (m *TUIModel) processAction(input string) {
	parts := strings.Fields(strings.ToLower(input))
	m.actionResult <- ActionResult{
		Action:   parts[0],
		Args:     parts[1:],
		Continue: true,
	}
}

// WaitForAction blocks until the user submits a command.
func (m *TUIModel) WaitForAction() (string, []string, bool, error) {
	result := <-m.actionResult
	return result.Action, result.Args, result.Continue, result.Error
}

// SendQuitSignal signals the TUI to quit gracefully
func (m *TUIModel) SendQuitSignal() {
	select {
	case m.quitSignal <- true:
	default:
	}
}

// GetCapturedLog returns the captured log entries (test mode only)
func (m *TUIModel) GetCapturedLog() []string {
	if !m.testMode {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.capturedLog))
	copy(result, m.capturedLog)
	return result
}

// InjectAction programmatically injects an action (test mode only)
func (m *TUIModel) InjectAction(action string, args []string) error {
	if !m.testMode {
		return fmt.Errorf("action injection only available in test mode")
	}

	select {
	case m.actionResult <- ActionResult{Action: action, Args: args, Continue: true}:
		return nil
	default:
		return fmt.Errorf("action channel full")
	}
}

// IsTestMode returns whether the TUI is in test mode
func (m *TUIModel) IsTestMode() bool {
	return m.testMode
}
