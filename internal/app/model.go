package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/sealion/internal/bench"
	"github.com/buckleypaul/sealion/internal/config"
	"github.com/buckleypaul/sealion/internal/ui"
)

type FocusArea int

const (
	FocusSidebar FocusArea = iota
	FocusContent
)

type Model struct {
	pages      map[PageID]Page
	activePage PageID
	focus      FocusArea
	width      int
	height     int
	showHelp   bool
	device     string
	state      bench.State
	elapsed    string
	picker     *Picker
	cfg        *config.Config
	benchRoot  string
	runner     Runner
	onDevice   func(device string)
}

// New builds the root model. onDevice, if set, is called when the operator
// picks a new bootloader device.
func New(pages map[PageID]Page, cfg *config.Config, benchRoot string, runner Runner, onDevice func(string)) Model {
	return Model{
		pages:     pages,
		cfg:       cfg,
		benchRoot: benchRoot,
		runner:    runner,
		onDevice:  onDevice,
		device:    cfg.SerialDevice,
	}
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range m.pages {
		if cmd := p.Init(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentWidth := m.width - sidebarWidth
		contentHeight := m.height - 2 - 1 // status bar + bench bar
		for _, p := range m.pages {
			p.SetSize(contentWidth, contentHeight)
		}
		return m, nil

	case PortsLoadedMsg:
		if msg.Err != nil || m.picker == nil {
			return m, nil
		}
		m.picker.SetItems(PortItems(msg.Ports, m.device))
		return m, nil

	case PickerSelectedMsg:
		m.picker = nil
		if m.runner != nil && m.runner.State().Active() {
			return m, nil
		}
		m.device = msg.Value
		// Persist to config
		m.cfg.SerialDevice = msg.Value
		config.Save(*m.cfg, m.benchRoot, false)
		if m.onDevice != nil {
			m.onDevice(msg.Value)
		}
		// Broadcast to all pages
		return m, func() tea.Msg { return DeviceSelectedMsg{Device: msg.Value} }

	case PickerClosedMsg:
		m.picker = nil
		return m, nil

	case bench.StateChanged:
		m.state = msg.State
		if msg.State == bench.Running && m.elapsed == "" {
			m.elapsed = bench.FormatElapsed(0)
		}

	case bench.RunStatus:
		m.elapsed = msg.Text

	case tea.KeyMsg:
		// When picker is open, forward all keys to picker
		if m.picker != nil {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}

		// When a page has an active text input, forward all keys
		// directly to the page; only ctrl+c still quits.
		if m.focus == FocusContent {
			if ic, ok := m.pages[m.activePage].(InputCapturer); ok && ic.InputCaptured() {
				if msg.String() == "ctrl+c" {
					return m, m.quit()
				}
				page := m.pages[m.activePage]
				newPage, cmd := page.Update(msg)
				m.pages[m.activePage] = newPage
				return m, cmd
			}
		}

		// Global key handling
		switch {
		case key.Matches(msg, GlobalKeys.Quit):
			return m, m.quit()
		case key.Matches(msg, GlobalKeys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, GlobalKeys.ToggleFocus):
			if m.focus == FocusSidebar {
				m.focus = FocusContent
				return m, nil
			}
			// When content focused, fall through to page handler
		}

		// Sidebar-only shortcuts
		if m.focus == FocusSidebar {
			if key.Matches(msg, GlobalKeys.Devices) {
				m.picker = NewPicker("Serial Device")
				m.picker.SetSize(m.width-sidebarWidth, m.height-2-1)
				return m, ListPorts
			}
		}

		// Handle arrow keys based on focus
		if m.focus == FocusSidebar {
			switch msg.String() {
			case "up":
				m.prevPage()
				return m, nil
			case "down":
				m.nextPage()
				return m, nil
			case "enter", "right":
				m.focus = FocusContent
				return m, nil
			}
		} else if m.focus == FocusContent {
			if msg.String() == "left" {
				m.focus = FocusSidebar
				return m, nil
			}
		}
	}

	// Key messages: only forward to active page when content is focused
	if _, isKey := msg.(tea.KeyMsg); isKey {
		if m.focus != FocusContent {
			return m, nil
		}
		page := m.pages[m.activePage]
		newPage, cmd := page.Update(msg)
		m.pages[m.activePage] = newPage
		return m, cmd
	}

	// Non-key messages (run events, command results, etc.): forward to all
	// pages so each can track the run
	var cmds []tea.Cmd
	for id, page := range m.pages {
		newPage, cmd := page.Update(msg)
		m.pages[id] = newPage
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	contentWidth := m.width - sidebarWidth
	contentHeight := m.height - 2 - 1 // status bar + bench bar

	page := m.pages[m.activePage]

	benchBar := renderBenchBar(m.device, m.state, m.elapsed, m.width, m.focus == FocusSidebar)
	sidebar := renderSidebar(PageOrder, m.activePage, m.pages, contentHeight, m.focus == FocusSidebar)
	body := page.View()
	if m.showHelp {
		body = renderHelp(contentWidth - 4)
	}
	content := ui.ContentStyle.
		Width(contentWidth).
		Height(contentHeight).
		Render(body)

	// Overlay picker on content area when open
	if m.picker != nil {
		m.picker.SetSize(contentWidth, contentHeight)
		content = lipgloss.Place(
			contentWidth, contentHeight,
			lipgloss.Center, lipgloss.Center,
			m.picker.View(),
		)
	}

	statusBar := renderStatusBar(page.ShortHelp(), m.width, m.focus)

	return renderLayout(benchBar, sidebar, content, statusBar)
}

// quit cancels an active run before leaving.
func (m Model) quit() tea.Cmd {
	if m.runner != nil && m.runner.State().Active() {
		m.runner.Cancel()
	}
	return tea.Quit
}

func (m *Model) nextPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i+1)%len(PageOrder)]
			return
		}
	}
}

func (m *Model) prevPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i-1+len(PageOrder))%len(PageOrder)]
			return
		}
	}
}
