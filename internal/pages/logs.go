package pages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wrap"

	"github.com/buckleypaul/sealion/internal/app"
	"github.com/buckleypaul/sealion/internal/bench"
	"github.com/buckleypaul/sealion/internal/store"
	"github.com/buckleypaul/sealion/internal/ui"
)

type logsLoadedMsg struct {
	files []string
	err   error
}

type logOpenedMsg struct {
	path    string
	content string
	err     error
}

// LogsPage lists today's slot logs and shows one at a time.
type LogsPage struct {
	store    *store.Store
	now      func() time.Time
	files    []string
	cursor   int
	open     string
	content  string
	viewport viewport.Model
	message  string
	width    int
	height   int
}

func NewLogsPage(s *store.Store) *LogsPage {
	return &LogsPage{
		store:    s,
		now:      time.Now,
		viewport: viewport.New(0, 0),
	}
}

func (p *LogsPage) Init() tea.Cmd { return p.refresh() }

func (p *LogsPage) refresh() tea.Cmd {
	s, t := p.store, p.now()
	return func() tea.Msg {
		files, err := s.Logs(t)
		return logsLoadedMsg{files: files, err: err}
	}
}

func openLog(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		return logOpenedMsg{path: path, content: string(data), err: err}
	}
}

func (p *LogsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case logsLoadedMsg:
		if msg.err != nil {
			p.message = fmt.Sprintf("Error listing logs: %v", msg.err)
			return p, nil
		}
		p.files = msg.files
		if p.cursor >= len(p.files) {
			p.cursor = max(len(p.files)-1, 0)
		}
		p.message = ""
		return p, nil

	case logOpenedMsg:
		if msg.err != nil {
			p.message = fmt.Sprintf("Error reading %s: %v", filepath.Base(msg.path), msg.err)
			return p, nil
		}
		p.open = msg.path
		p.content = msg.content
		p.updateViewportContent()
		p.viewport.GotoTop()
		return p, nil

	case bench.RunFinished:
		return p, p.refresh()

	case tea.KeyMsg:
		if p.open != "" {
			switch msg.String() {
			case "esc":
				p.open = ""
				p.content = ""
				return p, nil
			}
			var cmd tea.Cmd
			p.viewport, cmd = p.viewport.Update(msg)
			return p, cmd
		}

		switch msg.String() {
		case "down":
			if p.cursor < len(p.files)-1 {
				p.cursor++
			}
		case "up":
			if p.cursor > 0 {
				p.cursor--
			}
		case "enter":
			if len(p.files) > 0 {
				return p, openLog(p.files[p.cursor])
			}
		case "R":
			return p, p.refresh()
		}
	}
	return p, nil
}

func (p *LogsPage) View() string {
	if p.open != "" {
		return ui.Panel(filepath.Base(p.open), p.viewport.View(), p.width, 0, false)
	}

	var inner strings.Builder
	if len(p.files) == 0 {
		inner.WriteString(ui.DimStyle.Render("No slot logs for today"))
		inner.WriteString("\n")
	}
	for i, f := range p.files {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.BoldStyle.Render("> ")
		}
		inner.WriteString(cursor + filepath.Base(f) + "\n")
	}
	if p.message != "" {
		inner.WriteString("\n  " + p.message)
	}
	return ui.Panel("Logs "+p.now().Format("2006-01-02"), inner.String(), p.width, 0, false)
}

func (p *LogsPage) Name() string { return "Logs" }

func (p *LogsPage) ShortHelp() []key.Binding {
	if p.open != "" {
		return []key.Binding{
			key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "scroll")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
	}
}

func (p *LogsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.viewport.Width = max(w-4, 0)
	p.viewport.Height = max(h-4, 0)
	p.updateViewportContent()
}

// updateViewportContent hard-wraps the log so long slog lines stay inside
// the panel.
func (p *LogsPage) updateViewportContent() {
	if p.viewport.Width <= 0 {
		p.viewport.SetContent(p.content)
		return
	}
	lines := strings.Split(wrap.String(p.content, p.viewport.Width), "\n")
	for i, line := range lines {
		if ansi.PrintableRuneWidth(line) > p.viewport.Width {
			lines[i] = truncate.String(line, uint(p.viewport.Width))
		}
	}
	p.viewport.SetContent(strings.Join(lines, "\n"))
}
