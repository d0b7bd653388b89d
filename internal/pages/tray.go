package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/sealion/internal/app"
	"github.com/buckleypaul/sealion/internal/bench"
	"github.com/buckleypaul/sealion/internal/ui"
)

const maxAlerts = 5

type slotView struct {
	slot     bench.Slot
	input    bench.SlotInput
	step     string
	finished int
	total    int
	ran      bool
	passing  bool
	reason   string
}

// TrayPage shows the six fixture slots and drives runs.
type TrayPage struct {
	runner     app.Runner
	slots      [bench.SlotCount]slotView
	inputs     [bench.SlotCount]bench.SlotInput
	configured bool
	state      bench.State
	alerts     []string
	bar        progress.Model
	message    string
	width      int
	height     int
}

func NewTrayPage(runner app.Runner, slots [bench.SlotCount]bench.Slot) *TrayPage {
	p := &TrayPage{
		runner: runner,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	for i, s := range slots {
		p.slots[i].slot = s
	}
	return p
}

func (p *TrayPage) Init() tea.Cmd { return nil }

func (p *TrayPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.SlotsConfiguredMsg:
		p.inputs = msg.Inputs
		p.configured = true
		for i := range p.slots {
			p.slots[i].input = msg.Inputs[i]
		}
		p.message = "Slot setup applied"

	case bench.StateChanged:
		p.state = msg.State

	case bench.StepStarted:
		v := &p.slots[msg.Slot]
		v.ran = true
		v.step = msg.Text

	case bench.StepText:
		p.slots[msg.Slot].step = msg.Text

	case bench.StepFinished:
		v := &p.slots[msg.Slot]
		v.finished = msg.Finished
		v.total = msg.Total
		if !msg.Passed {
			v.passing = false
		}

	case bench.SlotFinished:
		v := &p.slots[msg.Slot]
		v.passing = msg.Passing
		v.reason = msg.Reason
		v.step = "Done"

	case bench.Alert:
		p.alerts = append(p.alerts, fmt.Sprintf("%s: %s", p.slots[msg.Slot].slot.Identifier, msg.Message))
		if len(p.alerts) > maxAlerts {
			p.alerts = p.alerts[len(p.alerts)-maxAlerts:]
		}

	case bench.RunFinished:
		p.state = msg.State
		for i, s := range msg.Slots {
			v := &p.slots[i]
			if s.Result == nil {
				if v.ran && msg.State == bench.Cancelled {
					v.step = "Cancelled"
					v.passing = false
				}
				continue
			}
			v.finished = s.Finished
			v.total = s.Total
			v.passing = s.Passing
			v.reason = s.Reason
			v.step = "Done"
		}
		p.message = "Run " + msg.State.String()
		if msg.Err != nil {
			p.message += ": " + msg.Err.Error()
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, app.BenchKeys.Start):
			p.start()
		case key.Matches(msg, app.BenchKeys.Pause):
			if !p.runner.Pause() {
				p.message = "Nothing to pause"
			}
		case key.Matches(msg, app.BenchKeys.Resume):
			if !p.runner.Resume() {
				p.message = "Run is not paused"
			}
		case key.Matches(msg, app.BenchKeys.Cancel):
			if !p.runner.Cancel() {
				p.message = "No run to cancel"
			}
		case msg.String() == "x":
			p.alerts = nil
		}
	}
	return p, nil
}

func (p *TrayPage) start() {
	if !p.configured {
		p.message = "Configure slots on the Setup page first"
		return
	}
	active := 0
	for _, in := range p.inputs {
		if in.Active {
			active++
		}
	}
	if active == 0 {
		p.message = "No active slots"
		return
	}
	for i := range p.slots {
		v := &p.slots[i]
		v.step, v.reason = "", ""
		v.finished, v.total = 0, 0
		v.ran = false
		v.passing = true
	}
	p.alerts = nil
	if err := p.runner.Start(context.Background(), p.inputs); err != nil {
		p.message = fmt.Sprintf("Cannot start: %v", err)
		return
	}
	p.message = fmt.Sprintf("Started %d slot(s)", active)
}

func (p *TrayPage) View() string {
	var b strings.Builder

	for _, a := range p.alerts {
		b.WriteString(ui.AlertStyle.Render("! " + a))
		b.WriteString("\n")
	}
	if len(p.alerts) > 0 {
		b.WriteString("\n")
	}

	cellWidth := (p.width - 6) / 3
	if cellWidth < 24 {
		cellWidth = 24
	}
	p.bar.Width = cellWidth - 6

	for row := 0; row < 2; row++ {
		var cells []string
		for col := 0; col < 3; col++ {
			cells = append(cells, p.renderSlot(row*3+col, cellWidth))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}

	if p.message != "" {
		b.WriteString("\n  " + p.message)
	}
	return b.String()
}

func (p *TrayPage) renderSlot(i, width int) string {
	v := p.slots[i]
	title := ui.SlotTitleStyle.Render(v.slot.Identifier)

	var c strings.Builder
	if !v.input.Active {
		c.WriteString(ui.DimStyle.Render("inactive"))
		return ui.Panel(title, c.String(), width, 0, false)
	}
	fmt.Fprintf(&c, "MAC    %s\n", v.input.MAC)
	fmt.Fprintf(&c, "Serial %s\n", v.input.Serial)
	pct := 0.0
	if v.total > 0 {
		pct = float64(v.finished) / float64(v.total)
	}
	fmt.Fprintf(&c, "%s %d/%d\n", p.bar.ViewAs(pct), v.finished, v.total)
	step := v.step
	if step == "" {
		step = ui.DimStyle.Render("waiting")
	}
	c.WriteString(step + "\n")
	if v.step == "Cancelled" {
		c.WriteString(ui.WarningBadge("CANCELLED"))
	} else {
		c.WriteString(ui.Verdict(v.ran, v.passing))
	}
	if v.reason != "" {
		c.WriteString(" " + ui.FailStyle.Render(v.reason))
	}
	return ui.Panel(title, c.String(), width, 0, p.state.Active() && v.ran && v.step != "Done")
}

func (p *TrayPage) Name() string { return "Tray" }

func (p *TrayPage) ShortHelp() []key.Binding {
	if p.state.Active() {
		if p.state == bench.Paused {
			return []key.Binding{app.BenchKeys.Resume, app.BenchKeys.Cancel}
		}
		return []key.Binding{app.BenchKeys.Pause, app.BenchKeys.Cancel}
	}
	return []key.Binding{
		app.BenchKeys.Start,
		key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear alerts")),
	}
}

func (p *TrayPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
