package pages

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/sealion/internal/app"
	"github.com/buckleypaul/sealion/internal/bench"
	"github.com/buckleypaul/sealion/internal/ui"
)

var macPattern = regexp.MustCompile(`^([0-9A-F]{2}:){5}([0-9A-F]{2})$`)

type setupColumn int

const (
	colActive setupColumn = iota
	colMAC
	colSerial
	setupColumns
)

// SetupPage collects which slots are loaded and each board's MAC and serial
// number.
type SetupPage struct {
	slots   [bench.SlotCount]bench.Slot
	inputs  [bench.SlotCount]bench.SlotInput
	cursor  int
	editing bool
	locked  bool
	input   textinput.Model
	message string
	width   int
	height  int
}

func NewSetupPage(slots [bench.SlotCount]bench.Slot) *SetupPage {
	ti := textinput.New()
	ti.CharLimit = 32
	return &SetupPage{slots: slots, input: ti}
}

func (p *SetupPage) Init() tea.Cmd { return nil }

func (p *SetupPage) row() int            { return p.cursor / int(setupColumns) }
func (p *SetupPage) column() setupColumn { return setupColumn(p.cursor % int(setupColumns)) }
func (p *SetupPage) fieldCount() int     { return bench.SlotCount * int(setupColumns) }

func (p *SetupPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case bench.StateChanged:
		p.locked = msg.State.Active()
		return p, nil

	case tea.KeyMsg:
		if p.editing {
			switch msg.String() {
			case "enter":
				p.applyValue(p.input.Value())
				p.editing = false
				p.input.Blur()
				return p, nil
			case "esc":
				p.editing = false
				p.input.Blur()
				return p, nil
			}
			var cmd tea.Cmd
			p.input, cmd = p.input.Update(msg)
			return p, cmd
		}

		switch msg.String() {
		case "down":
			if p.cursor < p.fieldCount()-1 {
				p.cursor++
			}
		case "up":
			if p.cursor > 0 {
				p.cursor--
			}
		case " ":
			if p.locked {
				p.message = "Slots are locked while a run is active"
				return p, nil
			}
			in := &p.inputs[p.row()]
			in.Active = !in.Active
		case "enter", "e":
			if p.locked {
				p.message = "Slots are locked while a run is active"
				return p, nil
			}
			if p.column() == colActive {
				in := &p.inputs[p.row()]
				in.Active = !in.Active
				return p, nil
			}
			p.editing = true
			p.input.SetValue(p.getValue(p.row(), p.column()))
			return p, p.input.Focus()
		case "a":
			if err := p.validate(); err != nil {
				p.message = err.Error()
				return p, nil
			}
			inputs := p.inputs
			p.message = "Applied; start the run from the Tray page"
			return p, func() tea.Msg { return app.SlotsConfiguredMsg{Inputs: inputs} }
		}
	}
	return p, nil
}

// validate checks every active slot has a well-formed MAC and a serial.
func (p *SetupPage) validate() error {
	active := 0
	for i, in := range p.inputs {
		if !in.Active {
			continue
		}
		active++
		id := p.slots[i].Identifier
		if !macPattern.MatchString(in.MAC) {
			return fmt.Errorf("%s: MAC %q must look like 00:1A:2B:3C:4D:5E", id, in.MAC)
		}
		if in.Serial == "" {
			return fmt.Errorf("%s: serial number required", id)
		}
	}
	if active == 0 {
		return fmt.Errorf("no slots selected")
	}
	return nil
}

func (p *SetupPage) View() string {
	var inner strings.Builder

	for i, s := range p.slots {
		in := p.inputs[i]
		fmt.Fprintf(&inner, "%s\n", ui.SlotTitleStyle.Render(s.Identifier))
		for c := colActive; c < setupColumns; c++ {
			idx := i*int(setupColumns) + int(c)
			cursor := "  "
			if idx == p.cursor {
				cursor = ui.BoldStyle.Render("> ")
			}
			var label, val string
			switch c {
			case colActive:
				label = "Loaded"
				val = "[ ]"
				if in.Active {
					val = "[x]"
				}
			case colMAC:
				label = "MAC"
				val = in.MAC
			case colSerial:
				label = "Serial"
				val = in.Serial
			}
			if val == "" {
				val = ui.DimStyle.Render("(not set)")
			}
			fmt.Fprintf(&inner, "%s%-10s %s\n", cursor, label, val)
		}
	}

	if p.editing {
		inner.WriteString("\n")
		inner.WriteString(fmt.Sprintf("  Edit %s %s:\n", p.slots[p.row()].Identifier, columnName(p.column())))
		inner.WriteString("  " + p.input.View())
		inner.WriteString("\n")
	}

	if p.message != "" {
		inner.WriteString("\n  " + p.message)
	}

	return ui.Panel("Slot Setup", inner.String(), p.width, 0, false)
}

func columnName(c setupColumn) string {
	switch c {
	case colMAC:
		return "MAC"
	case colSerial:
		return "serial"
	}
	return "loaded"
}

func (p *SetupPage) Name() string { return "Setup" }

func (p *SetupPage) ShortHelp() []key.Binding {
	if p.editing {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("space"), key.WithHelp("space", "toggle slot")),
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply")),
	}
}

func (p *SetupPage) InputCaptured() bool {
	return p.editing
}

func (p *SetupPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}

func (p *SetupPage) getValue(row int, c setupColumn) string {
	switch c {
	case colMAC:
		return p.inputs[row].MAC
	case colSerial:
		return p.inputs[row].Serial
	}
	return ""
}

func (p *SetupPage) applyValue(val string) {
	val = strings.TrimSpace(val)
	row := p.row()
	switch p.column() {
	case colMAC:
		p.inputs[row].MAC = strings.ToUpper(strings.ReplaceAll(val, "-", ":"))
	case colSerial:
		p.inputs[row].Serial = val
	}
	p.message = fmt.Sprintf("%s %s updated", p.slots[row].Identifier, columnName(p.column()))
}
