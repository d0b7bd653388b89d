package pages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/sealion/internal/app"
	"github.com/buckleypaul/sealion/internal/config"
	"github.com/buckleypaul/sealion/internal/ui"
)

type settingField struct {
	label string
	key   string
}

var settingFields = []settingField{
	{"Serial Device", "serial_device"},
	{"Serial Baud Rate", "serial_baud_rate"},
	{"Bus Device", "bus_device"},
	{"Bus Baud Rate", "bus_baud_rate"},
	{"Log Directory", "log_dir"},
	{"Handshake Seconds", "handshake_seconds"},
	{"Max Tries", "max_tries"},
	{"Default IP", "default_ip"},
	{"Wiring File", "wiring_file"},
}

type SettingsPage struct {
	cfg           *config.Config
	benchRoot     string
	cursor        int
	editing       bool
	input         textinput.Model
	width, height int
	message       string
}

func NewSettingsPage(cfg *config.Config, benchRoot string) *SettingsPage {
	ti := textinput.New()
	ti.CharLimit = 128
	return &SettingsPage{
		cfg:       cfg,
		benchRoot: benchRoot,
		input:     ti,
	}
}

func (p *SettingsPage) Init() tea.Cmd { return nil }

func (p *SettingsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.DeviceSelectedMsg:
		p.message = fmt.Sprintf("Serial device set to %s", msg.Device)
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
			if p.cursor < len(settingFields)-1 {
				p.cursor++
			}
		case "up":
			if p.cursor > 0 {
				p.cursor--
			}
		case "enter", "e":
			p.editing = true
			p.input.SetValue(p.getValue(p.cursor))
			p.input.Focus()
			return p, p.input.Focus()
		case "s":
			if err := config.Save(*p.cfg, p.benchRoot, false); err != nil {
				p.message = fmt.Sprintf("Error saving: %v", err)
			} else {
				p.message = "Settings saved to bench"
			}
		}
	}
	return p, nil
}

func (p *SettingsPage) View() string {
	var inner strings.Builder

	for i, f := range settingFields {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.BoldStyle.Render("> ")
		}

		val := p.getValue(i)
		if val == "" {
			val = ui.DimStyle.Render("(not set)")
		}

		line := fmt.Sprintf("%s%-20s %s", cursor, f.label, val)
		inner.WriteString(line)
		inner.WriteString("\n")
	}

	if p.editing {
		inner.WriteString("\n")
		inner.WriteString(fmt.Sprintf("  Edit %s:\n", settingFields[p.cursor].label))
		inner.WriteString("  " + p.input.View())
		inner.WriteString("\n")
	}

	if p.message != "" {
		inner.WriteString("\n  " + p.message)
	}

	return ui.Panel("Settings", inner.String(), p.width, 0, false)
}

func (p *SettingsPage) Name() string { return "Settings" }

func (p *SettingsPage) ShortHelp() []key.Binding {
	if p.editing {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save to disk")),
	}
}

func (p *SettingsPage) InputCaptured() bool {
	return p.editing
}

func (p *SettingsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}

func (p *SettingsPage) getValue(idx int) string {
	switch settingFields[idx].key {
	case "serial_device":
		return p.cfg.SerialDevice
	case "serial_baud_rate":
		return strconv.Itoa(p.cfg.SerialBaudRate)
	case "bus_device":
		return p.cfg.BusDevice
	case "bus_baud_rate":
		return strconv.Itoa(p.cfg.BusBaudRate)
	case "log_dir":
		return p.cfg.LogDir
	case "handshake_seconds":
		return strconv.Itoa(p.cfg.HandshakeSeconds)
	case "max_tries":
		return strconv.Itoa(p.cfg.MaxTries)
	case "default_ip":
		return p.cfg.DefaultIP
	case "wiring_file":
		return p.cfg.WiringFile
	}
	return ""
}

func (p *SettingsPage) applyValue(val string) {
	f := settingFields[p.cursor]
	switch f.key {
	case "serial_device":
		p.cfg.SerialDevice = val
	case "bus_device":
		p.cfg.BusDevice = val
	case "log_dir":
		p.cfg.LogDir = val
	case "default_ip":
		p.cfg.DefaultIP = val
	case "wiring_file":
		p.cfg.WiringFile = val
	case "serial_baud_rate", "bus_baud_rate", "handshake_seconds", "max_tries":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			p.message = fmt.Sprintf("%s must be a positive number", f.label)
			return
		}
		switch f.key {
		case "serial_baud_rate":
			p.cfg.SerialBaudRate = n
		case "bus_baud_rate":
			p.cfg.BusBaudRate = n
		case "handshake_seconds":
			p.cfg.HandshakeSeconds = n
		case "max_tries":
			p.cfg.MaxTries = n
		}
	}
	p.message = fmt.Sprintf("%s updated", f.label)
}
