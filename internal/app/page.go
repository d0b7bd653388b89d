package app

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/sealion/internal/bench"
)

// PageID identifies each page in the application.
type PageID int

const (
	TrayPage PageID = iota
	SetupPage
	LogsPage
	SettingsPage
)

var PageOrder = []PageID{
	TrayPage,
	SetupPage,
	LogsPage,
	SettingsPage,
}

// Page is the interface every page in the application implements.
type Page interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Page, tea.Cmd)
	View() string
	Name() string
	ShortHelp() []key.Binding
	SetSize(width, height int)
}

// InputCapturer is an optional interface for pages with text inputs.
// When InputCaptured returns true, the app forwards all keys directly
// to the page instead of processing shortcuts like q, ?, left, etc.
type InputCapturer interface {
	InputCaptured() bool
}

// Runner is the run control the pages drive.
type Runner interface {
	Start(ctx context.Context, inputs [bench.SlotCount]bench.SlotInput) error
	Pause() bool
	Resume() bool
	Cancel() bool
	State() bench.State
}

// DeviceSelectedMsg is broadcast to all pages when a serial device is picked.
type DeviceSelectedMsg struct {
	Device string
}

// SlotsConfiguredMsg is broadcast when the operator applies the slot setup.
type SlotsConfiguredMsg struct {
	Inputs [bench.SlotCount]bench.SlotInput
}
