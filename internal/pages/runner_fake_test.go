package pages

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/sealion/internal/bench"
)

type fakeRunner struct {
	state    bench.State
	startErr error

	starts  [][bench.SlotCount]bench.SlotInput
	pauses  int
	resumes int
	cancels int
}

func (f *fakeRunner) Start(_ context.Context, inputs [bench.SlotCount]bench.SlotInput) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, inputs)
	f.state = bench.Running
	return nil
}

func (f *fakeRunner) Pause() bool {
	f.pauses++
	if f.state != bench.Running {
		return false
	}
	f.state = bench.Paused
	return true
}

func (f *fakeRunner) Resume() bool {
	f.resumes++
	if f.state != bench.Paused {
		return false
	}
	f.state = bench.Running
	return true
}

func (f *fakeRunner) Cancel() bool {
	f.cancels++
	if !f.state.Active() {
		return false
	}
	f.state = bench.Cancelled
	return true
}

func (f *fakeRunner) State() bench.State { return f.state }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
