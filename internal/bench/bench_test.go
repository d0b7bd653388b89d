package bench

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/sealion/internal/board"
	"github.com/buckleypaul/sealion/internal/clock"
	"github.com/buckleypaul/sealion/internal/selector"
	"github.com/buckleypaul/sealion/internal/serial"
	"github.com/buckleypaul/sealion/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	hook   func(Event)
}

func (r *recorder) Send(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func eventsOf[T Event](r *recorder) []T {
	var out []T
	for _, e := range r.all() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type harness struct {
	orch *Orchestrator
	sink *recorder
	bank *selector.Bank
	clk  *clock.Fake
	logs *store.Store
}

func newHarness(t *testing.T, factory SuiteFactory) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC))
	h := &harness{
		sink: &recorder{},
		bank: selector.NewBank(selector.NewMemPins(), selector.DefaultWiring(), clk),
		clk:  clk,
		logs: store.New(t.TempDir()),
	}
	h.orch = New(Options{
		Factory:        factory,
		Selectors:      h.bank,
		Logs:           h.logs,
		Sink:           h.sink,
		Clock:          clk,
		SlotIPs:        []string{"10.0.0.181", "10.0.0.182", "10.0.0.183", "10.0.0.184", "10.0.0.185", "10.0.0.186"},
		ReportInterval: time.Millisecond,
	})
	return h
}

func allActive() [SlotCount]SlotInput {
	var in [SlotCount]SlotInput
	for i := range in {
		in[i] = SlotInput{Active: true, MAC: fmt.Sprintf("00:11:22:33:44:%02X", i), Serial: fmt.Sprintf("SN%d", i)}
	}
	return in
}

// scripted builds a suite with the family's step names whose outcomes come
// from fn.
func scripted(fn func(slot Slot, step string) (bool, error)) SuiteFactory {
	return SuiteFactoryFunc(func(slot Slot, log *slog.Logger) (*board.Suite, error) {
		s := board.DryRunSuite(slot.Family, 0, nil)
		for i := range s.Steps {
			name := s.Steps[i].Name
			s.Steps[i].Run = func(ctx context.Context) (bool, error) { return fn(slot, name) }
		}
		s.Ethernet.Run = func(ctx context.Context) (bool, error) { return fn(slot, board.StepEthernet) }
		return s, nil
	})
}

func pass(Slot, string) (bool, error) { return true, nil }

func TestDefaultSlots(t *testing.T) {
	slots := DefaultSlots([]string{"a", "b", "c", "d", "e", "f"})

	want := []struct {
		id      string
		family  board.Family
		address int
		busPort int
		inputs  []string
	}{
		{"LD2100_1", board.FamilyA, 3, 2, []string{"I0", "I1"}},
		{"LD2100_2", board.FamilyA, 4, 1, []string{"I2", "I3"}},
		{"LD2100_3", board.FamilyA, 5, 0, []string{"I0", "I1"}},
		{"LD5200_4", board.FamilyB, 0, 0, []string{"I0", "I1", "I2"}},
		{"LD5200_5", board.FamilyB, 1, 1, []string{"I0", "I1", "I2"}},
		{"LD5200_6", board.FamilyB, 2, 2, []string{"I0", "I1", "I2"}},
	}
	for i, w := range want {
		assert.Equal(t, w.id, slots[i].Identifier)
		assert.Equal(t, w.family, slots[i].Family)
		assert.Equal(t, w.address, slots[i].Address)
		assert.Equal(t, w.busPort, slots[i].BusPort, w.id)
		assert.Equal(t, w.inputs, slots[i].RelayInputs)
		assert.False(t, slots[i].Active)
	}
	assert.Equal(t, "a", slots[0].IP)
	assert.Equal(t, "f", slots[5].IP)
}

func TestSlotTargetCarriesOperatorInput(t *testing.T) {
	s := DefaultSlots(nil)[0]
	s.MAC = "00:11:22:33:44:55"

	tg := s.Target("10.0.0.188")
	assert.Equal(t, "00:11:22:33:44:55", tg.MAC)
	assert.Equal(t, 2, tg.BusPort)
	assert.Equal(t, "10.0.0.181", tg.IP)
	assert.Equal(t, "10.0.0.188", tg.DefaultIP)
}

func TestDefaultSlotsFillMissingIPs(t *testing.T) {
	slots := DefaultSlots([]string{"192.168.1.1", ""})

	assert.Equal(t, "192.168.1.1", slots[0].IP)
	assert.Equal(t, "10.0.0.182", slots[1].IP)
	for i := 2; i < SlotCount; i++ {
		assert.Equal(t, fmt.Sprintf("10.0.0.%d", 181+i), slots[i].IP)
	}
}

func TestRunDryAllPass(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.opts.Factory = DryRunFactory{Delay: time.Second, Clock: h.clk}

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)
	assert.Equal(t, Finished, h.orch.State())

	for i, s := range slots {
		require.NotNil(t, s.Result, "slot %d", i)
		assert.True(t, s.Passing, "slot %d", i)
		assert.Equal(t, s.Total, s.Result.Len(), "slot %d", i)
		assert.Equal(t, s.Total, s.Finished, "slot %d", i)
		ok, recorded := s.Result.Get(board.StepEthernet)
		assert.True(t, recorded && ok, "slot %d ethernet", i)

		data, err := os.ReadFile(s.LogPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Passing: true")
		assert.Contains(t, string(data), s.MAC)
	}
	assert.Equal(t, 12, slots[0].Total)
	assert.Equal(t, 13, slots[5].Total)

	finished := eventsOf[RunFinished](h.sink)
	require.Len(t, finished, 1)
	assert.Equal(t, Finished, finished[0].State)

	status := eventsOf[RunStatus](h.sink)
	require.NotEmpty(t, status)
	assert.True(t, strings.HasPrefix(status[len(status)-1].Text, "Done: "))
}

func TestInactiveSlotsSkipped(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	h := newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		mu.Lock()
		seen[slot.Index] = true
		mu.Unlock()
		return true, nil
	}))
	in := allActive()
	in[1].Active = false
	in[4].Active = false

	slots, err := h.orch.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, slots[1].Result)
	assert.Nil(t, slots[4].Result)
	assert.Equal(t, map[int]bool{0: true, 2: true, 3: true, 5: true}, seen)
}

func TestCancelDiscardsInProgressSlot(t *testing.T) {
	var h *harness
	h = newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		if slot.Index == 2 && step == board.StepStartup {
			h.orch.Cancel()
		}
		return true, nil
	}))

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)
	assert.Equal(t, Cancelled, h.orch.State())

	for _, i := range []int{0, 1} {
		require.NotNil(t, slots[i].Result, "slot %d", i)
		assert.True(t, slots[i].Passing, "slot %d", i)
		data, err := os.ReadFile(slots[i].LogPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Passing: true")
	}
	for i := 2; i < SlotCount; i++ {
		assert.Nil(t, slots[i].Result, "slot %d", i)
		assert.Zero(t, slots[i].Finished, "slot %d", i)
	}
	for _, e := range eventsOf[StepStarted](h.sink) {
		assert.Less(t, e.Slot, 3, "no step may start after cancel")
		assert.NotEqual(t, board.StepEthernet, e.Step)
	}

	finished := eventsOf[RunFinished](h.sink)
	require.Len(t, finished, 1)
	assert.Equal(t, Cancelled, finished[0].State)
}

func TestCancelLetsInFlightStepFinish(t *testing.T) {
	var stepErr error
	var h *harness
	h = newHarness(t, SuiteFactoryFunc(func(slot Slot, log *slog.Logger) (*board.Suite, error) {
		s := board.DryRunSuite(slot.Family, 0, nil)
		for i := range s.Steps {
			s.Steps[i].Run = func(ctx context.Context) (bool, error) { return true, nil }
		}
		s.Steps[1].Run = func(ctx context.Context) (bool, error) {
			if slot.Index == 0 {
				h.orch.Cancel()
				stepErr = ctx.Err()
			}
			return true, nil
		}
		return s, nil
	}))

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)
	assert.Equal(t, Cancelled, h.orch.State())
	assert.NoError(t, stepErr, "step context stays live after cancel")
	assert.Nil(t, slots[0].Result)

	started := eventsOf[StepStarted](h.sink)
	require.Len(t, started, 2)
	assert.Equal(t, 0, started[1].Slot)
}

func TestPauseAndResume(t *testing.T) {
	var h *harness
	h = newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		if slot.Index == 0 && step == board.StepSupply {
			h.orch.Pause()
		}
		return true, nil
	}))
	paused := 0
	h.sink.hook = func(e Event) {
		if st, ok := e.(StepText); ok && st.Text == "Paused" {
			paused++
			h.orch.Resume()
		}
	}

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)
	assert.Equal(t, 1, paused)
	assert.Equal(t, 1, h.clk.SleepsOf(PausePoll))
	for i, s := range slots {
		assert.True(t, s.Passing, "slot %d", i)
	}

	var states []State
	for _, e := range eventsOf[StateChanged](h.sink) {
		states = append(states, e.State)
	}
	assert.Equal(t, []State{Running, Paused, Running, Finished}, states)
}

func TestCancelWhilePaused(t *testing.T) {
	var h *harness
	h = newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		if slot.Index == 3 && step == board.StepRelays {
			h.orch.Pause()
		}
		return true, nil
	}))
	h.sink.hook = func(e Event) {
		if st, ok := e.(StepText); ok && st.Text == "" {
			h.orch.Cancel()
		}
	}

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)
	assert.Equal(t, Cancelled, h.orch.State())
	assert.Nil(t, slots[3].Result)
	assert.NotNil(t, slots[2].Result)

	var texts []string
	for _, e := range eventsOf[StepText](h.sink) {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{"Paused", ""}, texts)
}

func TestStepErrorAbortsOnlyThatSlot(t *testing.T) {
	h := newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		if slot.Index == 0 && step == board.StepConnect {
			return false, fmt.Errorf("connect: %w", serial.ErrConnectionRefused)
		}
		return true, nil
	}))

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)

	s0 := slots[0]
	assert.False(t, s0.Active)
	assert.False(t, s0.Passing)
	assert.Contains(t, s0.Reason, "connection refused")
	assert.Equal(t, s0.Total, s0.Result.Len())
	for _, name := range s0.Result.Names() {
		ok, _ := s0.Result.Get(name)
		assert.False(t, ok, name)
	}

	alerts := eventsOf[Alert](h.sink)
	require.Len(t, alerts, 1)
	assert.Equal(t, 0, alerts[0].Slot)

	for i := 1; i < SlotCount; i++ {
		assert.True(t, slots[i].Passing, "slot %d", i)
	}
	for _, e := range eventsOf[StepStarted](h.sink) {
		if e.Slot == 0 {
			assert.Equal(t, board.StepConnect, e.Step)
		}
	}
}

func TestAlertsOnlyForConnectionErrors(t *testing.T) {
	dead := fmt.Errorf("read /dev/ttyUSB0: %w: %w", serial.ErrPortFailure, syscall.EIO)
	h := newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		switch {
		case slot.Index == 1 && step == board.StepSupply:
			return false, fmt.Errorf("15v: %w", dead)
		case slot.Index == 2 && step == board.StepSupply:
			return false, fmt.Errorf("parse failure")
		}
		return true, nil
	}))

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)
	assert.False(t, slots[1].Passing)
	assert.False(t, slots[2].Passing)

	alerts := eventsOf[Alert](h.sink)
	require.Len(t, alerts, 1)
	assert.Equal(t, 1, alerts[0].Slot)
}

func TestEthernetPassFollowsAllSlots(t *testing.T) {
	h := newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		if slot.Index == 4 && step == board.StepWriteIP {
			return false, nil
		}
		return true, nil
	}))

	slots, err := h.orch.Run(context.Background(), allActive())
	require.NoError(t, err)

	events := h.sink.all()
	lastSlotFinished := -1
	for idx, e := range events {
		if _, ok := e.(SlotFinished); ok {
			lastSlotFinished = idx
		}
	}
	var ethernet []int
	for idx, e := range events {
		if ev, ok := e.(StepStarted); ok && ev.Step == board.StepEthernet {
			assert.Greater(t, idx, lastSlotFinished)
			ethernet = append(ethernet, ev.Slot)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 5}, ethernet)
	assert.False(t, slots[4].Passing)
	assert.False(t, slots[4].EthernetParticipate)
	_, recorded := slots[4].Result.Get(board.StepEthernet)
	assert.False(t, recorded)
	// The board selector is re-staged for the last ethernet slot.
	assert.Equal(t, slots[5].Address, h.bank.Committed(selector.Board))
}

func TestStartRejectsSecondRun(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, scripted(func(slot Slot, step string) (bool, error) {
		if slot.Index == 0 && step == board.StepConnect {
			<-release
		}
		return true, nil
	}))

	require.NoError(t, h.orch.Start(context.Background(), allActive()))
	assert.Error(t, h.orch.Start(context.Background(), allActive()))
	close(release)
	h.orch.Wait()
	assert.Equal(t, Finished, h.orch.State())

	// A finished orchestrator can run again.
	_, err := h.orch.Run(context.Background(), allActive())
	assert.NoError(t, err)
}

func TestControlTransitions(t *testing.T) {
	var c Control
	assert.False(t, c.Pause(), "idle cannot pause")
	assert.False(t, c.Cancel(), "idle cannot cancel")

	require.NoError(t, c.begin())
	assert.Error(t, c.begin())
	assert.False(t, c.Resume())
	assert.True(t, c.Pause())
	assert.Equal(t, Paused, c.State())
	assert.True(t, c.Resume())
	assert.True(t, c.Cancel())
	assert.Equal(t, Cancelled, c.finish())
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0 min 0 sec", FormatElapsed(0))
	assert.Equal(t, "2 min 5 sec", FormatElapsed(125*time.Second+400*time.Millisecond))
}

func TestElapsedReporterEndsWithDone(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC))
	var mu sync.Mutex
	var lines []string
	r := &ElapsedReporter{Clock: clk, Interval: time.Millisecond, Emit: func(s string) {
		mu.Lock()
		lines = append(lines, s)
		mu.Unlock()
	}}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.Run(stop)
		close(done)
	}()
	clk.Advance(61 * time.Second)
	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, lines)
	assert.Equal(t, "Done: 1 min 1 sec", lines[len(lines)-1])
}
