package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/buckleypaul/sealion/internal/board"
	"github.com/buckleypaul/sealion/internal/clock"
	"github.com/buckleypaul/sealion/internal/regbus"
	"github.com/buckleypaul/sealion/internal/selector"
	"github.com/buckleypaul/sealion/internal/serial"
)

// PausePoll is how often a paused run checks for resume or cancel.
const PausePoll = 350 * time.Millisecond

var errCancelled = errors.New("run cancelled")

// SuiteFactory builds the step plan for a slot. log writes to the slot's log
// file.
type SuiteFactory interface {
	Suite(slot Slot, log *slog.Logger) (*board.Suite, error)
}

// SuiteFactoryFunc adapts a function to SuiteFactory.
type SuiteFactoryFunc func(slot Slot, log *slog.Logger) (*board.Suite, error)

func (f SuiteFactoryFunc) Suite(slot Slot, log *slog.Logger) (*board.Suite, error) {
	return f(slot, log)
}

// Addresser drives the board-address selector.
type Addresser interface {
	Set(name selector.Name, value int) error
}

// LogStore opens per-slot log files.
type LogStore interface {
	OpenSlotLog(id string, t time.Time) (*os.File, error)
}

// Options configures an Orchestrator.
type Options struct {
	Factory   SuiteFactory
	Selectors Addresser
	Logs      LogStore
	Sink      Sink
	Clock     clock.Clock
	SlotIPs   []string
	// ReportInterval overrides the elapsed-time cadence.
	ReportInterval time.Duration
	Log            *slog.Logger
}

// Orchestrator runs the suites of every active slot in order.
type Orchestrator struct {
	Control

	opts Options
	clk  clock.Clock
	sink Sink
	log  *slog.Logger

	mu    sync.Mutex
	slots [SlotCount]Slot
	done  chan struct{}
}

type slotRun struct {
	suite  *board.Suite
	file   *os.File
	log    *slog.Logger
	result *board.TestResult
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts: opts,
		clk:  opts.Clock,
		sink: opts.Sink,
		log:  opts.Log,
	}
	if o.clk == nil {
		o.clk = clock.Real{}
	}
	if o.sink == nil {
		o.sink = discard{}
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.slots = DefaultSlots(opts.SlotIPs)
	// Cancel is observed at step checkpoints. A hardware command already
	// in flight runs to completion.
	o.Control.notify = func(s State) {
		o.sink.Send(StateChanged{State: s})
	}
	return o
}

// Slots returns a snapshot of every slot.
func (o *Orchestrator) Slots() [SlotCount]Slot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slots
}

// Start launches a run in its own goroutine.
func (o *Orchestrator) Start(ctx context.Context, inputs [SlotCount]SlotInput) error {
	if err := o.begin(); err != nil {
		return err
	}
	done := make(chan struct{})
	o.mu.Lock()
	o.done = done
	o.mu.Unlock()
	go func() {
		defer close(done)
		o.run(ctx, inputs)
	}()
	return nil
}

// Wait blocks until the run started by Start returns.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Run executes a run on the calling goroutine and returns the final slots.
func (o *Orchestrator) Run(ctx context.Context, inputs [SlotCount]SlotInput) ([SlotCount]Slot, error) {
	if err := o.begin(); err != nil {
		return o.Slots(), err
	}
	err := o.run(ctx, inputs)
	return o.Slots(), err
}

func (o *Orchestrator) run(ctx context.Context, inputs [SlotCount]SlotInput) error {
	o.mu.Lock()
	o.slots = DefaultSlots(o.opts.SlotIPs)
	for i := range o.slots {
		o.slots[i].Active = inputs[i].Active
		o.slots[i].MAC = inputs[i].MAC
		o.slots[i].Serial = inputs[i].Serial
	}
	o.mu.Unlock()

	stop := make(chan struct{})
	reported := make(chan struct{})
	reporter := &ElapsedReporter{
		Clock:    o.clk,
		Interval: o.opts.ReportInterval,
		Emit:     func(text string) { o.sink.Send(RunStatus{Text: text}) },
	}
	go func() {
		defer close(reported)
		reporter.Run(stop)
	}()

	runs := make(map[int]*slotRun)
	err := o.mainPass(ctx, runs)
	if err == nil {
		err = o.ethernetPass(ctx, runs)
	}
	for i, r := range runs {
		o.closeRun(i, r)
	}
	if errors.Is(err, errCancelled) {
		err = nil
	}

	state := o.finish()
	close(stop)
	<-reported
	if err != nil {
		o.log.Error("run aborted", "err", err)
	}
	o.sink.Send(RunFinished{State: state, Slots: o.Slots(), Err: err})
	return err
}

func (o *Orchestrator) mainPass(ctx context.Context, runs map[int]*slotRun) error {
	for i := 0; i < SlotCount; i++ {
		slot := o.slot(i)
		if !slot.Active {
			continue
		}
		if !o.checkpoint(i) {
			return errCancelled
		}
		r, err := o.openRun(slot)
		if err != nil {
			o.update(i, func(s *Slot) {
				s.Active = false
				s.Passing = false
				s.Reason = err.Error()
			})
			o.sink.Send(Alert{Slot: i, Message: fmt.Sprintf("%s: %v", slot.Identifier, err)})
			continue
		}
		runs[i] = r
		if err := o.runSlot(ctx, i, r); err != nil {
			if errors.Is(err, errCancelled) {
				o.discard(i, runs)
			}
			return err
		}
	}
	return nil
}

func (o *Orchestrator) openRun(slot Slot) (*slotRun, error) {
	f, err := o.opts.Logs.OpenSlotLog(slot.Identifier, o.clk.Now())
	if err != nil {
		return nil, fmt.Errorf("open slot log: %w", err)
	}
	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	log.Info("slot started", "slot", slot.Identifier, "mac", slot.MAC, "serial", slot.Serial)

	suite, err := o.opts.Factory.Suite(slot, log)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("build suite: %w", err)
	}
	r := &slotRun{suite: suite, file: f, log: log, result: board.NewTestResult()}
	o.update(slot.Index, func(s *Slot) {
		s.LogPath = f.Name()
		s.Total = suite.Total()
		s.Result = r.result
		s.Passing = true
	})
	return r, nil
}

func (o *Orchestrator) runSlot(ctx context.Context, i int, r *slotRun) error {
	slot := o.slot(i)
	if err := o.opts.Selectors.Set(selector.Board, slot.Address); err != nil {
		return fmt.Errorf("select board %d: %w", slot.Address, err)
	}
	defer func() {
		if err := r.suite.Close(); err != nil {
			r.log.Warn("closing suite", "err", err)
		}
	}()

	for idx, step := range r.suite.Steps {
		if !o.checkpoint(i) {
			return errCancelled
		}
		o.sink.Send(StepStarted{Slot: i, Step: step.Name, Text: "Running: " + step.Label})
		r.log.Info("step started", "step", step.Name)

		ok, err := step.Run(ctx)
		if o.State() == Cancelled {
			return errCancelled
		}
		if err != nil {
			o.abort(i, r, idx, err)
			break
		}
		r.result.Process(step.Name, ok)
		r.log.Info("step finished", "step", step.Name, "passed", ok)
		o.record(i, step.Name, ok, r.result, step.EnablesEthernet && ok)
	}

	s := o.slot(i)
	o.sink.Send(SlotFinished{Slot: i, Passing: s.Passing, Reason: s.Reason})
	return nil
}

// abort fails the step at idx and every step after it, including the
// ethernet check, and takes the slot out of the run.
func (o *Orchestrator) abort(i int, r *slotRun, idx int, err error) {
	slot := o.slot(i)
	r.log.Error("step aborted slot", "step", r.suite.Steps[idx].Name, "err", err)
	names := []string{}
	for _, st := range r.suite.Steps[idx:] {
		names = append(names, st.Name)
	}
	names = append(names, r.suite.Ethernet.Name)
	for _, n := range names {
		r.result.Process(n, false)
		o.record(i, n, false, r.result, false)
	}
	o.update(i, func(s *Slot) {
		s.Active = false
		s.EthernetParticipate = false
		s.Reason = err.Error()
	})
	if connectionFailure(err) {
		o.sink.Send(Alert{Slot: i, Message: fmt.Sprintf("%s: %v", slot.Identifier, err)})
	}
}

func (o *Orchestrator) record(i int, name string, ok bool, result *board.TestResult, ethernet bool) {
	var ev StepFinished
	o.update(i, func(s *Slot) {
		s.Finished++
		s.Passing = result.Passing()
		if ethernet {
			s.EthernetParticipate = true
		}
		ev = StepFinished{Slot: i, Step: name, Passed: ok, Finished: s.Finished, Total: s.Total}
	})
	o.sink.Send(ev)
}

func (o *Orchestrator) ethernetPass(ctx context.Context, runs map[int]*slotRun) error {
	for i := 0; i < SlotCount; i++ {
		slot := o.slot(i)
		r := runs[i]
		if r == nil || !slot.Active || !slot.EthernetParticipate {
			continue
		}
		if !o.checkpoint(i) {
			return errCancelled
		}
		if err := o.opts.Selectors.Set(selector.Board, slot.Address); err != nil {
			return fmt.Errorf("select board %d: %w", slot.Address, err)
		}
		step := r.suite.Ethernet
		o.sink.Send(StepStarted{Slot: i, Step: step.Name, Text: "Running: " + step.Label})
		ok, err := step.Run(ctx)
		if o.State() == Cancelled {
			return errCancelled
		}
		if err != nil {
			r.log.Error("ethernet check failed", "err", err)
			ok = false
			if connectionFailure(err) {
				o.sink.Send(Alert{Slot: i, Message: fmt.Sprintf("%s: %v", slot.Identifier, err)})
			}
		}
		r.result.Process(step.Name, ok)
		o.record(i, step.Name, ok, r.result, false)
	}
	return nil
}

// checkpoint blocks while the run is paused and reports whether it may
// continue.
func (o *Orchestrator) checkpoint(i int) bool {
	blink := true
	for {
		switch o.State() {
		case Cancelled:
			return false
		case Paused:
			text := ""
			if blink {
				text = "Paused"
			}
			blink = !blink
			o.sink.Send(StepText{Slot: i, Text: text})
			o.clk.Sleep(PausePoll)
		default:
			return true
		}
	}
}

// discard drops the result of a slot interrupted by cancel.
func (o *Orchestrator) discard(i int, runs map[int]*slotRun) {
	if r := runs[i]; r != nil {
		r.log.Warn("run cancelled, result discarded")
		r.file.Close()
		delete(runs, i)
	}
	o.update(i, func(s *Slot) {
		s.Result = nil
		s.Finished = 0
		s.Passing = false
		s.EthernetParticipate = false
		s.Reason = errCancelled.Error()
	})
}

func (o *Orchestrator) closeRun(i int, r *slotRun) {
	if _, err := io.WriteString(r.file, r.result.String()); err != nil {
		o.log.Warn("writing slot result", "slot", i, "err", err)
	}
	if err := r.file.Close(); err != nil {
		o.log.Warn("closing slot log", "slot", i, "err", err)
	}
}

func (o *Orchestrator) slot(i int) Slot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slots[i]
}

func (o *Orchestrator) update(i int, fn func(s *Slot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.slots[i])
}

func connectionFailure(err error) bool {
	return errors.Is(err, serial.ErrConnectionRefused) ||
		errors.Is(err, serial.ErrPortFailure) ||
		errors.Is(err, regbus.ErrTransportUnavailable) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission)
}
