package selector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/buckleypaul/sealion/internal/clock"
)

// Name identifies one of the fixture's selectors.
type Name string

const (
	Board  Name = "board"
	Short  Name = "short"
	Length Name = "length"
	Bus    Name = "bus"
)

// Reserved selector codes.
const (
	ShortDisengaged  = 6
	LengthDisengaged = 6
	LengthBreak      = 7
	BusOff           = 3
)

// SettleDelay is the time the analog switching network needs after a write.
const SettleDelay = 50 * time.Millisecond

// Pins drives and samples fixture GPIO lines by name.
type Pins interface {
	Write(pin string, high bool) error
	Read(pin string) (bool, error)
}

// Selector is a group of pins holding one binary code.
type Selector struct {
	Name   Name
	Pins   []string
	Shadow []string

	committed []bool
	staged    []bool
}

// Bits converts value into an MSB-first tuple of width n.
func Bits(value, n int) []bool {
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		bits[i] = (value>>(n-1-i))&1 == 1
	}
	return bits
}

// Bank holds the staged and committed state of every selector and commits
// only the groups that changed.
type Bank struct {
	pins      Pins
	clk       clock.Clock
	selectors map[Name]*Selector
	order     []Name
	inputs    map[string]string
	log       *slog.Logger
}

// NewBank builds a bank for the given wiring.
func NewBank(pins Pins, w Wiring, clk clock.Clock) *Bank {
	if clk == nil {
		clk = clock.Real{}
	}
	b := &Bank{
		pins:      pins,
		clk:       clk,
		selectors: make(map[Name]*Selector),
		inputs:    w.Inputs,
		log:       slog.Default(),
	}
	b.add(&Selector{Name: Board, Pins: w.Board, Shadow: w.BoardShadow})
	b.add(&Selector{Name: Short, Pins: w.Short})
	b.add(&Selector{Name: Length, Pins: w.Length})
	b.add(&Selector{Name: Bus, Pins: w.Bus})
	return b
}

func (b *Bank) add(s *Selector) {
	b.selectors[s.Name] = s
	b.order = append(b.order, s.Name)
}

// SetLogger replaces the logger used for commit traces.
func (b *Bank) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log = l
	}
}

// Stage records the pending code for a selector. It performs no I/O.
func (b *Bank) Stage(name Name, value int) error {
	s, ok := b.selectors[name]
	if !ok {
		return fmt.Errorf("unknown selector %q", name)
	}
	if value < 0 || value >= 1<<len(s.Pins) {
		return fmt.Errorf("selector %s: code %d does not fit %d pins", name, value, len(s.Pins))
	}
	s.staged = Bits(value, len(s.Pins))
	return nil
}

// Commit writes every selector whose staged code differs from the committed
// one, then waits SettleDelay once. With nothing to write it returns
// immediately.
func (b *Bank) Commit() error {
	wrote := false
	for _, name := range b.order {
		s := b.selectors[name]
		if s.staged == nil || equal(s.staged, s.committed) {
			continue
		}
		if err := b.write(s.Pins, s.staged); err != nil {
			return fmt.Errorf("selector %s: %w", s.Name, err)
		}
		if err := b.write(s.Shadow, s.staged); err != nil {
			return fmt.Errorf("selector %s shadow: %w", s.Name, err)
		}
		s.committed = append([]bool(nil), s.staged...)
		b.log.Debug("selector committed", "selector", string(s.Name), "bits", fmtBits(s.committed))
		wrote = true
	}
	if wrote {
		b.clk.Sleep(SettleDelay)
	}
	return nil
}

// Set stages and commits a single selector.
func (b *Bank) Set(name Name, value int) error {
	if err := b.Stage(name, value); err != nil {
		return err
	}
	return b.Commit()
}

// Reset drives every selector to a known idle state, writing all pins even if
// the bank believes they are already there.
func (b *Bank) Reset() error {
	for _, s := range b.selectors {
		s.committed = nil
	}
	if err := b.Stage(Board, 0); err != nil {
		return err
	}
	if err := b.Stage(Short, ShortDisengaged); err != nil {
		return err
	}
	if err := b.Stage(Length, LengthDisengaged); err != nil {
		return err
	}
	if err := b.Stage(Bus, BusOff); err != nil {
		return err
	}
	return b.Commit()
}

// Committed returns the last code written to a selector, or -1 if it has
// never been written.
func (b *Bank) Committed(name Name) int {
	s, ok := b.selectors[name]
	if !ok || s.committed == nil {
		return -1
	}
	v := 0
	for _, bit := range s.committed {
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v
}

// Input samples a labelled digital input (e.g. "I0").
func (b *Bank) Input(label string) (bool, error) {
	pin, ok := b.inputs[label]
	if !ok {
		return false, fmt.Errorf("unknown input %q", label)
	}
	return b.pins.Read(pin)
}

func (b *Bank) write(pins []string, bits []bool) error {
	for i, pin := range pins {
		if err := b.pins.Write(pin, bits[i]); err != nil {
			return err
		}
	}
	return nil
}

func equal(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fmtBits(bits []bool) string {
	out := make([]byte, len(bits))
	for i, bit := range bits {
		out[i] = '0'
		if bit {
			out[i] = '1'
		}
	}
	return string(out)
}
