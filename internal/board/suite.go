package board

import (
	"context"
	"fmt"
	"time"

	"github.com/buckleypaul/sealion/internal/clock"
)

// Step names as they appear in the result and the slot log.
const (
	StepConnect     = "rs232_connection"
	StepSetClock    = "datetime_set"
	StepStartup     = "startup_sequence"
	StepSupply      = "ps_voltage"
	StepRelays      = "relay_test"
	StepLength      = "length_detection"
	StepShort       = "short_detection"
	StepBus         = "rs485_modbus"
	StepReadClock   = "datetime_read"
	StepWriteIP     = "ip_write"
	StepLED         = "led_test"
	StepCurrentLoop = "output_current"
	StepEthernet    = "ethernet_test"
)

// StepFunc runs one check. A false result fails the step; an error also
// aborts the rest of the board's steps.
type StepFunc func(ctx context.Context) (bool, error)

// Step is one named check in a suite.
type Step struct {
	Name  string
	Label string
	Run   StepFunc
	// EnablesEthernet marks the step whose success admits the board to the
	// ethernet pass.
	EnablesEthernet bool
}

// Suite is the ordered plan for one board plus its deferred ethernet check.
type Suite struct {
	Family   Family
	Steps    []Step
	Ethernet Step

	close func() error
}

// Total counts every step including the ethernet check.
func (s *Suite) Total() int { return len(s.Steps) + 1 }

// Close releases the hardware the suite holds. It is safe to call more than
// once.
func (s *Suite) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewSuite builds the family's plan around a tester.
func NewSuite(t *Tester) (*Suite, error) {
	steps := []Step{
		{Name: StepConnect, Label: "RS232 connection", Run: t.Connect},
		{Name: StepSetClock, Label: "Set date/time", Run: t.SetClock},
		{Name: StepStartup, Label: "Startup sequence", Run: t.Startup},
		{Name: StepSupply, Label: "15V supply", Run: t.Supply},
		{Name: StepRelays, Label: "Relays", Run: t.Relays},
		{Name: StepLength, Label: "Length detection", Run: t.Length},
		{Name: StepShort, Label: "Short detection", Run: t.Short},
		{Name: StepBus, Label: "RS485 bus", Run: t.BusCheck},
		{Name: StepReadClock, Label: "Read date/time", Run: t.ReadClock},
		{Name: StepWriteIP, Label: "Write IP address", EnablesEthernet: true, Run: func(ctx context.Context) (bool, error) {
			return t.WriteIP(ctx, t.target.IP)
		}},
		{Name: StepLED, Label: "LED", Run: t.LED},
	}
	if t.prof.CurrentLoop {
		steps = append(steps, Step{Name: StepCurrentLoop, Label: "Output current", Run: t.CurrentLoop})
	}
	if err := ValidatePlan(steps); err != nil {
		return nil, err
	}
	return &Suite{
		Family:   t.target.Family,
		Steps:    steps,
		Ethernet: Step{Name: StepEthernet, Label: "Ethernet", Run: t.Ethernet},
		close:    t.Close,
	}, nil
}

// ValidatePlan rejects plans that read the board clock before setting it.
func ValidatePlan(steps []Step) error {
	set := false
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if seen[s.Name] {
			return fmt.Errorf("step %q appears twice", s.Name)
		}
		seen[s.Name] = true
		switch s.Name {
		case StepSetClock:
			set = true
		case StepReadClock:
			if !set {
				return fmt.Errorf("%s before %s: %w", StepReadClock, StepSetClock, ErrOperationsOutOfOrder)
			}
		}
	}
	return nil
}

// DryRunSuite returns a suite with the family's step names whose steps wait
// delay and pass without touching hardware.
func DryRunSuite(f Family, delay time.Duration, clk clock.Clock) *Suite {
	if clk == nil {
		clk = clock.Real{}
	}
	wait := func(ctx context.Context) (bool, error) {
		clk.Sleep(delay)
		return true, ctx.Err()
	}
	names := []string{
		StepConnect, StepSetClock, StepStartup, StepSupply, StepRelays,
		StepLength, StepShort, StepBus, StepReadClock, StepWriteIP, StepLED,
	}
	if f.Profile().CurrentLoop {
		names = append(names, StepCurrentLoop)
	}
	s := &Suite{Family: f, Ethernet: Step{Name: StepEthernet, Label: "Ethernet", Run: wait}}
	for _, n := range names {
		s.Steps = append(s.Steps, Step{Name: n, Label: n, Run: wait, EnablesEthernet: n == StepWriteIP})
	}
	return s
}
