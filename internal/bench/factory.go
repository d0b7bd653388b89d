package bench

import (
	"log/slog"
	"time"

	"github.com/buckleypaul/sealion/internal/board"
	"github.com/buckleypaul/sealion/internal/clock"
)

// HardwareFactory builds suites that drive the shared fixture hardware.
type HardwareFactory struct {
	Hardware  board.Hardware
	DefaultIP string
}

func (h HardwareFactory) Suite(slot Slot, log *slog.Logger) (*board.Suite, error) {
	t := board.NewTester(h.Hardware, slot.Target(h.DefaultIP))
	t.SetLogger(log)
	return board.NewSuite(t)
}

// DryRunFactory builds suites whose steps only wait and pass.
type DryRunFactory struct {
	Delay time.Duration
	Clock clock.Clock
}

func (d DryRunFactory) Suite(slot Slot, log *slog.Logger) (*board.Suite, error) {
	log.Info("dry run", "family", slot.Family.String(), "delay", d.Delay)
	return board.DryRunSuite(slot.Family, d.Delay, d.Clock), nil
}
