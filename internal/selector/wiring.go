package selector

import "fmt"

// Wiring maps selectors and relay-sense inputs to GPIO line names.
type Wiring struct {
	Board       []string          `yaml:"board"`
	BoardShadow []string          `yaml:"board_shadow,omitempty"`
	Short       []string          `yaml:"short"`
	Length      []string          `yaml:"length"`
	Bus         []string          `yaml:"bus"`
	Inputs      map[string]string `yaml:"inputs"`
}

// DefaultWiring is the production fixture harness in BCM line names. Board
// and bus use header pins 3,5,7 and 18,22. The emulator header pins
// 11,12,13,15,16 carry short and the low length bits, header pin 29 the
// top length bit.
func DefaultWiring() Wiring {
	return Wiring{
		Board:       []string{"GPIO2", "GPIO3", "GPIO4"},
		BoardShadow: []string{"GPIO6", "GPIO13", "GPIO19"},
		Short:       []string{"GPIO17", "GPIO18", "GPIO27"},
		Length:      []string{"GPIO22", "GPIO23", "GPIO5"},
		Bus:         []string{"GPIO24", "GPIO25"},
		Inputs: map[string]string{
			"I0": "GPIO12",
			"I1": "GPIO16",
			"I2": "GPIO20",
			"I3": "GPIO21",
		},
	}
}

// Validate checks that every group has pins and that the shadow group mirrors
// the board group.
func (w Wiring) Validate() error {
	groups := map[string][]string{
		"board":  w.Board,
		"short":  w.Short,
		"length": w.Length,
		"bus":    w.Bus,
	}
	for name, pins := range groups {
		if len(pins) == 0 {
			return fmt.Errorf("wiring: selector %s has no pins", name)
		}
	}
	if len(w.Short) < 3 || len(w.Length) < 3 {
		return fmt.Errorf("wiring: emulator selectors need 3 pins")
	}
	if len(w.Bus) < 2 {
		return fmt.Errorf("wiring: bus selector needs 2 pins")
	}
	if len(w.BoardShadow) > 0 && len(w.BoardShadow) != len(w.Board) {
		return fmt.Errorf("wiring: board shadow has %d pins, board has %d", len(w.BoardShadow), len(w.Board))
	}
	return nil
}
